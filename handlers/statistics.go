package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"fitness-crm/models"
	"fitness-crm/services"
)

type StatisticsProvider interface {
	Dashboard(ctx context.Context, branchID *uint) (*services.Dashboard, error)
	CustomerSeries(ctx context.Context, branchID *uint, from, to time.Time) ([]models.MonthlyCount, error)
	RevenueSeries(ctx context.Context, branchID *uint, from, to time.Time) ([]models.MonthlyRevenue, error)
}

type StatisticsHandler struct {
	stats StatisticsProvider
}

func NewStatisticsHandler(stats StatisticsProvider) *StatisticsHandler {
	return &StatisticsHandler{stats: stats}
}

// statsQuery reads branch_id, from and to. The to date is inclusive, so the
// returned bound is the start of the following day.
func statsQuery(c *gin.Context) (branchID *uint, from, to time.Time, ok bool) {
	requested, err := optionalUint(c, "branch_id")
	if err != nil {
		badRequest(c, err.Error())
		return nil, from, to, false
	}
	branchID = principal(c).ScopeBranch(requested)

	if raw := c.Query("from"); raw != "" {
		if from, err = parseDate(raw); err != nil {
			badRequest(c, "invalid from date, expected YYYY-MM-DD")
			return nil, from, to, false
		}
	}
	if raw := c.Query("to"); raw != "" {
		if to, err = parseDate(raw); err != nil {
			badRequest(c, "invalid to date, expected YYYY-MM-DD")
			return nil, from, to, false
		}
		to = to.AddDate(0, 0, 1)
	}

	return branchID, from, to, true
}

func (h *StatisticsHandler) Dashboard(c *gin.Context) {
	requested, err := optionalUint(c, "branch_id")
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	dashboard, err := h.stats.Dashboard(c.Request.Context(), principal(c).ScopeBranch(requested))
	if err != nil {
		respondError(c, err, "statistics")
		return
	}

	c.JSON(http.StatusOK, dashboard)
}

func (h *StatisticsHandler) Customers(c *gin.Context) {
	branchID, from, to, ok := statsQuery(c)
	if !ok {
		return
	}

	series, err := h.stats.CustomerSeries(c.Request.Context(), branchID, from, to)
	if err != nil {
		respondError(c, err, "statistics")
		return
	}
	if series == nil {
		series = []models.MonthlyCount{}
	}

	c.JSON(http.StatusOK, gin.H{"branch_id": branchID, "items": series})
}

func (h *StatisticsHandler) Revenue(c *gin.Context) {
	branchID, from, to, ok := statsQuery(c)
	if !ok {
		return
	}

	series, err := h.stats.RevenueSeries(c.Request.Context(), branchID, from, to)
	if err != nil {
		respondError(c, err, "statistics")
		return
	}
	if series == nil {
		series = []models.MonthlyRevenue{}
	}

	c.JSON(http.StatusOK, gin.H{"branch_id": branchID, "items": series})
}
