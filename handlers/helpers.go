package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"fitness-crm/middleware"
	"fitness-crm/models"
	"fitness-crm/services"
)

const errNoBranch = "your account is not assigned to a branch"

type listResponse struct {
	Items    interface{} `json:"items"`
	Total    int64       `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
}

func parseUint(s string) (uint, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil || v == 0 {
		return 0, errors.New("invalid id")
	}
	return uint(v), nil
}

// idParam reads a positional id and answers 400 itself when it is malformed.
func idParam(c *gin.Context, name, label string) (uint, bool) {
	id, err := parseUint(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + label + " ID format"})
		return 0, false
	}
	return id, true
}

func optionalUint(c *gin.Context, key string) (*uint, error) {
	raw := c.Query(key)
	if raw == "" {
		return nil, nil
	}
	v, err := parseUint(raw)
	if err != nil {
		return nil, errors.New("invalid " + key)
	}
	return &v, nil
}

func optionalBool(c *gin.Context, key string) (*bool, error) {
	raw := c.Query(key)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, errors.New("invalid " + key)
	}
	return &v, nil
}

func pageFromQuery(c *gin.Context) models.Page {
	page, _ := strconv.Atoi(c.Query("page"))
	size, _ := strconv.Atoi(c.Query("page_size"))
	return models.Page{Page: page, PageSize: size}.Normalize()
}

func parseDate(s string) (time.Time, error) {
	return time.ParseInLocation(services.DateLayout, s, time.UTC)
}

func parseOptionalDate(s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	t, err := parseDate(*s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func formatDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(services.DateLayout)
	return &s
}

func principal(c *gin.Context) *services.Principal {
	return middleware.CurrentPrincipal(c)
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

func notFound(c *gin.Context, what string) {
	c.JSON(http.StatusNotFound, gin.H{"error": what + " not found"})
}

// respondError maps domain errors to status codes. Anything unexpected is a
// 500 and gets attached to the context for the error reporter.
func respondError(c *gin.Context, err error, what string) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		notFound(c, what)
	case errors.Is(err, models.ErrDuplicate):
		c.JSON(http.StatusConflict, gin.H{"error": what + " already exists"})
	case errors.Is(err, models.ErrInUse):
		c.JSON(http.StatusConflict, gin.H{"error": what + " is still in use"})
	case errors.Is(err, models.ErrConflict), errors.Is(err, services.ErrCampaignState):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrWeakPassword),
		errors.Is(err, services.ErrInvalidRange),
		errors.Is(err, services.ErrProductUnavailable),
		errors.Is(err, services.ErrChannelUnavailable):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

// ownedBranch decides where a product, template or campaign lives.
// Branch-bound staff can only manage their own branch's records; shared ones
// need all-branch access.
func ownedBranch(c *gin.Context, requested *uint) (*uint, bool) {
	p := principal(c)
	if p.Unassigned() {
		c.JSON(http.StatusForbidden, gin.H{"error": errNoBranch})
		return nil, false
	}
	if requested == nil && !p.AllBranches {
		return p.BranchID, true
	}
	if requested != nil && !p.CanAccessBranch(*requested) {
		c.JSON(http.StatusForbidden, gin.H{"error": "only records of your own branch can be managed"})
		return nil, false
	}
	return requested, true
}

// canModifyShared reports whether the caller may change a record of branchID.
// Shared records (nil branch) are read-only for branch-bound staff.
func canModifyShared(c *gin.Context, branchID *uint, what string) bool {
	if branchID == nil && !principal(c).AllBranches {
		c.JSON(http.StatusForbidden, gin.H{"error": "shared " + what + "s can only be changed by all-branch users"})
		return false
	}
	return true
}
