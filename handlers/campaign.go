package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"fitness-crm/models"
)

const defaultExpiringDays = 7

type CampaignDispatcher interface {
	Start(ctx context.Context, id uint) (*models.Campaign, error)
	Cancel(ctx context.Context, id uint) error
	HasChannel(channel string) bool
}

type CampaignHandler struct {
	repo       models.CampaignRepository
	dispatcher CampaignDispatcher
}

func NewCampaignHandler(repo models.CampaignRepository, dispatcher CampaignDispatcher) *CampaignHandler {
	return &CampaignHandler{repo: repo, dispatcher: dispatcher}
}

type CampaignRequest struct {
	Name               string     `json:"name" binding:"required,min=2,max=100"`
	TemplateID         uint       `json:"template_id" binding:"required"`
	BranchID           *uint      `json:"branch_id"`
	Audience           string     `json:"audience" binding:"required,oneof=all consultation registered expiring expired"`
	ExpiringWithinDays int        `json:"expiring_within_days" binding:"min=0,max=365"`
	ScheduledAt        *time.Time `json:"scheduled_at"`
}

type CampaignResponse struct {
	ID                 uint       `json:"id"`
	Name               string     `json:"name"`
	TemplateID         uint       `json:"template_id"`
	TemplateName       string     `json:"template,omitempty"`
	Channel            string     `json:"channel,omitempty"`
	BranchID           *uint      `json:"branch_id"`
	Audience           string     `json:"audience"`
	ExpiringWithinDays int        `json:"expiring_within_days"`
	ScheduledAt        *time.Time `json:"scheduled_at"`
	Status             string     `json:"status"`
	SentCount          int        `json:"sent_count"`
	FailedCount        int        `json:"failed_count"`
	StartedAt          *time.Time `json:"started_at"`
	FinishedAt         *time.Time `json:"finished_at"`
	CreatedByID        uint       `json:"created_by_id"`
	CreatedAt          time.Time  `json:"created_at"`
}

type CampaignMessageResponse struct {
	ID         uint       `json:"id"`
	CustomerID uint       `json:"customer_id"`
	Channel    string     `json:"channel"`
	Recipient  string     `json:"recipient"`
	Body       string     `json:"body"`
	Status     string     `json:"status"`
	Error      string     `json:"error,omitempty"`
	SentAt     *time.Time `json:"sent_at"`
}

func toCampaignResponse(c *models.Campaign) CampaignResponse {
	return CampaignResponse{
		ID:                 c.ID,
		Name:               c.Name,
		TemplateID:         c.TemplateID,
		TemplateName:       c.Template.Name,
		Channel:            c.Template.Channel,
		BranchID:           c.BranchID,
		Audience:           c.Audience,
		ExpiringWithinDays: c.ExpiringWithinDays,
		ScheduledAt:        c.ScheduledAt,
		Status:             string(c.Status),
		SentCount:          c.SentCount,
		FailedCount:        c.FailedCount,
		StartedAt:          c.StartedAt,
		FinishedAt:         c.FinishedAt,
		CreatedByID:        c.CreatedByID,
		CreatedAt:          c.CreatedAt,
	}
}

// loadOwnCampaign is loadCampaign for operations that change the campaign.
func (h *CampaignHandler) loadOwnCampaign(c *gin.Context) (*models.Campaign, bool) {
	campaign, ok := h.loadCampaign(c)
	if !ok || !canModifyShared(c, campaign.BranchID, "campaign") {
		return nil, false
	}
	return campaign, true
}

func (h *CampaignHandler) loadCampaign(c *gin.Context) (*models.Campaign, bool) {
	id, ok := idParam(c, "id", "campaign")
	if !ok {
		return nil, false
	}

	campaign, err := h.repo.GetCampaign(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "campaign")
		return nil, false
	}
	if !principal(c).CanAccessOptionalBranch(campaign.BranchID) {
		notFound(c, "campaign")
		return nil, false
	}
	return campaign, true
}

// apply validates req and copies it onto campaign.
func (h *CampaignHandler) apply(c *gin.Context, req *CampaignRequest, campaign *models.Campaign) bool {
	branchID, ok := ownedBranch(c, req.BranchID)
	if !ok {
		return false
	}

	tpl, err := h.repo.GetTemplate(c.Request.Context(), req.TemplateID)
	if errors.Is(err, models.ErrNotFound) || (err == nil && !principal(c).CanAccessOptionalBranch(tpl.BranchID)) {
		badRequest(c, "template not found")
		return false
	}
	if err != nil {
		respondError(c, err, "template")
		return false
	}
	if !h.dispatcher.HasChannel(tpl.Channel) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "the " + tpl.Channel + " channel is not configured"})
		return false
	}

	if req.ScheduledAt != nil && !req.ScheduledAt.After(time.Now()) {
		badRequest(c, "scheduled_at must be in the future")
		return false
	}

	days := req.ExpiringWithinDays
	if req.Audience == models.AudienceExpiring && days == 0 {
		days = defaultExpiringDays
	}

	campaign.Name = req.Name
	campaign.TemplateID = tpl.ID
	campaign.Template = *tpl
	campaign.BranchID = branchID
	campaign.Audience = req.Audience
	campaign.ExpiringWithinDays = days
	campaign.ScheduledAt = req.ScheduledAt
	campaign.Status = models.CampaignDraft
	if req.ScheduledAt != nil {
		campaign.Status = models.CampaignScheduled
	}
	return true
}

func (h *CampaignHandler) ListCampaigns(c *gin.Context) {
	branchID, err := optionalUint(c, "branch_id")
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	filter := models.CampaignFilter{
		Status:   models.CampaignStatus(c.Query("status")),
		BranchID: principal(c).ScopeBranch(branchID),
	}

	campaigns, err := h.repo.ListCampaigns(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err, "campaign")
		return
	}

	items := make([]CampaignResponse, 0, len(campaigns))
	for i := range campaigns {
		items = append(items, toCampaignResponse(&campaigns[i]))
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// CreateCampaign stores a draft, or a scheduled campaign when scheduled_at
// is given.
func (h *CampaignHandler) CreateCampaign(c *gin.Context) {
	var req CampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	campaign := &models.Campaign{CreatedByID: principal(c).UserID}
	if !h.apply(c, &req, campaign) {
		return
	}

	if err := h.repo.CreateCampaign(c.Request.Context(), campaign); err != nil {
		respondError(c, err, "campaign")
		return
	}

	c.JSON(http.StatusCreated, toCampaignResponse(campaign))
}

func (h *CampaignHandler) GetCampaign(c *gin.Context) {
	campaign, ok := h.loadCampaign(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, toCampaignResponse(campaign))
}

func (h *CampaignHandler) UpdateCampaign(c *gin.Context) {
	campaign, ok := h.loadOwnCampaign(c)
	if !ok {
		return
	}
	if !campaign.Editable() {
		c.JSON(http.StatusConflict, gin.H{"error": "only draft or scheduled campaigns can be changed"})
		return
	}

	var req CampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if !h.apply(c, &req, campaign) {
		return
	}

	if err := h.repo.UpdateCampaign(c.Request.Context(), campaign); err != nil {
		respondError(c, err, "campaign")
		return
	}

	c.JSON(http.StatusOK, toCampaignResponse(campaign))
}

func (h *CampaignHandler) DeleteCampaign(c *gin.Context) {
	campaign, ok := h.loadOwnCampaign(c)
	if !ok {
		return
	}

	if err := h.repo.DeleteCampaign(c.Request.Context(), campaign.ID); err != nil {
		if errors.Is(err, models.ErrConflict) {
			c.JSON(http.StatusConflict, gin.H{"error": "a campaign cannot be deleted while it is sending"})
			return
		}
		respondError(c, err, "campaign")
		return
	}

	c.Status(http.StatusNoContent)
}

// SendCampaign starts delivery right away. Delivery continues in the
// background; poll the campaign for its outcome.
func (h *CampaignHandler) SendCampaign(c *gin.Context) {
	campaign, ok := h.loadOwnCampaign(c)
	if !ok {
		return
	}

	started, err := h.dispatcher.Start(c.Request.Context(), campaign.ID)
	if err != nil {
		respondError(c, err, "campaign")
		return
	}

	c.JSON(http.StatusAccepted, toCampaignResponse(started))
}

func (h *CampaignHandler) CancelCampaign(c *gin.Context) {
	campaign, ok := h.loadOwnCampaign(c)
	if !ok {
		return
	}

	if err := h.dispatcher.Cancel(c.Request.Context(), campaign.ID); err != nil {
		respondError(c, err, "campaign")
		return
	}

	campaign.Status = models.CampaignCanceled
	c.JSON(http.StatusOK, toCampaignResponse(campaign))
}

func (h *CampaignHandler) ListMessages(c *gin.Context) {
	campaign, ok := h.loadCampaign(c)
	if !ok {
		return
	}
	page := pageFromQuery(c)

	messages, total, err := h.repo.ListCampaignMessages(c.Request.Context(), campaign.ID, page)
	if err != nil {
		respondError(c, err, "campaign")
		return
	}

	items := make([]CampaignMessageResponse, 0, len(messages))
	for _, m := range messages {
		items = append(items, CampaignMessageResponse{
			ID:         m.ID,
			CustomerID: m.CustomerID,
			Channel:    m.Channel,
			Recipient:  m.Recipient,
			Body:       m.Body,
			Status:     m.Status,
			Error:      m.Error,
			SentAt:     m.SentAt,
		})
	}
	c.JSON(http.StatusOK, listResponse{Items: items, Total: total, Page: page.Page, PageSize: page.PageSize})
}
