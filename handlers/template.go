package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"fitness-crm/models"
	"fitness-crm/services"
)

type Previewer interface {
	Preview(ctx context.Context, tpl *models.MessageTemplate, customer *models.Customer) (string, string)
}

type CustomerGetter interface {
	GetCustomer(ctx context.Context, id uint) (*models.Customer, error)
}

type TemplateHandler struct {
	repo      models.CampaignRepository
	customers CustomerGetter
	preview   Previewer
}

func NewTemplateHandler(repo models.CampaignRepository, customers CustomerGetter, preview Previewer) *TemplateHandler {
	return &TemplateHandler{repo: repo, customers: customers, preview: preview}
}

type TemplateRequest struct {
	Name     string `json:"name" binding:"required,min=2,max=100"`
	Channel  string `json:"channel" binding:"required,oneof=sms email"`
	Subject  string `json:"subject" binding:"max=255"`
	Body     string `json:"body" binding:"required,max=5000"`
	BranchID *uint  `json:"branch_id"`
}

type TemplateResponse struct {
	ID           uint      `json:"id"`
	Name         string    `json:"name"`
	Channel      string    `json:"channel"`
	Subject      string    `json:"subject"`
	Body         string    `json:"body"`
	BranchID     *uint     `json:"branch_id"`
	Placeholders []string  `json:"placeholders"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type PreviewRequest struct {
	CustomerID *uint `json:"customer_id"`
}

func toTemplateResponse(t *models.MessageTemplate) TemplateResponse {
	placeholders := services.Placeholders(t.Subject + "\n" + t.Body)
	if placeholders == nil {
		placeholders = []string{}
	}
	return TemplateResponse{
		ID:           t.ID,
		Name:         t.Name,
		Channel:      t.Channel,
		Subject:      t.Subject,
		Body:         t.Body,
		BranchID:     t.BranchID,
		Placeholders: placeholders,
		UpdatedAt:    t.UpdatedAt,
	}
}

func (req *TemplateRequest) validate() error {
	if req.Channel == models.ChannelEmail && req.Subject == "" {
		return errors.New("subject is required for email templates")
	}
	return nil
}

func (h *TemplateHandler) loadTemplate(c *gin.Context) (*models.MessageTemplate, bool) {
	id, ok := idParam(c, "id", "template")
	if !ok {
		return nil, false
	}

	tpl, err := h.repo.GetTemplate(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "template")
		return nil, false
	}
	if !principal(c).CanAccessOptionalBranch(tpl.BranchID) {
		notFound(c, "template")
		return nil, false
	}
	return tpl, true
}

func (h *TemplateHandler) ListTemplates(c *gin.Context) {
	branchID, err := optionalUint(c, "branch_id")
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	templates, err := h.repo.ListTemplates(c.Request.Context(), principal(c).ScopeBranch(branchID))
	if err != nil {
		respondError(c, err, "template")
		return
	}

	items := make([]TemplateResponse, 0, len(templates))
	for i := range templates {
		items = append(items, toTemplateResponse(&templates[i]))
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *TemplateHandler) CreateTemplate(c *gin.Context) {
	var req TemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := req.validate(); err != nil {
		badRequest(c, err.Error())
		return
	}

	branchID, ok := ownedBranch(c, req.BranchID)
	if !ok {
		return
	}

	tpl := &models.MessageTemplate{
		Name:     req.Name,
		Channel:  req.Channel,
		Subject:  req.Subject,
		Body:     req.Body,
		BranchID: branchID,
	}
	if err := h.repo.CreateTemplate(c.Request.Context(), tpl); err != nil {
		respondError(c, err, "template")
		return
	}

	c.JSON(http.StatusCreated, toTemplateResponse(tpl))
}

func (h *TemplateHandler) GetTemplate(c *gin.Context) {
	tpl, ok := h.loadTemplate(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, toTemplateResponse(tpl))
}

func (h *TemplateHandler) UpdateTemplate(c *gin.Context) {
	tpl, ok := h.loadTemplate(c)
	if !ok || !canModifyShared(c, tpl.BranchID, "template") {
		return
	}

	var req TemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := req.validate(); err != nil {
		badRequest(c, err.Error())
		return
	}

	branchID, ok := ownedBranch(c, req.BranchID)
	if !ok {
		return
	}

	tpl.Name = req.Name
	tpl.Channel = req.Channel
	tpl.Subject = req.Subject
	tpl.Body = req.Body
	tpl.BranchID = branchID

	if err := h.repo.UpdateTemplate(c.Request.Context(), tpl); err != nil {
		respondError(c, err, "template")
		return
	}

	c.JSON(http.StatusOK, toTemplateResponse(tpl))
}

func (h *TemplateHandler) DeleteTemplate(c *gin.Context) {
	tpl, ok := h.loadTemplate(c)
	if !ok || !canModifyShared(c, tpl.BranchID, "template") {
		return
	}

	if err := h.repo.DeleteTemplate(c.Request.Context(), tpl.ID); err != nil {
		respondError(c, err, "template")
		return
	}

	c.Status(http.StatusNoContent)
}

// PreviewTemplate renders the template for a customer, or for sample data
// when no customer is given.
func (h *TemplateHandler) PreviewTemplate(c *gin.Context) {
	tpl, ok := h.loadTemplate(c)
	if !ok {
		return
	}

	var req PreviewRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
	}

	var customer *models.Customer
	if req.CustomerID != nil {
		var err error
		customer, err = h.customers.GetCustomer(c.Request.Context(), *req.CustomerID)
		if err != nil {
			respondError(c, err, "customer")
			return
		}
		if !principal(c).CanAccessBranch(customer.BranchID) {
			notFound(c, "customer")
			return
		}
	}

	subject, body := h.preview.Preview(c.Request.Context(), tpl, customer)
	c.JSON(http.StatusOK, gin.H{
		"subject":      subject,
		"body":         body,
		"placeholders": toTemplateResponse(tpl).Placeholders,
	})
}
