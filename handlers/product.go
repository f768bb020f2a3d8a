package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"fitness-crm/models"
	"fitness-crm/services"
)

type ProductHandler struct {
	repo   models.ProductRepository
	events *services.EventPublisher
}

func NewProductHandler(repo models.ProductRepository, events *services.EventPublisher) *ProductHandler {
	return &ProductHandler{repo: repo, events: events}
}

type ProductRequest struct {
	Name         string           `json:"name" binding:"required,min=2,max=100"`
	Category     string           `json:"category" binding:"required,oneof=membership pt group locker other"`
	Price        *decimal.Decimal `json:"price" binding:"required"`
	DurationDays int              `json:"duration_days" binding:"required,min=1,max=3650"`
	SessionCount int              `json:"session_count" binding:"min=0"`
	BranchID     *uint            `json:"branch_id"`
	Active       *bool            `json:"active"`
	Description  string           `json:"description"`
}

type ProductResponse struct {
	ID           uint            `json:"id"`
	Name         string          `json:"name"`
	Category     string          `json:"category"`
	Price        decimal.Decimal `json:"price"`
	DurationDays int             `json:"duration_days"`
	SessionCount int             `json:"session_count"`
	BranchID     *uint           `json:"branch_id"`
	Active       bool            `json:"active"`
	Description  string          `json:"description"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func toProductResponse(p *models.Product) ProductResponse {
	return ProductResponse{
		ID:           p.ID,
		Name:         p.Name,
		Category:     p.Category,
		Price:        p.Price,
		DurationDays: p.DurationDays,
		SessionCount: p.SessionCount,
		BranchID:     p.BranchID,
		Active:       p.Active,
		Description:  p.Description,
		UpdatedAt:    p.UpdatedAt,
	}
}

func (h *ProductHandler) loadProduct(c *gin.Context) (*models.Product, bool) {
	id, ok := idParam(c, "id", "product")
	if !ok {
		return nil, false
	}

	product, err := h.repo.GetProduct(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "product")
		return nil, false
	}
	if !principal(c).CanAccessOptionalBranch(product.BranchID) {
		notFound(c, "product")
		return nil, false
	}
	return product, true
}

func (h *ProductHandler) ListProducts(c *gin.Context) {
	branchID, err := optionalUint(c, "branch_id")
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	active, err := optionalBool(c, "active")
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	filter := models.ProductFilter{
		Category: c.Query("category"),
		BranchID: principal(c).ScopeBranch(branchID),
		Active:   active,
	}

	products, err := h.repo.ListProducts(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err, "product")
		return
	}

	items := make([]ProductResponse, 0, len(products))
	for i := range products {
		items = append(items, toProductResponse(&products[i]))
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *ProductHandler) CreateProduct(c *gin.Context) {
	var req ProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if req.Price.IsNegative() {
		badRequest(c, "price must not be negative")
		return
	}

	branchID, ok := ownedBranch(c, req.BranchID)
	if !ok {
		return
	}

	product := &models.Product{
		Name:         req.Name,
		Category:     req.Category,
		Price:        req.Price.Round(2),
		DurationDays: req.DurationDays,
		SessionCount: req.SessionCount,
		BranchID:     branchID,
		Active:       req.Active == nil || *req.Active,
		Description:  req.Description,
	}
	if err := h.repo.CreateProduct(c.Request.Context(), product); err != nil {
		respondError(c, err, "product")
		return
	}

	h.events.PublishAsync(services.EventProductChanged, product.ID, product.BranchID, toProductResponse(product))

	c.JSON(http.StatusCreated, toProductResponse(product))
}

func (h *ProductHandler) GetProduct(c *gin.Context) {
	product, ok := h.loadProduct(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, toProductResponse(product))
}

func (h *ProductHandler) UpdateProduct(c *gin.Context) {
	product, ok := h.loadProduct(c)
	if !ok || !canModifyShared(c, product.BranchID, "product") {
		return
	}

	var req ProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if req.Price.IsNegative() {
		badRequest(c, "price must not be negative")
		return
	}

	branchID, ok := ownedBranch(c, req.BranchID)
	if !ok {
		return
	}

	product.Name = req.Name
	product.Category = req.Category
	product.Price = req.Price.Round(2)
	product.DurationDays = req.DurationDays
	product.SessionCount = req.SessionCount
	product.BranchID = branchID
	if req.Active != nil {
		product.Active = *req.Active
	}
	product.Description = req.Description

	if err := h.repo.UpdateProduct(c.Request.Context(), product); err != nil {
		respondError(c, err, "product")
		return
	}

	h.events.PublishAsync(services.EventProductChanged, product.ID, product.BranchID, toProductResponse(product))

	c.JSON(http.StatusOK, toProductResponse(product))
}

// DeleteProduct soft-deletes the product. Memberships sold from it keep
// pointing at it.
func (h *ProductHandler) DeleteProduct(c *gin.Context) {
	product, ok := h.loadProduct(c)
	if !ok || !canModifyShared(c, product.BranchID, "product") {
		return
	}

	if err := h.repo.DeleteProduct(c.Request.Context(), product.ID); err != nil {
		respondError(c, err, "product")
		return
	}

	h.events.PublishAsync(services.EventProductChanged, product.ID, product.BranchID, gin.H{"id": product.ID, "deleted": true})

	c.Status(http.StatusNoContent)
}
