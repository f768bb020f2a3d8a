package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"fitness-crm/models"
)

type BranchHandler struct {
	repo models.AccountRepository
}

func NewBranchHandler(repo models.AccountRepository) *BranchHandler {
	return &BranchHandler{repo: repo}
}

type BranchRequest struct {
	Name    string `json:"name" binding:"required,min=2,max=100"`
	Address string `json:"address" binding:"max=255"`
	Phone   string `json:"phone" binding:"max=50"`
}

type BranchResponse struct {
	ID        uint      `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"created_at"`
}

func toBranchResponse(b *models.Branch) BranchResponse {
	return BranchResponse{
		ID:        b.ID,
		Name:      b.Name,
		Address:   b.Address,
		Phone:     b.Phone,
		CreatedAt: b.CreatedAt,
	}
}

func (h *BranchHandler) ListBranches(c *gin.Context) {
	branches, err := h.repo.ListBranches(c.Request.Context())
	if err != nil {
		respondError(c, err, "branch")
		return
	}

	items := make([]BranchResponse, 0, len(branches))
	for i := range branches {
		items = append(items, toBranchResponse(&branches[i]))
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *BranchHandler) CreateBranch(c *gin.Context) {
	var req BranchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	branch := &models.Branch{Name: req.Name, Address: req.Address, Phone: req.Phone}
	if err := h.repo.CreateBranch(c.Request.Context(), branch); err != nil {
		respondError(c, err, "branch")
		return
	}

	c.JSON(http.StatusCreated, toBranchResponse(branch))
}

func (h *BranchHandler) GetBranch(c *gin.Context) {
	id, ok := idParam(c, "id", "branch")
	if !ok {
		return
	}

	branch, err := h.repo.GetBranch(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "branch")
		return
	}

	c.JSON(http.StatusOK, toBranchResponse(branch))
}

func (h *BranchHandler) UpdateBranch(c *gin.Context) {
	id, ok := idParam(c, "id", "branch")
	if !ok {
		return
	}

	var req BranchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	branch, err := h.repo.GetBranch(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "branch")
		return
	}

	branch.Name = req.Name
	branch.Address = req.Address
	branch.Phone = req.Phone

	if err := h.repo.UpdateBranch(c.Request.Context(), branch); err != nil {
		respondError(c, err, "branch")
		return
	}

	c.JSON(http.StatusOK, toBranchResponse(branch))
}

func (h *BranchHandler) DeleteBranch(c *gin.Context) {
	id, ok := idParam(c, "id", "branch")
	if !ok {
		return
	}

	if err := h.repo.DeleteBranch(c.Request.Context(), id); err != nil {
		respondError(c, err, "branch")
		return
	}

	c.Status(http.StatusNoContent)
}
