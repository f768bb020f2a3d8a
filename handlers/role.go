package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"fitness-crm/models"
)

type RoleHandler struct {
	repo models.AccountRepository
}

func NewRoleHandler(repo models.AccountRepository) *RoleHandler {
	return &RoleHandler{repo: repo}
}

type RoleRequest struct {
	Name        string               `json:"name" binding:"required,min=2,max=50"`
	Description string               `json:"description" binding:"max=255"`
	AllBranches bool                 `json:"all_branches"`
	Permissions models.PermissionSet `json:"permissions"`
}

type RoleResponse struct {
	ID          uint                 `json:"id"`
	Name        string               `json:"name"`
	Description string               `json:"description"`
	AllBranches bool                 `json:"all_branches"`
	Permissions models.PermissionSet `json:"permissions"`
}

func toRoleResponse(r *models.Role) RoleResponse {
	perms := r.Permissions
	if perms == nil {
		perms = models.PermissionSet{}
	}
	return RoleResponse{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		AllBranches: r.AllBranches,
		Permissions: perms,
	}
}

func validPermissions(perms models.PermissionSet) bool {
	for area := range perms {
		known := false
		for _, a := range models.Areas {
			if a == area {
				known = true
				break
			}
		}
		if !known {
			return false
		}
	}
	return true
}

// allBranchesOnly rejects branch-bound callers from roles that span every
// branch.
func allBranchesOnly(c *gin.Context, allBranches bool) bool {
	if allBranches && !principal(c).AllBranches {
		c.JSON(http.StatusForbidden, gin.H{"error": "only all-branch users can manage all-branch roles"})
		return false
	}
	return true
}

func (h *RoleHandler) ListRoles(c *gin.Context) {
	roles, err := h.repo.ListRoles(c.Request.Context())
	if err != nil {
		respondError(c, err, "role")
		return
	}

	items := make([]RoleResponse, 0, len(roles))
	for i := range roles {
		items = append(items, toRoleResponse(&roles[i]))
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "areas": models.Areas})
}

func (h *RoleHandler) CreateRole(c *gin.Context) {
	var req RoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if !validPermissions(req.Permissions) {
		badRequest(c, "unknown permission area")
		return
	}
	if !allBranchesOnly(c, req.AllBranches) {
		return
	}

	role := &models.Role{
		Name:        req.Name,
		Description: req.Description,
		AllBranches: req.AllBranches,
		Permissions: req.Permissions,
	}
	if err := h.repo.CreateRole(c.Request.Context(), role); err != nil {
		respondError(c, err, "role")
		return
	}

	c.JSON(http.StatusCreated, toRoleResponse(role))
}

func (h *RoleHandler) GetRole(c *gin.Context) {
	id, ok := idParam(c, "id", "role")
	if !ok {
		return
	}

	role, err := h.repo.GetRole(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "role")
		return
	}

	c.JSON(http.StatusOK, toRoleResponse(role))
}

// UpdateRole replaces the role's flags. Signed-in users pick the new flags
// up on their next request.
func (h *RoleHandler) UpdateRole(c *gin.Context) {
	id, ok := idParam(c, "id", "role")
	if !ok {
		return
	}

	var req RoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if !validPermissions(req.Permissions) {
		badRequest(c, "unknown permission area")
		return
	}

	role, err := h.repo.GetRole(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "role")
		return
	}
	if !allBranchesOnly(c, role.AllBranches || req.AllBranches) {
		return
	}

	role.Name = req.Name
	role.Description = req.Description
	role.AllBranches = req.AllBranches
	role.Permissions = req.Permissions

	if err := h.repo.UpdateRole(c.Request.Context(), role); err != nil {
		respondError(c, err, "role")
		return
	}

	c.JSON(http.StatusOK, toRoleResponse(role))
}

func (h *RoleHandler) DeleteRole(c *gin.Context) {
	id, ok := idParam(c, "id", "role")
	if !ok {
		return
	}

	role, err := h.repo.GetRole(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "role")
		return
	}
	if !allBranchesOnly(c, role.AllBranches) {
		return
	}

	if err := h.repo.DeleteRole(c.Request.Context(), id); err != nil {
		respondError(c, err, "role")
		return
	}

	c.Status(http.StatusNoContent)
}
