package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"fitness-crm/models"
	"fitness-crm/services"
)

type UserHandler struct {
	repo models.AccountRepository
	auth Authenticator
}

func NewUserHandler(repo models.AccountRepository, auth Authenticator) *UserHandler {
	return &UserHandler{repo: repo, auth: auth}
}

type CreateUserRequest struct {
	Username string `json:"username" binding:"required,min=3,max=50,alphanum"`
	Password string `json:"password" binding:"required,min=8,max=128"`
	Name     string `json:"name" binding:"required,min=2,max=100"`
	Email    string `json:"email" binding:"omitempty,email"`
	Phone    string `json:"phone" binding:"max=50"`
	RoleID   uint   `json:"role_id" binding:"required"`
	BranchID *uint  `json:"branch_id"`
	Active   *bool  `json:"active"`
}

type UpdateUserRequest struct {
	Name     string `json:"name" binding:"required,min=2,max=100"`
	Email    string `json:"email" binding:"omitempty,email"`
	Phone    string `json:"phone" binding:"max=50"`
	RoleID   uint   `json:"role_id" binding:"required"`
	BranchID *uint  `json:"branch_id"`
	Active   *bool  `json:"active"`
}

type PasswordRequest struct {
	Password string `json:"password" binding:"required,min=8,max=128"`
}

type UserResponse struct {
	ID          uint       `json:"id"`
	Username    string     `json:"username"`
	Name        string     `json:"name"`
	Email       string     `json:"email"`
	Phone       string     `json:"phone"`
	RoleID      uint       `json:"role_id"`
	RoleName    string     `json:"role"`
	BranchID    *uint      `json:"branch_id"`
	BranchName  string     `json:"branch,omitempty"`
	Active      bool       `json:"active"`
	LastLoginAt *time.Time `json:"last_login_at"`
	CreatedAt   time.Time  `json:"created_at"`
}

func toUserResponse(u *models.User) UserResponse {
	resp := UserResponse{
		ID:          u.ID,
		Username:    u.Username,
		Name:        u.Name,
		Email:       u.Email,
		Phone:       u.Phone,
		RoleID:      u.RoleID,
		RoleName:    u.Role.Name,
		BranchID:    u.BranchID,
		Active:      u.Active,
		LastLoginAt: u.LastLoginAt,
		CreatedAt:   u.CreatedAt,
	}
	if u.Branch != nil {
		resp.BranchName = u.Branch.Name
	}
	return resp
}

var (
	errBranchRequired = errors.New("branch_id is required for roles limited to one branch")
	errOtherBranch    = errors.New("users can only be assigned to your own branch")
)

// checkAssignment validates the role and branch a user is being given.
func (h *UserHandler) checkAssignment(c *gin.Context, roleID uint, branchID *uint) (*models.Role, bool) {
	ctx := c.Request.Context()

	role, err := h.repo.GetRole(ctx, roleID)
	if errors.Is(err, models.ErrNotFound) {
		badRequest(c, "role not found")
		return nil, false
	}
	if err != nil {
		respondError(c, err, "role")
		return nil, false
	}

	if branchID == nil && !role.AllBranches {
		badRequest(c, errBranchRequired.Error())
		return nil, false
	}
	if branchID != nil {
		if !principal(c).CanAccessBranch(*branchID) {
			c.JSON(http.StatusForbidden, gin.H{"error": errOtherBranch.Error()})
			return nil, false
		}
		if _, err := h.repo.GetBranch(ctx, *branchID); err != nil {
			if errors.Is(err, models.ErrNotFound) {
				badRequest(c, "branch not found")
			} else {
				respondError(c, err, "branch")
			}
			return nil, false
		}
	}

	// Branch-bound admins cannot hand out access to every branch.
	if role.AllBranches && !principal(c).AllBranches {
		c.JSON(http.StatusForbidden, gin.H{"error": "only all-branch users can assign this role"})
		return nil, false
	}

	return role, true
}

func (h *UserHandler) loadUser(c *gin.Context) (*models.User, bool) {
	id, ok := idParam(c, "id", "user")
	if !ok {
		return nil, false
	}

	user, err := h.repo.GetUser(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "user")
		return nil, false
	}
	if !principal(c).CanAccessOptionalBranch(user.BranchID) || (user.BranchID == nil && !principal(c).AllBranches) {
		notFound(c, "user")
		return nil, false
	}
	return user, true
}

// loadManagedUser is loadUser for changes to the account. Holders of an
// all-branch role can only be managed by all-branch users.
func (h *UserHandler) loadManagedUser(c *gin.Context) (*models.User, bool) {
	user, ok := h.loadUser(c)
	if !ok {
		return nil, false
	}
	if user.Role.AllBranches && !principal(c).AllBranches {
		c.JSON(http.StatusForbidden, gin.H{"error": "only all-branch users can manage this account"})
		return nil, false
	}
	return user, true
}

func (h *UserHandler) ListUsers(c *gin.Context) {
	branchID, err := optionalUint(c, "branch_id")
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	users, err := h.repo.ListUsers(c.Request.Context(), principal(c).ScopeBranch(branchID))
	if err != nil {
		respondError(c, err, "user")
		return
	}

	items := make([]UserResponse, 0, len(users))
	for i := range users {
		items = append(items, toUserResponse(&users[i]))
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *UserHandler) CreateUser(c *gin.Context) {
	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	role, ok := h.checkAssignment(c, req.RoleID, req.BranchID)
	if !ok {
		return
	}

	hashed, err := services.HashPassword(req.Password)
	if err != nil {
		respondError(c, err, "user")
		return
	}

	user := &models.User{
		Username:     req.Username,
		PasswordHash: hashed,
		Name:         req.Name,
		Email:        req.Email,
		Phone:        req.Phone,
		RoleID:       role.ID,
		BranchID:     req.BranchID,
		Active:       req.Active == nil || *req.Active,
	}
	if err := h.repo.CreateUser(c.Request.Context(), user); err != nil {
		respondError(c, err, "user")
		return
	}
	user.Role = *role

	c.JSON(http.StatusCreated, toUserResponse(user))
}

func (h *UserHandler) GetUser(c *gin.Context) {
	user, ok := h.loadUser(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, toUserResponse(user))
}

func (h *UserHandler) UpdateUser(c *gin.Context) {
	user, ok := h.loadManagedUser(c)
	if !ok {
		return
	}

	var req UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	role, ok := h.checkAssignment(c, req.RoleID, req.BranchID)
	if !ok {
		return
	}

	wasActive := user.Active
	active := user.Active
	if req.Active != nil {
		active = *req.Active
	}
	if user.ID == principal(c).UserID && !active {
		badRequest(c, "you cannot deactivate your own account")
		return
	}

	user.Name = req.Name
	user.Email = req.Email
	user.Phone = req.Phone
	user.RoleID = role.ID
	user.Role = *role
	user.BranchID = req.BranchID
	user.Branch = nil
	user.Active = active

	if err := h.repo.UpdateUser(c.Request.Context(), user); err != nil {
		respondError(c, err, "user")
		return
	}

	if wasActive && !active {
		if err := h.auth.RevokeUser(c.Request.Context(), user.ID); err != nil {
			_ = c.Error(err)
		}
	}

	c.JSON(http.StatusOK, toUserResponse(user))
}

func (h *UserHandler) DeleteUser(c *gin.Context) {
	user, ok := h.loadManagedUser(c)
	if !ok {
		return
	}
	if user.ID == principal(c).UserID {
		badRequest(c, "you cannot delete your own account")
		return
	}

	if err := h.repo.DeleteUser(c.Request.Context(), user.ID); err != nil {
		respondError(c, err, "user")
		return
	}
	if err := h.auth.RevokeUser(c.Request.Context(), user.ID); err != nil {
		_ = c.Error(err)
	}

	c.Status(http.StatusNoContent)
}

func (h *UserHandler) ResetPassword(c *gin.Context) {
	user, ok := h.loadManagedUser(c)
	if !ok {
		return
	}

	var req PasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	if err := h.auth.ResetPassword(c.Request.Context(), user.ID, req.Password); err != nil {
		respondError(c, err, "user")
		return
	}

	c.Status(http.StatusNoContent)
}
