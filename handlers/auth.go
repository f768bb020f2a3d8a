package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"fitness-crm/middleware"
	"fitness-crm/services"
)

type Authenticator interface {
	Login(ctx context.Context, username, password, ip string) (string, *services.Principal, error)
	Logout(ctx context.Context, token string) error
	ChangePassword(ctx context.Context, userID uint, current, next string) error
	ResetPassword(ctx context.Context, userID uint, next string) error
	RevokeUser(ctx context.Context, userID uint) error
}

type AuthHandler struct {
	auth   Authenticator
	cookie middleware.SessionCookie
}

func NewAuthHandler(auth Authenticator, cookie middleware.SessionCookie) *AuthHandler {
	return &AuthHandler{auth: auth, cookie: cookie}
}

type LoginRequest struct {
	Username string `json:"username" binding:"required,max=50"`
	Password string `json:"password" binding:"required,max=128"`
}

type SessionResponse struct {
	Token    string              `json:"token,omitempty"`
	User     *services.Principal `json:"user"`
	Sections []string            `json:"sections"`
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	token, p, err := h.auth.Login(c.Request.Context(), req.Username, req.Password, c.ClientIP())
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		respondError(c, err, "user")
		return
	}

	h.cookie.Set(c, token)
	c.JSON(http.StatusOK, SessionResponse{Token: token, User: p, Sections: p.Sections()})
}

func (h *AuthHandler) Logout(c *gin.Context) {
	if token := h.cookie.Token(c); token != "" {
		if err := h.auth.Logout(c.Request.Context(), token); err != nil {
			respondError(c, err, "session")
			return
		}
	}

	h.cookie.Clear(c)
	c.Status(http.StatusNoContent)
}

// Session tells the front-end who is signed in and which sections to show.
func (h *AuthHandler) Session(c *gin.Context) {
	p := principal(c)
	c.JSON(http.StatusOK, SessionResponse{User: p, Sections: p.Sections()})
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required,min=8,max=128"`
}

// ChangeOwnPassword replaces the caller's password. Every session of the
// caller, this one included, ends.
func (h *AuthHandler) ChangeOwnPassword(c *gin.Context) {
	var req ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	err := h.auth.ChangePassword(c.Request.Context(), principal(c).UserID, req.CurrentPassword, req.NewPassword)
	if errors.Is(err, services.ErrInvalidCredentials) {
		badRequest(c, "current password is incorrect")
		return
	}
	if err != nil {
		respondError(c, err, "user")
		return
	}

	h.cookie.Clear(c)
	c.Status(http.StatusNoContent)
}
