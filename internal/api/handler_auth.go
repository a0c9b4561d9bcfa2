package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"lab-booking-backend/internal/account"
	"lab-booking-backend/internal/mw"
)

type registerRequest struct {
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
	Email    string `json:"email" form:"email"`
	Phone    string `json:"phone" form:"phone"`
}

// Register creates a user account.
func (h *Handler) Register(c *gin.Context) {
	var req registerRequest
	if !bind(c, &req) {
		return
	}
	_, err := h.accounts.Register(c.Request.Context(), account.RegisterInput{
		Username: req.Username,
		Password: req.Password,
		Email:    req.Email,
		Phone:    req.Phone,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "message": "Registration successful"})
}

type loginRequest struct {
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
}

// Login issues a session token.
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if !bind(c, &req) {
		return
	}
	token, user, err := h.accounts.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":       "Login successful",
		"session_token": token,
		"username":      user.Username,
		"role":          user.Role,
	})
}

// Logout ends the caller's session.
func (h *Handler) Logout(c *gin.Context) {
	if err := h.accounts.Logout(c.Request.Context(), mw.TokenFrom(c)); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Logout successful"})
}

// VerifySession reports who the session token belongs to. The token has
// already been checked by mw.RequireSession.
func (h *Handler) VerifySession(c *gin.Context) {
	a := actor(c)
	c.JSON(http.StatusOK, gin.H{
		"message":  "Session valid",
		"username": a.Username,
		"role":     a.Role,
	})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" form:"current_password"`
	NewPassword     string `json:"new_password" form:"new_password"`
}

// ChangePassword replaces the caller's password and ends the session.
func (h *Handler) ChangePassword(c *gin.Context) {
	var req changePasswordRequest
	if !bind(c, &req) {
		return
	}
	if err := h.accounts.ChangePassword(c.Request.Context(), actor(c), req.CurrentPassword, req.NewPassword); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Password updated successfully. Please log in again."})
}

// AdminEmails lists the addresses of every admin.
func (h *Handler) AdminEmails(c *gin.Context) {
	emails, err := h.accounts.AdminEmails(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"emails": emails})
}
