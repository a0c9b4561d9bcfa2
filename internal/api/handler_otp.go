package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type otpRequest struct {
	Email string `json:"email" form:"email"`
	OTP   string `json:"otp" form:"otp"`
}

// SendOTP mails a one-time code to the given address.
func (h *Handler) SendOTP(c *gin.Context) {
	var req otpRequest
	if !bind(c, &req) {
		return
	}
	if err := h.otp.Send(c.Request.Context(), req.Email); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "OTP sent successfully"})
}

// VerifyOTP checks a one-time code and marks the address verified.
func (h *Handler) VerifyOTP(c *gin.Context) {
	var req otpRequest
	if !bind(c, &req) {
		return
	}
	if err := h.otp.Verify(c.Request.Context(), req.Email, req.OTP); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "OTP verified successfully"})
}
