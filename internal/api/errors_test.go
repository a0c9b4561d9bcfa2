package api

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"lab-booking-backend/internal/account"
	"lab-booking-backend/internal/labfiles"
	"lab-booking-backend/internal/otp"
	"lab-booking-backend/internal/workflow"
)

func TestStatusOf(t *testing.T) {
	testCases := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{name: "slot taken", err: workflow.ErrSlotTaken, status: http.StatusConflict, message: "Slot booked by another user"},
		{name: "slot deactivated", err: workflow.ErrSlotDeactivated, status: http.StatusConflict, message: "Slot is deactivated"},
		{name: "wrapped contested", err: fmt.Errorf("toggle: %w", workflow.ErrSlotContested), status: http.StatusConflict, message: "Slot already has a pending request from another user"},
		{name: "workflow not found", err: &workflow.Error{Kind: workflow.KindNotFound, Message: "Request not found"}, status: http.StatusNotFound, message: "Request not found"},
		{name: "workflow unauthorized", err: workflow.ErrUnauthorized, status: http.StatusForbidden, message: "unauthorized"},
		{name: "storage failure hides cause", err: &workflow.Error{Kind: workflow.KindStorageFailure, Message: "Storage failure", Err: errors.New("connection reset")}, status: http.StatusInternalServerError, message: "Storage failure"},
		{name: "bad credentials", err: account.ErrInvalidCredentials, status: http.StatusUnauthorized, message: "Invalid username or password"},
		{name: "username taken", err: account.ErrUsernameTaken, status: http.StatusConflict, message: "Username already exists."},
		{name: "not verified", err: account.ErrEmailNotVerified, status: http.StatusForbidden, message: "Email address has not been verified."},
		{name: "otp invalid", err: otp.ErrInvalidCode, status: http.StatusBadRequest, message: "Invalid or expired OTP"},
		{name: "otp delivery", err: fmt.Errorf("%w: dial tcp: timeout", otp.ErrDelivery), status: http.StatusBadGateway, message: "Failed to send OTP"},
		{name: "file too large", err: labfiles.ErrFileTooLarge, status: http.StatusRequestEntityTooLarge, message: "File is too large"},
		{name: "lab missing", err: labfiles.ErrLabNotFound, status: http.StatusNotFound, message: "Lab not found"},
		{name: "unknown", err: errors.New("boom"), status: http.StatusInternalServerError, message: "Internal server error"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			status, message := statusOf(tc.err)
			assert.Equal(t, tc.status, status)
			assert.Equal(t, tc.message, message)
		})
	}
}
