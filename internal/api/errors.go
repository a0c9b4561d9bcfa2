package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"lab-booking-backend/internal/account"
	"lab-booking-backend/internal/labfiles"
	"lab-booking-backend/internal/otp"
	"lab-booking-backend/internal/workflow"
)

var workflowStatus = map[workflow.Kind]int{
	workflow.KindInvalidInput:    http.StatusBadRequest,
	workflow.KindSlotDeactivated: http.StatusConflict,
	workflow.KindSlotBooked:      http.StatusConflict,
	workflow.KindSlotTaken:       http.StatusConflict,
	workflow.KindSlotContested:   http.StatusConflict,
	workflow.KindNotFound:        http.StatusNotFound,
	workflow.KindUnauthorized:    http.StatusForbidden,
	workflow.KindStorageFailure:  http.StatusInternalServerError,
}

var accountStatus = map[account.Kind]int{
	account.KindInvalid:         http.StatusBadRequest,
	account.KindUnauthenticated: http.StatusUnauthorized,
	account.KindForbidden:       http.StatusForbidden,
	account.KindConflict:        http.StatusConflict,
}

var labfilesStatus = map[labfiles.Kind]int{
	labfiles.KindInvalid:  http.StatusBadRequest,
	labfiles.KindNotFound: http.StatusNotFound,
	labfiles.KindConflict: http.StatusConflict,
	labfiles.KindTooLarge: http.StatusRequestEntityTooLarge,
}

// statusOf maps a service error to its HTTP status and the message shown
// to the caller.
func statusOf(err error) (int, string) {
	var (
		we *workflow.Error
		ae *account.Error
		oe *otp.Error
		le *labfiles.Error
	)
	switch {
	case errors.As(err, &we):
		return statusOr(workflowStatus[we.Kind]), we.Message
	case errors.As(err, &ae):
		return statusOr(accountStatus[ae.Kind]), ae.Message
	case errors.As(err, &oe):
		return http.StatusBadRequest, oe.Message
	case errors.Is(err, otp.ErrDelivery):
		return http.StatusBadGateway, "Failed to send OTP"
	case errors.As(err, &le):
		return statusOr(labfilesStatus[le.Kind]), le.Message
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

func statusOr(status int) int {
	if status == 0 {
		return http.StatusInternalServerError
	}
	return status
}

// fail writes err as a JSON error response.
func (h *Handler) fail(c *gin.Context, err error) {
	status, msg := statusOf(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.Int("status", status),
			zap.Error(err),
		)
	}
	c.JSON(status, gin.H{"error": msg})
}
