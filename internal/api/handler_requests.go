package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"lab-booking-backend/internal/workflow"
)

// ToggleRequest submits a request for a slot or withdraws the caller's own.
func (h *Handler) ToggleRequest(c *gin.Context) {
	var req slotRequest
	if !bind(c, &req) {
		return
	}
	out, err := h.engine.ToggleRequest(c.Request.Context(), actor(c), req.key(), req.Description)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

type batchRequest struct {
	RoomName    string              `json:"room_name"`
	Slots       []workflow.SlotTime `json:"slots"`
	Description string              `json:"description"`
}

// BatchRequest submits one request per listed slot and reports each result.
func (h *Handler) BatchRequest(c *gin.Context) {
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	results, err := h.engine.RequestSlots(c.Request.Context(), actor(c), req.RoomName, req.Slots, req.Description)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

// CancelRequest withdraws the caller's pending request for a slot.
func (h *Handler) CancelRequest(c *gin.Context) {
	var req slotRequest
	if !bind(c, &req) {
		return
	}
	out, err := h.engine.CancelRequest(c.Request.Context(), actor(c), req.key())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// ListRequests returns the pending requests of a room.
func (h *Handler) ListRequests(c *gin.Context) {
	reqs, err := h.engine.ListRequests(c.Request.Context(), c.Query("room_name"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, reqs)
}

type decisionRequest struct {
	Action string `json:"action" form:"action"`
}

// DecideRequest approves or rejects a pending request.
func (h *Handler) DecideRequest(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request id"})
		return
	}
	var req decisionRequest
	if !bind(c, &req) {
		return
	}
	decision, err := h.engine.DecideRequest(c.Request.Context(), actor(c), id, req.Action)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, decision)
}
