package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"lab-booking-backend/internal/workflow"
)

type slotRequest struct {
	Day         string `json:"day" form:"day"`
	Time        string `json:"time" form:"time"`
	RoomName    string `json:"room_name" form:"room_name"`
	Description string `json:"description" form:"description"`
}

func (r slotRequest) key() workflow.SlotKey {
	return workflow.SlotKey{Day: r.Day, Time: r.Time, Room: r.RoomName}
}

// FetchBookings returns the bookings and deactivations of a room.
func (h *Handler) FetchBookings(c *gin.Context) {
	schedule, err := h.engine.FetchBookings(c.Request.Context(), c.Query("room_name"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, schedule)
}

// SlotState returns the derived state of one slot.
func (h *Handler) SlotState(c *gin.Context) {
	key := workflow.SlotKey{Day: c.Query("day"), Time: c.Query("time"), Room: c.Query("room_name")}
	if key.Day == "" || key.Time == "" || key.Room == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required fields"})
		return
	}
	state, err := h.engine.DeriveState(c.Request.Context(), key)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": state})
}

// ToggleBooking books a free slot or releases the caller's own booking.
func (h *Handler) ToggleBooking(c *gin.Context) {
	var req slotRequest
	if !bind(c, &req) {
		return
	}
	out, err := h.engine.ToggleBooking(c.Request.Context(), actor(c), req.key())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// RemoveBooking deletes any booking of a slot.
func (h *Handler) RemoveBooking(c *gin.Context) {
	var req slotRequest
	if !bind(c, &req) {
		return
	}
	out, err := h.engine.RemoveBooking(c.Request.Context(), actor(c), req.key())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// ToggleDeactivation blocks or unblocks a slot.
func (h *Handler) ToggleDeactivation(c *gin.Context) {
	var req slotRequest
	if !bind(c, &req) {
		return
	}
	out, err := h.engine.ToggleDeactivation(c.Request.Context(), actor(c), req.key())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}
