package handlers

import (
	"net/http"

	"go-pos-register/internal/money"

	"github.com/gin-gonic/gin"
)

type startShiftRequest struct {
	StartingCashCents money.Cents `json:"starting_cash_cents"`
}

type closeShiftRequest struct {
	ActualCashCents *money.Cents `json:"actual_cash_cents"`
}

// GET /api/shifts/current answers 200 with {"shift": null} when the register is free.
func (h *Handler) CurrentShift(c *gin.Context) {
	s, err := h.Shifts.OpenShift(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"shift": s})
}

func (h *Handler) StartShift(c *gin.Context) {
	var req startShiftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "Invalid request body")
		return
	}
	s, err := h.Shifts.Start(c.Request.Context(), currentUser(c), req.StartingCashCents)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

// CloseShift returns the Z-Read of the closed shift.
func (h *Handler) CloseShift(c *gin.Context) {
	var req closeShiftRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ActualCashCents == nil {
		h.badRequest(c, "actual_cash_cents is required")
		return
	}
	s, err := h.Shifts.Close(c.Request.Context(), currentUser(c), *req.ActualCashCents)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *Handler) GetShift(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		h.badRequest(c, "Invalid Shift ID")
		return
	}
	s, err := h.Shifts.Get(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

// GET /api/shifts?user_id=&limit=
func (h *Handler) ListShifts(c *gin.Context) {
	userID, ok := queryID(c, "user_id")
	if !ok {
		h.badRequest(c, "Invalid user_id")
		return
	}
	shifts, err := h.Shifts.History(c.Request.Context(), userID, queryInt(c, "limit", 50))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, shifts)
}
