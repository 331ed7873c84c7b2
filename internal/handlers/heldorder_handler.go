package handlers

import (
	"net/http"

	"go-pos-register/internal/models"
	"go-pos-register/internal/money"

	"github.com/gin-gonic/gin"
)

type holdRequest struct {
	ReferenceNote    string              `json:"reference_note"`
	CartData         models.CartSnapshot `json:"cart_data"`
	TotalAmountCents money.Cents         `json:"total_amount_cents"`
}

func (h *Handler) GetHeldOrders(c *gin.Context) {
	orders, err := h.Held.List(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

func (h *Handler) HoldOrder(c *gin.Context) {
	var req holdRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "Invalid request body")
		return
	}
	id, err := h.Held.Hold(c.Request.Context(), req.ReferenceNote, req.CartData, req.TotalAmountCents)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

// RecallOrder hands the cart back to the terminal and removes it from the list.
func (h *Handler) RecallOrder(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		h.badRequest(c, "Invalid Held Order ID")
		return
	}
	order, err := h.Held.Recall(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) DeleteHeldOrder(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		h.badRequest(c, "Invalid Held Order ID")
		return
	}
	if err := h.Held.Remove(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
