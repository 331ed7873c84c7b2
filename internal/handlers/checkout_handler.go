package handlers

import (
	"net/http"
	"strings"

	"go-pos-register/internal/checkout"
	"go-pos-register/internal/models"
	"go-pos-register/internal/money"

	"github.com/gin-gonic/gin"
)

// IdempotencyHeader lets a terminal retry a checkout without selling twice.
const IdempotencyHeader = "Idempotency-Key"

type cartItem struct {
	ProductID uint `json:"product_id"`
	Quantity  int  `json:"quantity"`
}

// CheckoutRequest defines what the terminal sends us
type CheckoutRequest struct {
	Items            []cartItem   `json:"items"`
	PaymentMethod    string       `json:"payment_method"`
	PaymentReference string       `json:"payment_reference"`
	CashGivenCents   *money.Cents `json:"cash_given_cents"`
	IsSenior         bool         `json:"is_senior"`
	TotalAmountCents *money.Cents `json:"total_amount_cents"`
}

func (r CheckoutRequest) lines() []checkout.Line {
	lines := make([]checkout.Line, len(r.Items))
	for i, it := range r.Items {
		lines[i] = checkout.Line{ProductID: it.ProductID, Quantity: it.Quantity}
	}
	return lines
}

func (h *Handler) ProcessSale(c *gin.Context) {
	var req CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "Invalid request body")
		return
	}

	sale, err := h.Checkout.Checkout(c.Request.Context(), checkout.Request{
		CashierID:        currentUser(c),
		Lines:            req.lines(),
		PaymentMethod:    models.PaymentMethod(strings.ToLower(strings.TrimSpace(req.PaymentMethod))),
		PaymentReference: req.PaymentReference,
		CashGivenCents:   req.CashGivenCents,
		IsSenior:         req.IsSenior,
		ClientTotalCents: req.TotalAmountCents,
		IdempotencyKey:   c.GetHeader(IdempotencyHeader),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sale)
}

// QuoteSale prices a cart without selling it.
func (h *Handler) QuoteSale(c *gin.Context) {
	var req CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "Invalid request body")
		return
	}
	totals, err := h.Checkout.Quote(c.Request.Context(), req.lines(), req.IsSenior)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, totals)
}

// GetSale returns a sale with its items for receipt printing.
func (h *Handler) GetSale(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		h.badRequest(c, "Invalid Sale ID")
		return
	}
	sale, err := h.Checkout.Get(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sale)
}

func (h *Handler) GetSaleByInvoice(c *gin.Context) {
	sale, err := h.Checkout.GetByInvoice(c.Request.Context(), c.Param("invoice"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sale)
}
