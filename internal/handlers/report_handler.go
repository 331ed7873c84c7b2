package handlers

import (
	"net/http"
	"time"

	"go-pos-register/internal/database"
	"go-pos-register/internal/models"

	"github.com/gin-gonic/gin"
)

// ReportData defines the shape of our analytics response
type ReportData struct {
	From        time.Time                   `json:"from"`
	To          time.Time                   `json:"to"`
	Summary     *database.SalesReportResult `json:"summary"`
	TopSelling  []database.TopSeller        `json:"top_selling"`
	RecentSales []models.Sale               `json:"recent_sales"`
}

// parseRange reads ?from=YYYY-MM-DD&to=YYYY-MM-DD (both inclusive, UTC).
// Missing dates default to today.
func parseRange(c *gin.Context, now time.Time) (time.Time, time.Time, bool) {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	from, to := today, today
	var err error
	if s := c.Query("from"); s != "" {
		if from, err = time.Parse("2006-01-02", s); err != nil {
			return time.Time{}, time.Time{}, false
		}
	}
	if s := c.Query("to"); s != "" {
		if to, err = time.Parse("2006-01-02", s); err != nil {
			return time.Time{}, time.Time{}, false
		}
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, false
	}
	return from, to.AddDate(0, 0, 1), true
}

// GET /api/reports
func (h *Handler) GetSalesReport(c *gin.Context) {
	start, end, ok := parseRange(c, time.Now().UTC())
	if !ok {
		h.badRequest(c, "from and to must be YYYY-MM-DD with from <= to")
		return
	}

	ctx := c.Request.Context()
	data := ReportData{From: start, To: end}
	var err error
	if data.Summary, err = database.GetSalesReport(ctx, h.DB, start, end); err != nil {
		h.respondError(c, database.Classify("sales report", err))
		return
	}
	if data.TopSelling, err = database.GetTopSellers(ctx, h.DB, start, end, 5); err != nil {
		h.respondError(c, database.Classify("top sellers", err))
		return
	}
	if data.RecentSales, err = database.GetRecentSales(ctx, h.DB, 10); err != nil {
		h.respondError(c, database.Classify("recent sales", err))
		return
	}
	c.JSON(http.StatusOK, data)
}

func (h *Handler) GetLowStock(c *gin.Context) {
	products, err := h.Inventory.LowStock(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, products)
}

// GET /api/reports/valuation
func (h *Handler) GetStockValuation(c *gin.Context) {
	val, err := database.GetStockValuation(c.Request.Context(), h.DB)
	if err != nil {
		h.respondError(c, database.Classify("stock valuation", err))
		return
	}
	c.JSON(http.StatusOK, val)
}
