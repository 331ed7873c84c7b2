package database

import (
	"context"
	"time"

	"go-pos-register/internal/models"
	"go-pos-register/internal/money"

	"gorm.io/gorm"
)

// SalesReportResult is a point-in-time summary of completed sales in a range.
type SalesReportResult struct {
	GrossCents    money.Cents `json:"gross_cents"`
	DiscountCents money.Cents `json:"discount_cents"`
	NetCents      money.Cents `json:"net_cents"`
	CashCents     money.Cents `json:"cash_cents"`
	GCashCents    money.Cents `json:"gcash_cents"`
	TotalCount    int64       `json:"total_count"`
}

// TopSeller is one row of the best sellers list.
type TopSeller struct {
	ProductID    uint        `json:"product_id"`
	ProductName  string      `json:"product_name"`
	Sold         int64       `json:"sold"`
	RevenueCents money.Cents `json:"revenue_cents"`
}

// GetSalesReport calculates sales within [start, end).
// Read-only aggregation, no locks taken.
func GetSalesReport(ctx context.Context, db *gorm.DB, start, end time.Time) (*SalesReportResult, error) {
	var row struct {
		Gross    int64
		Discount int64
		Net      int64
		Cash     int64
		Gcash    int64
		Count    int64
	}
	// COALESCE ensures we get 0 instead of NULL if no sales exist
	err := db.WithContext(ctx).Model(&models.Sale{}).
		Select(`COALESCE(SUM(total_amount_cents), 0) AS gross,
			COALESCE(SUM(discount_cents), 0) AS discount,
			COALESCE(SUM(net_amount_cents), 0) AS net,
			COALESCE(SUM(CASE WHEN payment_method = ? THEN net_amount_cents ELSE 0 END), 0) AS cash,
			COALESCE(SUM(CASE WHEN payment_method = ? THEN net_amount_cents ELSE 0 END), 0) AS gcash,
			COUNT(*) AS count`, models.PaymentCash, models.PaymentGCash).
		Where("created_at >= ? AND created_at < ?", start, end).
		Where("status = ?", models.SaleStatusCompleted).
		Scan(&row).Error
	if err != nil {
		return nil, err
	}
	return &SalesReportResult{
		GrossCents:    money.Cents(row.Gross),
		DiscountCents: money.Cents(row.Discount),
		NetCents:      money.Cents(row.Net),
		CashCents:     money.Cents(row.Cash),
		GCashCents:    money.Cents(row.Gcash),
		TotalCount:    row.Count,
	}, nil
}

// GetTopSellers ranks products by quantity sold within [start, end).
// Names come from the sale item snapshot so deactivated products still show.
func GetTopSellers(ctx context.Context, db *gorm.DB, start, end time.Time, limit int) ([]TopSeller, error) {
	if limit <= 0 {
		limit = 5
	}
	var rows []TopSeller
	err := db.WithContext(ctx).Table("sale_items").
		Select(`sale_items.product_id AS product_id,
			MAX(sale_items.product_name) AS product_name,
			SUM(sale_items.quantity) AS sold,
			SUM(sale_items.subtotal_cents) AS revenue_cents`).
		Joins("JOIN sales ON sales.id = sale_items.sale_id").
		Where("sales.created_at >= ? AND sales.created_at < ?", start, end).
		Group("sale_items.product_id").
		Order("sold DESC, sale_items.product_id ASC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// GetRecentSales returns the newest sales, items included.
func GetRecentSales(ctx context.Context, db *gorm.DB, limit int) ([]models.Sale, error) {
	if limit <= 0 {
		limit = 10
	}
	var sales []models.Sale
	err := db.WithContext(ctx).Preload("Items").Order("created_at DESC, id DESC").Limit(limit).Find(&sales).Error
	return sales, err
}

// ValuationItem is one product row of the stock valuation.
type ValuationItem struct {
	ProductID  uint        `json:"product_id"`
	Name       string      `json:"name"`
	Quantity   int         `json:"quantity"`
	CostCents  money.Cents `json:"cost_cents"`
	TotalCents money.Cents `json:"total_cents"`
}

// CategoryValuation groups valuation rows under one category.
type CategoryValuation struct {
	CategoryName  string          `json:"category_name"`
	Items         []ValuationItem `json:"items"`
	SubtotalCents money.Cents     `json:"subtotal_cents"`
}

type StockValuation struct {
	Categories      []CategoryValuation `json:"categories"`
	GrandTotalCents money.Cents         `json:"grand_total_cents"`
}

// GetStockValuation prices the stock on hand of active products at cost.
// Products without a cost are valued at zero.
func GetStockValuation(ctx context.Context, db *gorm.DB) (*StockValuation, error) {
	var products []models.Product
	err := db.WithContext(ctx).Preload("Category").
		Where("is_active = ?", true).
		Order("name ASC, id ASC").
		Find(&products).Error
	if err != nil {
		return nil, err
	}

	out := &StockValuation{Categories: []CategoryValuation{}}
	index := map[string]int{}
	for _, p := range products {
		name := "Uncategorized"
		if p.Category != nil {
			name = p.Category.Name
		}
		i, ok := index[name]
		if !ok {
			i = len(out.Categories)
			index[name] = i
			out.Categories = append(out.Categories, CategoryValuation{CategoryName: name})
		}

		var cost money.Cents
		if p.CostPriceCents != nil {
			cost = *p.CostPriceCents
		}
		total, err := money.Mul(cost, p.StockQuantity)
		if err != nil {
			return nil, err
		}
		group := &out.Categories[i]
		group.Items = append(group.Items, ValuationItem{
			ProductID:  p.ID,
			Name:       p.Name,
			Quantity:   p.StockQuantity,
			CostCents:  cost,
			TotalCents: total,
		})
		group.SubtotalCents += total
		out.GrandTotalCents += total
	}
	return out, nil
}
