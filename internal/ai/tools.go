package ai

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"go-pos-register/internal/catalog"
	"go-pos-register/internal/database"
	"go-pos-register/internal/errs"
	"go-pos-register/internal/money"

	"github.com/google/generative-ai-go/genai"
)

const dateLayout = "2006-01-02"

func toolDeclarations() []*genai.Tool {
	return []*genai.Tool{{
		FunctionDeclarations: []*genai.FunctionDeclaration{
			{
				Name:        "check_inventory",
				Description: "List active products with ID, SKU, name, price, cost and stock. Optionally filter by a name or SKU fragment.",
				Parameters: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"query": {Type: genai.TypeString, Description: "Part of a product name or SKU"},
					},
				},
			},
			{
				Name:        "adjust_stock",
				Description: "Add (positive delta) or remove (negative delta) units of a product, e.g. for deliveries or breakage.",
				Parameters: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"product_id": {Type: genai.TypeInteger, Description: "ID of the product"},
						"delta":      {Type: genai.TypeInteger, Description: "Units to add or remove"},
						"note":       {Type: genai.TypeString, Description: "Reason for the change"},
					},
					Required: []string{"product_id", "delta"},
				},
			},
			{
				Name:        "update_product_price",
				Description: "Update the selling price of a product using its ID",
				Parameters: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"product_id": {Type: genai.TypeInteger, Description: "ID of the product"},
						"new_price":  {Type: genai.TypeString, Description: "New price in pesos as a decimal, e.g. \"12.50\""},
					},
					Required: []string{"product_id", "new_price"},
				},
			},
			{
				Name:        "get_sales_report",
				Description: "Get gross, discount and net sales plus the number of sales for a date range, both dates inclusive.",
				Parameters: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"start_date": {Type: genai.TypeString, Description: "Start date (YYYY-MM-DD)"},
						"end_date":   {Type: genai.TypeString, Description: "End date (YYYY-MM-DD)"},
					},
					Required: []string{"start_date", "end_date"},
				},
			},
			{
				Name:        "get_open_shift",
				Description: "Show who holds the register right now and how much starting cash is in the drawer.",
			},
		},
	}}
}

// executeTool runs one tool. Failures are reported to the model as an
// "error" field so it can explain them; they never abort the conversation.
func (a *Agent) executeTool(ctx context.Context, name string, args map[string]any, actorID uint) map[string]any {
	var (
		out map[string]any
		err error
	)
	switch name {
	case "check_inventory":
		out, err = a.checkInventory(ctx, args)
	case "adjust_stock":
		out, err = a.adjustStock(ctx, args, actorID)
	case "update_product_price":
		out, err = a.updatePrice(ctx, args)
	case "get_sales_report":
		out, err = a.salesReport(ctx, args)
	case "get_open_shift":
		out, err = a.openShift(ctx)
	default:
		err = fmt.Errorf("unknown tool %q", name)
	}
	if err != nil {
		a.log.Warn().Err(err).Str("tool", name).Msg("assistant tool failed")
		return map[string]any{"error": err.Error(), "code": string(errs.KindOf(err))}
	}
	return out
}

func (a *Agent) checkInventory(ctx context.Context, args map[string]any) (map[string]any, error) {
	query, _ := args["query"].(string)
	products, err := a.deps.Catalog.ListProducts(ctx, catalog.ProductFilter{Query: query})
	if err != nil {
		return nil, err
	}
	list := make([]any, 0, len(products))
	for _, p := range products {
		it := map[string]any{
			"id":        p.ID,
			"sku":       p.SKU,
			"name":      p.Name,
			"stock":     p.StockQuantity,
			"price":     pesos(p.PriceCents),
			"low_stock": p.StockQuantity <= p.LowStockThreshold,
		}
		if p.CostPriceCents != nil {
			it["cost"] = pesos(*p.CostPriceCents)
		}
		list = append(list, it)
	}
	return map[string]any{"products": list, "count": len(list)}, nil
}

func (a *Agent) adjustStock(ctx context.Context, args map[string]any, actorID uint) (map[string]any, error) {
	id, err := intArg(args, "product_id")
	if err != nil {
		return nil, err
	}
	delta, err := intArg(args, "delta")
	if err != nil {
		return nil, err
	}
	note, _ := args["note"].(string)
	if strings.TrimSpace(note) == "" {
		note = "assistant adjustment"
	}
	if id <= 0 {
		return nil, errs.Validation("product_id", "product_id must be positive")
	}
	p, err := a.deps.Inventory.AdjustStock(ctx, uint(id), delta, note, actorID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"status": "adjusted", "product_id": p.ID, "name": p.Name, "stock": p.StockQuantity}, nil
}

func (a *Agent) updatePrice(ctx context.Context, args map[string]any) (map[string]any, error) {
	id, err := intArg(args, "product_id")
	if err != nil {
		return nil, err
	}
	var price money.Cents
	switch raw := args["new_price"].(type) {
	case string:
		price, err = money.Parse(raw)
	case float64:
		price, err = money.FromMajor(raw)
	default:
		return nil, errs.Validation("new_price", "new_price must be a decimal amount")
	}
	if err != nil {
		return nil, errs.Validation("new_price", "%v", err)
	}
	if id <= 0 {
		return nil, errs.Validation("product_id", "product_id must be positive")
	}
	p, err := a.deps.Catalog.UpdateProduct(ctx, uint(id), catalog.ProductPatch{PriceCents: &price})
	if err != nil {
		return nil, err
	}
	return map[string]any{"status": "updated", "product_id": p.ID, "name": p.Name, "new_price": pesos(p.PriceCents)}, nil
}

func (a *Agent) salesReport(ctx context.Context, args map[string]any) (map[string]any, error) {
	startStr, _ := args["start_date"].(string)
	endStr, _ := args["end_date"].(string)
	start, err1 := time.Parse(dateLayout, startStr)
	end, err2 := time.Parse(dateLayout, endStr)
	if err1 != nil || err2 != nil {
		return nil, errs.Validation("date", "dates must be in YYYY-MM-DD format")
	}
	if end.Before(start) {
		return nil, errs.Validation("end_date", "end_date is before start_date")
	}

	report, err := database.GetSalesReport(ctx, a.deps.DB, start, end.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"gross":       pesos(report.GrossCents),
		"discount":    pesos(report.DiscountCents),
		"net":         pesos(report.NetCents),
		"cash":        pesos(report.CashCents),
		"gcash":       pesos(report.GCashCents),
		"sales_count": report.TotalCount,
	}, nil
}

func (a *Agent) openShift(ctx context.Context) (map[string]any, error) {
	s, err := a.deps.Shifts.OpenShift(ctx)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return map[string]any{"open": false}, nil
	}
	out := map[string]any{
		"open":          true,
		"shift_id":      s.ID,
		"user_id":       s.UserID,
		"start_time":    s.StartTime.Format(time.RFC3339),
		"starting_cash": pesos(s.StartingCashCents),
	}
	if s.User != nil {
		out["cashier"] = s.User.Username
	}
	return out, nil
}

// intArg reads a whole number; JSON numbers arrive as float64.
func intArg(args map[string]any, key string) (int, error) {
	v, ok := args[key].(float64)
	if !ok {
		return 0, errs.Validation(key, "%s must be a number", key)
	}
	if v != math.Trunc(v) || math.Abs(v) > math.MaxInt32 {
		return 0, errs.Validation(key, "%s must be a whole number", key)
	}
	return int(v), nil
}

func pesos(c money.Cents) float64 { return float64(c) / 100 }
