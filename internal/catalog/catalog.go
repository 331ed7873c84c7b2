// Package catalog manages categories and the non-stock fields of products.
// Stock levels belong to the inventory ledger and are never written here,
// except for the opening balance of a new product.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go-pos-register/internal/database"
	"go-pos-register/internal/errs"
	"go-pos-register/internal/models"
	"go-pos-register/internal/money"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

type Service struct {
	db          *gorm.DB
	log         zerolog.Logger
	lockTimeout time.Duration
}

func NewService(db *gorm.DB, log zerolog.Logger, lockTimeout time.Duration) *Service {
	return &Service{
		db:          db,
		log:         log.With().Str("component", "catalog").Logger(),
		lockTimeout: lockTimeout,
	}
}

// NewProduct is the input for CreateProduct.
type NewProduct struct {
	SKU               string       `json:"sku"`
	Name              string       `json:"name"`
	CategoryID        *uint        `json:"category_id"`
	PriceCents        money.Cents  `json:"price_cents"`
	CostPriceCents    *money.Cents `json:"cost_price_cents"`
	StockQuantity     int          `json:"stock_quantity"`
	LowStockThreshold *int         `json:"low_stock_threshold"`
	ImageURL          string       `json:"image_url"`
}

// ProductPatch carries the fields to change; nil means unchanged.
type ProductPatch struct {
	Name              *string      `json:"name"`
	CategoryID        *uint        `json:"category_id"`
	ClearCategory     bool         `json:"clear_category"`
	PriceCents        *money.Cents `json:"price_cents"`
	CostPriceCents    *money.Cents `json:"cost_price_cents"`
	LowStockThreshold *int         `json:"low_stock_threshold"`
	IsActive          *bool        `json:"is_active"`
	ImageURL          *string      `json:"image_url"`
}

type ProductFilter struct {
	Query           string
	CategoryID      uint
	IncludeInactive bool
}

func (s *Service) CreateProduct(ctx context.Context, in NewProduct, actorID uint) (*models.Product, error) {
	in.SKU = strings.TrimSpace(in.SKU)
	in.Name = strings.TrimSpace(in.Name)
	switch {
	case in.SKU == "":
		return nil, errs.Validation("sku", "sku is required")
	case in.Name == "":
		return nil, errs.Validation("name", "name is required")
	case in.PriceCents < 0:
		return nil, errs.Validation("price_cents", "price must not be negative")
	case in.CostPriceCents != nil && *in.CostPriceCents < 0:
		return nil, errs.Validation("cost_price_cents", "cost must not be negative")
	case in.StockQuantity < 0:
		return nil, errs.Validation("stock_quantity", "opening stock must not be negative")
	case in.LowStockThreshold != nil && *in.LowStockThreshold < 0:
		return nil, errs.Validation("low_stock_threshold", "threshold must not be negative")
	}

	p := models.Product{
		SKU:               in.SKU,
		Name:              in.Name,
		CategoryID:        in.CategoryID,
		PriceCents:        in.PriceCents,
		CostPriceCents:    in.CostPriceCents,
		StockQuantity:     in.StockQuantity,
		LowStockThreshold: 10,
		IsActive:          true,
		ImageURL:          strings.TrimSpace(in.ImageURL),
	}
	if in.LowStockThreshold != nil {
		p.LowStockThreshold = *in.LowStockThreshold
	}

	err := database.WithTx(ctx, s.db, "create product", s.lockTimeout, func(tx *gorm.DB) error {
		if err := categoryExists(tx, p.CategoryID); err != nil {
			return err
		}
		if err := tx.Create(&p).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return &errs.ConflictError{Message: fmt.Sprintf("sku %s already exists", p.SKU)}
			}
			return fmt.Errorf("catalog: create product: %w", err)
		}
		if p.StockQuantity == 0 {
			return nil
		}
		move := models.StockMovement{
			ProductID:    p.ID,
			Delta:        p.StockQuantity,
			BalanceAfter: p.StockQuantity,
			Reason:       models.MovementStockSet,
			Note:         "opening stock",
			ActorID:      actorID,
		}
		if err := tx.Create(&move).Error; err != nil {
			return fmt.Errorf("catalog: opening stock: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().Uint("product_id", p.ID).Str("sku", p.SKU).Msg("product created")
	return &p, nil
}

// UpdateProduct changes descriptive and pricing fields. Past sales keep the
// name and price they were rung up with.
func (s *Service) UpdateProduct(ctx context.Context, id uint, patch ProductPatch) (*models.Product, error) {
	updates := map[string]any{}
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return nil, errs.Validation("name", "name must not be blank")
		}
		updates["name"] = name
	}
	if patch.PriceCents != nil {
		if *patch.PriceCents < 0 {
			return nil, errs.Validation("price_cents", "price must not be negative")
		}
		updates["price_cents"] = *patch.PriceCents
	}
	if patch.CostPriceCents != nil {
		if *patch.CostPriceCents < 0 {
			return nil, errs.Validation("cost_price_cents", "cost must not be negative")
		}
		updates["cost_price_cents"] = *patch.CostPriceCents
	}
	if patch.LowStockThreshold != nil {
		if *patch.LowStockThreshold < 0 {
			return nil, errs.Validation("low_stock_threshold", "threshold must not be negative")
		}
		updates["low_stock_threshold"] = *patch.LowStockThreshold
	}
	if patch.IsActive != nil {
		updates["is_active"] = *patch.IsActive
	}
	if patch.ImageURL != nil {
		updates["image_url"] = strings.TrimSpace(*patch.ImageURL)
	}
	switch {
	case patch.ClearCategory:
		updates["category_id"] = nil
	case patch.CategoryID != nil:
		updates["category_id"] = *patch.CategoryID
	}

	var p models.Product
	err := database.WithTx(ctx, s.db, "update product", s.lockTimeout, func(tx *gorm.DB) error {
		if err := tx.First(&p, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &errs.NotFoundError{Resource: "product", ID: id}
			}
			return fmt.Errorf("catalog: load product: %w", err)
		}
		if len(updates) == 0 {
			return nil
		}
		if !patch.ClearCategory {
			if err := categoryExists(tx, patch.CategoryID); err != nil {
				return err
			}
		}
		if err := tx.Model(&p).Updates(updates).Error; err != nil {
			return fmt.Errorf("catalog: update product: %w", err)
		}
		return tx.First(&p, id).Error
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Deactivate hides a product from sale. Products are never hard deleted so
// sale history keeps pointing at them.
func (s *Service) Deactivate(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Model(&models.Product{}).Where("id = ?", id).Update("is_active", false)
	if res.Error != nil {
		return database.Classify("deactivate product", res.Error)
	}
	if res.RowsAffected == 0 {
		return &errs.NotFoundError{Resource: "product", ID: id}
	}
	s.log.Info().Uint("product_id", id).Msg("product deactivated")
	return nil
}

func (s *Service) GetProduct(ctx context.Context, id uint) (*models.Product, error) {
	var p models.Product
	err := s.db.WithContext(ctx).Preload("Category").First(&p, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &errs.NotFoundError{Resource: "product", ID: id}
	}
	if err != nil {
		return nil, database.Classify("get product", err)
	}
	return &p, nil
}

// FindBySKU is the barcode scan lookup; only active products are found.
func (s *Service) FindBySKU(ctx context.Context, sku string) (*models.Product, error) {
	sku = strings.TrimSpace(sku)
	if sku == "" {
		return nil, errs.Validation("sku", "sku is required")
	}
	var p models.Product
	err := s.db.WithContext(ctx).Where("sku = ? AND is_active = ?", sku, true).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &errs.NotFoundError{Resource: "product", ID: sku}
	}
	if err != nil {
		return nil, database.Classify("scan product", err)
	}
	return &p, nil
}

func (s *Service) ListProducts(ctx context.Context, f ProductFilter) ([]models.Product, error) {
	q := s.db.WithContext(ctx).Preload("Category").Order("name ASC, id ASC")
	if !f.IncludeInactive {
		q = q.Where("is_active = ?", true)
	}
	if f.CategoryID != 0 {
		q = q.Where("category_id = ?", f.CategoryID)
	}
	if term := strings.TrimSpace(f.Query); term != "" {
		like := "%" + strings.ToLower(term) + "%"
		q = q.Where("LOWER(name) LIKE ? OR LOWER(sku) LIKE ?", like, like)
	}
	var out []models.Product
	if err := q.Find(&out).Error; err != nil {
		return nil, database.Classify("list products", err)
	}
	return out, nil
}

func (s *Service) CreateCategory(ctx context.Context, name string) (*models.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errs.Validation("name", "category name is required")
	}
	c := models.Category{Name: name}
	if err := s.db.WithContext(ctx).Create(&c).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, &errs.ConflictError{Message: fmt.Sprintf("category %s already exists", name)}
		}
		return nil, database.Classify("create category", err)
	}
	return &c, nil
}

func (s *Service) ListCategories(ctx context.Context) ([]models.Category, error) {
	var out []models.Category
	if err := s.db.WithContext(ctx).Order("name ASC").Find(&out).Error; err != nil {
		return nil, database.Classify("list categories", err)
	}
	return out, nil
}

// DeleteCategory refuses while any product, active or not, still uses it.
func (s *Service) DeleteCategory(ctx context.Context, id uint) error {
	return database.WithTx(ctx, s.db, "delete category", s.lockTimeout, func(tx *gorm.DB) error {
		var inUse int64
		if err := tx.Model(&models.Product{}).Where("category_id = ?", id).Count(&inUse).Error; err != nil {
			return fmt.Errorf("catalog: count products: %w", err)
		}
		if inUse > 0 {
			return &errs.ConflictError{Message: fmt.Sprintf("category is used by %d products", inUse)}
		}
		res := tx.Delete(&models.Category{}, id)
		if res.Error != nil {
			return fmt.Errorf("catalog: delete category: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return &errs.NotFoundError{Resource: "category", ID: id}
		}
		return nil
	})
}

func categoryExists(tx *gorm.DB, id *uint) error {
	if id == nil {
		return nil
	}
	var n int64
	if err := tx.Model(&models.Category{}).Where("id = ?", *id).Count(&n).Error; err != nil {
		return fmt.Errorf("catalog: check category: %w", err)
	}
	if n == 0 {
		return &errs.NotFoundError{Resource: "category", ID: *id}
	}
	return nil
}
