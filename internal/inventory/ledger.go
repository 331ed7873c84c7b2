// Package inventory is the authoritative record of per-product stock.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go-pos-register/internal/database"
	"go-pos-register/internal/errs"
	"go-pos-register/internal/models"
	"go-pos-register/internal/money"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Reservation is what a checkout line learns about a product while holding its lock.
type Reservation struct {
	ProductID uint
	SKU       string
	Name      string
	UnitPrice money.Cents
	CostPrice *money.Cents
	Remaining int
}

// Ledger guards Product.StockQuantity. Stock never goes negative: sale
// decrements lock the product row and the UPDATE itself re-checks the balance.
type Ledger struct {
	db          *gorm.DB
	log         zerolog.Logger
	lockTimeout time.Duration
	now         func() time.Time
}

func NewLedger(db *gorm.DB, log zerolog.Logger, lockTimeout time.Duration) *Ledger {
	return &Ledger{
		db:          db,
		log:         log.With().Str("component", "inventory").Logger(),
		lockTimeout: lockTimeout,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// ReserveAndDecrement takes qty units of a product for a sale. tx must be the
// caller's open transaction; the decrement becomes visible only when it commits.
func (l *Ledger) ReserveAndDecrement(tx *gorm.DB, productID uint, qty int, reference string, actorID uint) (Reservation, error) {
	if err := money.CheckQuantity(qty); err != nil {
		return Reservation{}, errs.Validation("quantity", "quantity for product %d must be at least 1", productID)
	}

	p, err := lockProduct(tx, productID)
	if err != nil {
		return Reservation{}, err
	}
	if !p.IsActive {
		return Reservation{}, errs.Validation("product_id", "product %s is not for sale", p.SKU)
	}
	if qty > p.StockQuantity {
		return Reservation{}, &errs.InsufficientStockError{
			ProductID:   p.ID,
			ProductName: p.Name,
			Requested:   qty,
			Available:   p.StockQuantity,
		}
	}

	res := tx.Model(&models.Product{}).
		Where("id = ? AND stock_quantity >= ?", p.ID, qty).
		UpdateColumn("stock_quantity", gorm.Expr("stock_quantity - ?", qty))
	if res.Error != nil {
		return Reservation{}, fmt.Errorf("inventory: decrement product %d: %w", p.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return Reservation{}, &errs.InsufficientStockError{
			ProductID:   p.ID,
			ProductName: p.Name,
			Requested:   qty,
			Available:   p.StockQuantity,
		}
	}

	remaining := p.StockQuantity - qty
	if err := l.record(tx, p.ID, -qty, remaining, models.MovementSale, reference, "", actorID); err != nil {
		return Reservation{}, err
	}
	return Reservation{
		ProductID: p.ID,
		SKU:       p.SKU,
		Name:      p.Name,
		UnitPrice: p.PriceCents,
		CostPrice: p.CostPriceCents,
		Remaining: remaining,
	}, nil
}

// AdjustStock applies an administrative correction of delta units.
// A correction that would take stock below zero is rejected.
func (l *Ledger) AdjustStock(ctx context.Context, productID uint, delta int, note string, actorID uint) (models.Product, error) {
	if delta == 0 {
		return models.Product{}, errs.Validation("delta", "stock adjustment must not be zero")
	}

	var out models.Product
	err := database.WithTx(ctx, l.db, "adjust stock", l.lockTimeout, func(tx *gorm.DB) error {
		p, err := lockProduct(tx, productID)
		if err != nil {
			return err
		}
		next := p.StockQuantity + delta
		if next < 0 {
			return &errs.InsufficientStockError{
				ProductID:   p.ID,
				ProductName: p.Name,
				Requested:   -delta,
				Available:   p.StockQuantity,
			}
		}
		if err := tx.Model(&p).UpdateColumn("stock_quantity", next).Error; err != nil {
			return err
		}
		p.StockQuantity = next
		out = p
		return l.record(tx, p.ID, delta, next, models.MovementAdjustment, "", note, actorID)
	})
	if err != nil {
		return models.Product{}, err
	}
	l.log.Info().Uint("product_id", productID).Int("delta", delta).Int("stock", out.StockQuantity).Uint("actor_id", actorID).Msg("stock adjusted")
	return out, nil
}

// SetStock replaces the stock count after a physical count.
func (l *Ledger) SetStock(ctx context.Context, productID uint, qty int, note string, actorID uint) (models.Product, error) {
	if qty < 0 {
		return models.Product{}, errs.Validation("stock_quantity", "stock must not be negative")
	}

	var out models.Product
	err := database.WithTx(ctx, l.db, "set stock", l.lockTimeout, func(tx *gorm.DB) error {
		p, err := lockProduct(tx, productID)
		if err != nil {
			return err
		}
		delta := qty - p.StockQuantity
		if err := tx.Model(&p).UpdateColumn("stock_quantity", qty).Error; err != nil {
			return err
		}
		p.StockQuantity = qty
		out = p
		if delta == 0 {
			return nil
		}
		return l.record(tx, p.ID, delta, qty, models.MovementStockSet, "", note, actorID)
	})
	if err != nil {
		return models.Product{}, err
	}
	l.log.Info().Uint("product_id", productID).Int("stock", qty).Uint("actor_id", actorID).Msg("stock set")
	return out, nil
}

// Movements returns the stock card of a product, newest first.
func (l *Ledger) Movements(ctx context.Context, productID uint, limit int) ([]models.StockMovement, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var out []models.StockMovement
	err := l.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("id DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// LowStock lists active products at or below their low-stock threshold.
func (l *Ledger) LowStock(ctx context.Context) ([]models.Product, error) {
	var out []models.Product
	err := l.db.WithContext(ctx).
		Where("is_active = ? AND stock_quantity <= low_stock_threshold", true).
		Order("stock_quantity ASC, id ASC").
		Find(&out).Error
	return out, err
}

func (l *Ledger) record(tx *gorm.DB, productID uint, delta, balance int, reason, reference, note string, actorID uint) error {
	m := models.StockMovement{
		ProductID:    productID,
		Delta:        delta,
		BalanceAfter: balance,
		Reason:       reason,
		Reference:    reference,
		Note:         note,
		ActorID:      actorID,
		CreatedAt:    l.now(),
	}
	if err := tx.Create(&m).Error; err != nil {
		return fmt.Errorf("inventory: record movement: %w", err)
	}
	return nil
}

// lockProduct reads a product row holding a write lock until the transaction ends.
func lockProduct(tx *gorm.DB, productID uint) (models.Product, error) {
	var p models.Product
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&p, productID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Product{}, &errs.NotFoundError{Resource: "product", ID: productID}
	}
	if err != nil {
		return models.Product{}, fmt.Errorf("inventory: lock product %d: %w", productID, err)
	}
	return p, nil
}
