// Package heldorder parks carts so the cashier can serve the next customer.
// Holding and recalling a cart never reserves or releases stock; the cart is
// priced and checked again when it is finally checked out.
package heldorder

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
	"gorm.io/gorm/clause"
)

const maxNoteLength = 255

type Store struct {
	db          *gorm.DB
	log         zerolog.Logger
	lockTimeout time.Duration
}

func NewStore(db *gorm.DB, log zerolog.Logger, lockTimeout time.Duration) *Store {
	return &Store{
		db:          db,
		log:         log.With().Str("component", "heldorder").Logger(),
		lockTimeout: lockTimeout,
	}
}

// Hold saves the cart and returns its id.
func (s *Store) Hold(ctx context.Context, note string, cart models.CartSnapshot, total money.Cents) (uint, error) {
	if len(cart) == 0 {
		return 0, errs.Validation("cart_data", "cannot hold an empty cart")
	}
	if total < 0 {
		return 0, errs.Validation("total_amount_cents", "total must not be negative")
	}
	for i, line := range cart {
		if line.ProductID == 0 {
			return 0, errs.Validation("cart_data", "line %d has no product", i+1)
		}
		if err := money.CheckQuantity(line.Quantity); err != nil {
			return 0, errs.Validation("cart_data", "line %d quantity must be at least 1", i+1)
		}
	}
	note = strings.TrimSpace(note)
	if len(note) > maxNoteLength {
		return 0, errs.Validation("reference_note", "note is longer than %d characters", maxNoteLength)
	}

	order := models.HeldOrder{ReferenceNote: note, CartData: cart, TotalAmountCents: total}
	if err := s.db.WithContext(ctx).Create(&order).Error; err != nil {
		return 0, database.Classify("hold order", err)
	}
	s.log.Info().Uint("held_order_id", order.ID).Int("lines", len(cart)).Msg("order held")
	return order.ID, nil
}

// List returns held orders, newest first.
func (s *Store) List(ctx context.Context) ([]models.HeldOrder, error) {
	var out []models.HeldOrder
	if err := s.db.WithContext(ctx).Order("created_at DESC, id DESC").Find(&out).Error; err != nil {
		return nil, database.Classify("list held orders", err)
	}
	return out, nil
}

func (s *Store) Get(ctx context.Context, id uint) (*models.HeldOrder, error) {
	var order models.HeldOrder
	err := s.db.WithContext(ctx).First(&order, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &errs.NotFoundError{Resource: "held order", ID: id}
	}
	if err != nil {
		return nil, database.Classify("get held order", err)
	}
	return &order, nil
}

// Recall hands the order back and deletes it in one transaction. Of two
// terminals recalling the same order, the second gets NotFoundError.
func (s *Store) Recall(ctx context.Context, id uint) (*models.HeldOrder, error) {
	var order models.HeldOrder
	err := database.WithTx(ctx, s.db, "recall held order", s.lockTimeout, func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&order, id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &errs.NotFoundError{Resource: "held order", ID: id}
		}
		if err != nil {
			return fmt.Errorf("heldorder: lock: %w", err)
		}
		res := tx.Delete(&models.HeldOrder{}, id)
		if res.Error != nil {
			return fmt.Errorf("heldorder: delete: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return &errs.NotFoundError{Resource: "held order", ID: id}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().Uint("held_order_id", id).Msg("order recalled")
	return &order, nil
}

// Remove discards a held order. Removing one that is already gone is not an error.
func (s *Store) Remove(ctx context.Context, id uint) error {
	if err := s.db.WithContext(ctx).Delete(&models.HeldOrder{}, id).Error; err != nil {
		return database.Classify("remove held order", err)
	}
	return nil
}
