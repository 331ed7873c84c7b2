// Package shift runs the cash-drawer session of the register.
//
// At most one shift is open at any time. Every Start and Close first locks
// the single register_locks row, so competing callers queue on it instead of
// reading a stale "no open shift". The unique open_slot column backs this up
// inside the database.
package shift

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

// CashSalesScope decides which cash sales a closing shift is reconciled against.
type CashSalesScope string

const (
	// ScopeCashier counts cash sales rung up by the shift owner since the shift started.
	ScopeCashier CashSalesScope = "cashier"
	// ScopeRegister counts every cashier's cash sales inside the shift window.
	ScopeRegister CashSalesScope = "register"
)

// ParseScope maps a configuration value onto a scope.
func ParseScope(s string) (CashSalesScope, error) {
	switch CashSalesScope(s) {
	case ScopeCashier, ScopeRegister:
		return CashSalesScope(s), nil
	}
	return "", fmt.Errorf("shift: unknown cash sales scope %q", s)
}

type Policy struct {
	CashSalesScope CashSalesScope
	LockTimeout    time.Duration
}

// Recorder receives shift events, e.g. for Prometheus.
type Recorder interface {
	ShiftStarted()
	ShiftClosed(difference money.Cents)
}

type Option func(*Manager)

func WithRecorder(r Recorder) Option { return func(m *Manager) { m.recorder = r } }

func WithClock(now func() time.Time) Option { return func(m *Manager) { m.now = now } }

type Manager struct {
	db       *gorm.DB
	log      zerolog.Logger
	policy   Policy
	recorder Recorder
	now      func() time.Time
}

func NewManager(db *gorm.DB, log zerolog.Logger, policy Policy, opts ...Option) *Manager {
	if policy.CashSalesScope == "" {
		policy.CashSalesScope = ScopeCashier
	}
	m := &Manager{
		db:     db,
		log:    log.With().Str("component", "shift").Logger(),
		policy: policy,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start opens the register for userID. If that user already holds the open
// shift it is returned as is; if someone else does, RegisterInUseError names them.
func (m *Manager) Start(ctx context.Context, userID uint, startingCash money.Cents) (*models.Shift, error) {
	if userID == 0 {
		return nil, errs.Validation("user_id", "user is required")
	}
	if startingCash < 0 {
		return nil, errs.Validation("starting_cash_cents", "starting cash must not be negative")
	}

	var (
		out     models.Shift
		created bool
	)
	err := database.WithTx(ctx, m.db, "shift start", m.policy.LockTimeout, func(tx *gorm.DB) error {
		if err := lockRegister(tx); err != nil {
			return err
		}
		open, err := findOpen(tx, true)
		if err != nil {
			return err
		}
		if open != nil {
			if open.UserID == userID {
				out = *open
				return nil
			}
			holder := ""
			if open.User != nil {
				holder = open.User.Username
			}
			return &errs.RegisterInUseError{ShiftID: open.ID, HolderID: open.UserID, HolderName: holder}
		}

		slot := 1
		out = models.Shift{
			UserID:            userID,
			StartTime:         m.now(),
			StartingCashCents: startingCash,
			Status:            models.ShiftOpen,
			OpenSlot:          &slot,
		}
		if err := tx.Create(&out).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return &errs.ConflictError{Message: "another shift was opened at the same time"}
			}
			return fmt.Errorf("shift: create: %w", err)
		}
		created = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if created {
		m.log.Info().Uint("shift_id", out.ID).Uint("user_id", userID).Int64("starting_cash_cents", int64(startingCash)).Msg("shift started")
		if m.recorder != nil {
			m.recorder.ShiftStarted()
		}
	}
	return &out, nil
}

// Close reconciles and closes the open shift. Only its owner may close it.
// When there is no open shift (e.g. another terminal closed it already) the
// error is a NotFoundError for "open shift", so the caller refreshes instead
// of retrying.
func (m *Manager) Close(ctx context.Context, userID uint, actualCash money.Cents) (*models.Shift, error) {
	if actualCash < 0 {
		return nil, errs.Validation("actual_cash_cents", "counted cash must not be negative")
	}

	var out models.Shift
	err := database.WithTx(ctx, m.db, "shift close", m.policy.LockTimeout, func(tx *gorm.DB) error {
		if err := lockRegister(tx); err != nil {
			return err
		}
		open, err := findOpen(tx, false)
		if err != nil {
			return err
		}
		if open == nil {
			return &errs.NotFoundError{Resource: "open shift"}
		}
		if open.UserID != userID {
			return &errs.UnauthorizedError{Message: "only the cashier who opened the shift can close it"}
		}

		end := m.now()
		cashSales, err := m.cashSales(tx, open, end)
		if err != nil {
			return err
		}
		expected, err := money.Sum(open.StartingCashCents, cashSales)
		if err != nil {
			return errs.Validation("cash_sales_cents", "cash total is out of range")
		}
		difference := actualCash - expected

		err = tx.Model(&models.Shift{}).Where("id = ? AND status = ?", open.ID, models.ShiftOpen).Updates(map[string]any{
			"end_time":            end,
			"cash_sales_cents":    cashSales,
			"expected_cash_cents": expected,
			"actual_cash_cents":   actualCash,
			"difference_cents":    difference,
			"status":              models.ShiftClosed,
			"open_slot":           nil,
		}).Error
		if err != nil {
			return fmt.Errorf("shift: close: %w", err)
		}

		out = *open
		out.EndTime = &end
		out.CashSalesCents = &cashSales
		out.ExpectedCashCents = &expected
		out.ActualCashCents = &actualCash
		out.DifferenceCents = &difference
		out.Status = models.ShiftClosed
		out.OpenSlot = nil
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.log.Info().
		Uint("shift_id", out.ID).
		Uint("user_id", userID).
		Int64("expected_cash_cents", int64(*out.ExpectedCashCents)).
		Int64("actual_cash_cents", int64(actualCash)).
		Int64("difference_cents", int64(*out.DifferenceCents)).
		Msg("shift closed")
	if m.recorder != nil {
		m.recorder.ShiftClosed(*out.DifferenceCents)
	}
	return &out, nil
}

// OpenShift returns the open shift, or nil when the register is free.
func (m *Manager) OpenShift(ctx context.Context) (*models.Shift, error) {
	open, err := findOpen(m.db.WithContext(ctx), true)
	if err != nil {
		return nil, database.Classify("open shift", err)
	}
	return open, nil
}

// Get loads one shift, e.g. for printing its Z-Read.
func (m *Manager) Get(ctx context.Context, id uint) (*models.Shift, error) {
	var s models.Shift
	err := m.db.WithContext(ctx).Preload("User").First(&s, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &errs.NotFoundError{Resource: "shift", ID: id}
	}
	if err != nil {
		return nil, database.Classify("get shift", err)
	}
	return &s, nil
}

// History lists shifts newest first, optionally for one user (userID 0 means all).
func (m *Manager) History(ctx context.Context, userID uint, limit int) ([]models.Shift, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	q := m.db.WithContext(ctx).Preload("User").Order("start_time DESC, id DESC").Limit(limit)
	if userID != 0 {
		q = q.Where("user_id = ?", userID)
	}
	var out []models.Shift
	if err := q.Find(&out).Error; err != nil {
		return nil, database.Classify("shift history", err)
	}
	return out, nil
}

// cashSales sums net cash collected for the shift according to the scope policy.
func (m *Manager) cashSales(tx *gorm.DB, open *models.Shift, end time.Time) (money.Cents, error) {
	q := tx.Model(&models.Sale{}).
		Select("COALESCE(SUM(net_amount_cents), 0)").
		Where("payment_method = ?", models.PaymentCash).
		Where("status = ?", models.SaleStatusCompleted).
		Where("created_at >= ? AND created_at <= ?", open.StartTime, end)
	if m.policy.CashSalesScope == ScopeCashier {
		q = q.Where("cashier_id = ?", open.UserID)
	}
	var total int64
	if err := q.Scan(&total).Error; err != nil {
		return 0, fmt.Errorf("shift: sum cash sales: %w", err)
	}
	return money.Cents(total), nil
}

func lockRegister(tx *gorm.DB) error {
	var lock models.RegisterLock
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&lock, models.MainRegisterID).Error
	if err != nil {
		return fmt.Errorf("shift: lock register: %w", err)
	}
	return nil
}

func findOpen(tx *gorm.DB, withUser bool) (*models.Shift, error) {
	var s models.Shift
	q := tx.Where("status = ?", models.ShiftOpen)
	if withUser {
		q = q.Preload("User")
	}
	err := q.Order("id ASC").First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}
