// Package checkout turns a cart into a persisted Sale in one transaction.
package checkout

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go-pos-register/internal/database"
	"go-pos-register/internal/errs"
	"go-pos-register/internal/inventory"
	"go-pos-register/internal/models"
	"go-pos-register/internal/money"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// Line is one cart entry.
type Line struct {
	ProductID uint
	Quantity  int
}

// Request is a whole cart plus payment details. The cart is a plain value;
// the server keeps no cart session.
type Request struct {
	CashierID        uint
	Lines            []Line
	PaymentMethod    models.PaymentMethod
	PaymentReference string
	CashGivenCents   *money.Cents
	IsSenior         bool
	// ClientTotalCents is what the terminal displayed. It is only compared
	// and logged; totals are always recomputed here.
	ClientTotalCents *money.Cents
	IdempotencyKey   string
}

// Totals is the money side of a sale.
type Totals struct {
	Subtotal money.Cents `json:"subtotal_cents"`
	Discount money.Cents `json:"discount_cents"`
	Net      money.Cents `json:"net_cents"`
}

// ComputeTotals applies the senior/PWD discount to a cart subtotal.
func ComputeTotals(subtotal money.Cents, isSenior bool) Totals {
	t := Totals{Subtotal: subtotal, Net: subtotal}
	if isSenior {
		t.Discount = money.SeniorDiscount(subtotal)
		t.Net = subtotal - t.Discount
	}
	return t
}

// IdempotencyClaim is what Begin found under a key.
type IdempotencyClaim struct {
	// Fresh means the caller now owns the key and must Complete or Release it.
	Fresh bool
	// SaleID is the finished sale, or 0 while the first attempt is in flight.
	SaleID uint
	// Fingerprint is the request hash stored by whoever claimed the key.
	Fingerprint string
}

// Idempotency remembers which sale a client supplied key produced.
type Idempotency interface {
	Begin(ctx context.Context, key, fingerprint string) (IdempotencyClaim, error)
	Complete(ctx context.Context, key, fingerprint string, saleID uint) error
	Release(ctx context.Context, key string) error
}

// Recorder receives checkout outcomes, e.g. for Prometheus.
type Recorder interface {
	CheckoutCompleted(method string, net money.Cents)
	CheckoutFailed(kind string)
}

type Config struct {
	LockTimeout time.Duration
	// MaxInvoiceAttempts bounds retries after an invoice number collision.
	MaxInvoiceAttempts int
}

type Option func(*Engine)

func WithIdempotency(idem Idempotency) Option { return func(e *Engine) { e.idem = idem } }

func WithRecorder(r Recorder) Option { return func(e *Engine) { e.recorder = r } }

func WithInvoiceGenerator(g InvoiceGenerator) Option { return func(e *Engine) { e.invoices = g } }

func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// Engine is the checkout service.
type Engine struct {
	db       *gorm.DB
	ledger   *inventory.Ledger
	log      zerolog.Logger
	cfg      Config
	invoices InvoiceGenerator
	idem     Idempotency
	recorder Recorder
	now      func() time.Time
}

func NewEngine(db *gorm.DB, ledger *inventory.Ledger, log zerolog.Logger, cfg Config, opts ...Option) *Engine {
	if cfg.MaxInvoiceAttempts < 1 {
		cfg.MaxInvoiceAttempts = 3
	}
	e := &Engine{
		db:       db,
		ledger:   ledger,
		log:      log.With().Str("component", "checkout").Logger(),
		cfg:      cfg,
		invoices: RandomInvoices{},
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Checkout validates the cart, takes stock for every line in input order and
// records the sale. Any failure leaves no sale, no items and no stock change.
func (e *Engine) Checkout(ctx context.Context, req Request) (*models.Sale, error) {
	if err := validate(req); err != nil {
		e.observe(nil, err)
		return nil, err
	}

	key := idempotencyKey(req)
	fingerprint := ""
	claimed := false
	if key != "" && e.idem != nil {
		fingerprint = requestFingerprint(req)
		claim, err := e.idem.Begin(ctx, key, fingerprint)
		switch {
		case err != nil:
			e.log.Warn().Err(err).Str("idempotency_key", key).Msg("idempotency store unavailable, continuing without it")
		case claim.Fresh:
			claimed = true
		case claim.Fingerprint != fingerprint:
			return nil, &errs.ConflictError{Message: "this idempotency key was already used for a different checkout"}
		case claim.SaleID == 0:
			return nil, &errs.ConflictError{Message: "a checkout with this idempotency key is still in progress"}
		default:
			e.log.Info().Str("idempotency_key", key).Uint("sale_id", claim.SaleID).Msg("replaying completed checkout")
			return e.Get(ctx, claim.SaleID)
		}
	}

	sale, err := e.checkoutWithRetry(ctx, req)

	if claimed {
		if err != nil {
			if relErr := e.idem.Release(ctx, key); relErr != nil {
				e.log.Warn().Err(relErr).Str("idempotency_key", key).Msg("failed to release idempotency key")
			}
		} else if compErr := e.idem.Complete(ctx, key, fingerprint, sale.ID); compErr != nil {
			e.log.Warn().Err(compErr).Str("idempotency_key", key).Msg("failed to store idempotency result")
		}
	}

	e.observe(sale, err)
	if err != nil {
		e.log.Warn().Err(err).Uint("cashier_id", req.CashierID).Str("kind", string(errs.KindOf(err))).Msg("checkout failed")
		return nil, err
	}

	if req.ClientTotalCents != nil && *req.ClientTotalCents != sale.NetAmountCents {
		e.log.Warn().
			Str("invoice", sale.InvoiceNumber).
			Int64("client_total_cents", int64(*req.ClientTotalCents)).
			Int64("net_amount_cents", int64(sale.NetAmountCents)).
			Msg("client total differs from computed total, computed total kept")
	}
	e.log.Info().
		Str("invoice", sale.InvoiceNumber).
		Uint("sale_id", sale.ID).
		Uint("cashier_id", sale.CashierID).
		Str("payment_method", string(sale.PaymentMethod)).
		Int64("net_amount_cents", int64(sale.NetAmountCents)).
		Int("lines", len(sale.Items)).
		Msg("checkout completed")
	return sale, nil
}

func (e *Engine) checkoutWithRetry(ctx context.Context, req Request) (*models.Sale, error) {
	for attempt := 1; ; attempt++ {
		sale, err := e.checkoutOnce(ctx, req)
		if err == nil {
			return sale, nil
		}
		if errors.Is(err, gorm.ErrDuplicatedKey) && attempt < e.cfg.MaxInvoiceAttempts {
			e.log.Warn().Int("attempt", attempt).Msg("invoice number collision, retrying checkout")
			continue
		}
		return nil, err
	}
}

func (e *Engine) checkoutOnce(ctx context.Context, req Request) (*models.Sale, error) {
	invoice, err := e.invoices.Next(e.now())
	if err != nil {
		return nil, &errs.TransactionFailedError{Op: "checkout", Err: fmt.Errorf("generate invoice number: %w", err)}
	}

	var sale models.Sale
	err = database.WithTx(ctx, e.db, "checkout", e.cfg.LockTimeout, func(tx *gorm.DB) error {
		items := make([]models.SaleItem, 0, len(req.Lines))
		subtotals := make([]money.Cents, 0, len(req.Lines))
		for i, line := range req.Lines {
			res, err := e.ledger.ReserveAndDecrement(tx, line.ProductID, line.Quantity, invoice, req.CashierID)
			if err != nil {
				return err
			}
			subtotal, err := money.Mul(res.UnitPrice, line.Quantity)
			if err != nil {
				return errs.Validation(fmt.Sprintf("items[%d]", i), "line total is out of range")
			}
			items = append(items, models.SaleItem{
				ProductID:      res.ProductID,
				ProductName:    res.Name,
				ProductSKU:     res.SKU,
				Quantity:       line.Quantity,
				UnitPriceCents: res.UnitPrice,
				CostPriceCents: res.CostPrice,
				SubtotalCents:  subtotal,
			})
			subtotals = append(subtotals, subtotal)
		}

		subtotal, err := money.Sum(subtotals...)
		if err != nil {
			return errs.Validation("items", "cart total is out of range")
		}
		totals := ComputeTotals(subtotal, req.IsSenior)

		// stamped only once every stock row is locked
		stamp := e.now()
		sale = models.Sale{
			InvoiceNumber:    invoice,
			CashierID:        req.CashierID,
			TransactionDate:  stamp,
			TotalAmountCents: totals.Subtotal,
			DiscountCents:    totals.Discount,
			NetAmountCents:   totals.Net,
			PaymentMethod:    req.PaymentMethod,
			IsSenior:         req.IsSenior,
			Status:           models.SaleStatusCompleted,
			CreatedAt:        stamp,
		}
		if req.PaymentMethod == models.PaymentGCash {
			ref := strings.TrimSpace(req.PaymentReference)
			sale.PaymentReference = &ref
		}
		if req.PaymentMethod == models.PaymentCash {
			given := totals.Net
			if req.CashGivenCents != nil {
				given = *req.CashGivenCents
			}
			if given < totals.Net {
				return errs.Validation("cash_given_cents", "cash given %s is less than amount due %s", given, totals.Net)
			}
			change := given - totals.Net
			sale.CashGivenCents = &given
			sale.ChangeCents = &change
		}

		if err := tx.Omit("Items").Create(&sale).Error; err != nil {
			return fmt.Errorf("checkout: create sale header: %w", err)
		}
		for i := range items {
			items[i].SaleID = sale.ID
		}
		if err := tx.Create(&items).Error; err != nil {
			return fmt.Errorf("checkout: create sale items: %w", err)
		}
		sale.Items = items
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &sale, nil
}

// Quote prices a cart without locking or changing anything, so terminals can
// display the same totals the checkout will compute.
func (e *Engine) Quote(ctx context.Context, lines []Line, isSenior bool) (Totals, error) {
	if len(lines) == 0 {
		return Totals{}, errs.Validation("items", "cart is empty")
	}
	ids := make([]uint, 0, len(lines))
	for i, line := range lines {
		if err := validateLine(i, line); err != nil {
			return Totals{}, err
		}
		ids = append(ids, line.ProductID)
	}

	var products []models.Product
	if err := e.db.WithContext(ctx).Where("id IN ?", ids).Find(&products).Error; err != nil {
		return Totals{}, database.Classify("quote", err)
	}
	prices := make(map[uint]money.Cents, len(products))
	for _, p := range products {
		prices[p.ID] = p.PriceCents
	}

	subtotals := make([]money.Cents, 0, len(lines))
	for i, line := range lines {
		price, ok := prices[line.ProductID]
		if !ok {
			return Totals{}, &errs.NotFoundError{Resource: "product", ID: line.ProductID}
		}
		sub, err := money.Mul(price, line.Quantity)
		if err != nil {
			return Totals{}, errs.Validation(fmt.Sprintf("items[%d]", i), "line total is out of range")
		}
		subtotals = append(subtotals, sub)
	}
	subtotal, err := money.Sum(subtotals...)
	if err != nil {
		return Totals{}, errs.Validation("items", "cart total is out of range")
	}
	return ComputeTotals(subtotal, isSenior), nil
}

// Get loads a committed sale with its items, for receipts.
func (e *Engine) Get(ctx context.Context, id uint) (*models.Sale, error) {
	var sale models.Sale
	err := e.db.WithContext(ctx).Preload("Items").First(&sale, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &errs.NotFoundError{Resource: "sale", ID: id}
	}
	if err != nil {
		return nil, database.Classify("get sale", err)
	}
	return &sale, nil
}

// GetByInvoice loads a committed sale by its invoice number.
func (e *Engine) GetByInvoice(ctx context.Context, invoice string) (*models.Sale, error) {
	var sale models.Sale
	err := e.db.WithContext(ctx).Preload("Items").Where("invoice_number = ?", invoice).First(&sale).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &errs.NotFoundError{Resource: "sale", ID: invoice}
	}
	if err != nil {
		return nil, database.Classify("get sale", err)
	}
	return &sale, nil
}

func (e *Engine) observe(sale *models.Sale, err error) {
	if e.recorder == nil {
		return
	}
	if err != nil {
		kind := string(errs.KindOf(err))
		if kind == "" {
			kind = "unknown"
		}
		e.recorder.CheckoutFailed(kind)
		return
	}
	e.recorder.CheckoutCompleted(string(sale.PaymentMethod), sale.NetAmountCents)
}

// idempotencyKey scopes the client key to the cashier so two terminals
// picking the same key never see each other's sales.
func idempotencyKey(req Request) string {
	key := strings.TrimSpace(req.IdempotencyKey)
	if key == "" {
		return ""
	}
	return strconv.FormatUint(uint64(req.CashierID), 10) + ":" + key
}

// requestFingerprint hashes everything that decides what a checkout sells
// and charges. ClientTotalCents is display only and left out.
func requestFingerprint(req Request) string {
	h := sha256.New()
	fmt.Fprintf(h, "%d|%s|%s|%t|", req.CashierID, req.PaymentMethod, strings.TrimSpace(req.PaymentReference), req.IsSenior)
	if req.CashGivenCents != nil {
		fmt.Fprintf(h, "%d", *req.CashGivenCents)
	}
	for _, line := range req.Lines {
		fmt.Fprintf(h, "|%d:%d", line.ProductID, line.Quantity)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func validate(req Request) error {
	if req.CashierID == 0 {
		return errs.Validation("cashier_id", "cashier is required")
	}
	if len(req.Lines) == 0 {
		return errs.Validation("items", "cart is empty")
	}
	for i, line := range req.Lines {
		if err := validateLine(i, line); err != nil {
			return err
		}
	}
	if !req.PaymentMethod.Valid() {
		return errs.Validation("payment_method", "unsupported payment method %q", req.PaymentMethod)
	}
	if req.PaymentMethod == models.PaymentGCash && strings.TrimSpace(req.PaymentReference) == "" {
		return errs.Validation("payment_reference", "gcash payments need a reference")
	}
	if req.CashGivenCents != nil && *req.CashGivenCents < 0 {
		return errs.Validation("cash_given_cents", "cash given must not be negative")
	}
	return nil
}

func validateLine(i int, line Line) error {
	if line.ProductID == 0 {
		return errs.Validation(fmt.Sprintf("items[%d].product_id", i), "product is required")
	}
	if err := money.CheckQuantity(line.Quantity); err != nil {
		return errs.Validation(fmt.Sprintf("items[%d].quantity", i), "quantity must be at least 1")
	}
	return nil
}
