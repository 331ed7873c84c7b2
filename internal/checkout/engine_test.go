package checkout

import (
	"context"
	"regexp"
	"sync"
	"testing"
	"time"

	"go-pos-register/internal/database/testdb"
	"go-pos-register/internal/errs"
	"go-pos-register/internal/inventory"
	"go-pos-register/internal/models"
	"go-pos-register/internal/money"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

func newEngine(t *testing.T, opts ...Option) (*Engine, *gorm.DB) {
	t.Helper()
	db := testdb.Open(t)
	ledger := inventory.NewLedger(db, zerolog.Nop(), 2*time.Second)
	return NewEngine(db, ledger, zerolog.Nop(), Config{LockTimeout: 2 * time.Second}, opts...), db
}

func cash(lines ...Line) Request {
	return Request{CashierID: 1, Lines: lines, PaymentMethod: models.PaymentCash}
}

func cents(v money.Cents) *money.Cents { return &v }

func countRows(t *testing.T, db *gorm.DB, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(model).Count(&n).Error)
	return n
}

func requireConsistentTotals(t *testing.T, sale *models.Sale) {
	t.Helper()
	var sum money.Cents
	for _, it := range sale.Items {
		require.Equal(t, it.UnitPriceCents*money.Cents(it.Quantity), it.SubtotalCents)
		sum += it.SubtotalCents
	}
	require.Equal(t, sum, sale.TotalAmountCents)
	require.Equal(t, sale.TotalAmountCents-sale.DiscountCents, sale.NetAmountCents)
}

func TestSimpleCheckout(t *testing.T) {
	e, db := newEngine(t)
	p := testdb.CreateProduct(t, db, "RICE-1", 250, 10)

	sale, err := e.Checkout(context.Background(), cash(Line{ProductID: p.ID, Quantity: 2}))
	require.NoError(t, err)
	require.Equal(t, money.Cents(500), sale.TotalAmountCents)
	require.Equal(t, money.Cents(500), sale.NetAmountCents)
	require.Equal(t, 8, testdb.Stock(t, db, p.ID))
	require.Regexp(t, regexp.MustCompile(`^INV-\d{8}-\d{6}-[0-9A-F]{8}$`), sale.InvoiceNumber)
	require.Equal(t, models.SaleStatusCompleted, sale.Status)
	require.Equal(t, money.Cents(500), *sale.CashGivenCents)
	require.Equal(t, money.Cents(0), *sale.ChangeCents)
	requireConsistentTotals(t, sale)

	stored, err := e.Get(context.Background(), sale.ID)
	require.NoError(t, err)
	require.Len(t, stored.Items, 1)
	require.Equal(t, "RICE-1", stored.Items[0].ProductSKU)
	require.Equal(t, "Product RICE-1", stored.Items[0].ProductName)
	require.Equal(t, money.Cents(500), stored.TotalAmountCents)
	requireConsistentTotals(t, stored)

	byInvoice, err := e.GetByInvoice(context.Background(), sale.InvoiceNumber)
	require.NoError(t, err)
	require.Equal(t, sale.ID, byInvoice.ID)
}

func TestCheckoutInsufficientStock(t *testing.T) {
	e, db := newEngine(t)
	p := testdb.CreateProduct(t, db, "MILK-1", 100, 3)

	_, err := e.Checkout(context.Background(), cash(Line{ProductID: p.ID, Quantity: 5}))
	var stockErr *errs.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	require.Equal(t, p.ID, stockErr.ProductID)
	require.Equal(t, 3, testdb.Stock(t, db, p.ID))
	require.Zero(t, countRows(t, db, &models.Sale{}))
}

func TestCheckoutIsAtomic(t *testing.T) {
	e, db := newEngine(t)
	a := testdb.CreateProduct(t, db, "A", 100, 5)
	b := testdb.CreateProduct(t, db, "B", 200, 5)
	c := testdb.CreateProduct(t, db, "C", 300, 1)

	_, err := e.Checkout(context.Background(), cash(
		Line{ProductID: a.ID, Quantity: 2},
		Line{ProductID: b.ID, Quantity: 3},
		Line{ProductID: c.ID, Quantity: 2},
	))
	require.Equal(t, errs.KindInsufficientStock, errs.KindOf(err))

	require.Equal(t, 5, testdb.Stock(t, db, a.ID))
	require.Equal(t, 5, testdb.Stock(t, db, b.ID))
	require.Equal(t, 1, testdb.Stock(t, db, c.ID))
	require.Zero(t, countRows(t, db, &models.Sale{}))
	require.Zero(t, countRows(t, db, &models.SaleItem{}))
	require.Zero(t, countRows(t, db, &models.StockMovement{}))
}

func TestCheckoutMultiLineTotals(t *testing.T) {
	e, db := newEngine(t)
	a := testdb.CreateProduct(t, db, "A", 125, 50)
	b := testdb.CreateProduct(t, db, "B", 999, 50)

	sale, err := e.Checkout(context.Background(), cash(
		Line{ProductID: a.ID, Quantity: 3},
		Line{ProductID: b.ID, Quantity: 2},
		Line{ProductID: a.ID, Quantity: 1},
	))
	require.NoError(t, err)
	require.Len(t, sale.Items, 3)
	require.Equal(t, money.Cents(3*125+2*999+125), sale.TotalAmountCents)
	requireConsistentTotals(t, sale)
	require.Equal(t, 46, testdb.Stock(t, db, a.ID))
	require.Equal(t, 48, testdb.Stock(t, db, b.ID))
}

func TestSeniorDiscountIsComputedServerSide(t *testing.T) {
	e, db := newEngine(t)
	p := testdb.CreateProduct(t, db, "MED-1", 1120, 5)

	req := cash(Line{ProductID: p.ID, Quantity: 1})
	req.IsSenior = true
	req.ClientTotalCents = cents(1) // advisory only
	req.CashGivenCents = cents(1000)

	sale, err := e.Checkout(context.Background(), req)
	require.NoError(t, err)
	require.True(t, sale.IsSenior)
	require.Equal(t, money.Cents(1120), sale.TotalAmountCents)
	require.Equal(t, money.Cents(200), sale.DiscountCents)
	require.Equal(t, money.Cents(920), sale.NetAmountCents)
	require.Equal(t, money.Cents(80), *sale.ChangeCents)
	requireConsistentTotals(t, sale)
}

func TestCashGivenMustCoverTotal(t *testing.T) {
	e, db := newEngine(t)
	p := testdb.CreateProduct(t, db, "A", 500, 5)

	req := cash(Line{ProductID: p.ID, Quantity: 2})
	req.CashGivenCents = cents(999)
	_, err := e.Checkout(context.Background(), req)
	require.Equal(t, errs.KindValidation, errs.KindOf(err))
	require.Equal(t, 5, testdb.Stock(t, db, p.ID))
	require.Zero(t, countRows(t, db, &models.Sale{}))
}

func TestGCashCheckout(t *testing.T) {
	e, db := newEngine(t)
	p := testdb.CreateProduct(t, db, "A", 500, 5)

	req := Request{CashierID: 1, Lines: []Line{{ProductID: p.ID, Quantity: 1}}, PaymentMethod: models.PaymentGCash}
	_, err := e.Checkout(context.Background(), req)
	require.Equal(t, errs.KindValidation, errs.KindOf(err))

	req.PaymentReference = "  GC-123456 "
	sale, err := e.Checkout(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, "GC-123456", *sale.PaymentReference)
	require.Nil(t, sale.CashGivenCents)
	require.Nil(t, sale.ChangeCents)
}

func TestCheckoutValidation(t *testing.T) {
	e, db := newEngine(t)
	p := testdb.CreateProduct(t, db, "A", 500, 5)

	cases := map[string]Request{
		"empty cart":    cash(),
		"zero quantity": cash(Line{ProductID: p.ID, Quantity: 0}),
		"no product":    cash(Line{Quantity: 1}),
		"no cashier":    {Lines: []Line{{ProductID: p.ID, Quantity: 1}}, PaymentMethod: models.PaymentCash},
		"bad method":    {CashierID: 1, Lines: []Line{{ProductID: p.ID, Quantity: 1}}, PaymentMethod: "card"},
		"negative cash": {CashierID: 1, Lines: []Line{{ProductID: p.ID, Quantity: 1}}, PaymentMethod: models.PaymentCash, CashGivenCents: cents(-1)},
	}
	for name, req := range cases {
		_, err := e.Checkout(context.Background(), req)
		require.Equal(t, errs.KindValidation, errs.KindOf(err), name)
	}

	_, err := e.Checkout(context.Background(), cash(Line{ProductID: 4242, Quantity: 1}))
	require.Equal(t, errs.KindNotFound, errs.KindOf(err))
	require.Equal(t, 5, testdb.Stock(t, db, p.ID))
}

type scriptedInvoices struct {
	mu      sync.Mutex
	numbers []string
}

func (s *scriptedInvoices) Next(time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.numbers[0]
	if len(s.numbers) > 1 {
		s.numbers = s.numbers[1:]
	}
	return n, nil
}

func TestInvoiceCollisionRetries(t *testing.T) {
	gen := &scriptedInvoices{numbers: []string{"INV-DUP", "INV-DUP", "INV-DUP", "INV-OK"}}
	e, db := newEngine(t, WithInvoiceGenerator(gen))
	p := testdb.CreateProduct(t, db, "A", 100, 10)

	first, err := e.Checkout(context.Background(), cash(Line{ProductID: p.ID, Quantity: 1}))
	require.NoError(t, err)
	require.Equal(t, "INV-DUP", first.InvoiceNumber)

	second, err := e.Checkout(context.Background(), cash(Line{ProductID: p.ID, Quantity: 1}))
	require.NoError(t, err)
	require.Equal(t, "INV-OK", second.InvoiceNumber)
	require.Equal(t, 8, testdb.Stock(t, db, p.ID))
}

func TestInvoiceCollisionGivesUp(t *testing.T) {
	gen := &scriptedInvoices{numbers: []string{"INV-SAME"}}
	e, db := newEngine(t, WithInvoiceGenerator(gen))
	p := testdb.CreateProduct(t, db, "A", 100, 10)

	_, err := e.Checkout(context.Background(), cash(Line{ProductID: p.ID, Quantity: 1}))
	require.NoError(t, err)

	_, err = e.Checkout(context.Background(), cash(Line{ProductID: p.ID, Quantity: 1}))
	require.Equal(t, errs.KindTransactionFailed, errs.KindOf(err))
	require.ErrorIs(t, err, gorm.ErrDuplicatedKey)
	require.Equal(t, 9, testdb.Stock(t, db, p.ID))
	require.Equal(t, int64(1), countRows(t, db, &models.SaleItem{}))
}

func TestSaleIsStampedAfterStockIsLocked(t *testing.T) {
	base := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	var calls int
	clock := func() time.Time {
		calls++
		return base.Add(time.Duration(calls) * time.Minute)
	}
	e, db := newEngine(t, WithClock(clock))
	p := testdb.CreateProduct(t, db, "A", 100, 10)

	sale, err := e.Checkout(context.Background(), cash(Line{ProductID: p.ID, Quantity: 1}))
	require.NoError(t, err)
	require.Equal(t, 2, calls)
	require.Contains(t, sale.InvoiceNumber, "INV-20261016-090100-")
	require.True(t, sale.CreatedAt.Equal(base.Add(2*time.Minute)))
	require.True(t, sale.TransactionDate.Equal(sale.CreatedAt))

	var stored models.Sale
	require.NoError(t, db.First(&stored, sale.ID).Error)
	require.True(t, stored.CreatedAt.Equal(base.Add(2*time.Minute)))
}

func TestConcurrentCheckoutsNeverOversell(t *testing.T) {
	e, db := newEngine(t)
	p := testdb.CreateProduct(t, db, "HOT", 100, 10)

	var g errgroup.Group
	results := make([]error, 10)
	for i := range results {
		g.Go(func() error {
			_, results[i] = e.Checkout(context.Background(), cash(Line{ProductID: p.ID, Quantity: 3}))
			return nil
		})
	}
	require.NoError(t, g.Wait())

	sold := 0
	for _, err := range results {
		if err == nil {
			sold += 3
			continue
		}
		require.Equal(t, errs.KindInsufficientStock, errs.KindOf(err))
	}
	require.Equal(t, 9, sold)
	require.Equal(t, 1, testdb.Stock(t, db, p.ID))
	require.Equal(t, int64(3), countRows(t, db, &models.Sale{}))
}

func TestCheckoutLockTimeout(t *testing.T) {
	db := testdb.Open(t)
	ledger := inventory.NewLedger(db, zerolog.Nop(), time.Second)
	e := NewEngine(db, ledger, zerolog.Nop(), Config{LockTimeout: 100 * time.Millisecond})
	p := testdb.CreateProduct(t, db, "A", 100, 10)

	held := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Model(&models.Product{}).Where("id = ?", p.ID).Update("name", "locked").Error; err != nil {
				return err
			}
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	_, err := e.Checkout(context.Background(), cash(Line{ProductID: p.ID, Quantity: 1}))
	require.Equal(t, errs.KindLockTimeout, errs.KindOf(err))
	require.True(t, errs.Retryable(err))

	close(release)
	require.NoError(t, <-done)
	require.Equal(t, 10, testdb.Stock(t, db, p.ID))

	_, err = e.Checkout(context.Background(), cash(Line{ProductID: p.ID, Quantity: 1}))
	require.NoError(t, err)
}

type memoryIdempotency struct {
	mu   sync.Mutex
	keys map[string]IdempotencyClaim
}

func newMemoryIdempotency() *memoryIdempotency {
	return &memoryIdempotency{keys: map[string]IdempotencyClaim{}}
}

func (m *memoryIdempotency) Begin(_ context.Context, key, fingerprint string) (IdempotencyClaim, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if claim, ok := m.keys[key]; ok {
		return claim, nil
	}
	m.keys[key] = IdempotencyClaim{Fingerprint: fingerprint}
	return IdempotencyClaim{Fresh: true, Fingerprint: fingerprint}, nil
}

func (m *memoryIdempotency) Complete(_ context.Context, key, fingerprint string, saleID uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[key] = IdempotencyClaim{SaleID: saleID, Fingerprint: fingerprint}
	return nil
}

func (m *memoryIdempotency) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	return nil
}

func TestIdempotentCheckoutReplaysSale(t *testing.T) {
	idem := newMemoryIdempotency()
	e, db := newEngine(t, WithIdempotency(idem))
	p := testdb.CreateProduct(t, db, "A", 100, 10)

	req := cash(Line{ProductID: p.ID, Quantity: 2})
	req.IdempotencyKey = "terminal-1-0001"

	first, err := e.Checkout(context.Background(), req)
	require.NoError(t, err)
	again, err := e.Checkout(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, first.ID, again.ID)
	require.Equal(t, 8, testdb.Stock(t, db, p.ID))

	req.IdempotencyKey = "in-flight"
	idem.keys[idempotencyKey(req)] = IdempotencyClaim{Fingerprint: requestFingerprint(req)}
	_, err = e.Checkout(context.Background(), req)
	require.Equal(t, errs.KindConflict, errs.KindOf(err))
}

func TestIdempotencyKeyIsPerCashier(t *testing.T) {
	idem := newMemoryIdempotency()
	e, db := newEngine(t, WithIdempotency(idem))
	a := testdb.CreateProduct(t, db, "A", 100, 10)
	b := testdb.CreateProduct(t, db, "B", 300, 10)

	first := cash(Line{ProductID: a.ID, Quantity: 1})
	first.IdempotencyKey = "k1"
	saleA, err := e.Checkout(context.Background(), first)
	require.NoError(t, err)

	second := cash(Line{ProductID: b.ID, Quantity: 3})
	second.CashierID = 2
	second.IdempotencyKey = "k1"
	saleB, err := e.Checkout(context.Background(), second)
	require.NoError(t, err)
	require.NotEqual(t, saleA.ID, saleB.ID)
	require.Equal(t, uint(2), saleB.CashierID)
	require.Equal(t, money.Cents(900), saleB.TotalAmountCents)
	require.Equal(t, 7, testdb.Stock(t, db, b.ID))
}

func TestIdempotencyKeyReuseWithDifferentCart(t *testing.T) {
	idem := newMemoryIdempotency()
	e, db := newEngine(t, WithIdempotency(idem))
	p := testdb.CreateProduct(t, db, "A", 100, 10)

	req := cash(Line{ProductID: p.ID, Quantity: 1})
	req.IdempotencyKey = "k1"
	_, err := e.Checkout(context.Background(), req)
	require.NoError(t, err)

	req.Lines = []Line{{ProductID: p.ID, Quantity: 4}}
	_, err = e.Checkout(context.Background(), req)
	require.Equal(t, errs.KindConflict, errs.KindOf(err))
	require.Contains(t, err.Error(), "different checkout")
	require.Equal(t, 9, testdb.Stock(t, db, p.ID))
	require.Equal(t, int64(1), countRows(t, db, &models.Sale{}))

	// the display total does not change what is being bought
	req.Lines = []Line{{ProductID: p.ID, Quantity: 1}}
	req.ClientTotalCents = cents(12345)
	_, err = e.Checkout(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, int64(1), countRows(t, db, &models.Sale{}))
}

func TestIdempotencyKeyReleasedOnFailure(t *testing.T) {
	idem := newMemoryIdempotency()
	e, db := newEngine(t, WithIdempotency(idem))
	p := testdb.CreateProduct(t, db, "A", 100, 1)

	req := cash(Line{ProductID: p.ID, Quantity: 2})
	req.IdempotencyKey = "terminal-1-0002"
	_, err := e.Checkout(context.Background(), req)
	require.Equal(t, errs.KindInsufficientStock, errs.KindOf(err))
	require.NotContains(t, idem.keys, idempotencyKey(req))
}

type countingRecorder struct {
	completed int
	failed    map[string]int
}

func (r *countingRecorder) CheckoutCompleted(string, money.Cents) { r.completed++ }
func (r *countingRecorder) CheckoutFailed(kind string) { r.failed[kind]++ }

func TestRecorderSeesOutcomes(t *testing.T) {
	rec := &countingRecorder{failed: map[string]int{}}
	e, db := newEngine(t, WithRecorder(rec))
	p := testdb.CreateProduct(t, db, "A", 100, 1)

	_, err := e.Checkout(context.Background(), cash(Line{ProductID: p.ID, Quantity: 1}))
	require.NoError(t, err)
	_, _ = e.Checkout(context.Background(), cash(Line{ProductID: p.ID, Quantity: 1}))
	_, _ = e.Checkout(context.Background(), cash())

	require.Equal(t, 1, rec.completed)
	require.Equal(t, 1, rec.failed["insufficient_stock"])
	require.Equal(t, 1, rec.failed["validation"])
}

func TestQuote(t *testing.T) {
	e, db := newEngine(t)
	p := testdb.CreateProduct(t, db, "A", 560, 0)

	totals, err := e.Quote(context.Background(), []Line{{ProductID: p.ID, Quantity: 2}}, true)
	require.NoError(t, err)
	require.Equal(t, Totals{Subtotal: 1120, Discount: 200, Net: 920}, totals)

	_, err = e.Quote(context.Background(), []Line{{ProductID: 77, Quantity: 1}}, false)
	require.Equal(t, errs.KindNotFound, errs.KindOf(err))

	_, err = e.Quote(context.Background(), nil, false)
	require.Equal(t, errs.KindValidation, errs.KindOf(err))
}

func TestRandomInvoices(t *testing.T) {
	at := time.Date(2026, 10, 16, 15, 30, 45, 0, time.UTC)
	a, err := RandomInvoices{}.Next(at)
	require.NoError(t, err)
	b, err := RandomInvoices{}.Next(at)
	require.NoError(t, err)
	require.NotEqual(t, a, b)
	require.Contains(t, a, "INV-20261016-153045-")
}
