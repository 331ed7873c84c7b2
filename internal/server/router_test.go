package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go-pos-register/internal/auth"
	"go-pos-register/internal/cache"
	"go-pos-register/internal/catalog"
	"go-pos-register/internal/checkout"
	"go-pos-register/internal/database/testdb"
	"go-pos-register/internal/handlers"
	"go-pos-register/internal/heldorder"
	"go-pos-register/internal/inventory"
	"go-pos-register/internal/metrics"
	"go-pos-register/internal/models"
	"go-pos-register/internal/shift"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type env struct {
	t       *testing.T
	router  *gin.Engine
	db      *gorm.DB
	tokens  *auth.TokenManager
	admin   string
	cashier string
	other   string
}

func setup(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := testdb.Open(t)
	log := zerolog.Nop()
	lock := 2 * time.Second

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	m := metrics.New()
	ledger := inventory.NewLedger(db, log, lock)
	tokens := auth.NewTokenManager("test-secret", time.Hour)
	h := handlers.New(handlers.Deps{
		DB:        db,
		Users:     auth.NewUsers(db, log),
		Tokens:    tokens,
		Catalog:   catalog.NewService(db, log, lock),
		Inventory: ledger,
		Checkout: checkout.NewEngine(db, ledger, log, checkout.Config{LockTimeout: lock},
			checkout.WithIdempotency(cache.NewIdempotencyStore(rdb, time.Hour)),
			checkout.WithRecorder(m)),
		Shifts:    shift.NewManager(db, log, shift.Policy{LockTimeout: lock}, shift.WithRecorder(m)),
		Held:      heldorder.NewStore(db, log, lock),
		UploadDir: t.TempDir(),
		Log:       log,
	})

	e := &env{t: t, db: db, tokens: tokens}
	e.router = NewRouter(h, tokens, m, log, Options{CORSOrigins: []string{"http://localhost:5173"}})

	owner := testdb.CreateUser(t, db, "owner", models.RoleAdmin)
	ana := testdb.CreateUser(t, db, "ana", models.RoleCashier)
	ben := testdb.CreateUser(t, db, "ben", models.RoleCashier)
	e.admin = e.token(owner)
	e.cashier = e.token(ana)
	e.other = e.token(ben)
	return e
}

func (e *env) token(u models.User) string {
	tok, _, err := e.tokens.Generate(u.ID, u.Username, u.Role)
	require.NoError(e.t, err)
	return tok
}

func (e *env) do(method, path, token string, body any, headers ...string) (*httptest.ResponseRecorder, map[string]any) {
	e.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(e.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var out map[string]any
	if w.Body.Len() > 0 && w.Body.Bytes()[0] == '{' {
		require.NoError(e.t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w, out
}

func TestHealthLoginAndMetrics(t *testing.T) {
	e := setup(t)

	w, _ := e.do(http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, body := e.do(http.MethodPost, "/login", "", gin.H{"username": "ana", "password": "secret"})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "cashier", body["role"])
	require.NotEmpty(t, body["token"])

	w, _ = e.do(http.MethodPost, "/login", "", gin.H{"username": "ana", "password": "nope"})
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = e.do(http.MethodPost, "/register", "", gin.H{"username": "x", "password": "secret"})
	require.Equal(t, http.StatusNotFound, w.Code)

	w, _ = e.do(http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "pos_http_requests_total")
}

func TestCheckoutOverHTTP(t *testing.T) {
	e := setup(t)
	p := testdb.CreateProduct(t, e.db, "RICE", 250, 3)

	cart := gin.H{
		"items":            []gin.H{{"product_id": p.ID, "quantity": 2}},
		"payment_method":   "cash",
		"cash_given_cents": 1000,
	}
	w, sale := e.do(http.MethodPost, "/api/checkout", e.cashier, cart, handlers.IdempotencyHeader, "term1-0001")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, 500.0, sale["net_amount_cents"])
	require.Equal(t, 500.0, sale["change_cents"])

	// same key again replays the first sale
	w, again := e.do(http.MethodPost, "/api/checkout", e.cashier, cart, handlers.IdempotencyHeader, "term1-0001")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, sale["id"], again["id"])
	require.Equal(t, 1, testdb.Stock(t, e.db, p.ID))

	w, body := e.do(http.MethodPost, "/api/checkout", e.cashier, cart)
	require.Equal(t, http.StatusConflict, w.Code)
	require.Equal(t, "insufficient_stock", body["code"])
	require.Equal(t, 1.0, body["available"])
	require.Equal(t, false, body["retryable"])

	w, body = e.do(http.MethodPost, "/api/checkout", e.cashier, gin.H{"items": []gin.H{}, "payment_method": "cash"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "validation", body["code"])

	w, receipt := e.do(http.MethodGet, "/api/sales/"+jsonID(sale["id"]), e.cashier, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, receipt["items"], 1)

	w, _ = e.do(http.MethodPost, "/api/checkout", "", cart)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestShiftsOverHTTP(t *testing.T) {
	e := setup(t)

	w, body := e.do(http.MethodGet, "/api/shifts/current", e.cashier, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Nil(t, body["shift"])

	w, _ = e.do(http.MethodPost, "/api/shifts/start", e.cashier, gin.H{"starting_cash_cents": 1000})
	require.Equal(t, http.StatusOK, w.Code)

	w, body = e.do(http.MethodPost, "/api/shifts/start", e.other, gin.H{"starting_cash_cents": 0})
	require.Equal(t, http.StatusConflict, w.Code)
	require.Equal(t, "register_in_use", body["code"])
	require.Equal(t, "ana", body["holder_name"])

	w, _ = e.do(http.MethodPost, "/api/shifts/close", e.other, gin.H{"actual_cash_cents": 0})
	require.Equal(t, http.StatusForbidden, w.Code)

	w, body = e.do(http.MethodPost, "/api/shifts/close", e.cashier, gin.H{"actual_cash_cents": 950})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, -50.0, body["difference_cents"])

	w, body = e.do(http.MethodPost, "/api/shifts/close", e.cashier, gin.H{"actual_cash_cents": 950})
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Equal(t, "not_found", body["code"])

	w, _ = e.do(http.MethodGet, "/api/shifts", e.cashier, nil)
	require.Equal(t, http.StatusForbidden, w.Code)
	w, _ = e.do(http.MethodGet, "/api/shifts", e.admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = e.do(http.MethodGet, "/api/shifts?user_id=1", e.admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w, body = e.do(http.MethodGet, "/api/shifts?user_id=-1", e.admin, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "validation", body["code"])
}

func TestHeldOrdersOverHTTP(t *testing.T) {
	e := setup(t)

	w, body := e.do(http.MethodPost, "/api/held-orders", e.cashier, gin.H{
		"reference_note":     "blue shirt",
		"cart_data":          []gin.H{{"productId": 1, "quantity": 2, "priceCents": 250}},
		"total_amount_cents": 500,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	id := jsonID(body["id"])

	w, _ = e.do(http.MethodGet, "/api/held-orders", e.cashier, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "blue shirt")

	w, body = e.do(http.MethodPost, "/api/held-orders/"+id+"/recall", e.cashier, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, body["cart_data"], 1)

	w, _ = e.do(http.MethodPost, "/api/held-orders/"+id+"/recall", e.cashier, nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	w, _ = e.do(http.MethodDelete, "/api/held-orders/"+id, e.cashier, nil)
	require.Equal(t, http.StatusNoContent, w.Code)
}

func TestAdminRoutes(t *testing.T) {
	e := setup(t)

	w, _ := e.do(http.MethodPost, "/api/products", e.cashier, gin.H{"sku": "A", "name": "A"})
	require.Equal(t, http.StatusForbidden, w.Code)

	w, p := e.do(http.MethodPost, "/api/products", e.admin, gin.H{"sku": "SOAP", "name": "Soap", "price_cents": 3500, "stock_quantity": 4})
	require.Equal(t, http.StatusCreated, w.Code)
	id := jsonID(p["id"])

	w, body := e.do(http.MethodPost, "/api/products", e.admin, gin.H{"sku": "SOAP", "name": "Soap"})
	require.Equal(t, http.StatusConflict, w.Code)
	require.Equal(t, "conflict", body["code"])

	w, body = e.do(http.MethodPost, "/api/products/"+id+"/stock", e.admin, gin.H{"delta": 6, "note": "delivery"})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 10.0, body["stock_quantity"])

	w, body = e.do(http.MethodPut, "/api/products/"+id+"/stock", e.admin, gin.H{"quantity": 2})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 2.0, body["stock_quantity"])

	w, _ = e.do(http.MethodGet, "/api/products?category_id=-3", e.cashier, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	w, _ = e.do(http.MethodGet, "/api/products?category_id=abc", e.cashier, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	w, _ = e.do(http.MethodGet, "/api/products?q=soap", e.cashier, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "SOAP")

	w, _ = e.do(http.MethodGet, "/api/reports/low-stock", e.admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "SOAP")

	w, body = e.do(http.MethodGet, "/api/reports?from=2026-01-01&to=2026-12-31", e.admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, body["summary"])

	w, _ = e.do(http.MethodGet, "/api/reports?from=yesterday", e.admin, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = e.do(http.MethodDelete, "/api/products/"+id, e.admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = e.do(http.MethodGet, "/api/products/scan/SOAP", e.cashier, nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	w, _ = e.do(http.MethodPost, "/api/ask", e.admin, gin.H{"message": "hi"})
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func jsonID(v any) string {
	b, _ := json.Marshal(v)
	return string(b)
}
