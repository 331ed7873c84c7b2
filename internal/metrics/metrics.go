// Package metrics exposes register activity to Prometheus.
package metrics

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"go-pos-register/internal/money"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry; it satisfies the checkout and shift recorders.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	checkouts       *prometheus.CounterVec
	saleAmount      *prometheus.HistogramVec
	shiftsStarted   prometheus.Counter
	shiftsClosed    prometheus.Counter
	cashDifference  prometheus.Histogram
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pos_http_requests_total",
			Help: "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pos_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		checkouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pos_checkouts_total",
			Help: "Checkout attempts by outcome.",
		}, []string{"outcome"}),
		saleAmount: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pos_sale_net_amount",
			Help:    "Net amount of completed sales in major currency units.",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000},
		}, []string{"payment_method"}),
		shiftsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pos_shifts_started_total",
			Help: "Shifts opened.",
		}),
		shiftsClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pos_shifts_closed_total",
			Help: "Shifts closed.",
		}),
		cashDifference: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pos_shift_cash_difference",
			Help:    "Counted minus expected drawer cash at close, in major currency units.",
			Buckets: []float64{-500, -100, -20, -1, 0, 1, 20, 100, 500},
		}),
	}
	registry.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.checkouts,
		m.saleAmount,
		m.shiftsStarted,
		m.shiftsClosed,
		m.cashDifference,
	)
	m.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return m
}

// Handler serves the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware counts requests per matched gin route.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(c.Writer.Status())).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

// RegisterDBStats exports the connection pool stats of db under db_name.
func (m *Metrics) RegisterDBStats(db *sql.DB, name string) error {
	if m == nil {
		return nil
	}
	return m.registry.Register(collectors.NewDBStatsCollector(db, name))
}

func (m *Metrics) CheckoutCompleted(method string, net money.Cents) {
	m.checkouts.WithLabelValues("completed").Inc()
	m.saleAmount.WithLabelValues(method).Observe(major(net))
}

func (m *Metrics) CheckoutFailed(kind string) {
	m.checkouts.WithLabelValues(kind).Inc()
}

func (m *Metrics) ShiftStarted() { m.shiftsStarted.Inc() }

func (m *Metrics) ShiftClosed(difference money.Cents) {
	m.shiftsClosed.Inc()
	m.cashDifference.Observe(major(difference))
}

func major(c money.Cents) float64 { return float64(c) / 100 }
