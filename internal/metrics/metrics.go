package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/homeledger/memberships/internal/membership"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

// Result label values for OperationsTotal.
const (
	ResultOK           = "ok"
	ResultValidation   = "validation_error"
	ResultNotFound     = "not_found"
	ResultInvalidState = "invalid_state"
	ResultConflict     = "conflict"
	ResultError        = "error"
)

// Metrics holds the service's Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	OperationsTotal     *prometheus.CounterVec
	QuotaExhaustedTotal prometheus.Counter
	SavingsTotal        prometheus.Counter

	SweeperTransitionsTotal *prometheus.CounterVec
	SweeperRunDuration      prometheus.Histogram
}

// New creates the collectors and registers them on registry.
func New(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		registry: registry,
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "memberships_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "memberships_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		OperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "memberships_operations_total",
				Help: "Membership operations by outcome",
			},
			[]string{"operation", "result"},
		),
		QuotaExhaustedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "memberships_quota_exhausted_total",
				Help: "Service usage attempts refused because the quota was used up",
			},
		),
		SavingsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "memberships_savings_total",
				Help: "Sum of discounts and waived fees granted",
			},
		),
		SweeperTransitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "memberships_sweeper_transitions_total",
				Help: "Memberships changed by the sweeper, by kind",
			},
			[]string{"kind"},
		),
		SweeperRunDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "memberships_sweeper_run_duration_seconds",
				Help:    "Duration of one sweeper pass",
				Buckets: prometheus.DefBuckets,
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.OperationsTotal,
		m.QuotaExhaustedTotal,
		m.SavingsTotal,
		m.SweeperTransitionsTotal,
		m.SweeperRunDuration,
	)
	return m
}

// ObserveOperation counts one membership operation by result.
func (m *Metrics) ObserveOperation(operation string, err error) {
	m.OperationsTotal.WithLabelValues(operation, resultLabel(err)).Inc()
}

// ObserveQuotaExhausted counts a refused service usage.
func (m *Metrics) ObserveQuotaExhausted() {
	m.QuotaExhaustedTotal.Inc()
}

// ObserveSavings adds granted savings.
func (m *Metrics) ObserveSavings(amount decimal.Decimal) {
	if !amount.IsPositive() {
		return
	}
	m.SavingsTotal.Add(amount.InexactFloat64())
}

// ObserveSweep records one sweeper pass.
func (m *Metrics) ObserveSweep(expired, renewed, reminded int, took time.Duration) {
	m.SweeperTransitionsTotal.WithLabelValues("expired").Add(float64(expired))
	m.SweeperTransitionsTotal.WithLabelValues("renewed").Add(float64(renewed))
	m.SweeperTransitionsTotal.WithLabelValues("reminded").Add(float64(reminded))
	m.SweeperRunDuration.Observe(took.Seconds())
}

// Middleware records request counts and latency by matched route.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		m.HTTPRequestsTotal.WithLabelValues(c.Request.Method, route, status).Inc()
		m.HTTPRequestDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return ResultOK
	case errors.Is(err, membership.ErrValidation):
		return ResultValidation
	case errors.Is(err, membership.ErrNotFound):
		return ResultNotFound
	case errors.Is(err, membership.ErrInvalidState):
		return ResultInvalidState
	case errors.Is(err, membership.ErrConflict):
		return ResultConflict
	default:
		return ResultError
	}
}

var _ membership.Recorder = (*Metrics)(nil)
