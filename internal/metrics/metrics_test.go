package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/homeledger/memberships/internal/membership"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveOperation_LabelsByErrorKind(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveOperation("apply_discount", nil)
	m.ObserveOperation("apply_discount", fmt.Errorf("%w: closed", membership.ErrInvalidState))
	m.ObserveOperation("apply_discount", errors.New("db down"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.OperationsTotal.WithLabelValues("apply_discount", ResultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OperationsTotal.WithLabelValues("apply_discount", ResultInvalidState)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OperationsTotal.WithLabelValues("apply_discount", ResultError)))
}

func TestObserveSavingsAndSweep(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveSavings(decimal.RequireFromString("30"))
	m.ObserveSavings(decimal.RequireFromString("12.5"))
	m.ObserveSavings(decimal.Zero)
	m.ObserveQuotaExhausted()
	m.ObserveSweep(2, 1, 3, 50*time.Millisecond)

	assert.InDelta(t, 42.5, testutil.ToFloat64(m.SavingsTotal), 0.0001)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.QuotaExhaustedTotal))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SweeperTransitionsTotal.WithLabelValues("expired")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.SweeperTransitionsTotal.WithLabelValues("reminded")))
}

func TestMiddlewareAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := New(prometheus.NewRegistry())

	r := gin.New()
	r.Use(m.Middleware())
	r.GET("/v1/plans/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.GET("/metrics", gin.WrapH(m.Handler()))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/plans/abc", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/v1/plans/:id", "204")))

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "memberships_http_requests_total"))
}
