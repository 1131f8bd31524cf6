package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/cashdesk/internal/ledger"
	"github.com/odyssey-erp/cashdesk/internal/shared"
)

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/branches/{branchID}/balance")
	req := httptest.NewRequest(http.MethodGet, "/branches/1/balance", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusTeapot, rr.Code)

	metricsRR := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(metricsRR, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := metricsRR.Body.String()
	require.Contains(t, body, `cashdesk_http_requests_total{code="418",method="GET",route="/branches/{branchID}/balance"} 1`)
	require.Contains(t, body, "cashdesk_http_requests_in_flight 0")
	require.True(t, strings.Contains(body, "go_goroutines"))
}

func TestMetricsUnroutedAndNil(t *testing.T) {
	metrics := NewMetrics()
	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/nowhere", nil))

	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Contains(t, rec.Body.String(), `cashdesk_http_requests_total{code="200",method="POST",route="unmatched"} 1`)

	var none *Metrics
	rec = httptest.NewRecorder()
	none.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestLedgerMetricsOutcomes(t *testing.T) {
	metrics := NewMetrics()
	lm := NewLedgerMetrics(metrics.Registerer())

	lm.ObserveWrite("transfer.create", nil)
	lm.ObserveWrite("transfer.create", fmt.Errorf("x: %w", shared.ErrInsufficientFunds))
	lm.ObserveWrite("transfer.create", errors.New("boom"))
	lm.IntegrityWarning(4, ledger.BucketOpEx)
	lm.IntegrityWarning(4, ledger.BucketOpEx)

	require.Equal(t, 1.0, testutil.ToFloat64(lm.writes.WithLabelValues("transfer.create", "ok")))
	require.Equal(t, 1.0, testutil.ToFloat64(lm.writes.WithLabelValues("transfer.create", "insufficient_funds")))
	require.Equal(t, 1.0, testutil.ToFloat64(lm.writes.WithLabelValues("transfer.create", "error")))
	require.Equal(t, 2.0, testutil.ToFloat64(lm.integrity.WithLabelValues("4", "OPEX")))

	var nilMetrics *LedgerMetrics
	nilMetrics.ObserveWrite("noop", nil)
}
