package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	cashdeskhttp "github.com/odyssey-erp/cashdesk/internal/cashdesk/http"
	"github.com/odyssey-erp/cashdesk/internal/observability"
	"github.com/odyssey-erp/cashdesk/internal/rbac"
	"github.com/odyssey-erp/cashdesk/internal/shared"
)

type noRoles struct{}

func (noRoles) RoleOf(context.Context, int64) (rbac.Role, error) {
	return "", shared.ErrNotFound
}

func newTestRouter(checks map[string]HealthCheck) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRouter(RouterParams{
		Logger:         logger,
		Config:         &Config{RateLimitPerMinute: 1000},
		Cashdesk:       cashdeskhttp.NewHandler(cashdeskhttp.Params{Logger: logger}),
		RBACMiddleware: rbac.Middleware{Roles: noRoles{}, Logger: logger},
		Metrics:        observability.NewMetrics(),
		Checks:         checks,
	})
}

func TestHealthAndReadiness(t *testing.T) {
	router := newTestRouter(map[string]HealthCheck{
		"postgres": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return errors.New("dial tcp: refused") },
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.JSONEq(t, `{"postgres":"ok","redis":"dial tcp: refused"}`, rec.Body.String())
}

func TestCashdeskRoutesRequireActor(t *testing.T) {
	router := newTestRouter(nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/branches/1/balance", nil))
	require.Equal(t, http.StatusForbidden, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/balances", nil)
	req.Header.Set(rbac.UserHeader, "5")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestMetricsEndpointIsMounted(t *testing.T) {
	router := newTestRouter(nil)
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `cashdesk_http_requests_total{code="200",method="GET",route="/healthz"} 1`)
}
