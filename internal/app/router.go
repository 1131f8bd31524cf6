package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	cashdeskhttp "github.com/odyssey-erp/cashdesk/internal/cashdesk/http"
	"github.com/odyssey-erp/cashdesk/internal/observability"
	"github.com/odyssey-erp/cashdesk/internal/platform/httpx"
	"github.com/odyssey-erp/cashdesk/internal/rbac"
	"github.com/odyssey-erp/cashdesk/jobs"
)

// HealthCheck probes a dependency.
type HealthCheck func(ctx context.Context) error

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	Cashdesk       *cashdeskhttp.Handler
	RBACMiddleware rbac.Middleware
	JobHandler     *jobs.Handler
	Metrics        *observability.Metrics
	// Checks are probed by /readyz, keyed by dependency name.
	Checks map[string]HealthCheck
}

// NewRouter constructs the chi.Router with cash desk defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", readiness(params.Checks))

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Cashdesk != nil {
		r.Group(func(r chi.Router) {
			r.Use(params.RBACMiddleware.Actor)
			params.Cashdesk.MountRoutes(r)
		})
	}
	return r
}

func readiness(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		status := http.StatusOK
		out := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				out[name] = err.Error()
				continue
			}
			out[name] = "ok"
		}
		httpx.JSON(w, status, out)
	}
}
