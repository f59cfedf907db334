// Package httpapi assembles the public HTTP surface: feature handlers,
// the shared middleware chain and the operational endpoints.
package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"verigate/internal/platform/middleware"
	"verigate/pkg/platform/httputil"
)

// Registrar is implemented by feature handlers that attach their routes.
type Registrar interface {
	Register(r chi.Router)
}

// HealthChecker reports backend health for the readiness endpoint.
type HealthChecker func() error

// Deps carries everything the router needs.
type Deps struct {
	Logger   *slog.Logger
	Verifier middleware.AccessVerifier

	// Feature handlers in registration order.
	Handlers []Registrar

	// Optional backend health checks keyed by dependency name.
	Health map[string]HealthChecker
}

// NewRouter wires the middleware chain, the feature handlers and the
// operational endpoints into one chi router.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.ClientMetadata)

	for _, h := range deps.Handlers {
		h.Register(r)
	}

	r.Get("/healthz", handleHealth(deps.Health))
	r.Handle("/metrics", promhttp.Handler())

	return r
}

func handleHealth(checks map[string]HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		result := make(map[string]string, len(checks)+1)
		result["status"] = "ok"

		for name, check := range checks {
			if check == nil {
				continue
			}
			if err := check(); err != nil {
				status = http.StatusServiceUnavailable
				result["status"] = "degraded"
				result[name] = err.Error()
				continue
			}
			result[name] = "ok"
		}

		httputil.WriteJSON(w, status, result)
	}
}
