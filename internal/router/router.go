// Package router assembles the HTTP surface: public verification routes,
// authenticated certificate operations, and the operational endpoints.
package router

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	certhandler "brgycert/internal/certificate/handler"
	"brgycert/internal/platform/middleware"
	"brgycert/internal/signature"
	"brgycert/internal/template"
	"brgycert/internal/verify"
	"brgycert/pkg/httpjson"
)

// HealthCheck probes one dependency. Failures mark the service unhealthy
// without naming internals in the response body.
type HealthCheck func(ctx context.Context) error

// Deps carries everything the router mounts.
type Deps struct {
	Logger       *slog.Logger
	Validator    middleware.Validator
	Certificates *certhandler.Handler
	Templates    *template.Handler
	Signatures   *signature.Handler
	Verify       *verify.Handler
	HealthChecks map[string]HealthCheck
}

// New builds the top-level handler.
func New(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.Logger(deps.Logger))

	r.Get("/healthz", healthHandler(deps.Logger, deps.HealthChecks))
	r.Handle("/metrics", promhttp.Handler())

	// Public: the QR token is the credential.
	r.Mount("/verify", deps.Verify.Routes())

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(deps.Validator, deps.Logger))
		r.Mount("/certificates", deps.Certificates.Routes())
		r.Mount("/templates", deps.Templates.Routes())
		r.Mount("/signatures", deps.Signatures.Routes())
	})

	return r
}

func healthHandler(logger *slog.Logger, checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		healthy := true
		for name, check := range checks {
			if err := check(ctx); err != nil {
				logger.WarnContext(ctx, "health check failed", "check", name, "error", err)
				healthy = false
			}
		}
		if !healthy {
			httpjson.Write(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
			return
		}
		httpjson.Write(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
