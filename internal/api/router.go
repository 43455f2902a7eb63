package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// healthCheckTimeout bounds each component check of the health endpoint.
const healthCheckTimeout = 2 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.withRequestID, s.withAccessLog, s.withRecovery, s.withCORS, s.withBodyLimit)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/system", s.handleSystem)
		if s.metrics != nil {
			r.Handle(s.metricsPath, s.metrics)
		}

		// Southbound batch intake
		r.Post("/updates", s.handlePushUpdates)

		r.Route("/providers", func(r chi.Router) {
			r.Get("/", s.handleListProviders)

			r.Route("/{provider}", func(r chi.Router) {
				r.Get("/", s.handleGetProvider)
				r.Delete("/", s.handleDeleteProvider)

				r.Route("/services/{service}", func(r chi.Router) {
					r.Get("/", s.handleDescribeService)

					r.Route("/resources/{resource}", func(r chi.Router) {
						r.Get("/", s.handleDescribeResource)
						r.Get("/value", s.handleGetValue)
						r.Put("/value", s.handleSetValue)
						r.Put("/metadata", s.handleSetMetadata)
						r.Get("/history", s.handleGetHistory)
					})
				})
			})
		})

		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// handleHealth returns the server health status. Components listed in
// Deps.Health are checked; any failure turns the status to "degraded".
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	components := make(map[string]string, len(s.health))
	for name, hc := range s.health {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := hc.HealthCheck(ctx)
		cancel()
		if err != nil {
			status = "degraded"
			components[name] = err.Error()
			continue
		}
		components[name] = "ok"
	}

	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":     status,
		"version":    s.version,
		"components": components,
	})
}
