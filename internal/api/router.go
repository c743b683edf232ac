package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// healthCheckTimeout bounds each component check in the health endpoint.
const healthCheckTimeout = 2 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.metricsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Handle("/metrics", s.metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Route("/outlet", func(r chi.Router) {
			r.Use(s.requireOutlet)
			r.Get("/", s.handleGetOutlet)
			r.Post("/on", s.handleOutletOn)
			r.Post("/off", s.handleOutletOff)
			r.Get("/power", s.handleOutletPower)
		})

		r.With(s.requireTherm).Get("/therm", s.handleGetTherm)
		r.Get("/home", s.handleGetHome)
		r.Get("/events", s.handleListEvents)

		// Live readings and outlet state changes
		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// ComponentHealth is one entry of the health response.
type ComponentHealth struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// handleHealth reports the server status and the health of each configured
// infrastructure component. Any failing component makes the response 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	components := make(map[string]ComponentHealth, len(s.checks))
	healthy := true

	for name, check := range s.checks {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := check.HealthCheck(ctx)
		cancel()
		if err != nil {
			healthy = false
			components[name] = ComponentHealth{Status: "error", Error: err.Error()}
			continue
		}
		components[name] = ComponentHealth{Status: "ok"}
	}

	resp := map[string]any{
		"status":         "ok",
		"version":        s.version,
		"uptime_seconds": int64(time.Since(s.startTime).Seconds()),
		"components":     components,
	}
	if s.outlet != nil {
		resp["outlet_connected"] = s.outlet.IsConnected()
	}
	if s.therm != nil {
		_, err := s.therm.Temperature()
		resp["therm_fresh"] = err == nil
	}

	status := http.StatusOK
	if !healthy {
		resp["status"] = "degraded"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
