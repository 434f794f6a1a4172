package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// Health check (no auth required)
	r.Get("/health", s.handleHealth)

	// Fleet reads (no auth required, matching the device dashboard's access)
	r.Get("/rovers", s.handleListRovers)
	r.Get("/rovers/{id}", s.handleGetRover)
	r.Get("/garages", s.handleListGarages)
	r.Get("/garages/{id}", s.handleGetGarage)
	r.Get("/events", s.handleListEvents)

	// Command routes require an operator token
	r.Group(func(r chi.Router) {
		r.Use(s.operatorAuthMiddleware)

		r.Post("/rovers/connect", s.handleRoverConnect)
		r.Post("/garages/cmd", s.handleGarageCommand)
		r.Post("/garages/ping", s.handleGaragePing)
	})

	// Device transport (auth via device token, validated at admit)
	path := s.wsCfg.Path
	if path == "" {
		path = "/ws"
	}
	r.Get(path, s.handleDeviceSocket)

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
