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

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// Pickup endpoints are public: recipients authenticate with their
		// credentials (tracking number + code, or the scanned payload),
		// not with an account.
		r.Post("/deliveries/pickup", s.handlePickup)
		r.Post("/deliveries/pickup/qr", s.handlePickupQR)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Route("/deliveries", func(r chi.Router) {
				r.Get("/", s.handleListDeliveries)
				r.Post("/", s.handleCreateDelivery)
			})

			r.Route("/lockers", func(r chi.Router) {
				r.Get("/", s.handleListCabinets)
				r.Post("/", s.handleCreateCabinet)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetCabinet)
					r.Post("/compartments/{compartmentID}/control", s.handleControlCompartment)
					r.Put("/compartments/{compartmentID}/maintenance", s.handleSetMaintenance)
				})
			})

			// WebSocket delivery feed (token re-validated in handler since
			// browsers cannot set the Authorization header on upgrades)
			r.Get("/ws", s.handleWebSocket)
		})
	})

	return r
}

// handleHealth returns the server health status, including the hardware
// gateway's connection state so operators can see degraded mode at a glance.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	gatewayState := "disabled"
	if s.gateway != nil {
		gatewayState = s.gateway.State().String()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"gateway": gatewayState,
	})
}
