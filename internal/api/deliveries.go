package api

import (
	"encoding/json"
	"net/http"

	"github.com/parcelbay/locker-core/internal/delivery"
)

// handleCreateDelivery drops a package off: allocates a compartment, issues
// pickup credentials, and returns them once.
//
// POST /api/v1/deliveries
func (s *Server) handleCreateDelivery(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		writeUnauthorized(w, "authorization required")
		return
	}

	var req delivery.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	result, err := s.manager.CreateDelivery(r.Context(), req, actor)
	if err != nil {
		s.logger.Warn("delivery creation failed", "error", err, "actor", actor.ID)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

// pickupRequest is the manual pickup input: credentials typed into a
// cabinet kiosk or the recipient's phone.
type pickupRequest struct {
	TrackingNumber string `json:"tracking_number"`
	PickupCode     string `json:"pickup_code"`
}

// handlePickup completes a pickup using typed credentials.
//
// POST /api/v1/deliveries/pickup (public)
func (s *Server) handlePickup(w http.ResponseWriter, r *http.Request) {
	var req pickupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.TrackingNumber == "" || req.PickupCode == "" {
		writeBadRequest(w, "tracking_number and pickup_code are required")
		return
	}

	result, err := s.manager.Pickup(r.Context(), req.TrackingNumber, req.PickupCode)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// qrPickupRequest carries the scanned credential payload as-is.
type qrPickupRequest struct {
	Payload string `json:"payload"`
}

// handlePickupQR completes a pickup from a scanned credential payload.
//
// POST /api/v1/deliveries/pickup/qr (public)
func (s *Server) handlePickupQR(w http.ResponseWriter, r *http.Request) {
	var req qrPickupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Payload == "" {
		writeBadRequest(w, "payload is required")
		return
	}

	result, err := s.manager.PickupByPayload(r.Context(), req.Payload)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleListDeliveries returns deliveries visible to the caller, newest
// first, optionally filtered by status.
//
// GET /api/v1/deliveries?status=delivered
func (s *Server) handleListDeliveries(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		writeUnauthorized(w, "authorization required")
		return
	}

	status := delivery.Status(r.URL.Query().Get("status"))
	deliveries, err := s.manager.ListDeliveries(r.Context(), actor, status)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"deliveries": deliveries,
		"count":      len(deliveries),
	})
}
