package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/parcelbay/locker-core/internal/auth"
	"github.com/parcelbay/locker-core/internal/delivery"
	"github.com/parcelbay/locker-core/internal/locker"
)

// handleListCabinets returns cabinets visible to the caller with occupancy
// counts for dashboard views.
//
// GET /api/v1/lockers
func (s *Server) handleListCabinets(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		writeUnauthorized(w, "authorization required")
		return
	}

	scope := actor.CompanyID
	if actor.IsPlatformOperator() {
		scope = ""
	}

	cabinets, err := s.registry.ListCabinets(r.Context(), scope)
	if err != nil {
		s.logger.Error("listing cabinets failed", "error", err)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"cabinets": cabinets,
		"count":    len(cabinets),
	})
}

// createCabinetRequest is the cabinet provisioning input. The distribution
// is fanned out into numbered compartments with sequential pins.
type createCabinetRequest struct {
	Name         string                  `json:"name"`
	CompanyID    string                  `json:"company_id,omitempty"`
	Location     string                  `json:"location"`
	HardwareID   string                  `json:"hardware_id"`
	Distribution locker.SizeDistribution `json:"distribution"`
	BasePin      int                     `json:"base_pin,omitempty"`
}

// handleCreateCabinet provisions a cabinet and its compartments in one step.
// Admin and platform operator only; couriers never manage hardware.
//
// POST /api/v1/lockers
func (s *Server) handleCreateCabinet(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		writeUnauthorized(w, "authorization required")
		return
	}
	if actor.Role == auth.RoleCourier {
		writeDomainError(w, auth.ErrForbidden)
		return
	}

	var req createCabinetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	companyID := actor.CompanyID
	if actor.IsPlatformOperator() {
		companyID = req.CompanyID
	}
	if companyID == "" {
		writeBadRequest(w, "company_id is required")
		return
	}

	cabinet := &locker.Cabinet{
		Name:       req.Name,
		CompanyID:  companyID,
		Location:   req.Location,
		HardwareID: req.HardwareID,
	}
	if err := locker.ValidateCabinet(cabinet); err != nil {
		writeDomainError(w, err)
		return
	}
	if err := locker.ValidateDistribution(req.Distribution); err != nil {
		writeDomainError(w, err)
		return
	}

	basePin := req.BasePin
	if basePin <= 0 {
		basePin = 1
	}

	if err := s.registry.CreateCabinet(r.Context(), cabinet, req.Distribution.FanOut(basePin)); err != nil {
		s.logger.Warn("cabinet provisioning failed",
			"hardware_id", req.HardwareID,
			"error", err,
		)
		writeDomainError(w, err)
		return
	}

	s.logger.Info("cabinet provisioned",
		"cabinet_id", cabinet.ID,
		"hardware_id", cabinet.HardwareID,
		"compartments", req.Distribution.Total(),
		"actor", actor.ID,
	)
	writeJSON(w, http.StatusCreated, cabinet)
}

// handleGetCabinet returns one cabinet with its compartments.
//
// GET /api/v1/lockers/{id}
func (s *Server) handleGetCabinet(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		writeUnauthorized(w, "authorization required")
		return
	}

	id := chi.URLParam(r, "id")
	cabinet, err := s.registry.GetCabinet(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if !actor.CanAccessCompany(cabinet.CompanyID) {
		// Cross-company reads answer as not found, not forbidden, to avoid
		// confirming the cabinet exists.
		writeNotFound(w, "cabinet not found")
		return
	}

	compartments, err := s.registry.ListCompartments(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"cabinet":      cabinet,
		"compartments": compartments,
	})
}

// controlRequest carries the hardware action for a compartment.
type controlRequest struct {
	Action string `json:"action"`
}

// handleControlCompartment dispatches an open/close command to a
// compartment independent of any delivery. Audited.
//
// POST /api/v1/lockers/{id}/compartments/{compartmentID}/control
func (s *Server) handleControlCompartment(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		writeUnauthorized(w, "authorization required")
		return
	}

	var req controlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	cabinetID := chi.URLParam(r, "id")
	compartmentID := chi.URLParam(r, "compartmentID")

	result, err := s.manager.ControlCompartment(r.Context(), cabinetID, compartmentID, delivery.Action(req.Action), actor)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"dispatch": result,
	})
}

// maintenanceRequest toggles a compartment's maintenance state.
type maintenanceRequest struct {
	Enabled bool `json:"enabled"`
}

// handleSetMaintenance takes a compartment out of (or back into) service.
// Admin and platform operator only.
//
// PUT /api/v1/lockers/{id}/compartments/{compartmentID}/maintenance
func (s *Server) handleSetMaintenance(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		writeUnauthorized(w, "authorization required")
		return
	}
	if actor.Role == auth.RoleCourier {
		writeDomainError(w, auth.ErrForbidden)
		return
	}

	var req maintenanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	cabinetID := chi.URLParam(r, "id")
	compartmentID := chi.URLParam(r, "compartmentID")

	cabinet, err := s.registry.GetCabinet(r.Context(), cabinetID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if !actor.CanAccessCompany(cabinet.CompanyID) {
		writeNotFound(w, "cabinet not found")
		return
	}

	compartment, err := s.registry.GetCompartment(r.Context(), compartmentID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if compartment.CabinetID != cabinetID {
		writeNotFound(w, "compartment not found")
		return
	}

	if req.Enabled {
		err = s.registry.SetMaintenance(r.Context(), compartmentID)
	} else {
		err = s.registry.ClearMaintenance(r.Context(), compartmentID)
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}

	s.logger.Info("compartment maintenance changed",
		"cabinet_id", cabinetID,
		"compartment_id", compartmentID,
		"enabled", req.Enabled,
		"actor", actor.ID,
	)
	writeJSON(w, http.StatusOK, map[string]any{
		"compartment_id": compartmentID,
		"maintenance":    req.Enabled,
	})
}
