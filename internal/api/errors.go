package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/parcelbay/locker-core/internal/auth"
	"github.com/parcelbay/locker-core/internal/delivery"
	"github.com/parcelbay/locker-core/internal/locker"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeNotFound     = "not_found"
	ErrCodeUnauthorized = "unauthorised"
	ErrCodeForbidden    = "forbidden"
	ErrCodeConflict     = "conflict"
	ErrCodeExpired      = "expired"
	ErrCodeInternal     = "internal_error"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeUnauthorized writes a 401 error response.
func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeDomainError maps domain sentinel errors onto HTTP responses.
// Anything unmapped is a 500 with a generic message; the original error is
// the caller's to log.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, delivery.ErrNoCapacity):
		writeError(w, http.StatusConflict, ErrCodeConflict, "no available compartment matches the request")
	case errors.Is(err, delivery.ErrExpired):
		// 400, not 410: expired credentials are a bad request against the
		// current state, matching the platform's established contract.
		writeError(w, http.StatusBadRequest, ErrCodeExpired, "the pickup window for this delivery has closed")
	case errors.Is(err, delivery.ErrNotFound):
		writeNotFound(w, "no active delivery matches the given credentials")
	case errors.Is(err, delivery.ErrInvalidPayload):
		writeBadRequest(w, "malformed pickup payload")
	case errors.Is(err, delivery.ErrInvalidRequest):
		writeBadRequest(w, err.Error())
	case errors.Is(err, auth.ErrForbidden):
		writeError(w, http.StatusForbidden, ErrCodeForbidden, "access to this resource is not permitted")
	case errors.Is(err, locker.ErrCabinetNotFound):
		writeNotFound(w, "cabinet not found")
	case errors.Is(err, locker.ErrCompartmentNotFound):
		writeNotFound(w, "compartment not found")
	case errors.Is(err, locker.ErrHardwareIDExists):
		writeError(w, http.StatusConflict, ErrCodeConflict, "a cabinet with this hardware id already exists")
	case errors.Is(err, locker.ErrOccupied):
		writeError(w, http.StatusConflict, ErrCodeConflict, "compartment holds a parcel and cannot change state")
	case errors.Is(err, locker.ErrConflict):
		writeError(w, http.StatusConflict, ErrCodeConflict, "compartment state changed concurrently, retry")
	case errors.Is(err, locker.ErrInvalidCabinet),
		errors.Is(err, locker.ErrInvalidCompartment),
		errors.Is(err, locker.ErrInvalidSize),
		errors.Is(err, locker.ErrInvalidStatus):
		writeBadRequest(w, err.Error())
	default:
		writeInternalError(w, "internal server error")
	}
}
