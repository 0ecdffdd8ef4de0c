package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"textile-inventory-ledger/internal/core"
)

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

// writeError writes a structured JSON error response.
func writeError(w http.ResponseWriter, r *http.Request, message, code string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	resp := errorResponse{
		Error:     message,
		Code:      code,
		RequestID: requestIDFromContext(r.Context()),
	}
	_ = json.NewEncoder(w).Encode(resp)
}

// writeJSON writes a JSON response with status 200.
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// writeCoreError maps the core error taxonomy (spec §7) onto HTTP status
// codes and machine-readable codes. Callers should not need to inspect
// strings (spec §9, "Error-via-dict-return" — replaced by a sum type here).
func writeCoreError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validation   *core.ValidationError
		lifecycle    *core.LifecycleError
		insufficient *core.InsufficientStockError
		uniqueness   *core.UniquenessConflictError
		timeout      *core.TimeoutError
	)
	switch {
	case errors.As(err, &validation):
		writeError(w, r, err.Error(), "INPUT_VALIDATION", http.StatusBadRequest)
	case errors.As(err, &lifecycle):
		writeError(w, r, err.Error(), "LIFECYCLE_VIOLATION", http.StatusConflict)
	case errors.As(err, &insufficient):
		writeError(w, r, err.Error(), "INSUFFICIENT_STOCK", http.StatusConflict)
	case errors.As(err, &uniqueness):
		writeError(w, r, err.Error(), "UNIQUENESS_CONFLICT", http.StatusConflict)
	case errors.As(err, &timeout):
		writeError(w, r, err.Error(), "TIMEOUT", http.StatusGatewayTimeout)
	case errors.Is(err, core.ErrNothingToRelease):
		writeError(w, r, err.Error(), "NOTHING_TO_RELEASE", http.StatusOK)
	default:
		writeError(w, r, "internal server error", "INTERNAL_ERROR", http.StatusInternalServerError)
	}
}

// notImplemented is a stub handler that returns HTTP 501 JSON, kept for
// routes this transport layer deliberately does not surface (spec §1 marks
// master-data CRUD and dashboard aggregates out of the core's scope).
func notImplemented(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, "not implemented", "NOT_IMPLEMENTED", http.StatusNotImplemented)
}
