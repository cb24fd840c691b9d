package httpserver

import (
	"errors"
	"net/http"

	json "github.com/goccy/go-json"
	"github.com/mselser95/reservation-escrow/internal/escrow"
	"go.uber.org/zap"
)

// statusFor maps an escrow rejection kind to an HTTP status.
func statusFor(kind escrow.Kind) int {
	switch kind {
	case escrow.KindValidation:
		return http.StatusBadRequest
	case escrow.KindProof:
		return http.StatusUnprocessableEntity
	case escrow.KindState:
		return http.StatusConflict
	case escrow.KindFunds:
		return http.StatusPaymentRequired
	case escrow.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// writeEscrowError writes err with the status of its kind.
func (h *APIHandler) writeEscrowError(w http.ResponseWriter, err error) {
	var ee *escrow.Error
	if !errors.As(err, &ee) {
		h.logger.Error("unexpected-handler-error", zap.Error(err))
		h.writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
		return
	}
	h.writeJSON(w, statusFor(ee.Kind), ErrorResponse{
		Error:    ee.Error(),
		Kind:     string(ee.Kind),
		Code:     string(ee.Code),
		EntityID: ee.EntityID,
	})
}

// writeError writes a JSON error response for malformed requests.
func (h *APIHandler) writeError(w http.ResponseWriter, message string, statusCode int) {
	h.writeJSON(w, statusCode, ErrorResponse{Error: message, Code: "BAD_REQUEST"})
}

// writeAuthError rejects a request whose acting account could not be
// established.
func (h *APIHandler) writeAuthError(w http.ResponseWriter, message string) {
	h.writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: message, Code: "UNAUTHENTICATED"})
}

func (h *APIHandler) writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		h.logger.Error("failed-to-encode-response", zap.Error(err))
	}
}
