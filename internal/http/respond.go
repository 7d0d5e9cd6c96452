package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fjod/go_loyalty/internal/domain"
	"go.uber.org/zap"
)

const maxRequestBodySize = 1 << 20

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zap.L().Warn("failed to encode response", zap.Error(err))
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return false
	}
	return true
}

var errorMapping = []struct {
	err    error
	status int
	code   string
}{
	{domain.ErrInvalidAmount, http.StatusBadRequest, "invalid_amount"},
	{domain.ErrInvalidCode, http.StatusBadRequest, "invalid_code"},
	{domain.ErrEmptyCart, http.StatusBadRequest, "empty_cart"},
	{domain.ErrMissingDeliverySlot, http.StatusBadRequest, "missing_delivery_slot"},
	{domain.ErrInvalidPaymentMethod, http.StatusBadRequest, "invalid_payment_method"},
	{domain.ErrInvalidCustomer, http.StatusBadRequest, "invalid_customer"},
	{domain.ErrUnauthenticated, http.StatusUnauthorized, "unauthenticated"},
	{domain.ErrForbidden, http.StatusForbidden, "forbidden"},
	{domain.ErrNotFound, http.StatusNotFound, "not_found"},
	{domain.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
	{domain.ErrSelectionLocked, http.StatusConflict, "selection_locked"},
	{domain.ErrSelectionNotConfirmed, http.StatusConflict, "selection_not_confirmed"},
	{domain.ErrInsufficientBalance, http.StatusUnprocessableEntity, "insufficient_balance"},
	{domain.ErrExpiredInstrument, http.StatusUnprocessableEntity, "expired_instrument"},
}

// handleServiceError maps domain error kinds to HTTP statuses. Anything
// unknown is logged and reported as an internal error.
func handleServiceError(w http.ResponseWriter, r *http.Request, log *zap.Logger, err error) {
	for _, m := range errorMapping {
		if errors.Is(err, m.err) {
			respondError(w, m.status, m.code, err.Error())
			return
		}
	}
	requestLogger(r, log).Error("request failed", zap.Error(err))
	respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
}
