package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/pcforge/storefront/internal/auth"
	"github.com/pcforge/storefront/internal/cartrepo"
	"github.com/pcforge/storefront/internal/reconcile"
	"github.com/pcforge/storefront/internal/repository"
	"github.com/pcforge/storefront/internal/service"
)

type ErrorResponse struct {
	Error   string            `json:"error"`
	Code    string            `json:"code,omitempty"`
	Details string            `json:"details,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// decodeJSON reads a JSON body into dst. Unknown fields are ignored so
// clients may send more than the server reads, e.g. prices.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, "body_too_large", "request body too large")
			return false
		}
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return false
	}
	return true
}

// handleServiceError maps domain errors onto HTTP statuses.
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *service.ValidationError
	if errors.As(err, &verr) {
		respondJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:  "validation failed",
			Code:   "validation_failed",
			Fields: verr.Fields,
		})
		return
	}

	var (
		status int
		code   string
	)
	switch {
	case errors.Is(err, service.ErrUnauthenticated), errors.Is(err, reconcile.ErrNoSession):
		status, code = http.StatusUnauthorized, "no_session"
	case errors.Is(err, auth.ErrInvalidCredentials):
		status, code = http.StatusUnauthorized, "invalid_credentials"
	case errors.Is(err, service.ErrForbidden):
		status, code = http.StatusForbidden, "forbidden"
	case errors.Is(err, auth.ErrAdminDisabled):
		status, code = http.StatusForbidden, "admin_disabled"
	case errors.Is(err, repository.ErrProductNotFound),
		errors.Is(err, repository.ErrOrderNotFound),
		errors.Is(err, repository.ErrBuildNotFound),
		errors.Is(err, repository.ErrTagNotFound),
		errors.Is(err, repository.ErrUserNotFound),
		errors.Is(err, cartrepo.ErrItemNotFound),
		errors.Is(err, cartrepo.ErrCartNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, repository.ErrConflict):
		status, code = http.StatusConflict, "already_exists"
	case errors.Is(err, service.ErrOrderClosed):
		status, code = http.StatusConflict, "order_closed"
	case errors.Is(err, service.ErrSignatureMismatch):
		status, code = http.StatusBadRequest, "signature_mismatch"
	case errors.Is(err, service.ErrEmptyCart):
		status, code = http.StatusBadRequest, "empty_cart"
	case errors.Is(err, auth.ErrInvalidCode), errors.Is(err, auth.ErrCodeExpired):
		status, code = http.StatusBadRequest, "invalid_code"
	case errors.Is(err, auth.ErrTooManyRequests):
		status, code = http.StatusTooManyRequests, "rate_limit_exceeded"
	case errors.Is(err, service.ErrPaymentGateway):
		status, code = http.StatusBadGateway, "payment_gateway_error"
	case errors.Is(err, context.DeadlineExceeded):
		status, code = http.StatusGatewayTimeout, "timeout"
	default:
		slog.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}

	if status >= http.StatusInternalServerError || errors.Is(err, service.ErrSignatureMismatch) {
		slog.WarnContext(r.Context(), "request rejected", "path", r.URL.Path, "code", code, "error", err)
	}
	respondError(w, status, code, userMessage(err))
}

// userMessage strips wrapped internals from gateway errors.
func userMessage(err error) string {
	if errors.Is(err, service.ErrPaymentGateway) {
		return service.ErrPaymentGateway.Error()
	}
	return err.Error()
}
