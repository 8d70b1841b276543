package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/veridia-ai/veridia-core/pkg/apperrors"
	"github.com/veridia-ai/veridia-core/pkg/guardrail"
)

// ErrorResponse writes a JSON error response and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(map[string]string{
		"error":   errorCode,
		"message": message,
	})
}

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

// writeError maps domain errors to HTTP responses. Error messages never
// carry secret material; rejection details are already sanitized upstream.
func writeError(w http.ResponseWriter, err error) {
	var rej *guardrail.RejectionError
	switch {
	case errors.As(err, &rej):
		_ = ErrorResponse(w, http.StatusUnprocessableEntity, string(rej.Reason), rej.Error())
	case errors.Is(err, apperrors.ErrNotFound):
		_ = ErrorResponse(w, http.StatusNotFound, "not_found", "resource not found")
	case errors.Is(err, apperrors.ErrConflict):
		_ = ErrorResponse(w, http.StatusConflict, "conflict", "resource already exists")
	case errors.Is(err, apperrors.ErrTenantInactive):
		_ = ErrorResponse(w, http.StatusForbidden, "tenant_inactive", "tenant is inactive")
	case errors.Is(err, apperrors.ErrTenantNotConfigured):
		_ = ErrorResponse(w, http.StatusPreconditionFailed, "tenant_not_configured", "tenant is not configured")
	case errors.Is(err, apperrors.ErrInvalidPolicy):
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_policy", err.Error())
	case errors.Is(err, apperrors.ErrInvalidCredential):
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_credential", "credential was rejected")
	case errors.Is(err, apperrors.ErrExecutionTimeout):
		_ = ErrorResponse(w, http.StatusGatewayTimeout, "execution_timeout", "query execution timed out")
	case errors.Is(err, apperrors.ErrNoRetrievalPathAvailable):
		_ = ErrorResponse(w, http.StatusBadGateway, "no_retrieval_path", "no retrieval path available")
	case errors.Is(err, apperrors.ErrRetrievalFailure):
		_ = ErrorResponse(w, http.StatusBadGateway, "retrieval_failure", "retrieval failed")
	default:
		_ = ErrorResponse(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}
