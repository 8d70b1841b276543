package llm

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType classifies a provider failure.
type ErrorType string

const (
	ErrTypeInvalidKey  ErrorType = "invalid_key"
	ErrTypeRateLimited ErrorType = "rate_limited"
	ErrTypeTimeout     ErrorType = "timeout"
	ErrTypeUnavailable ErrorType = "unavailable"
	ErrTypeBadRequest  ErrorType = "bad_request"
	ErrTypeUnknown     ErrorType = "unknown"
)

// Error represents a structured provider error with classification. Invalid
// key errors are never retryable; retrying cannot fix a bad credential.
type Error struct {
	Type       ErrorType
	Message    string
	Retryable  bool
	Cause      error
	StatusCode int
	Provider   string
}

// Error implements the error interface. Messages never include key material;
// providers echo only status information.
func (e *Error) Error() string {
	var parts []string
	parts = append(parts, string(e.Type))
	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("HTTP %d", e.StatusCode))
	}
	if e.Provider != "" {
		parts = append(parts, fmt.Sprintf("provider=%s", e.Provider))
	}
	parts = append(parts, e.Message)

	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", strings.Join(parts, " "), e.Cause)
	}
	return strings.Join(parts, " ")
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// IsRetryable implements the retry.RetryableError interface.
func (e *Error) IsRetryable() bool {
	return e.Retryable
}

// NewError creates a new structured provider error.
func NewError(errType ErrorType, message string, retryable bool, cause error) *Error {
	return &Error{
		Type:      errType,
		Message:   message,
		Retryable: retryable,
		Cause:     cause,
	}
}

// ClassifyError categorizes an error into a structured Error. Errors that
// are already classified pass through unchanged.
func ClassifyError(err error) *Error {
	if err == nil {
		return nil
	}

	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr
	}

	errStr := err.Error()
	lower := strings.ToLower(errStr)

	statusCode := 0
	for _, code := range []int{400, 401, 403, 404, 429, 500, 502, 503, 504} {
		if strings.Contains(errStr, fmt.Sprintf("%d", code)) {
			statusCode = code
			break
		}
	}

	switch {
	case strings.Contains(errStr, "401") || strings.Contains(lower, "unauthorized") ||
		strings.Contains(lower, "invalid api key") || strings.Contains(lower, "authentication"):
		return &Error{Type: ErrTypeInvalidKey, Message: "authentication failed", Retryable: false, Cause: err, StatusCode: statusCode}
	case strings.Contains(errStr, "429") || strings.Contains(lower, "rate limit") ||
		strings.Contains(lower, "too many requests"):
		return &Error{Type: ErrTypeRateLimited, Message: "rate limited", Retryable: true, Cause: err, StatusCode: statusCode}
	case strings.Contains(lower, "timeout") || strings.Contains(lower, "timed out") ||
		strings.Contains(lower, "deadline exceeded"):
		return &Error{Type: ErrTypeTimeout, Message: "request timed out", Retryable: true, Cause: err, StatusCode: statusCode}
	case strings.Contains(errStr, "500") || strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") || strings.Contains(errStr, "504") ||
		strings.Contains(lower, "service unavailable") || strings.Contains(lower, "connection refused"):
		return &Error{Type: ErrTypeUnavailable, Message: "provider unavailable", Retryable: true, Cause: err, StatusCode: statusCode}
	case strings.Contains(errStr, "400") || strings.Contains(lower, "invalid request"):
		return &Error{Type: ErrTypeBadRequest, Message: "invalid request", Retryable: false, Cause: err, StatusCode: statusCode}
	default:
		return &Error{Type: ErrTypeUnknown, Message: "provider request failed", Retryable: false, Cause: err, StatusCode: statusCode}
	}
}
