package apperrors

import "errors"

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")

	// ErrTenantNotConfigured indicates the tenant has no database policy or
	// model configuration for the requested capability.
	ErrTenantNotConfigured = errors.New("tenant not configured")

	// ErrTenantInactive indicates a deactivated tenant attempted a query.
	ErrTenantInactive = errors.New("tenant is inactive")

	// ErrInvalidPolicy indicates a database policy failed structural
	// validation and was not stored.
	ErrInvalidPolicy = errors.New("invalid policy")

	// ErrInvalidCredential indicates a stored credential could not be
	// decrypted or was rejected by the upstream provider. Never retried.
	ErrInvalidCredential = errors.New("invalid credential")

	// ErrExecutionTimeout indicates tenant SQL execution exceeded the
	// policy timeout. Treated as a recoverable retrieval failure.
	ErrExecutionTimeout = errors.New("execution timeout")

	// ErrRetrievalFailure indicates a retrieval path (vector or SQL) failed.
	ErrRetrievalFailure = errors.New("retrieval failure")

	// ErrNoRetrievalPathAvailable indicates no viable retrieval path exists
	// for the request (no policy, no document index, or both paths down).
	ErrNoRetrievalPathAvailable = errors.New("no retrieval path available")

	// ErrCredentialsKeyMismatch indicates records were encrypted with a
	// different master key than the one the vault is running with.
	ErrCredentialsKeyMismatch = errors.New("credentials were encrypted with a different key")
)
