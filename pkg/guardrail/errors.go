package guardrail

import "fmt"

// Reason is a stable category for why a statement was rejected. Reasons are
// safe to return to callers and to record in the audit trail; they never
// carry parser internals or literal values.
type Reason string

const (
	ReasonSyntaxError        Reason = "syntax_error"
	ReasonForbiddenStatement Reason = "forbidden_statement"
	ReasonUnauthorizedTable  Reason = "unauthorized_table"
	ReasonUnauthorizedColumn Reason = "unauthorized_column"
	ReasonInjectionDetected  Reason = "injection_detected"
)

// RejectionError reports a statement the validator refused. Validation
// failures are terminal: callers must not retry them.
type RejectionError struct {
	Reason Reason
	// Detail names the offending object (a table or column name) or is
	// empty when naming it would leak statement content.
	Detail string
	// Fingerprint is set only for injection rejections.
	Fingerprint string
}

func (e *RejectionError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("statement rejected (%s): %s", e.Reason, e.Detail)
	}
	return fmt.Sprintf("statement rejected (%s)", e.Reason)
}

// IsRetryable marks rejections as permanent for the retry layer.
func (e *RejectionError) IsRetryable() bool { return false }

func reject(reason Reason, detail string) *RejectionError {
	return &RejectionError{Reason: reason, Detail: detail}
}
