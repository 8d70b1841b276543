// Package logging provides redaction helpers applied to anything that might
// carry secret material (connection strings, provider errors, SQL text)
// before it reaches a log line or an error surfaced to a caller.
package logging

import (
	"regexp"
)

const (
	// MaxQueryLogLength bounds SQL text in log lines.
	MaxQueryLogLength = 200
	// RedactedText replaces secret material.
	RedactedText = "[REDACTED]"
)

var (
	// password=..., pwd=..., pass=... in key=value connection strings
	passwordPattern = regexp.MustCompile(`(?i)(password|pwd|pass)=[^;&\s]+`)

	// Bearer tokens leaking through provider error bodies
	bearerPattern = regexp.MustCompile(`Bearer\s+[A-Za-z0-9-_.]+`)

	// api_key=... style parameters
	apiKeyPattern = regexp.MustCompile(`(?i)(api[_-]?key|apikey|key)=[A-Za-z0-9-_]{8,}`)

	// provider secret key shapes (sk-..., sk-ant-...)
	secretKeyPattern = regexp.MustCompile(`\bsk-[A-Za-z0-9-_]{8,}`)

	// user:pass@host URL credentials
	connStringPattern = regexp.MustCompile(`://[^:/\s]+:[^@\s]+@[^/\s]+`)
)

// SanitizeConnectionString removes credentials from a DSN before logging.
func SanitizeConnectionString(dsn string) string {
	if dsn == "" {
		return ""
	}
	s := passwordPattern.ReplaceAllString(dsn, "${1}="+RedactedText)
	return connStringPattern.ReplaceAllString(s, "://"+RedactedText+"@"+RedactedText)
}

// SanitizeError redacts secret material from an error message. Use this on
// every error that crossed a database driver or model provider boundary.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	s := passwordPattern.ReplaceAllString(err.Error(), "${1}="+RedactedText)
	s = bearerPattern.ReplaceAllString(s, "Bearer "+RedactedText)
	s = apiKeyPattern.ReplaceAllString(s, "${1}="+RedactedText)
	s = secretKeyPattern.ReplaceAllString(s, RedactedText)
	return connStringPattern.ReplaceAllString(s, "://"+RedactedText+"@"+RedactedText)
}

// SanitizeQuery truncates and redacts SQL text for logging.
func SanitizeQuery(query string) string {
	if query == "" {
		return ""
	}
	s := query
	if len(s) > MaxQueryLogLength {
		s = s[:MaxQueryLogLength] + "..."
	}
	s = passwordPattern.ReplaceAllString(s, "${1}="+RedactedText)
	return apiKeyPattern.ReplaceAllString(s, "${1}="+RedactedText)
}
