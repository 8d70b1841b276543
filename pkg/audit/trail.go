// Package audit provides security audit logging for SIEM consumption.
// Events are logged in structured JSON format and appended to a persistent
// audit trail. Event details never contain plaintext credentials or key
// material; callers pass only sanitized metadata.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/veridia-ai/veridia-core/pkg/repositories"
)

// EventType categorizes security-relevant events for filtering and alerting.
type EventType string

const (
	// EventCredentialAccess is logged each time a tenant credential is
	// decrypted for use.
	EventCredentialAccess EventType = "credential_access"
	// EventCredentialStored is logged when a credential is stored or replaced.
	EventCredentialStored EventType = "credential_stored"
	// EventKeyRotation is logged when the vault master key is rotated.
	EventKeyRotation EventType = "key_rotation"
	// EventGuardrailRejection is logged when generated SQL is rejected by
	// the guardrail validator.
	EventGuardrailRejection EventType = "guardrail_rejection"
	// EventInjectionAttempt is logged when libinjection flags a literal
	// inside otherwise well-formed SQL.
	EventInjectionAttempt EventType = "sql_injection_attempt"
	// EventQueryExecuted is logged for queries that passed validation and
	// ran against a tenant data source.
	EventQueryExecuted EventType = "query_executed"
)

// Event represents an auditable security event with context for SIEM
// ingestion and analysis.
type Event struct {
	Timestamp time.Time      `json:"timestamp"`
	EventType EventType      `json:"event_type"`
	TenantID  uuid.UUID      `json:"tenant_id"`
	SessionID string         `json:"session_id,omitempty"`
	Details   map[string]any `json:"details"`
	Severity  string         `json:"severity"` // info, warning, critical
}

// Trail records security events to the structured log and, when a repository
// is provided, to the append-only audit table. Persistence failures are
// logged and swallowed so audit writes never fail a user query.
type Trail struct {
	logger *zap.Logger
	repo   repositories.AuditRepository
}

// NewTrail creates an audit trail with a dedicated logger namespace for
// SIEM filtering. repo may be nil for log-only operation (tests).
func NewTrail(logger *zap.Logger, repo repositories.AuditRepository) *Trail {
	return &Trail{
		logger: logger.Named("security_audit"),
		repo:   repo,
	}
}

// Record logs and persists one event.
func (t *Trail) Record(ctx context.Context, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.Details == nil {
		event.Details = map[string]any{}
	}

	// Marshaling known types should never fail
	eventJSON, _ := json.Marshal(event)

	fields := []zap.Field{
		zap.String("event_json", string(eventJSON)),
		zap.String("event_type", string(event.EventType)),
		zap.String("tenant_id", event.TenantID.String()),
		zap.String("severity", event.Severity),
	}
	switch event.Severity {
	case "critical":
		t.logger.Error("Security event", fields...)
	case "warning":
		t.logger.Warn("Security event", fields...)
	default:
		t.logger.Info("Security event", fields...)
	}

	if t.repo == nil {
		return
	}

	entry := &repositories.AuditEntry{
		TenantID:  event.TenantID,
		EventType: string(event.EventType),
		Severity:  event.Severity,
		Details:   event.Details,
		CreatedAt: event.Timestamp,
	}
	if event.SessionID != "" {
		entry.Details["session_id"] = event.SessionID
	}
	if err := t.repo.Insert(ctx, entry); err != nil {
		t.logger.Error("Failed to persist audit entry",
			zap.String("event_type", string(event.EventType)),
			zap.Error(err))
	}
}

// CredentialAccess records a credential decryption for use. The detail map
// carries only the provider name and purpose, never key material.
func (t *Trail) CredentialAccess(ctx context.Context, tenantID uuid.UUID, provider, purpose string) {
	t.Record(ctx, Event{
		EventType: EventCredentialAccess,
		TenantID:  tenantID,
		Severity:  "info",
		Details: map[string]any{
			"provider": provider,
			"purpose":  purpose,
		},
	})
}

// CredentialStored records that a tenant credential was stored or replaced.
func (t *Trail) CredentialStored(ctx context.Context, tenantID uuid.UUID, provider string) {
	t.Record(ctx, Event{
		EventType: EventCredentialStored,
		TenantID:  tenantID,
		Severity:  "info",
		Details: map[string]any{
			"provider": provider,
		},
	})
}

// GuardrailRejection records a rejected statement. The reason is a stable
// category; the offending fragment is already sanitized by the caller.
func (t *Trail) GuardrailRejection(ctx context.Context, tenantID uuid.UUID, sessionID, reason, fragment string) {
	t.Record(ctx, Event{
		EventType: EventGuardrailRejection,
		TenantID:  tenantID,
		SessionID: sessionID,
		Severity:  "warning",
		Details: map[string]any{
			"reason":   reason,
			"fragment": fragment,
		},
	})
}

// InjectionAttempt records a libinjection hit with its fingerprint for
// pattern analysis. Logged critical for immediate alerting.
func (t *Trail) InjectionAttempt(ctx context.Context, tenantID uuid.UUID, sessionID, fingerprint string) {
	t.Record(ctx, Event{
		EventType: EventInjectionAttempt,
		TenantID:  tenantID,
		SessionID: sessionID,
		Severity:  "critical",
		Details: map[string]any{
			"fingerprint": fingerprint,
		},
	})
}
