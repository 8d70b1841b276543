package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/veridia-ai/veridia-core/pkg/database"
)

// AuditEntry is a persisted audit trail row. Details never contain key
// material or plaintext credentials; writers sanitize before insert.
type AuditEntry struct {
	ID        int64          `json:"id"`
	TenantID  uuid.UUID      `json:"tenant_id"`
	EventType string         `json:"event_type"`
	Severity  string         `json:"severity"`
	Details   map[string]any `json:"details"`
	CreatedAt time.Time      `json:"created_at"`
}

// AuditRepository defines append-only persistence for the audit trail.
type AuditRepository interface {
	// Insert appends an audit entry. The trail has no update or delete path.
	Insert(ctx context.Context, entry *AuditEntry) error

	// ListByTenant returns the most recent entries for a tenant, newest first.
	ListByTenant(ctx context.Context, tenantID uuid.UUID, limit int) ([]*AuditEntry, error)
}

type auditRepository struct {
	db *database.DB
}

// NewAuditRepository creates a new audit repository.
func NewAuditRepository(db *database.DB) AuditRepository {
	return &auditRepository{db: db}
}

func (r *auditRepository) Insert(ctx context.Context, entry *AuditEntry) error {
	details := entry.Details
	if details == nil {
		details = map[string]any{}
	}
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("marshal audit details: %w", err)
	}

	query := `
		INSERT INTO audit_entries (tenant_id, event_type, severity, details)
		VALUES ($1, $2, $3, $4)`

	if _, err := r.db.Exec(ctx, query, entry.TenantID, entry.EventType, entry.Severity, detailsJSON); err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}

	return nil
}

func (r *auditRepository) ListByTenant(ctx context.Context, tenantID uuid.UUID, limit int) ([]*AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, tenant_id, event_type, severity, details, created_at
		FROM audit_entries
		WHERE tenant_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`

	rows, err := r.db.Query(ctx, query, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []*AuditEntry
	for rows.Next() {
		var (
			e           AuditEntry
			detailsJSON []byte
		)
		if err := rows.Scan(&e.ID, &e.TenantID, &e.EventType, &e.Severity, &detailsJSON, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		if err := json.Unmarshal(detailsJSON, &e.Details); err != nil {
			return nil, fmt.Errorf("unmarshal audit details: %w", err)
		}
		entries = append(entries, &e)
	}

	return entries, rows.Err()
}

var _ AuditRepository = (*auditRepository)(nil)
