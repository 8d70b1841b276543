// Package policy manages per-tenant data-source policies: which driver and
// DSN to use, which tables and columns generated SQL may touch, and the row
// and time limits the guardrail enforces.
package policy

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/veridia-ai/veridia-core/pkg/apperrors"
	"github.com/veridia-ai/veridia-core/pkg/models"
	"github.com/veridia-ai/veridia-core/pkg/repositories"
)

const (
	// MaxRowLimit caps what a tenant may configure as max_rows.
	MaxRowLimit = 10000
	// DefaultRowLimit applies when a policy leaves max_rows unset.
	DefaultRowLimit = 500
	// MaxTimeoutSeconds caps per-query execution time.
	MaxTimeoutSeconds = 300
)

// Store defines policy access for the rest of the system.
type Store interface {
	// GetDatabasePolicy returns the tenant's data-source policy.
	// Returns apperrors.ErrTenantNotConfigured if none is set.
	GetDatabasePolicy(ctx context.Context, tenantID uuid.UUID) (*models.DatabasePolicy, error)

	// SetDatabasePolicy validates and persists a policy.
	SetDatabasePolicy(ctx context.Context, tenantID uuid.UUID, p *models.DatabasePolicy) error

	// DeleteDatabasePolicy removes the tenant's policy.
	DeleteDatabasePolicy(ctx context.Context, tenantID uuid.UUID) error
}

type store struct {
	repo   repositories.PolicyRepository
	logger *zap.Logger
}

// NewStore creates a policy store.
func NewStore(repo repositories.PolicyRepository, logger *zap.Logger) Store {
	return &store{repo: repo, logger: logger.Named("policy")}
}

func (s *store) GetDatabasePolicy(ctx context.Context, tenantID uuid.UUID) (*models.DatabasePolicy, error) {
	return s.repo.Get(ctx, tenantID)
}

func (s *store) SetDatabasePolicy(ctx context.Context, tenantID uuid.UUID, p *models.DatabasePolicy) error {
	if err := Validate(p); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrInvalidPolicy, err)
	}

	if err := s.repo.Upsert(ctx, tenantID, p); err != nil {
		return err
	}

	s.logger.Info("Database policy updated",
		zap.String("tenant_id", tenantID.String()),
		zap.String("driver", string(p.Driver)),
		zap.Int("allowed_tables", len(p.AllowedTables)),
		zap.Int("max_rows", p.MaxRows))
	return nil
}

func (s *store) DeleteDatabasePolicy(ctx context.Context, tenantID uuid.UUID) error {
	return s.repo.Delete(ctx, tenantID)
}

// Validate checks a policy's structure before it is persisted. It normalizes
// max_rows and timeout into their allowed ranges in place.
func Validate(p *models.DatabasePolicy) error {
	if p == nil {
		return fmt.Errorf("policy is required")
	}

	switch p.Driver {
	case models.DriverPostgres, models.DriverMSSQL:
	default:
		return fmt.Errorf("unsupported driver %q", p.Driver)
	}

	if strings.TrimSpace(p.DSN) == "" {
		return fmt.Errorf("dsn is required")
	}

	if len(p.AllowedTables) == 0 {
		return fmt.Errorf("at least one allowed table is required")
	}
	seen := make(map[string]bool, len(p.AllowedTables))
	for _, table := range p.AllowedTables {
		name := strings.ToLower(strings.TrimSpace(table))
		if name == "" {
			return fmt.Errorf("allowed table names must be non-empty")
		}
		if seen[name] {
			return fmt.Errorf("duplicate allowed table %q", table)
		}
		seen[name] = true
	}

	// Column whitelists may only reference allowed tables
	for table := range p.AllowedColumns {
		if !seen[strings.ToLower(strings.TrimSpace(table))] {
			return fmt.Errorf("column whitelist references table %q which is not allowed", table)
		}
	}

	if p.MaxRows < 0 {
		return fmt.Errorf("max_rows must not be negative")
	}
	if p.MaxRows == 0 {
		p.MaxRows = DefaultRowLimit
	}
	if p.MaxRows > MaxRowLimit {
		return fmt.Errorf("max_rows %d exceeds limit %d", p.MaxRows, MaxRowLimit)
	}

	if p.TimeoutSeconds < 0 {
		return fmt.Errorf("timeout_seconds must not be negative")
	}
	if p.TimeoutSeconds > MaxTimeoutSeconds {
		return fmt.Errorf("timeout_seconds %d exceeds limit %d", p.TimeoutSeconds, MaxTimeoutSeconds)
	}

	return nil
}

var _ Store = (*store)(nil)
