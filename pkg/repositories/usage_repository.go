package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/veridia-ai/veridia-core/pkg/database"
	"github.com/veridia-ai/veridia-core/pkg/models"
)

// UsageRepository persists per-query usage records for metering.
type UsageRepository interface {
	// Insert appends one usage record.
	Insert(ctx context.Context, record *models.UsageRecord) error

	// CountByTenant returns the number of queries a tenant ran since the
	// given interval, expressed in hours.
	CountByTenant(ctx context.Context, tenantID uuid.UUID, withinHours int) (int64, error)
}

type usageRepository struct {
	db *database.DB
}

// NewUsageRepository creates a new usage repository.
func NewUsageRepository(db *database.DB) UsageRepository {
	return &usageRepository{db: db}
}

func (r *usageRepository) Insert(ctx context.Context, record *models.UsageRecord) error {
	query := `
		INSERT INTO usage_records (tenant_id, strategy, model, estimated_tokens, success)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := r.db.Exec(ctx, query,
		record.TenantID, record.Strategy, record.Model, record.EstimatedTokens, record.Success)
	if err != nil {
		return fmt.Errorf("insert usage record: %w", err)
	}

	return nil
}

func (r *usageRepository) CountByTenant(ctx context.Context, tenantID uuid.UUID, withinHours int) (int64, error) {
	if withinHours <= 0 {
		withinHours = 24
	}

	query := `
		SELECT COUNT(*)
		FROM usage_records
		WHERE tenant_id = $1
		AND created_at > NOW() - ($2 || ' hours')::interval`

	var count int64
	if err := r.db.QueryRow(ctx, query, tenantID, withinHours).Scan(&count); err != nil {
		return 0, fmt.Errorf("count usage records: %w", err)
	}

	return count, nil
}

var _ UsageRepository = (*usageRepository)(nil)
