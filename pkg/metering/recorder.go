// Package metering records per-query usage for billing and quota checks.
// Recording is best-effort: a metering failure never fails the query.
package metering

import (
	"context"

	"go.uber.org/zap"

	"github.com/veridia-ai/veridia-core/pkg/models"
	"github.com/veridia-ai/veridia-core/pkg/repositories"
)

// Recorder persists usage records.
type Recorder struct {
	repo   repositories.UsageRepository
	logger *zap.Logger
}

// NewRecorder creates a usage recorder. repo may be nil for log-only use.
func NewRecorder(repo repositories.UsageRepository, logger *zap.Logger) *Recorder {
	return &Recorder{repo: repo, logger: logger.Named("metering")}
}

// Record writes one usage record, swallowing persistence failures.
func (r *Recorder) Record(ctx context.Context, record *models.UsageRecord) {
	r.logger.Debug("Usage recorded",
		zap.String("tenant_id", record.TenantID.String()),
		zap.String("strategy", string(record.Strategy)),
		zap.Int("estimated_tokens", record.EstimatedTokens),
		zap.Bool("success", record.Success))

	if r.repo == nil {
		return
	}
	if err := r.repo.Insert(ctx, record); err != nil {
		r.logger.Warn("Failed to persist usage record", zap.Error(err))
	}
}
