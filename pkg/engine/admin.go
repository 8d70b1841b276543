package engine

import (
	"context"

	"github.com/google/uuid"

	"github.com/veridia-ai/veridia-core/pkg/models"
)

// ConfigureModel stores or replaces a tenant's model credential.
func (e *Engine) ConfigureModel(ctx context.Context, tenantID uuid.UUID, provider models.ModelProvider, apiKey, model, endpoint string) error {
	if _, err := e.tenants.Get(ctx, tenantID); err != nil {
		return err
	}
	return e.vault.Store(ctx, tenantID, provider, apiKey, model, endpoint)
}

// ConfigureDatabase validates and stores a tenant's database policy.
func (e *Engine) ConfigureDatabase(ctx context.Context, tenantID uuid.UUID, p *models.DatabasePolicy) error {
	if _, err := e.tenants.Get(ctx, tenantID); err != nil {
		return err
	}
	if err := e.policies.SetDatabasePolicy(ctx, tenantID, p); err != nil {
		return err
	}
	if e.invalidate != nil {
		// Stale pools would keep using the old DSN
		e.invalidate(tenantID)
	}
	return nil
}

// DescribeModel returns the non-secret model configuration.
func (e *Engine) DescribeModel(ctx context.Context, tenantID uuid.UUID) (*models.ModelConfig, error) {
	return e.vault.Describe(ctx, tenantID)
}
