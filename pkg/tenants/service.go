// Package tenants is the tenant registry: creation, listing, and the
// public view exposed to admin surfaces.
package tenants

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/veridia-ai/veridia-core/pkg/models"
	"github.com/veridia-ai/veridia-core/pkg/policy"
	"github.com/veridia-ai/veridia-core/pkg/repositories"
	"github.com/veridia-ai/veridia-core/pkg/vault"
)

// Service manages the tenant registry.
type Service interface {
	// Create registers a tenant.
	Create(ctx context.Context, name string) (*models.Tenant, error)

	// Get returns a tenant's public view, including whether a model
	// credential is configured but never the credential itself.
	Get(ctx context.Context, tenantID uuid.UUID) (*models.TenantPublicView, error)

	// List returns all tenants.
	List(ctx context.Context) ([]*models.Tenant, error)

	// Deactivate blocks a tenant from issuing queries.
	Deactivate(ctx context.Context, tenantID uuid.UUID) error

	// Activate re-enables a tenant.
	Activate(ctx context.Context, tenantID uuid.UUID) error
}

type service struct {
	repo     repositories.TenantRepository
	vault    vault.Vault
	policies policy.Store
	logger   *zap.Logger
}

// NewService creates the tenant registry service.
func NewService(repo repositories.TenantRepository, v vault.Vault, policies policy.Store, logger *zap.Logger) Service {
	return &service{repo: repo, vault: v, policies: policies, logger: logger.Named("tenants")}
}

func (s *service) Create(ctx context.Context, name string) (*models.Tenant, error) {
	tenant, err := s.repo.Create(ctx, name)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Tenant created",
		zap.String("tenant_id", tenant.ID.String()),
		zap.String("name", tenant.Name))
	return tenant, nil
}

func (s *service) Get(ctx context.Context, tenantID uuid.UUID) (*models.TenantPublicView, error) {
	tenant, err := s.repo.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	view := &models.TenantPublicView{
		ID:        tenant.ID,
		Name:      tenant.Name,
		IsActive:  tenant.IsActive,
		CreatedAt: tenant.CreatedAt,
	}

	// Credential presence only, never the credential
	if cfg, err := s.vault.Describe(ctx, tenantID); err == nil {
		view.HasModelKey = true
		view.ModelProvider = string(cfg.Provider)
		view.ModelName = cfg.Model
	}

	if p, err := s.policies.GetDatabasePolicy(ctx, tenantID); err == nil {
		view.SQLEnabled = true
		view.AllowedTables = p.AllowedTables
	}

	return view, nil
}

func (s *service) List(ctx context.Context) ([]*models.Tenant, error) {
	return s.repo.List(ctx)
}

func (s *service) Deactivate(ctx context.Context, tenantID uuid.UUID) error {
	return s.repo.SetActive(ctx, tenantID, false)
}

func (s *service) Activate(ctx context.Context, tenantID uuid.UUID) error {
	return s.repo.SetActive(ctx, tenantID, true)
}

var _ Service = (*service)(nil)
