package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/veridia-ai/veridia-core/pkg/apperrors"
	"github.com/veridia-ai/veridia-core/pkg/database"
	"github.com/veridia-ai/veridia-core/pkg/models"
)

// TenantRepository defines the interface for tenant registry data access.
type TenantRepository interface {
	// Create registers a new tenant. Names are unique case-insensitively.
	Create(ctx context.Context, name string) (*models.Tenant, error)

	// Get retrieves a tenant by ID. Returns apperrors.ErrNotFound if absent.
	Get(ctx context.Context, tenantID uuid.UUID) (*models.Tenant, error)

	// List returns all tenants ordered by creation time.
	List(ctx context.Context) ([]*models.Tenant, error)

	// SetActive toggles whether a tenant may issue queries.
	SetActive(ctx context.Context, tenantID uuid.UUID, active bool) error
}

type tenantRepository struct {
	db *database.DB
}

// NewTenantRepository creates a new tenant repository.
func NewTenantRepository(db *database.DB) TenantRepository {
	return &tenantRepository{db: db}
}

func (r *tenantRepository) Create(ctx context.Context, name string) (*models.Tenant, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("tenant name is required")
	}

	query := `
		INSERT INTO tenants (name)
		VALUES ($1)
		RETURNING id, name, is_active, created_at, updated_at`

	var t models.Tenant
	err := r.db.QueryRow(ctx, query, name).Scan(
		&t.ID, &t.Name, &t.IsActive, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, fmt.Errorf("tenant %q: %w", name, apperrors.ErrConflict)
		}
		return nil, fmt.Errorf("insert tenant: %w", err)
	}

	return &t, nil
}

func (r *tenantRepository) Get(ctx context.Context, tenantID uuid.UUID) (*models.Tenant, error) {
	query := `
		SELECT id, name, is_active, created_at, updated_at
		FROM tenants
		WHERE id = $1`

	var t models.Tenant
	err := r.db.QueryRow(ctx, query, tenantID).Scan(
		&t.ID, &t.Name, &t.IsActive, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("tenant %s: %w", tenantID, apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("query tenant: %w", err)
	}

	return &t, nil
}

func (r *tenantRepository) List(ctx context.Context) ([]*models.Tenant, error) {
	query := `
		SELECT id, name, is_active, created_at, updated_at
		FROM tenants
		ORDER BY created_at`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	var tenants []*models.Tenant
	for rows.Next() {
		var t models.Tenant
		if err := rows.Scan(&t.ID, &t.Name, &t.IsActive, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		tenants = append(tenants, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tenants: %w", err)
	}

	return tenants, nil
}

func (r *tenantRepository) SetActive(ctx context.Context, tenantID uuid.UUID, active bool) error {
	query := `
		UPDATE tenants
		SET is_active = $2, updated_at = NOW()
		WHERE id = $1`

	result, err := r.db.Exec(ctx, query, tenantID, active)
	if err != nil {
		return fmt.Errorf("update tenant active: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("tenant %s: %w", tenantID, apperrors.ErrNotFound)
	}

	return nil
}

var _ TenantRepository = (*tenantRepository)(nil)
