package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/veridia-ai/veridia-core/pkg/apperrors"
	"github.com/veridia-ai/veridia-core/pkg/database"
	"github.com/veridia-ai/veridia-core/pkg/models"
)

// CredentialRepository defines persistence for encrypted model credentials.
// Only ciphertext ever crosses this boundary; callers encrypt before Upsert
// and decrypt after Get.
type CredentialRepository interface {
	// Get retrieves the stored credential record for a tenant.
	// Returns apperrors.ErrTenantNotConfigured if none exists.
	Get(ctx context.Context, tenantID uuid.UUID) (*models.CredentialRecord, error)

	// Upsert creates or replaces the credential record for a tenant.
	Upsert(ctx context.Context, record *models.CredentialRecord) error

	// Delete removes the credential record for a tenant.
	Delete(ctx context.Context, tenantID uuid.UUID) error

	// ForEach streams every stored record to fn. Used for key rotation.
	ForEach(ctx context.Context, fn func(record *models.CredentialRecord) error) error

	// UpdateCiphertext replaces only the ciphertext for a tenant.
	UpdateCiphertext(ctx context.Context, tenantID uuid.UUID, ciphertext string) error
}

type credentialRepository struct {
	db *database.DB
}

// NewCredentialRepository creates a new credential repository.
func NewCredentialRepository(db *database.DB) CredentialRepository {
	return &credentialRepository{db: db}
}

func (r *credentialRepository) Get(ctx context.Context, tenantID uuid.UUID) (*models.CredentialRecord, error) {
	query := `
		SELECT tenant_id, provider, ciphertext, model, endpoint, updated_at
		FROM tenant_credentials
		WHERE tenant_id = $1`

	var rec models.CredentialRecord
	err := r.db.QueryRow(ctx, query, tenantID).Scan(
		&rec.TenantID, &rec.Provider, &rec.Ciphertext, &rec.Model, &rec.Endpoint, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("credential for tenant %s: %w", tenantID, apperrors.ErrTenantNotConfigured)
		}
		return nil, fmt.Errorf("query credential: %w", err)
	}

	return &rec, nil
}

func (r *credentialRepository) Upsert(ctx context.Context, record *models.CredentialRecord) error {
	query := `
		INSERT INTO tenant_credentials (tenant_id, provider, ciphertext, model, endpoint, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (tenant_id) DO UPDATE
		SET provider = EXCLUDED.provider,
		    ciphertext = EXCLUDED.ciphertext,
		    model = EXCLUDED.model,
		    endpoint = EXCLUDED.endpoint,
		    updated_at = NOW()`

	_, err := r.db.Exec(ctx, query,
		record.TenantID, record.Provider, record.Ciphertext, record.Model, record.Endpoint)
	if err != nil {
		return fmt.Errorf("upsert credential: %w", err)
	}

	return nil
}

func (r *credentialRepository) Delete(ctx context.Context, tenantID uuid.UUID) error {
	result, err := r.db.Exec(ctx, `DELETE FROM tenant_credentials WHERE tenant_id = $1`, tenantID)
	if err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("credential for tenant %s: %w", tenantID, apperrors.ErrNotFound)
	}

	return nil
}

func (r *credentialRepository) ForEach(ctx context.Context, fn func(record *models.CredentialRecord) error) error {
	query := `
		SELECT tenant_id, provider, ciphertext, model, endpoint, updated_at
		FROM tenant_credentials
		ORDER BY tenant_id`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var rec models.CredentialRecord
		if err := rows.Scan(&rec.TenantID, &rec.Provider, &rec.Ciphertext, &rec.Model, &rec.Endpoint, &rec.UpdatedAt); err != nil {
			return fmt.Errorf("scan credential: %w", err)
		}
		if err := fn(&rec); err != nil {
			return err
		}
	}

	return rows.Err()
}

func (r *credentialRepository) UpdateCiphertext(ctx context.Context, tenantID uuid.UUID, ciphertext string) error {
	query := `
		UPDATE tenant_credentials
		SET ciphertext = $2, updated_at = NOW()
		WHERE tenant_id = $1`

	result, err := r.db.Exec(ctx, query, tenantID, ciphertext)
	if err != nil {
		return fmt.Errorf("update ciphertext: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("credential for tenant %s: %w", tenantID, apperrors.ErrNotFound)
	}

	return nil
}

var _ CredentialRepository = (*credentialRepository)(nil)
