package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/veridia-ai/veridia-core/pkg/apperrors"
	"github.com/veridia-ai/veridia-core/pkg/crypto"
	"github.com/veridia-ai/veridia-core/pkg/database"
	"github.com/veridia-ai/veridia-core/pkg/models"
)

// PolicyRepository defines persistence for per-tenant database policies.
// The DSN is encrypted at rest; allowed tables and columns are stored as
// JSONB so policy shape can evolve without schema churn.
type PolicyRepository interface {
	// Get retrieves the database policy for a tenant.
	// Returns apperrors.ErrTenantNotConfigured if none exists.
	Get(ctx context.Context, tenantID uuid.UUID) (*models.DatabasePolicy, error)

	// Upsert creates or replaces the policy for a tenant.
	Upsert(ctx context.Context, tenantID uuid.UUID, policy *models.DatabasePolicy) error

	// Delete removes the policy for a tenant.
	Delete(ctx context.Context, tenantID uuid.UUID) error
}

type policyRepository struct {
	db        *database.DB
	encryptor *crypto.CredentialEncryptor
}

// NewPolicyRepository creates a new policy repository.
func NewPolicyRepository(db *database.DB, encryptor *crypto.CredentialEncryptor) PolicyRepository {
	return &policyRepository{db: db, encryptor: encryptor}
}

func (r *policyRepository) Get(ctx context.Context, tenantID uuid.UUID) (*models.DatabasePolicy, error) {
	query := `
		SELECT driver, dsn_ciphertext, schema_name, allowed_tables, allowed_columns,
		       max_rows, timeout_seconds
		FROM database_policies
		WHERE tenant_id = $1`

	var (
		policy        models.DatabasePolicy
		dsnCiphertext string
		tablesJSON    []byte
		columnsJSON   []byte
	)
	err := r.db.QueryRow(ctx, query, tenantID).Scan(
		&policy.Driver, &dsnCiphertext, &policy.Schema,
		&tablesJSON, &columnsJSON, &policy.MaxRows, &policy.TimeoutSeconds)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("policy for tenant %s: %w", tenantID, apperrors.ErrTenantNotConfigured)
		}
		return nil, fmt.Errorf("query policy: %w", err)
	}

	dsn, err := r.encryptor.Decrypt(dsnCiphertext)
	if err != nil {
		return nil, fmt.Errorf("decrypt dsn: %w", err)
	}
	policy.DSN = dsn

	if err := json.Unmarshal(tablesJSON, &policy.AllowedTables); err != nil {
		return nil, fmt.Errorf("unmarshal allowed_tables: %w", err)
	}
	if err := json.Unmarshal(columnsJSON, &policy.AllowedColumns); err != nil {
		return nil, fmt.Errorf("unmarshal allowed_columns: %w", err)
	}

	return &policy, nil
}

func (r *policyRepository) Upsert(ctx context.Context, tenantID uuid.UUID, policy *models.DatabasePolicy) error {
	dsnCiphertext, err := r.encryptor.Encrypt(policy.DSN)
	if err != nil {
		return fmt.Errorf("encrypt dsn: %w", err)
	}

	tablesJSON, err := json.Marshal(policy.AllowedTables)
	if err != nil {
		return fmt.Errorf("marshal allowed_tables: %w", err)
	}
	columnsJSON, err := json.Marshal(policy.AllowedColumns)
	if err != nil {
		return fmt.Errorf("marshal allowed_columns: %w", err)
	}

	query := `
		INSERT INTO database_policies
			(tenant_id, driver, dsn_ciphertext, schema_name, allowed_tables,
			 allowed_columns, max_rows, timeout_seconds, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (tenant_id) DO UPDATE
		SET driver = EXCLUDED.driver,
		    dsn_ciphertext = EXCLUDED.dsn_ciphertext,
		    schema_name = EXCLUDED.schema_name,
		    allowed_tables = EXCLUDED.allowed_tables,
		    allowed_columns = EXCLUDED.allowed_columns,
		    max_rows = EXCLUDED.max_rows,
		    timeout_seconds = EXCLUDED.timeout_seconds,
		    updated_at = NOW()`

	_, err = r.db.Exec(ctx, query,
		tenantID, policy.Driver, dsnCiphertext, policy.Schema,
		tablesJSON, columnsJSON, policy.MaxRows, policy.TimeoutSeconds)
	if err != nil {
		return fmt.Errorf("upsert policy: %w", err)
	}

	return nil
}

func (r *policyRepository) Delete(ctx context.Context, tenantID uuid.UUID) error {
	result, err := r.db.Exec(ctx, `DELETE FROM database_policies WHERE tenant_id = $1`, tenantID)
	if err != nil {
		return fmt.Errorf("delete policy: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("policy for tenant %s: %w", tenantID, apperrors.ErrNotFound)
	}

	return nil
}

var _ PolicyRepository = (*policyRepository)(nil)
