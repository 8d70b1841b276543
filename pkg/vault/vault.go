// Package vault manages tenant model credentials. Keys are encrypted with
// the vault master key before they touch storage and are only decrypted
// into short-lived EphemeralCredential values that callers wipe after use.
package vault

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/veridia-ai/veridia-core/pkg/apperrors"
	"github.com/veridia-ai/veridia-core/pkg/audit"
	"github.com/veridia-ai/veridia-core/pkg/crypto"
	"github.com/veridia-ai/veridia-core/pkg/models"
	"github.com/veridia-ai/veridia-core/pkg/repositories"
)

// Vault defines credential storage and resolution.
type Vault interface {
	// Store encrypts and persists a tenant's model credential. Any existing
	// credential for the tenant is replaced.
	Store(ctx context.Context, tenantID uuid.UUID, provider models.ModelProvider, apiKey, model, endpoint string) error

	// Resolve decrypts the tenant's credential for one request. The caller
	// must Wipe the returned credential when done. Returns
	// apperrors.ErrTenantNotConfigured if no credential is stored.
	Resolve(ctx context.Context, tenantID uuid.UUID, purpose string) (*EphemeralCredential, error)

	// Describe returns the non-secret view of a tenant's credential.
	Describe(ctx context.Context, tenantID uuid.UUID) (*models.ModelConfig, error)

	// Delete removes the tenant's credential.
	Delete(ctx context.Context, tenantID uuid.UUID) error

	// RotateKey re-encrypts every stored credential under a new master key.
	// Records that cannot be opened with the current key are reported but do
	// not abort the rotation.
	RotateKey(ctx context.Context, next *crypto.CredentialEncryptor) (*RotationReport, error)
}

// RotationReport summarizes a master key rotation.
type RotationReport struct {
	Rotated int
	Failed  []uuid.UUID
}

type vault struct {
	repo      repositories.CredentialRepository
	encryptor *crypto.CredentialEncryptor
	trail     *audit.Trail
	logger    *zap.Logger
}

// New creates a credential vault.
func New(repo repositories.CredentialRepository, encryptor *crypto.CredentialEncryptor, trail *audit.Trail, logger *zap.Logger) Vault {
	return &vault{
		repo:      repo,
		encryptor: encryptor,
		trail:     trail,
		logger:    logger.Named("vault"),
	}
}

func (v *vault) Store(ctx context.Context, tenantID uuid.UUID, provider models.ModelProvider, apiKey, model, endpoint string) error {
	if !models.ValidProvider(provider) {
		return fmt.Errorf("unknown provider %q: %w", provider, apperrors.ErrInvalidCredential)
	}
	if apiKey == "" {
		return fmt.Errorf("api key is required: %w", apperrors.ErrInvalidCredential)
	}
	if provider == models.ProviderAzure && endpoint == "" {
		return fmt.Errorf("azure provider requires an endpoint: %w", apperrors.ErrInvalidCredential)
	}

	ciphertext, err := v.encryptor.Encrypt(apiKey)
	if err != nil {
		return fmt.Errorf("encrypt credential: %w", err)
	}

	record := &models.CredentialRecord{
		TenantID:   tenantID,
		Provider:   provider,
		Ciphertext: ciphertext,
		Model:      model,
		Endpoint:   endpoint,
	}
	if err := v.repo.Upsert(ctx, record); err != nil {
		return err
	}

	v.trail.CredentialStored(ctx, tenantID, string(provider))
	return nil
}

func (v *vault) Resolve(ctx context.Context, tenantID uuid.UUID, purpose string) (*EphemeralCredential, error) {
	record, err := v.repo.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	apiKey, err := v.encryptor.Decrypt(record.Ciphertext)
	if err != nil {
		if errors.Is(err, crypto.ErrDecryptionFailed) {
			v.logger.Error("Stored credential does not open with current master key",
				zap.String("tenant_id", tenantID.String()))
			return nil, fmt.Errorf("tenant %s: %w", tenantID, apperrors.ErrCredentialsKeyMismatch)
		}
		return nil, fmt.Errorf("decrypt credential: %w", err)
	}

	v.trail.CredentialAccess(ctx, tenantID, string(record.Provider), purpose)

	return newEphemeralCredential(record.Provider, apiKey, record.Model, record.Endpoint), nil
}

func (v *vault) Describe(ctx context.Context, tenantID uuid.UUID) (*models.ModelConfig, error) {
	record, err := v.repo.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	return &models.ModelConfig{
		Provider: record.Provider,
		Model:    record.Model,
		Endpoint: record.Endpoint,
	}, nil
}

func (v *vault) Delete(ctx context.Context, tenantID uuid.UUID) error {
	return v.repo.Delete(ctx, tenantID)
}

func (v *vault) RotateKey(ctx context.Context, next *crypto.CredentialEncryptor) (*RotationReport, error) {
	report := &RotationReport{}

	err := v.repo.ForEach(ctx, func(record *models.CredentialRecord) error {
		plaintext, err := v.encryptor.Decrypt(record.Ciphertext)
		if err != nil {
			v.logger.Error("Skipping credential that does not open with current key",
				zap.String("tenant_id", record.TenantID.String()))
			report.Failed = append(report.Failed, record.TenantID)
			return nil
		}

		reencrypted, err := next.Encrypt(plaintext)
		if err != nil {
			return fmt.Errorf("re-encrypt credential for tenant %s: %w", record.TenantID, err)
		}

		if err := v.repo.UpdateCiphertext(ctx, record.TenantID, reencrypted); err != nil {
			return err
		}

		report.Rotated++
		return nil
	})
	if err != nil {
		return report, err
	}

	v.encryptor = next
	v.trail.Record(ctx, audit.Event{
		EventType: audit.EventKeyRotation,
		TenantID:  uuid.Nil,
		Severity:  "warning",
		Details: map[string]any{
			"rotated": report.Rotated,
			"failed":  len(report.Failed),
		},
	})

	return report, nil
}

var _ Vault = (*vault)(nil)
