package vault

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/veridia-ai/veridia-core/pkg/apperrors"
	"github.com/veridia-ai/veridia-core/pkg/audit"
	"github.com/veridia-ai/veridia-core/pkg/crypto"
	"github.com/veridia-ai/veridia-core/pkg/models"
)

// memCredentialRepo is an in-memory CredentialRepository for tests.
type memCredentialRepo struct {
	records map[uuid.UUID]*models.CredentialRecord
}

func newMemCredentialRepo() *memCredentialRepo {
	return &memCredentialRepo{records: make(map[uuid.UUID]*models.CredentialRecord)}
}

func (m *memCredentialRepo) Get(_ context.Context, tenantID uuid.UUID) (*models.CredentialRecord, error) {
	rec, ok := m.records[tenantID]
	if !ok {
		return nil, apperrors.ErrTenantNotConfigured
	}
	copied := *rec
	return &copied, nil
}

func (m *memCredentialRepo) Upsert(_ context.Context, record *models.CredentialRecord) error {
	copied := *record
	m.records[record.TenantID] = &copied
	return nil
}

func (m *memCredentialRepo) Delete(_ context.Context, tenantID uuid.UUID) error {
	if _, ok := m.records[tenantID]; !ok {
		return apperrors.ErrNotFound
	}
	delete(m.records, tenantID)
	return nil
}

func (m *memCredentialRepo) ForEach(_ context.Context, fn func(*models.CredentialRecord) error) error {
	for _, rec := range m.records {
		copied := *rec
		if err := fn(&copied); err != nil {
			return err
		}
	}
	return nil
}

func (m *memCredentialRepo) UpdateCiphertext(_ context.Context, tenantID uuid.UUID, ciphertext string) error {
	rec, ok := m.records[tenantID]
	if !ok {
		return apperrors.ErrNotFound
	}
	rec.Ciphertext = ciphertext
	return nil
}

func newTestVault(t *testing.T) (Vault, *memCredentialRepo, *crypto.CredentialEncryptor) {
	t.Helper()
	encryptor, err := crypto.NewCredentialEncryptor("test-master-key-passphrase")
	require.NoError(t, err)
	repo := newMemCredentialRepo()
	trail := audit.NewTrail(zap.NewNop(), nil)
	return New(repo, encryptor, trail, zap.NewNop()), repo, encryptor
}

func TestStoreAndResolve(t *testing.T) {
	v, repo, _ := newTestVault(t)
	tenantID := uuid.New()

	err := v.Store(context.Background(), tenantID, models.ProviderOpenAI, "sk-test-key-12345", "gpt-4o", "")
	require.NoError(t, err)

	// Storage holds ciphertext, not the plaintext key
	stored := repo.records[tenantID]
	assert.NotContains(t, stored.Ciphertext, "sk-test-key-12345")

	cred, err := v.Resolve(context.Background(), tenantID, "synthesis")
	require.NoError(t, err)
	defer cred.Wipe()

	assert.Equal(t, models.ProviderOpenAI, cred.Provider())
	assert.Equal(t, "sk-test-key-12345", cred.APIKey())
	assert.Equal(t, "gpt-4o", cred.Model())
}

func TestStoreValidation(t *testing.T) {
	v, _, _ := newTestVault(t)
	tenantID := uuid.New()

	tests := []struct {
		name     string
		provider models.ModelProvider
		apiKey   string
		endpoint string
	}{
		{"unknown provider", "mistral", "sk-key", ""},
		{"empty key", models.ProviderOpenAI, "", ""},
		{"azure without endpoint", models.ProviderAzure, "azure-key", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Store(context.Background(), tenantID, tt.provider, tt.apiKey, "m", tt.endpoint)
			assert.ErrorIs(t, err, apperrors.ErrInvalidCredential)
		})
	}
}

func TestResolveUnconfiguredTenant(t *testing.T) {
	v, _, _ := newTestVault(t)

	_, err := v.Resolve(context.Background(), uuid.New(), "synthesis")
	assert.ErrorIs(t, err, apperrors.ErrTenantNotConfigured)
}

func TestResolveWithWrongMasterKey(t *testing.T) {
	_, repo, _ := newTestVault(t)
	tenantID := uuid.New()

	otherEncryptor, err := crypto.NewCredentialEncryptor("a-different-master-key")
	require.NoError(t, err)
	ciphertext, err := otherEncryptor.Encrypt("sk-foreign")
	require.NoError(t, err)

	require.NoError(t, repo.Upsert(context.Background(), &models.CredentialRecord{
		TenantID:   tenantID,
		Provider:   models.ProviderOpenAI,
		Ciphertext: ciphertext,
	}))

	encryptor, err := crypto.NewCredentialEncryptor("test-master-key-passphrase")
	require.NoError(t, err)
	v := New(repo, encryptor, audit.NewTrail(zap.NewNop(), nil), zap.NewNop())

	_, err = v.Resolve(context.Background(), tenantID, "synthesis")
	assert.ErrorIs(t, err, apperrors.ErrCredentialsKeyMismatch)
}

func TestEphemeralWipe(t *testing.T) {
	v, _, _ := newTestVault(t)
	tenantID := uuid.New()

	require.NoError(t, v.Store(context.Background(), tenantID, models.ProviderAnthropic, "ant-key-xyz", "claude-sonnet-4-5", ""))

	cred, err := v.Resolve(context.Background(), tenantID, "routing")
	require.NoError(t, err)

	assert.Equal(t, "ant-key-xyz", cred.APIKey())
	cred.Wipe()
	assert.True(t, cred.Wiped())
	assert.Empty(t, cred.APIKey())

	// Wipe is idempotent
	cred.Wipe()
	assert.Empty(t, cred.APIKey())
}

func TestDescribeOmitsSecrets(t *testing.T) {
	v, _, _ := newTestVault(t)
	tenantID := uuid.New()

	require.NoError(t, v.Store(context.Background(), tenantID, models.ProviderAzure, "azure-secret", "gpt-4o", "https://example.openai.azure.com"))

	cfg, err := v.Describe(context.Background(), tenantID)
	require.NoError(t, err)
	assert.Equal(t, models.ProviderAzure, cfg.Provider)
	assert.Equal(t, "gpt-4o", cfg.Model)
	assert.Equal(t, "https://example.openai.azure.com", cfg.Endpoint)
}

func TestRotateKey(t *testing.T) {
	v, repo, _ := newTestVault(t)
	ctx := context.Background()

	tenantA := uuid.New()
	tenantB := uuid.New()
	require.NoError(t, v.Store(ctx, tenantA, models.ProviderOpenAI, "sk-aaa", "gpt-4o", ""))
	require.NoError(t, v.Store(ctx, tenantB, models.ProviderAnthropic, "sk-bbb", "claude-sonnet-4-5", ""))

	next, err := crypto.NewCredentialEncryptor("rotated-master-key")
	require.NoError(t, err)

	report, err := v.RotateKey(ctx, next)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Rotated)
	assert.Empty(t, report.Failed)

	// Old key no longer opens the records, the vault's new key does
	for _, id := range []uuid.UUID{tenantA, tenantB} {
		_, err := next.Decrypt(repo.records[id].Ciphertext)
		assert.NoError(t, err)
	}

	cred, err := v.Resolve(ctx, tenantA, "synthesis")
	require.NoError(t, err)
	defer cred.Wipe()
	assert.Equal(t, "sk-aaa", cred.APIKey())
}
