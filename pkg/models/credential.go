package models

import (
	"time"

	"github.com/google/uuid"
)

// CredentialRecord is the persisted, encrypted form of a tenant model
// credential. Ciphertext carries base64(nonce || ciphertext || tag) and is
// never logged or returned in any response.
type CredentialRecord struct {
	TenantID   uuid.UUID     `json:"tenant_id"`
	Provider   ModelProvider `json:"provider"`
	Ciphertext string        `json:"-"`
	Model      string        `json:"model"`
	Endpoint   string        `json:"endpoint,omitempty"`
	UpdatedAt  time.Time     `json:"updated_at"`
}
