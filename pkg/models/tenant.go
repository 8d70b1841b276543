package models

import (
	"time"

	"github.com/google/uuid"
)

// Tenant is an isolated customer account. All other entities are scoped by
// tenant ID; the ID is immutable once created.
type Tenant struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TenantPublicView is the safe external representation of a tenant.
// It reports whether secrets exist but never the secrets themselves.
type TenantPublicView struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	IsActive      bool      `json:"is_active"`
	ModelProvider string    `json:"model_provider,omitempty"`
	ModelName     string    `json:"model_name,omitempty"`
	HasModelKey   bool      `json:"has_model_key"`
	SQLEnabled    bool      `json:"sql_enabled"`
	AllowedTables []string  `json:"allowed_tables,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// MaskedAPIKey returns a masked version of a key: "sk-a...wxyz".
func MaskedAPIKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 8 {
		return "***"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
