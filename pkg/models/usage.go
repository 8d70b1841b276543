package models

import (
	"time"

	"github.com/google/uuid"
)

// UsageRecord is one metered query, recorded after the request completes.
type UsageRecord struct {
	TenantID        uuid.UUID `json:"tenant_id"`
	Timestamp       time.Time `json:"timestamp"`
	Strategy        Strategy  `json:"strategy"`
	Model           string    `json:"model"`
	EstimatedTokens int       `json:"estimated_tokens"`
	Success         bool      `json:"success"`
}
