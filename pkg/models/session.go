package models

import (
	"time"

	"github.com/google/uuid"
)

// Turn is one completed exchange within a session.
type Turn struct {
	Query    string        `json:"query"`
	Decision RouteDecision `json:"decision"`
	Answer   string        `json:"answer"`
	At       time.Time     `json:"at"`
}

// Session identifies a multi-turn conversation. The session ID is opaque and
// generated per client-initiated conversation; history is append-only for
// the lifetime of the session.
type Session struct {
	ID       string    `json:"id"`
	TenantID uuid.UUID `json:"tenant_id"`
}

// NewSessionID generates an opaque session identifier.
func NewSessionID() string {
	return uuid.NewString()
}
