// Package session keeps short conversational memory per tenant session: the
// last turns of query, route decision, and answer. Session state is advisory
// routing context, never an authorization input.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/veridia-ai/veridia-core/pkg/models"
)

const (
	// DefaultWindow bounds how many turns a session retains.
	DefaultWindow = 10
	// DefaultTTL expires idle sessions.
	DefaultTTL = 30 * time.Minute
)

// Store defines session memory.
type Store interface {
	// Append records one completed turn, trimming history to the window.
	Append(ctx context.Context, tenantID uuid.UUID, sessionID string, turn models.Turn) error

	// History returns the retained turns, oldest first. Unknown sessions
	// return an empty history, not an error.
	History(ctx context.Context, tenantID uuid.UUID, sessionID string) ([]models.Turn, error)

	// Clear discards a session.
	Clear(ctx context.Context, tenantID uuid.UUID, sessionID string) error
}

// memoryStore is the in-process Store used when Redis is not configured.
type memoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*memorySession
	window   int
	ttl      time.Duration
}

type memorySession struct {
	turns    []models.Turn
	lastUsed time.Time
}

// NewMemoryStore creates an in-memory session store.
func NewMemoryStore(window int, ttl time.Duration) Store {
	if window <= 0 {
		window = DefaultWindow
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &memoryStore{
		sessions: make(map[string]*memorySession),
		window:   window,
		ttl:      ttl,
	}
}

// key namespaces sessions by tenant so session ids cannot collide across
// tenants.
func key(tenantID uuid.UUID, sessionID string) string {
	return tenantID.String() + ":" + sessionID
}

func (s *memoryStore) Append(_ context.Context, tenantID uuid.UUID, sessionID string, turn models.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.evictExpired()

	k := key(tenantID, sessionID)
	sess, ok := s.sessions[k]
	if !ok {
		sess = &memorySession{}
		s.sessions[k] = sess
	}

	sess.turns = append(sess.turns, turn)
	if len(sess.turns) > s.window {
		sess.turns = sess.turns[len(sess.turns)-s.window:]
	}
	sess.lastUsed = time.Now()
	return nil
}

func (s *memoryStore) History(_ context.Context, tenantID uuid.UUID, sessionID string) ([]models.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[key(tenantID, sessionID)]
	if !ok || time.Since(sess.lastUsed) > s.ttl {
		return nil, nil
	}

	turns := make([]models.Turn, len(sess.turns))
	copy(turns, sess.turns)
	return turns, nil
}

func (s *memoryStore) Clear(_ context.Context, tenantID uuid.UUID, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, key(tenantID, sessionID))
	return nil
}

// evictExpired drops idle sessions. Caller holds the write lock.
func (s *memoryStore) evictExpired() {
	now := time.Now()
	for k, sess := range s.sessions {
		if now.Sub(sess.lastUsed) > s.ttl {
			delete(s.sessions, k)
		}
	}
}

var _ Store = (*memoryStore)(nil)
