package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/veridia-ai/veridia-core/pkg/models"
)

// redisStore persists session memory in Redis so sessions survive restarts
// and are shared across instances. Turns live in a list per session with a
// TTL refreshed on every append.
type redisStore struct {
	client *redis.Client
	window int
	ttl    time.Duration
}

// NewRedisStore creates a Redis-backed session store.
func NewRedisStore(client *redis.Client, window int, ttl time.Duration) Store {
	if window <= 0 {
		window = DefaultWindow
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &redisStore{client: client, window: window, ttl: ttl}
}

func redisKey(tenantID uuid.UUID, sessionID string) string {
	return "session:" + tenantID.String() + ":" + sessionID
}

func (s *redisStore) Append(ctx context.Context, tenantID uuid.UUID, sessionID string, turn models.Turn) error {
	payload, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("marshal turn: %w", err)
	}

	k := redisKey(tenantID, sessionID)
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, k, payload)
	pipe.LTrim(ctx, k, int64(-s.window), -1)
	pipe.Expire(ctx, k, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append turn: %w", err)
	}
	return nil
}

func (s *redisStore) History(ctx context.Context, tenantID uuid.UUID, sessionID string) ([]models.Turn, error) {
	entries, err := s.client.LRange(ctx, redisKey(tenantID, sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}

	turns := make([]models.Turn, 0, len(entries))
	for _, entry := range entries {
		var turn models.Turn
		if err := json.Unmarshal([]byte(entry), &turn); err != nil {
			return nil, fmt.Errorf("unmarshal turn: %w", err)
		}
		turns = append(turns, turn)
	}
	return turns, nil
}

func (s *redisStore) Clear(ctx context.Context, tenantID uuid.UUID, sessionID string) error {
	if err := s.client.Del(ctx, redisKey(tenantID, sessionID)).Err(); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

var _ Store = (*redisStore)(nil)
