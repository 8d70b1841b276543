package retrieval

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/veridia-ai/veridia-core/pkg/logging"
	"github.com/veridia-ai/veridia-core/pkg/retry"
)

const (
	DefaultPoolTTLMinutes = 10
	DefaultCleanupEvery   = time.Minute
	DefaultPoolMaxConns   = 5
)

// PoolManagerConfig tunes per-tenant pool behavior.
type PoolManagerConfig struct {
	TTLMinutes   int
	PoolMaxConns int32
}

// PoolManager keeps one bounded pgxpool per tenant data source, evicting
// pools that sit idle past their TTL. Credentials inside the DSN never
// appear in logs; errors pass through the sanitizer first.
type PoolManager struct {
	mu       sync.RWMutex
	pools    map[string]*managedPool // key: "{tenantID}"
	ttl      time.Duration
	maxConns int32
	stopped  bool
	stopChan chan struct{}
	logger   *zap.Logger
}

type managedPool struct {
	pool     *pgxpool.Pool
	lastUsed time.Time
	mu       sync.Mutex
}

// NewPoolManager creates a pool manager and starts its cleanup goroutine,
// which runs until Close is called.
func NewPoolManager(cfg PoolManagerConfig, logger *zap.Logger) *PoolManager {
	if cfg.TTLMinutes <= 0 {
		cfg.TTLMinutes = DefaultPoolTTLMinutes
	}
	if cfg.PoolMaxConns <= 0 {
		cfg.PoolMaxConns = DefaultPoolMaxConns
	}

	m := &PoolManager{
		pools:    make(map[string]*managedPool),
		ttl:      time.Duration(cfg.TTLMinutes) * time.Minute,
		maxConns: cfg.PoolMaxConns,
		stopChan: make(chan struct{}),
		logger:   logger.Named("tenant_pools"),
	}

	go m.cleanupExpired()
	return m
}

// GetOrCreate returns the tenant's pool, creating it on first use and
// recreating it when a health check fails.
func (m *PoolManager) GetOrCreate(ctx context.Context, tenantID uuid.UUID, dsn string) (*pgxpool.Pool, error) {
	key := tenantID.String()

	m.mu.RLock()
	managed, exists := m.pools[key]
	m.mu.RUnlock()

	if exists {
		managed.mu.Lock()

		healthCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := retry.Do(healthCtx, retry.DefaultConfig(), func() error {
			return managed.pool.Ping(healthCtx)
		})
		cancel()

		if err != nil {
			m.logger.Warn("Tenant pool unhealthy, recreating",
				zap.String("tenant_id", key),
				zap.String("error", logging.SanitizeError(err)))
			managed.mu.Unlock()
			m.remove(key)
			return m.create(ctx, key, dsn)
		}

		managed.lastUsed = time.Now()
		managed.mu.Unlock()
		return managed.pool, nil
	}

	return m.create(ctx, key, dsn)
}

func (m *PoolManager) create(ctx context.Context, key, dsn string) (*pgxpool.Pool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return nil, fmt.Errorf("pool manager is closed")
	}

	// Another request may have created it while we waited for the lock
	if managed, exists := m.pools[key]; exists {
		managed.lastUsed = time.Now()
		return managed.pool, nil
	}

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse tenant dsn: %s", logging.SanitizeError(err))
	}
	poolConfig.MaxConns = m.maxConns

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create tenant pool: %s", logging.SanitizeError(err))
	}

	m.pools[key] = &managedPool{pool: pool, lastUsed: time.Now()}
	m.logger.Info("Tenant pool created", zap.String("tenant_id", key))
	return pool, nil
}

func (m *PoolManager) remove(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if managed, exists := m.pools[key]; exists {
		managed.pool.Close()
		delete(m.pools, key)
	}
}

// Invalidate closes and forgets a tenant's pool, for policy changes.
func (m *PoolManager) Invalidate(tenantID uuid.UUID) {
	m.remove(tenantID.String())
}

func (m *PoolManager) cleanupExpired() {
	ticker := time.NewTicker(DefaultCleanupEvery)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopChan:
			return
		case <-ticker.C:
			m.mu.Lock()
			now := time.Now()
			for key, managed := range m.pools {
				if now.Sub(managed.lastUsed) > m.ttl {
					managed.pool.Close()
					delete(m.pools, key)
					m.logger.Info("Evicted idle tenant pool", zap.String("tenant_id", key))
				}
			}
			m.mu.Unlock()
		}
	}
}

// Close stops the cleanup goroutine and closes every pool.
func (m *PoolManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return
	}
	m.stopped = true
	close(m.stopChan)
	for key, managed := range m.pools {
		managed.pool.Close()
		delete(m.pools, key)
	}
}
