package config

import (
	"fmt"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for veridia-core.
// Configuration comes from config.yaml with environment variable overrides.
// Secrets (VAULT_MASTER_KEY, PGPASSWORD) must only come from environment
// variables (yaml:"-" fields).
type Config struct {
	Env     string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Port    string `yaml:"port" env:"PORT" env-default:"8080"`
	Version string `yaml:"-"` // set at load time, not from config

	// Database is the core's own metadata store (tenants, credentials,
	// policies, audit). Tenant data sources are configured per tenant.
	Database DatabaseConfig `yaml:"database"`

	// Redis backs session state when configured; empty host selects the
	// in-memory store.
	Redis RedisConfig `yaml:"redis"`

	Router    RouterConfig    `yaml:"router"`
	Retrieval RetrievalConfig `yaml:"retrieval"`

	// VaultMasterKey encrypts tenant credentials at rest. A 32-byte key,
	// base64 encoded (openssl rand -base64 32). Startup fails without it.
	VaultMasterKey string `yaml:"-" env:"VAULT_MASTER_KEY"`
}

// DatabaseConfig holds PostgreSQL configuration for the metadata store.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"veridia"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // secret, env only
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"veridia_core"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
}

// RedisConfig holds optional Redis configuration for session state.
type RedisConfig struct {
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:""`
	Port     int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `yaml:"-" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

// RouterConfig tunes query classification.
type RouterConfig struct {
	// ConfidenceThreshold below which the router defaults to hybrid when a
	// database policy exists.
	ConfidenceThreshold float64 `yaml:"confidence_threshold" env:"ROUTER_CONFIDENCE_THRESHOLD" env-default:"0.6"`
	// HistoryWindow bounds how many prior turns inform continuity.
	HistoryWindow int `yaml:"history_window" env:"ROUTER_HISTORY_WINDOW" env-default:"5"`
}

// RetrievalConfig tunes tenant data-source access.
type RetrievalConfig struct {
	// PoolMaxConns caps each per-tenant connection pool.
	PoolMaxConns int32 `yaml:"pool_max_conns" env:"RETRIEVAL_POOL_MAX_CONNS" env-default:"5"`
	// PoolTTLMinutes evicts idle tenant pools.
	PoolTTLMinutes int `yaml:"pool_ttl_minutes" env:"RETRIEVAL_POOL_TTL_MINUTES" env-default:"10"`
	// VectorTopK is the passage count requested from the vector index.
	VectorTopK int `yaml:"vector_top_k" env:"RETRIEVAL_VECTOR_TOP_K" env-default:"5"`
}

// Load reads configuration from config.yaml with environment overrides.
// The version parameter is injected at build time.
func Load(version string) (*Config, error) {
	cfg := &Config{Version: version}

	if _, err := os.Stat("config.yaml"); err == nil {
		if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
			return nil, fmt.Errorf("failed to read config.yaml: %w", err)
		}
	} else {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	}

	if cfg.VaultMasterKey == "" {
		return nil, fmt.Errorf("VAULT_MASTER_KEY is required")
	}

	return cfg, nil
}

// ConnectionString returns a PostgreSQL connection string for the metadata
// store.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}
