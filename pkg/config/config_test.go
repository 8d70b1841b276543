package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Load runs from the working directory; chdir into a scratch dir so a
// repo-root config.yaml does not leak into the test.
func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
	return dir
}

func TestLoadRequiresMasterKey(t *testing.T) {
	chdirTemp(t)
	t.Setenv("VAULT_MASTER_KEY", "")

	_, err := Load("test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "VAULT_MASTER_KEY")
}

func TestLoadFromEnv(t *testing.T) {
	chdirTemp(t)
	t.Setenv("VAULT_MASTER_KEY", "test-master-key")
	t.Setenv("PGHOST", "db.internal")
	t.Setenv("REDIS_HOST", "cache.internal")

	cfg, err := Load("1.2.3")
	require.NoError(t, err)

	assert.Equal(t, "1.2.3", cfg.Version)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, "cache.internal", cfg.Redis.Host)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 0.6, cfg.Router.ConfidenceThreshold)
	assert.Equal(t, int32(5), cfg.Retrieval.PoolMaxConns)
}

func TestLoadFromYAMLWithEnvOverride(t *testing.T) {
	dir := chdirTemp(t)
	yaml := `env: staging
port: "9090"
database:
  host: yaml-db
  max_connections: 10
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))
	t.Setenv("VAULT_MASTER_KEY", "test-master-key")
	t.Setenv("PGHOST", "env-db")

	cfg, err := Load("test")
	require.NoError(t, err)

	assert.Equal(t, "staging", cfg.Env)
	assert.Equal(t, "9090", cfg.Port)
	// Environment wins over yaml
	assert.Equal(t, "env-db", cfg.Database.Host)
	assert.Equal(t, int32(10), cfg.Database.MaxConnections)
}

func TestConnectionString(t *testing.T) {
	c := &DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "veridia",
		Password: "pw",
		Database: "veridia_core",
		SSLMode:  "disable",
	}
	assert.Equal(t,
		"host=localhost port=5432 user=veridia password=pw dbname=veridia_core sslmode=disable",
		c.ConnectionString())
}
