package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miradorstack/mirador-reliability/internal/utils"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("MIRADOR_RELIABILITY_CONFIG", "")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":50051", cfg.Server.Address)
	assert.Equal(t, 10, cfg.Workers.PoolSize)
	assert.Equal(t, 30*time.Second, cfg.Workers.TaskTimeout)
	assert.Equal(t, 2*time.Minute, cfg.Cache.Reports.WriteTTL)
	assert.Equal(t, time.Minute, cfg.Cache.Windows.RefreshAfter)
	assert.Equal(t, "/api/v1/regression", cfg.Analytics.Paths.Regression)
	assert.False(t, cfg.Cache.Redis.Enabled)
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := []byte(`
server:
  address: ":6000"
analytics:
  baseURL: http://analytics.local
  paths:
    regression: /v2/regression
cache:
  reports:
    maxEntries: 50
    writeTTL: 30s
workers:
  poolSize: 4
`)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	t.Setenv("MIRADOR_RELIABILITY_WORKERS_POOL_SIZE", "6")
	t.Setenv("MIRADOR_RELIABILITY_TASK_TIMEOUT", "5s")
	t.Setenv("MIRADOR_RELIABILITY_LOG_FORMAT", "json")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":6000", cfg.Server.Address)
	assert.Equal(t, "http://analytics.local", cfg.Analytics.BaseURL)
	assert.Equal(t, "/v2/regression", cfg.Analytics.Paths.Regression)
	assert.Equal(t, "/api/v1/events", cfg.Analytics.Paths.Events, "unset paths keep their defaults")
	assert.Equal(t, 50, cfg.Cache.Reports.MaxEntries)
	assert.Equal(t, 30*time.Second, cfg.Cache.Reports.WriteTTL)
	assert.Equal(t, 6, cfg.Workers.PoolSize)
	assert.Equal(t, 5*time.Second, cfg.Workers.TaskTimeout)
	assert.True(t, cfg.Logging.JSON)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestValidateRedisNeedsAddress(t *testing.T) {
	t.Setenv("MIRADOR_RELIABILITY_CONFIG", "")
	t.Setenv("MIRADOR_RELIABILITY_REDIS_ENABLED", "true")

	_, err := Load("")
	require.Error(t, err)
	assert.True(t, utils.IsConfiguration(err))
}
