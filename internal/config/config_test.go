package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("EXPOSURE_SEARCH_CONFIG", "")
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":50051", cfg.Server.Address)
	assert.Equal(t, 10*time.Second, cfg.Search.PerSourceTimeout)
	assert.Equal(t, 15*time.Second, cfg.Search.GlobalTimeout)
	assert.Equal(t, 8, cfg.Search.FanOutWorkers)
	assert.Equal(t, 12, cfg.Search.DefaultMonthsBack)
	assert.Equal(t, 2*time.Minute, cfg.Monitor.ProbeInterval)
	assert.Equal(t, 100, cfg.Monitor.WindowSize)
	assert.True(t, cfg.Sources.Internal.Enabled)
	assert.Empty(t, cfg.Sources.External)
}

func TestLoadExternalSourcesWithDefaults(t *testing.T) {
	path := writeConfig(t, `
search:
  perSourceTimeout: 2s
  globalTimeout: 3s
sources:
  external:
    - name: breachapi
      enabled: true
      baseURL: http://localhost:8085
      priority: 2
      rateLimitPerHour: 50
      breaker:
        failureThreshold: 3
        coolDown: 1m
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Sources.External, 1)

	ext := cfg.Sources.External[0]
	assert.Equal(t, "breachapi", ext.DisplayName)
	assert.Equal(t, "/search", ext.SearchPath)
	assert.Equal(t, 2, ext.Priority)
	assert.Equal(t, 50, ext.RateLimitPerHour)
	assert.Equal(t, 3, ext.Breaker.FailureThreshold)
	assert.Equal(t, time.Minute, ext.Breaker.CoolDown)
	assert.Equal(t, 3, ext.Retry.Attempts)
	assert.Equal(t, 4, ext.Bulkhead.Size)
	assert.Equal(t, 5*time.Minute, ext.HealthTTL)
	assert.Equal(t, 2*time.Second, cfg.Search.PerSourceTimeout)
}

func TestEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
sources:
  external:
    - name: breach-api
      baseURL: http://localhost:8085
`)
	t.Setenv("EXPOSURE_SEARCH_SERVER_ADDRESS", ":6000")
	t.Setenv("EXPOSURE_SEARCH_LOG_FORMAT", "json")
	t.Setenv("EXPOSURE_SEARCH_CACHE_ENABLED", "false")
	t.Setenv("EXPOSURE_SEARCH_SOURCE_BREACH_API_API_KEY", "s3cret")
	t.Setenv("EXPOSURE_SEARCH_SOURCE_BREACH_API_ENABLED", "1")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":6000", cfg.Server.Address)
	assert.True(t, cfg.Logging.JSON)
	assert.False(t, cfg.Cache.Enabled)
	assert.Equal(t, "s3cret", cfg.Sources.External[0].APIKey)
	assert.True(t, cfg.Sources.External[0].Enabled)
}

func TestValidateRejectsBadSources(t *testing.T) {
	_, err := Load(writeConfig(t, `
sources:
  external:
    - name: a
      baseURL: http://x
    - name: a
      baseURL: http://y
`))
	assert.ErrorContains(t, err, "duplicate")

	_, err = Load(writeConfig(t, `
sources:
  external:
    - name: internal
`))
	assert.ErrorContains(t, err, "duplicate")

	_, err = Load(writeConfig(t, `
sources:
  external:
    - name: b
      enabled: true
`))
	assert.ErrorContains(t, err, "baseURL")

	_, err = Load(writeConfig(t, `
search:
  perSourceTimeout: 20s
  globalTimeout: 5s
`))
	assert.ErrorContains(t, err, "globalTimeout")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "not found")
}
