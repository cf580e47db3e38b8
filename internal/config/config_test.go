package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/FairForge/sal/internal/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
server:
  metrics_addr: ":9100"
  log_level: debug
  log_format: console
  health_interval: 15s
  health_timeout: 2s
engine:
  error_threshold: 0.01
audit:
  max_events: 5000
  archive: sqlite
  archive_path: /var/lib/sal/audit.db
compression:
  algorithm: snappy
providers:
  - name: s3-primary
    type: s3
    priority: 10
    s3:
      endpoint: http://minio:9000
      bucket: vault
      path_style: true
  - name: lob
    type: lob
    lob:
      endpoint: http://gateway:8080
      channel: archive
      requests_per_second: 5
      timeout: 20s
    retry:
      max_attempts: 4
      initial_delay: 250ms
  - name: cold
    type: local
    enabled: false
    local:
      path: /srv/sal
  - name: cache
    type: redis
    driver: memory
policies:
  - level: public
    primary: redis
    fallback: [lob]
    compression: true
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sal.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, ":9100", cfg.Server.MetricsAddr)
	assert.Equal(t, "console", cfg.Server.LogFormat)
	assert.Equal(t, 15*time.Second, cfg.Server.HealthInterval)
	assert.Equal(t, 0.01, cfg.Engine.ErrorThreshold)
	assert.Equal(t, "sqlite", cfg.Audit.Archive)
	assert.Equal(t, engine.ComponentName, cfg.Audit.Component, "unset keys keep defaults")
	assert.Equal(t, "snappy", cfg.Compression.Algorithm)
	assert.Equal(t, 3, cfg.Compression.Level)

	require.Len(t, cfg.Providers, 4)
	assert.Equal(t, "vault", cfg.Providers[0].S3.Bucket)
	assert.True(t, cfg.Providers[0].S3.PathStyle)
	assert.Equal(t, 20*time.Second, cfg.Providers[1].LOB.Timeout)
	assert.True(t, cfg.Providers[1].IsEnabled())
	assert.Equal(t, 4, cfg.Providers[1].Retry.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Providers[1].Retry.InitialDelay)
	assert.Zero(t, cfg.Providers[0].Retry.MaxAttempts)
	assert.False(t, cfg.Providers[2].IsEnabled())
	assert.Equal(t, "memory", cfg.Providers[3].Driver)

	policies, err := cfg.RoutingPolicies()
	require.NoError(t, err)
	assert.Len(t, policies, 4)
	assert.Equal(t, engine.ProviderRedis, policies[engine.LevelPublic].Primary)
	assert.Equal(t, []engine.ProviderType{engine.ProviderLOB}, policies[engine.LevelPublic].FallbackChain)
	assert.False(t, policies[engine.LevelPublic].EncryptionRequired)
	assert.Equal(t, engine.ProviderLocal, policies[engine.LevelSecret].Primary, "other levels keep the built-in policy")
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, engine.DefaultErrorThreshold, cfg.Engine.ErrorThreshold)
	require.Len(t, cfg.Providers, 1)
	assert.Equal(t, "local", cfg.Providers[0].Type)

	policies, err := cfg.RoutingPolicies()
	require.NoError(t, err)
	assert.Equal(t, engine.DefaultPolicies(), policies)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "server: [unclosed"))
	assert.Error(t, err)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv(EnvLogLevel, "warn")
	t.Setenv(EnvMetricsAddr, ":7000")
	t.Setenv(EnvErrorThreshold, "0.02")
	t.Setenv(EnvEncryptionKey, "abcd")

	cfg := Default()
	require.NoError(t, LoadFromEnv(cfg))
	assert.Equal(t, "warn", cfg.Server.LogLevel)
	assert.Equal(t, ":7000", cfg.Server.MetricsAddr)
	assert.Equal(t, 0.02, cfg.Engine.ErrorThreshold)
	assert.Equal(t, "abcd", cfg.EncryptionKey())

	t.Setenv(EnvErrorThreshold, "lots")
	assert.Error(t, LoadFromEnv(Default()))
}

func TestEncryptionKey_PrefersKeyEnv(t *testing.T) {
	cfg := Default()
	cfg.Encryption.Key = "inline"
	assert.Equal(t, "inline", cfg.EncryptionKey())

	cfg.Encryption.KeyEnv = "SAL_TEST_VAULT_KEY"
	assert.Equal(t, "inline", cfg.EncryptionKey(), "unset variable falls back to the inline key")

	t.Setenv("SAL_TEST_VAULT_KEY", "from-env")
	assert.Equal(t, "from-env", cfg.EncryptionKey())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"threshold zero", func(c *Config) { c.Engine.ErrorThreshold = 0 }, "error_threshold"},
		{"threshold above one", func(c *Config) { c.Engine.ErrorThreshold = 1.5 }, "error_threshold"},
		{"log format", func(c *Config) { c.Server.LogFormat = "xml" }, "log_format"},
		{"archive path", func(c *Config) { c.Audit.Archive = "file" }, "archive_path"},
		{"archive kind", func(c *Config) { c.Audit.Archive = "s3" }, "audit.archive"},
		{"max events", func(c *Config) { c.Audit.MaxEvents = -1 }, "max_events"},
		{"no providers", func(c *Config) { c.Providers = nil }, "at least one provider"},
		{"provider type", func(c *Config) { c.Providers[0].Type = "ftp" }, "providers[0]"},
		{"driver", func(c *Config) { c.Providers[0].Driver = "disk" }, "unknown driver"},
		{"duplicate name", func(c *Config) {
			c.Providers = append(c.Providers, ProviderConfig{Type: "local"})
		}, "duplicate name"},
		{"policy", func(c *Config) {
			c.Policies = []PolicyConfig{{Level: "PUBLIC", Primary: "tape"}}
		}, "policies[0]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}

	t.Run("errors are joined", func(t *testing.T) {
		cfg := Default()
		cfg.Engine.ErrorThreshold = 0
		cfg.Server.LogFormat = "xml"
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "error_threshold")
		assert.Contains(t, err.Error(), "log_format")
	})

	assert.NoError(t, Default().Validate())
}

func TestGetEnvOrDefault(t *testing.T) {
	t.Setenv("SAL_TEST_SET", "value")
	assert.Equal(t, "value", GetEnvOrDefault("SAL_TEST_SET", "fallback"))
	assert.Equal(t, "fallback", GetEnvOrDefault("SAL_TEST_UNSET_VARIABLE", "fallback"))
}
