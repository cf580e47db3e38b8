package config

import (
	"fmt"
	"os"
	"strconv"
)

// Environment variables recognised by LoadFromEnv
const (
	EnvConfig         = "SAL_CONFIG"
	EnvLogLevel       = "SAL_LOG_LEVEL"
	EnvMetricsAddr    = "SAL_METRICS_ADDR"
	EnvErrorThreshold = "SAL_ERROR_THRESHOLD"
	EnvEncryptionKey  = "SAL_ENCRYPTION_KEY"
)

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv(cfg *Config) error {
	if logLevel := os.Getenv(EnvLogLevel); logLevel != "" {
		cfg.Server.LogLevel = logLevel
	}

	if addr := os.Getenv(EnvMetricsAddr); addr != "" {
		cfg.Server.MetricsAddr = addr
	}

	if threshold := os.Getenv(EnvErrorThreshold); threshold != "" {
		t, err := strconv.ParseFloat(threshold, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvErrorThreshold, err)
		}
		cfg.Engine.ErrorThreshold = t
	}

	if key := os.Getenv(EnvEncryptionKey); key != "" {
		cfg.Encryption.Key = key
	}

	return nil
}

// EncryptionKey resolves the configured key, preferring key_env
func (c *Config) EncryptionKey() string {
	if c.Encryption.KeyEnv != "" {
		if v := os.Getenv(c.Encryption.KeyEnv); v != "" {
			return v
		}
	}
	return c.Encryption.Key
}

// GetEnvOrDefault returns environment variable or default value
func GetEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
