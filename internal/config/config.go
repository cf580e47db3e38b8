package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/FairForge/sal/internal/engine"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Engine      EngineConfig      `yaml:"engine"`
	Audit       AuditConfig       `yaml:"audit"`
	Encryption  EncryptionConfig  `yaml:"encryption"`
	Compression CompressionConfig `yaml:"compression"`
	Alerting    AlertingConfig    `yaml:"alerting"`
	Providers   []ProviderConfig  `yaml:"providers"`
	Policies    []PolicyConfig    `yaml:"policies"`
	PolicyFile  string            `yaml:"policy_file"`
}

type ServerConfig struct {
	MetricsAddr    string        `yaml:"metrics_addr"`
	LogLevel       string        `yaml:"log_level"`
	LogFormat      string        `yaml:"log_format"` // json or console
	HealthInterval time.Duration `yaml:"health_interval"`
	HealthTimeout  time.Duration `yaml:"health_timeout"`
}

type EngineConfig struct {
	ErrorThreshold float64 `yaml:"error_threshold"`
}

type AuditConfig struct {
	Component   string `yaml:"component"`
	MaxEvents   int    `yaml:"max_events"` // 0 keeps everything
	Archive     string `yaml:"archive"`    // none, file or sqlite
	ArchivePath string `yaml:"archive_path"`
	ExportPath  string `yaml:"export_path"` // written on shutdown
}

type EncryptionConfig struct {
	Algorithm string `yaml:"algorithm"`
	Key       string `yaml:"key"`     // hex, 32 bytes
	KeyEnv    string `yaml:"key_env"` // read the key from this variable instead
}

type CompressionConfig struct {
	Algorithm string `yaml:"algorithm"` // zstd, snappy or none
	Level     int    `yaml:"level"`
}

type AlertingConfig struct {
	WebhookURL   string `yaml:"webhook_url"`
	MinSeverity  string `yaml:"min_severity"`
	RecorderSize int    `yaml:"recorder_size"`
}

type ProviderConfig struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Priority int    `yaml:"priority"`
	Enabled  *bool  `yaml:"enabled"`

	// Driver "memory" keeps the provider's data in process, for dry runs
	Driver string `yaml:"driver"`

	Local LocalConfig `yaml:"local"`
	S3    S3Config    `yaml:"s3"`
	LOB   LOBConfig   `yaml:"lob"`
	Redis RedisConfig `yaml:"redis"`
	Mongo MongoConfig `yaml:"mongo"`

	Retry RetryConfig `yaml:"retry"`
}

// IsEnabled treats a missing enabled flag as true
func (p ProviderConfig) IsEnabled() bool {
	return p.Enabled == nil || *p.Enabled
}

// RetryConfig enables retries of transient backend failures when
// MaxAttempts is above one
type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
}

type LocalConfig struct {
	Path string `yaml:"path"`
}

type S3Config struct {
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	PathStyle bool   `yaml:"path_style"`
}

type LOBConfig struct {
	Endpoint          string        `yaml:"endpoint"`
	Token             string        `yaml:"token"`
	Channel           string        `yaml:"channel"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
	MaxObjectSize     int64         `yaml:"max_object_size"`
	Timeout           time.Duration `yaml:"timeout"`
}

type RedisConfig struct {
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	KeyPrefix string        `yaml:"key_prefix"`
	TTL       time.Duration `yaml:"ttl"`
}

type MongoConfig struct {
	URI            string        `yaml:"uri"`
	Database       string        `yaml:"database"`
	Collection     string        `yaml:"collection"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// PolicyConfig is the file form of engine.RoutingPolicy
type PolicyConfig struct {
	Level       string   `yaml:"level" json:"level"`
	Primary     string   `yaml:"primary" json:"primary"`
	Fallback    []string `yaml:"fallback" json:"fallback,omitempty"`
	Encryption  bool     `yaml:"encryption" json:"encryption"`
	Compression bool     `yaml:"compression" json:"compression"`
}

// RoutingPolicy converts the file form into the engine type
func (p PolicyConfig) RoutingPolicy() (engine.RoutingPolicy, error) {
	level, err := engine.ParseSecurityLevel(p.Level)
	if err != nil {
		return engine.RoutingPolicy{}, fmt.Errorf("%w: %v", ErrInvalidPolicy, err)
	}
	primary, err := engine.ParseProviderType(p.Primary)
	if err != nil {
		return engine.RoutingPolicy{}, fmt.Errorf("%w: %s: %v", ErrInvalidPolicy, level, err)
	}
	chain := make([]engine.ProviderType, 0, len(p.Fallback))
	for _, f := range p.Fallback {
		t, err := engine.ParseProviderType(f)
		if err != nil {
			return engine.RoutingPolicy{}, fmt.Errorf("%w: %s: %v", ErrInvalidPolicy, level, err)
		}
		chain = append(chain, t)
	}
	return engine.RoutingPolicy{
		SecurityLevel:      level,
		Primary:            primary,
		FallbackChain:      chain,
		EncryptionRequired: p.Encryption,
		CompressionEnabled: p.Compression,
	}, nil
}

// Default returns a configuration that runs with a single local provider
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			MetricsAddr:    ":9090",
			LogLevel:       "info",
			LogFormat:      "json",
			HealthInterval: 30 * time.Second,
			HealthTimeout:  5 * time.Second,
		},
		Engine: EngineConfig{
			ErrorThreshold: engine.DefaultErrorThreshold,
		},
		Audit: AuditConfig{
			Component: engine.ComponentName,
			Archive:   "none",
		},
		Encryption: EncryptionConfig{
			Algorithm: "XChaCha20-Poly1305",
		},
		Compression: CompressionConfig{
			Algorithm: "zstd",
			Level:     3,
		},
		Alerting: AlertingConfig{
			MinSeverity:  "warning",
			RecorderSize: 1000,
		},
		Providers: []ProviderConfig{
			{Name: "local", Type: "local", Local: LocalConfig{Path: "./data"}},
		},
	}
}

// Load reads path (if non-empty) over the defaults, then applies
// environment overrides and validates the result
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := Parse(data, cfg); err != nil {
			return nil, err
		}
	}
	if err := LoadFromEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML into cfg. Keys absent from data keep their values.
func Parse(data []byte, cfg *Config) error {
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

// Validate checks cross-field constraints
func (c *Config) Validate() error {
	var errs []error

	if c.Engine.ErrorThreshold <= 0 || c.Engine.ErrorThreshold > 1 {
		errs = append(errs, fmt.Errorf("engine.error_threshold must be in (0, 1], got %v", c.Engine.ErrorThreshold))
	}
	switch c.Server.LogFormat {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("server.log_format must be json or console, got %q", c.Server.LogFormat))
	}
	switch c.Audit.Archive {
	case "", "none":
	case "file", "sqlite":
		if c.Audit.ArchivePath == "" {
			errs = append(errs, fmt.Errorf("audit.archive_path is required for %s archive", c.Audit.Archive))
		}
	default:
		errs = append(errs, fmt.Errorf("audit.archive must be none, file or sqlite, got %q", c.Audit.Archive))
	}
	if c.Audit.MaxEvents < 0 {
		errs = append(errs, errors.New("audit.max_events must not be negative"))
	}

	if len(c.Providers) == 0 {
		errs = append(errs, errors.New("at least one provider is required"))
	}
	seen := make(map[string]bool)
	for i, p := range c.Providers {
		if _, err := engine.ParseProviderType(p.Type); err != nil {
			errs = append(errs, fmt.Errorf("providers[%d]: %w", i, err))
		}
		name := p.Name
		if name == "" {
			name = p.Type
		}
		if p.Driver != "" && p.Driver != "memory" {
			errs = append(errs, fmt.Errorf("providers[%d]: unknown driver %q", i, p.Driver))
		}
		if seen[name] {
			errs = append(errs, fmt.Errorf("providers[%d]: duplicate name %q", i, name))
		}
		seen[name] = true
	}

	for i, p := range c.Policies {
		if _, err := p.RoutingPolicy(); err != nil {
			errs = append(errs, fmt.Errorf("policies[%d]: %w", i, err))
		}
	}

	return errors.Join(errs...)
}

// RoutingPolicies returns the built-in table overlaid with the inline
// policies
func (c *Config) RoutingPolicies() (map[engine.SecurityLevel]engine.RoutingPolicy, error) {
	policies := engine.DefaultPolicies()
	for _, pc := range c.Policies {
		p, err := pc.RoutingPolicy()
		if err != nil {
			return nil, err
		}
		policies[p.SecurityLevel] = p
	}
	return policies, nil
}
