// Package config loads agentdesk configuration from YAML or JSON5 files.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/haasonsaas/agentdesk/internal/audit"
	"github.com/haasonsaas/agentdesk/internal/blobstore"
	"github.com/haasonsaas/agentdesk/internal/credentials"
	"github.com/haasonsaas/agentdesk/internal/imagegen"
	"github.com/haasonsaas/agentdesk/internal/ratelimit"
	"github.com/haasonsaas/agentdesk/internal/tts"
)

// Config is the main configuration structure for agentdesk.
type Config struct {
	Version   int             `yaml:"version"`
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	Security  SecurityConfig  `yaml:"security"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Providers ProvidersConfig `yaml:"providers"`
	Blob      BlobConfig      `yaml:"blob"`
	TTS       tts.Config      `yaml:"tts"`
	Images    imagegen.Config `yaml:"images"`
	Audit     audit.Config    `yaml:"audit"`
	Logging   LoggingConfig   `yaml:"logging"`
	Tracing   TracingConfig   `yaml:"tracing"`
}

type ServerConfig struct {
	Host            string        `yaml:"host"`
	HTTPPort        int           `yaml:"http_port"`
	MetricsPort     int           `yaml:"metrics_port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// RateLimit throttles POST /v1/messages per authenticated user.
	RateLimit ratelimit.Config `yaml:"rate_limit"`
}

type DatabaseConfig struct {
	// Driver is sqlite or postgres.
	Driver         string        `yaml:"driver"`
	DSN            string        `yaml:"dsn"`
	MaxConnections int           `yaml:"max_connections"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

type AuthConfig struct {
	JWTSecret   string        `yaml:"jwt_secret"`
	TokenExpiry time.Duration `yaml:"token_expiry"`
	Issuer      string        `yaml:"issuer"`
	// APIKeys are static keys accepted in X-API-Key alongside JWTs.
	APIKeys []APIKeyConfig `yaml:"api_keys"`
}

type APIKeyConfig struct {
	Key    string `yaml:"key"`
	UserID string `yaml:"user_id"`
	Name   string `yaml:"name"`
}

type SecurityConfig struct {
	// CredentialKey is a base64 AES-256 key for API keys at rest. Empty
	// stores keys in plaintext.
	CredentialKey string `yaml:"credential_key"`
}

type PipelineConfig struct {
	RecentContextMessages int           `yaml:"recent_context_messages"`
	SemanticContextLimit  int           `yaml:"semantic_context_limit"`
	ProviderTimeout       time.Duration `yaml:"provider_timeout"`
	OptionalTimeout       time.Duration `yaml:"optional_timeout"`
	MaxDelegationDepth    int           `yaml:"max_delegation_depth"`
}

type ProvidersConfig struct {
	// BaseURLs overrides adapter endpoints by provider id.
	BaseURLs    map[string]string `yaml:"base_urls"`
	OpenRouter  OpenRouterConfig  `yaml:"openrouter"`
	MaxAttempts int               `yaml:"max_attempts"`
}

type OpenRouterConfig struct {
	AppName string `yaml:"app_name"`
	SiteURL string `yaml:"site_url"`
}

type BlobConfig struct {
	// Backend is local or s3.
	Backend   string             `yaml:"backend"`
	LocalPath string             `yaml:"local_path"`
	S3        blobstore.S3Config `yaml:"s3"`
}

type LoggingConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	AddSource bool   `yaml:"add_source"`
}

type TracingConfig struct {
	Endpoint     string  `yaml:"endpoint"`
	ServiceName  string  `yaml:"service_name"`
	Environment  string  `yaml:"environment"`
	SamplingRate float64 `yaml:"sampling_rate"`
	Insecure     bool    `yaml:"insecure"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads the config at path, applies defaults and validates it. A .env
// file in the working directory is loaded first so ${VAR} references can
// use it; variables already set in the environment win.
func Load(path string) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, err
	}
	cfg, err := decodeRawConfig(raw)
	if err != nil {
		return nil, err
	}
	if err := ValidateVersion(cfg.Version); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Version == 0 {
		cfg.Version = CurrentVersion
	}

	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.HTTPPort == 0 {
		cfg.Server.HTTPPort = 8080
	}
	if cfg.Server.MetricsPort == 0 {
		cfg.Server.MetricsPort = 9090
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 15 * time.Second
	}
	if cfg.Server.RateLimit.RequestsPerMinute == 0 {
		cfg.Server.RateLimit.RequestsPerMinute = ratelimit.DefaultConfig().RequestsPerMinute
	}
	if cfg.Server.RateLimit.Burst == 0 {
		cfg.Server.RateLimit.Burst = ratelimit.DefaultConfig().Burst
	}

	cfg.Database.Driver = strings.ToLower(strings.TrimSpace(cfg.Database.Driver))
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.DSN == "" && cfg.Database.Driver == "sqlite" {
		cfg.Database.DSN = "file:agentdesk.db"
	}
	if cfg.Database.MaxConnections == 0 {
		cfg.Database.MaxConnections = 10
	}
	if cfg.Database.ConnectTimeout == 0 {
		cfg.Database.ConnectTimeout = 10 * time.Second
	}

	if cfg.Auth.TokenExpiry == 0 {
		cfg.Auth.TokenExpiry = 24 * time.Hour
	}
	if cfg.Auth.Issuer == "" {
		cfg.Auth.Issuer = "agentdesk"
	}

	if cfg.Pipeline.RecentContextMessages == 0 {
		cfg.Pipeline.RecentContextMessages = 20
	}
	if cfg.Pipeline.SemanticContextLimit == 0 {
		cfg.Pipeline.SemanticContextLimit = 8
	}
	if cfg.Pipeline.ProviderTimeout == 0 {
		cfg.Pipeline.ProviderTimeout = 90 * time.Second
	}
	if cfg.Pipeline.OptionalTimeout == 0 {
		cfg.Pipeline.OptionalTimeout = 20 * time.Second
	}
	if cfg.Pipeline.MaxDelegationDepth == 0 {
		cfg.Pipeline.MaxDelegationDepth = 3
	}

	if cfg.Providers.OpenRouter.AppName == "" {
		cfg.Providers.OpenRouter.AppName = "agentdesk"
	}
	if cfg.Providers.MaxAttempts == 0 {
		cfg.Providers.MaxAttempts = 3
	}

	cfg.Blob.Backend = strings.ToLower(strings.TrimSpace(cfg.Blob.Backend))
	if cfg.Blob.Backend == "" {
		cfg.Blob.Backend = "local"
	}
	if cfg.Blob.LocalPath == "" {
		cfg.Blob.LocalPath = "./data/blobs"
	}
	if cfg.Blob.S3.Region == "" {
		cfg.Blob.S3.Region = "us-east-1"
	}

	cfg.TTS.ApplyDefaults()
	if cfg.Images.Model == "" {
		cfg.Images.Model = "dall-e-3"
	}
	if cfg.Images.Size == "" {
		cfg.Images.Size = "1024x1024"
	}

	if cfg.Audit.Output == "" {
		cfg.Audit.Output = "stdout"
	}
	if cfg.Audit.Format == "" {
		cfg.Audit.Format = audit.FormatJSON
	}
	if cfg.Audit.BufferSize == 0 {
		cfg.Audit.BufferSize = 1000
	}
	if cfg.Audit.PersistTimeout == 0 {
		cfg.Audit.PersistTimeout = 5 * time.Second
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = "agentdesk"
	}
	if cfg.Tracing.SamplingRate == 0 {
		cfg.Tracing.SamplingRate = 1.0
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.Server.HTTPPort < 1 || c.Server.HTTPPort > 65535 {
		add("server.http_port must be between 1 and 65535")
	}
	if c.Server.MetricsPort < 0 || c.Server.MetricsPort > 65535 {
		add("server.metrics_port must be between 0 and 65535")
	}
	if c.Server.ShutdownTimeout < 0 {
		add("server.shutdown_timeout must be positive")
	}
	if c.Server.RateLimit.RequestsPerMinute < 0 || c.Server.RateLimit.Burst < 0 {
		add("server.rate_limit values must not be negative")
	}

	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		add("database.driver must be sqlite or postgres, got %q", c.Database.Driver)
	}
	if strings.TrimSpace(c.Database.DSN) == "" {
		add("database.dsn is required")
	}
	if c.Database.MaxConnections < 0 {
		add("database.max_connections must not be negative")
	}

	if c.Auth.TokenExpiry < 0 {
		add("auth.token_expiry must be positive")
	}
	for i, key := range c.Auth.APIKeys {
		if strings.TrimSpace(key.Key) == "" || strings.TrimSpace(key.UserID) == "" {
			add("auth.api_keys[%d] needs key and user_id", i)
		}
	}

	if strings.TrimSpace(c.Security.CredentialKey) != "" {
		if _, err := credentials.ParseKey(c.Security.CredentialKey); err != nil {
			add("security.credential_key: %w", err)
		}
	}

	if c.Pipeline.RecentContextMessages < 0 {
		add("pipeline.recent_context_messages must not be negative")
	}
	if c.Pipeline.SemanticContextLimit < 0 {
		add("pipeline.semantic_context_limit must not be negative")
	}
	if c.Pipeline.ProviderTimeout < 0 {
		add("pipeline.provider_timeout must be positive")
	}
	if c.Pipeline.OptionalTimeout < 0 {
		add("pipeline.optional_timeout must be positive")
	}
	if c.Pipeline.MaxDelegationDepth < 1 {
		add("pipeline.max_delegation_depth must be at least 1")
	}

	switch c.Blob.Backend {
	case "local":
		if strings.TrimSpace(c.Blob.LocalPath) == "" {
			add("blob.local_path is required for the local backend")
		}
	case "s3":
		if strings.TrimSpace(c.Blob.S3.Bucket) == "" {
			add("blob.s3.bucket is required for the s3 backend")
		}
	default:
		add("blob.backend must be local or s3, got %q", c.Blob.Backend)
	}

	if err := c.TTS.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Images.Validate(); err != nil {
		errs = append(errs, err)
	}

	switch c.Audit.Format {
	case audit.FormatJSON, audit.FormatText:
	default:
		add("audit.format must be json or text, got %q", c.Audit.Format)
	}

	switch strings.ToLower(c.Logging.Format) {
	case "json", "text":
	default:
		add("logging.format must be json or text, got %q", c.Logging.Format)
	}

	if c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1 {
		add("tracing.sampling_rate must be between 0 and 1")
	}

	return errors.Join(errs...)
}
