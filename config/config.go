// Package config loads CLI settings from ADSYNC_* environment variables.
package config

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	Server ServerConfig
	Auth   AuthConfig
	Cache  CacheConfig
	Push   PushConfig
	Log    LogConfig
}

type ServerConfig struct {
	// BaseURL is the order service root, e.g. https://api.example.com.
	BaseURL        string        `env:"ADSYNC_BASE_URL, required"`
	RequestTimeout time.Duration `env:"ADSYNC_REQUEST_TIMEOUT, default=30s"`
	MaxBodyBytes   int64         `env:"ADSYNC_MAX_BODY_BYTES, default=8388608"`
}

// AuthConfig holds optional credentials. When both are set the CLI logs in
// before running a command.
type AuthConfig struct {
	Email    string `env:"ADSYNC_EMAIL"`
	Password string `env:"ADSYNC_PASSWORD"`
}

// CacheConfig specifies the client cache and the ETag validator store.
type CacheConfig struct {
	IdleTimeout    time.Duration `env:"ADSYNC_IDLE_TIMEOUT, default=60s"`
	MaxIdleEntries int           `env:"ADSYNC_MAX_IDLE_ENTRIES, default=10000"`

	// Validators selects the ETag store: "ristretto" (default), "bigcache"
	// or "none".
	Validators   string        `env:"ADSYNC_VALIDATOR_STORE, default=ristretto"`
	ValidatorTTL time.Duration `env:"ADSYNC_VALIDATOR_TTL, default=10m"`
}

type PushConfig struct {
	InitialBackoff time.Duration `env:"ADSYNC_PUSH_INITIAL_BACKOFF, default=500ms"`
	MaxBackoff     time.Duration `env:"ADSYNC_PUSH_MAX_BACKOFF, default=30s"`
}

type LogConfig struct {
	// Backend is one of "zap" (default), "zerolog", "logrus" or "slog".
	Backend string `env:"ADSYNC_LOG_BACKEND, default=zap"`
	Level   string `env:"ADSYNC_LOG_LEVEL, default=info"`

	// Format is "console" or "json".
	Format string `env:"ADSYNC_LOG_FORMAT, default=console"`
}

// Load reads the OS environment. Entries in overrides take precedence, so
// command-line flags can stand in for unset variables.
func Load(ctx context.Context, overrides map[string]string) (Config, error) {
	return load(ctx, envconfig.MultiLookuper(
		envconfig.MapLookuper(overrides),
		envconfig.OsLookuper(),
	))
}

func load(ctx context.Context, lookup envconfig.Lookuper) (Config, error) {
	var cfg Config
	err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookup,
	})
	if err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	u, err := url.Parse(c.Server.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("ADSYNC_BASE_URL must be an absolute URL, got %q", c.Server.BaseURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("ADSYNC_BASE_URL scheme must be http or https")
	}
	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("ADSYNC_MAX_BODY_BYTES must be positive")
	}
	if c.Cache.IdleTimeout < 0 {
		return fmt.Errorf("ADSYNC_IDLE_TIMEOUT must not be negative")
	}

	switch c.Cache.Validators {
	case "ristretto", "bigcache", "none":
	default:
		return fmt.Errorf("unknown ADSYNC_VALIDATOR_STORE %q", c.Cache.Validators)
	}
	if c.Cache.Validators == "bigcache" && c.Cache.ValidatorTTL <= 0 {
		return fmt.Errorf("ADSYNC_VALIDATOR_TTL required when ADSYNC_VALIDATOR_STORE=bigcache")
	}

	if c.Push.InitialBackoff <= 0 || c.Push.MaxBackoff < c.Push.InitialBackoff {
		return fmt.Errorf("push backoff must satisfy 0 < ADSYNC_PUSH_INITIAL_BACKOFF <= ADSYNC_PUSH_MAX_BACKOFF")
	}

	switch c.Log.Backend {
	case "zap", "zerolog", "logrus", "slog":
	default:
		return fmt.Errorf("unknown ADSYNC_LOG_BACKEND %q", c.Log.Backend)
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("unknown ADSYNC_LOG_FORMAT %q", c.Log.Format)
	}
	return nil
}
