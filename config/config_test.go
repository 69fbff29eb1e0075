package config

import (
	"context"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	t.Setenv("ADSYNC_BASE_URL", "https://api.example.com")

	cfg, err := Load(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com", cfg.Server.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, 60*time.Second, cfg.Cache.IdleTimeout)
	assert.Equal(t, "ristretto", cfg.Cache.Validators)
	assert.Equal(t, 500*time.Millisecond, cfg.Push.InitialBackoff)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, "zap", cfg.Log.Backend)
	assert.Empty(t, cfg.Auth.Email)
}

func TestOverridesTakePrecedence(t *testing.T) {
	t.Setenv("ADSYNC_BASE_URL", "https://api.example.com")

	cfg, err := Load(context.Background(), map[string]string{"ADSYNC_BASE_URL": "http://localhost:5000"})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:5000", cfg.Server.BaseURL)
}

func TestBaseURLRequired(t *testing.T) {
	_, err := load(context.Background(), envconfig.MapLookuper(map[string]string{}))
	assert.Error(t, err)
}

func TestOverrides(t *testing.T) {
	cfg, err := load(context.Background(), envconfig.MapLookuper(map[string]string{
		"ADSYNC_BASE_URL":        "http://localhost:8080",
		"ADSYNC_VALIDATOR_STORE": "bigcache",
		"ADSYNC_VALIDATOR_TTL":   "1m",
		"ADSYNC_IDLE_TIMEOUT":    "5s",
		"ADSYNC_LOG_FORMAT":      "json",
	}))
	require.NoError(t, err)

	assert.Equal(t, CacheConfig{
		IdleTimeout:    5 * time.Second,
		MaxIdleEntries: 10000,
		Validators:     "bigcache",
		ValidatorTTL:   time.Minute,
	}, cfg.Cache)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestValidate(t *testing.T) {
	cases := map[string]map[string]string{
		"relative url":   {"ADSYNC_BASE_URL": "/api"},
		"bad scheme":     {"ADSYNC_BASE_URL": "ftp://example.com"},
		"unknown store":  {"ADSYNC_BASE_URL": "http://x", "ADSYNC_VALIDATOR_STORE": "redis"},
		"bigcache ttl":   {"ADSYNC_BASE_URL": "http://x", "ADSYNC_VALIDATOR_STORE": "bigcache", "ADSYNC_VALIDATOR_TTL": "0s"},
		"backoff order":  {"ADSYNC_BASE_URL": "http://x", "ADSYNC_PUSH_INITIAL_BACKOFF": "1m", "ADSYNC_PUSH_MAX_BACKOFF": "1s"},
		"log format":     {"ADSYNC_BASE_URL": "http://x", "ADSYNC_LOG_FORMAT": "xml"},
		"log backend":    {"ADSYNC_BASE_URL": "http://x", "ADSYNC_LOG_BACKEND": "glog"},
		"negative idle":  {"ADSYNC_BASE_URL": "http://x", "ADSYNC_IDLE_TIMEOUT": "-1s"},
		"zero body size": {"ADSYNC_BASE_URL": "http://x", "ADSYNC_MAX_BODY_BYTES": "0"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := load(context.Background(), envconfig.MapLookuper(env))
			assert.ErrorContains(t, err, "invalid configuration")
		})
	}
}
