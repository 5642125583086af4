// Package config provides application configuration management.
// Configuration is loaded from environment variables following 12-factor principles.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"

	"github.com/penshort/deeplink/pkg/attribution"
)

// Marker store backends.
const (
	StoreMemory = "memory"
	StoreBadger = "badger"
	StoreRedis  = "redis"
)

// Configuration errors.
var (
	ErrUnknownStore  = errors.New("unknown store backend")
	ErrRedisRequired = errors.New("REDIS_URL is required for the redis store")
	ErrUnknownMode   = errors.New("mode must be test or live")
)

// Config holds SDK client configuration used by attrctl.
type Config struct {
	// Attribution service
	APIURL  string `env:"DEEPLINK_API_URL" envDefault:"http://localhost:8080"`
	TestKey string `env:"DEEPLINK_TEST_KEY"`
	LiveKey string `env:"DEEPLINK_LIVE_KEY"`
	Mode    string `env:"DEEPLINK_MODE" envDefault:"live"`

	// First-session marker storage
	Store     string `env:"DEEPLINK_STORE" envDefault:"badger"`
	StorePath string `env:"DEEPLINK_STORE_PATH"`
	RedisURL  string `env:"REDIS_URL"`

	// HTTP transport
	HTTPTimeout     time.Duration `env:"HTTP_TIMEOUT" envDefault:"15s"`
	HTTPMaxAttempts int           `env:"HTTP_MAX_ATTEMPTS" envDefault:"3"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"warn"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`
}

// AttributionMode returns the parsed mode.
func (c *Config) AttributionMode() attribution.Mode {
	return attribution.ParseMode(c.Mode)
}

// Credentials returns the configured key pair.
func (c *Config) Credentials() attribution.Credentials {
	return attribution.Credentials{Test: c.TestKey, Live: c.LiveKey}
}

// Validate checks cross-field constraints env tags cannot express.
func (c *Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Mode)) {
	case "test", "live":
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMode, c.Mode)
	}

	switch c.Store {
	case StoreMemory, StoreBadger:
	case StoreRedis:
		if c.RedisURL == "" {
			return ErrRedisRequired
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownStore, c.Store)
	}
	return nil
}

// Load parses environment variables and returns a validated Config.
// An empty badger store path defaults to a directory under the user cache dir.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.Store = strings.ToLower(strings.TrimSpace(cfg.Store))

	if cfg.Store == StoreBadger && cfg.StorePath == "" {
		dir, err := os.UserCacheDir()
		if err != nil {
			dir = os.TempDir()
		}
		cfg.StorePath = filepath.Join(dir, "deeplink", "marker")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// ServerConfig holds dev attribution server configuration.
type ServerConfig struct {
	// Application settings
	AppEnv  string `env:"APP_ENV" envDefault:"development"`
	AppPort int    `env:"APP_PORT" envDefault:"8080"`

	// Base URL for created links (e.g., https://go.example.com)
	BaseURL string `env:"BASE_URL" envDefault:"http://localhost:8080"`

	// Destination returned to every first-session verify, if set.
	DeferredLink string `env:"DEFERRED_LINK"`

	// Accepted keys. Both empty accepts any non-empty key.
	TestKey string `env:"DEEPLINK_TEST_KEY"`
	LiveKey string `env:"DEEPLINK_LIVE_KEY"`

	// Seen-device set. Empty keeps it in memory.
	RedisURL string `env:"REDIS_URL"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Server timeouts
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"10s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Request body size limit in bytes (default 64KB)
	MaxRequestBodySize int64 `env:"MAX_REQUEST_BODY_SIZE" envDefault:"65536"`
}

// IsDevelopment returns true if running in development mode.
func (c *ServerConfig) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// LoadServer parses environment variables for the dev server.
func LoadServer() (*ServerConfig, error) {
	cfg := &ServerConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return cfg, nil
}
