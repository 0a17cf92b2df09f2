// Package config provides configuration for the gateway.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Fast layer backends.
const (
	FastLayerMemory = "memory"
	FastLayerRedis  = "redis"
)

// Config holds the gateway configuration.
type Config struct {
	// Server settings
	HTTPPort     int `env:"HTTP_PORT" envDefault:"8080"`
	InternalPort int `env:"INTERNAL_PORT" envDefault:"8081"`

	// Base layer
	DatabaseURL string `env:"DATABASE_URL" envDefault:"file:sessiongate.db?cache=shared&mode=rwc"`

	// Fast layer
	FastLayer      string `env:"FAST_LAYER" envDefault:"memory"`
	RedisAddr      string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword  string `env:"REDIS_PASSWORD"`
	RedisDB        int    `env:"REDIS_DB" envDefault:"0"`
	RedisKeyPrefix string `env:"REDIS_KEY_PREFIX" envDefault:"sessiongate:fast:"`

	// Venue
	VenueURL     string        `env:"VENUE_URL"`
	VenueTimeout time.Duration `env:"VENUE_TIMEOUT" envDefault:"10s"`
	PolicyFile   string        `env:"POLICY_FILE"`

	// Custody
	CheckpointInterval time.Duration `env:"CHECKPOINT_INTERVAL" envDefault:"30s"`

	// Caller authentication
	AuthAudience string        `env:"AUTH_AUDIENCE" envDefault:"sessiongate"`
	AuthLeeway   time.Duration `env:"AUTH_LEEWAY" envDefault:"30s"`

	// Alert websocket
	WSPingInterval   time.Duration `env:"WS_PING_INTERVAL" envDefault:"30s"`
	WSWriteTimeout   time.Duration `env:"WS_WRITE_TIMEOUT" envDefault:"10s"`
	WSReadTimeout    time.Duration `env:"WS_READ_TIMEOUT" envDefault:"60s"`
	WSMaxMessageSize int64         `env:"WS_MAX_MESSAGE_SIZE" envDefault:"65536"`

	// Logging
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values env tags cannot express.
func (c *Config) Validate() error {
	switch c.FastLayer {
	case FastLayerMemory, FastLayerRedis:
	default:
		return fmt.Errorf("FAST_LAYER must be %q or %q, got %q", FastLayerMemory, FastLayerRedis, c.FastLayer)
	}
	if c.CheckpointInterval <= 0 {
		return fmt.Errorf("CHECKPOINT_INTERVAL must be positive")
	}
	if c.WSPingInterval <= 0 {
		return fmt.Errorf("WS_PING_INTERVAL must be positive")
	}
	return nil
}
