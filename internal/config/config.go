// Package config loads service configuration from the environment.
// Missing required values are fatal before the listener opens.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds every runtime setting of the auth API.
type Config struct {
	Addr string `env:"AUTH_HTTP_ADDR" envDefault:":8080"`

	DatabaseDSN string `env:"AUTH_PG_DSN,required,notEmpty"`

	JWTKey      string        `env:"AUTH_JWT_KEY,required,notEmpty"`
	JWTIssuer   string        `env:"AUTH_JWT_ISSUER,required,notEmpty"`
	JWTAudience string        `env:"AUTH_JWT_AUDIENCE,required,notEmpty"`
	TokenTTL    time.Duration `env:"AUTH_TOKEN_TTL" envDefault:"20m"`

	HashIterations int `env:"AUTH_HASH_ITERATIONS" envDefault:"600000"`

	// Optional admin bootstrap credentials. Both must be set for the
	// administrator account to be reconciled at startup.
	AdminUsername string `env:"AUTH_ADMIN_USERNAME"`
	AdminPassword string `env:"AUTH_ADMIN_PASSWORD,unset"`

	RateBurst    int   `env:"AUTH_RATE_BURST" envDefault:"20"`
	RatePerSec   int   `env:"AUTH_RATE_PER_SEC" envDefault:"10"`
	MaxBodyBytes int64 `env:"AUTH_MAX_BODY_BYTES" envDefault:"1048576"`
}

// Load parses the environment and validates value ranges eagerly.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.JWTKey) == "" {
		return fmt.Errorf("AUTH_JWT_KEY must not be blank")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("AUTH_TOKEN_TTL must be positive, got %s", c.TokenTTL)
	}
	if c.HashIterations < 1 {
		return fmt.Errorf("AUTH_HASH_ITERATIONS must be positive, got %d", c.HashIterations)
	}
	if c.RateBurst < 1 || c.RatePerSec < 1 {
		return fmt.Errorf("rate limit settings must be positive")
	}
	if c.MaxBodyBytes < 1 {
		return fmt.Errorf("AUTH_MAX_BODY_BYTES must be positive, got %d", c.MaxBodyBytes)
	}
	return nil
}

// ClearAdminPassword wipes the bootstrap credential from memory.
func (c *Config) ClearAdminPassword() {
	c.AdminPassword = ""
}
