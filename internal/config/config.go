// Package config loads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Server configures `raid serve`.
type Server struct {
	Addr            string        `env:"RAID_ADDR"             envDefault:":8080"`
	DBPath          string        `env:"RAID_DB_PATH"          envDefault:"raid.db"`
	TokenSecret     string        `env:"RAID_TOKEN_SECRET"`
	TokenIssuer     string        `env:"RAID_TOKEN_ISSUER"     envDefault:"raid-extract"`
	CatalogPath     string        `env:"RAID_CATALOG_PATH"`
	AllowedOrigins  []string      `env:"RAID_ALLOWED_ORIGINS"  envSeparator:"," envDefault:"*"`
	RequestTimeout  time.Duration `env:"RAID_REQUEST_TIMEOUT"  envDefault:"15s"`
	ShutdownTimeout time.Duration `env:"RAID_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	LogLevel        string        `env:"RAID_LOG_LEVEL"        envDefault:"info"`
	Development     bool          `env:"RAID_DEV"`
}

// Client configures the player-side commands.
type Client struct {
	APIURL       string        `env:"RAID_API_URL"        envDefault:"http://localhost:8080"`
	Token        string        `env:"RAID_TOKEN"`
	PendingPath  string        `env:"RAID_PENDING_PATH"   envDefault:"raid-pending.json"`
	CatalogPath  string        `env:"RAID_CATALOG_PATH"`
	HTTPTimeout  time.Duration `env:"RAID_HTTP_TIMEOUT"   envDefault:"10s"`
	RetryMax     uint64        `env:"RAID_RETRY_MAX"      envDefault:"4"`
	RetryBackoff time.Duration `env:"RAID_RETRY_BACKOFF"  envDefault:"250ms"`
	LogLevel     string        `env:"RAID_LOG_LEVEL"      envDefault:"info"`
}

// LoadServer parses Server from the environment.
func LoadServer() (Server, error) {
	var cfg Server
	if err := env.Parse(&cfg); err != nil {
		return Server{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Validate checks settings that have no safe default.
func (c Server) Validate() error {
	if len(c.TokenSecret) < 16 {
		return errors.New("RAID_TOKEN_SECRET must be at least 16 bytes")
	}
	if c.RequestTimeout <= 0 {
		return errors.New("RAID_REQUEST_TIMEOUT must be positive")
	}
	return nil
}

// LoadClient parses Client from the environment.
func LoadClient() (Client, error) {
	var cfg Client
	if err := env.Parse(&cfg); err != nil {
		return Client{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
