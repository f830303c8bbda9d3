// Package config loads service configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/agentflow-dev/toolsets/internal/telemetry"
)

// Config is the full runtime configuration of the toolset service.
type Config struct {
	// ServerAddress is the listen address of the HTTP server.
	ServerAddress string `env:"TOOLSETS_SERVER_ADDRESS" envDefault:":8080"`

	// BaseURL is the externally reachable base URL, used to build OAuth
	// redirect URIs.
	BaseURL string `env:"TOOLSETS_BASE_URL" envDefault:"http://localhost:8080"`

	// DatabaseURL is a pgx connection string. Empty selects the in-memory
	// store (dev mode).
	DatabaseURL string `env:"TOOLSETS_DATABASE_URL"`

	// OAuthStateSecret signs the OAuth state parameter. Must be set to a
	// stable value in deployments; dev mode falls back to a fixed string.
	OAuthStateSecret string `env:"TOOLSETS_OAUTH_STATE_SECRET" envDefault:"dev-insecure-state-secret"`

	// CORSOrigins is the comma-separated allowlist for browser callers.
	CORSOrigins []string `env:"TOOLSETS_CORS_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`

	// CatalogPath overrides the embedded toolset catalog.
	CatalogPath string `env:"TOOLSETS_CATALOG_PATH"`

	Development bool `env:"TOOLSETS_DEVELOPMENT" envDefault:"false"`

	Logging telemetry.LoggingConfig
}

// Load reads the environment (and .env when present) into a Config.
func Load() (*Config, error) {
	// Missing .env is fine; env vars win either way.
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	return &cfg, nil
}

// CallbackURL is where OAuth providers redirect back to.
func (c *Config) CallbackURL() string {
	return c.BaseURL + "/api/v1/toolsets/oauth/callback"
}
