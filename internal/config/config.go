// ABOUTME: Environment-backed configuration for the migration toolkit.
// ABOUTME: Loads a .env file when present, then parses DATABASE_* variables.
package config

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds the connection settings shared by the database commands.
// Command-line flags override these values.
type Config struct {
	// DatabaseURL is the PostgreSQL URL used by check and reset.
	DatabaseURL string `env:"DATABASE_URL"`

	// MySQLURL is the source database for data migration.
	MySQLURL string `env:"DATABASE_MYSQL_URL"`

	// PostgresURL is the destination database for data migration.
	PostgresURL string `env:"DATABASE_POSTGRES_URL"`
}

// Load reads .env from the working directory if it exists, then parses the
// environment. A missing .env file is not an error; the tool runs in CI and
// on operator laptops alike.
func Load() (*Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("load .env: %w", err)
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}

// ResolvePostgresURL returns the flag value when set, falling back to
// DATABASE_POSTGRES_URL and then DATABASE_URL.
func (c *Config) ResolvePostgresURL(flag string) string {
	if flag != "" {
		return flag
	}
	if c.PostgresURL != "" {
		return c.PostgresURL
	}
	return c.DatabaseURL
}

// ResolveMySQLURL returns the flag value when set, falling back to
// DATABASE_MYSQL_URL.
func (c *Config) ResolveMySQLURL(flag string) string {
	if flag != "" {
		return flag
	}
	return c.MySQLURL
}
