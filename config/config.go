// Package config loads tool configuration for the migration engine's front
// ends: which store backend to use and how to reach it.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/schemaforge/migrate/store"
)

// Backend names a store implementation.
const (
	BackendMemory   = "memory"
	BackendFS       = "fs"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// StoreConfig selects and configures the migration store backend.
type StoreConfig struct {
	Backend string         `yaml:"backend" json:"backend"`
	Dir     string         `yaml:"dir,omitempty" json:"dir,omitempty"`
	SQLite  string         `yaml:"sqlite,omitempty" json:"sqlite,omitempty"`
	PG      store.PGConfig `yaml:"postgres,omitempty" json:"postgres,omitempty"`
}

// Config is the overall tool configuration.
type Config struct {
	// DefaultApp is the app label commands fall back to when none is given.
	DefaultApp string      `yaml:"defaultApp,omitempty" json:"defaultApp,omitempty"`
	Store      StoreConfig `yaml:"store" json:"store"`
}

// Default returns a configuration using a filesystem store under
// ./migrations.
func Default() *Config {
	return &Config{
		Store: StoreConfig{Backend: BackendFS, Dir: "migrations"},
	}
}

// LoadFromFile loads a configuration from a YAML file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks backend selection and its required settings.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendMemory:
		return nil
	case BackendFS:
		if c.Store.Dir == "" {
			return fmt.Errorf("fs backend requires store.dir")
		}
	case BackendSQLite:
		if c.Store.SQLite == "" {
			return fmt.Errorf("sqlite backend requires store.sqlite (a database path)")
		}
	case BackendPostgres:
		if c.Store.PG.URL == "" {
			return fmt.Errorf("postgres backend requires store.postgres.url")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	return nil
}
