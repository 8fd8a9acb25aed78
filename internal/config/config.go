// Package config loads snipd configuration from a YAML file with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fyrsmithlabs/snipd/internal/capability"
	"github.com/fyrsmithlabs/snipd/internal/extraction"
)

// Config holds the complete snipd configuration.
type Config struct {
	Server     ServerConfig          `koanf:"server"`
	Logging    LoggingConfig         `koanf:"logging"`
	Storage    StorageConfig         `koanf:"storage"`
	Pipeline   PipelineConfig        `koanf:"pipeline"`
	Extraction extraction.Config     `koanf:"extraction"`
	NATS       NATSConfig            `koanf:"nats"`
	Maps       capability.MapsConfig `koanf:"maps"`
	Grants     GrantsConfig          `koanf:"grants"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig holds logger configuration.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// StorageConfig holds on-disk state location.
type StorageConfig struct {
	// Dir is the base directory for the entry database and the
	// capability bridge database. Defaults to ~/.snipd.
	Dir string `koanf:"dir"`
}

// PipelineConfig tunes the processing coordinator.
type PipelineConfig struct {
	Interval  time.Duration `koanf:"interval"`
	BatchSize int           `koanf:"batch_size"`
}

// NATSConfig holds the inbound entry feed settings.
type NATSConfig struct {
	Enabled bool   `koanf:"enabled"`
	URL     string `koanf:"url"`
}

// GrantsConfig controls the capability permission policy.
type GrantsConfig struct {
	// AutoGrant lists capabilities granted on first request without a
	// prompt: reminders, calendar, contacts, maps. An empty list means
	// every request resolves to denied until granted out of band.
	AutoGrant []string `koanf:"auto_grant"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "localhost",
			Port:            8090,
			ShutdownTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Pipeline: PipelineConfig{
			Interval:  5 * time.Second,
			BatchSize: 16,
		},
		Extraction: extraction.DefaultConfig(),
		NATS: NATSConfig{
			Enabled: false,
			URL:     "nats://localhost:4222",
		},
		Grants: GrantsConfig{
			AutoGrant: []string{"reminders", "calendar", "contacts", "maps"},
		},
	}
}

// Validate checks the loaded configuration.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in 1..65535, got %d", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be positive")
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}
	if c.Pipeline.Interval <= 0 {
		return fmt.Errorf("pipeline.interval must be positive")
	}
	if c.Pipeline.BatchSize <= 0 {
		return fmt.Errorf("pipeline.batch_size must be positive")
	}
	switch c.Extraction.Provider {
	case "", "disabled", "heuristic", "anthropic", "openai":
	default:
		return fmt.Errorf("extraction.provider must be disabled, heuristic, anthropic, or openai, got %q", c.Extraction.Provider)
	}
	if c.NATS.Enabled && c.NATS.URL == "" {
		return fmt.Errorf("nats.url is required when nats.enabled is true")
	}
	return nil
}

// StorageDir returns the configured storage directory, defaulting to
// ~/.snipd.
func (c *Config) StorageDir() (string, error) {
	if c.Storage.Dir != "" {
		return c.Storage.Dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".snipd"), nil
}
