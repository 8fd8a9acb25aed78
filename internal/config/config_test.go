package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 8090, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "heuristic", cfg.Extraction.Provider)
	assert.Equal(t, 5*time.Second, cfg.Pipeline.Interval)
	assert.False(t, cfg.NATS.Enabled)
	assert.Contains(t, cfg.Grants.AutoGrant, "reminders")
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadYAMLFile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9191
  shutdown_timeout: 30s
logging:
  format: console
  level: debug
pipeline:
  interval: 2s
  batch_size: 8
extraction:
  provider: disabled
nats:
  enabled: true
  url: nats://broker:4222
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "console", cfg.Logging.Format)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 2*time.Second, cfg.Pipeline.Interval)
	assert.Equal(t, 8, cfg.Pipeline.BatchSize)
	assert.Equal(t, "disabled", cfg.Extraction.Provider)
	assert.True(t, cfg.NATS.Enabled)
	assert.Equal(t, "nats://broker:4222", cfg.NATS.URL)

	// Untouched sections keep defaults.
	assert.Equal(t, "localhost", cfg.Server.Host)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9191\n")
	t.Setenv("SNIPD_SERVER_PORT", "7070")
	t.Setenv("SNIPD_LOGGING_LEVEL", "warn")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 8090, cfg.Server.Port)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]func(*Config){
		"zero port":          func(c *Config) { c.Server.Port = 0 },
		"huge port":          func(c *Config) { c.Server.Port = 70000 },
		"bad format":         func(c *Config) { c.Logging.Format = "xml" },
		"zero interval":      func(c *Config) { c.Pipeline.Interval = 0 },
		"zero batch":         func(c *Config) { c.Pipeline.BatchSize = 0 },
		"unknown provider":   func(c *Config) { c.Extraction.Provider = "grok" },
		"nats without url":   func(c *Config) { c.NATS.Enabled = true; c.NATS.URL = "" },
		"no shutdown grace":  func(c *Config) { c.Server.ShutdownTimeout = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadRejectsInvalidYAML(t *testing.T) {
	path := writeConfig(t, "server: [not a map")
	_, err := Load(path)
	require.Error(t, err)
}

func TestStorageDirDefault(t *testing.T) {
	cfg := Default()
	dir, err := cfg.StorageDir()
	require.NoError(t, err)
	assert.Contains(t, dir, ".snipd")

	cfg.Storage.Dir = "/var/lib/snipd"
	dir, err = cfg.StorageDir()
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/snipd", dir)
}
