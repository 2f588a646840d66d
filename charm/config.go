// ABOUTME: Connection settings for the charm KV backend
// ABOUTME: Persisted as JSON next to the app data so `charm auto` survives restarts

package charm

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"github.com/charmbracelet/charm/kv"
)

const (
	// DefaultCharmHost is the self-hosted 2389 research server.
	DefaultCharmHost = "charm.2389.dev"

	// AppName names the charm KV database and the local data directory.
	AppName = "agencyops"

	ConfigFileName = "charm-config.json"
)

// Config holds charm connection settings.
type Config struct {
	Host string `json:"host,omitempty"`

	// AutoSync pushes to the server after every committed transaction.
	AutoSync bool `json:"auto_sync"`

	// StaleThreshold is how old local data may get before a sync is forced.
	StaleThreshold time.Duration `json:"stale_threshold,omitempty"`
}

// DefaultConfig returns a config pointing at the default host with auto-sync on.
func DefaultConfig() *Config {
	return &Config{
		Host:           DefaultCharmHost,
		AutoSync:       true,
		StaleThreshold: kv.DefaultStaleThreshold,
	}
}

// ConfigPath returns where the charm settings file lives.
func ConfigPath() string {
	return filepath.Join(xdg.DataHome, AppName, ConfigFileName)
}

// LoadConfig reads the settings file at path. A missing or unreadable file
// yields defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read charm config: %w", err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return DefaultConfig(), nil //nolint:nilerr // a corrupt settings file falls back to defaults
	}
	if cfg.Host == "" {
		cfg.Host = DefaultCharmHost
	}
	if cfg.StaleThreshold == 0 {
		cfg.StaleThreshold = kv.DefaultStaleThreshold
	}
	return cfg, nil
}

// Save writes the settings to path.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
