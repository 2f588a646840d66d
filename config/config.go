// ABOUTME: Application configuration from YAML, .env and environment overrides
// ABOUTME: Paths default to XDG locations; Validate reports every bad field at once
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/hay-kot/criterio"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const AppName = "agencyops"

// Storage backends.
const (
	BackendCharm  = "charm"
	BackendSQLite = "sqlite"
	// BackendLocal keeps charm's badger database on disk without a server.
	BackendLocal = "local"
)

type Config struct {
	Backend  string      `yaml:"backend"`
	DataDir  string      `yaml:"data_dir"`
	LogLevel string      `yaml:"log_level"`
	LogFile  string      `yaml:"log_file"`
	Charm    CharmConfig `yaml:"charm"`
	Store    StoreConfig `yaml:"store"`
	Sync     SyncConfig  `yaml:"sync"`
}

type CharmConfig struct {
	Host     string `yaml:"host"`
	AutoSync bool   `yaml:"auto_sync"`
}

type StoreConfig struct {
	MaxRetries int           `yaml:"max_retries"`
	Backoff    time.Duration `yaml:"backoff"`
}

type SyncConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Timeout      time.Duration `yaml:"timeout"`
	TokenPath    string        `yaml:"token_path"`
	ClientID     string        `yaml:"-"`
	ClientSecret string        `yaml:"-"`
}

// DefaultPath returns the XDG location of config.yaml.
func DefaultPath() string {
	return filepath.Join(xdg.ConfigHome, AppName, "config.yaml")
}

func DefaultConfig() Config {
	return Config{
		Backend:  BackendCharm,
		DataDir:  filepath.Join(xdg.DataHome, AppName),
		LogLevel: "info",
		Charm: CharmConfig{
			Host:     "charm.2389.dev",
			AutoSync: true,
		},
		Store: StoreConfig{
			MaxRetries: 5,
			Backoff:    10 * time.Millisecond,
		},
		Sync: SyncConfig{
			Enabled: true,
			Timeout: 10 * time.Second,
		},
	}
}

// Load reads path (missing file means defaults), then .env from the working
// directory, then environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	// a missing .env is normal
	_ = godotenv.Load()

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("AGENCYOPS_BACKEND"); v != "" {
		c.Backend = v
	}
	if v := os.Getenv("AGENCYOPS_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("AGENCYOPS_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("AGENCYOPS_CHARM_HOST"); v != "" {
		c.Charm.Host = v
	}
	if v := os.Getenv("AGENCYOPS_SYNC_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid AGENCYOPS_SYNC_ENABLED: %w", err)
		}
		c.Sync.Enabled = enabled
	}
	c.Sync.ClientID = os.Getenv("GOOGLE_CLIENT_ID")
	c.Sync.ClientSecret = os.Getenv("GOOGLE_CLIENT_SECRET")
	return nil
}

func (c *Config) applyDefaults() {
	defaults := DefaultConfig()
	if c.Store.Backoff == 0 {
		c.Store.Backoff = defaults.Store.Backoff
	}
	c.Backend = strings.ToLower(strings.TrimSpace(c.Backend))
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	return criterio.ValidateStruct(
		criterio.Run("backend", c.Backend, func(b string) error {
			switch b {
			case BackendCharm, BackendSQLite, BackendLocal:
				return nil
			}
			return fmt.Errorf("must be one of %s, %s, %s; got %q", BackendCharm, BackendSQLite, BackendLocal, b)
		}),
		criterio.Run("data_dir", c.DataDir, func(d string) error {
			if strings.TrimSpace(d) == "" {
				return fmt.Errorf("cannot be empty")
			}
			return nil
		}),
		criterio.Run("log_level", c.LogLevel, func(l string) error {
			switch strings.ToLower(l) {
			case "trace", "debug", "info", "warn", "error", "fatal", "panic", "disabled":
				return nil
			}
			return fmt.Errorf("unknown level %q", l)
		}),
		criterio.Run("store.max_retries", c.Store.MaxRetries, func(n int) error {
			if n < 1 {
				return fmt.Errorf("must be at least 1")
			}
			return nil
		}),
		criterio.Run("sync.timeout", c.Sync.Timeout, func(d time.Duration) error {
			if d <= 0 {
				return fmt.Errorf("must be positive")
			}
			return nil
		}),
	)
}

// SQLitePath is where the sqlite backend keeps its records.
func (c *Config) SQLitePath() string {
	return filepath.Join(c.DataDir, "records.db")
}

// TokenPath is where the Google OAuth token lives. Unless configured it
// follows the data dir.
func (c *Config) TokenPath() string {
	if c.Sync.TokenPath != "" {
		return c.Sync.TokenPath
	}
	return filepath.Join(c.DataDir, "google-credentials.json")
}

// LocalPath is where the local backend keeps its badger files.
func (c *Config) LocalPath() string {
	return filepath.Join(c.DataDir, "local")
}
