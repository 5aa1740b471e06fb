// Package config loads and validates vaultsync configuration.
//
// Configuration is an explicit structure handed to the engine's
// constructor; there are no process-wide mutable globals. Settings come
// from a YAML file (vaultsync.yaml) with environment-variable overrides
// under the VAULTSYNC_ prefix, e.g. VAULTSYNC_STORE_DSN.
package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Vault binds a local directory tree to a store namespace.
type Vault struct {
	// Path is the vault root directory on disk.
	Path string `mapstructure:"path"`

	// Namespace is the document store namespace for this vault.
	Namespace string `mapstructure:"namespace"`
}

// Retry configures the store's retry-with-backoff policy.
type Retry struct {
	MaxAttempts    int           `mapstructure:"max_attempts"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
}

// Store configures the document store connection.
type Store struct {
	// DSN selects the backend: file:path.db for embedded SQLite, or a
	// libsql:// URL for a remote store.
	DSN string `mapstructure:"dsn"`

	// OpTimeout bounds each store round-trip.
	OpTimeout time.Duration `mapstructure:"op_timeout"`

	Retry Retry `mapstructure:"retry"`
}

// Log configures the optional rotating log file. When File is empty, logs
// go to stderr only.
type Log struct {
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// Dashboard configures the optional WebSocket activity dashboard.
type Dashboard struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// Config is the root configuration structure.
type Config struct {
	Store     Store            `mapstructure:"store"`
	Vaults    map[string]Vault `mapstructure:"vaults"`
	Log       Log              `mapstructure:"log"`
	Dashboard Dashboard        `mapstructure:"dashboard"`
}

// Load reads configuration from the given file, or from the default search
// paths when path is empty (., $HOME/.config/vaultsync, /etc/vaultsync).
// Environment variables override file values.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("store.dsn", "file:vaultsync.db")
	v.SetDefault("store.op_timeout", 10*time.Second)
	v.SetDefault("store.retry.max_attempts", 3)
	v.SetDefault("store.retry.initial_backoff", 500*time.Millisecond)
	v.SetDefault("store.retry.max_backoff", 10*time.Second)
	v.SetDefault("log.max_size_mb", 50)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 14)
	v.SetDefault("dashboard.enabled", false)
	v.SetDefault("dashboard.port", 8087)

	v.SetEnvPrefix("VAULTSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("vaultsync")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/vaultsync")
		v.AddConfigPath("/etc/vaultsync")
		if err := v.ReadInConfig(); err != nil {
			// Running purely on defaults and env is allowed; a broken
			// file is not.
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that the configuration is complete enough to run.
func (c *Config) Validate() error {
	if c.Store.DSN == "" {
		return fmt.Errorf("store.dsn is required")
	}
	if c.Store.OpTimeout <= 0 {
		return fmt.Errorf("store.op_timeout must be positive")
	}
	if c.Store.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("store.retry.max_attempts must be positive")
	}
	if len(c.Vaults) == 0 {
		return fmt.Errorf("no vaults configured")
	}
	for name, vault := range c.Vaults {
		if vault.Path == "" {
			return fmt.Errorf("vault %q: path is required", name)
		}
		if vault.Namespace == "" {
			return fmt.Errorf("vault %q: namespace is required", name)
		}
	}
	if c.Dashboard.Enabled && (c.Dashboard.Port <= 0 || c.Dashboard.Port > 65535) {
		return fmt.Errorf("dashboard.port %d is out of range", c.Dashboard.Port)
	}
	return nil
}

// Vault looks up a configured vault by name. An unknown name is an error
// listing the recognized vault names.
func (c *Config) Vault(name string) (Vault, error) {
	vault, ok := c.Vaults[name]
	if !ok {
		return Vault{}, fmt.Errorf("unknown vault %q (available vaults: %s)",
			name, strings.Join(c.VaultNames(), ", "))
	}
	return vault, nil
}

// VaultNames returns the configured vault names, sorted.
func (c *Config) VaultNames() []string {
	names := make([]string, 0, len(c.Vaults))
	for name := range c.Vaults {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
