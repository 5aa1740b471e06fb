package main

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/greypillar/vaultsync/internal/config"
	"github.com/greypillar/vaultsync/internal/store"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "vaultsync",
	Short: "Mirror note vaults into a document store",
	Long: `vaultsync keeps a directory tree of markdown notes mirrored into a
document store. Files are authoritative: edits and deletes on disk are
propagated to the store; remote changes are never pulled back down.

Configuration lives in vaultsync.yaml (current directory,
~/.config/vaultsync, or /etc/vaultsync), overridable via VAULTSYNC_*
environment variables.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: vaultsync.yaml in search paths)")
}

// loadConfig reads configuration or exits with a startup error.
func loadConfig() *config.Config {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// newLogger builds a prefixed logger writing to stderr, teed into a
// rotating file when one is configured.
func newLogger(cfg config.Log, prefix string) *log.Logger {
	var out io.Writer = os.Stderr
	if cfg.File != "" {
		out = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
		})
	}
	return log.New(out, prefix, log.LstdFlags)
}

// openStore connects to the configured store for the given vault,
// exiting with a startup error on failure.
func openStore(cfg *config.Config, vault config.Vault) *store.DB {
	db, err := store.Open(store.Options{
		DSN:       cfg.Store.DSN,
		Namespace: vault.Namespace,
		OpTimeout: cfg.Store.OpTimeout,
		Retry: store.RetryPolicy{
			MaxAttempts:    cfg.Store.Retry.MaxAttempts,
			InitialBackoff: cfg.Store.Retry.InitialBackoff,
			MaxBackoff:     cfg.Store.Retry.MaxBackoff,
			Factor:         2.0,
			Jitter:         0.1,
		},
		Logger: newLogger(cfg.Log, "[store] "),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting to store: %v\n", err)
		os.Exit(1)
	}
	return db
}

// resolveVault looks up the named vault, exiting with the recognized
// vault names on an unknown name.
func resolveVault(cfg *config.Config, name string) config.Vault {
	vault, err := cfg.Vault(name)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return vault
}
