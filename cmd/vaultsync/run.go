package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/greypillar/vaultsync/internal/dashboard"
	"github.com/greypillar/vaultsync/internal/sync"
	"github.com/greypillar/vaultsync/internal/watch"
)

var runCmd = &cobra.Command{
	Use:   "run <vault>",
	Short: "Run the sync daemon for a vault (foreground)",
	Long: `Run the sync daemon for the named vault.

The daemon:
  1. Upserts every tracked file under the vault root into the store
  2. Watches the vault tree for changes
  3. Propagates writes and deletes to the store, one event at a time

It runs until interrupted. Per-file failures are logged and skipped;
the daemon keeps processing subsequent events.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		if len(args) == 0 {
			fmt.Fprintf(os.Stderr, "Usage: vaultsync run <vault>\n")
			fmt.Fprintf(os.Stderr, "Available vaults: %s\n", strings.Join(cfg.VaultNames(), ", "))
			os.Exit(1)
		}
		vault := resolveVault(cfg, args[0])

		db := openStore(cfg, vault)
		defer db.Close()

		logger := newLogger(cfg.Log, "[engine] ")
		logger.Printf("=== Starting vaultsync daemon for %s ===", args[0])

		var notifier sync.Notifier
		if cfg.Dashboard.Enabled {
			server := dashboard.NewServer(&dashboard.Config{
				Port:   cfg.Dashboard.Port,
				Logger: newLogger(cfg.Log, "[dashboard] "),
			})
			if err := server.Start(); err != nil {
				fmt.Fprintf(os.Stderr, "Error starting dashboard: %v\n", err)
				os.Exit(1)
			}
			defer func() {
				if err := server.Stop(); err != nil {
					logger.Printf("Dashboard shutdown error: %v", err)
				}
			}()
			notifier = dashboard.NewHandler(server, logger)
			logger.Printf("Dashboard: ws://localhost:%d/ws", cfg.Dashboard.Port)
		}

		watcher, err := watch.New(watch.Config{
			Root:        vault.Path,
			TrackedExt:  sync.TrackedExt,
			ReservedDir: sync.ReservedDir,
			Logger:      newLogger(cfg.Log, "[watch] "),
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating watcher: %v\n", err)
			os.Exit(1)
		}
		defer watcher.Stop()

		engine, err := sync.New(sync.Config{
			Root:     vault.Path,
			Store:    db,
			Logger:   logger,
			Notifier: notifier,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating engine: %v\n", err)
			os.Exit(1)
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		if err := engine.Run(ctx, watcher); err != nil {
			fmt.Fprintf(os.Stderr, "Daemon stopped with error: %v\n", err)
			os.Exit(1)
		}

		logger.Println("Shutting down...")
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
