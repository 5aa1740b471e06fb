package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/greypillar/vaultsync/internal/sync"
)

var syncCmd = &cobra.Command{
	Use:   "sync <vault>",
	Short: "One-shot full sync of a vault into the store",
	Long: `Upsert every tracked file under the vault root into the store, then
exit. This is the same reconciliation pass the daemon performs on startup,
without the live watch that follows.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		vault := resolveVault(cfg, args[0])

		db := openStore(cfg, vault)
		defer db.Close()

		engine, err := sync.New(sync.Config{
			Root:   vault.Path,
			Store:  db,
			Logger: newLogger(cfg.Log, "[engine] "),
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating engine: %v\n", err)
			os.Exit(1)
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		fmt.Printf("Syncing %s -> namespace %q...\n", engine.Root(), vault.Namespace)
		start := time.Now()

		synced, err := engine.Reconcile(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error during sync: %v\n", err)
			os.Exit(1)
		}

		count, _ := db.Count(ctx)
		fmt.Printf("Sync complete in %v\n", time.Since(start).Round(time.Millisecond))
		fmt.Printf("   Files synced: %d\n", synced)
		fmt.Printf("   Documents in namespace: %d\n", count)
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
