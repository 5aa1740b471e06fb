package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status <vault>",
	Short: "Show store status for a vault",
	Long: `Display the document store status for the named vault:
the store location, the vault's namespace, and how many documents it holds.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		vault := resolveVault(cfg, args[0])

		db := openStore(cfg, vault)
		defer db.Close()

		count, err := db.Count(context.Background())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error counting documents: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("\nVault: %s\n", args[0])
		fmt.Printf("Path: %s\n", vault.Path)
		fmt.Printf("Store: %s\n", cfg.Store.DSN)
		fmt.Printf("Namespace: %s\n", vault.Namespace)
		fmt.Printf("Documents: %d\n", count)
		fmt.Println()
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
