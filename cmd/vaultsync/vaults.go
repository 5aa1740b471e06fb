package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var vaultsCmd = &cobra.Command{
	Use:   "vaults",
	Short: "List configured vaults",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()

		for _, name := range cfg.VaultNames() {
			vault := cfg.Vaults[name]
			fmt.Printf("%-20s %s -> %s\n", name, vault.Path, vault.Namespace)
		}
	},
}

func init() {
	rootCmd.AddCommand(vaultsCmd)
}
