// Command vaultsync mirrors a directory tree of plain-text notes (a vault)
// into a document store and keeps it updated as files change on disk.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
