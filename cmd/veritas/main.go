package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	// Import migrations so their init() funcs run and register themselves.
	_ "github.com/shashiranjanraj/veritas/database/migrations"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "veritas",
	Short: "veritas — product provenance verification service",
	Long:  "Veritas verifies product authenticity and custody against an append-only ledger. Use this CLI to run the server and manage the database, keys and ledger.",
}

func init() {
	// Server
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(routeListCmd)

	// Database
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(migrateRollbackCmd)
	rootCmd.AddCommand(migrateStatusCmd)
	rootCmd.AddCommand(seedCmd)

	// Keyring
	rootCmd.AddCommand(keyGenerateCmd)
	rootCmd.AddCommand(keyListCmd)

	// Ledger
	rootCmd.AddCommand(ledgerInspectCmd)
	rootCmd.AddCommand(ledgerVerifyCmd)
}
