package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/inkify/engine/internal/database"
)

var rootCmd = &cobra.Command{
	Use:   "inkify-admin",
	Short: "Inkify engine admin CLI",
	Long:  "Administrative commands for the Inkify engine: migrations, seeding and data maintenance.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// .env is optional, system environment wins
		_ = godotenv.Load()
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(backfillNamesCmd)
	rootCmd.AddCommand(statsCmd)
}

// withDatabase opens the database for the duration of a command.
func withDatabase(fn func() error) error {
	if err := database.Initialize(); err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer database.Close()
	return fn()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
