package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/inkify/engine/internal/database"
	"github.com/inkify/engine/internal/seed"
)

var seedCmd = &cobra.Command{
	Use:       "seed [dev|test|clean]",
	Short:     "Seed the database with fake data",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"dev", "test", "clean"},
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDatabase(func() error {
			if err := database.Migrate(); err != nil {
				return err
			}
			seeder := seed.NewSeeder(database.DB)
			switch args[0] {
			case "dev":
				if err := seeder.SeedDev(); err != nil {
					return err
				}
				fmt.Println("development database seeded")
			case "test":
				if err := seeder.SeedTest(); err != nil {
					return err
				}
				fmt.Println("test database seeded")
			case "clean":
				if err := seeder.Clean(); err != nil {
					return err
				}
				fmt.Println("seed data removed")
			default:
				return fmt.Errorf("unknown seed target %q", args[0])
			}
			return nil
		})
	},
}
