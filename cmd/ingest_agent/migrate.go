package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(false)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	database, err := openDB(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := database.Migrate(cmd.Context(), logger); err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout, "Migrations applied")
	return nil
}
