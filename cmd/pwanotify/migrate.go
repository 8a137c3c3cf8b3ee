package main

import (
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"pwanotify/internal/app"
	"pwanotify/internal/logging"
	"pwanotify/internal/repositories"
)

func NewMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE:  runMigrate,
	}
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Database.Driver != "postgres" {
		return oops.Code("CONFIG_INVALID").Errorf("migrate needs database.driver postgres, got %q", cfg.Database.Driver)
	}
	logger := logging.New(cfg.Log.Format, cfg.Log.Level, nil)

	cmd.Println("Connecting to database...")
	db, err := app.OpenDB(cmd.Context(), cfg.Database.DSN, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	cmd.Println("Running migrations...")
	if err := repositories.RunMigrations(cmd.Context(), db); err != nil {
		return err
	}
	cmd.Println("Migrations completed successfully")
	return nil
}
