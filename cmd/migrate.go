/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/healthspend/apiserver/config"
	"github.com/healthspend/apiserver/internal/db"
	"github.com/healthspend/apiserver/internal/logging"
	"github.com/spf13/cobra"
)

const defaultMigrationsURL = "file://internal/db/migrations"

// migrateCmd represents the migrate command.
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run Postgres document store migrations",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all up migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMigration(cmd, func(m *migrate.Migrate) error { return m.Up() })
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Revert the most recent migration",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMigration(cmd, func(m *migrate.Migrate) error { return m.Steps(-1) })
	},
}

func runMigration(cmd *cobra.Command, apply func(*migrate.Migrate) error) error {
	logging.Setup("migrate")
	service, _ := cmd.Flags().GetString("service")
	source, _ := cmd.Flags().GetString("source")
	cfg := config.LoadConfig(service)

	migrator, err := migrate.New(source, db.PostgresURL(cfg.Database))
	if err != nil {
		return fmt.Errorf("init migrator failed: %w", err)
	}
	defer func() {
		_, _ = migrator.Close()
	}()

	if err := apply(migrator); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			slog.Info("migrations already applied", "database", cfg.Database.DBName)
			return nil
		}
		return fmt.Errorf("migrate %s failed: %w", cmd.Name(), err)
	}
	version, dirty, _ := migrator.Version()
	slog.Info("migrations applied", "database", cfg.Database.DBName, "version", version, "dirty", dirty)
	return nil
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd)

	migrateCmd.PersistentFlags().String("service", config.ServiceHeart, "service whose default database name is used (heart or spend)")
	migrateCmd.PersistentFlags().String("source", defaultMigrationsURL, "migration source URL")
}
