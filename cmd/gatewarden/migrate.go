// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatewarden Contributors

package main

import (
	"log/slog"
	"os"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/gatewarden/gatewarden/internal/store"
)

// migrateFlags holds options for the migrate subcommand.
type migrateFlags struct {
	databaseURL string
	steps       int
	down        bool
	status      bool
}

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	flags := &migrateFlags{}

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run decision audit schema migrations",
		Long: `Apply the decision audit log schema migrations against the PostgreSQL
database. With no options all pending migrations are applied.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigrate(cmd, flags)
		},
	}

	cmd.Flags().StringVar(&flags.databaseURL, "database-url", "", "PostgreSQL URL (default: DATABASE_URL environment variable)")
	cmd.Flags().IntVar(&flags.steps, "steps", 0, "apply exactly n migrations (negative rolls back)")
	cmd.Flags().BoolVar(&flags.down, "down", false, "roll back all migrations")
	cmd.Flags().BoolVar(&flags.status, "status", false, "show applied and pending migrations without changing anything")

	return cmd
}

func runMigrate(cmd *cobra.Command, flags *migrateFlags) error {
	databaseURL := flags.databaseURL
	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		return oops.Code("CONFIG_INVALID").Errorf("--database-url or DATABASE_URL is required")
	}

	migrator, err := store.NewMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			slog.Warn("error closing migrator", "error", closeErr)
		}
	}()

	if flags.status {
		return printMigrateStatus(cmd, migrator)
	}

	switch {
	case flags.down:
		cmd.Println("Rolling back all migrations...")
		if err := migrator.Down(); err != nil {
			return err
		}
	case flags.steps != 0:
		cmd.Printf("Applying %d migration step(s)...\n", flags.steps)
		if err := migrator.Steps(flags.steps); err != nil {
			return err
		}
	default:
		cmd.Println("Running migrations...")
		if err := migrator.Up(); err != nil {
			return err
		}
	}

	cmd.Println("Migrations completed successfully")
	return nil
}

func printMigrateStatus(cmd *cobra.Command, migrator *store.Migrator) error {
	version, dirty, err := migrator.Version()
	if err != nil {
		return err
	}

	if version == 0 {
		cmd.Println("Current version: none")
	} else {
		name, nameErr := store.MigrationName(version)
		if nameErr != nil {
			name = "unknown"
		}
		cmd.Printf("Current version: %d (%s)\n", version, name)
	}
	if dirty {
		cmd.Println("WARNING: database is in a dirty migration state")
	}

	pending, err := migrator.PendingMigrations()
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		cmd.Println("No pending migrations")
		return nil
	}

	cmd.Println("Pending migrations:")
	for _, v := range pending {
		name, nameErr := store.MigrationName(v)
		if nameErr != nil {
			name = "unknown"
		}
		cmd.Printf("  %d: %s\n", v, name)
	}
	return nil
}
