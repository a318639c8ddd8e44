// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SmallLogin Contributors

package main

import (
	"fmt"
	"strconv"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/smalllogin/smalllogin/internal/config"
	"github.com/smalllogin/smalllogin/internal/store"
)

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage session table migrations",
		Long: `Apply, roll back or inspect the migrations for the web_sessions and
remember_tokens tables. The user table is managed by "schema ensure".`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, nil, func(m Migrator) error { return runMigrateUp(cmd, m) })
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back all migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, nil, func(m Migrator) error { return runMigrateDown(cmd, m) })
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show the current migration version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, nil, func(m Migrator) error { return runMigrateVersion(cmd, m) })
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "force VERSION",
		Short: "Set the migration version without running migrations",
		Long:  `Mark VERSION as applied and clear the dirty flag. Use after fixing a failed migration by hand.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := parseForceVersion(args[0])
			if err != nil {
				return err
			}
			return withMigrator(cmd, nil, func(m Migrator) error {
				if err := m.Force(version); err != nil {
					return err
				}
				cmd.Printf("Forced migration version to %d\n", version)
				return nil
			})
		},
	})

	return cmd
}

// withMigrator loads the configuration, opens a migrator and runs fn.
func withMigrator(cmd *cobra.Command, deps *Deps, fn func(Migrator) error) error {
	deps = withDefaults(deps)
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Store.Backend != config.BackendPostgres {
		return oops.Code("CONFIG_INVALID").Errorf("migrations need store.backend 'postgres'")
	}

	migrator, err := deps.MigratorFactory(cfg.Database.URL)
	if err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "create migrator").Wrap(err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			cmd.PrintErrf("Warning: failed to close migrator: %v\n", closeErr)
		}
	}()
	return fn(migrator)
}

func runMigrateUp(cmd *cobra.Command, m Migrator) error {
	pending, err := m.PendingMigrations()
	if err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "list pending migrations").Wrap(err)
	}
	if len(pending) == 0 {
		cmd.Println("No pending migrations")
		return nil
	}

	for _, v := range pending {
		name, err := store.MigrationName(v)
		if err != nil || name == "" {
			name = fmt.Sprintf("%06d", v)
		}
		cmd.Printf("Applying %s\n", name)
	}
	if err := m.Up(); err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "run migrations").Wrap(err)
	}
	cmd.Println("Migrations completed successfully")
	return nil
}

func runMigrateDown(cmd *cobra.Command, m Migrator) error {
	if err := m.Down(); err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "roll back migrations").Wrap(err)
	}
	cmd.Println("Migrations rolled back")
	return nil
}

func runMigrateVersion(cmd *cobra.Command, m Migrator) error {
	version, dirty, err := m.Version()
	if err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "read version").Wrap(err)
	}
	if version == 0 {
		cmd.Println("No migrations applied")
		return nil
	}
	suffix := ""
	if dirty {
		suffix = " (dirty)"
	}
	cmd.Printf("Version %d%s\n", version, suffix)
	return nil
}

// parseForceVersion parses the VERSION argument of migrate force.
func parseForceVersion(s string) (int, error) {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, oops.Code("INVALID_VERSION").With("input", s).Wrap(err)
	}
	if v < 0 {
		return 0, oops.Code("INVALID_VERSION").With("input", s).Errorf("version must not be negative")
	}
	return v, nil
}
