// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SmallLogin Contributors

package main

import (
	"context"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/smalllogin/smalllogin/internal/config"
	"github.com/smalllogin/smalllogin/internal/credential"
)

// NewSchemaCmd creates the schema subcommand.
func NewSchemaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Manage the user table",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "ensure",
		Short: "Create the user table if it does not exist",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runSchemaEnsure(cmd.Context(), cfg, cmd, nil)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "fields",
		Short: "List the user table columns and check them against the configured fields",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runSchemaFields(cmd.Context(), cfg, cmd, nil)
		},
	})

	return cmd
}

func runSchemaEnsure(ctx context.Context, cfg config.Config, cmd *cobra.Command, deps *Deps) error {
	b, err := openUserStore(orBackground(ctx), cfg, withDefaults(deps))
	if err != nil {
		return err
	}
	defer b.Close()

	cmd.Print("Creating user table... ")
	created, err := b.users.EnsureSchema(orBackground(ctx))
	if err != nil {
		cmd.Println("failed")
		return oops.Code("SCHEMA_ENSURE_FAILED").Wrap(err)
	}
	if created {
		cmd.Println("ready")
	} else {
		cmd.Println("already exists")
	}
	return nil
}

func runSchemaFields(ctx context.Context, cfg config.Config, cmd *cobra.Command, deps *Deps) error {
	b, err := openUserStore(orBackground(ctx), cfg, withDefaults(deps))
	if err != nil {
		return err
	}
	defer b.Close()

	names, err := b.users.FieldNames(orBackground(ctx))
	if err != nil {
		return oops.Code("SCHEMA_FIELDS_FAILED").Wrap(err)
	}
	for _, name := range names {
		cmd.Println(name)
	}

	if err := credential.CheckFieldSet(cfg.Registration.Fields, names); err != nil {
		cmd.PrintErrf("Configured fields %v do not match the user table\n", cfg.Registration.Fields)
		return err
	}
	return nil
}

func orBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
