// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SmallLogin Contributors

package main

import (
	"os"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/smalllogin/smalllogin/internal/config"
)

// NewConfigCmd creates the config subcommand.
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration files",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "schema",
		Short: "Print the JSON Schema for configuration files",
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := config.GenerateSchema()
			if err != nil {
				return oops.Code("CONFIG_SCHEMA_FAILED").Wrap(err)
			}
			cmd.Println(string(data))
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "validate FILE",
		Short: "Validate a configuration file against the schema",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0]) //nolint:gosec // operator-supplied path
			if err != nil {
				return oops.Code("CONFIG_READ_FAILED").With("path", args[0]).Wrap(err)
			}
			if err := config.ValidateYAML(data); err != nil {
				return oops.Code("CONFIG_SCHEMA_INVALID").With("path", args[0]).Wrap(err)
			}
			cmd.Printf("%s is valid\n", args[0])
			return nil
		},
	})

	return cmd
}
