// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SmallLogin Contributors

package main

import (
	"context"
	"errors"
	"slices"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/smalllogin/smalllogin/internal/config"
	"github.com/smalllogin/smalllogin/internal/credential"
	"github.com/smalllogin/smalllogin/internal/sanitize"
)

// NewUserCmd creates the user subcommand.
func NewUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Inspect registered users",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show USERNAME",
		Short: "Show a user's profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runUserShow(cmd.Context(), cfg, cmd, args[0], nil)
		},
	})

	return cmd
}

func runUserShow(ctx context.Context, cfg config.Config, cmd *cobra.Command, username string, deps *Deps) error {
	ctx = orBackground(ctx)
	b, err := openUserStore(ctx, cfg, withDefaults(deps))
	if err != nil {
		return err
	}
	defer b.Close()

	clean := sanitize.Sanitize(sanitize.Username, username)
	user, err := b.users.FindByUsername(ctx, clean)
	if errors.Is(err, credential.ErrNotFound) {
		return oops.Code("USER_NOT_FOUND").With("username", clean).Wrap(err)
	}
	if err != nil {
		return oops.Code("USER_SHOW_FAILED").With("username", clean).Wrap(err)
	}

	profile := user.Profile()
	keys := make([]string, 0, len(profile))
	for k := range profile {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		cmd.Printf("%s: %s\n", k, profile[k])
	}
	return nil
}
