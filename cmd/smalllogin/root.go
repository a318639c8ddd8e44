// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SmallLogin Contributors

package main

import (
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/smalllogin/smalllogin/internal/config"
	"github.com/smalllogin/smalllogin/internal/logging"
	"github.com/smalllogin/smalllogin/internal/xdg"
)

const serviceName = "smalllogin"

// flagKeys maps command-line flags to configuration keys. Flags override the
// config file only when set explicitly.
var flagKeys = map[string]string{
	"database-url":    "database.url",
	"store":           "store.backend",
	"session-backend": "session.backend",
	"redis-addr":      "redis.addr",
	"fields":          "registration.fields",
	"log-format":      "log.format",
	"log-level":       "log.level",
	"debug":           "debug",
	"addr":            "server.addr",
	"metrics-addr":    "metrics.addr",
	"landing-path":    "server.landing_path",
	"tls-cert":        "server.tls_cert",
	"tls-key":         "server.tls_key",
	"secure-cookies":  "server.secure_cookies",
	"auto-migrate":    "database.auto_migrate",
}

// NewRootCmd creates the root command for the smalllogin CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "smalllogin",
		Short: "smalllogin - username/password login and registration service",
		Long: `smalllogin serves a login and self-registration page backed by a
PostgreSQL user table. The first registered user is logged in directly;
after that only logged-in users can register new accounts.`,
		SilenceUsage: true,
	}

	pf := cmd.PersistentFlags()
	pf.String("config", "", "config file path (default: "+xdg.ConfigFile()+" when present)")
	pf.String("database-url", "", "PostgreSQL URL (default: $"+config.DatabaseURLEnv+")")
	pf.String("store", config.BackendPostgres, "user store backend (postgres or memory)")
	pf.String("session-backend", config.BackendPostgres, "session backend (postgres, redis or memory)")
	pf.String("redis-addr", config.DefaultRedisAddr, "redis address for the redis session backend")
	pf.StringSlice("fields", nil, "registration fields (default: the user table columns)")
	pf.String("log-format", config.DefaultLogFormat, "log format (json or text)")
	pf.String("log-level", config.DefaultLogLevel, "log level (debug, info, warn or error)")
	pf.Bool("debug", false, "expose raw error text on fatal responses")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewSchemaCmd())
	cmd.AddCommand(NewUserCmd())
	cmd.AddCommand(NewConfigCmd())
	cmd.AddCommand(NewTLSCmd())

	return cmd
}

// loadConfig builds the configuration for cmd from --config, the environment
// and the flags the user set.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		path = ""
	}
	if path == "" {
		path = defaultConfigFile()
	}
	return config.Load(path, cmd.Flags(), flagKeys)
}

// defaultConfigFile returns the XDG config file if it exists.
func defaultConfigFile() string {
	path := xdg.ConfigFile()
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

// setupLogging installs the default logger writing to w.
func setupLogging(cfg config.Config, w io.Writer) *slog.Logger {
	return logging.SetDefault(serviceName, version, cfg.Log.Format, cfg.Log.Level, w)
}
