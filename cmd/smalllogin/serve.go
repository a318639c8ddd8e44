// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SmallLogin Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/smalllogin/smalllogin/internal/auth"
	"github.com/smalllogin/smalllogin/internal/config"
	"github.com/smalllogin/smalllogin/internal/password"
	"github.com/smalllogin/smalllogin/internal/web"
	"github.com/smalllogin/smalllogin/pkg/errutil"
)

const (
	shutdownTimeout = 5 * time.Second
	sweepInterval   = 15 * time.Minute
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the login HTTP server",
		Long: `Start the HTTP server that handles login, registration and logout.
The user table is created if missing and its columns must match the
configured registration fields.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runServeWithDeps(cmd.Context(), cfg, cmd, nil)
		},
	}

	cmd.Flags().String("addr", config.DefaultAddr, "HTTP listen address")
	cmd.Flags().String("metrics-addr", config.DefaultMetricsAddr, "metrics/health HTTP address (empty = disabled)")
	cmd.Flags().String("landing-path", config.DefaultLandingPath, "redirect target after logout")
	cmd.Flags().String("tls-cert", "", "TLS certificate file")
	cmd.Flags().String("tls-key", "", "TLS key file")
	cmd.Flags().Bool("secure-cookies", false, "mark cookies Secure even without TLS")
	cmd.Flags().Bool("auto-migrate", true, "apply pending session table migrations on startup")

	return cmd
}

// runServeWithDeps starts the server with injectable dependencies and blocks
// until ctx is cancelled, a signal arrives, or a server fails.
// If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cfg config.Config, cmd *cobra.Command, deps *Deps) error {
	deps = withDefaults(deps)
	if ctx == nil {
		ctx = context.Background()
	}

	logger := setupLogging(cfg, cmd.ErrOrStderr())
	logger.Info("starting smalllogin",
		"addr", cfg.Server.Addr,
		"store", cfg.Store.Backend,
		"session_backend", cfg.Session.Backend,
	)
	if cfg.Debug {
		logger.Warn("debug mode is on: fatal responses include raw error text")
	}

	if cfg.Store.Backend == config.BackendPostgres && cfg.Session.Backend == config.BackendPostgres && cfg.Database.AutoMigrate {
		if err := autoMigrate(cfg.Database.URL, deps); err != nil {
			return err
		}
	}

	b, err := openBackends(ctx, cfg, deps)
	if err != nil {
		return err
	}
	defer b.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var metrics auth.Recorder
	var requests web.RequestRecorder
	var obsServer ObservabilityServer
	if cfg.Metrics.Addr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.Metrics.Addr, b.ping)
		obsErrCh, err := obsServer.Start()
		if err != nil {
			return oops.Code("SERVE_OBSERVABILITY_FAILED").With("addr", cfg.Metrics.Addr).Wrap(err)
		}
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer shutdownCancel()
			if err := obsServer.Stop(shutdownCtx); err != nil {
				slog.Warn("error stopping observability server", "error", err)
			}
		}()
		go monitorServerErrors(ctx, cancel, obsErrCh, "observability")
		if m := obsServer.Metrics(); m != nil {
			metrics, requests = m, m
		}
	}

	ctrl, err := newController(cfg, b, logger, metrics)
	if err != nil {
		return err
	}
	created, err := ctrl.Bootstrap(ctx)
	if err != nil {
		errutil.LogError(logger, "startup check failed", err)
		return oops.Code("SERVE_BOOTSTRAP_FAILED").Wrap(err)
	}
	if created {
		cmd.Println("Created user table")
	}

	handler := web.NewHandler(ctrl, web.Options{
		SessionCookie:  cfg.Session.CookieName,
		RememberCookie: rememberCookieName(cfg),
		LandingPath:    cfg.Server.LandingPath,
		SecureCookies:  cfg.Server.SecureCookies,
		Debug:          cfg.Debug,
		Logger:         logger,
		Recorder:       requests,
	})

	listener, err := deps.ListenerFactory("tcp", cfg.Server.Addr)
	if err != nil {
		return oops.Code("SERVE_LISTEN_FAILED").With("addr", cfg.Server.Addr).Wrap(err)
	}

	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		var serveErr error
		if cfg.Server.TLSCert != "" {
			serveErr = srv.ServeTLS(listener, cfg.Server.TLSCert, cfg.Server.TLSKey)
		} else {
			serveErr = srv.Serve(listener)
		}
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			errCh <- serveErr
		}
	}()

	expiring := []expirer{b.sessions}
	if b.remember != nil {
		expiring = append(expiring, b.remember)
	}
	go sweepExpired(ctx, sweepInterval, expiring...)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	cmd.Printf("Server started on %s\n", listener.Addr())
	logger.Info("smalllogin ready", "addr", listener.Addr().String())

	var serveErr error
	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig)
	case err, ok := <-errCh:
		if ok && err != nil {
			serveErr = oops.Code("SERVE_FAILED").Wrap(err)
		}
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("error stopping HTTP server", "error", err)
	}
	cancel()

	logger.Info("shutdown complete")
	return serveErr
}

// newController wires the controller from the configuration.
func newController(cfg config.Config, b *backends, logger *slog.Logger, recorder auth.Recorder) (*auth.Controller, error) {
	hasher, err := password.NewHasher(cfg.Password.Algorithm)
	if err != nil {
		return nil, oops.Code("SERVE_CONFIG_INVALID").Wrap(err)
	}

	opts := []auth.Option{
		auth.WithLogger(logger),
		auth.WithFields(cfg.Registration.Fields),
		auth.WithPasswordPolicy(cfg.Password.EnforcePolicy),
		auth.WithSessionLifetime(cfg.Session.Lifetime),
		auth.WithRememberLifetime(cfg.Session.RememberLifetime),
	}
	if recorder != nil {
		opts = append(opts, auth.WithRecorder(recorder))
	}
	if b.remember != nil {
		opts = append(opts, auth.WithRememberStore(b.remember))
	}

	ctrl, err := auth.NewController(b.users, b.sessions, hasher, opts...)
	if err != nil {
		return nil, oops.Code("SERVE_CONFIG_INVALID").Wrap(err)
	}
	return ctrl, nil
}

func rememberCookieName(cfg config.Config) string {
	if !cfg.Session.Remember {
		return ""
	}
	return cfg.Session.RememberCookie
}

// autoMigrate applies pending session table migrations.
func autoMigrate(url string, deps *Deps) error {
	migrator, err := deps.MigratorFactory(url)
	if err != nil {
		return oops.Code("AUTO_MIGRATION_FAILED").With("operation", "create migrator").Wrap(err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			slog.Warn("failed to close migrator", "error", closeErr)
		}
	}()

	if err := migrator.Up(); err != nil {
		return oops.Code("AUTO_MIGRATION_FAILED").With("operation", "run migrations").Wrap(err)
	}
	slog.Info("session table migrations applied")
	return nil
}

// monitorServerErrors cancels ctx when a server reports an error. It exits
// when an error is received, the channel is closed, or ctx is cancelled.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown", "server", serverName, "error", err)
			cancel()
		}
	case <-ctx.Done():
	}
}
