// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SmallLogin Contributors

package main

import (
	"context"
	"net"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	goredis "github.com/redis/go-redis/v9"

	"github.com/smalllogin/smalllogin/internal/observability"
	sessionredis "github.com/smalllogin/smalllogin/internal/session/redis"
	"github.com/smalllogin/smalllogin/internal/store"
)

// Deps contains injectable dependencies for the commands.
// All fields with nil values will use their default implementations.
type Deps struct {
	// PoolFactory opens a PostgreSQL pool.
	// Default: store.OpenPool
	PoolFactory func(ctx context.Context, url string, opts store.PoolOptions) (Pool, error)

	// RedisFactory connects to redis.
	// Default: sessionredis.Dial
	RedisFactory func(ctx context.Context, addr, password string, db int) (RedisClient, error)

	// MigratorFactory creates a migrator for the session tables.
	// Default: store.NewMigrator
	MigratorFactory func(url string) (Migrator, error)

	// ObservabilityServerFactory creates an observability server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer

	// ListenerFactory creates the HTTP listener.
	// Default: net.Listen
	ListenerFactory func(network, address string) (net.Listener, error)
}

// Pool wraps the methods used from pgxpool.Pool.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// RedisClient wraps the methods used from goredis.Client.
type RedisClient interface {
	goredis.Cmdable
	Close() error
}

// Migrator wraps the methods used from store.Migrator.
type Migrator interface {
	Up() error
	Down() error
	Version() (version uint, dirty bool, err error)
	Force(version int) error
	PendingMigrations() ([]uint, error)
	Close() error
}

// ObservabilityServer wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
}

// withDefaults returns deps with every nil factory replaced by its default.
func withDefaults(deps *Deps) *Deps {
	if deps == nil {
		deps = &Deps{}
	}
	if deps.PoolFactory == nil {
		deps.PoolFactory = func(ctx context.Context, url string, opts store.PoolOptions) (Pool, error) {
			return store.OpenPool(ctx, url, opts)
		}
	}
	if deps.RedisFactory == nil {
		deps.RedisFactory = func(ctx context.Context, addr, password string, db int) (RedisClient, error) {
			return sessionredis.Dial(ctx, addr, password, db)
		}
	}
	if deps.MigratorFactory == nil {
		deps.MigratorFactory = func(url string) (Migrator, error) {
			return store.NewMigrator(url)
		}
	}
	if deps.ObservabilityServerFactory == nil {
		deps.ObservabilityServerFactory = func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer {
			return observability.NewServer(addr, readinessChecker)
		}
	}
	if deps.ListenerFactory == nil {
		deps.ListenerFactory = net.Listen
	}
	return deps
}
