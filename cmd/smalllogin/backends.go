// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SmallLogin Contributors

package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/samber/oops"

	"github.com/smalllogin/smalllogin/internal/config"
	"github.com/smalllogin/smalllogin/internal/credential"
	credpostgres "github.com/smalllogin/smalllogin/internal/credential/postgres"
	"github.com/smalllogin/smalllogin/internal/session"
	sessionpostgres "github.com/smalllogin/smalllogin/internal/session/postgres"
	sessionredis "github.com/smalllogin/smalllogin/internal/session/redis"
	"github.com/smalllogin/smalllogin/internal/store"
)

// backends holds the stores selected by the configuration.
type backends struct {
	users    credential.Store
	sessions session.Store
	remember session.RememberStore
	pool     Pool
	redis    RedisClient
}

// pinger is implemented by user stores backed by a remote database.
type pinger interface {
	Ping(ctx context.Context) error
}

// ping reports whether every external backend is reachable.
func (b *backends) ping(ctx context.Context) error {
	if p, ok := b.users.(pinger); ok {
		if err := p.Ping(ctx); err != nil {
			return oops.Code("BACKEND_UNREACHABLE").With("backend", "postgres").Wrap(err)
		}
	}
	if b.redis != nil {
		if err := b.redis.Ping(ctx).Err(); err != nil {
			return oops.Code("BACKEND_UNREACHABLE").With("backend", "redis").Wrap(err)
		}
	}
	return nil
}

func (b *backends) Close() {
	if b.redis != nil {
		if err := b.redis.Close(); err != nil {
			slog.Warn("error closing redis client", "error", err)
		}
	}
	if b.pool != nil {
		b.pool.Close()
	}
}

// openUserStore opens only the user store, for commands that need nothing else.
func openUserStore(ctx context.Context, cfg config.Config, deps *Deps) (*backends, error) {
	b := &backends{}
	if cfg.Store.Backend == config.BackendMemory {
		b.users = credential.NewUninitializedMemoryStore()
		return b, nil
	}

	pool, err := deps.PoolFactory(ctx, cfg.Database.URL, store.PoolOptions{
		MaxConns:        cfg.Database.MaxConns,
		MaxConnIdleTime: cfg.Database.MaxIdleTime,
	})
	if err != nil {
		return nil, oops.Code("BACKEND_OPEN_FAILED").With("backend", "postgres").Wrap(err)
	}
	b.pool = pool
	b.users = credpostgres.NewStore(pool)
	return b, nil
}

// openBackends opens the user store and the configured session backend.
func openBackends(ctx context.Context, cfg config.Config, deps *Deps) (*backends, error) {
	b, err := openUserStore(ctx, cfg, deps)
	if err != nil {
		return nil, err
	}

	switch cfg.Session.Backend {
	case config.BackendMemory:
		mem := session.NewMemoryStore()
		b.sessions, b.remember = mem, mem
	case config.BackendRedis:
		client, err := deps.RedisFactory(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			b.Close()
			return nil, oops.Code("BACKEND_OPEN_FAILED").With("backend", "redis").Wrap(err)
		}
		b.redis = client
		rs := sessionredis.New(client)
		b.sessions, b.remember = rs, rs
	default:
		if b.pool == nil {
			return nil, oops.Code("BACKEND_OPEN_FAILED").
				With("backend", cfg.Session.Backend).
				Errorf("postgres sessions need a postgres user store")
		}
		b.sessions = sessionpostgres.NewSessionStore(b.pool)
		b.remember = sessionpostgres.NewRememberStore(b.pool)
	}

	if !cfg.Session.Remember {
		b.remember = nil
	}
	return b, nil
}

// expirer is implemented by session and remember stores.
type expirer interface {
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// sweepExpired deletes expired sessions and remember tokens every interval
// until ctx is done.
func sweepExpired(ctx context.Context, interval time.Duration, stores ...expirer) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			for _, s := range stores {
				n, err := s.DeleteExpired(ctx, now)
				if err != nil {
					slog.WarnContext(ctx, "failed to delete expired records", "error", err)
					continue
				}
				if n > 0 {
					slog.DebugContext(ctx, "deleted expired records", "count", n)
				}
			}
		}
	}
}
