// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SmallLogin Contributors

// Package redis implements session.Store and session.RememberStore on Redis.
// Records are JSON values whose TTL follows their expiry, so Redis drops them
// on its own and DeleteExpired has nothing to do.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/smalllogin/smalllogin/internal/session"
)

const (
	sessionPrefix  = "smalllogin:session:"
	rememberPrefix = "smalllogin:remember:"
)

type sessionRecord struct {
	Username  string    `json:"username"`
	LoggedIn  bool      `json:"logged_in"`
	BoundID   string    `json:"bound_id"`
	Flash     []string  `json:"flash,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

type rememberRecord struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// Store implements session.Store and session.RememberStore.
type Store struct {
	client goredis.Cmdable
	now    func() time.Time
}

// New creates a Store on top of an existing client.
func New(client goredis.Cmdable) *Store {
	return &Store{client: client, now: time.Now}
}

// Dial connects to addr and verifies the connection with a PING.
func Dial(ctx context.Context, addr, password string, db int) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close() //nolint:errcheck // ping error takes precedence
		return nil, oops.Code("REDIS_CONNECT_FAILED").With("addr", addr).Wrap(err)
	}
	return client, nil
}

// Get implements session.Store.
func (r *Store) Get(ctx context.Context, id string) (*session.Session, error) {
	hash := session.HashToken(id)
	var rec sessionRecord
	if err := r.load(ctx, sessionPrefix+hash, &rec); err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, oops.Code("SESSION_NOT_FOUND").Wrap(session.ErrNotFound)
		}
		return nil, oops.Code("SESSION_GET_FAILED").With("operation", "get session").Wrap(err)
	}
	return &session.Session{
		ID:        id,
		Hash:      hash,
		Username:  rec.Username,
		LoggedIn:  rec.LoggedIn,
		BoundID:   rec.BoundID,
		Flash:     rec.Flash,
		CreatedAt: rec.CreatedAt,
		ExpiresAt: rec.ExpiresAt,
	}, nil
}

// Save implements session.Store.
func (r *Store) Save(ctx context.Context, s *session.Session) error {
	if s.Hash == "" {
		return oops.Code("SESSION_INVALID_HASH").Errorf("session hash cannot be empty")
	}
	rec := sessionRecord{
		Username:  s.Username,
		LoggedIn:  s.LoggedIn,
		BoundID:   s.BoundID,
		Flash:     s.Flash,
		CreatedAt: s.CreatedAt,
		ExpiresAt: s.ExpiresAt,
	}
	if err := r.store(ctx, sessionPrefix+s.Hash, rec, s.ExpiresAt); err != nil {
		return oops.Code("SESSION_SAVE_FAILED").With("operation", "set session").Wrap(err)
	}
	return nil
}

// Delete implements session.Store.
func (r *Store) Delete(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, sessionPrefix+session.HashToken(id)).Err(); err != nil {
		return oops.Code("SESSION_DELETE_FAILED").With("operation", "del session").Wrap(err)
	}
	return nil
}

// DeleteExpired implements session.Store and session.RememberStore.
func (r *Store) DeleteExpired(context.Context, time.Time) (int64, error) {
	return 0, nil
}

// Create implements session.RememberStore.
func (r *Store) Create(ctx context.Context, t *session.RememberToken) error {
	if t.TokenHash == "" {
		return oops.Code("REMEMBER_INVALID_HASH").Errorf("token hash cannot be empty")
	}
	rec := rememberRecord{
		ID:        t.ID.String(),
		Username:  t.Username,
		ExpiresAt: t.ExpiresAt,
		CreatedAt: t.CreatedAt,
	}
	if err := r.store(ctx, rememberPrefix+t.TokenHash, rec, t.ExpiresAt); err != nil {
		return oops.Code("REMEMBER_CREATE_FAILED").
			With("operation", "set remember token").
			With("username", t.Username).
			Wrap(err)
	}
	return nil
}

// GetByTokenHash implements session.RememberStore.
func (r *Store) GetByTokenHash(ctx context.Context, hash string) (*session.RememberToken, error) {
	var rec rememberRecord
	if err := r.load(ctx, rememberPrefix+hash, &rec); err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, oops.Code("REMEMBER_NOT_FOUND").Wrap(session.ErrNotFound)
		}
		return nil, oops.Code("REMEMBER_GET_FAILED").With("operation", "get remember token").Wrap(err)
	}
	id, err := ulid.Parse(rec.ID)
	if err != nil {
		return nil, oops.Code("REMEMBER_PARSE_FAILED").With("id", rec.ID).Wrap(err)
	}
	return &session.RememberToken{
		ID:        id,
		Username:  rec.Username,
		TokenHash: hash,
		ExpiresAt: rec.ExpiresAt,
		CreatedAt: rec.CreatedAt,
	}, nil
}

// DeleteByTokenHash implements session.RememberStore.
func (r *Store) DeleteByTokenHash(ctx context.Context, hash string) error {
	if err := r.client.Del(ctx, rememberPrefix+hash).Err(); err != nil {
		return oops.Code("REMEMBER_DELETE_FAILED").With("operation", "del remember token").Wrap(err)
	}
	return nil
}

func (r *Store) load(ctx context.Context, key string, dst any) error {
	val, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		return err
	}
	if err := json.Unmarshal(val, dst); err != nil {
		return oops.Code("REDIS_DECODE_FAILED").With("key", key).Wrap(err)
	}
	return nil
}

// store writes v under key with a TTL ending at expiresAt. A record that is
// already expired is deleted instead.
func (r *Store) store(ctx context.Context, key string, v any, expiresAt time.Time) error {
	ttl := expiresAt.Sub(r.now())
	if ttl <= 0 {
		return r.client.Del(ctx, key).Err()
	}
	data, err := json.Marshal(v)
	if err != nil {
		return oops.Code("REDIS_ENCODE_FAILED").With("key", key).Wrap(err)
	}
	return r.client.Set(ctx, key, data, ttl).Err()
}

// Compile-time interface checks.
var (
	_ session.Store         = (*Store)(nil)
	_ session.RememberStore = (*Store)(nil)
)
