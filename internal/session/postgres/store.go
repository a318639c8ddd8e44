// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SmallLogin Contributors

// Package postgres implements session.Store and session.RememberStore on
// PostgreSQL. The tables are created by the migrations in internal/store.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/smalllogin/smalllogin/internal/session"
)

// poolIface is the subset of pgxpool.Pool used by the repositories.
type poolIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// SessionStore implements session.Store using the web_sessions table.
type SessionStore struct {
	pool poolIface
}

// NewSessionStore creates a new SessionStore.
func NewSessionStore(pool poolIface) *SessionStore {
	return &SessionStore{pool: pool}
}

// Get retrieves a session by its plaintext identifier.
func (r *SessionStore) Get(ctx context.Context, id string) (*session.Session, error) {
	hash := session.HashToken(id)
	row := r.pool.QueryRow(ctx, `
		SELECT username, logged_in, bound_id, flash, created_at, expires_at
		FROM web_sessions
		WHERE id_hash = $1
	`, hash)

	s := &session.Session{ID: id, Hash: hash}
	err := row.Scan(&s.Username, &s.LoggedIn, &s.BoundID, &s.Flash, &s.CreatedAt, &s.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("SESSION_NOT_FOUND").Wrap(session.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("SESSION_GET_FAILED").
			With("operation", "get web_session").
			Wrap(err)
	}
	return s, nil
}

// Save inserts or replaces a session.
func (r *SessionStore) Save(ctx context.Context, s *session.Session) error {
	if s.Hash == "" {
		return oops.Code("SESSION_INVALID_HASH").Errorf("session hash cannot be empty")
	}
	flash := s.Flash
	if flash == nil {
		flash = []string{}
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO web_sessions (id_hash, username, logged_in, bound_id, flash, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id_hash) DO UPDATE SET
			username = EXCLUDED.username,
			logged_in = EXCLUDED.logged_in,
			bound_id = EXCLUDED.bound_id,
			flash = EXCLUDED.flash,
			expires_at = EXCLUDED.expires_at
	`,
		s.Hash,
		s.Username,
		s.LoggedIn,
		s.BoundID,
		flash,
		s.CreatedAt,
		s.ExpiresAt,
	)
	if err != nil {
		return oops.Code("SESSION_SAVE_FAILED").
			With("operation", "upsert web_session").
			Wrap(err)
	}
	return nil
}

// Delete removes a session by its plaintext identifier.
func (r *SessionStore) Delete(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM web_sessions WHERE id_hash = $1`, session.HashToken(id))
	if err != nil {
		return oops.Code("SESSION_DELETE_FAILED").
			With("operation", "delete web_session").
			Wrap(err)
	}
	return nil
}

// DeleteExpired removes all sessions that expired before the given time.
func (r *SessionStore) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.pool.Exec(ctx, `DELETE FROM web_sessions WHERE expires_at <= $1`, before)
	if err != nil {
		return 0, oops.Code("SESSION_DELETE_EXPIRED_FAILED").
			With("operation", "delete expired web_sessions").
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

// RememberStore implements session.RememberStore using the remember_tokens table.
type RememberStore struct {
	pool poolIface
}

// NewRememberStore creates a new RememberStore.
func NewRememberStore(pool poolIface) *RememberStore {
	return &RememberStore{pool: pool}
}

// Create stores a new remember token.
func (r *RememberStore) Create(ctx context.Context, t *session.RememberToken) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO remember_tokens (id, username, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`,
		t.ID.String(),
		t.Username,
		t.TokenHash,
		t.ExpiresAt,
		t.CreatedAt,
	)
	if err != nil {
		return oops.Code("REMEMBER_CREATE_FAILED").
			With("operation", "insert remember_token").
			With("username", t.Username).
			Wrap(err)
	}
	return nil
}

// GetByTokenHash retrieves a remember token by its hash.
func (r *RememberStore) GetByTokenHash(ctx context.Context, hash string) (*session.RememberToken, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, username, token_hash, expires_at, created_at
		FROM remember_tokens
		WHERE token_hash = $1
	`, hash)

	var idStr string
	t := &session.RememberToken{}
	err := row.Scan(&idStr, &t.Username, &t.TokenHash, &t.ExpiresAt, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("REMEMBER_NOT_FOUND").Wrap(session.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("REMEMBER_GET_FAILED").
			With("operation", "get remember_token").
			Wrap(err)
	}
	t.ID, err = ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("REMEMBER_PARSE_FAILED").
			With("id", idStr).
			Wrap(err)
	}
	return t, nil
}

// DeleteByTokenHash revokes a remember token.
func (r *RememberStore) DeleteByTokenHash(ctx context.Context, hash string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM remember_tokens WHERE token_hash = $1`, hash)
	if err != nil {
		return oops.Code("REMEMBER_DELETE_FAILED").
			With("operation", "delete remember_token").
			Wrap(err)
	}
	return nil
}

// DeleteExpired removes all remember tokens that expired before the given time.
func (r *RememberStore) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.pool.Exec(ctx, `DELETE FROM remember_tokens WHERE expires_at <= $1`, before)
	if err != nil {
		return 0, oops.Code("REMEMBER_DELETE_EXPIRED_FAILED").
			With("operation", "delete expired remember_tokens").
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

// Compile-time interface checks.
var (
	_ session.Store         = (*SessionStore)(nil)
	_ session.RememberStore = (*RememberStore)(nil)
)
