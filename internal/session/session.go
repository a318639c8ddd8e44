// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SmallLogin Contributors

// Package session holds per-client session state and the remember-me tokens
// that can restore it. Identifiers are random tokens; stores persist only
// their SHA-256 hashes.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/samber/oops"
)

// DefaultLifetime is how long a session lives when no lifetime is configured.
const DefaultLifetime = 24 * time.Hour

// ErrNotFound is returned when no session or remember token matches.
var ErrNotFound = errors.New("session not found")

// Session is the server-side state of one client.
type Session struct {
	// ID is the plaintext identifier. It is never persisted.
	ID string
	// Hash is HashToken(ID), the key stores persist under.
	Hash string
	// Username of the authenticated user, empty when anonymous.
	Username string
	// LoggedIn is set by a successful login or bootstrap registration.
	LoggedIn bool
	// BoundID is the hash of the identifier the login happened under.
	BoundID string
	// Flash holds messages shown once on the next render.
	Flash     []string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// New creates an anonymous session with a fresh identifier.
func New(now time.Time, lifetime time.Duration) (*Session, error) {
	if lifetime <= 0 {
		return nil, oops.Code("SESSION_INVALID_LIFETIME").
			With("lifetime", lifetime.String()).
			Errorf("session lifetime must be positive")
	}
	id, hash, err := GenerateToken()
	if err != nil {
		return nil, err
	}
	return &Session{
		ID:        id,
		Hash:      hash,
		CreatedAt: now,
		ExpiresAt: now.Add(lifetime),
	}, nil
}

// Authenticated reports whether the session carries a login that was bound
// to its current identifier.
func (s *Session) Authenticated() bool {
	return s.LoggedIn && s.Username != "" && VerifyToken(s.ID, s.BoundID)
}

// Authenticate marks the session as logged in as username under its current
// identifier.
func (s *Session) Authenticate(username string) {
	s.Username = username
	s.LoggedIn = true
	s.BoundID = s.Hash
}

// AddFlash queues a message for the next render.
func (s *Session) AddFlash(msg string) {
	s.Flash = append(s.Flash, msg)
}

// TakeFlash returns and clears the queued messages.
func (s *Session) TakeFlash() []string {
	msgs := s.Flash
	s.Flash = nil
	return msgs
}

// IsExpiredAt returns true if the session would be expired at the given time.
func (s *Session) IsExpiredAt(t time.Time) bool {
	return !t.Before(s.ExpiresAt)
}

// Store persists sessions keyed by the hash of their identifier.
type Store interface {
	// Get loads the session whose identifier is id. Returns ErrNotFound when
	// nothing is stored under it.
	Get(ctx context.Context, id string) (*Session, error)
	// Save creates or replaces the session.
	Save(ctx context.Context, s *Session) error
	// Delete removes the session with identifier id. Deleting a missing
	// session is not an error.
	Delete(ctx context.Context, id string) error
	// DeleteExpired removes sessions that expired before the given time and
	// reports how many were removed.
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// Load fetches id from store and rejects identifiers that are malformed,
// unknown or expired at now. Expired sessions are deleted on the way.
func Load(ctx context.Context, store Store, id string, now time.Time) (*Session, error) {
	if !wellFormed(id) {
		return nil, oops.Code("SESSION_NOT_FOUND").Wrap(ErrNotFound)
	}
	s, err := store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.IsExpiredAt(now) {
		if err := store.Delete(ctx, id); err != nil {
			return nil, err
		}
		return nil, oops.Code("SESSION_EXPIRED").
			With("expired_at", s.ExpiresAt).
			Wrap(ErrNotFound)
	}
	return s, nil
}
