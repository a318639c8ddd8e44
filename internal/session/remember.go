// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SmallLogin Contributors

package session

import (
	"context"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// DefaultRememberLifetime is how long a remember-me cookie stays valid.
const DefaultRememberLifetime = 7 * 24 * time.Hour

// RememberToken is the server-side half of a remember-me cookie.
type RememberToken struct {
	ID        ulid.ULID
	Username  string
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// NewRememberToken issues a token for username. It returns the record to
// persist and the cookie value to hand to the client.
func NewRememberToken(username string, now time.Time, lifetime time.Duration) (*RememberToken, string, error) {
	if username == "" {
		return nil, "", oops.Code("REMEMBER_INVALID_USERNAME").Errorf("username cannot be empty")
	}
	if lifetime <= 0 {
		return nil, "", oops.Code("REMEMBER_INVALID_LIFETIME").
			With("lifetime", lifetime.String()).
			Errorf("remember lifetime must be positive")
	}
	token, hash, err := GenerateToken()
	if err != nil {
		return nil, "", err
	}
	rt := &RememberToken{
		ID:        ulid.Make(),
		Username:  username,
		TokenHash: hash,
		ExpiresAt: now.Add(lifetime),
		CreatedAt: now,
	}
	return rt, FormatRememberCookie(username, token), nil
}

// IsExpiredAt returns true if the token would be expired at the given time.
func (t *RememberToken) IsExpiredAt(at time.Time) bool {
	return !at.Before(t.ExpiresAt)
}

// FormatRememberCookie builds the cookie value "<username>:<token>".
func FormatRememberCookie(username, token string) string {
	return username + ":" + token
}

// ParseRememberCookie splits a cookie value into username and token. The
// token is the part after the last colon.
func ParseRememberCookie(value string) (username, token string, ok bool) {
	i := strings.LastIndexByte(value, ':')
	if i <= 0 {
		return "", "", false
	}
	username, token = value[:i], value[i+1:]
	if !wellFormed(token) {
		return "", "", false
	}
	return username, token, true
}

// RememberStore persists remember tokens keyed by their hash.
type RememberStore interface {
	// Create stores a new token.
	Create(ctx context.Context, t *RememberToken) error
	// GetByTokenHash returns the token with the given hash or ErrNotFound.
	GetByTokenHash(ctx context.Context, hash string) (*RememberToken, error)
	// DeleteByTokenHash revokes a token. Revoking a missing token is not an error.
	DeleteByTokenHash(ctx context.Context, hash string) error
	// DeleteExpired removes tokens that expired before the given time.
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// Redeem resolves a remember cookie value to the username it vouches for.
// The token must exist, belong to the username in the cookie, and be
// unexpired at now. Expired tokens are revoked.
func Redeem(ctx context.Context, store RememberStore, cookie string, now time.Time) (string, error) {
	username, token, ok := ParseRememberCookie(cookie)
	if !ok {
		return "", oops.Code("REMEMBER_MALFORMED").Wrap(ErrNotFound)
	}
	hash := HashToken(token)
	rt, err := store.GetByTokenHash(ctx, hash)
	if err != nil {
		return "", err
	}
	if rt.IsExpiredAt(now) {
		if err := store.DeleteByTokenHash(ctx, hash); err != nil {
			return "", err
		}
		return "", oops.Code("REMEMBER_EXPIRED").Wrap(ErrNotFound)
	}
	if !VerifyToken(token, rt.TokenHash) || rt.Username != username {
		return "", oops.Code("REMEMBER_MISMATCH").
			With("username", username).
			Wrap(ErrNotFound)
	}
	return rt.Username, nil
}

// Revoke deletes the token carried by a remember cookie value, if any.
func Revoke(ctx context.Context, store RememberStore, cookie string) error {
	_, token, ok := ParseRememberCookie(cookie)
	if !ok {
		return nil
	}
	return store.DeleteByTokenHash(ctx, HashToken(token))
}
