// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SmallLogin Contributors

package session

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/samber/oops"
)

// MemoryStore keeps sessions and remember tokens in process memory. It
// implements both Store and RememberStore.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]Session
	tokens   map[string]RememberToken
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]Session),
		tokens:   make(map[string]RememberToken),
	}
}

// Get implements Store.
func (m *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[HashToken(id)]
	if !ok {
		return nil, oops.Code("SESSION_NOT_FOUND").Wrap(ErrNotFound)
	}
	s.ID = id
	s.Flash = slices.Clone(s.Flash)
	return &s, nil
}

// Save implements Store.
func (m *MemoryStore) Save(_ context.Context, s *Session) error {
	if s.Hash == "" {
		return oops.Code("SESSION_INVALID_HASH").Errorf("session hash cannot be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := *s
	stored.ID = ""
	stored.Flash = slices.Clone(s.Flash)
	m.sessions[s.Hash] = stored
	return nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, HashToken(id))
	return nil
}

// DeleteExpired implements Store.
func (m *MemoryStore) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for hash, s := range m.sessions {
		if s.IsExpiredAt(before) {
			delete(m.sessions, hash)
			n++
		}
	}
	for hash, t := range m.tokens {
		if t.IsExpiredAt(before) {
			delete(m.tokens, hash)
			n++
		}
	}
	return n, nil
}

// Create implements RememberStore.
func (m *MemoryStore) Create(_ context.Context, t *RememberToken) error {
	if t.TokenHash == "" {
		return oops.Code("REMEMBER_INVALID_HASH").Errorf("token hash cannot be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[t.TokenHash] = *t
	return nil
}

// GetByTokenHash implements RememberStore.
func (m *MemoryStore) GetByTokenHash(_ context.Context, hash string) (*RememberToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tokens[hash]
	if !ok {
		return nil, oops.Code("REMEMBER_NOT_FOUND").Wrap(ErrNotFound)
	}
	return &t, nil
}

// DeleteByTokenHash implements RememberStore.
func (m *MemoryStore) DeleteByTokenHash(_ context.Context, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, hash)
	return nil
}

// Len returns the number of stored sessions.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
