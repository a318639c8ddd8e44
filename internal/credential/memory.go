// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SmallLogin Contributors

package credential

import (
	"context"
	"slices"
	"sync"

	"github.com/samber/oops"
)

// MemoryStore is an in-process Store. It is used by tests and by the
// "memory" store backend for local development; data does not survive a restart.
type MemoryStore struct {
	mu     sync.Mutex
	fields []string // nil until the table exists
	rows   []map[string]string
	ids    []int64
	nextID int64
}

// NewMemoryStore creates a MemoryStore whose table already exists with the
// given columns (DefaultFields when none are given).
func NewMemoryStore(fields ...string) *MemoryStore {
	if len(fields) == 0 {
		fields = DefaultFields
	}
	return &MemoryStore{fields: slices.Clone(fields), nextID: 1}
}

// NewUninitializedMemoryStore creates a MemoryStore with no table; every
// operation except EnsureSchema fails with ErrSchema until it is called.
func NewUninitializedMemoryStore() *MemoryStore {
	return &MemoryStore{nextID: 1}
}

// FieldNames returns the table's columns excluding the surrogate key.
func (s *MemoryStore) FieldNames(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fields == nil {
		return nil, oops.Code("STORE_SCHEMA_MISSING").Wrap(ErrSchema)
	}
	return slices.Clone(s.fields), nil
}

// EnsureSchema creates the table with DefaultFields if absent.
func (s *MemoryStore) EnsureSchema(_ context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fields != nil {
		return false, nil
	}
	s.fields = slices.Clone(DefaultFields)
	return true, nil
}

// FindByUsername returns the matching user or ErrNotFound.
// If several rows match, the last one wins.
func (s *MemoryStore) FindByUsername(_ context.Context, username string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fields == nil {
		return nil, oops.Code("STORE_SCHEMA_MISSING").Wrap(ErrSchema)
	}

	var found *User
	for i, row := range s.rows {
		if row[FieldUsername] == username {
			found = FromFields(s.ids[i], row)
		}
	}
	if found == nil {
		return nil, oops.Code("USER_NOT_FOUND").
			With("username", username).
			Wrap(ErrNotFound)
	}
	return found, nil
}

// Insert stores a new row and returns its id.
func (s *MemoryStore) Insert(_ context.Context, fields map[string]string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fields == nil {
		return 0, oops.Code("STORE_SCHEMA_MISSING").Wrap(ErrSchema)
	}
	if err := CheckInsertKeys(fields, s.fields); err != nil {
		return 0, err
	}
	for _, row := range s.rows {
		if row[FieldUsername] == fields[FieldUsername] {
			return 0, oops.Code("USER_DUPLICATE").
				With("username", fields[FieldUsername]).
				Wrap(ErrDuplicateUsername)
		}
	}

	id := s.nextID
	s.nextID++
	row := make(map[string]string, len(fields))
	for k, v := range fields {
		row[k] = v
	}
	s.rows = append(s.rows, row)
	s.ids = append(s.ids, id)
	return id, nil
}

// IsEmpty reports whether no users exist.
func (s *MemoryStore) IsEmpty(_ context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fields == nil {
		return false, oops.Code("STORE_SCHEMA_MISSING").Wrap(ErrSchema)
	}
	return len(s.rows) == 0, nil
}

// Count returns the number of stored users.
func (s *MemoryStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

// Compile-time interface check.
var _ Store = (*MemoryStore)(nil)
