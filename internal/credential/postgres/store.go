// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SmallLogin Contributors

// Package postgres implements credential.Store on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"

	"github.com/smalllogin/smalllogin/internal/credential"
)

// TableName is the user table. It is a reserved word in PostgreSQL and is
// always quoted.
const TableName = "user"

var quotedTable = pgx.Identifier{TableName}.Sanitize()

var createTableSQL = `CREATE TABLE IF NOT EXISTS ` + quotedTable + ` (
	id        BIGSERIAL PRIMARY KEY,
	username  VARCHAR(100) NOT NULL,
	firstname VARCHAR(100) NOT NULL DEFAULT '',
	lastname  VARCHAR(100) NOT NULL DEFAULT '',
	email     VARCHAR(100) NOT NULL DEFAULT '',
	mobile    VARCHAR(100) NOT NULL DEFAULT '',
	password  VARCHAR(255) NOT NULL,
	CONSTRAINT user_username_key UNIQUE (username)
)`

// poolIface is the subset of pgxpool.Pool used by Store. Every call acquires
// a connection from the pool and releases it before returning.
type poolIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// Store implements credential.Store using PostgreSQL.
type Store struct {
	pool poolIface

	mu      sync.Mutex
	columns []string
}

// NewStore creates a new Store.
func NewStore(pool poolIface) *Store {
	return &Store{pool: pool}
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return classify(err, "STORE_PING_FAILED", "ping")
	}
	return nil
}

// FieldNames returns the user table's columns in ordinal order, excluding id.
func (s *Store) FieldNames(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT column_name
		FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = $1
		ORDER BY ordinal_position
	`, TableName)
	if err != nil {
		return nil, classify(err, "STORE_FIELDS_FAILED", "list columns")
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, classify(err, "STORE_FIELDS_FAILED", "scan column")
		}
		if strings.EqualFold(name, credential.FieldID) {
			continue
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, "STORE_FIELDS_FAILED", "iterate columns")
	}

	if len(names) == 0 {
		return nil, oops.Code("STORE_SCHEMA_MISSING").
			With("table", TableName).
			Wrap(credential.ErrSchema)
	}

	s.mu.Lock()
	s.columns = slices.Clone(names)
	s.mu.Unlock()

	return names, nil
}

// EnsureSchema creates the user table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM information_schema.tables
			WHERE table_schema = current_schema() AND table_name = $1
		)
	`, TableName).Scan(&exists)
	if err != nil {
		return false, classify(err, "STORE_SCHEMA_CHECK_FAILED", "check table")
	}
	if exists {
		return false, nil
	}

	if _, err := s.pool.Exec(ctx, createTableSQL); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			return false, oops.Code("STORE_SCHEMA_CREATE_FAILED").
				With("table", TableName).
				Wrap(fmt.Errorf("%w: %w", credential.ErrSchema, err))
		}
		return false, classify(err, "STORE_SCHEMA_CREATE_FAILED", "create table")
	}
	return true, nil
}

// FindByUsername looks up a user by exact username.
func (s *Store) FindByUsername(ctx context.Context, username string) (*credential.User, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, username, firstname, lastname, email, mobile, password
		FROM `+quotedTable+`
		WHERE username = $1
		ORDER BY id
	`, username)
	if err != nil {
		return nil, classify(err, "USER_GET_BY_USERNAME_FAILED", "get user by username")
	}
	defer rows.Close()

	// The UNIQUE constraint makes more than one row impossible; if it happens
	// anyway the last row wins.
	var found *credential.User
	for rows.Next() {
		var u credential.User
		if err := rows.Scan(&u.ID, &u.Username, &u.Firstname, &u.Lastname, &u.Email, &u.Mobile, &u.PasswordHash); err != nil {
			return nil, classify(err, "USER_SCAN_FAILED", "scan user")
		}
		found = &u
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, "USER_GET_BY_USERNAME_FAILED", "iterate users")
	}

	if found == nil {
		return nil, oops.Code("USER_NOT_FOUND").
			With("username", username).
			Wrap(credential.ErrNotFound)
	}
	return found, nil
}

// Insert adds a row built from fields and returns the new id.
func (s *Store) Insert(ctx context.Context, fields map[string]string) (int64, error) {
	columns, err := s.knownColumns(ctx)
	if err != nil {
		return 0, err
	}
	if err := credential.CheckInsertKeys(fields, columns); err != nil {
		return 0, err
	}

	quoted := make([]string, len(columns))
	placeholders := make([]string, len(columns))
	args := make([]any, len(columns))
	for i, col := range columns {
		quoted[i] = pgx.Identifier{col}.Sanitize()
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = fields[col]
	}

	query := `INSERT INTO ` + quotedTable + ` (` + strings.Join(quoted, ", ") +
		`) VALUES (` + strings.Join(placeholders, ", ") + `) RETURNING id`

	var id int64
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&id); err != nil {
		return 0, classify(err, "USER_CREATE_FAILED", "insert user",
			"username", fields[credential.FieldUsername])
	}
	return id, nil
}

// IsEmpty reports whether the user table has no rows.
func (s *Store) IsEmpty(ctx context.Context) (bool, error) {
	var empty bool
	err := s.pool.QueryRow(ctx, `SELECT NOT EXISTS (SELECT 1 FROM `+quotedTable+`)`).Scan(&empty)
	if err != nil {
		return false, classify(err, "STORE_COUNT_FAILED", "check empty")
	}
	return empty, nil
}

func (s *Store) knownColumns(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	cached := slices.Clone(s.columns)
	s.mu.Unlock()

	if len(cached) > 0 {
		return cached, nil
	}
	return s.FieldNames(ctx)
}

// classify maps a pgx error onto the credential error taxonomy. PostgreSQL
// errors keep the driver error for debug logging; anything else means the
// database could not be reached.
func classify(err error, code, operation string, kv ...any) error {
	builder := oops.With("operation", operation).With(kv...)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.UniqueViolation:
			return builder.Code("USER_DUPLICATE").
				Wrap(fmt.Errorf("%w: %w", credential.ErrDuplicateUsername, err))
		case pgerrcode.UndefinedTable, pgerrcode.UndefinedColumn:
			return builder.Code("STORE_SCHEMA_MISSING").
				Wrap(fmt.Errorf("%w: %w", credential.ErrSchema, err))
		}
		return builder.Code(code).Wrap(err)
	}

	return builder.Code("STORE_CONNECTION_FAILED").
		Wrap(fmt.Errorf("%w: %w", credential.ErrConnection, err))
}

// Compile-time interface check.
var _ credential.Store = (*Store)(nil)
