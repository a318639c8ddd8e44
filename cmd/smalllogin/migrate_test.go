// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SmallLogin Contributors

package main

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smalllogin/smalllogin/pkg/errutil"
)

func TestParseForceVersion(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		wantVersion int
		wantErrCode string
	}{
		{name: "valid integer", input: "2", wantVersion: 2},
		{name: "zero is valid", input: "0", wantVersion: 0},
		{name: "non-numeric returns error", input: "abc", wantErrCode: "INVALID_VERSION"},
		{name: "trailing chars are rejected", input: "3abc", wantErrCode: "INVALID_VERSION"},
		{name: "float is rejected", input: "1.5", wantErrCode: "INVALID_VERSION"},
		{name: "negative is rejected", input: "-1", wantErrCode: "INVALID_VERSION"},
		{name: "empty string returns error", input: "", wantErrCode: "INVALID_VERSION"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseForceVersion(tt.input)
			if tt.wantErrCode != "" {
				require.Error(t, err)
				errutil.AssertErrorCode(t, err, tt.wantErrCode)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantVersion, got)
		})
	}
}

func TestRunMigrateUp(t *testing.T) {
	t.Run("nothing pending", func(t *testing.T) {
		cmd, out, _ := newTestCmd()
		m := &mockMigrator{}

		require.NoError(t, runMigrateUp(cmd, m))
		assert.Contains(t, out.String(), "No pending migrations")
		assert.Zero(t, m.upCalls, "Up must not run when nothing is pending")
	})

	t.Run("applies pending migrations by name", func(t *testing.T) {
		cmd, out, _ := newTestCmd()
		m := &mockMigrator{pendingFunc: func() ([]uint, error) { return []uint{1, 2}, nil }}

		require.NoError(t, runMigrateUp(cmd, m))
		assert.Contains(t, out.String(), "Applying 000001_web_sessions")
		assert.Contains(t, out.String(), "Applying 000002_remember_tokens")
		assert.Contains(t, out.String(), "Migrations completed successfully")
		assert.Equal(t, 1, m.upCalls)
	})

	t.Run("unknown version falls back to the number", func(t *testing.T) {
		cmd, out, _ := newTestCmd()
		m := &mockMigrator{pendingFunc: func() ([]uint, error) { return []uint{42}, nil }}

		require.NoError(t, runMigrateUp(cmd, m))
		assert.Contains(t, out.String(), "Applying 000042")
	})

	t.Run("pending lookup failure", func(t *testing.T) {
		cmd, _, _ := newTestCmd()
		m := &mockMigrator{pendingFunc: func() ([]uint, error) { return nil, errors.New("no database") }}

		err := runMigrateUp(cmd, m)
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "MIGRATION_FAILED")
		errutil.AssertErrorContext(t, err, "operation", "list pending migrations")
	})

	t.Run("up failure", func(t *testing.T) {
		cmd, _, _ := newTestCmd()
		m := &mockMigrator{
			pendingFunc: func() ([]uint, error) { return []uint{1}, nil },
			upFunc:      func() error { return errors.New("syntax error") },
		}

		err := runMigrateUp(cmd, m)
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "MIGRATION_FAILED")
		errutil.AssertErrorContext(t, err, "operation", "run migrations")
	})
}

func TestRunMigrateDown(t *testing.T) {
	cmd, out, _ := newTestCmd()
	require.NoError(t, runMigrateDown(cmd, &mockMigrator{}))
	assert.Contains(t, out.String(), "Migrations rolled back")

	cmd, _, _ = newTestCmd()
	err := runMigrateDown(cmd, &mockMigrator{downFunc: func() error { return errors.New("locked") }})
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "MIGRATION_FAILED")
}

func TestRunMigrateVersion(t *testing.T) {
	tests := []struct {
		name    string
		version uint
		dirty   bool
		want    string
	}{
		{name: "fresh database", version: 0, want: "No migrations applied"},
		{name: "clean version", version: 2, want: "Version 2\n"},
		{name: "dirty version", version: 1, dirty: true, want: "Version 1 (dirty)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, out, _ := newTestCmd()
			m := &mockMigrator{versionFunc: func() (uint, bool, error) { return tt.version, tt.dirty, nil }}

			require.NoError(t, runMigrateVersion(cmd, m))
			assert.Contains(t, out.String(), tt.want)
		})
	}

	t.Run("version failure", func(t *testing.T) {
		cmd, _, _ := newTestCmd()
		m := &mockMigrator{versionFunc: func() (uint, bool, error) { return 0, false, errors.New("gone") }}

		err := runMigrateVersion(cmd, m)
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "MIGRATION_FAILED")
	})
}

func TestWithMigrator(t *testing.T) {
	t.Run("opens the configured database and closes the migrator", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "postgres://env/db")
		cmd, _, _ := newTestCmd()
		m := &mockMigrator{}
		var gotURL string
		deps := &Deps{MigratorFactory: func(url string) (Migrator, error) {
			gotURL = url
			return m, nil
		}}

		called := false
		err := withMigrator(cmd, deps, func(got Migrator) error {
			called = true
			assert.Same(t, m, got)
			return nil
		})
		require.NoError(t, err)
		assert.True(t, called)
		assert.Equal(t, "postgres://env/db", gotURL)
		assert.Equal(t, 1, m.closeCalls)
	})

	t.Run("close failure is only a warning", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "postgres://env/db")
		cmd, _, errOut := newTestCmd()
		m := &mockMigrator{closeFunc: func() error { return errors.New("close failed") }}
		deps := &Deps{MigratorFactory: func(string) (Migrator, error) { return m, nil }}

		require.NoError(t, withMigrator(cmd, deps, func(Migrator) error { return nil }))
		assert.Contains(t, errOut.String(), "failed to close migrator")
	})

	t.Run("factory failure", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "postgres://env/db")
		cmd, _, _ := newTestCmd()
		deps := &Deps{MigratorFactory: func(string) (Migrator, error) { return nil, errors.New("dial failed") }}

		err := withMigrator(cmd, deps, func(Migrator) error {
			t.Fatal("fn must not run")
			return nil
		})
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "MIGRATION_FAILED")
	})

	t.Run("missing database url", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "")
		cmd, _, _ := newTestCmd()
		deps := &Deps{MigratorFactory: func(string) (Migrator, error) {
			t.Fatal("factory must not run")
			return nil, nil
		}}

		err := withMigrator(cmd, deps, func(Migrator) error { return nil })
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
	})

	t.Run("memory store has no migrations", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "")
		cmd, _, _ := newTestCmd()
		cmd.Flags().String("store", "postgres", "")
		cmd.Flags().String("session-backend", "postgres", "")
		require.NoError(t, cmd.Flags().Parse([]string{"--store", "memory", "--session-backend", "memory"}))

		err := withMigrator(cmd, &Deps{}, func(Migrator) error { return nil })
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
	})
}
