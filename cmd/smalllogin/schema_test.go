// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SmallLogin Contributors

package main

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smalllogin/smalllogin/internal/config"
	"github.com/smalllogin/smalllogin/internal/credential"
	credpostgres "github.com/smalllogin/smalllogin/internal/credential/postgres"
	"github.com/smalllogin/smalllogin/internal/store"
	"github.com/smalllogin/smalllogin/pkg/errutil"
)

var (
	tablesQuery  = regexp.QuoteMeta(`FROM information_schema.tables`)
	columnsQuery = regexp.QuoteMeta(`FROM information_schema.columns`)
)

func postgresConfig() config.Config {
	cfg := config.Default()
	cfg.Database.URL = "postgres://localhost/smalllogin"
	cfg.Log.Level = "error"
	return cfg
}

// mockPoolDeps returns deps whose pool factory hands out a pgxmock pool.
func mockPoolDeps(t *testing.T) (*Deps, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err, "failed to create mock")
	return &Deps{
		PoolFactory: func(context.Context, string, store.PoolOptions) (Pool, error) {
			return mock, nil
		},
	}, mock
}

func columnRows(names ...string) *pgxmock.Rows {
	rows := pgxmock.NewRows([]string{"column_name"}).AddRow("id")
	for _, name := range names {
		rows.AddRow(name)
	}
	return rows
}

func TestRunSchemaEnsure(t *testing.T) {
	ctx := context.Background()

	t.Run("memory store reports creation", func(t *testing.T) {
		cmd, out, _ := newTestCmd()
		require.NoError(t, runSchemaEnsure(ctx, memoryConfig(), cmd, nil))
		assert.Equal(t, "Creating user table... ready\n", out.String())
	})

	t.Run("existing postgres table", func(t *testing.T) {
		deps, mock := mockPoolDeps(t)
		mock.ExpectQuery(tablesQuery).WithArgs(credpostgres.TableName).
			WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
		cmd, out, _ := newTestCmd()

		require.NoError(t, runSchemaEnsure(ctx, postgresConfig(), cmd, deps))
		assert.Equal(t, "Creating user table... already exists\n", out.String())
	})

	t.Run("absent postgres table is created", func(t *testing.T) {
		deps, mock := mockPoolDeps(t)
		mock.ExpectQuery(tablesQuery).WithArgs(credpostgres.TableName).
			WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
		mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE IF NOT EXISTS "user"`)).
			WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
		cmd, out, _ := newTestCmd()

		require.NoError(t, runSchemaEnsure(ctx, postgresConfig(), cmd, deps))
		assert.Equal(t, "Creating user table... ready\n", out.String())
	})

	t.Run("check failure", func(t *testing.T) {
		deps, mock := mockPoolDeps(t)
		mock.ExpectQuery(tablesQuery).WithArgs(credpostgres.TableName).
			WillReturnError(errors.New("connection reset"))
		cmd, out, _ := newTestCmd()

		err := runSchemaEnsure(ctx, postgresConfig(), cmd, deps)
		require.Error(t, err)
		assert.Contains(t, out.String(), "failed")
	})

	t.Run("pool failure", func(t *testing.T) {
		deps := &Deps{PoolFactory: func(context.Context, string, store.PoolOptions) (Pool, error) {
			return nil, errors.New("connection refused")
		}}
		cmd, _, _ := newTestCmd()

		err := runSchemaEnsure(ctx, postgresConfig(), cmd, deps)
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "BACKEND_OPEN_FAILED")
	})
}

func TestRunSchemaFields(t *testing.T) {
	ctx := context.Background()

	t.Run("matching columns", func(t *testing.T) {
		deps, mock := mockPoolDeps(t)
		mock.ExpectQuery(columnsQuery).WithArgs(credpostgres.TableName).
			WillReturnRows(columnRows(credential.DefaultFields...))
		cmd, out, errOut := newTestCmd()

		require.NoError(t, runSchemaFields(ctx, postgresConfig(), cmd, deps))
		assert.Equal(t, "username\nfirstname\nlastname\nemail\nmobile\npassword\n", out.String())
		assert.Empty(t, errOut.String())
	})

	t.Run("configured fields differ from the table", func(t *testing.T) {
		deps, mock := mockPoolDeps(t)
		mock.ExpectQuery(columnsQuery).WithArgs(credpostgres.TableName).
			WillReturnRows(columnRows("username", "password"))
		cmd, out, errOut := newTestCmd()

		err := runSchemaFields(ctx, postgresConfig(), cmd, deps)
		require.Error(t, err)
		assert.ErrorIs(t, err, credential.ErrSchema)
		assert.Equal(t, "username\npassword\n", out.String())
		assert.Contains(t, errOut.String(), "do not match the user table")
	})

	t.Run("missing table", func(t *testing.T) {
		cmd, _, _ := newTestCmd()

		err := runSchemaFields(ctx, memoryConfig(), cmd, nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, credential.ErrSchema)
	})
}
