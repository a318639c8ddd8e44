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

	"github.com/smalllogin/smalllogin/internal/credential"
	"github.com/smalllogin/smalllogin/pkg/errutil"
)

var selectUser = regexp.QuoteMeta(`FROM "user"`)

var userColumns = []string{"id", "username", "firstname", "lastname", "email", "mobile", "password"}

func TestRunUserShow(t *testing.T) {
	ctx := context.Background()

	t.Run("prints the profile without the password", func(t *testing.T) {
		deps, mock := mockPoolDeps(t)
		mock.ExpectQuery(selectUser).WithArgs("alice").WillReturnRows(
			pgxmock.NewRows(userColumns).AddRow(int64(1), "alice", "Alice", "Smith", "alice@example.com", "+36 1 234", "$argon2id$hash"))
		cmd, out, _ := newTestCmd()

		require.NoError(t, runUserShow(ctx, postgresConfig(), cmd, "alice", deps))
		assert.Equal(t,
			"email: alice@example.com\nfirstname: Alice\nlastname: Smith\nmobile: +36 1 234\nusername: alice\n",
			out.String())
		assert.NotContains(t, out.String(), "argon2id")
	})

	t.Run("username is sanitized before lookup", func(t *testing.T) {
		deps, mock := mockPoolDeps(t)
		mock.ExpectQuery(selectUser).WithArgs("alice").WillReturnRows(
			pgxmock.NewRows(userColumns).AddRow(int64(1), "alice", "", "", "", "", "hash"))
		cmd, out, _ := newTestCmd()

		require.NoError(t, runUserShow(ctx, postgresConfig(), cmd, `al'ice;`, deps))
		assert.Contains(t, out.String(), "username: alice")
	})

	t.Run("unknown user", func(t *testing.T) {
		deps, mock := mockPoolDeps(t)
		mock.ExpectQuery(selectUser).WithArgs("ghost").WillReturnRows(pgxmock.NewRows(userColumns))
		cmd, _, _ := newTestCmd()

		err := runUserShow(ctx, postgresConfig(), cmd, "ghost", deps)
		require.Error(t, err)
		assert.ErrorIs(t, err, credential.ErrNotFound)
		errutil.AssertErrorCode(t, err, "USER_NOT_FOUND")
	})

	t.Run("query failure", func(t *testing.T) {
		deps, mock := mockPoolDeps(t)
		mock.ExpectQuery(selectUser).WithArgs("alice").WillReturnError(errors.New("connection reset"))
		cmd, _, _ := newTestCmd()

		err := runUserShow(ctx, postgresConfig(), cmd, "alice", deps)
		require.Error(t, err)
		assert.NotErrorIs(t, err, credential.ErrNotFound)
	})

	t.Run("memory store without a table", func(t *testing.T) {
		cmd, _, _ := newTestCmd()

		err := runUserShow(ctx, memoryConfig(), cmd, "alice", nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, credential.ErrSchema)
	})
}
