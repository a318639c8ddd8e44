// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SmallLogin Contributors

//go:build integration

package redis_test

import (
	"context"
	"os"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/smalllogin/smalllogin/internal/session"
	"github.com/smalllogin/smalllogin/internal/session/redis"
)

var testClient *goredis.Client

// TestMain starts a Redis testcontainer shared by every test in the package.
func TestMain(m *testing.M) {
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		panic("failed to start redis container: " + err.Error())
	}

	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		_ = container.Terminate(ctx)
		panic("failed to get redis endpoint: " + err.Error())
	}

	client, err := redis.Dial(ctx, endpoint, "", 0)
	if err != nil {
		_ = container.Terminate(ctx)
		panic("failed to connect to redis: " + err.Error())
	}
	testClient = client

	code := m.Run()

	_ = client.Close()
	_ = container.Terminate(ctx)
	os.Exit(code)
}

func TestStore_SessionRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := redis.New(testClient)

	s, err := session.New(time.Now(), time.Hour)
	require.NoError(t, err)
	s.Authenticate("alice")
	s.AddFlash("User created.")
	require.NoError(t, store.Save(ctx, s))

	keys, err := testClient.Keys(ctx, "*"+s.ID+"*").Result()
	require.NoError(t, err)
	assert.Empty(t, keys, "the plaintext identifier must not appear in any key")

	got, err := session.Load(ctx, store, s.ID, time.Now())
	require.NoError(t, err)
	assert.True(t, got.Authenticated())
	assert.Equal(t, []string{"User created."}, got.Flash)

	ttl, err := testClient.TTL(ctx, "smalllogin:session:"+s.Hash).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, 50*time.Minute)

	require.NoError(t, store.Delete(ctx, s.ID))
	_, err = store.Get(ctx, s.ID)
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestStore_ExpiredSessionIsNotWritten(t *testing.T) {
	ctx := context.Background()
	store := redis.New(testClient)

	s, err := session.New(time.Now().Add(-2*time.Hour), time.Hour)
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, s))

	_, err = store.Get(ctx, s.ID)
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestStore_RememberTokens(t *testing.T) {
	ctx := context.Background()
	store := redis.New(testClient)

	rt, cookie, err := session.NewRememberToken("alice", time.Now(), session.DefaultRememberLifetime)
	require.NoError(t, err)
	require.NoError(t, store.Create(ctx, rt))

	username, err := session.Redeem(ctx, store, cookie, time.Now())
	require.NoError(t, err)
	assert.Equal(t, "alice", username)

	got, err := store.GetByTokenHash(ctx, rt.TokenHash)
	require.NoError(t, err)
	assert.Equal(t, rt.ID, got.ID)

	require.NoError(t, session.Revoke(ctx, store, cookie))
	_, err = session.Redeem(ctx, store, cookie, time.Now())
	assert.ErrorIs(t, err, session.ErrNotFound)
}
