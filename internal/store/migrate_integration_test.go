// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SmallLogin Contributors

//go:build integration

package store_test

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/smalllogin/smalllogin/internal/session"
	sessionpg "github.com/smalllogin/smalllogin/internal/session/postgres"
	"github.com/smalllogin/smalllogin/internal/store"
)

var _ = Describe("Migrator", Ordered, func() {
	var (
		ctx       context.Context
		container *postgres.PostgresContainer
		connStr   string
		migrator  *store.Migrator
	)

	BeforeAll(func() {
		ctx = context.Background()
		var err error
		container, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("test"),
			postgres.WithUsername("test"),
			postgres.WithPassword("test"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2)),
		)
		Expect(err).NotTo(HaveOccurred())

		connStr, err = container.ConnectionString(ctx, "sslmode=disable")
		Expect(err).NotTo(HaveOccurred())

		migrator, err = store.NewMigrator(connStr)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterAll(func() {
		if migrator != nil {
			Expect(migrator.Close()).To(Succeed())
		}
		if container != nil {
			Expect(container.Terminate(ctx)).To(Succeed())
		}
	})

	It("starts at version zero", func() {
		version, dirty, err := migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(BeZero())
		Expect(dirty).To(BeFalse())
	})

	It("applies every migration", func() {
		Expect(migrator.Up()).To(Succeed())
		version, dirty, err := migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(Equal(uint(2)))
		Expect(dirty).To(BeFalse())

		pending, err := migrator.PendingMigrations()
		Expect(err).NotTo(HaveOccurred())
		Expect(pending).To(BeEmpty())
	})

	It("creates tables the session repositories can use", func() {
		pool, err := store.OpenPool(ctx, connStr, store.PoolOptions{})
		Expect(err).NotTo(HaveOccurred())
		defer pool.Close()

		sessions := sessionpg.NewSessionStore(pool)
		s, err := session.New(time.Now(), time.Hour)
		Expect(err).NotTo(HaveOccurred())
		s.Authenticate("alice")
		Expect(sessions.Save(ctx, s)).To(Succeed())

		loaded, err := session.Load(ctx, sessions, s.ID, time.Now())
		Expect(err).NotTo(HaveOccurred())
		Expect(loaded.Authenticated()).To(BeTrue())

		remember := sessionpg.NewRememberStore(pool)
		rt, cookie, err := session.NewRememberToken("alice", time.Now(), time.Hour)
		Expect(err).NotTo(HaveOccurred())
		Expect(remember.Create(ctx, rt)).To(Succeed())
		username, err := session.Redeem(ctx, remember, cookie, time.Now())
		Expect(err).NotTo(HaveOccurred())
		Expect(username).To(Equal("alice"))

		assertNoPlaintext(ctx, pool, s.ID)

		n, err := sessions.DeleteExpired(ctx, time.Now().Add(2*time.Hour))
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(int64(1)))
	})

	It("rolls everything back", func() {
		Expect(migrator.Down()).To(Succeed())
		version, _, err := migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(BeZero())
	})

	It("can force a version", func() {
		Expect(migrator.Up()).To(Succeed())
		Expect(migrator.Force(1)).To(Succeed())
		version, dirty, err := migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(Equal(uint(1)))
		Expect(dirty).To(BeFalse())
	})
})

func assertNoPlaintext(ctx context.Context, pool *pgxpool.Pool, id string) {
	var count int
	Expect(pool.QueryRow(ctx, `SELECT COUNT(*) FROM web_sessions WHERE id_hash = $1`, id).Scan(&count)).To(Succeed())
	Expect(count).To(BeZero())
}
