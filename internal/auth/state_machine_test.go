// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SmallLogin Contributors

package auth_test

import (
	"context"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"golang.org/x/crypto/bcrypt"

	"github.com/smalllogin/smalllogin/internal/auth"
	"github.com/smalllogin/smalllogin/internal/credential"
	"github.com/smalllogin/smalllogin/internal/password"
	"github.com/smalllogin/smalllogin/internal/session"
)

var _ = Describe("Login and registration lifecycle", func() {
	var (
		ctx      context.Context
		users    *credential.MemoryStore
		sessions *session.MemoryStore
		ctrl     *auth.Controller
	)

	handle := func(req auth.Request) *auth.Result {
		GinkgoHelper()
		res, err := ctrl.Handle(ctx, req)
		Expect(err).NotTo(HaveOccurred())
		return res
	}

	BeforeEach(func() {
		ctx = context.Background()
		users = credential.NewMemoryStore()
		sessions = session.NewMemoryStore()
		var err error
		ctrl, err = auth.NewController(users, sessions, password.NewBcryptHasher(bcrypt.MinCost),
			auth.WithRememberStore(sessions))
		Expect(err).NotTo(HaveOccurred())
	})

	Context("with an empty user store", func() {
		It("offers registration to anonymous visitors", func() {
			res := handle(auth.Request{})
			Expect(res.State).To(Equal(auth.StatePendingRegistration))
			Expect(res.StoreEmpty).To(BeTrue())
			Expect(res.Session).To(BeNil())
			Expect(sessions.Len()).To(BeZero())
		})

		It("logs the first registered user in exactly once", func() {
			first := handle(auth.Request{Register: true, Form: registration("root", "Root1234", "Root1234", "root@example.com")})
			Expect(first.State).To(Equal(auth.StateAuthenticated))
			Expect(first.Username).To(Equal("root"))

			second := handle(auth.Request{Register: true, Form: registration("eve", "Evil1234", "Evil1234", "eve@example.com")})
			Expect(second.State).To(Equal(auth.StateAnonymous))
			Expect(users.Count()).To(Equal(1))
		})
	})

	Context("when an administrator is logged in", func() {
		var admin string

		BeforeEach(func() {
			admin = handle(auth.Request{Register: true, Form: registration("root", "Root1234", "Root1234", "root@example.com")}).Session.ID
		})

		It("creates users without switching identity", func() {
			res := handle(auth.Request{SessionID: admin, Register: true, Form: registration("bob", "Bob12345", "Bob12345", "")})
			Expect(res.Outcome).To(Equal(auth.OutcomeRedirectSelf))
			Expect(res.Username).To(Equal("root"))
			Expect(users.Count()).To(Equal(2))

			bob, err := users.FindByUsername(ctx, "bob")
			Expect(err).NotTo(HaveOccurred())
			Expect(bob.PasswordHash).NotTo(Equal("Bob12345"))
		})

		It("lets exactly one of two racing registrations win", func() {
			var wg sync.WaitGroup
			results := make([]*auth.Result, 2)
			for i := range results {
				wg.Add(1)
				go func(i int) {
					defer GinkgoRecover()
					defer wg.Done()
					res, err := ctrl.Handle(ctx, auth.Request{
						SessionID: admin,
						Register:  true,
						Form:      registration("twin", "Twin1234", "Twin1234", "twin@example.com"),
					})
					Expect(err).NotTo(HaveOccurred())
					results[i] = res
				}(i)
			}
			wg.Wait()

			created, rejected := 0, 0
			for _, res := range results {
				switch {
				case res.Outcome == auth.OutcomeRedirectSelf:
					created++
				case res.HasProblem(auth.ProblemUsernameExists):
					rejected++
				}
			}
			Expect(created).To(Equal(1))
			Expect(rejected).To(Equal(1))
			Expect(users.Count()).To(Equal(2))
		})

		It("rejects a duplicate username and keeps the form", func() {
			res := handle(auth.Request{SessionID: admin, Register: true, Form: registration("root", "Root9999", "Root9999", "x@example.com")})
			Expect(res.Texts()).To(ConsistOf(auth.MsgUsernameExists))
			Expect(res.Form).To(HaveKeyWithValue("email", "x@example.com"))
			Expect(res.Form).NotTo(HaveKey("password"))
		})
	})

	Context("logging in", func() {
		BeforeEach(func() {
			handle(auth.Request{Register: true, Form: registration("alice", "Alice123", "Alice123", "alice@example.com")})
		})

		It("changes the session identifier", func() {
			pre, err := session.New(time.Now(), time.Hour)
			Expect(err).NotTo(HaveOccurred())
			Expect(sessions.Save(ctx, pre)).To(Succeed())
			before := pre.ID

			res := handle(auth.Request{SessionID: before, Login: true, Form: map[string]string{"username": "alice", "password": "Alice123"}})
			Expect(res.State).To(Equal(auth.StateAuthenticated))
			Expect(res.Session.ID).NotTo(Equal(before))
			Expect(res.Session.BoundID).To(Equal(session.HashToken(res.Session.ID)))
		})

		It("cannot be bypassed with an injected username", func() {
			res := handle(auth.Request{Login: true, Form: map[string]string{"username": `" OR "1"="1" --`, "password": "anything"}})
			Expect(res.State).To(Equal(auth.StateAnonymous))
			Expect(res.Texts()).To(Equal([]string{auth.MsgWrongCredentials}))
		})

		It("ends with logout", func() {
			in := handle(auth.Request{Login: true, Form: map[string]string{"username": "alice", "password": "Alice123"}})
			out := handle(auth.Request{Logout: true, SessionID: in.Session.ID})
			Expect(out.Outcome).To(Equal(auth.OutcomeRedirectLanding))

			next := handle(auth.Request{SessionID: in.Session.ID})
			Expect(next.State).To(Equal(auth.StateAnonymous))
			Expect(next.Session).To(BeNil())
			Expect(next.ClearSession).To(BeTrue())
		})
	})
})
