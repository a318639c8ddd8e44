// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SmallLogin Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	"github.com/samber/oops"

	"github.com/smalllogin/smalllogin/internal/credential"
	"github.com/smalllogin/smalllogin/internal/password"
	"github.com/smalllogin/smalllogin/internal/session"
)

// Recorder receives outcome counts. The observability server implements it.
type Recorder interface {
	RecordLogin(outcome string)
	RecordRegistration(outcome string)
	RecordLogout()
}

// Login outcomes.
const (
	LoginSuccess            = "success"
	LoginRemembered         = "remembered"
	LoginInvalidCredentials = "invalid_credentials"
	LoginEmptyField         = "empty_field"
	LoginError              = "error"
)

// Registration outcomes.
const (
	RegistrationBootstrap = "bootstrap"
	RegistrationCreated   = "created"
	RegistrationDuplicate = "duplicate"
	RegistrationInvalid   = "invalid"
	RegistrationError     = "error"
)

type nopRecorder struct{}

func (nopRecorder) RecordLogin(string)        {}
func (nopRecorder) RecordRegistration(string) {}
func (nopRecorder) RecordLogout()             {}

// Controller runs the login and registration state machine.
type Controller struct {
	users    credential.Store
	sessions session.Store
	remember session.RememberStore
	hasher   password.Hasher

	logger           *slog.Logger
	recorder         Recorder
	fields           []string
	enforcePolicy    bool
	sessionLifetime  time.Duration
	rememberLifetime time.Duration
	now              func() time.Time
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) { c.logger = logger }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(c *Controller) { c.recorder = r }
}

// WithRememberStore enables remember-me cookies backed by store.
func WithRememberStore(store session.RememberStore) Option {
	return func(c *Controller) { c.remember = store }
}

// WithFields sets the registration field list. It must name the same set
// as the user table's columns, password included.
func WithFields(fields []string) Option {
	return func(c *Controller) { c.fields = slices.Clone(fields) }
}

// WithPasswordPolicy turns strength checks on registration on or off. They
// are off by default.
func WithPasswordPolicy(enforce bool) Option {
	return func(c *Controller) { c.enforcePolicy = enforce }
}

// WithSessionLifetime sets how long sessions live.
func WithSessionLifetime(d time.Duration) Option {
	return func(c *Controller) { c.sessionLifetime = d }
}

// WithRememberLifetime sets how long remember-me cookies stay valid.
func WithRememberLifetime(d time.Duration) Option {
	return func(c *Controller) { c.rememberLifetime = d }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// NewController creates a Controller. The user store, session store and
// hasher are required.
func NewController(users credential.Store, sessions session.Store, hasher password.Hasher, opts ...Option) (*Controller, error) {
	if users == nil {
		return nil, oops.Code("AUTH_INVALID_DEPENDENCY").Errorf("user store is required")
	}
	if sessions == nil {
		return nil, oops.Code("AUTH_INVALID_DEPENDENCY").Errorf("session store is required")
	}
	if hasher == nil {
		return nil, oops.Code("AUTH_INVALID_DEPENDENCY").Errorf("password hasher is required")
	}

	c := &Controller{
		users:            users,
		sessions:         sessions,
		hasher:           hasher,
		logger:           slog.Default(),
		recorder:         nopRecorder{},
		fields:           slices.Clone(credential.DefaultFields),
		sessionLifetime:  session.DefaultLifetime,
		rememberLifetime: session.DefaultRememberLifetime,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	if !slices.Contains(c.fields, credential.FieldUsername) || !slices.Contains(c.fields, credential.FieldPassword) {
		return nil, oops.Code("AUTH_INVALID_FIELDS").
			With("fields", c.fields).
			Errorf("registration fields must include username and password")
	}
	if c.sessionLifetime <= 0 || c.rememberLifetime <= 0 {
		return nil, oops.Code("AUTH_INVALID_LIFETIME").
			With("session_lifetime", c.sessionLifetime.String()).
			With("remember_lifetime", c.rememberLifetime.String()).
			Errorf("lifetimes must be positive")
	}
	return c, nil
}

// Bootstrap makes sure the user table exists and that the configured field
// list matches its columns. The service must not start when it fails.
func (c *Controller) Bootstrap(ctx context.Context) (created bool, err error) {
	created, err = c.users.EnsureSchema(ctx)
	if err != nil {
		return false, oops.Code("AUTH_BOOTSTRAP_FAILED").With("operation", "ensure schema").Wrap(err)
	}
	if created {
		c.logger.InfoContext(ctx, "user table created")
	}

	names, err := c.users.FieldNames(ctx)
	if err != nil {
		return created, oops.Code("AUTH_BOOTSTRAP_FAILED").With("operation", "list fields").Wrap(err)
	}
	if err := credential.CheckFieldSet(c.fields, names); err != nil {
		return created, err
	}
	return created, nil
}

// Fields returns the configured registration fields.
func (c *Controller) Fields() []string {
	return slices.Clone(c.fields)
}

// Handle runs one request through the state machine.
func (c *Controller) Handle(ctx context.Context, req Request) (*Result, error) {
	if req.Logout {
		return c.logout(ctx, req)
	}

	now := c.now()
	sess, err := c.resolveSession(ctx, req.SessionID, now)
	if err != nil {
		return nil, err
	}

	res := &Result{State: StateAnonymous, Outcome: OutcomeRender}

	if !sess.Authenticated() && req.RememberCookie != "" {
		sess, err = c.redeem(ctx, req.RememberCookie, sess, now, res)
		if err != nil {
			return nil, err
		}
	}

	switch {
	case sess.Authenticated():
		res.State = StateAuthenticated
		res.Username = sess.Username
		if req.Register {
			if sess, err = c.register(ctx, req, sess, now, res); err != nil {
				return nil, err
			}
		}
	case req.Login:
		if sess, err = c.login(ctx, req, sess, now, res); err != nil {
			return nil, err
		}
	case req.Register:
		empty, err := c.users.IsEmpty(ctx)
		if err != nil {
			return nil, oops.Code("AUTH_STATE_FAILED").With("operation", "check empty store").Wrap(err)
		}
		if empty {
			if sess, err = c.register(ctx, req, sess, now, res); err != nil {
				return nil, err
			}
		}
	}

	return c.finish(ctx, req.SessionID, sess, res)
}

// Profile returns the stored fields of username without the password.
func (c *Controller) Profile(ctx context.Context, username string) (map[string]string, error) {
	u, err := c.users.FindByUsername(ctx, username)
	if err != nil {
		return nil, oops.Code("AUTH_PROFILE_FAILED").With("username", username).Wrap(err)
	}
	return u.Profile(), nil
}

// resolveSession loads the presented session or starts a new anonymous one.
// Identifiers the store does not know are never adopted.
func (c *Controller) resolveSession(ctx context.Context, id string, now time.Time) (*session.Session, error) {
	if id != "" {
		sess, err := session.Load(ctx, c.sessions, id, now)
		if err == nil {
			return sess, nil
		}
		if !errors.Is(err, session.ErrNotFound) {
			return nil, oops.Code("AUTH_SESSION_LOAD_FAILED").With("operation", "load session").Wrap(err)
		}
	}
	sess, err := session.New(now, c.sessionLifetime)
	if err != nil {
		return nil, oops.Code("AUTH_SESSION_CREATE_FAILED").With("operation", "new session").Wrap(err)
	}
	return sess, nil
}

// regenerate replaces sess with a new identifier carrying the same flash
// messages, deletes the old one, and logs username in under the new one.
func (c *Controller) regenerate(ctx context.Context, sess *session.Session, username string, now time.Time) (*session.Session, error) {
	fresh, err := session.New(now, c.sessionLifetime)
	if err != nil {
		return nil, oops.Code("AUTH_SESSION_CREATE_FAILED").With("operation", "regenerate session").Wrap(err)
	}
	fresh.Flash = sess.Flash
	if err := c.sessions.Delete(ctx, sess.ID); err != nil {
		return nil, oops.Code("AUTH_SESSION_DELETE_FAILED").With("operation", "delete replaced session").Wrap(err)
	}
	fresh.Authenticate(username)
	return fresh, nil
}

// redeem turns a valid remember cookie into a fresh authenticated session.
// An invalid cookie is cleared and the anonymous session kept.
func (c *Controller) redeem(ctx context.Context, cookie string, sess *session.Session, now time.Time, res *Result) (*session.Session, error) {
	if c.remember == nil {
		res.ClearRemember = true
		return sess, nil
	}

	username, err := session.Redeem(ctx, c.remember, cookie, now)
	if errors.Is(err, session.ErrNotFound) {
		c.logger.DebugContext(ctx, "remember cookie rejected", "error", err)
		res.ClearRemember = true
		return sess, nil
	}
	if err != nil {
		return nil, oops.Code("AUTH_REMEMBER_FAILED").With("operation", "redeem remember token").Wrap(err)
	}

	fresh, err := c.regenerate(ctx, sess, username, now)
	if err != nil {
		return nil, err
	}
	c.recorder.RecordLogin(LoginRemembered)
	c.logger.InfoContext(ctx, "session restored from remember cookie", "username", username)
	return fresh, nil
}

// finish derives the final state, consumes flash messages on render and
// persists the session. An anonymous session with no flash messages left is
// not kept: a fresh one is dropped and a presented one is deleted and its
// cookie cleared.
func (c *Controller) finish(ctx context.Context, presented string, sess *session.Session, res *Result) (*Result, error) {
	if sess.Authenticated() {
		res.State = StateAuthenticated
		res.Username = sess.Username
	} else {
		res.State = StateAnonymous
		if res.Outcome == OutcomeRender {
			empty, err := c.users.IsEmpty(ctx)
			if err != nil {
				return nil, oops.Code("AUTH_STATE_FAILED").With("operation", "check empty store").Wrap(err)
			}
			res.StoreEmpty = empty
			if empty {
				res.State = StatePendingRegistration
			}
		}
	}

	if res.Outcome == OutcomeRender {
		res.Messages = sess.TakeFlash()
	}

	if !sess.Authenticated() && len(sess.Flash) == 0 {
		if presented != "" && presented == sess.ID {
			if err := c.sessions.Delete(ctx, sess.ID); err != nil {
				return nil, oops.Code("AUTH_SESSION_DELETE_FAILED").With("operation", "delete idle session").Wrap(err)
			}
		}
		res.ClearSession = presented != ""
		return res, nil
	}

	if err := c.sessions.Save(ctx, sess); err != nil {
		return nil, oops.Code("AUTH_SESSION_SAVE_FAILED").With("operation", "save session").Wrap(err)
	}
	res.Session = sess
	return res, nil
}
