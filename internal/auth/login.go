// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SmallLogin Contributors

package auth

import (
	"context"
	"errors"
	"time"

	"github.com/samber/oops"

	"github.com/smalllogin/smalllogin/internal/credential"
	"github.com/smalllogin/smalllogin/internal/sanitize"
	"github.com/smalllogin/smalllogin/internal/session"
)

// login handles a login submission from an unauthenticated caller. Only the
// first blank field is reported.
func (c *Controller) login(ctx context.Context, req Request, sess *session.Session, now time.Time, res *Result) (*session.Session, error) {
	rawUsername := req.Form[credential.FieldUsername]
	rawPassword := req.Form[credential.FieldPassword]

	switch {
	case rawUsername == "":
		res.add(ProblemEmptyField, credential.FieldUsername, MsgUsernameEmpty)
		c.recorder.RecordLogin(LoginEmptyField)
		return sess, nil
	case rawPassword == "":
		res.add(ProblemEmptyField, credential.FieldPassword, MsgPasswordEmpty)
		c.recorder.RecordLogin(LoginEmptyField)
		return sess, nil
	}

	username := sanitize.Sanitize(sanitize.Username, rawUsername)
	pw := sanitize.Sanitize(sanitize.Password, rawPassword)

	ok, err := c.verify(ctx, username, pw)
	if err != nil {
		c.recorder.RecordLogin(LoginError)
		return nil, err
	}
	if !ok {
		res.add(ProblemWrongCredentials, "", MsgWrongCredentials)
		res.Form = map[string]string{credential.FieldUsername: username}
		c.recorder.RecordLogin(LoginInvalidCredentials)
		c.logger.InfoContext(ctx, "login failed", "username", username)
		return sess, nil
	}

	if req.Remember && c.remember != nil {
		rt, cookie, err := session.NewRememberToken(username, now, c.rememberLifetime)
		if err != nil {
			c.recorder.RecordLogin(LoginError)
			return nil, oops.Code("AUTH_LOGIN_FAILED").With("operation", "issue remember token").Wrap(err)
		}
		if err := c.remember.Create(ctx, rt); err != nil {
			c.recorder.RecordLogin(LoginError)
			return nil, oops.Code("AUTH_LOGIN_FAILED").With("operation", "persist remember token").Wrap(err)
		}
		res.RememberCookie = cookie
		res.RememberExpires = rt.ExpiresAt
	}

	fresh, err := c.regenerate(ctx, sess, username, now)
	if err != nil {
		c.recorder.RecordLogin(LoginError)
		return nil, err
	}

	res.Outcome = OutcomeRedirectSelf
	c.recorder.RecordLogin(LoginSuccess)
	c.logger.InfoContext(ctx, "login succeeded", "username", username)
	return fresh, nil
}

// verify checks pw against the stored hash of username. Unknown users are
// checked against a dummy hash so both paths cost the same.
func (c *Controller) verify(ctx context.Context, username, pw string) (bool, error) {
	user, lookupErr := c.users.FindByUsername(ctx, username)

	var target string
	exists := true
	switch {
	case lookupErr == nil:
		target = user.PasswordHash
	case errors.Is(lookupErr, credential.ErrNotFound):
		target = c.hasher.DummyHash()
		exists = false
	default:
		return false, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "get user by username").
			Wrap(lookupErr)
	}

	valid, err := c.hasher.Verify(pw, target)
	if err != nil {
		return false, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "verify password").
			With("username", username).
			Wrap(err)
	}
	return exists && valid, nil
}
