// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SmallLogin Contributors

package auth

import (
	"context"
	"errors"
	"maps"
	"slices"
	"time"

	"github.com/samber/oops"

	"github.com/smalllogin/smalllogin/internal/credential"
	"github.com/smalllogin/smalllogin/internal/password"
	"github.com/smalllogin/smalllogin/internal/sanitize"
	"github.com/smalllogin/smalllogin/internal/session"
)

const fieldConfirm = "confirm"

// register handles a registration submission. An authenticated caller keeps
// its login; an anonymous caller creating the first user is logged in as
// that user. Every blank required field is reported.
func (c *Controller) register(ctx context.Context, req Request, sess *session.Session, now time.Time, res *Result) (*session.Session, error) {
	fields := sanitize.Form(c.fields, req.Form)
	confirm := sanitize.Sanitize(sanitize.Confirm, req.Form[fieldConfirm])
	username := fields[credential.FieldUsername]
	pw := fields[credential.FieldPassword]

	if username != "" && pw != "" && confirm != "" {
		next, done, err := c.create(ctx, fields, confirm, sess, now, res)
		if err != nil {
			c.recorder.RecordRegistration(RegistrationError)
			return nil, err
		}
		if done {
			return next, nil
		}
	}

	if username == "" {
		res.add(ProblemEmptyField, credential.FieldUsername, MsgUsernameEmpty)
	}
	if slices.Contains(c.fields, credential.FieldEmail) && fields[credential.FieldEmail] == "" {
		res.add(ProblemEmptyField, credential.FieldEmail, MsgEmailEmpty)
	}
	if pw == "" {
		res.add(ProblemEmptyField, credential.FieldPassword, MsgPasswordEmpty)
	}
	if confirm == "" {
		res.add(ProblemEmptyField, fieldConfirm, MsgConfirmEmpty)
	}

	if !res.HasProblem(ProblemUsernameExists) {
		c.recorder.RecordRegistration(RegistrationInvalid)
	}
	res.Form = formEcho(fields)
	return sess, nil
}

// create validates a complete submission and inserts the user. done is true
// when the user was created and the request should redirect.
func (c *Controller) create(ctx context.Context, fields map[string]string, confirm string, sess *session.Session, now time.Time, res *Result) (next *session.Session, done bool, err error) {
	pw := fields[credential.FieldPassword]
	email, hasEmail := fields[credential.FieldEmail]

	switch {
	case pw != confirm:
		res.add(ProblemPasswordMismatch, fieldConfirm, MsgPasswordMismatch)
		return sess, false, nil
	case hasEmail && email != "" && !sanitize.ValidEmail(email):
		res.add(ProblemInvalidEmail, credential.FieldEmail, MsgInvalidEmail)
		return sess, false, nil
	}

	if c.enforcePolicy {
		if ok, problems := password.CheckStrength(pw); !ok {
			for _, p := range problems {
				res.add(ProblemWeakPassword, credential.FieldPassword, p)
			}
			return sess, false, nil
		}
	}

	wasFirst, err := c.users.IsEmpty(ctx)
	if err != nil {
		return nil, false, oops.Code("AUTH_REGISTER_FAILED").With("operation", "check empty store").Wrap(err)
	}

	hash, err := c.hasher.Hash(pw)
	if err != nil {
		return nil, false, oops.Code("AUTH_REGISTER_FAILED").With("operation", "hash password").Wrap(err)
	}

	row := maps.Clone(fields)
	row[credential.FieldPassword] = hash

	username := fields[credential.FieldUsername]
	if _, err := c.users.Insert(ctx, row); err != nil {
		if errors.Is(err, credential.ErrDuplicateUsername) {
			res.add(ProblemUsernameExists, credential.FieldUsername, MsgUsernameExists)
			c.recorder.RecordRegistration(RegistrationDuplicate)
			return sess, false, nil
		}
		return nil, false, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "insert user").
			With("username", username).
			Wrap(err)
	}

	res.Outcome = OutcomeRedirectSelf

	if wasFirst && !sess.Authenticated() {
		fresh, err := c.regenerate(ctx, sess, username, now)
		if err != nil {
			return nil, false, err
		}
		c.recorder.RecordRegistration(RegistrationBootstrap)
		c.logger.InfoContext(ctx, "first user registered and logged in", "username", username)
		return fresh, true, nil
	}

	sess.AddFlash(MsgUserCreated)
	c.recorder.RecordRegistration(RegistrationCreated)
	c.logger.InfoContext(ctx, "user registered", "username", username, "by", sess.Username)
	return sess, true, nil
}

// formEcho returns the submitted fields for re-display, without passwords.
func formEcho(fields map[string]string) map[string]string {
	echo := maps.Clone(fields)
	delete(echo, credential.FieldPassword)
	return echo
}
