// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SmallLogin Contributors

package auth

import (
	"context"

	"github.com/samber/oops"

	"github.com/smalllogin/smalllogin/internal/session"
)

// logout destroys the session and revokes the remember token, whatever
// state the caller was in.
func (c *Controller) logout(ctx context.Context, req Request) (*Result, error) {
	if req.SessionID != "" {
		if err := c.sessions.Delete(ctx, req.SessionID); err != nil {
			return nil, oops.Code("AUTH_LOGOUT_FAILED").With("operation", "delete session").Wrap(err)
		}
	}
	if req.RememberCookie != "" && c.remember != nil {
		if err := session.Revoke(ctx, c.remember, req.RememberCookie); err != nil {
			return nil, oops.Code("AUTH_LOGOUT_FAILED").With("operation", "revoke remember token").Wrap(err)
		}
	}

	c.recorder.RecordLogout()
	c.logger.DebugContext(ctx, "logged out")
	return &Result{
		State:         StateAnonymous,
		Outcome:       OutcomeRedirectLanding,
		ClearSession:  true,
		ClearRemember: true,
	}, nil
}
