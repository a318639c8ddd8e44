// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SmallLogin Contributors

package auth

import (
	"time"

	"github.com/smalllogin/smalllogin/internal/session"
)

// State is the authentication state of the caller after a request.
type State int

// Caller states.
const (
	StateAnonymous State = iota
	StateAuthenticated
	// StatePendingRegistration is an anonymous caller facing an empty user
	// store: the next registration creates the first user.
	StatePendingRegistration
)

func (s State) String() string {
	switch s {
	case StateAnonymous:
		return "anonymous"
	case StateAuthenticated:
		return "authenticated"
	case StatePendingRegistration:
		return "pending_registration"
	default:
		return "unknown"
	}
}

// Outcome tells the caller how to respond.
type Outcome int

// Request outcomes.
const (
	// OutcomeRender shows the page for the current state with any problems.
	OutcomeRender Outcome = iota
	// OutcomeRedirectSelf redirects to the request URI so a refresh does not
	// resubmit the form.
	OutcomeRedirectSelf
	// OutcomeRedirectLanding redirects to the landing page.
	OutcomeRedirectLanding
)

func (o Outcome) String() string {
	switch o {
	case OutcomeRender:
		return "render"
	case OutcomeRedirectSelf:
		return "redirect_self"
	case OutcomeRedirectLanding:
		return "redirect_landing"
	default:
		return "unknown"
	}
}

// ProblemKind classifies a recoverable, user-facing problem.
type ProblemKind string

// Problem kinds.
const (
	ProblemEmptyField       ProblemKind = "empty_field"
	ProblemPasswordMismatch ProblemKind = "password_mismatch"
	ProblemWrongCredentials ProblemKind = "wrong_credentials"
	ProblemUsernameExists   ProblemKind = "username_exists"
	ProblemInvalidEmail     ProblemKind = "invalid_email"
	ProblemWeakPassword     ProblemKind = "weak_password"
)

// User-facing problem texts.
const (
	MsgUsernameEmpty    = "Username field was empty."
	MsgPasswordEmpty    = "Password field was empty."
	MsgEmailEmpty       = "Email field was empty."
	MsgConfirmEmpty     = "You need to repeat the password."
	MsgWrongCredentials = "Wrong user or password."
	MsgPasswordMismatch = "Passwords don't match."
	MsgUsernameExists   = "Username already exists."
	MsgInvalidEmail     = "Email address is not valid."
	MsgUserCreated      = "User created."
)

// Problem is one recoverable issue with a submission.
type Problem struct {
	Kind  ProblemKind `json:"kind"`
	Field string      `json:"field,omitempty"`
	Text  string      `json:"text"`
}

// Request is everything the controller needs from one client request.
type Request struct {
	// Login, Register and Logout report which submission flags were present.
	Login    bool
	Register bool
	Logout   bool
	// Remember asks for a remember-me cookie on successful login.
	Remember bool
	// Form holds raw, unsanitized field values.
	Form map[string]string
	// SessionID is the session cookie value, empty when absent.
	SessionID string
	// RememberCookie is the remember-me cookie value, empty when absent.
	RememberCookie string
}

// Result is the controller's decision for one request.
type Result struct {
	State    State
	Outcome  Outcome
	Username string
	Problems []Problem
	// Messages are flash messages consumed by this render.
	Messages []string
	// Form echoes the sanitized registration fields without passwords.
	Form map[string]string
	// StoreEmpty reports whether no user exists yet. Only meaningful when
	// the caller is not authenticated.
	StoreEmpty bool

	// Session is the session whose identifier the client must hold. Nil
	// when the session was destroyed or the caller is anonymous with
	// nothing to carry between requests.
	Session      *session.Session
	ClearSession bool

	// RememberCookie, when non-empty, is a new remember-me cookie value
	// valid until RememberExpires.
	RememberCookie  string
	RememberExpires time.Time
	ClearRemember   bool
}

// Texts returns the problem texts in order.
func (r *Result) Texts() []string {
	texts := make([]string, 0, len(r.Problems))
	for _, p := range r.Problems {
		texts = append(texts, p.Text)
	}
	return texts
}

// HasProblem reports whether a problem of the given kind was recorded.
func (r *Result) HasProblem(kind ProblemKind) bool {
	for _, p := range r.Problems {
		if p.Kind == kind {
			return true
		}
	}
	return false
}

func (r *Result) add(kind ProblemKind, field, text string) {
	r.Problems = append(r.Problems, Problem{Kind: kind, Field: field, Text: text})
}
