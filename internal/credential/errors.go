// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SmallLogin Contributors

package credential

import "errors"

// Sentinel errors returned (wrapped with oops codes) by Store implementations.
var (
	// ErrNotFound is returned when no user matches a lookup.
	ErrNotFound = errors.New("user not found")

	// ErrDuplicateUsername is returned when an insert collides with an existing username.
	ErrDuplicateUsername = errors.New("username already exists")

	// ErrSchema is returned when the user table is missing or does not have the expected shape.
	ErrSchema = errors.New("user table schema error")

	// ErrConnection is returned when the store cannot be reached.
	ErrConnection = errors.New("user store connection error")

	// ErrInvalidFields is returned when an insert does not carry exactly the table's field set.
	ErrInvalidFields = errors.New("invalid user field set")
)

// IsFatal reports whether err must abort the current request rather than be
// reported back to the user as a recoverable problem.
func IsFatal(err error) bool {
	return errors.Is(err, ErrConnection) ||
		errors.Is(err, ErrSchema) ||
		errors.Is(err, ErrInvalidFields)
}
