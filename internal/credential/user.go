// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SmallLogin Contributors

// Package credential owns the persistent user table: the User record, the
// Store contract, and the field set that shapes the registration form.
package credential

import (
	"context"
	"slices"

	"github.com/samber/oops"
)

// Column names of the user table. The surrogate key is never part of the field set.
const (
	FieldID        = "id"
	FieldUsername  = "username"
	FieldFirstname = "firstname"
	FieldLastname  = "lastname"
	FieldEmail     = "email"
	FieldMobile    = "mobile"
	FieldPassword  = "password"
)

// DefaultFields is the column order created by EnsureSchema.
var DefaultFields = []string{
	FieldUsername,
	FieldFirstname,
	FieldLastname,
	FieldEmail,
	FieldMobile,
	FieldPassword,
}

// User is a row of the user table.
type User struct {
	ID           int64
	Username     string
	Firstname    string
	Lastname     string
	Email        string
	Mobile       string
	PasswordHash string
}

// Profile returns the user's displayable fields keyed by column name.
// The password hash is never included.
func (u *User) Profile() map[string]string {
	return map[string]string{
		FieldUsername:  u.Username,
		FieldFirstname: u.Firstname,
		FieldLastname:  u.Lastname,
		FieldEmail:     u.Email,
		FieldMobile:    u.Mobile,
	}
}

// Store manages user persistence.
type Store interface {
	// FieldNames returns the ordered column names of the user table, excluding
	// the surrogate key. Returns ErrSchema if the table does not exist.
	FieldNames(ctx context.Context) ([]string, error)

	// EnsureSchema creates the user table if it is absent.
	// Reports whether the table was created by this call.
	EnsureSchema(ctx context.Context) (bool, error)

	// FindByUsername returns the user with the given username or ErrNotFound.
	FindByUsername(ctx context.Context, username string) (*User, error)

	// Insert stores a new row whose keys are exactly FieldNames and returns its
	// surrogate id. Returns ErrDuplicateUsername if the username is taken.
	Insert(ctx context.Context, fields map[string]string) (int64, error)

	// IsEmpty reports whether the table has zero rows.
	IsEmpty(ctx context.Context) (bool, error)
}

// CheckFieldSet verifies that the configured registration fields are exactly
// the columns reported by the store (order may differ). username and password
// must always be present.
func CheckFieldSet(configured, schema []string) error {
	for _, required := range []string{FieldUsername, FieldPassword} {
		if !slices.Contains(configured, required) {
			return oops.Code("FIELDS_MISSING_REQUIRED").
				With("field", required).
				Wrap(ErrInvalidFields)
		}
	}

	if len(configured) != len(schema) {
		return oops.Code("FIELDS_SCHEMA_MISMATCH").
			With("configured", configured).
			With("schema", schema).
			Wrap(ErrSchema)
	}
	for _, name := range configured {
		if !slices.Contains(schema, name) {
			return oops.Code("FIELDS_SCHEMA_MISMATCH").
				With("field", name).
				With("schema", schema).
				Wrap(ErrSchema)
		}
	}
	return nil
}

// CheckInsertKeys verifies that fields carries exactly the keys in names.
func CheckInsertKeys(fields map[string]string, names []string) error {
	if len(fields) != len(names) {
		return oops.Code("STORE_INVALID_FIELDS").
			With("expected", names).
			With("got", len(fields)).
			Wrap(ErrInvalidFields)
	}
	for _, name := range names {
		if _, ok := fields[name]; !ok {
			return oops.Code("STORE_INVALID_FIELDS").
				With("missing", name).
				Wrap(ErrInvalidFields)
		}
	}
	return nil
}

// FromFields builds a User from a column-name keyed map.
// Unknown keys are ignored.
func FromFields(id int64, fields map[string]string) *User {
	return &User{
		ID:           id,
		Username:     fields[FieldUsername],
		Firstname:    fields[FieldFirstname],
		Lastname:     fields[FieldLastname],
		Email:        fields[FieldEmail],
		Mobile:       fields[FieldMobile],
		PasswordHash: fields[FieldPassword],
	}
}
