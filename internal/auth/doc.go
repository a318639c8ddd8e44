// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SmallLogin Contributors

// Package auth is the login and self-registration state machine.
//
// # Requests
//
// A Controller handles one request at a time. The caller (usually the HTTP
// adapter in internal/web) extracts the submitted flags, the raw form
// fields, the session identifier and the remember cookie into a Request and
// renders the returned Result. The controller never touches HTTP.
//
// Transitions are evaluated in priority order:
//   - logout
//   - an authenticated session or a valid remember token, which may also
//     register further users without changing the caller's login
//   - a login submission
//   - a registration submission while the user store is empty, which logs
//     the first user in
//
// # Errors
//
// Recoverable problems (blank fields, wrong credentials, duplicate
// usernames) are returned in Result.Problems. Store, schema and session
// backend failures abort the request with an error and leave the session
// untouched.
package auth
