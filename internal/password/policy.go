// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SmallLogin Contributors

// Package password validates password strength and turns passwords into
// one-way hashes.
package password

import "unicode"

// MinLength is the shortest acceptable password, in characters.
const MinLength = 8

// Strength failure messages, reported in this order.
const (
	MsgTooShort    = "password is too short, need at least 8 characters"
	MsgNeedsNumber = "password needs a number"
	MsgNeedsLetter = "password needs a letter"
)

// CheckStrength reports whether pw satisfies the policy. Every failed rule
// contributes one message; the list is empty when ok is true.
func CheckStrength(pw string) (ok bool, problems []string) {
	var hasDigit, hasLetter bool
	length := 0
	for _, r := range pw {
		length++
		switch {
		case r >= '0' && r <= '9':
			hasDigit = true
		case unicode.IsLetter(r):
			hasLetter = true
		}
	}

	if length < MinLength {
		problems = append(problems, MsgTooShort)
	}
	if !hasDigit {
		problems = append(problems, MsgNeedsNumber)
	}
	if !hasLetter {
		problems = append(problems, MsgNeedsLetter)
	}
	return len(problems) == 0, problems
}
