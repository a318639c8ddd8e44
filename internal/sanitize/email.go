// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SmallLogin Contributors

package sanitize

import (
	"regexp"
	"strings"
)

var (
	emailShapeRegex = regexp.MustCompile(`.+@.+\..+`)
	emailCharsRegex = regexp.MustCompile(`^[a-zA-Z0-9_@.-]+$`)
)

// ValidEmail reports whether s is an acceptable address. The check is loose:
// something@something.something over a restricted character set, exactly one
// @, and no empty dot-separated part next to it.
func ValidEmail(s string) bool {
	if s == "" {
		return false
	}
	if !emailShapeRegex.MatchString(s) {
		return false
	}
	if !emailCharsRegex.MatchString(s) {
		return false
	}
	if strings.Contains(s, "..") || strings.Contains(s, ".@") || strings.Contains(s, "@.") {
		return false
	}
	return strings.Count(s, "@") == 1
}
