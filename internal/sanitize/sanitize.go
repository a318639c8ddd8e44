// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SmallLogin Contributors

// Package sanitize cleans raw form values before they reach the user store
// or the session. Every function here is pure, deterministic and idempotent.
package sanitize

import (
	"html"
	"regexp"
	"strings"
	"unicode"
)

// Field types with dedicated rules. Any other field type gets the default rule.
const (
	Username  = "username"
	Email     = "email"
	Firstname = "firstname"
	Lastname  = "lastname"
	Mobile    = "mobile"
	Password  = "password"
	Confirm   = "confirm"
)

// Length limits, counted in characters.
const (
	MaxFieldLength    = 100
	MaxPasswordLength = 255
)

var tagRegex = regexp.MustCompile(`<[^>]*>`)

// Sanitize returns the clean value of raw for the given field type.
func Sanitize(fieldType, raw string) string {
	switch fieldType {
	case Password, Confirm:
		return clamp(raw, MaxPasswordLength)
	case Username:
		return keep(raw, isUsernameRune)
	case Email:
		return keep(raw, isEmailRune)
	case Firstname, Lastname:
		return keep(raw, isNameRune)
	case Mobile:
		return keep(raw, isMobileRune)
	default:
		return escape(raw)
	}
}

// Form sanitizes every named field of raw by its field type. Missing fields
// become empty values.
func Form(names []string, raw map[string]string) map[string]string {
	clean := make(map[string]string, len(names))
	for _, name := range names {
		clean[name] = Sanitize(name, raw[name])
	}
	return clean
}

// StripTags removes anything that looks like a markup tag.
func StripTags(s string) string {
	return tagRegex.ReplaceAllString(s, "")
}

func keep(raw string, allowed func(rune) bool) string {
	stripped := StripTags(raw)
	var b strings.Builder
	b.Grow(len(stripped))
	for _, r := range stripped {
		if allowed(r) {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(clamp(b.String(), MaxFieldLength))
}

// escape unescapes first so that already-escaped input is not escaped twice.
func escape(raw string) string {
	plain := StripTags(html.UnescapeString(raw))
	plain = strings.TrimSpace(clamp(plain, MaxFieldLength))
	return html.EscapeString(plain)
}

func clamp(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

func isUsernameRune(r rune) bool {
	return isASCIIAlnum(r) || r == '_' || r == '-'
}

func isNameRune(r rune) bool {
	return unicode.IsLetter(r) || r == ' ' || r == '\'' || r == '-'
}

func isMobileRune(r rune) bool {
	return (r >= '0' && r <= '9') || strings.ContainsRune(" +-()", r)
}

// isEmailRune keeps letters, digits and the punctuation legal in an address.
func isEmailRune(r rune) bool {
	return isASCIIAlnum(r) || strings.ContainsRune("!#$%&'*+-=?^_`{|}~@.[]", r)
}

func isASCIIAlnum(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}
