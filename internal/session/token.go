// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SmallLogin Contributors

package session

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"

	"github.com/samber/oops"
)

// TokenBytes is the amount of randomness in session identifiers and remember
// tokens. 32 bytes = 64 hex chars.
const TokenBytes = 32

// GenerateToken creates a secure random token and its hash.
// Returns (plaintext_token, sha256_hash, error).
// The plaintext token is sent to the client; only the hash is persisted.
func GenerateToken() (token, hash string, err error) {
	tokenBytes := make([]byte, TokenBytes)
	if _, err = rand.Read(tokenBytes); err != nil {
		return "", "", oops.Code("SESSION_TOKEN_GENERATE_FAILED").
			With("operation", "crypto/rand.Read").
			With("requested_bytes", TokenBytes).
			Wrap(err)
	}

	token = hex.EncodeToString(tokenBytes)
	return token, HashToken(token), nil
}

// HashToken computes the SHA256 hash of a token.
func HashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// VerifyToken checks if the plaintext token matches the stored hash in
// constant time. Empty inputs never match.
func VerifyToken(token, hash string) bool {
	if token == "" || hash == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(HashToken(token)), []byte(hash)) == 1
}

// wellFormed reports whether s could have been produced by GenerateToken.
// Anything else is rejected before it reaches a store.
func wellFormed(s string) bool {
	if len(s) != TokenBytes*2 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
