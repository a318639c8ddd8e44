// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SmallLogin Contributors

package password

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// Supported hashing algorithms.
const (
	AlgorithmArgon2id = "argon2id"
	AlgorithmBcrypt   = "bcrypt"
)

// OWASP-recommended argon2id parameters.
const (
	argon2Time    = 1         // iterations
	argon2Memory  = 64 * 1024 // 64 MB
	argon2Threads = 4         // parallelism
	argon2SaltLen = 16        // salt length in bytes
	argon2KeyLen  = 32        // output length in bytes
)

const argon2Prefix = "$argon2id$"

// bcryptSHA256Prefix marks bcrypt hashes of the base64 SHA-256 digest of the
// password. The remainder is a standard bcrypt hash without its leading "$".
const bcryptSHA256Prefix = "$bcrypt-sha256$"

//nolint:gosec // G101: fake hash, not a credential.
const argon2DummyHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// ErrEmptyPassword is returned when attempting to hash an empty password.
var ErrEmptyPassword = oops.Code("PASSWORD_EMPTY").Errorf("password cannot be empty")

// Hasher provides password hashing and verification.
type Hasher interface {
	// Hash produces a salted one-way hash of the password.
	Hash(password string) (string, error)

	// Verify checks if the password matches the hash.
	// Returns (true, nil) on match, (false, nil) on mismatch, or error on invalid hash.
	Verify(password, hash string) (bool, error)

	// NeedsUpgrade returns true if the hash was not produced by this hasher's algorithm.
	NeedsUpgrade(hash string) bool

	// DummyHash returns a well-formed hash in this hasher's own format that
	// never matches. Verifying against it for unknown users costs the same
	// as verifying a real password.
	DummyHash() string
}

// NewHasher returns the hasher for the named algorithm.
func NewHasher(algorithm string) (Hasher, error) {
	switch algorithm {
	case "", AlgorithmArgon2id:
		return NewArgon2idHasher(), nil
	case AlgorithmBcrypt:
		return NewBcryptHasher(bcrypt.DefaultCost), nil
	default:
		return nil, oops.Code("PASSWORD_UNKNOWN_ALGORITHM").
			With("algorithm", algorithm).
			Errorf("unknown password hashing algorithm %q", algorithm)
	}
}

// Argon2idHasher implements Hasher using argon2id. It also verifies bcrypt
// hashes so that accounts created with an older algorithm keep working.
type Argon2idHasher struct{}

// NewArgon2idHasher creates a new Argon2idHasher.
func NewArgon2idHasher() *Argon2idHasher {
	return &Argon2idHasher{}
}

// Hash produces an argon2id hash of the password in PHC string format:
// $argon2id$v=19$m=65536,t=1,p=4$<salt>$<hash>
func (h *Argon2idHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}

	salt := make([]byte, argon2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", oops.Code("PASSWORD_SALT_FAILED").Wrap(err)
	}

	key := argon2.IDKey([]byte(password), salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)

	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		argon2Memory,
		argon2Time,
		argon2Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify checks if the password matches an argon2id or bcrypt hash.
func (h *Argon2idHasher) Verify(password, encodedHash string) (bool, error) {
	if in, ok := cutBcrypt(encodedHash, password); ok {
		return verifyBcrypt(in.secret, in.hash)
	}
	return verifyArgon2id(password, encodedHash)
}

// NeedsUpgrade returns true if the hash is not argon2id.
func (h *Argon2idHasher) NeedsUpgrade(hash string) bool {
	return !strings.HasPrefix(hash, argon2Prefix)
}

// DummyHash returns an argon2id hash with the parameters Hash uses.
func (h *Argon2idHasher) DummyHash() string {
	return argon2DummyHash
}

// BcryptHasher implements Hasher using bcrypt. bcrypt reads at most 72 bytes
// of input, so the password is reduced to the base64 form of its SHA-256
// digest first and every length hashes in full. Plain bcrypt hashes and
// argon2id hashes still verify.
type BcryptHasher struct {
	cost  int
	dummy string
}

// NewBcryptHasher creates a BcryptHasher with the given cost.
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &BcryptHasher{
		cost:  cost,
		dummy: fmt.Sprintf("%s2a$%02d$%s", bcryptSHA256Prefix, cost, strings.Repeat(".", 53)),
	}
}

// Hash produces a bcrypt-sha256 hash of the password:
// $bcrypt-sha256$2a$<cost>$<salt><hash>
func (h *BcryptHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	hash, err := bcrypt.GenerateFromPassword(prehash(password), h.cost)
	if err != nil {
		return "", oops.Code("PASSWORD_HASH_FAILED").Wrap(err)
	}
	return bcryptSHA256Prefix + strings.TrimPrefix(string(hash), "$"), nil
}

// Verify checks if the password matches a bcrypt or argon2id hash.
func (h *BcryptHasher) Verify(password, encodedHash string) (bool, error) {
	if in, ok := cutBcrypt(encodedHash, password); ok {
		return verifyBcrypt(in.secret, in.hash)
	}
	return verifyArgon2id(password, encodedHash)
}

// NeedsUpgrade returns true if the hash is not bcrypt-sha256 or uses a lower
// cost.
func (h *BcryptHasher) NeedsUpgrade(hash string) bool {
	rest, ok := strings.CutPrefix(hash, bcryptSHA256Prefix)
	if !ok {
		return true
	}
	cost, err := bcrypt.Cost([]byte("$" + rest))
	return err != nil || cost < h.cost
}

// DummyHash returns a bcrypt-sha256 hash at this hasher's cost.
func (h *BcryptHasher) DummyHash() string {
	return h.dummy
}

func prehash(password string) []byte {
	sum := sha256.Sum256([]byte(password))
	out := make([]byte, base64.StdEncoding.EncodedLen(len(sum)))
	base64.StdEncoding.Encode(out, sum[:])
	return out
}

type bcryptInput struct {
	secret []byte
	hash   []byte
}

// cutBcrypt recognises bcrypt-sha256 and plain bcrypt hashes and returns the
// bytes to compare against the embedded bcrypt hash.
func cutBcrypt(encodedHash, password string) (bcryptInput, bool) {
	if rest, ok := strings.CutPrefix(encodedHash, bcryptSHA256Prefix); ok {
		return bcryptInput{secret: prehash(password), hash: []byte("$" + rest)}, true
	}
	for _, prefix := range []string{"$2a$", "$2b$", "$2y$"} {
		if strings.HasPrefix(encodedHash, prefix) {
			return bcryptInput{secret: []byte(password), hash: []byte(encodedHash)}, true
		}
	}
	return bcryptInput{}, false
}

func verifyBcrypt(secret, hash []byte) (bool, error) {
	err := bcrypt.CompareHashAndPassword(hash, secret)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, oops.Code("PASSWORD_INVALID_HASH").Wrap(err)
	}
}

func verifyArgon2id(password, encodedHash string) (bool, error) {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 {
		return false, oops.Code("PASSWORD_INVALID_HASH").Errorf("invalid hash format")
	}

	if parts[1] != AlgorithmArgon2id {
		return false, oops.Code("PASSWORD_INVALID_HASH").Errorf("unsupported hash algorithm: %s", parts[1])
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return false, oops.Code("PASSWORD_INVALID_HASH").Wrap(err)
	}

	var memory, time, threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &time, &threads); err != nil {
		return false, oops.Code("PASSWORD_INVALID_HASH").Wrap(err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, oops.Code("PASSWORD_INVALID_HASH").Wrap(err)
	}

	expected, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false, oops.Code("PASSWORD_INVALID_HASH").Wrap(err)
	}

	if time == 0 {
		return false, oops.Code("PASSWORD_INVALID_HASH").Errorf("time cost must be positive")
	}
	if threads == 0 || threads > 255 {
		return false, oops.Code("PASSWORD_INVALID_HASH").Errorf("threads value %d out of range", threads)
	}

	keyLen := len(expected)
	if keyLen <= 0 || keyLen > 1<<30 {
		return false, oops.Code("PASSWORD_INVALID_HASH").Errorf("invalid hash key length: %d", keyLen)
	}

	computed := argon2.IDKey([]byte(password), salt, time, memory, uint8(threads), uint32(keyLen))

	return subtle.ConstantTimeCompare(computed, expected) == 1, nil
}
