// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/argon2"
)

// OWASP-recommended argon2id parameters.
const (
	argon2Time    = 1         // iterations
	argon2Memory  = 64 * 1024 // 64 MB
	argon2Threads = 4         // parallelism
	argon2SaltLen = 16        // salt length in bytes
	argon2KeyLen  = 32        // output length in bytes
)

// Upper bounds accepted when parsing a stored hash. A corrupted or hostile
// row must not be able to make Verify allocate unbounded memory.
const (
	maxArgon2Memory  = 1024 * 1024 // 1 GB
	maxArgon2Time    = 16
	maxArgon2KeyLen  = 128
	maxArgon2SaltLen = 64
)

// ErrEmptyPassword is returned when attempting to hash an empty password.
var ErrEmptyPassword = oops.Code("AUTH_EMPTY_PASSWORD").Wrapf(ErrValidation, "password cannot be empty")

// PasswordHasher provides password hashing and verification.
type PasswordHasher interface {
	// Hash produces a salted, self-describing hash of the password.
	Hash(password string) (string, error)

	// Verify reports whether password matches the encoded hash. A malformed
	// hash yields false, exactly as a wrong password does.
	Verify(password, encodedHash string) bool

	// NeedsUpgrade returns true if the hash was produced with parameters
	// other than the hasher's current ones.
	NeedsUpgrade(encodedHash string) bool
}

// Argon2Params are the tunable argon2id cost parameters.
type Argon2Params struct {
	Time    uint32
	Memory  uint32
	Threads uint8
	SaltLen uint32
	KeyLen  uint32
}

// DefaultArgon2Params returns the production parameters.
func DefaultArgon2Params() Argon2Params {
	return Argon2Params{
		Time:    argon2Time,
		Memory:  argon2Memory,
		Threads: argon2Threads,
		SaltLen: argon2SaltLen,
		KeyLen:  argon2KeyLen,
	}
}

// Argon2idHasher implements PasswordHasher using argon2id.
type Argon2idHasher struct {
	params Argon2Params
}

// NewArgon2idHasher creates a new Argon2idHasher with the default parameters.
func NewArgon2idHasher() *Argon2idHasher {
	return &Argon2idHasher{params: DefaultArgon2Params()}
}

// NewArgon2idHasherWithParams creates an Argon2idHasher with custom parameters.
func NewArgon2idHasherWithParams(p Argon2Params) (*Argon2idHasher, error) {
	if p.Time == 0 || p.Time > maxArgon2Time {
		return nil, oops.Code("AUTH_INVALID_HASH_PARAMS").With("time", p.Time).Errorf("argon2 time out of range")
	}
	if p.Memory < 8*uint32(p.Threads) || p.Memory > maxArgon2Memory {
		return nil, oops.Code("AUTH_INVALID_HASH_PARAMS").With("memory", p.Memory).Errorf("argon2 memory out of range")
	}
	if p.Threads == 0 {
		return nil, oops.Code("AUTH_INVALID_HASH_PARAMS").Errorf("argon2 threads must be positive")
	}
	if p.SaltLen < 8 || p.SaltLen > maxArgon2SaltLen {
		return nil, oops.Code("AUTH_INVALID_HASH_PARAMS").With("salt_len", p.SaltLen).Errorf("argon2 salt length out of range")
	}
	if p.KeyLen < 16 || p.KeyLen > maxArgon2KeyLen {
		return nil, oops.Code("AUTH_INVALID_HASH_PARAMS").With("key_len", p.KeyLen).Errorf("argon2 key length out of range")
	}
	return &Argon2idHasher{params: p}, nil
}

// Hash produces an argon2id hash of the password in PHC string format:
// $argon2id$v=19$m=65536,t=1,p=4$<salt>$<hash>
func (h *Argon2idHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}

	salt := make([]byte, h.params.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", oops.Code("AUTH_SALT_FAILED").Wrap(err)
	}

	key := argon2.IDKey([]byte(password), salt, h.params.Time, h.params.Memory, h.params.Threads, h.params.KeyLen)

	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.params.Memory,
		h.params.Time,
		h.params.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify checks if the password matches the hash.
func (h *Argon2idHasher) Verify(password, encodedHash string) bool {
	decoded, ok := decodeArgon2Hash(encodedHash)
	if !ok {
		// Spend the same work as a real verification so a malformed
		// hash cannot be told apart from a wrong password by timing.
		decoded = h.placeholder()
	}

	computed := argon2.IDKey([]byte(password), decoded.salt, decoded.params.Time,
		decoded.params.Memory, decoded.params.Threads, decoded.params.KeyLen)

	return subtle.ConstantTimeCompare(computed, decoded.key) == 1 && ok
}

// NeedsUpgrade returns true if the hash is not argon2id or uses stale parameters.
func (h *Argon2idHasher) NeedsUpgrade(encodedHash string) bool {
	decoded, ok := decodeArgon2Hash(encodedHash)
	if !ok {
		return true
	}
	p := decoded.params
	return p.Time != h.params.Time || p.Memory != h.params.Memory ||
		p.Threads != h.params.Threads || p.KeyLen != h.params.KeyLen
}

type argon2Hash struct {
	params Argon2Params
	salt   []byte
	key    []byte
}

func (h *Argon2idHasher) placeholder() argon2Hash {
	return argon2Hash{
		params: h.params,
		salt:   make([]byte, h.params.SaltLen),
		key:    make([]byte, h.params.KeyLen),
	}
}

// decodeArgon2Hash parses a PHC-format argon2id string, rejecting anything
// outside the accepted parameter bounds.
func decodeArgon2Hash(encoded string) (argon2Hash, bool) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return argon2Hash{}, false
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return argon2Hash{}, false
	}

	var memory, time, threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &time, &threads); err != nil {
		return argon2Hash{}, false
	}
	if threads == 0 || threads > 255 || time == 0 || time > maxArgon2Time ||
		memory < 8*threads || memory > maxArgon2Memory {
		return argon2Hash{}, false
	}

	salt, err := base64.RawStdEncoding.Strict().DecodeString(parts[4])
	if err != nil || len(salt) == 0 || len(salt) > maxArgon2SaltLen {
		return argon2Hash{}, false
	}

	key, err := base64.RawStdEncoding.Strict().DecodeString(parts[5])
	if err != nil || len(key) < 16 || len(key) > maxArgon2KeyLen {
		return argon2Hash{}, false
	}

	return argon2Hash{
		params: Argon2Params{
			Time:    time,
			Memory:  memory,
			Threads: uint8(threads),
			SaltLen: uint32(len(salt)),
			KeyLen:  uint32(len(key)),
		},
		salt: salt,
		key:  key,
	}, true
}
