// Package kdf derives 256-bit symmetric keys from low-entropy identifiers.
//
// Derivation is deterministic: the Argon2id salt is taken from the identifier
// itself (first 16 bytes, zero-padded), so the same identifier always yields
// the same key and no salt has to be stored next to the ciphertext. The
// stretched output is expanded with HKDF-SHA256 under a context label, which
// keeps the account index key and per-account keys in separate domains.
//
// All security rests on the Argon2id work factor plus the access control of
// the platform secret store holding the ciphertext. Anyone who knows the
// parameters and an identifier can recompute its key, for every account alike.
package kdf

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/hkdf"
)

const (
	// KeySize is the length of a derived key in bytes.
	KeySize = 32
	// SaltSize is the number of identifier bytes used as the Argon2id salt.
	SaltSize = 16
)

// Derivation contexts. Changing either string changes every key in that domain.
const (
	ContextIndex   = "xsession/index/v1"
	ContextAccount = "xsession/account/v1"
)

// ErrInvalidParams is returned when Argon2id parameters are out of range.
var ErrInvalidParams = errors.New("invalid key derivation parameters")

// Key is a derived AES-256 key.
type Key [KeySize]byte

// Params are the Argon2id cost parameters.
type Params struct {
	Time      uint32 `yaml:"time"`
	MemoryKiB uint32 `yaml:"memory_kib"`
	Threads   uint8  `yaml:"threads"`
}

// DefaultParams matches the Argon2id defaults the desktop client shipped with
// (19 MiB, two passes, one lane).
var DefaultParams = Params{Time: 2, MemoryKiB: 19 * 1024, Threads: 1}

// Validate reports whether p can be passed to Argon2id.
func (p Params) Validate() error {
	switch {
	case p.Time < 1:
		return fmt.Errorf("%w: time must be at least 1", ErrInvalidParams)
	case p.Threads < 1:
		return fmt.Errorf("%w: threads must be at least 1", ErrInvalidParams)
	case p.MemoryKiB < 8*uint32(p.Threads):
		return fmt.Errorf("%w: memory must be at least %d KiB for %d threads", ErrInvalidParams, 8*uint32(p.Threads), p.Threads)
	}
	return nil
}

// Salt returns the fixed salt for identifier: its first SaltSize bytes,
// zero-padded when the identifier is shorter.
func Salt(identifier []byte) []byte {
	salt := make([]byte, SaltSize)
	copy(salt, identifier)
	return salt
}

// Derive stretches identifier with Argon2id and expands the result under
// context. The same inputs always produce the same key.
func Derive(identifier, context []byte, p Params) (Key, error) {
	var key Key
	if err := p.Validate(); err != nil {
		return key, err
	}

	stretched := argon2.IDKey(identifier, Salt(identifier), p.Time, p.MemoryKiB, p.Threads, KeySize)
	defer clear(stretched)

	r := hkdf.Expand(sha256.New, stretched, context)
	if _, err := io.ReadFull(r, key[:]); err != nil {
		return Key{}, fmt.Errorf("expanding key: %w", err)
	}
	return key, nil
}

// IndexKey derives the key protecting the account index from the
// application identifier.
func IndexKey(appID string, p Params) (Key, error) {
	return Derive([]byte(appID), []byte(ContextIndex), p)
}

// AccountKey derives the key protecting one account's credentials.
func AccountKey(username string, p Params) (Key, error) {
	return Derive([]byte(username), []byte(ContextAccount), p)
}
