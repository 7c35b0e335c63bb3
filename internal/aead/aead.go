// Package aead seals and opens byte payloads with AES-256-GCM.
//
// A sealed blob is laid out as nonce (12 bytes) || ciphertext || tag (16 bytes).
// The nonce is drawn from crypto/rand on every call and cannot be supplied
// by the caller.
package aead

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/benaskins/xsession/internal/kdf"
)

const (
	NonceSize = 12
	TagSize   = 16
)

// ErrDecrypt is returned for every failure to open a blob: too short, wrong
// key, corrupted or tampered bytes, or plaintext that is not valid text.
// The causes are deliberately not distinguished.
var ErrDecrypt = errors.New("cannot decrypt")

// randReader is swapped in tests.
var randReader io.Reader = rand.Reader

func newGCM(key kdf.Key) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}
	return gcm, nil
}

// Seal encrypts plaintext under key with a fresh random nonce.
func Seal(plaintext []byte, key kdf.Key) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, NonceSize, NonceSize+len(plaintext)+TagSize)
	if _, err := io.ReadFull(randReader, nonce); err != nil {
		return nil, fmt.Errorf("reading nonce: %w", err)
	}

	// Seal appends to nonce, producing nonce || ciphertext || tag.
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Open verifies and decrypts a blob produced by Seal.
func Open(blob []byte, key kdf.Key) ([]byte, error) {
	if len(blob) < NonceSize {
		return nil, ErrDecrypt
	}
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce, ciphertext := blob[:NonceSize], blob[NonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecrypt
	}
	return plaintext, nil
}

// OpenText is Open for payloads that must be UTF-8 text, such as JSON.
func OpenText(blob []byte, key kdf.Key) (string, error) {
	plaintext, err := Open(blob, key)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(plaintext) {
		return "", ErrDecrypt
	}
	return string(plaintext), nil
}
