package vault

import (
	"errors"
	"fmt"

	"github.com/benaskins/xsession/internal/keychain"
)

var (
	// ErrAccountNotFound is returned when an operation names a username
	// that is not in the index.
	ErrAccountNotFound = errors.New("account not found")

	// ErrCrypto covers key derivation and decryption failures. It is never
	// retried.
	ErrCrypto = errors.New("crypto failure")

	// ErrStoreUnavailable means the secret store cannot be used at all.
	ErrStoreUnavailable = keychain.ErrUnavailable

	// ErrSerialization is returned for a record that decrypts but does not
	// parse, or an index that breaks its invariants.
	ErrSerialization = errors.New("malformed vault record")

	// ErrInvalidUsername is returned for an empty username.
	ErrInvalidUsername = errors.New("invalid username")

	// ErrNoCredentials is returned when an account exists but has no
	// credential record, as with an imported legacy account.
	ErrNoCredentials = errors.New("no credentials stored")

	// ErrRecordTooLarge means the store refused a record for its size.
	ErrRecordTooLarge = keychain.ErrTooLarge
)

// storeErr classifies a secret store failure. A record whose stored
// encoding is damaged reads as undecryptable. An oversize write is the
// record's fault. Anything else makes the store unusable for this operation.
func storeErr(op string, err error) error {
	switch {
	case errors.Is(err, keychain.ErrCorrupt):
		return cryptoErr(op, err)
	case errors.Is(err, ErrStoreUnavailable), errors.Is(err, ErrRecordTooLarge):
		return fmt.Errorf("%s: %w", op, err)
	default:
		return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
	}
}

func cryptoErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrCrypto, err)
}

func serializationErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrSerialization, err)
}
