// Package keychain provides secret storage backed by the platform credential
// store.
//
// Entries are opaque byte blobs addressed by a key inside one service:
//   - Service: configured per installation (default "com.xsession")
//   - Account: the lookup key, always a hash computed by the caller, so the
//     store's own listing never reveals which accounts exist
//
// On macOS entries are generic passwords scoped with
// kSecAttrAccessibleWhenUnlockedThisDeviceOnly. Elsewhere they live in the
// OS keyring (Secret Service, Windows Credential Manager), base64-encoded
// because those stores only hold text.
package keychain

import "errors"

var (
	// ErrNotFound is returned when a secret does not exist in the store.
	ErrNotFound = errors.New("secret not found")

	// ErrUnavailable is returned when the backing store cannot be reached
	// or is not supported on this platform. Callers must not fall back to
	// another store when they see it.
	ErrUnavailable = errors.New("secret store unavailable")

	// ErrCorrupt is returned when an entry exists but its stored encoding
	// cannot be read back.
	ErrCorrupt = errors.New("stored secret is corrupt")

	// ErrTooLarge is returned when the backend refuses a value for its size.
	ErrTooLarge = errors.New("secret too large for store")

	// ErrNotListable is returned by stores that cannot enumerate their keys.
	ErrNotListable = errors.New("secret store cannot list entries")
)

// DefaultService is the service attribute used when none is configured.
const DefaultService = "com.xsession"

// Store is the interface for secret storage operations.
type Store interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(key string) ([]byte, error)
	// Set stores value under key, replacing any existing entry.
	Set(key string, value []byte) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(key string) error
}

// Lister is implemented by stores that can enumerate the keys they hold.
// The OS keyring on Linux and Windows cannot.
type Lister interface {
	List() ([]string, error)
}
