//go:build !darwin

package keychain

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/zalando/go-keyring"
)

// SystemStore keeps secrets in the OS keyring: the Secret Service on Linux
// and BSD, Credential Manager on Windows.
type SystemStore struct {
	service string
}

// NewSystemStore creates a keyring-backed secret store for service.
func NewSystemStore(service string) (*SystemStore, error) {
	if service == "" {
		service = DefaultService
	}
	return &SystemStore{service: service}, nil
}

func (s *SystemStore) Set(key string, value []byte) error {
	err := keyring.Set(s.service, key, base64.StdEncoding.EncodeToString(value))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, keyring.ErrSetDataTooBig):
		return fmt.Errorf("keyring set %q: %w: %w", key, ErrTooLarge, err)
	default:
		return fmt.Errorf("keyring set %q: %w: %w", key, ErrUnavailable, err)
	}
}

func (s *SystemStore) Get(key string) ([]byte, error) {
	val, err := keyring.Get(s.service, key)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("keyring get %q: %w: %w", key, ErrUnavailable, err)
	}
	// Credential Manager can hand back UTF-16 padding; base64 never contains NUL.
	val = strings.ReplaceAll(val, "\x00", "")

	data, err := base64.StdEncoding.DecodeString(val)
	if err != nil {
		return nil, fmt.Errorf("keyring get %q: %w: %w", key, ErrCorrupt, err)
	}
	return data, nil
}

func (s *SystemStore) Delete(key string) error {
	err := keyring.Delete(s.service, key)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("keyring delete %q: %w: %w", key, ErrUnavailable, err)
	}
	return nil
}
