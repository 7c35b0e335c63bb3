//go:build darwin

package keychain

import (
	"errors"
	"fmt"

	gokeychain "github.com/keybase/go-keychain"
)

var _ Lister = (*SystemStore)(nil)

// SystemStore provides CRUD operations for secrets in macOS Keychain.
type SystemStore struct {
	service string
}

// NewSystemStore creates a Keychain-backed secret store for service.
func NewSystemStore(service string) (*SystemStore, error) {
	if service == "" {
		service = DefaultService
	}
	return &SystemStore{service: service}, nil
}

// Set stores a secret in the Keychain. Overwrites if it already exists.
func (s *SystemStore) Set(key string, value []byte) error {
	// update = delete + add
	if err := s.Delete(key); err != nil {
		return err
	}

	item := gokeychain.NewGenericPassword(
		s.service,
		key,
		fmt.Sprintf("%s session", s.service),
		value,
		"",
	)
	item.SetSynchronizable(gokeychain.SynchronizableNo)
	item.SetAccessible(gokeychain.AccessibleWhenUnlockedThisDeviceOnly)

	if err := gokeychain.AddItem(item); err != nil {
		return fmt.Errorf("keychain add %q: %w: %w", key, ErrUnavailable, err)
	}
	return nil
}

// Get retrieves a secret from the Keychain.
func (s *SystemStore) Get(key string) ([]byte, error) {
	data, err := gokeychain.GetGenericPassword(s.service, key, "", "")
	if err != nil {
		if errors.Is(err, gokeychain.ErrorItemNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("keychain get %q: %w: %w", key, ErrUnavailable, err)
	}
	// GetGenericPassword reports a missing item as nil data with no error.
	if data == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return data, nil
}

// List returns every key stored under the service.
func (s *SystemStore) List() ([]string, error) {
	accounts, err := gokeychain.GetGenericPasswordAccounts(s.service)
	if err != nil {
		if errors.Is(err, gokeychain.ErrorItemNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("keychain list: %w: %w", ErrUnavailable, err)
	}
	return accounts, nil
}

// Delete removes a secret from the Keychain.
func (s *SystemStore) Delete(key string) error {
	err := gokeychain.DeleteGenericPasswordItem(s.service, key)
	if err != nil && !errors.Is(err, gokeychain.ErrorItemNotFound) {
		return fmt.Errorf("keychain delete %q: %w: %w", key, ErrUnavailable, err)
	}
	return nil
}
