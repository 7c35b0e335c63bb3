package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/benaskins/xsession/internal/keychain"
)

// Compile-time interface satisfaction checks.
var (
	_ keychain.Store  = (*Store)(nil)
	_ keychain.Lister = (*Store)(nil)
)

// opTimeout bounds each statement; the store API itself takes no context.
const opTimeout = 5 * time.Second

// Store keeps secret blobs for one service in the secrets table.
type Store struct {
	db      *DB
	service string
}

// NewStore returns a Store scoped to service.
func NewStore(db *DB, service string) *Store {
	if service == "" {
		service = keychain.DefaultService
	}
	return &Store{db: db, service: service}
}

// Set stores or replaces the blob under key.
func (s *Store) Set(key string, value []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	const query = `INSERT INTO secrets (service, key, value, updated_at)
		VALUES (?, ?, ?, strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		ON CONFLICT (service, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`
	if _, err := s.db.Writer.ExecContext(ctx, query, s.service, key, value); err != nil {
		return fmt.Errorf("set secret %q: %w: %w", key, keychain.ErrUnavailable, err)
	}
	return nil
}

// Get returns the blob under key, or keychain.ErrNotFound.
func (s *Store) Get(key string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	const query = `SELECT value FROM secrets WHERE service = ? AND key = ?`
	var value []byte
	err := s.db.Reader.QueryRowContext(ctx, query, s.service, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", keychain.ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("get secret %q: %w: %w", key, keychain.ErrUnavailable, err)
	}
	return value, nil
}

// Delete removes key. Missing keys are ignored.
func (s *Store) Delete(key string) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	const query = `DELETE FROM secrets WHERE service = ? AND key = ?`
	if _, err := s.db.Writer.ExecContext(ctx, query, s.service, key); err != nil {
		return fmt.Errorf("delete secret %q: %w: %w", key, keychain.ErrUnavailable, err)
	}
	return nil
}

// List returns the keys stored for this service, oldest update first.
func (s *Store) List() ([]string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	const query = `SELECT key FROM secrets WHERE service = ? ORDER BY updated_at, key`
	rows, err := s.db.Reader.QueryContext(ctx, query, s.service)
	if err != nil {
		return nil, fmt.Errorf("list secrets: %w: %w", keychain.ErrUnavailable, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan secret key: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate secrets: %w", err)
	}
	return keys, nil
}
