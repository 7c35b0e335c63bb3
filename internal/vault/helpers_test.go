package vault

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benaskins/xsession/internal/kdf"
	"github.com/benaskins/xsession/internal/keychain"
	"github.com/benaskins/xsession/internal/notify"
)

var testParams = kdf.Params{Time: 1, MemoryKiB: 64, Threads: 1}

// clock advances one second per reading so successive operations get
// distinct timestamps.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock {
	return &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

type fixture struct {
	vault *Vault
	store *keychain.MemoryStore
	clock *clock
	logs  *bytes.Buffer
	hub   *notify.Hub
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithStore(t, keychain.NewMemoryStore())
}

func newFixtureWithStore(t *testing.T, mem *keychain.MemoryStore, wrap ...func(keychain.Store) keychain.Store) *fixture {
	t.Helper()
	f := &fixture{
		store: mem,
		clock: newClock(),
		logs:  &bytes.Buffer{},
		hub:   notify.NewHub(),
	}
	var store keychain.Store = mem
	for _, w := range wrap {
		store = w(store)
	}
	v, err := New(Options{
		Store:  store,
		AppID:  "com.xsession.test",
		KDF:    testParams,
		Now:    f.clock.Now,
		Logger: slog.New(slog.NewTextHandler(f.logs, &slog.HandlerOptions{Level: slog.LevelDebug})),
		Events: f.hub,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	f.vault = v
	return f
}

func (f *fixture) add(t *testing.T, username string) string {
	t.Helper()
	id, err := f.vault.Add(username, Secret{Token: "tok-" + username})
	if err != nil {
		t.Fatalf("Add(%q): %v", username, err)
	}
	return id
}

func (f *fixture) usernames(t *testing.T) []string {
	t.Helper()
	accounts, err := f.vault.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	var names []string
	for _, a := range accounts {
		names = append(names, a.Username)
	}
	return names
}

func (f *fixture) active(t *testing.T) string {
	t.Helper()
	name, _, err := f.vault.Active()
	if err != nil {
		t.Fatalf("Active: %v", err)
	}
	return name
}

func (f *fixture) info(t *testing.T, username string) AccountInfo {
	t.Helper()
	accounts, err := f.vault.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	for _, a := range accounts {
		if a.Username == username {
			return a
		}
	}
	t.Fatalf("account %q not listed", username)
	return AccountInfo{}
}

func (f *fixture) storedKeys(t *testing.T) []string {
	t.Helper()
	keys, err := f.store.List()
	if err != nil {
		t.Fatalf("store List: %v", err)
	}
	return keys
}

func (f *fixture) logged(level string) bool {
	return strings.Contains(f.logs.String(), "level="+level)
}

// faultyStore fails selected operations on selected keys.
type faultyStore struct {
	keychain.Store
	failGet    map[string]bool
	failSet    map[string]bool
	failDelete map[string]bool
	err        error
}

func newFaultyStore(inner keychain.Store) *faultyStore {
	return &faultyStore{
		Store:      inner,
		failGet:    map[string]bool{},
		failSet:    map[string]bool{},
		failDelete: map[string]bool{},
		err:        errors.New("backend exploded"),
	}
}

func (s *faultyStore) Get(key string) ([]byte, error) {
	if s.failGet[key] {
		return nil, s.err
	}
	return s.Store.Get(key)
}

func (s *faultyStore) Set(key string, value []byte) error {
	if s.failSet[key] {
		return s.err
	}
	return s.Store.Set(key, value)
}

func (s *faultyStore) Delete(key string) error {
	if s.failDelete[key] {
		return s.err
	}
	return s.Store.Delete(key)
}

// unavailableStore is a secret store on a platform that has none.
type unavailableStore struct{}

func (unavailableStore) Get(string) ([]byte, error) { return nil, keychain.ErrUnavailable }
func (unavailableStore) Set(string, []byte) error   { return keychain.ErrUnavailable }
func (unavailableStore) Delete(string) error        { return keychain.ErrUnavailable }
