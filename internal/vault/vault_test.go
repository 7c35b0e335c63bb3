package vault

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/benaskins/xsession/internal/aead"
	"github.com/benaskins/xsession/internal/kdf"
	"github.com/benaskins/xsession/internal/keychain"
)

func TestNewRequiresStore(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Fatal("expected error for nil store")
	}
}

func TestNewInvalidParamsIsCryptoFailure(t *testing.T) {
	_, err := New(Options{
		Store: keychain.NewMemoryStore(),
		KDF:   kdf.Params{Time: 1, MemoryKiB: 64, Threads: 0},
	})
	if !errors.Is(err, ErrCrypto) {
		t.Fatalf("expected ErrCrypto, got %v", err)
	}
}

func TestEmptyVault(t *testing.T) {
	f := newFixture(t)

	accounts, err := f.vault.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(accounts) != 0 {
		t.Errorf("expected no accounts, got %v", accounts)
	}
	name, ok, err := f.vault.Active()
	if err != nil {
		t.Fatalf("Active: %v", err)
	}
	if ok || name != "" {
		t.Errorf("Active() = %q, %v; want none", name, ok)
	}
	if len(f.storedKeys(t)) != 0 {
		t.Error("reading an empty vault must not write to the store")
	}
}

func TestAddFirstAccountAutoActivates(t *testing.T) {
	f := newFixture(t)
	f.add(t, "alice")
	f.add(t, "bob")

	if got, want := f.usernames(t), []string{"alice", "bob"}; !reflect.DeepEqual(got, want) {
		t.Errorf("List() = %v, want %v", got, want)
	}
	if got := f.active(t); got != "alice" {
		t.Errorf("active = %q, want alice", got)
	}
}

func TestAddAssignsUUIDAndTimestamps(t *testing.T) {
	f := newFixture(t)
	id := f.add(t, "alice")

	parsed, err := uuid.Parse(id)
	if err != nil {
		t.Fatalf("Add returned invalid uuid %q: %v", id, err)
	}
	if parsed.Version() != 4 {
		t.Errorf("uuid version = %d, want 4", parsed.Version())
	}

	info := f.info(t, "alice")
	if info.UUID != id {
		t.Errorf("index uuid = %q, want %q", info.UUID, id)
	}
	if info.CreatedAt == 0 || info.CreatedAt != info.LastUsed {
		t.Errorf("created_at=%d last_used=%d, want equal and non-zero", info.CreatedAt, info.LastUsed)
	}

	rec, err := f.vault.Credentials("alice")
	if err != nil {
		t.Fatalf("Credentials: %v", err)
	}
	if rec.UUID != id {
		t.Errorf("credential uuid = %q, want %q", rec.UUID, id)
	}
	if rec.Token != "tok-alice" || rec.SessionData != "" {
		t.Errorf("unexpected record %+v", rec)
	}
	if rec.CreatedAt != info.CreatedAt {
		t.Errorf("credential created_at = %d, want %d", rec.CreatedAt, info.CreatedAt)
	}
}

func TestAddExistingKeepsUUIDAndRefreshes(t *testing.T) {
	f := newFixture(t)
	id := f.add(t, "alice")
	before := f.info(t, "alice")

	again, err := f.vault.Add("alice", Secret{Token: "new-token", SessionData: "cookie=1"})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if again != id {
		t.Errorf("re-adding returned %q, want existing %q", again, id)
	}

	after := f.info(t, "alice")
	if after.LastUsed <= before.LastUsed {
		t.Errorf("last_used not bumped: %d -> %d", before.LastUsed, after.LastUsed)
	}
	if after.CreatedAt != before.CreatedAt {
		t.Error("created_at changed on re-add")
	}
	if len(f.usernames(t)) != 1 {
		t.Error("re-adding duplicated the entry")
	}

	rec, err := f.vault.Credentials("alice")
	if err != nil {
		t.Fatalf("Credentials: %v", err)
	}
	if rec.Token != "new-token" || rec.SessionData != "cookie=1" {
		t.Errorf("credentials not replaced: %+v", rec)
	}
	if rec.UUID != id {
		t.Errorf("credential uuid changed to %q", rec.UUID)
	}
}

func TestAddRejectsEmptyUsername(t *testing.T) {
	f := newFixture(t)
	for _, name := range []string{"", "   "} {
		if _, err := f.vault.Add(name, Secret{}); !errors.Is(err, ErrInvalidUsername) {
			t.Errorf("Add(%q) = %v, want ErrInvalidUsername", name, err)
		}
	}
	if len(f.storedKeys(t)) != 0 {
		t.Error("rejected add wrote to the store")
	}
}

func TestSetActive(t *testing.T) {
	f := newFixture(t)
	f.add(t, "alice")
	f.add(t, "bob")
	aliceBefore := f.info(t, "alice")
	bobBefore := f.info(t, "bob")

	if err := f.vault.SetActive("bob"); err != nil {
		t.Fatalf("SetActive: %v", err)
	}

	if got := f.active(t); got != "bob" {
		t.Errorf("active = %q, want bob", got)
	}
	if got := f.info(t, "alice"); got.LastUsed != aliceBefore.LastUsed {
		t.Errorf("alice last_used changed: %d -> %d", aliceBefore.LastUsed, got.LastUsed)
	}
	bobAfter := f.info(t, "bob")
	if bobAfter.LastUsed <= bobBefore.LastUsed {
		t.Errorf("bob last_used not updated: %d -> %d", bobBefore.LastUsed, bobAfter.LastUsed)
	}

	rec, err := f.vault.Credentials("bob")
	if err != nil {
		t.Fatalf("Credentials: %v", err)
	}
	if rec.LastUsed != bobAfter.LastUsed {
		t.Errorf("credential last_used = %d, want %d", rec.LastUsed, bobAfter.LastUsed)
	}
}

func TestSetActiveUnknown(t *testing.T) {
	f := newFixture(t)
	f.add(t, "alice")

	if err := f.vault.SetActive("carol"); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
	if got := f.active(t); got != "alice" {
		t.Errorf("active = %q, want alice", got)
	}
}

func TestRemoveActiveReassigns(t *testing.T) {
	f := newFixture(t)
	f.add(t, "alice")
	f.add(t, "bob")
	if err := f.vault.SetActive("bob"); err != nil {
		t.Fatal(err)
	}

	if err := f.vault.Remove("bob"); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	if got := f.active(t); got != "alice" {
		t.Errorf("active = %q, want alice", got)
	}
	if got, want := f.usernames(t), []string{"alice"}; !reflect.DeepEqual(got, want) {
		t.Errorf("List() = %v, want %v", got, want)
	}
	if _, err := f.store.Get(credentialLookupKey("bob")); !errors.Is(err, keychain.ErrNotFound) {
		t.Errorf("bob's credentials still stored: %v", err)
	}
}

func TestRemoveInactiveKeepsActive(t *testing.T) {
	f := newFixture(t)
	f.add(t, "alice")
	f.add(t, "bob")
	f.add(t, "carol")

	if err := f.vault.Remove("bob"); err != nil {
		t.Fatal(err)
	}
	if got := f.active(t); got != "alice" {
		t.Errorf("active = %q, want alice", got)
	}
	if got, want := f.usernames(t), []string{"alice", "carol"}; !reflect.DeepEqual(got, want) {
		t.Errorf("List() = %v, want %v", got, want)
	}
}

func TestRemoveLastAccountClearsActive(t *testing.T) {
	f := newFixture(t)
	f.add(t, "alice")

	if err := f.vault.Remove("alice"); err != nil {
		t.Fatal(err)
	}
	if _, ok, err := f.vault.Active(); err != nil || ok {
		t.Errorf("Active() ok=%v err=%v, want no active account", ok, err)
	}
}

func TestRemoveUnknownLeavesIndexUnchanged(t *testing.T) {
	f := newFixture(t)
	f.add(t, "alice")
	f.add(t, "bob")
	before, err := f.vault.Snapshot()
	if err != nil {
		t.Fatal(err)
	}

	if err := f.vault.Remove("carol"); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}

	after, err := f.vault.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(before, after) {
		t.Errorf("index changed:\nbefore %+v\nafter  %+v", before, after)
	}
}

func TestCredentialsErrors(t *testing.T) {
	f := newFixture(t)

	if _, err := f.vault.Credentials("ghost"); !errors.Is(err, ErrAccountNotFound) {
		t.Errorf("expected ErrAccountNotFound, got %v", err)
	}

	f.add(t, "alice")
	if err := f.store.Delete(credentialLookupKey("alice")); err != nil {
		t.Fatal(err)
	}
	if _, err := f.vault.Credentials("alice"); !errors.Is(err, ErrNoCredentials) {
		t.Errorf("expected ErrNoCredentials, got %v", err)
	}
}

func TestCredentialsUUIDMismatch(t *testing.T) {
	f := newFixture(t)
	f.add(t, "alice")

	rec, err := f.vault.readCredentials("alice")
	if err != nil {
		t.Fatal(err)
	}
	rec.UUID = uuid.NewString()
	if err := f.vault.writeCredentials(rec); err != nil {
		t.Fatal(err)
	}

	if _, err := f.vault.Credentials("alice"); !errors.Is(err, ErrSerialization) {
		t.Errorf("expected ErrSerialization, got %v", err)
	}
}

func TestUpdateProfile(t *testing.T) {
	f := newFixture(t)
	f.add(t, "alice")

	name, avatar := "Alice A.", "https://example.com/a.png"
	if err := f.vault.UpdateProfile("alice", Profile{DisplayName: &name, AvatarURL: &avatar}); err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	info := f.info(t, "alice")
	if info.DisplayName != name || info.AvatarURL != avatar {
		t.Errorf("profile not applied: %+v", info)
	}

	empty := ""
	if err := f.vault.UpdateProfile("alice", Profile{AvatarURL: &empty}); err != nil {
		t.Fatal(err)
	}
	info = f.info(t, "alice")
	if info.DisplayName != name {
		t.Errorf("nil field cleared display name: %+v", info)
	}
	if info.AvatarURL != "" {
		t.Errorf("empty field did not clear avatar: %+v", info)
	}

	if err := f.vault.UpdateProfile("ghost", Profile{DisplayName: &name}); !errors.Is(err, ErrAccountNotFound) {
		t.Errorf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestStoreKeysDoNotRevealUsernames(t *testing.T) {
	f := newFixture(t)
	f.add(t, "alice")
	f.add(t, "bob")

	hexKey := regexp.MustCompile(`^[0-9a-f]{64}$`)
	keys := f.storedKeys(t)
	if len(keys) != 3 {
		t.Fatalf("expected 3 records (index + 2 credentials), got %d", len(keys))
	}
	for _, k := range keys {
		if !hexKey.MatchString(k) {
			t.Errorf("store key %q is not a hash", k)
		}
		if strings.Contains(k, "alice") || strings.Contains(k, "bob") {
			t.Errorf("store key %q leaks a username", k)
		}
	}
}

func TestRecordsAreEncrypted(t *testing.T) {
	f := newFixture(t)
	if _, err := f.vault.Add("alice", Secret{Token: "super-secret-token"}); err != nil {
		t.Fatal(err)
	}
	for _, k := range f.storedKeys(t) {
		blob, _ := f.store.Get(k)
		if strings.Contains(string(blob), "alice") || strings.Contains(string(blob), "super-secret-token") {
			t.Errorf("record %s holds plaintext", k)
		}
	}
}

func TestVaultReopensWithSameKeys(t *testing.T) {
	f := newFixture(t)
	id := f.add(t, "alice")

	reopened, err := New(Options{Store: f.store, AppID: "com.xsession.test", KDF: testParams})
	if err != nil {
		t.Fatal(err)
	}
	rec, err := reopened.Credentials("alice")
	if err != nil {
		t.Fatalf("Credentials after reopen: %v", err)
	}
	if rec.UUID != id {
		t.Errorf("uuid = %q, want %q", rec.UUID, id)
	}

	// A different application identifier derives a different index key.
	other, err := New(Options{Store: f.store, AppID: "com.other", KDF: testParams})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := other.List(); !errors.Is(err, ErrCrypto) {
		t.Errorf("expected ErrCrypto with foreign app id, got %v", err)
	}
}

func TestTamperedIndexIsCryptoFailure(t *testing.T) {
	f := newFixture(t)
	f.add(t, "alice")

	blob, err := f.store.Get(indexLookupKey())
	if err != nil {
		t.Fatal(err)
	}
	blob[len(blob)-1] ^= 0x01
	if err := f.store.Set(indexLookupKey(), blob); err != nil {
		t.Fatal(err)
	}

	if _, err := f.vault.List(); !errors.Is(err, ErrCrypto) {
		t.Fatalf("expected ErrCrypto, got %v", err)
	}
	if _, err := f.vault.Add("bob", Secret{}); !errors.Is(err, ErrCrypto) {
		t.Fatalf("Add over tampered index: expected ErrCrypto, got %v", err)
	}
	if !errors.Is(func() error { _, err := f.vault.List(); return err }(), aead.ErrDecrypt) {
		t.Error("expected the decrypt cause to be preserved")
	}
}

func TestTamperedCredentialsIsCryptoFailure(t *testing.T) {
	f := newFixture(t)
	f.add(t, "alice")

	key := credentialLookupKey("alice")
	blob, _ := f.store.Get(key)
	blob[aead.NonceSize] ^= 0xff
	f.store.Set(key, blob)

	if _, err := f.vault.Credentials("alice"); !errors.Is(err, ErrCrypto) {
		t.Fatalf("expected ErrCrypto, got %v", err)
	}
}

func TestMalformedIndexIsSerializationError(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `not json at all`},
		{"wrong shape", `{"entries": "alice"}`},
		{"duplicate usernames", `{"entries":[{"username":"a","uuid":"1"},{"username":"a","uuid":"2"}],"active_username":"a"}`},
		{"dangling active", `{"entries":[{"username":"a","uuid":"1"}],"active_username":"b"}`},
		{"empty username", `{"entries":[{"username":"","uuid":"1"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			blob, err := aead.Seal([]byte(tt.body), f.vault.indexKey)
			if err != nil {
				t.Fatal(err)
			}
			f.store.Set(indexLookupKey(), blob)

			if _, err := f.vault.List(); !errors.Is(err, ErrSerialization) {
				t.Fatalf("expected ErrSerialization, got %v", err)
			}
		})
	}
}

func TestNullActiveUsernameParses(t *testing.T) {
	f := newFixture(t)
	body := `{"entries":[{"username":"a","uuid":"1","created_at":1,"last_used":1}],"active_username":null}`
	blob, _ := aead.Seal([]byte(body), f.vault.indexKey)
	f.store.Set(indexLookupKey(), blob)

	if _, ok, err := f.vault.Active(); err != nil || ok {
		t.Fatalf("Active() ok=%v err=%v, want no active account", ok, err)
	}
}

func TestUnavailableStore(t *testing.T) {
	v, err := New(Options{Store: unavailableStore{}, KDF: testParams})
	if err != nil {
		t.Fatal(err)
	}

	ops := map[string]func() error{
		"List":          func() error { _, err := v.List(); return err },
		"Active":        func() error { _, _, err := v.Active(); return err },
		"Add":           func() error { _, err := v.Add("alice", Secret{}); return err },
		"SetActive":     func() error { return v.SetActive("alice") },
		"Remove":        func() error { return v.Remove("alice") },
		"MigrateLegacy": func() error { _, err := v.MigrateLegacy(); return err },
		"Credentials":   func() error { _, err := v.Credentials("alice"); return err },
		"UpdateProfile": func() error { return v.UpdateProfile("alice", Profile{}) },
	}
	for name, op := range ops {
		if err := op(); !errors.Is(err, ErrStoreUnavailable) {
			t.Errorf("%s: expected ErrStoreUnavailable, got %v", name, err)
		}
	}
}

func TestUnexpectedStoreErrorIsUnavailable(t *testing.T) {
	mem := keychain.NewMemoryStore()
	var faulty *faultyStore
	f := newFixtureWithStore(t, mem, func(s keychain.Store) keychain.Store {
		faulty = newFaultyStore(s)
		return faulty
	})
	faulty.failSet[indexLookupKey()] = true

	_, err := f.vault.Add("alice", Secret{})
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if !errors.Is(err, faulty.err) {
		t.Error("expected the store's error to be preserved")
	}
}

func TestAddCredentialWriteFailure(t *testing.T) {
	mem := keychain.NewMemoryStore()
	var faulty *faultyStore
	f := newFixtureWithStore(t, mem, func(s keychain.Store) keychain.Store {
		faulty = newFaultyStore(s)
		return faulty
	})
	faulty.failSet[credentialLookupKey("alice")] = true

	if _, err := f.vault.Add("alice", Secret{Token: "t"}); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	// The index write happened first and is not rolled back.
	if got := f.usernames(t); len(got) != 1 {
		t.Errorf("List() = %v, want the indexed account", got)
	}
}

func TestAddOversizeCredentialIsNotUnavailable(t *testing.T) {
	mem := keychain.NewMemoryStore()
	var faulty *faultyStore
	f := newFixtureWithStore(t, mem, func(s keychain.Store) keychain.Store {
		faulty = newFaultyStore(s)
		return faulty
	})
	faulty.err = fmt.Errorf("keyring set: %w", keychain.ErrTooLarge)
	faulty.failSet[credentialLookupKey("alice")] = true

	_, err := f.vault.Add("alice", Secret{Token: strings.Repeat("x", 8192)})
	if !errors.Is(err, ErrRecordTooLarge) {
		t.Fatalf("expected ErrRecordTooLarge, got %v", err)
	}
	if errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("oversize write reported as unavailable: %v", err)
	}
}

func TestCorruptIndexEncodingIsCryptoFailure(t *testing.T) {
	mem := keychain.NewMemoryStore()
	var faulty *faultyStore
	f := newFixtureWithStore(t, mem, func(s keychain.Store) keychain.Store {
		faulty = newFaultyStore(s)
		return faulty
	})
	f.add(t, "alice")
	faulty.err = fmt.Errorf("keyring get: %w", keychain.ErrCorrupt)
	faulty.failGet[indexLookupKey()] = true

	_, err := f.vault.List()
	if !errors.Is(err, ErrCrypto) {
		t.Fatalf("expected ErrCrypto, got %v", err)
	}
	if errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("corrupt index reported as unavailable: %v", err)
	}
}

func TestSetActiveCredentialRefreshIsBestEffort(t *testing.T) {
	mem := keychain.NewMemoryStore()
	var faulty *faultyStore
	f := newFixtureWithStore(t, mem, func(s keychain.Store) keychain.Store {
		faulty = newFaultyStore(s)
		return faulty
	})
	f.add(t, "alice")
	f.add(t, "bob")
	faulty.failGet[credentialLookupKey("bob")] = true

	if err := f.vault.SetActive("bob"); err != nil {
		t.Fatalf("SetActive should succeed despite credential failure: %v", err)
	}
	if got := f.active(t); got != "bob" {
		t.Errorf("active = %q, want bob", got)
	}
	if !f.logged("WARN") {
		t.Errorf("expected a warning to be logged, got:\n%s", f.logs)
	}
}

func TestRemoveCredentialDeleteIsBestEffort(t *testing.T) {
	mem := keychain.NewMemoryStore()
	var faulty *faultyStore
	f := newFixtureWithStore(t, mem, func(s keychain.Store) keychain.Store {
		faulty = newFaultyStore(s)
		return faulty
	})
	f.add(t, "alice")
	f.add(t, "bob")
	faulty.failDelete[credentialLookupKey("bob")] = true

	if err := f.vault.Remove("bob"); err != nil {
		t.Fatalf("Remove should succeed despite delete failure: %v", err)
	}
	if got, want := f.usernames(t), []string{"alice"}; !reflect.DeepEqual(got, want) {
		t.Errorf("List() = %v, want %v", got, want)
	}
	if !f.logged("WARN") {
		t.Errorf("expected a warning to be logged, got:\n%s", f.logs)
	}
}

func TestSetActiveWithoutCredentialsDoesNotWarn(t *testing.T) {
	f := newFixture(t)
	f.add(t, "alice")
	f.store.Delete(credentialLookupKey("alice"))

	if err := f.vault.SetActive("alice"); err != nil {
		t.Fatal(err)
	}
	if f.logged("WARN") {
		t.Errorf("missing credentials should not warn:\n%s", f.logs)
	}
}
