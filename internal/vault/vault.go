// Package vault keeps the list of known accounts and each account's
// encrypted credentials in a secret store.
//
// Two kinds of record are stored, both sealed with AES-256-GCM:
//
//   - the index (all accounts in display order plus the active one), under a
//     key derived from the application identifier
//   - one credential record per account, under a key derived from its
//     username
//
// Every operation is a read-modify-write of the index followed by an
// independent credential update. The vault takes no locks: concurrent
// writers race and the last write wins. Credential last_used values may
// drift from the index after a crash between the two writes; the index is
// authoritative.
package vault

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/benaskins/xsession/internal/kdf"
	"github.com/benaskins/xsession/internal/keychain"
	"github.com/benaskins/xsession/internal/notify"
)

// DefaultAppID identifies the index key domain when none is configured.
const DefaultAppID = "com.xsession.accounts"

// Options configures a Vault.
type Options struct {
	Store  keychain.Store
	AppID  string     // defaults to DefaultAppID
	KDF    kdf.Params // zero value means kdf.DefaultParams
	Now    func() time.Time
	Logger *slog.Logger
	Events notify.Publisher // optional
}

// Vault is the account store. It is safe to share between goroutines in
// the sense that every call is self-contained; it does not serialize them.
type Vault struct {
	store    keychain.Store
	params   kdf.Params
	indexKey kdf.Key
	now      func() time.Time
	logger   *slog.Logger
	events   notify.Publisher
}

// New derives the index key and returns a ready vault.
func New(opts Options) (*Vault, error) {
	if opts.Store == nil {
		return nil, errors.New("vault: nil store")
	}
	if opts.AppID == "" {
		opts.AppID = DefaultAppID
	}
	if opts.KDF == (kdf.Params{}) {
		opts.KDF = kdf.DefaultParams
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	indexKey, err := kdf.IndexKey(opts.AppID, opts.KDF)
	if err != nil {
		return nil, cryptoErr("deriving index key", err)
	}

	return &Vault{
		store:    opts.Store,
		params:   opts.KDF,
		indexKey: indexKey,
		now:      opts.Now,
		logger:   opts.Logger.With("component", "vault"),
		events:   opts.Events,
	}, nil
}

func (v *Vault) timestamp() int64 { return v.now().Unix() }

func (v *Vault) publish(kind notify.Kind, username string) {
	if v.events == nil {
		return
	}
	v.events.Publish(notify.Event{Kind: kind, Username: username, At: v.now().UTC()})
}

func checkUsername(username string) error {
	if strings.TrimSpace(username) == "" {
		return ErrInvalidUsername
	}
	return nil
}

// Snapshot returns the whole index in one read.
func (v *Vault) Snapshot() (Index, error) {
	idx, err := v.loadIndex()
	if err != nil {
		return Index{}, err
	}
	return idx.clone(), nil
}

// List returns all accounts in display order.
func (v *Vault) List() ([]AccountInfo, error) {
	idx, err := v.Snapshot()
	if err != nil {
		return nil, err
	}
	return idx.Entries, nil
}

// Active returns the active username. ok is false when no account is active.
func (v *Vault) Active() (username string, ok bool, err error) {
	idx, err := v.loadIndex()
	if err != nil {
		return "", false, err
	}
	return idx.ActiveUsername, idx.ActiveUsername != "", nil
}

// Add stores credentials for username and returns the account UUID. A new
// account gets a fresh UUID and becomes active if it is the only one; an
// existing account keeps its UUID and has its credentials replaced.
func (v *Vault) Add(username string, s Secret) (string, error) {
	if err := checkUsername(username); err != nil {
		return "", err
	}

	idx, err := v.loadIndex()
	if err != nil {
		return "", err
	}
	now := v.timestamp()

	if i := idx.find(username); i >= 0 {
		idx.Entries[i].LastUsed = now
		info := idx.Entries[i]
		if err := v.saveIndex(idx); err != nil {
			return "", err
		}
		v.publish(notify.KindUpdated, username)

		if err := v.writeCredentials(recordFor(info, s, now)); err != nil {
			return "", err
		}
		v.logger.Info("account updated", "username", username)
		return info.UUID, nil
	}

	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generating account uuid: %w", err)
	}
	info := AccountInfo{
		Username:  username,
		UUID:      id.String(),
		CreatedAt: now,
		LastUsed:  now,
	}
	idx.Entries = append(idx.Entries, info)
	if len(idx.Entries) == 1 {
		idx.ActiveUsername = username
	}
	if err := v.saveIndex(idx); err != nil {
		return "", err
	}
	v.publish(notify.KindAdded, username)

	if err := v.writeCredentials(recordFor(info, s, now)); err != nil {
		return "", err
	}
	v.logger.Info("account added", "username", username, "active", idx.ActiveUsername == username)
	return info.UUID, nil
}

func recordFor(info AccountInfo, s Secret, now int64) CredentialRecord {
	return CredentialRecord{
		Username:    info.Username,
		UUID:        info.UUID,
		Token:       s.Token,
		SessionData: s.SessionData,
		CreatedAt:   info.CreatedAt,
		LastUsed:    now,
	}
}

// SetActive makes username the active account.
func (v *Vault) SetActive(username string) error {
	idx, err := v.loadIndex()
	if err != nil {
		return err
	}
	i := idx.find(username)
	if i < 0 {
		return fmt.Errorf("%w: %q", ErrAccountNotFound, username)
	}

	now := v.timestamp()
	idx.Entries[i].LastUsed = now
	idx.ActiveUsername = username
	if err := v.saveIndex(idx); err != nil {
		return err
	}
	v.publish(notify.KindSwitched, username)
	v.logger.Info("active account changed", "username", username)

	v.touchCredentials(username, now)
	return nil
}

// touchCredentials refreshes last_used on the credential record. The index
// already records the switch, so failures are only logged.
func (v *Vault) touchCredentials(username string, now int64) {
	rec, err := v.readCredentials(username)
	if errors.Is(err, ErrNoCredentials) {
		v.logger.Debug("no credentials to refresh", "username", username)
		return
	}
	if err != nil {
		v.logger.Warn("credential refresh failed", "username", username, "error", err)
		return
	}
	rec.LastUsed = now
	if err := v.writeCredentials(rec); err != nil {
		v.logger.Warn("credential refresh failed", "username", username, "error", err)
	}
}

// Remove deletes username from the index and drops its credentials. When
// the removed account was active, the first remaining account becomes
// active.
func (v *Vault) Remove(username string) error {
	idx, err := v.loadIndex()
	if err != nil {
		return err
	}
	i := idx.find(username)
	if i < 0 {
		return fmt.Errorf("%w: %q", ErrAccountNotFound, username)
	}

	idx.Entries = append(idx.Entries[:i], idx.Entries[i+1:]...)
	if idx.ActiveUsername == username {
		idx.ActiveUsername = ""
		if len(idx.Entries) > 0 {
			idx.ActiveUsername = idx.Entries[0].Username
		}
	}
	if err := v.saveIndex(idx); err != nil {
		return err
	}
	v.publish(notify.KindRemoved, username)
	v.logger.Info("account removed", "username", username, "active", idx.ActiveUsername)

	// An orphaned record is unreachable without the index entry.
	if err := v.deleteCredentials(username); err != nil {
		v.logger.Warn("credential delete failed", "username", username, "error", err)
	}
	return nil
}

// Credentials decrypts and returns the credential record of username.
func (v *Vault) Credentials(username string) (CredentialRecord, error) {
	idx, err := v.loadIndex()
	if err != nil {
		return CredentialRecord{}, err
	}
	i := idx.find(username)
	if i < 0 {
		return CredentialRecord{}, fmt.Errorf("%w: %q", ErrAccountNotFound, username)
	}

	rec, err := v.readCredentials(username)
	if err != nil {
		return CredentialRecord{}, err
	}
	if rec.UUID != idx.Entries[i].UUID {
		return CredentialRecord{}, serializationErr("credentials",
			fmt.Errorf("uuid %s does not match index entry %s", rec.UUID, idx.Entries[i].UUID))
	}
	return rec, nil
}

// Profile holds display fields filled in once the site reports them. Nil
// fields are left unchanged; an empty string clears the field.
type Profile struct {
	DisplayName *string `json:"display_name,omitempty"`
	AvatarURL   *string `json:"avatar_url,omitempty"`
}

// UpdateProfile sets the display fields of username.
func (v *Vault) UpdateProfile(username string, p Profile) error {
	idx, err := v.loadIndex()
	if err != nil {
		return err
	}
	i := idx.find(username)
	if i < 0 {
		return fmt.Errorf("%w: %q", ErrAccountNotFound, username)
	}

	if p.DisplayName != nil {
		idx.Entries[i].DisplayName = *p.DisplayName
	}
	if p.AvatarURL != nil {
		idx.Entries[i].AvatarURL = *p.AvatarURL
	}
	if err := v.saveIndex(idx); err != nil {
		return err
	}
	v.publish(notify.KindProfile, username)
	return nil
}
