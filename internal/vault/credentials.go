package vault

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/benaskins/xsession/internal/aead"
	"github.com/benaskins/xsession/internal/kdf"
	"github.com/benaskins/xsession/internal/keychain"
)

// CredentialRecord is the secret payload of one account. Its UUID always
// matches the index entry of the same username.
type CredentialRecord struct {
	Username    string `json:"username"`
	UUID        string `json:"uuid"`
	Token       string `json:"token,omitempty"`
	SessionData string `json:"session_data,omitempty"`
	CreatedAt   int64  `json:"created_at"`
	LastUsed    int64  `json:"last_used"`
}

// Secret is what a login hands to Add. Empty fields are stored as absent.
type Secret struct {
	Token       string
	SessionData string
}

func (v *Vault) accountKey(username string) (kdf.Key, error) {
	key, err := kdf.AccountKey(username, v.params)
	if err != nil {
		return kdf.Key{}, cryptoErr("deriving account key", err)
	}
	return key, nil
}

func (v *Vault) writeCredentials(rec CredentialRecord) error {
	key, err := v.accountKey(rec.Username)
	if err != nil {
		return err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return serializationErr("encoding credentials", err)
	}
	blob, err := aead.Seal(data, key)
	if err != nil {
		return cryptoErr("sealing credentials", err)
	}
	if err := v.store.Set(credentialLookupKey(rec.Username), blob); err != nil {
		return storeErr("writing credentials", err)
	}
	return nil
}

func (v *Vault) readCredentials(username string) (CredentialRecord, error) {
	blob, err := v.store.Get(credentialLookupKey(username))
	if errors.Is(err, keychain.ErrNotFound) {
		return CredentialRecord{}, fmt.Errorf("%w for %q", ErrNoCredentials, username)
	}
	if err != nil {
		return CredentialRecord{}, storeErr("reading credentials", err)
	}

	key, err := v.accountKey(username)
	if err != nil {
		return CredentialRecord{}, err
	}
	plain, err := aead.OpenText(blob, key)
	if err != nil {
		return CredentialRecord{}, cryptoErr("opening credentials", err)
	}

	var rec CredentialRecord
	if err := json.Unmarshal([]byte(plain), &rec); err != nil {
		return CredentialRecord{}, serializationErr("parsing credentials", err)
	}
	if rec.Username != username {
		return CredentialRecord{}, serializationErr("credentials",
			fmt.Errorf("record belongs to %q", rec.Username))
	}
	return rec, nil
}

func (v *Vault) deleteCredentials(username string) error {
	if err := v.store.Delete(credentialLookupKey(username)); err != nil {
		return storeErr("deleting credentials", err)
	}
	return nil
}
