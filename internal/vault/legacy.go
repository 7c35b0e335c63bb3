package vault

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/benaskins/xsession/internal/keychain"
	"github.com/benaskins/xsession/internal/notify"
)

// Placeholder account created from a legacy record. The legacy payload
// cannot be tied to a username, so it is left in place and never read.
const (
	ImportedUsername    = "imported"
	ImportedDisplayName = "Imported account"
)

// Migration reports what MigrateLegacy did.
type Migration struct {
	// Imported is true when a placeholder account was created. It has no
	// credentials: the user has to sign in again for it to work.
	Imported bool   `json:"imported"`
	Username string `json:"username,omitempty"`
}

// MigrateLegacy imports a pre-multi-account installation. It does nothing
// when the index already has entries or no legacy record exists, so it is
// safe to call on every start.
func (v *Vault) MigrateLegacy() (Migration, error) {
	idx, err := v.loadIndex()
	if err != nil {
		return Migration{}, err
	}
	if len(idx.Entries) > 0 {
		v.logger.Debug("legacy migration not needed", "accounts", len(idx.Entries))
		return Migration{}, nil
	}

	// Only presence matters; a damaged encoding still counts.
	_, err = v.store.Get(LegacyLookupKey())
	if errors.Is(err, keychain.ErrNotFound) {
		return Migration{}, nil
	}
	if err != nil && !errors.Is(err, keychain.ErrCorrupt) {
		return Migration{}, storeErr("looking up legacy credentials", err)
	}

	id, err := uuid.NewRandom()
	if err != nil {
		return Migration{}, fmt.Errorf("generating account uuid: %w", err)
	}
	now := v.timestamp()
	idx.Entries = append(idx.Entries, AccountInfo{
		Username:    ImportedUsername,
		UUID:        id.String(),
		CreatedAt:   now,
		LastUsed:    now,
		DisplayName: ImportedDisplayName,
	})
	idx.ActiveUsername = ImportedUsername
	if err := v.saveIndex(idx); err != nil {
		return Migration{}, err
	}
	v.publish(notify.KindMigrated, ImportedUsername)
	v.logger.Warn("legacy credentials found; created placeholder account without credentials",
		"username", ImportedUsername)

	return Migration{Imported: true, Username: ImportedUsername}, nil
}
