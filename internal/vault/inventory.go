package vault

import (
	"errors"

	"github.com/benaskins/xsession/internal/keychain"
)

// Inventory compares what the store holds with what the index expects.
// Index and credential writes are not transactional, so a failed
// best-effort delete leaves an orphan and a failed credential write leaves
// an account without credentials.
type Inventory struct {
	Entries     int      `json:"entries"`
	Index       bool     `json:"index"`
	Legacy      bool     `json:"legacy"`
	Credentials int      `json:"credentials"`
	Missing     []string `json:"missing,omitempty"`
	Orphans     int      `json:"orphans"`
}

// Inventory lists the store's keys and classifies them against the index.
// Orphans are counted, never named: their usernames cannot be recovered
// from the hash. Stores that cannot list their keys return
// keychain.ErrNotListable.
func (v *Vault) Inventory() (Inventory, error) {
	lister, ok := v.store.(keychain.Lister)
	if !ok {
		return Inventory{}, keychain.ErrNotListable
	}
	keys, err := lister.List()
	if err != nil {
		if errors.Is(err, keychain.ErrNotListable) {
			return Inventory{}, err
		}
		return Inventory{}, storeErr("listing store", err)
	}

	idx, err := v.loadIndex()
	if err != nil {
		return Inventory{}, err
	}

	owners := make(map[string]string, len(idx.Entries))
	for _, e := range idx.Entries {
		owners[credentialLookupKey(e.Username)] = e.Username
	}

	inv := Inventory{Entries: len(keys)}
	seen := make(map[string]bool, len(owners))
	for _, k := range keys {
		switch {
		case k == indexLookupKey():
			inv.Index = true
		case k == LegacyLookupKey():
			inv.Legacy = true
		case owners[k] != "":
			inv.Credentials++
			seen[k] = true
		default:
			inv.Orphans++
		}
	}
	for _, e := range idx.Entries {
		if !seen[credentialLookupKey(e.Username)] {
			inv.Missing = append(inv.Missing, e.Username)
		}
	}

	if inv.Orphans > 0 {
		v.logger.Warn("store holds records no account refers to", "orphans", inv.Orphans)
	}
	return inv, nil
}

