package vault

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/benaskins/xsession/internal/aead"
	"github.com/benaskins/xsession/internal/keychain"
)

// AccountInfo is the public metadata of one account.
type AccountInfo struct {
	Username    string `json:"username"`
	UUID        string `json:"uuid"`
	CreatedAt   int64  `json:"created_at"` // Unix timestamp
	LastUsed    int64  `json:"last_used"`  // Unix timestamp
	DisplayName string `json:"display_name,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// Index is the list of known accounts in display order plus the active
// selection. An empty ActiveUsername means no account is active.
type Index struct {
	Entries        []AccountInfo `json:"entries"`
	ActiveUsername string        `json:"active_username"`
}

func (idx *Index) find(username string) int {
	for i := range idx.Entries {
		if idx.Entries[i].Username == username {
			return i
		}
	}
	return -1
}

// validate checks the two index invariants: usernames are unique and the
// active username, when set, names an entry.
func (idx *Index) validate() error {
	seen := make(map[string]struct{}, len(idx.Entries))
	for _, e := range idx.Entries {
		if e.Username == "" {
			return errors.New("entry with empty username")
		}
		if _, dup := seen[e.Username]; dup {
			return fmt.Errorf("duplicate username %q", e.Username)
		}
		seen[e.Username] = struct{}{}
	}
	if idx.ActiveUsername != "" {
		if _, ok := seen[idx.ActiveUsername]; !ok {
			return fmt.Errorf("active username %q has no entry", idx.ActiveUsername)
		}
	}
	return nil
}

func (idx *Index) clone() Index {
	out := Index{ActiveUsername: idx.ActiveUsername}
	out.Entries = append(make([]AccountInfo, 0, len(idx.Entries)), idx.Entries...)
	return out
}

// loadIndex reads the index record. A missing record is an empty index.
func (v *Vault) loadIndex() (*Index, error) {
	blob, err := v.store.Get(indexLookupKey())
	if errors.Is(err, keychain.ErrNotFound) {
		return &Index{Entries: []AccountInfo{}}, nil
	}
	if err != nil {
		return nil, storeErr("reading account index", err)
	}

	plain, err := aead.OpenText(blob, v.indexKey)
	if err != nil {
		return nil, cryptoErr("opening account index", err)
	}

	var idx Index
	if err := json.Unmarshal([]byte(plain), &idx); err != nil {
		return nil, serializationErr("parsing account index", err)
	}
	if err := idx.validate(); err != nil {
		return nil, serializationErr("account index", err)
	}
	if idx.Entries == nil {
		idx.Entries = []AccountInfo{}
	}
	return &idx, nil
}

func (v *Vault) saveIndex(idx *Index) error {
	if idx.Entries == nil {
		idx.Entries = []AccountInfo{}
	}
	data, err := json.Marshal(idx)
	if err != nil {
		return serializationErr("encoding account index", err)
	}
	blob, err := aead.Seal(data, v.indexKey)
	if err != nil {
		return cryptoErr("sealing account index", err)
	}
	if err := v.store.Set(indexLookupKey(), blob); err != nil {
		return storeErr("writing account index", err)
	}
	return nil
}
