package vault

import (
	"crypto/sha256"
	"encoding/hex"
)

// Logical record names. The store only ever sees their hashes.
const (
	indexName        = "accounts_list"
	credentialPrefix = "credentials_"
	legacyName       = "credentials"
)

// lookupKey hashes a logical name into a store key so the store's listing
// does not reveal usernames.
func lookupKey(name string) string {
	sum := sha256.Sum256([]byte(name))
	return hex.EncodeToString(sum[:])
}

func indexLookupKey() string { return lookupKey(indexName) }

func credentialLookupKey(username string) string {
	return lookupKey(credentialPrefix + username)
}

// LegacyLookupKey is the store key of the single-account record written by
// releases that predate multiple accounts.
func LegacyLookupKey() string { return lookupKey(legacyName) }
