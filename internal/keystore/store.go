package keystore

import "errors"

// Aliases used by the key manager.
const (
	AliasSalt     = "vault_master_key"
	AliasVerifier = "vault_pin_hash"
)

// Accessibility describes when an entry may be read. File-backed stores
// record it for auditing; platform keychains enforce it.
type Accessibility string

const (
	// AfterFirstUnlock entries survive device lock (the salt).
	AfterFirstUnlock Accessibility = "after_first_unlock"
	// WhenUnlocked entries need an unlocked device (the verifier).
	WhenUnlocked Accessibility = "when_unlocked"
)

// Store is a small secure key-value store addressed by fixed aliases. It
// lives outside the vault database.
type Store interface {
	// Get returns the value stored under alias or ErrNotFound.
	Get(alias string) ([]byte, error)

	// Set stores value under alias.
	Set(alias string, value []byte, access Accessibility) error

	// Delete removes alias. Deleting a missing alias is not an error.
	Delete(alias string) error
}

// Errors
var (
	ErrNotFound = errors.New("keystore entry not found")
	ErrCorrupt  = errors.New("keystore file is corrupt")
)

// CurrentSchemaVersion of the keystore file.
const CurrentSchemaVersion = 1
