package crypto

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/pbkdf2"
)

// PBKDF2 parameters
const (
	DefaultIterations = 100000
	SaltSize          = 32
)

const (
	verifierLabel   = "docvault-pin-verifier-v1"
	storageKeyLabel = "docvault-storage-key-v1"
)

// GenerateSalt returns size random bytes.
func GenerateSalt(size int) ([]byte, error) {
	salt := make([]byte, size)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	return salt, nil
}

// DeriveKey stretches a PIN with PBKDF2-HMAC-SHA256 into a 256-bit key.
func DeriveKey(pin string, salt []byte, iterations int) ([]byte, error) {
	if len(salt) < 16 {
		return nil, fmt.Errorf("salt too short: %d bytes", len(salt))
	}
	if iterations <= 0 {
		return nil, fmt.Errorf("invalid iteration count: %d", iterations)
	}

	return pbkdf2.Key([]byte(pin), salt, iterations, KeySize, sha256.New), nil
}

// Verifier derives the stored PIN verifier from a derived key. It is one-way
// and never equal to the key.
func Verifier(key []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write([]byte(verifierLabel))
	return h.Sum(nil)
}

// DeriveStorageKey expands key into the 64-byte VaultStore key with
// HKDF-SHA512.
func DeriveStorageKey(key []byte) ([]byte, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	out := make([]byte, StorageKeySize)
	r := hkdf.New(sha512.New, key, nil, []byte(storageKeyLabel))
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, fmt.Errorf("expand storage key: %w", err)
	}
	return out, nil
}

// SplitStorageKey splits a storage key into its record-encryption half and
// its MAC half.
func SplitStorageKey(storageKey []byte) (encKey, macKey []byte, err error) {
	if len(storageKey) != StorageKeySize {
		return nil, nil, fmt.Errorf("invalid storage key size: expected %d, got %d", StorageKeySize, len(storageKey))
	}
	encKey = append([]byte(nil), storageKey[:KeySize]...)
	macKey = append([]byte(nil), storageKey[KeySize:]...)
	return encKey, macKey, nil
}

// MAC returns HMAC-SHA256 of data under key.
func MAC(key, data []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(data)
	return h.Sum(nil)
}
