package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"

	"github.com/TheMichaelB/docvault/internal/models"
)

const (
	// FrameVersion identifies the ciphertext layout.
	FrameVersion byte = 1

	// Key sizes
	KeySize        = 32 // AES-256
	StorageKeySize = 64 // VaultStore key
	NonceSize      = 12 // GCM standard
	TagSize        = 16 // GCM tag

	// Overhead is the number of bytes Encrypt adds to a plaintext.
	Overhead = 1 + NonceSize + TagSize
)

// Engine performs authenticated encryption with caller-supplied keys. It
// holds no key material and is safe for concurrent use.
type Engine struct{}

// NewEngine creates a crypto engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Encrypt seals plaintext with AES-256-GCM.
// Returns: version || nonce || ciphertext || tag
func (e *Engine) Encrypt(plaintext, key []byte) ([]byte, error) {
	return e.Seal(plaintext, key, nil)
}

// Decrypt opens a frame produced by Encrypt.
func (e *Engine) Decrypt(ciphertext, key []byte) ([]byte, error) {
	return e.Open(ciphertext, key, nil)
}

// Seal is Encrypt with associated data bound into the tag.
func (e *Engine) Seal(plaintext, key, aad []byte) ([]byte, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("%w: generate nonce: %v", models.ErrEncryption, err)
	}

	out := make([]byte, 1+NonceSize, Overhead+len(plaintext))
	out[0] = FrameVersion
	copy(out[1:], nonce)

	return aead.Seal(out, nonce, plaintext, aad), nil
}

// Open is Decrypt with associated data. A short or unknown frame returns
// ErrMalformedCiphertext; a failed tag check returns ErrTampered.
func (e *Engine) Open(ciphertext, key, aad []byte) ([]byte, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}

	if len(ciphertext) < Overhead || ciphertext[0] != FrameVersion {
		return nil, models.ErrMalformedCiphertext
	}

	nonce := ciphertext[1 : 1+NonceSize]
	plaintext, err := aead.Open(nil, nonce, ciphertext[1+NonceSize:], aad)
	if err != nil {
		return nil, models.ErrTampered
	}

	return plaintext, nil
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	return aead, nil
}

// ValidateKey rejects a missing key as a locked vault and a wrongly sized key
// as invalid input.
func ValidateKey(key []byte) error {
	if len(key) == 0 {
		return models.ErrLocked
	}
	if len(key) != KeySize {
		return &models.ValidationError{
			Field:  "key",
			Reason: fmt.Sprintf("expected %d bytes, got %d", KeySize, len(key)),
		}
	}
	return nil
}

// Wipe zeroes b in place.
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
