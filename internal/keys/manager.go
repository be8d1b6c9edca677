package keys

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/TheMichaelB/docvault/internal/config"
	"github.com/TheMichaelB/docvault/internal/crypto"
	"github.com/TheMichaelB/docvault/internal/events"
	"github.com/TheMichaelB/docvault/internal/keystore"
	"github.com/TheMichaelB/docvault/internal/metrics"
	"github.com/TheMichaelB/docvault/internal/models"
)

// Options controls key derivation and the PIN policy.
type Options struct {
	Iterations   int
	SaltSize     int
	PINMinLength int
	PINMaxLength int
}

// DefaultOptions returns the production parameters.
func DefaultOptions() Options {
	return Options{
		Iterations:   crypto.DefaultIterations,
		SaltSize:     crypto.SaltSize,
		PINMinLength: 4,
		PINMaxLength: 8,
	}
}

// OptionsFromConfig maps the security section of the config onto Options.
func OptionsFromConfig(cfg config.SecurityConfig) Options {
	return Options{
		Iterations:   cfg.KDFIterations,
		SaltSize:     cfg.SaltSize,
		PINMinLength: cfg.PINMinLength,
		PINMaxLength: cfg.PINMaxLength,
	}
}

// saltRecord is what lives under keystore.AliasSalt.
type saltRecord struct {
	Version    int    `json:"version"`
	Salt       []byte `json:"salt"`
	Iterations int    `json:"iterations"`
}

// Manager owns the PIN-derived master key. The key exists only in memory
// while unlocked and is reached through WithKey.
type Manager struct {
	store   keystore.Store
	opts    Options
	metrics *metrics.Metrics
	logger  *events.Logger

	mu         sync.RWMutex
	key        []byte
	generation uint64
}

// NewManager creates a key manager over store. metrics may be nil.
func NewManager(store keystore.Store, opts Options, m *metrics.Metrics, logger *events.Logger) *Manager {
	return &Manager{
		store:   store,
		opts:    opts,
		metrics: m,
		logger:  logger.WithField("component", "key_manager"),
	}
}

// ValidatePIN checks the PIN contract: digits only, within the length range.
func (m *Manager) ValidatePIN(pin string) error {
	if len(pin) < m.opts.PINMinLength || len(pin) > m.opts.PINMaxLength {
		return &models.ValidationError{
			Field:  "pin",
			Reason: fmt.Sprintf("must be %d-%d digits", m.opts.PINMinLength, m.opts.PINMaxLength),
		}
	}
	for _, r := range pin {
		if r < '0' || r > '9' {
			return &models.ValidationError{Field: "pin", Reason: "must contain digits only"}
		}
	}
	return nil
}

// InitializeFromPIN derives a key from pin, stores the salt and verifier and
// unlocks. An existing salt is reused; calling it again replaces the
// effective key.
func (m *Manager) InitializeFromPIN(pin string) error {
	if err := m.ValidatePIN(pin); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.loadSalt()
	switch {
	case errors.Is(err, models.ErrNotInitialized):
		salt, genErr := crypto.GenerateSalt(m.opts.SaltSize)
		if genErr != nil {
			return fmt.Errorf("%w: %v", models.ErrEncryption, genErr)
		}
		rec = &saltRecord{Version: 1, Salt: salt}
	case err != nil:
		return err
	}
	rec.Iterations = m.opts.Iterations

	key, err := crypto.DeriveKey(pin, rec.Salt, rec.Iterations)
	if err != nil {
		return fmt.Errorf("%w: derive key: %v", models.ErrEncryption, err)
	}

	if err := m.saveSalt(rec); err != nil {
		crypto.Wipe(key)
		return err
	}
	if err := m.store.Set(keystore.AliasVerifier, crypto.Verifier(key), keystore.WhenUnlocked); err != nil {
		crypto.Wipe(key)
		return fmt.Errorf("%w: store verifier: %v", models.ErrStorage, err)
	}

	m.setKeyLocked(key)
	m.logger.Info("Vault key initialized")
	return nil
}

// VerifyPIN checks pin against the stored verifier in constant time. On a
// match the key is re-derived and held; on a mismatch nothing changes.
func (m *Manager) VerifyPIN(pin string) bool {
	key, ok := m.check(pin)
	if !ok {
		m.observe("failure")
		return false
	}

	m.mu.Lock()
	m.setKeyLocked(key)
	m.mu.Unlock()

	m.observe("success")
	m.logger.Debug("PIN verified")
	return true
}

// check derives the key for pin and compares its verifier. The caller owns
// the returned key.
func (m *Manager) check(pin string) ([]byte, bool) {
	if m.ValidatePIN(pin) != nil {
		return nil, false
	}

	rec, err := m.loadSalt()
	if err != nil {
		return nil, false
	}
	stored, err := m.store.Get(keystore.AliasVerifier)
	if err != nil {
		return nil, false
	}

	key, err := crypto.DeriveKey(pin, rec.Salt, rec.Iterations)
	if err != nil {
		return nil, false
	}
	if subtle.ConstantTimeCompare(crypto.Verifier(key), stored) != 1 {
		crypto.Wipe(key)
		return nil, false
	}
	return key, true
}

// DeriveStorageKey returns the 64-byte VaultStore key for the current key.
func (m *Manager) DeriveStorageKey() ([]byte, error) {
	var storageKey []byte
	err := m.WithKey(func(key []byte) error {
		var err error
		storageKey, err = crypto.DeriveStorageKey(key)
		return err
	})
	if err != nil {
		return nil, err
	}
	return storageKey, nil
}

// WithKey runs fn with a copy of the key. If the manager is locked or the
// key changes before fn returns, WithKey returns ErrLocked and the caller
// must discard whatever fn produced. The copy is wiped afterwards.
func (m *Manager) WithKey(fn func(key []byte) error) error {
	m.mu.RLock()
	if m.key == nil {
		m.mu.RUnlock()
		return models.ErrLocked
	}
	key := append([]byte(nil), m.key...)
	gen := m.generation
	m.mu.RUnlock()

	defer crypto.Wipe(key)

	err := fn(key)

	m.mu.RLock()
	changed := m.key == nil || m.generation != gen
	m.mu.RUnlock()
	if changed {
		return models.ErrLocked
	}
	return err
}

// Lock zeroes and discards the key.
func (m *Manager) Lock() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.key != nil {
		crypto.Wipe(m.key)
		m.key = nil
	}
	m.generation++
	m.logger.Debug("Vault locked")
}

// IsUnlocked reports whether a key is held.
func (m *Manager) IsUnlocked() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.key != nil
}

// IsInitialized reports whether a salt and verifier exist.
func (m *Manager) IsInitialized() bool {
	if _, err := m.loadSalt(); err != nil {
		return false
	}
	_, err := m.store.Get(keystore.AliasVerifier)
	return err == nil
}

// ChangePIN verifies oldPIN and switches to newPIN. Only the key is
// replaced; data encrypted under the old key must be migrated by the caller
// through PrepareChange.
func (m *Manager) ChangePIN(oldPIN, newPIN string) error {
	change, err := m.PrepareChange(oldPIN, newPIN)
	if err != nil {
		return err
	}
	defer change.Discard()
	return change.Commit()
}

// PendingChange holds both keys of a PIN change until it is committed.
type PendingChange struct {
	m        *Manager
	OldKey   []byte
	NewKey   []byte
	verifier []byte
}

// PrepareChange verifies oldPIN and derives the key for newPIN with the
// existing salt. Nothing is persisted until Commit.
func (m *Manager) PrepareChange(oldPIN, newPIN string) (*PendingChange, error) {
	if err := m.ValidatePIN(newPIN); err != nil {
		return nil, err
	}

	oldKey, ok := m.check(oldPIN)
	if !ok {
		m.observe("failure")
		return nil, models.ErrAuthentication
	}
	m.observe("success")

	rec, err := m.loadSalt()
	if err != nil {
		crypto.Wipe(oldKey)
		return nil, err
	}
	newKey, err := crypto.DeriveKey(newPIN, rec.Salt, rec.Iterations)
	if err != nil {
		crypto.Wipe(oldKey)
		return nil, fmt.Errorf("%w: derive key: %v", models.ErrEncryption, err)
	}

	return &PendingChange{
		m:        m,
		OldKey:   oldKey,
		NewKey:   newKey,
		verifier: crypto.Verifier(newKey),
	}, nil
}

// Commit stores the new verifier and makes the new key current. The
// verifier is a single keystore write, so the switch is atomic.
func (c *PendingChange) Commit() error {
	m := c.m

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.Set(keystore.AliasVerifier, c.verifier, keystore.WhenUnlocked); err != nil {
		return fmt.Errorf("%w: store verifier: %v", models.ErrStorage, err)
	}

	m.setKeyLocked(append([]byte(nil), c.NewKey...))
	m.logger.Info("PIN changed")
	return nil
}

// Discard wipes both keys.
func (c *PendingChange) Discard() {
	crypto.Wipe(c.OldKey)
	crypto.Wipe(c.NewKey)
}

func (m *Manager) setKeyLocked(key []byte) {
	if m.key != nil {
		crypto.Wipe(m.key)
	}
	m.key = key
	m.generation++
}

func (m *Manager) loadSalt() (*saltRecord, error) {
	data, err := m.store.Get(keystore.AliasSalt)
	if errors.Is(err, keystore.ErrNotFound) {
		return nil, models.ErrNotInitialized
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load salt: %v", models.ErrStorage, err)
	}

	var rec saltRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: decode salt record: %v", models.ErrIntegrity, err)
	}
	if len(rec.Salt) < 16 || rec.Iterations <= 0 {
		return nil, fmt.Errorf("%w: invalid salt record", models.ErrIntegrity)
	}
	return &rec, nil
}

func (m *Manager) saveSalt(rec *saltRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode salt record: %w", err)
	}
	if err := m.store.Set(keystore.AliasSalt, data, keystore.AfterFirstUnlock); err != nil {
		return fmt.Errorf("%w: store salt: %v", models.ErrStorage, err)
	}
	return nil
}

func (m *Manager) observe(result string) {
	if m.metrics != nil {
		m.metrics.PINVerifications.WithLabelValues(result).Inc()
	}
}
