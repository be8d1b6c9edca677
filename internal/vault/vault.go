// Package vault wires the key manager, the encrypted store, the blob
// directory and the services on top of them into one owned object.
package vault

import (
	"context"
	"fmt"
	"sync"

	"github.com/TheMichaelB/docvault/internal/config"
	"github.com/TheMichaelB/docvault/internal/crypto"
	"github.com/TheMichaelB/docvault/internal/events"
	"github.com/TheMichaelB/docvault/internal/keys"
	"github.com/TheMichaelB/docvault/internal/keystore"
	"github.com/TheMichaelB/docvault/internal/metrics"
	"github.com/TheMichaelB/docvault/internal/models"
	"github.com/TheMichaelB/docvault/internal/services/chat"
	"github.com/TheMichaelB/docvault/internal/services/documents"
	"github.com/TheMichaelB/docvault/internal/services/notes"
	"github.com/TheMichaelB/docvault/internal/services/search"
	"github.com/TheMichaelB/docvault/internal/services/tags"
	"github.com/TheMichaelB/docvault/internal/storage"
	"github.com/TheMichaelB/docvault/internal/store"
)

// Services are the per-unlock services. They are rebuilt every time the
// vault is unlocked and must not be used after Lock.
type Services struct {
	Documents *documents.Service
	Notes     *notes.Service
	Chat      *chat.Service
	Tags      *tags.Service
	Search    *search.Ranker
}

// Vault owns one vault directory.
type Vault struct {
	cfg     *config.Config
	logger  *events.Logger
	metrics *metrics.Metrics

	keystore keystore.Store
	keys     *keys.Manager
	engine   *crypto.Engine
	blobs    storage.BlobStore
	files    *crypto.FileCipher
	views    *documents.ViewCache

	mu       sync.Mutex
	store    *store.Store
	services *Services
}

// Option customizes a Vault.
type Option func(*Vault)

// WithKeystore replaces the file keystore.
func WithKeystore(ks keystore.Store) Option {
	return func(v *Vault) { v.keystore = ks }
}

// WithBlobStore replaces the local blob directory.
func WithBlobStore(bs storage.BlobStore) Option {
	return func(v *Vault) { v.blobs = bs }
}

// WithMetrics replaces the vault's own metrics registry.
func WithMetrics(m *metrics.Metrics) Option {
	return func(v *Vault) { v.metrics = m }
}

// New prepares the vault rooted at cfg.Storage.DataDir. The vault starts
// locked.
func New(cfg *config.Config, logger *events.Logger, opts ...Option) (*Vault, error) {
	if err := cfg.Validate(); err != nil {
		return nil, &models.ValidationError{Field: "config", Reason: err.Error()}
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrStorage, err)
	}

	v := &Vault{
		cfg:    cfg,
		logger: logger.WithField("component", "vault"),
		engine: crypto.NewEngine(),
	}
	for _, opt := range opts {
		opt(v)
	}

	if v.metrics == nil {
		v.metrics = metrics.New()
	}
	if v.keystore == nil {
		ks, err := keystore.NewFileStore(cfg.Storage.KeystoreFile, logger)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrStorage, err)
		}
		v.keystore = ks
	}
	if v.blobs == nil {
		local, err := storage.NewLocalStore(cfg.Storage.DataDir, logger)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrStorage, err)
		}
		local.SetMaxFileSize(cfg.Storage.MaxFileSize + crypto.Overhead)
		v.blobs = local
	}
	if err := v.blobs.EnsureDir(cfg.Storage.BlobDir); err != nil {
		return nil, fmt.Errorf("%w: create blob directory: %v", models.ErrStorage, err)
	}

	v.keys = keys.NewManager(v.keystore, keys.OptionsFromConfig(cfg.Security), v.metrics, logger)
	v.files = crypto.NewFileCipher(v.engine, v.blobs, cfg.Storage.BlobDir, cfg.Storage.MaxFileSize, logger)
	v.views = documents.NewViewCache(cfg.Documents, v.metrics, logger)

	return v, nil
}

// Config returns the vault configuration.
func (v *Vault) Config() *config.Config {
	return v.cfg
}

// Metrics returns the vault's counters.
func (v *Vault) Metrics() *metrics.Metrics {
	return v.metrics
}

// IsInitialized reports whether a PIN has been set up.
func (v *Vault) IsInitialized() bool {
	return v.keys.IsInitialized()
}

// IsUnlocked reports whether the key is held and the store is open.
func (v *Vault) IsUnlocked() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.store != nil && v.keys.IsUnlocked()
}

// Create sets up a new vault protected by pin and leaves it unlocked.
func (v *Vault) Create(ctx context.Context, pin string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.keys.IsInitialized() {
		return fmt.Errorf("%w: vault already initialized", models.ErrState)
	}
	if err := v.keys.InitializeFromPIN(pin); err != nil {
		return err
	}
	if err := v.openLocked(ctx); err != nil {
		v.keys.Lock()
		return err
	}

	v.logger.Info("Vault created")
	return nil
}

// Unlock verifies pin and opens the store. A wrong PIN returns
// ErrAuthentication and leaves the vault locked.
func (v *Vault) Unlock(ctx context.Context, pin string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.keys.IsInitialized() {
		return models.ErrNotInitialized
	}
	if !v.keys.VerifyPIN(pin) {
		return models.ErrAuthentication
	}
	if v.store != nil {
		return nil
	}
	if err := v.openLocked(ctx); err != nil {
		v.keys.Lock()
		return err
	}

	v.logger.Debug("Vault unlocked")
	return nil
}

func (v *Vault) openLocked(ctx context.Context) error {
	storageKey, err := v.keys.DeriveStorageKey()
	if err != nil {
		return err
	}
	defer crypto.Wipe(storageKey)

	st, err := store.Open(ctx, v.cfg.Storage.DatabaseFile, storageKey, v.logger, v.metrics)
	if err != nil {
		return err
	}

	tagSvc := tags.NewService(st, v.logger)
	noteSvc := notes.NewService(st, tagSvc, v.logger)
	v.store = st
	v.services = &Services{
		Documents: documents.NewService(documents.Deps{
			Store:   st,
			Blobs:   v.blobs,
			Files:   v.files,
			Keys:    v.keys,
			Tags:    tagSvc,
			Metrics: v.metrics,
			Logger:  v.logger,
			Views:   v.views,
		}, v.cfg.Documents, v.cfg.Storage.TempDir),
		Notes:  noteSvc,
		Chat:   chat.NewService(st, noteSvc, v.logger),
		Tags:   tagSvc,
		Search: search.NewRanker(st, v.cfg.Search, v.metrics, v.logger),
	}
	return nil
}

// Services returns the services of the unlocked vault.
func (v *Vault) Services() (*Services, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.services == nil {
		return nil, models.ErrLocked
	}
	return v.services, nil
}

// Lock removes decrypted copies, closes the store and discards the key.
// In-flight crypto operations fail with ErrLocked.
func (v *Vault) Lock() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.lockLocked()
}

func (v *Vault) lockLocked() error {
	v.keys.Lock()

	var err error
	if v.services != nil {
		v.services.Documents.Close()
		v.services = nil
	}
	if v.store != nil {
		err = v.store.Close()
		v.store = nil
	}
	return err
}

// Close locks the vault.
func (v *Vault) Close() error {
	return v.Lock()
}

// Encrypt seals content under the vault key.
func (v *Vault) Encrypt(content []byte) ([]byte, error) {
	var out []byte
	err := v.keys.WithKey(func(key []byte) error {
		var err error
		out, err = v.engine.Encrypt(content, key)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Decrypt opens content sealed by Encrypt.
func (v *Vault) Decrypt(content []byte) ([]byte, error) {
	var out []byte
	err := v.keys.WithKey(func(key []byte) error {
		var err error
		out, err = v.engine.Decrypt(content, key)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Reconcile checks blobs and records against each other. See
// documents.Service.Reconcile.
func (v *Vault) Reconcile(ctx context.Context, removeOrphans bool) (*documents.Report, error) {
	svc, err := v.Services()
	if err != nil {
		return nil, err
	}
	return svc.Documents.Reconcile(ctx, removeOrphans)
}
