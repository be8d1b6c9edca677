package vault

import (
	"context"
	"fmt"

	"github.com/TheMichaelB/docvault/internal/crypto"
	"github.com/TheMichaelB/docvault/internal/models"
	"github.com/TheMichaelB/docvault/internal/store"
)

// rekeySuffix marks a blob re-encrypted under the new key that has not
// replaced the original yet.
const rekeySuffix = ".rekey"

// ChangePIN verifies oldPIN and moves the vault to newPIN. Every document
// blob is re-encrypted beside the original and the store is rekeyed before
// the new verifier is committed; until then a failure leaves the vault
// readable with oldPIN. The vault must be unlocked.
func (v *Vault) ChangePIN(ctx context.Context, oldPIN, newPIN string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.store == nil {
		return models.ErrLocked
	}

	change, err := v.keys.PrepareChange(oldPIN, newPIN)
	if err != nil {
		return err
	}
	defer change.Discard()

	docs, err := v.store.Query(ctx, models.CollectionDocuments, store.Query{})
	if err != nil {
		return err
	}

	var staged []string
	cleanup := func() {
		for _, ref := range staged {
			if err := v.blobs.Delete(ref + rekeySuffix); err != nil {
				v.logger.WithError(err).WithField("blob", ref).Warn("Failed to remove staged blob")
			}
		}
	}

	for _, rec := range docs {
		ref := rec.(*models.Document).BlobRef
		if err := v.files.ReencryptBlob(ref, ref+rekeySuffix, change.OldKey, change.NewKey); err != nil {
			cleanup()
			return fmt.Errorf("re-encrypt %s: %w", ref, err)
		}
		staged = append(staged, ref)
	}

	newStorageKey, err := crypto.DeriveStorageKey(change.NewKey)
	if err != nil {
		cleanup()
		return err
	}
	defer crypto.Wipe(newStorageKey)

	if err := v.store.Rekey(ctx, newStorageKey); err != nil {
		cleanup()
		return err
	}

	if err := change.Commit(); err != nil {
		cleanup()
		if rollback := v.restoreStoreKey(ctx, change.OldKey); rollback != nil {
			v.logger.WithError(rollback).Error("Failed to restore store key after PIN change failure")
		}
		return err
	}

	for _, ref := range staged {
		if err := v.blobs.Move(ref+rekeySuffix, ref); err != nil {
			return &models.IntegrityError{
				Kind:   models.FindingDanglingBlobRef,
				Ref:    ref,
				Detail: fmt.Sprintf("re-encrypted blob left at %s: %v", ref+rekeySuffix, err),
			}
		}
	}

	v.logger.WithField("documents", len(staged)).Info("PIN changed")
	return nil
}

func (v *Vault) restoreStoreKey(ctx context.Context, oldKey []byte) error {
	storageKey, err := crypto.DeriveStorageKey(oldKey)
	if err != nil {
		return err
	}
	defer crypto.Wipe(storageKey)
	return v.store.Rekey(ctx, storageKey)
}
