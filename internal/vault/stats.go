package vault

import (
	"context"
	"strings"

	"github.com/TheMichaelB/docvault/internal/crypto"
	"github.com/TheMichaelB/docvault/internal/models"
)

// Stats summarizes an unlocked vault.
type Stats struct {
	Documents int   `json:"documents"`
	Notes     int   `json:"notes"`
	Chat      int   `json:"chat_messages"`
	Tags      int   `json:"tags"`
	Blobs     int   `json:"blobs"`
	BlobBytes int64 `json:"blob_bytes"`
	OpenViews int   `json:"open_views"`

	Counters map[string]float64 `json:"counters,omitempty"`
}

// Stats counts records and blobs and snapshots the vault counters.
func (v *Vault) Stats(ctx context.Context) (*Stats, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.store == nil {
		return nil, models.ErrLocked
	}

	stats := &Stats{OpenViews: v.services.Documents.OpenViews()}
	counts := map[models.Collection]*int{
		models.CollectionDocuments: &stats.Documents,
		models.CollectionNotes:     &stats.Notes,
		models.CollectionChat:      &stats.Chat,
		models.CollectionTags:      &stats.Tags,
	}
	for c, dst := range counts {
		n, err := v.store.Count(ctx, c)
		if err != nil {
			return nil, err
		}
		*dst = n
	}

	blobs, err := v.blobs.ListDir(v.files.BlobDir())
	if err != nil {
		return nil, err
	}
	for _, b := range blobs {
		if b.IsDir || !strings.HasSuffix(b.Path, crypto.BlobExtension) {
			continue
		}
		stats.Blobs++
		stats.BlobBytes += b.Size
	}

	counters, err := v.metrics.Snapshot()
	if err != nil {
		v.logger.WithError(err).Warn("Failed to gather metrics")
	}
	stats.Counters = counters

	return stats, nil
}
