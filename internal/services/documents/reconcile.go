package documents

import (
	"context"
	"fmt"
	"strings"

	"github.com/TheMichaelB/docvault/internal/crypto"
	"github.com/TheMichaelB/docvault/internal/events"
	"github.com/TheMichaelB/docvault/internal/models"
	"github.com/TheMichaelB/docvault/internal/store"
)

// Report is the outcome of a reconcile pass.
type Report struct {
	Findings []*models.IntegrityError
	// Repaired counts blobs removed and references stripped.
	Repaired int
}

// Count returns the number of findings of kind.
func (r *Report) Count(kind string) int {
	n := 0
	for _, f := range r.Findings {
		if f.Kind == kind {
			n++
		}
	}
	return n
}

// Reconcile compares the blob directory with the document records and the
// pending-blob journal, checks cross-record references and rebuilds tag
// counters. With removeOrphans set, blobs no record points at are deleted
// and dangling references are stripped. Ingests and deletes of this service
// wait while Reconcile runs. Other processes writing the same vault are not
// seen; the vault assumes one process at a time.
func (s *Service) Reconcile(ctx context.Context, removeOrphans bool) (*Report, error) {
	s.blobMu.Lock()
	defer s.blobMu.Unlock()

	ctx = events.WithOperation(ctx, "reconcile")
	report := &Report{}

	blobs, err := s.blobs.ListDir(s.files.BlobDir())
	if err != nil {
		return nil, fmt.Errorf("list blobs: %w", err)
	}
	onDisk := make(map[string]bool, len(blobs))
	for _, b := range blobs {
		if !b.IsDir && strings.HasSuffix(b.Path, crypto.BlobExtension) {
			onDisk[b.Path] = true
		}
	}

	docs, err := s.query(ctx, store.Query{})
	if err != nil {
		return nil, err
	}
	referenced := make(map[string]bool, len(docs))
	docIDs := make(map[string]bool, len(docs))
	for _, doc := range docs {
		docIDs[doc.ID] = true
		referenced[doc.BlobRef] = true
		if !onDisk[doc.BlobRef] {
			report.add(models.FindingDanglingBlobRef, doc.ID, fmt.Sprintf("blob %s is missing", doc.BlobRef))
		}
	}

	intents, err := s.store.PendingIntents(ctx)
	if err != nil {
		return nil, err
	}
	intentBlobs := make(map[string]bool, len(intents))
	var staleIntents []string
	for _, in := range intents {
		if docIDs[in.DocumentID] {
			staleIntents = append(staleIntents, in.DocumentID)
			continue
		}
		intentBlobs[in.BlobRef] = true
		report.add(models.FindingPendingIntent, in.BlobRef,
			fmt.Sprintf("ingest of %s started %s never committed", in.DocumentID, in.CreatedAt.Format("2006-01-02 15:04:05")))
		if removeOrphans {
			staleIntents = append(staleIntents, in.DocumentID)
		}
	}

	var orphans []string
	for _, b := range blobs {
		if !onDisk[b.Path] || referenced[b.Path] {
			continue
		}
		orphans = append(orphans, b.Path)
		if !intentBlobs[b.Path] {
			report.add(models.FindingOrphanedBlob, b.Path, "no document references this blob")
		}
	}

	if removeOrphans {
		for _, ref := range orphans {
			if err := s.blobs.Delete(ref); err != nil {
				return nil, fmt.Errorf("%w: remove orphaned blob %s: %v", models.ErrStorage, ref, err)
			}
			report.Repaired++
		}
	}

	if err := s.checkReferences(ctx, docIDs, removeOrphans, staleIntents, report); err != nil {
		return nil, err
	}

	tagFindings, err := s.tags.Recount(ctx)
	if err != nil {
		return nil, err
	}
	report.Findings = append(report.Findings, tagFindings...)

	if s.metrics != nil {
		for _, f := range report.Findings {
			s.metrics.IntegrityFindings.WithLabelValues(f.Kind).Inc()
		}
	}

	logger := s.logger.WithFields(map[string]interface{}{
		"findings": len(report.Findings),
		"repaired": report.Repaired,
	})
	if len(report.Findings) > 0 {
		logger.Warn("Reconcile found inconsistencies")
	} else {
		logger.Info("Reconcile clean")
	}
	return report, nil
}

// checkReferences reports note and chat links to records that no longer
// exist. Stale intents are cleared in the same transaction.
func (s *Service) checkReferences(ctx context.Context, docIDs map[string]bool, repair bool, staleIntents []string, report *Report) error {
	return s.store.WithTransaction(ctx, func(tx *store.Tx) error {
		var findings []*models.IntegrityError
		repaired := 0

		noteRecs, err := tx.Query(models.CollectionNotes, store.Query{})
		if err != nil {
			return err
		}
		noteIDs := make(map[string]bool, len(noteRecs))
		for _, r := range noteRecs {
			noteIDs[r.RecordID()] = true
		}

		for _, r := range noteRecs {
			note := r.(*models.Note)
			docs, docGone := keep(note.LinkedDocuments, docIDs)
			notes, noteGone := keep(note.LinkedNotes, noteIDs)
			for _, id := range append(docGone, noteGone...) {
				findings = append(findings, &models.IntegrityError{
					Kind:   models.FindingDanglingReference,
					Ref:    note.ID,
					Detail: fmt.Sprintf("note links to missing record %s", id),
				})
			}
			if repair && len(docGone)+len(noteGone) > 0 {
				note.LinkedDocuments, note.LinkedNotes = docs, notes
				if err := tx.Put(note); err != nil {
					return err
				}
				repaired += len(docGone) + len(noteGone)
			}
		}

		msgRecs, err := tx.Query(models.CollectionChat, store.Query{})
		if err != nil {
			return err
		}
		for _, r := range msgRecs {
			msg := r.(*models.ChatMessage)
			attachments, gone := keep(msg.Attachments, docIDs)
			for _, id := range gone {
				findings = append(findings, &models.IntegrityError{
					Kind:   models.FindingDanglingReference,
					Ref:    msg.ID,
					Detail: fmt.Sprintf("chat message attaches missing document %s", id),
				})
			}
			noteGone := msg.IsNote && !noteIDs[msg.NoteID]
			if noteGone {
				findings = append(findings, &models.IntegrityError{
					Kind:   models.FindingDanglingReference,
					Ref:    msg.ID,
					Detail: fmt.Sprintf("chat message points at missing note %s", msg.NoteID),
				})
			}
			if repair && (len(gone) > 0 || noteGone) {
				msg.Attachments = attachments
				if noteGone {
					msg.IsNote, msg.NoteID = false, ""
					repaired++
				}
				repaired += len(gone)
				if err := tx.Put(msg); err != nil {
					return err
				}
			}
		}

		for _, id := range staleIntents {
			if err := tx.ClearIntent(id); err != nil {
				return err
			}
		}

		report.Findings = append(report.Findings, findings...)
		report.Repaired += repaired
		return nil
	})
}

func (r *Report) add(kind, ref, detail string) {
	r.Findings = append(r.Findings, &models.IntegrityError{Kind: kind, Ref: ref, Detail: detail})
}

// keep splits ids into those present in known and those missing.
func keep(ids []string, known map[string]bool) (present, missing []string) {
	present = make([]string, 0, len(ids))
	for _, id := range ids {
		if known[id] {
			present = append(present, id)
		} else {
			missing = append(missing, id)
		}
	}
	return present, missing
}
