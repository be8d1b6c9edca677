// Package documents runs the document lifecycle: ingest, update, delete,
// decrypted viewing and consistency checks between blobs and records.
package documents

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/TheMichaelB/docvault/internal/config"
	"github.com/TheMichaelB/docvault/internal/crypto"
	"github.com/TheMichaelB/docvault/internal/events"
	"github.com/TheMichaelB/docvault/internal/extract"
	"github.com/TheMichaelB/docvault/internal/metrics"
	"github.com/TheMichaelB/docvault/internal/models"
	"github.com/TheMichaelB/docvault/internal/services/tags"
	"github.com/TheMichaelB/docvault/internal/storage"
	"github.com/TheMichaelB/docvault/internal/store"
)

// KeyProvider lends the master key for the duration of fn.
type KeyProvider interface {
	WithKey(fn func(key []byte) error) error
}

// Deps are the collaborators of the document service.
type Deps struct {
	Store     *store.Store
	Blobs     storage.BlobStore
	Files     *crypto.FileCipher
	Keys      KeyProvider
	Extractor extract.Extractor
	Tags      *tags.Service
	Metrics   *metrics.Metrics
	Logger    *events.Logger
	// Views tracks decrypted copies. Nil builds a cache for this service.
	Views *ViewCache
}

// Service manages documents.
type Service struct {
	store     *store.Store
	blobs     storage.BlobStore
	files     *crypto.FileCipher
	keys      KeyProvider
	extractor extract.Extractor
	tags      *tags.Service
	metrics   *metrics.Metrics
	logger    *events.Logger

	cfg     config.DocumentsConfig
	tempDir string
	views   *ViewCache
	now     func() time.Time

	// blobMu is held shared by ingests and deletes and exclusively by
	// Reconcile, so a blob is never judged while its record is in flight.
	blobMu sync.RWMutex
}

// NewService creates a document service. Decrypted copies are written to
// tempDir.
func NewService(deps Deps, cfg config.DocumentsConfig, tempDir string) *Service {
	logger := deps.Logger.WithField("service", "documents")
	if deps.Extractor == nil {
		deps.Extractor = extract.NewRegexExtractor()
	}
	if deps.Views == nil {
		deps.Views = NewViewCache(cfg, deps.Metrics, logger)
	}

	return &Service{
		store:     deps.Store,
		blobs:     deps.Blobs,
		files:     deps.Files,
		keys:      deps.Keys,
		extractor: deps.Extractor,
		tags:      deps.Tags,
		metrics:   deps.Metrics,
		logger:    logger,
		cfg:       cfg,
		tempDir:   tempDir,
		views:     deps.Views,
		now:       time.Now,
	}
}

// SetClock replaces the time source.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// CreateRequest describes a file to ingest.
type CreateRequest struct {
	FilePath string
	Title    string
	// RequestedType is used when no type rule matches the text. Empty means
	// OTHER.
	RequestedType models.DocumentType
	// RecognizedText is the OCR output for the file, if any.
	RecognizedText string
	// RecognizedPages holds per-page OCR output of a multi-page scan. The
	// pages are indexed after RecognizedText.
	RecognizedPages []string
	Tags           []string
}

// ingest tracks one document through the stage machine.
type ingest struct {
	id      string
	stage   models.Stage
	blobRef string
}

func (in *ingest) advance(to models.Stage) {
	if !models.CanTransition(in.stage, to) {
		panic(fmt.Sprintf("invalid ingest transition %s -> %s", in.stage, to))
	}
	in.stage = to
}

// CreateDocument encrypts the file, derives suggestions from the recognized
// text and stores the record. A failure after the blob is written returns a
// PipelineError naming the orphaned blob; the blob is left for Reconcile.
func (s *Service) CreateDocument(ctx context.Context, req CreateRequest) (*models.Document, error) {
	s.blobMu.RLock()
	defer s.blobMu.RUnlock()

	in := &ingest{id: uuid.NewString(), stage: models.StageCapturing}
	ctx = events.WithOperation(events.WithDocumentID(events.WithLogger(ctx, s.logger), in.id), "ingest")
	logger := events.FromContext(ctx)

	info, docType, err := s.validate(req)
	if err != nil {
		s.failed(in)
		return nil, err
	}
	mimeType := models.DetectMimeType(req.FilePath)

	in.advance(models.StageEncrypting)
	err = s.keys.WithKey(func(key []byte) error {
		ref, err := s.files.EncryptFile(req.FilePath, in.id, key)
		in.blobRef = ref
		return err
	})
	if err != nil {
		return nil, s.fail(in, err)
	}

	in.advance(models.StageIndexing)
	if err := s.store.RecordIntent(ctx, in.id, in.blobRef); err != nil {
		return nil, s.fail(in, err)
	}

	text := recognizedText(req)
	entities := s.extractor.Extract(text)
	typeSuggestion := SuggestType(text)
	expiry := SuggestExpiry(entities)
	suggestedTags := SuggestTags(text)

	if typeSuggestion != nil {
		docType = typeSuggestion.Type
	}

	now := s.now()
	doc := &models.Document{
		ID:             in.id,
		Title:          title(req),
		Type:           docType,
		BlobRef:        in.blobRef,
		PlainTextIndex: text,
		Tags:           models.NormalizeTags(append(append([]string{}, req.Tags...), suggestedTags...)),
		Metadata: models.DocumentMetadata{
			SchemaVersion:     models.MetadataSchemaVersion,
			FileSize:          info.Size(),
			MimeType:          mimeType,
			OriginalName:      filepath.Base(req.FilePath),
			ExtractedEntities: entities,
			SuggestedType:     typeSuggestion,
			SuggestedExpiry:   expiry,
			SuggestedTags:     suggestedTags,
			Summary:           Summarize(text),
		},
		CreatedAt:  now,
		UpdatedAt:  now,
		ExpiryDate: expiryTime(expiry),
	}
	if e, ok := extract.First(entities, models.EntityNumber); ok {
		doc.Metadata.DocumentNumber = e.Value
	}
	if e, ok := extract.First(entities, models.EntityAmount); ok {
		doc.Metadata.Amount, doc.Metadata.Currency = splitAmount(e.Value)
	}

	err = s.store.WithTransaction(ctx, func(tx *store.Tx) error {
		if err := doc.Validate(); err != nil {
			return err
		}
		if err := tx.Put(doc); err != nil {
			return err
		}
		if err := s.tags.Apply(tx, nil, doc.Tags, tags.KindDocument); err != nil {
			return err
		}
		return tx.ClearIntent(doc.ID)
	})
	if err != nil {
		return nil, s.fail(in, err)
	}

	in.advance(models.StagePersisted)
	if s.metrics != nil {
		s.metrics.DocumentsIngested.WithLabelValues("success").Inc()
	}
	logger.WithFields(map[string]interface{}{
		"type":     doc.Type,
		"size":     doc.Metadata.FileSize,
		"entities": len(entities),
		"tags":     len(doc.Tags),
	}).Info("Document stored")

	return doc, nil
}

// recognizedText joins the OCR output of every non-empty page.
func recognizedText(req CreateRequest) string {
	var pages []string
	for _, p := range append([]string{req.RecognizedText}, req.RecognizedPages...) {
		if p = strings.TrimSpace(p); p != "" {
			pages = append(pages, p)
		}
	}
	return extract.JoinPages(pages)
}

func (s *Service) validate(req CreateRequest) (os.FileInfo, models.DocumentType, error) {
	docType := models.TypeOther
	if req.RequestedType != "" {
		t, err := models.ParseDocumentType(string(req.RequestedType))
		if err != nil {
			return nil, "", err
		}
		docType = t
	}

	info, err := os.Stat(req.FilePath)
	if err != nil {
		return nil, "", &models.ValidationError{Field: "file", Reason: err.Error()}
	}
	if info.IsDir() {
		return nil, "", &models.ValidationError{Field: "file", Reason: "is a directory"}
	}
	if !models.IsSupportedFile(req.FilePath) {
		return nil, "", &models.ValidationError{
			Field:  "file",
			Reason: fmt.Sprintf("unsupported file type %q (supported: %s)", filepath.Ext(req.FilePath), strings.Join(models.SupportedExtensions(), ", ")),
		}
	}
	if err := s.files.CheckSize(info.Size()); err != nil {
		return nil, "", err
	}
	return info, docType, nil
}

func title(req CreateRequest) string {
	if t := strings.TrimSpace(req.Title); t != "" {
		return t
	}
	base := filepath.Base(req.FilePath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// fail moves the ingest to Failed and wraps err with the stage it failed in.
func (s *Service) fail(in *ingest, err error) error {
	stage := in.stage
	s.failed(in)

	perr := &models.PipelineError{Stage: stage, DocumentID: in.id, OrphanedBlob: in.blobRef, Err: err}
	logger := s.logger.WithError(err).WithFields(map[string]interface{}{
		"document_id": in.id,
		"stage":       string(stage),
	})
	if in.blobRef != "" {
		logger.WithField("blob", in.blobRef).Warn("Ingest failed, blob left for reconcile")
	} else {
		logger.Warn("Ingest failed")
	}
	return perr
}

func (s *Service) failed(in *ingest) {
	stage := in.stage
	in.advance(models.StageFailed)
	if s.metrics != nil {
		s.metrics.DocumentsIngested.WithLabelValues("failure").Inc()
		s.metrics.IngestFailures.WithLabelValues(string(stage)).Inc()
	}
}

// DocumentPatch lists the fields to change. Nil fields are left alone.
type DocumentPatch struct {
	// ID must be nil or equal to the document's id.
	ID             *string
	Title          *string
	Type           *models.DocumentType
	PlainTextIndex *string
	Tags           *[]string
	ExpiryDate     *time.Time
	ClearExpiry    bool
	IsFavorite     *bool
	IsArchived     *bool
}

// UpdateDocument merges patch into the document. It returns false when the
// document does not exist.
func (s *Service) UpdateDocument(ctx context.Context, id string, patch DocumentPatch) (bool, error) {
	if patch.ID != nil && *patch.ID != id {
		return false, &models.ValidationError{Field: "id", Reason: "cannot be changed"}
	}
	ctx = events.WithOperation(events.WithDocumentID(ctx, id), "update")
	if patch.Type != nil && !patch.Type.Valid() {
		return false, &models.ValidationError{Field: "type", Reason: fmt.Sprintf("unknown document type %q", *patch.Type)}
	}

	found := false
	err := s.store.WithTransaction(ctx, func(tx *store.Tx) error {
		rec, err := tx.Get(models.CollectionDocuments, id)
		if errors.Is(err, models.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true

		doc := rec.(*models.Document)
		before := doc.Tags

		if patch.Title != nil {
			doc.Title = strings.TrimSpace(*patch.Title)
		}
		if patch.Type != nil {
			doc.Type = *patch.Type
		}
		if patch.PlainTextIndex != nil {
			doc.PlainTextIndex = *patch.PlainTextIndex
		}
		if patch.Tags != nil {
			doc.Tags = models.NormalizeTags(*patch.Tags)
		}
		if patch.ClearExpiry {
			doc.ExpiryDate = nil
		} else if patch.ExpiryDate != nil {
			expiry := *patch.ExpiryDate
			doc.ExpiryDate = &expiry
		}
		if patch.IsFavorite != nil {
			doc.IsFavorite = *patch.IsFavorite
		}
		if patch.IsArchived != nil {
			doc.IsArchived = *patch.IsArchived
		}
		doc.UpdatedAt = s.now()
		if doc.UpdatedAt.Before(doc.CreatedAt) {
			doc.UpdatedAt = doc.CreatedAt
		}

		if err := doc.Validate(); err != nil {
			return err
		}
		if err := tx.Put(doc); err != nil {
			return err
		}
		return s.tags.Apply(tx, before, doc.Tags, tags.KindDocument)
	})
	if err != nil {
		return false, fmt.Errorf("update document %s: %w", id, err)
	}

	if found {
		s.logger.WithField("document_id", id).Debug("Document updated")
	}
	return found, nil
}

// DeleteDocument removes the record, its references from notes and chat
// messages, and then the blob. It returns false when the document does not
// exist. If the blob cannot be removed after the record is gone the error is
// a PartialDeleteError.
func (s *Service) DeleteDocument(ctx context.Context, id string) (bool, error) {
	s.blobMu.RLock()
	defer s.blobMu.RUnlock()

	ctx = events.WithOperation(events.WithDocumentID(ctx, id), "delete")
	var doc *models.Document
	err := s.store.WithTransaction(ctx, func(tx *store.Tx) error {
		rec, err := tx.Get(models.CollectionDocuments, id)
		if errors.Is(err, models.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		doc = rec.(*models.Document)

		if err := s.unlinkDocument(tx, id); err != nil {
			return err
		}
		if err := s.tags.Apply(tx, doc.Tags, nil, tags.KindDocument); err != nil {
			return err
		}
		_, err = tx.Delete(models.CollectionDocuments, id)
		return err
	})
	if err != nil {
		s.observeDelete("failure")
		return false, fmt.Errorf("delete document %s: %w", id, err)
	}
	if doc == nil {
		return false, nil
	}

	s.views.remove(id)

	if err := s.blobs.Delete(doc.BlobRef); err != nil {
		s.observeDelete("partial")
		s.logger.WithError(err).WithFields(map[string]interface{}{
			"document_id": id,
			"blob":        doc.BlobRef,
		}).Error("Record deleted but blob remains")
		return true, &models.PartialDeleteError{
			DocumentID:    id,
			RecordDeleted: true,
			BlobDeleted:   false,
			Err:           fmt.Errorf("%w: delete blob %s: %v", models.ErrStorage, doc.BlobRef, err),
		}
	}

	s.observeDelete("success")
	s.logger.WithField("document_id", id).Info("Document deleted")
	return true, nil
}

// unlinkDocument strips id from every note and chat message that references
// it.
func (s *Service) unlinkDocument(tx *store.Tx, id string) error {
	now := s.now()

	notes, err := tx.Query(models.CollectionNotes, store.Query{Filters: []store.Filter{store.Eq("linked_documents", id)}})
	if err != nil {
		return err
	}
	for _, r := range notes {
		note := r.(*models.Note)
		note.LinkedDocuments = without(note.LinkedDocuments, id)
		if now.After(note.UpdatedAt) {
			note.UpdatedAt = now
		}
		if err := tx.Put(note); err != nil {
			return err
		}
	}

	msgs, err := tx.Query(models.CollectionChat, store.Query{Filters: []store.Filter{store.Eq("attachments", id)}})
	if err != nil {
		return err
	}
	for _, r := range msgs {
		msg := r.(*models.ChatMessage)
		msg.Attachments = without(msg.Attachments, id)
		if err := tx.Put(msg); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) observeDelete(result string) {
	if s.metrics != nil {
		s.metrics.DocumentsDeleted.WithLabelValues(result).Inc()
	}
}

// DecryptForViewing writes a plaintext copy of the document to the temp
// directory and returns its path. The copy is removed when it expires, when
// too many copies are open, or on Close.
func (s *Service) DecryptForViewing(ctx context.Context, doc *models.Document) (string, error) {
	if doc == nil || doc.ID == "" {
		return "", &models.ValidationError{Field: "document", Reason: "is required"}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	dest := filepath.Join(s.tempDir, doc.ID+"_temp"+viewExtension(doc))
	err := s.keys.WithKey(func(key []byte) error {
		return s.files.DecryptFile(doc.BlobRef, key, dest)
	})
	if err != nil {
		if errors.Is(err, models.ErrLocked) {
			os.Remove(dest)
		}
		var derr *models.DecryptError
		if errors.As(err, &derr) && s.metrics != nil {
			s.metrics.DecryptFailures.WithLabelValues(derr.Reason).Inc()
		}
		s.logger.WithError(err).WithField("document_id", doc.ID).Warn("Decrypt for viewing failed")
		return "", err
	}

	s.views.add(doc.ID, dest)
	s.logger.WithField("document_id", doc.ID).Debug("Document decrypted for viewing")
	return dest, nil
}

// OpenView returns the path of a live decrypted copy, if any.
func (s *Service) OpenView(id string) (string, bool) {
	return s.views.get(id)
}

// OpenViews reports how many decrypted copies are on disk.
func (s *Service) OpenViews() int {
	return s.views.len()
}

// CloseView removes the decrypted copy of a document.
func (s *Service) CloseView(id string) {
	s.views.remove(id)
}

// Close removes every decrypted copy.
func (s *Service) Close() {
	s.views.Purge()
}

func viewExtension(doc *models.Document) string {
	if ext := strings.ToLower(filepath.Ext(doc.Metadata.OriginalName)); ext != "" {
		return ext
	}
	switch doc.Metadata.MimeType {
	case "application/pdf":
		return ".pdf"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/heic":
		return ".heic"
	default:
		return ".jpg"
	}
}

// GetDocument returns one document.
func (s *Service) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	rec, err := s.store.Get(ctx, models.CollectionDocuments, id)
	if err != nil {
		return nil, fmt.Errorf("get document %s: %w", id, err)
	}
	return rec.(*models.Document), nil
}

// ListOptions narrows ListDocuments.
type ListOptions struct {
	IncludeArchived bool
	FavoritesOnly   bool
	Type            models.DocumentType
	Tag             string
}

// ListDocuments returns documents newest first. Archived documents are
// skipped unless asked for.
func (s *Service) ListDocuments(ctx context.Context, opts ListOptions) ([]*models.Document, error) {
	q := store.Query{Sort: store.Sort{Field: "created_at", Desc: true}}
	if !opts.IncludeArchived {
		q.Filters = append(q.Filters, store.Eq("is_archived", false))
	}
	if opts.FavoritesOnly {
		q.Filters = append(q.Filters, store.Eq("is_favorite", true))
	}
	if opts.Type != "" {
		q.Filters = append(q.Filters, store.Eq("type", string(opts.Type)))
	}
	if opts.Tag != "" {
		q.Filters = append(q.Filters, store.Eq("tags", models.NormalizeTagName(opts.Tag)))
	}

	return s.query(ctx, q)
}

// SearchDocumentsLocal is a case-insensitive substring match over title,
// text and tags of non-archived documents, newest first.
func (s *Service) SearchDocumentsLocal(ctx context.Context, query string) ([]*models.Document, error) {
	docs, err := s.ListDocuments(ctx, ListOptions{})
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" {
		return docs, nil
	}

	var out []*models.Document
	for _, doc := range docs {
		if strings.Contains(strings.ToLower(doc.Title), needle) ||
			strings.Contains(strings.ToLower(doc.PlainTextIndex), needle) ||
			anyContains(doc.Tags, needle) {
			out = append(out, doc)
		}
	}
	return out, nil
}

// ExpiringSoon returns non-archived documents that expire between now and
// now+within, soonest first.
func (s *Service) ExpiringSoon(ctx context.Context, within time.Duration) ([]*models.Document, error) {
	if within <= 0 {
		within = time.Duration(s.cfg.ExpiryWarningDays) * 24 * time.Hour
	}
	now := s.now()
	return s.query(ctx, store.Query{
		Filters: []store.Filter{
			store.Eq("is_archived", false),
			store.Range("expiry_date", now, now.Add(within)),
		},
		Sort: store.Sort{Field: "expiry_date"},
	})
}

func (s *Service) query(ctx context.Context, q store.Query) ([]*models.Document, error) {
	recs, err := s.store.Query(ctx, models.CollectionDocuments, q)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	docs := make([]*models.Document, len(recs))
	for i, r := range recs {
		docs[i] = r.(*models.Document)
	}
	return docs, nil
}

func anyContains(list []string, needle string) bool {
	for _, item := range list {
		if strings.Contains(strings.ToLower(item), needle) {
			return true
		}
	}
	return false
}

func without(list []string, id string) []string {
	out := make([]string, 0, len(list))
	for _, item := range list {
		if item != id {
			out = append(out, item)
		}
	}
	return out
}
