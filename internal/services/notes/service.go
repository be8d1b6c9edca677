// Package notes manages free-form notes and the links between notes and
// documents. Note-to-note links are kept symmetric.
package notes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/TheMichaelB/docvault/internal/events"
	"github.com/TheMichaelB/docvault/internal/models"
	"github.com/TheMichaelB/docvault/internal/services/tags"
	"github.com/TheMichaelB/docvault/internal/store"
)

// Service manages notes.
type Service struct {
	store  *store.Store
	tags   *tags.Service
	logger *events.Logger
	now    func() time.Time
}

// NewService creates a note service.
func NewService(st *store.Store, tagSvc *tags.Service, logger *events.Logger) *Service {
	return &Service{
		store:  st,
		tags:   tagSvc,
		logger: logger.WithField("service", "notes"),
		now:    time.Now,
	}
}

// SetClock replaces the time source.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// CreateRequest holds the fields of a new note.
type CreateRequest struct {
	Title           string
	Content         string
	LinkedDocuments []string
	LinkedNotes     []string
	Tags            []string
	IsFavorite      bool
}

// Create stores a new note and mirrors its note links.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*models.Note, error) {
	var note *models.Note
	err := s.store.WithTransaction(ctx, func(tx *store.Tx) error {
		var err error
		note, err = s.CreateTx(tx, req)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create note: %w", err)
	}

	s.logger.WithField("note_id", note.ID).Debug("Note created")
	return note, nil
}

// CreateTx is Create inside an existing transaction.
func (s *Service) CreateTx(tx *store.Tx, req CreateRequest) (*models.Note, error) {
	now := s.now()
	note := &models.Note{
		ID:              uuid.NewString(),
		Title:           strings.TrimSpace(req.Title),
		Content:         req.Content,
		LinkedDocuments: uniq(req.LinkedDocuments),
		LinkedNotes:     uniq(req.LinkedNotes),
		Tags:            models.NormalizeTags(req.Tags),
		CreatedAt:       now,
		UpdatedAt:       now,
		IsFavorite:      req.IsFavorite,
	}
	if err := note.Validate(); err != nil {
		return nil, err
	}
	if err := requireAll(tx, models.CollectionDocuments, note.LinkedDocuments); err != nil {
		return nil, err
	}
	if err := requireAll(tx, models.CollectionNotes, note.LinkedNotes); err != nil {
		return nil, err
	}

	if err := tx.Put(note); err != nil {
		return nil, err
	}
	if err := s.mirror(tx, note.ID, note.LinkedNotes, nil, now); err != nil {
		return nil, err
	}
	if err := s.tags.Apply(tx, nil, note.Tags, tags.KindNote); err != nil {
		return nil, err
	}
	return note, nil
}

// Patch lists the fields to change. Nil fields are left alone.
type Patch struct {
	// ID must be nil or equal to the note's id.
	ID              *string
	Title           *string
	Content         *string
	LinkedDocuments *[]string
	LinkedNotes     *[]string
	Tags            *[]string
	IsFavorite      *bool
}

// Update merges patch into the note. It returns false when the note does
// not exist.
func (s *Service) Update(ctx context.Context, id string, patch Patch) (bool, error) {
	if patch.ID != nil && *patch.ID != id {
		return false, &models.ValidationError{Field: "id", Reason: "cannot be changed"}
	}

	found := false
	err := s.store.WithTransaction(ctx, func(tx *store.Tx) error {
		note, err := getNote(tx, id)
		if errors.Is(err, models.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true

		now := s.now()
		beforeTags, beforeLinks := note.Tags, note.LinkedNotes

		if patch.Title != nil {
			note.Title = strings.TrimSpace(*patch.Title)
		}
		if patch.Content != nil {
			note.Content = *patch.Content
		}
		if patch.LinkedDocuments != nil {
			note.LinkedDocuments = uniq(*patch.LinkedDocuments)
			if err := requireAll(tx, models.CollectionDocuments, note.LinkedDocuments); err != nil {
				return err
			}
		}
		if patch.LinkedNotes != nil {
			note.LinkedNotes = uniq(*patch.LinkedNotes)
			if err := requireAll(tx, models.CollectionNotes, note.LinkedNotes); err != nil {
				return err
			}
		}
		if patch.Tags != nil {
			note.Tags = models.NormalizeTags(*patch.Tags)
		}
		if patch.IsFavorite != nil {
			note.IsFavorite = *patch.IsFavorite
		}
		note.UpdatedAt = later(now, note.CreatedAt)

		if err := note.Validate(); err != nil {
			return err
		}
		if err := tx.Put(note); err != nil {
			return err
		}
		if err := s.mirror(tx, id, added(beforeLinks, note.LinkedNotes), added(note.LinkedNotes, beforeLinks), now); err != nil {
			return err
		}
		return s.tags.Apply(tx, beforeTags, note.Tags, tags.KindNote)
	})
	if err != nil {
		return false, fmt.Errorf("update note %s: %w", id, err)
	}
	return found, nil
}

// Delete removes a note, its links from other notes and the promotion mark
// of chat messages that pointed at it. It returns false when the note does
// not exist.
func (s *Service) Delete(ctx context.Context, id string) (bool, error) {
	found := false
	err := s.store.WithTransaction(ctx, func(tx *store.Tx) error {
		note, err := getNote(tx, id)
		if errors.Is(err, models.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true

		linked, err := tx.Query(models.CollectionNotes, store.Query{Filters: []store.Filter{store.Eq("linked_notes", id)}})
		if err != nil {
			return err
		}
		peers := make([]string, 0, len(linked))
		for _, r := range linked {
			peers = append(peers, r.RecordID())
		}
		if err := s.mirror(tx, id, nil, uniq(append(peers, note.LinkedNotes...)), s.now()); err != nil {
			return err
		}

		msgs, err := tx.Query(models.CollectionChat, store.Query{Filters: []store.Filter{store.Eq("note_id", id)}})
		if err != nil {
			return err
		}
		for _, r := range msgs {
			msg := r.(*models.ChatMessage)
			msg.IsNote, msg.NoteID = false, ""
			if err := tx.Put(msg); err != nil {
				return err
			}
		}

		if err := s.tags.Apply(tx, note.Tags, nil, tags.KindNote); err != nil {
			return err
		}
		_, err = tx.Delete(models.CollectionNotes, id)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("delete note %s: %w", id, err)
	}

	if found {
		s.logger.WithField("note_id", id).Debug("Note deleted")
	}
	return found, nil
}

// Get returns one note.
func (s *Service) Get(ctx context.Context, id string) (*models.Note, error) {
	rec, err := s.store.Get(ctx, models.CollectionNotes, id)
	if err != nil {
		return nil, fmt.Errorf("get note %s: %w", id, err)
	}
	return rec.(*models.Note), nil
}

// ListOptions narrows List.
type ListOptions struct {
	Tag            string
	FavoritesOnly  bool
	LinkedDocument string
}

// List returns notes most recently updated first.
func (s *Service) List(ctx context.Context, opts ListOptions) ([]*models.Note, error) {
	q := store.Query{Sort: store.Sort{Field: "updated_at", Desc: true}}
	if opts.Tag != "" {
		q.Filters = append(q.Filters, store.Eq("tags", models.NormalizeTagName(opts.Tag)))
	}
	if opts.FavoritesOnly {
		q.Filters = append(q.Filters, store.Eq("is_favorite", true))
	}
	if opts.LinkedDocument != "" {
		q.Filters = append(q.Filters, store.Eq("linked_documents", opts.LinkedDocument))
	}

	recs, err := s.store.Query(ctx, models.CollectionNotes, q)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	out := make([]*models.Note, len(recs))
	for i, r := range recs {
		out[i] = r.(*models.Note)
	}
	return out, nil
}

// Link connects two notes in both directions.
func (s *Service) Link(ctx context.Context, a, b string) error {
	return s.relink(ctx, a, b, true)
}

// Unlink removes the link between two notes in both directions.
func (s *Service) Unlink(ctx context.Context, a, b string) error {
	return s.relink(ctx, a, b, false)
}

func (s *Service) relink(ctx context.Context, a, b string, link bool) error {
	if a == b {
		return &models.ValidationError{Field: "linked_notes", Reason: "a note cannot link to itself"}
	}

	err := s.store.WithTransaction(ctx, func(tx *store.Tx) error {
		if _, err := getNote(tx, a); err != nil {
			return err
		}
		if _, err := getNote(tx, b); err != nil {
			return err
		}
		if link {
			return s.mirror(tx, a, []string{b}, nil, s.now())
		}
		return s.mirror(tx, a, nil, []string{b}, s.now())
	})
	if err != nil {
		verb := "link"
		if !link {
			verb = "unlink"
		}
		return fmt.Errorf("%s notes %s and %s: %w", verb, a, b, err)
	}
	return nil
}

// mirror adds id to the links of every note in add and removes it from
// every note in remove. When id itself still exists, its own links are
// updated to match.
func (s *Service) mirror(tx *store.Tx, id string, add, remove []string, now time.Time) error {
	self, err := getNote(tx, id)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return err
	}
	selfChanged := false

	for _, peerID := range add {
		peer, err := getNote(tx, peerID)
		if err != nil {
			return err
		}
		if !contains(peer.LinkedNotes, id) {
			peer.LinkedNotes = append(peer.LinkedNotes, id)
			peer.UpdatedAt = later(now, peer.CreatedAt)
			if err := tx.Put(peer); err != nil {
				return err
			}
		}
		if self != nil && !contains(self.LinkedNotes, peerID) {
			self.LinkedNotes = append(self.LinkedNotes, peerID)
			selfChanged = true
		}
	}

	for _, peerID := range remove {
		peer, err := getNote(tx, peerID)
		if errors.Is(err, models.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if contains(peer.LinkedNotes, id) {
			peer.LinkedNotes = without(peer.LinkedNotes, id)
			peer.UpdatedAt = later(now, peer.CreatedAt)
			if err := tx.Put(peer); err != nil {
				return err
			}
		}
		if self != nil && contains(self.LinkedNotes, peerID) {
			self.LinkedNotes = without(self.LinkedNotes, peerID)
			selfChanged = true
		}
	}

	if selfChanged {
		self.UpdatedAt = later(now, self.CreatedAt)
		return tx.Put(self)
	}
	return nil
}

func getNote(tx *store.Tx, id string) (*models.Note, error) {
	rec, err := tx.Get(models.CollectionNotes, id)
	if err != nil {
		return nil, err
	}
	return rec.(*models.Note), nil
}

// requireAll fails with a ValidationError naming the first id missing from c.
func requireAll(tx *store.Tx, c models.Collection, ids []string) error {
	for _, id := range ids {
		ok, err := tx.Exists(c, id)
		if err != nil {
			return err
		}
		if !ok {
			return &models.ValidationError{Field: string(c), Reason: fmt.Sprintf("%s does not exist", id)}
		}
	}
	return nil
}

func later(t, floor time.Time) time.Time {
	if t.Before(floor) {
		return floor
	}
	return t
}

// added returns the ids in after that are not in before.
func added(before, after []string) []string {
	var out []string
	for _, id := range after {
		if !contains(before, id) {
			out = append(out, id)
		}
	}
	return out
}

func uniq(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id != "" && !contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}

func contains(list []string, id string) bool {
	for _, item := range list {
		if item == id {
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
