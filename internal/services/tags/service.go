package tags

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"

	"github.com/google/uuid"

	"github.com/TheMichaelB/docvault/internal/events"
	"github.com/TheMichaelB/docvault/internal/models"
	"github.com/TheMichaelB/docvault/internal/store"
)

// Kind selects which counter a tag change affects.
type Kind int

const (
	KindDocument Kind = iota
	KindNote
)

var colorPattern = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

// Service manages tags and their usage counters.
type Service struct {
	store  *store.Store
	logger *events.Logger
}

// NewService creates a tag service.
func NewService(st *store.Store, logger *events.Logger) *Service {
	return &Service{
		store:  st,
		logger: logger.WithField("service", "tags"),
	}
}

// List returns every tag sorted by name.
func (s *Service) List(ctx context.Context) ([]*models.Tag, error) {
	recs, err := s.store.Query(ctx, models.CollectionTags, store.Query{Sort: store.Sort{Field: "name"}})
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}

	out := make([]*models.Tag, len(recs))
	for i, r := range recs {
		out[i] = r.(*models.Tag)
	}
	return out, nil
}

// Get returns a tag by name.
func (s *Service) Get(ctx context.Context, name string) (*models.Tag, error) {
	return s.store.TagByName(ctx, name)
}

// SetColor changes a tag's colour. The colour must be #RRGGBB.
func (s *Service) SetColor(ctx context.Context, name, color string) error {
	if !colorPattern.MatchString(color) {
		return &models.ValidationError{Field: "color", Reason: fmt.Sprintf("%q is not #RRGGBB", color)}
	}

	return s.store.WithTransaction(ctx, func(tx *store.Tx) error {
		tag, err := tx.TagByName(name)
		if err != nil {
			return err
		}
		tag.Color = color
		return tx.Put(tag)
	})
}

// Apply adjusts counters for a record whose tags changed from before to
// after. Unknown tags are created with the next palette colour. It must run
// inside the transaction that writes the record.
func (s *Service) Apply(tx *store.Tx, before, after []string, kind Kind) error {
	before, after = models.NormalizeTags(before), models.NormalizeTags(after)

	for _, name := range diff(before, after) {
		if err := s.adjust(tx, name, kind, -1); err != nil {
			return err
		}
	}
	for _, name := range diff(after, before) {
		if err := s.adjust(tx, name, kind, +1); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) adjust(tx *store.Tx, name string, kind Kind, delta int) error {
	tag, err := tx.TagByName(name)
	if errors.Is(err, models.ErrNotFound) {
		if delta < 0 {
			return nil
		}
		tag, err = s.create(tx, name)
	}
	if err != nil {
		return err
	}

	switch kind {
	case KindDocument:
		tag.DocumentCount = max(tag.DocumentCount+delta, 0)
	case KindNote:
		tag.NoteCount = max(tag.NoteCount+delta, 0)
	}
	return tx.Put(tag)
}

func (s *Service) create(tx *store.Tx, name string) (*models.Tag, error) {
	existing, err := tx.Query(models.CollectionTags, store.Query{})
	if err != nil {
		return nil, err
	}

	tag := &models.Tag{
		ID:    uuid.NewString(),
		Name:  name,
		Color: models.TagColors[len(existing)%len(models.TagColors)],
	}
	s.logger.WithField("tag", name).Debug("Creating tag")
	return tag, nil
}

// Recount rebuilds every counter from the documents and notes. It returns a
// finding for each counter that was wrong.
func (s *Service) Recount(ctx context.Context) ([]*models.IntegrityError, error) {
	var findings []*models.IntegrityError

	err := s.store.WithTransaction(ctx, func(tx *store.Tx) error {
		findings = nil

		docCounts, noteCounts := map[string]int{}, map[string]int{}
		docs, err := tx.Query(models.CollectionDocuments, store.Query{})
		if err != nil {
			return err
		}
		for _, r := range docs {
			for _, name := range models.NormalizeTags(r.(*models.Document).Tags) {
				docCounts[name]++
			}
		}
		notes, err := tx.Query(models.CollectionNotes, store.Query{})
		if err != nil {
			return err
		}
		for _, r := range notes {
			for _, name := range models.NormalizeTags(r.(*models.Note).Tags) {
				noteCounts[name]++
			}
		}

		names := map[string]bool{}
		for n := range docCounts {
			names[n] = true
		}
		for n := range noteCounts {
			names[n] = true
		}

		tags, err := tx.Query(models.CollectionTags, store.Query{Sort: store.Sort{Field: "name"}})
		if err != nil {
			return err
		}
		for _, r := range tags {
			tag := r.(*models.Tag)
			delete(names, tag.Name)

			wantDocs, wantNotes := docCounts[tag.Name], noteCounts[tag.Name]
			if tag.DocumentCount == wantDocs && tag.NoteCount == wantNotes {
				continue
			}
			findings = append(findings, &models.IntegrityError{
				Kind:   models.FindingTagCounter,
				Ref:    tag.Name,
				Detail: fmt.Sprintf("documents %d->%d, notes %d->%d", tag.DocumentCount, wantDocs, tag.NoteCount, wantNotes),
			})
			tag.DocumentCount, tag.NoteCount = wantDocs, wantNotes
			if err := tx.Put(tag); err != nil {
				return err
			}
		}

		missing := make([]string, 0, len(names))
		for n := range names {
			missing = append(missing, n)
		}
		sort.Strings(missing)
		for _, name := range missing {
			tag, err := s.create(tx, name)
			if err != nil {
				return err
			}
			tag.DocumentCount, tag.NoteCount = docCounts[name], noteCounts[name]
			if err := tx.Put(tag); err != nil {
				return err
			}
			findings = append(findings, &models.IntegrityError{
				Kind:   models.FindingTagCounter,
				Ref:    name,
				Detail: "tag record missing",
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("recount tags: %w", err)
	}

	if len(findings) > 0 {
		s.logger.WithField("fixed", len(findings)).Warn("Tag counters corrected")
	}
	return findings, nil
}

// diff returns the elements of a that are not in b, in a's order.
func diff(a, b []string) []string {
	in := make(map[string]bool, len(b))
	for _, x := range b {
		in[x] = true
	}
	var out []string
	for _, x := range a {
		if !in[x] {
			out = append(out, x)
		}
	}
	return out
}
