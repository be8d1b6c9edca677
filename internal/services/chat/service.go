// Package chat stores short annotations that can be promoted to notes.
package chat

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/TheMichaelB/docvault/internal/events"
	"github.com/TheMichaelB/docvault/internal/models"
	"github.com/TheMichaelB/docvault/internal/services/notes"
	"github.com/TheMichaelB/docvault/internal/store"
)

// TitleRunes is how much of a message becomes the title of its note.
const TitleRunes = 50

// Service manages chat messages.
type Service struct {
	store  *store.Store
	notes  *notes.Service
	logger *events.Logger
	now    func() time.Time
}

// NewService creates a chat service. notes is used to promote messages.
func NewService(st *store.Store, noteSvc *notes.Service, logger *events.Logger) *Service {
	return &Service{
		store:  st,
		notes:  noteSvc,
		logger: logger.WithField("service", "chat"),
		now:    time.Now,
	}
}

// SetClock replaces the time source.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Post stores a message. Every attachment must be an existing document.
func (s *Service) Post(ctx context.Context, content string, attachments []string) (*models.ChatMessage, error) {
	msg := &models.ChatMessage{
		ID:          uuid.NewString(),
		Content:     strings.TrimSpace(content),
		Attachments: dedupe(attachments),
		Timestamp:   s.now(),
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}

	err := s.store.WithTransaction(ctx, func(tx *store.Tx) error {
		for _, id := range msg.Attachments {
			ok, err := tx.Exists(models.CollectionDocuments, id)
			if err != nil {
				return err
			}
			if !ok {
				return &models.ValidationError{Field: "attachments", Reason: fmt.Sprintf("document %s does not exist", id)}
			}
		}
		return tx.Put(msg)
	})
	if err != nil {
		return nil, fmt.Errorf("post message: %w", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"message_id":  msg.ID,
		"attachments": len(msg.Attachments),
	}).Debug("Message posted")
	return msg, nil
}

// Get returns one message.
func (s *Service) Get(ctx context.Context, id string) (*models.ChatMessage, error) {
	rec, err := s.store.Get(ctx, models.CollectionChat, id)
	if err != nil {
		return nil, fmt.Errorf("get message %s: %w", id, err)
	}
	return rec.(*models.ChatMessage), nil
}

// List returns messages newest first, ties by id. A positive limit caps
// the result.
func (s *Service) List(ctx context.Context, limit int) ([]*models.ChatMessage, error) {
	recs, err := s.store.Query(ctx, models.CollectionChat, store.Query{
		Sort:  store.Sort{Field: "timestamp", Desc: true},
		Limit: limit,
	})
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	out := make([]*models.ChatMessage, len(recs))
	for i, r := range recs {
		out[i] = r.(*models.ChatMessage)
	}
	return out, nil
}

// ConvertToNote creates a note from the message and marks the message as
// promoted, in one transaction. An empty title uses the start of the
// message. Attachments become the note's linked documents.
func (s *Service) ConvertToNote(ctx context.Context, id, title string) (*models.Note, error) {
	var note *models.Note
	err := s.store.WithTransaction(ctx, func(tx *store.Tx) error {
		rec, err := tx.Get(models.CollectionChat, id)
		if err != nil {
			return err
		}
		msg := rec.(*models.ChatMessage)
		if msg.IsNote {
			return &models.ValidationError{Field: "message", Reason: fmt.Sprintf("already converted to note %s", msg.NoteID)}
		}

		if strings.TrimSpace(title) == "" {
			title = Title(msg.Content)
		}
		note, err = s.notes.CreateTx(tx, notes.CreateRequest{
			Title:           title,
			Content:         msg.Content,
			LinkedDocuments: msg.Attachments,
		})
		if err != nil {
			return err
		}

		msg.IsNote, msg.NoteID = true, note.ID
		return tx.Put(msg)
	})
	if err != nil {
		return nil, fmt.Errorf("convert message %s: %w", id, err)
	}

	s.logger.WithFields(map[string]interface{}{
		"message_id": id,
		"note_id":    note.ID,
	}).Info("Message converted to note")
	return note, nil
}

// Delete removes a message. It returns false when the message does not
// exist. A note created from the message is kept.
func (s *Service) Delete(ctx context.Context, id string) (bool, error) {
	var deleted bool
	err := s.store.WithTransaction(ctx, func(tx *store.Tx) error {
		var err error
		deleted, err = tx.Delete(models.CollectionChat, id)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("delete message %s: %w", id, err)
	}
	return deleted, nil
}

// Title is the first 50 runes of content with whitespace collapsed.
func Title(content string) string {
	t := strings.Join(strings.Fields(content), " ")
	if utf8.RuneCountInString(t) > TitleRunes {
		t = string([]rune(t)[:TitleRunes])
	}
	return t
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
