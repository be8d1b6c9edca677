package models

import (
	"strings"
	"time"
)

// Note is a free-form text record with links to documents and other notes.
type Note struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Content         string    `json:"content"`
	LinkedDocuments []string  `json:"linked_documents"`
	LinkedNotes     []string  `json:"linked_notes"`
	Tags            []string  `json:"tags"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	IsFavorite      bool      `json:"is_favorite"`
}

// Validate checks the note record.
func (n *Note) Validate() error {
	if strings.TrimSpace(n.ID) == "" {
		return &ValidationError{Field: "id", Reason: "is required"}
	}
	if strings.TrimSpace(n.Title) == "" {
		return &ValidationError{Field: "title", Reason: "is required"}
	}
	for _, id := range n.LinkedNotes {
		if id == n.ID {
			return &ValidationError{Field: "linked_notes", Reason: "a note cannot link to itself"}
		}
	}
	return nil
}

// RecordID implements Record.
func (n *Note) RecordID() string { return n.ID }

// FieldValue implements Record.
func (n *Note) FieldValue(name string) (any, bool) {
	switch name {
	case "id":
		return n.ID, true
	case "title":
		return n.Title, true
	case "content", "text":
		return n.Content, true
	case "tags":
		return n.Tags, true
	case "linked_documents":
		return n.LinkedDocuments, true
	case "linked_notes":
		return n.LinkedNotes, true
	case "created_at":
		return n.CreatedAt, true
	case "updated_at":
		return n.UpdatedAt, true
	case "is_favorite":
		return n.IsFavorite, true
	default:
		return nil, false
	}
}

// ChatMessage is a short annotation, optionally promoted to a note.
type ChatMessage struct {
	ID          string    `json:"id"`
	Content     string    `json:"content"`
	Attachments []string  `json:"attachments"`
	Timestamp   time.Time `json:"timestamp"`
	IsNote      bool      `json:"is_note"`
	NoteID      string    `json:"note_id,omitempty"`
}

// Validate checks the chat message record.
func (m *ChatMessage) Validate() error {
	if strings.TrimSpace(m.ID) == "" {
		return &ValidationError{Field: "id", Reason: "is required"}
	}
	if strings.TrimSpace(m.Content) == "" {
		return &ValidationError{Field: "content", Reason: "is required"}
	}
	if m.IsNote && m.NoteID == "" {
		return &ValidationError{Field: "note_id", Reason: "is required when is_note is set"}
	}
	return nil
}

// RecordID implements Record.
func (m *ChatMessage) RecordID() string { return m.ID }

// FieldValue implements Record.
func (m *ChatMessage) FieldValue(name string) (any, bool) {
	switch name {
	case "id":
		return m.ID, true
	case "content", "text":
		return m.Content, true
	case "attachments":
		return m.Attachments, true
	case "timestamp":
		return m.Timestamp, true
	case "is_note":
		return m.IsNote, true
	case "note_id":
		return m.NoteID, true
	default:
		return nil, false
	}
}

// Tag is a label with denormalized usage counters.
type Tag struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Color         string `json:"color"`
	DocumentCount int    `json:"document_count"`
	NoteCount     int    `json:"note_count"`
}

// Validate checks the tag record.
func (t *Tag) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return &ValidationError{Field: "id", Reason: "is required"}
	}
	if strings.TrimSpace(t.Name) == "" {
		return &ValidationError{Field: "name", Reason: "is required"}
	}
	if t.DocumentCount < 0 || t.NoteCount < 0 {
		return &ValidationError{Field: "counts", Reason: "cannot be negative"}
	}
	return nil
}

// RecordID implements Record.
func (t *Tag) RecordID() string { return t.ID }

// FieldValue implements Record.
func (t *Tag) FieldValue(name string) (any, bool) {
	switch name {
	case "id":
		return t.ID, true
	case "name":
		return t.Name, true
	case "color":
		return t.Color, true
	case "document_count":
		return t.DocumentCount, true
	case "note_count":
		return t.NoteCount, true
	default:
		return nil, false
	}
}

// TagColors is the palette assigned to new tags in rotation.
var TagColors = []string{
	"#3B82F6", "#10B981", "#F59E0B", "#EF4444",
	"#8B5CF6", "#EC4899", "#06B6D4", "#84CC16",
}

// NormalizeTagName trims and lower-cases a tag name.
func NormalizeTagName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// NormalizeTags trims, lower-cases, drops empties and de-duplicates tags
// while keeping first-seen order.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		n := NormalizeTagName(t)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}
