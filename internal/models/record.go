package models

import (
	"fmt"
	"time"
)

// Record is a row in one of the vault collections.
type Record interface {
	RecordID() string
	// FieldValue returns a named field for filtering and sorting. The second
	// result is false when the field is unknown or unset.
	FieldValue(name string) (any, bool)
}

// Collection names a vault collection.
type Collection string

const (
	CollectionDocuments Collection = "documents"
	CollectionNotes     Collection = "notes"
	CollectionChat      Collection = "chat_messages"
	CollectionTags      Collection = "tags"
)

// Collections lists every collection.
var Collections = []Collection{CollectionDocuments, CollectionNotes, CollectionChat, CollectionTags}

// NewRecord returns an empty record for collection c.
func NewRecord(c Collection) (Record, error) {
	switch c {
	case CollectionDocuments:
		return &Document{}, nil
	case CollectionNotes:
		return &Note{}, nil
	case CollectionChat:
		return &ChatMessage{}, nil
	case CollectionTags:
		return &Tag{}, nil
	default:
		return nil, &ValidationError{Field: "collection", Reason: fmt.Sprintf("unknown collection %q", c)}
	}
}

// ResultType is the collection a search hit came from.
type ResultType string

const (
	ResultDocument ResultType = "document"
	ResultNote     ResultType = "note"
	ResultChat     ResultType = "chat"
)

// SearchResult is one ranked search hit.
type SearchResult struct {
	Type      ResultType `json:"type"`
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Snippet   string     `json:"snippet"`
	Relevance float64    `json:"relevance"`
	Timestamp time.Time  `json:"timestamp"`
}

// Stage is a step of the document ingest state machine.
type Stage string

const (
	StageCapturing  Stage = "capturing"
	StageEncrypting Stage = "encrypting"
	StageIndexing   Stage = "indexing"
	StagePersisted  Stage = "persisted"
	StageFailed     Stage = "failed"
)

// Terminal reports whether no further transition is possible.
func (s Stage) Terminal() bool {
	return s == StagePersisted || s == StageFailed
}

var stageTransitions = map[Stage][]Stage{
	StageCapturing:  {StageEncrypting, StageFailed},
	StageEncrypting: {StageIndexing, StageFailed},
	StageIndexing:   {StagePersisted, StageFailed},
}

// CanTransition reports whether from → to is a valid ingest transition.
func CanTransition(from, to Stage) bool {
	for _, next := range stageTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
