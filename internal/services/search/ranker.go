// Package search ranks documents, notes and chat messages against a text
// query.
package search

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/TheMichaelB/docvault/internal/config"
	"github.com/TheMichaelB/docvault/internal/events"
	"github.com/TheMichaelB/docvault/internal/metrics"
	"github.com/TheMichaelB/docvault/internal/models"
	"github.com/TheMichaelB/docvault/internal/store"
)

// Weights for the fields of one collection. A record's relevance is the sum
// of the weights of the fields that matched.
type Weights struct {
	Title float64
	Body  float64
	Tag   float64
}

var (
	DocumentWeights = Weights{Title: 0.5, Body: 0.3, Tag: 0.2}
	NoteWeights     = Weights{Title: 0.5, Body: 0.4, Tag: 0.1}
)

// ChatRelevance is the fixed relevance of a matching chat message.
const ChatRelevance = 0.3

// ChatTitleRunes is the length of the title derived from a chat message.
const ChatTitleRunes = 50

// Results holds the ranked hits per collection.
type Results struct {
	Documents []models.SearchResult `json:"documents"`
	Notes     []models.SearchResult `json:"notes"`
	Chat      []models.SearchResult `json:"chat"`
}

// Total is the number of hits across all collections.
func (r *Results) Total() int {
	return len(r.Documents) + len(r.Notes) + len(r.Chat)
}

// Reader is the part of the vault store the ranker reads from.
type Reader interface {
	Query(ctx context.Context, c models.Collection, q store.Query) ([]models.Record, error)
}

// Ranker scores records by substring matches.
type Ranker struct {
	store   Reader
	cfg     config.SearchConfig
	metrics *metrics.Metrics
	logger  *events.Logger
}

// NewRanker creates a ranker. metrics may be nil.
func NewRanker(st Reader, cfg config.SearchConfig, m *metrics.Metrics, logger *events.Logger) *Ranker {
	return &Ranker{
		store:   st,
		cfg:     cfg,
		metrics: m,
		logger:  logger.WithField("service", "search"),
	}
}

// Search ranks every collection against query. Queries shorter than the
// configured minimum return empty results without reading the store.
func (r *Ranker) Search(ctx context.Context, query string) (*Results, error) {
	query = strings.TrimSpace(query)
	results := &Results{
		Documents: []models.SearchResult{},
		Notes:     []models.SearchResult{},
		Chat:      []models.SearchResult{},
	}
	if utf8.RuneCountInString(query) < r.cfg.MinQueryLength {
		return results, nil
	}

	start := time.Now()
	needle := foldQuery(query)

	docs, err := r.store.Query(ctx, models.CollectionDocuments, store.Query{
		Filters: []store.Filter{store.Eq("is_archived", false)},
	})
	if err != nil {
		return nil, fmt.Errorf("search documents: %w", err)
	}
	for _, rec := range docs {
		doc := rec.(*models.Document)
		if hit, ok := r.score(needle, DocumentWeights, doc.Title, doc.PlainTextIndex, doc.Tags); ok {
			hit.Type, hit.ID, hit.Timestamp = models.ResultDocument, doc.ID, doc.CreatedAt
			results.Documents = append(results.Documents, hit)
		}
	}

	notes, err := r.store.Query(ctx, models.CollectionNotes, store.Query{})
	if err != nil {
		return nil, fmt.Errorf("search notes: %w", err)
	}
	for _, rec := range notes {
		note := rec.(*models.Note)
		if hit, ok := r.score(needle, NoteWeights, note.Title, note.Content, note.Tags); ok {
			hit.Type, hit.ID, hit.Timestamp = models.ResultNote, note.ID, note.CreatedAt
			results.Notes = append(results.Notes, hit)
		}
	}

	msgs, err := r.store.Query(ctx, models.CollectionChat, store.Query{})
	if err != nil {
		return nil, fmt.Errorf("search chat: %w", err)
	}
	for _, rec := range msgs {
		msg := rec.(*models.ChatMessage)
		idx := foldText(msg.Content).index(needle)
		if idx < 0 {
			continue
		}
		results.Chat = append(results.Chat, models.SearchResult{
			Type:      models.ResultChat,
			ID:        msg.ID,
			Title:     prefix(msg.Content, ChatTitleRunes),
			Snippet:   r.window(msg.Content, idx),
			Relevance: ChatRelevance,
			Timestamp: msg.Timestamp,
		})
	}

	byRelevance(results.Documents)
	byRelevance(results.Notes)
	sort.SliceStable(results.Chat, func(i, j int) bool {
		a, b := results.Chat[i], results.Chat[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.After(b.Timestamp)
		}
		return a.ID < b.ID
	})

	if r.metrics != nil {
		r.metrics.ObserveSearch(start)
	}
	r.logger.WithFields(map[string]interface{}{
		"documents": len(results.Documents),
		"notes":     len(results.Notes),
		"chat":      len(results.Chat),
		"duration":  time.Since(start).String(),
	}).Debug("Search completed")

	return results, nil
}

// score matches one record. The snippet is the title when the title
// matched, else a window around the first body match, else the start of
// the body.
func (r *Ranker) score(needle []rune, w Weights, title, body string, tags []string) (models.SearchResult, bool) {
	var hit models.SearchResult
	hit.Title = title

	titleMatch := contains(title, needle)
	if titleMatch {
		hit.Relevance += w.Title
	}

	bodyIdx := foldText(body).index(needle)
	if bodyIdx >= 0 {
		hit.Relevance += w.Body
	}

	for _, tag := range tags {
		if contains(tag, needle) {
			hit.Relevance += w.Tag
			break
		}
	}

	if hit.Relevance == 0 {
		return hit, false
	}

	switch {
	case titleMatch:
		hit.Snippet = title
	case bodyIdx >= 0:
		hit.Snippet = r.window(body, bodyIdx)
	default:
		hit.Snippet = prefix(body, r.cfg.SnippetDefault)
	}
	return hit, true
}

// window cuts the body around the match at rune offset idx.
func (r *Ranker) window(body string, idx int) string {
	runes := []rune(body)
	start := max(0, idx-r.cfg.SnippetBefore)
	end := min(len(runes), idx+r.cfg.SnippetAfter)
	return "..." + string(runes[start:end]) + "..."
}

func prefix(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

func byRelevance(hits []models.SearchResult) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Relevance != hits[j].Relevance {
			return hits[i].Relevance > hits[j].Relevance
		}
		return hits[i].ID < hits[j].ID
	})
}
