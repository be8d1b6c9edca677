package documents

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/TheMichaelB/docvault/internal/models"
)

var nonWordPattern = regexp.MustCompile(`[^a-z0-9\s]`)

var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "but": true,
	"not": true, "you": true, "all": true, "can": true, "her": true,
	"was": true, "one": true, "our": true, "out": true, "day": true,
	"get": true, "has": true, "him": true, "his": true, "how": true,
	"this": true, "that": true, "with": true, "from": true,
}

// Related is a document similar to another one.
type Related struct {
	Document *models.Document
	Score    float64
}

// RelatedDocuments ranks the other non-archived documents by keyword
// overlap with id's title and text. Only scores above the configured
// threshold are returned, best first, at most the configured limit.
func (s *Service) RelatedDocuments(ctx context.Context, id string) ([]Related, error) {
	target, err := s.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	docs, err := s.ListDocuments(ctx, ListOptions{})
	if err != nil {
		return nil, err
	}

	want := Keywords(target.Title + " " + target.PlainTextIndex)
	var out []Related
	for _, doc := range docs {
		if doc.ID == id {
			continue
		}
		score := Jaccard(want, Keywords(doc.Title+" "+doc.PlainTextIndex))
		if score > s.cfg.RelatedThreshold {
			out = append(out, Related{Document: doc, Score: score})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Document.ID < out[j].Document.ID
	})
	if s.cfg.RelatedLimit > 0 && len(out) > s.cfg.RelatedLimit {
		out = out[:s.cfg.RelatedLimit]
	}
	return out, nil
}

// Keywords returns the distinct lower-case words of text longer than three
// characters, minus stop words.
func Keywords(text string) map[string]bool {
	clean := nonWordPattern.ReplaceAllString(strings.ToLower(text), " ")
	words := make(map[string]bool)
	for _, w := range strings.Fields(clean) {
		if utf8.RuneCountInString(w) > 3 && !stopWords[w] {
			words[w] = true
		}
	}
	return words
}

// Jaccard is |a ∩ b| / |a ∪ b|, zero when both are empty.
func Jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for w := range a {
		if b[w] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}
