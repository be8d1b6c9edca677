// Package extract pulls structured entities out of recognized document text.
package extract

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/TheMichaelB/docvault/internal/models"
)

// Extractor turns free text into entities.
type Extractor interface {
	Extract(text string) []models.ExtractedEntity
}

// Confidence assigned to each entity type.
const (
	DateConfidence   = 0.8
	AmountConfidence = 0.85
	NumberConfidence = 0.7
	EmailConfidence  = 0.9
	PhoneConfidence  = 0.85
)

// MaxNumbers caps how many document numbers are reported.
const MaxNumbers = 5

// PageBreak separates pages of a multi-page scan.
const PageBreak = "\n\n--- PAGE BREAK ---\n\n"

type rule struct {
	kind       models.EntityType
	patterns   []*regexp.Regexp
	confidence float64
	limit      int
}

// RegexExtractor recognizes entities with fixed patterns.
type RegexExtractor struct {
	rules []rule
}

// NewRegexExtractor builds the pattern-based extractor.
func NewRegexExtractor() *RegexExtractor {
	return &RegexExtractor{rules: []rule{
		{
			kind: models.EntityDate,
			patterns: []*regexp.Regexp{
				numericDate,
				isoDate,
				namedDate,
			},
			confidence: DateConfidence,
		},
		{
			kind:       models.EntityAmount,
			patterns:   []*regexp.Regexp{regexp.MustCompile(`(?i)\$\s?\d+(?:,\d{3})*(?:\.\d{2})?|\d+(?:,\d{3})*(?:\.\d{2})?\s?(?:USD|EUR|GBP|INR)`)},
			confidence: AmountConfidence,
		},
		{
			kind:       models.EntityNumber,
			patterns:   []*regexp.Regexp{regexp.MustCompile(`\b[A-Z]+[0-9]{6,}\b|\b[0-9]{8,}\b`)},
			confidence: NumberConfidence,
			limit:      MaxNumbers,
		},
		{
			kind:       models.EntityEmail,
			patterns:   []*regexp.Regexp{regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)},
			confidence: EmailConfidence,
		},
		{
			kind:       models.EntityPhone,
			patterns:   []*regexp.Regexp{regexp.MustCompile(`\b\+?\d{1,3}[\s-]?\(?\d{3}\)?[\s-]?\d{3}[\s-]?\d{4}\b`)},
			confidence: PhoneConfidence,
		},
	}}
}

// Extract returns entities grouped by type (date, amount, number, email,
// phone) in match order within each type. The same text may be reported
// under several types.
func (e *RegexExtractor) Extract(text string) []models.ExtractedEntity {
	text = norm.NFKC.String(text)
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var entities []models.ExtractedEntity
	for _, r := range e.rules {
		found := 0
		for _, p := range r.patterns {
			for _, match := range p.FindAllString(text, -1) {
				if r.limit > 0 && found >= r.limit {
					break
				}
				entities = append(entities, models.ExtractedEntity{
					Type:       r.kind,
					Value:      match,
					Confidence: r.confidence,
				})
				found++
			}
		}
	}
	return entities
}

// JoinPages concatenates the recognized text of several pages.
func JoinPages(pages []string) string {
	return strings.Join(pages, PageBreak)
}

// First returns the first entity of kind, if any.
func First(entities []models.ExtractedEntity, kind models.EntityType) (models.ExtractedEntity, bool) {
	for _, e := range entities {
		if e.Type == kind {
			return e, true
		}
	}
	return models.ExtractedEntity{}, false
}
