package documents

import (
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/TheMichaelB/docvault/internal/extract"
	"github.com/TheMichaelB/docvault/internal/models"
)

// ExpiryConfidence is assigned to every expiry suggestion.
const ExpiryConfidence = 0.7

// typeRule fires when every group has at least one keyword in the text.
type typeRule struct {
	name       string
	groups     [][]string
	docType    models.DocumentType
	confidence float64
}

// First match wins.
var typeRules = []typeRule{
	{name: "passport", groups: [][]string{{"passport", "travel document"}}, docType: models.TypePassport, confidence: 0.9},
	{name: "driver_license", groups: [][]string{{"driver"}, {"license"}}, docType: models.TypeID, confidence: 0.85},
	{name: "bill", groups: [][]string{{"invoice", "bill"}}, docType: models.TypeBill, confidence: 0.8},
	{name: "certificate", groups: [][]string{{"certificate"}}, docType: models.TypeCertificate, confidence: 0.85},
	{name: "insurance", groups: [][]string{{"insurance", "policy"}}, docType: models.TypeInsurance, confidence: 0.8},
}

// tagCategories maps a suggested tag to the words that trigger it.
var tagCategories = map[string][]string{
	"medical":   {"health", "medical", "doctor", "hospital", "prescription"},
	"financial": {"bank", "payment", "invoice", "tax", "receipt"},
	"legal":     {"contract", "agreement", "legal", "court", "attorney"},
	"personal":  {"id", "passport", "license", "birth", "marriage"},
	"work":      {"employment", "salary", "company", "job", "work"},
	"education": {"certificate", "degree", "school", "university", "course"},
}

const maxSummaryRunes = 200

var (
	wordPattern    = regexp.MustCompile(`[a-z0-9]+`)
	sentenceEnd    = regexp.MustCompile(`[.!?]+`)
	amountCurrency = regexp.MustCompile(`(?i)(USD|EUR|GBP|INR)`)
	amountDigits   = regexp.MustCompile(`\d+(?:,\d{3})*(?:\.\d{2})?`)
)

// SuggestType applies the keyword rules to text. It returns nil when no
// rule fires.
func SuggestType(text string) *models.TypeSuggestion {
	lower := strings.ToLower(text)
	for _, r := range typeRules {
		if r.matches(lower) {
			return &models.TypeSuggestion{Type: r.docType, Confidence: r.confidence, Rule: r.name}
		}
	}
	return nil
}

func (r typeRule) matches(lower string) bool {
	for _, group := range r.groups {
		found := false
		for _, kw := range group {
			if strings.Contains(lower, kw) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// SuggestExpiry picks the latest date entity. Among dates on the same day
// the first one in the text wins.
func SuggestExpiry(entities []models.ExtractedEntity) *models.ExpirySuggestion {
	var best *models.ExpirySuggestion
	for _, e := range entities {
		if e.Type != models.EntityDate {
			continue
		}
		date, ok := extract.ParseDate(e.Value)
		if !ok {
			continue
		}
		if best == nil || date.After(best.Date) {
			best = &models.ExpirySuggestion{Date: date, Source: e.Value, Confidence: ExpiryConfidence}
		}
	}
	return best
}

// SuggestTags returns the categories with a keyword that starts a word of
// text, sorted. Plurals and inflections ("payments", "contracts") match
// their keyword.
func SuggestTags(text string) []string {
	words := wordPattern.FindAllString(strings.ToLower(text), -1)

	var tags []string
	for tag, keywords := range tagCategories {
		if anyPrefix(words, keywords) {
			tags = append(tags, tag)
		}
	}
	sort.Strings(tags)
	return tags
}

func anyPrefix(words, keywords []string) bool {
	for _, kw := range keywords {
		for _, w := range words {
			if strings.HasPrefix(w, kw) {
				return true
			}
		}
	}
	return false
}

// Summarize returns the first three sentences of text, at most 200 runes.
func Summarize(text string) string {
	var sentences []string
	for _, s := range sentenceEnd.Split(text, -1) {
		s = strings.Join(strings.Fields(s), " ")
		if s == "" {
			continue
		}
		sentences = append(sentences, s)
		if len(sentences) == 3 {
			break
		}
	}
	if len(sentences) == 0 {
		return ""
	}

	summary := strings.Join(sentences, ". ") + "."
	if utf8.RuneCountInString(summary) > maxSummaryRunes {
		summary = string([]rune(summary)[:maxSummaryRunes])
	}
	return summary
}

// splitAmount separates an amount entity into its number and currency code.
// A bare "$" means USD.
func splitAmount(value string) (amount, currency string) {
	amount = amountDigits.FindString(value)
	switch {
	case amountCurrency.MatchString(value):
		currency = strings.ToUpper(amountCurrency.FindString(value))
	case strings.Contains(value, "$"):
		currency = "USD"
	}
	return amount, currency
}

// expiryTime converts a suggestion into a record field.
func expiryTime(s *models.ExpirySuggestion) *time.Time {
	if s == nil {
		return nil
	}
	d := s.Date
	return &d
}
