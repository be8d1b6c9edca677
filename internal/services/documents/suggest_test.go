package documents_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/docvault/internal/models"
	"github.com/TheMichaelB/docvault/internal/services/documents"
)

func TestSuggestType(t *testing.T) {
	tests := []struct {
		text string
		want models.DocumentType
		conf float64
	}{
		{"Republic passport no. X", models.TypePassport, 0.9},
		{"Emergency TRAVEL DOCUMENT", models.TypePassport, 0.9},
		{"Driver License class B", models.TypeID, 0.85},
		{"Driver education handbook", "", 0},
		{"Monthly bill for water", models.TypeBill, 0.8},
		{"Certificate of completion", models.TypeCertificate, 0.85},
		{"Home insurance policy", models.TypeInsurance, 0.8},
		{"Passport renewal invoice", models.TypePassport, 0.9},
		{"Grocery list", "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got := documents.SuggestType(tt.text)
			if tt.want == "" {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.Type)
			assert.Equal(t, tt.conf, got.Confidence)
			assert.NotEmpty(t, got.Rule)
		})
	}
}

func TestSuggestTags(t *testing.T) {
	tests := []struct {
		text string
		want []string
	}{
		{"Doctor's prescription from the hospital", []string{"medical"}},
		{"Bank payment receipt for tax year", []string{"financial"}},
		{"University degree certificate", []string{"education"}},
		{"Salary slip from the company, paid by bank transfer", []string{"financial", "work"}},
		{"Birth certificate", []string{"education", "personal"}},
		{"Monthly payments received", []string{"financial"}},
		{"Prescriptions filled at pharmacy", []string{"medical"}},
		{"Employment contracts signed", []string{"legal", "work"}},
		{"Workshop notes", []string{"work"}},
		{"Paid in full", nil},
		{"Garden notes", nil},
		{"", nil},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, documents.SuggestTags(tt.text))
		})
	}
}

func TestSuggestExpiry(t *testing.T) {
	entity := func(v string) models.ExtractedEntity {
		return models.ExtractedEntity{Type: models.EntityDate, Value: v, Confidence: 0.8}
	}

	t.Run("latest wins", func(t *testing.T) {
		got := documents.SuggestExpiry([]models.ExtractedEntity{
			entity("01/15/2020"),
			entity("2031-06-30"),
			{Type: models.EntityAmount, Value: "$5.00"},
			entity("March 3, 2029"),
		})
		require.NotNil(t, got)
		assert.Equal(t, time.Date(2031, 6, 30, 0, 0, 0, 0, time.UTC), got.Date)
		assert.Equal(t, "2031-06-30", got.Source)
		assert.Equal(t, documents.ExpiryConfidence, got.Confidence)
	})

	t.Run("first of equal dates wins", func(t *testing.T) {
		got := documents.SuggestExpiry([]models.ExtractedEntity{
			entity("2030-01-14"),
			entity("01/14/2030"),
			entity("Jan 14, 2030"),
		})
		require.NotNil(t, got)
		assert.Equal(t, "2030-01-14", got.Source)
	})

	t.Run("unparseable dates are skipped", func(t *testing.T) {
		got := documents.SuggestExpiry([]models.ExtractedEntity{entity("02/30/2030"), entity("05/06/2024")})
		require.NotNil(t, got)
		assert.Equal(t, "05/06/2024", got.Source)
	})

	t.Run("no dates", func(t *testing.T) {
		assert.Nil(t, documents.SuggestExpiry(nil))
	})
}

func TestSummarize(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"empty", "  ", ""},
		{"single sentence", "Just one line", "Just one line."},
		{"three of four", "First one. Second one! Third one? Fourth one.", "First one. Second one. Third one."},
		{"collapses whitespace", "Line\n  one...   Line two", "Line one. Line two."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, documents.Summarize(tt.text))
		})
	}

	t.Run("capped", func(t *testing.T) {
		long := strings.Repeat("é", 300)
		got := documents.Summarize(long)
		assert.Equal(t, 200, len([]rune(got)))
	})
}

func TestKeywordsAndJaccard(t *testing.T) {
	kw := documents.Keywords("The Annual check-up, with Doctor Smith; the doctor said: fine.")
	assert.Equal(t, map[string]bool{
		"annual": true, "check": true, "doctor": true, "smith": true, "said": true, "fine": true,
	}, kw)

	a := map[string]bool{"water": true, "bill": true}
	b := map[string]bool{"water": true, "meter": true, "bill": true, "april": true}
	assert.Equal(t, 0.5, documents.Jaccard(a, b))
	assert.Zero(t, documents.Jaccard(nil, nil))
	assert.Zero(t, documents.Jaccard(a, nil))
}
