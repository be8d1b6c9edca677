package extract_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/docvault/internal/extract"
	"github.com/TheMichaelB/docvault/internal/models"
)

func TestExtractInvoiceFixture(t *testing.T) {
	ex := extract.NewRegexExtractor()

	got := ex.Extract("Invoice #A1234567 Amount $250.00 Due 12/31/2025")

	assert.Equal(t, []models.ExtractedEntity{
		{Type: models.EntityDate, Value: "12/31/2025", Confidence: 0.8},
		{Type: models.EntityAmount, Value: "$250.00", Confidence: 0.85},
		{Type: models.EntityNumber, Value: "A1234567", Confidence: 0.7},
	}, got)
}

func TestExtractByType(t *testing.T) {
	ex := extract.NewRegexExtractor()

	tests := []struct {
		name string
		text string
		kind models.EntityType
		want []string
	}{
		{"slash date", "issued 03/04/2024", models.EntityDate, []string{"03/04/2024"}},
		{"dash date short year", "on 1-2-25 we met", models.EntityDate, []string{"1-2-25"}},
		{"iso date", "valid until 2031-06-30", models.EntityDate, []string{"2031-06-30"}},
		{"named date", "Date of issue: March 5, 2020", models.EntityDate, []string{"March 5, 2020"}},
		{"named date lower case", "exp jan 12 2030", models.EntityDate, []string{"jan 12 2030"}},
		{"dollar amount", "Total: $ 1,250.50 paid", models.EntityAmount, []string{"$ 1,250.50"}},
		{"suffixed amount", "charge of 99.99 EUR and 10 gbp", models.EntityAmount, []string{"99.99 EUR", "10 gbp"}},
		{"passport number", "No. P12345678", models.EntityNumber, []string{"P12345678"}},
		{"long digits", "account 1234567890", models.EntityNumber, []string{"1234567890"}},
		{"long letter prefix", "Ref ABCD1234567", models.EntityNumber, []string{"ABCD1234567"}},
		{"too short", "ref AB12345", models.EntityNumber, nil},
		{"email", "contact jane.doe+vault@example.co.uk today", models.EntityEmail, []string{"jane.doe+vault@example.co.uk"}},
		{"phone", "call +1 555-123-4567", models.EntityPhone, []string{"1 555-123-4567"}},
		{"phone with parens", "tel 1 (555) 123-4567", models.EntityPhone, []string{"1 (555) 123-4567"}},
		{"phone needs four groups", "tel 555 123 4567", models.EntityPhone, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var values []string
			for _, e := range ex.Extract(tt.text) {
				if e.Type == tt.kind {
					values = append(values, e.Value)
				}
			}
			assert.Equal(t, tt.want, values)
		})
	}
}

func TestExtractLimitsNumbers(t *testing.T) {
	ex := extract.NewRegexExtractor()

	got := ex.Extract("11111111 22222222 33333333 44444444 55555555 66666666")

	var numbers []string
	for _, e := range got {
		if e.Type == models.EntityNumber {
			numbers = append(numbers, e.Value)
		}
	}
	assert.Equal(t, []string{"11111111", "22222222", "33333333", "44444444", "55555555"}, numbers)
}

func TestExtractTypeOrderAndOverlap(t *testing.T) {
	ex := extract.NewRegexExtractor()

	got := ex.Extract("mail a@b.io, call 1 555 123 4567, paid $5, on 2024-01-02, id 12345678")

	var kinds []models.EntityType
	for _, e := range got {
		kinds = append(kinds, e.Type)
	}
	assert.Equal(t, []models.EntityType{
		models.EntityDate,
		models.EntityAmount,
		models.EntityNumber,
		models.EntityEmail,
		models.EntityPhone,
	}, kinds)
}

func TestExtractNormalizesFullWidthDigits(t *testing.T) {
	ex := extract.NewRegexExtractor()

	got := ex.Extract("Due １２/３１/２０２５")
	require.Len(t, got, 1)
	assert.Equal(t, "12/31/2025", got[0].Value)
}

func TestExtractEmpty(t *testing.T) {
	assert.Empty(t, extract.NewRegexExtractor().Extract("   "))
}

func TestParseDate(t *testing.T) {
	date := func(y int, m time.Month, d int) time.Time {
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}

	tests := []struct {
		value string
		want  time.Time
		ok    bool
	}{
		{"12/31/2025", date(2025, 12, 31), true},
		{"31/12/2025", date(2025, 12, 31), true},
		{"03/04/2024", date(2024, 3, 4), true},
		{"1-2-25", date(2025, 1, 2), true},
		{"2031-06-30", date(2031, 6, 30), true},
		{"March 5, 2020", date(2020, 3, 5), true},
		{"sept 9 2029", date(2029, 9, 9), true},
		{"02/30/2024", time.Time{}, false},
		{"13/13/2024", time.Time{}, false},
		{"yesterday", time.Time{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			got, ok := extract.ParseDate(tt.value)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestJoinPages(t *testing.T) {
	assert.Equal(t, "one"+extract.PageBreak+"two", extract.JoinPages([]string{"one", "two"}))
}
