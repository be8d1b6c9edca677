package models

import (
	"fmt"
	"strings"
	"time"
)

// DocumentType classifies a stored document.
type DocumentType string

const (
	TypeID          DocumentType = "ID"
	TypePassport    DocumentType = "PASSPORT"
	TypeCertificate DocumentType = "CERTIFICATE"
	TypeBill        DocumentType = "BILL"
	TypeReceipt     DocumentType = "RECEIPT"
	TypeContract    DocumentType = "CONTRACT"
	TypeMedical     DocumentType = "MEDICAL"
	TypeInsurance   DocumentType = "INSURANCE"
	TypeTax         DocumentType = "TAX"
	TypeOther       DocumentType = "OTHER"
)

// DocumentTypes lists every valid type in display order.
var DocumentTypes = []DocumentType{
	TypeID, TypePassport, TypeCertificate, TypeBill, TypeReceipt,
	TypeContract, TypeMedical, TypeInsurance, TypeTax, TypeOther,
}

// ParseDocumentType parses a type name case-insensitively.
func ParseDocumentType(s string) (DocumentType, error) {
	want := DocumentType(strings.ToUpper(strings.TrimSpace(s)))
	for _, t := range DocumentTypes {
		if t == want {
			return t, nil
		}
	}
	return "", &ValidationError{Field: "type", Reason: fmt.Sprintf("unknown document type %q", s)}
}

// Valid reports whether t is a known type.
func (t DocumentType) Valid() bool {
	_, err := ParseDocumentType(string(t))
	return err == nil
}

// EntityType is the kind of an extracted entity.
type EntityType string

const (
	EntityDate   EntityType = "date"
	EntityAmount EntityType = "amount"
	EntityNumber EntityType = "number"
	EntityName   EntityType = "name"
	EntityEmail  EntityType = "email"
	EntityPhone  EntityType = "phone"
)

// ExtractedEntity is a structured token found in recognized text.
type ExtractedEntity struct {
	Type       EntityType `json:"type"`
	Value      string     `json:"value"`
	Confidence float64    `json:"confidence"`
}

// TypeSuggestion is a rule-derived document type.
type TypeSuggestion struct {
	Type       DocumentType `json:"type"`
	Confidence float64      `json:"confidence"`
	Rule       string       `json:"rule,omitempty"`
}

// ExpirySuggestion is the latest date found in the document text.
type ExpirySuggestion struct {
	Date       time.Time `json:"date"`
	Source     string    `json:"source"`
	Confidence float64   `json:"confidence"`
}

// MetadataSchemaVersion is the current DocumentMetadata layout.
const MetadataSchemaVersion = 1

// DocumentMetadata holds derived information about a document.
type DocumentMetadata struct {
	SchemaVersion     int               `json:"schema_version"`
	FileSize          int64             `json:"file_size"`
	MimeType          string            `json:"mime_type"`
	OriginalName      string            `json:"original_name,omitempty"`
	ExtractedEntities []ExtractedEntity `json:"extracted_entities,omitempty"`
	SuggestedType     *TypeSuggestion   `json:"suggested_type,omitempty"`
	SuggestedExpiry   *ExpirySuggestion `json:"suggested_expiry,omitempty"`
	SuggestedTags     []string          `json:"suggested_tags,omitempty"`
	DocumentNumber    string            `json:"document_number,omitempty"`
	Amount            string            `json:"amount,omitempty"`
	Currency          string            `json:"currency,omitempty"`
	Summary           string            `json:"summary,omitempty"`
}

// Document is an encrypted file plus its searchable record.
type Document struct {
	ID             string           `json:"id"`
	Title          string           `json:"title"`
	Type           DocumentType     `json:"type"`
	BlobRef        string           `json:"blob_ref"`
	PlainTextIndex string           `json:"plain_text_index"`
	Tags           []string         `json:"tags"`
	Metadata       DocumentMetadata `json:"metadata"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
	ExpiryDate     *time.Time       `json:"expiry_date,omitempty"`
	IsFavorite     bool             `json:"is_favorite"`
	IsArchived     bool             `json:"is_archived"`
}

// Validate checks the document record.
func (d *Document) Validate() error {
	if strings.TrimSpace(d.ID) == "" {
		return &ValidationError{Field: "id", Reason: "is required"}
	}
	if strings.TrimSpace(d.Title) == "" {
		return &ValidationError{Field: "title", Reason: "is required"}
	}
	if !d.Type.Valid() {
		return &ValidationError{Field: "type", Reason: fmt.Sprintf("unknown document type %q", d.Type)}
	}
	if d.BlobRef == "" {
		return &ValidationError{Field: "blob_ref", Reason: "is required"}
	}
	if d.UpdatedAt.Before(d.CreatedAt) {
		return &ValidationError{Field: "updated_at", Reason: "cannot be before created_at"}
	}
	return nil
}

// RecordID implements Record.
func (d *Document) RecordID() string { return d.ID }

// FieldValue implements Record.
func (d *Document) FieldValue(name string) (any, bool) {
	switch name {
	case "id":
		return d.ID, true
	case "title":
		return d.Title, true
	case "type":
		return string(d.Type), true
	case "text":
		return d.PlainTextIndex, true
	case "tags":
		return d.Tags, true
	case "created_at":
		return d.CreatedAt, true
	case "updated_at":
		return d.UpdatedAt, true
	case "expiry_date":
		if d.ExpiryDate == nil {
			return nil, false
		}
		return *d.ExpiryDate, true
	case "is_favorite":
		return d.IsFavorite, true
	case "is_archived":
		return d.IsArchived, true
	case "file_size":
		return d.Metadata.FileSize, true
	case "blob_ref":
		return d.BlobRef, true
	default:
		return nil, false
	}
}

// HasTag reports whether the document carries tag name (case-insensitive).
func (d *Document) HasTag(name string) bool {
	for _, t := range d.Tags {
		if strings.EqualFold(t, name) {
			return true
		}
	}
	return false
}

// DaysUntilExpiry returns whole days until the expiry date, rounding up.
func (d *Document) DaysUntilExpiry(now time.Time) (int, bool) {
	if d.ExpiryDate == nil {
		return 0, false
	}
	diff := d.ExpiryDate.Sub(now)
	days := int(diff / (24 * time.Hour))
	if diff%(24*time.Hour) > 0 {
		days++
	}
	return days, true
}
