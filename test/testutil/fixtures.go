package testutil

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/docvault/internal/crypto"
	"github.com/TheMichaelB/docvault/internal/events"
	"github.com/TheMichaelB/docvault/internal/metrics"
	"github.com/TheMichaelB/docvault/internal/store"
)

// NewTestLogger creates a logger for testing.
func NewTestLogger() *events.Logger {
	var buf bytes.Buffer
	return events.NewTestLogger(events.DebugLevel, "json", &buf)
}

// Sample file contents with real magic numbers.
var (
	SamplePDF  = []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n%%EOF\n")
	SamplePNG  = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R', 0, 0, 0, 1, 0, 0, 0, 1, 8, 2, 0, 0, 0}
	SampleJPEG = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00, 0x01, 0x01, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00, 0x00, 0xFF, 0xD9}
)

// Recognized text samples.
const (
	InvoiceText  = "Invoice #A1234567 Amount $250.00 Due 12/31/2025"
	PassportText = "PASSPORT United States of America. Passport No. P12345678. Date of issue 01/15/2020. Date of expiry 01/14/2030. Place of birth Ohio"
	MedicalText  = "City Hospital prescription for patient. Doctor visit on 2024-03-02. Contact clinic@hospital.example or +1 555-123-4567"
	ContractText = "Employment agreement between the company and the employee. Salary of 85,000.00 USD per year. Signed March 1, 2024"
)

// TestMasterKey returns a fixed 32-byte master key.
func TestMasterKey() []byte {
	return bytes.Repeat([]byte{0x42}, crypto.KeySize)
}

// TestStorageKey derives the 64-byte store key from TestMasterKey.
func TestStorageKey(t testing.TB) []byte {
	key, err := crypto.DeriveStorageKey(TestMasterKey())
	require.NoError(t, err)
	return key
}

// OpenTestStore opens a fresh vault store in a temp dir and closes it when
// the test ends.
func OpenTestStore(t testing.TB, m *metrics.Metrics) *store.Store {
	path := filepath.Join(t.TempDir(), "vault.db")

	s, err := store.Open(context.Background(), path, TestStorageKey(t), events.Discard(), m)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}
