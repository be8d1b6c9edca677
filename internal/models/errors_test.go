package models_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/TheMichaelB/docvault/internal/models"
)

func TestPipelineError(t *testing.T) {
	tests := []struct {
		name string
		err  *models.PipelineError
		want string
	}{
		{
			name: "with orphaned blob",
			err: &models.PipelineError{
				Stage:        models.StageIndexing,
				DocumentID:   "doc-123",
				OrphanedBlob: "encrypted/doc-123.enc",
				Err:          fmt.Errorf("persist: %w", models.ErrStoreClosed),
			},
			want: "ingest indexing [STATE_ERROR]: document doc-123: orphaned blob encrypted/doc-123.enc: persist: invalid state: store is not open",
		},
		{
			name: "before encryption",
			err: &models.PipelineError{
				Stage:      models.StageCapturing,
				DocumentID: "doc-456",
				Err:        &models.ValidationError{Field: "file", Reason: "too large"},
			},
			want: "ingest capturing [VALIDATION_ERROR]: document doc-456: invalid file: too large",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestErrorKinds(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind error
		code string
	}{
		{"locked", models.ErrLocked, models.ErrState, models.ErrCodeState},
		{"store closed", models.ErrStoreClosed, models.ErrState, models.ErrCodeState},
		{"tampered", models.ErrTampered, models.ErrDecryption, models.ErrCodeDecryption},
		{"malformed", models.ErrMalformedCiphertext, models.ErrDecryption, models.ErrCodeDecryption},
		{"wrong storage key", models.ErrWrongStorageKey, models.ErrStorage, models.ErrCodeStorage},
		{"validation", &models.ValidationError{Field: "pin", Reason: "bad"}, models.ErrValidation, models.ErrCodeValidation},
		{"integrity", &models.IntegrityError{Kind: models.FindingOrphanedBlob, Ref: "x"}, models.ErrIntegrity, models.ErrCodeIntegrity},
		{"wrapped", fmt.Errorf("open: %w", models.ErrAuthentication), models.ErrAuthentication, models.ErrCodeAuthentication},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.err, tt.kind)
			assert.Equal(t, tt.code, models.CodeOf(tt.err))
		})
	}
}

func TestTamperAndMalformedAreDistinct(t *testing.T) {
	assert.False(t, errors.Is(models.ErrTampered, models.ErrMalformedCiphertext))
	assert.False(t, errors.Is(models.ErrMalformedCiphertext, models.ErrTampered))
}

func TestPartialDeleteError(t *testing.T) {
	cause := errors.New("permission denied")
	err := &models.PartialDeleteError{
		DocumentID:    "doc-1",
		RecordDeleted: true,
		Err:           cause,
	}

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "record deleted: true, blob deleted: false")
}
