package models

import (
	"errors"
	"fmt"
)

// Error codes for structured error handling.
const (
	ErrCodeValidation     = "VALIDATION_ERROR"
	ErrCodeAuthentication = "AUTHENTICATION_ERROR"
	ErrCodeState          = "STATE_ERROR"
	ErrCodeEncryption     = "ENCRYPTION_ERROR"
	ErrCodeDecryption     = "DECRYPTION_ERROR"
	ErrCodeStorage        = "STORAGE_ERROR"
	ErrCodeIntegrity      = "INTEGRITY_ERROR"
)

// Error kinds. Every error returned by the vault matches exactly one of these
// with errors.Is.
var (
	ErrValidation     = errors.New("validation error")
	ErrAuthentication = errors.New("authentication failed")
	ErrState          = errors.New("invalid state")
	ErrEncryption     = errors.New("encryption failed")
	ErrDecryption     = errors.New("decryption failed")
	ErrStorage        = errors.New("storage error")
	ErrIntegrity      = errors.New("integrity error")
)

// Sentinel errors
var (
	ErrLocked              = fmt.Errorf("%w: vault is locked", ErrState)
	ErrNotInitialized      = fmt.Errorf("%w: vault is not initialized", ErrState)
	ErrStoreClosed         = fmt.Errorf("%w: store is not open", ErrState)
	ErrTampered            = fmt.Errorf("%w: authentication tag mismatch", ErrDecryption)
	ErrMalformedCiphertext = fmt.Errorf("%w: malformed ciphertext", ErrDecryption)
	ErrWrongStorageKey     = fmt.Errorf("%w: storage key does not open vault header", ErrStorage)
	ErrSchemaVersion       = fmt.Errorf("%w: unsupported schema version", ErrStorage)
	ErrNotFound            = fmt.Errorf("%w: record not found", ErrStorage)
	ErrDuplicateTag        = fmt.Errorf("%w: tag name already exists", ErrValidation)
)

// CodeOf maps an error onto its error code.
func CodeOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return ErrCodeValidation
	case errors.Is(err, ErrAuthentication):
		return ErrCodeAuthentication
	case errors.Is(err, ErrState):
		return ErrCodeState
	case errors.Is(err, ErrEncryption):
		return ErrCodeEncryption
	case errors.Is(err, ErrDecryption):
		return ErrCodeDecryption
	case errors.Is(err, ErrIntegrity):
		return ErrCodeIntegrity
	default:
		return ErrCodeStorage
	}
}

// ValidationError describes rejected input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid input: %s", e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// DecryptError represents a decryption failure of a stored object.
type DecryptError struct {
	Ref    string
	Reason string
	Err    error
}

func (e *DecryptError) Error() string {
	if e.Ref != "" {
		return fmt.Sprintf("decrypt %s: %s: %v", e.Ref, e.Reason, e.Err)
	}
	return fmt.Sprintf("decrypt: %s: %v", e.Reason, e.Err)
}

func (e *DecryptError) Unwrap() error {
	return e.Err
}

// PipelineError reports the first failing stage of a document ingest.
type PipelineError struct {
	Stage        Stage
	DocumentID   string
	OrphanedBlob string
	Err          error
}

func (e *PipelineError) Error() string {
	if e.OrphanedBlob != "" {
		return fmt.Sprintf("ingest %s [%s]: document %s: orphaned blob %s: %v",
			e.Stage, CodeOf(e.Err), e.DocumentID, e.OrphanedBlob, e.Err)
	}
	return fmt.Sprintf("ingest %s [%s]: document %s: %v", e.Stage, CodeOf(e.Err), e.DocumentID, e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// PartialDeleteError reports a delete where only one of record and blob was
// removed.
type PartialDeleteError struct {
	DocumentID    string
	RecordDeleted bool
	BlobDeleted   bool
	Err           error
}

func (e *PartialDeleteError) Error() string {
	return fmt.Sprintf("partial delete of document %s (record deleted: %t, blob deleted: %t): %v",
		e.DocumentID, e.RecordDeleted, e.BlobDeleted, e.Err)
}

func (e *PartialDeleteError) Unwrap() error {
	return e.Err
}

// Integrity finding kinds.
const (
	FindingOrphanedBlob      = "orphaned_blob"
	FindingPendingIntent     = "pending_intent"
	FindingDanglingBlobRef   = "dangling_blob_ref"
	FindingDanglingReference = "dangling_reference"
	FindingTagCounter        = "tag_counter"
)

// IntegrityError describes one inconsistency between blob storage and the
// vault records.
type IntegrityError struct {
	Kind   string
	Ref    string
	Detail string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity check failed (%s) for %s: %s", e.Kind, e.Ref, e.Detail)
}

func (e *IntegrityError) Unwrap() error {
	return ErrIntegrity
}
