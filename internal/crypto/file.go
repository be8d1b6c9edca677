package crypto

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/TheMichaelB/docvault/internal/events"
	"github.com/TheMichaelB/docvault/internal/models"
)

// BlobExtension is appended to every encrypted blob name.
const BlobExtension = ".enc"

// BlobIO is the part of the blob store the file cipher needs.
type BlobIO interface {
	Write(path string, data []byte, mode os.FileMode) error
	Read(path string) ([]byte, error)
}

// FileCipher encrypts whole files into blobs and back.
type FileCipher struct {
	engine  *Engine
	blobs   BlobIO
	blobDir string
	maxSize int64
	logger  *events.Logger
}

// NewFileCipher creates a file cipher writing blobs under blobDir inside
// blobs. Files larger than maxSize are rejected.
func NewFileCipher(engine *Engine, blobs BlobIO, blobDir string, maxSize int64, logger *events.Logger) *FileCipher {
	return &FileCipher{
		engine:  engine,
		blobs:   blobs,
		blobDir: blobDir,
		maxSize: maxSize,
		logger:  logger.WithField("component", "file_cipher"),
	}
}

// BlobRef returns the deterministic blob path for a document id.
func (c *FileCipher) BlobRef(id string) string {
	return path.Join(filepath.ToSlash(c.blobDir), id+BlobExtension)
}

// BlobDir returns the directory, relative to the blob store, holding blobs.
func (c *FileCipher) BlobDir() string {
	return filepath.ToSlash(c.blobDir)
}

// MaxSize returns the plaintext size cap.
func (c *FileCipher) MaxSize() int64 {
	return c.maxSize
}

// CheckSize rejects files over the size cap before any work is done.
func (c *FileCipher) CheckSize(size int64) error {
	if size > c.maxSize {
		return &models.ValidationError{
			Field:  "file",
			Reason: fmt.Sprintf("file too large: %d bytes (max: %d)", size, c.maxSize),
		}
	}
	return nil
}

// EncryptFile encrypts srcPath into the blob for id and returns its ref.
func (c *FileCipher) EncryptFile(srcPath, id string, key []byte) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}

	info, err := os.Stat(srcPath)
	if err != nil {
		return "", &models.ValidationError{Field: "file", Reason: err.Error()}
	}
	if info.IsDir() {
		return "", &models.ValidationError{Field: "file", Reason: "is a directory"}
	}
	if err := c.CheckSize(info.Size()); err != nil {
		return "", err
	}

	file, err := os.Open(srcPath)
	if err != nil {
		return "", fmt.Errorf("%w: open source: %v", models.ErrEncryption, err)
	}
	defer file.Close()

	// The file may grow between stat and read.
	limited := &io.LimitedReader{R: file, N: c.maxSize + 1}
	plaintext, err := io.ReadAll(limited)
	if err != nil {
		return "", fmt.Errorf("%w: read source: %v", models.ErrEncryption, err)
	}
	defer Wipe(plaintext)
	if err := c.CheckSize(int64(len(plaintext))); err != nil {
		return "", err
	}

	ciphertext, err := c.engine.Encrypt(plaintext, key)
	if err != nil {
		return "", err
	}

	ref := c.BlobRef(id)
	if err := c.blobs.Write(ref, ciphertext, 0600); err != nil {
		return "", fmt.Errorf("%w: write blob %s: %v", models.ErrEncryption, ref, err)
	}

	c.logger.WithFields(map[string]interface{}{
		"blob": ref,
		"size": len(plaintext),
	}).Debug("Encrypted file")

	return ref, nil
}

// ReadBlob decrypts a blob into memory.
func (c *FileCipher) ReadBlob(ref string, key []byte) ([]byte, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	ciphertext, err := c.blobs.Read(ref)
	if err != nil {
		return nil, fmt.Errorf("%w: read blob %s: %v", models.ErrStorage, ref, err)
	}

	plaintext, err := c.engine.Decrypt(ciphertext, key)
	if err != nil {
		reason := "tampered"
		if errors.Is(err, models.ErrMalformedCiphertext) {
			reason = "malformed"
		}
		return nil, &models.DecryptError{Ref: ref, Reason: reason, Err: err}
	}
	return plaintext, nil
}

// DecryptFile decrypts the blob at ref into destPath with mode 0600.
func (c *FileCipher) DecryptFile(ref string, key []byte, destPath string) error {
	plaintext, err := c.ReadBlob(ref, key)
	if err != nil {
		return err
	}
	defer Wipe(plaintext)

	if err := os.MkdirAll(filepath.Dir(destPath), 0700); err != nil {
		return fmt.Errorf("%w: create destination directory: %v", models.ErrStorage, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(destPath), ".docvault-*.tmp")
	if err != nil {
		return fmt.Errorf("%w: create temp file: %v", models.ErrStorage, err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if err := tmp.Chmod(0600); err != nil {
		return fmt.Errorf("%w: chmod temp file: %v", models.ErrStorage, err)
	}
	if _, err := tmp.Write(plaintext); err != nil {
		return fmt.Errorf("%w: write temp file: %v", models.ErrStorage, err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("%w: sync temp file: %v", models.ErrStorage, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close temp file: %v", models.ErrStorage, err)
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("%w: rename temp file: %v", models.ErrStorage, err)
	}
	success = true

	return nil
}

// ReencryptBlob decrypts ref with oldKey and writes it re-encrypted with
// newKey to dest. It is used when the PIN changes.
func (c *FileCipher) ReencryptBlob(ref, dest string, oldKey, newKey []byte) error {
	plaintext, err := c.ReadBlob(ref, oldKey)
	if err != nil {
		return err
	}
	defer Wipe(plaintext)

	ciphertext, err := c.engine.Encrypt(plaintext, newKey)
	if err != nil {
		return err
	}
	if err := c.blobs.Write(dest, ciphertext, 0600); err != nil {
		return fmt.Errorf("%w: write blob %s: %v", models.ErrEncryption, dest, err)
	}
	return nil
}
