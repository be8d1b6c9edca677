package storage

import (
	"os"
	"time"
)

// BlobStore manages the files that back encrypted documents. Paths are
// slash-separated and relative to the store root.
type BlobStore interface {
	// Write saves data to a file path atomically.
	Write(path string, data []byte, mode os.FileMode) error

	// Read retrieves file contents.
	Read(path string) ([]byte, error)

	// Delete removes a file. Deleting a missing file is not an error.
	Delete(path string) error

	// Exists checks if a file exists.
	Exists(path string) (bool, error)

	// Stat returns file information.
	Stat(path string) (FileInfo, error)

	// EnsureDir creates a directory if it doesn't exist.
	EnsureDir(path string) error

	// ListDir returns the direct children of a directory.
	ListDir(path string) ([]FileInfo, error)

	// Move renames a file, replacing the destination.
	Move(oldPath, newPath string) error
}

// FileInfo contains file metadata.
type FileInfo struct {
	Path    string
	Size    int64
	Mode    os.FileMode
	ModTime time.Time
	IsDir   bool
}
