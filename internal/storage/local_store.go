package storage

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/TheMichaelB/docvault/internal/events"
)

// LocalStore implements BlobStore on the local file system.
type LocalStore struct {
	baseDir string
	logger  *events.Logger

	// Security settings
	maxPathLength int
	maxFileSize   int64
}

// NewLocalStore creates a local file store rooted at baseDir.
func NewLocalStore(baseDir string, logger *events.Logger) (*LocalStore, error) {
	absPath, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("resolve base directory: %w", err)
	}

	if err := os.MkdirAll(absPath, 0700); err != nil {
		return nil, fmt.Errorf("create base directory: %w", err)
	}

	return &LocalStore{
		baseDir:       absPath,
		logger:        logger.WithField("component", "local_store"),
		maxPathLength: 1024,
		maxFileSize:   100 * 1024 * 1024, // 100MB default
	}, nil
}

// SetMaxFileSize sets the maximum blob size limit.
func (s *LocalStore) SetMaxFileSize(size int64) {
	s.maxFileSize = size
}

// BaseDir returns the absolute store root.
func (s *LocalStore) BaseDir() string {
	return s.baseDir
}

// Write saves data to a file atomically.
func (s *LocalStore) Write(p string, data []byte, mode os.FileMode) error {
	safePath, err := s.sanitizePath(p)
	if err != nil {
		return fmt.Errorf("sanitize path: %w", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"path": p,
		"size": len(data),
	}).Debug("Writing file")

	if int64(len(data)) > s.maxFileSize {
		return fmt.Errorf("file too large: %d bytes (max: %d)", len(data), s.maxFileSize)
	}

	if err := os.MkdirAll(filepath.Dir(safePath), 0700); err != nil {
		return fmt.Errorf("create parent directory: %w", err)
	}

	// Write atomically using temp file
	tempPath := fmt.Sprintf("%s.tmp.%d", safePath, time.Now().UnixNano())
	file, err := os.OpenFile(tempPath, os.O_CREATE|os.O_WRONLY|os.O_EXCL, mode)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	success := false
	defer func() {
		if !success {
			file.Close()
			_ = os.Remove(tempPath)
		}
	}()

	if _, err := file.Write(data); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := file.Sync(); err != nil {
		return fmt.Errorf("sync file: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tempPath, safePath); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	success = true

	return nil
}

// Read retrieves file contents. Symlinks are refused.
func (s *LocalStore) Read(p string) ([]byte, error) {
	safePath, err := s.sanitizePath(p)
	if err != nil {
		return nil, fmt.Errorf("sanitize path: %w", err)
	}

	stat, err := os.Lstat(safePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("file not found: %s: %w", p, fs.ErrNotExist)
		}
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if stat.Mode()&os.ModeSymlink != 0 {
		return nil, fmt.Errorf("symlinks not allowed: %s", p)
	}

	data, err := os.ReadFile(safePath)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	return data, nil
}

// Delete removes a file.
func (s *LocalStore) Delete(p string) error {
	safePath, err := s.sanitizePath(p)
	if err != nil {
		return fmt.Errorf("sanitize path: %w", err)
	}

	s.logger.WithField("path", p).Debug("Deleting file")

	if err := os.Remove(safePath); err != nil {
		if os.IsNotExist(err) {
			return nil // Already deleted
		}
		return fmt.Errorf("delete file: %w", err)
	}

	return nil
}

// Exists checks if a file exists.
func (s *LocalStore) Exists(p string) (bool, error) {
	safePath, err := s.sanitizePath(p)
	if err != nil {
		return false, fmt.Errorf("sanitize path: %w", err)
	}

	_, err = os.Stat(safePath)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// Stat returns file information.
func (s *LocalStore) Stat(p string) (FileInfo, error) {
	safePath, err := s.sanitizePath(p)
	if err != nil {
		return FileInfo{}, fmt.Errorf("sanitize path: %w", err)
	}

	stat, err := os.Lstat(safePath)
	if err != nil {
		return FileInfo{}, fmt.Errorf("stat file: %w", err)
	}

	return FileInfo{
		Path:    p,
		Size:    stat.Size(),
		Mode:    stat.Mode(),
		ModTime: stat.ModTime(),
		IsDir:   stat.IsDir(),
	}, nil
}

// EnsureDir creates a directory if it doesn't exist.
func (s *LocalStore) EnsureDir(p string) error {
	safePath, err := s.sanitizePath(p)
	if err != nil {
		return fmt.Errorf("sanitize path: %w", err)
	}

	return os.MkdirAll(safePath, 0700)
}

// ListDir returns directory contents. A missing directory is empty.
func (s *LocalStore) ListDir(p string) ([]FileInfo, error) {
	safePath, err := s.sanitizePath(p)
	if err != nil {
		return nil, fmt.Errorf("sanitize path: %w", err)
	}

	entries, err := os.ReadDir(safePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read directory: %w", err)
	}

	var files []FileInfo
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			continue
		}

		files = append(files, FileInfo{
			Path:    path.Join(filepath.ToSlash(p), entry.Name()),
			Size:    info.Size(),
			Mode:    info.Mode(),
			ModTime: info.ModTime(),
			IsDir:   info.IsDir(),
		})
	}

	return files, nil
}

// Move renames a file.
func (s *LocalStore) Move(oldPath, newPath string) error {
	oldSafe, err := s.sanitizePath(oldPath)
	if err != nil {
		return fmt.Errorf("sanitize old path: %w", err)
	}

	newSafe, err := s.sanitizePath(newPath)
	if err != nil {
		return fmt.Errorf("sanitize new path: %w", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"old": oldPath,
		"new": newPath,
	}).Debug("Moving file")

	if err := os.MkdirAll(filepath.Dir(newSafe), 0700); err != nil {
		return fmt.Errorf("create parent directory: %w", err)
	}

	return os.Rename(oldSafe, newSafe)
}

// sanitizePath validates and normalizes a file path.
func (s *LocalStore) sanitizePath(p string) (string, error) {
	if strings.ContainsRune(p, 0) {
		return "", fmt.Errorf("path contains null bytes")
	}

	cleaned := filepath.Clean(filepath.FromSlash(p))

	// Check for directory traversal
	for _, part := range strings.Split(cleaned, string(filepath.Separator)) {
		if part == ".." {
			return "", fmt.Errorf("invalid path: contains '..'")
		}
	}

	cleaned = strings.TrimPrefix(cleaned, string(filepath.Separator))
	fullPath := filepath.Join(s.baseDir, cleaned)

	if !strings.HasPrefix(fullPath, s.baseDir+string(filepath.Separator)) && fullPath != s.baseDir {
		return "", fmt.Errorf("path escapes base directory")
	}

	if len(fullPath) > s.maxPathLength {
		return "", fmt.Errorf("path too long: %d characters (max: %d)", len(fullPath), s.maxPathLength)
	}

	if runtime.GOOS == "windows" && strings.ContainsAny(cleaned, `<>:"|?*`) {
		return "", fmt.Errorf("invalid path: reserved character")
	}

	return fullPath, nil
}
