package storage

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-memory BlobStore for tests.
type MemoryStore struct {
	mu    sync.RWMutex
	files map[string][]byte
	dirs  map[string]bool
	fail  map[string]error
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		files: make(map[string][]byte),
		dirs:  make(map[string]bool),
		fail:  make(map[string]error),
	}
}

// FailOn makes op ("write", "read", "delete", "move") on p return err.
// A nil err clears the failure.
func (m *MemoryStore) FailOn(op, p string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := op + ":" + path.Clean(p)
	if err == nil {
		delete(m.fail, key)
		return
	}
	m.fail[key] = err
}

func (m *MemoryStore) failure(op, p string) error {
	if err, ok := m.fail[op+":"+p]; ok {
		return err
	}
	return m.fail[op+":*"]
}

// Write saves data to a file.
func (m *MemoryStore) Write(p string, data []byte, _ os.FileMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p = path.Clean(p)
	if err := m.failure("write", p); err != nil {
		return err
	}

	m.files[p] = append([]byte(nil), data...)
	return nil
}

// Read retrieves file contents.
func (m *MemoryStore) Read(p string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p = path.Clean(p)
	if err := m.failure("read", p); err != nil {
		return nil, err
	}

	data, ok := m.files[p]
	if !ok {
		return nil, fmt.Errorf("file not found: %s: %w", p, fs.ErrNotExist)
	}
	return append([]byte(nil), data...), nil
}

// Delete removes a file.
func (m *MemoryStore) Delete(p string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p = path.Clean(p)
	if err := m.failure("delete", p); err != nil {
		return err
	}

	delete(m.files, p)
	return nil
}

// Exists checks if a file exists.
func (m *MemoryStore) Exists(p string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, exists := m.files[path.Clean(p)]
	return exists, nil
}

// Stat returns file information.
func (m *MemoryStore) Stat(p string) (FileInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p = path.Clean(p)
	if data, ok := m.files[p]; ok {
		return FileInfo{Path: p, Size: int64(len(data)), Mode: 0600, ModTime: time.Now()}, nil
	}
	if m.dirs[p] {
		return FileInfo{Path: p, Mode: os.ModeDir | 0700, ModTime: time.Now(), IsDir: true}, nil
	}

	return FileInfo{}, fmt.Errorf("file not found: %s: %w", p, fs.ErrNotExist)
}

// EnsureDir creates a directory.
func (m *MemoryStore) EnsureDir(p string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.dirs[path.Clean(p)] = true
	return nil
}

// ListDir returns the files directly under dir, sorted by path.
func (m *MemoryStore) ListDir(dir string) ([]FileInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	prefix := path.Clean(dir) + "/"
	var files []FileInfo
	for p, data := range m.files {
		rest, ok := strings.CutPrefix(p, prefix)
		if !ok || strings.Contains(rest, "/") {
			continue
		}
		files = append(files, FileInfo{Path: p, Size: int64(len(data)), Mode: 0600, ModTime: time.Now()})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// Move renames a file.
func (m *MemoryStore) Move(oldPath, newPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	oldPath, newPath = path.Clean(oldPath), path.Clean(newPath)
	if err := m.failure("move", oldPath); err != nil {
		return err
	}

	data, ok := m.files[oldPath]
	if !ok {
		return fmt.Errorf("file not found: %s: %w", oldPath, fs.ErrNotExist)
	}
	m.files[newPath] = data
	delete(m.files, oldPath)
	return nil
}

// Paths returns every stored file path, sorted.
func (m *MemoryStore) Paths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	paths := make([]string, 0, len(m.files))
	for p := range m.files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
