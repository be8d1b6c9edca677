package keystore

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/TheMichaelB/docvault/internal/events"
)

// FileStore keeps entries in a single 0600 JSON file with a checksum and a
// backup copy of the previous version.
type FileStore struct {
	path   string
	logger *events.Logger

	mu sync.RWMutex
}

type entry struct {
	Value         []byte        `json:"value"`
	Accessibility Accessibility `json:"accessibility"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

type fileContents struct {
	SchemaVersion int              `json:"schema_version"`
	Entries       map[string]entry `json:"entries"`
	Checksum      string           `json:"checksum,omitempty"`
}

// NewFileStore creates a file-backed keystore at path.
func NewFileStore(path string, logger *events.Logger) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create keystore directory: %w", err)
	}

	return &FileStore{
		path:   path,
		logger: logger.WithField("component", "keystore"),
	}, nil
}

// Get returns the value stored under alias.
func (s *FileStore) Get(alias string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	contents, err := s.load()
	if err != nil {
		return nil, err
	}

	e, ok := contents.Entries[alias]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), e.Value...), nil
}

// Set stores value under alias.
func (s *FileStore) Set(alias string, value []byte, access Accessibility) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	contents, err := s.load()
	if err != nil {
		return err
	}

	contents.Entries[alias] = entry{
		Value:         append([]byte(nil), value...),
		Accessibility: access,
		UpdatedAt:     time.Now().UTC(),
	}

	s.logger.WithFields(map[string]interface{}{
		"alias":         alias,
		"accessibility": access,
	}).Debug("Storing keystore entry")

	return s.save(contents)
}

// Delete removes alias.
func (s *FileStore) Delete(alias string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	contents, err := s.load()
	if err != nil {
		return err
	}

	if _, ok := contents.Entries[alias]; !ok {
		return nil
	}
	delete(contents.Entries, alias)

	return s.save(contents)
}

// Aliases lists stored aliases in sorted order.
func (s *FileStore) Aliases() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	contents, err := s.load()
	if err != nil {
		return nil, err
	}

	aliases := make([]string, 0, len(contents.Entries))
	for alias := range contents.Entries {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)
	return aliases, nil
}

func (s *FileStore) load() (*fileContents, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return &fileContents{SchemaVersion: CurrentSchemaVersion, Entries: make(map[string]entry)}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read keystore: %w", err)
	}

	contents, err := decode(data)
	if err != nil {
		s.logger.WithError(err).Warn("Keystore corrupt, trying backup")

		backup, berr := os.ReadFile(s.backupPath())
		if berr != nil {
			return nil, ErrCorrupt
		}
		contents, berr = decode(backup)
		if berr != nil {
			return nil, ErrCorrupt
		}
		s.logger.Warn("Loaded keystore from backup due to corruption")
	}

	if contents.SchemaVersion != CurrentSchemaVersion {
		return nil, fmt.Errorf("keystore schema version %d: %w", contents.SchemaVersion, ErrCorrupt)
	}

	return contents, nil
}

func decode(data []byte) (*fileContents, error) {
	var contents fileContents
	if err := json.Unmarshal(data, &contents); err != nil {
		return nil, fmt.Errorf("parse keystore: %w", err)
	}
	if contents.Entries == nil {
		contents.Entries = make(map[string]entry)
	}

	want, err := checksum(&contents)
	if err != nil {
		return nil, err
	}
	if contents.Checksum != want {
		return nil, fmt.Errorf("checksum mismatch: expected %s, got %s", contents.Checksum, want)
	}
	return &contents, nil
}

func checksum(contents *fileContents) (string, error) {
	unsigned := fileContents{SchemaVersion: contents.SchemaVersion, Entries: contents.Entries}
	data, err := json.Marshal(unsigned)
	if err != nil {
		return "", fmt.Errorf("marshal keystore for checksum: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

func (s *FileStore) save(contents *fileContents) error {
	contents.SchemaVersion = CurrentSchemaVersion
	sum, err := checksum(contents)
	if err != nil {
		return err
	}
	contents.Checksum = sum

	data, err := json.MarshalIndent(contents, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal keystore: %w", err)
	}

	if _, err := os.Stat(s.path); err == nil {
		if err := copyFile(s.path, s.backupPath()); err != nil {
			s.logger.WithError(err).Warn("Failed to create keystore backup")
		}
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}

	if file, err := os.Open(tmpPath); err == nil {
		_ = file.Sync()
		file.Close()
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename keystore file: %w", err)
	}

	return nil
}

func (s *FileStore) backupPath() string {
	return s.path + ".backup"
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}
