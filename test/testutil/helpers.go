package testutil

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/docvault/internal/config"
)

// TestIterations keeps PBKDF2 fast in tests.
const TestIterations = 1000

// LogEntry represents a captured log entry for testing
type LogEntry struct {
	Level   string                 `json:"level"`
	Message string                 `json:"msg"`
	Fields  map[string]interface{} `json:"-"`
}

// TestHelpers provides common test utilities.
type TestHelpers struct {
	t       *testing.T
	tempDir string
}

// NewTestHelpers creates test helpers.
func NewTestHelpers(t *testing.T) *TestHelpers {
	return &TestHelpers{
		t:       t,
		tempDir: t.TempDir(),
	}
}

// TempDir returns the temporary directory for this test.
func (h *TestHelpers) TempDir() string {
	return h.tempDir
}

// CreateTempFile creates a temporary file with content.
func (h *TestHelpers) CreateTempFile(name, content string) string {
	return h.CreateTempBinaryFile(name, []byte(content))
}

// CreateTempBinaryFile creates a temporary binary file.
func (h *TestHelpers) CreateTempBinaryFile(name string, content []byte) string {
	path := filepath.Join(h.tempDir, name)

	err := os.MkdirAll(filepath.Dir(path), 0700)
	require.NoError(h.t, err)

	err = os.WriteFile(path, content, 0600)
	require.NoError(h.t, err)

	return path
}

// AssertFileExists checks that a file exists.
func (h *TestHelpers) AssertFileExists(path string) {
	_, err := os.Stat(path)
	assert.NoError(h.t, err, "File should exist: %s", path)
}

// AssertFileContent checks file content matches expected.
func (h *TestHelpers) AssertFileContent(path string, expected []byte) {
	content, err := os.ReadFile(path)
	require.NoError(h.t, err)
	assert.Equal(h.t, expected, content)
}

// AssertFileNotExists checks that a file does not exist.
func (h *TestHelpers) AssertFileNotExists(path string) {
	_, err := os.Stat(path)
	assert.True(h.t, os.IsNotExist(err), "File should not exist: %s", path)
}

// TestContext creates a test context with reasonable timeout.
func TestContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// TestConfigWithDir creates a test configuration rooted at dataDir with a
// cheap KDF.
func TestConfigWithDir(dataDir string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.SetDataDir(dataDir)
	cfg.Security.KDFIterations = TestIterations
	cfg.Log = config.LogConfig{
		Level:  "debug",
		Format: "json",
		Color:  false,
	}
	return cfg
}

// LogOutput captures JSON log output for testing.
type LogOutput struct {
	mu      sync.RWMutex
	entries []LogEntry
	raw     strings.Builder
}

// NewLogOutput creates a new log output capturer.
func NewLogOutput() *LogOutput {
	return &LogOutput{}
}

// Write implements io.Writer to capture log output.
func (lo *LogOutput) Write(p []byte) (n int, err error) {
	lo.mu.Lock()
	defer lo.mu.Unlock()

	lo.raw.Write(p)

	var fields map[string]interface{}
	if err := json.Unmarshal(p, &fields); err == nil {
		entry := LogEntry{Fields: fields}
		entry.Level, _ = fields["level"].(string)
		entry.Message, _ = fields["msg"].(string)
		lo.entries = append(lo.entries, entry)
	}
	return len(p), nil
}

// Entries returns captured log entries.
func (lo *LogOutput) Entries() []LogEntry {
	lo.mu.RLock()
	defer lo.mu.RUnlock()

	entries := make([]LogEntry, len(lo.entries))
	copy(entries, lo.entries)
	return entries
}

// HasMessage checks if any log entry contains the message.
func (lo *LogOutput) HasMessage(message string) bool {
	lo.mu.RLock()
	defer lo.mu.RUnlock()

	for _, entry := range lo.entries {
		if strings.Contains(entry.Message, message) {
			return true
		}
	}
	return false
}

// Contains reports whether s appears anywhere in the raw output.
func (lo *LogOutput) Contains(s string) bool {
	lo.mu.RLock()
	defer lo.mu.RUnlock()
	return strings.Contains(lo.raw.String(), s)
}

// SkipIfShort skips test if testing.Short() is true.
func SkipIfShort(t *testing.T, reason string) {
	if testing.Short() {
		t.Skipf("Skipping test in short mode: %s", reason)
	}
}
