package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Storage paths
	Storage StorageConfig `json:"storage" mapstructure:"storage"`

	// Key derivation and PIN policy
	Security SecurityConfig `json:"security" mapstructure:"security"`

	// Document ingest behaviour
	Documents DocumentsConfig `json:"documents" mapstructure:"documents"`

	// Search ranking
	Search SearchConfig `json:"search" mapstructure:"search"`

	// Logging
	Log LogConfig `json:"log" mapstructure:"log"`
}

// StorageConfig for local file paths.
type StorageConfig struct {
	DataDir      string `json:"data_dir" mapstructure:"data_dir"`           // Vault root
	BlobDir      string `json:"blob_dir" mapstructure:"blob_dir"`           // Encrypted blobs, relative to DataDir
	TempDir      string `json:"temp_dir" mapstructure:"temp_dir"`           // Decrypted views
	DatabaseFile string `json:"database_file" mapstructure:"database_file"` // VaultStore file
	KeystoreFile string `json:"keystore_file" mapstructure:"keystore_file"` // Salt and verifier
	MaxFileSize  int64  `json:"max_file_size" mapstructure:"max_file_size"` // Max document size in bytes
}

// SecurityConfig for key derivation.
type SecurityConfig struct {
	KDFIterations int `json:"kdf_iterations" mapstructure:"kdf_iterations"`
	SaltSize      int `json:"salt_size" mapstructure:"salt_size"`
	PINMinLength  int `json:"pin_min_length" mapstructure:"pin_min_length"`
	PINMaxLength  int `json:"pin_max_length" mapstructure:"pin_max_length"`
}

// DocumentsConfig for ingest and viewing.
type DocumentsConfig struct {
	ExpiryWarningDays int           `json:"expiry_warning_days" mapstructure:"expiry_warning_days"`
	ViewTTL           time.Duration `json:"view_ttl" mapstructure:"view_ttl"`       // Lifetime of decrypted temp copies
	MaxOpenViews      int           `json:"max_open_views" mapstructure:"max_open_views"`
	RelatedThreshold  float64       `json:"related_threshold" mapstructure:"related_threshold"`
	RelatedLimit      int           `json:"related_limit" mapstructure:"related_limit"`
}

// SearchConfig for the ranker.
type SearchConfig struct {
	MinQueryLength int `json:"min_query_length" mapstructure:"min_query_length"`
	SnippetBefore  int `json:"snippet_before" mapstructure:"snippet_before"`
	SnippetAfter   int `json:"snippet_after" mapstructure:"snippet_after"`
	SnippetDefault int `json:"snippet_default" mapstructure:"snippet_default"`
}

// LogConfig for logging behavior.
type LogConfig struct {
	Level  string `json:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `json:"format" mapstructure:"format"` // text, json
	File   string `json:"file" mapstructure:"file"`     // Log file path (empty = stderr)
	Color  bool   `json:"color" mapstructure:"color"`   // Enable colored output
}

// DefaultConfig returns config with sensible defaults.
func DefaultConfig() *Config {
	dataDir := ".docvault"

	return &Config{
		Storage: StorageConfig{
			DataDir:      dataDir,
			BlobDir:      "encrypted",
			TempDir:      filepath.Join(dataDir, "temp"),
			DatabaseFile: filepath.Join(dataDir, "vault.db"),
			KeystoreFile: filepath.Join(dataDir, "keystore.json"),
			MaxFileSize:  50 * 1024 * 1024, // 50MB
		},
		Security: SecurityConfig{
			KDFIterations: 100000,
			SaltSize:      32,
			PINMinLength:  4,
			PINMaxLength:  8,
		},
		Documents: DocumentsConfig{
			ExpiryWarningDays: 30,
			ViewTTL:           10 * time.Minute,
			MaxOpenViews:      16,
			RelatedThreshold:  0.3,
			RelatedLimit:      5,
		},
		Search: SearchConfig{
			MinQueryLength: 2,
			SnippetBefore:  50,
			SnippetAfter:   100,
			SnippetDefault: 100,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
			Color:  true,
		},
	}
}

// SetDataDir moves every derived path under dir.
func (c *Config) SetDataDir(dir string) {
	c.Storage.DataDir = dir
	c.Storage.TempDir = filepath.Join(dir, "temp")
	c.Storage.DatabaseFile = filepath.Join(dir, "vault.db")
	c.Storage.KeystoreFile = filepath.Join(dir, "keystore.json")
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	if c.Storage.DataDir == "" {
		return errors.New("storage.data_dir is required")
	}

	if c.Storage.BlobDir == "" || filepath.IsAbs(c.Storage.BlobDir) {
		return errors.New("storage.blob_dir must be a relative path")
	}

	if c.Storage.MaxFileSize <= 0 {
		return errors.New("storage.max_file_size must be positive")
	}

	if c.Security.KDFIterations <= 0 {
		return errors.New("security.kdf_iterations must be positive")
	}

	if c.Security.SaltSize < 16 {
		return errors.New("security.salt_size must be at least 16")
	}

	if c.Security.PINMinLength < 4 || c.Security.PINMaxLength < c.Security.PINMinLength {
		return fmt.Errorf("invalid PIN length range: %d-%d", c.Security.PINMinLength, c.Security.PINMaxLength)
	}

	if c.Documents.ViewTTL <= 0 {
		return errors.New("documents.view_ttl must be positive")
	}

	if c.Documents.MaxOpenViews <= 0 {
		return errors.New("documents.max_open_views must be positive")
	}

	if c.Search.MinQueryLength < 1 {
		return errors.New("search.min_query_length must be at least 1")
	}

	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[c.Log.Level] {
		return fmt.Errorf("invalid log level: %s", c.Log.Level)
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Log.Format] {
		return fmt.Errorf("invalid log format: %s", c.Log.Format)
	}

	return nil
}

// BlobRoot returns the absolute-or-relative directory that holds blobs.
func (c *Config) BlobRoot() string {
	return filepath.Join(c.Storage.DataDir, c.Storage.BlobDir)
}

// EnsureDirectories creates required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.Storage.DataDir,
		c.BlobRoot(),
		c.Storage.TempDir,
		filepath.Dir(c.Storage.DatabaseFile),
		filepath.Dir(c.Storage.KeystoreFile),
	}

	if c.Log.File != "" {
		dirs = append(dirs, filepath.Dir(c.Log.File))
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	return nil
}
