package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/docvault/internal/config"
)

func TestDefaultConfig(t *testing.T) {
	cfg := config.DefaultConfig()

	assert.Equal(t, int64(50*1024*1024), cfg.Storage.MaxFileSize)
	assert.Equal(t, 100000, cfg.Security.KDFIterations)
	assert.Equal(t, 4, cfg.Security.PINMinLength)
	assert.Equal(t, 8, cfg.Security.PINMaxLength)
	assert.Equal(t, 2, cfg.Search.MinQueryLength)
	assert.Equal(t, "encrypted", cfg.Storage.BlobDir)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.NoError(t, cfg.Validate())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*config.Config)
		wantErr string
	}{
		{
			name:    "valid config",
			modify:  func(c *config.Config) {},
			wantErr: "",
		},
		{
			name: "missing data dir",
			modify: func(c *config.Config) {
				c.Storage.DataDir = ""
			},
			wantErr: "storage.data_dir is required",
		},
		{
			name: "absolute blob dir",
			modify: func(c *config.Config) {
				c.Storage.BlobDir = "/tmp/blobs"
			},
			wantErr: "storage.blob_dir must be a relative path",
		},
		{
			name: "zero max file size",
			modify: func(c *config.Config) {
				c.Storage.MaxFileSize = 0
			},
			wantErr: "storage.max_file_size must be positive",
		},
		{
			name: "inverted PIN range",
			modify: func(c *config.Config) {
				c.Security.PINMaxLength = 3
			},
			wantErr: "invalid PIN length range",
		},
		{
			name: "invalid log level",
			modify: func(c *config.Config) {
				c.Log.Level = "invalid"
			},
			wantErr: "invalid log level",
		},
		{
			name: "invalid log format",
			modify: func(c *config.Config) {
				c.Log.Format = "xml"
			},
			wantErr: "invalid log format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			tt.modify(cfg)

			err := cfg.Validate()
			if tt.wantErr != "" {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoaderEnv(t *testing.T) {
	dataDir := filepath.Join(t.TempDir(), "vault")
	t.Setenv("DOCVAULT_STORAGE_DATA_DIR", dataDir)
	t.Setenv("DOCVAULT_LOG_LEVEL", "DEBUG")
	t.Setenv("DOCVAULT_SECURITY_KDF_ITERATIONS", "2000")
	t.Setenv("DOCVAULT_DOCUMENTS_VIEW_TTL", "90s")

	cfg, err := config.NewLoader(filepath.Join(t.TempDir(), "missing.json")).Load()
	require.Error(t, err)
	assert.Nil(t, cfg)

	cfg, err = config.NewLoader("").Load()
	require.NoError(t, err)

	assert.Equal(t, dataDir, cfg.Storage.DataDir)
	assert.Equal(t, filepath.Join(dataDir, "vault.db"), cfg.Storage.DatabaseFile)
	assert.Equal(t, filepath.Join(dataDir, "keystore.json"), cfg.Storage.KeystoreFile)
	assert.Equal(t, filepath.Join(dataDir, "temp"), cfg.Storage.TempDir)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 2000, cfg.Security.KDFIterations)
	assert.Equal(t, 90*time.Second, cfg.Documents.ViewTTL)
}

func TestLoaderFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "docvault.yaml")

	content := `
storage:
  data_dir: ` + filepath.Join(tmpDir, "data") + `
  database_file: ` + filepath.Join(tmpDir, "db", "custom.db") + `
  max_file_size: 1048576
search:
  snippet_before: 20
log:
  format: json
`
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0600))

	loader := config.NewLoader(configPath)
	cfg, err := loader.Load()
	require.NoError(t, err)

	assert.Equal(t, configPath, loader.ConfigFile())
	assert.Equal(t, int64(1048576), cfg.Storage.MaxFileSize)
	assert.Equal(t, filepath.Join(tmpDir, "db", "custom.db"), cfg.Storage.DatabaseFile)
	assert.Equal(t, filepath.Join(tmpDir, "data", "temp"), cfg.Storage.TempDir)
	assert.Equal(t, 20, cfg.Search.SnippetBefore)
	assert.Equal(t, 100, cfg.Search.SnippetAfter)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoaderRejectsInvalid(t *testing.T) {
	t.Setenv("DOCVAULT_LOG_FORMAT", "xml")

	_, err := config.NewLoader("").Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log format")
}

func TestSaveExample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "example.json")
	require.NoError(t, config.SaveExample(path))

	cfg, err := config.NewLoader(path).Load()
	require.NoError(t, err)
	assert.Equal(t, config.DefaultConfig().Security, cfg.Security)
}

func TestEnsureDirectories(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.SetDataDir(filepath.Join(t.TempDir(), "vault"))

	require.NoError(t, cfg.EnsureDirectories())

	for _, dir := range []string{cfg.Storage.DataDir, cfg.BlobRoot(), cfg.Storage.TempDir} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}
