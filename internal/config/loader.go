package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. DOCVAULT_LOG_LEVEL.
const EnvPrefix = "DOCVAULT"

// Keys whose defaults derive from storage.data_dir.
var derivedKeys = []string{
	"storage.temp_dir",
	"storage.database_file",
	"storage.keystore_file",
}

// Loader handles configuration loading from multiple sources.
type Loader struct {
	configPath string
	v          *viper.Viper
}

// NewLoader creates a config loader. An empty path searches the default
// locations and tolerates a missing file.
func NewLoader(configPath string) *Loader {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v, DefaultConfig())
	for _, key := range allKeys() {
		_ = v.BindEnv(key)
	}

	return &Loader{configPath: configPath, v: v}
}

// Load reads configuration from defaults, file and environment, in that
// order of increasing precedence.
func (l *Loader) Load() (*Config, error) {
	if err := l.readFile(); err != nil {
		return nil, fmt.Errorf("load config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	derived := DefaultConfig()
	derived.SetDataDir(cfg.Storage.DataDir)
	if !l.v.IsSet("storage.temp_dir") {
		cfg.Storage.TempDir = derived.Storage.TempDir
	}
	if !l.v.IsSet("storage.database_file") {
		cfg.Storage.DatabaseFile = derived.Storage.DatabaseFile
	}
	if !l.v.IsSet("storage.keystore_file") {
		cfg.Storage.KeystoreFile = derived.Storage.KeystoreFile
	}

	cfg.Storage.DataDir = expandHome(cfg.Storage.DataDir)
	cfg.Storage.TempDir = expandHome(cfg.Storage.TempDir)
	cfg.Storage.DatabaseFile = expandHome(cfg.Storage.DatabaseFile)
	cfg.Storage.KeystoreFile = expandHome(cfg.Storage.KeystoreFile)
	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	cfg.Log.Format = strings.ToLower(cfg.Log.Format)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// ConfigFile returns the file that was read, if any.
func (l *Loader) ConfigFile() string {
	return l.v.ConfigFileUsed()
}

func (l *Loader) readFile() error {
	if l.configPath != "" {
		l.v.SetConfigFile(l.configPath)
		return l.v.ReadInConfig()
	}

	l.v.SetConfigName("docvault")
	l.v.AddConfigPath(".")
	if homeDir, err := os.UserHomeDir(); err == nil {
		l.v.AddConfigPath(filepath.Join(homeDir, ".config", "docvault"))
		l.v.AddConfigPath(filepath.Join(homeDir, ".docvault"))
	}

	err := l.v.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	if errors.As(err, &notFound) {
		return nil
	}
	return err
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("storage.data_dir", cfg.Storage.DataDir)
	v.SetDefault("storage.blob_dir", cfg.Storage.BlobDir)
	v.SetDefault("storage.max_file_size", cfg.Storage.MaxFileSize)

	v.SetDefault("security.kdf_iterations", cfg.Security.KDFIterations)
	v.SetDefault("security.salt_size", cfg.Security.SaltSize)
	v.SetDefault("security.pin_min_length", cfg.Security.PINMinLength)
	v.SetDefault("security.pin_max_length", cfg.Security.PINMaxLength)

	v.SetDefault("documents.expiry_warning_days", cfg.Documents.ExpiryWarningDays)
	v.SetDefault("documents.view_ttl", cfg.Documents.ViewTTL)
	v.SetDefault("documents.max_open_views", cfg.Documents.MaxOpenViews)
	v.SetDefault("documents.related_threshold", cfg.Documents.RelatedThreshold)
	v.SetDefault("documents.related_limit", cfg.Documents.RelatedLimit)

	v.SetDefault("search.min_query_length", cfg.Search.MinQueryLength)
	v.SetDefault("search.snippet_before", cfg.Search.SnippetBefore)
	v.SetDefault("search.snippet_after", cfg.Search.SnippetAfter)
	v.SetDefault("search.snippet_default", cfg.Search.SnippetDefault)

	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.file", cfg.Log.File)
	v.SetDefault("log.color", cfg.Log.Color)
}

func allKeys() []string {
	v := viper.New()
	setDefaults(v, DefaultConfig())
	return append(v.AllKeys(), derivedKeys...)
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(homeDir, path[2:])
}

// SaveExample writes the default configuration to path. The format follows
// the file extension (json, yaml or toml).
func SaveExample(path string) error {
	v := viper.New()
	cfg := DefaultConfig()
	setDefaults(v, cfg)
	v.Set("storage.temp_dir", cfg.Storage.TempDir)
	v.Set("storage.database_file", cfg.Storage.DatabaseFile)
	v.Set("storage.keystore_file", cfg.Storage.KeystoreFile)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return os.Chmod(path, 0600)
}
