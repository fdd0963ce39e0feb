package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	beacon "github.com/aviamasters/beacon-go"
	"github.com/aviamasters/beacon-go/adapters"
)

// Default config file path.
const DefaultConfigPath = "~/.config/beacon/config.yaml"

// Environment variables overriding the file.
const (
	EnvAPIKey   = "BEACON_API_KEY"
	EnvBaseURL  = "BEACON_BASE_URL"
	EnvStorage  = "BEACON_STORAGE"
	EnvLogLevel = "BEACON_LOG_LEVEL"
)

// Config holds the settings shared by the beacon binaries.
type Config struct {
	Remote    RemoteConfig    `yaml:"remote"`
	Identity  IdentityConfig  `yaml:"identity"`
	Geo       GeoConfig       `yaml:"geo"`
	Sync      SyncConfig      `yaml:"sync"`
	Retention RetentionConfig `yaml:"retention"`
	Storage   StorageConfig   `yaml:"storage"`
	Logging   LoggingConfig   `yaml:"logging"`
	Docstore  DocstoreConfig  `yaml:"docstore"`
}

type RemoteConfig struct {
	Disabled           bool   `yaml:"disabled"`
	BaseURL            string `yaml:"base_url"`
	APIKey             string `yaml:"api_key"`
	APIKeyHeader       string `yaml:"api_key_header"`
	FallbackDocumentID string `yaml:"fallback_document_id"`
}

type IdentityConfig struct {
	Site          string `yaml:"site"`
	Domain        string `yaml:"domain"`
	ProjectPrefix string `yaml:"project_prefix"`
	Namespace     bool   `yaml:"namespace"`
}

type GeoConfig struct {
	Endpoint       string `yaml:"endpoint"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	CacheTTLHours  int    `yaml:"cache_ttl_hours"`
}

type SyncConfig struct {
	IntervalSeconds     int `yaml:"interval_seconds"`
	InitialDelaySeconds int `yaml:"initial_delay_seconds"`
	PushTimeoutSeconds  int `yaml:"push_timeout_seconds"`
}

type RetentionConfig struct {
	MaxLocalEvents   int `yaml:"max_local_events"`
	MaxRemoteEvents  int `yaml:"max_remote_events"`
	MaxRetryEntries  int `yaml:"max_retry_entries"`
	MaxRetryAttempts int `yaml:"max_retry_attempts"`
}

type StorageConfig struct {
	// Driver is one of sqlite, file or memory.
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	// Format is text or json.
	Format string `yaml:"format"`
}

type DocstoreConfig struct {
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"`
}

// Load reads a YAML config file at path and merges it with defaults.
// Returns an error if the file cannot be read or contains invalid YAML.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return cfg, nil
}

// ExpandPath replaces a leading ~ with the user's home directory.
func ExpandPath(path string) (string, error) {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolving home directory: %w", err)
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

// LoadOrCreate loads the config from the default path. If the file does
// not exist, it creates the directory structure and writes defaults.
func LoadOrCreate() (*Config, error) {
	path, err := ExpandPath(DefaultConfigPath)
	if err != nil {
		return nil, err
	}
	return LoadOrCreateAt(path)
}

// LoadOrCreateAt loads the config from the given path. If the file does
// not exist, it creates the directory structure and writes defaults.
func LoadOrCreateAt(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := DefaultConfig()

		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating config directory: %w", err)
		}

		data, err := yaml.Marshal(cfg)
		if err != nil {
			return nil, fmt.Errorf("marshaling default config: %w", err)
		}

		if err := os.WriteFile(path, data, 0600); err != nil {
			return nil, fmt.Errorf("writing default config: %w", err)
		}

		return cfg, nil
	}

	return Load(path)
}

// LoadDotEnv loads the given .env files into the process environment.
// Missing files are skipped; variables already set are kept.
func LoadDotEnv(paths ...string) error {
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("loading %s: %w", path, err)
		}
	}
	return nil
}

// ApplyEnv overrides file settings from the environment.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvAPIKey); v != "" {
		c.Remote.APIKey = v
	}
	if v := os.Getenv(EnvBaseURL); v != "" {
		c.Remote.BaseURL = v
	}
	if v := os.Getenv(EnvStorage); v != "" {
		c.Storage.Path = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Logging.Level = v
	}
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// ClientConfig converts the file settings into a client configuration.
// Adapters are left for the caller to supply.
func (c *Config) ClientConfig() beacon.Config {
	cfg := beacon.Config{
		APIKey:                  c.Remote.APIKey,
		BaseURL:                 c.Remote.BaseURL,
		FallbackDocumentID:      c.Remote.FallbackDocumentID,
		DisableServerSync:       c.Remote.Disabled,
		Site:                    c.Identity.Site,
		Domain:                  c.Identity.Domain,
		ProjectPrefix:           c.Identity.ProjectPrefix,
		DisableProjectNamespace: !c.Identity.Namespace,
		GeoEndpoint:             c.Geo.Endpoint,
		GeoTimeout:              seconds(c.Geo.TimeoutSeconds),
		GeoCacheTTL:             time.Duration(c.Geo.CacheTTLHours) * time.Hour,
		SyncInterval:            seconds(c.Sync.IntervalSeconds),
		InitialSyncDelay:        seconds(c.Sync.InitialDelaySeconds),
		PushTimeout:             seconds(c.Sync.PushTimeoutSeconds),
		MaxLocalEvents:          c.Retention.MaxLocalEvents,
		MaxRemoteEvents:         c.Retention.MaxRemoteEvents,
		MaxRetryEntries:         c.Retention.MaxRetryEntries,
		MaxRetryAttempts:        c.Retention.MaxRetryAttempts,
	}
	if c.Remote.APIKeyHeader != "" {
		header := c.Remote.APIKeyHeader
		cfg.APIKeyHeader = &header
	}
	return cfg
}

// NewLogger builds the logger described by the logging section.
func (c *Config) NewLogger(w io.Writer) adapters.LoggerAdapter {
	level := adapters.ParseLogLevel(c.Logging.Level)
	if c.Logging.Format == "json" {
		return adapters.NewJSONLoggerAdapter(w, level)
	}
	return adapters.NewPrintLoggerAdapterTo(w, level)
}
