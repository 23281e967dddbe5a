// Package config provides configuration loading and validation for the admin service.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Collection backends.
const (
	StoreMemory    = "memory"
	StorePostgres  = "postgres"
	StoreFirestore = "firestore"
	StoreNATS      = "nats"
)

// File store backends.
const (
	FilesMemory = "memory"
	FilesGCS    = "gcs"
)

// DefaultPort is the HTTP port used when none is configured.
const DefaultPort = 8080

// Config represents the service configuration that can be loaded from a JSON
// or YAML file. All fields are optional; missing values use defaults or come
// from the environment.
type Config struct {
	Port int `json:"port,omitempty" yaml:"port,omitempty"`

	// Backends: store is memory, postgres, firestore or nats; files is memory or gcs.
	Store string `json:"store,omitempty" yaml:"store,omitempty"`
	Files string `json:"files,omitempty" yaml:"files,omitempty"`

	DatabaseURL      string `json:"database_url,omitempty" yaml:"database_url,omitempty"`
	FirestoreProject string `json:"firestore_project,omitempty" yaml:"firestore_project,omitempty"`
	// CredentialsFile is a service account key used by Firestore and GCS.
	CredentialsFile string `json:"credentials_file,omitempty" yaml:"credentials_file,omitempty"`
	NATSURL         string `json:"nats_url,omitempty" yaml:"nats_url,omitempty"`
	KVBucket        string `json:"kv_bucket,omitempty" yaml:"kv_bucket,omitempty"`
	GCSBucket       string `json:"gcs_bucket,omitempty" yaml:"gcs_bucket,omitempty"`
	// FilesOrigin is the URL prefix of the in-memory file store.
	FilesOrigin string `json:"files_origin,omitempty" yaml:"files_origin,omitempty"`

	Verbose bool `json:"verbose,omitempty" yaml:"verbose,omitempty"`
}

// Defaults returns the configuration used when nothing else is set.
func Defaults() Config {
	return Config{
		Port:     DefaultPort,
		Store:    StoreMemory,
		Files:    FilesMemory,
		NATSURL:  "nats://127.0.0.1:4222",
		KVBucket: "PORTFOLIO",
	}
}

// LoadConfig loads configuration from a JSON or YAML file, chosen by extension.
// Returns an error if the file cannot be read or parsed.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	// Resolve path relative to current directory if not absolute
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	}

	return &cfg, nil
}

// ApplyEnv overlays environment variables onto the configuration. Set
// variables win over file values.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT: %v", err)
		}
		c.Port = port
	}
	overlay := map[string]*string{
		"PORTFOLIO_STORE":                &c.Store,
		"PORTFOLIO_FILES":                &c.Files,
		"DATABASE_URL":                   &c.DatabaseURL,
		"FIRESTORE_PROJECT":              &c.FirestoreProject,
		"GOOGLE_APPLICATION_CREDENTIALS": &c.CredentialsFile,
		"NATS_URL":                       &c.NATSURL,
		"KV_BUCKET":                      &c.KVBucket,
		"GCS_BUCKET":                     &c.GCSBucket,
		"FILES_ORIGIN":                   &c.FilesOrigin,
	}
	for name, field := range overlay {
		if v := os.Getenv(name); v != "" {
			*field = v
		}
	}
	if v := os.Getenv("VERBOSE"); v != "" {
		verbose, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid VERBOSE: %v", err)
		}
		c.Verbose = verbose
	}
	return nil
}

// Validate checks that the configuration has valid values and that every
// selected backend has the settings it needs.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("config error: 'port' must be between 0 and 65535, got %d", c.Port)
	}

	switch c.Store {
	case "", StoreMemory:
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("config error: store %q requires 'database_url'", c.Store)
		}
	case StoreFirestore:
		if c.FirestoreProject == "" {
			return fmt.Errorf("config error: store %q requires 'firestore_project'", c.Store)
		}
	case StoreNATS:
		if c.NATSURL == "" || c.KVBucket == "" {
			return fmt.Errorf("config error: store %q requires 'nats_url' and 'kv_bucket'", c.Store)
		}
	default:
		return fmt.Errorf("config error: unknown store %q", c.Store)
	}

	switch c.Files {
	case "", FilesMemory:
	case FilesGCS:
		if c.GCSBucket == "" {
			return fmt.Errorf("config error: files %q requires 'gcs_bucket'", c.Files)
		}
	default:
		return fmt.Errorf("config error: unknown files backend %q", c.Files)
	}

	if c.CredentialsFile != "" {
		if _, err := os.Stat(c.CredentialsFile); os.IsNotExist(err) {
			return fmt.Errorf("config error: credentials file not found: %s", c.CredentialsFile)
		}
	}

	return nil
}

// MergeWithDefaults returns a new Config with empty fields filled from defaults.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	if result.Port == 0 {
		result.Port = defaults.Port
	}

	// String fields: use default if empty
	fill := []struct {
		dst *string
		src string
	}{
		{&result.Store, defaults.Store},
		{&result.Files, defaults.Files},
		{&result.DatabaseURL, defaults.DatabaseURL},
		{&result.FirestoreProject, defaults.FirestoreProject},
		{&result.CredentialsFile, defaults.CredentialsFile},
		{&result.NATSURL, defaults.NATSURL},
		{&result.KVBucket, defaults.KVBucket},
		{&result.GCSBucket, defaults.GCSBucket},
		{&result.FilesOrigin, defaults.FilesOrigin},
	}
	for _, f := range fill {
		if *f.dst == "" {
			*f.dst = f.src
		}
	}

	// Bool fields: cannot distinguish unset from false, so we don't merge
	// (CLI flags should always win for bools)

	return result
}
