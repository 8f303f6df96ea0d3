// Package config provides YAML-based configuration with environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env"
	"github.com/joho/godotenv"
	"github.com/streamshort/backend/internal/logger"
	"gopkg.in/yaml.v3"
)

// AppConfig represents the root configuration document
type AppConfig struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Insight InsightConfig `yaml:"insight"`
	Upload  UploadConfig  `yaml:"upload"`
	Logging logger.Config `yaml:"logging"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port                 int    `yaml:"port"`
	BindAddress          string `yaml:"bindAddress"`
	EnableCORS           bool   `yaml:"enableCORS"`
	AllowOrigins         string `yaml:"allowOrigins"`
	// Read and write timeouts are lifted on upload and job stream routes.
	ReadTimeout          int    `yaml:"readTimeoutSeconds"`
	WriteTimeout         int    `yaml:"writeTimeoutSeconds"`
	IdleTimeout          int    `yaml:"idleTimeoutSeconds"`
	BodyLimit            string `yaml:"bodyLimit"`
	EnableRequestLogging bool   `yaml:"enableRequestLogging"`
	EnableCompression    bool   `yaml:"enableCompression"`
	CompressionLevel     int    `yaml:"compressionLevel"`
}

// StorageConfig selects the history backend and where files live
type StorageConfig struct {
	Backend          string `yaml:"backend"` // file, duckdb, memory
	DataDirectory    string `yaml:"dataDirectory"`
	PreviewDirectory string `yaml:"previewDirectory"`
	DuckDBFile       string `yaml:"duckdbFile"`
}

// InsightConfig configures the generative metadata service
type InsightConfig struct {
	APIKey        string `yaml:"apiKey"`
	Model         string `yaml:"model"`
	BaseURL       string `yaml:"baseURL"`
	ShortLinkBase string `yaml:"shortLinkBase"`
}

// UploadConfig tunes the upload pipeline
type UploadConfig struct {
	FinalizeDelayMillis    int  `yaml:"finalizeDelayMillis"`
	MaxPreviewReferences   int  `yaml:"maxPreviewReferences"`
	JobRetentionMinutes    int  `yaml:"jobRetentionMinutes"`
	CleanupIntervalMinutes int  `yaml:"cleanupIntervalMinutes"`
	AllowDeletion          bool `yaml:"allowDeletion"`
}

// envOverrides lists the variables that win over the file
type envOverrides struct {
	Port          int    `env:"PORT"`
	DataDir       string `env:"DATA_DIR"`
	Backend       string `env:"STORAGE_BACKEND"`
	APIKey        string `env:"GEMINI_API_KEY"`
	Model         string `env:"GEMINI_MODEL"`
	ShortLinkBase string `env:"SHORT_LINK_BASE"`
	LogLevel      string `env:"LOG_LEVEL"`
	LogFormat     string `env:"LOG_FORMAT"`
	LogOutput     string `env:"LOG_OUTPUT"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:                 8090,
			BindAddress:          "0.0.0.0",
			EnableCORS:           true,
			AllowOrigins:         "*",
			ReadTimeout:          30,
			WriteTimeout:         60,
			IdleTimeout:          120,
			BodyLimit:            "2G",
			EnableRequestLogging: true,
			EnableCompression:    true,
			CompressionLevel:     5,
		},
		Storage: StorageConfig{
			Backend:          "file",
			DataDirectory:    "./data",
			PreviewDirectory: "./data/previews",
			DuckDBFile:       "./data/history.duckdb",
		},
		Insight: InsightConfig{
			Model:         "gemini-3-flash-preview",
			ShortLinkBase: "https://str.short",
		},
		Upload: UploadConfig{
			FinalizeDelayMillis:    500,
			MaxPreviewReferences:   64,
			JobRetentionMinutes:    30,
			CleanupIntervalMinutes: 5,
			AllowDeletion:          true,
		},
		Logging: logger.DefaultConfig(),
	}
}

// LoadConfig loads configuration from a YAML file, writing defaults on first run
func LoadConfig(configPath string) (*AppConfig, error) {
	config := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := config.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	} else {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	configDir := filepath.Dir(configPath)

	// .env next to the config file is optional
	dotenv := filepath.Join(configDir, ".env")
	if _, err := os.Stat(dotenv); err == nil {
		if err := godotenv.Load(dotenv); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", dotenv, err)
		}
	}

	if err := config.applyEnvironmentOverrides(); err != nil {
		return nil, err
	}

	config.resolvePaths(configDir)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks settings that would make startup destroy data. The preview
// directory is wiped on every start, so it must not hold the history, the
// spool or the logs.
func (c *AppConfig) Validate() error {
	if c.Storage.PreviewDirectory == "" {
		return fmt.Errorf("storage.previewDirectory is required")
	}
	previews := filepath.Clean(c.Storage.PreviewDirectory)

	for _, p := range []struct {
		name string
		path string
	}{
		{"storage.dataDirectory", c.Storage.DataDirectory},
		{"storage.duckdbFile", c.Storage.DuckDBFile},
		{"logging.directory", c.Logging.Directory},
	} {
		if p.path != "" && within(previews, filepath.Clean(p.path)) {
			return fmt.Errorf("storage.previewDirectory %s must not contain %s %s", previews, p.name, p.path)
		}
	}
	return nil
}

// within reports whether path is dir or lies below it.
func within(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// Save saves the configuration as YAML
func (c *AppConfig) Save(configPath string) error {
	output, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte("# StreamShort server configuration\n# This file is auto-generated on first run\n\n")
	content := append(header, output...)

	if err := os.WriteFile(configPath, content, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func (c *AppConfig) applyEnvironmentOverrides() error {
	var o envOverrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("failed to parse environment: %w", err)
	}

	if o.Port != 0 {
		c.Server.Port = o.Port
	}
	if o.DataDir != "" {
		c.Storage.DataDirectory = o.DataDir
		c.Storage.PreviewDirectory = filepath.Join(o.DataDir, "previews")
		c.Storage.DuckDBFile = filepath.Join(o.DataDir, "history.duckdb")
	}
	if o.Backend != "" {
		c.Storage.Backend = o.Backend
	}
	if o.APIKey != "" {
		c.Insight.APIKey = o.APIKey
	}
	if o.Model != "" {
		c.Insight.Model = o.Model
	}
	if o.ShortLinkBase != "" {
		c.Insight.ShortLinkBase = o.ShortLinkBase
	}
	if o.LogLevel != "" {
		c.Logging.Level = o.LogLevel
	}
	if o.LogFormat != "" {
		c.Logging.Format = o.LogFormat
	}
	if o.LogOutput != "" {
		c.Logging.Output = o.LogOutput
	}
	return nil
}

// resolvePaths converts relative paths to absolute based on config file location
func (c *AppConfig) resolvePaths(configDir string) {
	for _, p := range []*string{
		&c.Storage.DataDirectory,
		&c.Storage.PreviewDirectory,
		&c.Storage.DuckDBFile,
		&c.Logging.Directory,
	} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(configDir, *p)
		}
	}
}

// GetServerAddr returns the server bind address
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}

// FinalizeDelay returns the cosmetic delay shown at 100% progress
func (c *AppConfig) FinalizeDelay() time.Duration {
	return time.Duration(c.Upload.FinalizeDelayMillis) * time.Millisecond
}

// SpoolDirectory holds request bodies of uploads still in progress
func (c *AppConfig) SpoolDirectory() string {
	return filepath.Join(c.Storage.DataDirectory, "spool")
}

// EnsureDirectories creates all necessary directories
func (c *AppConfig) EnsureDirectories() error {
	dirs := []string{
		c.Storage.DataDirectory,
		c.Storage.PreviewDirectory,
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
