// Package config loads the pmeyes YAML configuration.
//
// The file is optional: when it does not exist the defaults reproduce the
// conventional layout (articles/ in, data/ out), so every command runs with
// no configuration at all.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is the configuration file looked up when -c is not given.
const DefaultPath = "pmeyes.yaml"

// Config is the root configuration document.
type Config struct {
	Content ContentConfig `yaml:"content"`
	Output  OutputConfig  `yaml:"output"`
	Assets  AssetsConfig  `yaml:"assets"`
	Images  ImagesConfig  `yaml:"images"`
	Locales LocalesConfig `yaml:"locales"`
	Serve   ServeConfig   `yaml:"serve"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Events  EventsConfig  `yaml:"events"`
	History HistoryConfig `yaml:"history"`
}

// ContentConfig describes the markdown source tree.
type ContentConfig struct {
	Root          string   `yaml:"root"`
	ReservedFiles []string `yaml:"reserved_files"`
	Uncategorized string   `yaml:"uncategorized"`
	GitMetadata   bool     `yaml:"git_metadata"`
}

// OutputConfig describes where generated JSON goes.
type OutputConfig struct {
	ArticlesDir string `yaml:"articles_dir"`
	IndexFile   string `yaml:"index_file"`
	CacheFile   string `yaml:"cache_file"`
	WriteIndex  *bool  `yaml:"write_index"`
}

// IndexEnabled reports whether the aggregate index document is written.
func (o OutputConfig) IndexEnabled() bool {
	return o.WriteIndex == nil || *o.WriteIndex
}

// Root is the directory served under /data by the preview server.
func (o OutputConfig) Root() string {
	return filepath.Dir(filepath.Clean(o.ArticlesDir))
}

// AssetsConfig describes the public asset root.
type AssetsConfig struct {
	Dir       string `yaml:"dir"`
	URLPrefix string `yaml:"url_prefix"`
}

// ImagesConfig configures the image compressor.
type ImagesConfig struct {
	MaxBytes int64 `yaml:"max_bytes"`
}

// LocalesConfig configures the locale generator.
type LocalesConfig struct {
	SourceDir string   `yaml:"source_dir"`
	OutputDir string   `yaml:"output_dir"`
	CacheFile string   `yaml:"cache_file"`
	Base      string   `yaml:"base"`
	Languages []string `yaml:"languages"`
}

// ServeConfig configures the preview/API server.
type ServeConfig struct {
	Addr            string        `yaml:"addr"`
	StaticDir       string        `yaml:"static_dir"`
	RebuildInterval time.Duration `yaml:"rebuild_interval"`
}

// LoggingConfig selects slog level and handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig enables the Prometheus textfile export.
type MetricsConfig struct {
	Textfile string `yaml:"textfile"`
}

// EventsConfig enables NATS event publishing.
type EventsConfig struct {
	NATSURL string      `yaml:"nats_url"`
	Subject string      `yaml:"subject"`
	Retry   RetryConfig `yaml:"retry"`
}

// BackoffMode selects how retry delays grow.
type BackoffMode string

const (
	BackoffFixed       BackoffMode = "fixed"
	BackoffLinear      BackoffMode = "linear"
	BackoffExponential BackoffMode = "exponential"
)

// RetryConfig bounds retries of transient publish failures.
type RetryConfig struct {
	Backoff    BackoffMode   `yaml:"backoff"`
	Initial    time.Duration `yaml:"initial"`
	Max        time.Duration `yaml:"max"`
	MaxRetries int           `yaml:"max_retries"`
}

// HistoryConfig enables the SQLite run history.
type HistoryConfig struct {
	Path string `yaml:"path"`
}

// Default returns a configuration populated with the built-in defaults.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads the configuration at path. A missing file is not an error when
// path is the default location; an explicitly requested file must exist.
func Load(path string) (*Config, error) {
	// .env files are optional.
	_ = loadEnvFile()

	if path == "" {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && path == DefaultPath {
			cfg := Default()
			return cfg, cfg.Validate()
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML after ${VAR} expansion, applies defaults and validates.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}
