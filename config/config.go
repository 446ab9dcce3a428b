// Package config loads dicomscan settings from YAML.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// HeaderConfig controls header extraction.
type HeaderConfig struct {
	// MaxBytes is the number of bytes read from the start of each file
	MaxBytes int `yaml:"max_bytes"`
}

// SniffConfig controls name based recognition.
type SniffConfig struct {
	// Extensions are matched case-insensitively and include the leading dot
	Extensions []string `yaml:"extensions"`

	// ReservedNames are the names of directory index files
	ReservedNames []string `yaml:"reserved_names"`
}

// ClassifyConfig controls the browser filter.
type ClassifyConfig struct {
	// DeepCheck enables content checks for files without a recognized name
	DeepCheck bool `yaml:"deep_check"`

	// SyncBudget is the number of content checks done synchronously per listing
	SyncBudget int `yaml:"sync_budget"`

	// MaxPending caps asynchronous checks in flight (0 = unlimited)
	MaxPending int `yaml:"max_pending"`

	// RefilterDelay debounces refilters triggered by asynchronous results
	RefilterDelay time.Duration `yaml:"refilter_delay"`

	// IndexSuffix is the suffix shown in index file mode
	IndexSuffix string `yaml:"index_suffix"`
}

// ScanConfig controls series scans.
type ScanConfig struct {
	// Concurrency is the number of files read in parallel
	Concurrency int `yaml:"concurrency"`

	// MaxFiles caps the candidate files of one scan
	MaxFiles int `yaml:"max_files"`
}

// Config represents dicomscan configuration options
type Config struct {
	// LogLevel sets the logging verbosity (trace, debug, info, warn, error)
	LogLevel string `yaml:"log_level"`

	Header   HeaderConfig   `yaml:"header"`
	Sniff    SniffConfig    `yaml:"sniff"`
	Classify ClassifyConfig `yaml:"classify"`
	Scan     ScanConfig     `yaml:"scan"`
}

// DefaultConfig returns a Config with default values
func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Header: HeaderConfig{
			MaxBytes: 1 << 20,
		},
		Sniff: SniffConfig{
			Extensions:    []string{".dcm", ".dicom", ".ima"},
			ReservedNames: []string{"DICOMDIR", "DIRFILE", "DICOMDIR;1"},
		},
		Classify: ClassifyConfig{
			DeepCheck:     false,
			SyncBudget:    32,
			MaxPending:    0, // Unlimited
			RefilterDelay: 256 * time.Millisecond,
			IndexSuffix:   ".3dr",
		},
		Scan: ScanConfig{
			Concurrency: 4,
			MaxFiles:    20000,
		},
	}
}

// LoadConfig loads configuration from the specified file path.
// Keys present in the file override the defaults; a missing file yields the defaults.
// A malformed or invalid file is an error.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	validLevels := map[string]bool{
		"trace": true,
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("invalid log_level %q, must be one of: trace, debug, info, warn, error", c.LogLevel)
	}

	if c.Header.MaxBytes < 132 {
		return fmt.Errorf("header.max_bytes must be >= 132, got %d", c.Header.MaxBytes)
	}

	for _, ext := range c.Sniff.Extensions {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("sniff.extensions entry %q must start with a dot", ext)
		}
	}

	if c.Classify.SyncBudget < 0 {
		return fmt.Errorf("classify.sync_budget must be >= 0, got %d", c.Classify.SyncBudget)
	}
	if c.Classify.MaxPending < 0 {
		return fmt.Errorf("classify.max_pending must be >= 0, got %d", c.Classify.MaxPending)
	}
	if c.Classify.RefilterDelay < 0 {
		return fmt.Errorf("classify.refilter_delay must be >= 0, got %v", c.Classify.RefilterDelay)
	}
	if c.Classify.IndexSuffix == "" {
		return fmt.Errorf("classify.index_suffix cannot be empty")
	}

	if c.Scan.Concurrency <= 0 {
		return fmt.Errorf("scan.concurrency must be > 0, got %d", c.Scan.Concurrency)
	}
	if c.Scan.MaxFiles <= 0 {
		return fmt.Errorf("scan.max_files must be > 0, got %d", c.Scan.MaxFiles)
	}

	return nil
}
