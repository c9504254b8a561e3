// Package config loads the toolscope configuration file. Every field
// has a working default so a missing file is not an error: the capture
// path must come up even on an unconfigured host.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all pipeline settings.
type Config struct {
	SpoolDir   string `yaml:"spool_dir"`
	LedgerPath string `yaml:"ledger_path"`

	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"api_key"`

	BatchSize     int           `yaml:"batch_size"`
	DrainInterval Duration      `yaml:"drain_interval"`
	MaxAttempts   int           `yaml:"max_attempts"`
	BackoffBase   Duration      `yaml:"backoff_base"`
	BackoffCap    Duration      `yaml:"backoff_cap"`
	Retention     Duration      `yaml:"retention"`

	DetailBytes int    `yaml:"detail_bytes"`
	RawBytes    int    `yaml:"raw_bytes"`
	Redact      string `yaml:"redact"`
}

// DefaultDir is the base directory for spool, ledger, and config.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "/tmp/toolscope"
	}
	return filepath.Join(home, ".toolscope")
}

// DefaultPath is the default config file location.
func DefaultPath() string {
	return filepath.Join(DefaultDir(), "config.yaml")
}

// Default returns the built-in configuration.
func Default() *Config {
	base := DefaultDir()
	return &Config{
		SpoolDir:      filepath.Join(base, "spool"),
		LedgerPath:    filepath.Join(base, "ledger.db"),
		Endpoint:      "http://localhost:8844/v1/batches",
		BatchSize:     100,
		DrainInterval: Duration(15 * time.Second),
		MaxAttempts:   8,
		BackoffBase:   Duration(2 * time.Second),
		BackoffCap:    Duration(5 * time.Minute),
		Retention:     Duration(72 * time.Hour),
		DetailBytes:   4096,
		RawBytes:      8192,
		Redact:        "on",
	}
}

// Load reads the config at path, layering it over the defaults. A
// missing file yields the defaults; a malformed file is an error.
// TOOLSCOPE_ENDPOINT and TOOLSCOPE_API_KEY override the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// Defaults only.
	case err != nil:
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if v := os.Getenv("TOOLSCOPE_ENDPOINT"); v != "" {
		cfg.Endpoint = v
	}
	if v := os.Getenv("TOOLSCOPE_API_KEY"); v != "" {
		cfg.APIKey = v
	}
	return cfg, nil
}

// Write serializes the config to path, creating parent directories.
func (c *Config) Write(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("config: create directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}
