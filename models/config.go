// Package models defines the runtime configuration shared by all commands.
package models

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dtnitsch/pagespeed-ai/pkg/artifact_manager"
)

// DefaultConfigFile is read when present and --config is not given.
const DefaultConfigFile = "pagespeed.yaml"

type CriticalConfig struct {
	Matcher      string `yaml:"matcher"`
	Minify       bool   `yaml:"minify"`
	SectionLimit int    `yaml:"section_limit"`
}

type TransformConfig struct {
	CacheMaxAge   time.Duration `yaml:"cache_max_age"`
	PositionLimit int           `yaml:"position_limit"`
}

type AuditConfig struct {
	Binary        string        `yaml:"binary"`
	UseBrave      bool          `yaml:"use_brave"`
	ChromePath    string        `yaml:"chrome_path"`
	MockOnFailure bool          `yaml:"mock_on_failure"`
	Settle        time.Duration `yaml:"settle"`
}

// Config holds runtime configuration. Values come from the YAML file and are
// then overridden by CLI flags.
type Config struct {
	OutputDir  string          `yaml:"output_dir"`
	ReportsDir string          `yaml:"reports_dir"`
	Workers    int             `yaml:"workers"`
	UserAgent  string          `yaml:"user_agent"`
	Timeout    time.Duration   `yaml:"timeout"`
	CacheDir   string          `yaml:"cache_dir"`
	CacheTTL   time.Duration   `yaml:"cache_ttl"`
	Critical   CriticalConfig  `yaml:"critical"`
	Transform  TransformConfig `yaml:"transform"`
	Audit      AuditConfig     `yaml:"audit"`
	DBPath     string          `yaml:"db_path"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		OutputDir:  artifact_manager.DefaultBaseDir,
		ReportsDir: artifact_manager.DefaultReportsDir,
		Workers:    4,
		Timeout:    30 * time.Second,
		CacheDir:   ".pagespeed-cache",
		CacheTTL:   time.Hour,
		Critical:   CriticalConfig{Matcher: "substring", SectionLimit: 3},
		Transform:  TransformConfig{CacheMaxAge: 365 * 24 * time.Hour, PositionLimit: 800},
		Audit: AuditConfig{
			Binary:        "lighthouse",
			UseBrave:      true,
			MockOnFailure: true,
			Settle:        2 * time.Second,
		},
	}
}

// LoadConfig reads path on top of the defaults. A missing file is not an
// error; the defaults are returned.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings no command can run with.
func (c *Config) Validate() error {
	switch c.Critical.Matcher {
	case "substring", "engine":
	default:
		return fmt.Errorf("invalid config: unknown matcher %q (want substring or engine)", c.Critical.Matcher)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("invalid config: workers must be positive, got %d", c.Workers)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("invalid config: negative timeout %s", c.Timeout)
	}
	if c.Critical.SectionLimit < 0 {
		return fmt.Errorf("invalid config: negative section_limit %d", c.Critical.SectionLimit)
	}
	return nil
}
