// Package config reads funcore.yaml, the project configuration of a checking
// run, and holds the constants shared by the other packages.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"
)

// Config represents the top-level funcore.yaml configuration.
type Config struct {
	// Workers bounds the number of definition groups checked at once.
	// Defaults to the number of CPUs.
	Workers int `yaml:"workers,omitempty"`

	// MaxInstanceDepth bounds recursive instance search.
	MaxInstanceDepth int `yaml:"max_instance_depth,omitempty"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level,omitempty"`

	// LanguageVersion overrides the language version libraries are checked
	// against. Defaults to the version of this build.
	LanguageVersion string `yaml:"language_version,omitempty"`

	// ReportDB is the SQLite file runs are recorded in, relative to the
	// config file. Empty disables recording.
	ReportDB string `yaml:"report_db,omitempty"`

	// ServeAddr is the listen address of `funcore serve`.
	ServeAddr string `yaml:"serve_addr,omitempty"`

	// Color is auto, always or never.
	Color string `yaml:"color,omitempty"`

	// Libraries lists library directories (each with a library.yaml),
	// relative to the config file.
	Libraries []string `yaml:"libraries,omitempty"`

	// Dir is the directory of the config file. Not read from YAML.
	Dir string `yaml:"-"`
}

// Default returns the configuration used when no funcore.yaml is found.
func Default() *Config {
	cfg := &Config{Dir: "."}
	cfg.setDefaults()
	return cfg
}

// LoadConfig reads and parses a funcore.yaml file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	return ParseConfig(data, path)
}

// ParseConfig parses funcore.yaml content from bytes.
// The path argument is used for error messages and to resolve relative paths.
func ParseConfig(data []byte, path string) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := cfg.validate(path); err != nil {
		return nil, err
	}
	cfg.Dir = filepath.Dir(path)
	cfg.setDefaults()
	return &cfg, nil
}

// FindConfig searches for funcore.yaml starting from dir and walking up
// to parent directories.
// Returns the path to the config file and nil error if found,
// or empty string and nil error if not found.
func FindConfig(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving directory: %w", err)
	}

	base := strings.TrimSuffix(ConfigFileName, filepath.Ext(ConfigFileName))
	for {
		for _, ext := range CoreFileExtensions {
			candidate := filepath.Join(dir, base+ext)
			if _, err := os.Stat(candidate); err == nil {
				return candidate, nil
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

// validate checks the configuration for semantic errors.
func (c *Config) validate(path string) error {
	if c.Workers < 0 {
		return fmt.Errorf("%s: workers must not be negative", path)
	}
	if c.MaxInstanceDepth < 0 {
		return fmt.Errorf("%s: max_instance_depth must not be negative", path)
	}
	if c.LogLevel != "" {
		var l slog.Level
		if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
			return fmt.Errorf("%s: log_level: %w", path, err)
		}
	}
	if c.LanguageVersion != "" {
		if _, err := semver.NewVersion(c.LanguageVersion); err != nil {
			return fmt.Errorf("%s: language_version %q: %w", path, c.LanguageVersion, err)
		}
	}
	switch c.Color {
	case "", ColorAuto, ColorAlways, ColorNever:
	default:
		return fmt.Errorf("%s: color must be %s, %s or %s, got %q", path, ColorAuto, ColorAlways, ColorNever, c.Color)
	}

	seen := make(map[string]int)
	for i, lib := range c.Libraries {
		if lib == "" {
			return fmt.Errorf("%s: libraries[%d]: path is required", path, i)
		}
		clean := filepath.Clean(lib)
		if j, ok := seen[clean]; ok {
			return fmt.Errorf("%s: libraries[%d]: %s is already listed at libraries[%d]", path, i, lib, j)
		}
		seen[clean] = i
	}
	return nil
}

// setDefaults fills in default values for omitted fields.
func (c *Config) setDefaults() {
	if c.Workers == 0 {
		c.Workers = runtime.NumCPU()
	}
	if c.MaxInstanceDepth == 0 {
		c.MaxInstanceDepth = DefaultMaxInstanceDepth
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.LanguageVersion == "" {
		c.LanguageVersion = LanguageVersion
	}
	if c.ServeAddr == "" {
		c.ServeAddr = DefaultServeAddr
	}
	if c.Color == "" {
		c.Color = DefaultColor
	}
}

// Level returns the slog level named by LogLevel.
func (c *Config) Level() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// Version returns the language version as a semantic version.
func (c *Config) Version() *semver.Version {
	v, err := semver.NewVersion(c.LanguageVersion)
	if err != nil {
		return semver.MustParse(LanguageVersion)
	}
	return v
}

// LibraryDirs returns the library directories resolved against Dir.
func (c *Config) LibraryDirs() []string {
	out := make([]string, len(c.Libraries))
	for i, lib := range c.Libraries {
		if filepath.IsAbs(lib) {
			out[i] = lib
		} else {
			out[i] = filepath.Join(c.Dir, lib)
		}
	}
	return out
}

// ReportPath returns the report database path resolved against Dir, or ""
// when recording is disabled.
func (c *Config) ReportPath() string {
	if c.ReportDB == "" || filepath.IsAbs(c.ReportDB) {
		return c.ReportDB
	}
	return filepath.Join(c.Dir, c.ReportDB)
}
