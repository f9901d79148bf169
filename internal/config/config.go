// Package config loads dicomsort settings from an optional YAML file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mrsinham/dicomsort/internal/export"
	"github.com/mrsinham/dicomsort/internal/util"
	"github.com/rs/zerolog"
	"github.com/suyashkumar/dicom/pkg/tag"
	"gopkg.in/yaml.v3"
)

// Config represents the complete configuration for YAML serialization.
type Config struct {
	Root      string          `yaml:"root"`
	Workers   int             `yaml:"workers"`
	Output    OutputConfig    `yaml:"output"`
	Anonymize AnonymizeConfig `yaml:"anonymize"`
	Log       LogConfig       `yaml:"log"`
}

// OutputConfig holds the output directories, relative to the scan root.
type OutputConfig struct {
	Sorted     string `yaml:"sorted"`
	Anonymized string `yaml:"anonymized"`
}

// AnonymizeConfig lists the fields removed from de-identified copies. Each
// entry is a field name or a "gggg,eeee" tag.
type AnonymizeConfig struct {
	Fields []string `yaml:"fields,omitempty"`
}

// LogConfig selects the log level ("debug", "info", ...) and format
// ("console" or "json").
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Log formats.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Output: OutputConfig{
			Sorted:     export.DefaultSortedDir,
			Anonymized: export.DefaultAnonymizedDir,
		},
		Log: LogConfig{
			Level:  zerolog.InfoLevel.String(),
			Format: FormatConsole,
		},
	}
}

// Load reads a YAML file over Default. Unknown keys are rejected.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg as YAML.
func Save(path string, cfg Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Validate checks every field and returns all problems joined together.
func (c Config) Validate() error {
	var errs []error

	if c.Workers < 0 {
		errs = append(errs, fmt.Errorf("workers must not be negative, got %d", c.Workers))
	}

	sorted, err := cleanOutputDir("output.sorted", c.Output.Sorted)
	if err != nil {
		errs = append(errs, err)
	}
	anonymized, err := cleanOutputDir("output.anonymized", c.Output.Anonymized)
	if err != nil {
		errs = append(errs, err)
	}
	if sorted != "" && anonymized != "" && overlaps(sorted, anonymized) {
		errs = append(errs, fmt.Errorf("output.sorted %q and output.anonymized %q overlap", sorted, anonymized))
	}

	if _, err := c.Fields(); err != nil {
		errs = append(errs, err)
	}

	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil || c.Log.Level == "" {
		errs = append(errs, fmt.Errorf("log.level: unknown level %q", c.Log.Level))
	}
	switch c.Log.Format {
	case FormatConsole, FormatJSON:
	default:
		errs = append(errs, fmt.Errorf("log.format must be %q or %q, got %q", FormatConsole, FormatJSON, c.Log.Format))
	}

	return errors.Join(errs...)
}

// Fields resolves Anonymize.Fields. An empty list returns nil, which selects
// the default field set.
func (c Config) Fields() ([]tag.Tag, error) {
	if len(c.Anonymize.Fields) == 0 {
		return nil, nil
	}
	tags := make([]tag.Tag, 0, len(c.Anonymize.Fields))
	for _, f := range c.Anonymize.Fields {
		t, err := util.ParseTag(f)
		if err != nil {
			return nil, fmt.Errorf("anonymize.fields: %w", err)
		}
		tags = append(tags, t)
	}
	return tags, nil
}

// Level returns the parsed log level, or info if it is invalid.
func (c Config) Level() zerolog.Level {
	level, err := zerolog.ParseLevel(c.Log.Level)
	if err != nil || c.Log.Level == "" {
		return zerolog.InfoLevel
	}
	return level
}

// cleanOutputDir requires a relative path that stays below the scan root.
func cleanOutputDir(field, dir string) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("%s must not be empty", field)
	}
	if filepath.IsAbs(dir) {
		return "", fmt.Errorf("%s must be relative to the scan root, got %q", field, dir)
	}
	clean := filepath.Clean(dir)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s must stay below the scan root, got %q", field, dir)
	}
	return clean, nil
}

func overlaps(a, b string) bool {
	sep := string(filepath.Separator)
	return a == b || strings.HasPrefix(a, b+sep) || strings.HasPrefix(b, a+sep)
}
