package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/suyashkumar/dicom/pkg/tag"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dicomsort.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
root: /data/mri
workers: 4
output:
  sorted: out/sorted
  anonymized: out/anon
anonymize:
  fields:
    - PatientName
    - "0008,0080"
log:
  level: debug
  format: json
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Root != "/data/mri" || cfg.Workers != 4 {
		t.Errorf("root/workers = %q/%d", cfg.Root, cfg.Workers)
	}
	if cfg.Output.Sorted != "out/sorted" || cfg.Output.Anonymized != "out/anon" {
		t.Errorf("output = %+v", cfg.Output)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	fields, err := cfg.Fields()
	if err != nil {
		t.Fatalf("Fields: %v", err)
	}
	if len(fields) != 2 || fields[0] != tag.PatientName || fields[1] != tag.InstitutionName {
		t.Errorf("Fields() = %v", fields)
	}
	if cfg.Level() != zerolog.DebugLevel {
		t.Errorf("Level() = %v, want debug", cfg.Level())
	}
}

func TestLoad_PartialKeepsDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "workers: 2\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	def := Default()
	if cfg.Output != def.Output || cfg.Log != def.Log {
		t.Errorf("defaults lost: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoad_EmptyFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Output != Default().Output {
		t.Errorf("output = %+v", cfg.Output)
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected an error for a missing file")
	}
	if _, err := Load(writeConfig(t, "wokers: 2\n")); err == nil {
		t.Error("expected an error for an unknown key")
	}
	if _, err := Load(writeConfig(t, "workers: [1, 2]\n")); err == nil {
		t.Error("expected an error for a malformed value")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "saved.yaml")
	cfg := Default()
	cfg.Workers = 3
	cfg.Anonymize.Fields = []string{"PatientID"}

	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Workers != 3 || len(loaded.Anonymize.Fields) != 1 || loaded.Anonymize.Fields[0] != "PatientID" {
		t.Errorf("loaded = %+v", loaded)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"negative workers", func(c *Config) { c.Workers = -1 }, "workers"},
		{"absolute sorted", func(c *Config) { c.Output.Sorted = "/tmp/out" }, "relative"},
		{"escaping anonymized", func(c *Config) { c.Output.Anonymized = "../out" }, "below the scan root"},
		{"root itself", func(c *Config) { c.Output.Sorted = "." }, "below the scan root"},
		{"same dirs", func(c *Config) { c.Output.Anonymized = c.Output.Sorted }, "overlap"},
		{"nested dirs", func(c *Config) { c.Output.Anonymized = "processed/sorted/anon" }, "overlap"},
		{"sibling prefix", func(c *Config) { c.Output.Anonymized = "processed/sorted2" }, ""},
		{"unknown field", func(c *Config) { c.Anonymize.Fields = []string{"PatinetName"} }, "did you mean"},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("Validate() = %v, want error containing %q", err, tc.wantErr)
			}
		})
	}
}
