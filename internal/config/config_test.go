package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func TestParseConfig_ValidFull(t *testing.T) {
	yaml := `
workers: 4
max_instance_depth: 16
log_level: debug
language_version: 1.3.2
report_db: runs.db
serve_addr: localhost:9000
color: never
libraries:
  - prelude
  - libs/algebra
`
	cfg, err := ParseConfig([]byte(yaml), "/proj/funcore.yaml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Workers != 4 {
		t.Errorf("workers = %d, want 4", cfg.Workers)
	}
	if cfg.MaxInstanceDepth != 16 {
		t.Errorf("max_instance_depth = %d, want 16", cfg.MaxInstanceDepth)
	}
	if cfg.Level() != slog.LevelDebug {
		t.Errorf("level = %v, want debug", cfg.Level())
	}
	if got := cfg.Version().String(); got != "1.3.2" {
		t.Errorf("version = %s, want 1.3.2", got)
	}
	if cfg.Color != ColorNever {
		t.Errorf("color = %q, want never", cfg.Color)
	}
	if got := cfg.ReportPath(); got != filepath.Join("/proj", "runs.db") {
		t.Errorf("report path = %q", got)
	}
	dirs := cfg.LibraryDirs()
	if len(dirs) != 2 || dirs[1] != filepath.Join("/proj", "libs/algebra") {
		t.Errorf("library dirs = %v", dirs)
	}
}

func TestParseConfig_Defaults(t *testing.T) {
	cfg, err := ParseConfig([]byte("{}"), "funcore.yaml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Workers != runtime.NumCPU() {
		t.Errorf("workers = %d, want %d", cfg.Workers, runtime.NumCPU())
	}
	if cfg.MaxInstanceDepth != DefaultMaxInstanceDepth {
		t.Errorf("max_instance_depth = %d", cfg.MaxInstanceDepth)
	}
	if cfg.LanguageVersion != LanguageVersion {
		t.Errorf("language_version = %q", cfg.LanguageVersion)
	}
	if cfg.Color != ColorAuto {
		t.Errorf("color = %q, want auto", cfg.Color)
	}
	if cfg.ServeAddr != DefaultServeAddr {
		t.Errorf("serve_addr = %q", cfg.ServeAddr)
	}
	if cfg.ReportPath() != "" {
		t.Errorf("report path = %q, want empty", cfg.ReportPath())
	}
}

func TestParseConfig_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"negative workers", "workers: -1", "workers must not be negative"},
		{"bad level", "log_level: loud", "log_level"},
		{"bad version", "language_version: one", "language_version"},
		{"bad color", "color: sometimes", "color must be"},
		{"empty library", "libraries: ['']", "path is required"},
		{"duplicate library", "libraries: [a, ./a]", "already listed"},
		{"not yaml", "workers: [", "parsing"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tt.yaml), "funcore.yaml")
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want it to contain %q", err, tt.want)
			}
		})
	}
}

func TestFindConfig(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(root, "funcore.yml")
	if err := os.WriteFile(path, []byte("workers: 2\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := FindConfig(nested)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != path {
		t.Errorf("FindConfig = %q, want %q", got, path)
	}

	cfg, err := LoadConfig(got)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Workers != 2 || cfg.Dir != root {
		t.Errorf("loaded %+v", cfg)
	}
}

func TestLoadConfig_Missing(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "funcore.yaml"))
	if err == nil || !strings.Contains(err.Error(), "reading config") {
		t.Errorf("error = %v", err)
	}
}

func TestIsCoreFile(t *testing.T) {
	for name, want := range map[string]bool{
		"nat.yaml": true,
		"nat.yml":  true,
		".yaml":    false,
		"nat.lang": false,
	} {
		if got := IsCoreFile(name); got != want {
			t.Errorf("IsCoreFile(%q) = %v, want %v", name, got, want)
		}
	}
}
