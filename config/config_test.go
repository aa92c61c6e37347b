package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kal.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope.yaml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	expected := Default()
	expected.Path = path
	if !reflect.DeepEqual(cfg, expected) {
		t.Errorf("expected defaults, got %+v", cfg)
	}
}

func TestLoadEmptyFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Prompt != "K> " || !cfg.Options.Optimize || cfg.Options.OptLevel != 2 {
		t.Errorf("expected defaults, got %+v", cfg)
	}
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
prompt: "kal> "
prelude: basiclib.kal
editor: basic
history_file: /tmp/kal_history
color: never
options:
  optimize: false
  dump_ir: true
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Prompt != "kal> " || cfg.Editor != EditorBasic || cfg.Color != ColorNever {
		t.Errorf("unexpected config %+v", cfg)
	}
	if cfg.HistoryFile != "/tmp/kal_history" {
		t.Errorf("unexpected history file %s", cfg.HistoryFile)
	}
	if expected := filepath.Join(filepath.Dir(path), "basiclib.kal"); cfg.Prelude != expected {
		t.Errorf("expected prelude %s, got %s", expected, cfg.Prelude)
	}

	opts := cfg.Options.Core()
	if opts.Optimize || !opts.DumpIR || opts.OptLevel != 2 {
		t.Errorf("unexpected options %+v", opts)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		input  string
		reason string
	}{
		{"promt: x", "field promt not found"},
		{"editor: vim", `editor must be "reeflective" or "basic"`},
		{"color: sometimes", "color must be auto, always or never"},
		{"options: {opt_level: 9}", "opt_level must be in 0..3"},
		{"options: [1, 2]", "cannot unmarshal"},
	}

	for _, tt := range tests {
		_, err := Load(writeConfig(t, tt.input))
		if err == nil {
			t.Errorf("%q: expected an error", tt.input)
			continue
		}
		if !strings.Contains(err.Error(), tt.reason) {
			t.Errorf("%q: expected error containing %q, got %v", tt.input, tt.reason, err)
		}
	}
}

func TestDefaultPath(t *testing.T) {
	t.Setenv(EnvVar, "/etc/kal.yaml")
	if got := DefaultPath(); got != "/etc/kal.yaml" {
		t.Errorf("expected the environment to win, got %s", got)
	}

	t.Setenv(EnvVar, "")
	if got := DefaultPath(); !strings.HasSuffix(got, ".kal.yaml") || strings.HasPrefix(got, "~") {
		t.Errorf("unexpected default path %s", got)
	}
}
