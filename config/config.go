// Package config loads the kal command's YAML settings file.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ajkachnic/kal/core"
)

const (
	EditorReeflective = "reeflective"
	EditorBasic       = "basic"

	ColorAuto   = "auto"
	ColorAlways = "always"
	ColorNever  = "never"
)

// EnvVar names the variable that overrides the default config path.
const EnvVar = "KAL_CONFIG"

type Config struct {
	Path        string  `yaml:"-"`
	Prompt      string  `yaml:"prompt"`
	Prelude     string  `yaml:"prelude"`
	Editor      string  `yaml:"editor"`
	HistoryFile string  `yaml:"history_file"`
	Color       string  `yaml:"color"`
	Options     Options `yaml:"options"`
}

// Options mirrors core.Options with YAML names.
type Options struct {
	Optimize  bool `yaml:"optimize"`
	OptLevel  int  `yaml:"opt_level"`
	DumpIR    bool `yaml:"dump_ir"`
	NoExec    bool `yaml:"no_exec"`
	ParseOnly bool `yaml:"parse_only"`
	Verbose   bool `yaml:"verbose"`
}

func (o Options) Core() core.Options {
	return core.Options{
		Optimize:  o.Optimize,
		OptLevel:  o.OptLevel,
		DumpIR:    o.DumpIR,
		NoExec:    o.NoExec,
		ParseOnly: o.ParseOnly,
		Verbose:   o.Verbose,
	}
}

func Default() *Config {
	d := core.DefaultOptions()
	return &Config{
		Prompt:      "K> ",
		Editor:      EditorReeflective,
		HistoryFile: ExpandHome("~/.kal_history"),
		Color:       ColorAuto,
		Options: Options{
			Optimize:  d.Optimize,
			OptLevel:  d.OptLevel,
			DumpIR:    d.DumpIR,
			NoExec:    d.NoExec,
			ParseOnly: d.ParseOnly,
			Verbose:   d.Verbose,
		},
	}
}

// DefaultPath is $KAL_CONFIG, or ~/.kal.yaml when it is unset.
func DefaultPath() string {
	if p := os.Getenv(EnvVar); p != "" {
		return p
	}
	return ExpandHome("~/.kal.yaml")
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// Load reads the file at path over the defaults. A missing or empty file
// yields the defaults; unknown keys are an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	cfg.Path = path

	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.HistoryFile = ExpandHome(cfg.HistoryFile)
	cfg.Prelude = cfg.resolve(cfg.Prelude)
	return cfg, nil
}

func (c *Config) validate() error {
	issues := []string{}
	switch c.Editor {
	case EditorReeflective, EditorBasic:
	default:
		issues = append(issues, fmt.Sprintf("editor must be %q or %q, got %q", EditorReeflective, EditorBasic, c.Editor))
	}
	switch c.Color {
	case ColorAuto, ColorAlways, ColorNever:
	default:
		issues = append(issues, fmt.Sprintf("color must be auto, always or never, got %q", c.Color))
	}
	if c.Options.OptLevel < 0 || c.Options.OptLevel > 3 {
		issues = append(issues, fmt.Sprintf("options.opt_level must be in 0..3, got %d", c.Options.OptLevel))
	}
	if len(issues) > 0 {
		return fmt.Errorf("config: %s: %s", c.Path, strings.Join(issues, "; "))
	}
	return nil
}

// resolve makes a relative prelude path relative to the config file.
func (c *Config) resolve(path string) string {
	path = ExpandHome(path)
	if path == "" || filepath.IsAbs(path) || c.Path == "" {
		return path
	}
	return filepath.Join(filepath.Dir(c.Path), path)
}
