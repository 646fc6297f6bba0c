// Package config handles pgjit.toml configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/docker/go-units"

	"github.com/chazu/pgjit/jit"
)

// FileName is the name FindAndLoad looks for.
const FileName = "pgjit.toml"

// Config represents a pgjit.toml file.
type Config struct {
	JIT     JIT     `toml:"jit"`
	Log     Log     `toml:"log"`
	Journal Journal `toml:"journal"`

	// Dir is the directory containing the file (set at load time).
	Dir string `toml:"-"`
}

// JIT configures compilation.
type JIT struct {
	Graph                   bool `toml:"graph"`
	Debug                   bool `toml:"debug"`
	Tracing                 bool `toml:"tracing"`
	CodeObjectSizeLimit     Size `toml:"code_object_size_limit"`
	SpecializationThreshold int  `toml:"specialization_threshold"`
	ProbeRuns               int  `toml:"probe_runs"`
	MaxSteps                int  `toml:"max_steps"`
	LogCompilation          bool `toml:"log_compilation"`
}

// Log configures logging. Verbosity follows commonlog: 0 is errors only,
// each step adds a level.
type Log struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// Journal configures the compile journal.
type Journal struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Size is a byte count written either as an integer or as a human size
// such as "64KiB".
type Size int64

// UnmarshalTOML implements toml.Unmarshaler.
func (s *Size) UnmarshalTOML(v any) error {
	switch v := v.(type) {
	case int64:
		*s = Size(v)
	case string:
		n, err := units.RAMInBytes(v)
		if err != nil {
			return fmt.Errorf("invalid size %q: %w", v, err)
		}
		*s = Size(n)
	default:
		return fmt.Errorf("invalid size %v: want integer or string", v)
	}
	if *s < 0 {
		return fmt.Errorf("invalid size %d: negative", *s)
	}
	return nil
}

// String renders s for humans.
func (s Size) String() string {
	return units.BytesSize(float64(s))
}

// Default returns the configuration used without a pgjit.toml.
func Default() *Config {
	opts := jit.DefaultOptions()
	return &Config{
		JIT: JIT{
			CodeObjectSizeLimit: Size(opts.CodeObjectSizeLimit),
			ProbeRuns:           opts.ProbeRuns,
		},
		Log:     Log{Verbosity: 1},
		Journal: Journal{Path: "pgjit.db"},
	}
}

// Load parses the file at path over the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	c := Default()
	if err := toml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	c.Dir, err = filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", path, err)
	}
	return c, nil
}

// FindAndLoad walks up from startDir to find a pgjit.toml file and loads
// it. Returns nil if there is none.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, nil
		}
		dir = parent
	}
}

// JITOptions converts the [jit] section.
func (c *Config) JITOptions() jit.Options {
	return jit.Options{
		Graph:                   c.JIT.Graph,
		Debug:                   c.JIT.Debug,
		Tracing:                 c.JIT.Tracing,
		CodeObjectSizeLimit:     int(c.JIT.CodeObjectSizeLimit),
		SpecializationThreshold: c.JIT.SpecializationThreshold,
		ProbeRuns:               c.JIT.ProbeRuns,
		MaxSteps:                c.JIT.MaxSteps,
		LogCompilation:          c.JIT.LogCompilation,
	}
}

// JournalPath returns the journal database path, relative paths resolved
// against the config directory. Empty when the journal is disabled.
func (c *Config) JournalPath() string {
	if !c.Journal.Enabled || c.Journal.Path == "" {
		return ""
	}
	if filepath.IsAbs(c.Journal.Path) || c.Dir == "" {
		return c.Journal.Path
	}
	return filepath.Join(c.Dir, c.Journal.Path)
}

// LogFile returns the log file path or nil for stderr.
func (c *Config) LogFile() *string {
	if c.Log.File == "" {
		return nil
	}
	p := c.Log.File
	if !filepath.IsAbs(p) && c.Dir != "" {
		p = filepath.Join(c.Dir, p)
	}
	return &p
}
