package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/chazu/pgjit/jit"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
[jit]
graph = true
debug = true
code_object_size_limit = "64KiB"
specialization_threshold = 3
probe_runs = 2
log_compilation = true

[log]
verbosity = 2
file = "pgjit.log"

[journal]
enabled = true
path = "compiles.db"
`)

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	want := jit.Options{
		Graph:                   true,
		Debug:                   true,
		CodeObjectSizeLimit:     64 * 1024,
		SpecializationThreshold: 3,
		ProbeRuns:               2,
		LogCompilation:          true,
	}
	if diff := cmp.Diff(want, c.JITOptions()); diff != "" {
		t.Errorf("options mismatch (-want +got):\n%s", diff)
	}
	if c.Log.Verbosity != 2 {
		t.Errorf("verbosity = %d, want 2", c.Log.Verbosity)
	}
	if got := c.LogFile(); got == nil || *got != filepath.Join(c.Dir, "pgjit.log") {
		t.Errorf("log file = %v", got)
	}
	if got := c.JournalPath(); got != filepath.Join(c.Dir, "compiles.db") {
		t.Errorf("journal path = %q", got)
	}
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "[jit]\ntracing = true\n")
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	want := jit.DefaultOptions()
	want.Tracing = true
	if diff := cmp.Diff(want, c.JITOptions()); diff != "" {
		t.Errorf("options mismatch (-want +got):\n%s", diff)
	}
	if c.JournalPath() != "" {
		t.Errorf("disabled journal has path %q", c.JournalPath())
	}
	if c.LogFile() != nil {
		t.Errorf("log file = %q, want stderr", *c.LogFile())
	}
}

func TestSize(t *testing.T) {
	tests := []struct {
		value   string
		want    Size
		wantErr bool
	}{
		{"20000", 20000, false},
		{`"10KiB"`, 10240, false},
		{`"1m"`, 1 << 20, false},
		{"0", 0, false},
		{"-1", 0, true},
		{`"lots"`, 0, true},
		{"1.5", 0, true},
	}
	for _, tc := range tests {
		t.Run(tc.value, func(t *testing.T) {
			path := writeConfig(t, t.TempDir(), "[jit]\ncode_object_size_limit = "+tc.value+"\n")
			c, err := Load(path)
			if tc.wantErr {
				if err == nil {
					t.Errorf("Load succeeded with limit %d", c.JIT.CodeObjectSizeLimit)
				}
				return
			}
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if c.JIT.CodeObjectSizeLimit != tc.want {
				t.Errorf("limit = %d, want %d", c.JIT.CodeObjectSizeLimit, tc.want)
			}
		})
	}
}

func TestFindAndLoad(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "[jit]\nprobe_runs = 4\n")
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}

	c, err := FindAndLoad(nested)
	if err != nil {
		t.Fatalf("FindAndLoad: %v", err)
	}
	if c == nil {
		t.Fatal("no config found")
	}
	if c.JIT.ProbeRuns != 4 {
		t.Errorf("probe runs = %d, want 4", c.JIT.ProbeRuns)
	}
	abs, _ := filepath.Abs(root)
	if c.Dir != abs {
		t.Errorf("dir = %q, want %q", c.Dir, abs)
	}
}

func TestFindAndLoadMissing(t *testing.T) {
	c, err := FindAndLoad(t.TempDir())
	if err != nil {
		t.Fatalf("FindAndLoad: %v", err)
	}
	// A pgjit.toml above the temp dir would be found; only check the type.
	if c != nil && c.Dir == "" {
		t.Error("config loaded without a directory")
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), FileName)); err == nil {
		t.Error("Load of a missing file succeeded")
	}
	path := writeConfig(t, t.TempDir(), "[jit\n")
	if _, err := Load(path); err == nil {
		t.Error("Load of malformed TOML succeeded")
	}
}
