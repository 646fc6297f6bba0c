package jit

import (
	"context"
	"errors"
	"fmt"

	"github.com/chazu/pgjit/jit/journal"
)

// DefaultCodeObjectSizeLimit is the largest bytecode, in bytes, compiled by
// default.
const DefaultCodeObjectSizeLimit = 10_000

// ErrInvalidOptions is returned by Install for inconsistent options.
var ErrInvalidOptions = errors.New("invalid jit options")

// Recorder receives one journal entry per compile attempt.
type Recorder interface {
	Record(ctx context.Context, e journal.Entry) error
}

// Options configures a JIT.
type Options struct {
	// Graph keeps a Graphviz dump of each compiled instruction graph.
	Graph bool
	// Debug keeps probe-point metadata in the IL of optimized code.
	Debug bool
	// Tracing keeps line events in compiled code.
	Tracing bool
	// CodeObjectSizeLimit is the largest bytecode compiled, in bytes. Zero
	// disables the limit.
	CodeObjectSizeLimit int
	// SpecializationThreshold is the number of interpreted calls before a
	// code object is first compiled.
	SpecializationThreshold int
	// ProbeRuns is the number of probed runs before optimizing.
	ProbeRuns int
	// MaxSteps bounds the abstract interpretation of one code object.
	MaxSteps int
	// LogCompilation logs compile events at info level instead of debug.
	LogCompilation bool

	// Recorder, if set, journals every compile attempt.
	Recorder Recorder
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		CodeObjectSizeLimit: DefaultCodeObjectSizeLimit,
		ProbeRuns:           1,
	}
}

func (o Options) validate() error {
	switch {
	case o.CodeObjectSizeLimit < 0:
		return fmt.Errorf("%w: negative code object size limit", ErrInvalidOptions)
	case o.SpecializationThreshold < 0:
		return fmt.Errorf("%w: negative specialization threshold", ErrInvalidOptions)
	case o.ProbeRuns < 1:
		return fmt.Errorf("%w: probe runs must be at least 1, got %d", ErrInvalidOptions, o.ProbeRuns)
	case o.MaxSteps < 0:
		return fmt.Errorf("%w: negative step limit", ErrInvalidOptions)
	}
	return nil
}
