package vm

import (
	"io"
	"os"
	"sync"
)

// ---------------------------------------------------------------------------
// Runtime: one interpreter instance
// ---------------------------------------------------------------------------

// EvalFrameFunc evaluates a frame. throwflag asks the evaluator to raise
// the pending exception immediately instead of executing; it is set only by
// callers resuming a frame and compiled code must leave such frames to the
// interpreter.
type EvalFrameFunc func(ts *Thread, f *Frame, throwflag bool) (Object, error)

// DefaultRecursionLimit bounds nested frame evaluation.
const DefaultRecursionLimit = 1000

// Runtime owns the allocators, the builtins and the eval-frame hook. A
// runtime is driven by one goroutine at a time; Run serializes callers.
type Runtime struct {
	mu sync.Mutex

	evalFrame  EvalFrameFunc
	allocators [numDomains]Allocator
	counting   [numDomains]*CountingAllocator
	extraFree  []func(any)

	// Builtins is the namespace consulted after a frame's globals.
	Builtins *Dict

	// RecursionLimit bounds the depth of nested frames.
	RecursionLimit int

	// Stdout receives the output of print.
	Stdout io.Writer

	main   *Thread
	nextID uint64
}

// NewRuntime creates a runtime with counting allocators, the default
// interpreter as eval-frame hook and the builtins installed.
func NewRuntime() *Runtime {
	rt := &Runtime{
		RecursionLimit: DefaultRecursionLimit,
		Stdout:         os.Stdout,
	}
	for d := Domain(0); d < numDomains; d++ {
		rt.counting[d] = &CountingAllocator{}
		rt.allocators[d] = rt.counting[d]
	}
	rt.evalFrame = EvalFrameDefault
	rt.main = rt.NewThread()
	rt.Builtins = newBuiltins(rt.main)
	return rt
}

// NewThread creates a thread state bound to rt.
func (rt *Runtime) NewThread() *Thread {
	return &Thread{rt: rt}
}

// Main returns the runtime's main thread state.
func (rt *Runtime) Main() *Thread {
	return rt.main
}

// Run calls fn on the main thread while holding the runtime lock.
func (rt *Runtime) Run(fn func(ts *Thread) error) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return fn(rt.main)
}

// SetEvalFrame installs fn as the frame evaluator and returns the previous
// one. A nil fn restores EvalFrameDefault.
func (rt *Runtime) SetEvalFrame(fn EvalFrameFunc) EvalFrameFunc {
	prev := rt.evalFrame
	if fn == nil {
		fn = EvalFrameDefault
	}
	rt.evalFrame = fn
	return prev
}

// EvalFrameHook returns the installed frame evaluator.
func (rt *Runtime) EvalFrameHook() EvalFrameFunc {
	return rt.evalFrame
}

// RequestCodeExtraIndex reserves a slot in every code object of this
// runtime. free, if non-nil, is called with the slot's value when a code
// object holding one is deallocated.
func (rt *Runtime) RequestCodeExtraIndex(free func(any)) int {
	rt.extraFree = append(rt.extraFree, free)
	return len(rt.extraFree) - 1
}
