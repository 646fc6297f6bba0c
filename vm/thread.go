package vm

// TraceFunc receives a line event whenever execution reaches a new source
// line of f.
type TraceFunc func(f *Frame, line int)

// Thread is the per-thread interpreter state.
type Thread struct {
	rt    *Runtime
	frame *Frame
	depth int

	// allocCtx is the profile the allocator probe records into; the frame
	// shim sets it on entry and restores it on exit.
	allocCtx any

	// Tracer, if set, receives line events.
	Tracer TraceFunc
}

// Runtime returns the runtime the thread belongs to.
func (ts *Thread) Runtime() *Runtime {
	return ts.rt
}

// Frame returns the innermost executing frame.
func (ts *Thread) Frame() *Frame {
	return ts.frame
}

// Depth returns the number of frames being evaluated.
func (ts *Thread) Depth() int {
	return ts.depth
}

// AllocContext returns the context set by SetAllocContext.
func (ts *Thread) AllocContext() any {
	return ts.allocCtx
}

// SetAllocContext installs ctx and returns the previous context.
func (ts *Thread) SetAllocContext(ctx any) any {
	prev := ts.allocCtx
	ts.allocCtx = ctx
	return prev
}

// EvalFrame evaluates f through the runtime's eval-frame hook.
func (ts *Thread) EvalFrame(f *Frame) (Object, error) {
	if ts.depth >= ts.rt.RecursionLimit {
		return nil, ts.Raise(RecursionErrorType, "maximum recursion depth exceeded")
	}
	ts.depth++
	f.Back = ts.frame
	ts.frame = f
	res, err := ts.rt.evalFrame(ts, f, false)
	ts.frame = f.Back
	f.Back = nil
	ts.depth--
	return res, err
}
