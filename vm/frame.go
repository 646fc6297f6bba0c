package vm

// Frame is the execution state of one code object invocation.
type Frame struct {
	Code     *Code
	Globals  *Dict
	Builtins *Dict
	// Locals are the fast local slots; nil marks an unbound local.
	Locals []Object
	// Names is the name-scope namespace of module frames, nil otherwise.
	Names *Dict
	Back  *Frame
	// Line is the last line reported to a tracer.
	Line int

	rt   *Runtime
	size int
}

// NewFrame creates a frame for code with the given arguments. args are
// borrowed; missing arguments stay unbound.
func NewFrame(ts *Thread, code *Code, globals *Dict, args []Object) *Frame {
	rt := ts.rt
	size := 96 + 8*(code.NLocals()+code.StackSize)
	rt.malloc(ts, DomainRaw, size)
	f := &Frame{
		Code:     code,
		Globals:  globals,
		Builtins: rt.Builtins,
		Locals:   make([]Object, code.NLocals()),
		rt:       rt,
		size:     size,
	}
	IncRef(code)
	IncRef(globals)
	for i, a := range args {
		IncRef(a)
		f.Locals[i] = a
	}
	return f
}

// NewModuleFrame creates a frame whose name scope is globals.
func NewModuleFrame(ts *Thread, code *Code, globals *Dict) *Frame {
	f := NewFrame(ts, code, globals, nil)
	f.Names = globals
	return f
}

// Release drops the frame's references and returns its block.
func (f *Frame) Release() {
	for i, o := range f.Locals {
		if o != nil {
			f.Locals[i] = nil
			DecRef(o)
		}
	}
	DecRef(f.Globals)
	DecRef(f.Code)
	f.rt.free(DomainRaw, f.size)
}

// LoadGlobal resolves name in the frame's globals then builtins, borrowed.
func (f *Frame) LoadGlobal(ts *Thread, name string) (Object, error) {
	if v := f.Globals.GetStr(name); v != nil {
		return v, nil
	}
	if v := f.Builtins.GetStr(name); v != nil {
		return v, nil
	}
	return nil, ts.Raise(NameErrorType, "name '%s' is not defined", name)
}

// UnboundLocal raises the error for reading an unbound fast local.
func (f *Frame) UnboundLocal(ts *Thread, slot int) error {
	return ts.Raise(UnboundLocalErrorType, "local variable '%s' referenced before assignment", f.Code.VarNames[slot])
}
