package vm

// ---------------------------------------------------------------------------
// Functions and calls
// ---------------------------------------------------------------------------

// Function is a code object bound to its globals.
type Function struct {
	Header
	Code     *Code
	Globals  *Dict
	Name     string
	Defaults []Object
}

// NewFunction creates a function. code, globals and defaults are borrowed.
func NewFunction(ts *Thread, code *Code, globals *Dict, name string, defaults []Object) *Function {
	IncRef(code)
	IncRef(globals)
	defs := make([]Object, len(defaults))
	for i, d := range defaults {
		IncRef(d)
		defs[i] = d
	}
	return &Function{
		Header:   ts.newHeader(FunctionType, FunctionType.size),
		Code:     code,
		Globals:  globals,
		Name:     name,
		Defaults: defs,
	}
}

func (fn *Function) release() {
	ReleaseAll(fn.Defaults)
	fn.Defaults = nil
	DecRef(fn.Code)
	DecRef(fn.Globals)
}

// Builtin is a function implemented in Go.
type Builtin struct {
	Header
	Name string
	Fn   CallFunc
}

// NewBuiltin wraps fn.
func NewBuiltin(ts *Thread, name string, fn CallFunc) *Builtin {
	return &Builtin{Header: ts.newHeader(BuiltinType, BuiltinType.size), Name: name, Fn: fn}
}

// Call invokes callable with borrowed args.
func Call(ts *Thread, callable Object, args []Object) (Object, error) {
	switch c := callable.(type) {
	case *Function:
		return callFunction(ts, c, args)
	case *Builtin:
		return c.Fn(ts, args)
	case *Type:
		if c.new == nil {
			return nil, ts.Raise(TypeErrorType, "cannot create '%s' instances", c.Name)
		}
		return c.new(ts, args)
	}
	return nil, ts.Raise(TypeErrorType, "'%s' object is not callable", TypeName(callable))
}

func callFunction(ts *Thread, fn *Function, args []Object) (Object, error) {
	code := fn.Code
	n := code.ArgCount
	if len(args) > n || len(args) < n-len(fn.Defaults) {
		return nil, ts.Raise(TypeErrorType, "%s() takes %d positional arguments but %d were given", fn.Name, n, len(args))
	}
	f := NewFrame(ts, code, fn.Globals, args)
	for i := len(args); i < n; i++ {
		d := fn.Defaults[i-(n-len(fn.Defaults))]
		IncRef(d)
		f.Locals[i] = d
	}
	res, err := ts.EvalFrame(f)
	f.Release()
	return res, err
}
