package vm

import (
	"bytes"
	"strings"
	"testing"

	bc "github.com/chazu/pgjit/pkg/bytecode"
)

// buildCode assembles a code object from the instructions emitted by body.
func buildCode(t *testing.T, ts *Thread, name string, argc int, varNames []string, consts []Object, names []string, body func(a *bc.Assembler)) *Code {
	t.Helper()
	a := bc.NewAssembler()
	a.SetLine(1)
	body(a)
	raw, lines, err := a.Assemble()
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	code, err := NewCode(ts, CodeSpec{
		Name:     name,
		ArgCount: argc,
		VarNames: varNames,
		Names:    names,
		Consts:   consts,
		Bytecode: raw,
		Lines:    lines,
	})
	if err != nil {
		t.Fatalf("NewCode: %v", err)
	}
	return code
}

// sumTo builds: def f(n): total = 0; i = 0; while i < n: total += i; i += 1; return total
func sumTo(t *testing.T, ts *Thread) *Code {
	return buildCode(t, ts, "sum_to", 1, []string{"n", "total", "i"},
		[]Object{NewInt(ts, 0), NewInt(ts, 1)}, nil, func(a *bc.Assembler) {
			top := a.NewLabel()
			done := a.NewLabel()
			a.Emit(bc.LOAD_CONST, 0)
			a.Emit(bc.STORE_FAST, 1)
			a.Emit(bc.LOAD_CONST, 0)
			a.Emit(bc.STORE_FAST, 2)
			a.Bind(top)
			a.SetLine(2)
			a.Emit(bc.LOAD_FAST, 2)
			a.Emit(bc.LOAD_FAST, 0)
			a.Emit(bc.COMPARE_OP, bc.CmpLT)
			a.EmitJump(bc.POP_JUMP_IF_FALSE, done)
			a.SetLine(3)
			a.Emit(bc.LOAD_FAST, 1)
			a.Emit(bc.LOAD_FAST, 2)
			a.Emit(bc.INPLACE_ADD, 0)
			a.Emit(bc.STORE_FAST, 1)
			a.Emit(bc.LOAD_FAST, 2)
			a.Emit(bc.LOAD_CONST, 1)
			a.Emit(bc.INPLACE_ADD, 0)
			a.Emit(bc.STORE_FAST, 2)
			a.EmitJump(bc.JUMP_ABSOLUTE, top)
			a.Bind(done)
			a.SetLine(4)
			a.Emit(bc.LOAD_FAST, 1)
			a.Emit(bc.RETURN_VALUE, 0)
		})
}

func TestInterpreterLoop(t *testing.T) {
	rt := NewRuntime()
	ts := rt.Main()
	code := sumTo(t, ts)
	globals := NewDict(ts)
	fn := NewFunction(ts, code, globals, "sum_to", nil)

	tests := []struct {
		n    int64
		want string
	}{
		{0, "0"},
		{1, "0"},
		{10, "45"},
		{1000, "499500"},
	}
	for _, tt := range tests {
		arg := NewInt(ts, tt.n)
		res, err := Call(ts, fn, []Object{arg})
		if err != nil {
			t.Fatalf("sum_to(%d): %v", tt.n, err)
		}
		if got := Repr(res); got != tt.want {
			t.Errorf("sum_to(%d) = %s, want %s", tt.n, got, tt.want)
		}
		DecRef(res)
		DecRef(arg)
	}
	DecRef(fn)
	DecRef(code)
}

func TestInterpreterBalancesAllocations(t *testing.T) {
	rt := NewRuntime()
	ts := rt.Main()
	code := sumTo(t, ts)
	globals := NewDict(ts)
	fn := NewFunction(ts, code, globals, "sum_to", nil)

	raw := rt.DomainStats(DomainRaw).Live()
	mem := rt.DomainStats(DomainMem).Live()
	obj := rt.DomainStats(DomainObject).Live()
	arg := NewInt(ts, 5000)
	res, err := Call(ts, fn, []Object{arg})
	if err != nil {
		t.Fatal(err)
	}
	DecRef(res)
	DecRef(arg)
	if got := rt.DomainStats(DomainRaw).Live(); got != raw {
		t.Errorf("raw live = %d, want %d", got, raw)
	}
	if got := rt.DomainStats(DomainMem).Live(); got != mem {
		t.Errorf("mem live = %d, want %d", got, mem)
	}
	if got := rt.DomainStats(DomainObject).Live(); got != obj {
		t.Errorf("object live = %d, want %d", got, obj)
	}
}

func TestInterpreterErrors(t *testing.T) {
	rt := NewRuntime()
	ts := rt.Main()
	globals := NewDict(ts)

	tests := []struct {
		name   string
		consts []Object
		body   func(a *bc.Assembler)
		want   *Type
	}{
		{
			name:   "divide by zero",
			consts: []Object{NewInt(ts, 1), NewInt(ts, 0)},
			body: func(a *bc.Assembler) {
				a.Emit(bc.LOAD_CONST, 0)
				a.Emit(bc.LOAD_CONST, 1)
				a.Emit(bc.BINARY_FLOOR_DIVIDE, 0)
				a.Emit(bc.RETURN_VALUE, 0)
			},
			want: ZeroDivisionErrorType,
		},
		{
			name: "unbound local",
			body: func(a *bc.Assembler) {
				a.Emit(bc.LOAD_FAST, 0)
				a.Emit(bc.RETURN_VALUE, 0)
			},
			want: UnboundLocalErrorType,
		},
		{
			name: "assertion",
			body: func(a *bc.Assembler) {
				a.Emit(bc.LOAD_ASSERTION_ERROR, 0)
				a.Emit(bc.RAISE_VARARGS, 1)
			},
			want: AssertionErrorType,
		},
		{
			name:   "index",
			consts: []Object{NewInt(ts, 5)},
			body: func(a *bc.Assembler) {
				a.Emit(bc.BUILD_LIST, 0)
				a.Emit(bc.LOAD_CONST, 0)
				a.Emit(bc.BINARY_SUBSCR, 0)
				a.Emit(bc.RETURN_VALUE, 0)
			},
			want: IndexErrorType,
		},
		{
			name:   "mixed types",
			consts: []Object{NewInt(ts, 1), NewStr(ts, "x")},
			body: func(a *bc.Assembler) {
				a.Emit(bc.LOAD_CONST, 0)
				a.Emit(bc.LOAD_CONST, 1)
				a.Emit(bc.BINARY_ADD, 0)
				a.Emit(bc.RETURN_VALUE, 0)
			},
			want: TypeErrorType,
		},
		{
			// No complex type: the result of (-8.0) ** 0.5 is a domain error.
			name:   "negative base fractional power",
			consts: []Object{NewFloat(ts, -8), NewFloat(ts, 0.5)},
			body: func(a *bc.Assembler) {
				a.Emit(bc.LOAD_CONST, 0)
				a.Emit(bc.LOAD_CONST, 1)
				a.Emit(bc.BINARY_POWER, 0)
				a.Emit(bc.RETURN_VALUE, 0)
			},
			want: ValueErrorType,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code := buildCode(t, ts, "f", 0, []string{"x"}, tt.consts, nil, tt.body)
			fn := NewFunction(ts, code, globals, "f", nil)
			_, err := Call(ts, fn, nil)
			if !ExceptionMatches(err, tt.want) {
				t.Errorf("error = %v, want %s", err, tt.want.Name)
			}
			ReleaseError(err)
			DecRef(fn)
			DecRef(code)
		})
	}
}

func TestInterpreterBuildAndUnpack(t *testing.T) {
	rt := NewRuntime()
	ts := rt.Main()
	// a, b = 1, 2; return [b, a]
	code := buildCode(t, ts, "swap", 0, []string{"a", "b"},
		[]Object{NewInt(ts, 1), NewInt(ts, 2)}, nil, func(a *bc.Assembler) {
			a.Emit(bc.LOAD_CONST, 0)
			a.Emit(bc.LOAD_CONST, 1)
			a.Emit(bc.BUILD_TUPLE, 2)
			a.Emit(bc.UNPACK_SEQUENCE, 2)
			a.Emit(bc.STORE_FAST, 0)
			a.Emit(bc.STORE_FAST, 1)
			a.Emit(bc.LOAD_FAST, 1)
			a.Emit(bc.LOAD_FAST, 0)
			a.Emit(bc.BUILD_LIST, 2)
			a.Emit(bc.RETURN_VALUE, 0)
		})
	fn := NewFunction(ts, code, NewDict(ts), "swap", nil)
	res, err := Call(ts, fn, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := Repr(res); got != "[2, 1]" {
		t.Errorf("swap() = %s, want [2, 1]", got)
	}
	DecRef(res)
}

func TestInterpreterGlobalsAndCalls(t *testing.T) {
	rt := NewRuntime()
	ts := rt.Main()
	var out bytes.Buffer
	rt.Stdout = &out
	// print(len("abc"), max(3, 9, 4))
	code := buildCode(t, ts, "main", 0, nil,
		[]Object{NewStr(ts, "abc"), NewInt(ts, 3), NewInt(ts, 9), NewInt(ts, 4)},
		[]string{"print", "len", "max"}, func(a *bc.Assembler) {
			a.Emit(bc.LOAD_GLOBAL, 0)
			a.Emit(bc.LOAD_GLOBAL, 1)
			a.Emit(bc.LOAD_CONST, 0)
			a.Emit(bc.CALL_FUNCTION, 1)
			a.Emit(bc.LOAD_GLOBAL, 2)
			a.Emit(bc.LOAD_CONST, 1)
			a.Emit(bc.LOAD_CONST, 2)
			a.Emit(bc.LOAD_CONST, 3)
			a.Emit(bc.CALL_FUNCTION, 3)
			a.Emit(bc.CALL_FUNCTION, 2)
			a.Emit(bc.RETURN_VALUE, 0)
		})
	res, err := RunModule(ts, code, NewDict(ts))
	if err != nil {
		t.Fatal(err)
	}
	if res != None {
		t.Errorf("result = %s, want None", Repr(res))
	}
	if got := strings.TrimSpace(out.String()); got != "3 9" {
		t.Errorf("output = %q, want %q", got, "3 9")
	}
}

func TestInterpreterTracer(t *testing.T) {
	rt := NewRuntime()
	ts := rt.Main()
	code := sumTo(t, ts)
	fn := NewFunction(ts, code, NewDict(ts), "sum_to", nil)
	var lines []int
	ts.Tracer = func(f *Frame, line int) {
		lines = append(lines, line)
	}
	arg := NewInt(ts, 1)
	res, err := Call(ts, fn, []Object{arg})
	ts.Tracer = nil
	if err != nil {
		t.Fatal(err)
	}
	DecRef(res)
	want := []int{1, 2, 3, 2, 4}
	if len(lines) != len(want) {
		t.Fatalf("lines = %v, want %v", lines, want)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("lines = %v, want %v", lines, want)
			break
		}
	}
}

func TestRecursionLimit(t *testing.T) {
	rt := NewRuntime()
	ts := rt.Main()
	rt.RecursionLimit = 50
	globals := NewDict(ts)
	// def f(): return f()
	code := buildCode(t, ts, "f", 0, nil, nil, []string{"f"}, func(a *bc.Assembler) {
		a.Emit(bc.LOAD_GLOBAL, 0)
		a.Emit(bc.CALL_FUNCTION, 0)
		a.Emit(bc.RETURN_VALUE, 0)
	})
	fn := NewFunction(ts, code, globals, "f", nil)
	globals.SetStr(ts, "f", fn)
	_, err := Call(ts, fn, nil)
	if !ExceptionMatches(err, RecursionErrorType) {
		t.Errorf("error = %v, want RecursionError", err)
	}
	if ts.Depth() != 0 {
		t.Errorf("depth after unwind = %d", ts.Depth())
	}
}

func TestEvalFrameHook(t *testing.T) {
	rt := NewRuntime()
	ts := rt.Main()
	calls := 0
	prev := rt.SetEvalFrame(func(ts *Thread, f *Frame, throwflag bool) (Object, error) {
		calls++
		return EvalFrameDefault(ts, f, throwflag)
	})
	code := sumTo(t, ts)
	fn := NewFunction(ts, code, NewDict(ts), "sum_to", nil)
	arg := NewInt(ts, 3)
	res, err := Call(ts, fn, []Object{arg})
	if err != nil {
		t.Fatal(err)
	}
	DecRef(res)
	if calls != 1 {
		t.Errorf("hook calls = %d, want 1", calls)
	}
	rt.SetEvalFrame(prev)
	if rt.EvalFrameHook() == nil {
		t.Error("hook should be restored")
	}
}

func TestNewCodeStackSize(t *testing.T) {
	ts := NewRuntime().Main()
	assemble := func(body func(a *bc.Assembler)) []byte {
		t.Helper()
		a := bc.NewAssembler()
		body(a)
		raw, _, err := a.Assemble()
		if err != nil {
			t.Fatalf("Assemble: %v", err)
		}
		return raw
	}

	spin := assemble(func(a *bc.Assembler) {
		top := a.NewLabel()
		a.Bind(top)
		a.EmitJump(bc.JUMP_ABSOLUTE, top)
	})
	code, err := NewCode(ts, CodeSpec{Name: "spin", Bytecode: spin})
	if err != nil {
		t.Fatalf("NewCode: %v", err)
	}
	if code.StackSize != 1 {
		t.Errorf("StackSize = %d, want 1", code.StackSize)
	}
	DecRef(code)

	pair := assemble(func(a *bc.Assembler) {
		a.Emit(bc.LOAD_CONST, 0)
		a.Emit(bc.LOAD_CONST, 0)
		a.Emit(bc.BUILD_TUPLE, 2)
		a.Emit(bc.RETURN_VALUE, 0)
	})
	code, err = NewCode(ts, CodeSpec{Name: "pair", Consts: []Object{None}, Bytecode: pair, StackSize: 1})
	if err != nil {
		t.Fatalf("NewCode: %v", err)
	}
	if code.StackSize != 2 {
		t.Errorf("StackSize = %d, want the computed depth 2", code.StackSize)
	}
	DecRef(code)

	for name, raw := range map[string][]byte{
		"empty return": assemble(func(a *bc.Assembler) { a.Emit(bc.RETURN_VALUE, 0) }),
		"final pop":    assemble(func(a *bc.Assembler) { a.Emit(bc.POP_TOP, 0) }),
	} {
		if _, err := NewCode(ts, CodeSpec{Name: name, Bytecode: raw, StackSize: 4}); err == nil || !strings.Contains(err.Error(), "underflow") {
			t.Errorf("%s: NewCode = %v, want underflow", name, err)
		}
	}
}
