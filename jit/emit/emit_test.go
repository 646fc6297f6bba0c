package emit

import (
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/chazu/pgjit/compiler"
	"github.com/chazu/pgjit/jit/absint"
	"github.com/chazu/pgjit/jit/profile"
	bc "github.com/chazu/pgjit/pkg/bytecode"
	"github.com/chazu/pgjit/vm"
)

type fixture struct {
	rt *vm.Runtime
	ts *vm.Thread
	fn *vm.Function
}

func load(t *testing.T, source string) fixture {
	t.Helper()
	rt := vm.NewRuntime()
	ts := rt.Main()
	globals, err := compiler.Exec(ts, source, "test.py")
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	fn, ok := globals.GetStr("f").(*vm.Function)
	if !ok {
		t.Fatal("f is not a function")
	}
	return fixture{rt: rt, ts: ts, fn: fn}
}

func (fx fixture) compile(t *testing.T, aopts absint.Options, opts Options) (*absint.Result, *Artifact) {
	t.Helper()
	res, err := absint.Interpret(fx.fn.Code, aopts)
	if err != nil {
		t.Fatalf("Interpret: %v\n%s", err, fx.fn.Code.Disassemble())
	}
	art, err := Compile(fx.fn.Code, res, opts)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	return res, art
}

func (fx fixture) jit(art *Artifact, prof *profile.Store, args []vm.Object) (vm.Object, error) {
	f := vm.NewFrame(fx.ts, fx.fn.Code, fx.fn.Globals, args)
	defer f.Release()
	return art.Entry(fx.ts, f, prof)
}

func (fx fixture) interp(args []vm.Object) (vm.Object, error) {
	f := vm.NewFrame(fx.ts, fx.fn.Code, fx.fn.Globals, args)
	defer f.Release()
	return vm.EvalFrameDefault(fx.ts, f, false)
}

// outcome renders a result or error and releases it.
func outcome(r vm.Object, err error) string {
	if err != nil {
		s := vm.ExceptionKind(err)
		if e, ok := vm.AsException(err); ok {
			s += ": " + e.Message()
		}
		vm.ReleaseError(err)
		return s
	}
	s := vm.Repr(r)
	vm.DecRef(r)
	return s
}

func TestMatchesInterpreter(t *testing.T) {
	tests := []struct {
		name   string
		source string
		args   func(ts *vm.Thread) []vm.Object
	}{
		{"machine word local", "def f():\n    x = 4611686018427387903\n    x += 1\n    x -= 1\n    return -x\n", nil},
		{"word boundary", "def f():\n    x = 4611686018427387903\n    x += 1\n    return -x\n", nil},
		{"overflow", "def f():\n    x = 9223372036854775807\n    x += 1\n    return x\n", nil},
		{"float arithmetic", "def f():\n    a = 1.5\n    b = 2.25\n    return a * b + a / b - b // a + b % a\n", nil},
		{"mixed compare", "def f():\n    return 3 < 3.5, 3.5 < 3, 2 == 2.0\n", nil},
		{"int true divide", "def f():\n    return 7 / 2\n", nil},
		{"int divide by zero", "def f():\n    return 1 / 0\n", nil},
		{"float divide by zero", "def f():\n    return 1.0 / 0.0\n", nil},
		{"modulo by zero", "def f():\n    return 5 % 0\n", nil},
		{"negative constants", "def f():\n    a = -3\n    b = +a\n    return a * b, -2.5, not a\n", nil},
		{"loop", "def f(n):\n    t = 0\n    i = 0\n    while i < n:\n        t += i\n        i += 1\n    return t\n",
			func(ts *vm.Thread) []vm.Object { return []vm.Object{vm.NewInt(ts, 10)} }},
		{"list index", "def f(n):\n    xs = [1, 2, 3]\n    return xs[n] + xs[-1]\n",
			func(ts *vm.Thread) []vm.Object { return []vm.Object{vm.NewInt(ts, 1)} }},
		{"list index out of range", "def f(n):\n    xs = [1, 2, 3]\n    return xs[n]\n",
			func(ts *vm.Thread) []vm.Object { return []vm.Object{vm.NewInt(ts, 3)} }},
		{"unpacking loop", "def f():\n    t = 0\n    for a, b in [(1, 2), (3, 4)]:\n        t += a * b\n    return t\n", nil},
		{"strings", "def f(s):\n    return s + '!'\n",
			func(ts *vm.Thread) []vm.Object { return []vm.Object{vm.NewStr(ts, "hi")} }},
		{"failed assert", "def f():\n    assert 1 == 2\n", nil},
		{"passing assert", "def f():\n    assert 1.5 < 2\n    return 1\n", nil},
		{"unbound local", "def f(c):\n    if c:\n        x = 1\n    return x\n",
			func(ts *vm.Thread) []vm.Object { return []vm.Object{vm.NewInt(ts, 0)} }},
		{"displays", "def f():\n    d = {'a': 1}\n    s = {1, 2}\n    return d['a'] + len(s), [*s], (1, 2)[::-1]\n", nil},
		{"boolean chains", "def f(x):\n    return 1 < 2 and x, 0 or x, x is None, 2 in [1, 2]\n",
			func(ts *vm.Thread) []vm.Object { return []vm.Object{vm.NewFloat(ts, 0.5)} }},
		{"calls", "def g(a, b=2):\n    return a * b\ndef f():\n    return g(3) + g(1, 5)\n", nil},
		{"raise", "def f():\n    raise ValueError('boom')\n", nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			fx := load(t, tc.source)
			var args []vm.Object
			if tc.args != nil {
				args = tc.args(fx.ts)
				defer vm.ReleaseAll(args)
			}
			_, art := fx.compile(t, absint.Options{}, Options{})
			want := outcome(fx.interp(args))
			got := outcome(fx.jit(art, nil, args))
			if got != want {
				t.Errorf("compiled = %s, interpreted = %s", got, want)
			}
		})
	}
}

func TestConstantIdentity(t *testing.T) {
	fx := load(t, "def f():\n    x = 1.5\n    y = x\n    return x is y, x\n")
	res, art := fx.compile(t, absint.Options{}, Options{})
	if len(res.UnboxedLocals) != 2 {
		t.Fatalf("UnboxedLocals = %v, want x and y", res.UnboxedLocals)
	}
	r, err := fx.jit(art, nil, nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	defer vm.DecRef(r)
	items := r.(*vm.Tuple).Items()
	if items[0] != vm.Object(vm.True) {
		t.Errorf("x is y = %s, want True", vm.Repr(items[0]))
	}
	var c vm.Object
	for _, o := range fx.fn.Code.Consts {
		if _, ok := o.(*vm.Float); ok {
			c = o
		}
	}
	if items[1] != c {
		t.Error("returned float is not the constant object")
	}
}

func TestBalancesReferences(t *testing.T) {
	tests := []struct {
		name   string
		source string
		arg    func(ts *vm.Thread) vm.Object
	}{
		{"raw floats", "def f(a):\n    x = 1.5\n    y = x * 2.0\n    return y + a\n",
			func(ts *vm.Thread) vm.Object { return vm.NewFloat(ts, 0.25) }},
		{"error with raw locals", "def f(a):\n    x = 1.5\n    y = x * 2.0\n    return y + a\n",
			func(ts *vm.Thread) vm.Object { return vm.NewStr(ts, "s") }},
		{"loop", "def f(n):\n    t = 0.0\n    for i in range(n):\n        t += i / 2\n    return t\n",
			func(ts *vm.Thread) vm.Object { return vm.NewInt(ts, 20) }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			fx := load(t, tc.source)
			_, art := fx.compile(t, absint.Options{}, Options{})
			arg := tc.arg(fx.ts)
			defer vm.DecRef(arg)
			objects := fx.rt.DomainStats(vm.DomainObject).Live()
			mem := fx.rt.DomainStats(vm.DomainMem).Live()
			for i := 0; i < 3; i++ {
				outcome(fx.jit(art, nil, []vm.Object{arg}))
			}
			if live := fx.rt.DomainStats(vm.DomainObject).Live(); live != objects {
				t.Errorf("live objects = %d, want %d", live, objects)
			}
			if live := fx.rt.DomainStats(vm.DomainMem).Live(); live != mem {
				t.Errorf("live stack blocks = %d, want %d", live, mem)
			}
		})
	}
}

func TestSpeculativeUnboxing(t *testing.T) {
	fx := load(t, "def f(a, b):\n    return a * b + a\n")
	prof := profile.New()
	defer prof.Close()
	x := vm.NewFloat(fx.ts, 1.5)
	for _, in := range fx.fn.Code.Instrs() {
		if in.Op.IsBinary() {
			prof.Record(in.Offset, 0, x)
			prof.Record(in.Offset, 1, x)
		}
	}
	vm.DecRef(x)
	res, art := fx.compile(t, absint.Options{Profile: prof}, Options{})
	var escaped int
	for _, in := range res.Instrs {
		if in.Op.IsBinary() && res.Graph.Escaped(in.Offset) {
			escaped++
		}
	}
	if escaped != 2 {
		t.Fatalf("%d binary instructions escaped, want 2\n%s", escaped, res.Graph.Dot("f"))
	}

	huge := new(big.Int).Lsh(big.NewInt(1), 70)
	tests := []struct {
		name string
		args func(ts *vm.Thread) []vm.Object
	}{
		{"floats", func(ts *vm.Thread) []vm.Object {
			return []vm.Object{vm.NewFloat(ts, 1.5), vm.NewFloat(ts, -2.25)}
		}},
		{"ints", func(ts *vm.Thread) []vm.Object {
			return []vm.Object{vm.NewInt(ts, 7), vm.NewInt(ts, 6)}
		}},
		{"int and float", func(ts *vm.Thread) []vm.Object {
			return []vm.Object{vm.NewInt(ts, 3), vm.NewFloat(ts, 0.5)}
		}},
		{"overflowing product", func(ts *vm.Thread) []vm.Object {
			return []vm.Object{vm.NewInt(ts, 1<<40), vm.NewInt(ts, 1<<40)}
		}},
		{"big int", func(ts *vm.Thread) []vm.Object {
			return []vm.Object{vm.NewBigInt(ts, huge), vm.NewInt(ts, 2)}
		}},
		{"string repeat", func(ts *vm.Thread) []vm.Object {
			return []vm.Object{vm.NewStr(ts, "ab"), vm.NewInt(ts, 3)}
		}},
		{"type error", func(ts *vm.Thread) []vm.Object {
			return []vm.Object{vm.NewStr(ts, "ab"), vm.NewStr(ts, "cd")}
		}},
		{"bools", func(ts *vm.Thread) []vm.Object {
			return []vm.Object{vm.True, vm.True}
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			args := tc.args(fx.ts)
			defer vm.ReleaseAll(args)
			want := outcome(fx.interp(args))
			objects := fx.rt.DomainStats(vm.DomainObject).Live()
			got := outcome(fx.jit(art, nil, args))
			if got != want {
				t.Errorf("compiled = %s, interpreted = %s", got, want)
			}
			if live := fx.rt.DomainStats(vm.DomainObject).Live(); live != objects {
				t.Errorf("live objects = %d, want %d", live, objects)
			}
		})
	}
}

func TestProbesRecordOperands(t *testing.T) {
	fx := load(t, "def f(a, b):\n    return a + b\n")
	res, art := fx.compile(t, absint.Options{Probes: true}, Options{Probes: true})
	var add int
	for _, in := range res.Instrs {
		if in.Op == bc.BINARY_ADD {
			add = in.Offset
		}
	}
	if res.ProbePoints[add] != 2 {
		t.Fatalf("ProbePoints = %v, want 2 operands at %d", res.ProbePoints, add)
	}
	prof := profile.New()
	defer prof.Close()
	a, b := vm.NewFloat(fx.ts, 1), vm.NewStr(fx.ts, "x")
	defer vm.DecRef(a)
	defer vm.DecRef(b)
	outcome(fx.jit(art, prof, []vm.Object{a, b}))
	if got := prof.Type(add, 0); got != vm.StrType {
		t.Errorf("slot 0 type = %v, want str", got)
	}
	if got := prof.Type(add, 1); got != vm.FloatType {
		t.Errorf("slot 1 type = %v, want float", got)
	}

	// Probe metadata without runtime probes records nothing.
	_, quiet := fx.compile(t, absint.Options{Probes: true}, Options{})
	empty := profile.New()
	defer empty.Close()
	outcome(fx.jit(quiet, empty, []vm.Object{a, b}))
	if empty.Len() != 0 {
		t.Errorf("unprobed code recorded %d observations", empty.Len())
	}
}

func TestIL(t *testing.T) {
	fx := load(t, "def f(n):\n    x = 2.5\n    return x * n\n")
	res, art := fx.compile(t, absint.Options{Probes: true}, Options{})
	if art.IL[0] != ILVersion || ILVersion != 3 {
		t.Fatalf("IL version byte = %d", art.IL[0])
	}
	il, err := DecodeIL(art.IL)
	if err != nil {
		t.Fatalf("DecodeIL: %v", err)
	}
	if il.Name != "f" || il.ArgCount != 1 || il.Probes {
		t.Errorf("header = %q args %d probes %v", il.Name, il.ArgCount, il.Probes)
	}
	if len(il.Instrs) != len(res.Instrs) {
		t.Fatalf("IL has %d instructions, want %d", len(il.Instrs), len(res.Instrs))
	}
	var escapes, want []int
	for i, in := range res.Instrs {
		if res.Graph.Escaped(in.Offset) {
			want = append(want, in.Offset)
		}
		if il.Instrs[i].Escape {
			escapes = append(escapes, il.Instrs[i].Offset)
		}
	}
	if diff := cmp.Diff(want, escapes); diff != "" {
		t.Errorf("escaped offsets mismatch (-want +got):\n%s", diff)
	}
	if art.NativeSize != wordSize*il.Words || art.Words != il.Words {
		t.Errorf("NativeSize = %d, Words = %d, IL words = %d", art.NativeSize, art.Words, il.Words)
	}
	if art.EntryPoint == 0 {
		t.Error("EntryPoint is zero")
	}
	if s := il.String(); !strings.Contains(s, "BINARY_MULTIPLY") || !strings.Contains(s, "probe 2") {
		t.Errorf("listing lacks the multiply probe:\n%s", s)
	}

	bad := append([]byte{ILVersion + 1}, art.IL[1:]...)
	if _, err := DecodeIL(bad); !errors.Is(err, ErrILVersion) {
		t.Errorf("DecodeIL(wrong version) = %v, want ErrILVersion", err)
	}
}

func TestSizeLimit(t *testing.T) {
	fx := load(t, "def f():\n    return 1\n")
	res, err := absint.Interpret(fx.fn.Code, absint.Options{})
	if err != nil {
		t.Fatalf("Interpret: %v", err)
	}
	if _, err := Compile(fx.fn.Code, res, Options{SizeLimit: 1}); !errors.Is(err, ErrCodeTooLarge) {
		t.Errorf("Compile over the limit = %v, want ErrCodeTooLarge", err)
	}
	if _, err := Compile(fx.fn.Code, res, Options{SizeLimit: len(fx.fn.Code.Bytecode)}); err != nil {
		t.Errorf("Compile at the limit = %v", err)
	}
}

func TestTracingMatchesInterpreter(t *testing.T) {
	fx := load(t, "def f():\n    t = 0\n    for i in range(3):\n        t += i\n    return t\n")
	_, art := fx.compile(t, absint.Options{}, Options{Tracing: true})

	record := func(run func() (vm.Object, error)) []int {
		var lines []int
		fx.ts.Tracer = func(_ *vm.Frame, line int) { lines = append(lines, line) }
		defer func() { fx.ts.Tracer = nil }()
		outcome(run())
		return lines
	}
	want := record(func() (vm.Object, error) { return fx.interp(nil) })
	got := record(func() (vm.Object, error) { return fx.jit(art, nil, nil) })
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("line events mismatch (-interpreter +compiled):\n%s", diff)
	}

	_, quiet := fx.compile(t, absint.Options{}, Options{})
	if lines := record(func() (vm.Object, error) { return fx.jit(quiet, nil, nil) }); len(lines) != 0 {
		t.Errorf("untraced code reported lines %v", lines)
	}
}
