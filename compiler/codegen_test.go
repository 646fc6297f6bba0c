package compiler

import (
	"bytes"
	"strings"
	"testing"

	bc "github.com/chazu/pgjit/pkg/bytecode"
	"github.com/chazu/pgjit/vm"
)

func newTestThread() (*vm.Thread, *bytes.Buffer) {
	rt := vm.NewRuntime()
	out := &bytes.Buffer{}
	rt.Stdout = out
	return rt.Main(), out
}

// compileFunc runs source and returns the code of the function it defines.
func compileFunc(t *testing.T, source, name string) *vm.Code {
	t.Helper()
	ts, _ := newTestThread()
	globals, err := Exec(ts, source, "test.py")
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	fn, ok := globals.GetStr(name).(*vm.Function)
	if !ok {
		t.Fatalf("%s is not a function", name)
	}
	return fn.Code
}

func opsOf(code *vm.Code) []bc.Opcode {
	var ops []bc.Opcode
	for _, in := range code.Instrs() {
		ops = append(ops, in.Op)
	}
	return ops
}

func sameOps(a, b []bc.Opcode) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestCompileFastLocals(t *testing.T) {
	code := compileFunc(t, "def f(a):\n    b = a + 1\n    return b\n", "f")
	want := []bc.Opcode{
		bc.LOAD_FAST, bc.LOAD_CONST, bc.BINARY_ADD, bc.STORE_FAST,
		bc.LOAD_FAST, bc.RETURN_VALUE,
	}
	if got := opsOf(code); !sameOps(got, want) {
		t.Errorf("ops = %v, want %v", got, want)
	}
	if code.ArgCount != 1 || code.NLocals() != 2 {
		t.Errorf("argcount = %d, nlocals = %d, want 1, 2", code.ArgCount, code.NLocals())
	}
	if code.FirstLine != 1 {
		t.Errorf("first line = %d, want 1", code.FirstLine)
	}
}

func TestCompileGlobalsAndImplicitReturn(t *testing.T) {
	code := compileFunc(t, "def f():\n    global g\n    g = len\n", "f")
	want := []bc.Opcode{
		bc.LOAD_GLOBAL, bc.STORE_GLOBAL, bc.LOAD_CONST, bc.RETURN_VALUE,
	}
	if got := opsOf(code); !sameOps(got, want) {
		t.Errorf("ops = %v, want %v", got, want)
	}
	if strings.Join(code.Names, ",") != "len,g" {
		t.Errorf("names = %v", code.Names)
	}
}

func TestCompileDeduplicatesConstants(t *testing.T) {
	code := compileFunc(t, "def f():\n    return 1 + 1 + 1.0 + 1.0 + -1\n", "f")
	if len(code.Consts) != 3 {
		t.Fatalf("consts = %d, want 3 (1, 1.0, -1)", len(code.Consts))
	}
	for _, in := range code.Instrs() {
		if in.Op == bc.UNARY_NEGATIVE {
			t.Error("negative literal was not folded")
		}
	}
}

func TestCompileLineTable(t *testing.T) {
	code := compileFunc(t, "def f(n):\n    x = n\n\n    return x\n", "f")
	instrs := code.Instrs()
	if got := code.LineFor(instrs[0].Offset); got != 2 {
		t.Errorf("first instruction line = %d, want 2", got)
	}
	last := instrs[len(instrs)-1]
	if got := code.LineFor(last.Offset); got != 4 {
		t.Errorf("return line = %d, want 4", got)
	}
}

func TestCompileForLoopShape(t *testing.T) {
	code := compileFunc(t, `
def f(xs):
    for x in xs:
        if x:
            return x
    return 0
`, "f")
	ops := opsOf(code)
	if ops[1] != bc.GET_ITER || ops[2] != bc.FOR_ITER {
		t.Fatalf("ops = %v, want GET_ITER then FOR_ITER", ops)
	}
	// the early return drops the iterator before leaving
	var found bool
	for i := 0; i+2 < len(ops); i++ {
		if ops[i] == bc.ROT_TWO && ops[i+1] == bc.POP_TOP && ops[i+2] == bc.RETURN_VALUE {
			found = true
		}
	}
	if !found {
		t.Errorf("ops = %v, want ROT_TWO POP_TOP RETURN_VALUE", ops)
	}
	if depth, err := bc.MaxStackDepth(code.Instrs()); err != nil || depth != code.StackSize {
		t.Errorf("MaxStackDepth = %d, %v, stack size %d", depth, err, code.StackSize)
	}
}

func TestCompileErrors(t *testing.T) {
	ts, _ := newTestThread()
	tests := []struct {
		input string
		want  string
	}{
		{"x = (", "parse errors"},
		{"return 1", "semantic errors"},
		{"print(1:2)", "parse errors"},
	}
	for _, tc := range tests {
		_, err := Compile(ts, tc.input, "bad.py")
		if err == nil {
			t.Errorf("Compile(%q) succeeded", tc.input)
			continue
		}
		if !strings.Contains(err.Error(), tc.want) || !strings.HasPrefix(err.Error(), "bad.py: ") {
			t.Errorf("Compile(%q) = %v, want %q", tc.input, err, tc.want)
		}
	}
}

func TestExecPrograms(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   string
	}{
		{"arithmetic", "print(1 + 2, 7 // 2, -7 // 2, 7 % -3, 2 ** 10, 7 / 2)", "3 3 -4 -2 1024 3.5"},
		{"big ints", "print(2 ** 100, -(2 ** 63))", "1267650600228229401496703205376 -9223372036854775808"},
		{"chained compare", "x = 5\nprint(1 < x < 10, 1 < x > 7, 3 < 2 < x)", "True False False"},
		{"bool ops", "print(0 or 'x', 1 and 2, None if 0 else 3, not 1)", "x 2 3 False"},
		{"lists", "a = [1, 2, 3]\na[0] += 10\na += [4]\nprint(a, a[-1], a[1:3], a[::-1], len(a))",
			"[11, 2, 3, 4] 4 [2, 3] [4, 3, 2, 11] 4"},
		{"tuples", "a, b = 1, 2\na, b = b, a\nprint(a, b, (a, b), (1,), ())", "2 1 (2, 1) (1,) ()"},
		{"displays", "d = {'a': 1, **{'b': 2}}\ns = {*[3, 1], 2}\nprint(d, s, [*d, 0], (*s,))",
			"{'a': 1, 'b': 2} {3, 1, 2} ['a', 'b', 0] (3, 1, 2)"},
		{"strings", "s = 'ab' + 'cd'\nprint(s, s[1], s * 2, 'b' in s, repr(s))", "abcd b abcdabcd True 'abcd'"},
		{"del and membership", "x = [1, 2, 3]\ndel x[0]\nprint(x, 2 in x, 5 not in x, x is x)", "[2, 3] True True True"},
		{"chained assign", "a = b = [1]\nprint(a is b)", "True"},
		{"for with continue and break", `
def f(n):
    total = 0
    for i in range(n):
        if i % 2 == 0:
            continue
        if i > 7:
            break
        total += i
    return total
print(f(20))`, "16"},
		{"return from loop", `
def find(xs, v):
    i = 0
    for x in xs:
        if x == v:
            return i
        i += 1
    return -1
print(find([5, 6, 7], 7), find([5], 9))`, "2 -1"},
		{"while true", `
def g():
    n = 0
    while True:
        n += 1
        if n >= 5:
            break
    return n
print(g())`, "5"},
		{"defaults and globals", `
count = 0
def bump(by=1):
    global count
    count += by
    return count
bump()
bump(5)
print(count)`, "6"},
		{"recursion", `
def fib(n):
    if n < 2:
        return n
    return fib(n - 1) + fib(n - 2)
print(fib(15))`, "610"},
		{"nested unpack", "for a, (b, c) in [(1, (2, 3))]:\n    print(a + b + c)", "6"},
		{"assert passes", "def f(x):\n    assert x > 0, 'neg'\n    return x\nprint(f(1))", "1"},
		{"subscript augassign", "d = {'k': 1}\nd['k'] *= 7\nprint(d['k'])", "7"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ts, out := newTestThread()
			if _, err := Exec(ts, tc.source, "prog.py"); err != nil {
				t.Fatalf("Exec: %v", err)
			}
			if got := strings.TrimSpace(out.String()); got != tc.want {
				t.Errorf("output = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestExecRaises(t *testing.T) {
	tests := []struct {
		source string
		kind   string
		msg    string
	}{
		{"x = 1 // 0", "ZeroDivisionError", ""},
		{"def f(x):\n    assert x > 0, 'neg'\nf(-1)", "AssertionError", "neg"},
		{"print(undefined)", "NameError", "name 'undefined' is not defined"},
		{"def f():\n    y = x\n    x = 1\nf()", "UnboundLocalError", ""},
		{"a, b = [1, 2, 3]", "ValueError", ""},
		{"raise ValueError('boom')", "ValueError", "boom"},
		{"def f(a):\n    return a\nf()", "TypeError", "f() takes 1 positional arguments but 0 were given"},
		{"x = 1\ndel x\nprint(x)", "NameError", ""},
	}

	for _, tc := range tests {
		ts, _ := newTestThread()
		_, err := Exec(ts, tc.source, "prog.py")
		if err == nil {
			t.Errorf("Exec(%q) succeeded, want %s", tc.source, tc.kind)
			continue
		}
		if kind := vm.ExceptionKind(err); kind != tc.kind {
			t.Errorf("Exec(%q) raised %v, want %s", tc.source, err, tc.kind)
		}
		if tc.msg != "" {
			if e, ok := vm.AsException(err); !ok || e.Message() != tc.msg {
				t.Errorf("Exec(%q) message = %v, want %q", tc.source, err, tc.msg)
			}
		}
		vm.ReleaseError(err)
	}
}
