package compiler

import (
	"fmt"
	"strings"
	"testing"
)

// sexpr renders an expression compactly for comparisons.
func sexpr(e Expr) string {
	switch n := e.(type) {
	case nil:
		return "_"
	case *Name:
		return n.Id
	case *IntLiteral:
		return n.Value.String()
	case *FloatLiteral:
		return fmt.Sprintf("%g", n.Value)
	case *StringLiteral:
		return fmt.Sprintf("%q", n.Value)
	case *ConstLiteral:
		return n.Value
	case *UnaryOp:
		return fmt.Sprintf("(%s %s)", n.Op, sexpr(n.Operand))
	case *BinaryOp:
		return fmt.Sprintf("(%s %s %s)", n.Op, sexpr(n.Left), sexpr(n.Right))
	case *BoolOp:
		return fmt.Sprintf("(%s %s)", n.Op, sexprs(n.Values))
	case *Compare:
		parts := []string{sexpr(n.Left)}
		for i, op := range n.Ops {
			parts = append(parts, op, sexpr(n.Rights[i]))
		}
		return "(cmp " + strings.Join(parts, " ") + ")"
	case *Call:
		return fmt.Sprintf("(call %s%s)", sexpr(n.Func), prefixed(n.Args))
	case *Subscript:
		return fmt.Sprintf("(sub %s %s)", sexpr(n.Value), sexpr(n.Index))
	case *SliceExpr:
		if n.HasStep {
			return fmt.Sprintf("(slice %s %s %s)", sexpr(n.Lo), sexpr(n.Hi), sexpr(n.Step))
		}
		return fmt.Sprintf("(slice %s %s)", sexpr(n.Lo), sexpr(n.Hi))
	case *ListExpr:
		return "[" + sexprs(n.Elems) + "]"
	case *TupleExpr:
		return "(tuple" + prefixed(n.Elems) + ")"
	case *SetExpr:
		return "{" + sexprs(n.Elems) + "}"
	case *DictExpr:
		var parts []string
		for i := range n.Keys {
			if n.Keys[i] == nil {
				parts = append(parts, "**"+sexpr(n.Values[i]))
				continue
			}
			parts = append(parts, sexpr(n.Keys[i])+":"+sexpr(n.Values[i]))
		}
		return "{" + strings.Join(parts, " ") + "}"
	case *Starred:
		return "*" + sexpr(n.Value)
	case *IfExpr:
		return fmt.Sprintf("(if %s %s %s)", sexpr(n.Cond), sexpr(n.Body), sexpr(n.Else))
	}
	return fmt.Sprintf("%T", e)
}

func sexprs(es []Expr) string {
	parts := make([]string, len(es))
	for i, e := range es {
		parts[i] = sexpr(e)
	}
	return strings.Join(parts, " ")
}

func prefixed(es []Expr) string {
	if len(es) == 0 {
		return ""
	}
	return " " + sexprs(es)
}

func parseModule(t *testing.T, input string) *Module {
	t.Helper()
	p := NewParser(input)
	m := p.ParseModule()
	if len(p.Errors()) > 0 {
		t.Fatalf("ParseModule(%q) errors: %v", input, p.Errors())
	}
	return m
}

func TestParseExpressions(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"42", "42"},
		{"0x_ff", "255"},
		{"0b101", "5"},
		{"1_000_000", "1000000"},
		{"123456789012345678901234567890", "123456789012345678901234567890"},
		{"2.5", "2.5"},
		{"'a' 'b'", `"ab"`},
		{"None", "None"},
		{"a + b * c", "(+ a (* b c))"},
		{"(a + b) * c", "(* (+ a b) c)"},
		{"a - b - c", "(- (- a b) c)"},
		{"2 ** 3 ** 2", "(** 2 (** 3 2))"},
		{"-x ** 2", "(- (** x 2))"},
		{"a | b ^ c & d << 1", "(| a (^ b (& c (<< d 1))))"},
		{"a // b % c", "(% (// a b) c)"},
		{"~a", "(~ a)"},
		{"not a and b or c", "(or (and (not a) b) c)"},
		{"a and b and c", "(and a b c)"},
		{"a < b <= c", "(cmp a < b <= c)"},
		{"a not in b", "(cmp a not in b)"},
		{"a is not None", "(cmp a is not None)"},
		{"x if c else y", "(if c x y)"},
		{"f()", "(call f)"},
		{"f(a, b + 1)", "(call f a (+ b 1))"},
		{"a[i]", "(sub a i)"},
		{"a[i][j]", "(sub (sub a i) j)"},
		{"a[1:2]", "(sub a (slice 1 2))"},
		{"a[:]", "(sub a (slice _ _))"},
		{"a[::-1]", "(sub a (slice _ _ (- 1)))"},
		{"a[i, j]", "(sub a (tuple i j))"},
		{"[]", "[]"},
		{"[1, *xs, 2]", "[1 *xs 2]"},
		{"()", "(tuple)"},
		{"(1,)", "(tuple 1)"},
		{"(1, 2)", "(tuple 1 2)"},
		{"{}", "{}"},
		{"{1, 2}", "{1 2}"},
		{"{*a, 1}", "{*a 1}"},
		{"{1: 'a', 'b': 2}", `{1:"a" "b":2}`},
		{"{**d, 'k': v}", `{**d "k":v}`},
	}

	for _, tc := range tests {
		p := NewParser(tc.input)
		e := p.ParseExpression()
		if len(p.Errors()) > 0 {
			t.Errorf("ParseExpression(%q) errors: %v", tc.input, p.Errors())
			continue
		}
		if got := sexpr(e); got != tc.want {
			t.Errorf("ParseExpression(%q) = %s, want %s", tc.input, got, tc.want)
		}
	}
}

func TestParseFunctionDef(t *testing.T) {
	m := parseModule(t, `
def add(a, b=1, c=2) -> int:
    total = a + b
    return total + c
`)
	if len(m.Body) != 1 {
		t.Fatalf("got %d statements, want 1", len(m.Body))
	}
	def, ok := m.Body[0].(*FuncDef)
	if !ok {
		t.Fatalf("statement is %T, want *FuncDef", m.Body[0])
	}
	if def.Name != "add" {
		t.Errorf("name = %q, want add", def.Name)
	}
	if strings.Join(def.Params, ",") != "a,b,c" {
		t.Errorf("params = %v", def.Params)
	}
	if len(def.Defaults) != 2 || sexpr(def.Defaults[0]) != "1" {
		t.Errorf("defaults = %v", def.Defaults)
	}
	if len(def.Body) != 2 {
		t.Fatalf("body has %d statements, want 2", len(def.Body))
	}
	if def.At.Line != 2 || def.Body[1].Pos().Line != 4 {
		t.Errorf("lines = %d, %d, want 2, 4", def.At.Line, def.Body[1].Pos().Line)
	}
	ret := def.Body[1].(*Return)
	if sexpr(ret.Value) != "(+ total c)" {
		t.Errorf("return = %s", sexpr(ret.Value))
	}
}

func TestParseStatements(t *testing.T) {
	m := parseModule(t, `
a = b = 1
x, y = y, x
[p, q] = r
l[0] += 2
n **= 3
del a, l[0]
global g
assert x, 'msg'
raise ValueError('bad')
raise
pass
f(1)
if x: y = 1
`)
	kinds := make([]string, len(m.Body))
	for i, s := range m.Body {
		kinds[i] = fmt.Sprintf("%T", s)
	}
	want := []string{
		"*compiler.Assign", "*compiler.Assign", "*compiler.Assign",
		"*compiler.AugAssign", "*compiler.AugAssign", "*compiler.Del",
		"*compiler.Global", "*compiler.Assert", "*compiler.Raise",
		"*compiler.Raise", "*compiler.Pass", "*compiler.ExprStmt", "*compiler.If",
	}
	if strings.Join(kinds, " ") != strings.Join(want, " ") {
		t.Fatalf("statements = %v\nwant %v", kinds, want)
	}

	chain := m.Body[0].(*Assign)
	if len(chain.Targets) != 2 || sexpr(chain.Value) != "1" {
		t.Errorf("chained assign = %s = %s", sexprs(chain.Targets), sexpr(chain.Value))
	}
	swap := m.Body[1].(*Assign)
	if sexpr(swap.Targets[0]) != "(tuple x y)" || sexpr(swap.Value) != "(tuple y x)" {
		t.Errorf("swap = %s = %s", sexpr(swap.Targets[0]), sexpr(swap.Value))
	}
	aug := m.Body[3].(*AugAssign)
	if aug.Op != "+" || sexpr(aug.Target) != "(sub l 0)" {
		t.Errorf("augassign = %s %s=", sexpr(aug.Target), aug.Op)
	}
	if op := m.Body[4].(*AugAssign).Op; op != "**" {
		t.Errorf("power augassign op = %q", op)
	}
	if d := m.Body[5].(*Del); len(d.Targets) != 2 {
		t.Errorf("del targets = %d, want 2", len(d.Targets))
	}
	if a := m.Body[7].(*Assert); sexpr(a.Msg) != `"msg"` {
		t.Errorf("assert msg = %s", sexpr(a.Msg))
	}
	if r := m.Body[9].(*Raise); r.Exc != nil {
		t.Errorf("bare raise has exception %s", sexpr(r.Exc))
	}
	if s := m.Body[12].(*If); len(s.Body) != 1 {
		t.Errorf("inline if body has %d statements", len(s.Body))
	}
}

func TestParseControlFlow(t *testing.T) {
	m := parseModule(t, `
for i, v in items:
    if v > 0:
        continue
    elif v < -10:
        break
    else:
        pass
while True:
    return_value = 1
`)
	loop := m.Body[0].(*For)
	if sexpr(loop.Target) != "(tuple i v)" || sexpr(loop.Iter) != "items" {
		t.Errorf("for %s in %s", sexpr(loop.Target), sexpr(loop.Iter))
	}
	branch := loop.Body[0].(*If)
	if _, ok := branch.Body[0].(*Continue); !ok {
		t.Errorf("if body = %T, want *Continue", branch.Body[0])
	}
	elif, ok := branch.Else[0].(*If)
	if !ok {
		t.Fatalf("elif = %T, want nested *If", branch.Else[0])
	}
	if _, ok := elif.Body[0].(*Break); !ok {
		t.Errorf("elif body = %T, want *Break", elif.Body[0])
	}
	if _, ok := elif.Else[0].(*Pass); !ok {
		t.Errorf("else body = %T, want *Pass", elif.Else[0])
	}
	if w := m.Body[1].(*While); sexpr(w.Cond) != "True" {
		t.Errorf("while cond = %s", sexpr(w.Cond))
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"x = = 1", "unexpected"},
		{"1 = x", "cannot assign to literal"},
		{"f() = 1", "cannot assign to function call"},
		{"f() += 1", "illegal expression for augmented assignment"},
		{"def f(a, a): pass", "duplicate argument 'a'"},
		{"def f(a=1, b): pass", "non-default argument follows default argument"},
		{"class C: pass", "'class' is not supported here"},
		{"x = lambda: 1", "lambda is not supported"},
		{"f(*args)", "argument unpacking"},
		{"f(x=1)", "keyword arguments are not supported"},
		{"a.b", "attribute access is not supported"},
		{"x = 007", "leading zeros"},
		{"for x in y:\n    pass\nelse:\n    pass", "for/else is not supported"},
		{"  x = 1", "unexpected indent"},
		{"x = 'abc", "unterminated string literal"},
		{"*a", "can't use starred expression here"},
	}

	for _, tc := range tests {
		p := NewParser(tc.input)
		p.ParseModule()
		errs := strings.Join(p.Errors(), "\n")
		if !strings.Contains(errs, tc.want) {
			t.Errorf("ParseModule(%q) errors = %q, want %q", tc.input, errs, tc.want)
		}
	}
}

func TestParseRecoversAfterError(t *testing.T) {
	p := NewParser("x = )\ny = 2\n")
	m := p.ParseModule()
	if len(p.Errors()) == 0 {
		t.Fatal("expected a parse error")
	}
	if !strings.HasPrefix(p.Errors()[0], "line 1:") {
		t.Errorf("error = %q, want line 1 prefix", p.Errors()[0])
	}
	if len(m.Body) != 1 {
		t.Fatalf("recovered %d statements, want 1", len(m.Body))
	}
	if a, ok := m.Body[0].(*Assign); !ok || sexpr(a.Targets[0]) != "y" {
		t.Errorf("recovered statement = %#v", m.Body[0])
	}
}
