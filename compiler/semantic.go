package compiler

import (
	"fmt"
)

// ---------------------------------------------------------------------------
// Semantic Analyzer: scope resolution and pre-codegen checks
// ---------------------------------------------------------------------------

// Scope records how the names of one function body resolve. Names bound
// anywhere in the body are locals unless declared global; every other
// name is a global.
type Scope struct {
	Locals  []string // parameters first, then other bindings in source order
	index   map[string]int
	globals map[string]bool
}

// IsLocal reports whether name is a fast local and returns its slot.
func (s *Scope) IsLocal(name string) (int, bool) {
	i, ok := s.index[name]
	return i, ok
}

func (s *Scope) bind(name string) {
	if s.globals[name] {
		return
	}
	if _, ok := s.index[name]; ok {
		return
	}
	s.index[name] = len(s.Locals)
	s.Locals = append(s.Locals, name)
}

// SemanticAnalyzer checks a module before code generation.
type SemanticAnalyzer struct {
	errors []string

	inFunction bool
	loopDepth  int
	// used tracks names read or bound so far in the current function, for
	// detecting global declarations that come too late.
	used map[string]bool
}

// NewSemanticAnalyzer creates a new semantic analyzer.
func NewSemanticAnalyzer() *SemanticAnalyzer {
	return &SemanticAnalyzer{}
}

// Errors returns accumulated errors.
func (s *SemanticAnalyzer) Errors() []string {
	return s.errors
}

func (s *SemanticAnalyzer) errorAt(node Node, format string, args ...interface{}) {
	msg := fmt.Sprintf("line %d: %s", node.Pos().Line, fmt.Sprintf(format, args...))
	s.errors = append(s.errors, msg)
}

// AnalyzeModule checks every statement of m.
func (s *SemanticAnalyzer) AnalyzeModule(m *Module) {
	s.analyzeStatements(m.Body)
}

func (s *SemanticAnalyzer) analyzeStatements(stmts []Stmt) {
	for _, stmt := range stmts {
		s.analyzeStmt(stmt)
	}
}

func (s *SemanticAnalyzer) analyzeStmt(stmt Stmt) {
	switch n := stmt.(type) {
	case *FuncDef:
		if s.inFunction {
			s.errorAt(n, "nested function definitions are not supported")
			return
		}
		for _, d := range n.Defaults {
			s.analyzeExpr(d)
		}
		s.inFunction = true
		s.used = make(map[string]bool)
		for _, p := range n.Params {
			s.used[p] = true
		}
		saved := s.loopDepth
		s.loopDepth = 0
		s.analyzeStatements(n.Body)
		s.loopDepth = saved
		s.inFunction = false
		s.used = nil
	case *Return:
		if !s.inFunction {
			s.errorAt(n, "'return' outside function")
		}
		if n.Value != nil {
			s.analyzeExpr(n.Value)
		}
	case *Break:
		if s.loopDepth == 0 {
			s.errorAt(n, "'break' outside loop")
		}
	case *Continue:
		if s.loopDepth == 0 {
			s.errorAt(n, "'continue' not properly in loop")
		}
	case *Global:
		for _, name := range n.Names {
			if s.used[name] {
				s.errorAt(n, "name '%s' is used prior to global declaration", name)
			}
		}
	case *While:
		s.analyzeExpr(n.Cond)
		s.loopDepth++
		s.analyzeStatements(n.Body)
		s.loopDepth--
	case *For:
		s.analyzeExpr(n.Iter)
		s.analyzeTarget(n.Target)
		s.loopDepth++
		s.analyzeStatements(n.Body)
		s.loopDepth--
	case *If:
		s.analyzeExpr(n.Cond)
		s.analyzeStatements(n.Body)
		s.analyzeStatements(n.Else)
	case *Assign:
		s.analyzeExpr(n.Value)
		for _, t := range n.Targets {
			s.analyzeTarget(t)
		}
	case *AugAssign:
		s.analyzeExpr(n.Value)
		s.analyzeExpr(n.Target)
	case *ExprStmt:
		s.analyzeExpr(n.Expr)
	case *Assert:
		s.analyzeExpr(n.Test)
		if n.Msg != nil {
			s.analyzeExpr(n.Msg)
		}
	case *Raise:
		if n.Exc != nil {
			s.analyzeExpr(n.Exc)
		}
	case *Del:
		for _, t := range n.Targets {
			s.analyzeTarget(t)
		}
	}
}

func (s *SemanticAnalyzer) analyzeTarget(e Expr) {
	switch t := e.(type) {
	case *Name:
		if s.used != nil {
			s.used[t.Id] = true
		}
	case *TupleExpr:
		for _, el := range t.Elems {
			s.analyzeTarget(el)
		}
	case *ListExpr:
		for _, el := range t.Elems {
			s.analyzeTarget(el)
		}
	case *Starred:
		s.errorAt(t, "starred assignment targets are not supported")
	default:
		s.analyzeExpr(e)
	}
}

func (s *SemanticAnalyzer) analyzeExpr(e Expr) {
	walkExpr(e, func(e Expr) {
		if n, ok := e.(*Name); ok && s.used != nil {
			s.used[n.Id] = true
		}
	})
}

// walkExpr calls fn on e and every expression nested in it.
func walkExpr(e Expr, fn func(Expr)) {
	if e == nil {
		return
	}
	fn(e)
	switch n := e.(type) {
	case *UnaryOp:
		walkExpr(n.Operand, fn)
	case *BinaryOp:
		walkExpr(n.Left, fn)
		walkExpr(n.Right, fn)
	case *BoolOp:
		for _, v := range n.Values {
			walkExpr(v, fn)
		}
	case *Compare:
		walkExpr(n.Left, fn)
		for _, r := range n.Rights {
			walkExpr(r, fn)
		}
	case *Call:
		walkExpr(n.Func, fn)
		for _, a := range n.Args {
			walkExpr(a, fn)
		}
	case *Subscript:
		walkExpr(n.Value, fn)
		walkExpr(n.Index, fn)
	case *SliceExpr:
		walkExpr(n.Lo, fn)
		walkExpr(n.Hi, fn)
		walkExpr(n.Step, fn)
	case *ListExpr:
		for _, el := range n.Elems {
			walkExpr(el, fn)
		}
	case *TupleExpr:
		for _, el := range n.Elems {
			walkExpr(el, fn)
		}
	case *SetExpr:
		for _, el := range n.Elems {
			walkExpr(el, fn)
		}
	case *DictExpr:
		for i := range n.Values {
			walkExpr(n.Keys[i], fn)
			walkExpr(n.Values[i], fn)
		}
	case *Starred:
		walkExpr(n.Value, fn)
	case *IfExpr:
		walkExpr(n.Cond, fn)
		walkExpr(n.Body, fn)
		walkExpr(n.Else, fn)
	}
}

// ---------------------------------------------------------------------------
// Scope resolution
// ---------------------------------------------------------------------------

// FunctionScope resolves the names of def.
func FunctionScope(def *FuncDef) *Scope {
	s := &Scope{index: make(map[string]int), globals: make(map[string]bool)}
	collectGlobals(def.Body, s.globals)
	for _, p := range def.Params {
		s.index[p] = len(s.Locals)
		s.Locals = append(s.Locals, p)
	}
	collectBindings(def.Body, s)
	return s
}

func collectGlobals(stmts []Stmt, globals map[string]bool) {
	for _, stmt := range stmts {
		switch n := stmt.(type) {
		case *Global:
			for _, name := range n.Names {
				globals[name] = true
			}
		case *If:
			collectGlobals(n.Body, globals)
			collectGlobals(n.Else, globals)
		case *While:
			collectGlobals(n.Body, globals)
		case *For:
			collectGlobals(n.Body, globals)
		}
	}
}

func collectBindings(stmts []Stmt, s *Scope) {
	for _, stmt := range stmts {
		switch n := stmt.(type) {
		case *Assign:
			for _, t := range n.Targets {
				bindTarget(t, s)
			}
		case *AugAssign:
			bindTarget(n.Target, s)
		case *For:
			bindTarget(n.Target, s)
			collectBindings(n.Body, s)
		case *Del:
			for _, t := range n.Targets {
				bindTarget(t, s)
			}
		case *If:
			collectBindings(n.Body, s)
			collectBindings(n.Else, s)
		case *While:
			collectBindings(n.Body, s)
		}
	}
}

func bindTarget(e Expr, s *Scope) {
	switch t := e.(type) {
	case *Name:
		s.bind(t.Id)
	case *TupleExpr:
		for _, el := range t.Elems {
			bindTarget(el, s)
		}
	case *ListExpr:
		for _, el := range t.Elems {
			bindTarget(el, s)
		}
	}
}

// Analyze checks m and returns the semantic errors found.
func Analyze(m *Module) []string {
	s := NewSemanticAnalyzer()
	s.AnalyzeModule(m)
	return s.Errors()
}
