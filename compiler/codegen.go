package compiler

import (
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"

	bc "github.com/chazu/pgjit/pkg/bytecode"
	"github.com/chazu/pgjit/vm"
)

// ---------------------------------------------------------------------------
// Codegen: Compile AST to bytecode
// ---------------------------------------------------------------------------

// Compiler compiles one code object. Function bodies are compiled by child
// compilers sharing the thread.
type Compiler struct {
	ts *vm.Thread

	// Current compilation context
	asm        *bc.Assembler
	consts     []vm.Object
	constIndex map[string]int // dedup constants
	names      []string
	nameIndex  map[string]int
	scope      *Scope // nil for module bodies
	loops      []loopContext
	errors     []string
}

type loopContext struct {
	top, end bc.Label
	isFor    bool // a for loop keeps its iterator on the stack
}

// NewCompiler creates a new compiler for module code.
func NewCompiler(ts *vm.Thread) *Compiler {
	return &Compiler{
		ts:         ts,
		asm:        bc.NewAssembler(),
		constIndex: make(map[string]int),
		nameIndex:  make(map[string]int),
	}
}

// Errors returns accumulated compilation errors.
func (c *Compiler) Errors() []string {
	return c.errors
}

// errorf records a compilation error.
func (c *Compiler) errorf(node Node, format string, args ...interface{}) {
	msg := fmt.Sprintf("line %d: %s", node.Pos().Line, fmt.Sprintf(format, args...))
	c.errors = append(c.errors, msg)
}

// CompileModule compiles m into a module code object. It returns nil when
// errors were recorded.
func (c *Compiler) CompileModule(m *Module, name string) *vm.Code {
	c.compileStatements(m.Body)
	c.emitConst(&ConstLiteral{Value: "None"})
	c.asm.Emit(bc.RETURN_VALUE, 0)
	return c.finish(name, 0, 1)
}

// compileFunction compiles def into a function code object.
func (c *Compiler) compileFunction(def *FuncDef) *vm.Code {
	sub := NewCompiler(c.ts)
	sub.scope = FunctionScope(def)
	sub.asm.SetLine(def.At.Line)
	sub.compileStatements(def.Body)
	if n := len(def.Body); n == 0 || !isReturn(def.Body[n-1]) {
		sub.emitConst(&ConstLiteral{Value: "None"})
		sub.asm.Emit(bc.RETURN_VALUE, 0)
	}
	code := sub.finish(def.Name, len(def.Params), def.At.Line)
	c.errors = append(c.errors, sub.errors...)
	return code
}

func isReturn(s Stmt) bool {
	_, ok := s.(*Return)
	return ok
}

// finish assembles the emitted instructions into a code object.
func (c *Compiler) finish(name string, argCount, firstLine int) *vm.Code {
	if len(c.errors) > 0 {
		c.releaseConsts()
		return nil
	}
	raw, lines, err := c.asm.Assemble()
	if err != nil {
		c.releaseConsts()
		c.errors = append(c.errors, fmt.Sprintf("%s: %v", name, err))
		return nil
	}
	var varNames []string
	if c.scope != nil {
		varNames = c.scope.Locals
	}
	code, err := vm.NewCode(c.ts, vm.CodeSpec{
		Name:      name,
		ArgCount:  argCount,
		VarNames:  varNames,
		Names:     c.names,
		Consts:    c.consts,
		Bytecode:  raw,
		Lines:     lines,
		FirstLine: firstLine,
	})
	c.consts = nil
	if err != nil {
		c.errors = append(c.errors, err.Error())
		return nil
	}
	return code
}

func (c *Compiler) releaseConsts() {
	for _, o := range c.consts {
		vm.DecRef(o)
	}
	c.consts = nil
}

// ---------------------------------------------------------------------------
// Constants and names
// ---------------------------------------------------------------------------

// addConst returns the index of the constant keyed by key, creating it with
// mk on first use.
func (c *Compiler) addConst(key string, mk func() vm.Object) int {
	if i, ok := c.constIndex[key]; ok {
		return i
	}
	i := len(c.consts)
	c.consts = append(c.consts, mk())
	if key != "" {
		c.constIndex[key] = i
	}
	return i
}

func (c *Compiler) emitConst(lit Expr) {
	var i int
	switch n := lit.(type) {
	case *IntLiteral:
		i = c.intConst(n.Value)
	case *FloatLiteral:
		i = c.floatConst(n.Value)
	case *StringLiteral:
		i = c.strConst(n.Value)
	case *ConstLiteral:
		i = c.addConst(n.Value, func() vm.Object {
			switch n.Value {
			case "True":
				return vm.True
			case "False":
				return vm.False
			}
			return vm.None
		})
	}
	c.asm.Emit(bc.LOAD_CONST, i)
}

func (c *Compiler) intConst(v *big.Int) int {
	return c.addConst("int:"+v.String(), func() vm.Object { return vm.NewBigInt(c.ts, v) })
}

func (c *Compiler) floatConst(v float64) int {
	key := "float:" + strconv.FormatUint(math.Float64bits(v), 16)
	return c.addConst(key, func() vm.Object { return vm.NewFloat(c.ts, v) })
}

func (c *Compiler) strConst(s string) int {
	return c.addConst("str:"+s, func() vm.Object { return vm.NewStr(c.ts, s) })
}

func (c *Compiler) nameArg(name string) int {
	if i, ok := c.nameIndex[name]; ok {
		return i
	}
	c.nameIndex[name] = len(c.names)
	c.names = append(c.names, name)
	return len(c.names) - 1
}

func (c *Compiler) loadName(name string) {
	switch {
	case c.scope == nil:
		c.asm.Emit(bc.LOAD_NAME, c.nameArg(name))
	default:
		if slot, ok := c.scope.IsLocal(name); ok {
			c.asm.Emit(bc.LOAD_FAST, slot)
		} else {
			c.asm.Emit(bc.LOAD_GLOBAL, c.nameArg(name))
		}
	}
}

func (c *Compiler) storeName(name string) {
	switch {
	case c.scope == nil:
		c.asm.Emit(bc.STORE_NAME, c.nameArg(name))
	default:
		if slot, ok := c.scope.IsLocal(name); ok {
			c.asm.Emit(bc.STORE_FAST, slot)
		} else {
			c.asm.Emit(bc.STORE_GLOBAL, c.nameArg(name))
		}
	}
}

func (c *Compiler) deleteName(name string) {
	switch {
	case c.scope == nil:
		c.asm.Emit(bc.DELETE_NAME, c.nameArg(name))
	default:
		if slot, ok := c.scope.IsLocal(name); ok {
			c.asm.Emit(bc.DELETE_FAST, slot)
		} else {
			c.asm.Emit(bc.DELETE_GLOBAL, c.nameArg(name))
		}
	}
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

func (c *Compiler) compileStatements(stmts []Stmt) {
	for _, stmt := range stmts {
		c.compileStmt(stmt)
	}
}

func (c *Compiler) compileStmt(stmt Stmt) {
	c.asm.SetLine(stmt.Pos().Line)
	switch n := stmt.(type) {
	case *ExprStmt:
		c.compileExpr(n.Expr)
		c.asm.Emit(bc.POP_TOP, 0)
	case *Assign:
		c.compileExpr(n.Value)
		for i, t := range n.Targets {
			if i < len(n.Targets)-1 {
				c.asm.Emit(bc.DUP_TOP, 0)
			}
			c.compileStore(t)
		}
	case *AugAssign:
		c.compileAugAssign(n)
	case *Return:
		if n.Value != nil {
			c.compileExpr(n.Value)
		} else {
			c.emitConst(&ConstLiteral{Value: "None"})
		}
		for i := len(c.loops) - 1; i >= 0; i-- {
			if c.loops[i].isFor {
				c.asm.Emit(bc.ROT_TWO, 0)
				c.asm.Emit(bc.POP_TOP, 0)
			}
		}
		c.asm.Emit(bc.RETURN_VALUE, 0)
	case *If:
		elseLabel := c.asm.NewLabel()
		c.compileJumpIfFalse(n.Cond, elseLabel)
		c.compileStatements(n.Body)
		if len(n.Else) == 0 {
			c.asm.Bind(elseLabel)
			return
		}
		end := c.asm.NewLabel()
		c.asm.EmitJump(bc.JUMP_FORWARD, end)
		c.asm.Bind(elseLabel)
		c.compileStatements(n.Else)
		c.asm.Bind(end)
	case *While:
		loop := loopContext{top: c.asm.NewLabel(), end: c.asm.NewLabel()}
		c.asm.Bind(loop.top)
		if !isTrueConst(n.Cond) {
			c.compileJumpIfFalse(n.Cond, loop.end)
		}
		c.loops = append(c.loops, loop)
		c.compileStatements(n.Body)
		c.loops = c.loops[:len(c.loops)-1]
		c.asm.EmitJump(bc.JUMP_ABSOLUTE, loop.top)
		c.asm.Bind(loop.end)
	case *For:
		loop := loopContext{top: c.asm.NewLabel(), end: c.asm.NewLabel(), isFor: true}
		c.compileExpr(n.Iter)
		c.asm.Emit(bc.GET_ITER, 0)
		c.asm.Bind(loop.top)
		c.asm.EmitJump(bc.FOR_ITER, loop.end)
		c.compileStore(n.Target)
		c.loops = append(c.loops, loop)
		c.compileStatements(n.Body)
		c.loops = c.loops[:len(c.loops)-1]
		c.asm.EmitJump(bc.JUMP_ABSOLUTE, loop.top)
		c.asm.Bind(loop.end)
	case *Break:
		loop := c.loops[len(c.loops)-1]
		if loop.isFor {
			c.asm.Emit(bc.POP_TOP, 0)
		}
		c.asm.EmitJump(bc.JUMP_ABSOLUTE, loop.end)
	case *Continue:
		c.asm.EmitJump(bc.JUMP_ABSOLUTE, c.loops[len(c.loops)-1].top)
	case *Pass, *Global:
	case *Assert:
		end := c.asm.NewLabel()
		c.compileExpr(n.Test)
		c.asm.EmitJump(bc.POP_JUMP_IF_TRUE, end)
		c.asm.Emit(bc.LOAD_ASSERTION_ERROR, 0)
		if n.Msg != nil {
			c.compileExpr(n.Msg)
			c.asm.Emit(bc.CALL_FUNCTION, 1)
		}
		c.asm.Emit(bc.RAISE_VARARGS, 1)
		c.asm.Bind(end)
	case *Raise:
		if n.Exc == nil {
			c.asm.Emit(bc.RAISE_VARARGS, 0)
			return
		}
		c.compileExpr(n.Exc)
		c.asm.Emit(bc.RAISE_VARARGS, 1)
	case *Del:
		for _, t := range n.Targets {
			c.compileDelete(t)
		}
	case *FuncDef:
		c.compileFuncDef(n)
	default:
		c.errorf(stmt, "unsupported statement %T", stmt)
	}
}

func isTrueConst(e Expr) bool {
	lit, ok := e.(*ConstLiteral)
	return ok && lit.Value == "True"
}

// compileJumpIfFalse evaluates cond and jumps to target when it is false.
func (c *Compiler) compileJumpIfFalse(cond Expr, target bc.Label) {
	if u, ok := cond.(*UnaryOp); ok && u.Op == "not" {
		c.compileExpr(u.Operand)
		c.asm.EmitJump(bc.POP_JUMP_IF_TRUE, target)
		return
	}
	c.compileExpr(cond)
	c.asm.EmitJump(bc.POP_JUMP_IF_FALSE, target)
}

func (c *Compiler) compileFuncDef(def *FuncDef) {
	flags := 0
	if len(def.Defaults) > 0 {
		for _, d := range def.Defaults {
			c.compileExpr(d)
		}
		c.asm.Emit(bc.BUILD_TUPLE, len(def.Defaults))
		flags |= 0x01
	}
	code := c.compileFunction(def)
	if code == nil {
		return
	}
	c.asm.Emit(bc.LOAD_CONST, c.addConst("", func() vm.Object { return code }))
	c.asm.Emit(bc.LOAD_CONST, c.strConst(def.Name))
	c.asm.Emit(bc.MAKE_FUNCTION, flags)
	c.storeName(def.Name)
}

// compileStore stores the value on top of the stack into target.
func (c *Compiler) compileStore(target Expr) {
	switch t := target.(type) {
	case *Name:
		c.storeName(t.Id)
	case *Subscript:
		c.compileExpr(t.Value)
		c.compileIndex(t.Index)
		c.asm.Emit(bc.STORE_SUBSCR, 0)
	case *TupleExpr:
		c.compileUnpack(t.Elems)
	case *ListExpr:
		c.compileUnpack(t.Elems)
	default:
		c.errorf(target, "cannot assign to %s", describeExpr(target))
	}
}

func (c *Compiler) compileUnpack(elems []Expr) {
	c.asm.Emit(bc.UNPACK_SEQUENCE, len(elems))
	for _, el := range elems {
		c.compileStore(el)
	}
}

func (c *Compiler) compileDelete(target Expr) {
	switch t := target.(type) {
	case *Name:
		c.deleteName(t.Id)
	case *Subscript:
		c.compileExpr(t.Value)
		c.compileIndex(t.Index)
		c.asm.Emit(bc.DELETE_SUBSCR, 0)
	case *TupleExpr:
		for _, el := range t.Elems {
			c.compileDelete(el)
		}
	default:
		c.errorf(target, "cannot delete %s", describeExpr(target))
	}
}

var inplaceOps = map[string]bc.Opcode{
	"+": bc.INPLACE_ADD, "-": bc.INPLACE_SUBTRACT, "*": bc.INPLACE_MULTIPLY,
	"/": bc.INPLACE_TRUE_DIVIDE, "//": bc.INPLACE_FLOOR_DIVIDE, "%": bc.INPLACE_MODULO,
	"**": bc.INPLACE_POWER, "<<": bc.INPLACE_LSHIFT, ">>": bc.INPLACE_RSHIFT,
	"&": bc.INPLACE_AND, "|": bc.INPLACE_OR, "^": bc.INPLACE_XOR,
}

func (c *Compiler) compileAugAssign(n *AugAssign) {
	op, ok := inplaceOps[n.Op]
	if !ok {
		c.errorf(n, "unsupported operator %s=", n.Op)
		return
	}
	switch t := n.Target.(type) {
	case *Name:
		c.loadName(t.Id)
		c.compileExpr(n.Value)
		c.asm.Emit(op, 0)
		c.storeName(t.Id)
	case *Subscript:
		c.compileExpr(t.Value)
		c.compileIndex(t.Index)
		c.asm.Emit(bc.DUP_TOP_TWO, 0)
		c.asm.Emit(bc.BINARY_SUBSCR, 0)
		c.compileExpr(n.Value)
		c.asm.Emit(op, 0)
		c.asm.Emit(bc.ROT_THREE, 0)
		c.asm.Emit(bc.STORE_SUBSCR, 0)
	}
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

var binaryOps = map[string]bc.Opcode{
	"+": bc.BINARY_ADD, "-": bc.BINARY_SUBTRACT, "*": bc.BINARY_MULTIPLY,
	"/": bc.BINARY_TRUE_DIVIDE, "//": bc.BINARY_FLOOR_DIVIDE, "%": bc.BINARY_MODULO,
	"**": bc.BINARY_POWER, "<<": bc.BINARY_LSHIFT, ">>": bc.BINARY_RSHIFT,
	"&": bc.BINARY_AND, "|": bc.BINARY_OR, "^": bc.BINARY_XOR,
}

var unaryOps = map[string]bc.Opcode{
	"-": bc.UNARY_NEGATIVE, "+": bc.UNARY_POSITIVE, "~": bc.UNARY_INVERT, "not": bc.UNARY_NOT,
}

var cmpArgs = map[string]int{
	"<": bc.CmpLT, "<=": bc.CmpLE, "==": bc.CmpEQ, "!=": bc.CmpNE, ">": bc.CmpGT, ">=": bc.CmpGE,
}

func (c *Compiler) compileExpr(expr Expr) {
	switch n := expr.(type) {
	case *IntLiteral, *FloatLiteral, *StringLiteral, *ConstLiteral:
		c.emitConst(n)
	case *Name:
		c.loadName(n.Id)
	case *UnaryOp:
		if folded := foldNegative(n); folded != nil {
			c.emitConst(folded)
			return
		}
		c.compileExpr(n.Operand)
		c.asm.Emit(unaryOps[n.Op], 0)
	case *BinaryOp:
		c.compileExpr(n.Left)
		c.compileExpr(n.Right)
		c.asm.Emit(binaryOps[n.Op], 0)
	case *BoolOp:
		end := c.asm.NewLabel()
		jump := bc.JUMP_IF_FALSE_OR_POP
		if n.Op == "or" {
			jump = bc.JUMP_IF_TRUE_OR_POP
		}
		for i, v := range n.Values {
			c.compileExpr(v)
			if i < len(n.Values)-1 {
				c.asm.EmitJump(jump, end)
			}
		}
		c.asm.Bind(end)
	case *Compare:
		c.compileCompare(n)
	case *Call:
		c.compileExpr(n.Func)
		for _, a := range n.Args {
			c.compileExpr(a)
		}
		c.asm.Emit(bc.CALL_FUNCTION, len(n.Args))
	case *Subscript:
		c.compileExpr(n.Value)
		c.compileIndex(n.Index)
		c.asm.Emit(bc.BINARY_SUBSCR, 0)
	case *ListExpr:
		c.compileList(n.Elems)
	case *TupleExpr:
		if !hasStarred(n.Elems) {
			for _, el := range n.Elems {
				c.compileExpr(el)
			}
			c.asm.Emit(bc.BUILD_TUPLE, len(n.Elems))
			return
		}
		c.compileList(n.Elems)
		c.asm.Emit(bc.LIST_TO_TUPLE, 0)
	case *SetExpr:
		c.compileSet(n.Elems)
	case *DictExpr:
		c.compileDict(n)
	case *IfExpr:
		elseLabel := c.asm.NewLabel()
		end := c.asm.NewLabel()
		c.compileJumpIfFalse(n.Cond, elseLabel)
		c.compileExpr(n.Body)
		c.asm.EmitJump(bc.JUMP_FORWARD, end)
		c.asm.Bind(elseLabel)
		c.compileExpr(n.Else)
		c.asm.Bind(end)
	case *Starred:
		c.errorf(n, "can't use starred expression here")
	case *SliceExpr:
		c.errorf(n, "slice outside subscript")
	default:
		c.errorf(expr, "unsupported expression %T", expr)
	}
}

// foldNegative turns -literal into a negative constant.
func foldNegative(n *UnaryOp) Expr {
	if n.Op != "-" {
		return nil
	}
	switch lit := n.Operand.(type) {
	case *IntLiteral:
		return &IntLiteral{At: n.At, Value: new(big.Int).Neg(lit.Value)}
	case *FloatLiteral:
		return &FloatLiteral{At: n.At, Value: -lit.Value}
	}
	return nil
}

func (c *Compiler) compileIndex(index Expr) {
	s, ok := index.(*SliceExpr)
	if !ok {
		c.compileExpr(index)
		return
	}
	for _, part := range []Expr{s.Lo, s.Hi} {
		if part == nil {
			c.emitConst(&ConstLiteral{Value: "None"})
		} else {
			c.compileExpr(part)
		}
	}
	if !s.HasStep {
		c.asm.Emit(bc.BUILD_SLICE, 2)
		return
	}
	if s.Step == nil {
		c.emitConst(&ConstLiteral{Value: "None"})
	} else {
		c.compileExpr(s.Step)
	}
	c.asm.Emit(bc.BUILD_SLICE, 3)
}

// compileCompare emits a comparison. Chains evaluate each middle operand
// once and short-circuit on the first false link.
func (c *Compiler) compileCompare(n *Compare) {
	c.compileExpr(n.Left)
	if len(n.Ops) == 1 {
		c.compileExpr(n.Rights[0])
		c.emitCompareOp(n.Ops[0])
		return
	}
	cleanup := c.asm.NewLabel()
	end := c.asm.NewLabel()
	last := len(n.Ops) - 1
	for i := 0; i < last; i++ {
		c.compileExpr(n.Rights[i])
		c.asm.Emit(bc.DUP_TOP, 0)
		c.asm.Emit(bc.ROT_THREE, 0)
		c.emitCompareOp(n.Ops[i])
		c.asm.EmitJump(bc.JUMP_IF_FALSE_OR_POP, cleanup)
	}
	c.compileExpr(n.Rights[last])
	c.emitCompareOp(n.Ops[last])
	c.asm.EmitJump(bc.JUMP_FORWARD, end)
	c.asm.Bind(cleanup)
	c.asm.Emit(bc.ROT_TWO, 0)
	c.asm.Emit(bc.POP_TOP, 0)
	c.asm.Bind(end)
}

func (c *Compiler) emitCompareOp(op string) {
	switch op {
	case "in":
		c.asm.Emit(bc.CONTAINS_OP, 0)
	case "not in":
		c.asm.Emit(bc.CONTAINS_OP, 1)
	case "is":
		c.asm.Emit(bc.IS_OP, 0)
	case "is not":
		c.asm.Emit(bc.IS_OP, 1)
	default:
		c.asm.Emit(bc.COMPARE_OP, cmpArgs[op])
	}
}

func hasStarred(elems []Expr) bool {
	for _, el := range elems {
		if _, ok := el.(*Starred); ok {
			return true
		}
	}
	return false
}

func (c *Compiler) compileList(elems []Expr) {
	if !hasStarred(elems) {
		for _, el := range elems {
			c.compileExpr(el)
		}
		c.asm.Emit(bc.BUILD_LIST, len(elems))
		return
	}
	c.asm.Emit(bc.BUILD_LIST, 0)
	for _, el := range elems {
		if s, ok := el.(*Starred); ok {
			c.compileExpr(s.Value)
			c.asm.Emit(bc.LIST_EXTEND, 1)
			continue
		}
		c.compileExpr(el)
		c.asm.Emit(bc.LIST_APPEND, 1)
	}
}

func (c *Compiler) compileSet(elems []Expr) {
	if !hasStarred(elems) {
		for _, el := range elems {
			c.compileExpr(el)
		}
		c.asm.Emit(bc.BUILD_SET, len(elems))
		return
	}
	c.asm.Emit(bc.BUILD_SET, 0)
	run := 0
	flush := func() {
		if run > 0 {
			c.asm.Emit(bc.BUILD_SET, run)
			c.asm.Emit(bc.SET_UPDATE, 1)
			run = 0
		}
	}
	for _, el := range elems {
		if s, ok := el.(*Starred); ok {
			flush()
			c.compileExpr(s.Value)
			c.asm.Emit(bc.SET_UPDATE, 1)
			continue
		}
		c.compileExpr(el)
		run++
	}
	flush()
}

func (c *Compiler) compileDict(n *DictExpr) {
	unpacks := false
	for _, k := range n.Keys {
		if k == nil {
			unpacks = true
		}
	}
	if !unpacks {
		for i := range n.Keys {
			c.compileExpr(n.Keys[i])
			c.compileExpr(n.Values[i])
		}
		c.asm.Emit(bc.BUILD_MAP, len(n.Keys))
		return
	}
	c.asm.Emit(bc.BUILD_MAP, 0)
	run := 0
	flush := func() {
		if run > 0 {
			c.asm.Emit(bc.BUILD_MAP, run)
			c.asm.Emit(bc.DICT_UPDATE, 1)
			run = 0
		}
	}
	for i, k := range n.Keys {
		if k == nil {
			flush()
			c.compileExpr(n.Values[i])
			c.asm.Emit(bc.DICT_UPDATE, 1)
			continue
		}
		c.compileExpr(k)
		c.compileExpr(n.Values[i])
		run++
	}
	flush()
}

// ---------------------------------------------------------------------------
// Compile helpers for external use
// ---------------------------------------------------------------------------

// Parse parses source into a module AST.
func Parse(source string) (*Module, error) {
	parser := NewParser(source)
	m := parser.ParseModule()
	if len(parser.Errors()) > 0 {
		return nil, fmt.Errorf("parse errors: %s", strings.Join(parser.Errors(), "; "))
	}
	return m, nil
}

// Compile parses, checks and compiles source into a module code object.
func Compile(ts *vm.Thread, source, filename string) (*vm.Code, error) {
	m, err := Parse(source)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	if errs := Analyze(m); len(errs) > 0 {
		return nil, fmt.Errorf("%s: semantic errors: %s", filename, strings.Join(errs, "; "))
	}
	c := NewCompiler(ts)
	code := c.CompileModule(m, "<module>")
	if len(c.Errors()) > 0 {
		return nil, fmt.Errorf("%s: compile errors: %s", filename, strings.Join(c.Errors(), "; "))
	}
	return code, nil
}

// Exec compiles and runs source as a module, returning its globals.
func Exec(ts *vm.Thread, source, filename string) (*vm.Dict, error) {
	code, err := Compile(ts, source, filename)
	if err != nil {
		return nil, err
	}
	defer vm.DecRef(code)
	globals := vm.NewDict(ts)
	res, err := vm.RunModule(ts, code, globals)
	if err != nil {
		vm.DecRef(globals)
		return nil, err
	}
	vm.DecRef(res)
	return globals, nil
}
