package compiler

import "math/big"

// ---------------------------------------------------------------------------
// AST
// ---------------------------------------------------------------------------

// Position represents a source location.
type Position struct {
	Offset int // byte offset
	Line   int // 1-based line number
	Column int // 1-based column number
}

// Node is the interface implemented by all AST nodes.
type Node interface {
	Pos() Position
	node() // marker method
}

// ---------------------------------------------------------------------------
// Expression nodes
// ---------------------------------------------------------------------------

// Expr is the interface for expression nodes.
type Expr interface {
	Node
	expr() // marker method
}

// Name is a variable reference.
type Name struct {
	At Position
	Id string
}

// IntLiteral is an integer literal of any size.
type IntLiteral struct {
	At    Position
	Value *big.Int
}

// FloatLiteral is a floating-point literal.
type FloatLiteral struct {
	At    Position
	Value float64
}

// StringLiteral is a string literal; adjacent literals are concatenated.
type StringLiteral struct {
	At    Position
	Value string
}

// ConstLiteral is None, True or False.
type ConstLiteral struct {
	At    Position
	Value string
}

// UnaryOp is -x, +x, ~x or not x.
type UnaryOp struct {
	At      Position
	Op      string
	Operand Expr
}

// BinaryOp is a binary arithmetic or bitwise operation.
type BinaryOp struct {
	At          Position
	Op          string
	Left, Right Expr
}

// BoolOp is a chain of and or or.
type BoolOp struct {
	At     Position
	Op     string // "and" or "or"
	Values []Expr
}

// Compare is a possibly chained comparison: Left Ops[0] Rights[0] ...
type Compare struct {
	At     Position
	Left   Expr
	Ops    []string // <, <=, ==, !=, >, >=, in, not in, is, is not
	Rights []Expr
}

// Call is a call with positional arguments.
type Call struct {
	At   Position
	Func Expr
	Args []Expr
}

// Subscript is Value[Index].
type Subscript struct {
	At    Position
	Value Expr
	Index Expr
}

// SliceExpr is lo:hi:step inside a subscript. Missing parts are nil.
type SliceExpr struct {
	At           Position
	Lo, Hi, Step Expr
	HasStep      bool
}

// ListExpr is a list display.
type ListExpr struct {
	At    Position
	Elems []Expr
}

// TupleExpr is a tuple display.
type TupleExpr struct {
	At    Position
	Elems []Expr
}

// SetExpr is a set display.
type SetExpr struct {
	At    Position
	Elems []Expr
}

// DictExpr is a dict display. A nil key marks a **mapping entry.
type DictExpr struct {
	At     Position
	Keys   []Expr
	Values []Expr
}

// Starred is *value inside a display.
type Starred struct {
	At    Position
	Value Expr
}

// IfExpr is Body if Cond else Else.
type IfExpr struct {
	At               Position
	Cond, Body, Else Expr
}

func (n *Name) Pos() Position          { return n.At }
func (n *IntLiteral) Pos() Position    { return n.At }
func (n *FloatLiteral) Pos() Position  { return n.At }
func (n *StringLiteral) Pos() Position { return n.At }
func (n *ConstLiteral) Pos() Position  { return n.At }
func (n *UnaryOp) Pos() Position       { return n.At }
func (n *BinaryOp) Pos() Position      { return n.At }
func (n *BoolOp) Pos() Position        { return n.At }
func (n *Compare) Pos() Position       { return n.At }
func (n *Call) Pos() Position          { return n.At }
func (n *Subscript) Pos() Position     { return n.At }
func (n *SliceExpr) Pos() Position     { return n.At }
func (n *ListExpr) Pos() Position      { return n.At }
func (n *TupleExpr) Pos() Position     { return n.At }
func (n *SetExpr) Pos() Position       { return n.At }
func (n *DictExpr) Pos() Position      { return n.At }
func (n *Starred) Pos() Position       { return n.At }
func (n *IfExpr) Pos() Position        { return n.At }

func (*Name) node()          {}
func (*IntLiteral) node()    {}
func (*FloatLiteral) node()  {}
func (*StringLiteral) node() {}
func (*ConstLiteral) node()  {}
func (*UnaryOp) node()       {}
func (*BinaryOp) node()      {}
func (*BoolOp) node()        {}
func (*Compare) node()       {}
func (*Call) node()          {}
func (*Subscript) node()     {}
func (*SliceExpr) node()     {}
func (*ListExpr) node()      {}
func (*TupleExpr) node()     {}
func (*SetExpr) node()       {}
func (*DictExpr) node()      {}
func (*Starred) node()       {}
func (*IfExpr) node()        {}

func (*Name) expr()          {}
func (*IntLiteral) expr()    {}
func (*FloatLiteral) expr()  {}
func (*StringLiteral) expr() {}
func (*ConstLiteral) expr()  {}
func (*UnaryOp) expr()       {}
func (*BinaryOp) expr()      {}
func (*BoolOp) expr()        {}
func (*Compare) expr()       {}
func (*Call) expr()          {}
func (*Subscript) expr()     {}
func (*SliceExpr) expr()     {}
func (*ListExpr) expr()      {}
func (*TupleExpr) expr()     {}
func (*SetExpr) expr()       {}
func (*DictExpr) expr()      {}
func (*Starred) expr()       {}
func (*IfExpr) expr()        {}

// ---------------------------------------------------------------------------
// Statement nodes
// ---------------------------------------------------------------------------

// Stmt is the interface for statement nodes.
type Stmt interface {
	Node
	stmt() // marker method
}

// ExprStmt evaluates an expression for its side effects.
type ExprStmt struct {
	At   Position
	Expr Expr
}

// Assign binds Value to every target: a = b = value.
type Assign struct {
	At      Position
	Targets []Expr
	Value   Expr
}

// AugAssign is target op= value.
type AugAssign struct {
	At     Position
	Target Expr
	Op     string // operator without the trailing '='
	Value  Expr
}

// Return exits the function. Value is nil for a bare return.
type Return struct {
	At    Position
	Value Expr
}

// If is if/elif/else; elif chains nest in Else.
type If struct {
	At   Position
	Cond Expr
	Body []Stmt
	Else []Stmt
}

// While is a while loop.
type While struct {
	At   Position
	Cond Expr
	Body []Stmt
}

// For is a for loop over an iterable.
type For struct {
	At     Position
	Target Expr
	Iter   Expr
	Body   []Stmt
}

// Break leaves the innermost loop.
type Break struct{ At Position }

// Continue restarts the innermost loop.
type Continue struct{ At Position }

// Pass does nothing.
type Pass struct{ At Position }

// Global declares names as module globals inside a function.
type Global struct {
	At    Position
	Names []string
}

// Assert raises AssertionError when Test is false.
type Assert struct {
	At   Position
	Test Expr
	Msg  Expr
}

// Raise raises Exc, or re-raises when Exc is nil.
type Raise struct {
	At  Position
	Exc Expr
}

// Del unbinds names or deletes subscripts.
type Del struct {
	At      Position
	Targets []Expr
}

// FuncDef defines a function. Defaults align with the trailing Params.
type FuncDef struct {
	At       Position
	Name     string
	Params   []string
	Defaults []Expr
	Body     []Stmt
}

func (n *ExprStmt) Pos() Position  { return n.At }
func (n *Assign) Pos() Position    { return n.At }
func (n *AugAssign) Pos() Position { return n.At }
func (n *Return) Pos() Position    { return n.At }
func (n *If) Pos() Position        { return n.At }
func (n *While) Pos() Position     { return n.At }
func (n *For) Pos() Position       { return n.At }
func (n *Break) Pos() Position     { return n.At }
func (n *Continue) Pos() Position  { return n.At }
func (n *Pass) Pos() Position      { return n.At }
func (n *Global) Pos() Position    { return n.At }
func (n *Assert) Pos() Position    { return n.At }
func (n *Raise) Pos() Position     { return n.At }
func (n *Del) Pos() Position       { return n.At }
func (n *FuncDef) Pos() Position   { return n.At }

func (*ExprStmt) node()  {}
func (*Assign) node()    {}
func (*AugAssign) node() {}
func (*Return) node()    {}
func (*If) node()        {}
func (*While) node()     {}
func (*For) node()       {}
func (*Break) node()     {}
func (*Continue) node()  {}
func (*Pass) node()      {}
func (*Global) node()    {}
func (*Assert) node()    {}
func (*Raise) node()     {}
func (*Del) node()       {}
func (*FuncDef) node()   {}

func (*ExprStmt) stmt()  {}
func (*Assign) stmt()    {}
func (*AugAssign) stmt() {}
func (*Return) stmt()    {}
func (*If) stmt()        {}
func (*While) stmt()     {}
func (*For) stmt()       {}
func (*Break) stmt()     {}
func (*Continue) stmt()  {}
func (*Pass) stmt()      {}
func (*Global) stmt()    {}
func (*Assert) stmt()    {}
func (*Raise) stmt()     {}
func (*Del) stmt()       {}
func (*FuncDef) stmt()   {}

// Module is a parsed source file.
type Module struct {
	Body []Stmt
}
