package vm

import (
	"fmt"

	"github.com/chazu/pgjit/pkg/bytecode"
)

// ---------------------------------------------------------------------------
// Code objects
// ---------------------------------------------------------------------------

// CodeSpec describes a code object to construct.
type CodeSpec struct {
	Name      string
	ArgCount  int
	VarNames  []string // argument names first
	Names     []string // global and attribute names
	Consts    []Object // stolen by NewCode
	Bytecode  []byte
	Lines     []bytecode.LineEntry
	FirstLine int
	StackSize int // raised to the computed depth
}

// Code is an immutable unit of bytecode plus the tables it indexes.
type Code struct {
	Header
	Name      string
	ArgCount  int
	VarNames  []string
	Names     []string
	Consts    []Object
	Bytecode  []byte
	Lines     []bytecode.LineEntry
	FirstLine int
	StackSize int

	instrs []bytecode.Instr
	index  bytecode.Index
	extra  []any
}

// NewCode validates spec and builds a code object.
func NewCode(ts *Thread, spec CodeSpec) (*Code, error) {
	instrs, err := bytecode.Decode(spec.Bytecode)
	if err != nil {
		ReleaseAll(spec.Consts)
		return nil, fmt.Errorf("code %s: %w", spec.Name, err)
	}
	if err := bytecode.CheckJumps(instrs); err != nil {
		ReleaseAll(spec.Consts)
		return nil, fmt.Errorf("code %s: %w", spec.Name, err)
	}
	depth, err := bytecode.MaxStackDepth(instrs)
	if err != nil {
		ReleaseAll(spec.Consts)
		return nil, fmt.Errorf("code %s: %w", spec.Name, err)
	}
	// Every frame gets at least one slot; a body that never pushes still
	// owns a value stack.
	spec.StackSize = max(spec.StackSize, depth, 1)
	if spec.ArgCount > len(spec.VarNames) {
		ReleaseAll(spec.Consts)
		return nil, fmt.Errorf("code %s: %d arguments but %d local names", spec.Name, spec.ArgCount, len(spec.VarNames))
	}
	c := &Code{
		Header:    ts.newHeader(CodeType, CodeType.size+len(spec.Bytecode)),
		Name:      spec.Name,
		ArgCount:  spec.ArgCount,
		VarNames:  spec.VarNames,
		Names:     spec.Names,
		Consts:    spec.Consts,
		Bytecode:  spec.Bytecode,
		Lines:     spec.Lines,
		FirstLine: spec.FirstLine,
		StackSize: spec.StackSize,
		instrs:    instrs,
		index:     bytecode.NewIndex(instrs),
	}
	return c, nil
}

// ReleaseAll drops one reference to each non-nil object in objs.
func ReleaseAll(objs []Object) {
	for _, o := range objs {
		XDecRef(o)
	}
}

// NLocals returns the number of fast local slots.
func (c *Code) NLocals() int {
	return len(c.VarNames)
}

// Size returns the bytecode length in bytes.
func (c *Code) Size() int {
	return len(c.Bytecode)
}

// Instrs returns the decoded instructions, borrowed.
func (c *Code) Instrs() []bytecode.Instr {
	return c.instrs
}

// InstrAt returns the position of the instruction starting at offset.
func (c *Code) InstrAt(offset int) (int, bool) {
	i, ok := c.index[offset]
	return i, ok
}

// LineFor returns the source line of the instruction at offset.
func (c *Code) LineFor(offset int) int {
	return bytecode.LineFor(c.Lines, offset)
}

// Extra returns the value stored in extra slot i, or nil.
func (c *Code) Extra(i int) any {
	if i < len(c.extra) {
		return c.extra[i]
	}
	return nil
}

// SetExtra stores v in extra slot i. The slot's free function, if any, is
// run on v when the code object is deallocated.
func (c *Code) SetExtra(i int, v any) {
	for len(c.extra) <= i {
		c.extra = append(c.extra, nil)
	}
	c.extra[i] = v
}

// Disassemble returns a listing of the code with constants and names
// resolved.
func (c *Code) Disassemble() string {
	return bytecode.DisassembleInstrs(c.Name, c.instrs, c.describe)
}

func (c *Code) describe(in bytecode.Instr) string {
	switch in.Op {
	case bytecode.LOAD_CONST:
		if in.Arg < len(c.Consts) {
			return Repr(c.Consts[in.Arg])
		}
	case bytecode.LOAD_FAST, bytecode.STORE_FAST, bytecode.DELETE_FAST:
		if in.Arg < len(c.VarNames) {
			return c.VarNames[in.Arg]
		}
	case bytecode.LOAD_GLOBAL, bytecode.STORE_GLOBAL, bytecode.DELETE_GLOBAL,
		bytecode.LOAD_NAME, bytecode.STORE_NAME, bytecode.DELETE_NAME:
		if in.Arg < len(c.Names) {
			return c.Names[in.Arg]
		}
	case bytecode.COMPARE_OP:
		if in.Arg < len(bytecode.CompareOps) {
			return bytecode.CompareOps[in.Arg]
		}
	}
	if in.Op.IsJump() {
		return fmt.Sprintf("to %d", in.Target())
	}
	return ""
}

func (c *Code) release() {
	consts := c.Consts
	c.Consts = nil
	ReleaseAll(consts)
	if c.rt == nil {
		return
	}
	for i, v := range c.extra {
		if v != nil && i < len(c.rt.extraFree) && c.rt.extraFree[i] != nil {
			c.rt.extraFree[i](v)
		}
	}
	c.extra = nil
}
