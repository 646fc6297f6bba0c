package bytecode

import (
	"fmt"
	"sort"
)

// Opcode represents a bytecode instruction.
// Opcodes below HaveArgument ignore their oparg byte.
type Opcode byte

// HaveArgument is the first opcode whose oparg is meaningful.
const HaveArgument Opcode = 90

const (
	// ========================================================================
	// Stack manipulation
	// ========================================================================

	POP_TOP     Opcode = 1 // Pop and release TOS
	ROT_TWO     Opcode = 2 // Swap TOS and TOS1
	ROT_THREE   Opcode = 3 // Lift TOS1 and TOS2 one up, TOS down to position three
	DUP_TOP     Opcode = 4 // Push a second reference to TOS
	DUP_TOP_TWO Opcode = 5 // Duplicate the top two entries
	ROT_FOUR    Opcode = 6 // Lift the top three entries, TOS down to position four
	NOP         Opcode = 9

	// ========================================================================
	// Unary operations
	// ========================================================================

	UNARY_POSITIVE Opcode = 10
	UNARY_NEGATIVE Opcode = 11
	UNARY_NOT      Opcode = 12
	UNARY_INVERT   Opcode = 15

	// ========================================================================
	// Binary and in-place operations
	// ========================================================================

	BINARY_POWER         Opcode = 19
	BINARY_MULTIPLY      Opcode = 20
	BINARY_MODULO        Opcode = 22
	BINARY_ADD           Opcode = 23
	BINARY_SUBTRACT      Opcode = 24
	BINARY_SUBSCR        Opcode = 25 // TOS1[TOS]
	BINARY_FLOOR_DIVIDE  Opcode = 26
	BINARY_TRUE_DIVIDE   Opcode = 27
	INPLACE_FLOOR_DIVIDE Opcode = 28
	INPLACE_TRUE_DIVIDE  Opcode = 29
	INPLACE_ADD          Opcode = 55
	INPLACE_SUBTRACT     Opcode = 56
	INPLACE_MULTIPLY     Opcode = 57
	INPLACE_MODULO       Opcode = 59
	STORE_SUBSCR         Opcode = 60 // TOS1[TOS] = TOS2
	DELETE_SUBSCR        Opcode = 61 // del TOS1[TOS]
	BINARY_LSHIFT        Opcode = 62
	BINARY_RSHIFT        Opcode = 63
	BINARY_AND           Opcode = 64
	BINARY_XOR           Opcode = 65
	BINARY_OR            Opcode = 66
	INPLACE_POWER        Opcode = 67
	INPLACE_LSHIFT       Opcode = 75
	INPLACE_RSHIFT       Opcode = 76
	INPLACE_AND          Opcode = 77
	INPLACE_XOR          Opcode = 78
	INPLACE_OR           Opcode = 79

	// ========================================================================
	// Iteration, assertions and returns
	// ========================================================================

	GET_ITER             Opcode = 68
	LOAD_ASSERTION_ERROR Opcode = 74
	LIST_TO_TUPLE        Opcode = 82
	RETURN_VALUE         Opcode = 83

	// ========================================================================
	// Name scope (module bodies)
	// ========================================================================

	STORE_NAME  Opcode = 90 // names[arg] = TOS
	DELETE_NAME Opcode = 91
	LOAD_NAME   Opcode = 101

	// ========================================================================
	// Sequences and builders
	// ========================================================================

	UNPACK_SEQUENCE Opcode = 92 // Push TOS[arg-1] ... TOS[0]
	FOR_ITER        Opcode = 93 // Push next(TOS) or pop TOS and jump forward by arg
	BUILD_TUPLE     Opcode = 102
	BUILD_LIST      Opcode = 103
	BUILD_SET       Opcode = 104
	BUILD_MAP       Opcode = 105 // arg key/value pairs
	BUILD_SLICE     Opcode = 133
	LIST_APPEND     Opcode = 145 // Pop TOS into the list arg entries down
	LIST_EXTEND     Opcode = 162
	SET_UPDATE      Opcode = 163
	DICT_UPDATE     Opcode = 165

	// ========================================================================
	// Globals, constants and fast locals
	// ========================================================================

	STORE_GLOBAL  Opcode = 97
	DELETE_GLOBAL Opcode = 98
	LOAD_CONST    Opcode = 100
	LOAD_GLOBAL   Opcode = 116
	LOAD_FAST     Opcode = 124
	STORE_FAST    Opcode = 125
	DELETE_FAST   Opcode = 126

	// ========================================================================
	// Comparisons
	// ========================================================================

	COMPARE_OP  Opcode = 107 // arg indexes CompareOps
	IS_OP       Opcode = 117 // arg 1 inverts
	CONTAINS_OP Opcode = 118 // arg 1 inverts

	// ========================================================================
	// Control flow
	// ========================================================================

	JUMP_FORWARD         Opcode = 110 // Relative to the next instruction
	JUMP_IF_FALSE_OR_POP Opcode = 111
	JUMP_IF_TRUE_OR_POP  Opcode = 112
	JUMP_ABSOLUTE        Opcode = 113
	POP_JUMP_IF_FALSE    Opcode = 114
	POP_JUMP_IF_TRUE     Opcode = 115
	RAISE_VARARGS        Opcode = 130

	// ========================================================================
	// Calls and functions
	// ========================================================================

	CALL_FUNCTION Opcode = 131 // arg positional arguments above the callee
	MAKE_FUNCTION Opcode = 132 // TOS is the qualified name, TOS1 the code; flag 0x01 adds a defaults tuple

	EXTENDED_ARG Opcode = 144
)

// Comparison opargs for COMPARE_OP.
const (
	CmpLT = iota
	CmpLE
	CmpEQ
	CmpNE
	CmpGT
	CmpGE
)

// CompareOps names the COMPARE_OP opargs.
var CompareOps = []string{"<", "<=", "==", "!=", ">", ">="}

// Flags describe the control flow behaviour of an opcode.
type Flags uint8

const (
	FlagJumpRel     Flags = 1 << iota // oparg is relative to the next instruction
	FlagJumpAbs                       // oparg is an absolute byte offset
	FlagConditional                   // falls through as well as jumping
	FlagNoFallthrough                 // control never reaches the next instruction
)

// OpcodeInfo provides metadata about each opcode for validation and analysis.
type OpcodeInfo struct {
	Name      string // Human-readable name
	StackPop  int    // Values popped on the fall-through path (-1 = depends on oparg)
	StackPush int    // Values pushed on the fall-through path (-1 = depends on oparg)
	Flags     Flags
}

// opcodeInfoTable maps opcodes to their metadata.
var opcodeInfoTable = map[Opcode]OpcodeInfo{
	// Stack manipulation
	POP_TOP:     {"POP_TOP", 1, 0, 0},
	ROT_TWO:     {"ROT_TWO", 2, 2, 0},
	ROT_THREE:   {"ROT_THREE", 3, 3, 0},
	ROT_FOUR:    {"ROT_FOUR", 4, 4, 0},
	DUP_TOP:     {"DUP_TOP", 1, 2, 0},
	DUP_TOP_TWO: {"DUP_TOP_TWO", 2, 4, 0},
	NOP:         {"NOP", 0, 0, 0},

	// Unary
	UNARY_POSITIVE: {"UNARY_POSITIVE", 1, 1, 0},
	UNARY_NEGATIVE: {"UNARY_NEGATIVE", 1, 1, 0},
	UNARY_NOT:      {"UNARY_NOT", 1, 1, 0},
	UNARY_INVERT:   {"UNARY_INVERT", 1, 1, 0},

	// Binary
	BINARY_POWER:         {"BINARY_POWER", 2, 1, 0},
	BINARY_MULTIPLY:      {"BINARY_MULTIPLY", 2, 1, 0},
	BINARY_MODULO:        {"BINARY_MODULO", 2, 1, 0},
	BINARY_ADD:           {"BINARY_ADD", 2, 1, 0},
	BINARY_SUBTRACT:      {"BINARY_SUBTRACT", 2, 1, 0},
	BINARY_SUBSCR:        {"BINARY_SUBSCR", 2, 1, 0},
	BINARY_FLOOR_DIVIDE:  {"BINARY_FLOOR_DIVIDE", 2, 1, 0},
	BINARY_TRUE_DIVIDE:   {"BINARY_TRUE_DIVIDE", 2, 1, 0},
	BINARY_LSHIFT:        {"BINARY_LSHIFT", 2, 1, 0},
	BINARY_RSHIFT:        {"BINARY_RSHIFT", 2, 1, 0},
	BINARY_AND:           {"BINARY_AND", 2, 1, 0},
	BINARY_XOR:           {"BINARY_XOR", 2, 1, 0},
	BINARY_OR:            {"BINARY_OR", 2, 1, 0},
	INPLACE_FLOOR_DIVIDE: {"INPLACE_FLOOR_DIVIDE", 2, 1, 0},
	INPLACE_TRUE_DIVIDE:  {"INPLACE_TRUE_DIVIDE", 2, 1, 0},
	INPLACE_ADD:          {"INPLACE_ADD", 2, 1, 0},
	INPLACE_SUBTRACT:     {"INPLACE_SUBTRACT", 2, 1, 0},
	INPLACE_MULTIPLY:     {"INPLACE_MULTIPLY", 2, 1, 0},
	INPLACE_MODULO:       {"INPLACE_MODULO", 2, 1, 0},
	INPLACE_POWER:        {"INPLACE_POWER", 2, 1, 0},
	INPLACE_LSHIFT:       {"INPLACE_LSHIFT", 2, 1, 0},
	INPLACE_RSHIFT:       {"INPLACE_RSHIFT", 2, 1, 0},
	INPLACE_AND:          {"INPLACE_AND", 2, 1, 0},
	INPLACE_XOR:          {"INPLACE_XOR", 2, 1, 0},
	INPLACE_OR:           {"INPLACE_OR", 2, 1, 0},
	STORE_SUBSCR:         {"STORE_SUBSCR", 3, 0, 0},
	DELETE_SUBSCR:        {"DELETE_SUBSCR", 2, 0, 0},

	// Iteration, assertions and returns
	GET_ITER:             {"GET_ITER", 1, 1, 0},
	LOAD_ASSERTION_ERROR: {"LOAD_ASSERTION_ERROR", 0, 1, 0},
	LIST_TO_TUPLE:        {"LIST_TO_TUPLE", 1, 1, 0},
	RETURN_VALUE:         {"RETURN_VALUE", 1, 0, FlagNoFallthrough},

	// Name scope
	STORE_NAME:  {"STORE_NAME", 1, 0, 0},
	DELETE_NAME: {"DELETE_NAME", 0, 0, 0},
	LOAD_NAME:   {"LOAD_NAME", 0, 1, 0},

	// Sequences and builders
	UNPACK_SEQUENCE: {"UNPACK_SEQUENCE", 1, -1, 0},
	FOR_ITER:        {"FOR_ITER", 1, 2, FlagJumpRel | FlagConditional},
	BUILD_TUPLE:     {"BUILD_TUPLE", -1, 1, 0},
	BUILD_LIST:      {"BUILD_LIST", -1, 1, 0},
	BUILD_SET:       {"BUILD_SET", -1, 1, 0},
	BUILD_MAP:       {"BUILD_MAP", -1, 1, 0},
	BUILD_SLICE:     {"BUILD_SLICE", -1, 1, 0},
	LIST_APPEND:     {"LIST_APPEND", 1, 0, 0},
	LIST_EXTEND:     {"LIST_EXTEND", 1, 0, 0},
	SET_UPDATE:      {"SET_UPDATE", 1, 0, 0},
	DICT_UPDATE:     {"DICT_UPDATE", 1, 0, 0},

	// Globals, constants and fast locals
	STORE_GLOBAL:  {"STORE_GLOBAL", 1, 0, 0},
	DELETE_GLOBAL: {"DELETE_GLOBAL", 0, 0, 0},
	LOAD_CONST:    {"LOAD_CONST", 0, 1, 0},
	LOAD_GLOBAL:   {"LOAD_GLOBAL", 0, 1, 0},
	LOAD_FAST:     {"LOAD_FAST", 0, 1, 0},
	STORE_FAST:    {"STORE_FAST", 1, 0, 0},
	DELETE_FAST:   {"DELETE_FAST", 0, 0, 0},

	// Comparisons
	COMPARE_OP:  {"COMPARE_OP", 2, 1, 0},
	IS_OP:       {"IS_OP", 2, 1, 0},
	CONTAINS_OP: {"CONTAINS_OP", 2, 1, 0},

	// Control flow
	JUMP_FORWARD:         {"JUMP_FORWARD", 0, 0, FlagJumpRel | FlagNoFallthrough},
	JUMP_ABSOLUTE:        {"JUMP_ABSOLUTE", 0, 0, FlagJumpAbs | FlagNoFallthrough},
	JUMP_IF_FALSE_OR_POP: {"JUMP_IF_FALSE_OR_POP", 1, 0, FlagJumpAbs | FlagConditional},
	JUMP_IF_TRUE_OR_POP:  {"JUMP_IF_TRUE_OR_POP", 1, 0, FlagJumpAbs | FlagConditional},
	POP_JUMP_IF_FALSE:    {"POP_JUMP_IF_FALSE", 1, 0, FlagJumpAbs | FlagConditional},
	POP_JUMP_IF_TRUE:     {"POP_JUMP_IF_TRUE", 1, 0, FlagJumpAbs | FlagConditional},
	RAISE_VARARGS:        {"RAISE_VARARGS", -1, 0, FlagNoFallthrough},

	// Calls and functions
	CALL_FUNCTION: {"CALL_FUNCTION", -1, 1, 0},
	MAKE_FUNCTION: {"MAKE_FUNCTION", -1, 1, 0},

	EXTENDED_ARG: {"EXTENDED_ARG", 0, 0, 0},
}

// GetOpcodeInfo returns metadata for an opcode.
// Returns an OpcodeInfo named "UNKNOWN" if the opcode is not recognized.
func GetOpcodeInfo(op Opcode) OpcodeInfo {
	if info, ok := opcodeInfoTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN(%d)", byte(op))}
}

// Known reports whether op is part of the instruction set.
func (op Opcode) Known() bool {
	_, ok := opcodeInfoTable[op]
	return ok
}

// String returns the human-readable name of an opcode.
func (op Opcode) String() string {
	return GetOpcodeInfo(op).Name
}

// HasArg reports whether the opcode uses its oparg.
func (op Opcode) HasArg() bool {
	return op >= HaveArgument
}

// IsJump returns true if the opcode may transfer control to an oparg target.
func (op Opcode) IsJump() bool {
	return GetOpcodeInfo(op).Flags&(FlagJumpRel|FlagJumpAbs) != 0
}

// IsConditional returns true for jumps that may also fall through.
func (op Opcode) IsConditional() bool {
	return GetOpcodeInfo(op).Flags&FlagConditional != 0
}

// Falls reports whether control can reach the next instruction.
func (op Opcode) Falls() bool {
	return GetOpcodeInfo(op).Flags&FlagNoFallthrough == 0
}

// IsBinary returns true for BINARY_* and INPLACE_* arithmetic and bitwise
// operations (BINARY_SUBSCR excluded).
func (op Opcode) IsBinary() bool {
	switch op {
	case BINARY_POWER, BINARY_MULTIPLY, BINARY_MODULO, BINARY_ADD,
		BINARY_SUBTRACT, BINARY_FLOOR_DIVIDE, BINARY_TRUE_DIVIDE,
		BINARY_LSHIFT, BINARY_RSHIFT, BINARY_AND, BINARY_XOR, BINARY_OR:
		return true
	}
	return op.IsInplace()
}

// IsInplace returns true for INPLACE_* operations.
func (op Opcode) IsInplace() bool {
	switch op {
	case INPLACE_FLOOR_DIVIDE, INPLACE_TRUE_DIVIDE, INPLACE_ADD,
		INPLACE_SUBTRACT, INPLACE_MULTIPLY, INPLACE_MODULO, INPLACE_POWER,
		INPLACE_LSHIFT, INPLACE_RSHIFT, INPLACE_AND, INPLACE_XOR, INPLACE_OR:
		return true
	}
	return false
}

// BinaryBase maps an INPLACE_* opcode to its BINARY_* counterpart. Other
// opcodes are returned unchanged.
func BinaryBase(op Opcode) Opcode {
	switch op {
	case INPLACE_FLOOR_DIVIDE:
		return BINARY_FLOOR_DIVIDE
	case INPLACE_TRUE_DIVIDE:
		return BINARY_TRUE_DIVIDE
	case INPLACE_ADD:
		return BINARY_ADD
	case INPLACE_SUBTRACT:
		return BINARY_SUBTRACT
	case INPLACE_MULTIPLY:
		return BINARY_MULTIPLY
	case INPLACE_MODULO:
		return BINARY_MODULO
	case INPLACE_POWER:
		return BINARY_POWER
	case INPLACE_LSHIFT:
		return BINARY_LSHIFT
	case INPLACE_RSHIFT:
		return BINARY_RSHIFT
	case INPLACE_AND:
		return BINARY_AND
	case INPLACE_XOR:
		return BINARY_XOR
	case INPLACE_OR:
		return BINARY_OR
	}
	return op
}

// StackEffect returns how many values an instruction pops and pushes. When
// jump is true the effect is the one observed on the jump edge of a
// conditional jump.
func StackEffect(op Opcode, arg int, jump bool) (pop, push int) {
	info := GetOpcodeInfo(op)
	pop, push = info.StackPop, info.StackPush
	switch op {
	case UNPACK_SEQUENCE:
		push = arg
	case BUILD_TUPLE, BUILD_LIST, BUILD_SET, BUILD_SLICE:
		pop = arg
	case BUILD_MAP:
		pop = 2 * arg
	case RAISE_VARARGS:
		pop = arg
	case CALL_FUNCTION:
		pop = arg + 1
	case MAKE_FUNCTION:
		pop = 2
		if arg&0x01 != 0 {
			pop++
		}
	case FOR_ITER:
		if jump {
			pop, push = 1, 0
		}
	case JUMP_IF_FALSE_OR_POP, JUMP_IF_TRUE_OR_POP:
		if jump {
			pop, push = 0, 0
		}
	}
	return pop, push
}

// AllOpcodes returns all defined opcodes in ascending order.
func AllOpcodes() []Opcode {
	ops := make([]Opcode, 0, len(opcodeInfoTable))
	for op := range opcodeInfoTable {
		ops = append(ops, op)
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i] < ops[j] })
	return ops
}

// Lookup finds an opcode by name.
func Lookup(name string) (Opcode, bool) {
	for op, info := range opcodeInfoTable {
		if info.Name == name {
			return op, true
		}
	}
	return 0, false
}
