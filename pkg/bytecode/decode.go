package bytecode

import (
	"errors"
	"fmt"
)

var (
	// ErrOddLength is returned for bytecode that is not a whole number of
	// (opcode, oparg) pairs.
	ErrOddLength = errors.New("bytecode length is not a multiple of 2")

	// ErrUnknownOpcode is returned when a byte does not name an opcode.
	ErrUnknownOpcode = errors.New("unknown opcode")

	// ErrDanglingExtendedArg is returned when EXTENDED_ARG is the last
	// instruction in the stream.
	ErrDanglingExtendedArg = errors.New("EXTENDED_ARG without a following instruction")

	// ErrBadJumpTarget is returned when a jump lands outside the code or in
	// the middle of an instruction.
	ErrBadJumpTarget = errors.New("jump target is not an instruction boundary")
)

// Instr is one decoded instruction. EXTENDED_ARG prefixes are folded into
// Arg; Offset is the offset of the first prefix, which is where jumps to
// this instruction land.
type Instr struct {
	Offset int
	Op     Opcode
	Arg    int
	Size   int // bytes including prefixes
}

// Next returns the offset of the instruction that follows in the stream.
func (in Instr) Next() int {
	return in.Offset + in.Size
}

// Target returns the jump target of a jump instruction, or -1.
func (in Instr) Target() int {
	info := GetOpcodeInfo(in.Op)
	switch {
	case info.Flags&FlagJumpRel != 0:
		return in.Next() + in.Arg
	case info.Flags&FlagJumpAbs != 0:
		return in.Arg
	}
	return -1
}

// OpOffset returns the offset of the opcode byte itself, after any prefixes.
func (in Instr) OpOffset() int {
	return in.Offset + in.Size - 2
}

func (in Instr) String() string {
	if in.Op.HasArg() {
		return fmt.Sprintf("%d %s %d", in.Offset, in.Op, in.Arg)
	}
	return fmt.Sprintf("%d %s", in.Offset, in.Op)
}

// Decode splits code into instructions.
func Decode(code []byte) ([]Instr, error) {
	if len(code)%2 != 0 {
		return nil, ErrOddLength
	}
	instrs := make([]Instr, 0, len(code)/2)
	start, arg := 0, 0
	for pc := 0; pc < len(code); pc += 2 {
		op := Opcode(code[pc])
		if !op.Known() {
			return nil, fmt.Errorf("%w %d at offset %d", ErrUnknownOpcode, code[pc], pc)
		}
		arg = arg<<8 | int(code[pc+1])
		if op == EXTENDED_ARG {
			continue
		}
		if !op.HasArg() {
			arg = 0
		}
		instrs = append(instrs, Instr{Offset: start, Op: op, Arg: arg, Size: pc + 2 - start})
		start, arg = pc+2, 0
	}
	if start != len(code) {
		return nil, ErrDanglingExtendedArg
	}
	return instrs, nil
}

// Index maps instruction offsets to their position in a decoded slice.
type Index map[int]int

// NewIndex builds the offset index for instrs.
func NewIndex(instrs []Instr) Index {
	idx := make(Index, len(instrs))
	for i, in := range instrs {
		idx[in.Offset] = i
	}
	return idx
}

// CheckJumps verifies that every jump in instrs lands on an instruction.
func CheckJumps(instrs []Instr) error {
	idx := NewIndex(instrs)
	for _, in := range instrs {
		if !in.Op.IsJump() {
			continue
		}
		if _, ok := idx[in.Target()]; !ok {
			return fmt.Errorf("%w: %s -> %d", ErrBadJumpTarget, in, in.Target())
		}
	}
	return nil
}

// MaxStackDepth computes the deepest operand stack reachable in instrs by
// walking every control flow path from offset 0.
func MaxStackDepth(instrs []Instr) (int, error) {
	if len(instrs) == 0 {
		return 0, nil
	}
	idx := NewIndex(instrs)
	depth := make(map[int]int, len(instrs))
	max := 0
	type item struct{ pos, depth int }
	work := []item{{0, 0}}
	for len(work) > 0 {
		it := work[len(work)-1]
		work = work[:len(work)-1]
		if seen, ok := depth[it.pos]; ok {
			if seen != it.depth {
				return 0, fmt.Errorf("inconsistent stack depth at %s: %d vs %d", instrs[it.pos], seen, it.depth)
			}
			continue
		}
		depth[it.pos] = it.depth
		in := instrs[it.pos]

		// Checked once per instruction so terminators are covered too.
		pop, _ := StackEffect(in.Op, in.Arg, false)
		if in.Op.IsJump() {
			if jp, _ := StackEffect(in.Op, in.Arg, true); jp > pop {
				pop = jp
			}
		}
		if it.depth < pop {
			return 0, fmt.Errorf("stack underflow at %s", in)
		}

		push := func(target int, jump bool) error {
			pop, psh := StackEffect(in.Op, in.Arg, jump)
			d := it.depth - pop + psh
			if d > max {
				max = d
			}
			pos, ok := idx[target]
			if !ok {
				return fmt.Errorf("%w: %s -> %d", ErrBadJumpTarget, in, target)
			}
			work = append(work, item{pos, d})
			return nil
		}

		if in.Op.IsJump() {
			if err := push(in.Target(), true); err != nil {
				return 0, err
			}
		}
		if in.Op.Falls() && it.pos+1 < len(instrs) {
			if err := push(in.Next(), false); err != nil {
				return 0, err
			}
		}
	}
	return max, nil
}
