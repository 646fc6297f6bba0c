package bytecode

import (
	"errors"
	"fmt"
	"sort"
)

// ---------------------------------------------------------------------------
// Assembler: emits instructions against symbolic jump labels
// ---------------------------------------------------------------------------

// Label names a position in the instruction stream.
type Label int

// LineEntry maps the instruction starting at Offset, and everything after it
// up to the next entry, to a source line.
type LineEntry struct {
	Offset int
	Line   int
}

type pending struct {
	op    Opcode
	arg   int
	label Label // jump target when op is a jump, else -1
	line  int
}

// Assembler accumulates instructions and resolves jumps when Assemble is
// called. Opargs wider than a byte get EXTENDED_ARG prefixes automatically.
type Assembler struct {
	instrs []pending
	labels []int // label -> instruction position, -1 while unbound
	line   int
}

// NewAssembler creates an empty assembler.
func NewAssembler() *Assembler {
	return &Assembler{}
}

// SetLine sets the source line attached to subsequently emitted instructions.
func (a *Assembler) SetLine(line int) {
	a.line = line
}

// Emit appends an instruction and returns its position.
func (a *Assembler) Emit(op Opcode, arg int) int {
	a.instrs = append(a.instrs, pending{op: op, arg: arg, label: -1, line: a.line})
	return len(a.instrs) - 1
}

// NewLabel allocates an unbound label.
func (a *Assembler) NewLabel() Label {
	a.labels = append(a.labels, -1)
	return Label(len(a.labels) - 1)
}

// Bind attaches label to the next emitted instruction.
func (a *Assembler) Bind(l Label) {
	a.labels[l] = len(a.instrs)
}

// EmitJump appends a jump to label.
func (a *Assembler) EmitJump(op Opcode, l Label) int {
	if !op.IsJump() {
		panic(fmt.Sprintf("EmitJump with non-jump opcode %s", op))
	}
	a.instrs = append(a.instrs, pending{op: op, label: l, line: a.line})
	return len(a.instrs) - 1
}

// Len returns the number of instructions emitted so far.
func (a *Assembler) Len() int {
	return len(a.instrs)
}

// LastOp returns the opcode of the most recent instruction, or NOP.
func (a *Assembler) LastOp() Opcode {
	if len(a.instrs) == 0 {
		return NOP
	}
	return a.instrs[len(a.instrs)-1].op
}

func prefixCount(arg int) int {
	n := 0
	for arg > 0xFF {
		arg >>= 8
		n++
	}
	return n
}

// Assemble resolves labels and returns the encoded bytecode plus its line
// table.
func (a *Assembler) Assemble() ([]byte, []LineEntry, error) {
	for i, pos := range a.labels {
		if pos < 0 {
			return nil, nil, fmt.Errorf("label %d never bound", i)
		}
	}

	// Jumps change size as their targets move, so iterate until stable.
	sizes := make([]int, len(a.instrs))
	for i, in := range a.instrs {
		sizes[i] = 2 * (1 + prefixCount(in.arg))
	}
	offsets := make([]int, len(a.instrs)+1)
	for {
		off := 0
		for i := range a.instrs {
			offsets[i] = off
			off += sizes[i]
		}
		offsets[len(a.instrs)] = off

		changed := false
		for i := range a.instrs {
			in := &a.instrs[i]
			if in.label < 0 {
				continue
			}
			target := offsets[a.labels[in.label]]
			if GetOpcodeInfo(in.op).Flags&FlagJumpRel != 0 {
				target -= offsets[i] + sizes[i]
				if target < 0 {
					return nil, nil, errors.New("relative jump backwards: " + in.op.String())
				}
			}
			in.arg = target
			if sz := 2 * (1 + prefixCount(target)); sz > sizes[i] {
				sizes[i] = sz
				changed = true
			}
		}
		if !changed {
			break
		}
	}

	code := make([]byte, 0, offsets[len(a.instrs)])
	var lines []LineEntry
	for i, in := range a.instrs {
		if in.line > 0 && (len(lines) == 0 || lines[len(lines)-1].Line != in.line) {
			lines = append(lines, LineEntry{Offset: offsets[i], Line: in.line})
		}
		n := sizes[i]/2 - 1
		for k := n; k > 0; k-- {
			code = append(code, byte(EXTENDED_ARG), byte(in.arg>>(8*k)))
		}
		code = append(code, byte(in.op), byte(in.arg))
	}
	return code, lines, nil
}

// LineFor returns the source line of offset according to table, or 0.
func LineFor(table []LineEntry, offset int) int {
	i := sort.Search(len(table), func(i int) bool { return table[i].Offset > offset })
	if i == 0 {
		return 0
	}
	return table[i-1].Line
}
