package bytecode

import (
	"fmt"
	"strings"
)

// Describer renders the oparg of an instruction for a listing, e.g. the
// constant a LOAD_CONST refers to. Returning "" omits the annotation.
type Describer func(Instr) string

// Disassemble returns a human-readable listing of code. Jump targets are
// marked with ">>".
func Disassemble(name string, code []byte, describe Describer) (string, error) {
	instrs, err := Decode(code)
	if err != nil {
		return "", err
	}
	return DisassembleInstrs(name, instrs, describe), nil
}

// DisassembleInstrs formats already decoded instructions.
func DisassembleInstrs(name string, instrs []Instr, describe Describer) string {
	var sb strings.Builder

	if name != "" {
		sb.WriteString(fmt.Sprintf("; === %s ===\n", name))
	}

	targets := make(map[int]bool)
	for _, in := range instrs {
		if in.Op.IsJump() {
			targets[in.Target()] = true
		}
	}

	for _, in := range instrs {
		marker := "  "
		if targets[in.Offset] {
			marker = ">>"
		}
		sb.WriteString(fmt.Sprintf("%s %4d %-22s", marker, in.Offset, in.Op))
		if in.Op.HasArg() {
			sb.WriteString(fmt.Sprintf(" %5d", in.Arg))
			note := ""
			switch {
			case describe != nil:
				note = describe(in)
			case in.Op == COMPARE_OP && in.Arg < len(CompareOps):
				note = CompareOps[in.Arg]
			case in.Op.IsJump():
				note = fmt.Sprintf("to %d", in.Target())
			}
			if note != "" {
				sb.WriteString(" (" + note + ")")
			}
		}
		sb.WriteString("\n")
	}

	return sb.String()
}
