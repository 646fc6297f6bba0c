package bytecode

import (
	"strings"
	"testing"
)

func TestAssemblerLabels(t *testing.T) {
	a := NewAssembler()
	done := a.NewLabel()
	a.SetLine(1)
	a.Emit(LOAD_FAST, 0)
	a.EmitJump(POP_JUMP_IF_FALSE, done)
	a.SetLine(2)
	a.Emit(LOAD_CONST, 0)
	a.Emit(RETURN_VALUE, 0)
	a.Bind(done)
	a.SetLine(3)
	a.Emit(LOAD_CONST, 1)
	a.Emit(RETURN_VALUE, 0)

	code, lines, err := a.Assemble()
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	instrs, err := Decode(code)
	if err != nil {
		t.Fatal(err)
	}
	if got := instrs[1].Target(); got != 8 {
		t.Errorf("jump target = %d, want 8", got)
	}
	if len(lines) != 3 {
		t.Fatalf("line table = %v", lines)
	}
	if got := LineFor(lines, 6); got != 2 {
		t.Errorf("LineFor(6) = %d, want 2", got)
	}
	if got := LineFor(lines, 10); got != 3 {
		t.Errorf("LineFor(10) = %d, want 3", got)
	}
}

func TestAssemblerWideArgs(t *testing.T) {
	a := NewAssembler()
	a.Emit(LOAD_CONST, 300)
	a.Emit(RETURN_VALUE, 0)
	code, _, err := a.Assemble()
	if err != nil {
		t.Fatal(err)
	}
	if len(code) != 6 || Opcode(code[0]) != EXTENDED_ARG {
		t.Fatalf("code = %v", code)
	}
	instrs, _ := Decode(code)
	if instrs[0].Arg != 300 {
		t.Errorf("arg = %d, want 300", instrs[0].Arg)
	}
}

func TestAssemblerGrowingJump(t *testing.T) {
	// A forward jump over more than 255 bytes needs a prefix, which moves
	// every later offset.
	a := NewAssembler()
	end := a.NewLabel()
	a.EmitJump(JUMP_ABSOLUTE, end)
	for i := 0; i < 200; i++ {
		a.Emit(NOP, 0)
	}
	a.Bind(end)
	a.Emit(LOAD_CONST, 0)
	a.Emit(RETURN_VALUE, 0)

	code, _, err := a.Assemble()
	if err != nil {
		t.Fatal(err)
	}
	instrs, err := Decode(code)
	if err != nil {
		t.Fatal(err)
	}
	if err := CheckJumps(instrs); err != nil {
		t.Fatalf("CheckJumps: %v", err)
	}
	target := instrs[0].Target()
	if instrs[len(instrs)-2].Offset != target {
		t.Errorf("jump lands on %d, LOAD_CONST is at %d", target, instrs[len(instrs)-2].Offset)
	}
}

func TestAssemblerUnboundLabel(t *testing.T) {
	a := NewAssembler()
	a.EmitJump(JUMP_ABSOLUTE, a.NewLabel())
	if _, _, err := a.Assemble(); err == nil {
		t.Error("expected error for unbound label")
	}
}

func TestDisassemble(t *testing.T) {
	a := NewAssembler()
	top := a.NewLabel()
	a.Bind(top)
	a.Emit(LOAD_FAST, 0)
	a.Emit(LOAD_CONST, 0)
	a.Emit(COMPARE_OP, CmpLT)
	a.EmitJump(POP_JUMP_IF_TRUE, top)
	a.Emit(LOAD_CONST, 1)
	a.Emit(RETURN_VALUE, 0)
	code, _, _ := a.Assemble()

	out, err := Disassemble("f", code, nil)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"; === f ===", ">>    0 LOAD_FAST", "COMPARE_OP", "(<)", "(to 0)", "RETURN_VALUE"} {
		if !strings.Contains(out, want) {
			t.Errorf("listing missing %q:\n%s", want, out)
		}
	}
}
