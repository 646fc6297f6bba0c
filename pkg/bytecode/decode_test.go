package bytecode

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDecodeSimple(t *testing.T) {
	code := []byte{
		byte(LOAD_CONST), 1,
		byte(LOAD_CONST), 2,
		byte(BINARY_ADD), 0,
		byte(RETURN_VALUE), 0,
	}
	got, err := Decode(code)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	want := []Instr{
		{Offset: 0, Op: LOAD_CONST, Arg: 1, Size: 2},
		{Offset: 2, Op: LOAD_CONST, Arg: 2, Size: 2},
		{Offset: 4, Op: BINARY_ADD, Arg: 0, Size: 2},
		{Offset: 6, Op: RETURN_VALUE, Arg: 0, Size: 2},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Decode mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeExtendedArg(t *testing.T) {
	code := []byte{
		byte(NOP), 0,
		byte(EXTENDED_ARG), 0x01,
		byte(EXTENDED_ARG), 0x02,
		byte(LOAD_CONST), 0x03,
		byte(RETURN_VALUE), 0,
	}
	got, err := Decode(code)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d instructions, want 3", len(got))
	}
	in := got[1]
	if in.Offset != 2 || in.Arg != 0x010203 || in.Size != 6 || in.OpOffset() != 6 {
		t.Errorf("extended instruction = %+v", in)
	}
	if got[2].Offset != 8 {
		t.Errorf("RETURN_VALUE offset = %d, want 8", got[2].Offset)
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		code []byte
		want error
	}{
		{[]byte{byte(NOP)}, ErrOddLength},
		{[]byte{250, 0}, ErrUnknownOpcode},
		{[]byte{byte(NOP), 0, byte(EXTENDED_ARG), 1}, ErrDanglingExtendedArg},
	}
	for _, tt := range tests {
		_, err := Decode(tt.code)
		if !errors.Is(err, tt.want) {
			t.Errorf("Decode(%v) error = %v, want %v", tt.code, err, tt.want)
		}
	}
}

func TestJumpTargets(t *testing.T) {
	code := []byte{
		byte(LOAD_FAST), 0,
		byte(POP_JUMP_IF_FALSE), 8,
		byte(JUMP_FORWARD), 2,
		byte(NOP), 0,
		byte(RETURN_VALUE), 0,
	}
	instrs, err := Decode(code)
	if err != nil {
		t.Fatal(err)
	}
	if got := instrs[1].Target(); got != 8 {
		t.Errorf("POP_JUMP_IF_FALSE target = %d", got)
	}
	if got := instrs[2].Target(); got != 8 {
		t.Errorf("JUMP_FORWARD target = %d", got)
	}
	if got := instrs[0].Target(); got != -1 {
		t.Errorf("LOAD_FAST target = %d", got)
	}
	if err := CheckJumps(instrs); err != nil {
		t.Errorf("CheckJumps: %v", err)
	}

	bad := []Instr{{Offset: 0, Op: JUMP_ABSOLUTE, Arg: 3, Size: 2}}
	if err := CheckJumps(bad); !errors.Is(err, ErrBadJumpTarget) {
		t.Errorf("CheckJumps(bad) = %v", err)
	}
}

func TestMaxStackDepth(t *testing.T) {
	a := NewAssembler()
	a.Emit(LOAD_CONST, 0)
	a.Emit(LOAD_CONST, 1)
	a.Emit(LOAD_CONST, 2)
	a.Emit(BUILD_TUPLE, 3)
	a.Emit(RETURN_VALUE, 0)
	code, _, err := a.Assemble()
	if err != nil {
		t.Fatal(err)
	}
	instrs, _ := Decode(code)
	depth, err := MaxStackDepth(instrs)
	if err != nil {
		t.Fatal(err)
	}
	if depth != 3 {
		t.Errorf("MaxStackDepth = %d, want 3", depth)
	}

	underflows := map[string][]Instr{
		"final pop":    {{Offset: 0, Op: POP_TOP, Size: 2}},
		"empty return": {{Offset: 0, Op: RETURN_VALUE, Size: 2}},
		"pop before return": {
			{Offset: 0, Op: LOAD_CONST, Size: 2},
			{Offset: 2, Op: POP_TOP, Size: 2},
			{Offset: 4, Op: RETURN_VALUE, Size: 2},
		},
	}
	for name, instrs := range underflows {
		if _, err := MaxStackDepth(instrs); err == nil || !strings.Contains(err.Error(), "underflow") {
			t.Errorf("%s: expected underflow, got %v", name, err)
		}
	}
}
