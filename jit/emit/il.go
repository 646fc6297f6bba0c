package emit

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/fxamacker/cbor/v2"
)

// ILVersion is the first byte of every IL blob.
const ILVersion = 3

// ErrILVersion is returned when decoding an IL blob of another version.
var ErrILVersion = errors.New("unsupported IL version")

// IL describes a compiled program: the instruction plan, the boxing
// conversions on its edges and its probe points.
type IL struct {
	Name      string    `cbor:"1,keyasint"`
	ArgCount  int       `cbor:"2,keyasint"`
	StackSize int       `cbor:"3,keyasint"`
	Probes    bool      `cbor:"4,keyasint"`
	Words     int       `cbor:"5,keyasint"`
	Locals    []ILLocal `cbor:"6,keyasint,omitempty"`
	Instrs    []ILInstr `cbor:"7,keyasint"`
}

// ILLocal is a local variable held as a raw word.
type ILLocal struct {
	Index int    `cbor:"1,keyasint"`
	Name  string `cbor:"2,keyasint"`
	Kind  string `cbor:"3,keyasint"`
}

// ILInstr is one lowered instruction. Probe is the operand count of its
// probe point, recorded even when probes are not executed.
type ILInstr struct {
	Offset    int      `cbor:"1,keyasint"`
	Op        string   `cbor:"2,keyasint"`
	Arg       int      `cbor:"3,keyasint"`
	Line      int      `cbor:"4,keyasint"`
	Escape    bool     `cbor:"5,keyasint"`
	Reachable bool     `cbor:"6,keyasint"`
	Probe     int      `cbor:"7,keyasint,omitempty"`
	Guard     string   `cbor:"8,keyasint,omitempty"`
	Words     int      `cbor:"9,keyasint"`
	In        []ILEdge `cbor:"10,keyasint,omitempty"`
}

// ILEdge is an operand of an instruction and how it is converted.
type ILEdge struct {
	From       int    `cbor:"1,keyasint"`
	Slot       int    `cbor:"2,keyasint"`
	Kind       string `cbor:"3,keyasint"`
	Transition string `cbor:"4,keyasint"`
}

var ilEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("emit: failed to create CBOR enc mode: %v", err))
	}
	ilEncMode = em
}

func encodeIL(il *IL) ([]byte, error) {
	body, err := ilEncMode.Marshal(il)
	if err != nil {
		return nil, fmt.Errorf("emit: marshal IL: %w", err)
	}
	return append([]byte{ILVersion}, body...), nil
}

// DecodeIL parses an IL blob produced by Compile.
func DecodeIL(blob []byte) (*IL, error) {
	if len(blob) == 0 || blob[0] != ILVersion {
		return nil, ErrILVersion
	}
	var il IL
	if err := cbor.Unmarshal(blob[1:], &il); err != nil {
		return nil, fmt.Errorf("emit: unmarshal IL: %w", err)
	}
	return &il, nil
}

func sortLocals(ls []ILLocal) {
	sort.Slice(ls, func(i, j int) bool { return ls[i].Index < ls[j].Index })
}

// String renders the IL as a listing.
func (il *IL) String() string {
	var sb strings.Builder
	probes := "off"
	if il.Probes {
		probes = "on"
	}
	fmt.Fprintf(&sb, "IL v%d %s: args %d, stack %d, %d words, probes %s\n",
		ILVersion, il.Name, il.ArgCount, il.StackSize, il.Words, probes)
	for _, l := range il.Locals {
		fmt.Fprintf(&sb, "  raw local %d %s %s\n", l.Index, l.Name, l.Kind)
	}
	for _, in := range il.Instrs {
		fmt.Fprintf(&sb, "%6d %-22s %4d  line %d", in.Offset, in.Op, in.Arg, in.Line)
		switch {
		case !in.Reachable:
			sb.WriteString("  unreachable")
		case in.Escape:
			sb.WriteString("  escape")
		}
		if in.Guard != "" {
			fmt.Fprintf(&sb, "  guard %s", in.Guard)
		}
		if in.Probe > 0 {
			fmt.Fprintf(&sb, "  probe %d", in.Probe)
		}
		sb.WriteByte('\n')
		for _, e := range in.In {
			if e.Transition == "NoEscape" {
				continue
			}
			fmt.Fprintf(&sb, "         slot %d from %d: %s %s\n", e.Slot, e.From, e.Kind, e.Transition)
		}
	}
	return sb.String()
}
