package absint

import (
	"fmt"
	"strings"

	"github.com/chazu/pgjit/jit/lattice"
)

// Entry is one abstract operand stack slot: a value and the offsets of the
// instructions that may have pushed it.
type Entry struct {
	Value   lattice.Value
	Sources []int
}

// State is the abstract machine state before or after an instruction.
type State struct {
	Stack   []Entry
	Locals  []lattice.Value
	Defined []bool
}

func newState(nlocals int) *State {
	return &State{
		Locals:  make([]lattice.Value, nlocals),
		Defined: make([]bool, nlocals),
	}
}

// Depth returns the operand stack depth.
func (s *State) Depth() int { return len(s.Stack) }

// Top returns the entry i slots below the top of the stack.
func (s *State) Top(i int) Entry { return s.Stack[len(s.Stack)-1-i] }

func (s *State) clone() *State {
	c := &State{
		Stack:   make([]Entry, len(s.Stack)),
		Locals:  append([]lattice.Value(nil), s.Locals...),
		Defined: append([]bool(nil), s.Defined...),
	}
	copy(c.Stack, s.Stack)
	return c
}

func (s *State) String() string {
	var sb strings.Builder
	sb.WriteString("[")
	for i, e := range s.Stack {
		if i > 0 {
			sb.WriteString(" ")
		}
		sb.WriteString(e.Value.String())
	}
	sb.WriteString("] {")
	first := true
	for i, v := range s.Locals {
		if !v.Defined() {
			continue
		}
		if !first {
			sb.WriteString(" ")
		}
		first = false
		mark := ""
		if !s.Defined[i] {
			mark = "?"
		}
		fmt.Fprintf(&sb, "%d:%s%s", i, v, mark)
	}
	sb.WriteString("}")
	return sb.String()
}

// merge joins src into dst and reports whether dst changed. Integer ranges
// are widened when widen is set.
func merge(dst, src *State, widen bool) (bool, error) {
	if len(dst.Stack) != len(src.Stack) {
		return false, fmt.Errorf("%w: stack depth %d meets %d", ErrTooComplex, len(dst.Stack), len(src.Stack))
	}
	join := lattice.Join
	if widen {
		join = lattice.Widen
	}
	changed := false
	for i := range dst.Stack {
		d, s := &dst.Stack[i], src.Stack[i]
		if v := join(d.Value, s.Value); v != d.Value {
			d.Value = v
			changed = true
		}
		if srcs, grew := union(d.Sources, s.Sources); grew {
			d.Sources = srcs
			changed = true
		}
	}
	for i := range dst.Locals {
		if v := join(dst.Locals[i], src.Locals[i]); v != dst.Locals[i] {
			dst.Locals[i] = v
			changed = true
		}
		if dst.Defined[i] && !src.Defined[i] {
			dst.Defined[i] = false
			changed = true
		}
	}
	return changed, nil
}

// union merges two sorted offset sets.
func union(a, b []int) ([]int, bool) {
	out := make([]int, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) || j < len(b) {
		switch {
		case j == len(b) || (i < len(a) && a[i] < b[j]):
			out = append(out, a[i])
			i++
		case i == len(a) || b[j] < a[i]:
			out = append(out, b[j])
			j++
		default:
			out = append(out, a[i])
			i++
			j++
		}
	}
	return out, len(out) != len(a)
}
