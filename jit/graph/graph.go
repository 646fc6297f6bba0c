// Package graph holds the instruction graph produced by the abstract
// interpreter: bytecode instructions as nodes and producer to consumer
// dataflow dependencies as edges, each tagged with the boxing transition the
// emitter must perform along it.
//
// A Graph is built with a Builder and frozen before it is handed to the
// emitter. A frozen graph is read-only; the Builder that produced it panics on
// any further mutation.
package graph

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/chazu/pgjit/jit/lattice"
	bc "github.com/chazu/pgjit/pkg/bytecode"
)

// Transition describes how a value crosses an edge.
type Transition uint8

const (
	// NoEscape: both endpoints work on boxed objects.
	NoEscape Transition = iota
	// Unboxed: the raw word is passed through.
	Unboxed
	// Box: an unboxed producer feeds a boxed consumer.
	Box
	// Unbox: a boxed producer feeds an unboxed consumer.
	Unbox
)

func (t Transition) String() string {
	switch t {
	case NoEscape:
		return "NoEscape"
	case Unboxed:
		return "Unboxed"
	case Box:
		return "Box"
	case Unbox:
		return "Unbox"
	}
	return fmt.Sprintf("Transition(%d)", t)
}

// Instruction is one node of the graph. Index is the byte offset of the
// instruction. Escape is set when the instruction operates on or produces
// unboxed representations.
type Instruction struct {
	Index  int
	Opcode bc.Opcode
	Oparg  int
	Escape bool
}

func (in Instruction) String() string {
	s := fmt.Sprintf("%d %s", in.Index, in.Opcode)
	if in.Opcode.HasArg() {
		s += fmt.Sprintf(" %d", in.Oparg)
	}
	if in.Escape {
		s += " [escape]"
	}
	return s
}

// Edge is a dataflow dependency from the instruction at offset From to the
// one at offset To. Slot 0 is the first operand To pops. Kind is the abstract
// kind of the value on the edge.
type Edge struct {
	From, To   int
	Slot       int
	Kind       lattice.Kind
	Transition Transition
}

func (e Edge) String() string {
	return fmt.Sprintf("%d -> %d slot %d %s %s", e.From, e.To, e.Slot, e.Kind, e.Transition)
}

// ErrUnsound is returned by Validate for an edge whose transition disagrees
// with the escape flags of its endpoints.
var ErrUnsound = errors.New("unsound edge")

// Graph is a frozen instruction graph.
type Graph struct {
	instrs []Instruction
	pos    map[int]int
	in     map[int][]Edge
	out    map[int][]Edge
	edges  []Edge
}

// Size returns the number of instructions.
func (g *Graph) Size() int { return len(g.instrs) }

// At returns the i-th instruction in bytecode order.
func (g *Graph) At(i int) Instruction { return g.instrs[i] }

// Index returns the position of the instruction at byte offset off.
func (g *Graph) Index(off int) (int, bool) {
	i, ok := g.pos[off]
	return i, ok
}

// Instr returns the instruction at byte offset off.
func (g *Graph) Instr(off int) (Instruction, bool) {
	i, ok := g.pos[off]
	if !ok {
		return Instruction{}, false
	}
	return g.instrs[i], true
}

// Escaped reports the escape flag of the instruction at offset off.
func (g *Graph) Escaped(off int) bool {
	in, ok := g.Instr(off)
	return ok && in.Escape
}

// EdgesIn returns the edges consumed by the instruction at offset off,
// ordered by slot and then by producer.
func (g *Graph) EdgesIn(off int) []Edge { return g.in[off] }

// EdgesOut returns the edges produced by the instruction at offset off,
// ordered by consumer and then by slot.
func (g *Graph) EdgesOut(off int) []Edge { return g.out[off] }

// Edges returns every edge ordered by consumer, slot and producer.
func (g *Graph) Edges() []Edge { return g.edges }

// SlotTransition returns the transition a consumer applies to operand slot.
// Producers that disagree never share a slot after escape analysis, so the
// first in-edge decides. A slot with no recorded producer is NoEscape.
func (g *Graph) SlotTransition(off, slot int) Transition {
	for _, e := range g.in[off] {
		if e.Slot == slot {
			return e.Transition
		}
	}
	return NoEscape
}

// Validate checks every edge against the escape flags of its endpoints.
func (g *Graph) Validate() error {
	var errs []error
	for _, e := range g.edges {
		from, ok1 := g.Instr(e.From)
		to, ok2 := g.Instr(e.To)
		if !ok1 || !ok2 {
			errs = append(errs, fmt.Errorf("%w: %s: dangling endpoint", ErrUnsound, e))
			continue
		}
		want := transition(from.Escape, to.Escape)
		switch {
		case e.Transition != want:
			errs = append(errs, fmt.Errorf("%w: %s: endpoints want %s", ErrUnsound, e, want))
		case e.Transition == Unboxed && !e.Kind.Unboxable():
			errs = append(errs, fmt.Errorf("%w: %s: kind is not unboxable", ErrUnsound, e))
		}
	}
	return errors.Join(errs...)
}

func transition(from, to bool) Transition {
	switch {
	case from && to:
		return Unboxed
	case from:
		return Box
	case to:
		return Unbox
	}
	return NoEscape
}

// Dot renders the graph in Graphviz dot syntax. Escaped instructions are
// filled; edges are labelled with slot and transition.
func (g *Graph) Dot(name string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "digraph %q {\n", name)
	sb.WriteString("  node [shape=box fontname=monospace];\n")
	for _, in := range g.instrs {
		label := fmt.Sprintf("%d %s", in.Index, in.Opcode)
		if in.Opcode.HasArg() {
			label += fmt.Sprintf(" %d", in.Oparg)
		}
		style := ""
		if in.Escape {
			style = " style=filled fillcolor=lightblue"
		}
		fmt.Fprintf(&sb, "  n%d [label=%q%s];\n", in.Index, label, style)
	}
	for _, e := range g.edges {
		fmt.Fprintf(&sb, "  n%d -> n%d [label=\"%d %s\"];\n", e.From, e.To, e.Slot, e.Transition)
	}
	sb.WriteString("}\n")
	return sb.String()
}

// ---------------------------------------------------------------------------
// Builder
// ---------------------------------------------------------------------------

type edgeKey struct{ from, to, slot int }

// Builder accumulates instructions, edges and escape flags.
type Builder struct {
	instrs []Instruction
	pos    map[int]int
	edges  map[edgeKey]lattice.Kind
	frozen bool
}

// NewBuilder returns a builder over the decoded instructions. Every escape
// flag starts false.
func NewBuilder(instrs []bc.Instr) *Builder {
	b := &Builder{
		instrs: make([]Instruction, len(instrs)),
		pos:    make(map[int]int, len(instrs)),
		edges:  make(map[edgeKey]lattice.Kind),
	}
	for i, in := range instrs {
		b.instrs[i] = Instruction{Index: in.Offset, Opcode: in.Op, Oparg: in.Arg}
		b.pos[in.Offset] = i
	}
	return b
}

func (b *Builder) mutate() {
	if b.frozen {
		panic("graph: mutation after Freeze")
	}
}

// AddEdge records that the value pushed by the instruction at from reaches
// operand slot of the instruction at to. Adding an existing edge again joins
// the kinds.
func (b *Builder) AddEdge(from, to, slot int, kind lattice.Kind) {
	b.mutate()
	k := edgeKey{from, to, slot}
	if prev, ok := b.edges[k]; ok && prev != kind {
		kind = lattice.Any
	}
	b.edges[k] = kind
}

// SetEscape sets the escape flag of the instruction at offset off.
func (b *Builder) SetEscape(off int, escape bool) {
	b.mutate()
	if i, ok := b.pos[off]; ok {
		b.instrs[i].Escape = escape
	}
}

// Escape returns the current escape flag of the instruction at offset off.
func (b *Builder) Escape(off int) bool {
	i, ok := b.pos[off]
	return ok && b.instrs[i].Escape
}

// Freeze computes every edge transition from the final escape flags and
// returns the read-only graph.
func (b *Builder) Freeze() *Graph {
	b.mutate()
	b.frozen = true

	g := &Graph{
		instrs: b.instrs,
		pos:    b.pos,
		in:     make(map[int][]Edge),
		out:    make(map[int][]Edge),
		edges:  make([]Edge, 0, len(b.edges)),
	}
	for k, kind := range b.edges {
		e := Edge{From: k.from, To: k.to, Slot: k.slot, Kind: kind}
		e.Transition = transition(b.Escape(k.from), b.Escape(k.to))
		g.edges = append(g.edges, e)
	}
	sort.Slice(g.edges, func(i, j int) bool {
		a, c := g.edges[i], g.edges[j]
		if a.To != c.To {
			return a.To < c.To
		}
		if a.Slot != c.Slot {
			return a.Slot < c.Slot
		}
		return a.From < c.From
	})
	for _, e := range g.edges {
		g.in[e.To] = append(g.in[e.To], e)
		g.out[e.From] = append(g.out[e.From], e)
	}
	return g
}
