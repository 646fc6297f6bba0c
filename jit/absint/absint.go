// Package absint derives per-instruction abstract states for a code object
// by worklist dataflow over its bytecode, then decides which values may live
// unboxed and records that plan in a frozen instruction graph.
package absint

import (
	"errors"
	"fmt"

	"github.com/chazu/pgjit/jit/graph"
	"github.com/chazu/pgjit/jit/lattice"
	"github.com/chazu/pgjit/jit/profile"
	bc "github.com/chazu/pgjit/pkg/bytecode"
	"github.com/chazu/pgjit/vm"
)

// DefaultMaxSteps bounds the number of transfer steps of one analysis.
const DefaultMaxSteps = 100_000

var (
	ErrUnsupportedOpcode  = errors.New("unsupported opcode")
	ErrTooComplex         = errors.New("code too complex")
	ErrStackUnderflow     = errors.New("stack underflow")
	ErrTimeout            = errors.New("analysis step limit exceeded")
	ErrIncompatibleGlobal = errors.New("incompatible frame global")
)

// incompatibleGlobals inspect or replace the executing frame.
var incompatibleGlobals = map[string]bool{
	"locals": true,
	"vars":   true,
	"dir":    true,
	"eval":   true,
	"exec":   true,
}

// CompileError reports why a code object cannot be compiled. Offset is -1
// when the failure is not tied to one instruction.
type CompileError struct {
	Offset int
	Opcode bc.Opcode
	Err    error
}

func (e *CompileError) Error() string {
	if e.Offset < 0 {
		return e.Err.Error()
	}
	return fmt.Sprintf("offset %d (%s): %v", e.Offset, e.Opcode, e.Err)
}

func (e *CompileError) Unwrap() error { return e.Err }

// Options controls one analysis.
type Options struct {
	// Profile, when set, refines operands at probe points with the types
	// observed by probed runs.
	Profile *profile.Store
	// Args holds observed types of the leading arguments; nil entries are
	// unknown.
	Args []*vm.Type
	// MaxSteps bounds the dataflow; zero means DefaultMaxSteps.
	MaxSteps int
	// Probes requests probe points for instructions that stay boxed.
	Probes bool
}

// Result is the outcome of a successful analysis.
type Result struct {
	Name          string
	Instrs        []bc.Instr
	Graph         *graph.Graph
	ProbePoints   map[int]int
	UnboxedLocals map[int]lattice.Kind
	Steps         int

	pre  map[int]*State
	post map[int]*State
}

// Pre returns the state before the instruction at offset off, with profile
// refinements applied, or nil if the instruction is unreachable.
func (r *Result) Pre(off int) *State { return r.pre[off] }

// Post returns the state on the fall-through path after the instruction at
// offset off, or nil when control cannot fall through.
func (r *Result) Post(off int) *State { return r.post[off] }

// Reachable reports whether any path from the entry reaches off.
func (r *Result) Reachable(off int) bool { return r.pre[off] != nil }

// ProbeOperands returns the number of operands a probe at an instruction
// records, or 0 when the instruction is not a probe point.
func ProbeOperands(op bc.Opcode, arg int) int {
	switch {
	case op.IsBinary(), op == bc.BINARY_SUBSCR, op == bc.COMPARE_OP:
		return 2
	case op == bc.CALL_FUNCTION:
		return arg + 1
	case op == bc.STORE_SUBSCR:
		return 3
	case op == bc.UNPACK_SEQUENCE:
		return 1
	}
	return 0
}

type analyzer struct {
	code   *vm.Code
	opts   Options
	instrs []bc.Instr
	index  bc.Index
	heads  map[int]bool // positions entered by a backward jump

	pre   []*State
	steps int
}

// Interpret analyses code.
func Interpret(code *vm.Code, opts Options) (*Result, error) {
	if opts.MaxSteps <= 0 {
		opts.MaxSteps = DefaultMaxSteps
	}
	instrs, err := bc.Decode(code.Bytecode)
	if err == nil {
		err = bc.CheckJumps(instrs)
	}
	if err != nil {
		return nil, &CompileError{Offset: -1, Err: fmt.Errorf("%w: %v", ErrUnsupportedOpcode, err)}
	}
	if len(instrs) == 0 {
		return nil, &CompileError{Offset: -1, Err: fmt.Errorf("%w: empty code", ErrTooComplex)}
	}
	a := &analyzer{
		code:   code,
		opts:   opts,
		instrs: instrs,
		index:  bc.NewIndex(instrs),
		heads:  make(map[int]bool),
		pre:    make([]*State, len(instrs)),
	}
	for _, in := range instrs {
		if t := in.Target(); t >= 0 && t <= in.Offset {
			a.heads[a.index[t]] = true
		}
	}
	if err := a.fixpoint(); err != nil {
		return nil, err
	}
	return a.finish()
}

func (a *analyzer) entryState() *State {
	st := newState(a.code.NLocals())
	for i := 0; i < a.code.ArgCount && i < len(st.Locals); i++ {
		st.Locals[i] = lattice.AnyValue
		if i < len(a.opts.Args) && a.opts.Args[i] != nil {
			st.Locals[i] = lattice.Refine(lattice.AnyValue, a.opts.Args[i])
		}
		st.Defined[i] = true
	}
	return st
}

func (a *analyzer) fail(pos int, err error) error {
	in := a.instrs[pos]
	return &CompileError{Offset: in.Offset, Opcode: in.Op, Err: err}
}

// fixpoint runs the worklist until every reachable pre-state is stable.
func (a *analyzer) fixpoint() error {
	a.pre[0] = a.entryState()
	work := []int{0}
	queued := map[int]bool{0: true}
	for len(work) > 0 {
		pos := work[len(work)-1]
		work = work[:len(work)-1]
		queued[pos] = false

		a.steps++
		if a.steps > a.opts.MaxSteps {
			return a.fail(pos, ErrTimeout)
		}
		out, err := a.transfer(pos, a.pre[pos].clone())
		if err != nil {
			return a.fail(pos, err)
		}
		for _, s := range out.succs {
			if a.pre[s.pos] == nil {
				a.pre[s.pos] = s.st
			} else {
				changed, err := merge(a.pre[s.pos], s.st, a.heads[s.pos])
				if err != nil {
					return a.fail(s.pos, err)
				}
				if !changed {
					continue
				}
			}
			if !queued[s.pos] {
				queued[s.pos] = true
				work = append(work, s.pos)
			}
		}
	}
	return nil
}

// finish replays every reachable instruction on its stable pre-state to
// collect dataflow edges, then runs escape analysis.
func (a *analyzer) finish() (*Result, error) {
	res := &Result{
		Name:          a.code.Name,
		Instrs:        a.instrs,
		ProbePoints:   make(map[int]int),
		UnboxedLocals: make(map[int]lattice.Kind),
		Steps:         a.steps,
		pre:           make(map[int]*State),
		post:          make(map[int]*State),
	}
	b := graph.NewBuilder(a.instrs)
	flow := newDataflow()
	for pos, st := range a.pre {
		if st == nil {
			continue
		}
		off := a.instrs[pos].Offset
		out, err := a.transfer(pos, st.clone())
		if err != nil {
			return nil, a.fail(pos, err)
		}
		res.pre[off] = out.pre
		res.post[off] = out.fall
		for slot, e := range out.consumed {
			for _, src := range e.Sources {
				b.AddEdge(src, off, slot, e.Value.Kind())
				flow.add(src, off, slot)
			}
		}
	}

	esc := a.escape(res, flow)
	for pos, in := range a.instrs {
		b.SetEscape(in.Offset, esc[pos])
		if a.opts.Probes && a.pre[pos] != nil && !esc[pos] {
			if n := ProbeOperands(in.Op, in.Arg); n > 0 {
				res.ProbePoints[in.Offset] = n
			}
		}
	}
	res.Graph = b.Freeze()
	if err := res.Graph.Validate(); err != nil {
		return nil, &CompileError{Offset: -1, Err: fmt.Errorf("%w: %v", ErrTooComplex, err)}
	}
	return res, nil
}
