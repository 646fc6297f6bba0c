// Package emit lowers an analysed code object to an executable program.
//
// Each instruction becomes one step closure over a value stack of slots. A
// slot holds either an object reference or a raw machine word; escaped
// instructions work on raw words and every other instruction on objects.
// Conversions happen where a value crosses between the two, so the program
// follows the boxing plan recorded in the instruction graph.
package emit

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/chazu/pgjit/jit/absint"
	"github.com/chazu/pgjit/jit/graph"
	"github.com/chazu/pgjit/jit/profile"
	bc "github.com/chazu/pgjit/pkg/bytecode"
	"github.com/chazu/pgjit/vm"
)

// wordSize is the size the native-size estimate charges per program word.
const wordSize = 8

// ErrCodeTooLarge is returned for bytecode over the configured size limit.
var ErrCodeTooLarge = errors.New("code object too large")

// Options controls one compilation.
type Options struct {
	// Probes inserts profile writes at the probe points of the analysis.
	Probes bool
	// Tracing delivers line events to the thread's tracer.
	Tracing bool
	// SizeLimit rejects bytecode longer than this many bytes; zero means no
	// limit.
	SizeLimit int
}

// Entry runs compiled code on frame f. prof receives probe observations
// and may be nil.
type Entry func(ts *vm.Thread, f *vm.Frame, prof *profile.Store) (vm.Object, error)

// Artifact is a compiled program.
type Artifact struct {
	Entry      Entry
	EntryPoint uintptr
	// NativeSize estimates the size of the program in bytes.
	NativeSize int
	// Words counts the program's operations, conversions and probes
	// included.
	Words int
	// IL is the versioned intermediate form, see DecodeIL.
	IL []byte
}

type builder struct {
	code  *vm.Code
	res   *absint.Result
	opts  Options
	index bc.Index
}

type program struct {
	code    *vm.Code
	steps   []step
	lines   []int
	tracing bool
}

// CheckSize returns ErrCodeTooLarge when code's bytecode is longer than
// limit bytes. A zero limit accepts everything.
func CheckSize(code *vm.Code, limit int) error {
	if limit > 0 && len(code.Bytecode) > limit {
		return fmt.Errorf("%w: %s has %d bytes, limit %d", ErrCodeTooLarge, code.Name, len(code.Bytecode), limit)
	}
	return nil
}

// Compile lowers code following the plan in res.
func Compile(code *vm.Code, res *absint.Result, opts Options) (*Artifact, error) {
	if err := CheckSize(code, opts.SizeLimit); err != nil {
		return nil, err
	}
	b := &builder{code: code, res: res, opts: opts, index: bc.NewIndex(res.Instrs)}
	p := &program{
		code:    code,
		steps:   make([]step, 0, len(res.Instrs)+1),
		lines:   make([]int, 0, len(res.Instrs)+1),
		tracing: opts.Tracing,
	}
	il := &IL{
		Name:      code.Name,
		ArgCount:  code.ArgCount,
		StackSize: code.StackSize,
		Probes:    opts.Probes,
	}
	for l, k := range res.UnboxedLocals {
		il.Locals = append(il.Locals, ILLocal{Index: l, Name: code.VarNames[l], Kind: k.String()})
	}
	sortLocals(il.Locals)

	words := 0
	for pos, in := range res.Instrs {
		var st step
		if res.Reachable(in.Offset) {
			var err error
			if st, err = b.lower(pos, in); err != nil {
				return nil, err
			}
		} else {
			st = unreachable(in.Offset)
		}
		probe := res.ProbePoints[in.Offset]
		if opts.Probes && probe > 0 {
			st = withProbe(in.Offset, probe, st)
		}
		ili := b.describe(in, probe)
		words += ili.Words
		il.Instrs = append(il.Instrs, ili)
		p.steps = append(p.steps, st)
		p.lines = append(p.lines, code.LineFor(in.Offset))
	}
	p.steps = append(p.steps, fellOff)
	p.lines = append(p.lines, p.lines[len(p.lines)-1])
	il.Words = words

	blob, err := encodeIL(il)
	if err != nil {
		return nil, err
	}
	return &Artifact{
		Entry:      p.run,
		EntryPoint: reflect.ValueOf(p.steps).Pointer(),
		NativeSize: wordSize * words,
		Words:      words,
		IL:         blob,
	}, nil
}

// describe returns the IL record of one instruction and charges its words:
// one for the operation, one per static conversion and the probe writes.
func (b *builder) describe(in bc.Instr, probe int) ILInstr {
	ili := ILInstr{
		Offset:    in.Offset,
		Op:        in.Op.String(),
		Arg:       in.Arg,
		Line:      b.code.LineFor(in.Offset),
		Escape:    b.res.Graph.Escaped(in.Offset),
		Reachable: b.res.Reachable(in.Offset),
		Probe:     probe,
		Words:     1,
	}
	if ili.Reachable && !ili.Escape {
		ili.Guard = b.guard(in)
	}
	if ili.Guard != "" {
		ili.Words++
	}
	if b.opts.Probes {
		ili.Words += probe
	}
	for _, e := range b.res.Graph.EdgesIn(in.Offset) {
		ili.In = append(ili.In, ILEdge{From: e.From, Slot: e.Slot, Kind: e.Kind.String(), Transition: e.Transition.String()})
		if e.Transition == graph.Box || e.Transition == graph.Unbox {
			ili.Words++
		}
	}
	return ili
}

func withProbe(off, n int, st step) step {
	return func(m *machine) int {
		m.probe(off, n)
		return st(m)
	}
}

func unreachable(off int) step {
	return func(m *machine) int {
		return m.fail(m.ts.Raise(vm.SystemErrorType, "reached unreachable instruction at offset %d", off))
	}
}

func fellOff(m *machine) int {
	return m.fail(m.ts.Raise(vm.SystemErrorType, "%s fell off the end of its bytecode", m.f.Code.Name))
}

// run executes the program on f. The value stack is accounted to the
// memory domain like the interpreter's.
func (p *program) run(ts *vm.Thread, f *vm.Frame, prof *profile.Store) (vm.Object, error) {
	stackBytes := 8 * (p.code.StackSize + 1)
	ts.Runtime().Allocator(vm.DomainMem).Malloc(ts, stackBytes)
	defer func() { ts.Runtime().Allocator(vm.DomainMem).Free(stackBytes) }()

	m := &machine{
		ts:    ts,
		f:     f,
		prof:  prof,
		stack: make([]slot, 0, p.code.StackSize),
		raw:   make([]slot, p.code.NLocals()),
	}
	pc := 0
	backward := true
	for pc >= 0 {
		if p.tracing && ts.Tracer != nil {
			if line := p.lines[pc]; line != f.Line || backward {
				f.Line = line
				ts.Tracer(f, line)
			}
		}
		next := p.steps[pc](m)
		backward = next >= 0 && next <= pc
		pc = next
	}
	m.unwind()
	if m.err != nil {
		return nil, m.err
	}
	return m.ret, nil
}
