package emit

import (
	"math"

	"github.com/chazu/pgjit/jit/lattice"
	"github.com/chazu/pgjit/jit/profile"
	"github.com/chazu/pgjit/vm"
)

// ---------------------------------------------------------------------------
// Value slots
// ---------------------------------------------------------------------------

// shadow is the boxed twin of a raw value. Every copy of a raw value made by
// DUP_* or by loading an unboxed local shares one shadow, so boxing any copy
// yields the same object. refs counts the live copies; the object reference
// held in obj is dropped when the last copy goes.
type shadow struct {
	obj  vm.Object
	refs int
}

// slot is one entry of the compiled value stack or of the raw locals. kind is
// lattice.Undefined for a boxed slot, which owns a reference to obj.
// Otherwise bits holds the raw word: an int64 for Integer and Bool, IEEE
// bits for Float.
type slot struct {
	obj  vm.Object
	bits uint64
	kind lattice.Kind
	sh   *shadow
}

func boxed(o vm.Object) slot { return slot{obj: o} }

func rawInt(v int64) slot {
	return slot{bits: uint64(v), kind: lattice.Integer, sh: &shadow{refs: 1}}
}

func rawFloat(v float64) slot {
	return slot{bits: math.Float64bits(v), kind: lattice.Float, sh: &shadow{refs: 1}}
}

func rawBool(v bool) slot {
	s := slot{kind: lattice.Bool}
	if v {
		s.bits = 1
	}
	return s
}

func (s slot) raw() bool { return s.kind != lattice.Undefined }

func (s slot) int64() int64 { return int64(s.bits) }

// float64 reads the word as a float, converting integers and bools.
func (s slot) float64() float64 {
	if s.kind == lattice.Float {
		return math.Float64frombits(s.bits)
	}
	return float64(int64(s.bits))
}

func (s slot) truth() bool {
	switch s.kind {
	case lattice.Undefined:
		return vm.Truth(s.obj)
	case lattice.Float:
		return s.float64() != 0
	}
	return s.bits != 0
}

// dup returns a second copy of s.
func (s slot) dup() slot {
	if s.raw() {
		if s.sh != nil {
			s.sh.refs++
		}
		return s
	}
	vm.XIncRef(s.obj)
	return s
}

// release drops this copy of s.
func (s slot) release() {
	if !s.raw() {
		vm.XDecRef(s.obj)
		return
	}
	if sh := s.sh; sh != nil {
		sh.refs--
		if sh.refs == 0 && sh.obj != nil {
			vm.DecRef(sh.obj)
			sh.obj = nil
		}
	}
}

// ---------------------------------------------------------------------------
// Machine state of one invocation
// ---------------------------------------------------------------------------

type machine struct {
	ts    *vm.Thread
	f     *vm.Frame
	prof  *profile.Store
	stack []slot
	raw   []slot // unboxed locals, indexed like f.Locals
	ret   vm.Object
	err   error
}

func (m *machine) push(s slot) {
	m.stack = append(m.stack, s)
}

func (m *machine) pop() slot {
	n := len(m.stack) - 1
	s := m.stack[n]
	m.stack[n] = slot{}
	m.stack = m.stack[:n]
	return s
}

func (m *machine) top(i int) *slot {
	return &m.stack[len(m.stack)-1-i]
}

// box converts s to an owned object reference, consuming s.
func (m *machine) box(s slot) vm.Object {
	if !s.raw() {
		return s.obj
	}
	if s.kind == lattice.Bool {
		return vm.NewBool(s.bits != 0)
	}
	sh := s.sh
	if sh.obj == nil {
		if s.kind == lattice.Float {
			sh.obj = vm.NewFloat(m.ts, s.float64())
		} else {
			sh.obj = vm.NewInt(m.ts, s.int64())
		}
	}
	o := sh.obj
	vm.IncRef(o)
	s.release()
	return o
}

// speculate converts s to its raw form when its object is a machine integer,
// a bool or a float, consuming s. Any other slot comes back unchanged. The
// object reference moves into the shadow so that boxing the value again
// returns the same object.
func speculate(s slot) slot {
	if s.raw() {
		return s
	}
	switch o := s.obj.(type) {
	case *vm.Int:
		v, ok := o.Int64()
		if !ok {
			break
		}
		if vm.IsBool(o) {
			vm.DecRef(o)
			return rawBool(v != 0)
		}
		return slot{bits: uint64(v), kind: lattice.Integer, sh: &shadow{obj: o, refs: 1}}
	case *vm.Float:
		return slot{bits: math.Float64bits(o.Value()), kind: lattice.Float, sh: &shadow{obj: o, refs: 1}}
	}
	return s
}

// unbox converts s to its raw form, consuming s. Values proven unboxable
// always convert; anything else is an internal error.
func (m *machine) unbox(s slot) (slot, error) {
	if r := speculate(s); r.raw() {
		return r, nil
	}
	err := m.ts.Raise(vm.SystemErrorType, "cannot unbox %s in %s", vm.TypeName(s.obj), m.f.Code.Name)
	vm.XDecRef(s.obj)
	return slot{}, err
}

func (m *machine) popObject() vm.Object {
	return m.box(m.pop())
}

// popObjects removes the top n values as objects in push order.
func (m *machine) popObjects(n int) []vm.Object {
	base := len(m.stack) - n
	out := make([]vm.Object, n)
	for i := range out {
		out[i] = m.box(m.stack[base+i])
		m.stack[base+i] = slot{}
	}
	m.stack = m.stack[:base]
	return out
}

func (m *machine) popRaw() (slot, error) {
	return m.unbox(m.pop())
}

// boxTop boxes the top n values in place.
func (m *machine) boxTop(n int) {
	for i := 0; i < n; i++ {
		if s := m.top(i); s.raw() {
			*s = boxed(m.box(*s))
		}
	}
}

// probe records the boxed operands of the instruction at off. Slot 0 is the
// top of the stack.
func (m *machine) probe(off, n int) {
	m.boxTop(n)
	if m.prof == nil {
		return
	}
	for i := 0; i < n; i++ {
		m.prof.Record(off, i, m.top(i).obj)
	}
}

func (m *machine) fail(err error) int {
	m.err = err
	return done
}

// unwind releases the value stack and the raw locals.
func (m *machine) unwind() {
	for len(m.stack) > 0 {
		m.pop().release()
	}
	for i := range m.raw {
		m.raw[i].release()
		m.raw[i] = slot{}
	}
}
