// Package lattice defines the abstract values tracked by the abstract
// interpreter: a flat lattice of object kinds with an integer interval
// refinement.
package lattice

import (
	"fmt"
	"math"

	"github.com/chazu/pgjit/vm"
)

// Kind is an abstract object kind.
type Kind uint8

const (
	Undefined Kind = iota
	Any
	Integer
	Float
	Bool
	String
	Bytes
	List
	Tuple
	Dict
	Set
	FrozenSet
	Slice
	Function
	Type
	None
)

var kindNames = [...]string{
	Undefined: "Undefined",
	Any:       "Any",
	Integer:   "Integer",
	Float:     "Float",
	Bool:      "Bool",
	String:    "String",
	Bytes:     "Bytes",
	List:      "List",
	Tuple:     "Tuple",
	Dict:      "Dict",
	Set:       "Set",
	FrozenSet: "FrozenSet",
	Slice:     "Slice",
	Function:  "Function",
	Type:      "Type",
	None:      "None",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// Unboxable reports whether values of kind k can be represented as a raw
// machine word. Integers additionally need a bounded range.
func (k Kind) Unboxable() bool {
	return k == Integer || k == Float || k == Bool
}

// Numeric reports whether k takes part in numeric arithmetic.
func (k Kind) Numeric() bool {
	return k == Integer || k == Float || k == Bool
}

// Range is a closed integer interval. An unbounded range may hold any
// integer, including ones that do not fit a machine word.
type Range struct {
	Bounded bool
	Lo, Hi  int64
}

// Exact returns the range holding only v.
func Exact(v int64) Range {
	return Range{Bounded: true, Lo: v, Hi: v}
}

// Contains reports whether v lies in r.
func (r Range) Contains(v int64) bool {
	return !r.Bounded || (r.Lo <= v && v <= r.Hi)
}

// Within reports whether r is bounded and lies inside [lo, hi].
func (r Range) Within(lo, hi int64) bool {
	return r.Bounded && r.Lo >= lo && r.Hi <= hi
}

// Hull returns the smallest range containing r and o.
func (r Range) Hull(o Range) Range {
	if !r.Bounded || !o.Bounded {
		return Range{}
	}
	return Range{Bounded: true, Lo: min(r.Lo, o.Lo), Hi: max(r.Hi, o.Hi)}
}

func (r Range) String() string {
	if !r.Bounded {
		return ""
	}
	if r.Lo == r.Hi {
		return fmt.Sprintf("[%d]", r.Lo)
	}
	return fmt.Sprintf("[%d,%d]", r.Lo, r.Hi)
}

// Value is an abstract value. The zero Value is Undefined.
type Value struct {
	kind  Kind
	rng   Range
	guard bool
}

var (
	UndefinedValue = Value{}
	AnyValue       = Value{kind: Any}
)

var boolRange = Range{Bounded: true, Lo: 0, Hi: 1}

// Of returns the proven value of kind k with no further refinement.
func Of(k Kind) Value {
	v := Value{kind: k}
	if k == Bool {
		v.rng = boolRange
	}
	return v
}

// Guarded returns a value of kind k known only from runtime evidence.
func Guarded(k Kind) Value {
	if k == Any || k == Undefined {
		return Value{kind: k}
	}
	v := Of(k)
	v.guard = true
	return v
}

// IntRange returns an Integer known to lie in [lo, hi].
func IntRange(lo, hi int64) Value {
	return Value{kind: Integer, rng: Range{Bounded: true, Lo: lo, Hi: hi}}
}

// Int returns an Integer with range r.
func Int(r Range) Value {
	return Value{kind: Integer, rng: r}
}

// Kind returns the kind of v.
func (v Value) Kind() Kind { return v.kind }

// Range returns the integer range of an Integer or Bool.
func (v Value) Range() Range { return v.rng }

// Guard reports whether v's kind rests on runtime evidence.
func (v Value) Guard() bool { return v.guard }

// Defined reports whether v is not Undefined.
func (v Value) Defined() bool { return v.kind != Undefined }

// Unboxable reports whether v may be held as a raw machine word.
func (v Value) Unboxable() bool {
	if v.guard {
		return false
	}
	switch v.kind {
	case Float, Bool:
		return true
	case Integer:
		return v.rng.Bounded
	}
	return false
}

// Speculable reports whether v may be held as a raw machine word behind a
// runtime type check: any Integer, Float or Bool, guarded or unbounded.
// Compiled code must handle a value that fails the check.
func (v Value) Speculable() bool {
	return v.kind.Unboxable()
}

// Prove drops the guard, for callers that checked the kind at runtime.
func (v Value) Prove() Value {
	v.guard = false
	return v
}

func (v Value) String() string {
	s := v.kind.String()
	if v.kind == Integer {
		s += v.rng.String()
	}
	if v.guard {
		s += "?"
	}
	return s
}

// Join returns the least upper bound of a and b.
func Join(a, b Value) Value {
	switch {
	case a.kind == Undefined:
		return b
	case b.kind == Undefined:
		return a
	case a.kind != b.kind || a.kind == Any:
		return AnyValue
	}
	v := Value{kind: a.kind, guard: a.guard || b.guard}
	if a.kind == Integer || a.kind == Bool {
		v.rng = a.rng.Hull(b.rng)
	}
	return v
}

// Widen joins next into prev and drops integer bounds that moved, so that
// repeated loop visits reach a fixpoint.
func Widen(prev, next Value) Value {
	j := Join(prev, next)
	if prev.kind == Integer && j.kind == Integer && j.rng != prev.rng {
		j.rng = Range{}
	}
	return j
}

// KindOf maps a concrete type to its kind.
func KindOf(t *vm.Type) Kind {
	switch t {
	case vm.IntType:
		return Integer
	case vm.BoolType:
		return Bool
	case vm.FloatType:
		return Float
	case vm.StrType:
		return String
	case vm.BytesType:
		return Bytes
	case vm.ListType:
		return List
	case vm.TupleType:
		return Tuple
	case vm.DictType:
		return Dict
	case vm.SetType:
		return Set
	case vm.FrozenSetType:
		return FrozenSet
	case vm.SliceType:
		return Slice
	case vm.FunctionType, vm.BuiltinType:
		return Function
	case vm.TypeType:
		return Type
	case vm.NoneType:
		return None
	}
	return Any
}

// Refine narrows a with an observed concrete type. The result is guarded
// unless a already proved that kind.
func Refine(a Value, t *vm.Type) Value {
	k := KindOf(t)
	switch {
	case k == Any:
		return AnyValue
	case a.kind == k:
		return a
	case a.kind == Any || a.kind == Undefined:
		return Guarded(k)
	}
	return AnyValue
}

// Const returns the exact abstract value of a constant.
func Const(obj vm.Object) Value {
	switch o := obj.(type) {
	case *vm.Int:
		n, ok := o.Int64()
		if vm.IsBool(o) {
			return Value{kind: Bool, rng: Exact(n)}
		}
		if !ok {
			return Of(Integer)
		}
		return Int(Exact(n))
	}
	return Of(KindOf(obj.Type()))
}

// ---------------------------------------------------------------------------
// Interval arithmetic
// ---------------------------------------------------------------------------

// AddRange returns the range of a+b.
func AddRange(a, b Range) Range {
	if !a.Bounded || !b.Bounded {
		return Range{}
	}
	lo, ok1 := vm.AddInt64(a.Lo, b.Lo)
	hi, ok2 := vm.AddInt64(a.Hi, b.Hi)
	if !ok1 || !ok2 {
		return Range{}
	}
	return Range{Bounded: true, Lo: lo, Hi: hi}
}

// SubRange returns the range of a-b.
func SubRange(a, b Range) Range {
	if !a.Bounded || !b.Bounded {
		return Range{}
	}
	lo, ok1 := vm.SubInt64(a.Lo, b.Hi)
	hi, ok2 := vm.SubInt64(a.Hi, b.Lo)
	if !ok1 || !ok2 {
		return Range{}
	}
	return Range{Bounded: true, Lo: lo, Hi: hi}
}

// MulRange returns the range of a*b.
func MulRange(a, b Range) Range {
	if !a.Bounded || !b.Bounded {
		return Range{}
	}
	return corners(a, b, vm.MulInt64)
}

// NegRange returns the range of -a.
func NegRange(a Range) Range {
	if !a.Bounded || a.Lo == math.MinInt64 {
		return Range{}
	}
	return Range{Bounded: true, Lo: -a.Hi, Hi: -a.Lo}
}

// FloorDivRange returns the range of a//b. A divisor range containing zero
// yields an unbounded result.
func FloorDivRange(a, b Range) Range {
	if !a.Bounded || !b.Bounded || b.Contains(0) {
		return Range{}
	}
	return corners(a, b, vm.FloorDivInt64)
}

// ModRange returns the range of a%b, which takes the sign of b.
func ModRange(a, b Range) Range {
	if !b.Bounded || b.Contains(0) {
		return Range{}
	}
	if b.Lo > 0 {
		return Range{Bounded: true, Lo: 0, Hi: b.Hi - 1}
	}
	return Range{Bounded: true, Lo: b.Lo + 1, Hi: 0}
}

// corners evaluates op at the four corners of a and b. op must be
// monotonic in each argument over the given ranges.
func corners(a, b Range, op func(x, y int64) (int64, bool)) Range {
	r := Range{Bounded: true, Lo: math.MaxInt64, Hi: math.MinInt64}
	for _, x := range [2]int64{a.Lo, a.Hi} {
		for _, y := range [2]int64{b.Lo, b.Hi} {
			v, ok := op(x, y)
			if !ok {
				return Range{}
			}
			r.Lo = min(r.Lo, v)
			r.Hi = max(r.Hi, v)
		}
	}
	return r
}
