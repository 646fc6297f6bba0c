package lattice

import (
	"math"
	"math/big"
	"testing"

	"github.com/chazu/pgjit/vm"
)

var samples = []Value{
	UndefinedValue,
	AnyValue,
	IntRange(0, 10),
	IntRange(-5, 3),
	Of(Integer),
	Of(Float),
	Of(Bool),
	Guarded(Float),
	Guarded(Integer),
	Of(String),
	Of(List),
	Of(None),
}

func TestJoinLaws(t *testing.T) {
	for _, a := range samples {
		if got := Join(a, UndefinedValue); got != a {
			t.Errorf("Join(%v, Undefined) = %v", a, got)
		}
		if got := Join(a, a); got != a {
			t.Errorf("Join(%v, %v) = %v, not idempotent", a, a, got)
		}
		for _, b := range samples {
			ab, ba := Join(a, b), Join(b, a)
			if ab != ba {
				t.Errorf("Join(%v, %v) = %v but Join(%v, %v) = %v", a, b, ab, b, a, ba)
			}
			if a.Defined() && b.Defined() && a.Kind() != b.Kind() && ab != AnyValue {
				t.Errorf("Join(%v, %v) = %v, want Any", a, b, ab)
			}
			for _, c := range samples {
				if l, r := Join(Join(a, b), c), Join(a, Join(b, c)); l != r {
					t.Errorf("Join not associative on %v, %v, %v: %v vs %v", a, b, c, l, r)
				}
			}
		}
	}
}

func TestJoinRanges(t *testing.T) {
	tests := []struct {
		a, b Value
		want Value
	}{
		{IntRange(0, 10), IntRange(-5, 3), IntRange(-5, 10)},
		{IntRange(0, 10), Of(Integer), Of(Integer)},
		{Const(vm.True), Const(vm.False), Of(Bool)},
		{Guarded(Float), Of(Float), Guarded(Float)},
	}
	for _, tc := range tests {
		if got := Join(tc.a, tc.b); got != tc.want {
			t.Errorf("Join(%v, %v) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestWiden(t *testing.T) {
	first := IntRange(0, 0)
	if got := Widen(UndefinedValue, first); got != first {
		t.Errorf("Widen(Undefined, %v) = %v", first, got)
	}
	if got := Widen(first, IntRange(1, 1)); got != Of(Integer) {
		t.Errorf("Widen moved bounds = %v, want unbounded Integer", got)
	}
	if got := Widen(IntRange(0, 5), IntRange(1, 2)); got != IntRange(0, 5) {
		t.Errorf("Widen within bounds = %v, want [0,5]", got)
	}
}

func TestUnboxable(t *testing.T) {
	tests := []struct {
		v    Value
		want bool
	}{
		{IntRange(0, 1), true},
		{Of(Integer), false},
		{Of(Float), true},
		{Of(Bool), true},
		{Guarded(Float), false},
		{Guarded(Integer), false},
		{Of(String), false},
		{AnyValue, false},
		{Guarded(Float).Prove(), true},
	}
	for _, tc := range tests {
		if got := tc.v.Unboxable(); got != tc.want {
			t.Errorf("%v.Unboxable() = %v, want %v", tc.v, got, tc.want)
		}
	}
	for _, k := range []Kind{Integer, Float, Bool} {
		if !k.Unboxable() {
			t.Errorf("%v.Unboxable() = false", k)
		}
	}
	if String.Unboxable() || Any.Unboxable() {
		t.Error("String and Any must not be unboxable")
	}
}

func TestSpeculable(t *testing.T) {
	tests := []struct {
		v    Value
		want bool
	}{
		{Guarded(Float), true},
		{Guarded(Integer), true},
		{Of(Integer), true},
		{Guarded(Bool), true},
		{IntRange(0, 1), true},
		{Guarded(String), false},
		{Of(List), false},
		{AnyValue, false},
		{UndefinedValue, false},
	}
	for _, tc := range tests {
		if got := tc.v.Speculable(); got != tc.want {
			t.Errorf("%v.Speculable() = %v, want %v", tc.v, got, tc.want)
		}
	}
}

func TestRefine(t *testing.T) {
	tests := []struct {
		a    Value
		typ  *vm.Type
		want Value
	}{
		{AnyValue, vm.IntType, Guarded(Integer)},
		{UndefinedValue, vm.FloatType, Guarded(Float)},
		{IntRange(1, 2), vm.IntType, IntRange(1, 2)},
		{Of(String), vm.IntType, AnyValue},
		{AnyValue, vm.RangeType, AnyValue},
		{AnyValue, vm.TypeType, Guarded(Type)},
		{AnyValue, vm.BuiltinType, Guarded(Function)},
	}
	for _, tc := range tests {
		if got := Refine(tc.a, tc.typ); got != tc.want {
			t.Errorf("Refine(%v, %s) = %v, want %v", tc.a, tc.typ.Name, got, tc.want)
		}
	}
}

func TestConst(t *testing.T) {
	rt := vm.NewRuntime()
	ts := rt.Main()
	huge := vm.NewBigInt(ts, new(big.Int).Lsh(big.NewInt(1), 80))
	defer vm.DecRef(huge)
	f := vm.NewFloat(ts, 1.5)
	defer vm.DecRef(f)
	s := vm.NewStr(ts, "x")
	defer vm.DecRef(s)

	tests := []struct {
		obj  vm.Object
		want Value
	}{
		{vm.NewInt(ts, 7), IntRange(7, 7)},
		{huge, Of(Integer)},
		{vm.True, Value{kind: Bool, rng: Exact(1)}},
		{f, Of(Float)},
		{s, Of(String)},
		{vm.None, Of(None)},
	}
	for _, tc := range tests {
		if got := Const(tc.obj); got != tc.want {
			t.Errorf("Const(%s) = %v, want %v", vm.Repr(tc.obj), got, tc.want)
		}
	}
}

func TestRangeArithmetic(t *testing.T) {
	r := func(lo, hi int64) Range { return Range{Bounded: true, Lo: lo, Hi: hi} }
	unbounded := Range{}
	tests := []struct {
		name string
		got  Range
		want Range
	}{
		{"add", AddRange(r(1, 2), r(10, 20)), r(11, 22)},
		{"add overflow", AddRange(r(0, math.MaxInt64), r(1, 1)), unbounded},
		{"add unbounded", AddRange(r(0, 1), unbounded), unbounded},
		{"sub", SubRange(r(1, 2), r(10, 20)), r(-19, -8)},
		{"sub overflow", SubRange(r(math.MinInt64, 0), r(1, 1)), unbounded},
		{"mul", MulRange(r(-2, 3), r(-4, 5)), r(-12, 15)},
		{"mul overflow", MulRange(r(1, math.MaxInt64), r(2, 2)), unbounded},
		{"neg", NegRange(r(-3, 7)), r(-7, 3)},
		{"neg min", NegRange(r(math.MinInt64, 0)), unbounded},
		{"floordiv", FloorDivRange(r(-7, 7), r(2, 2)), r(-4, 3)},
		{"floordiv by zero", FloorDivRange(r(1, 2), r(-1, 1)), unbounded},
		{"floordiv overflow", FloorDivRange(r(math.MinInt64, 0), r(-1, -1)), unbounded},
		{"mod positive", ModRange(unbounded, r(1, 10)), r(0, 9)},
		{"mod negative", ModRange(r(0, 100), r(-3, -2)), r(-2, 0)},
		{"mod by zero", ModRange(r(0, 1), r(0, 0)), unbounded},
	}
	for _, tc := range tests {
		if tc.got != tc.want {
			t.Errorf("%s = %+v, want %+v", tc.name, tc.got, tc.want)
		}
	}
	// 2**62 - 1 plus one still fits a machine word
	if got := AddRange(Exact(4611686018427387903), Exact(1)); got != Exact(4611686018427387904) {
		t.Errorf("AddRange near 2**62 = %+v", got)
	}
}
