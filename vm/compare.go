package vm

import (
	"bytes"
	"strings"

	"github.com/chazu/pgjit/pkg/bytecode"
)

// ---------------------------------------------------------------------------
// Comparisons
// ---------------------------------------------------------------------------

const unordered = 2

// numericCompare compares two numbers. ok is false if either is not a
// number. The result is -1, 0, 1 or unordered (NaN involved).
func numericCompare(a, b Object) (int, bool) {
	switch x := a.(type) {
	case *Int:
		switch y := b.(type) {
		case *Int:
			xv, xok := x.Int64()
			yv, yok := y.Int64()
			if xok && yok {
				switch {
				case xv < yv:
					return -1, true
				case xv > yv:
					return 1, true
				}
				return 0, true
			}
			return x.Big().Cmp(y.Big()), true
		case *Float:
			return compareIntFloat(x, y.v), true
		}
	case *Float:
		switch y := b.(type) {
		case *Int:
			c := compareIntFloat(y, x.v)
			if c == unordered {
				return c, true
			}
			return -c, true
		case *Float:
			return CompareFloat64(x.v, y.v), true
		}
	}
	return 0, false
}

// CompareFloat64 returns -1, 0, 1 or unordered.
func CompareFloat64(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	case a == b:
		return 0
	}
	return unordered
}

// CompareResult maps a three-way comparison to the outcome of a COMPARE_OP
// oparg.
func CompareResult(op int, c int) bool {
	if c == unordered {
		return op == bytecode.CmpNE
	}
	switch op {
	case bytecode.CmpLT:
		return c < 0
	case bytecode.CmpLE:
		return c <= 0
	case bytecode.CmpEQ:
		return c == 0
	case bytecode.CmpNE:
		return c != 0
	case bytecode.CmpGT:
		return c > 0
	case bytecode.CmpGE:
		return c >= 0
	}
	return false
}

// Equal reports whether a == b. Identical objects are equal.
func Equal(a, b Object) bool {
	if a == b {
		return true
	}
	return equalValues(a, b)
}

func equalValues(a, b Object) bool {
	if c, ok := numericCompare(a, b); ok {
		return c == 0
	}
	switch x := a.(type) {
	case *StrObject:
		y, ok := b.(*StrObject)
		return ok && x.s == y.s
	case *BytesObject:
		y, ok := b.(*BytesObject)
		return ok && bytes.Equal(x.b, y.b)
	case *List:
		y, ok := b.(*List)
		return ok && equalItems(x.items, y.items)
	case *Tuple:
		y, ok := b.(*Tuple)
		return ok && equalItems(x.items, y.items)
	case *Set:
		y, ok := b.(*Set)
		return ok && x.t.n == y.t.n && subset(x, y)
	case *Dict:
		y, ok := b.(*Dict)
		if !ok || x.t.n != y.t.n {
			return false
		}
		for _, e := range x.t.entries {
			if e.key == nil {
				continue
			}
			i := y.t.find(e.key, e.hash)
			if i < 0 || !Equal(e.value, y.t.entries[i].value) {
				return false
			}
		}
		return true
	case *Range:
		y, ok := b.(*Range)
		return ok && x.start == y.start && x.stop == y.stop && x.step == y.step
	}
	return false
}

func equalItems(a, b []Object) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}

func subset(a, b *Set) bool {
	for _, e := range a.t.entries {
		if e.key != nil && b.t.find(e.key, e.hash) < 0 {
			return false
		}
	}
	return true
}

// Compare evaluates a COMPARE_OP and returns the boolean outcome.
func Compare(ts *Thread, op int, a, b Object) (bool, error) {
	if op == bytecode.CmpEQ || op == bytecode.CmpNE {
		var eq bool
		if c, ok := numericCompare(a, b); ok {
			eq = c == 0
		} else {
			eq = Equal(a, b)
		}
		return eq == (op == bytecode.CmpEQ), nil
	}
	if c, ok := numericCompare(a, b); ok {
		return CompareResult(op, c), nil
	}
	switch x := a.(type) {
	case *StrObject:
		if y, ok := b.(*StrObject); ok {
			return CompareResult(op, strings.Compare(x.s, y.s)), nil
		}
	case *BytesObject:
		if y, ok := b.(*BytesObject); ok {
			return CompareResult(op, bytes.Compare(x.b, y.b)), nil
		}
	case *List:
		if y, ok := b.(*List); ok {
			return compareSeq(ts, op, x.items, y.items)
		}
	case *Tuple:
		if y, ok := b.(*Tuple); ok {
			return compareSeq(ts, op, x.items, y.items)
		}
	case *Set:
		if y, ok := b.(*Set); ok {
			switch op {
			case bytecode.CmpLE:
				return subset(x, y), nil
			case bytecode.CmpLT:
				return x.t.n < y.t.n && subset(x, y), nil
			case bytecode.CmpGE:
				return subset(y, x), nil
			case bytecode.CmpGT:
				return y.t.n < x.t.n && subset(y, x), nil
			}
		}
	}
	return false, ts.Raise(TypeErrorType, "'%s' not supported between instances of '%s' and '%s'",
		bytecode.CompareOps[op], TypeName(a), TypeName(b))
}

func compareSeq(ts *Thread, op int, a, b []Object) (bool, error) {
	for i := 0; i < len(a) && i < len(b); i++ {
		if !Equal(a[i], b[i]) {
			return Compare(ts, op, a[i], b[i])
		}
	}
	c := 0
	switch {
	case len(a) < len(b):
		c = -1
	case len(a) > len(b):
		c = 1
	}
	return CompareResult(op, c), nil
}

// RichCompare evaluates a COMPARE_OP and returns True or False.
func RichCompare(ts *Thread, op int, a, b Object) (Object, error) {
	r, err := Compare(ts, op, a, b)
	if err != nil {
		return nil, err
	}
	return NewBool(r), nil
}
