package vm

import (
	"math"
	"math/big"
	"strconv"
	"strings"
)

// Float is a double precision float.
type Float struct {
	Header
	v float64
}

// NewFloat returns a float object.
func NewFloat(ts *Thread, v float64) *Float {
	return &Float{Header: ts.newHeader(FloatType, FloatType.size), v: v}
}

// Value returns the float's value.
func (f *Float) Value() float64 {
	return f.v
}

// FormatFloat renders v the way repr does: shortest round-trip digits,
// positional notation for exponents in [-4, 16), and a trailing ".0" for
// integral values.
func FormatFloat(v float64) string {
	switch {
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	case math.IsNaN(v):
		return "nan"
	}
	if v == 0 {
		if math.Signbit(v) {
			return "-0.0"
		}
		return "0.0"
	}
	exp := int(math.Floor(math.Log10(math.Abs(v))))
	if exp >= -4 && exp < 16 {
		s := strconv.FormatFloat(v, 'f', -1, 64)
		if !strings.ContainsAny(s, ".") {
			s += ".0"
		}
		return s
	}
	return strconv.FormatFloat(v, 'e', -1, 64)
}

// FloatDivmod returns floor(a/b) and a mod b with the sign of b, computed
// the way float floor division and modulo define them. b must be non-zero.
func FloatDivmod(a, b float64) (div, mod float64) {
	mod = math.Mod(a, b)
	div = (a - mod) / b
	if mod != 0 {
		if (b < 0) != (mod < 0) {
			mod += b
			div -= 1.0
		}
	} else {
		mod = math.Copysign(0, b)
	}
	if div != 0 {
		floordiv := math.Floor(div)
		if div-floordiv > 0.5 {
			floordiv += 1.0
		}
		div = floordiv
	} else {
		div = math.Copysign(0, a/b)
	}
	return div, mod
}

// FloatPow computes a**b. ok is false when a is zero and b negative.
func FloatPow(a, b float64) (float64, bool) {
	if a == 0 && b < 0 {
		return 0, false
	}
	return math.Pow(a, b), true
}

// CompareInt64Float compares v with f exactly. It returns -1, 0, 1, or 2
// when f is NaN.
func CompareInt64Float(v int64, f float64) int {
	return compareIntFloat(&Int{v: v}, f)
}

// compareIntFloat compares an int with a float exactly. It returns -1, 0, 1,
// or 2 when f is NaN.
func compareIntFloat(i *Int, f float64) int {
	if math.IsNaN(f) {
		return 2
	}
	if math.IsInf(f, 1) {
		return -1
	}
	if math.IsInf(f, -1) {
		return 1
	}
	if v, ok := i.Int64(); ok && v > -(1<<53) && v < 1<<53 {
		fv := float64(v)
		switch {
		case fv < f:
			return -1
		case fv > f:
			return 1
		}
		return 0
	}
	bf := new(big.Float).SetInt(i.Big())
	return bf.Cmp(big.NewFloat(f))
}
