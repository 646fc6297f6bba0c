package vm

import (
	"math"
	"math/big"
	"strconv"
)

// ---------------------------------------------------------------------------
// Integers and booleans
// ---------------------------------------------------------------------------

// Int is an arbitrary precision integer. Values that fit in an int64 are
// kept in v with b nil. Booleans are Ints whose type is BoolType.
type Int struct {
	Header
	v int64
	b *big.Int
}

const (
	smallIntMin = -5
	smallIntMax = 256
)

var smallInts [smallIntMax - smallIntMin + 1]*Int

// None, True and False.
var (
	None  = &NoneObject{}
	True  = &Int{v: 1}
	False = &Int{v: 0}
)

// NoneObject is the type of None.
type NoneObject struct {
	Header
}

func init() {
	for i := range smallInts {
		smallInts[i] = &Int{Header: immortalHeader(IntType), v: int64(i + smallIntMin)}
	}
	None.Header = immortalHeader(NoneType)
	True.Header = immortalHeader(BoolType)
	False.Header = immortalHeader(BoolType)
}

// NewInt returns an int object for v. Small values are shared.
func NewInt(ts *Thread, v int64) *Int {
	if v >= smallIntMin && v <= smallIntMax {
		return smallInts[v-smallIntMin]
	}
	return &Int{Header: ts.newHeader(IntType, IntType.size), v: v}
}

// NewBigInt returns an int object for b, normalizing to the machine-word
// form when it fits. b is not retained.
func NewBigInt(ts *Thread, b *big.Int) *Int {
	if b.IsInt64() {
		return NewInt(ts, b.Int64())
	}
	words := len(b.Bits())
	return &Int{Header: ts.newHeader(IntType, IntType.size+8*words), b: new(big.Int).Set(b)}
}

// NewBool returns True or False.
func NewBool(v bool) *Int {
	if v {
		return True
	}
	return False
}

// Int64 returns the value and whether it fits in an int64.
func (i *Int) Int64() (int64, bool) {
	if i.b != nil {
		return 0, false
	}
	return i.v, true
}

// Big returns the value as a big.Int. The result must not be modified.
func (i *Int) Big() *big.Int {
	if i.b != nil {
		return i.b
	}
	return big.NewInt(i.v)
}

// Sign returns -1, 0 or 1.
func (i *Int) Sign() int {
	if i.b != nil {
		return i.b.Sign()
	}
	switch {
	case i.v < 0:
		return -1
	case i.v > 0:
		return 1
	}
	return 0
}

func (i *Int) String() string {
	if i.b != nil {
		return i.b.String()
	}
	return strconv.FormatInt(i.v, 10)
}

// Float converts the value to the nearest float64.
func (i *Int) Float(ts *Thread) (float64, error) {
	if i.b == nil {
		return float64(i.v), nil
	}
	f, _ := new(big.Float).SetInt(i.b).Float64()
	if math.IsInf(f, 0) {
		return 0, ts.Raise(OverflowErrorType, "int too large to convert to float")
	}
	return f, nil
}

// IsBool reports whether o is True or False.
func IsBool(o Object) bool {
	return o.Type() == BoolType
}

// AsInt returns o as an *Int if it is an int or bool.
func AsInt(o Object) (*Int, bool) {
	i, ok := o.(*Int)
	return i, ok
}

// ---------------------------------------------------------------------------
// Machine integer helpers
// ---------------------------------------------------------------------------

// AddInt64 returns a+b and whether it did not overflow.
func AddInt64(a, b int64) (int64, bool) {
	r := a + b
	return r, (r > a) == (b > 0)
}

// SubInt64 returns a-b and whether it did not overflow.
func SubInt64(a, b int64) (int64, bool) {
	r := a - b
	return r, (r < a) == (b > 0)
}

// MulInt64 returns a*b and whether it did not overflow.
func MulInt64(a, b int64) (int64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	r := a * b
	if r/b != a || (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) {
		return 0, false
	}
	return r, true
}

// FloorDivInt64 returns a//b rounded towards negative infinity. ok is false
// when b is zero or the quotient overflows.
func FloorDivInt64(a, b int64) (q int64, ok bool) {
	if b == 0 || (a == math.MinInt64 && b == -1) {
		return 0, false
	}
	q = a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q, true
}

// ModInt64 returns a%b with the sign of b. ok is false when b is zero.
func ModInt64(a, b int64) (int64, bool) {
	if b == 0 {
		return 0, false
	}
	if b == -1 {
		return 0, true
	}
	m := a % b
	if m != 0 && ((m < 0) != (b < 0)) {
		m += b
	}
	return m, true
}

// TrueDivInt64 returns the correctly rounded quotient a/b. ok is false
// when b is zero.
func TrueDivInt64(a, b int64) (float64, bool) {
	if b == 0 {
		return 0, false
	}
	const exact = 1 << 53
	if a > -exact && a < exact && b > -exact && b < exact {
		return float64(a) / float64(b), true
	}
	f, _ := new(big.Rat).SetFrac(big.NewInt(a), big.NewInt(b)).Float64()
	return f, true
}
