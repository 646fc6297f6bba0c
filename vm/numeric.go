package vm

import (
	"math"
	"math/big"

	"github.com/chazu/pgjit/pkg/bytecode"
)

// ---------------------------------------------------------------------------
// Binary operations
// ---------------------------------------------------------------------------

// BinOp identifies a binary operator.
type BinOp int

const (
	OpAdd BinOp = iota
	OpSub
	OpMul
	OpFloorDiv
	OpTrueDiv
	OpMod
	OpPow
	OpLShift
	OpRShift
	OpAnd
	OpOr
	OpXor
)

var binOpSymbols = [...]string{"+", "-", "*", "//", "/", "%", "**", "<<", ">>", "&", "|", "^"}

func (op BinOp) String() string {
	return binOpSymbols[op]
}

// BinOpFor maps a BINARY_* or INPLACE_* opcode to its operator.
func BinOpFor(op bytecode.Opcode) (BinOp, bool) {
	switch bytecode.BinaryBase(op) {
	case bytecode.BINARY_ADD:
		return OpAdd, true
	case bytecode.BINARY_SUBTRACT:
		return OpSub, true
	case bytecode.BINARY_MULTIPLY:
		return OpMul, true
	case bytecode.BINARY_FLOOR_DIVIDE:
		return OpFloorDiv, true
	case bytecode.BINARY_TRUE_DIVIDE:
		return OpTrueDiv, true
	case bytecode.BINARY_MODULO:
		return OpMod, true
	case bytecode.BINARY_POWER:
		return OpPow, true
	case bytecode.BINARY_LSHIFT:
		return OpLShift, true
	case bytecode.BINARY_RSHIFT:
		return OpRShift, true
	case bytecode.BINARY_AND:
		return OpAnd, true
	case bytecode.BINARY_OR:
		return OpOr, true
	case bytecode.BINARY_XOR:
		return OpXor, true
	}
	return 0, false
}

// Binary evaluates a op b.
func Binary(ts *Thread, op BinOp, a, b Object) (Object, error) {
	switch x := a.(type) {
	case *Int:
		switch y := b.(type) {
		case *Int:
			return IntBinary(ts, op, x, y)
		case *Float:
			xf, err := x.Float(ts)
			if err != nil {
				return nil, err
			}
			return floatBinary(ts, op, xf, y.v, a, b)
		}
	case *Float:
		switch y := b.(type) {
		case *Int:
			yf, err := y.Float(ts)
			if err != nil {
				return nil, err
			}
			return floatBinary(ts, op, x.v, yf, a, b)
		case *Float:
			return floatBinary(ts, op, x.v, y.v, a, b)
		}
	}
	return sequenceBinary(ts, op, a, b)
}

func unsupported(ts *Thread, op BinOp, a, b Object) error {
	return ts.Raise(TypeErrorType, "unsupported operand type(s) for %s: '%s' and '%s'",
		op, TypeName(a), TypeName(b))
}

// Int64Binary evaluates op on machine integers when the result is an int
// that fits. ok is false when the caller must take the general path
// (overflow, division by zero, float results, negative shifts).
func Int64Binary(op BinOp, a, b int64) (r int64, ok bool) {
	switch op {
	case OpAdd:
		return AddInt64(a, b)
	case OpSub:
		return SubInt64(a, b)
	case OpMul:
		return MulInt64(a, b)
	case OpFloorDiv:
		return FloorDivInt64(a, b)
	case OpMod:
		return ModInt64(a, b)
	case OpAnd:
		return a & b, true
	case OpOr:
		return a | b, true
	case OpXor:
		return a ^ b, true
	case OpRShift:
		if b < 0 {
			return 0, false
		}
		if b > 63 {
			b = 63
		}
		return a >> uint(b), true
	case OpLShift:
		if b < 0 || b > 62 {
			return 0, false
		}
		r = a << uint(b)
		return r, r>>uint(b) == a
	}
	return 0, false
}

// IntBinary evaluates op on two ints.
func IntBinary(ts *Thread, op BinOp, x, y *Int) (Object, error) {
	xv, xok := x.Int64()
	yv, yok := y.Int64()
	if xok && yok {
		if op == OpTrueDiv {
			f, ok := TrueDivInt64(xv, yv)
			if !ok {
				return nil, ts.Raise(ZeroDivisionErrorType, MsgDivZero)
			}
			return NewFloat(ts, f), nil
		}
		if r, ok := Int64Binary(op, xv, yv); ok {
			return NewInt(ts, r), nil
		}
	}

	xb, yb := x.Big(), y.Big()
	r := new(big.Int)
	switch op {
	case OpAdd:
		r.Add(xb, yb)
	case OpSub:
		r.Sub(xb, yb)
	case OpMul:
		r.Mul(xb, yb)
	case OpFloorDiv, OpMod:
		if yb.Sign() == 0 {
			return nil, ts.Raise(ZeroDivisionErrorType, MsgIntDivZero)
		}
		q, m := new(big.Int), new(big.Int)
		q.DivMod(xb, yb, m)
		// DivMod is Euclidean; convert to floor semantics for negative divisors.
		if m.Sign() != 0 && yb.Sign() < 0 {
			q.Sub(q, big.NewInt(1))
			m.Add(m, yb)
		}
		if op == OpFloorDiv {
			r = q
		} else {
			r = m
		}
	case OpTrueDiv:
		if yb.Sign() == 0 {
			return nil, ts.Raise(ZeroDivisionErrorType, MsgDivZero)
		}
		f, _ := new(big.Rat).SetFrac(xb, yb).Float64()
		if math.IsInf(f, 0) {
			return nil, ts.Raise(OverflowErrorType, "integer division result too large for a float")
		}
		return NewFloat(ts, f), nil
	case OpPow:
		if yb.Sign() < 0 {
			xf, err := x.Float(ts)
			if err != nil {
				return nil, err
			}
			yf, err := y.Float(ts)
			if err != nil {
				return nil, err
			}
			return floatBinary(ts, OpPow, xf, yf, x, y)
		}
		if !yb.IsInt64() || (yb.Int64() > 1<<20 && xb.CmpAbs(big.NewInt(1)) > 0) {
			return nil, ts.Raise(OverflowErrorType, "exponent too large")
		}
		r.Exp(xb, yb, nil)
	case OpLShift, OpRShift:
		if yb.Sign() < 0 {
			return nil, ts.Raise(ValueErrorType, "negative shift count")
		}
		if !yb.IsInt64() || yb.Int64() > 1<<24 {
			if op == OpRShift {
				if xb.Sign() < 0 {
					return NewInt(ts, -1), nil
				}
				return NewInt(ts, 0), nil
			}
			return nil, ts.Raise(OverflowErrorType, "too many digits in integer")
		}
		if op == OpLShift {
			r.Lsh(xb, uint(yb.Int64()))
		} else {
			r.Rsh(xb, uint(yb.Int64()))
		}
	case OpAnd:
		r.And(xb, yb)
	case OpOr:
		r.Or(xb, yb)
	case OpXor:
		r.Xor(xb, yb)
	}
	return NewBigInt(ts, r), nil
}

// Float64Binary evaluates op on two floats. Bitwise operators are not
// defined on floats and report ok false.
func Float64Binary(ts *Thread, op BinOp, a, b float64) (r float64, ok bool, err error) {
	switch op {
	case OpAdd:
		return a + b, true, nil
	case OpSub:
		return a - b, true, nil
	case OpMul:
		return a * b, true, nil
	case OpTrueDiv:
		if b == 0 {
			return 0, true, ts.Raise(ZeroDivisionErrorType, MsgFloatDivZero)
		}
		return a / b, true, nil
	case OpFloorDiv:
		if b == 0 {
			return 0, true, ts.Raise(ZeroDivisionErrorType, MsgFloatDivmodZero)
		}
		d, _ := FloatDivmod(a, b)
		return d, true, nil
	case OpMod:
		if b == 0 {
			return 0, true, ts.Raise(ZeroDivisionErrorType, MsgFloatModZero)
		}
		_, m := FloatDivmod(a, b)
		return m, true, nil
	case OpPow:
		p, ok := FloatPow(a, b)
		if !ok {
			return 0, true, ts.Raise(ZeroDivisionErrorType, MsgZeroNegPow)
		}
		if a < 0 && b != math.Trunc(b) {
			return 0, true, ts.Raise(ValueErrorType, "math domain error")
		}
		return p, true, nil
	}
	return 0, false, nil
}

func floatBinary(ts *Thread, op BinOp, a, b float64, ao, bo Object) (Object, error) {
	r, ok, err := Float64Binary(ts, op, a, b)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, unsupported(ts, op, ao, bo)
	}
	return NewFloat(ts, r), nil
}

func repeatCount(o Object) (int, bool) {
	i, ok := o.(*Int)
	if !ok {
		return 0, false
	}
	v, fits := i.Int64()
	if !fits || v < 0 {
		if fits || i.Sign() < 0 {
			return 0, true
		}
		return 0, false
	}
	return int(v), true
}

func sequenceBinary(ts *Thread, op BinOp, a, b Object) (Object, error) {
	switch op {
	case OpAdd:
		switch x := a.(type) {
		case *StrObject:
			if y, ok := b.(*StrObject); ok {
				return NewStr(ts, x.s+y.s), nil
			}
		case *BytesObject:
			if y, ok := b.(*BytesObject); ok {
				return NewBytes(ts, append(append([]byte{}, x.b...), y.b...)), nil
			}
		case *List:
			if y, ok := b.(*List); ok {
				return NewList(ts, concatItems(x.items, y.items)), nil
			}
		case *Tuple:
			if y, ok := b.(*Tuple); ok {
				return NewTuple(ts, concatItems(x.items, y.items)), nil
			}
		}
	case OpMul:
		seq, n := a, b
		if _, ok := a.(*Int); ok {
			seq, n = b, a
		}
		count, ok := repeatCount(n)
		if !ok {
			break
		}
		switch s := seq.(type) {
		case *StrObject:
			out := make([]byte, 0, len(s.s)*count)
			for i := 0; i < count; i++ {
				out = append(out, s.s...)
			}
			return NewStr(ts, string(out)), nil
		case *List:
			return NewList(ts, repeatItems(s.items, count)), nil
		case *Tuple:
			return NewTuple(ts, repeatItems(s.items, count)), nil
		}
	case OpOr, OpAnd, OpXor, OpSub:
		x, xok := a.(*Set)
		y, yok := b.(*Set)
		if xok && yok {
			return setBinary(ts, op, x, y)
		}
	}
	return nil, unsupported(ts, op, a, b)
}

func concatItems(a, b []Object) []Object {
	out := make([]Object, 0, len(a)+len(b))
	for _, o := range a {
		IncRef(o)
		out = append(out, o)
	}
	for _, o := range b {
		IncRef(o)
		out = append(out, o)
	}
	return out
}

func repeatItems(items []Object, n int) []Object {
	out := make([]Object, 0, len(items)*n)
	for i := 0; i < n; i++ {
		for _, o := range items {
			IncRef(o)
			out = append(out, o)
		}
	}
	return out
}

func setBinary(ts *Thread, op BinOp, x, y *Set) (Object, error) {
	out := NewSet(ts, x.frozen)
	add := func(e htEntry) {
		out.t.put(e.key, nil, e.hash)
	}
	for _, e := range x.t.entries {
		if e.key == nil {
			continue
		}
		in := y.t.find(e.key, e.hash) >= 0
		switch op {
		case OpOr, OpSub, OpXor:
			if op == OpOr || !in {
				add(e)
			}
		case OpAnd:
			if in {
				add(e)
			}
		}
	}
	if op == OpOr || op == OpXor {
		for _, e := range y.t.entries {
			if e.key == nil {
				continue
			}
			if op == OpOr || x.t.find(e.key, e.hash) < 0 {
				add(e)
			}
		}
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Unary operations and truth
// ---------------------------------------------------------------------------

// Negative evaluates -o.
func Negative(ts *Thread, o Object) (Object, error) {
	switch v := o.(type) {
	case *Int:
		if x, ok := v.Int64(); ok && x != math.MinInt64 {
			return NewInt(ts, -x), nil
		}
		return NewBigInt(ts, new(big.Int).Neg(v.Big())), nil
	case *Float:
		return NewFloat(ts, -v.v), nil
	}
	return nil, ts.Raise(TypeErrorType, "bad operand type for unary -: '%s'", TypeName(o))
}

// Positive evaluates +o.
func Positive(ts *Thread, o Object) (Object, error) {
	switch v := o.(type) {
	case *Int:
		if IsBool(v) {
			return NewInt(ts, v.v), nil
		}
		IncRef(v)
		return v, nil
	case *Float:
		IncRef(v)
		return v, nil
	}
	return nil, ts.Raise(TypeErrorType, "bad operand type for unary +: '%s'", TypeName(o))
}

// Invert evaluates ~o.
func Invert(ts *Thread, o Object) (Object, error) {
	if v, ok := o.(*Int); ok {
		if x, ok := v.Int64(); ok {
			return NewInt(ts, ^x), nil
		}
		return NewBigInt(ts, new(big.Int).Not(v.Big())), nil
	}
	return nil, ts.Raise(TypeErrorType, "bad operand type for unary ~: '%s'", TypeName(o))
}

// Truth returns the truth value of o.
func Truth(o Object) bool {
	switch v := o.(type) {
	case *NoneObject:
		return false
	case *Int:
		return v.Sign() != 0
	case *Float:
		return v.v != 0
	case *StrObject:
		return v.s != ""
	case *BytesObject:
		return len(v.b) != 0
	case *List:
		return len(v.items) != 0
	case *Tuple:
		return len(v.items) != 0
	case *Dict:
		return v.t.n != 0
	case *Set:
		return v.t.n != 0
	case *Range:
		return v.Len() != 0
	}
	return true
}
