package vm

import (
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"

	"github.com/chazu/pgjit/pkg/bytecode"
)

// ---------------------------------------------------------------------------
// Builtin namespace
// ---------------------------------------------------------------------------

func init() {
	IntType.new = newIntObject
	BoolType.new = func(ts *Thread, args []Object) (Object, error) {
		if err := checkArgs(ts, "bool", args, 0, 1); err != nil {
			return nil, err
		}
		return NewBool(len(args) == 1 && Truth(args[0])), nil
	}
	FloatType.new = newFloatObject
	StrType.new = func(ts *Thread, args []Object) (Object, error) {
		if err := checkArgs(ts, "str", args, 0, 1); err != nil {
			return nil, err
		}
		if len(args) == 0 {
			return NewStr(ts, ""), nil
		}
		if s, ok := args[0].(*StrObject); ok {
			IncRef(s)
			return s, nil
		}
		return NewStr(ts, Str(args[0])), nil
	}
	ListType.new = func(ts *Thread, args []Object) (Object, error) {
		items, err := collect(ts, "list", args)
		if err != nil {
			return nil, err
		}
		return NewList(ts, items), nil
	}
	TupleType.new = func(ts *Thread, args []Object) (Object, error) {
		if len(args) == 1 {
			if t, ok := args[0].(*Tuple); ok {
				IncRef(t)
				return t, nil
			}
		}
		items, err := collect(ts, "tuple", args)
		if err != nil {
			return nil, err
		}
		return NewTuple(ts, items), nil
	}
	SetType.new = func(ts *Thread, args []Object) (Object, error) {
		return newSetObject(ts, "set", args, false)
	}
	FrozenSetType.new = func(ts *Thread, args []Object) (Object, error) {
		return newSetObject(ts, "frozenset", args, true)
	}
	DictType.new = func(ts *Thread, args []Object) (Object, error) {
		if err := checkArgs(ts, "dict", args, 0, 1); err != nil {
			return nil, err
		}
		d := NewDict(ts)
		if len(args) == 1 {
			if err := d.Update(ts, args[0]); err != nil {
				DecRef(d)
				return nil, err
			}
		}
		return d, nil
	}
	TypeType.new = func(ts *Thread, args []Object) (Object, error) {
		if err := checkArgs(ts, "type", args, 1, 1); err != nil {
			return nil, err
		}
		return args[0].Type(), nil
	}
	RangeType.new = newRangeObject
	for _, t := range exceptionTypes {
		t := t
		t.new = func(ts *Thread, args []Object) (Object, error) {
			return NewException(ts, t, args), nil
		}
	}
}

// newBuiltins builds the builtin namespace of a runtime.
func newBuiltins(ts *Thread) *Dict {
	d := NewDict(ts)
	for _, t := range []*Type{
		IntType, BoolType, FloatType, StrType, ListType, TupleType, SetType,
		FrozenSetType, DictType, TypeType, RangeType, ObjectType,
	} {
		d.SetStr(ts, t.Name, t)
	}
	for _, t := range exceptionTypes {
		d.SetStr(ts, t.Name, t)
	}
	funcs := map[string]CallFunc{
		"len":        builtinLen,
		"abs":        builtinAbs,
		"print":      builtinPrint,
		"isinstance": builtinIsInstance,
		"min":        func(ts *Thread, args []Object) (Object, error) { return minMax(ts, "min", args, -1) },
		"max":        func(ts *Thread, args []Object) (Object, error) { return minMax(ts, "max", args, 1) },
		"sum":        builtinSum,
		"repr":       builtinRepr,
	}
	for name, fn := range funcs {
		b := NewBuiltin(ts, name, fn)
		d.SetStr(ts, name, b)
		DecRef(b)
	}
	return d
}

func checkArgs(ts *Thread, name string, args []Object, min, max int) error {
	if len(args) < min || len(args) > max {
		if min == max {
			return ts.Raise(TypeErrorType, "%s() takes exactly %d argument(s) (%d given)", name, min, len(args))
		}
		return ts.Raise(TypeErrorType, "%s() takes at most %d argument(s) (%d given)", name, max, len(args))
	}
	return nil
}

// collect returns new references to the items of the optional iterable
// argument.
func collect(ts *Thread, name string, args []Object) ([]Object, error) {
	if err := checkArgs(ts, name, args, 0, 1); err != nil {
		return nil, err
	}
	items := []Object{}
	if len(args) == 0 {
		return items, nil
	}
	err := Iterate(ts, args[0], func(o Object) error {
		IncRef(o)
		items = append(items, o)
		return nil
	})
	if err != nil {
		ReleaseAll(items)
		return nil, err
	}
	return items, nil
}

func newSetObject(ts *Thread, name string, args []Object, frozen bool) (Object, error) {
	if err := checkArgs(ts, name, args, 0, 1); err != nil {
		return nil, err
	}
	s := NewSet(ts, frozen)
	if len(args) == 1 {
		if err := s.Update(ts, args[0]); err != nil {
			DecRef(s)
			return nil, err
		}
	}
	return s, nil
}

func newIntObject(ts *Thread, args []Object) (Object, error) {
	if err := checkArgs(ts, "int", args, 0, 1); err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return NewInt(ts, 0), nil
	}
	switch v := args[0].(type) {
	case *Int:
		if IsBool(v) {
			return NewInt(ts, v.v), nil
		}
		IncRef(v)
		return v, nil
	case *Float:
		f := v.v
		switch {
		case math.IsInf(f, 0):
			return nil, ts.Raise(OverflowErrorType, "cannot convert float infinity to integer")
		case math.IsNaN(f):
			return nil, ts.Raise(ValueErrorType, "cannot convert float NaN to integer")
		}
		f = math.Trunc(f)
		if f >= math.MinInt64 && f < math.MaxInt64 {
			return NewInt(ts, int64(f)), nil
		}
		b, _ := big.NewFloat(f).Int(nil)
		return NewBigInt(ts, b), nil
	case *StrObject:
		s := strings.TrimSpace(v.s)
		b, ok := new(big.Int).SetString(s, 10)
		if !ok {
			return nil, ts.Raise(ValueErrorType, "invalid literal for int() with base 10: %s", quoteStr(v.s))
		}
		return NewBigInt(ts, b), nil
	}
	return nil, ts.Raise(TypeErrorType, "int() argument must be a string or a number, not '%s'", TypeName(args[0]))
}

func newFloatObject(ts *Thread, args []Object) (Object, error) {
	if err := checkArgs(ts, "float", args, 0, 1); err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return NewFloat(ts, 0), nil
	}
	switch v := args[0].(type) {
	case *Float:
		IncRef(v)
		return v, nil
	case *Int:
		f, err := v.Float(ts)
		if err != nil {
			return nil, err
		}
		return NewFloat(ts, f), nil
	case *StrObject:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.s), 64)
		if err != nil && !math.IsInf(f, 0) {
			return nil, ts.Raise(ValueErrorType, "could not convert string to float: %s", quoteStr(v.s))
		}
		return NewFloat(ts, f), nil
	}
	return nil, ts.Raise(TypeErrorType, "float() argument must be a string or a number, not '%s'", TypeName(args[0]))
}

func newRangeObject(ts *Thread, args []Object) (Object, error) {
	if len(args) < 1 || len(args) > 3 {
		return nil, ts.Raise(TypeErrorType, "range expected 1 to 3 arguments, got %d", len(args))
	}
	bounds := make([]int64, len(args))
	for i, a := range args {
		n, ok := a.(*Int)
		if !ok {
			return nil, ts.Raise(TypeErrorType, "'%s' object cannot be interpreted as an integer", TypeName(a))
		}
		v, fits := n.Int64()
		if !fits {
			return nil, ts.Raise(OverflowErrorType, "Python int too large to convert to C ssize_t")
		}
		bounds[i] = v
	}
	start, stop, step := int64(0), bounds[0], int64(1)
	if len(bounds) > 1 {
		start, stop = bounds[0], bounds[1]
	}
	if len(bounds) == 3 {
		step = bounds[2]
		if step == 0 {
			return nil, ts.Raise(ValueErrorType, "range() arg 3 must not be zero")
		}
	}
	return NewRange(ts, start, stop, step), nil
}

func builtinLen(ts *Thread, args []Object) (Object, error) {
	if err := checkArgs(ts, "len", args, 1, 1); err != nil {
		return nil, err
	}
	n, err := Len(ts, args[0])
	if err != nil {
		return nil, err
	}
	return NewInt(ts, int64(n)), nil
}

func builtinAbs(ts *Thread, args []Object) (Object, error) {
	if err := checkArgs(ts, "abs", args, 1, 1); err != nil {
		return nil, err
	}
	switch v := args[0].(type) {
	case *Int:
		if v.Sign() < 0 {
			return Negative(ts, v)
		}
		return Positive(ts, v)
	case *Float:
		return NewFloat(ts, math.Abs(v.v)), nil
	}
	return nil, ts.Raise(TypeErrorType, "bad operand type for abs(): '%s'", TypeName(args[0]))
}

func builtinPrint(ts *Thread, args []Object) (Object, error) {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = Str(a)
	}
	fmt.Fprintln(ts.rt.Stdout, strings.Join(parts, " "))
	return None, nil
}

func builtinIsInstance(ts *Thread, args []Object) (Object, error) {
	if err := checkArgs(ts, "isinstance", args, 2, 2); err != nil {
		return nil, err
	}
	var classes []Object
	switch c := args[1].(type) {
	case *Type:
		classes = []Object{c}
	case *Tuple:
		classes = c.items
	default:
		return nil, ts.Raise(TypeErrorType, "isinstance() arg 2 must be a type or tuple of types")
	}
	for _, c := range classes {
		t, ok := c.(*Type)
		if !ok {
			return nil, ts.Raise(TypeErrorType, "isinstance() arg 2 must be a type or tuple of types")
		}
		if args[0].Type().IsSubtype(t) {
			return True, nil
		}
	}
	return False, nil
}

// minMax implements min (sign -1) and max (sign 1).
func minMax(ts *Thread, name string, args []Object, sign int) (Object, error) {
	if len(args) == 0 {
		return nil, ts.Raise(TypeErrorType, "%s expected at least 1 argument, got 0", name)
	}
	cmp := bytecode.CmpGT
	if sign < 0 {
		cmp = bytecode.CmpLT
	}
	var best Object
	visit := func(o Object) error {
		if best == nil {
			best = o
			return nil
		}
		better, err := Compare(ts, cmp, o, best)
		if err != nil {
			return err
		}
		if better {
			best = o
		}
		return nil
	}
	var err error
	if len(args) == 1 {
		// Items produced by iterators are held until best is chosen.
		var held []Object
		err = Iterate(ts, args[0], func(o Object) error {
			IncRef(o)
			held = append(held, o)
			return visit(o)
		})
		if best != nil && err == nil {
			IncRef(best)
		}
		ReleaseAll(held)
		if err != nil {
			return nil, err
		}
		if best == nil {
			return nil, ts.Raise(ValueErrorType, "%s() arg is an empty sequence", name)
		}
		return best, nil
	}
	for _, a := range args {
		if err = visit(a); err != nil {
			return nil, err
		}
	}
	IncRef(best)
	return best, nil
}

func builtinSum(ts *Thread, args []Object) (Object, error) {
	if err := checkArgs(ts, "sum", args, 1, 2); err != nil {
		return nil, err
	}
	var acc Object = NewInt(ts, 0)
	if len(args) == 2 {
		DecRef(acc)
		acc = args[1]
		IncRef(acc)
	}
	err := Iterate(ts, args[0], func(o Object) error {
		r, err := Binary(ts, OpAdd, acc, o)
		if err != nil {
			return err
		}
		DecRef(acc)
		acc = r
		return nil
	})
	if err != nil {
		DecRef(acc)
		return nil, err
	}
	return acc, nil
}

func builtinRepr(ts *Thread, args []Object) (Object, error) {
	if err := checkArgs(ts, "repr", args, 1, 1); err != nil {
		return nil, err
	}
	return NewStr(ts, Repr(args[0])), nil
}
