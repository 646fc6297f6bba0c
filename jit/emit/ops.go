package emit

import (
	"cmp"
	"math"

	"github.com/chazu/pgjit/jit/absint"
	"github.com/chazu/pgjit/jit/lattice"
	bc "github.com/chazu/pgjit/pkg/bytecode"
	"github.com/chazu/pgjit/vm"
)

// done ends the invocation.
const done = -1

// step executes one instruction and returns the position of the next one.
type step func(m *machine) int

// Guards name the runtime type checks of guarded fast paths.
const (
	guardInt   = "int"
	guardFloat = "float"
	guardList  = "list"
)

// lower builds the step of the instruction at position pos.
func (b *builder) lower(pos int, in bc.Instr) (step, error) {
	next := pos + 1
	target := -1
	if t := in.Target(); t >= 0 {
		target = b.index[t]
	}
	esc := b.res.Graph.Escaped(in.Offset)
	arg := in.Arg
	code := b.code

	switch op := in.Op; op {
	case bc.NOP:
		return func(*machine) int { return next }, nil
	case bc.POP_TOP:
		return func(m *machine) int {
			m.pop().release()
			return next
		}, nil
	case bc.ROT_TWO:
		return func(m *machine) int {
			n := len(m.stack)
			m.stack[n-1], m.stack[n-2] = m.stack[n-2], m.stack[n-1]
			return next
		}, nil
	case bc.ROT_THREE:
		return func(m *machine) int {
			n := len(m.stack)
			m.stack[n-1], m.stack[n-2], m.stack[n-3] = m.stack[n-2], m.stack[n-3], m.stack[n-1]
			return next
		}, nil
	case bc.ROT_FOUR:
		return func(m *machine) int {
			n := len(m.stack)
			t := m.stack[n-1]
			copy(m.stack[n-3:n], m.stack[n-4:n-1])
			m.stack[n-4] = t
			return next
		}, nil
	case bc.DUP_TOP:
		return func(m *machine) int {
			m.push(m.top(0).dup())
			return next
		}, nil
	case bc.DUP_TOP_TWO:
		return func(m *machine) int {
			a, t := m.top(1).dup(), m.top(0).dup()
			m.push(a)
			m.push(t)
			return next
		}, nil

	case bc.UNARY_NOT:
		return func(m *machine) int {
			s := m.pop()
			t := s.truth()
			s.release()
			if esc {
				m.push(rawBool(!t))
			} else {
				m.push(boxed(vm.NewBool(!t)))
			}
			return next
		}, nil
	case bc.UNARY_POSITIVE, bc.UNARY_NEGATIVE, bc.UNARY_INVERT:
		if esc {
			return rawUnary(op, next), nil
		}
		return func(m *machine) int {
			v := m.popObject()
			var r vm.Object
			var err error
			switch op {
			case bc.UNARY_POSITIVE:
				r, err = vm.Positive(m.ts, v)
			case bc.UNARY_NEGATIVE:
				r, err = vm.Negative(m.ts, v)
			default:
				r, err = vm.Invert(m.ts, v)
			}
			vm.DecRef(v)
			if err != nil {
				return m.fail(err)
			}
			m.push(boxed(r))
			return next
		}, nil

	case bc.BINARY_SUBSCR:
		fast := b.guard(in) == guardList
		return func(m *machine) int {
			key := m.popObject()
			container := m.popObject()
			if fast {
				if r, ok := listItem(container, key); ok {
					vm.DecRef(container)
					vm.DecRef(key)
					m.push(boxed(r))
					return next
				}
			}
			r, err := vm.GetItem(m.ts, container, key)
			vm.DecRef(container)
			vm.DecRef(key)
			if err != nil {
				return m.fail(err)
			}
			m.push(boxed(r))
			return next
		}, nil
	case bc.STORE_SUBSCR:
		return func(m *machine) int {
			key := m.popObject()
			container := m.popObject()
			value := m.popObject()
			err := vm.SetItem(m.ts, container, key, value)
			vm.DecRef(key)
			vm.DecRef(container)
			vm.DecRef(value)
			if err != nil {
				return m.fail(err)
			}
			return next
		}, nil
	case bc.DELETE_SUBSCR:
		return func(m *machine) int {
			key := m.popObject()
			container := m.popObject()
			err := vm.DelItem(m.ts, container, key)
			vm.DecRef(key)
			vm.DecRef(container)
			if err != nil {
				return m.fail(err)
			}
			return next
		}, nil

	case bc.GET_ITER:
		return func(m *machine) int {
			v := m.popObject()
			it, err := vm.GetIter(m.ts, v)
			vm.DecRef(v)
			if err != nil {
				return m.fail(err)
			}
			m.push(boxed(it))
			return next
		}, nil
	case bc.FOR_ITER:
		return func(m *machine) int {
			it := m.top(0).obj.(*vm.Iterator)
			if v, ok := it.Next(m.ts); ok {
				m.push(boxed(v))
				return next
			}
			m.pop().release()
			return target
		}, nil

	case bc.LOAD_ASSERTION_ERROR:
		return func(m *machine) int {
			m.push(boxed(vm.AssertionErrorType))
			return next
		}, nil
	case bc.LIST_TO_TUPLE:
		return func(m *machine) int {
			l := m.popObject()
			m.push(boxed(vm.NewTupleFrom(m.ts, l.(*vm.List).Items())))
			vm.DecRef(l)
			return next
		}, nil
	case bc.RETURN_VALUE:
		return func(m *machine) int {
			m.ret = m.popObject()
			return done
		}, nil

	case bc.UNPACK_SEQUENCE:
		return func(m *machine) int {
			seq := m.popObject()
			items, err := vm.Unpack(m.ts, seq, arg)
			vm.DecRef(seq)
			if err != nil {
				return m.fail(err)
			}
			for i := len(items) - 1; i >= 0; i-- {
				m.push(boxed(items[i]))
			}
			return next
		}, nil

	case bc.BUILD_TUPLE:
		return func(m *machine) int {
			m.push(boxed(vm.NewTuple(m.ts, m.popObjects(arg))))
			return next
		}, nil
	case bc.BUILD_LIST:
		return func(m *machine) int {
			m.push(boxed(vm.NewList(m.ts, m.popObjects(arg))))
			return next
		}, nil
	case bc.BUILD_SET, bc.BUILD_MAP:
		n, build := arg, vm.BuildSet
		if op == bc.BUILD_MAP {
			n, build = 2*arg, vm.BuildMap
		}
		return func(m *machine) int {
			r, err := build(m.ts, m.popObjects(n))
			if err != nil {
				return m.fail(err)
			}
			m.push(boxed(r))
			return next
		}, nil
	case bc.BUILD_SLICE:
		return func(m *machine) int {
			m.push(boxed(vm.BuildSlice(m.ts, m.popObjects(arg))))
			return next
		}, nil

	case bc.LIST_APPEND, bc.LIST_EXTEND, bc.SET_UPDATE, bc.DICT_UPDATE:
		return func(m *machine) int {
			v := m.popObject()
			err := vm.Accumulate(m.ts, op, m.top(arg-1).obj, v)
			vm.DecRef(v)
			if err != nil {
				return m.fail(err)
			}
			return next
		}, nil

	case bc.STORE_GLOBAL:
		name := code.Names[arg]
		return func(m *machine) int {
			v := m.popObject()
			m.f.Globals.SetStr(m.ts, name, v)
			vm.DecRef(v)
			return next
		}, nil
	case bc.DELETE_GLOBAL:
		name := code.Names[arg]
		return func(m *machine) int {
			if !m.f.Globals.DelStr(name) {
				return m.fail(m.ts.Raise(vm.NameErrorType, "name '%s' is not defined", name))
			}
			return next
		}, nil
	case bc.LOAD_GLOBAL:
		name := code.Names[arg]
		return func(m *machine) int {
			v, err := m.f.LoadGlobal(m.ts, name)
			if err != nil {
				return m.fail(err)
			}
			vm.IncRef(v)
			m.push(boxed(v))
			return next
		}, nil

	case bc.LOAD_CONST:
		c := code.Consts[arg]
		if esc {
			proto := rawConst(c)
			return func(m *machine) int {
				s := proto
				if s.kind != lattice.Bool {
					vm.IncRef(c)
					s.sh = &shadow{obj: c, refs: 1}
				}
				m.push(s)
				return next
			}, nil
		}
		return func(m *machine) int {
			vm.IncRef(c)
			m.push(boxed(c))
			return next
		}, nil
	case bc.LOAD_FAST:
		if esc {
			return func(m *machine) int {
				s := m.raw[arg]
				if !s.raw() {
					return m.fail(m.f.UnboundLocal(m.ts, arg))
				}
				m.push(s.dup())
				return next
			}, nil
		}
		return func(m *machine) int {
			v := m.f.Locals[arg]
			if v == nil {
				return m.fail(m.f.UnboundLocal(m.ts, arg))
			}
			vm.IncRef(v)
			m.push(boxed(v))
			return next
		}, nil
	case bc.STORE_FAST:
		if esc {
			return func(m *machine) int {
				s, err := m.popRaw()
				if err != nil {
					return m.fail(err)
				}
				old := m.raw[arg]
				m.raw[arg] = s
				old.release()
				return next
			}, nil
		}
		return func(m *machine) int {
			old := m.f.Locals[arg]
			m.f.Locals[arg] = m.popObject()
			vm.XDecRef(old)
			return next
		}, nil
	case bc.DELETE_FAST:
		return func(m *machine) int {
			old := m.f.Locals[arg]
			if old == nil {
				return m.fail(m.f.UnboundLocal(m.ts, arg))
			}
			m.f.Locals[arg] = nil
			vm.DecRef(old)
			return next
		}, nil

	case bc.COMPARE_OP:
		if esc {
			return func(m *machine) int {
				y, x, ok := m.popOperands()
				if !ok {
					a, b := m.box(x), m.box(y)
					r, err := vm.RichCompare(m.ts, arg, a, b)
					vm.DecRef(a)
					vm.DecRef(b)
					if err != nil {
						return m.fail(err)
					}
					m.push(boxed(r))
					return next
				}
				r := rawCompare(arg, x, y)
				x.release()
				y.release()
				m.push(rawBool(r))
				return next
			}, nil
		}
		guard := b.guard(in)
		return func(m *machine) int {
			y := m.popObject()
			x := m.popObject()
			if guard != "" {
				if r, ok := fastCompare(arg, x, y); ok {
					vm.DecRef(x)
					vm.DecRef(y)
					m.push(boxed(vm.NewBool(r)))
					return next
				}
			}
			r, err := vm.RichCompare(m.ts, arg, x, y)
			vm.DecRef(x)
			vm.DecRef(y)
			if err != nil {
				return m.fail(err)
			}
			m.push(boxed(r))
			return next
		}, nil
	case bc.IS_OP:
		return func(m *machine) int {
			y := m.popObject()
			x := m.popObject()
			m.push(boxed(vm.NewBool((x == y) != (arg == 1))))
			vm.DecRef(x)
			vm.DecRef(y)
			return next
		}, nil
	case bc.CONTAINS_OP:
		return func(m *machine) int {
			container := m.popObject()
			item := m.popObject()
			r, err := vm.Contains(m.ts, container, item)
			vm.DecRef(container)
			vm.DecRef(item)
			if err != nil {
				return m.fail(err)
			}
			m.push(boxed(vm.NewBool(r != (arg == 1))))
			return next
		}, nil

	case bc.JUMP_FORWARD, bc.JUMP_ABSOLUTE:
		return func(*machine) int { return target }, nil
	case bc.JUMP_IF_FALSE_OR_POP, bc.JUMP_IF_TRUE_OR_POP:
		want := op == bc.JUMP_IF_TRUE_OR_POP
		return func(m *machine) int {
			if m.top(0).truth() == want {
				return target
			}
			m.pop().release()
			return next
		}, nil
	case bc.POP_JUMP_IF_FALSE, bc.POP_JUMP_IF_TRUE:
		want := op == bc.POP_JUMP_IF_TRUE
		return func(m *machine) int {
			s := m.pop()
			t := s.truth()
			s.release()
			if t == want {
				return target
			}
			return next
		}, nil

	case bc.RAISE_VARARGS:
		return func(m *machine) int {
			return m.fail(vm.RaiseOperands(m.ts, m.popObjects(arg)))
		}, nil
	case bc.CALL_FUNCTION:
		return func(m *machine) int {
			args := m.popObjects(arg)
			fn := m.popObject()
			r, err := vm.Call(m.ts, fn, args)
			vm.ReleaseAll(args)
			vm.DecRef(fn)
			if err != nil {
				return m.fail(err)
			}
			m.push(boxed(r))
			return next
		}, nil
	case bc.MAKE_FUNCTION:
		n, _ := bc.StackEffect(op, arg, false)
		return func(m *machine) int {
			m.push(boxed(vm.MakeFunction(m.ts, m.f.Globals, m.popObjects(n))))
			return next
		}, nil
	}

	bop, ok := vm.BinOpFor(in.Op)
	if !ok {
		return nil, &absint.CompileError{Offset: in.Offset, Opcode: in.Op, Err: absint.ErrUnsupportedOpcode}
	}
	op := in.Op
	if esc {
		return func(m *machine) int {
			y, x, ok := m.popOperands()
			if !ok {
				a, b := m.box(x), m.box(y)
				r, err := vm.EvalBinary(m.ts, op, a, b)
				vm.DecRef(a)
				vm.DecRef(b)
				if err != nil {
					return m.fail(err)
				}
				m.push(boxed(r))
				return next
			}
			r, err := rawArith(m, bop, x, y)
			x.release()
			y.release()
			if err != nil {
				return m.fail(err)
			}
			m.push(r)
			return next
		}, nil
	}
	guard := b.guard(in)
	return func(m *machine) int {
		y := m.popObject()
		x := m.popObject()
		var r vm.Object
		var err error
		ok := false
		switch guard {
		case guardInt:
			r, ok = fastIntBinary(m.ts, bop, x, y)
		case guardFloat:
			r, ok, err = fastFloatBinary(m.ts, bop, x, y)
		}
		if !ok && err == nil {
			r, err = vm.EvalBinary(m.ts, op, x, y)
		}
		vm.DecRef(x)
		vm.DecRef(y)
		if err != nil {
			return m.fail(err)
		}
		m.push(boxed(r))
		return next
	}, nil
}

// guard picks the fast path of a boxed instruction from the kinds of its
// operands.
func (b *builder) guard(in bc.Instr) string {
	pre := b.res.Pre(in.Offset)
	if pre == nil || pre.Depth() < 2 {
		return ""
	}
	x, y := pre.Top(1).Value.Kind(), pre.Top(0).Value.Kind()
	switch {
	case in.Op == bc.BINARY_SUBSCR:
		if x == lattice.List && y == lattice.Integer {
			return guardList
		}
	case in.Op == bc.COMPARE_OP && in.Arg > bc.CmpGE:
	case in.Op == bc.COMPARE_OP, absint.UnboxedArith(in.Op):
		switch {
		case x == lattice.Integer && y == lattice.Integer:
			return guardInt
		case x == lattice.Float && y == lattice.Float:
			return guardFloat
		}
	}
	return ""
}

// popOperands pops the two operands of a raw binary instruction, top first,
// and unboxes them. ok is false when either has no raw form; the caller
// then owns both slots as they are and runs the boxed operation.
func (m *machine) popOperands() (y, x slot, ok bool) {
	y = speculate(m.pop())
	x = speculate(m.pop())
	return y, x, x.raw() && y.raw()
}

func rawConst(c vm.Object) slot {
	switch o := c.(type) {
	case *vm.Int:
		v, _ := o.Int64()
		if vm.IsBool(o) {
			return rawBool(v != 0)
		}
		return slot{bits: uint64(v), kind: lattice.Integer}
	case *vm.Float:
		return slot{bits: math.Float64bits(o.Value()), kind: lattice.Float}
	}
	return boxed(c)
}

func rawUnary(op bc.Opcode, next int) step {
	return func(m *machine) int {
		s, err := m.popRaw()
		if err != nil {
			return m.fail(err)
		}
		switch {
		case op == bc.UNARY_POSITIVE && s.kind == lattice.Bool:
			m.push(rawInt(s.int64()))
			s.release()
		case op == bc.UNARY_POSITIVE:
			m.push(s)
		case s.kind == lattice.Float:
			m.push(rawFloat(-s.float64()))
			s.release()
		case s.int64() == math.MinInt64:
			v := m.box(s)
			r, err := vm.Negative(m.ts, v)
			vm.DecRef(v)
			if err != nil {
				return m.fail(err)
			}
			m.push(boxed(r))
		default:
			m.push(rawInt(-s.int64()))
			s.release()
		}
		return next
	}
}

// rawArith evaluates x op y on raw words. Integer results that leave the
// machine range take the general path and come back boxed.
func rawArith(m *machine, op vm.BinOp, x, y slot) (slot, error) {
	ints := x.kind != lattice.Float && y.kind != lattice.Float
	switch {
	case ints && op == vm.OpTrueDiv:
		q, ok := vm.TrueDivInt64(x.int64(), y.int64())
		if !ok {
			return slot{}, m.ts.Raise(vm.ZeroDivisionErrorType, vm.MsgDivZero)
		}
		return rawFloat(q), nil
	case ints:
		if r, ok := vm.Int64Binary(op, x.int64(), y.int64()); ok {
			return rawInt(r), nil
		}
		a, b := m.box(x.dup()), m.box(y.dup())
		r, err := vm.Binary(m.ts, op, a, b)
		vm.DecRef(a)
		vm.DecRef(b)
		if err != nil {
			return slot{}, err
		}
		return boxed(r), nil
	}
	r, ok, err := vm.Float64Binary(m.ts, op, x.float64(), y.float64())
	if err != nil {
		return slot{}, err
	}
	if !ok {
		return slot{}, m.ts.Raise(vm.SystemErrorType, "no raw float form of %s", op)
	}
	return rawFloat(r), nil
}

func rawCompare(op int, x, y slot) bool {
	var c int
	switch xf, yf := x.kind == lattice.Float, y.kind == lattice.Float; {
	case !xf && !yf:
		c = cmp.Compare(x.int64(), y.int64())
	case xf && yf:
		c = vm.CompareFloat64(x.float64(), y.float64())
	case yf:
		c = vm.CompareInt64Float(x.int64(), y.float64())
	default:
		c = vm.CompareInt64Float(y.int64(), x.float64())
		if c >= -1 && c <= 1 {
			c = -c
		}
	}
	return vm.CompareResult(op, c)
}

// ---------------------------------------------------------------------------
// Guarded fast paths
// ---------------------------------------------------------------------------

func machineInts(x, y vm.Object) (a, b int64, ok bool) {
	xi, ok1 := x.(*vm.Int)
	yi, ok2 := y.(*vm.Int)
	if !ok1 || !ok2 {
		return 0, 0, false
	}
	a, ok1 = xi.Int64()
	b, ok2 = yi.Int64()
	return a, b, ok1 && ok2
}

func fastIntBinary(ts *vm.Thread, op vm.BinOp, x, y vm.Object) (vm.Object, bool) {
	switch op {
	case vm.OpAdd, vm.OpSub, vm.OpMul, vm.OpFloorDiv, vm.OpMod:
	default:
		return nil, false
	}
	a, b, ok := machineInts(x, y)
	if !ok {
		return nil, false
	}
	r, ok := vm.Int64Binary(op, a, b)
	if !ok {
		return nil, false
	}
	return vm.NewInt(ts, r), true
}

func fastFloatBinary(ts *vm.Thread, op vm.BinOp, x, y vm.Object) (vm.Object, bool, error) {
	xf, ok1 := x.(*vm.Float)
	yf, ok2 := y.(*vm.Float)
	if !ok1 || !ok2 {
		return nil, false, nil
	}
	r, ok, err := vm.Float64Binary(ts, op, xf.Value(), yf.Value())
	if err != nil || !ok {
		return nil, false, err
	}
	return vm.NewFloat(ts, r), true, nil
}

func fastCompare(op int, x, y vm.Object) (bool, bool) {
	if a, b, ok := machineInts(x, y); ok {
		return vm.CompareResult(op, cmp.Compare(a, b)), true
	}
	xf, ok1 := x.(*vm.Float)
	yf, ok2 := y.(*vm.Float)
	if ok1 && ok2 {
		return vm.CompareResult(op, vm.CompareFloat64(xf.Value(), yf.Value())), true
	}
	return false, false
}

// listItem indexes a list by a machine integer. ok is false when the index
// is out of range or the operands have other types.
func listItem(container, key vm.Object) (vm.Object, bool) {
	l, ok := container.(*vm.List)
	if !ok {
		return nil, false
	}
	k, ok := key.(*vm.Int)
	if !ok {
		return nil, false
	}
	i, ok := k.Int64()
	if !ok {
		return nil, false
	}
	n := int64(l.Len())
	if i < 0 {
		i += n
	}
	if i < 0 || i >= n {
		return nil, false
	}
	item := l.Items()[i]
	vm.IncRef(item)
	return item, true
}
