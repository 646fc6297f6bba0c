package vm

import (
	bc "github.com/chazu/pgjit/pkg/bytecode"
)

// ---------------------------------------------------------------------------
// Reference interpreter
// ---------------------------------------------------------------------------

// EvalFrameDefault executes f one instruction at a time. It is the runtime's
// eval-frame hook unless another evaluator is installed.
func EvalFrameDefault(ts *Thread, f *Frame, throwflag bool) (Object, error) {
	if throwflag {
		return nil, ts.Raise(SystemErrorType, "frame of %s resumed with a pending exception", f.Code.Name)
	}
	code := f.Code
	stackBytes := 8 * (code.StackSize + 1)
	ts.rt.malloc(ts, DomainMem, stackBytes)
	defer ts.rt.free(DomainMem, stackBytes)

	in := interp{ts: ts, f: f, stack: make([]Object, 0, code.StackSize)}
	res, err := in.run()
	if err != nil {
		in.unwind()
		return nil, err
	}
	return res, nil
}

type interp struct {
	ts    *Thread
	f     *Frame
	stack []Object
}

func (in *interp) push(o Object) {
	in.stack = append(in.stack, o)
}

func (in *interp) pop() Object {
	n := len(in.stack) - 1
	o := in.stack[n]
	in.stack[n] = nil
	in.stack = in.stack[:n]
	return o
}

func (in *interp) top() Object {
	return in.stack[len(in.stack)-1]
}

// popN removes the top n values, returning them in push order.
func (in *interp) popN(n int) []Object {
	base := len(in.stack) - n
	out := make([]Object, n)
	copy(out, in.stack[base:])
	for i := base; i < len(in.stack); i++ {
		in.stack[i] = nil
	}
	in.stack = in.stack[:base]
	return out
}

// unwind releases everything left on the value stack.
func (in *interp) unwind() {
	for len(in.stack) > 0 {
		XDecRef(in.pop())
	}
}

func (in *interp) names() *Dict {
	if in.f.Names != nil {
		return in.f.Names
	}
	return in.f.Globals
}

func (in *interp) run() (Object, error) {
	ts, f := in.ts, in.f
	code := f.Code
	instrs := code.Instrs()
	pc := 0
	backward := true
	for pc < len(instrs) {
		instr := instrs[pc]
		if ts.Tracer != nil {
			if line := code.LineFor(instr.Offset); line != f.Line || backward {
				f.Line = line
				ts.Tracer(f, line)
			}
		}
		backward = false
		pc++
		jump := -1

		switch op := instr.Op; op {
		case bc.NOP:
		case bc.POP_TOP:
			DecRef(in.pop())
		case bc.ROT_TWO:
			n := len(in.stack)
			in.stack[n-1], in.stack[n-2] = in.stack[n-2], in.stack[n-1]
		case bc.ROT_THREE:
			n := len(in.stack)
			in.stack[n-1], in.stack[n-2], in.stack[n-3] = in.stack[n-2], in.stack[n-3], in.stack[n-1]
		case bc.ROT_FOUR:
			n := len(in.stack)
			t := in.stack[n-1]
			copy(in.stack[n-3:n], in.stack[n-4:n-1])
			in.stack[n-4] = t
		case bc.DUP_TOP:
			t := in.top()
			IncRef(t)
			in.push(t)
		case bc.DUP_TOP_TWO:
			n := len(in.stack)
			a, b := in.stack[n-2], in.stack[n-1]
			IncRef(a)
			IncRef(b)
			in.push(a)
			in.push(b)

		case bc.UNARY_POSITIVE, bc.UNARY_NEGATIVE, bc.UNARY_INVERT:
			v := in.pop()
			var r Object
			var err error
			switch op {
			case bc.UNARY_POSITIVE:
				r, err = Positive(ts, v)
			case bc.UNARY_NEGATIVE:
				r, err = Negative(ts, v)
			default:
				r, err = Invert(ts, v)
			}
			DecRef(v)
			if err != nil {
				return nil, err
			}
			in.push(r)
		case bc.UNARY_NOT:
			v := in.pop()
			r := NewBool(!Truth(v))
			DecRef(v)
			in.push(r)

		case bc.BINARY_SUBSCR:
			key := in.pop()
			container := in.pop()
			r, err := GetItem(ts, container, key)
			DecRef(container)
			DecRef(key)
			if err != nil {
				return nil, err
			}
			in.push(r)
		case bc.STORE_SUBSCR:
			key := in.pop()
			container := in.pop()
			value := in.pop()
			err := SetItem(ts, container, key, value)
			DecRef(key)
			DecRef(container)
			DecRef(value)
			if err != nil {
				return nil, err
			}
		case bc.DELETE_SUBSCR:
			key := in.pop()
			container := in.pop()
			err := DelItem(ts, container, key)
			DecRef(key)
			DecRef(container)
			if err != nil {
				return nil, err
			}

		case bc.GET_ITER:
			v := in.pop()
			it, err := GetIter(ts, v)
			DecRef(v)
			if err != nil {
				return nil, err
			}
			in.push(it)
		case bc.FOR_ITER:
			it := in.top().(*Iterator)
			if v, ok := it.Next(ts); ok {
				in.push(v)
			} else {
				DecRef(in.pop())
				jump = instr.Target()
			}

		case bc.LOAD_ASSERTION_ERROR:
			in.push(AssertionErrorType)
		case bc.LIST_TO_TUPLE:
			l := in.pop()
			in.push(NewTupleFrom(ts, l.(*List).items))
			DecRef(l)
		case bc.RETURN_VALUE:
			r := in.pop()
			in.unwind()
			return r, nil

		case bc.STORE_NAME:
			v := in.pop()
			in.names().SetStr(ts, code.Names[instr.Arg], v)
			DecRef(v)
		case bc.DELETE_NAME:
			name := code.Names[instr.Arg]
			if !in.names().DelStr(name) {
				return nil, ts.Raise(NameErrorType, "name '%s' is not defined", name)
			}
		case bc.LOAD_NAME:
			name := code.Names[instr.Arg]
			v := in.names().GetStr(name)
			if v == nil {
				var err error
				if v, err = f.LoadGlobal(ts, name); err != nil {
					return nil, err
				}
			}
			IncRef(v)
			in.push(v)

		case bc.UNPACK_SEQUENCE:
			seq := in.pop()
			items, err := Unpack(ts, seq, instr.Arg)
			DecRef(seq)
			if err != nil {
				return nil, err
			}
			for i := len(items) - 1; i >= 0; i-- {
				in.push(items[i])
			}

		case bc.BUILD_TUPLE:
			in.push(NewTuple(ts, in.popN(instr.Arg)))
		case bc.BUILD_LIST:
			in.push(NewList(ts, in.popN(instr.Arg)))
		case bc.BUILD_SET:
			s, err := BuildSet(ts, in.popN(instr.Arg))
			if err != nil {
				return nil, err
			}
			in.push(s)
		case bc.BUILD_MAP:
			d, err := BuildMap(ts, in.popN(2*instr.Arg))
			if err != nil {
				return nil, err
			}
			in.push(d)
		case bc.BUILD_SLICE:
			in.push(BuildSlice(ts, in.popN(instr.Arg)))

		case bc.LIST_APPEND, bc.LIST_EXTEND, bc.SET_UPDATE, bc.DICT_UPDATE:
			v := in.pop()
			err := Accumulate(ts, op, in.stack[len(in.stack)-instr.Arg], v)
			DecRef(v)
			if err != nil {
				return nil, err
			}

		case bc.STORE_GLOBAL:
			v := in.pop()
			f.Globals.SetStr(ts, code.Names[instr.Arg], v)
			DecRef(v)
		case bc.DELETE_GLOBAL:
			name := code.Names[instr.Arg]
			if !f.Globals.DelStr(name) {
				return nil, ts.Raise(NameErrorType, "name '%s' is not defined", name)
			}
		case bc.LOAD_GLOBAL:
			v, err := f.LoadGlobal(ts, code.Names[instr.Arg])
			if err != nil {
				return nil, err
			}
			IncRef(v)
			in.push(v)
		case bc.LOAD_CONST:
			v := code.Consts[instr.Arg]
			IncRef(v)
			in.push(v)
		case bc.LOAD_FAST:
			v := f.Locals[instr.Arg]
			if v == nil {
				return nil, f.UnboundLocal(ts, instr.Arg)
			}
			IncRef(v)
			in.push(v)
		case bc.STORE_FAST:
			old := f.Locals[instr.Arg]
			f.Locals[instr.Arg] = in.pop()
			XDecRef(old)
		case bc.DELETE_FAST:
			old := f.Locals[instr.Arg]
			if old == nil {
				return nil, f.UnboundLocal(ts, instr.Arg)
			}
			f.Locals[instr.Arg] = nil
			DecRef(old)

		case bc.COMPARE_OP:
			b := in.pop()
			a := in.pop()
			r, err := RichCompare(ts, instr.Arg, a, b)
			DecRef(a)
			DecRef(b)
			if err != nil {
				return nil, err
			}
			in.push(r)
		case bc.IS_OP:
			b := in.pop()
			a := in.pop()
			in.push(NewBool((a == b) != (instr.Arg == 1)))
			DecRef(a)
			DecRef(b)
		case bc.CONTAINS_OP:
			container := in.pop()
			item := in.pop()
			r, err := Contains(ts, container, item)
			DecRef(container)
			DecRef(item)
			if err != nil {
				return nil, err
			}
			in.push(NewBool(r != (instr.Arg == 1)))

		case bc.JUMP_FORWARD, bc.JUMP_ABSOLUTE:
			jump = instr.Target()
		case bc.JUMP_IF_FALSE_OR_POP, bc.JUMP_IF_TRUE_OR_POP:
			if Truth(in.top()) == (op == bc.JUMP_IF_TRUE_OR_POP) {
				jump = instr.Target()
			} else {
				DecRef(in.pop())
			}
		case bc.POP_JUMP_IF_FALSE, bc.POP_JUMP_IF_TRUE:
			v := in.pop()
			if Truth(v) == (op == bc.POP_JUMP_IF_TRUE) {
				jump = instr.Target()
			}
			DecRef(v)

		case bc.RAISE_VARARGS:
			return nil, RaiseOperands(ts, in.popN(instr.Arg))
		case bc.CALL_FUNCTION:
			args := in.popN(instr.Arg)
			fn := in.pop()
			r, err := Call(ts, fn, args)
			ReleaseAll(args)
			DecRef(fn)
			if err != nil {
				return nil, err
			}
			in.push(r)
		case bc.MAKE_FUNCTION:
			pop, _ := bc.StackEffect(op, instr.Arg, false)
			in.push(MakeFunction(ts, f.Globals, in.popN(pop)))

		default:
			if bop, ok := BinOpFor(op); ok {
				b := in.pop()
				a := in.pop()
				r, err := evalBinary(ts, op, bop, a, b)
				DecRef(a)
				DecRef(b)
				if err != nil {
					return nil, err
				}
				in.push(r)
				break
			}
			return nil, ts.Raise(SystemErrorType, "unknown opcode %s at offset %d", op, instr.Offset)
		}

		if jump >= 0 {
			next, ok := code.InstrAt(jump)
			if !ok {
				return nil, ts.Raise(SystemErrorType, "jump to %d is not an instruction boundary", jump)
			}
			backward = next < pc
			pc = next
		}
	}
	return nil, ts.Raise(SystemErrorType, "%s fell off the end of its bytecode", code.Name)
}

// ---------------------------------------------------------------------------
// Opcode semantics shared with compiled code
// ---------------------------------------------------------------------------

// EvalBinary evaluates the BINARY_* or INPLACE_* opcode op on a and b.
func EvalBinary(ts *Thread, op bc.Opcode, a, b Object) (Object, error) {
	bop, ok := BinOpFor(op)
	if !ok {
		return nil, ts.Raise(SystemErrorType, "%s is not a binary operation", op)
	}
	return evalBinary(ts, op, bop, a, b)
}

// evalBinary extends a list in place for INPLACE_ADD without rebinding it.
func evalBinary(ts *Thread, op bc.Opcode, bop BinOp, a, b Object) (Object, error) {
	if l, ok := a.(*List); ok && op == bc.INPLACE_ADD {
		err := Iterate(ts, b, func(o Object) error {
			l.Append(o)
			return nil
		})
		if err != nil {
			return nil, err
		}
		IncRef(l)
		return l, nil
	}
	return Binary(ts, bop, a, b)
}

// Unpack returns new references to the n items of seq in sequence order.
func Unpack(ts *Thread, seq Object, n int) ([]Object, error) {
	items, ok := SequenceItems(seq)
	if !ok {
		collected, err := collect(ts, "unpack", []Object{seq})
		if err != nil {
			return nil, err
		}
		defer ReleaseAll(collected)
		items = collected
	}
	switch {
	case len(items) < n:
		return nil, ts.Raise(ValueErrorType, "not enough values to unpack (expected %d, got %d)", n, len(items))
	case len(items) > n:
		return nil, ts.Raise(ValueErrorType, "too many values to unpack (expected %d)", n)
	}
	out := make([]Object, n)
	for i, o := range items {
		IncRef(o)
		out[i] = o
	}
	return out, nil
}

// BuildSet builds a set display. The item references are stolen.
func BuildSet(ts *Thread, items []Object) (Object, error) {
	s := NewSet(ts, false)
	var err error
	for _, o := range items {
		if err == nil {
			err = s.Add(ts, o)
		}
		DecRef(o)
	}
	if err != nil {
		DecRef(s)
		return nil, err
	}
	return s, nil
}

// BuildMap builds a dict display from alternating keys and values. The
// item references are stolen.
func BuildMap(ts *Thread, items []Object) (Object, error) {
	d := NewDict(ts)
	var err error
	for i := 0; i+1 < len(items); i += 2 {
		if err == nil {
			err = d.SetItem(ts, items[i], items[i+1])
		}
	}
	ReleaseAll(items)
	if err != nil {
		DecRef(d)
		return nil, err
	}
	return d, nil
}

// BuildSlice builds a slice from start, stop and an optional step. The
// operand references are stolen.
func BuildSlice(ts *Thread, operands []Object) Object {
	var step Object = None
	if len(operands) == 3 {
		step = operands[2]
	}
	s := NewSlice(ts, operands[0], operands[1], step)
	ReleaseAll(operands)
	return s
}

// Accumulate adds v to the display under construction for LIST_APPEND,
// LIST_EXTEND, SET_UPDATE and DICT_UPDATE. v is borrowed.
func Accumulate(ts *Thread, op bc.Opcode, target, v Object) error {
	switch op {
	case bc.LIST_APPEND:
		target.(*List).Append(v)
		return nil
	case bc.LIST_EXTEND:
		l := target.(*List)
		return Iterate(ts, v, func(o Object) error {
			l.Append(o)
			return nil
		})
	case bc.SET_UPDATE:
		return target.(*Set).Update(ts, v)
	case bc.DICT_UPDATE:
		return target.(*Dict).Update(ts, v)
	}
	return ts.Raise(SystemErrorType, "%s does not build a display", op)
}

// RaiseOperands builds the error for RAISE_VARARGS from its operands in
// push order. The references are stolen.
func RaiseOperands(ts *Thread, operands []Object) error {
	switch len(operands) {
	case 0:
		return ts.Raise(RuntimeErrorType, "No active exception to reraise")
	case 2:
		DecRef(operands[1])
	}
	return MakeException(ts, operands[0])
}

// MakeFunction builds a function from MAKE_FUNCTION operands in push order:
// an optional defaults tuple, the code object and the qualified name. The
// references are stolen.
func MakeFunction(ts *Thread, globals *Dict, operands []Object) Object {
	n := len(operands)
	codeObj, name := operands[n-2].(*Code), operands[n-1]
	var defaults []Object
	if n == 3 {
		defaults, _ = SequenceItems(operands[0])
	}
	fn := NewFunction(ts, codeObj, globals, Str(name), defaults)
	ReleaseAll(operands)
	return fn
}
// MakeException turns the operand of a raise statement into the raised
// error. The reference to exc is stolen.
func MakeException(ts *Thread, exc Object) error {
	switch e := exc.(type) {
	case *Exception:
		return e
	case *Type:
		if e.IsSubtype(BaseExceptionType) {
			return NewException(ts, e, nil)
		}
	}
	DecRef(exc)
	return ts.Raise(TypeErrorType, "exceptions must derive from BaseException")
}

// RunModule executes code as a module body with globals as its namespace.
func RunModule(ts *Thread, code *Code, globals *Dict) (Object, error) {
	f := NewModuleFrame(ts, code, globals)
	res, err := ts.EvalFrame(f)
	f.Release()
	return res, err
}
