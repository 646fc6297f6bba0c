package absint

import (
	"fmt"

	"github.com/chazu/pgjit/jit/lattice"
	bc "github.com/chazu/pgjit/pkg/bytecode"
)

type succ struct {
	pos int
	st  *State
}

// outcome is the effect of one instruction on one incoming state.
type outcome struct {
	pre      *State
	fall     *State
	succs    []succ
	consumed []Entry // slot 0 first
}

type stepper struct {
	a    *analyzer
	in   bc.Instr
	st   *State
	out  *outcome
	dead bool // the instruction always raises
}

func (s *stepper) pop() (Entry, error) {
	n := len(s.st.Stack)
	if n == 0 {
		return Entry{}, ErrStackUnderflow
	}
	e := s.st.Stack[n-1]
	s.st.Stack = s.st.Stack[:n-1]
	s.out.consumed = append(s.out.consumed, e)
	return e, nil
}

func (s *stepper) popN(n int) ([]Entry, error) {
	out := make([]Entry, n)
	for i := 0; i < n; i++ {
		e, err := s.pop()
		if err != nil {
			return nil, err
		}
		out[i] = e
	}
	return out, nil
}

func (s *stepper) push(v lattice.Value) error {
	return pushTo(s.a, s.st, v, s.in.Offset)
}

func pushTo(a *analyzer, st *State, v lattice.Value, src int) error {
	if len(st.Stack) >= a.code.StackSize {
		return fmt.Errorf("%w: stack deeper than %d", ErrTooComplex, a.code.StackSize)
	}
	st.Stack = append(st.Stack, Entry{Value: v, Sources: []int{src}})
	return nil
}

// need checks that n entries are present without consuming them.
func (s *stepper) need(n int) error {
	if len(s.st.Stack) < n {
		return ErrStackUnderflow
	}
	return nil
}

// refine applies profile evidence to the operands of a probe point. Binary
// and compare operands are refined only when both observed types are
// unboxable kinds.
func (a *analyzer) refine(in bc.Instr, st *State) {
	prof := a.opts.Profile
	n := ProbeOperands(in.Op, in.Arg)
	if prof == nil || n == 0 || n > len(st.Stack) {
		return
	}
	if in.Op.IsBinary() || in.Op == bc.COMPARE_OP {
		t0, t1 := prof.Type(in.Offset, 0), prof.Type(in.Offset, 1)
		if t0 == nil || t1 == nil || !lattice.KindOf(t0).Unboxable() || !lattice.KindOf(t1).Unboxable() {
			return
		}
	}
	for slot := 0; slot < n; slot++ {
		t := prof.Type(in.Offset, slot)
		e := &st.Stack[len(st.Stack)-1-slot]
		if t != nil && e.Value.Kind() == lattice.Any {
			e.Value = lattice.Refine(e.Value, t)
		}
	}
}

func (a *analyzer) transfer(pos int, st *State) (*outcome, error) {
	in := a.instrs[pos]
	a.refine(in, st)
	out := &outcome{pre: st.clone()}
	s := &stepper{a: a, in: in, st: st, out: out}
	if err := s.exec(); err != nil {
		return nil, err
	}
	if in.Op.Falls() && !s.dead {
		out.fall = st
		if pos+1 < len(a.instrs) {
			out.succs = append(out.succs, succ{pos + 1, st})
		}
	}
	return out, nil
}

func (s *stepper) jumpWith(st *State) {
	s.out.succs = append(s.out.succs, succ{s.a.index[s.in.Target()], st})
}

func (s *stepper) exec() error {
	in, st := s.in, s.st
	code := s.a.code

	switch op := in.Op; op {
	case bc.NOP:

	case bc.POP_TOP:
		if _, err := s.pop(); err != nil {
			return err
		}

	// Stack shuffles move entries without consuming them.
	case bc.ROT_TWO, bc.ROT_THREE, bc.ROT_FOUR:
		k := map[bc.Opcode]int{bc.ROT_TWO: 2, bc.ROT_THREE: 3, bc.ROT_FOUR: 4}[op]
		if err := s.need(k); err != nil {
			return err
		}
		n := len(st.Stack)
		top := st.Stack[n-1]
		copy(st.Stack[n-k+1:n], st.Stack[n-k:n-1])
		st.Stack[n-k] = top
	case bc.DUP_TOP, bc.DUP_TOP_TWO:
		k := 1
		if op == bc.DUP_TOP_TWO {
			k = 2
		}
		if err := s.need(k); err != nil {
			return err
		}
		if len(st.Stack)+k > code.StackSize {
			return fmt.Errorf("%w: stack deeper than %d", ErrTooComplex, code.StackSize)
		}
		st.Stack = append(st.Stack, st.Stack[len(st.Stack)-k:]...)

	case bc.UNARY_POSITIVE, bc.UNARY_NEGATIVE, bc.UNARY_INVERT, bc.UNARY_NOT:
		e, err := s.pop()
		if err != nil {
			return err
		}
		return s.push(unaryResult(op, e.Value))

	case bc.BINARY_SUBSCR:
		ops, err := s.popN(2)
		if err != nil {
			return err
		}
		return s.push(subscrResult(ops[1].Value, ops[0].Value))
	case bc.STORE_SUBSCR:
		_, err := s.popN(3)
		return err
	case bc.DELETE_SUBSCR:
		_, err := s.popN(2)
		return err

	case bc.GET_ITER:
		if _, err := s.pop(); err != nil {
			return err
		}
		return s.push(lattice.AnyValue)
	case bc.FOR_ITER:
		if _, err := s.pop(); err != nil {
			return err
		}
		s.jumpWith(st.clone())
		if err := s.push(lattice.AnyValue); err != nil {
			return err
		}
		if err := s.push(lattice.AnyValue); err != nil {
			return err
		}

	case bc.LOAD_ASSERTION_ERROR:
		return s.push(lattice.Of(lattice.Type))
	case bc.LIST_TO_TUPLE:
		if _, err := s.pop(); err != nil {
			return err
		}
		return s.push(lattice.Of(lattice.Tuple))
	case bc.RETURN_VALUE:
		_, err := s.pop()
		return err

	case bc.LOAD_NAME, bc.STORE_NAME, bc.DELETE_NAME:
		return ErrUnsupportedOpcode

	case bc.UNPACK_SEQUENCE:
		if _, err := s.pop(); err != nil {
			return err
		}
		for i := 0; i < in.Arg; i++ {
			if err := s.push(lattice.AnyValue); err != nil {
				return err
			}
		}

	case bc.BUILD_TUPLE, bc.BUILD_LIST, bc.BUILD_SET, bc.BUILD_MAP, bc.BUILD_SLICE:
		n, _ := bc.StackEffect(op, in.Arg, false)
		if _, err := s.popN(n); err != nil {
			return err
		}
		kind := map[bc.Opcode]lattice.Kind{
			bc.BUILD_TUPLE: lattice.Tuple,
			bc.BUILD_LIST:  lattice.List,
			bc.BUILD_SET:   lattice.Set,
			bc.BUILD_MAP:   lattice.Dict,
			bc.BUILD_SLICE: lattice.Slice,
		}[op]
		return s.push(lattice.Of(kind))
	case bc.LIST_APPEND, bc.LIST_EXTEND, bc.SET_UPDATE, bc.DICT_UPDATE:
		if _, err := s.pop(); err != nil {
			return err
		}
		if in.Arg < 1 {
			return fmt.Errorf("%w: display operand %d", ErrTooComplex, in.Arg)
		}
		if err := s.need(in.Arg); err != nil {
			return err
		}

	case bc.STORE_GLOBAL:
		_, err := s.pop()
		return err
	case bc.DELETE_GLOBAL:
	case bc.LOAD_GLOBAL:
		if name := code.Names[in.Arg]; incompatibleGlobals[name] {
			return fmt.Errorf("%w: %s", ErrIncompatibleGlobal, name)
		}
		return s.push(lattice.AnyValue)
	case bc.LOAD_CONST:
		return s.push(lattice.Const(code.Consts[in.Arg]))
	case bc.LOAD_FAST:
		v := st.Locals[in.Arg]
		if !v.Defined() {
			// always raises UnboundLocalError
			s.dead = true
			return nil
		}
		st.Defined[in.Arg] = true
		return s.push(v)
	case bc.STORE_FAST:
		e, err := s.pop()
		if err != nil {
			return err
		}
		st.Locals[in.Arg] = e.Value
		st.Defined[in.Arg] = true
	case bc.DELETE_FAST:
		if !st.Locals[in.Arg].Defined() {
			s.dead = true
			return nil
		}
		st.Locals[in.Arg] = lattice.UndefinedValue
		st.Defined[in.Arg] = false

	case bc.COMPARE_OP, bc.IS_OP, bc.CONTAINS_OP:
		if _, err := s.popN(2); err != nil {
			return err
		}
		return s.push(lattice.Of(lattice.Bool))

	case bc.JUMP_FORWARD, bc.JUMP_ABSOLUTE:
		s.jumpWith(st)
		return nil
	case bc.POP_JUMP_IF_FALSE, bc.POP_JUMP_IF_TRUE:
		if _, err := s.pop(); err != nil {
			return err
		}
		s.jumpWith(st.clone())
	case bc.JUMP_IF_FALSE_OR_POP, bc.JUMP_IF_TRUE_OR_POP:
		// The jump edge keeps the tested value; this instruction becomes
		// its producer there.
		e, err := s.pop()
		if err != nil {
			return err
		}
		jump := st.clone()
		if err := pushTo(s.a, jump, e.Value, in.Offset); err != nil {
			return err
		}
		s.jumpWith(jump)

	case bc.RAISE_VARARGS:
		_, err := s.popN(in.Arg)
		return err
	case bc.CALL_FUNCTION:
		if _, err := s.popN(in.Arg + 1); err != nil {
			return err
		}
		return s.push(lattice.AnyValue)
	case bc.MAKE_FUNCTION:
		n, _ := bc.StackEffect(op, in.Arg, false)
		if _, err := s.popN(n); err != nil {
			return err
		}
		return s.push(lattice.Of(lattice.Function))

	default:
		if !op.IsBinary() {
			return ErrUnsupportedOpcode
		}
		ops, err := s.popN(2)
		if err != nil {
			return err
		}
		return s.push(binaryResult(op, ops[1].Value, ops[0].Value))
	}
	return nil
}

// ---------------------------------------------------------------------------
// Result kinds
// ---------------------------------------------------------------------------

func intLike(k lattice.Kind) bool { return k == lattice.Integer || k == lattice.Bool }

func sequence(k lattice.Kind) bool {
	return k == lattice.String || k == lattice.Bytes || k == lattice.List || k == lattice.Tuple
}

// guardResult marks v as guarded when any operand was guarded.
func guardResult(v lattice.Value, guarded bool) lattice.Value {
	if guarded && v.Kind() != lattice.Any {
		return lattice.Guarded(v.Kind())
	}
	return v
}

func unaryResult(op bc.Opcode, v lattice.Value) lattice.Value {
	if op == bc.UNARY_NOT {
		return lattice.Of(lattice.Bool)
	}
	var r lattice.Value
	switch k := v.Kind(); {
	case intLike(k):
		rng := v.Range()
		switch op {
		case bc.UNARY_POSITIVE:
			r = lattice.Int(rng)
		case bc.UNARY_NEGATIVE:
			r = lattice.Int(lattice.NegRange(rng))
		default:
			r = lattice.Int(lattice.SubRange(lattice.NegRange(rng), lattice.Exact(1)))
		}
	case k == lattice.Float && op != bc.UNARY_INVERT:
		r = lattice.Of(lattice.Float)
	default:
		return lattice.AnyValue
	}
	return guardResult(r, v.Guard())
}

func binaryResult(op bc.Opcode, a, b lattice.Value) lattice.Value {
	base := bc.BinaryBase(op)
	ka, kb := a.Kind(), b.Kind()
	var r lattice.Value
	switch {
	case intLike(ka) && intLike(kb):
		ra, rb := a.Range(), b.Range()
		switch base {
		case bc.BINARY_ADD:
			r = lattice.Int(lattice.AddRange(ra, rb))
		case bc.BINARY_SUBTRACT:
			r = lattice.Int(lattice.SubRange(ra, rb))
		case bc.BINARY_MULTIPLY:
			r = lattice.Int(lattice.MulRange(ra, rb))
		case bc.BINARY_FLOOR_DIVIDE:
			r = lattice.Int(lattice.FloorDivRange(ra, rb))
		case bc.BINARY_MODULO:
			r = lattice.Int(lattice.ModRange(ra, rb))
		case bc.BINARY_TRUE_DIVIDE:
			r = lattice.Of(lattice.Float)
		case bc.BINARY_POWER:
			// negative exponents produce floats
			return lattice.AnyValue
		default:
			r = lattice.Of(lattice.Integer)
		}
	case ka.Numeric() && kb.Numeric():
		switch base {
		case bc.BINARY_ADD, bc.BINARY_SUBTRACT, bc.BINARY_MULTIPLY, bc.BINARY_TRUE_DIVIDE,
			bc.BINARY_FLOOR_DIVIDE, bc.BINARY_MODULO, bc.BINARY_POWER:
			r = lattice.Of(lattice.Float)
		default:
			return lattice.AnyValue
		}
	case base == bc.BINARY_ADD && sequence(ka) && ka == kb:
		r = lattice.Of(ka)
	case op == bc.INPLACE_ADD && ka == lattice.List:
		r = lattice.Of(lattice.List)
	case base == bc.BINARY_MULTIPLY && sequence(ka) && intLike(kb):
		r = lattice.Of(ka)
	case base == bc.BINARY_MULTIPLY && intLike(ka) && sequence(kb):
		r = lattice.Of(kb)
	default:
		return lattice.AnyValue
	}
	return guardResult(r, a.Guard() || b.Guard())
}

func subscrResult(container, key lattice.Value) lattice.Value {
	var r lattice.Value
	switch kc, kk := container.Kind(), key.Kind(); {
	case kc == lattice.String && (intLike(kk) || kk == lattice.Slice):
		r = lattice.Of(lattice.String)
	case sequence(kc) && kk == lattice.Slice:
		r = lattice.Of(kc)
	case kc == lattice.Bytes && intLike(kk):
		r = lattice.IntRange(0, 255)
	default:
		return lattice.AnyValue
	}
	return guardResult(r, container.Guard() || key.Guard())
}
