package absint

import (
	"github.com/chazu/pgjit/jit/lattice"
	bc "github.com/chazu/pgjit/pkg/bytecode"
)

// ---------------------------------------------------------------------------
// Dataflow edges
// ---------------------------------------------------------------------------

type slotKey struct{ to, slot int }

type dataflow struct {
	producers map[slotKey][]int
	consumers map[int][]slotKey
	arity     map[int]int // operand slots consumed per instruction offset
}

func newDataflow() *dataflow {
	return &dataflow{
		producers: make(map[slotKey][]int),
		consumers: make(map[int][]slotKey),
		arity:     make(map[int]int),
	}
}

func (d *dataflow) add(from, to, slot int) {
	k := slotKey{to, slot}
	d.producers[k] = append(d.producers[k], from)
	d.consumers[from] = append(d.consumers[from], k)
	if slot+1 > d.arity[to] {
		d.arity[to] = slot + 1
	}
}

// inputs returns the producers of each operand slot of the instruction at
// offset off.
func (d *dataflow) inputs(off int) [][]int {
	out := make([][]int, d.arity[off])
	for slot := range out {
		out[slot] = d.producers[slotKey{off, slot}]
	}
	return out
}

// ---------------------------------------------------------------------------
// Escape analysis
// ---------------------------------------------------------------------------

// unboxedArith lists the arithmetic that has a raw machine form.
var unboxedArith = map[bc.Opcode]bool{
	bc.BINARY_MULTIPLY:     true,
	bc.BINARY_MODULO:       true,
	bc.BINARY_ADD:          true,
	bc.BINARY_SUBTRACT:     true,
	bc.BINARY_FLOOR_DIVIDE: true,
	bc.BINARY_TRUE_DIVIDE:  true,
}

// UnboxedArith reports whether op can run on raw operands.
func UnboxedArith(op bc.Opcode) bool {
	return op.IsBinary() && unboxedArith[bc.BinaryBase(op)]
}

// escape assigns the escape flag of every instruction, indexed by position.
func (a *analyzer) escape(res *Result, flow *dataflow) []bool {
	esc := make([]bool, len(a.instrs))
	spec := make([]bool, len(a.instrs))
	locals := a.unboxedLocals(res)
	sites := make(map[int][]int)
	for pos, in := range a.instrs {
		if a.pre[pos] == nil {
			continue
		}
		if in.Op == bc.LOAD_FAST || in.Op == bc.STORE_FAST {
			if _, ok := locals[in.Arg]; ok {
				sites[in.Arg] = append(sites[in.Arg], pos)
			}
		}
		esc[pos] = a.candidate(pos, res, locals)
		spec[pos] = esc[pos] && a.speculative(pos, res)
	}
	escAt := func(off int) bool { return esc[a.index[off]] }

	dropLocal := func(l int) {
		for _, p := range sites[l] {
			esc[p] = false
		}
		delete(locals, l)
	}

	for changed := true; changed; {
		changed = false
		for pos, in := range a.instrs {
			if !esc[pos] || !a.demote(pos, flow, escAt, locals, spec[pos]) {
				continue
			}
			if _, ok := locals[in.Arg]; ok && (in.Op == bc.LOAD_FAST || in.Op == bc.STORE_FAST) {
				dropLocal(in.Arg)
			} else {
				esc[pos] = false
			}
			changed = true
		}
		// A raw local nobody reads or writes raw only adds conversions.
		for l := range locals {
			if !a.localUseful(sites[l], flow, escAt) {
				dropLocal(l)
				changed = true
			}
		}
	}

	for l, k := range locals {
		res.UnboxedLocals[l] = k
	}
	return esc
}

// candidate reports whether an instruction has a raw form and all of its
// operands and results are proven unboxable. With a profile, arithmetic and
// comparisons also accept speculable operands and results; compiled code
// checks them at runtime.
func (a *analyzer) candidate(pos int, res *Result, locals map[int]lattice.Kind) bool {
	in := a.instrs[pos]
	pre, post := res.pre[in.Offset], res.post[in.Offset]
	top := func(i int) lattice.Value { return pre.Top(i).Value }
	result := func() bool { return post != nil && post.Depth() > 0 && post.Top(0).Value.Unboxable() }
	word := func(v lattice.Value) bool {
		return v.Unboxable() || (a.opts.Profile != nil && v.Speculable())
	}

	switch op := in.Op; {
	case op == bc.LOAD_CONST:
		return lattice.Const(a.code.Consts[in.Arg]).Unboxable()
	case op == bc.LOAD_FAST || op == bc.STORE_FAST:
		_, ok := locals[in.Arg]
		return ok
	case op == bc.POP_TOP || op == bc.UNARY_NOT:
		return top(0).Unboxable()
	case op == bc.POP_JUMP_IF_FALSE || op == bc.POP_JUMP_IF_TRUE:
		return top(0).Kind() == lattice.Bool && top(0).Unboxable()
	case op == bc.UNARY_NEGATIVE || op == bc.UNARY_POSITIVE:
		return top(0).Unboxable() && result()
	case op == bc.COMPARE_OP:
		return word(top(0)) && word(top(1))
	case UnboxedArith(op):
		return word(top(0)) && word(top(1)) && post != nil && post.Depth() > 0 && word(post.Top(0).Value)
	}
	return false
}

// speculative reports whether an arithmetic or comparison candidate relies
// on an operand or result that is not proven unboxable.
func (a *analyzer) speculative(pos int, res *Result) bool {
	in := a.instrs[pos]
	if in.Op != bc.COMPARE_OP && !UnboxedArith(in.Op) {
		return false
	}
	pre, post := res.pre[in.Offset], res.post[in.Offset]
	if !pre.Top(0).Value.Unboxable() || !pre.Top(1).Value.Unboxable() {
		return true
	}
	return in.Op != bc.COMPARE_OP && !post.Top(0).Value.Unboxable()
}

// demote reports whether an escaped instruction must fall back to boxed
// operation: an operand slot fed by both raw and boxed producers, a consumer
// whose producers are all boxed, or a producer with no raw inputs whose
// consumers are all boxed. A speculative instruction may unbox all of its
// operands as long as its raw result feeds a raw consumer.
func (a *analyzer) demote(pos int, flow *dataflow, escAt func(int) bool, locals map[int]lattice.Kind, spec bool) bool {
	in := a.instrs[pos]
	_, local := locals[in.Arg]
	local = local && (in.Op == bc.LOAD_FAST || in.Op == bc.STORE_FAST)

	inputs := flow.inputs(in.Offset)
	rawIn := false
	for _, prods := range inputs {
		raw, boxed := 0, 0
		for _, p := range prods {
			if escAt(p) {
				raw++
			} else {
				boxed++
			}
		}
		if raw > 0 && boxed > 0 {
			return true
		}
		rawIn = rawIn || raw > 0
	}
	if len(inputs) > 0 && !rawIn && !local && !spec {
		return true
	}

	if _, push := bc.StackEffect(in.Op, in.Arg, false); push == 0 || rawIn || local {
		return false
	}
	for _, k := range flow.consumers[in.Offset] {
		if escAt(k.to) {
			return false
		}
	}
	return true
}

func (a *analyzer) localUseful(sites []int, flow *dataflow, escAt func(int) bool) bool {
	for _, pos := range sites {
		in := a.instrs[pos]
		switch in.Op {
		case bc.LOAD_FAST:
			for _, k := range flow.consumers[in.Offset] {
				if escAt(k.to) {
					return true
				}
			}
		case bc.STORE_FAST:
			for _, p := range flow.producers[slotKey{in.Offset, 0}] {
				if escAt(p) {
					return true
				}
			}
		}
	}
	return false
}

// unboxedLocals finds the non-argument locals that can live as raw words:
// never deleted, defined at every load and holding one unboxable kind at
// every load and store.
func (a *analyzer) unboxedLocals(res *Result) map[int]lattice.Kind {
	kinds := make(map[int]lattice.Kind)
	bad := make(map[int]bool)
	note := func(l int, v lattice.Value) {
		if k, ok := kinds[l]; !v.Unboxable() || (ok && k != v.Kind()) {
			bad[l] = true
			return
		}
		kinds[l] = v.Kind()
	}
	for pos, in := range a.instrs {
		if a.pre[pos] == nil {
			continue
		}
		pre := res.pre[in.Offset]
		switch in.Op {
		case bc.LOAD_FAST:
			if !pre.Defined[in.Arg] {
				bad[in.Arg] = true
				continue
			}
			note(in.Arg, pre.Locals[in.Arg])
		case bc.STORE_FAST:
			note(in.Arg, pre.Top(0).Value)
		case bc.DELETE_FAST:
			bad[in.Arg] = true
		}
	}
	for l := range kinds {
		if l < a.code.ArgCount || bad[l] {
			delete(kinds, l)
		}
	}
	return kinds
}
