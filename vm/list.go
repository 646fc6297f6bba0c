package vm

// ---------------------------------------------------------------------------
// Lists and tuples
// ---------------------------------------------------------------------------

// List is a mutable sequence.
type List struct {
	Header
	items []Object
}

// NewList returns a list that steals the references in items.
func NewList(ts *Thread, items []Object) *List {
	return &List{Header: ts.newHeader(ListType, ListType.size), items: items}
}

// Items returns the list's items, borrowed.
func (l *List) Items() []Object {
	return l.items
}

// Len returns the number of items.
func (l *List) Len() int {
	return len(l.items)
}

// Append adds o to the end of the list.
func (l *List) Append(o Object) {
	IncRef(o)
	l.items = append(l.items, o)
}

// SetItem replaces the item at normalized index i.
func (l *List) SetItem(i int, o Object) {
	IncRef(o)
	old := l.items[i]
	l.items[i] = o
	DecRef(old)
}

func (l *List) deleteItem(i int) {
	old := l.items[i]
	l.items = append(l.items[:i], l.items[i+1:]...)
	DecRef(old)
}

func (l *List) release() {
	items := l.items
	l.items = nil
	for _, o := range items {
		DecRef(o)
	}
}

// Tuple is an immutable sequence.
type Tuple struct {
	Header
	items []Object
}

// NewTuple returns a tuple that steals the references in items.
func NewTuple(ts *Thread, items []Object) *Tuple {
	return &Tuple{Header: ts.newHeader(TupleType, TupleType.size+8*len(items)), items: items}
}

// NewTupleFrom returns a tuple holding new references to items.
func NewTupleFrom(ts *Thread, items []Object) *Tuple {
	cp := make([]Object, len(items))
	for i, o := range items {
		IncRef(o)
		cp[i] = o
	}
	return NewTuple(ts, cp)
}

// Items returns the tuple's items, borrowed.
func (t *Tuple) Items() []Object {
	return t.items
}

// Len returns the number of items.
func (t *Tuple) Len() int {
	return len(t.items)
}

func (t *Tuple) release() {
	items := t.items
	t.items = nil
	for _, o := range items {
		DecRef(o)
	}
}

// SequenceItems returns the items of a list or tuple, borrowed.
func SequenceItems(o Object) ([]Object, bool) {
	switch s := o.(type) {
	case *List:
		return s.items, true
	case *Tuple:
		return s.items, true
	}
	return nil, false
}

// normalizeIndex resolves a possibly negative index against n.
func normalizeIndex(ts *Thread, idx Object, n int, what string) (int, error) {
	i, ok := idx.(*Int)
	if !ok {
		return 0, ts.Raise(TypeErrorType, "%s indices must be integers or slices, not %s", what, TypeName(idx))
	}
	v, fits := i.Int64()
	if !fits {
		return 0, ts.Raise(IndexErrorType, "cannot fit 'int' into an index-sized integer")
	}
	if v < 0 {
		v += int64(n)
	}
	if v < 0 || v >= int64(n) {
		return 0, ts.Raise(IndexErrorType, "%s index out of range", what)
	}
	return int(v), nil
}

// sliceIndices lists the positions selected by normalized slice bounds.
func sliceIndices(start, stop, step int) []int {
	var idx []int
	if step > 0 {
		for i := start; i < stop; i += step {
			idx = append(idx, i)
		}
	} else {
		for i := start; i > stop; i += step {
			idx = append(idx, i)
		}
	}
	return idx
}
