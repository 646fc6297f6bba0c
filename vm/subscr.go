package vm

import "strings"

// ---------------------------------------------------------------------------
// Subscripts and membership
// ---------------------------------------------------------------------------

// GetItem evaluates container[key].
func GetItem(ts *Thread, container, key Object) (Object, error) {
	switch c := container.(type) {
	case *List:
		if s, ok := key.(*Slice); ok {
			start, stop, step, err := s.Indices(ts, len(c.items))
			if err != nil {
				return nil, err
			}
			return NewList(ts, pickItems(c.items, start, stop, step)), nil
		}
		i, err := normalizeIndex(ts, key, len(c.items), "list")
		if err != nil {
			return nil, err
		}
		IncRef(c.items[i])
		return c.items[i], nil
	case *Tuple:
		if s, ok := key.(*Slice); ok {
			start, stop, step, err := s.Indices(ts, len(c.items))
			if err != nil {
				return nil, err
			}
			return NewTuple(ts, pickItems(c.items, start, stop, step)), nil
		}
		i, err := normalizeIndex(ts, key, len(c.items), "tuple")
		if err != nil {
			return nil, err
		}
		IncRef(c.items[i])
		return c.items[i], nil
	case *StrObject:
		if s, ok := key.(*Slice); ok {
			start, stop, step, err := s.Indices(ts, c.Len())
			if err != nil {
				return nil, err
			}
			return NewStr(ts, c.Slice(start, stop, step)), nil
		}
		i, err := normalizeIndex(ts, key, c.Len(), "string")
		if err != nil {
			return nil, err
		}
		return NewStr(ts, c.At(i)), nil
	case *BytesObject:
		i, err := normalizeIndex(ts, key, len(c.b), "bytes")
		if err != nil {
			return nil, err
		}
		return NewInt(ts, int64(c.b[i])), nil
	case *Dict:
		v, ok, err := c.GetItem(ts, key)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ts.Raise(KeyErrorType, "%s", Repr(key))
		}
		IncRef(v)
		return v, nil
	case *Range:
		i, err := normalizeIndex(ts, key, int(c.Len()), "range object")
		if err != nil {
			return nil, err
		}
		return NewInt(ts, c.start+int64(i)*c.step), nil
	}
	return nil, ts.Raise(TypeErrorType, "'%s' object is not subscriptable", TypeName(container))
}

func pickItems(items []Object, start, stop, step int) []Object {
	idx := sliceIndices(start, stop, step)
	out := make([]Object, len(idx))
	for n, i := range idx {
		IncRef(items[i])
		out[n] = items[i]
	}
	return out
}

// SetItem evaluates container[key] = value.
func SetItem(ts *Thread, container, key, value Object) error {
	switch c := container.(type) {
	case *List:
		i, err := normalizeIndex(ts, key, len(c.items), "list assignment")
		if err != nil {
			return err
		}
		c.SetItem(i, value)
		return nil
	case *Dict:
		return c.SetItem(ts, key, value)
	}
	return ts.Raise(TypeErrorType, "'%s' object does not support item assignment", TypeName(container))
}

// DelItem evaluates del container[key].
func DelItem(ts *Thread, container, key Object) error {
	switch c := container.(type) {
	case *List:
		i, err := normalizeIndex(ts, key, len(c.items), "list assignment")
		if err != nil {
			return err
		}
		c.deleteItem(i)
		return nil
	case *Dict:
		return c.DelItem(ts, key)
	}
	return ts.Raise(TypeErrorType, "'%s' object does not support item deletion", TypeName(container))
}

// Contains evaluates item in container.
func Contains(ts *Thread, container, item Object) (bool, error) {
	switch c := container.(type) {
	case *List:
		return containsItem(c.items, item), nil
	case *Tuple:
		return containsItem(c.items, item), nil
	case *Dict:
		_, ok, err := c.GetItem(ts, item)
		return ok, err
	case *Set:
		return c.Contains(ts, item)
	case *StrObject:
		sub, ok := item.(*StrObject)
		if !ok {
			return false, ts.Raise(TypeErrorType, "'in <string>' requires string as left operand, not %s", TypeName(item))
		}
		return strings.Contains(c.s, sub.s), nil
	case *Range:
		i, ok := item.(*Int)
		if !ok {
			return false, nil
		}
		v, fits := i.Int64()
		if !fits || c.Len() == 0 {
			return false, nil
		}
		off := v - c.start
		return off%c.step == 0 && off/c.step >= 0 && off/c.step < c.Len(), nil
	}
	return false, ts.Raise(TypeErrorType, "argument of type '%s' is not iterable", TypeName(container))
}

func containsItem(items []Object, item Object) bool {
	for _, o := range items {
		if Equal(o, item) {
			return true
		}
	}
	return false
}

// Len returns len(o).
func Len(ts *Thread, o Object) (int, error) {
	switch v := o.(type) {
	case *List:
		return len(v.items), nil
	case *Tuple:
		return len(v.items), nil
	case *StrObject:
		return v.Len(), nil
	case *BytesObject:
		return len(v.b), nil
	case *Dict:
		return v.t.n, nil
	case *Set:
		return v.t.n, nil
	case *Range:
		return int(v.Len()), nil
	}
	return 0, ts.Raise(TypeErrorType, "object of type '%s' has no len()", TypeName(o))
}
