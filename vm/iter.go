package vm

// ---------------------------------------------------------------------------
// Iteration
// ---------------------------------------------------------------------------

// Iterator walks a container. It holds a reference to the container.
type Iterator struct {
	Header
	src  Object
	pos  int
	keys []Object // snapshot for dicts and sets
}

// GetIter returns an iterator over o.
func GetIter(ts *Thread, o Object) (Object, error) {
	var keys []Object
	switch v := o.(type) {
	case *Iterator:
		IncRef(v)
		return v, nil
	case *List, *Tuple, *StrObject, *BytesObject, *Range:
	case *Dict:
		keys = v.Keys()
	case *Set:
		keys = v.Elements()
	default:
		return nil, ts.Raise(TypeErrorType, "'%s' object is not iterable", TypeName(o))
	}
	IncRef(o)
	for _, k := range keys {
		IncRef(k)
	}
	it := &Iterator{Header: ts.newHeader(IteratorType, IteratorType.size), src: o, keys: keys}
	return it, nil
}

// Next returns the next item, or ok false when the iterator is exhausted.
func (it *Iterator) Next(ts *Thread) (Object, bool) {
	i := it.pos
	switch v := it.src.(type) {
	case *List:
		if i >= len(v.items) {
			return nil, false
		}
		IncRef(v.items[i])
		it.pos++
		return v.items[i], true
	case *Tuple:
		if i >= len(v.items) {
			return nil, false
		}
		IncRef(v.items[i])
		it.pos++
		return v.items[i], true
	case *StrObject:
		if i >= v.Len() {
			return nil, false
		}
		it.pos++
		return NewStr(ts, v.At(i)), true
	case *BytesObject:
		if i >= len(v.b) {
			return nil, false
		}
		it.pos++
		return NewInt(ts, int64(v.b[i])), true
	case *Range:
		if int64(i) >= v.Len() {
			return nil, false
		}
		it.pos++
		return NewInt(ts, v.start+int64(i)*v.step), true
	}
	if it.keys != nil && i < len(it.keys) {
		it.pos++
		IncRef(it.keys[i])
		return it.keys[i], true
	}
	return nil, false
}

func (it *Iterator) release() {
	for _, k := range it.keys {
		DecRef(k)
	}
	it.keys = nil
	XDecRef(it.src)
	it.src = nil
}

// Iterate calls fn with a borrowed reference to each item of o.
func Iterate(ts *Thread, o Object, fn func(Object) error) error {
	if items, ok := SequenceItems(o); ok {
		for _, item := range items {
			if err := fn(item); err != nil {
				return err
			}
		}
		return nil
	}
	itObj, err := GetIter(ts, o)
	if err != nil {
		return err
	}
	defer DecRef(itObj)
	it := itObj.(*Iterator)
	for {
		item, ok := it.Next(ts)
		if !ok {
			return nil
		}
		err := fn(item)
		DecRef(item)
		if err != nil {
			return err
		}
	}
}
