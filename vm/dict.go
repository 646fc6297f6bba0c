package vm

import "github.com/zeebo/xxh3"

// ---------------------------------------------------------------------------
// Insertion ordered hash table shared by dict and set
// ---------------------------------------------------------------------------

type htEntry struct {
	key   Object // nil once deleted
	value Object
	hash  int64
}

type hashTable struct {
	entries []htEntry
	index   map[int64][]int
	n       int
}

func (t *hashTable) find(key Object, h int64) int {
	for _, i := range t.index[h] {
		e := &t.entries[i]
		if e.key != nil && (e.key == key || Equal(e.key, key)) {
			return i
		}
	}
	return -1
}

// put stores key and value, taking new references to both. It returns
// false when key was already present (only the value is replaced then).
func (t *hashTable) put(key, value Object, h int64) bool {
	if t.index == nil {
		t.index = make(map[int64][]int)
	}
	XIncRef(value)
	if i := t.find(key, h); i >= 0 {
		old := t.entries[i].value
		t.entries[i].value = value
		XDecRef(old)
		return false
	}
	IncRef(key)
	t.entries = append(t.entries, htEntry{key: key, value: value, hash: h})
	t.index[h] = append(t.index[h], len(t.entries)-1)
	t.n++
	return true
}

func (t *hashTable) remove(i int) {
	e := &t.entries[i]
	k, v := e.key, e.value
	e.key, e.value = nil, nil
	t.n--
	DecRef(k)
	XDecRef(v)
}

func (t *hashTable) clear() {
	entries := t.entries
	t.entries, t.index, t.n = nil, nil, 0
	for _, e := range entries {
		if e.key != nil {
			DecRef(e.key)
			XDecRef(e.value)
		}
	}
}

// keys returns the live keys in insertion order, borrowed.
func (t *hashTable) keys() []Object {
	keys := make([]Object, 0, t.n)
	for _, e := range t.entries {
		if e.key != nil {
			keys = append(keys, e.key)
		}
	}
	return keys
}

// ---------------------------------------------------------------------------
// Dict
// ---------------------------------------------------------------------------

// Dict is a mutable mapping that preserves insertion order.
type Dict struct {
	Header
	t hashTable
}

// NewDict returns an empty dict.
func NewDict(ts *Thread) *Dict {
	return &Dict{Header: ts.newHeader(DictType, DictType.size)}
}

// Len returns the number of entries.
func (d *Dict) Len() int {
	return d.t.n
}

// SetItem stores value under key.
func (d *Dict) SetItem(ts *Thread, key, value Object) error {
	h, err := Hash(ts, key)
	if err != nil {
		return err
	}
	d.t.put(key, value, h)
	return nil
}

// GetItem returns the value stored under key, borrowed.
func (d *Dict) GetItem(ts *Thread, key Object) (Object, bool, error) {
	h, err := Hash(ts, key)
	if err != nil {
		return nil, false, err
	}
	if i := d.t.find(key, h); i >= 0 {
		return d.t.entries[i].value, true, nil
	}
	return nil, false, nil
}

// DelItem removes key, raising KeyError when it is absent.
func (d *Dict) DelItem(ts *Thread, key Object) error {
	h, err := Hash(ts, key)
	if err != nil {
		return err
	}
	i := d.t.find(key, h)
	if i < 0 {
		return ts.Raise(KeyErrorType, "%s", Repr(key))
	}
	d.t.remove(i)
	return nil
}

// GetStr looks up a string key, borrowed. It returns nil when absent.
func (d *Dict) GetStr(name string) Object {
	h := int64(xxh3.HashString(name))
	for _, i := range d.t.index[h] {
		e := &d.t.entries[i]
		if s, ok := e.key.(*StrObject); ok && s.s == name {
			return e.value
		}
	}
	return nil
}

// SetStr stores value under a string key.
func (d *Dict) SetStr(ts *Thread, name string, value Object) {
	key := NewStr(ts, name)
	d.t.put(key, value, int64(xxh3.HashString(name)))
	DecRef(key)
}

// DelStr removes a string key and reports whether it was present.
func (d *Dict) DelStr(name string) bool {
	h := int64(xxh3.HashString(name))
	for _, i := range d.t.index[h] {
		if s, ok := d.t.entries[i].key.(*StrObject); ok && s.s == name {
			d.t.remove(i)
			return true
		}
	}
	return false
}

// Keys returns the keys in insertion order, borrowed.
func (d *Dict) Keys() []Object {
	return d.t.keys()
}

// Range calls fn for each entry in insertion order until it returns false.
func (d *Dict) Range(fn func(key, value Object) bool) {
	for _, e := range d.t.entries {
		if e.key != nil && !fn(e.key, e.value) {
			return
		}
	}
}

func (d *Dict) release() {
	d.t.clear()
}

// Update merges other into d.
func (d *Dict) Update(ts *Thread, other Object) error {
	src, ok := other.(*Dict)
	if !ok {
		return ts.Raise(TypeErrorType, "'%s' object is not a mapping", TypeName(other))
	}
	for _, e := range src.t.entries {
		if e.key != nil {
			d.t.put(e.key, e.value, e.hash)
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Set and frozenset
// ---------------------------------------------------------------------------

// Set is a mutable or frozen set.
type Set struct {
	Header
	t      hashTable
	frozen bool
}

// NewSet returns an empty set, or an empty frozenset when frozen is true.
func NewSet(ts *Thread, frozen bool) *Set {
	t := SetType
	if frozen {
		t = FrozenSetType
	}
	return &Set{Header: ts.newHeader(t, t.size), frozen: frozen}
}

// Len returns the number of elements.
func (s *Set) Len() int {
	return s.t.n
}

// Add inserts key.
func (s *Set) Add(ts *Thread, key Object) error {
	h, err := Hash(ts, key)
	if err != nil {
		return err
	}
	s.t.put(key, nil, h)
	return nil
}

// Contains reports whether key is an element.
func (s *Set) Contains(ts *Thread, key Object) (bool, error) {
	h, err := Hash(ts, key)
	if err != nil {
		return false, err
	}
	return s.t.find(key, h) >= 0, nil
}

// Elements returns the elements in insertion order, borrowed.
func (s *Set) Elements() []Object {
	return s.t.keys()
}

func (s *Set) release() {
	s.t.clear()
}

// Update adds every element produced by iterating other.
func (s *Set) Update(ts *Thread, other Object) error {
	return Iterate(ts, other, func(o Object) error {
		return s.Add(ts, o)
	})
}
