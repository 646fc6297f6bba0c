// Package profile records the runtime evidence gathered by probe
// instrumented code: the first type and value seen at each probe point and
// the sizes of object allocations.
//
// A Store is not safe for concurrent use. Every caller runs on the thread
// that holds the runtime.
package profile

import (
	"errors"
	"fmt"

	"github.com/google/btree"

	"github.com/chazu/pgjit/vm"
)

// Status is the profile-guided compilation stage of a code object.
type Status int32

const (
	Uncompiled Status = iota
	CompiledWithProbes
	Optimized
)

func (s Status) String() string {
	switch s {
	case Uncompiled:
		return "Uncompiled"
	case CompiledWithProbes:
		return "CompiledWithProbes"
	case Optimized:
		return "Optimized"
	}
	return fmt.Sprintf("Status(%d)", int32(s))
}

// ErrStatusRegression is returned when a status change would move backwards.
var ErrStatusRegression = errors.New("profile status cannot regress")

// Entry is the first observation at one operand of one probe point. Slot 0
// is the top of the stack.
type Entry struct {
	Offset int
	Slot   int
	Type   *vm.Type
	Value  vm.Object
}

func entryLess(a, b *Entry) bool {
	if a.Offset != b.Offset {
		return a.Offset < b.Offset
	}
	return a.Slot < b.Slot
}

// Store holds the evidence for one code object. It owns a reference to
// every recorded type and value until Close.
type Store struct {
	entries *btree.BTreeG[*Entry]
	allocs  map[int]int
	status  Status
	closed  bool
}

// New returns an empty store in the Uncompiled state.
func New() *Store {
	return &Store{
		entries: btree.NewG[*Entry](8, entryLess),
		allocs:  make(map[int]int),
	}
}

// Record stores obj as the observation for (offset, slot) unless one is
// already present. It reports whether obj was stored.
func (s *Store) Record(offset, slot int, obj vm.Object) bool {
	if s.closed || obj == nil {
		return false
	}
	probe := &Entry{Offset: offset, Slot: slot}
	if s.entries.Has(probe) {
		return false
	}
	t := obj.Type()
	vm.IncRef(obj)
	vm.IncRef(t)
	probe.Type = t
	probe.Value = obj
	s.entries.ReplaceOrInsert(probe)
	return true
}

func (s *Store) get(offset, slot int) *Entry {
	e, ok := s.entries.Get(&Entry{Offset: offset, Slot: slot})
	if !ok {
		return nil
	}
	return e
}

// Type returns the first type observed at (offset, slot), or nil.
func (s *Store) Type(offset, slot int) *vm.Type {
	if e := s.get(offset, slot); e != nil {
		return e.Type
	}
	return nil
}

// Value returns a borrowed reference to the first value observed at
// (offset, slot), or nil.
func (s *Store) Value(offset, slot int) vm.Object {
	if e := s.get(offset, slot); e != nil {
		return e.Value
	}
	return nil
}

// Len returns the number of recorded observations.
func (s *Store) Len() int {
	return s.entries.Len()
}

// Entries returns the observations ordered by offset, then slot.
func (s *Store) Entries() []Entry {
	out := make([]Entry, 0, s.entries.Len())
	s.entries.Ascend(func(e *Entry) bool {
		out = append(out, *e)
		return true
	})
	return out
}

// CaptureAllocation counts one object allocation of size bytes.
func (s *Store) CaptureAllocation(size int) {
	if s.closed {
		return
	}
	s.allocs[size]++
}

// Allocations returns a copy of the allocation counts keyed by size.
func (s *Store) Allocations() map[int]int {
	out := make(map[int]int, len(s.allocs))
	for size, n := range s.allocs {
		out[size] = n
	}
	return out
}

// Status returns the current stage.
func (s *Store) Status() Status {
	return s.status
}

// SetStatus moves to st. Moving backwards fails.
func (s *Store) SetStatus(st Status) error {
	if st < s.status {
		return fmt.Errorf("%w: %s to %s", ErrStatusRegression, s.status, st)
	}
	s.status = st
	return nil
}

// Advance moves to the next stage. Optimized is final.
func (s *Store) Advance() Status {
	if s.status < Optimized {
		s.status++
	}
	return s.status
}

// Close releases every held reference. Further records are ignored.
func (s *Store) Close() {
	if s.closed {
		return
	}
	s.closed = true
	s.entries.Ascend(func(e *Entry) bool {
		vm.DecRef(e.Value)
		vm.DecRef(e.Type)
		return true
	})
	s.entries.Clear(false)
	s.allocs = make(map[int]int)
}
