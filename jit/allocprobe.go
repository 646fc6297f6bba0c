package jit

import (
	"errors"
	"sync/atomic"

	"github.com/chazu/pgjit/jit/profile"
	"github.com/chazu/pgjit/vm"
)

// ErrProbeActive is returned by Init on a probe that is already installed.
var ErrProbeActive = errors.New("allocator probe already installed")

// AllocProbe wraps the object allocator of a runtime and records the block
// sizes allocated while probed code runs. The profile to record into is the
// thread's allocation context, set by the frame shim.
type AllocProbe struct {
	rt      *vm.Runtime
	prev    vm.Allocator
	active  bool
	records atomic.Uint64
}

// NewAllocProbe returns a probe for rt. It does nothing until Init.
func NewAllocProbe(rt *vm.Runtime) *AllocProbe {
	return &AllocProbe{rt: rt}
}

// Init installs the probe in front of the current object allocator.
func (p *AllocProbe) Init() error {
	if p.active {
		return ErrProbeActive
	}
	p.prev = p.rt.SetAllocator(vm.DomainObject, p)
	p.active = true
	return nil
}

// Teardown restores the allocator captured by Init.
func (p *AllocProbe) Teardown() {
	if !p.active {
		return
	}
	p.rt.SetAllocator(vm.DomainObject, p.prev)
	p.active = false
}

// Malloc records size into the thread's profile when that profile is being
// probed, then forwards.
func (p *AllocProbe) Malloc(ts *vm.Thread, size int) {
	if ts != nil {
		if s, ok := ts.AllocContext().(*profile.Store); ok && s.Status() == profile.CompiledWithProbes {
			s.CaptureAllocation(size)
			p.records.Add(1)
		}
	}
	p.prev.Malloc(ts, size)
}

// Free forwards to the wrapped allocator.
func (p *AllocProbe) Free(size int) {
	p.prev.Free(size)
}

// Records returns the number of allocations recorded so far.
func (p *AllocProbe) Records() uint64 {
	return p.records.Load()
}
