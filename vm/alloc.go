package vm

import "fmt"

// ---------------------------------------------------------------------------
// Allocator domains
// ---------------------------------------------------------------------------

// Domain selects one of the runtime's allocators.
type Domain int

const (
	// DomainRaw backs frames.
	DomainRaw Domain = iota
	// DomainMem backs interpreter value stacks.
	DomainMem
	// DomainObject backs every object block.
	DomainObject

	numDomains
)

func (d Domain) String() string {
	switch d {
	case DomainRaw:
		return "raw"
	case DomainMem:
		return "mem"
	case DomainObject:
		return "object"
	}
	return fmt.Sprintf("Domain(%d)", int(d))
}

// Allocator hands out and takes back blocks. The Go collector owns the
// memory itself; allocators see every block size so they can account for
// and observe allocation patterns.
type Allocator interface {
	Malloc(ts *Thread, size int)
	Free(size int)
}

// AllocStats is a snapshot of a CountingAllocator.
type AllocStats struct {
	Allocs    uint64
	Frees     uint64
	LiveBytes int64
}

// Live returns the number of blocks not yet freed.
func (s AllocStats) Live() int64 {
	return int64(s.Allocs) - int64(s.Frees)
}

// CountingAllocator is the default allocator of every domain.
type CountingAllocator struct {
	stats AllocStats
}

// Malloc records a block of size bytes.
func (a *CountingAllocator) Malloc(ts *Thread, size int) {
	a.stats.Allocs++
	a.stats.LiveBytes += int64(size)
}

// Free records the release of a block of size bytes.
func (a *CountingAllocator) Free(size int) {
	a.stats.Frees++
	a.stats.LiveBytes -= int64(size)
}

// Stats returns the allocator's counters.
func (a *CountingAllocator) Stats() AllocStats {
	return a.stats
}

// SetAllocator replaces the allocator of domain d and returns the previous
// one. Blocks are always freed to the allocator that is installed when the
// free happens, so wrappers must forward Free.
func (rt *Runtime) SetAllocator(d Domain, a Allocator) Allocator {
	prev := rt.allocators[d]
	rt.allocators[d] = a
	return prev
}

// Allocator returns the allocator of domain d.
func (rt *Runtime) Allocator(d Domain) Allocator {
	return rt.allocators[d]
}

// DomainStats returns the counters of the default allocator of domain d.
func (rt *Runtime) DomainStats(d Domain) AllocStats {
	return rt.counting[d].Stats()
}

func (rt *Runtime) malloc(ts *Thread, d Domain, size int) {
	rt.allocators[d].Malloc(ts, size)
}

func (rt *Runtime) free(d Domain, size int) {
	rt.allocators[d].Free(size)
}
