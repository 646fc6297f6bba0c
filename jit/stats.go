package jit

import "sync/atomic"

type counters struct {
	compiles     atomic.Uint64
	recompiles   atomic.Uint64
	failures     atomic.Uint64
	compiledRuns atomic.Uint64
	interpreted  atomic.Uint64
	probeRuns    atomic.Uint64
}

// Stats holds JIT statistics.
type Stats struct {
	Compiles        uint64
	Recompiles      uint64
	Failures        uint64
	CompiledRuns    uint64
	InterpretedRuns uint64
	ProbeRuns       uint64
	AllocRecords    uint64
	Codes           int
}

// Stats returns JIT statistics.
func (j *JIT) Stats() Stats {
	j.mu.RLock()
	n := len(j.codes)
	j.mu.RUnlock()

	return Stats{
		Compiles:        j.stats.compiles.Load(),
		Recompiles:      j.stats.recompiles.Load(),
		Failures:        j.stats.failures.Load(),
		CompiledRuns:    j.stats.compiledRuns.Load(),
		InterpretedRuns: j.stats.interpreted.Load(),
		ProbeRuns:       j.stats.probeRuns.Load(),
		AllocRecords:    j.probe.Records(),
		Codes:           n,
	}
}
