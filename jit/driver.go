package jit

import (
	"context"
	"time"

	"github.com/chazu/pgjit/jit/absint"
	"github.com/chazu/pgjit/jit/emit"
	"github.com/chazu/pgjit/jit/journal"
	"github.com/chazu/pgjit/jit/profile"
	"github.com/chazu/pgjit/vm"
)

// ---------------------------------------------------------------------------
// Compilation driver
// ---------------------------------------------------------------------------

// prepare makes sure the program matching jc's status is installed.
// Uncompiled code is compiled with probes; code whose probing finished is
// recompiled once without them.
func (j *JIT) prepare(f *vm.Frame, jc *JittedCode) error {
	switch jc.Status() {
	case profile.Uncompiled:
		jc.argTypes = argTypes(f)
		if err := j.compile(f.Code, jc, profile.CompiledWithProbes); err != nil {
			return err
		}
		return jc.Profile.SetStatus(profile.CompiledWithProbes)
	case profile.Optimized:
		if jc.Stage != profile.Optimized {
			return j.compile(f.Code, jc, profile.Optimized)
		}
	}
	return nil
}

// execute runs jc's program on f. entry is the status the call started
// with: the run that compiled the probed program records evidence but only
// calls entered as CompiledWithProbes count toward the configured probe runs.
func (j *JIT) execute(ts *vm.Thread, f *vm.Frame, jc *JittedCode, entry profile.Status) (vm.Object, error) {
	j.stats.compiledRuns.Add(1)
	if jc.Stage != profile.CompiledWithProbes {
		return jc.Entry(ts, f, nil)
	}
	res, err := jc.Entry(ts, f, jc.Profile)
	if entry == profile.CompiledWithProbes {
		jc.ProbeRuns++
		j.stats.probeRuns.Add(1)
		if jc.ProbeRuns >= j.opts.ProbeRuns {
			jc.Profile.Advance()
		}
	}
	return res, err
}

// compile analyses and emits code for stage and installs the program.
func (j *JIT) compile(code *vm.Code, jc *JittedCode, stage profile.Status) error {
	start := time.Now()
	probed := stage == profile.CompiledWithProbes
	if err := emit.CheckSize(code, j.opts.CodeObjectSizeLimit); err != nil {
		return err
	}
	aopts := absint.Options{
		Args:     jc.argTypes,
		MaxSteps: j.opts.MaxSteps,
		Probes:   probed || j.opts.Debug,
	}
	if !probed {
		aopts.Profile = jc.Profile
	}
	res, err := absint.Interpret(code, aopts)
	if err != nil {
		return err
	}
	art, err := emit.Compile(code, res, emit.Options{
		Probes:    probed,
		Tracing:   j.opts.Tracing,
		SizeLimit: j.opts.CodeObjectSizeLimit,
	})
	if err != nil {
		return err
	}

	recompile := jc.Compiled()
	jc.Entry = art.Entry
	jc.EntryPoint = art.EntryPoint
	jc.NativeSize = art.NativeSize
	jc.IL = art.IL
	jc.Stage = stage
	if j.opts.Graph {
		jc.Graph = res.Graph.Dot(code.Name)
	}

	j.stats.compiles.Add(1)
	if recompile {
		j.stats.recompiles.Add(1)
	}
	j.logf("compiled %s for %s: %d instructions, %d bytes, %d locals unboxed in %s",
		code.Name, stage, len(res.Instrs), art.NativeSize, len(res.UnboxedLocals), time.Since(start))
	j.record(code, jc, stage, nil)
	return nil
}

// fail abandons compilation of code for good.
func (j *JIT) fail(code *vm.Code, jc *JittedCode, err error) {
	jc.Failed = true
	jc.Reason = err
	jc.Entry = nil
	j.stats.failures.Add(1)
	j.logf("not compiling %s: %v", code.Name, err)
	j.record(code, jc, jc.Status(), err)
}

func (j *JIT) logf(format string, args ...any) {
	if j.opts.LogCompilation {
		log.Infof(format, args...)
	} else {
		log.Debugf(format, args...)
	}
}

func (j *JIT) record(code *vm.Code, jc *JittedCode, stage profile.Status, reason error) {
	if j.opts.Recorder == nil {
		return
	}
	e := journal.Entry{
		Session:     j.session,
		Code:        code.Name,
		Fingerprint: journal.Fingerprint(code.Bytecode),
		Stage:       stage.String(),
		Outcome:     journal.Compiled,
	}
	if reason != nil {
		e.Outcome = journal.Failed
		e.Reason = reason.Error()
	} else {
		e.NativeSize = jc.NativeSize
		e.IL = jc.IL
	}
	if err := j.opts.Recorder.Record(context.Background(), e); err != nil {
		log.Warningf("journal record for %s: %s", code.Name, err)
	}
}

// argTypes returns the types of f's bound arguments, nil where unbound.
func argTypes(f *vm.Frame) []*vm.Type {
	out := make([]*vm.Type, f.Code.ArgCount)
	for i := range out {
		if v := f.Locals[i]; v != nil {
			out[i] = v.Type()
		}
	}
	return out
}
