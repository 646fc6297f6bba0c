// Package jit installs profile-guided compilation into a runtime. It
// replaces the runtime's frame evaluator with a shim that compiles each code
// object with probes, runs the probed program to gather evidence, and then
// recompiles it once with that evidence.
package jit

import (
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"

	"github.com/chazu/pgjit/vm"
)

var log = commonlog.GetLogger("pgjit.jit")

// ErrNotInstalled is returned by Uninstall on a JIT that is not installed.
var ErrNotInstalled = errors.New("jit is not installed")

// JIT is profile-guided compilation installed into one runtime.
type JIT struct {
	rt      *vm.Runtime
	opts    Options
	session string
	extra   int
	probe   *AllocProbe
	prev    vm.EvalFrameFunc

	mu        sync.RWMutex
	installed bool
	codes     map[*vm.Code]*JittedCode

	stats counters
}

// Install replaces rt's frame evaluator with the JIT and starts the
// allocator probe.
func Install(rt *vm.Runtime, opts Options) (*JIT, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	j := &JIT{
		rt:      rt,
		opts:    opts,
		session: uuid.NewString(),
		probe:   NewAllocProbe(rt),
		codes:   make(map[*vm.Code]*JittedCode),
	}
	if err := j.probe.Init(); err != nil {
		return nil, err
	}
	j.extra = rt.RequestCodeExtraIndex(j.free)
	j.prev = rt.SetEvalFrame(j.evalFrame)
	j.installed = true
	log.Infof("installed, session %s", j.session)
	return j, nil
}

// Uninstall restores the previous frame evaluator and allocator. Compiled
// state stays attached to code objects but is no longer used.
func (j *JIT) Uninstall() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !j.installed {
		return ErrNotInstalled
	}
	j.rt.SetEvalFrame(j.prev)
	j.probe.Teardown()
	j.installed = false
	log.Infof("uninstalled, session %s", j.session)
	return nil
}

// Session identifies this installation in the compile journal.
func (j *JIT) Session() string {
	return j.session
}

// Options returns the options the JIT was installed with.
func (j *JIT) Options() Options {
	return j.opts
}

// evalFrame is the runtime's frame evaluator while the JIT is installed.
// Frames resumed with a pending exception and code that failed to compile
// run in the interpreter.
func (j *JIT) evalFrame(ts *vm.Thread, f *vm.Frame, throwflag bool) (vm.Object, error) {
	if throwflag {
		return vm.EvalFrameDefault(ts, f, throwflag)
	}
	jc := j.ensure(f.Code)
	prev := ts.SetAllocContext(jc.Profile)
	defer ts.SetAllocContext(prev)

	jc.RunCount++
	if jc.Failed || jc.RunCount <= uint64(j.opts.SpecializationThreshold) {
		j.stats.interpreted.Add(1)
		return vm.EvalFrameDefault(ts, f, false)
	}
	entry := jc.Status()
	if err := j.prepare(f, jc); err != nil {
		j.fail(f.Code, jc, err)
		j.stats.interpreted.Add(1)
		return vm.EvalFrameDefault(ts, f, false)
	}
	return j.execute(ts, f, jc, entry)
}

func (j *JIT) lookup(code *vm.Code) *JittedCode {
	jc, _ := code.Extra(j.extra).(*JittedCode)
	return jc
}

// ensure returns code's JittedCode, creating it on first sight.
func (j *JIT) ensure(code *vm.Code) *JittedCode {
	if jc := j.lookup(code); jc != nil {
		return jc
	}
	jc := newJittedCode(code)
	code.SetExtra(j.extra, jc)
	j.mu.Lock()
	j.codes[code] = jc
	j.mu.Unlock()
	return jc
}

// free runs when a code object holding a JittedCode is deallocated.
func (j *JIT) free(v any) {
	jc, ok := v.(*JittedCode)
	if !ok {
		return
	}
	jc.Profile.Close()
	j.mu.Lock()
	for code, c := range j.codes {
		if c == jc {
			delete(j.codes, code)
		}
	}
	j.mu.Unlock()
}

// Codes returns the state of every live code object the JIT has seen,
// ordered by name.
func (j *JIT) Codes() []Info {
	j.mu.RLock()
	out := make([]Info, 0, len(j.codes))
	for _, jc := range j.codes {
		out = append(out, jc.info())
	}
	j.mu.RUnlock()
	sort.SliceStable(out, func(a, b int) bool { return out[a].Name < out[b].Name })
	return out
}
