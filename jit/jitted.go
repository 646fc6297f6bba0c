package jit

import (
	"errors"

	"github.com/chazu/pgjit/jit/emit"
	"github.com/chazu/pgjit/jit/profile"
	"github.com/chazu/pgjit/vm"
)

// ErrNotCompiled is returned by DumpIL for code without an installed
// program.
var ErrNotCompiled = errors.New("code is not compiled")

// JittedCode is the compilation state of one code object. It lives in the
// code object's extra slot and owns the profile store, which is closed when
// the code object is deallocated.
type JittedCode struct {
	Entry      emit.Entry
	EntryPoint uintptr
	NativeSize int
	IL         []byte

	// Failed is set when compilation was abandoned; the code is interpreted
	// from then on and Reason holds the cause.
	Failed bool
	Reason error

	Profile   *profile.Store
	RunCount  uint64
	ProbeRuns int
	// Stage is the status the installed program was compiled for.
	Stage profile.Status
	// Graph is the Graphviz dump of the last compile when the graph option
	// is set.
	Graph string

	name     string
	argTypes []*vm.Type
}

func newJittedCode(code *vm.Code) *JittedCode {
	return &JittedCode{Profile: profile.New(), name: code.Name}
}

// Status returns the profile-guided compilation status.
func (jc *JittedCode) Status() profile.Status {
	return jc.Profile.Status()
}

// Compiled reports whether a program is installed.
func (jc *JittedCode) Compiled() bool {
	return jc.Entry != nil
}

// Info is a snapshot of a code object's compilation state.
type Info struct {
	Name       string
	Failed     bool
	Compiled   bool
	Status     profile.Status
	RunCount   uint64
	IL         []byte
	NativeSize int
	EntryPoint uintptr
	Reason     error
	Graph      string
}

func (jc *JittedCode) info() Info {
	return Info{
		Name:       jc.name,
		Failed:     jc.Failed,
		Compiled:   jc.Compiled(),
		Status:     jc.Status(),
		RunCount:   jc.RunCount,
		IL:         jc.IL,
		NativeSize: jc.NativeSize,
		EntryPoint: jc.EntryPoint,
		Reason:     jc.Reason,
		Graph:      jc.Graph,
	}
}

// Info returns the compilation state of code. Code the JIT has not seen
// yet reports Uncompiled.
func (j *JIT) Info(code *vm.Code) Info {
	if jc := j.lookup(code); jc != nil {
		return jc.info()
	}
	return Info{Name: code.Name, Status: profile.Uncompiled}
}

// DumpIL returns a listing of the IL of code's installed program.
func (j *JIT) DumpIL(code *vm.Code) (string, error) {
	jc := j.lookup(code)
	if jc == nil || jc.Failed || !jc.Compiled() {
		return "", ErrNotCompiled
	}
	il, err := emit.DecodeIL(jc.IL)
	if err != nil {
		return "", err
	}
	return il.String(), nil
}
