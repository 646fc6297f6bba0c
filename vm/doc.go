// Package vm implements the host runtime the JIT plugs into.
//
// This package contains:
//   - Reference-counted objects (int, float, bool, str, bytes, list, tuple,
//     dict, set, frozenset, slice, functions, types, exceptions)
//   - Allocator domains with pluggable, accounting allocators
//   - Code objects with extra slots for per-code JIT state
//   - Frames, threads and a runtime with a replaceable eval-frame hook
//   - The reference bytecode interpreter (EvalFrameDefault)
//
// # Ownership
//
// Every function returning an Object returns a new reference unless its doc
// comment says "borrowed". Arguments are borrowed unless the doc comment says
// the function "steals" them. IncRef and DecRef adjust counts; an object whose
// count drops to zero releases its children and returns its block to the
// allocator it came from. None, True, False, the small integers and the
// builtin types are immortal.
//
// # Exceptions
//
// Raised exceptions travel as Go errors. An *Exception is both an Object and
// an error; ExceptionMatches tests an error against an exception type
// hierarchy.
package vm
