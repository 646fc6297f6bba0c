package vm

import (
	"errors"
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Exceptions
// ---------------------------------------------------------------------------

// Exception types.
var (
	BaseExceptionType     = newType("BaseException", ObjectType, 56, true)
	ExceptionType         = newType("Exception", BaseExceptionType, 56, true)
	TypeErrorType         = newType("TypeError", ExceptionType, 56, true)
	ValueErrorType        = newType("ValueError", ExceptionType, 56, true)
	ArithmeticErrorType   = newType("ArithmeticError", ExceptionType, 56, true)
	ZeroDivisionErrorType = newType("ZeroDivisionError", ArithmeticErrorType, 56, true)
	OverflowErrorType     = newType("OverflowError", ArithmeticErrorType, 56, true)
	LookupErrorType       = newType("LookupError", ExceptionType, 56, true)
	IndexErrorType        = newType("IndexError", LookupErrorType, 56, true)
	KeyErrorType          = newType("KeyError", LookupErrorType, 56, true)
	NameErrorType         = newType("NameError", ExceptionType, 56, true)
	UnboundLocalErrorType = newType("UnboundLocalError", NameErrorType, 56, true)
	AssertionErrorType    = newType("AssertionError", ExceptionType, 56, true)
	RuntimeErrorType      = newType("RuntimeError", ExceptionType, 56, true)
	RecursionErrorType    = newType("RecursionError", RuntimeErrorType, 56, true)
	StopIterationType     = newType("StopIteration", ExceptionType, 56, true)
	SystemErrorType       = newType("SystemError", ExceptionType, 56, true)
)

var exceptionTypes = []*Type{
	BaseExceptionType, ExceptionType, TypeErrorType, ValueErrorType,
	ArithmeticErrorType, ZeroDivisionErrorType, OverflowErrorType,
	LookupErrorType, IndexErrorType, KeyErrorType, NameErrorType,
	UnboundLocalErrorType, AssertionErrorType, RuntimeErrorType,
	RecursionErrorType, StopIterationType, SystemErrorType,
}

// Exception is a raised (or raisable) exception instance. It implements
// error so it can travel up the Go stack.
type Exception struct {
	Header
	Args []Object
}

// NewException creates an instance of exception type t. args are borrowed.
func NewException(ts *Thread, t *Type, args []Object) *Exception {
	e := &Exception{Header: ts.newHeader(t, t.size+8*len(args))}
	e.Args = make([]Object, len(args))
	for i, a := range args {
		IncRef(a)
		e.Args[i] = a
	}
	return e
}

func (e *Exception) release() {
	for _, a := range e.Args {
		DecRef(a)
	}
	e.Args = nil
}

// Message returns the exception's message text.
func (e *Exception) Message() string {
	switch len(e.Args) {
	case 0:
		return ""
	case 1:
		return Str(e.Args[0])
	}
	return tupleRepr(e.Args)
}

// Error implements error.
func (e *Exception) Error() string {
	if msg := e.Message(); msg != "" {
		return e.typ.Name + ": " + msg
	}
	return e.typ.Name
}

// Raise creates an exception of type t with a formatted message.
func (ts *Thread) Raise(t *Type, format string, args ...any) error {
	msg := NewStr(ts, fmt.Sprintf(format, args...))
	e := NewException(ts, t, []Object{msg})
	DecRef(msg)
	return e
}

// AsException extracts the exception carried by err.
func AsException(err error) (*Exception, bool) {
	var e *Exception
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// ExceptionMatches reports whether err carries an exception of type t or a
// subtype of it.
func ExceptionMatches(err error, t *Type) bool {
	e, ok := AsException(err)
	return ok && e.Type().IsSubtype(t)
}

// ExceptionKind returns the exception type name carried by err, or "".
func ExceptionKind(err error) string {
	if e, ok := AsException(err); ok {
		return e.Type().Name
	}
	return ""
}

// ReleaseError drops the reference held by a raised exception once the
// caller has handled it.
func ReleaseError(err error) {
	if e, ok := AsException(err); ok {
		DecRef(e)
	}
}

func exceptionRepr(e *Exception) string {
	parts := make([]string, len(e.Args))
	for i, a := range e.Args {
		parts[i] = Repr(a)
	}
	return e.typ.Name + "(" + strings.Join(parts, ", ") + ")"
}

// Message constants shared by boxed and unboxed arithmetic.
const (
	MsgIntDivZero      = "integer division or modulo by zero"
	MsgDivZero         = "division by zero"
	MsgFloatDivZero    = "float division by zero"
	MsgFloatDivmodZero = "float divmod()"
	MsgFloatModZero    = "float modulo"
	MsgZeroNegPow      = "0.0 cannot be raised to a negative power"
)
