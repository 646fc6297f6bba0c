package vm

import (
	"fmt"
)

// ---------------------------------------------------------------------------
// Object header and reference counting
// ---------------------------------------------------------------------------

// Object is any value managed by the runtime.
type Object interface {
	Type() *Type
	hdr() *Header
}

// Header is embedded by every object. It carries the reference count and
// the accounting needed to return the object's block to its allocator.
type Header struct {
	refs     int
	immortal bool
	typ      *Type
	rt       *Runtime
	size     int
	id       uint64
}

func (h *Header) hdr() *Header { return h }

// Type returns the object's type.
func (h *Header) Type() *Type { return h.typ }

// releaser is implemented by objects that own references to other objects.
type releaser interface {
	release()
}

// IncRef takes a new reference to o.
func IncRef(o Object) {
	h := o.hdr()
	if h.immortal {
		return
	}
	h.refs++
}

// XIncRef is IncRef for possibly nil objects.
func XIncRef(o Object) {
	if o != nil {
		IncRef(o)
	}
}

// DecRef drops a reference to o, deallocating it when the count hits zero.
func DecRef(o Object) {
	h := o.hdr()
	if h.immortal {
		return
	}
	h.refs--
	switch {
	case h.refs == 0:
		if r, ok := o.(releaser); ok {
			r.release()
		}
		if h.rt != nil {
			h.rt.free(DomainObject, h.size)
		}
	case h.refs < 0:
		panic(fmt.Sprintf("vm: negative refcount on %s object", h.typ.Name))
	}
}

// XDecRef is DecRef for possibly nil objects.
func XDecRef(o Object) {
	if o != nil {
		DecRef(o)
	}
}

// RefCount returns the current reference count. Immortal objects report -1.
func RefCount(o Object) int {
	h := o.hdr()
	if h.immortal {
		return -1
	}
	return h.refs
}

// ID returns a stable identity for o, unique within its runtime.
func ID(o Object) uint64 {
	return o.hdr().id
}

// Immortal reports whether o is exempt from reference counting.
func Immortal(o Object) bool {
	return o.hdr().immortal
}

var staticIDs uint64 = 1 << 62

// immortalHeader builds the header of a statically allocated object.
func immortalHeader(t *Type) Header {
	staticIDs++
	return Header{refs: 1, immortal: true, typ: t, id: staticIDs}
}

// newHeader allocates an object block of size bytes from the object domain.
func (ts *Thread) newHeader(t *Type, size int) Header {
	rt := ts.rt
	rt.malloc(ts, DomainObject, size)
	rt.nextID++
	return Header{refs: 1, typ: t, rt: rt, size: size, id: rt.nextID}
}

// ---------------------------------------------------------------------------
// Type objects
// ---------------------------------------------------------------------------

// CallFunc implements calling an object. Arguments are borrowed.
type CallFunc func(ts *Thread, args []Object) (Object, error)

// Type describes a class of objects.
type Type struct {
	Header
	Name     string
	Base     *Type
	Hashable bool

	// size is the block size allocated for instances.
	size int
	// new constructs an instance when the type itself is called.
	new CallFunc
}

// TypeType is the type of types.
var TypeType = &Type{Name: "type", Hashable: true}

func newType(name string, base *Type, size int, hashable bool) *Type {
	t := &Type{Name: name, Base: base, size: size, Hashable: hashable}
	t.Header = immortalHeader(TypeType)
	return t
}

func init() {
	TypeType.Header = immortalHeader(TypeType)
}

// IsSubtype reports whether t is base or derives from it.
func (t *Type) IsSubtype(base *Type) bool {
	for c := t; c != nil; c = c.Base {
		if c == base {
			return true
		}
	}
	return false
}

func (t *Type) String() string {
	return t.Name
}

// Builtin types.
var (
	ObjectType       = newType("object", nil, 16, true)
	NoneType         = newType("NoneType", ObjectType, 16, true)
	IntType          = newType("int", ObjectType, 32, true)
	BoolType         = newType("bool", IntType, 32, true)
	FloatType        = newType("float", ObjectType, 24, true)
	StrType          = newType("str", ObjectType, 48, true)
	BytesType        = newType("bytes", ObjectType, 40, true)
	ListType         = newType("list", ObjectType, 56, false)
	TupleType        = newType("tuple", ObjectType, 40, true)
	DictType         = newType("dict", ObjectType, 64, false)
	SetType          = newType("set", ObjectType, 64, false)
	FrozenSetType    = newType("frozenset", ObjectType, 64, true)
	SliceType        = newType("slice", ObjectType, 56, false)
	RangeType        = newType("range", ObjectType, 48, true)
	FunctionType     = newType("function", ObjectType, 72, true)
	BuiltinType      = newType("builtin_function_or_method", ObjectType, 48, true)
	CodeType         = newType("code", ObjectType, 128, true)
	IteratorType     = newType("iterator", ObjectType, 32, true)
	NotImplementType = newType("NotImplementedType", ObjectType, 16, true)
)

// TypeName returns the name of o's type, for error messages.
func TypeName(o Object) string {
	return o.Type().Name
}
