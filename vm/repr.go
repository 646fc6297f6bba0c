package vm

import (
	"fmt"
	"strconv"
	"strings"
)

// Repr returns the printable representation of o.
func Repr(o Object) string {
	switch v := o.(type) {
	case *NoneObject:
		return "None"
	case *Int:
		if IsBool(v) {
			if v.v != 0 {
				return "True"
			}
			return "False"
		}
		return v.String()
	case *Float:
		return FormatFloat(v.v)
	case *StrObject:
		return quoteStr(v.s)
	case *BytesObject:
		return "b" + quoteStr(string(v.b))
	case *List:
		return "[" + joinRepr(v.items) + "]"
	case *Tuple:
		return tupleRepr(v.items)
	case *Set:
		if v.t.n == 0 {
			if v.frozen {
				return "frozenset()"
			}
			return "set()"
		}
		s := "{" + joinRepr(v.t.keys()) + "}"
		if v.frozen {
			return "frozenset(" + s + ")"
		}
		return s
	case *Dict:
		parts := make([]string, 0, v.t.n)
		v.Range(func(k, val Object) bool {
			parts = append(parts, Repr(k)+": "+Repr(val))
			return true
		})
		return "{" + strings.Join(parts, ", ") + "}"
	case *Slice:
		return fmt.Sprintf("slice(%s, %s, %s)", Repr(v.Start), Repr(v.Stop), Repr(v.Step))
	case *Range:
		if v.step == 1 {
			return fmt.Sprintf("range(%d, %d)", v.start, v.stop)
		}
		return fmt.Sprintf("range(%d, %d, %d)", v.start, v.stop, v.step)
	case *Type:
		return "<class '" + v.Name + "'>"
	case *Function:
		return "<function " + v.Name + ">"
	case *Builtin:
		return "<built-in function " + v.Name + ">"
	case *Code:
		return "<code object " + v.Name + ">"
	case *Exception:
		return exceptionRepr(v)
	}
	return fmt.Sprintf("<%s object>", TypeName(o))
}

// Str returns the str() form of o.
func Str(o Object) string {
	if s, ok := o.(*StrObject); ok {
		return s.s
	}
	if e, ok := o.(*Exception); ok {
		return e.Message()
	}
	return Repr(o)
}

func joinRepr(items []Object) string {
	parts := make([]string, len(items))
	for i, o := range items {
		parts[i] = Repr(o)
	}
	return strings.Join(parts, ", ")
}

func tupleRepr(items []Object) string {
	if len(items) == 1 {
		return "(" + Repr(items[0]) + ",)"
	}
	return "(" + joinRepr(items) + ")"
}

func quoteStr(s string) string {
	q := strconv.Quote(s)
	if !strings.Contains(s, "'") {
		q = "'" + strings.ReplaceAll(q[1:len(q)-1], `\"`, `"`) + "'"
	}
	return q
}
