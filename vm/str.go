package vm

import (
	"unicode/utf8"
)

// StrObject is an immutable text string.
type StrObject struct {
	Header
	s     string
	runes []rune // lazily built for non-ASCII indexing
}

// NewStr returns a str object.
func NewStr(ts *Thread, s string) *StrObject {
	return &StrObject{Header: ts.newHeader(StrType, StrType.size+len(s)), s: s}
}

// Value returns the Go string.
func (s *StrObject) Value() string {
	return s.s
}

// Len returns the number of code points.
func (s *StrObject) Len() int {
	return utf8.RuneCountInString(s.s)
}

func (s *StrObject) ascii() bool {
	return len(s.s) == s.Len()
}

// At returns the code point at index i (already normalized).
func (s *StrObject) At(i int) string {
	if s.ascii() {
		return s.s[i : i+1]
	}
	if s.runes == nil {
		s.runes = []rune(s.s)
	}
	return string(s.runes[i])
}

// Slice returns the substring for normalized slice bounds.
func (s *StrObject) Slice(start, stop, step int) string {
	var rs []rune
	if s.ascii() && step == 1 {
		if start >= stop {
			return ""
		}
		return s.s[start:stop]
	}
	if s.runes == nil {
		s.runes = []rune(s.s)
	}
	for _, i := range sliceIndices(start, stop, step) {
		rs = append(rs, s.runes[i])
	}
	return string(rs)
}

// BytesObject is an immutable byte string.
type BytesObject struct {
	Header
	b []byte
}

// NewBytes returns a bytes object holding a copy of b.
func NewBytes(ts *Thread, b []byte) *BytesObject {
	cp := make([]byte, len(b))
	copy(cp, b)
	return &BytesObject{Header: ts.newHeader(BytesType, BytesType.size+len(b)), b: cp}
}

// Value returns the bytes. The result must not be modified.
func (b *BytesObject) Value() []byte {
	return b.b
}

// AsString returns the Go string of a str object.
func AsString(o Object) (string, bool) {
	s, ok := o.(*StrObject)
	if !ok {
		return "", false
	}
	return s.s, true
}
