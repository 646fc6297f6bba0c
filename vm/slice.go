package vm

// Slice is the object built by BUILD_SLICE.
type Slice struct {
	Header
	Start, Stop, Step Object
}

// NewSlice returns a slice object. The bounds are borrowed.
func NewSlice(ts *Thread, start, stop, step Object) *Slice {
	IncRef(start)
	IncRef(stop)
	IncRef(step)
	return &Slice{Header: ts.newHeader(SliceType, SliceType.size), Start: start, Stop: stop, Step: step}
}

func (s *Slice) release() {
	DecRef(s.Start)
	DecRef(s.Stop)
	DecRef(s.Step)
}

func sliceBound(ts *Thread, o Object) (int64, bool, error) {
	if o == None {
		return 0, false, nil
	}
	i, ok := o.(*Int)
	if !ok {
		return 0, false, ts.Raise(TypeErrorType, "slice indices must be integers or None")
	}
	v, fits := i.Int64()
	if !fits {
		if i.Sign() < 0 {
			v = -1 << 62
		} else {
			v = 1 << 62
		}
	}
	return v, true, nil
}

// Indices resolves the slice against a sequence of length n.
func (s *Slice) Indices(ts *Thread, n int) (start, stop, step int, err error) {
	st, hasStep, err := sliceBound(ts, s.Step)
	if err != nil {
		return 0, 0, 0, err
	}
	if !hasStep {
		st = 1
	}
	if st == 0 {
		return 0, 0, 0, ts.Raise(ValueErrorType, "slice step cannot be zero")
	}
	ln := int64(n)
	lower, upper := int64(0), ln
	if st < 0 {
		lower, upper = -1, ln-1
	}
	clamp := func(o Object, def int64) (int64, error) {
		v, ok, err := sliceBound(ts, o)
		if err != nil || !ok {
			return def, err
		}
		if v < 0 {
			v += ln
			if v < lower {
				v = lower
			}
		} else if v > upper {
			v = upper
		}
		return v, nil
	}
	defStart, defStop := lower, upper
	if st < 0 {
		defStart, defStop = upper, lower
	}
	a, err := clamp(s.Start, defStart)
	if err != nil {
		return 0, 0, 0, err
	}
	b, err := clamp(s.Stop, defStop)
	if err != nil {
		return 0, 0, 0, err
	}
	return int(a), int(b), int(st), nil
}

// Range is the object returned by range().
type Range struct {
	Header
	start, stop, step int64
}

// NewRange returns a range object.
func NewRange(ts *Thread, start, stop, step int64) *Range {
	return &Range{Header: ts.newHeader(RangeType, RangeType.size), start: start, stop: stop, step: step}
}

// Len returns the number of values in the range.
func (r *Range) Len() int64 {
	switch {
	case r.step > 0 && r.start < r.stop:
		return (r.stop - r.start + r.step - 1) / r.step
	case r.step < 0 && r.start > r.stop:
		return (r.start - r.stop - r.step - 1) / -r.step
	}
	return 0
}
