package vm

import (
	"math"
	"math/big"

	"github.com/zeebo/xxh3"
)

// Hash returns the hash of o, raising TypeError for unhashable objects.
// Numbers that compare equal hash equal regardless of type.
func Hash(ts *Thread, o Object) (int64, error) {
	switch v := o.(type) {
	case *Int:
		return hashInt(v), nil
	case *Float:
		return hashFloat(v.v), nil
	case *StrObject:
		return int64(xxh3.HashString(v.s)), nil
	case *BytesObject:
		return int64(xxh3.Hash(v.b)), nil
	case *NoneObject:
		return 0x5eed, nil
	case *Tuple:
		h := int64(0x345678)
		for _, it := range v.items {
			ih, err := Hash(ts, it)
			if err != nil {
				return 0, err
			}
			h = (h ^ ih) * 1000003
		}
		return h, nil
	case *Set:
		if !v.frozen {
			break
		}
		var h int64
		for _, e := range v.t.entries {
			if e.key != nil {
				h += e.hash * 0x9e3779b9
			}
		}
		return h, nil
	}
	if !o.Type().Hashable {
		return 0, ts.Raise(TypeErrorType, "unhashable type: '%s'", TypeName(o))
	}
	return int64(ID(o)), nil
}

func hashInt(i *Int) int64 {
	if v, ok := i.Int64(); ok {
		return v
	}
	return hashBig(i.b)
}

func hashBig(b *big.Int) int64 {
	var h uint64 = 0xcbf29ce484222325
	for _, w := range b.Bits() {
		h = (h ^ uint64(w)) * 0x100000001b3
	}
	if b.Sign() < 0 {
		h = ^h
	}
	return int64(h)
}

func hashFloat(f float64) int64 {
	if f == math.Trunc(f) && !math.IsInf(f, 0) {
		if f >= math.MinInt64 && f < math.MaxInt64 {
			return int64(f)
		}
		b, _ := big.NewFloat(f).Int(nil)
		return hashBig(b)
	}
	return int64(math.Float64bits(f))
}
