package interval

import (
	"golang.org/x/exp/slices"
)

// Thresholds is a sorted set of candidate stopping points for widening.
// WidenThresholds jumps a growing endpoint to the nearest threshold instead
// of all the way to infinity, trading precision for termination. The set
// implicitly contains both infinities, so a query past the last finite
// threshold still answers.
type Thresholds struct {
	bs []Bound // sorted ascending, finite
}

func NewThresholds(ns ...int64) Thresholds {
	bs := make([]Bound, len(ns))
	for i, n := range ns {
		bs[i] = NewBound(n)
	}
	return NewBoundThresholds(bs)
}

func NewBoundThresholds(bs []Bound) Thresholds {
	out := make([]Bound, 0, len(bs))
	for _, b := range bs {
		if b.IsFinite() {
			out = append(out, b)
		}
	}
	slices.SortFunc(out, Bound.Cmp)
	out = slices.CompactFunc(out, Bound.Equal)
	return Thresholds{bs: out}
}

// GetPrev returns the greatest threshold that is <= b, or -∞ if there is
// none.
func (ts Thresholds) GetPrev(b Bound) Bound {
	idx, found := slices.BinarySearchFunc(ts.bs, b, Bound.Cmp)
	if found {
		return ts.bs[idx]
	}
	if idx == 0 {
		return NInfinity
	}
	return ts.bs[idx-1]
}

// GetNext returns the smallest threshold that is >= b, or ∞ if there is
// none.
func (ts Thresholds) GetNext(b Bound) Bound {
	idx, _ := slices.BinarySearchFunc(ts.bs, b, Bound.Cmp)
	if idx == len(ts.bs) {
		return PInfinity
	}
	return ts.bs[idx]
}
