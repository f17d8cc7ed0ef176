// Package interval implements the numeric substrate of the verifier: bounds
// on the extended integer line and closed intervals over them, together with
// the lattice operations and the widening and narrowing operators that the
// fixpoint engine needs to terminate on loops.
//
// Bounds and intervals are immutable value types. All operations return new
// values and never mutate their receivers or operands.
package interval

import (
	"fmt"
	"math/big"
)

// Interval is a closed range [lb, ub] of bounds. The empty interval (bottom)
// is canonically [0, -1]; every constructor normalizes lb > ub to it. The
// zero value is not a valid Interval; use one of the constructors.
type Interval struct {
	lb, ub Bound
}

func Top() Interval    { return Interval{NInfinity, PInfinity} }
func Bottom() Interval { return Interval{NewBound(0), NewBound(-1)} }

func New(lb, ub Bound) Interval {
	if lb.Cmp(ub) > 0 {
		return Bottom()
	}
	return Interval{lb, ub}
}

// Point returns the singleton interval [b, b]. An infinite bound alone
// describes no integer, so Point of an infinity is bottom.
func Point(b Bound) Interval {
	if b.IsInfinite() {
		return Bottom()
	}
	return Interval{b, b}
}

func Of(n int64) Interval { return Point(NewBound(n)) }

func OfBig(n *big.Int) Interval { return Point(NewBigBound(n)) }

func (i Interval) Lb() Bound { return i.lb }
func (i Interval) Ub() Bound { return i.ub }

func (i Interval) IsBottom() bool { return i.lb.Cmp(i.ub) > 0 }
func (i Interval) IsTop() bool    { return i.lb.IsInfinite() && i.ub.IsInfinite() }

func (i Interval) LowerHalfLine() Interval { return New(NInfinity, i.ub) }
func (i Interval) UpperHalfLine() Interval { return New(i.lb, PInfinity) }

func (i Interval) Equal(o Interval) bool {
	if i.IsBottom() {
		return o.IsBottom()
	}
	return i.lb.Equal(o.lb) && i.ub.Equal(o.ub)
}

// Leq reports whether i is included in o.
func (i Interval) Leq(o Interval) bool {
	if i.IsBottom() {
		return true
	}
	if o.IsBottom() {
		return false
	}
	return o.lb.Cmp(i.lb) <= 0 && i.ub.Cmp(o.ub) <= 0
}

// Join returns the least upper bound of i and o.
func (i Interval) Join(o Interval) Interval {
	if i.IsBottom() {
		return o
	}
	if o.IsBottom() {
		return i
	}
	return Interval{MinBound(i.lb, o.lb), MaxBound(i.ub, o.ub)}
}

// Meet returns the greatest lower bound of i and o.
func (i Interval) Meet(o Interval) Interval {
	if i.IsBottom() || o.IsBottom() {
		return Bottom()
	}
	return New(MaxBound(i.lb, o.lb), MinBound(i.ub, o.ub))
}

// Widen extrapolates the change from i to o: any endpoint that grew jumps
// straight to the corresponding infinity, so that ascending chains stabilize
// after at most one widening step per endpoint.
func (i Interval) Widen(o Interval) Interval {
	if i.IsBottom() {
		return o
	}
	if o.IsBottom() {
		return i
	}
	lb := i.lb
	if o.lb.Cmp(i.lb) < 0 {
		lb = NInfinity
	}
	ub := i.ub
	if i.ub.Cmp(o.ub) < 0 {
		ub = PInfinity
	}
	return Interval{lb, ub}
}

// WidenThresholds is Widen, except that a growing endpoint jumps to the
// nearest enclosing threshold in ts instead of to infinity.
func (i Interval) WidenThresholds(o Interval, ts Thresholds) Interval {
	if i.IsBottom() {
		return o
	}
	if o.IsBottom() {
		return i
	}
	lb := i.lb
	if o.lb.Cmp(i.lb) < 0 {
		lb = ts.GetPrev(o.lb)
	}
	ub := i.ub
	if i.ub.Cmp(o.ub) < 0 {
		ub = ts.GetNext(o.ub)
	}
	return New(lb, ub)
}

// Narrow refines i after widening by reclaiming finite endpoints from o.
func (i Interval) Narrow(o Interval) Interval {
	if i.IsBottom() || o.IsBottom() {
		return Bottom()
	}
	lb := i.lb
	if i.lb.IsInfinite() && o.lb.IsFinite() {
		lb = o.lb
	}
	ub := i.ub
	if i.ub.IsInfinite() && o.ub.IsFinite() {
		ub = o.ub
	}
	return New(lb, ub)
}

func (i Interval) Neg() Interval {
	if i.IsBottom() {
		return Bottom()
	}
	return Interval{i.ub.Neg(), i.lb.Neg()}
}

func (i Interval) Add(o Interval) Interval {
	if i.IsBottom() || o.IsBottom() {
		return Bottom()
	}
	return Interval{i.lb.Add(o.lb), i.ub.Add(o.ub)}
}

func (i Interval) Sub(o Interval) Interval {
	if i.IsBottom() || o.IsBottom() {
		return Bottom()
	}
	return Interval{i.lb.Sub(o.ub), i.ub.Sub(o.lb)}
}

func (i Interval) Mul(o Interval) Interval {
	if i.IsBottom() || o.IsBottom() {
		return Bottom()
	}
	ll := i.lb.Mul(o.lb)
	lu := i.lb.Mul(o.ub)
	ul := i.ub.Mul(o.lb)
	uu := i.ub.Mul(o.ub)
	return Interval{MinBound(ll, lu, ul, uu), MaxBound(ll, lu, ul, uu)}
}

// Div implements signed truncated division. A divisor spanning zero is split
// into its negative and positive parts and the quotients rejoined; division
// by exactly [0, 0] yields top rather than raising, leaving the reaction to
// the client's transfer function.
func (i Interval) Div(o Interval) Interval {
	if i.IsBottom() || o.IsBottom() {
		return Bottom()
	}
	if n, ok := o.Singleton(); ok && n.Sign() == 0 {
		return Top()
	}
	if o.Contains(big.NewInt(0)) {
		neg := o.Meet(New(NInfinity, NewBound(-1)))
		pos := o.Meet(New(NewBound(1), PInfinity))
		return i.Div(neg).Join(i.Div(pos))
	}
	ll := i.lb.Div(o.lb)
	lu := i.lb.Div(o.ub)
	ul := i.ub.Div(o.lb)
	uu := i.ub.Div(o.ub)
	return Interval{MinBound(ll, lu, ul, uu), MaxBound(ll, lu, ul, uu)}
}

// Singleton returns the single finite integer i describes, if any. The
// returned integer must not be mutated.
func (i Interval) Singleton() (*big.Int, bool) {
	if !i.IsBottom() && i.lb.Equal(i.ub) {
		return i.lb.Finite()
	}
	return nil, false
}

func (i Interval) Contains(n *big.Int) bool {
	if i.IsBottom() {
		return false
	}
	b := NewBigBound(n)
	return i.lb.Cmp(b) <= 0 && b.Cmp(i.ub) <= 0
}

func (i Interval) String() string {
	if i.IsBottom() {
		return "_|_"
	}
	return fmt.Sprintf("[%s, %s]", i.lb, i.ub)
}

// Trim removes the value of the singleton j from whichever endpoint of i it
// equals. A value that is interior to i, or not in it at all, cannot tighten
// a contiguous range, so i is returned unchanged.
func Trim(i, j Interval) Interval {
	c, ok := j.Singleton()
	if !ok {
		return i
	}
	b := NewBigBound(c)
	if i.lb.Equal(b) {
		return New(b.Add(NewBound(1)), i.ub)
	}
	if i.ub.Equal(b) {
		return New(i.lb, b.Sub(NewBound(1)))
	}
	return i
}
