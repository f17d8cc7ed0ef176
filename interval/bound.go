package interval

import (
	"errors"
	"fmt"
	"math/big"
)

// ErrUndefinedArithmetic is the panic value for the one undefined case of
// bound arithmetic, -∞ + ∞.
var ErrUndefinedArithmetic = errors.New("bound: -∞ + ∞ is not defined")

// ErrDivisionByZero is the panic value for dividing a bound by zero.
var ErrDivisionByZero = errors.New("bound: division by zero")

// Bound is a point on the extended integer line: either a finite
// arbitrary-precision integer or one of the two infinities. The zero value is
// not a valid Bound; use NewBound, NewBigBound or the infinity constants.
type Bound struct {
	infinity int8 // -1, 0 or 1
	n        *big.Int
}

var NInfinity = Bound{infinity: -1}
var PInfinity = Bound{infinity: 1}

func NewBound(n int64) Bound {
	return Bound{n: big.NewInt(n)}
}

// NewBigBound wraps n in a bound. The bound does not alias n.
func NewBigBound(n *big.Int) Bound {
	return Bound{n: new(big.Int).Set(n)}
}

func (b Bound) IsInfinite() bool      { return b.infinity != 0 }
func (b Bound) IsFinite() bool        { return b.infinity == 0 }
func (b Bound) IsPlusInfinity() bool  { return b.infinity > 0 }
func (b Bound) IsMinusInfinity() bool { return b.infinity < 0 }

// Finite returns the finite value of b, or false for an infinity. The
// returned integer must not be mutated.
func (b Bound) Finite() (*big.Int, bool) {
	if b.IsInfinite() {
		return nil, false
	}
	return b.n, true
}

// Sign reports -1, 0 or 1 depending on whether b is negative, zero or
// positive.
func (b Bound) Sign() int {
	if b.infinity != 0 {
		return int(b.infinity)
	}
	return b.n.Sign()
}

func (b Bound) Neg() Bound {
	if b.IsInfinite() {
		return Bound{infinity: -b.infinity}
	}
	return Bound{n: new(big.Int).Neg(b.n)}
}

func (b Bound) Abs() Bound {
	if b.Cmp(NewBound(0)) >= 0 {
		return b
	}
	return b.Neg()
}

func (b Bound) Add(o Bound) Bound {
	switch {
	case b.IsFinite() && o.IsFinite():
		return Bound{n: new(big.Int).Add(b.n, o.n)}
	case b.IsFinite():
		return o
	case o.IsFinite():
		return b
	case b.infinity == o.infinity:
		return b
	default:
		panic(ErrUndefinedArithmetic)
	}
}

func (b Bound) Sub(o Bound) Bound { return b.Add(o.Neg()) }

func (b Bound) Mul(o Bound) Bound {
	// Zero absorbs even an infinity.
	if b.IsFinite() && b.n.Sign() == 0 {
		return b
	}
	if o.IsFinite() && o.n.Sign() == 0 {
		return o
	}
	if b.IsInfinite() || o.IsInfinite() {
		return Bound{infinity: int8(b.Sign() * o.Sign())}
	}
	return Bound{n: new(big.Int).Mul(b.n, o.n)}
}

func (b Bound) Div(o Bound) Bound {
	if o.IsFinite() && o.n.Sign() == 0 {
		panic(ErrDivisionByZero)
	}
	switch {
	case b.IsFinite() && o.IsFinite():
		// Truncated toward zero, like big.Int.Quo.
		return Bound{n: new(big.Int).Quo(b.n, o.n)}
	case b.IsFinite():
		return NewBound(0)
	case o.IsFinite():
		if o.n.Sign() > 0 {
			return b
		}
		return b.Neg()
	default:
		return Bound{infinity: int8(b.Sign() * o.Sign())}
	}
}

// Cmp compares b and o, returning -1, 0 or 1. The order is total, with
// -∞ < every finite bound < ∞.
func (b Bound) Cmp(o Bound) int {
	if b.infinity != 0 || o.infinity != 0 {
		switch {
		case b.infinity == o.infinity:
			return 0
		case b.infinity < o.infinity:
			return -1
		default:
			return 1
		}
	}
	return b.n.Cmp(o.n)
}

func (b Bound) Equal(o Bound) bool { return b.Cmp(o) == 0 }

func MinBound(bs ...Bound) Bound {
	if len(bs) == 0 {
		panic("MinBound called with no arguments")
	}
	ret := bs[0]
	for _, b := range bs[1:] {
		if b.Cmp(ret) < 0 {
			ret = b
		}
	}
	return ret
}

func MaxBound(bs ...Bound) Bound {
	if len(bs) == 0 {
		panic("MaxBound called with no arguments")
	}
	ret := bs[0]
	for _, b := range bs[1:] {
		if b.Cmp(ret) > 0 {
			ret = b
		}
	}
	return ret
}

func (b Bound) String() string {
	if b.IsMinusInfinity() {
		return "-∞"
	}
	if b.IsPlusInfinity() {
		return "∞"
	}
	return fmt.Sprintf("%d", b.n)
}
