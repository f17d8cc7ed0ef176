package interval

import "math/big"

// Bitwise and modular operations. These are deliberately coarse: unless both
// operands are singletons the result is usually top, with a few sound
// tightenings for non-negative operands. Soundness matters here, precision
// does not; a dedicated bitfield lattice is the place for a better answer.

func (i Interval) exactBinop(o Interval, fn func(x, y *big.Int) *big.Int) (Interval, bool) {
	x, ok1 := i.Singleton()
	y, ok2 := o.Singleton()
	if ok1 && ok2 {
		return OfBig(fn(x, y)), true
	}
	return Interval{}, false
}

func (i Interval) nonNegative() bool {
	return !i.IsBottom() && i.lb.Sign() >= 0
}

// zeroDivisor reports whether o is exactly [0, 0], for which the modular
// operations have no defined concrete result and approximate with top.
func zeroDivisor(o Interval) bool {
	n, ok := o.Singleton()
	return ok && n.Sign() == 0
}

func (i Interval) And(o Interval) Interval {
	if i.IsBottom() || o.IsBottom() {
		return Bottom()
	}
	if r, ok := i.exactBinop(o, func(x, y *big.Int) *big.Int {
		return new(big.Int).And(x, y)
	}); ok {
		return r
	}
	// x & y cannot exceed either operand when both are non-negative.
	if i.nonNegative() && o.nonNegative() {
		return New(NewBound(0), MinBound(i.ub, o.ub))
	}
	return Top()
}

// orUpper bounds x | y and x ^ y for non-negative operands: both stay below
// the first power of two above either upper bound.
func orUpper(i, o Interval) (Bound, bool) {
	if !i.nonNegative() || !o.nonNegative() || i.ub.IsInfinite() || o.ub.IsInfinite() {
		return Bound{}, false
	}
	x, _ := i.ub.Finite()
	y, _ := o.ub.Finite()
	k := max(x.BitLen(), y.BitLen())
	up := new(big.Int).Lsh(big.NewInt(1), uint(k))
	up.Sub(up, big.NewInt(1))
	return NewBigBound(up), true
}

func (i Interval) Or(o Interval) Interval {
	if i.IsBottom() || o.IsBottom() {
		return Bottom()
	}
	if r, ok := i.exactBinop(o, func(x, y *big.Int) *big.Int {
		return new(big.Int).Or(x, y)
	}); ok {
		return r
	}
	if ub, ok := orUpper(i, o); ok {
		return New(NewBound(0), ub)
	}
	return Top()
}

func (i Interval) Xor(o Interval) Interval {
	if i.IsBottom() || o.IsBottom() {
		return Bottom()
	}
	if r, ok := i.exactBinop(o, func(x, y *big.Int) *big.Int {
		return new(big.Int).Xor(x, y)
	}); ok {
		return r
	}
	if ub, ok := orUpper(i, o); ok {
		return New(NewBound(0), ub)
	}
	return Top()
}

func (i Interval) Shl(o Interval) Interval {
	if i.IsBottom() || o.IsBottom() {
		return Bottom()
	}
	if k, ok := o.Singleton(); ok && k.Sign() >= 0 && k.IsUint64() {
		// x << k == x * 2^k, so shift both endpoints.
		f := NewBigBound(new(big.Int).Lsh(big.NewInt(1), uint(k.Uint64())))
		return i.Mul(Point(f))
	}
	return Top()
}

func (i Interval) AShr(o Interval) Interval {
	if i.IsBottom() || o.IsBottom() {
		return Bottom()
	}
	if k, ok := o.Singleton(); ok && k.Sign() >= 0 && k.IsUint64() {
		// big.Int.Rsh floors, which is exactly an arithmetic shift.
		sh := func(b Bound) Bound {
			n, ok := b.Finite()
			if !ok {
				return b
			}
			return NewBigBound(new(big.Int).Rsh(n, uint(k.Uint64())))
		}
		return New(sh(i.lb), sh(i.ub))
	}
	return Top()
}

func (i Interval) LShr(o Interval) Interval {
	if i.IsBottom() || o.IsBottom() {
		return Bottom()
	}
	// A logical shift only coincides with the arithmetic one on non-negative
	// operands; on negative ones the result depends on a word width this
	// layer does not know.
	if i.nonNegative() {
		return i.AShr(o)
	}
	return Top()
}

func (i Interval) UDiv(o Interval) Interval {
	if i.IsBottom() || o.IsBottom() {
		return Bottom()
	}
	if zeroDivisor(o) {
		return Top()
	}
	// Negative operands reinterpret as huge unsigned values of some word
	// width this layer does not know, so only the non-negative case divides.
	if i.nonNegative() && o.nonNegative() {
		return i.Div(o)
	}
	return Top()
}

func (i Interval) SRem(o Interval) Interval {
	if i.IsBottom() || o.IsBottom() {
		return Bottom()
	}
	if zeroDivisor(o) {
		return Top()
	}
	if r, ok := i.exactBinop(o, func(x, y *big.Int) *big.Int {
		// Truncated remainder, like big.Int.Rem.
		return new(big.Int).Rem(x, y)
	}); ok {
		return r
	}
	// |x rem y| < |y|, and the result keeps the sign of x.
	if o.lb.IsFinite() && o.ub.IsFinite() {
		m := MaxBound(o.ub.Abs(), o.lb.Abs()).Sub(NewBound(1))
		if i.nonNegative() {
			return New(NewBound(0), m)
		}
		return New(m.Neg(), m)
	}
	return Top()
}

func (i Interval) URem(o Interval) Interval {
	if i.IsBottom() || o.IsBottom() {
		return Bottom()
	}
	if zeroDivisor(o) {
		return Top()
	}
	if i.nonNegative() && o.nonNegative() {
		r := i.SRem(o)
		// x urem y < y for non-negative operands.
		if o.ub.IsFinite() && !r.IsTop() {
			return r.Meet(New(NewBound(0), o.ub.Sub(NewBound(1))))
		}
		return r
	}
	return Top()
}
