package interval

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBitwiseSingletons(t *testing.T) {
	tests := []struct {
		name string
		op   func(Interval, Interval) Interval
		a, b int64
		want int64
	}{
		{"and", Interval.And, 0b1100, 0b1010, 0b1000},
		{"or", Interval.Or, 0b1100, 0b1010, 0b1110},
		{"xor", Interval.Xor, 0b1100, 0b1010, 0b0110},
		{"shl", Interval.Shl, 3, 4, 48},
		{"lshr", Interval.LShr, 48, 4, 3},
		{"ashr", Interval.AShr, -16, 2, -4},
		{"udiv", Interval.UDiv, 17, 5, 3},
		{"srem", Interval.SRem, 17, 5, 2},
		{"srem-neg", Interval.SRem, -17, 5, -2},
		{"urem", Interval.URem, 17, 5, 2},
	}
	for _, tt := range tests {
		got := tt.op(Of(tt.a), Of(tt.b))
		assert.True(t, got.Equal(Of(tt.want)), "%s(%d, %d) = %s, want %d", tt.name, tt.a, tt.b, got, tt.want)
	}
}

func TestBitwiseNonSingletonSound(t *testing.T) {
	a := iv(0, 12)
	b := iv(0, 10)

	and := a.And(b)
	or := a.Or(b)
	xor := a.Xor(b)
	for x := int64(0); x <= 12; x++ {
		for y := int64(0); y <= 10; y++ {
			assert.True(t, and.Contains(big.NewInt(x&y)), "%d & %d", x, y)
			assert.True(t, or.Contains(big.NewInt(x|y)), "%d | %d", x, y)
			assert.True(t, xor.Contains(big.NewInt(x^y)), "%d ^ %d", x, y)
		}
	}

	// Mixed signs give up entirely.
	assert.True(t, iv(-4, 4).And(iv(0, 3)).IsTop())
	assert.True(t, iv(-4, 4).Or(iv(0, 3)).IsTop())
}

func TestAndTightening(t *testing.T) {
	got := iv(0, 100).And(iv(0, 7))
	assert.True(t, got.Equal(iv(0, 7)), "got %s", got)
}

func TestShiftRanges(t *testing.T) {
	got := iv(1, 3).Shl(Of(4))
	assert.True(t, got.Equal(iv(16, 48)), "got %s", got)

	got = iv(16, 48).LShr(Of(4))
	assert.True(t, got.Equal(iv(1, 3)), "got %s", got)

	// Unknown shift amount gives up.
	assert.True(t, iv(1, 3).Shl(iv(0, 4)).IsTop())
	// Logical shift of possibly-negative values is width-dependent.
	assert.True(t, iv(-8, 8).LShr(Of(1)).IsTop())
}

func TestModularZeroDivisor(t *testing.T) {
	assert.True(t, iv(1, 5).UDiv(Of(0)).IsTop())
	assert.True(t, iv(1, 5).SRem(Of(0)).IsTop())
	assert.True(t, iv(1, 5).URem(Of(0)).IsTop())
}

func TestRemRanges(t *testing.T) {
	// |x rem y| < |y|
	got := iv(0, 100).SRem(iv(1, 10))
	assert.True(t, got.Leq(iv(0, 9)), "got %s", got)

	got = iv(-100, 100).SRem(iv(1, 10))
	assert.True(t, got.Leq(iv(-9, 9)), "got %s", got)

	got = iv(0, 100).URem(iv(1, 10))
	for x := int64(0); x <= 100; x += 7 {
		for y := int64(1); y <= 10; y++ {
			assert.True(t, got.Contains(big.NewInt(x%y)), "%d %% %d", x, y)
		}
	}

	assert.True(t, Bottom().SRem(iv(1, 2)).IsBottom())
}
