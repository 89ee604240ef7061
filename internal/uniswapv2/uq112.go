package uniswapv2

import (
	"math/big"

	"github.com/holiman/uint256"
)

// Resolution is the number of fractional bits of a UQ112x112 value.
const Resolution = 112

// MaxUint112 bounds pair reserves.
var MaxUint112 = new(uint256.Int).Sub(new(uint256.Int).Lsh(uint256.NewInt(1), 112), uint256.NewInt(1))

// FitsUint112 reports whether v can be stored as a reserve.
func FitsUint112(v *big.Int) bool {
	if v == nil || v.Sign() < 0 {
		return false
	}
	return v.BitLen() <= 112
}

// EncodePrice returns numerator/denominator as UQ112x112.
// Both inputs must fit in 112 bits and the denominator must be non-zero.
func EncodePrice(numerator, denominator *big.Int) *uint256.Int {
	num, _ := uint256.FromBig(numerator)
	den, _ := uint256.FromBig(denominator)
	num.Lsh(num, Resolution)
	return num.Div(num, den)
}

// CumulativeDelta returns price * elapsed, wrapping modulo 2^256 like the
// pair's accumulator.
func CumulativeDelta(price *uint256.Int, elapsed uint32) *uint256.Int {
	return new(uint256.Int).Mul(price, uint256.NewInt(uint64(elapsed)))
}

// MulDecode multiplies a UQ112x112 price by amount and truncates the
// fraction. It fails when the product does not fit in 256 bits.
func MulDecode(price *uint256.Int, amount *big.Int) (*big.Int, error) {
	if amount == nil || amount.Sign() < 0 {
		return nil, ErrInsufficientAmount
	}
	y, overflow := uint256.FromBig(amount)
	if overflow {
		return nil, ErrPriceOverflow
	}
	z, overflow := new(uint256.Int).MulOverflow(price, y)
	if overflow {
		return nil, ErrPriceOverflow
	}
	return z.Rsh(z, Resolution).ToBig(), nil
}
