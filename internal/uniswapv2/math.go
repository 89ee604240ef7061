package uniswapv2

import "math/big"

// Fee constants: 0.3% = 997/1000.
const (
	FeeNumerator   = 997
	FeeDenominator = 1000
)

var (
	feeMul = big.NewInt(FeeNumerator)
	feeDen = big.NewInt(FeeDenominator)
)

// GetAmountOut returns the output of a swap with the 0.3% fee:
// amountOut = amountIn*997*reserveOut / (reserveIn*1000 + amountIn*997).
// A zero result is returned as is; callers decide whether it is a failure.
func GetAmountOut(amountIn, reserveIn, reserveOut *big.Int) (*big.Int, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, ErrInsufficientInputAmount
	}
	if reserveIn == nil || reserveOut == nil || reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
		return nil, ErrInsufficientLiquidity
	}

	ainFee := new(big.Int).Mul(amountIn, feeMul)
	num := new(big.Int).Mul(ainFee, reserveOut)
	den := new(big.Int).Mul(reserveIn, feeDen)
	den.Add(den, ainFee)
	return num.Quo(num, den), nil
}

// GetAmountIn returns the minimum input that yields amountOut:
// amountIn = reserveIn*amountOut*1000 / ((reserveOut-amountOut)*997) + 1.
func GetAmountIn(amountOut, reserveIn, reserveOut *big.Int) (*big.Int, error) {
	if amountOut == nil || amountOut.Sign() <= 0 {
		return nil, ErrInsufficientOutputAmount
	}
	if reserveIn == nil || reserveOut == nil || reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
		return nil, ErrInsufficientLiquidity
	}
	if amountOut.Cmp(reserveOut) >= 0 {
		return nil, ErrInsufficientLiquidity
	}

	num := new(big.Int).Mul(reserveIn, amountOut)
	num.Mul(num, feeDen)
	den := new(big.Int).Sub(reserveOut, amountOut)
	den.Mul(den, feeMul)
	num.Quo(num, den)
	return num.Add(num, big.NewInt(1)), nil
}

// Quote returns the amount of B equivalent to amountA at the reserve ratio.
func Quote(amountA, reserveA, reserveB *big.Int) (*big.Int, error) {
	if amountA == nil || amountA.Sign() <= 0 {
		return nil, ErrInsufficientAmount
	}
	if reserveA == nil || reserveB == nil || reserveA.Sign() <= 0 || reserveB.Sign() <= 0 {
		return nil, ErrInsufficientLiquidity
	}
	out := new(big.Int).Mul(amountA, reserveB)
	return out.Quo(out, reserveA), nil
}

// Sqrt is the Babylonian floor square root used by the pair contract.
// It is deterministic for every input, which settlement depends on.
func Sqrt(y *big.Int) *big.Int {
	if y == nil || y.Sign() <= 0 {
		return new(big.Int)
	}
	three := big.NewInt(3)
	if y.Cmp(three) <= 0 {
		return big.NewInt(1)
	}

	z := new(big.Int).Set(y)
	x := new(big.Int).Rsh(y, 1)
	x.Add(x, big.NewInt(1))
	tmp := new(big.Int)
	for x.Cmp(z) < 0 {
		z.Set(x)
		// x = (y/x + x) / 2
		tmp.Quo(y, x)
		x.Add(tmp, x)
		x.Rsh(x, 1)
	}
	return z
}

var (
	splitA = big.NewInt(3988009) // (2-f)^2 * 1000^2 with f = 0.003
	splitB = big.NewInt(3988000) // 4 * (1-f) * 1000^2
	splitC = big.NewInt(1997)
	splitD = big.NewInt(1994)
)

// OptimalSwapAmount returns the portion of amountIn to swap so that the
// swap output and the remainder deposit at the post-swap reserve ratio:
// s = (sqrt(r*(r*3988009 + a*3988000)) - r*1997) / 1994.
func OptimalSwapAmount(reserveIn, amountIn *big.Int) (*big.Int, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, ErrInsufficientInputAmount
	}
	if reserveIn == nil || reserveIn.Sign() <= 0 {
		return nil, ErrInsufficientLiquidity
	}

	inner := new(big.Int).Mul(reserveIn, splitA)
	inner.Add(inner, new(big.Int).Mul(amountIn, splitB))
	inner.Mul(inner, reserveIn)

	s := Sqrt(inner)
	s.Sub(s, new(big.Int).Mul(reserveIn, splitC))
	return s.Quo(s, splitD), nil
}
