package aggregate

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

const ratioScale = 18

var yearSeconds = decimal.NewFromInt(int64(365 * 24 * time.Hour / time.Second))

func formatTokenAmount(value *big.Int, decimals uint8) string {
	if value == nil {
		return "0"
	}
	return decimal.NewFromBigInt(value, -int32(decimals)).StringFixed(int32(decimals))
}

func computeFeeRates(fee0, fee1, reserve0, reserve1 *big.Int) (*string, *string) {
	var feeRate0, feeRate1 *string
	if rate, ok := ratio(fee0, reserve0); ok {
		s := rate.StringFixed(ratioScale)
		feeRate0 = &s
	}
	if rate, ok := ratio(fee1, reserve1); ok {
		s := rate.StringFixed(ratioScale)
		feeRate1 = &s
	}
	return feeRate0, feeRate1
}

func ratio(num, denom *big.Int) (decimal.Decimal, bool) {
	if num == nil || num.Sign() == 0 || denom == nil || denom.Sign() == 0 {
		return decimal.Zero, false
	}
	return decimal.NewFromBigInt(num, 0).DivRound(decimal.NewFromBigInt(denom, 0), ratioScale), true
}

// computeAPR annualizes the window's fees against pool value, both priced
// in token0 at the closing reserves. A V2 pool holds equal value on each
// side, so its value is 2*reserve0.
func computeAPR(fee0, fee1, reserve0, reserve1 *big.Int, windowSeconds uint64) *string {
	if windowSeconds == 0 || reserve0 == nil || reserve1 == nil || reserve0.Sign() == 0 || reserve1.Sign() == 0 {
		return nil
	}
	r0 := decimal.NewFromBigInt(reserve0, 0)
	r1 := decimal.NewFromBigInt(reserve1, 0)

	fees := decimal.Zero
	if fee0 != nil {
		fees = fees.Add(decimal.NewFromBigInt(fee0, 0))
	}
	if fee1 != nil {
		fees = fees.Add(decimal.NewFromBigInt(fee1, 0).Mul(r0).DivRound(r1, ratioScale))
	}
	if fees.IsZero() {
		return nil
	}

	rate := fees.DivRound(r0.Mul(decimal.NewFromInt(2)), ratioScale)
	apr := rate.Mul(yearSeconds).DivRound(decimal.NewFromInt(int64(windowSeconds)), ratioScale)
	val := apr.StringFixed(ratioScale)
	return &val
}
