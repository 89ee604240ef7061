package uniswapv2

import "math/big"

// MinimumLiquidity is locked forever on the first mint of every pair.
const MinimumLiquidity = 1000

// MintLiquidity returns the LP amount minted for deposited amounts. For an
// empty pair the second value is MinimumLiquidity, to be minted to the zero
// address; otherwise it is zero.
func MintLiquidity(amount0, amount1, reserve0, reserve1, totalSupply *big.Int) (*big.Int, *big.Int, error) {
	if totalSupply == nil || totalSupply.Sign() == 0 {
		product := new(big.Int).Mul(amount0, amount1)
		liquidity := Sqrt(product)
		liquidity.Sub(liquidity, big.NewInt(MinimumLiquidity))
		if liquidity.Sign() <= 0 {
			return nil, nil, ErrInsufficientLiquidityMinted
		}
		return liquidity, big.NewInt(MinimumLiquidity), nil
	}

	if reserve0.Sign() <= 0 || reserve1.Sign() <= 0 {
		return nil, nil, ErrInsufficientLiquidity
	}
	l0 := new(big.Int).Mul(amount0, totalSupply)
	l0.Quo(l0, reserve0)
	l1 := new(big.Int).Mul(amount1, totalSupply)
	l1.Quo(l1, reserve1)

	liquidity := l0
	if l1.Cmp(l0) < 0 {
		liquidity = l1
	}
	if liquidity.Sign() <= 0 {
		return nil, nil, ErrInsufficientLiquidityMinted
	}
	return liquidity, new(big.Int), nil
}

// BurnAmounts returns the pro-rata share of balances for liquidity.
func BurnAmounts(liquidity, balance0, balance1, totalSupply *big.Int) (*big.Int, *big.Int, error) {
	if totalSupply == nil || totalSupply.Sign() <= 0 {
		return nil, nil, ErrInsufficientLiquidity
	}
	amount0 := new(big.Int).Mul(liquidity, balance0)
	amount0.Quo(amount0, totalSupply)
	amount1 := new(big.Int).Mul(liquidity, balance1)
	amount1.Quo(amount1, totalSupply)
	if amount0.Sign() <= 0 || amount1.Sign() <= 0 {
		return nil, nil, ErrInsufficientLiquidityBurned
	}
	return amount0, amount1, nil
}

// DepositAmounts picks the amounts actually deposited for desired amounts,
// keeping the current reserve ratio. An empty pool takes the desired amounts.
func DepositAmounts(amountADesired, amountBDesired, reserveA, reserveB *big.Int) (*big.Int, *big.Int, error) {
	if amountADesired == nil || amountBDesired == nil || amountADesired.Sign() <= 0 || amountBDesired.Sign() <= 0 {
		return nil, nil, ErrInsufficientAmount
	}
	if reserveA.Sign() == 0 && reserveB.Sign() == 0 {
		return new(big.Int).Set(amountADesired), new(big.Int).Set(amountBDesired), nil
	}

	amountBOptimal, err := Quote(amountADesired, reserveA, reserveB)
	if err != nil {
		return nil, nil, err
	}
	if amountBOptimal.Cmp(amountBDesired) <= 0 {
		if amountBOptimal.Sign() == 0 {
			return nil, nil, ErrInsufficientAmount
		}
		return new(big.Int).Set(amountADesired), amountBOptimal, nil
	}

	amountAOptimal, err := Quote(amountBDesired, reserveB, reserveA)
	if err != nil {
		return nil, nil, err
	}
	if amountAOptimal.Sign() == 0 {
		return nil, nil, ErrInsufficientAmount
	}
	return amountAOptimal, new(big.Int).Set(amountBDesired), nil
}
