package uniswapv2

import "errors"

// Errors mirror the UniswapV2 core/periphery revert reasons.
var (
	ErrInsufficientInputAmount     = errors.New("UniswapV2: INSUFFICIENT_INPUT_AMOUNT")
	ErrInsufficientOutputAmount    = errors.New("UniswapV2: INSUFFICIENT_OUTPUT_AMOUNT")
	ErrInsufficientAmount          = errors.New("UniswapV2: INSUFFICIENT_AMOUNT")
	ErrInsufficientLiquidity       = errors.New("UniswapV2: INSUFFICIENT_LIQUIDITY")
	ErrInsufficientLiquidityMinted = errors.New("UniswapV2: INSUFFICIENT_LIQUIDITY_MINTED")
	ErrInsufficientLiquidityBurned = errors.New("UniswapV2: INSUFFICIENT_LIQUIDITY_BURNED")
	ErrIdenticalAddresses          = errors.New("UniswapV2: IDENTICAL_ADDRESSES")
	ErrZeroAddress                 = errors.New("UniswapV2: ZERO_ADDRESS")
	ErrOverflow                    = errors.New("UniswapV2: OVERFLOW")
	ErrPriceOverflow               = errors.New("FixedPoint::mul: overflow")
)
