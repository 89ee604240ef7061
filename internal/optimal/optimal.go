// Package optimal turns a single-token deposit into a two-sided liquidity
// position by swapping the share of the input that leaves no dust.
package optimal

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"ammKit/internal/amm"
	"ammKit/internal/metrics"
	"ammKit/internal/router"
	"ammKit/internal/uniswapv2"
)

var ErrMissingBaseAsset = errors.New("One of tokens must be WETH")

// Result reports a single-sided deposit. Leftovers are the calculator's
// balances after the deposit.
type Result struct {
	Pair        common.Address
	SwapAmount  *big.Int
	AmountOut   *big.Int
	AmountA     *big.Int
	AmountB     *big.Int
	Liquidity   *big.Int
	LeftoverIn  *big.Int
	LeftoverOut *big.Int
}

// Calculator performs single-sided deposits through a Router. LP tokens and
// leftovers stay with the calculator.
type Calculator struct {
	env     amm.Env
	router  *router.Router
	base    common.Address
	address common.Address
	logger  *zap.Logger
}

// New deploys a Calculator. base is the asset one side of every pair must be.
func New(env amm.Env, r *router.Router, base common.Address, logger *zap.Logger) *Calculator {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Calculator{
		env:    env,
		router: r,
		base:   base,
		logger: logger,
	}
	c.address = env.Deploy(c)
	return c
}

func (c *Calculator) Address() common.Address {
	return c.address
}

// OptimalSwap swaps the amount of tokenIn that makes the remaining balance
// match the post-swap reserve ratio, then adds both sides as liquidity.
func (c *Calculator) OptimalSwap(ctx context.Context, caller, tokenIn, tokenOut common.Address, amountIn *big.Int) (Result, error) {
	return c.deposit(ctx, "optimal", caller, tokenIn, tokenOut, amountIn, func(reserveIn *big.Int) (*big.Int, error) {
		return uniswapv2.OptimalSwapAmount(reserveIn, amountIn)
	})
}

// NonOptimalSwap swaps half of amountIn. Whatever tokenIn the deposit
// cannot absorb stays in the calculator.
func (c *Calculator) NonOptimalSwap(ctx context.Context, caller, tokenIn, tokenOut common.Address, amountIn *big.Int) (Result, error) {
	return c.deposit(ctx, "half", caller, tokenIn, tokenOut, amountIn, func(*big.Int) (*big.Int, error) {
		return new(big.Int).Rsh(amountIn, 1), nil
	})
}

func (c *Calculator) deposit(ctx context.Context, mode string, caller, tokenIn, tokenOut common.Address, amountIn *big.Int, split func(reserveIn *big.Int) (*big.Int, error)) (Result, error) {
	var result Result
	err := c.env.Atomic(ctx, func(ctx context.Context) error {
		if (tokenIn == c.base) == (tokenOut == c.base) {
			return ErrMissingBaseAsset
		}
		if amountIn == nil || amountIn.Sign() <= 0 {
			return uniswapv2.ErrInsufficientInputAmount
		}

		in, err := c.env.Token(tokenIn)
		if err != nil {
			return err
		}
		out, err := c.env.Token(tokenOut)
		if err != nil {
			return err
		}
		if err := in.TransferFrom(ctx, c.address, caller, c.address, amountIn); err != nil {
			return fmt.Errorf("pull %s: %w", tokenIn.Hex(), err)
		}

		pair, err := c.router.PairFor(ctx, tokenIn, tokenOut)
		if err != nil {
			return err
		}
		reserveIn, _, err := router.ReservesFor(ctx, pair, tokenIn)
		if err != nil {
			return err
		}
		swapAmount, err := split(reserveIn)
		if err != nil {
			return err
		}

		now, err := c.env.Timestamp(ctx)
		if err != nil {
			return err
		}
		if err := in.Approve(ctx, c.address, c.router.Address(), swapAmount); err != nil {
			return err
		}
		amountOut, err := c.router.Swap(ctx, c.address, tokenIn, tokenOut, swapAmount, c.address, now)
		if err != nil {
			return fmt.Errorf("swap: %w", err)
		}

		balanceIn, err := in.BalanceOf(ctx, c.address)
		if err != nil {
			return err
		}
		balanceOut, err := out.BalanceOf(ctx, c.address)
		if err != nil {
			return err
		}
		if err := in.Approve(ctx, c.address, c.router.Address(), balanceIn); err != nil {
			return err
		}
		if err := out.Approve(ctx, c.address, c.router.Address(), balanceOut); err != nil {
			return err
		}
		added, err := c.router.AddLiquidity(ctx, c.address, tokenIn, tokenOut, balanceIn, balanceOut, now)
		if err != nil {
			return fmt.Errorf("add liquidity: %w", err)
		}

		leftoverIn, err := in.BalanceOf(ctx, c.address)
		if err != nil {
			return err
		}
		leftoverOut, err := out.BalanceOf(ctx, c.address)
		if err != nil {
			return err
		}
		result = Result{
			Pair:        added.Pair,
			SwapAmount:  swapAmount,
			AmountOut:   amountOut,
			AmountA:     added.AmountA,
			AmountB:     added.AmountB,
			Liquidity:   added.Liquidity,
			LeftoverIn:  leftoverIn,
			LeftoverOut: leftoverOut,
		}
		return nil
	})
	metrics.ZapOps.WithLabelValues(mode, metrics.Status(err)).Inc()
	if err != nil {
		return Result{}, err
	}

	c.logger.Debug("single-sided deposit",
		zap.String("mode", mode),
		zap.String("token_in", tokenIn.Hex()),
		zap.Stringer("amount_in", amountIn),
		zap.Stringer("swapped", result.SwapAmount),
		zap.Stringer("liquidity", result.Liquidity),
		zap.Stringer("leftover_in", result.LeftoverIn),
		zap.Stringer("leftover_out", result.LeftoverOut),
	)
	return result, nil
}
