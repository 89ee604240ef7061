package router

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"ammKit/internal/amm"
	"ammKit/internal/dex"
	"ammKit/internal/metrics"
	"ammKit/internal/uniswapv2"
)

var (
	ErrExpired      = errors.New("UniswapV2Router: EXPIRED")
	ErrPairNotFound = errors.New("pair not found")
	ErrNoLiquidity  = errors.New("no liquidity to remove")
)

// LiquidityResult describes a completed deposit.
type LiquidityResult struct {
	Pair      common.Address
	AmountA   *big.Int
	AmountB   *big.Int
	Liquidity *big.Int
}

// RemovalResult describes a completed withdrawal.
type RemovalResult struct {
	Pair      common.Address
	AmountA   *big.Int
	AmountB   *big.Int
	Liquidity *big.Int
}

// Router swaps and provides liquidity against factory pairs. Callers must
// approve the router address before any call that pulls their tokens.
type Router struct {
	env     amm.Env
	factory amm.Factory
	address common.Address
	logger  *zap.Logger
}

// New deploys a Router into env.
func New(env amm.Env, factory amm.Factory, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Router{
		env:     env,
		factory: factory,
		logger:  logger,
	}
	r.address = env.Deploy(r)
	return r
}

// Address returns the router's address.
func (r *Router) Address() common.Address {
	return r.address
}

// Factory returns the factory the router resolves pairs with.
func (r *Router) Factory() amm.Factory {
	return r.factory
}

// Swap sells amountIn of tokenIn for tokenOut and sends the output to
// recipient. It fails if deadline is before the current block timestamp.
func (r *Router) Swap(ctx context.Context, caller, tokenIn, tokenOut common.Address, amountIn *big.Int, recipient common.Address, deadline uint64) (*big.Int, error) {
	var amountOut *big.Int
	err := r.env.Atomic(ctx, func(ctx context.Context) error {
		if err := r.ensure(ctx, deadline); err != nil {
			return err
		}
		if amountIn == nil || amountIn.Sign() <= 0 {
			return uniswapv2.ErrInsufficientInputAmount
		}

		pair, err := r.pairFor(ctx, tokenIn, tokenOut)
		if err != nil {
			return err
		}
		reserveIn, reserveOut, inIsToken0, err := reservesFor(ctx, pair, tokenIn)
		if err != nil {
			return err
		}
		out, err := uniswapv2.GetAmountOut(amountIn, reserveIn, reserveOut)
		if err != nil {
			return err
		}
		if out.Sign() == 0 {
			return uniswapv2.ErrInsufficientOutputAmount
		}

		in, err := r.env.Token(tokenIn)
		if err != nil {
			return err
		}
		if err := in.TransferFrom(ctx, r.address, caller, pair.Address(), amountIn); err != nil {
			return fmt.Errorf("pull %s: %w", tokenIn.Hex(), err)
		}

		amount0Out, amount1Out := new(big.Int), out
		if !inIsToken0 {
			amount0Out, amount1Out = out, new(big.Int)
		}
		if err := pair.Swap(ctx, r.address, amount0Out, amount1Out, recipient, nil); err != nil {
			return err
		}
		amountOut = out
		return nil
	})
	metrics.RouterSwaps.WithLabelValues(metrics.Status(err)).Inc()
	if err != nil {
		return nil, err
	}

	r.logger.Debug("swap",
		zap.String("token_in", tokenIn.Hex()),
		zap.String("token_out", tokenOut.Hex()),
		zap.Stringer("amount_in", amountIn),
		zap.Stringer("amount_out", amountOut),
		zap.String("recipient", recipient.Hex()),
	)
	return amountOut, nil
}

// AddLiquidity deposits up to the desired amounts at the current reserve
// ratio, creating the pair if needed. Unused amounts go back to caller and
// the LP tokens are minted to caller.
func (r *Router) AddLiquidity(ctx context.Context, caller, tokenA, tokenB common.Address, amountADesired, amountBDesired *big.Int, deadline uint64) (LiquidityResult, error) {
	var result LiquidityResult
	err := r.env.Atomic(ctx, func(ctx context.Context) error {
		if err := r.ensure(ctx, deadline); err != nil {
			return err
		}

		pairAddr, err := r.factory.GetPair(ctx, tokenA, tokenB)
		if err != nil {
			return err
		}
		if pairAddr == (common.Address{}) {
			if pairAddr, err = r.factory.CreatePair(ctx, r.address, tokenA, tokenB); err != nil {
				return fmt.Errorf("create pair: %w", err)
			}
		}
		pair, err := r.env.Pair(pairAddr)
		if err != nil {
			return err
		}

		reserveA, reserveB, _, err := reservesFor(ctx, pair, tokenA)
		if err != nil {
			return err
		}
		amountA, amountB, err := uniswapv2.DepositAmounts(amountADesired, amountBDesired, reserveA, reserveB)
		if err != nil {
			return err
		}

		ta, err := r.env.Token(tokenA)
		if err != nil {
			return err
		}
		tb, err := r.env.Token(tokenB)
		if err != nil {
			return err
		}
		if err := r.deposit(ctx, ta, caller, pairAddr, amountADesired, amountA); err != nil {
			return err
		}
		if err := r.deposit(ctx, tb, caller, pairAddr, amountBDesired, amountB); err != nil {
			return err
		}

		liquidity, err := pair.Mint(ctx, r.address, caller)
		if err != nil {
			return err
		}

		if err := r.emit(ctx, "AddedTokensToLiquidity", tokenA, tokenB, amountADesired, amountA, amountB); err != nil {
			return err
		}
		if err := r.emit(ctx, "AddedLiquidity", caller, liquidity); err != nil {
			return err
		}

		result = LiquidityResult{Pair: pairAddr, AmountA: amountA, AmountB: amountB, Liquidity: liquidity}
		return nil
	})
	metrics.LiquidityOps.WithLabelValues("add", metrics.Status(err)).Inc()
	if err != nil {
		return LiquidityResult{}, err
	}

	r.logger.Debug("liquidity added",
		zap.String("pair", result.Pair.Hex()),
		zap.Stringer("amount_a", result.AmountA),
		zap.Stringer("amount_b", result.AmountB),
		zap.Stringer("liquidity", result.Liquidity),
	)
	return result, nil
}

// RemoveLiquidity burns the caller's entire LP balance of the pair and
// returns the underlying tokens to caller.
func (r *Router) RemoveLiquidity(ctx context.Context, caller, tokenA, tokenB common.Address) (RemovalResult, error) {
	var result RemovalResult
	err := r.env.Atomic(ctx, func(ctx context.Context) error {
		pair, err := r.pairFor(ctx, tokenA, tokenB)
		if err != nil {
			return err
		}
		liquidity, err := pair.BalanceOf(ctx, caller)
		if err != nil {
			return err
		}
		if liquidity.Sign() == 0 {
			return ErrNoLiquidity
		}
		if err := pair.TransferFrom(ctx, r.address, caller, pair.Address(), liquidity); err != nil {
			return fmt.Errorf("pull liquidity: %w", err)
		}

		amount0, amount1, err := pair.Burn(ctx, r.address, caller)
		if err != nil {
			return err
		}
		token0, err := pair.Token0(ctx)
		if err != nil {
			return err
		}
		amountA, amountB := amount0, amount1
		if token0 != tokenA {
			amountA, amountB = amount1, amount0
		}

		if err := r.emit(ctx, "RemovedTokensFromLiquidity", tokenA, tokenB, amountA, amountB); err != nil {
			return err
		}
		if err := r.emit(ctx, "RemovedLiquidity", caller, liquidity); err != nil {
			return err
		}

		result = RemovalResult{Pair: pair.Address(), AmountA: amountA, AmountB: amountB, Liquidity: liquidity}
		return nil
	})
	metrics.LiquidityOps.WithLabelValues("remove", metrics.Status(err)).Inc()
	if err != nil {
		return RemovalResult{}, err
	}

	r.logger.Debug("liquidity removed",
		zap.String("pair", result.Pair.Hex()),
		zap.Stringer("amount_a", result.AmountA),
		zap.Stringer("amount_b", result.AmountB),
		zap.Stringer("liquidity", result.Liquidity),
	)
	return result, nil
}

// GetAmountOut quotes a swap against current reserves without executing it.
func (r *Router) GetAmountOut(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int) (*big.Int, error) {
	pair, err := r.pairFor(ctx, tokenIn, tokenOut)
	if err != nil {
		return nil, err
	}
	reserveIn, reserveOut, _, err := reservesFor(ctx, pair, tokenIn)
	if err != nil {
		return nil, err
	}
	return uniswapv2.GetAmountOut(amountIn, reserveIn, reserveOut)
}

// PairFor returns the pair for two tokens or ErrPairNotFound.
func (r *Router) PairFor(ctx context.Context, tokenA, tokenB common.Address) (amm.Pair, error) {
	return r.pairFor(ctx, tokenA, tokenB)
}

func (r *Router) pairFor(ctx context.Context, tokenA, tokenB common.Address) (amm.Pair, error) {
	addr, err := r.factory.GetPair(ctx, tokenA, tokenB)
	if err != nil {
		return nil, err
	}
	if addr == (common.Address{}) {
		return nil, fmt.Errorf("%w: %s/%s", ErrPairNotFound, tokenA.Hex(), tokenB.Hex())
	}
	return r.env.Pair(addr)
}

func (r *Router) ensure(ctx context.Context, deadline uint64) error {
	now, err := r.env.Timestamp(ctx)
	if err != nil {
		return err
	}
	if deadline < now {
		return ErrExpired
	}
	return nil
}

// deposit pulls the desired amount from caller, forwards the used part to
// the pair and refunds the rest.
func (r *Router) deposit(ctx context.Context, token amm.Token, caller, pair common.Address, desired, used *big.Int) error {
	if err := token.TransferFrom(ctx, r.address, caller, r.address, desired); err != nil {
		return fmt.Errorf("pull %s: %w", token.Address().Hex(), err)
	}
	if err := token.Transfer(ctx, r.address, pair, used); err != nil {
		return err
	}
	if excess := new(big.Int).Sub(desired, used); excess.Sign() > 0 {
		if err := token.Transfer(ctx, r.address, caller, excess); err != nil {
			return fmt.Errorf("refund %s: %w", token.Address().Hex(), err)
		}
	}
	return nil
}

func (r *Router) emit(ctx context.Context, name string, args ...interface{}) error {
	log, err := dex.PackHelperLog(r.address, name, args...)
	if err != nil {
		return err
	}
	return r.env.Emit(ctx, log)
}

// reservesFor returns reserves ordered as (token, other) and whether token
// is the pair's token0.
func reservesFor(ctx context.Context, pair amm.PairReader, token common.Address) (*big.Int, *big.Int, bool, error) {
	reserves, err := pair.GetReserves(ctx)
	if err != nil {
		return nil, nil, false, err
	}
	token0, err := pair.Token0(ctx)
	if err != nil {
		return nil, nil, false, err
	}
	if token0 == token {
		return reserves.Reserve0, reserves.Reserve1, true, nil
	}
	return reserves.Reserve1, reserves.Reserve0, false, nil
}

// ReservesFor is reservesFor for other helper packages.
func ReservesFor(ctx context.Context, pair amm.PairReader, token common.Address) (*big.Int, *big.Int, error) {
	in, out, _, err := reservesFor(ctx, pair, token)
	return in, out, err
}
