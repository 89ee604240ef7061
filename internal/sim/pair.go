package sim

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"ammKit/internal/amm"
	"ammKit/internal/dex"
	"ammKit/internal/uniswapv2"
)

var (
	ErrLocked    = errors.New("UniswapV2: LOCKED")
	ErrInvalidTo = errors.New("UniswapV2: INVALID_TO")
	ErrK         = errors.New("UniswapV2: K")
)

var _ amm.Pair = (*Pair)(nil)

var (
	feeScale = big.NewInt(uniswapv2.FeeDenominator)
	feeTaken = big.NewInt(uniswapv2.FeeDenominator - uniswapv2.FeeNumerator)
)

// Pair is a UniswapV2 pair. The embedded Token is its LP token.
type Pair struct {
	*Token

	factory common.Address
	token0  common.Address
	token1  common.Address

	reserve0           *big.Int
	reserve1           *big.Int
	blockTimestampLast uint32

	price0CumulativeLast *uint256.Int
	price1CumulativeLast *uint256.Int

	unlocked bool
}

func newPair(w *World, address, factory, token0, token1 common.Address) *Pair {
	return &Pair{
		Token:                newToken(w, address, "Uniswap V2", "UNI-V2", 18),
		factory:              factory,
		token0:               token0,
		token1:               token1,
		reserve0:             new(big.Int),
		reserve1:             new(big.Int),
		price0CumulativeLast: new(uint256.Int),
		price1CumulativeLast: new(uint256.Int),
		unlocked:             true,
	}
}

func (p *Pair) Factory() common.Address { return p.factory }

func (p *Pair) Token0(context.Context) (common.Address, error) { return p.token0, nil }
func (p *Pair) Token1(context.Context) (common.Address, error) { return p.token1, nil }

func (p *Pair) GetReserves(ctx context.Context) (amm.Reserves, error) {
	var out amm.Reserves
	p.world.view(ctx, func() {
		out = amm.Reserves{
			Reserve0:           new(big.Int).Set(p.reserve0),
			Reserve1:           new(big.Int).Set(p.reserve1),
			BlockTimestampLast: p.blockTimestampLast,
		}
	})
	return out, nil
}

func (p *Pair) Price0CumulativeLast(ctx context.Context) (*uint256.Int, error) {
	var out *uint256.Int
	p.world.view(ctx, func() { out = new(uint256.Int).Set(p.price0CumulativeLast) })
	return out, nil
}

func (p *Pair) Price1CumulativeLast(ctx context.Context) (*uint256.Int, error) {
	var out *uint256.Int
	p.world.view(ctx, func() { out = new(uint256.Int).Set(p.price1CumulativeLast) })
	return out, nil
}

func (p *Pair) locked(ctx context.Context, fn func(ctx context.Context, tx *txn) error) error {
	return p.world.Atomic(ctx, func(ctx context.Context) error {
		tx := txFrom(ctx)
		if !p.unlocked {
			return ErrLocked
		}
		setField(tx, &p.unlocked, false)
		if err := fn(ctx, tx); err != nil {
			return err
		}
		setField(tx, &p.unlocked, true)
		return nil
	})
}

func (p *Pair) balances() (*big.Int, *big.Int, error) {
	t0, err := p.world.lookupToken(p.token0)
	if err != nil {
		return nil, nil, err
	}
	t1, err := p.world.lookupToken(p.token1)
	if err != nil {
		return nil, nil, err
	}
	return t0.balanceOf(p.address), t1.balanceOf(p.address), nil
}

// Mint issues LP tokens to `to` for whatever was transferred in since the
// last reserve update.
func (p *Pair) Mint(ctx context.Context, caller, to common.Address) (*big.Int, error) {
	var liquidity *big.Int
	err := p.locked(ctx, func(ctx context.Context, tx *txn) error {
		balance0, balance1, err := p.balances()
		if err != nil {
			return err
		}
		amount0 := new(big.Int).Sub(balance0, p.reserve0)
		amount1 := new(big.Int).Sub(balance1, p.reserve1)

		minted, locked, err := uniswapv2.MintLiquidity(amount0, amount1, p.reserve0, p.reserve1, p.totalSupply)
		if err != nil {
			return err
		}
		if locked.Sign() > 0 {
			if err := p.mint(tx, common.Address{}, locked); err != nil {
				return err
			}
		}
		if err := p.mint(tx, to, minted); err != nil {
			return err
		}
		if err := p.update(tx, balance0, balance1); err != nil {
			return err
		}
		liquidity = minted
		return p.emitPair(tx, "Mint", caller, amount0, amount1)
	})
	if err != nil {
		return nil, err
	}
	return liquidity, nil
}

// Burn redeems the LP tokens held by the pair itself and sends the
// underlying amounts to `to`.
func (p *Pair) Burn(ctx context.Context, caller, to common.Address) (*big.Int, *big.Int, error) {
	var amount0, amount1 *big.Int
	err := p.locked(ctx, func(ctx context.Context, tx *txn) error {
		balance0, balance1, err := p.balances()
		if err != nil {
			return err
		}
		liquidity := p.balanceOf(p.address)

		a0, a1, err := uniswapv2.BurnAmounts(liquidity, balance0, balance1, p.totalSupply)
		if err != nil {
			return err
		}
		if err := p.burn(tx, p.address, liquidity); err != nil {
			return err
		}
		if err := p.send(tx, p.token0, to, a0); err != nil {
			return err
		}
		if err := p.send(tx, p.token1, to, a1); err != nil {
			return err
		}

		balance0, balance1, err = p.balances()
		if err != nil {
			return err
		}
		if err := p.update(tx, balance0, balance1); err != nil {
			return err
		}
		amount0, amount1 = a0, a1
		return p.emitPair(tx, "Burn", caller, a0, a1, to)
	})
	if err != nil {
		return nil, nil, err
	}
	return amount0, amount1, nil
}

// Swap transfers the requested outputs optimistically, runs the flash
// callback when data is set, then enforces the fee-adjusted invariant.
func (p *Pair) Swap(ctx context.Context, caller common.Address, amount0Out, amount1Out *big.Int, to common.Address, data []byte) error {
	amount0Out = orZero(amount0Out)
	amount1Out = orZero(amount1Out)
	if amount0Out.Sign() < 0 || amount1Out.Sign() < 0 {
		return uniswapv2.ErrInsufficientOutputAmount
	}
	if amount0Out.Sign() == 0 && amount1Out.Sign() == 0 {
		return uniswapv2.ErrInsufficientOutputAmount
	}

	return p.locked(ctx, func(ctx context.Context, tx *txn) error {
		reserve0, reserve1 := p.reserve0, p.reserve1
		if amount0Out.Cmp(reserve0) >= 0 || amount1Out.Cmp(reserve1) >= 0 {
			return uniswapv2.ErrInsufficientLiquidity
		}
		if to == p.token0 || to == p.token1 {
			return ErrInvalidTo
		}

		if amount0Out.Sign() > 0 {
			if err := p.send(tx, p.token0, to, amount0Out); err != nil {
				return err
			}
		}
		if amount1Out.Sign() > 0 {
			if err := p.send(tx, p.token1, to, amount1Out); err != nil {
				return err
			}
		}
		if len(data) > 0 {
			callee, ok := p.world.callee(to)
			if !ok {
				return ErrNotCallee
			}
			if err := callee.UniswapV2Call(ctx, p.address, caller, amount0Out, amount1Out, data); err != nil {
				return err
			}
		}

		balance0, balance1, err := p.balances()
		if err != nil {
			return err
		}
		amount0In := amountIn(balance0, reserve0, amount0Out)
		amount1In := amountIn(balance1, reserve1, amount1Out)
		if amount0In.Sign() == 0 && amount1In.Sign() == 0 {
			return uniswapv2.ErrInsufficientInputAmount
		}

		adjusted0 := new(big.Int).Mul(balance0, feeScale)
		adjusted0.Sub(adjusted0, new(big.Int).Mul(amount0In, feeTaken))
		adjusted1 := new(big.Int).Mul(balance1, feeScale)
		adjusted1.Sub(adjusted1, new(big.Int).Mul(amount1In, feeTaken))

		k := new(big.Int).Mul(reserve0, reserve1)
		k.Mul(k, new(big.Int).Mul(feeScale, feeScale))
		if new(big.Int).Mul(adjusted0, adjusted1).Cmp(k) < 0 {
			return ErrK
		}

		if err := p.update(tx, balance0, balance1); err != nil {
			return err
		}
		return p.emitPair(tx, "Swap", caller, amount0In, amount1In, amount0Out, amount1Out, to)
	})
}

// Skim sends balances above the reserves to `to`.
func (p *Pair) Skim(ctx context.Context, _ common.Address, to common.Address) error {
	return p.locked(ctx, func(ctx context.Context, tx *txn) error {
		balance0, balance1, err := p.balances()
		if err != nil {
			return err
		}
		if excess := new(big.Int).Sub(balance0, p.reserve0); excess.Sign() > 0 {
			if err := p.send(tx, p.token0, to, excess); err != nil {
				return err
			}
		}
		if excess := new(big.Int).Sub(balance1, p.reserve1); excess.Sign() > 0 {
			if err := p.send(tx, p.token1, to, excess); err != nil {
				return err
			}
		}
		return nil
	})
}

// Sync forces reserves to match balances.
func (p *Pair) Sync(ctx context.Context, _ common.Address) error {
	return p.locked(ctx, func(ctx context.Context, tx *txn) error {
		balance0, balance1, err := p.balances()
		if err != nil {
			return err
		}
		return p.update(tx, balance0, balance1)
	})
}

// update stores new reserves and, on the first call per block, accumulates
// prices using the reserves from before the call.
func (p *Pair) update(tx *txn, balance0, balance1 *big.Int) error {
	if !uniswapv2.FitsUint112(balance0) || !uniswapv2.FitsUint112(balance1) {
		return uniswapv2.ErrOverflow
	}

	blockTimestamp := uint32(p.world.now)
	elapsed := blockTimestamp - p.blockTimestampLast
	if elapsed > 0 && p.reserve0.Sign() != 0 && p.reserve1.Sign() != 0 {
		c0 := uniswapv2.CumulativeDelta(uniswapv2.EncodePrice(p.reserve1, p.reserve0), elapsed)
		c1 := uniswapv2.CumulativeDelta(uniswapv2.EncodePrice(p.reserve0, p.reserve1), elapsed)
		setField(tx, &p.price0CumulativeLast, c0.Add(c0, p.price0CumulativeLast))
		setField(tx, &p.price1CumulativeLast, c1.Add(c1, p.price1CumulativeLast))
	}

	setField(tx, &p.reserve0, new(big.Int).Set(balance0))
	setField(tx, &p.reserve1, new(big.Int).Set(balance1))
	setField(tx, &p.blockTimestampLast, blockTimestamp)
	return p.emitPair(tx, "Sync", balance0, balance1)
}

func (p *Pair) send(tx *txn, token, to common.Address, amount *big.Int) error {
	t, err := p.world.lookupToken(token)
	if err != nil {
		return err
	}
	return t.move(tx, p.address, to, amount)
}

func (p *Pair) emitPair(tx *txn, name string, args ...interface{}) error {
	parsed, err := dex.V2PairABI()
	if err != nil {
		return err
	}
	return p.world.emitEvent(tx, parsed, p.address, name, args...)
}

func amountIn(balance, reserve, out *big.Int) *big.Int {
	floor := new(big.Int).Sub(reserve, out)
	if balance.Cmp(floor) > 0 {
		return floor.Sub(balance, floor)
	}
	return new(big.Int)
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
