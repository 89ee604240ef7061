// Package flash borrows the base asset from a pair for the length of one
// swap callback and repays it with the pool fee.
package flash

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
)

var (
	ErrZeroAmount   = errors.New("Amount == 0!")
	ErrInvalidPair  = errors.New("Invalid pair!")
	ErrOnlyBase     = errors.New("Only WETH to borrow")
	ErrUnauthorized = errors.New("flash: unauthorized callback")

	ErrNotBorrower error = authError("Only UniswapV2FlashSwap!")
	ErrNotPair     error = authError("Only UniswapV2Pair!")
)

// authError keeps the callback messages while matching ErrUnauthorized.
type authError string

func (e authError) Error() string        { return string(e) }
func (e authError) Is(target error) bool { return target == ErrUnauthorized }

// Strategy runs while the borrowed amount is held. Returning an error
// aborts the flash swap.
type Strategy func(ctx context.Context, req Request) error

// Fee returns the amount owed on top of a flash borrow.
func Fee(amount *big.Int) *big.Int {
	fee := new(big.Int).Mul(amount, big.NewInt(3))
	fee.Quo(fee, big.NewInt(997))
	return fee.Add(fee, big.NewInt(1))
}

type Option func(*Borrower)

func WithStrategy(s Strategy) Option {
	return func(b *Borrower) { b.strategy = s }
}

func WithLogger(logger *zap.Logger) Option {
	return func(b *Borrower) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// Borrower is the flash-swap callee of one pair.
type Borrower struct {
	env      amm.Env
	pair     common.Address
	base     common.Address
	address  common.Address
	strategy Strategy
	logger   *zap.Logger
}

// New deploys a Borrower for pair. base is the only token it may borrow.
func New(env amm.Env, pair, base common.Address, opts ...Option) (*Borrower, error) {
	if pair == (common.Address{}) {
		return nil, ErrInvalidPair
	}
	b := &Borrower{
		env:    env,
		pair:   pair,
		base:   base,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.address = env.Deploy(b)
	return b, nil
}

func (b *Borrower) Address() common.Address { return b.address }
func (b *Borrower) Pair() common.Address    { return b.pair }

// FlashSwap borrows amount of token from the pair. initiator pays the fee
// and must have approved the borrower for it.
func (b *Borrower) FlashSwap(ctx context.Context, initiator, token common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		metrics.FlashSwaps.WithLabelValues(metrics.Status(ErrZeroAmount)).Inc()
		return ErrZeroAmount
	}
	if token != b.base {
		metrics.FlashSwaps.WithLabelValues(metrics.Status(ErrOnlyBase)).Inc()
		return ErrOnlyBase
	}

	err := b.env.Atomic(ctx, func(ctx context.Context) error {
		pair, err := b.env.Pair(b.pair)
		if err != nil {
			return err
		}
		token0, err := pair.Token0(ctx)
		if err != nil {
			return err
		}
		token1, err := pair.Token1(ctx)
		if err != nil {
			return err
		}
		amount0Out, amount1Out := new(big.Int), new(big.Int)
		switch token {
		case token0:
			amount0Out = amount
		case token1:
			amount1Out = amount
		}

		data, err := Request{
			Token:     token,
			Amount:    amount,
			Pair:      b.pair,
			Initiator: initiator,
			Borrower:  b.address,
		}.Encode()
		if err != nil {
			return err
		}
		return pair.Swap(ctx, b.address, amount0Out, amount1Out, b.address, data)
	})
	metrics.FlashSwaps.WithLabelValues(metrics.Status(err)).Inc()
	if err != nil {
		b.logger.Debug("flash swap reverted", zap.String("token", token.Hex()), zap.Stringer("amount", amount), zap.Error(err))
		return err
	}

	b.logger.Debug("flash swap repaid",
		zap.String("token", token.Hex()),
		zap.Stringer("amount", amount),
		zap.Stringer("fee", Fee(amount)),
		zap.String("initiator", initiator.Hex()),
	)
	return nil
}

// UniswapV2Call is invoked by the pair while the borrowed amount is held.
func (b *Borrower) UniswapV2Call(ctx context.Context, caller, sender common.Address, amount0, amount1 *big.Int, data []byte) error {
	if sender != b.address {
		return ErrNotBorrower
	}
	if caller != b.pair {
		return ErrNotPair
	}

	req, err := DecodeRequest(data)
	if err != nil {
		return err
	}
	if req.Borrower != b.address {
		return ErrNotBorrower
	}
	if req.Pair != b.pair {
		return ErrNotPair
	}
	if req.Token != b.base {
		return ErrOnlyBase
	}

	if b.strategy != nil {
		if err := b.strategy(ctx, req); err != nil {
			return fmt.Errorf("strategy: %w", err)
		}
	}

	token, err := b.env.Token(req.Token)
	if err != nil {
		return err
	}
	fee := Fee(req.Amount)
	if err := token.TransferFrom(ctx, b.address, req.Initiator, b.address, fee); err != nil {
		return fmt.Errorf("collect fee: %w", err)
	}
	if err := token.Transfer(ctx, b.address, b.pair, new(big.Int).Add(req.Amount, fee)); err != nil {
		return fmt.Errorf("repay: %w", err)
	}

	log, err := dex.PackHelperLog(b.address, "FlashSwapRepaid", req.Token, req.Initiator, req.Amount, fee)
	if err != nil {
		return err
	}
	return b.env.Emit(ctx, log)
}
