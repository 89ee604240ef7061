package sim

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"ammKit/internal/amm"
	"ammKit/internal/dex"
)

var (
	ErrInsufficientBalance   = errors.New("ERC20: transfer amount exceeds balance")
	ErrInsufficientAllowance = errors.New("ERC20: insufficient allowance")
	ErrNegativeAmount        = errors.New("ERC20: negative amount")
)

var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

var _ amm.Token = (*Token)(nil)

type allowanceKey struct {
	owner   common.Address
	spender common.Address
}

// Token is an ERC20 with an open faucet.
type Token struct {
	world    *World
	address  common.Address
	name     string
	symbol   string
	decimals uint8

	totalSupply *big.Int
	balances    map[common.Address]*big.Int
	allowances  map[allowanceKey]*big.Int
}

func newToken(w *World, address common.Address, name, symbol string, decimals uint8) *Token {
	return &Token{
		world:       w,
		address:     address,
		name:        name,
		symbol:      symbol,
		decimals:    decimals,
		totalSupply: new(big.Int),
		balances:    make(map[common.Address]*big.Int),
		allowances:  make(map[allowanceKey]*big.Int),
	}
}

func (t *Token) Address() common.Address { return t.address }
func (t *Token) Name() string            { return t.name }
func (t *Token) Symbol() string          { return t.symbol }
func (t *Token) Decimals() uint8         { return t.decimals }

func (t *Token) TotalSupply(ctx context.Context) (*big.Int, error) {
	var out *big.Int
	t.world.view(ctx, func() { out = new(big.Int).Set(t.totalSupply) })
	return out, nil
}

func (t *Token) BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error) {
	var out *big.Int
	t.world.view(ctx, func() { out = t.balanceOf(owner) })
	return out, nil
}

func (t *Token) Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error) {
	var out *big.Int
	t.world.view(ctx, func() {
		out = new(big.Int)
		if v, ok := t.allowances[allowanceKey{owner, spender}]; ok {
			out.Set(v)
		}
	})
	return out, nil
}

func (t *Token) Approve(ctx context.Context, caller, spender common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	return t.world.Atomic(ctx, func(ctx context.Context) error {
		tx := txFrom(ctx)
		setEntry(tx, t.allowances, allowanceKey{caller, spender}, new(big.Int).Set(amount))
		return t.emit(tx, "Approval", caller, spender, amount)
	})
}

func (t *Token) Transfer(ctx context.Context, caller, to common.Address, amount *big.Int) error {
	return t.world.Atomic(ctx, func(ctx context.Context) error {
		return t.move(txFrom(ctx), caller, to, amount)
	})
}

// TransferFrom moves amount from `from` using caller's allowance. An
// allowance of 2^256-1 is never decreased.
func (t *Token) TransferFrom(ctx context.Context, caller, from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	return t.world.Atomic(ctx, func(ctx context.Context) error {
		tx := txFrom(ctx)
		key := allowanceKey{from, caller}
		allowed, ok := t.allowances[key]
		if !ok || allowed.Cmp(amount) < 0 {
			return ErrInsufficientAllowance
		}
		if allowed.Cmp(maxUint256) != 0 {
			setEntry(tx, t.allowances, key, new(big.Int).Sub(allowed, amount))
		}
		return t.move(tx, from, to, amount)
	})
}

// Mint credits amount to `to` out of thin air.
func (t *Token) Mint(ctx context.Context, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	return t.world.Atomic(ctx, func(ctx context.Context) error {
		return t.mint(txFrom(ctx), to, amount)
	})
}

func (t *Token) balanceOf(owner common.Address) *big.Int {
	if v, ok := t.balances[owner]; ok {
		return new(big.Int).Set(v)
	}
	return new(big.Int)
}

func (t *Token) move(tx *txn, from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	fromBalance := t.balanceOf(from)
	if fromBalance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	setEntry(tx, t.balances, from, fromBalance.Sub(fromBalance, amount))
	toBalance := t.balanceOf(to)
	setEntry(tx, t.balances, to, toBalance.Add(toBalance, amount))
	return t.emit(tx, "Transfer", from, to, amount)
}

func (t *Token) mint(tx *txn, to common.Address, amount *big.Int) error {
	setField(tx, &t.totalSupply, new(big.Int).Add(t.totalSupply, amount))
	balance := t.balanceOf(to)
	setEntry(tx, t.balances, to, balance.Add(balance, amount))
	return t.emit(tx, "Transfer", common.Address{}, to, amount)
}

func (t *Token) burn(tx *txn, from common.Address, amount *big.Int) error {
	balance := t.balanceOf(from)
	if balance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	setEntry(tx, t.balances, from, balance.Sub(balance, amount))
	setField(tx, &t.totalSupply, new(big.Int).Sub(t.totalSupply, amount))
	return t.emit(tx, "Transfer", from, common.Address{}, amount)
}

func (t *Token) emit(tx *txn, name string, args ...interface{}) error {
	parsed, err := dex.ERC20ABI()
	if err != nil {
		return err
	}
	return t.world.emitEvent(tx, parsed, t.address, name, args...)
}
