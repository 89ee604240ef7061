// Package amm describes the constant-product pool surface consumed by the
// router, the optimal split calculator, the oracle and the flash borrower.
// Every method that needs msg.sender takes it as the explicit caller.
package amm

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
)

// Reserves is the result of getReserves.
type Reserves struct {
	Reserve0           *big.Int
	Reserve1           *big.Int
	BlockTimestampLast uint32
}

// Token is the ERC20 surface.
type Token interface {
	Address() common.Address
	TotalSupply(ctx context.Context) (*big.Int, error)
	BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error)
	Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error)
	Approve(ctx context.Context, caller, spender common.Address, amount *big.Int) error
	Transfer(ctx context.Context, caller, to common.Address, amount *big.Int) error
	TransferFrom(ctx context.Context, caller, from, to common.Address, amount *big.Int) error
}

// PairReader is the read-only part of a pair, enough for price oracles.
type PairReader interface {
	Address() common.Address
	Token0(ctx context.Context) (common.Address, error)
	Token1(ctx context.Context) (common.Address, error)
	GetReserves(ctx context.Context) (Reserves, error)
	Price0CumulativeLast(ctx context.Context) (*uint256.Int, error)
	Price1CumulativeLast(ctx context.Context) (*uint256.Int, error)
}

// Pair is a constant-product pool. Its LP token is the embedded Token.
type Pair interface {
	Token
	PairReader
	Mint(ctx context.Context, caller, to common.Address) (*big.Int, error)
	Burn(ctx context.Context, caller, to common.Address) (*big.Int, *big.Int, error)
	// Swap sends the requested amounts to `to` and, when data is non-empty,
	// calls back into `to` before checking the invariant.
	Swap(ctx context.Context, caller common.Address, amount0Out, amount1Out *big.Int, to common.Address, data []byte) error
	Skim(ctx context.Context, caller, to common.Address) error
	Sync(ctx context.Context, caller common.Address) error
}

// Factory creates and looks up pairs.
type Factory interface {
	Address() common.Address
	// GetPair returns the zero address when no pair exists.
	GetPair(ctx context.Context, tokenA, tokenB common.Address) (common.Address, error)
	CreatePair(ctx context.Context, caller, tokenA, tokenB common.Address) (common.Address, error)
	AllPairsLength(ctx context.Context) (int, error)
}

// Callee receives the flash-swap callback. caller is the pair invoking it,
// sender is the account that called Swap.
type Callee interface {
	UniswapV2Call(ctx context.Context, caller, sender common.Address, amount0, amount1 *big.Int, data []byte) error
}

// Clock reports the current block timestamp.
type Clock interface {
	Timestamp(ctx context.Context) (uint64, error)
}

// Env is the execution environment helper contracts run in.
type Env interface {
	Clock
	// Atomic runs fn as one transaction. Any error reverts every state
	// change made inside fn, including nested Atomic calls.
	Atomic(ctx context.Context, fn func(ctx context.Context) error) error
	// Deploy assigns an address to a helper contract. Contracts that
	// implement Callee receive flash-swap callbacks at that address.
	Deploy(contract interface{}) common.Address
	Token(address common.Address) (Token, error)
	Pair(address common.Address) (Pair, error)
	// Emit records a log in the current transaction.
	Emit(ctx context.Context, log types.Log) error
}
