package aggregate

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"ammKit/internal/dex"
)

const (
	tvlMethodSync   = "sync_reserves"
	tvlMethodBlock  = "balance_of_block"
	tvlMethodLatest = "balance_of_latest"
	tvlMethodNone   = "unavailable"
)

// closingReserves returns the pair's reserves at the end of the window.
// The last Sync in the window wins; without one the pair's token balances
// are read over RPC.
func (a *Aggregator) closingReserves(ctx context.Context, acc *Accumulator) (*big.Int, *big.Int, string, error) {
	if acc.Reserve0 != nil && acc.Reserve1 != nil {
		return acc.Reserve0, acc.Reserve1, tvlMethodSync, nil
	}
	if a.caller == nil || acc.LastBlock == 0 {
		return nil, nil, tvlMethodNone, nil
	}

	token0, token1, pairAddr := acc.PairMeta.Token0, acc.PairMeta.Token1, acc.PairAddress
	if !common.IsHexAddress(token0) || !common.IsHexAddress(token1) || !common.IsHexAddress(pairAddr) {
		return nil, nil, tvlMethodNone, fmt.Errorf("invalid address")
	}
	pair := common.HexToAddress(pairAddr)

	blockPtr := new(big.Int).SetUint64(acc.LastBlock)
	bal0, err0 := dex.FetchBalance(ctx, a.caller, common.HexToAddress(token0), pair, blockPtr)
	bal1, err1 := dex.FetchBalance(ctx, a.caller, common.HexToAddress(token1), pair, blockPtr)
	if err0 == nil && err1 == nil {
		return bal0, bal1, tvlMethodBlock, nil
	}

	bal0, err0 = dex.FetchBalance(ctx, a.caller, common.HexToAddress(token0), pair, nil)
	bal1, err1 = dex.FetchBalance(ctx, a.caller, common.HexToAddress(token1), pair, nil)
	if err0 == nil && err1 == nil {
		return bal0, bal1, tvlMethodLatest, nil
	}

	return nil, nil, tvlMethodNone, fmt.Errorf("balanceOf failed")
}
