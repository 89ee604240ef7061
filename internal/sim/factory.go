package sim

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"ammKit/internal/amm"
	"ammKit/internal/dex"
	"ammKit/internal/uniswapv2"
)

var ErrPairExists = errors.New("UniswapV2: PAIR_EXISTS")

var _ amm.Factory = (*Factory)(nil)

type pairKey struct {
	tokenA common.Address
	tokenB common.Address
}

// Factory deploys pairs at their CREATE2 addresses.
type Factory struct {
	world    *World
	address  common.Address
	getPair  map[pairKey]common.Address
	allPairs []common.Address
}

func newFactory(w *World, address common.Address) *Factory {
	return &Factory{
		world:   w,
		address: address,
		getPair: make(map[pairKey]common.Address),
	}
}

func (f *Factory) Address() common.Address { return f.address }

func (f *Factory) GetPair(ctx context.Context, tokenA, tokenB common.Address) (common.Address, error) {
	var pair common.Address
	f.world.view(ctx, func() { pair = f.getPair[pairKey{tokenA, tokenB}] })
	return pair, nil
}

func (f *Factory) AllPairsLength(ctx context.Context) (int, error) {
	var n int
	f.world.view(ctx, func() { n = len(f.allPairs) })
	return n, nil
}

func (f *Factory) CreatePair(ctx context.Context, _ common.Address, tokenA, tokenB common.Address) (common.Address, error) {
	token0, token1, err := uniswapv2.SortTokens(tokenA, tokenB)
	if err != nil {
		return common.Address{}, err
	}
	address, err := uniswapv2.PairFor(f.address, token0, token1, uniswapv2.PairInitCodeHash)
	if err != nil {
		return common.Address{}, err
	}

	err = f.world.Atomic(ctx, func(ctx context.Context) error {
		tx := txFrom(ctx)
		if _, ok := f.getPair[pairKey{token0, token1}]; ok {
			return ErrPairExists
		}
		if _, err := f.world.lookupToken(token0); err != nil {
			return err
		}
		if _, err := f.world.lookupToken(token1); err != nil {
			return err
		}

		f.world.registerPair(tx, newPair(f.world, address, f.address, token0, token1))
		setEntry(tx, f.getPair, pairKey{token0, token1}, address)
		setEntry(tx, f.getPair, pairKey{token1, token0}, address)
		pairs := append(append([]common.Address(nil), f.allPairs...), address)
		setField(tx, &f.allPairs, pairs)

		parsed, err := dex.V2FactoryABI()
		if err != nil {
			return err
		}
		return f.world.emitEvent(tx, parsed, f.address, "PairCreated", token0, token1, address, big.NewInt(int64(len(pairs))))
	})
	if err != nil {
		return common.Address{}, err
	}
	return address, nil
}
