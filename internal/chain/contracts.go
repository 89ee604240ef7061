package chain

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"ammKit/internal/amm"
	"ammKit/internal/dex"
)

// PairContract reads a deployed UniswapV2Pair over RPC. It satisfies
// amm.PairReader so the oracle can track live pairs.
type PairContract struct {
	caller  dex.Caller
	address common.Address
}

func NewPairContract(caller dex.Caller, address common.Address) *PairContract {
	return &PairContract{caller: caller, address: address}
}

func (p *PairContract) Address() common.Address { return p.address }

func (p *PairContract) Token0(ctx context.Context) (common.Address, error) {
	return p.callAddress(ctx, "token0")
}

func (p *PairContract) Token1(ctx context.Context) (common.Address, error) {
	return p.callAddress(ctx, "token1")
}

func (p *PairContract) GetReserves(ctx context.Context) (amm.Reserves, error) {
	reserve0, reserve1, ts, err := dex.FetchPairReserves(ctx, p.caller, p.address, 0)
	if err != nil {
		return amm.Reserves{}, err
	}
	return amm.Reserves{Reserve0: reserve0, Reserve1: reserve1, BlockTimestampLast: ts}, nil
}

func (p *PairContract) Price0CumulativeLast(ctx context.Context) (*uint256.Int, error) {
	return p.callUint256(ctx, "price0CumulativeLast")
}

func (p *PairContract) Price1CumulativeLast(ctx context.Context) (*uint256.Int, error) {
	return p.callUint256(ctx, "price1CumulativeLast")
}

func (p *PairContract) callAddress(ctx context.Context, method string) (common.Address, error) {
	parsed, err := dex.V2PairABI()
	if err != nil {
		return common.Address{}, err
	}
	values, err := dex.CallMethod(ctx, p.caller, p.address, parsed, method, nil)
	if err != nil {
		return common.Address{}, err
	}
	if len(values) != 1 {
		return common.Address{}, fmt.Errorf("%s return size %d", method, len(values))
	}
	return dex.AsAddress(values[0])
}

func (p *PairContract) callUint256(ctx context.Context, method string) (*uint256.Int, error) {
	parsed, err := dex.V2PairABI()
	if err != nil {
		return nil, err
	}
	values, err := dex.CallMethod(ctx, p.caller, p.address, parsed, method, nil)
	if err != nil {
		return nil, err
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("%s return size %d", method, len(values))
	}
	v, err := dex.AsBigInt(values[0])
	if err != nil {
		return nil, err
	}
	out, overflow := uint256.FromBig(v)
	if overflow {
		return nil, fmt.Errorf("%s overflows uint256", method)
	}
	return out, nil
}

// FactoryContract reads a deployed UniswapV2Factory over RPC.
type FactoryContract struct {
	caller  dex.Caller
	address common.Address
}

func NewFactoryContract(caller dex.Caller, address common.Address) *FactoryContract {
	return &FactoryContract{caller: caller, address: address}
}

func (f *FactoryContract) Address() common.Address { return f.address }

// GetPair returns the zero address when no pair exists.
func (f *FactoryContract) GetPair(ctx context.Context, tokenA, tokenB common.Address) (common.Address, error) {
	parsed, err := dex.V2FactoryABI()
	if err != nil {
		return common.Address{}, err
	}
	values, err := dex.CallMethod(ctx, f.caller, f.address, parsed, "getPair", nil, tokenA, tokenB)
	if err != nil {
		return common.Address{}, err
	}
	if len(values) != 1 {
		return common.Address{}, fmt.Errorf("getPair return size %d", len(values))
	}
	return dex.AsAddress(values[0])
}

func (f *FactoryContract) AllPairsLength(ctx context.Context) (int, error) {
	parsed, err := dex.V2FactoryABI()
	if err != nil {
		return 0, err
	}
	values, err := dex.CallMethod(ctx, f.caller, f.address, parsed, "allPairsLength", nil)
	if err != nil {
		return 0, err
	}
	if len(values) != 1 {
		return 0, fmt.Errorf("allPairsLength return size %d", len(values))
	}
	n, err := dex.AsBigInt(values[0])
	if err != nil {
		return 0, err
	}
	if !n.IsInt64() {
		return 0, fmt.Errorf("allPairsLength out of range: %s", n)
	}
	return int(n.Int64()), nil
}
