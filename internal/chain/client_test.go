package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"

	"ammKit/internal/dex"
)

var (
	fakePair    = common.HexToAddress("0xA478c2975Ab1Ea89e8196811F51A7B7Ade33eB11")
	fakeFactory = common.HexToAddress("0x5C69bEe701ef814a2B6a3EDD4B1652CB9cc5aA6f")
	fakeDai     = common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F")
	fakeWeth    = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
)

// fakeEth serves the handful of eth_ methods the client uses.
type fakeEth struct {
	mu           sync.Mutex
	head         uint64
	headerCalls  int
	pairABI      abi.ABI
	factoryABI   abi.ABI
	price0       *big.Int
	reserve0     *big.Int
	reserve1     *big.Int
	reservesTime uint32
}

func (f *fakeEth) ChainId() *hexutil.Big {
	return (*hexutil.Big)(big.NewInt(1))
}

func (f *fakeEth) BlockNumber() hexutil.Uint64 {
	return hexutil.Uint64(f.head)
}

func (f *fakeEth) GetBlockByNumber(number string, _ bool) (*types.Header, error) {
	f.mu.Lock()
	f.headerCalls++
	f.mu.Unlock()

	n := f.head
	if number != "latest" {
		parsed, err := hexutil.DecodeUint64(number)
		if err != nil {
			return nil, err
		}
		n = parsed
	}
	return &types.Header{
		Number:     new(big.Int).SetUint64(n),
		Difficulty: big.NewInt(0),
		Time:       1700000000 + n*12,
	}, nil
}

func (f *fakeEth) Call(args map[string]interface{}, _ string) (hexutil.Bytes, error) {
	raw, ok := args["input"].(string)
	if !ok {
		raw, ok = args["data"].(string)
	}
	if !ok {
		return nil, fmt.Errorf("missing call input")
	}
	input, err := hexutil.Decode(raw)
	if err != nil {
		return nil, err
	}
	to, _ := args["to"].(string)

	parsed := f.pairABI
	if strings.EqualFold(to, fakeFactory.Hex()) {
		parsed = f.factoryABI
	}
	method, err := parsed.MethodById(input[:4])
	if err != nil {
		return nil, err
	}

	switch method.Name {
	case "token0":
		return method.Outputs.Pack(fakeDai)
	case "token1":
		return method.Outputs.Pack(fakeWeth)
	case "getReserves":
		return method.Outputs.Pack(f.reserve0, f.reserve1, f.reservesTime)
	case "price0CumulativeLast":
		return method.Outputs.Pack(f.price0)
	case "price1CumulativeLast":
		return method.Outputs.Pack(big.NewInt(0))
	case "getPair":
		values, err := method.Inputs.Unpack(input[4:])
		if err != nil {
			return nil, err
		}
		a, b := values[0].(common.Address), values[1].(common.Address)
		if (a == fakeDai && b == fakeWeth) || (a == fakeWeth && b == fakeDai) {
			return method.Outputs.Pack(fakePair)
		}
		return method.Outputs.Pack(common.Address{})
	case "allPairsLength":
		return method.Outputs.Pack(big.NewInt(1))
	}
	return nil, fmt.Errorf("unexpected method %s", method.Name)
}

func newFakeClient(t *testing.T) (*Client, *fakeEth) {
	t.Helper()
	pairABI, err := dex.V2PairABI()
	if err != nil {
		t.Fatalf("pair abi: %v", err)
	}
	factoryABI, err := dex.V2FactoryABI()
	if err != nil {
		t.Fatalf("factory abi: %v", err)
	}
	price0, _ := new(big.Int).SetString("5192296858534827628530496329220096000", 10)
	fake := &fakeEth{
		head:         100,
		pairABI:      pairABI,
		factoryABI:   factoryABI,
		price0:       price0,
		reserve0:     new(big.Int).Exp(big.NewInt(10), big.NewInt(24), nil),
		reserve1:     new(big.Int).Exp(big.NewInt(10), big.NewInt(21), nil),
		reservesTime: 1700000600,
	}

	server := rpc.NewServer()
	if err := server.RegisterName("eth", fake); err != nil {
		t.Fatalf("register: %v", err)
	}
	client := NewClientFromRPC(rpc.DialInProc(server))
	t.Cleanup(func() {
		client.Close()
		server.Stop()
	})
	return client, fake
}

func TestClientBlockHelpers(t *testing.T) {
	client, fake := newFakeClient(t)
	ctx := context.Background()

	chainID, err := client.GetChainID(ctx)
	if err != nil || chainID.Uint64() != 1 {
		t.Fatalf("chain id: %v %v", chainID, err)
	}
	head, err := client.LatestBlockNumber(ctx)
	if err != nil || head != 100 {
		t.Fatalf("latest block: %d %v", head, err)
	}
	now, err := client.Timestamp(ctx)
	if err != nil || now != 1700001200 {
		t.Fatalf("timestamp: %d %v", now, err)
	}

	for i := 0; i < 2; i++ {
		ts, err := client.BlockTimestamp(ctx, 10)
		if err != nil || ts != 1700000120 {
			t.Fatalf("block timestamp: %d %v", ts, err)
		}
	}
	fake.mu.Lock()
	calls := fake.headerCalls
	fake.mu.Unlock()
	if calls != 2 {
		t.Fatalf("expected cached block timestamp, got %d header calls", calls)
	}
}

func TestPairContractReads(t *testing.T) {
	client, fake := newFakeClient(t)
	ctx := context.Background()
	pair := NewPairContract(client, fakePair)

	token0, err := pair.Token0(ctx)
	if err != nil || token0 != fakeDai {
		t.Fatalf("token0: %s %v", token0.Hex(), err)
	}
	token1, err := pair.Token1(ctx)
	if err != nil || token1 != fakeWeth {
		t.Fatalf("token1: %s %v", token1.Hex(), err)
	}

	reserves, err := pair.GetReserves(ctx)
	if err != nil {
		t.Fatalf("reserves: %v", err)
	}
	if reserves.Reserve0.Cmp(fake.reserve0) != 0 || reserves.Reserve1.Cmp(fake.reserve1) != 0 || reserves.BlockTimestampLast != fake.reservesTime {
		t.Fatalf("unexpected reserves: %+v", reserves)
	}

	price0, err := pair.Price0CumulativeLast(ctx)
	if err != nil {
		t.Fatalf("price0: %v", err)
	}
	if price0.ToBig().Cmp(fake.price0) != 0 {
		t.Fatalf("price0 mismatch: %v", price0)
	}
	price1, err := pair.Price1CumulativeLast(ctx)
	if err != nil || !price1.IsZero() {
		t.Fatalf("price1: %v %v", price1, err)
	}
}

func TestFactoryContractReads(t *testing.T) {
	client, _ := newFakeClient(t)
	ctx := context.Background()
	factory := NewFactoryContract(client, fakeFactory)

	pair, err := factory.GetPair(ctx, fakeWeth, fakeDai)
	if err != nil || pair != fakePair {
		t.Fatalf("get pair: %s %v", pair.Hex(), err)
	}
	missing, err := factory.GetPair(ctx, fakeDai, common.HexToAddress("0x01"))
	if err != nil || missing != (common.Address{}) {
		t.Fatalf("expected zero address, got %s %v", missing.Hex(), err)
	}
	n, err := factory.AllPairsLength(ctx)
	if err != nil || n != 1 {
		t.Fatalf("all pairs length: %d %v", n, err)
	}
}
