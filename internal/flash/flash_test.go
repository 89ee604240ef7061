package flash

import (
	"context"
	"errors"
	"math/big"
	"reflect"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"ammKit/internal/amm"
	"ammKit/internal/dex"
	"ammKit/internal/sim"
)

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

type fixture struct {
	world     *sim.World
	dai       *sim.Token
	weth      *sim.Token
	pair      amm.Pair
	initiator common.Address
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	w := sim.NewWorld()
	f := fixture{
		world:     w,
		dai:       w.DeployToken("Dai Stablecoin", "DAI", 18),
		weth:      w.DeployToken("Wrapped Ether", "WETH", 18),
		initiator: w.NewAccount(),
	}
	factory := w.DeployFactory()
	lp := w.NewAccount()
	addr, err := factory.CreatePair(ctx, lp, f.dai.Address(), f.weth.Address())
	if err != nil {
		t.Fatalf("create pair: %v", err)
	}
	if f.pair, err = w.Pair(addr); err != nil {
		t.Fatalf("pair: %v", err)
	}
	if err := f.dai.Mint(ctx, addr, ether(1_000_000)); err != nil {
		t.Fatalf("mint dai: %v", err)
	}
	if err := f.weth.Mint(ctx, addr, ether(1_000)); err != nil {
		t.Fatalf("mint weth: %v", err)
	}
	if _, err := f.pair.Mint(ctx, lp, lp); err != nil {
		t.Fatalf("mint lp: %v", err)
	}
	return f
}

// fundFee gives the initiator enough WETH for the fee and approves b.
func (f fixture) fundFee(t *testing.T, b *Borrower, amount *big.Int) {
	t.Helper()
	ctx := context.Background()
	if err := f.weth.Mint(ctx, f.initiator, amount); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := f.weth.Approve(ctx, f.initiator, b.Address(), amount); err != nil {
		t.Fatalf("approve: %v", err)
	}
}

func (f fixture) wethReserve(t *testing.T) *big.Int {
	t.Helper()
	ctx := context.Background()
	reserves, err := f.pair.GetReserves(ctx)
	if err != nil {
		t.Fatalf("reserves: %v", err)
	}
	token0, _ := f.pair.Token0(ctx)
	if token0 == f.weth.Address() {
		return reserves.Reserve0
	}
	return reserves.Reserve1
}

func TestFee(t *testing.T) {
	cases := map[int64]int64{
		1000:       4,
		1:          1,
		997:        4,
		1e18 / 1e3: 3009027081244,
	}
	for amount, want := range cases {
		if got := Fee(big.NewInt(amount)); got.Cmp(big.NewInt(want)) != 0 {
			t.Fatalf("Fee(%d) = %s, want %d", amount, got, want)
		}
	}
	want, _ := new(big.Int).SetString("3009027081243732", 10)
	if got := Fee(ether(1)); got.Cmp(want) != 0 {
		t.Fatalf("Fee(1 ether) = %s, want %s", got, want)
	}
}

func TestRequestEncoding(t *testing.T) {
	req := Request{
		Token:     common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"),
		Amount:    ether(3),
		Pair:      common.HexToAddress("0xA478c2975Ab1Ea89e8196811F51A7B7Ade33eB11"),
		Initiator: common.HexToAddress("0x0000000000000000000000000000000000000001"),
		Borrower:  common.HexToAddress("0x0000000000000000000000000000000000000002"),
	}
	data, err := req.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(data) != 5*32 {
		t.Fatalf("payload length = %d", len(data))
	}
	got, err := DecodeRequest(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(got, req) {
		t.Fatalf("decoded %+v, want %+v", got, req)
	}
	if _, err := DecodeRequest(data[:64]); err == nil {
		t.Fatalf("expected error for short payload")
	}
}

func TestFlashSwapRepaysWithFee(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	var seen Request
	b, err := New(f.world, f.pair.Address(), f.weth.Address(), WithStrategy(func(ctx context.Context, req Request) error {
		seen = req
		held, err := f.weth.BalanceOf(ctx, req.Borrower)
		if err != nil {
			return err
		}
		if held.Cmp(req.Amount) != 0 {
			t.Errorf("borrower holds %s during callback, want %s", held, req.Amount)
		}
		return nil
	}))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	fee := Fee(ether(1))
	f.fundFee(t, b, fee)
	before := f.wethReserve(t)

	if err := b.FlashSwap(ctx, f.initiator, f.weth.Address(), ether(1)); err != nil {
		t.Fatalf("flash swap: %v", err)
	}

	if want := new(big.Int).Add(before, fee); f.wethReserve(t).Cmp(want) != 0 {
		t.Fatalf("weth reserve = %s, want %s", f.wethReserve(t), want)
	}
	if got, _ := f.weth.BalanceOf(ctx, f.initiator); got.Sign() != 0 {
		t.Fatalf("initiator weth = %s, want 0", got)
	}
	if got, _ := f.weth.BalanceOf(ctx, b.Address()); got.Sign() != 0 {
		t.Fatalf("borrower weth = %s, want 0", got)
	}
	want := Request{Token: f.weth.Address(), Amount: ether(1), Pair: f.pair.Address(), Initiator: f.initiator, Borrower: b.Address()}
	if !reflect.DeepEqual(seen, want) {
		t.Fatalf("strategy saw %+v, want %+v", seen, want)
	}

	block, ok := f.world.LastBlock()
	if !ok {
		t.Fatalf("no block")
	}
	logs, err := f.world.FilterLogs(ctx, block.Number, block.Number, []common.Address{b.Address()}, nil)
	if err != nil {
		t.Fatalf("filter logs: %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("borrower logs = %d, want 1", len(logs))
	}
	parsed, err := dex.HelperABI()
	if err != nil {
		t.Fatalf("helper abi: %v", err)
	}
	event := parsed.Events["FlashSwapRepaid"]
	if logs[0].Topics[0] != event.ID {
		t.Fatalf("topic = %s", logs[0].Topics[0].Hex())
	}
	values, err := event.Inputs.NonIndexed().Unpack(logs[0].Data)
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	if values[0].(*big.Int).Cmp(ether(1)) != 0 || values[1].(*big.Int).Cmp(fee) != 0 {
		t.Fatalf("event values = %v", values)
	}
}

func TestFlashSwapRevertsAtomically(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	boom := errors.New("boom")

	failing, err := New(f.world, f.pair.Address(), f.weth.Address(), WithStrategy(func(context.Context, Request) error {
		return boom
	}))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	f.fundFee(t, failing, Fee(ether(1)))
	unfunded, err := New(f.world, f.pair.Address(), f.weth.Address())
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	before := f.wethReserve(t)
	last, _ := f.world.LastBlock()

	if err := failing.FlashSwap(ctx, f.initiator, f.weth.Address(), ether(1)); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	if err := unfunded.FlashSwap(ctx, f.world.NewAccount(), f.weth.Address(), ether(1)); !errors.Is(err, sim.ErrInsufficientAllowance) {
		t.Fatalf("err = %v, want %v", err, sim.ErrInsufficientAllowance)
	}

	if f.wethReserve(t).Cmp(before) != 0 {
		t.Fatalf("weth reserve changed: %s -> %s", before, f.wethReserve(t))
	}
	if got, _ := f.weth.BalanceOf(ctx, f.initiator); got.Cmp(Fee(ether(1))) != 0 {
		t.Fatalf("initiator weth = %s, want untouched", got)
	}
	if got, _ := f.world.LastBlock(); got.Number != last.Number {
		t.Fatalf("reverted flash swaps committed block %d", got.Number)
	}
}

func TestFlashSwapValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	if _, err := New(f.world, common.Address{}, f.weth.Address()); !errors.Is(err, ErrInvalidPair) {
		t.Fatalf("zero pair err = %v, want %v", err, ErrInvalidPair)
	}

	b, err := New(f.world, f.pair.Address(), f.weth.Address())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	f.fundFee(t, b, ether(1))

	if err := b.FlashSwap(ctx, f.initiator, f.weth.Address(), new(big.Int)); !errors.Is(err, ErrZeroAmount) {
		t.Fatalf("zero amount err = %v, want %v", err, ErrZeroAmount)
	}
	if err := b.FlashSwap(ctx, f.initiator, f.dai.Address(), ether(1)); !errors.Is(err, ErrOnlyBase) {
		t.Fatalf("dai borrow err = %v, want %v", err, ErrOnlyBase)
	}

	usdc := f.world.DeployToken("USD Coin", "USDC", 6)
	if err := b.FlashSwap(ctx, f.initiator, usdc.Address(), big.NewInt(1_000_000)); !errors.Is(err, ErrOnlyBase) {
		t.Fatalf("foreign token borrow err = %v, want %v", err, ErrOnlyBase)
	}
	if got := f.wethReserve(t); got.Cmp(ether(1_000)) != 0 {
		t.Fatalf("weth reserve = %s, want untouched", got)
	}
}

func TestCallbackRejectsStrangers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	b, err := New(f.world, f.pair.Address(), f.weth.Address())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	data, err := Request{Token: f.weth.Address(), Amount: ether(1), Pair: f.pair.Address(), Initiator: f.initiator, Borrower: b.Address()}.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	stranger := f.world.NewAccount()

	err = b.UniswapV2Call(ctx, f.pair.Address(), stranger, new(big.Int), ether(1), data)
	if !errors.Is(err, ErrNotBorrower) || !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("foreign sender err = %v", err)
	}
	if err.Error() != "Only UniswapV2FlashSwap!" {
		t.Fatalf("message = %q", err.Error())
	}

	err = b.UniswapV2Call(ctx, stranger, b.Address(), new(big.Int), ether(1), data)
	if !errors.Is(err, ErrNotPair) || !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("foreign caller err = %v", err)
	}
	if err.Error() != "Only UniswapV2Pair!" {
		t.Fatalf("message = %q", err.Error())
	}

	forged, err := Request{Token: f.weth.Address(), Amount: ether(1), Pair: f.pair.Address(), Initiator: f.initiator, Borrower: stranger}.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := b.UniswapV2Call(ctx, f.pair.Address(), b.Address(), new(big.Int), ether(1), forged); !errors.Is(err, ErrNotBorrower) {
		t.Fatalf("payload borrower err = %v, want %v", err, ErrNotBorrower)
	}
	forged, err = Request{Token: f.weth.Address(), Amount: ether(1), Pair: stranger, Initiator: f.initiator, Borrower: b.Address()}.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := b.UniswapV2Call(ctx, f.pair.Address(), b.Address(), new(big.Int), ether(1), forged); !errors.Is(err, ErrNotPair) {
		t.Fatalf("payload pair err = %v, want %v", err, ErrNotPair)
	}
	forged, err = Request{Token: f.dai.Address(), Amount: ether(1), Pair: f.pair.Address(), Initiator: f.initiator, Borrower: b.Address()}.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := b.UniswapV2Call(ctx, f.pair.Address(), b.Address(), ether(1), new(big.Int), forged); !errors.Is(err, ErrOnlyBase) {
		t.Fatalf("payload token err = %v, want %v", err, ErrOnlyBase)
	}
}
