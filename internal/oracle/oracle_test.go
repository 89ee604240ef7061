package oracle

import (
	"bufio"
	"context"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"ammKit/internal/amm"
	"ammKit/internal/sim"
	"ammKit/internal/storage"
)

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

type fixture struct {
	world *sim.World
	dai   *sim.Token
	weth  *sim.Token
	pair  amm.Pair
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	w := sim.NewWorld()
	f := fixture{
		world: w,
		dai:   w.DeployToken("Dai Stablecoin", "DAI", 18),
		weth:  w.DeployToken("Wrapped Ether", "WETH", 18),
	}
	lp := w.NewAccount()
	addr, err := w.DeployFactory().CreatePair(ctx, lp, f.dai.Address(), f.weth.Address())
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

func (f fixture) newOracle(t *testing.T, minPeriod time.Duration) *Oracle {
	t.Helper()
	o, err := New(context.Background(), f.pair, f.world, minPeriod)
	if err != nil {
		t.Fatalf("new oracle: %v", err)
	}
	return o
}

// spotQuote is amount * reserveOut / reserveIn truncated through UQ112x112.
func spotQuote(reserveIn, reserveOut, amount *big.Int) *big.Int {
	price := new(big.Int).Lsh(reserveOut, 112)
	price.Quo(price, reserveIn)
	out := price.Mul(price, amount)
	return out.Rsh(out, 112)
}

func TestUpdateEnforcesMinPeriod(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	o := f.newOracle(t, time.Hour)

	if got := o.Snapshot().Status; got != Uninitialized {
		t.Fatalf("status = %s, want uninitialized", got)
	}
	if got, err := o.Consult(f.dai.Address(), ether(1)); err != nil || got.Sign() != 0 {
		t.Fatalf("consult before update = %v, %v; want 0", got, err)
	}

	if err := o.Update(ctx); err != nil {
		t.Fatalf("first update: %v", err)
	}
	first := o.Snapshot()
	if first.Status != Ready {
		t.Fatalf("status = %s, want ready", first.Status)
	}

	if err := o.Update(ctx); !errors.Is(err, ErrPeriodTooShort) {
		t.Fatalf("immediate update err = %v, want %v", err, ErrPeriodTooShort)
	}
	f.world.AdvanceTime(30 * time.Minute)
	if err := o.Update(ctx); !errors.Is(err, ErrPeriodTooShort) {
		t.Fatalf("early update err = %v, want %v", err, ErrPeriodTooShort)
	}
	if !reflect.DeepEqual(o.Snapshot(), first) {
		t.Fatalf("rejected update changed state")
	}
	if got, _ := o.Consult(f.dai.Address(), ether(1)); got.Sign() != 0 {
		t.Fatalf("consult with no average = %s, want 0", got)
	}

	f.world.AdvanceTime(30 * time.Minute)
	if err := o.Update(ctx); err != nil {
		t.Fatalf("update after period: %v", err)
	}
	second := o.Snapshot()
	if second.BlockTimestampLast-first.BlockTimestampLast != 3600 {
		t.Fatalf("window = %d, want 3600", second.BlockTimestampLast-first.BlockTimestampLast)
	}

	got, err := o.Consult(f.dai.Address(), ether(1))
	if err != nil {
		t.Fatalf("consult dai: %v", err)
	}
	if want := big.NewInt(999999999999999); got.Cmp(want) != 0 {
		t.Fatalf("consult dai = %s, want %s", got, want)
	}
	got, err = o.Consult(f.weth.Address(), ether(1))
	if err != nil {
		t.Fatalf("consult weth: %v", err)
	}
	if want := spotQuote(ether(1_000), ether(1_000_000), ether(1)); got.Cmp(want) != 0 {
		t.Fatalf("consult weth = %s, want %s", got, want)
	}
}

func TestConsultRejectsForeignTokens(t *testing.T) {
	f := newFixture(t)
	o := f.newOracle(t, time.Hour)

	for _, token := range []common.Address{{}, f.pair.Address(), common.HexToAddress("0x1")} {
		if _, err := o.Consult(token, ether(1)); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("consult %s err = %v, want %v", token.Hex(), err, ErrInvalidToken)
		}
	}
}

func TestAverageTracksPriceMoves(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	o := f.newOracle(t, time.Hour)
	if err := o.Update(ctx); err != nil {
		t.Fatalf("first update: %v", err)
	}

	// Double the DAI reserve halfway through the window.
	f.world.AdvanceTime(30 * time.Minute)
	if err := f.dai.Mint(ctx, f.pair.Address(), ether(1_000_000)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := f.pair.Sync(ctx, common.Address{}); err != nil {
		t.Fatalf("sync: %v", err)
	}
	f.world.AdvanceTime(30 * time.Minute)
	if err := o.Update(ctx); err != nil {
		t.Fatalf("second update: %v", err)
	}

	got, err := o.Consult(f.weth.Address(), ether(1))
	if err != nil {
		t.Fatalf("consult: %v", err)
	}
	low := spotQuote(ether(1_000), ether(1_000_000), ether(1))
	high := spotQuote(ether(1_000), ether(2_000_000), ether(1))
	if got.Cmp(low) <= 0 || got.Cmp(high) >= 0 {
		t.Fatalf("average %s not between %s and %s", got, low, high)
	}
}

func TestCurrentCumulativePricesMatchesSync(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.world.AdvanceTime(2 * time.Hour)

	ts, p0, p1, err := CurrentCumulativePrices(ctx, f.pair, f.world)
	if err != nil {
		t.Fatalf("counterfactual: %v", err)
	}
	if err := f.pair.Sync(ctx, common.Address{}); err != nil {
		t.Fatalf("sync: %v", err)
	}
	ts2, q0, q1, err := CurrentCumulativePrices(ctx, f.pair, f.world)
	if err != nil {
		t.Fatalf("stored: %v", err)
	}
	if ts != ts2 || !p0.Eq(q0) || !p1.Eq(q1) {
		t.Fatalf("counterfactual (%d, %v, %v) != stored (%d, %v, %v)", ts, p0, p1, ts2, q0, q1)
	}
	stored, err := f.pair.Price0CumulativeLast(ctx)
	if err != nil {
		t.Fatalf("price0CumulativeLast: %v", err)
	}
	if !stored.Eq(q0) {
		t.Fatalf("stored cumulative %v, want %v", stored, q0)
	}
}

func TestRestore(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	o := f.newOracle(t, time.Hour)
	if err := o.Update(ctx); err != nil {
		t.Fatalf("first update: %v", err)
	}
	f.world.AdvanceTime(time.Hour)
	if err := o.Update(ctx); err != nil {
		t.Fatalf("second update: %v", err)
	}

	restored := f.newOracle(t, time.Hour)
	if err := restored.Restore(o.Snapshot()); err != nil {
		t.Fatalf("restore: %v", err)
	}
	want, _ := o.Consult(f.dai.Address(), ether(5))
	got, err := restored.Consult(f.dai.Address(), ether(5))
	if err != nil || got.Cmp(want) != 0 {
		t.Fatalf("restored consult = %v, %v; want %s", got, err, want)
	}
	// The restored window still applies.
	if err := restored.Update(ctx); !errors.Is(err, ErrPeriodTooShort) {
		t.Fatalf("update err = %v, want %v", err, ErrPeriodTooShort)
	}

	other := o.Snapshot()
	other.Pair = common.HexToAddress("0x2")
	if err := restored.Restore(other); !errors.Is(err, ErrStateMismatch) {
		t.Fatalf("foreign restore err = %v, want %v", err, ErrStateMismatch)
	}
}

func TestPollerPersistsObservations(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	dir := t.TempDir()
	cfg := PollConfig{
		ChainID:      1337,
		Interval:     time.Minute,
		MaxRetries:   1,
		RetryBackoff: time.Millisecond,
		StatePath:    filepath.Join(dir, "state", "oracle.json"),
		StateEnabled: true,
	}
	outPath := filepath.Join(dir, "observations.jsonl")
	poller := NewPoller(cfg, f.newOracle(t, time.Hour), storage.NewJsonlStorage(outPath), nil)

	for i, step := range []struct {
		advance time.Duration
		want    bool
	}{
		{0, true},
		{10 * time.Minute, false},
		{50 * time.Minute, true},
	} {
		f.world.AdvanceTime(step.advance)
		got, err := poller.Poll(ctx)
		if err != nil {
			t.Fatalf("poll %d: %v", i, err)
		}
		if got != step.want {
			t.Fatalf("poll %d accepted = %v, want %v", i, got, step.want)
		}
	}

	file, err := os.Open(outPath)
	if err != nil {
		t.Fatalf("open observations: %v", err)
	}
	defer file.Close()
	lines := 0
	for scanner := bufio.NewScanner(file); scanner.Scan(); {
		lines++
	}
	if lines != 2 {
		t.Fatalf("observations = %d, want 2", lines)
	}

	resumed := NewPoller(cfg, f.newOracle(t, time.Hour), nil, nil)
	if err := resumed.Restore(); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if !reflect.DeepEqual(resumed.oracle.Snapshot(), poller.oracle.Snapshot()) {
		t.Fatalf("resumed state = %+v, want %+v", resumed.oracle.Snapshot(), poller.oracle.Snapshot())
	}
}

func TestNewObservationDecodesAverages(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	o := f.newOracle(t, time.Minute)
	if err := o.Update(ctx); err != nil {
		t.Fatalf("first update: %v", err)
	}
	f.world.AdvanceTime(time.Minute)
	if err := o.Update(ctx); err != nil {
		t.Fatalf("second update: %v", err)
	}

	obs := NewObservation(1, o.Snapshot(), time.Unix(0, 0).UTC())
	var daiPrice, wethPrice string
	if o.Snapshot().Token0 == f.dai.Address() {
		daiPrice, wethPrice = obs.Price0, obs.Price1
	} else {
		daiPrice, wethPrice = obs.Price1, obs.Price0
	}
	if daiPrice != "0.001" {
		t.Fatalf("dai price = %s, want 0.001", daiPrice)
	}
	if wethPrice != "1000" {
		t.Fatalf("weth price = %s, want 1000", wethPrice)
	}
	if obs.ObservedAt != "1970-01-01T00:00:00Z" {
		t.Fatalf("observed at = %s", obs.ObservedAt)
	}
}
