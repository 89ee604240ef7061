package indexer

import (
	"bufio"
	"context"
	"encoding/json"
	"math/big"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"ammKit/internal/dex"
	"ammKit/internal/model"
	"ammKit/internal/router"
	"ammKit/internal/sim"
	"ammKit/internal/storage"
)

type simChain struct {
	world  *sim.World
	router *router.Router
	dai    *sim.Token
	weth   *sim.Token
	trader common.Address
	pair   common.Address
}

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

func newSimChain(t *testing.T) *simChain {
	t.Helper()
	ctx := context.Background()
	w := sim.NewWorld(sim.WithChainID(31337))
	c := &simChain{
		world:  w,
		dai:    w.DeployToken("Dai Stablecoin", "DAI", 18),
		weth:   w.DeployToken("Wrapped Ether", "WETH", 18),
		trader: w.NewAccount(),
	}
	factory := w.DeployFactory()
	c.router = router.New(w, factory, nil)

	lp := w.NewAccount()
	c.fund(t, lp, c.dai, ether(1_000_000))
	c.fund(t, lp, c.weth, ether(1_000))
	if _, err := c.router.AddLiquidity(ctx, lp, c.dai.Address(), c.weth.Address(), ether(1_000_000), ether(1_000), c.deadline(t)); err != nil {
		t.Fatalf("seed liquidity: %v", err)
	}
	pair, err := factory.GetPair(ctx, c.dai.Address(), c.weth.Address())
	if err != nil {
		t.Fatalf("get pair: %v", err)
	}
	c.pair = pair
	return c
}

func (c *simChain) fund(t *testing.T, account common.Address, token *sim.Token, amount *big.Int) {
	t.Helper()
	ctx := context.Background()
	if err := token.Mint(ctx, account, amount); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := token.Approve(ctx, account, c.router.Address(), amount); err != nil {
		t.Fatalf("approve: %v", err)
	}
}

func (c *simChain) deadline(t *testing.T) uint64 {
	t.Helper()
	now, err := c.world.Timestamp(context.Background())
	if err != nil {
		t.Fatalf("timestamp: %v", err)
	}
	return now + 60
}

func (c *simChain) swap(t *testing.T) {
	t.Helper()
	c.fund(t, c.trader, c.weth, ether(1))
	if _, err := c.router.Swap(context.Background(), c.trader, c.weth.Address(), c.dai.Address(), ether(1), c.trader, c.deadline(t)); err != nil {
		t.Fatalf("swap: %v", err)
	}
}

func readRecords(t *testing.T, path string) []model.LogRecord {
	t.Helper()
	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	defer file.Close()

	var records []model.LogRecord
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var record model.LogRecord
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			t.Fatalf("parse record: %v", err)
		}
		records = append(records, record)
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan output: %v", err)
	}
	return records
}

func TestRunnerIndexesSimulatedChain(t *testing.T) {
	chain := newSimChain(t)
	chain.swap(t)

	pairABI, err := dex.V2PairABI()
	if err != nil {
		t.Fatalf("pair abi: %v", err)
	}
	dir := t.TempDir()
	out := filepath.Join(dir, "logs.jsonl")
	cfg := RunConfig{
		FromBlock:         1,
		Addresses:         []common.Address{chain.pair},
		Topic0:            []common.Hash{pairABI.Events["Swap"].ID, pairABI.Events["Sync"].ID},
		BatchSize:         3,
		CheckpointPath:    filepath.Join(dir, "checkpoint.json"),
		CheckpointEnabled: true,
	}

	ctx := context.Background()
	if err := NewRunner(cfg, chain.world, storage.NewJsonlStorage(out), nil).Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}

	records := readRecords(t, out)
	decoder, err := dex.NewV2PairDecoder(dex.DecoderConfig{})
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}
	var names []string
	for _, record := range records {
		if record.ChainID != 31337 || record.Address != chain.pair.Hex() {
			t.Fatalf("unexpected record: %+v", record)
		}
		if record.Timestamp == 0 {
			t.Fatalf("expected block timestamp on record %+v", record)
		}
		event, err := decoder.Decode(record, dex.DecodeContext{Context: ctx})
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		names = append(names, event.EventName)
	}
	if want := []string{"Sync", "Sync", "Swap"}; !reflect.DeepEqual(names, want) {
		t.Fatalf("events mismatch: got %v want %v", names, want)
	}

	cp, ok, err := NewCheckpointStore(cfg.CheckpointPath, true).Load(31337)
	if err != nil || !ok {
		t.Fatalf("checkpoint: %v %v", ok, err)
	}
	latest, _ := chain.world.LatestBlockNumber(ctx)
	if cp.LastProcessedBlock != latest {
		t.Fatalf("checkpoint at %d, want %d", cp.LastProcessedBlock, latest)
	}

	// A rerun resumes from the checkpoint and only picks up new blocks.
	if err := NewRunner(cfg, chain.world, storage.NewJsonlStorage(out), nil).Run(ctx); err != nil {
		t.Fatalf("rerun: %v", err)
	}
	if got := len(readRecords(t, out)); got != 3 {
		t.Fatalf("rerun duplicated logs: %d records", got)
	}

	chain.swap(t)
	if err := NewRunner(cfg, chain.world, storage.NewJsonlStorage(out), nil).Run(ctx); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if got := len(readRecords(t, out)); got != 5 {
		t.Fatalf("expected 5 records after resume, got %d", got)
	}
}

func TestRunnerValidatesConfig(t *testing.T) {
	chain := newSimChain(t)
	ctx := context.Background()
	sink := storage.NewJsonlStorage(filepath.Join(t.TempDir(), "logs.jsonl"))

	if err := NewRunner(RunConfig{Addresses: []common.Address{chain.pair}}, chain.world, sink, nil).Run(ctx); err == nil {
		t.Fatalf("expected batch size error")
	}
	if err := NewRunner(RunConfig{BatchSize: 10}, chain.world, sink, nil).Run(ctx); err == nil {
		t.Fatalf("expected address error")
	}
	if err := NewRunner(RunConfig{BatchSize: 10, Addresses: []common.Address{chain.pair}}, nil, sink, nil).Run(ctx); err == nil {
		t.Fatalf("expected nil source error")
	}
}
