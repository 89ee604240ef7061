package aggregate

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"ammKit/internal/dex"
	"ammKit/internal/model"
)

const feeMethodPair = "lp_fee_30bps"

// MetricsStore persists pairs and their window metrics. postgres.Store
// satisfies it.
type MetricsStore interface {
	UpsertPairs(ctx context.Context, pairs []model.Pair) error
	UpsertWindowMetrics(ctx context.Context, metrics []model.PairWindowMetrics) error
}

// Config controls aggregation behavior.
type Config struct {
	WindowSeconds uint64
	BatchSize     int
	RecomputeFrom uint64
	StateStore    StateStore
}

// Aggregator folds decoded pair events into per-window swap metrics.
// The caller is optional; without it amounts stay in raw token units and
// windows with no Sync report no reserves.
type Aggregator struct {
	cfg          Config
	store        MetricsStore
	caller       dex.Caller
	logger       *zap.Logger
	tokens       *dex.TokenMetaCache
	accumulators map[string]*Accumulator
	pairSeen     map[string]model.Pair
}

func NewAggregator(cfg Config, store MetricsStore, caller dex.Caller, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Aggregator{
		cfg:          cfg,
		store:        store,
		caller:       caller,
		logger:       logger,
		tokens:       dex.NewTokenMetaCache(),
		accumulators: make(map[string]*Accumulator),
		pairSeen:     make(map[string]model.Pair),
	}
}

// Run executes aggregation over a typed events JSONL file.
func (a *Aggregator) Run(ctx context.Context, inputPath string) error {
	file, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer file.Close()
	return a.Process(ctx, file)
}

// Process aggregates typed event JSON lines read from r.
func (a *Aggregator) Process(ctx context.Context, r io.Reader) error {
	if a.store == nil {
		return fmt.Errorf("store is nil")
	}
	if a.cfg.WindowSeconds == 0 {
		return fmt.Errorf("window seconds must be > 0")
	}
	if a.cfg.BatchSize <= 0 {
		a.cfg.BatchSize = 1000
	}

	startTs, err := a.loadStartTimestamp(ctx)
	if err != nil {
		return err
	}

	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 10*1024*1024)

	batch := make([]model.PairWindowMetrics, 0, a.cfg.BatchSize)
	pairs := make([]model.Pair, 0, 64)
	maxTs := startTs
	var total, windows, skipped, failed int

	flush := func(acc *Accumulator) error {
		metrics, pair, err := a.flushAccumulator(ctx, acc)
		if err != nil {
			return err
		}
		if metrics != nil {
			batch = append(batch, *metrics)
			windows++
		}
		if pair != nil {
			pairs = append(pairs, *pair)
		}
		return nil
	}

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		total++

		var record model.TypedEventRecord
		if err := json.Unmarshal(line, &record); err != nil {
			failed++
			a.logger.Warn("decode typed event", zap.Error(err))
			continue
		}

		if record.Timestamp <= startTs {
			skipped++
			continue
		}

		windowStart := windowStart(record.Timestamp, a.cfg.WindowSeconds)
		windowEnd := windowStart + a.cfg.WindowSeconds

		accKey := pairKey(record.Address)
		acc := a.accumulators[accKey]
		if acc == nil {
			acc = NewAccumulator(record, windowStart, windowEnd)
			a.accumulators[accKey] = acc
		} else if acc.WindowStart != windowStart {
			if err := flush(acc); err != nil {
				return err
			}
			acc = NewAccumulator(record, windowStart, windowEnd)
			a.accumulators[accKey] = acc
		}

		if err := acc.AddEvent(record); err != nil {
			failed++
			a.logger.Warn("aggregate event", zap.Error(err), zap.String("pair", record.Address), zap.String("event", record.EventName))
			continue
		}

		if record.Timestamp > maxTs {
			maxTs = record.Timestamp
		}

		if len(batch) >= a.cfg.BatchSize {
			if err := a.flushBatches(ctx, batch, pairs); err != nil {
				return err
			}
			batch = batch[:0]
			pairs = pairs[:0]

			if err := a.saveState(ctx); err != nil {
				return err
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan input: %w", err)
	}

	for _, acc := range a.accumulators {
		if err := flush(acc); err != nil {
			return err
		}
	}
	a.accumulators = make(map[string]*Accumulator)

	if len(batch) > 0 || len(pairs) > 0 {
		if err := a.flushBatches(ctx, batch, pairs); err != nil {
			return err
		}
	}

	a.cfg.RecomputeFrom = maxTs
	if err := a.saveState(ctx); err != nil {
		return err
	}

	a.logger.Info("aggregate complete",
		zap.Int("total", total),
		zap.Int("windows", windows),
		zap.Int("skipped", skipped),
		zap.Int("failed", failed),
	)

	return nil
}

func (a *Aggregator) loadStartTimestamp(ctx context.Context) (uint64, error) {
	if a.cfg.RecomputeFrom > 0 {
		return a.cfg.RecomputeFrom - 1, nil
	}
	if a.cfg.StateStore == nil {
		return 0, nil
	}
	last, ok, err := a.cfg.StateStore.Load(ctx)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return last, nil
}

func (a *Aggregator) saveState(ctx context.Context) error {
	if a.cfg.StateStore == nil {
		return nil
	}

	if len(a.accumulators) == 0 {
		return a.cfg.StateStore.Save(ctx, a.cfg.RecomputeFrom)
	}

	// Open windows are recomputed on the next run.
	safeTs := minOpenWindowStart(a.accumulators)
	if safeTs > 0 {
		safeTs = safeTs - 1
	}
	if safeTs == 0 {
		safeTs = a.cfg.RecomputeFrom
	}
	return a.cfg.StateStore.Save(ctx, safeTs)
}

func (a *Aggregator) flushBatches(ctx context.Context, batch []model.PairWindowMetrics, pairs []model.Pair) error {
	if len(pairs) > 0 {
		if err := a.store.UpsertPairs(ctx, pairs); err != nil {
			return err
		}
	}
	if len(batch) > 0 {
		if err := a.store.UpsertWindowMetrics(ctx, batch); err != nil {
			return err
		}
	}
	return nil
}

func (a *Aggregator) flushAccumulator(ctx context.Context, acc *Accumulator) (*model.PairWindowMetrics, *model.Pair, error) {
	if acc == nil {
		return nil, nil, nil
	}
	if acc.SwapCount == 0 && acc.Reserve0 == nil {
		return nil, nil, nil
	}

	meta := acc.PairMeta
	var pairRecord *model.Pair
	if meta.Token0 != "" && meta.Token1 != "" {
		pairRecord = a.registerPair(acc)
	} else {
		a.logger.Warn("missing pair meta", zap.String("pair", acc.PairAddress))
	}

	decimals0 := a.tokenDecimals(ctx, meta.Token0)
	decimals1 := a.tokenDecimals(ctx, meta.Token1)

	reserve0, reserve1, tvlMethod, err := a.closingReserves(ctx, acc)
	if err != nil {
		a.logger.Warn("reserves fetch failed", zap.String("pair", acc.PairAddress), zap.Error(err))
	}
	var reserve0Str, reserve1Str *string
	if reserve0 != nil && reserve1 != nil {
		r0 := formatTokenAmount(reserve0, decimals0)
		r1 := formatTokenAmount(reserve1, decimals1)
		reserve0Str, reserve1Str = &r0, &r1
	}

	feeRate0, feeRate1 := computeFeeRates(acc.Fee0, acc.Fee1, reserve0, reserve1)
	apr := computeAPR(acc.Fee0, acc.Fee1, reserve0, reserve1, a.cfg.WindowSeconds)

	metrics := &model.PairWindowMetrics{
		ChainID:        acc.ChainID,
		PairAddress:    acc.PairAddress,
		WindowSizeSecs: int64(a.cfg.WindowSeconds),
		WindowStart:    time.Unix(int64(acc.WindowStart), 0).UTC(),
		WindowEnd:      time.Unix(int64(acc.WindowEnd), 0).UTC(),
		SwapCount:      acc.SwapCount,
		Volume0:        formatTokenAmount(acc.Volume0, decimals0),
		Volume1:        formatTokenAmount(acc.Volume1, decimals1),
		Fee0:           formatTokenAmount(acc.Fee0, decimals0),
		Fee1:           formatTokenAmount(acc.Fee1, decimals1),
		FeeRate0:       feeRate0,
		FeeRate1:       feeRate1,
		Reserve0:       reserve0Str,
		Reserve1:       reserve1Str,
		APR:            apr,
		FeeMethod:      feeMethodPair,
		TVLMethod:      tvlMethod,
	}

	return metrics, pairRecord, nil
}

func (a *Aggregator) registerPair(acc *Accumulator) *model.Pair {
	key := pairKey(acc.PairAddress)
	pair := model.Pair{
		ChainID:        acc.ChainID,
		Address:        acc.PairAddress,
		Token0:         acc.PairMeta.Token0,
		Token1:         acc.PairMeta.Token1,
		FirstSeenBlock: acc.FirstBlock,
	}

	existing, ok := a.pairSeen[key]
	if ok && existing.FirstSeenBlock <= pair.FirstSeenBlock {
		return nil
	}

	a.pairSeen[key] = pair
	return &pair
}

// tokenDecimals returns 0, meaning raw units, when decimals are unknown.
func (a *Aggregator) tokenDecimals(ctx context.Context, token string) uint8 {
	if !common.IsHexAddress(token) {
		return 0
	}
	addr := common.HexToAddress(token)
	if meta, ok := a.tokens.Get(addr); ok {
		return meta.Decimals
	}
	if a.caller == nil {
		return 0
	}
	meta, err := dex.FetchTokenMeta(ctx, a.caller, addr, a.logger)
	if err != nil {
		a.logger.Warn("token decimals", zap.String("token", token), zap.Error(err))
		return 0
	}
	a.tokens.Set(addr, meta)
	return meta.Decimals
}

func windowStart(ts uint64, windowSec uint64) uint64 {
	return ts - (ts % windowSec)
}

func pairKey(address string) string {
	return strings.ToLower(address)
}

func minOpenWindowStart(acc map[string]*Accumulator) uint64 {
	var min uint64
	for _, entry := range acc {
		if entry == nil {
			continue
		}
		if min == 0 || entry.WindowStart < min {
			min = entry.WindowStart
		}
	}
	return min
}
