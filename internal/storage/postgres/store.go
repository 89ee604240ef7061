package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ammKit/internal/model"
)

// Schema creates the tables the store writes to.
const Schema = `
CREATE TABLE IF NOT EXISTS pairs (
	chain_id BIGINT NOT NULL,
	pair_address TEXT NOT NULL,
	token0 TEXT NOT NULL,
	token1 TEXT NOT NULL,
	first_seen_block BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (chain_id, pair_address)
);

CREATE TABLE IF NOT EXISTS pair_window_metrics (
	chain_id BIGINT NOT NULL,
	pair_address TEXT NOT NULL,
	window_size_seconds BIGINT NOT NULL,
	window_start_ts TIMESTAMPTZ NOT NULL,
	window_end_ts TIMESTAMPTZ NOT NULL,
	swap_count BIGINT NOT NULL,
	volume0 NUMERIC NOT NULL,
	volume1 NUMERIC NOT NULL,
	fee0 NUMERIC NOT NULL,
	fee1 NUMERIC NOT NULL,
	fee_rate0 NUMERIC,
	fee_rate1 NUMERIC,
	reserve0 NUMERIC,
	reserve1 NUMERIC,
	apr NUMERIC,
	fee_method TEXT NOT NULL,
	tvl_method TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (chain_id, pair_address, window_size_seconds, window_start_ts)
);

CREATE TABLE IF NOT EXISTS oracle_observations (
	chain_id BIGINT NOT NULL,
	pair_address TEXT NOT NULL,
	block_timestamp BIGINT NOT NULL,
	token0 TEXT NOT NULL,
	token1 TEXT NOT NULL,
	price0_cumulative NUMERIC NOT NULL,
	price1_cumulative NUMERIC NOT NULL,
	price0_average NUMERIC,
	price1_average NUMERIC,
	price0 NUMERIC,
	price1 NUMERIC,
	observed_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (chain_id, pair_address, block_timestamp)
);

CREATE TABLE IF NOT EXISTS audit_events (
	chain_id BIGINT NOT NULL,
	tx_hash TEXT NOT NULL,
	log_index BIGINT NOT NULL,
	block_number BIGINT NOT NULL,
	block_timestamp BIGINT NOT NULL,
	address TEXT NOT NULL,
	event_name TEXT NOT NULL,
	payload JSONB NOT NULL,
	PRIMARY KEY (chain_id, tx_hash, log_index)
);

CREATE TABLE IF NOT EXISTS indexer_state (
	name TEXT PRIMARY KEY,
	last_processed_ts BIGINT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
`

// Store provides Postgres persistence for pairs, window metrics, oracle
// observations and decoded audit events.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates missing tables.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, Schema)
	return err
}

// UpsertPairs inserts or updates pair metadata.
func (s *Store) UpsertPairs(ctx context.Context, pairs []model.Pair) error {
	if len(pairs) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, pair := range pairs {
		batch.Queue(`
			INSERT INTO pairs (
				chain_id, pair_address, token0, token1, first_seen_block, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, now(), now())
			ON CONFLICT (chain_id, pair_address)
			DO UPDATE SET
				token0 = EXCLUDED.token0,
				token1 = EXCLUDED.token1,
				first_seen_block = LEAST(pairs.first_seen_block, EXCLUDED.first_seen_block),
				updated_at = now()
		`,
			int64(pair.ChainID),
			pair.Address,
			pair.Token0,
			pair.Token1,
			int64(pair.FirstSeenBlock),
		)
	}
	return s.sendBatch(ctx, batch)
}

// UpsertWindowMetrics inserts or updates window metrics.
func (s *Store) UpsertWindowMetrics(ctx context.Context, metrics []model.PairWindowMetrics) error {
	if len(metrics) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, m := range metrics {
		batch.Queue(`
			INSERT INTO pair_window_metrics (
				chain_id, pair_address, window_size_seconds, window_start_ts, window_end_ts,
				swap_count, volume0, volume1, fee0, fee1, fee_rate0, fee_rate1,
				reserve0, reserve1, apr, fee_method, tvl_method, created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,now(),now())
			ON CONFLICT (chain_id, pair_address, window_size_seconds, window_start_ts)
			DO UPDATE SET
				window_end_ts = EXCLUDED.window_end_ts,
				swap_count = EXCLUDED.swap_count,
				volume0 = EXCLUDED.volume0,
				volume1 = EXCLUDED.volume1,
				fee0 = EXCLUDED.fee0,
				fee1 = EXCLUDED.fee1,
				fee_rate0 = EXCLUDED.fee_rate0,
				fee_rate1 = EXCLUDED.fee_rate1,
				reserve0 = EXCLUDED.reserve0,
				reserve1 = EXCLUDED.reserve1,
				apr = EXCLUDED.apr,
				fee_method = EXCLUDED.fee_method,
				tvl_method = EXCLUDED.tvl_method,
				updated_at = now()
		`,
			int64(m.ChainID),
			m.PairAddress,
			m.WindowSizeSecs,
			m.WindowStart,
			m.WindowEnd,
			int64(m.SwapCount),
			m.Volume0,
			m.Volume1,
			m.Fee0,
			m.Fee1,
			m.FeeRate0,
			m.FeeRate1,
			m.Reserve0,
			m.Reserve1,
			m.APR,
			m.FeeMethod,
			m.TVLMethod,
		)
	}
	return s.sendBatch(ctx, batch)
}

// PutObservations stores oracle observations, ignoring ones already stored.
func (s *Store) PutObservations(ctx context.Context, observations []model.Observation) error {
	if len(observations) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, o := range observations {
		batch.Queue(`
			INSERT INTO oracle_observations (
				chain_id, pair_address, block_timestamp, token0, token1,
				price0_cumulative, price1_cumulative, price0_average, price1_average,
				price0, price1, observed_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
			ON CONFLICT (chain_id, pair_address, block_timestamp) DO NOTHING
		`,
			int64(o.ChainID),
			o.Pair,
			int64(o.BlockTimestamp),
			o.Token0,
			o.Token1,
			o.Price0Cumulative,
			o.Price1Cumulative,
			nullable(o.Price0Average),
			nullable(o.Price1Average),
			nullable(o.Price0),
			nullable(o.Price1),
			o.ObservedAt,
		)
	}
	return s.sendBatch(ctx, batch)
}

// PutEvents stores decoded events with their payload as JSONB.
func (s *Store) PutEvents(ctx context.Context, events []model.TypedEvent) error {
	if len(events) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, e := range events {
		payload, err := json.Marshal(e.Decoded)
		if err != nil {
			return fmt.Errorf("marshal %s payload: %w", e.EventName, err)
		}
		batch.Queue(`
			INSERT INTO audit_events (
				chain_id, tx_hash, log_index, block_number, block_timestamp,
				address, event_name, payload
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
			ON CONFLICT (chain_id, tx_hash, log_index) DO NOTHING
		`,
			int64(e.ChainID),
			e.TxHash,
			int64(e.LogIndex),
			int64(e.BlockNumber),
			int64(e.Timestamp),
			e.Address,
			e.EventName,
			payload,
		)
	}
	return s.sendBatch(ctx, batch)
}

func (s *Store) sendBatch(ctx context.Context, batch *pgx.Batch) error {
	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// LoadState returns last_processed_ts for a name.
func (s *Store) LoadState(ctx context.Context, name string) (uint64, bool, error) {
	if name == "" {
		return 0, false, fmt.Errorf("state name required")
	}
	var ts int64
	row := s.pool.QueryRow(ctx, `SELECT last_processed_ts FROM indexer_state WHERE name=$1`, name)
	if err := row.Scan(&ts); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return uint64(ts), true, nil
}

// SaveState upserts last_processed_ts for a name.
func (s *Store) SaveState(ctx context.Context, name string, ts uint64) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO indexer_state (name, last_processed_ts, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET last_processed_ts = EXCLUDED.last_processed_ts, updated_at = now()
	`, name, int64(ts))
	return err
}

func nullable(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
