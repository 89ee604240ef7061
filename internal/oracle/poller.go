package oracle

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"ammKit/internal/metrics"
	"ammKit/internal/model"
	"ammKit/internal/retry"
	"ammKit/internal/storage"
)

// PollConfig holds runtime settings for the oracle poller.
type PollConfig struct {
	ChainID      uint64
	Interval     time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
	StatePath    string
	StateEnabled bool
}

// Poller updates an oracle on a fixed interval and records every accepted
// observation.
type Poller struct {
	cfg    PollConfig
	oracle *Oracle
	sink   storage.ObservationSink
	state  *StateStore
	logger *zap.Logger
}

func NewPoller(cfg PollConfig, o *Oracle, sink storage.ObservationSink, logger *zap.Logger) *Poller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{
		cfg:    cfg,
		oracle: o,
		sink:   sink,
		state:  NewStateStore(cfg.StatePath, cfg.StateEnabled),
		logger: logger,
	}
}

// Run restores saved state, polls once immediately and then on every
// interval until ctx is done.
func (p *Poller) Run(ctx context.Context) error {
	if p.oracle == nil {
		return fmt.Errorf("oracle is nil")
	}
	if p.cfg.Interval <= 0 {
		return fmt.Errorf("interval must be greater than zero")
	}
	if err := p.Restore(); err != nil {
		return err
	}

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		if _, err := p.Poll(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Restore loads the saved oracle state, if any.
func (p *Poller) Restore() error {
	saved, ok, err := p.state.Load()
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if err := p.oracle.Restore(saved); err != nil {
		return fmt.Errorf("restore oracle state: %w", err)
	}
	p.logger.Info("resume oracle",
		zap.String("pair", saved.Pair.Hex()),
		zap.Stringer("status", saved.Status),
		zap.Uint32("block_timestamp_last", saved.BlockTimestampLast),
	)
	return nil
}

// Poll runs one update. It reports false when the window has not yet
// elapsed.
func (p *Poller) Poll(ctx context.Context) (bool, error) {
	start := time.Now()
	tooShort := false
	err := retry.Do(ctx, p.cfg.MaxRetries, p.cfg.RetryBackoff, func(ctx context.Context) error {
		err := p.oracle.Update(ctx)
		if errors.Is(err, ErrPeriodTooShort) {
			tooShort = true
			return nil
		}
		if err != nil {
			p.logger.Warn("oracle update failed", zap.Error(err))
		}
		return err
	})
	metrics.OracleUpdateDuration.Observe(time.Since(start).Seconds())

	switch {
	case err != nil:
		metrics.OracleUpdates.WithLabelValues("error").Inc()
		return false, fmt.Errorf("update oracle: %w", err)
	case tooShort:
		metrics.OracleUpdates.WithLabelValues("skipped").Inc()
		p.logger.Debug("oracle window not elapsed")
		return false, nil
	}
	metrics.OracleUpdates.WithLabelValues("ok").Inc()

	snapshot := p.oracle.Snapshot()
	observation := NewObservation(p.cfg.ChainID, snapshot, time.Now().UTC())
	if p.sink != nil {
		if err := p.sink.PutObservations(ctx, []model.Observation{observation}); err != nil {
			return true, fmt.Errorf("store observation: %w", err)
		}
	}
	if err := p.state.Save(snapshot); err != nil {
		return true, err
	}
	metrics.OracleLastObservation.Set(float64(snapshot.BlockTimestampLast))

	p.logger.Info("oracle updated",
		zap.String("pair", snapshot.Pair.Hex()),
		zap.Uint32("block_timestamp", snapshot.BlockTimestampLast),
		zap.String("price0", observation.Price0),
		zap.String("price1", observation.Price1),
	)
	return true, nil
}

var q112 = decimal.NewFromBigInt(new(big.Int).Lsh(big.NewInt(1), 112), 0)

// NewObservation converts an oracle state into a storage record.
func NewObservation(chainID uint64, s State, observedAt time.Time) model.Observation {
	o := model.Observation{
		ChainID:          chainID,
		Pair:             s.Pair.Hex(),
		Token0:           s.Token0.Hex(),
		Token1:           s.Token1.Hex(),
		BlockTimestamp:   s.BlockTimestampLast,
		Price0Cumulative: decString(s.Price0CumulativeLast),
		Price1Cumulative: decString(s.Price1CumulativeLast),
		Price0Average:    decString(s.Price0Average),
		Price1Average:    decString(s.Price1Average),
		ObservedAt:       observedAt.Format(time.RFC3339Nano),
	}
	if s.Price0Average != nil {
		o.Price0 = decimal.NewFromBigInt(s.Price0Average.ToBig(), 0).DivRound(q112, 18).String()
	}
	if s.Price1Average != nil {
		o.Price1 = decimal.NewFromBigInt(s.Price1Average.ToBig(), 0).DivRound(q112, 18).String()
	}
	return o
}
