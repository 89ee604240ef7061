// Package oracle keeps a fixed-window time-weighted average price for one
// pair, built from the pair's cumulative price accumulators.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"ammKit/internal/amm"
	"ammKit/internal/uniswapv2"
)

var (
	ErrPeriodTooShort = errors.New("Time elapsed < min PERIOD")
	ErrInvalidToken   = errors.New("Incorrect token")
	ErrEmptyReserves  = errors.New("oracle: pair has no reserves")
	ErrStateMismatch  = errors.New("oracle: state belongs to another pair")
)

// Status is the oracle lifecycle state.
type Status int

const (
	Uninitialized Status = iota
	Ready
)

func (s Status) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Ready:
		return "ready"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// State is everything needed to resume an oracle. Averages are nil until
// a second observation has been taken.
type State struct {
	Pair                 common.Address
	Token0               common.Address
	Token1               common.Address
	Status               Status
	Price0CumulativeLast *uint256.Int
	Price1CumulativeLast *uint256.Int
	BlockTimestampLast   uint32
	Price0Average        *uint256.Int
	Price1Average        *uint256.Int
}

// Oracle is safe for concurrent use.
type Oracle struct {
	pair      amm.PairReader
	clock     amm.Clock
	minPeriod uint32

	mu    sync.RWMutex
	state State
}

// New reads the pair's tokens and returns an Uninitialized oracle.
func New(ctx context.Context, pair amm.PairReader, clock amm.Clock, minPeriod time.Duration) (*Oracle, error) {
	if pair == nil || pair.Address() == (common.Address{}) {
		return nil, fmt.Errorf("oracle: pair is required")
	}
	if minPeriod < 0 {
		return nil, fmt.Errorf("oracle: negative min period")
	}
	token0, err := pair.Token0(ctx)
	if err != nil {
		return nil, fmt.Errorf("token0: %w", err)
	}
	token1, err := pair.Token1(ctx)
	if err != nil {
		return nil, fmt.Errorf("token1: %w", err)
	}
	return &Oracle{
		pair:      pair,
		clock:     clock,
		minPeriod: uint32(minPeriod / time.Second),
		state: State{
			Pair:   pair.Address(),
			Token0: token0,
			Token1: token1,
		},
	}, nil
}

// MinPeriod returns the minimum window between two updates.
func (o *Oracle) MinPeriod() time.Duration {
	return time.Duration(o.minPeriod) * time.Second
}

// Update takes a new observation. The first call only records the
// cumulative prices; later calls also replace the averages and fail with
// ErrPeriodTooShort when less than MinPeriod has passed.
func (o *Oracle) Update(ctx context.Context) error {
	now, price0Cumulative, price1Cumulative, err := CurrentCumulativePrices(ctx, o.pair, o.clock)
	if err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	next := o.state
	if o.state.Status == Ready {
		elapsed := now - o.state.BlockTimestampLast
		if elapsed == 0 || elapsed < o.minPeriod {
			return ErrPeriodTooShort
		}
		span := uint256.NewInt(uint64(elapsed))
		next.Price0Average = new(uint256.Int).Sub(price0Cumulative, o.state.Price0CumulativeLast)
		next.Price0Average.Div(next.Price0Average, span)
		next.Price1Average = new(uint256.Int).Sub(price1Cumulative, o.state.Price1CumulativeLast)
		next.Price1Average.Div(next.Price1Average, span)
	}
	next.Status = Ready
	next.Price0CumulativeLast = price0Cumulative
	next.Price1CumulativeLast = price1Cumulative
	next.BlockTimestampLast = now
	o.state = next
	return nil
}

// Consult converts amountIn of token into the other token at the last
// average price. It returns zero until an average exists.
func (o *Oracle) Consult(token common.Address, amountIn *big.Int) (*big.Int, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	var average *uint256.Int
	switch {
	case token == (common.Address{}):
		return nil, ErrInvalidToken
	case token == o.state.Token0:
		average = o.state.Price0Average
	case token == o.state.Token1:
		average = o.state.Price1Average
	default:
		return nil, ErrInvalidToken
	}
	if average == nil {
		return new(big.Int), nil
	}
	return uniswapv2.MulDecode(average, amountIn)
}

// Snapshot returns a copy of the oracle state.
func (o *Oracle) Snapshot() State {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return copyState(o.state)
}

// Restore replaces the oracle state with one taken from the same pair.
func (o *Oracle) Restore(s State) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if s.Pair != o.state.Pair || s.Token0 != o.state.Token0 || s.Token1 != o.state.Token1 {
		return fmt.Errorf("%w: %s", ErrStateMismatch, s.Pair.Hex())
	}
	if s.Status == Ready && (s.Price0CumulativeLast == nil || s.Price1CumulativeLast == nil) {
		return fmt.Errorf("oracle: ready state without cumulative prices")
	}
	o.state = copyState(s)
	return nil
}

func copyState(s State) State {
	out := s
	out.Price0CumulativeLast = clone(s.Price0CumulativeLast)
	out.Price1CumulativeLast = clone(s.Price1CumulativeLast)
	out.Price0Average = clone(s.Price0Average)
	out.Price1Average = clone(s.Price1Average)
	return out
}

func clone(v *uint256.Int) *uint256.Int {
	if v == nil {
		return nil
	}
	return new(uint256.Int).Set(v)
}

// CurrentCumulativePrices returns the pair's cumulative prices as of the
// current block. When the pair has not been touched this block, the time
// since its last update is added using the current reserves.
func CurrentCumulativePrices(ctx context.Context, pair amm.PairReader, clock amm.Clock) (uint32, *uint256.Int, *uint256.Int, error) {
	ts, err := clock.Timestamp(ctx)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("block timestamp: %w", err)
	}
	now := uint32(ts)

	price0, err := pair.Price0CumulativeLast(ctx)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("price0CumulativeLast: %w", err)
	}
	price1, err := pair.Price1CumulativeLast(ctx)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("price1CumulativeLast: %w", err)
	}
	reserves, err := pair.GetReserves(ctx)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("getReserves: %w", err)
	}

	price0 = new(uint256.Int).Set(price0)
	price1 = new(uint256.Int).Set(price1)
	if reserves.BlockTimestampLast != now {
		if reserves.Reserve0.Sign() == 0 || reserves.Reserve1.Sign() == 0 {
			return 0, nil, nil, ErrEmptyReserves
		}
		elapsed := now - reserves.BlockTimestampLast
		price0.Add(price0, uniswapv2.CumulativeDelta(uniswapv2.EncodePrice(reserves.Reserve1, reserves.Reserve0), elapsed))
		price1.Add(price1, uniswapv2.CumulativeDelta(uniswapv2.EncodePrice(reserves.Reserve0, reserves.Reserve1), elapsed))
	}
	return now, price0, price1, nil
}
