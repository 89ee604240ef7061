package aggregate

import (
	"fmt"
	"math/big"
	"strings"

	"ammKit/internal/model"
)

// The pair keeps 0.3% of every input amount.
var (
	feeNumerator   = big.NewInt(3)
	feeDenominator = big.NewInt(1000)
)

// Accumulator holds aggregate values for one pair window.
type Accumulator struct {
	ChainID     uint64
	PairAddress string
	PairMeta    model.PairMeta
	WindowStart uint64
	WindowEnd   uint64
	SwapCount   uint64
	Volume0     *big.Int
	Volume1     *big.Int
	Fee0        *big.Int
	Fee1        *big.Int
	// Reserve0 and Reserve1 come from the latest Sync in the window; nil
	// when the window saw none.
	Reserve0   *big.Int
	Reserve1   *big.Int
	LastBlock  uint64
	LastTS     uint64
	FirstBlock uint64

	syncBlock uint64
	syncIndex uint64
}

func NewAccumulator(record model.TypedEventRecord, windowStart, windowEnd uint64) *Accumulator {
	return &Accumulator{
		ChainID:     record.ChainID,
		PairAddress: record.Address,
		PairMeta:    record.PairMeta,
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
		Volume0:     big.NewInt(0),
		Volume1:     big.NewInt(0),
		Fee0:        big.NewInt(0),
		Fee1:        big.NewInt(0),
		LastBlock:   record.BlockNumber,
		LastTS:      record.Timestamp,
		FirstBlock:  record.BlockNumber,
	}
}

func (a *Accumulator) AddEvent(record model.TypedEventRecord) error {
	if record.Timestamp >= a.LastTS {
		a.LastTS = record.Timestamp
		a.LastBlock = record.BlockNumber
	}
	if a.FirstBlock == 0 || record.BlockNumber < a.FirstBlock {
		a.FirstBlock = record.BlockNumber
	}
	if a.PairMeta.Token0 == "" && record.PairMeta.Token0 != "" {
		a.PairMeta.Token0 = record.PairMeta.Token0
		a.PairMeta.Token1 = record.PairMeta.Token1
	}

	switch strings.ToLower(record.EventName) {
	case "swap":
		var swap model.SwapEventData
		if err := record.DecodePayload(&swap); err != nil {
			return err
		}
		return a.applySwap(swap)
	case "sync":
		var sync model.SyncEventData
		if err := record.DecodePayload(&sync); err != nil {
			return err
		}
		return a.applySync(sync, record.BlockNumber, record.LogIndex)
	default:
		return nil
	}
}

func (a *Accumulator) applySwap(swap model.SwapEventData) error {
	amounts := make([]*big.Int, 0, 4)
	for _, value := range []string{swap.Amount0In, swap.Amount1In, swap.Amount0Out, swap.Amount1Out} {
		parsed, err := parseBigInt(value)
		if err != nil {
			return err
		}
		amounts = append(amounts, parsed)
	}
	amount0In, amount1In, amount0Out, amount1Out := amounts[0], amounts[1], amounts[2], amounts[3]

	a.Volume0.Add(a.Volume0, amount0In)
	a.Volume0.Add(a.Volume0, amount0Out)
	a.Volume1.Add(a.Volume1, amount1In)
	a.Volume1.Add(a.Volume1, amount1Out)
	a.Fee0.Add(a.Fee0, feeFromAmount(amount0In))
	a.Fee1.Add(a.Fee1, feeFromAmount(amount1In))
	a.SwapCount++
	return nil
}

func (a *Accumulator) applySync(sync model.SyncEventData, block, logIndex uint64) error {
	if a.Reserve0 != nil && (block < a.syncBlock || (block == a.syncBlock && logIndex < a.syncIndex)) {
		return nil
	}
	reserve0, err := parseBigInt(sync.Reserve0)
	if err != nil {
		return err
	}
	reserve1, err := parseBigInt(sync.Reserve1)
	if err != nil {
		return err
	}
	a.Reserve0, a.Reserve1 = reserve0, reserve1
	a.syncBlock, a.syncIndex = block, logIndex
	return nil
}

func parseBigInt(value string) (*big.Int, error) {
	if value == "" {
		return big.NewInt(0), nil
	}
	parsed, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid int: %s", value)
	}
	if parsed.Sign() < 0 {
		return nil, fmt.Errorf("negative amount: %s", value)
	}
	return parsed, nil
}

func feeFromAmount(amountIn *big.Int) *big.Int {
	if amountIn == nil {
		return big.NewInt(0)
	}
	fee := new(big.Int).Mul(amountIn, feeNumerator)
	return fee.Div(fee, feeDenominator)
}
