package indexer

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"ammKit/internal/model"
)

// BlockTimeFunc resolves the timestamp of a block.
type BlockTimeFunc func(ctx context.Context, number uint64) (uint64, error)

// LogRecords converts logs into storage records, resolving each block's
// timestamp once. Logs for which skip returns true are dropped.
func LogRecords(
	ctx context.Context,
	chainID uint64,
	logs []types.Log,
	blockTime BlockTimeFunc,
	skip func(types.Log) bool,
	ingestedAt time.Time,
) ([]model.LogRecord, error) {
	stamps := make(map[uint64]uint64)
	records := make([]model.LogRecord, 0, len(logs))
	for _, log := range logs {
		if skip != nil && skip(log) {
			continue
		}
		ts, ok := stamps[log.BlockNumber]
		if !ok {
			var err error
			if ts, err = blockTime(ctx, log.BlockNumber); err != nil {
				return nil, fmt.Errorf("block timestamp %d: %w", log.BlockNumber, err)
			}
			stamps[log.BlockNumber] = ts
		}
		records = append(records, BuildLogRecord(chainID, log, ts, ingestedAt))
	}
	return records, nil
}

// BuildLogRecord normalizes a single log.
func BuildLogRecord(chainID uint64, log types.Log, timestamp uint64, ingestedAt time.Time) model.LogRecord {
	record := model.LogRecord{
		ChainID:     chainID,
		BlockNumber: log.BlockNumber,
		BlockHash:   log.BlockHash.Hex(),
		TxHash:      log.TxHash.Hex(),
		TxIndex:     uint64(log.TxIndex),
		LogIndex:    uint64(log.Index),
		Address:     log.Address.Hex(),
		Topics:      make([]string, len(log.Topics)),
		Data:        hexutil.Encode(log.Data),
		Removed:     log.Removed,
		Timestamp:   timestamp,
		IngestedAt:  ingestedAt.UTC().Format(time.RFC3339Nano),
	}
	for i, topic := range log.Topics {
		record.Topics[i] = topic.Hex()
	}
	return record
}
