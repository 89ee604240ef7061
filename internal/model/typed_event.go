package model

import (
	"encoding/json"
	"fmt"
)

// TypedEvent is a decoded pair or helper event enriched with metadata.
// Decoded holds one of the *EventData types.
type TypedEvent struct {
	ChainID     uint64      `json:"chain_id"`
	BlockNumber uint64      `json:"block_number"`
	BlockHash   string      `json:"block_hash"`
	TxHash      string      `json:"tx_hash"`
	LogIndex    uint64      `json:"log_index"`
	Address     string      `json:"address"`
	EventName   string      `json:"event_name"`
	Timestamp   uint64      `json:"timestamp"`
	Decoded     interface{} `json:"decoded"`
	PairMeta    PairMeta    `json:"pair_meta"`
	Raw         *RawLogRef  `json:"raw,omitempty"`
}

// RawLogRef keeps a minimal raw reference for traceability.
type RawLogRef struct {
	Topic0 string `json:"topic0"`
	Data   string `json:"data"`
}

// TypedEventRecord is a TypedEvent read back from JSONL, with the payload
// left undecoded until the event name is known.
type TypedEventRecord struct {
	ChainID     uint64          `json:"chain_id"`
	BlockNumber uint64          `json:"block_number"`
	BlockHash   string          `json:"block_hash"`
	TxHash      string          `json:"tx_hash"`
	LogIndex    uint64          `json:"log_index"`
	Address     string          `json:"address"`
	EventName   string          `json:"event_name"`
	Timestamp   uint64          `json:"timestamp"`
	Decoded     json.RawMessage `json:"decoded"`
	PairMeta    PairMeta        `json:"pair_meta"`
	Raw         *RawLogRef      `json:"raw,omitempty"`
}

// DecodePayload unmarshals the raw payload into v.
func (r TypedEventRecord) DecodePayload(v interface{}) error {
	if len(r.Decoded) == 0 || string(r.Decoded) == "null" {
		return fmt.Errorf("%s at %s:%d has no payload", r.EventName, r.TxHash, r.LogIndex)
	}
	if err := json.Unmarshal(r.Decoded, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", r.EventName, err)
	}
	return nil
}
