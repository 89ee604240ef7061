package model

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestLogRecordHelpers(t *testing.T) {
	record := LogRecord{
		ChainID:     31337,
		BlockNumber: 7,
		TxHash:      "0xdef456",
		LogIndex:    12,
		Address:     "0x1111111111111111111111111111111111111111",
		Topics:      []string{"0x1c411e9a96e071241c2f21f7726b17ae89e3cab4c78be50e062b03a9fffbbad1", "0xbbb"},
	}
	if record.Topic0() != record.Topics[0] {
		t.Fatalf("topic0 = %s", record.Topic0())
	}
	if record.Key() != "31337:0xdef456:12" {
		t.Fatalf("key = %s", record.Key())
	}
	if (LogRecord{}).Topic0() != "" {
		t.Fatalf("anonymous log should have no topic0")
	}

	got := NewDecodeError(record, errors.New("unsupported topic0"))
	want := DecodeError{
		ChainID:     31337,
		BlockNumber: 7,
		TxHash:      "0xdef456",
		LogIndex:    12,
		Address:     record.Address,
		Topic0:      record.Topics[0],
		Error:       "unsupported topic0",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("decode error mismatch: %+v != %+v", got, want)
	}
}

func TestTypedEventRecordDecodePayload(t *testing.T) {
	line, err := json.Marshal(TypedEvent{
		EventName: "Sync",
		TxHash:    "0x01",
		Decoded:   SyncEventData{Reserve0: "1000", Reserve1: "2"},
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var record TypedEventRecord
	if err := json.Unmarshal(line, &record); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	var sync SyncEventData
	if err := record.DecodePayload(&sync); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if sync.Reserve0 != "1000" || sync.Reserve1 != "2" {
		t.Fatalf("unexpected payload: %+v", sync)
	}

	empty := TypedEventRecord{EventName: "Swap", TxHash: "0x02", LogIndex: 3, Decoded: json.RawMessage("null")}
	if err := empty.DecodePayload(&sync); err == nil || !strings.Contains(err.Error(), "0x02:3") {
		t.Fatalf("expected missing payload error, got %v", err)
	}
}
