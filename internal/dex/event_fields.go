package dex

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"ammKit/internal/model"
)

// DecoderConfig configures decoder behavior. Topic0Map adds extra topic0
// aliases for event names the decoder already knows.
type DecoderConfig struct {
	Topic0Map map[string]string
}

// eventTable maps lower-case topic0 hex to events of one ABI.
type eventTable map[string]abi.Event

func newEventTable(parsed abi.ABI, names []string, aliases map[string]string) (eventTable, error) {
	table := make(eventTable, len(names))
	byName := make(map[string]abi.Event, len(names))
	for _, name := range names {
		event, ok := parsed.Events[name]
		if !ok {
			return nil, fmt.Errorf("abi has no event %s", name)
		}
		table[strings.ToLower(event.ID.Hex())] = event
		byName[strings.ToLower(name)] = event
	}
	for topic0, name := range aliases {
		if topic0 == "" {
			continue
		}
		event, ok := byName[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			continue
		}
		table[strings.ToLower(topic0)] = event
	}
	return table, nil
}

func (t eventTable) lookup(log model.LogRecord) (abi.Event, error) {
	topic0 := log.Topic0()
	if topic0 == "" {
		return abi.Event{}, fmt.Errorf("missing topics")
	}
	event, ok := t[strings.ToLower(topic0)]
	if !ok {
		return abi.Event{}, fmt.Errorf("unsupported topic0: %s", topic0)
	}
	return event, nil
}

func (t eventTable) canDecode(topic0 string) bool {
	if topic0 == "" {
		return false
	}
	_, ok := t[strings.ToLower(topic0)]
	return ok
}

// eventFields decodes indexed topics and data of log into one map keyed by
// argument name.
type eventFields map[string]interface{}

func decodeFields(event abi.Event, log model.LogRecord) (eventFields, error) {
	indexed := indexedArguments(event.Inputs)
	if len(log.Topics) != len(indexed)+1 {
		return nil, fmt.Errorf("%s: expected %d topics, got %d", event.Name, len(indexed)+1, len(log.Topics))
	}
	topics, err := parseTopicHashes(log.Topics[1:])
	if err != nil {
		return nil, err
	}

	fields := make(map[string]interface{}, len(event.Inputs))
	if err := abi.ParseTopicsIntoMap(fields, indexed, topics); err != nil {
		return nil, fmt.Errorf("parse topics: %w", err)
	}

	data, err := hexutil.Decode(log.Data)
	if err != nil {
		return nil, fmt.Errorf("invalid data: %w", err)
	}
	if err := event.Inputs.NonIndexed().UnpackIntoMap(fields, data); err != nil {
		return nil, fmt.Errorf("unpack %s: %w", event.Name, err)
	}
	return fields, nil
}

func (f eventFields) address(name string) (string, error) {
	value, ok := f[name]
	if !ok {
		return "", fmt.Errorf("missing field %s", name)
	}
	addr, err := AsAddress(value)
	if err != nil {
		return "", fmt.Errorf("%s: %w", name, err)
	}
	return addr.Hex(), nil
}

func (f eventFields) amount(name string) (string, error) {
	value, ok := f[name]
	if !ok {
		return "", fmt.Errorf("missing field %s", name)
	}
	v, err := AsBigInt(value)
	if err != nil {
		return "", fmt.Errorf("%s: %w", name, err)
	}
	return v.String(), nil
}

// fill resolves every (name, destination) pair, stopping at the first error.
func (f eventFields) fill(addresses map[string]*string, amounts map[string]*string) error {
	for name, dst := range addresses {
		v, err := f.address(name)
		if err != nil {
			return err
		}
		*dst = v
	}
	for name, dst := range amounts {
		v, err := f.amount(name)
		if err != nil {
			return err
		}
		*dst = v
	}
	return nil
}

func buildTypedEvent(log model.LogRecord, name string, decoded interface{}, meta model.PairMeta) *model.TypedEvent {
	raw := &model.RawLogRef{Topic0: log.Topic0(), Data: log.Data}
	return &model.TypedEvent{
		ChainID:     log.ChainID,
		BlockNumber: log.BlockNumber,
		BlockHash:   log.BlockHash,
		TxHash:      log.TxHash,
		LogIndex:    log.LogIndex,
		Address:     log.Address,
		EventName:   name,
		Timestamp:   log.Timestamp,
		Decoded:     decoded,
		PairMeta:    meta,
		Raw:         raw,
	}
}

func parseTopicHashes(topics []string) ([]common.Hash, error) {
	out := make([]common.Hash, 0, len(topics))
	for _, topic := range topics {
		data, err := hexutil.Decode(topic)
		if err != nil {
			return nil, fmt.Errorf("invalid topic: %w", err)
		}
		if len(data) > 32 {
			return nil, fmt.Errorf("topic length %d", len(data))
		}
		out = append(out, common.BytesToHash(data))
	}
	return out, nil
}

func indexedArguments(args abi.Arguments) abi.Arguments {
	indexed := make(abi.Arguments, 0, len(args))
	for _, arg := range args {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	return indexed
}
