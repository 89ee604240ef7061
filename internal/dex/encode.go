package dex

import (
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// PackLog encodes an event emitted by address. args follow the event's
// input order; indexed ones become topics and the rest is ABI-packed data.
func PackLog(address common.Address, event abi.Event, args ...interface{}) (types.Log, error) {
	if len(args) != len(event.Inputs) {
		return types.Log{}, fmt.Errorf("%s: expected %d args, got %d", event.Name, len(event.Inputs), len(args))
	}

	var indexed [][]interface{}
	var data []interface{}
	for i, input := range event.Inputs {
		if input.Indexed {
			indexed = append(indexed, []interface{}{args[i]})
			continue
		}
		data = append(data, args[i])
	}

	topics := []common.Hash{event.ID}
	if len(indexed) > 0 {
		parsed, err := abi.MakeTopics(indexed...)
		if err != nil {
			return types.Log{}, fmt.Errorf("make topics %s: %w", event.Name, err)
		}
		for _, topic := range parsed {
			topics = append(topics, topic[0])
		}
	}

	packed, err := event.Inputs.NonIndexed().Pack(data...)
	if err != nil {
		return types.Log{}, fmt.Errorf("pack %s: %w", event.Name, err)
	}

	return types.Log{
		Address: address,
		Topics:  topics,
		Data:    packed,
	}, nil
}

// PackNamedLog looks up name in parsed and encodes it with PackLog.
func PackNamedLog(parsed abi.ABI, address common.Address, name string, args ...interface{}) (types.Log, error) {
	event, ok := parsed.Events[name]
	if !ok {
		return types.Log{}, fmt.Errorf("unknown event %s", name)
	}
	return PackLog(address, event, args...)
}

// PackHelperLog encodes one of the helper audit events.
func PackHelperLog(address common.Address, name string, args ...interface{}) (types.Log, error) {
	parsed, err := HelperABI()
	if err != nil {
		return types.Log{}, err
	}
	return PackNamedLog(parsed, address, name, args...)
}
