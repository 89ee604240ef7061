package indexer

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"ammKit/internal/dex"
)

// ParseAddresses converts string addresses into common.Address.
func ParseAddresses(inputs []string) ([]common.Address, error) {
	addresses := make([]common.Address, 0, len(inputs))
	for _, input := range inputs {
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		if !common.IsHexAddress(input) {
			return nil, fmt.Errorf("invalid address: %s", input)
		}
		addresses = append(addresses, common.HexToAddress(input))
	}
	return addresses, nil
}

// ParseTopic0 accepts 32-byte hex hashes or the names of pair and helper
// events (Swap, Sync, AddedLiquidity, ...).
func ParseTopic0(inputs []string) ([]common.Hash, error) {
	var named map[string]common.Hash
	topics := make([]common.Hash, 0, len(inputs))
	for _, input := range inputs {
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		if !strings.HasPrefix(input, "0x") {
			if named == nil {
				var err error
				if named, err = eventTopics(); err != nil {
					return nil, err
				}
			}
			topic, ok := named[input]
			if !ok {
				return nil, fmt.Errorf("unknown event name: %s", input)
			}
			topics = append(topics, topic)
			continue
		}

		data, err := hexutil.Decode(input)
		if err != nil {
			return nil, fmt.Errorf("invalid topic0: %s", input)
		}
		if len(data) != common.HashLength {
			return nil, fmt.Errorf("invalid topic0 length: %s", input)
		}
		topics = append(topics, common.BytesToHash(data))
	}
	return topics, nil
}

func eventTopics() (map[string]common.Hash, error) {
	pair, err := dex.V2PairABI()
	if err != nil {
		return nil, err
	}
	helper, err := dex.HelperABI()
	if err != nil {
		return nil, err
	}
	out := make(map[string]common.Hash, len(pair.Events)+len(helper.Events))
	for name, event := range pair.Events {
		out[name] = event.ID
	}
	for name, event := range helper.Events {
		out[name] = event.ID
	}
	return out, nil
}
