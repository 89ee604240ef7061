package model

// Pair is a V2 pair record for storage.
type Pair struct {
	ChainID        uint64 `json:"chain_id"`
	Address        string `json:"address"`
	Token0         string `json:"token0"`
	Token1         string `json:"token1"`
	FirstSeenBlock uint64 `json:"first_seen_block"`
}

// PairMeta captures pair tokens with optional reserves read at the log's block.
type PairMeta struct {
	Token0   string `json:"token0,omitempty"`
	Token1   string `json:"token1,omitempty"`
	Reserve0 string `json:"reserve0,omitempty"`
	Reserve1 string `json:"reserve1,omitempty"`
}

// TokenMeta is ERC20 metadata. Symbol and Name are empty for tokens that
// do not implement them.
type TokenMeta struct {
	Address  string `json:"address"`
	Decimals uint8  `json:"decimals"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
}
