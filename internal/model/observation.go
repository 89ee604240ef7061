package model

// Observation is one accepted TWAP oracle update. Cumulative and average
// prices are UQ112x112 integers; Price0 and Price1 are the decoded averages
// in raw token units.
type Observation struct {
	ChainID          uint64 `json:"chain_id"`
	Pair             string `json:"pair"`
	Token0           string `json:"token0"`
	Token1           string `json:"token1"`
	BlockTimestamp   uint32 `json:"block_timestamp"`
	Price0Cumulative string `json:"price0_cumulative"`
	Price1Cumulative string `json:"price1_cumulative"`
	Price0Average    string `json:"price0_average,omitempty"`
	Price1Average    string `json:"price1_average,omitempty"`
	Price0           string `json:"price0,omitempty"`
	Price1           string `json:"price1,omitempty"`
	ObservedAt       string `json:"observed_at"`
}
