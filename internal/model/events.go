package model

// SwapEventData is the decoded V2 Swap event payload.
type SwapEventData struct {
	Sender     string `json:"sender"`
	To         string `json:"to"`
	Amount0In  string `json:"amount0_in"`
	Amount1In  string `json:"amount1_in"`
	Amount0Out string `json:"amount0_out"`
	Amount1Out string `json:"amount1_out"`
}

// MintEventData is the decoded V2 Mint event payload.
type MintEventData struct {
	Sender  string `json:"sender"`
	Amount0 string `json:"amount0"`
	Amount1 string `json:"amount1"`
}

// BurnEventData is the decoded V2 Burn event payload.
type BurnEventData struct {
	Sender  string `json:"sender"`
	To      string `json:"to"`
	Amount0 string `json:"amount0"`
	Amount1 string `json:"amount1"`
}

// SyncEventData is the decoded V2 Sync event payload.
type SyncEventData struct {
	Reserve0 string `json:"reserve0"`
	Reserve1 string `json:"reserve1"`
}

// LiquidityTokensEventData covers AddedTokensToLiquidity and
// RemovedTokensFromLiquidity. AmountADesired is empty for removals.
type LiquidityTokensEventData struct {
	TokenA         string `json:"token_a"`
	TokenB         string `json:"token_b"`
	AmountADesired string `json:"amount_a_desired,omitempty"`
	AmountA        string `json:"amount_a"`
	AmountB        string `json:"amount_b"`
}

// LiquidityEventData covers AddedLiquidity and RemovedLiquidity.
type LiquidityEventData struct {
	Provider  string `json:"provider"`
	Liquidity string `json:"liquidity"`
}

// FlashSwapEventData is the decoded FlashSwapRepaid payload.
type FlashSwapEventData struct {
	Token     string `json:"token"`
	Initiator string `json:"initiator"`
	Amount    string `json:"amount"`
	Fee       string `json:"fee"`
}
