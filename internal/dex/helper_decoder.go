package dex

import (
	"fmt"

	"ammKit/internal/model"
)

var helperEventNames = []string{
	"AddedTokensToLiquidity",
	"AddedLiquidity",
	"RemovedTokensFromLiquidity",
	"RemovedLiquidity",
	"FlashSwapRepaid",
}

// HelperDecoder decodes the audit events emitted by the router and the
// flash borrower. These carry no pair metadata.
type HelperDecoder struct {
	events eventTable
}

func NewHelperDecoder(cfg DecoderConfig) (*HelperDecoder, error) {
	parsed, err := HelperABI()
	if err != nil {
		return nil, fmt.Errorf("parse helper abi: %w", err)
	}
	events, err := newEventTable(parsed, helperEventNames, cfg.Topic0Map)
	if err != nil {
		return nil, err
	}
	return &HelperDecoder{events: events}, nil
}

func (d *HelperDecoder) CanDecode(topic0 string) bool {
	return d.events.canDecode(topic0)
}

func (d *HelperDecoder) Decode(log model.LogRecord, _ DecodeContext) (*model.TypedEvent, error) {
	event, err := d.events.lookup(log)
	if err != nil {
		return nil, err
	}
	fields, err := decodeFields(event, log)
	if err != nil {
		return nil, err
	}

	var decoded interface{}
	switch event.Name {
	case "AddedTokensToLiquidity":
		var data model.LiquidityTokensEventData
		err = fields.fill(
			map[string]*string{"tokenA": &data.TokenA, "tokenB": &data.TokenB},
			map[string]*string{"amountADesired": &data.AmountADesired, "amountA": &data.AmountA, "amountB": &data.AmountB},
		)
		decoded = data
	case "RemovedTokensFromLiquidity":
		var data model.LiquidityTokensEventData
		err = fields.fill(
			map[string]*string{"tokenA": &data.TokenA, "tokenB": &data.TokenB},
			map[string]*string{"amountA": &data.AmountA, "amountB": &data.AmountB},
		)
		decoded = data
	case "AddedLiquidity", "RemovedLiquidity":
		var data model.LiquidityEventData
		err = fields.fill(
			map[string]*string{"provider": &data.Provider},
			map[string]*string{"liquidity": &data.Liquidity},
		)
		decoded = data
	case "FlashSwapRepaid":
		var data model.FlashSwapEventData
		err = fields.fill(
			map[string]*string{"token": &data.Token, "initiator": &data.Initiator},
			map[string]*string{"amount": &data.Amount, "fee": &data.Fee},
		)
		decoded = data
	default:
		return nil, fmt.Errorf("unsupported event: %s", event.Name)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", event.Name, err)
	}
	return buildTypedEvent(log, event.Name, decoded, model.PairMeta{}), nil
}
