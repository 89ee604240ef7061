package dex

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"ammKit/internal/model"
)

var pairEventNames = []string{"Swap", "Sync", "Mint", "Burn"}

// V2PairDecoder decodes events emitted by Uniswap V2 pairs.
type V2PairDecoder struct {
	events eventTable
}

// NewV2PairDecoder builds a decoder for Swap, Sync, Mint and Burn.
func NewV2PairDecoder(cfg DecoderConfig) (*V2PairDecoder, error) {
	parsed, err := V2PairABI()
	if err != nil {
		return nil, fmt.Errorf("parse pair abi: %w", err)
	}
	events, err := newEventTable(parsed, pairEventNames, cfg.Topic0Map)
	if err != nil {
		return nil, err
	}
	return &V2PairDecoder{events: events}, nil
}

func (d *V2PairDecoder) CanDecode(topic0 string) bool {
	return d.events.canDecode(topic0)
}

func (d *V2PairDecoder) Decode(log model.LogRecord, ctx DecodeContext) (*model.TypedEvent, error) {
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
	case "Swap":
		var data model.SwapEventData
		err = fields.fill(
			map[string]*string{"sender": &data.Sender, "to": &data.To},
			map[string]*string{
				"amount0In":  &data.Amount0In,
				"amount1In":  &data.Amount1In,
				"amount0Out": &data.Amount0Out,
				"amount1Out": &data.Amount1Out,
			},
		)
		decoded = data
	case "Sync":
		var data model.SyncEventData
		err = fields.fill(nil, map[string]*string{"reserve0": &data.Reserve0, "reserve1": &data.Reserve1})
		decoded = data
	case "Mint":
		var data model.MintEventData
		err = fields.fill(
			map[string]*string{"sender": &data.Sender},
			map[string]*string{"amount0": &data.Amount0, "amount1": &data.Amount1},
		)
		decoded = data
	case "Burn":
		var data model.BurnEventData
		err = fields.fill(
			map[string]*string{"sender": &data.Sender, "to": &data.To},
			map[string]*string{"amount0": &data.Amount0, "amount1": &data.Amount1},
		)
		decoded = data
	default:
		return nil, fmt.Errorf("unsupported event: %s", event.Name)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", event.Name, err)
	}

	meta, err := pairMeta(log, ctx)
	if err != nil {
		return nil, err
	}
	return buildTypedEvent(log, event.Name, decoded, meta), nil
}

// pairMeta resolves tokens for the emitting pair from the cache or, when a
// chain is configured, from the pair contract itself.
func pairMeta(log model.LogRecord, ctx DecodeContext) (model.PairMeta, error) {
	if !common.IsHexAddress(log.Address) {
		return model.PairMeta{}, fmt.Errorf("invalid pair address: %s", log.Address)
	}
	pair := common.HexToAddress(log.Address)
	logger := ctx.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var meta model.PairMeta
	cached := false
	if ctx.PairMetaCache != nil {
		meta, cached = ctx.PairMetaCache.Get(pair)
	}
	if !cached {
		if ctx.Chain == nil {
			return model.PairMeta{}, nil
		}
		fetched, err := FetchPairMeta(ctx.Context, ctx.Chain, pair, ctx.TokenMetaCache, logger)
		if err != nil {
			return model.PairMeta{}, fmt.Errorf("pair meta %s: %w", strings.ToLower(log.Address), err)
		}
		meta = fetched
		if ctx.PairMetaCache != nil {
			ctx.PairMetaCache.Set(pair, meta)
		}
	}

	if ctx.IncludeReserves && ctx.Chain != nil {
		reserve0, reserve1, _, err := FetchPairReserves(ctx.Context, ctx.Chain, pair, log.BlockNumber)
		if err != nil {
			logger.Warn("reserves fetch failed",
				zap.String("pair", log.Address),
				zap.Uint64("block", log.BlockNumber),
				zap.Error(err),
			)
		} else {
			meta.Reserve0 = reserve0.String()
			meta.Reserve1 = reserve1.String()
		}
	}
	return meta, nil
}
