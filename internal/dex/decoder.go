package dex

import (
	"context"

	"go.uber.org/zap"

	"ammKit/internal/model"
)

// Decoder turns raw logs of one contract family into typed events.
type Decoder interface {
	CanDecode(topic0 string) bool
	Decode(log model.LogRecord, ctx DecodeContext) (*model.TypedEvent, error)
}

// DecodeContext carries what decoders share. Chain may be nil, in which
// case events are decoded without pair metadata or reserves.
type DecodeContext struct {
	Context         context.Context
	Chain           Caller
	PairMetaCache   *PairMetaCache
	TokenMetaCache  *TokenMetaCache
	Logger          *zap.Logger
	IncludeReserves bool
}

// NewDecoders returns the pair decoder followed by the helper decoder.
func NewDecoders(cfg DecoderConfig) ([]Decoder, error) {
	pair, err := NewV2PairDecoder(cfg)
	if err != nil {
		return nil, err
	}
	helper, err := NewHelperDecoder(cfg)
	if err != nil {
		return nil, err
	}
	return []Decoder{pair, helper}, nil
}

// DecodeAny hands log to the first decoder that accepts its topic0 and
// reports whether one matched.
func DecodeAny(decoders []Decoder, log model.LogRecord, ctx DecodeContext) (*model.TypedEvent, bool, error) {
	topic0 := log.Topic0()
	if topic0 == "" {
		return nil, false, nil
	}
	for _, decoder := range decoders {
		if decoder.CanDecode(topic0) {
			event, err := decoder.Decode(log, ctx)
			return event, true, err
		}
	}
	return nil, false, nil
}
