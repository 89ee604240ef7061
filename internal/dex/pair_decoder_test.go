package dex

import (
	"context"
	"math/big"
	"reflect"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"ammKit/internal/model"
)

var (
	testPair   = common.HexToAddress("0xA478c2975Ab1Ea89e8196811F51A7B7Ade33eB11")
	testDai    = common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F")
	testWeth   = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	testSender = common.HexToAddress("0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D")
	testTo     = common.HexToAddress("0x1111111111111111111111111111111111111111")
)

func toRecord(log types.Log) model.LogRecord {
	topics := make([]string, 0, len(log.Topics))
	for _, topic := range log.Topics {
		topics = append(topics, topic.Hex())
	}
	return model.LogRecord{
		ChainID:     1,
		BlockNumber: 19000000,
		TxHash:      "0xabc",
		LogIndex:    3,
		Address:     log.Address.Hex(),
		Topics:      topics,
		Data:        hexutil.Encode(log.Data),
		Timestamp:   1700000000,
	}
}

func packPairLog(t *testing.T, name string, args ...interface{}) model.LogRecord {
	t.Helper()
	parsed, err := V2PairABI()
	if err != nil {
		t.Fatalf("pair abi: %v", err)
	}
	log, err := PackNamedLog(parsed, testPair, name, args...)
	if err != nil {
		t.Fatalf("pack %s: %v", name, err)
	}
	return toRecord(log)
}

func TestV2PairDecoderSwap(t *testing.T) {
	decoder, err := NewV2PairDecoder(DecoderConfig{})
	if err != nil {
		t.Fatalf("new decoder: %v", err)
	}
	log := packPairLog(t, "Swap", testSender,
		big.NewInt(0), big.NewInt(1000000000000000000),
		big.NewInt(996006981039903216), big.NewInt(0),
		testTo,
	)
	if !decoder.CanDecode(strings.ToUpper(log.Topics[0][:2]) + log.Topics[0][2:]) {
		t.Fatalf("expected decoder to accept topic0 case-insensitively")
	}

	cache := NewPairMetaCache()
	cache.Set(testPair, model.PairMeta{Token0: testDai.Hex(), Token1: testWeth.Hex()})
	event, err := decoder.Decode(log, DecodeContext{Context: context.Background(), PairMetaCache: cache})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	want := model.SwapEventData{
		Sender:     testSender.Hex(),
		To:         testTo.Hex(),
		Amount0In:  "0",
		Amount1In:  "1000000000000000000",
		Amount0Out: "996006981039903216",
		Amount1Out: "0",
	}
	if !reflect.DeepEqual(event.Decoded, want) {
		t.Fatalf("decoded mismatch: got %+v want %+v", event.Decoded, want)
	}
	if event.EventName != "Swap" || event.BlockNumber != 19000000 || event.LogIndex != 3 {
		t.Fatalf("unexpected envelope: %+v", event)
	}
	if event.PairMeta.Token0 != testDai.Hex() || event.PairMeta.Token1 != testWeth.Hex() {
		t.Fatalf("unexpected pair meta: %+v", event.PairMeta)
	}
	if event.Raw == nil || event.Raw.Topic0 != log.Topics[0] {
		t.Fatalf("expected raw ref, got %+v", event.Raw)
	}
}

func TestV2PairDecoderSyncMintBurn(t *testing.T) {
	decoder, err := NewV2PairDecoder(DecoderConfig{})
	if err != nil {
		t.Fatalf("new decoder: %v", err)
	}
	ctx := DecodeContext{Context: context.Background()}

	cases := []struct {
		name string
		log  model.LogRecord
		want interface{}
	}{
		{
			name: "Sync",
			log:  packPairLog(t, "Sync", big.NewInt(5000), big.NewInt(7)),
			want: model.SyncEventData{Reserve0: "5000", Reserve1: "7"},
		},
		{
			name: "Mint",
			log:  packPairLog(t, "Mint", testSender, big.NewInt(10), big.NewInt(20)),
			want: model.MintEventData{Sender: testSender.Hex(), Amount0: "10", Amount1: "20"},
		},
		{
			name: "Burn",
			log:  packPairLog(t, "Burn", testSender, big.NewInt(9), big.NewInt(19), testTo),
			want: model.BurnEventData{Sender: testSender.Hex(), To: testTo.Hex(), Amount0: "9", Amount1: "19"},
		},
	}
	for _, tc := range cases {
		event, err := decoder.Decode(tc.log, ctx)
		if err != nil {
			t.Fatalf("%s: decode: %v", tc.name, err)
		}
		if event.EventName != tc.name {
			t.Fatalf("%s: got event name %s", tc.name, event.EventName)
		}
		if !reflect.DeepEqual(event.Decoded, tc.want) {
			t.Fatalf("%s: got %+v want %+v", tc.name, event.Decoded, tc.want)
		}
		if event.PairMeta != (model.PairMeta{}) {
			t.Fatalf("%s: expected empty pair meta without a chain, got %+v", tc.name, event.PairMeta)
		}
	}
}

func TestV2PairDecoderRejectsMalformedLogs(t *testing.T) {
	decoder, err := NewV2PairDecoder(DecoderConfig{})
	if err != nil {
		t.Fatalf("new decoder: %v", err)
	}
	ctx := DecodeContext{Context: context.Background()}

	swap := packPairLog(t, "Swap", testSender, big.NewInt(1), big.NewInt(0), big.NewInt(0), big.NewInt(1), testTo)

	missingTopic := swap
	missingTopic.Topics = swap.Topics[:2]
	if _, err := decoder.Decode(missingTopic, ctx); err == nil {
		t.Fatalf("expected topic count error")
	}

	badData := swap
	badData.Data = "0x1234"
	if _, err := decoder.Decode(badData, ctx); err == nil {
		t.Fatalf("expected data error")
	}

	unknown := swap
	unknown.Topics = append([]string{common.Hash{}.Hex()}, swap.Topics[1:]...)
	if decoder.CanDecode(unknown.Topics[0]) {
		t.Fatalf("expected unknown topic0 to be rejected")
	}
	if _, err := decoder.Decode(unknown, ctx); err == nil {
		t.Fatalf("expected unsupported topic error")
	}
}

func TestDecoderTopic0Aliases(t *testing.T) {
	alias := "0x" + strings.Repeat("ab", 32)
	decoder, err := NewV2PairDecoder(DecoderConfig{Topic0Map: map[string]string{alias: "sync"}})
	if err != nil {
		t.Fatalf("new decoder: %v", err)
	}
	log := packPairLog(t, "Sync", big.NewInt(1), big.NewInt(2))
	log.Topics[0] = alias
	if !decoder.CanDecode(alias) {
		t.Fatalf("expected alias to be accepted")
	}
	event, err := decoder.Decode(log, DecodeContext{})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if event.EventName != "Sync" {
		t.Fatalf("got %s", event.EventName)
	}
}

func TestHelperDecoder(t *testing.T) {
	decoder, err := NewHelperDecoder(DecoderConfig{})
	if err != nil {
		t.Fatalf("new decoder: %v", err)
	}
	helper := common.HexToAddress("0x2222222222222222222222222222222222222222")
	pack := func(name string, args ...interface{}) model.LogRecord {
		log, err := PackHelperLog(helper, name, args...)
		if err != nil {
			t.Fatalf("pack %s: %v", name, err)
		}
		return toRecord(log)
	}

	cases := []struct {
		name string
		log  model.LogRecord
		want interface{}
	}{
		{
			name: "AddedTokensToLiquidity",
			log:  pack("AddedTokensToLiquidity", testDai, testWeth, big.NewInt(100), big.NewInt(90), big.NewInt(1)),
			want: model.LiquidityTokensEventData{TokenA: testDai.Hex(), TokenB: testWeth.Hex(), AmountADesired: "100", AmountA: "90", AmountB: "1"},
		},
		{
			name: "RemovedTokensFromLiquidity",
			log:  pack("RemovedTokensFromLiquidity", testDai, testWeth, big.NewInt(89), big.NewInt(1)),
			want: model.LiquidityTokensEventData{TokenA: testDai.Hex(), TokenB: testWeth.Hex(), AmountA: "89", AmountB: "1"},
		},
		{
			name: "AddedLiquidity",
			log:  pack("AddedLiquidity", testSender, big.NewInt(31622776601683793)),
			want: model.LiquidityEventData{Provider: testSender.Hex(), Liquidity: "31622776601683793"},
		},
		{
			name: "RemovedLiquidity",
			log:  pack("RemovedLiquidity", testSender, big.NewInt(5)),
			want: model.LiquidityEventData{Provider: testSender.Hex(), Liquidity: "5"},
		},
		{
			name: "FlashSwapRepaid",
			log:  pack("FlashSwapRepaid", testWeth, testSender, big.NewInt(1000), big.NewInt(4)),
			want: model.FlashSwapEventData{Token: testWeth.Hex(), Initiator: testSender.Hex(), Amount: "1000", Fee: "4"},
		},
	}
	for _, tc := range cases {
		event, err := decoder.Decode(tc.log, DecodeContext{})
		if err != nil {
			t.Fatalf("%s: decode: %v", tc.name, err)
		}
		if event.EventName != tc.name || event.Address != helper.Hex() {
			t.Fatalf("%s: unexpected envelope %+v", tc.name, event)
		}
		if !reflect.DeepEqual(event.Decoded, tc.want) {
			t.Fatalf("%s: got %+v want %+v", tc.name, event.Decoded, tc.want)
		}
	}
}

func TestDecodeAny(t *testing.T) {
	decoders, err := NewDecoders(DecoderConfig{})
	if err != nil {
		t.Fatalf("decoders: %v", err)
	}

	sync := packPairLog(t, "Sync", big.NewInt(1), big.NewInt(2))
	event, matched, err := DecodeAny(decoders, sync, DecodeContext{})
	if err != nil || !matched || event.EventName != "Sync" {
		t.Fatalf("expected Sync match, got %v %v %v", event, matched, err)
	}

	erc20, err := ERC20ABI()
	if err != nil {
		t.Fatalf("erc20 abi: %v", err)
	}
	transfer, err := PackNamedLog(erc20, testDai, "Transfer", testSender, testTo, big.NewInt(1))
	if err != nil {
		t.Fatalf("pack transfer: %v", err)
	}
	_, matched, err = DecodeAny(decoders, toRecord(transfer), DecodeContext{})
	if err != nil || matched {
		t.Fatalf("expected Transfer to be skipped, got matched=%v err=%v", matched, err)
	}
}
