// Package sim is an in-process ledger that runs UniswapV2 style contracts
// with all-or-nothing transactions and block-ordered logs.
package sim

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"ammKit/internal/amm"
	"ammKit/internal/dex"
)

var (
	ErrUnknownToken = errors.New("sim: unknown token")
	ErrUnknownPair  = errors.New("sim: unknown pair")
	ErrNotCallee    = errors.New("sim: recipient does not implement uniswapV2Call")
	ErrNoBlock      = errors.New("sim: block not found")
)

var _ amm.Env = (*World)(nil)

// DefaultTimestamp is the genesis timestamp of a new World.
const DefaultTimestamp = 1_700_000_000

// Block is a committed transaction.
type Block struct {
	Number    uint64
	Hash      common.Hash
	TxHash    common.Hash
	Timestamp uint64
	Logs      []types.Log
}

// World holds every simulated contract. Top-level transactions are
// serialized; nested calls reuse the transaction carried in the context.
type World struct {
	mu       sync.RWMutex
	chainID  uint64
	deployer common.Address
	nonce    uint64
	now      uint64
	blocks   []Block

	reg    registry
	logger *zap.Logger
}

type registry struct {
	mu        sync.RWMutex
	tokens    map[common.Address]*Token
	pairs     map[common.Address]*Pair
	contracts map[common.Address]interface{}
}

// Option configures a World.
type Option func(*World)

// WithLogger sets the logger used for transaction traces.
func WithLogger(logger *zap.Logger) Option {
	return func(w *World) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithChainID sets the chain id reported to log consumers.
func WithChainID(id uint64) Option {
	return func(w *World) { w.chainID = id }
}

// WithTimestamp sets the genesis timestamp.
func WithTimestamp(ts uint64) Option {
	return func(w *World) { w.now = ts }
}

func NewWorld(opts ...Option) *World {
	w := &World{
		chainID:  1337,
		deployer: common.HexToAddress("0x00000000000000000000000000000000000dE910"),
		now:      DefaultTimestamp,
		logger:   zap.NewNop(),
		reg: registry{
			tokens:    make(map[common.Address]*Token),
			pairs:     make(map[common.Address]*Pair),
			contracts: make(map[common.Address]interface{}),
		},
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Atomic runs fn as a transaction. A call nested in a running transaction
// reverts only its own changes on error; a top-level call commits a block.
func (w *World) Atomic(ctx context.Context, fn func(ctx context.Context) error) error {
	if tx := txFrom(ctx); tx != nil && tx.world == w {
		m := tx.mark()
		defer func() {
			if r := recover(); r != nil {
				tx.revertTo(m)
				panic(r)
			}
		}()
		if err := fn(ctx); err != nil {
			tx.revertTo(m)
			return err
		}
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	tx := &txn{world: w}
	defer func() {
		if r := recover(); r != nil {
			tx.revertTo(mark{})
			panic(r)
		}
	}()
	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		tx.revertTo(mark{})
		w.logger.Debug("transaction reverted", zap.Error(err))
		return err
	}
	w.commit(tx)
	return nil
}

func (w *World) view(ctx context.Context, fn func()) {
	if tx := txFrom(ctx); tx != nil && tx.world == w {
		fn()
		return
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	fn()
}

func (w *World) commit(tx *txn) {
	number := uint64(len(w.blocks)) + 1
	var seed [16]byte
	binary.BigEndian.PutUint64(seed[:8], w.chainID)
	binary.BigEndian.PutUint64(seed[8:], number)
	blockHash := crypto.Keccak256Hash(seed[:])
	txHash := crypto.Keccak256Hash(blockHash.Bytes(), seed[8:])

	logs := make([]types.Log, len(tx.logs))
	for i, log := range tx.logs {
		log.BlockNumber = number
		log.BlockHash = blockHash
		log.TxHash = txHash
		log.Index = uint(i)
		logs[i] = log
	}

	w.blocks = append(w.blocks, Block{
		Number:    number,
		Hash:      blockHash,
		TxHash:    txHash,
		Timestamp: w.now,
		Logs:      logs,
	})
	w.logger.Debug("block committed", zap.Uint64("number", number), zap.Int("logs", len(logs)))
}

func (w *World) emitEvent(tx *txn, parsed abi.ABI, address common.Address, name string, args ...interface{}) error {
	log, err := dex.PackNamedLog(parsed, address, name, args...)
	if err != nil {
		return err
	}
	tx.emit(log)
	return nil
}

// Emit records a log in the transaction carried by ctx.
func (w *World) Emit(ctx context.Context, log types.Log) error {
	tx := txFrom(ctx)
	if tx == nil || tx.world != w {
		return fmt.Errorf("emit outside transaction")
	}
	tx.emit(log)
	return nil
}

// Timestamp returns the current block timestamp.
func (w *World) Timestamp(ctx context.Context) (uint64, error) {
	var ts uint64
	w.view(ctx, func() { ts = w.now })
	return ts, nil
}

// AdvanceTime moves the clock forward.
func (w *World) AdvanceTime(d time.Duration) {
	w.mu.Lock()
	w.now += uint64(d / time.Second)
	w.mu.Unlock()
}

// SetTimestamp sets the clock. It never moves backwards.
func (w *World) SetTimestamp(ts uint64) {
	w.mu.Lock()
	if ts > w.now {
		w.now = ts
	}
	w.mu.Unlock()
}

func (w *World) newAddress() common.Address {
	addr := crypto.CreateAddress(w.deployer, w.nonce)
	w.nonce++
	return addr
}

// Deploy registers a helper contract at a fresh address.
func (w *World) Deploy(contract interface{}) common.Address {
	w.mu.Lock()
	addr := w.newAddress()
	w.mu.Unlock()

	w.reg.mu.Lock()
	w.reg.contracts[addr] = contract
	w.reg.mu.Unlock()
	return addr
}

// NewAccount returns a fresh externally owned address.
func (w *World) NewAccount() common.Address {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.newAddress()
}

// DeployToken creates an ERC20 token.
func (w *World) DeployToken(name, symbol string, decimals uint8) *Token {
	w.mu.Lock()
	addr := w.newAddress()
	w.mu.Unlock()

	token := newToken(w, addr, name, symbol, decimals)
	w.reg.mu.Lock()
	w.reg.tokens[addr] = token
	w.reg.mu.Unlock()
	return token
}

// DeployFactory creates a pair factory.
func (w *World) DeployFactory() *Factory {
	w.mu.Lock()
	addr := w.newAddress()
	w.mu.Unlock()

	factory := newFactory(w, addr)
	w.reg.mu.Lock()
	w.reg.contracts[addr] = factory
	w.reg.mu.Unlock()
	return factory
}

// Token returns the token (or pair LP token) at address.
func (w *World) Token(address common.Address) (amm.Token, error) {
	w.reg.mu.RLock()
	defer w.reg.mu.RUnlock()
	if pair, ok := w.reg.pairs[address]; ok {
		return pair, nil
	}
	if token, ok := w.reg.tokens[address]; ok {
		return token, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownToken, address.Hex())
}

// Pair returns the pair at address.
func (w *World) Pair(address common.Address) (amm.Pair, error) {
	pair, ok := w.lookupPair(address)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPair, address.Hex())
	}
	return pair, nil
}

func (w *World) lookupPair(address common.Address) (*Pair, bool) {
	w.reg.mu.RLock()
	defer w.reg.mu.RUnlock()
	pair, ok := w.reg.pairs[address]
	return pair, ok
}

func (w *World) lookupToken(address common.Address) (*Token, error) {
	w.reg.mu.RLock()
	defer w.reg.mu.RUnlock()
	if pair, ok := w.reg.pairs[address]; ok {
		return pair.Token, nil
	}
	if token, ok := w.reg.tokens[address]; ok {
		return token, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownToken, address.Hex())
}

func (w *World) callee(address common.Address) (amm.Callee, bool) {
	w.reg.mu.RLock()
	defer w.reg.mu.RUnlock()
	callee, ok := w.reg.contracts[address].(amm.Callee)
	return callee, ok
}

func (w *World) registerPair(tx *txn, pair *Pair) {
	w.reg.mu.Lock()
	w.reg.pairs[pair.address] = pair
	w.reg.mu.Unlock()
	tx.undo = append(tx.undo, func() {
		w.reg.mu.Lock()
		delete(w.reg.pairs, pair.address)
		w.reg.mu.Unlock()
	})
}

// GetChainID returns the configured chain id.
func (w *World) GetChainID(_ context.Context) (*big.Int, error) {
	return new(big.Int).SetUint64(w.chainID), nil
}

// LatestBlockNumber returns the number of the last committed block.
func (w *World) LatestBlockNumber(ctx context.Context) (uint64, error) {
	var n uint64
	w.view(ctx, func() { n = uint64(len(w.blocks)) })
	return n, nil
}

// BlockTimestamp returns the timestamp of a committed block.
func (w *World) BlockTimestamp(ctx context.Context, number uint64) (uint64, error) {
	var (
		ts  uint64
		err error
	)
	w.view(ctx, func() {
		if number == 0 || number > uint64(len(w.blocks)) {
			err = fmt.Errorf("%w: %d", ErrNoBlock, number)
			return
		}
		ts = w.blocks[number-1].Timestamp
	})
	return ts, err
}

// FilterLogs returns committed logs in [fromBlock, toBlock] emitted by
// addresses, optionally restricted to topic0 values.
func (w *World) FilterLogs(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topic0 []common.Hash) ([]types.Log, error) {
	var out []types.Log
	w.view(ctx, func() {
		for _, block := range w.blocks {
			if block.Number < fromBlock || block.Number > toBlock {
				continue
			}
			for _, log := range block.Logs {
				if matchLog(log, addresses, topic0) {
					out = append(out, log)
				}
			}
		}
	})
	return out, nil
}

// LastBlock returns the most recent block.
func (w *World) LastBlock() (Block, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if len(w.blocks) == 0 {
		return Block{}, false
	}
	return w.blocks[len(w.blocks)-1], true
}

func matchLog(log types.Log, addresses []common.Address, topic0 []common.Hash) bool {
	if len(addresses) > 0 {
		found := false
		for _, addr := range addresses {
			if log.Address == addr {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(topic0) == 0 {
		return true
	}
	if len(log.Topics) == 0 {
		return false
	}
	for _, topic := range topic0 {
		if log.Topics[0] == topic {
			return true
		}
	}
	return false
}
