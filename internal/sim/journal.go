package sim

import (
	"context"

	"github.com/ethereum/go-ethereum/core/types"
)

type txKey struct{}

// txn collects undo operations and logs of one top-level transaction.
type txn struct {
	world *World
	undo  []func()
	logs  []types.Log
}

type mark struct {
	undo int
	logs int
}

func (tx *txn) mark() mark {
	return mark{undo: len(tx.undo), logs: len(tx.logs)}
}

func (tx *txn) revertTo(m mark) {
	for i := len(tx.undo) - 1; i >= m.undo; i-- {
		tx.undo[i]()
	}
	tx.undo = tx.undo[:m.undo]
	tx.logs = tx.logs[:m.logs]
}

func (tx *txn) emit(log types.Log) {
	tx.logs = append(tx.logs, log)
}

func txFrom(ctx context.Context) *txn {
	tx, _ := ctx.Value(txKey{}).(*txn)
	return tx
}

func setField[T any](tx *txn, field *T, value T) {
	old := *field
	tx.undo = append(tx.undo, func() { *field = old })
	*field = value
}

func setEntry[K comparable, V any](tx *txn, m map[K]V, key K, value V) {
	old, existed := m[key]
	tx.undo = append(tx.undo, func() {
		if existed {
			m[key] = old
		} else {
			delete(m, key)
		}
	})
	m[key] = value
}
