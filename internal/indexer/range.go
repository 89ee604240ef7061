package indexer

import "fmt"

// BlockRange is an inclusive block range.
type BlockRange struct {
	From uint64
	To   uint64
}

// EachRange calls fn for consecutive batches of at most size blocks
// covering [from, to]. It stops at the first error fn returns.
func EachRange(from, to, size uint64, fn func(BlockRange) error) error {
	if size == 0 {
		return fmt.Errorf("batch size must be greater than zero")
	}
	if to < from {
		return fmt.Errorf("to block must be >= from block")
	}

	for start := from; ; {
		end := to
		if to-start >= size {
			end = start + size - 1
		}
		if err := fn(BlockRange{From: start, To: end}); err != nil {
			return err
		}
		if end == to {
			return nil
		}
		start = end + 1
	}
}
