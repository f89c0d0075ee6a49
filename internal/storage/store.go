package storage

import (
	"context"
	"errors"
	"iter"
)

var (
	// ErrNotFound is returned when a key does not exist
	ErrNotFound = errors.New("not found")

	// ErrClosed is returned by every operation after Close
	ErrClosed = errors.New("store closed")
)

// KV is one key/value pair returned by a range scan
type KV struct {
	Key   []byte
	Value []byte
}

// Tx is the view of the store inside Update. Reads see the transaction's own
// staged writes.
type Tx interface {
	Get(key []byte) ([]byte, error)
	Set(key, value []byte) error
}

// Store is an ordered key-value collection. Keys compare as raw bytes.
type Store interface {
	// Get returns the value of key or ErrNotFound.
	Get(ctx context.Context, key []byte) ([]byte, error)

	// Set creates or replaces key.
	Set(ctx context.Context, key, value []byte) error

	// Range yields the pairs with start <= key < end in key order. The scan
	// runs lazily each time the sequence is iterated; an error is yielded
	// once and ends the sequence.
	Range(ctx context.Context, start, end []byte) iter.Seq2[KV, error]

	// Update runs fn atomically: either every Set made through the Tx
	// becomes visible to readers at once, or none does when fn returns an
	// error.
	Update(ctx context.Context, fn func(tx Tx) error) error

	Close() error
}
