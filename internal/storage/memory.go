package storage

import (
	"bytes"
	"context"
	"iter"
	"slices"
	"sync"
)

// MemoryStore keeps every pair in memory. Keys are held in a sorted slice so
// range scans are a binary search plus a copy.
type MemoryStore struct {
	mu     sync.RWMutex
	keys   []string
	values map[string][]byte
	closed bool
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string][]byte)}
}

func (s *MemoryStore) Get(ctx context.Context, key []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	v, ok := s.values[string(key)]
	if !ok {
		return nil, ErrNotFound
	}
	return bytes.Clone(v), nil
}

func (s *MemoryStore) Set(ctx context.Context, key, value []byte) error {
	return s.Update(ctx, func(tx Tx) error {
		return tx.Set(key, value)
	})
}

// Range copies the matching pairs under the read lock when iteration starts,
// so one iteration never observes half of an Update.
func (s *MemoryStore) Range(ctx context.Context, start, end []byte) iter.Seq2[KV, error] {
	return func(yield func(KV, error) bool) {
		if err := ctx.Err(); err != nil {
			yield(KV{}, err)
			return
		}
		snapshot, err := s.snapshot(start, end)
		if err != nil {
			yield(KV{}, err)
			return
		}
		for _, kv := range snapshot {
			if err := ctx.Err(); err != nil {
				yield(KV{}, err)
				return
			}
			if !yield(kv, nil) {
				return
			}
		}
	}
}

func (s *MemoryStore) snapshot(start, end []byte) ([]KV, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	lo, _ := slices.BinarySearch(s.keys, string(start))
	hi, _ := slices.BinarySearch(s.keys, string(end))
	if hi <= lo {
		return nil, nil
	}
	out := make([]KV, 0, hi-lo)
	for _, k := range s.keys[lo:hi] {
		out = append(out, KV{Key: []byte(k), Value: bytes.Clone(s.values[k])})
	}
	return out, nil
}

func (s *MemoryStore) Update(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	tx := &memoryTx{store: s, staged: make(map[string][]byte)}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	for k, v := range tx.staged {
		s.put(k, v)
	}
	return nil
}

// put must be called with mu held for writing.
func (s *MemoryStore) put(k string, v []byte) {
	if _, ok := s.values[k]; !ok {
		i, _ := slices.BinarySearch(s.keys, k)
		s.keys = slices.Insert(s.keys, i, k)
	}
	s.values[k] = v
}

// Len returns the number of stored keys.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.keys)
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

type memoryTx struct {
	store  *MemoryStore
	staged map[string][]byte
}

func (tx *memoryTx) Get(key []byte) ([]byte, error) {
	if v, ok := tx.staged[string(key)]; ok {
		return bytes.Clone(v), nil
	}
	v, ok := tx.store.values[string(key)]
	if !ok {
		return nil, ErrNotFound
	}
	return bytes.Clone(v), nil
}

func (tx *memoryTx) Set(key, value []byte) error {
	tx.staged[string(key)] = bytes.Clone(value)
	return nil
}
