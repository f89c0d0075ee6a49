// Package cache holds the in-process balance cache.
package cache

// Cache defines a generic cache interface
type Cache[K comparable, V any] interface {
	Get(key K) (V, bool)
	Set(key K, value V)
	Delete(key K)
	Purge()
	Size() int
}

var _ Cache[string, int] = (*LRU[string, int])(nil)
