package cache

import (
	"testing"
	"time"
)

func TestLRUGetSet(t *testing.T) {
	c := NewLRU[string, int](2, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)

	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Fatalf("Get(a) = %d, %v", v, ok)
	}
	// a is now most recently used, so adding c evicts b
	c.Set("c", 3)
	if _, ok := c.Get("b"); ok {
		t.Fatalf("b should have been evicted")
	}
	if c.Size() != 2 {
		t.Fatalf("Size = %d, want 2", c.Size())
	}

	c.Delete("a")
	if _, ok := c.Get("a"); ok {
		t.Fatalf("a should have been deleted")
	}

	hits, misses := c.Stats()
	if hits != 1 || misses != 2 {
		t.Fatalf("Stats = %d hits %d misses, want 1 and 2", hits, misses)
	}

	c.Purge()
	if c.Size() != 0 {
		t.Fatalf("Size after Purge = %d", c.Size())
	}
}

func TestLRUExpiry(t *testing.T) {
	now := time.Unix(1000, 0)
	c := NewLRU[string, int](10, time.Second)
	c.now = func() time.Time { return now }

	c.Set("a", 1)
	c.Set("b", 2)
	now = now.Add(500 * time.Millisecond)
	c.Set("c", 3)

	now = now.Add(600 * time.Millisecond)
	if _, ok := c.Get("a"); ok {
		t.Fatalf("a should have expired")
	}

	if n := c.CleanExpired(); n != 1 {
		t.Fatalf("CleanExpired removed %d, want 1 (b)", n)
	}
	if v, ok := c.Get("c"); !ok || v != 3 {
		t.Fatalf("c should still be cached")
	}
}

func TestLRUSetDropsExpiredBeforeLive(t *testing.T) {
	now := time.Unix(1000, 0)
	c := NewLRU[string, int](2, time.Second)
	c.now = func() time.Time { return now }

	c.Set("old", 1)
	now = now.Add(900 * time.Millisecond)
	c.Set("live", 2)
	c.Get("old") // most recently used, but about to expire
	now = now.Add(200 * time.Millisecond)

	c.Set("new", 3)
	if v, ok := c.Get("live"); !ok || v != 2 {
		t.Fatalf("live entry was evicted instead of the expired one")
	}
	if c.Size() != 2 {
		t.Fatalf("Size = %d, want 2", c.Size())
	}
}
