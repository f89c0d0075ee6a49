package ledger

import (
	"sync"
	"time"
)

// Clock hands out strictly increasing timestamps with nanosecond resolution.
// Two calls never return the same instant, even when the wall clock stalls
// or steps backwards.
type Clock struct {
	mu   sync.Mutex
	now  func() time.Time
	last int64
}

func NewClock(now func() time.Time) *Clock {
	if now == nil {
		now = time.Now
	}
	return &Clock{now: now}
}

// Now returns a UTC time after every time previously returned.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	ns := c.now().UnixNano()
	if ns <= c.last {
		ns = c.last + 1
	}
	c.last = ns
	return time.Unix(0, ns).UTC()
}
