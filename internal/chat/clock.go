package chat

import (
	"sync"
	"time"
)

// clock hands out timestamps that never go backwards within the process,
// even if the wall clock is stepped.
type clock struct {
	mu   sync.Mutex
	last time.Time
	now  func() time.Time
}

func newClock() *clock {
	return &clock{now: time.Now}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now()
	if t.Before(c.last) {
		t = c.last
	}
	c.last = t
	return t
}

// processClock is shared by every store in the process.
var processClock = newClock()
