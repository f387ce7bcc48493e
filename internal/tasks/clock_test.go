package tasks

import (
	"context"
	"sync"
	"time"
)

// fakeClock advances instantly on Sleep. When blockAfter is positive, the
// blockAfter-th Sleep and every later one wait for ctx instead, after
// signalling on blocked.
type fakeClock struct {
	mu         sync.Mutex
	now        time.Time
	sleeps     []time.Duration
	blockAfter int
	blocked    chan struct{}
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now, blocked: make(chan struct{}, 16)}
}

func newBlockingClock(now time.Time, blockAfter int) *fakeClock {
	c := newFakeClock(now)
	c.blockAfter = blockAfter
	return c
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	block := c.blockAfter > 0 && len(c.sleeps) >= c.blockAfter
	if !block {
		c.now = c.now.Add(d)
	}
	c.mu.Unlock()
	if !block {
		return nil
	}
	select {
	case c.blocked <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return ctx.Err()
}

func (c *fakeClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, len(c.sleeps))
	copy(out, c.sleeps)
	return out
}
