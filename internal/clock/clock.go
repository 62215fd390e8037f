package clock

import (
	"sync"
	"time"
)

// SessionClock owns every timer and interval created on behalf of one
// session or monitor. Callers schedule work through it instead of holding
// loose *time.Timer handles, so teardown is a single CancelAll call and a
// callback can never fire into a session that has already been torn down.
type SessionClock struct {
	mu        sync.Mutex
	cancelled bool
	timers    []*time.Timer
	stops     []func()
}

// New creates an empty session clock.
func New() *SessionClock {
	return &SessionClock{}
}

// AfterFunc schedules f to run once after d. If the clock has been
// cancelled, f is never scheduled. The callback itself re-checks the
// cancelled flag so a timer that already fired into the Go runtime queue
// before CancelAll becomes a no-op.
func (c *SessionClock) AfterFunc(d time.Duration, f func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancelled {
		return
	}

	var t *time.Timer
	t = time.AfterFunc(d, func() {
		c.mu.Lock()
		dead := c.cancelled
		c.mu.Unlock()
		if dead {
			return
		}
		f()
	})
	c.timers = append(c.timers, t)
}

// Every runs f repeatedly at interval d until the returned stop function is
// called or the clock is cancelled. The first invocation happens after the
// first interval elapses, matching time.Ticker semantics. The stop function
// is safe to call more than once.
func (c *SessionClock) Every(d time.Duration, f func()) (stop func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancelled {
		return func() {}
	}

	stopCh := make(chan struct{})

	var once sync.Once
	stop = func() {
		once.Do(func() { close(stopCh) })
	}
	c.stops = append(c.stops, stop)

	go func() {
		ticker := time.NewTicker(d)
		defer ticker.Stop()
		for {
			select {
			case <-stopCh:
				return
			case <-ticker.C:
				c.mu.Lock()
				dead := c.cancelled
				c.mu.Unlock()
				if dead {
					return
				}
				f()
			}
		}
	}()

	return stop
}

// CancelAll stops every outstanding timer and interval. Safe to call more
// than once; after the first call the clock refuses new work.
func (c *SessionClock) CancelAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancelled {
		return
	}
	c.cancelled = true

	for _, t := range c.timers {
		t.Stop()
	}
	c.timers = nil

	for _, stop := range c.stops {
		stop()
	}
	c.stops = nil
}

// Cancelled reports whether CancelAll has been called.
func (c *SessionClock) Cancelled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancelled
}
