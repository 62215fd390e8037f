package clock

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestAfterFuncFires(t *testing.T) {
	c := New()
	defer c.CancelAll()

	done := make(chan struct{})
	c.AfterFunc(10*time.Millisecond, func() {
		close(done)
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("AfterFunc callback never fired")
	}
}

func TestEveryRepeats(t *testing.T) {
	c := New()
	defer c.CancelAll()

	var count atomic.Int32
	c.Every(5*time.Millisecond, func() {
		count.Add(1)
	})

	time.Sleep(60 * time.Millisecond)

	if got := count.Load(); got < 3 {
		t.Errorf("Every fired %d times, want at least 3", got)
	}
}

func TestCancelAllStopsTimers(t *testing.T) {
	c := New()

	var fired atomic.Int32
	c.AfterFunc(20*time.Millisecond, func() { fired.Add(1) })
	c.Every(10*time.Millisecond, func() { fired.Add(1) })

	c.CancelAll()

	time.Sleep(60 * time.Millisecond)

	if got := fired.Load(); got != 0 {
		t.Errorf("callbacks fired %d times after CancelAll, want 0", got)
	}
}

func TestCancelledClockRefusesWork(t *testing.T) {
	c := New()
	c.CancelAll()

	var fired atomic.Int32
	c.AfterFunc(time.Millisecond, func() { fired.Add(1) })
	c.Every(time.Millisecond, func() { fired.Add(1) })

	time.Sleep(30 * time.Millisecond)

	if got := fired.Load(); got != 0 {
		t.Errorf("cancelled clock ran %d callbacks, want 0", got)
	}

	if !c.Cancelled() {
		t.Error("Cancelled() = false after CancelAll")
	}
}

func TestEveryIndividualStop(t *testing.T) {
	c := New()
	defer c.CancelAll()

	var stopped, running atomic.Int32
	stop := c.Every(5*time.Millisecond, func() { stopped.Add(1) })
	c.Every(5*time.Millisecond, func() { running.Add(1) })

	stop()
	stop() // idempotent

	time.Sleep(50 * time.Millisecond)

	if got := stopped.Load(); got != 0 {
		t.Errorf("stopped interval fired %d times, want 0", got)
	}
	if got := running.Load(); got == 0 {
		t.Error("unrelated interval should keep running after another is stopped")
	}
}

func TestCancelAllIsIdempotent(t *testing.T) {
	c := New()
	c.Every(time.Millisecond, func() {})

	// Must not panic on double close of stop channels
	c.CancelAll()
	c.CancelAll()
}
