// Package clock provides the per-scene simulation clock.
//
// The clock is advanced once per frame by an external driver (the render
// loop, a test, or Engine.Run). Time-dependent nodes register as
// listeners and compute their outputs when the clock ticks.
package clock

import (
	"slices"
	"sync"
	"sync/atomic"
)

// TimeListener is notified on every successful tick.
type TimeListener interface {
	TimeChanged(time float64)
}

// Clock is a monotonic simulation clock in milliseconds.
//
// Thread-safety: Time and Millis are safe from any goroutine (atomic).
// Tick and listener registration are called from the engine goroutine;
// listener calls run synchronously inside Tick.
type Clock struct {
	ms      atomic.Int64
	started atomic.Bool

	mu        sync.Mutex
	listeners []TimeListener
}

// New creates a clock that has not yet ticked. The first Tick with any
// value succeeds, including 0.
func New() *Clock {
	return &Clock{}
}

// NewAt creates a clock already positioned at ms. Used by replay to resume
// from a recorded frame.
func NewAt(ms int64) *Clock {
	c := &Clock{}
	c.ms.Store(ms)
	c.started.Store(true)
	return c
}

// Tick advances the clock to ms and notifies listeners in registration
// order. A non-increasing value is ignored and Tick returns false.
func (c *Clock) Tick(ms int64) bool {
	if c.started.Load() && ms <= c.ms.Load() {
		return false
	}
	c.ms.Store(ms)
	c.started.Store(true)

	c.mu.Lock()
	listeners := slices.Clone(c.listeners)
	c.mu.Unlock()

	t := c.Time()
	for _, l := range listeners {
		l.TimeChanged(t)
	}
	return true
}

// Time returns the current time in seconds.
func (c *Clock) Time() float64 {
	return float64(c.ms.Load()) / 1000.0
}

// Millis returns the current time in milliseconds.
func (c *Clock) Millis() int64 {
	return c.ms.Load()
}

// Started reports whether the clock has ticked at least once.
func (c *Clock) Started() bool {
	return c.started.Load()
}

// AddTimeListener registers l. Registering the same listener twice is a no-op.
func (c *Clock) AddTimeListener(l TimeListener) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if slices.Contains(c.listeners, l) {
		return
	}
	c.listeners = append(c.listeners, l)
}

// RemoveTimeListener unregisters l. Absent listeners are ignored.
func (c *Clock) RemoveTimeListener(l TimeListener) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.listeners = slices.DeleteFunc(c.listeners, func(x TimeListener) bool { return x == l })
}

// NumListeners returns the number of registered listeners.
func (c *Clock) NumListeners() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.listeners)
}

// Clear detaches all listeners and resets the clock to its unstarted state.
// Called on scene unload.
func (c *Clock) Clear() {
	c.mu.Lock()
	c.listeners = nil
	c.mu.Unlock()

	c.ms.Store(0)
	c.started.Store(false)
}
