package testutil

import "sync"

// FrameClock produces frame times in milliseconds for driving an engine
// deterministically in tests.
//
// Unlike a wall clock, FrameClock advances only when asked and can be reset
// for test reuse, so the same scenario run twice sees identical frame times.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type FrameClock struct {
	mu    sync.Mutex
	start int64
	step  int64
	ms    int64
	ticks int
}

// NewFrameClock creates a clock whose first Next returns start and which
// advances by step afterwards. A non-positive step is treated as 1.
func NewFrameClock(start, step int64) *FrameClock {
	if step <= 0 {
		step = 1
	}
	return &FrameClock{start: start, step: step, ms: start}
}

// Next returns the next frame time.
//
// Monotonic: every call returns a strictly greater value than the last.
func (c *FrameClock) Next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ticks > 0 {
		c.ms += c.step
	}
	c.ticks++
	return c.ms
}

// Current returns the last time handed out, or start before the first Next.
func (c *FrameClock) Current() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ms
}

// Ticks returns how many times Next has been called.
func (c *FrameClock) Ticks() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ticks
}

// Reset returns the clock to its start time.
func (c *FrameClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ms = c.start
	c.ticks = 0
}

// Evaluator is anything that evaluates a frame at a time in milliseconds.
// *engine.Engine satisfies it.
type Evaluator interface {
	Evaluate(ms int64) bool
}

// Drive evaluates n frames at the clock's next times and returns how many
// of them ran.
func Drive(ev Evaluator, c *FrameClock, n int) int {
	ran := 0
	for i := 0; i < n; i++ {
		if ev.Evaluate(c.Next()) {
			ran++
		}
	}
	return ran
}
