package engine

import (
	"errors"
	"fmt"
)

// DefaultMaxDeliveries is the default per-frame delivery limit.
const DefaultMaxDeliveries = 10000

// DeliveryBreaker counts route deliveries within one frame and trips when
// the limit is reached.
//
// Value-equality suppression lets converging route cycles settle on their
// own; the breaker guarantees termination for cycles whose values never
// stabilize (A sets B to x+1, B sets A to x+1, ...).
//
// The engine resets it at frame start.
type DeliveryBreaker struct {
	limit   int
	current int
}

// NewDeliveryBreaker creates a breaker with the given limit. A
// non-positive limit uses DefaultMaxDeliveries.
func NewDeliveryBreaker(limit int) *DeliveryBreaker {
	if limit <= 0 {
		limit = DefaultMaxDeliveries
	}
	return &DeliveryBreaker{limit: limit}
}

// Allow counts one delivery. It returns false once the limit has been
// reached; the delivery must then not be made.
func (b *DeliveryBreaker) Allow() bool {
	if b.current >= b.limit {
		return false
	}
	b.current++
	return true
}

// Reset resets the counter to 0.
func (b *DeliveryBreaker) Reset() {
	b.current = 0
}

// Current returns the number of deliveries counted this frame.
func (b *DeliveryBreaker) Current() int {
	return b.current
}

// Limit returns the per-frame delivery limit.
func (b *DeliveryBreaker) Limit() int {
	return b.limit
}

// RouteCycleOverflowError is reported when a frame hits the delivery
// limit. The frame still completes: the remaining queue is flushed and
// node state is left as the last delivery made it.
type RouteCycleOverflowError struct {
	Frame      uint64 // Frame in which the breaker tripped
	Deliveries int    // Deliveries made before tripping
	Limit      int    // Configured limit
	Dropped    int    // Queued changes discarded by the flush
	LastSource string // Source endpoint being routed when it tripped
}

// Error implements the error interface.
func (e *RouteCycleOverflowError) Error() string {
	return fmt.Sprintf("frame %d exceeded max deliveries: %d >= %d limit (last source %s, %d changes dropped)",
		e.Frame, e.Deliveries, e.Limit, e.LastSource, e.Dropped)
}

// IsRouteCycleOverflowError returns true if the error is a
// RouteCycleOverflowError. Uses errors.As to handle wrapped errors.
func IsRouteCycleOverflowError(err error) bool {
	var oe *RouteCycleOverflowError
	return errors.As(err, &oe)
}
