package engine

import (
	"sync"

	"github.com/roach88/x3drouter/internal/node"
	"github.com/roach88/x3drouter/internal/scene"
)

// change is one pending (node, field) delivery source.
type change struct {
	node  *node.Node
	index int
}

// changeQueue is the per-frame FIFO of fields that took a new value and
// still have to be propagated along their routes.
//
// The queue is unbounded so that cascading routes can enqueue arbitrarily
// many changes within a frame; the delivery breaker bounds the work.
//
// Only the engine goroutine touches it.
type changeQueue struct {
	items []change
	head  int
}

func newChangeQueue() *changeQueue {
	return &changeQueue{items: make([]change, 0, 64)}
}

func (q *changeQueue) push(n *node.Node, index int) {
	q.items = append(q.items, change{node: n, index: index})
}

func (q *changeQueue) pop() (change, bool) {
	if q.head >= len(q.items) {
		return change{}, false
	}
	c := q.items[q.head]
	// Drop the node pointer so a drained slot does not keep it alive.
	q.items[q.head] = change{}
	q.head++
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
	}
	return c, true
}

func (q *changeQueue) len() int {
	return len(q.items) - q.head
}

// flush discards every pending change and returns how many were dropped.
func (q *changeQueue) flush() int {
	dropped := q.len()
	clear(q.items)
	q.items = q.items[:0]
	q.head = 0
	return dropped
}

// Input is an external mutation applied at the start of the next frame on
// the engine goroutine.
type Input func(s *scene.Scene) error

// queuedInput is either a closure posted with Post or a recorded
// ExternalInput posted with Apply.
type queuedInput struct {
	fn  Input
	ext ExternalInput
}

// inputQueue is a thread-safe FIFO of external inputs.
//
// Producers (UI threads, network handlers, tests) call Enqueue from any
// goroutine; the engine drains it once per frame. The signal channel lets
// a driver wait for input without polling.
type inputQueue struct {
	mu     sync.Mutex
	inputs []queuedInput
	closed bool
	signal chan struct{} // buffered, size 1
}

func newInputQueue() *inputQueue {
	return &inputQueue{
		inputs: make([]queuedInput, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds an input to the back of the queue.
// Returns false if the queue is closed.
func (q *inputQueue) Enqueue(in queuedInput) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.inputs = append(q.inputs, in)

	// Non-blocking; the buffer of 1 coalesces signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TakeAll removes and returns every queued input in FIFO order. Inputs
// posted while the returned batch runs are left for the next frame.
func (q *inputQueue) TakeAll() []queuedInput {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.inputs) == 0 {
		return nil
	}
	batch := q.inputs
	q.inputs = make([]queuedInput, 0, cap(batch))
	return batch
}

// Wait returns a channel that signals when inputs may be available.
func (q *inputQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *inputQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.inputs)
}

// Discard drops every queued input and returns how many were dropped.
func (q *inputQueue) Discard() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.inputs)
	q.inputs = q.inputs[:0]
	return n
}

// Close rejects further inputs and wakes any waiter.
func (q *inputQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}
