package engine

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/x3drouter/internal/field"
	"github.com/roach88/x3drouter/internal/ir"
	"github.com/roach88/x3drouter/internal/node"
)

var probeSchema = field.NewBuilder("Probe").
	Field(ir.AccessEventOut, ir.SFInt32Type, "out", nil).
	MustBuild()

func TestChangeQueue_FIFO(t *testing.T) {
	q := newChangeQueue()
	a := node.New(1, "A", probeSchema, nil)
	b := node.New(2, "B", probeSchema, nil)

	q.push(a, 0)
	q.push(b, 0)
	q.push(a, 0)
	assert.Equal(t, 3, q.len())

	var got []string
	for {
		c, ok := q.pop()
		if !ok {
			break
		}
		got = append(got, c.node.DEF())
	}
	assert.Equal(t, []string{"A", "B", "A"}, got)
	assert.Zero(t, q.len())
}

func TestChangeQueue_PushWhileDraining(t *testing.T) {
	q := newChangeQueue()
	a := node.New(1, "A", probeSchema, nil)

	q.push(a, 0)
	c, ok := q.pop()
	require.True(t, ok)
	assert.Same(t, a, c.node)

	q.push(a, 0)
	q.push(a, 0)
	_, ok = q.pop()
	require.True(t, ok)
	assert.Equal(t, 1, q.len())
}

func TestChangeQueue_Flush(t *testing.T) {
	q := newChangeQueue()
	a := node.New(1, "A", probeSchema, nil)
	for range 5 {
		q.push(a, 0)
	}
	q.pop()

	assert.Equal(t, 4, q.flush())
	assert.Zero(t, q.len())
	_, ok := q.pop()
	assert.False(t, ok)
}

func TestInputQueue_TakeAllFIFO(t *testing.T) {
	q := newInputQueue()
	for _, name := range []string{"A", "B", "C"} {
		require.True(t, q.Enqueue(queuedInput{ext: ExternalInput{Kind: InputSetField, Node: name}}))
	}
	assert.Equal(t, 3, q.Len())

	batch := q.TakeAll()
	require.Len(t, batch, 3)
	assert.Equal(t, "A", batch[0].ext.Node)
	assert.Equal(t, "C", batch[2].ext.Node)
	assert.Zero(t, q.Len())
	assert.Nil(t, q.TakeAll())
}

func TestInputQueue_SignalCoalesces(t *testing.T) {
	q := newInputQueue()
	q.Enqueue(queuedInput{})
	q.Enqueue(queuedInput{})

	select {
	case <-q.Wait():
	default:
		t.Fatal("expected a signal")
	}
	select {
	case <-q.Wait():
		t.Fatal("signals should coalesce")
	default:
	}
}

func TestInputQueue_Close(t *testing.T) {
	q := newInputQueue()
	q.Close()
	q.Close()

	assert.False(t, q.Enqueue(queuedInput{}))
	_, ok := <-q.Wait()
	assert.False(t, ok, "closed signal channel")
}

func TestInputQueue_Discard(t *testing.T) {
	q := newInputQueue()
	q.Enqueue(queuedInput{})
	q.Enqueue(queuedInput{})
	assert.Equal(t, 2, q.Discard())
	assert.Zero(t, q.Len())
}

func TestInputQueue_ConcurrentEnqueue(t *testing.T) {
	q := newInputQueue()
	const goroutines, each = 8, 100

	var wg sync.WaitGroup
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range each {
				q.Enqueue(queuedInput{})
			}
		}()
	}
	wg.Wait()

	assert.Len(t, q.TakeAll(), goroutines*each)
}
