package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/x3drouter/internal/clock"
	"github.com/roach88/x3drouter/internal/ir"
	"github.com/roach88/x3drouter/internal/node"
	"github.com/roach88/x3drouter/internal/nodes"
	"github.com/roach88/x3drouter/internal/route"
	"github.com/roach88/x3drouter/internal/scene"
	"github.com/roach88/x3drouter/internal/script"
)

// DefaultFrameInterval is the frame period Run uses when none is given.
const DefaultFrameInterval = 16 * time.Millisecond

// DefaultSettlePasses bounds how often sensors may inject events after
// the primary drain within one frame.
const DefaultSettlePasses = 8

// NodeObserver is called after a frame is published for every node of the
// observed type that changed in that frame. It runs on the engine
// goroutine and must not write fields.
type NodeObserver func(n *node.Node, changed []int)

// Engine is the single-writer, per-frame event propagation loop of one
// scene.
//
// Thread-safety model:
//   - Evaluate, Load, Unload and Scene access: one goroutine only (the
//     engine goroutine, which Run becomes when used)
//   - Post, Apply, Snapshot, FrameDone, Stop: safe from any goroutine
//
// INVARIANTS:
//   - Routes from one source are delivered in insertion order
//   - The change queue is FIFO and empty between frames' drain loops
//   - No error escapes Evaluate; failures are logged and reported
type Engine struct {
	clock   *clock.Clock
	scene   *scene.Scene
	changes *changeQueue
	inputs  *inputQueue
	cycles  *CycleDetector
	breaker *DeliveryBreaker

	policy        LoopPolicy
	settlePasses  int
	tracer        Tracer
	digests       bool
	onError       func(error)
	scriptTimeout time.Duration
	sceneOpts     []scene.Option

	observers map[string][]NodeObserver

	// Per-frame state.
	frame      uint64
	stats      FrameStats
	deliveries []Delivery

	published atomic.Pointer[FrameState]
	doneMu    sync.Mutex
	done      chan struct{}
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithMaxDeliveries sets the per-frame delivery limit.
//
// Default: 10000 (DefaultMaxDeliveries)
// Use a small value in tests that exercise the breaker.
func WithMaxDeliveries(n int) EngineOption {
	return func(e *Engine) {
		e.breaker = NewDeliveryBreaker(n)
	}
}

// WithLoopPolicy selects the cycle-breaking policy.
func WithLoopPolicy(p LoopPolicy) EngineOption {
	return func(e *Engine) {
		e.policy = p
	}
}

// WithTracer installs a frame observer and turns on frame digests.
func WithTracer(t Tracer) EngineOption {
	return func(e *Engine) {
		e.tracer = t
		e.digests = true
	}
}

// WithDigests computes FrameState.Digest without a tracer.
func WithDigests() EngineOption {
	return func(e *Engine) {
		e.digests = true
	}
}

// WithErrorHandler receives every *RuntimeError reported during frames.
func WithErrorHandler(h func(error)) EngineOption {
	return func(e *Engine) {
		e.onError = h
	}
}

// WithScriptTimeout bounds each Script node call.
func WithScriptTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		e.scriptTimeout = d
	}
}

// WithCatalog replaces the built-in node catalog.
func WithCatalog(c *nodes.Catalog) EngineOption {
	return func(e *Engine) {
		e.sceneOpts = append(e.sceneOpts, scene.WithCatalog(c))
	}
}

// WithClock starts the engine from an existing clock. Used by replay to
// resume at a recorded time.
func WithClock(c *clock.Clock) EngineOption {
	return func(e *Engine) {
		e.clock = c
	}
}

// New creates an engine with an empty scene.
func New(opts ...EngineOption) *Engine {
	e := &Engine{
		clock:         clock.New(),
		changes:       newChangeQueue(),
		inputs:        newInputQueue(),
		cycles:        NewCycleDetector(),
		breaker:       NewDeliveryBreaker(DefaultMaxDeliveries),
		policy:        LoopPolicyEquality,
		settlePasses:  DefaultSettlePasses,
		scriptTimeout: script.DefaultTimeout,
		observers:     make(map[string][]NodeObserver),
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}

	sceneOpts := append(e.sceneOpts, scene.WithScriptOptions(
		script.WithTimeout(e.scriptTimeout),
		script.WithErrorHandler(e.scriptFailed),
	))
	e.scene = scene.New(e.clock, e, sceneOpts...)
	e.published.Store(&FrameState{Nodes: map[ir.NodeID]*NodeState{}})
	return e
}

// Scene returns the engine's scene. Engine goroutine only.
func (e *Engine) Scene() *scene.Scene { return e.scene }

// Clock returns the scene clock.
func (e *Engine) Clock() *clock.Clock { return e.clock }

// Policy returns the loop policy.
func (e *Engine) Policy() LoopPolicy { return e.policy }

// MaxDeliveries returns the per-frame delivery limit.
func (e *Engine) MaxDeliveries() int { return e.breaker.Limit() }

// FieldChanged implements node.ChangeSink by queueing the field for
// propagation.
func (e *Engine) FieldChanged(n *node.Node, index int) {
	e.changes.push(n, index)
}

// Now implements node.ChangeSink.
func (e *Engine) Now() float64 {
	return e.clock.Time()
}

// Load builds a compiled scene into the engine and publishes its initial
// state. Errors from individual nodes and routes are returned joined; the
// rest of the scene is still loaded.
func (e *Engine) Load(spec *ir.SceneSpec) error {
	err := e.scene.Load(spec)
	e.published.Store(e.snapshot(e.published.Load()))
	slog.Info("scene loaded",
		"scene", spec.Name,
		"nodes", e.scene.Len(),
		"routes", e.scene.Routes().Len(),
		"sensors", e.scene.Sensors().Len())
	return err
}

// AddNodeObserver registers fn for nodes of typeName.
func (e *Engine) AddNodeObserver(typeName string, fn NodeObserver) {
	e.observers[typeName] = append(e.observers[typeName], fn)
}

// Post submits an input to run at the start of the next frame.
// Thread-safe: may be called from any goroutine.
//
// Returns false if the engine has been stopped.
func (e *Engine) Post(in Input) bool {
	return e.inputs.Enqueue(queuedInput{fn: in})
}

// Apply submits a serializable input. Unlike Post, applied inputs are
// visible to the Tracer and can be replayed.
// Thread-safe: may be called from any goroutine.
func (e *Engine) Apply(in ExternalInput) bool {
	return e.inputs.Enqueue(queuedInput{ext: in})
}

// PendingInputs returns the number of queued external inputs.
func (e *Engine) PendingInputs() int {
	return e.inputs.Len()
}

// Snapshot returns the last published frame. Safe from any goroutine; the
// result is immutable.
func (e *Engine) Snapshot() *FrameState {
	return e.published.Load()
}

// FrameDone returns a channel that is closed when the next frame is
// published. Safe from any goroutine.
func (e *Engine) FrameDone() <-chan struct{} {
	e.doneMu.Lock()
	defer e.doneMu.Unlock()
	return e.done
}

// Evaluate runs one frame at clock time ms (milliseconds).
//
// Frame steps:
//  1. advance the clock; time-dependent nodes emit
//  2. apply queued external inputs
//  3. sensors process user input
//  4. drain the change queue along routes, FIFO
//  5. settle: sensors run AllEventsComplete, new events are drained
//  6. publish the FrameState, notify projections, observers, tracer
//  7. clear changed flags
//
// A non-increasing ms skips the frame and returns false; queued inputs
// stay queued.
func (e *Engine) Evaluate(ms int64) bool {
	if e.clock.Started() && ms <= e.clock.Millis() {
		slog.Debug("frame skipped: time did not advance",
			"ms", ms,
			"clock_ms", e.clock.Millis())
		return false
	}

	e.frame++
	e.stats = FrameStats{}
	e.deliveries = e.deliveries[:0]
	e.breaker.Reset()
	e.cycles.Reset()
	if e.tracer != nil {
		e.tracer.FrameStarted(e.frame, ms)
	}

	e.clock.Tick(ms)
	now := e.clock.Time()

	e.applyInputs()
	e.scene.Sensors().ProcessUserInput(now)

	e.drain(now)
	e.settle(now)

	fs := e.publish()

	slog.Debug("frame evaluated",
		"frame", fs.Frame,
		"time", fs.Time,
		"inputs", fs.Stats.Inputs,
		"deliveries", fs.Stats.Deliveries,
		"accepted", fs.Stats.Accepted,
		"passes", fs.Stats.Passes,
		"overflow", fs.Stats.Overflow)
	return true
}

// applyInputs runs the inputs queued since the last frame in FIFO order.
func (e *Engine) applyInputs() {
	for _, q := range e.inputs.TakeAll() {
		e.stats.Inputs++

		var err error
		if q.fn != nil {
			err = q.fn(e.scene)
		} else {
			err = q.ext.apply(e)
		}
		if err != nil {
			err = NewFieldError(e.frame, q.ext.Node, err)
			slog.Warn("external input failed",
				"frame", e.frame,
				"input", q.ext.String(),
				"error", err)
			e.report(err)
		}
		if q.fn == nil && e.tracer != nil {
			e.tracer.InputApplied(e.frame, q.ext, err)
		}
	}
}

// drain propagates queued changes along their routes until the queue is
// empty or the breaker trips. Destinations that accept a value and can
// emit append to the same queue, so propagation is transitive within the
// frame.
func (e *Engine) drain(now float64) {
	e.stats.Passes++
	routes := e.scene.Routes()

	for {
		c, ok := e.changes.pop()
		if !ok {
			return
		}
		if c.node.State() != node.Live {
			continue
		}

		src := route.Endpoint{Node: c.node.ID(), Index: c.index}
		if e.policy == LoopPolicyOncePerFrame {
			if e.cycles.WouldCycle(src) {
				e.stats.Suppressed++
				slog.Debug("route source already fired this frame",
					"frame", e.frame,
					"src", c.node.Label(),
					"field", c.node.FieldName(c.index))
				continue
			}
			e.cycles.Record(src)
		}

		for _, r := range routes.RoutesFrom(src.Node, src.Index) {
			if !e.breaker.Allow() {
				e.trip(c)
				return
			}
			dest, ok := e.scene.Node(r.Dest)
			if !ok {
				continue
			}

			accepted, err := c.node.TrySendRoute(now, r.SrcIndex, dest, r.DestIndex)
			if err != nil {
				e.report(NewFieldError(e.frame, dest.Label(), err))
			}
			e.stats.Deliveries++
			if accepted {
				e.stats.Accepted++
			}
			if e.digests {
				e.trace(c.node, r, dest, accepted)
			}
		}
	}
}

func (e *Engine) trace(src *node.Node, r route.Route, dest *node.Node, accepted bool) {
	v, _ := src.FieldValue(r.SrcIndex)
	d := Delivery{
		Seq:       len(e.deliveries) + 1,
		Src:       src.Label(),
		SrcField:  src.FieldName(r.SrcIndex),
		Dest:      dest.Label(),
		DestField: dest.FieldName(r.DestIndex),
		Value:     v,
		Accepted:  accepted,
	}
	e.deliveries = append(e.deliveries, d)
	if e.tracer != nil {
		e.tracer.Delivered(e.frame, d)
	}
}

// trip stops the frame's propagation: the rest of the queue is flushed
// and the overflow is logged and reported. The change being routed when
// the breaker tripped counts as dropped.
func (e *Engine) trip(at change) {
	oe := &RouteCycleOverflowError{
		Frame:      e.frame,
		Deliveries: e.breaker.Current(),
		Limit:      e.breaker.Limit(),
		Dropped:    e.changes.flush() + 1,
		LastSource: fmt.Sprintf("%s.%s", at.node.Label(), at.node.FieldName(at.index)),
	}
	e.stats.Overflow = true
	e.stats.Dropped = oe.Dropped
	slog.Warn("route cycle overflow",
		"frame", oe.Frame,
		"deliveries", oe.Deliveries,
		"limit", oe.Limit,
		"dropped", oe.Dropped,
		"last_source", oe.LastSource)
	e.report(NewOverflowError(oe))
}

// settle gives sensors that depend on the frame's final state a chance to
// react, draining what they emit, until they stop emitting.
func (e *Engine) settle(now float64) {
	sensors := e.scene.Sensors()
	for pass := 0; pass < e.settlePasses; pass++ {
		if e.stats.Overflow {
			return
		}
		sensors.AllEventsComplete(now)
		if e.changes.len() == 0 {
			return
		}
		e.drain(now)
	}
	slog.Debug("settle pass limit reached",
		"frame", e.frame,
		"passes", e.settlePasses)
}

// publish stores the frame snapshot, notifies projections, observers and
// the tracer, clears changed flags and wakes FrameDone waiters.
func (e *Engine) publish() *FrameState {
	fs := e.snapshot(e.published.Load())
	fs.Stats = e.stats
	if e.digests {
		fs.Digest = e.digest(fs)
	}
	e.published.Store(fs)

	live := e.scene.Nodes()
	for _, n := range live {
		changed := n.ChangedIndices()
		if len(changed) == 0 {
			continue
		}
		for _, p := range n.Projections() {
			p.FieldsChanged(n, changed)
		}
		for _, obs := range e.observers[n.TypeName()] {
			obs(n, changed)
		}
	}
	if e.tracer != nil {
		e.tracer.FrameFinished(fs)
	}
	for _, n := range live {
		n.ClearChanged()
	}

	e.doneMu.Lock()
	close(e.done)
	e.done = make(chan struct{})
	e.doneMu.Unlock()
	return fs
}

// snapshot copies the committed node state. Nodes that did not change
// since prev share prev's NodeState.
func (e *Engine) snapshot(prev *FrameState) *FrameState {
	fs := &FrameState{
		Frame:  e.frame,
		Time:   e.clock.Time(),
		Millis: e.clock.Millis(),
		Nodes:  make(map[ir.NodeID]*NodeState),
	}
	for _, n := range e.scene.Nodes() {
		changed := n.ChangedIndices()
		ps, had := prev.Nodes[n.ID()]

		var ns *NodeState
		switch {
		case len(changed) > 0 || !had || ps.DEF != n.DEF():
			ns = nodeState(n, changed)
		case len(ps.Changed) == 0:
			ns = ps
		default:
			cp := *ps
			cp.Changed = nil
			ns = &cp
		}
		fs.Nodes[n.ID()] = ns
		fs.Order = append(fs.Order, n.ID())
	}
	return fs
}

func nodeState(n *node.Node, changed []int) *NodeState {
	decls := n.Schema().Declarations()
	names := make([]string, len(decls))
	for i, d := range decls {
		names[i] = d.Name
	}
	return &NodeState{
		ID:      n.ID(),
		DEF:     n.DEF(),
		Type:    n.TypeName(),
		Names:   names,
		Values:  n.Values(),
		Changed: changed,
	}
}

func (e *Engine) digest(fs *FrameState) string {
	ds := make([]any, len(e.deliveries))
	for i, d := range e.deliveries {
		ds[i] = d.plain()
	}
	h, err := ir.FrameDigest(map[string]any{
		"frame":      int64(fs.Frame),
		"millis":     fs.Millis,
		"deliveries": ds,
		"published":  published(fs),
		"overflow":   fs.Stats.Overflow,
	})
	if err != nil {
		slog.Warn("frame digest failed", "frame", fs.Frame, "error", err)
		return ""
	}
	return h
}

// published lists the values of the fields that changed in fs, in node
// creation order then field index order.
func published(fs *FrameState) []any {
	var out []any
	for _, id := range fs.Order {
		ns := fs.Nodes[id]
		for _, idx := range ns.Changed {
			out = append(out, map[string]any{
				"node":  id.String(),
				"field": ns.Names[idx],
				"value": ir.ToPlain(ns.Values[idx]),
			})
		}
	}
	return out
}

func (e *Engine) scriptFailed(se *script.Error) {
	err := NewScriptError(e.frame, se)
	slog.Warn("script failed",
		"frame", e.frame,
		"node", se.Node,
		"func", se.Func,
		"error", se.Err)
	e.report(err)
}

func (e *Engine) report(err error) {
	if e.onError != nil {
		e.onError(err)
	}
}

// Run drives the engine from a wall-clock ticker until ctx is cancelled
// or Stop is called. Clock time continues from the current clock value.
//
// CRITICAL: Run makes the calling goroutine the engine goroutine. Other
// goroutines interact only through Post, Apply, Snapshot and FrameDone.
func (e *Engine) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultFrameInterval
	}
	slog.Info("engine starting", "interval", interval)

	base := e.clock.Millis()
	if e.clock.Started() {
		base++
	}
	start := time.Now()
	e.Evaluate(base)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("engine stopping: context cancelled")
			e.inputs.Close()
			return ctx.Err()

		case _, ok := <-e.inputs.Wait():
			// The signal channel is closed by Stop. Inputs themselves are
			// applied on the next tick.
			if !ok {
				slog.Info("engine stopping: stopped")
				return nil
			}

		case <-ticker.C:
			e.Evaluate(base + time.Since(start).Milliseconds())
		}
	}
}

// Stop makes Run return and rejects further inputs.
func (e *Engine) Stop() {
	e.inputs.Close()
}

// Unload flushes pending changes and inputs, shuts down sensors and
// scripts, removes all routes and clock listeners, and empties the scene.
// An empty frame is published.
func (e *Engine) Unload() {
	dropped := e.changes.flush()
	discarded := e.inputs.Discard()
	e.cycles.Reset()
	e.scene.Unload()
	e.published.Store(&FrameState{
		Frame:  e.frame,
		Time:   e.clock.Time(),
		Millis: e.clock.Millis(),
		Nodes:  map[ir.NodeID]*NodeState{},
	})
	slog.Info("scene unloaded",
		"dropped_changes", dropped,
		"discarded_inputs", discarded)
}
