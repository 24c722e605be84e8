// Package engine implements the per-frame event propagation loop.
//
// The engine owns one scene. Each call to Evaluate advances the scene
// clock and propagates every field change along the scene's routes until
// nothing is left to deliver, then publishes an immutable FrameState for
// renderers.
//
// ARCHITECTURE:
//
// Single-Writer Frame Loop:
// Nodes, routes and sensors are touched only by the engine goroutine.
// Other goroutines submit inputs with Post or Apply and read results with
// Snapshot and FrameDone. This ensures:
// - Deterministic delivery order
// - Reproducible traces on replay
// - No locking on the hot path
//
// Frame Flow:
// 1. Clock tick; TimeSensors and other clock listeners emit
// 2. External inputs queued since the last frame are applied
// 3. Sensors read user input (pointer, viewer)
// 4. Drain: FIFO over (node, field) changes, each routed with SendRoute
// 5. Settle: sensors run AllEventsComplete, new events are drained
// 6. Publish FrameState, then clear changed flags
//
// CRITICAL PATTERNS:
//
// Loop Breaking
// ROUTE graphs may be cyclic. Value-equality suppression stops cycles
// whose values converge. A per-frame delivery breaker bounds cycles that
// oscillate; when it trips the queue is flushed, a RouteCycleOverflowError
// is logged and reported, and the frame still completes.
// LoopPolicyOncePerFrame applies the stricter rule that each source
// propagates at most once per frame.
//
// Delivery Isolation
// A failed delivery (bad value, role violation) is logged and skipped by
// SendRoute. Script failures are reported as SCRIPT_FAILED runtime
// errors. Nothing aborts a frame.
package engine
