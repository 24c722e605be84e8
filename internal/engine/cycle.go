package engine

import "github.com/roach88/x3drouter/internal/route"

// LoopPolicy selects how route cycles are broken within a frame.
type LoopPolicy int

const (
	// LoopPolicyEquality relies on value-equality suppression: a field
	// that receives the value it already holds does not propagate. The
	// delivery breaker bounds oscillating cycles.
	LoopPolicyEquality LoopPolicy = iota

	// LoopPolicyOncePerFrame is the strict VRML97 rule: each (node, field)
	// source propagates along its routes at most once per frame. Later
	// changes of the same source in that frame are stored but not routed.
	LoopPolicyOncePerFrame
)

func (p LoopPolicy) String() string {
	switch p {
	case LoopPolicyEquality:
		return "equality"
	case LoopPolicyOncePerFrame:
		return "once_per_frame"
	default:
		return "unknown"
	}
}

// ParseLoopPolicy parses the names produced by String.
func ParseLoopPolicy(s string) (LoopPolicy, bool) {
	switch s {
	case "", "equality":
		return LoopPolicyEquality, true
	case "once_per_frame":
		return LoopPolicyOncePerFrame, true
	default:
		return LoopPolicyEquality, false
	}
}

// CycleDetector tracks which route sources have fired in the current
// frame.
//
// Cycles occur when a chain of routes leads back to a field that already
// propagated this frame:
//
//	A.value_changed → B.set_value → B.value_changed → A.set_value
//	→ A.value_changed would fire again ← CYCLE
//
// Under LoopPolicyOncePerFrame the engine asks WouldCycle before routing
// a source and Records it afterwards. History lives for one frame only;
// the engine calls Reset at frame start.
//
// Not safe for concurrent use; owned by the engine goroutine.
type CycleDetector struct {
	fired map[route.Endpoint]bool
}

// NewCycleDetector creates an empty detector.
func NewCycleDetector() *CycleDetector {
	return &CycleDetector{fired: make(map[route.Endpoint]bool)}
}

// WouldCycle reports whether the source already fired this frame.
func (c *CycleDetector) WouldCycle(src route.Endpoint) bool {
	return c.fired[src]
}

// Record marks the source as fired this frame.
func (c *CycleDetector) Record(src route.Endpoint) {
	c.fired[src] = true
}

// Reset forgets all history.
func (c *CycleDetector) Reset() {
	clear(c.fired)
}

// Size returns the number of sources that fired this frame.
func (c *CycleDetector) Size() int {
	return len(c.fired)
}
