// Package sensor bridges time-driven, input-driven and script behaviors
// into the node field model.
//
// A node whose Behavior implements one of the capability interfaces below
// is registered with the Manager when it is loaded. The engine calls
// ProcessUserInput before the first drain of a frame and AllEventsComplete
// after each drain, so sensors that depend on the settled scene state
// (proximity, visibility, script eventsProcessed) always see this frame's
// values, never last frame's.
package sensor

import (
	"log/slog"
	"slices"

	"github.com/roach88/x3drouter/internal/clock"
	"github.com/roach88/x3drouter/internal/ir"
	"github.com/roach88/x3drouter/internal/node"
)

// PointerEvent is one pointing-device sample aimed at a sensor node.
type PointerEvent struct {
	// Target is the sensor node the pointer is over or was over.
	Target ir.NodeID
	// Over reports whether the pointer is over the sensor's geometry.
	Over bool
	// Down reports whether the primary button is pressed.
	Down bool
	// Point is the hit point in the sensor's local coordinates.
	Point ir.SFVec3f
}

// Frame is the user input snapshot for one frame.
type Frame struct {
	Time float64

	// Viewer is the viewer position, valid when HasViewer is set.
	Viewer    ir.SFVec3f
	HasViewer bool

	Pointer []PointerEvent
}

// PointerFor returns the pointer events aimed at id, in arrival order.
func (f *Frame) PointerFor(id ir.NodeID) []PointerEvent {
	var out []PointerEvent
	for _, ev := range f.Pointer {
		if ev.Target == id {
			out = append(out, ev)
		}
	}
	return out
}

// InputSensor consumes user input at the start of a frame.
type InputSensor interface {
	ProcessUserInput(n *node.Node, f *Frame)
}

// SettleSensor runs after the frame's routes have drained. Any events it
// emits are drained in another pass of the same frame.
type SettleSensor interface {
	AllEventsComplete(n *node.Node, f *Frame)
}

// ClockUser is given the scene clock on registration and nil on removal.
type ClockUser interface {
	SetVRMLClock(n *node.Node, c *clock.Clock)
}

// Shutdowner is called when the node is removed or the scene unloads.
type Shutdowner interface {
	Shutdown(n *node.Node)
}

// Manager tracks sensor nodes of one scene. Not safe for concurrent use;
// external input reaches it through Engine.Post.
type Manager struct {
	clock   *clock.Clock
	sensors []*node.Node

	viewer    ir.SFVec3f
	hasViewer bool
	pointer   []PointerEvent
	frame     Frame
}

// NewManager creates a manager bound to the scene clock.
func NewManager(c *clock.Clock) *Manager {
	return &Manager{clock: c}
}

// IsSensor reports whether a node's behavior implements any sensor
// capability.
func IsSensor(n *node.Node) bool {
	switch n.Behavior().(type) {
	case InputSensor, SettleSensor, ClockUser, Shutdowner:
		return true
	}
	return false
}

// AddSensor registers n if its behavior implements any capability.
// Returns false for plain nodes and for nodes already registered.
func (m *Manager) AddSensor(n *node.Node) bool {
	if !IsSensor(n) || slices.Contains(m.sensors, n) {
		return false
	}
	m.sensors = append(m.sensors, n)
	if cu, ok := n.Behavior().(ClockUser); ok {
		cu.SetVRMLClock(n, m.clock)
	}
	slog.Debug("sensor registered", "node", n.Label(), "type", n.TypeName())
	return true
}

// RemoveSensor unregisters n, detaches it from the clock and shuts it down.
func (m *Manager) RemoveSensor(n *node.Node) {
	i := slices.Index(m.sensors, n)
	if i < 0 {
		return
	}
	m.sensors = slices.Delete(m.sensors, i, i+1)
	m.detach(n)
}

func (m *Manager) detach(n *node.Node) {
	if cu, ok := n.Behavior().(ClockUser); ok {
		cu.SetVRMLClock(n, nil)
	}
	if sd, ok := n.Behavior().(Shutdowner); ok {
		sd.Shutdown(n)
	}
}

// Sensors returns the registered nodes in registration order.
func (m *Manager) Sensors() []*node.Node {
	return slices.Clone(m.sensors)
}

// Len returns the number of registered sensors.
func (m *Manager) Len() int {
	return len(m.sensors)
}

// SetViewer records the viewer position for the next frame. The position
// persists until changed.
func (m *Manager) SetViewer(pos ir.SFVec3f) {
	m.viewer = pos
	m.hasViewer = true
}

// InjectPointer queues a pointer event for the next frame.
func (m *Manager) InjectPointer(ev PointerEvent) {
	m.pointer = append(m.pointer, ev)
}

// ProcessUserInput builds this frame's input snapshot and hands it to
// every InputSensor in registration order.
func (m *Manager) ProcessUserInput(time float64) {
	m.frame = Frame{
		Time:      time,
		Viewer:    m.viewer,
		HasViewer: m.hasViewer,
		Pointer:   m.pointer,
	}
	m.pointer = nil

	for _, n := range slices.Clone(m.sensors) {
		if s, ok := n.Behavior().(InputSensor); ok && n.State() == node.Live {
			s.ProcessUserInput(n, &m.frame)
		}
	}
}

// AllEventsComplete runs every SettleSensor against the current frame.
func (m *Manager) AllEventsComplete(time float64) {
	m.frame.Time = time
	for _, n := range slices.Clone(m.sensors) {
		if s, ok := n.Behavior().(SettleSensor); ok && n.State() == node.Live {
			s.AllEventsComplete(n, &m.frame)
		}
	}
}

// Clear shuts down and unregisters every sensor and drops pending input.
func (m *Manager) Clear() {
	sensors := m.sensors
	m.sensors = nil
	for _, n := range sensors {
		m.detach(n)
	}
	m.pointer = nil
	m.hasViewer = false
	m.frame = Frame{}
}
