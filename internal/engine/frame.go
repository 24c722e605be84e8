package engine

import (
	"fmt"

	"github.com/roach88/x3drouter/internal/ir"
	"github.com/roach88/x3drouter/internal/sensor"
)

// NodeState is the committed state of one node at the end of a frame.
// It is immutable once published.
type NodeState struct {
	ID     ir.NodeID
	DEF    string
	Type   string
	Names  []string   // field names by index
	Values []ir.Value // deep copies, by field index
	// Changed lists the field indices that changed in this frame, in
	// ascending order.
	Changed []int
}

// Value returns the committed value of the named field.
func (ns *NodeState) Value(name string) (ir.Value, bool) {
	for i, n := range ns.Names {
		if n == name {
			return ns.Values[i], true
		}
	}
	return nil, false
}

// HasChanged reports whether the named field changed in this frame.
func (ns *NodeState) HasChanged(name string) bool {
	for _, idx := range ns.Changed {
		if ns.Names[idx] == name {
			return true
		}
	}
	return false
}

// FrameStats summarizes one frame's propagation work.
type FrameStats struct {
	Inputs     int  // external inputs applied
	Deliveries int  // route deliveries made
	Accepted   int  // deliveries that changed the destination
	Suppressed int  // sources skipped by LoopPolicyOncePerFrame
	Passes     int  // drain passes, including settle passes
	Overflow   bool // the delivery breaker tripped
	Dropped    int  // changes flushed by the breaker
}

// FrameState is the immutable snapshot published after a frame has
// stabilized. Renderers read it instead of live nodes.
type FrameState struct {
	Frame  uint64
	Time   float64
	Millis int64

	// Nodes holds every node that is not removed. NodeStates of nodes that
	// did not change are shared with the previous frame's snapshot.
	Nodes map[ir.NodeID]*NodeState
	// Order lists node IDs in creation order.
	Order []ir.NodeID

	Stats FrameStats

	// Digest hashes the frame's ordered deliveries and the values of its
	// changed fields when tracing is on.
	Digest string
}

// Lookup returns the state of the node with the given DEF name.
func (fs *FrameState) Lookup(def string) (*NodeState, bool) {
	for _, id := range fs.Order {
		if ns := fs.Nodes[id]; ns.DEF == def {
			return ns, true
		}
	}
	return nil, false
}

// Delivery is one route delivery as seen by a Tracer.
type Delivery struct {
	Seq       int // order within the frame, from 1
	Src       string
	SrcField  string
	Dest      string
	DestField string
	Value     ir.Value
	// Accepted reports whether the destination took a new value.
	Accepted bool
}

func (d Delivery) plain() map[string]any {
	return map[string]any{
		"seq":        d.Seq,
		"src":        d.Src,
		"src_field":  d.SrcField,
		"dest":       d.Dest,
		"dest_field": d.DestField,
		"value":      ir.ToPlain(d.Value),
		"accepted":   d.Accepted,
	}
}

// Tracer observes frame evaluation. Calls happen on the engine goroutine,
// inside Evaluate.
type Tracer interface {
	FrameStarted(frame uint64, millis int64)
	InputApplied(frame uint64, in ExternalInput, err error)
	Delivered(frame uint64, d Delivery)
	FrameFinished(fs *FrameState)
}

// Input kinds.
const (
	InputSetField = "set_field"
	InputViewer   = "viewer"
	InputPointer  = "pointer"
)

// ExternalInput is a serializable external event: a field write, a
// viewer move or a pointer sample. Recorded runs store these so that a
// replay can re-apply them at the same frames.
type ExternalInput struct {
	Kind  string `json:"kind" yaml:"kind"`
	Node  string `json:"node,omitempty" yaml:"node,omitempty"`
	Field string `json:"field,omitempty" yaml:"field,omitempty"`
	// Value is the plain form of the value (see ir.ValueFrom). For viewer
	// inputs it is the position; for pointer inputs the hit point.
	Value any  `json:"value,omitempty" yaml:"value,omitempty"`
	Over  bool `json:"over,omitempty" yaml:"over,omitempty"`
	Down  bool `json:"down,omitempty" yaml:"down,omitempty"`
}

// String formats the input for logs and traces.
func (in ExternalInput) String() string {
	switch in.Kind {
	case InputSetField:
		return fmt.Sprintf("%s.%s = %v", in.Node, in.Field, in.Value)
	case InputViewer:
		return fmt.Sprintf("viewer %v", in.Value)
	case InputPointer:
		return fmt.Sprintf("pointer %s over=%t down=%t %v", in.Node, in.Over, in.Down, in.Value)
	default:
		return fmt.Sprintf("%s %v", in.Kind, in.Value)
	}
}

// apply performs the input against the engine's scene.
func (in ExternalInput) apply(e *Engine) error {
	s := e.scene
	switch in.Kind {
	case InputSetField:
		n, ok := s.Lookup(in.Node)
		if !ok {
			return fmt.Errorf("set %s.%s: unknown DEF name %q", in.Node, in.Field, in.Node)
		}
		idx, err := n.Schema().FieldIndex(in.Field)
		if err != nil {
			return err
		}
		decl, _ := n.Schema().Declaration(idx)
		v, err := ir.ValueFrom(decl.Type, in.Value, s.Resolve)
		if err != nil {
			return fmt.Errorf("set %s.%s: %w", in.Node, in.Field, err)
		}
		return n.SetValue(idx, v)

	case InputViewer:
		v, err := ir.ValueFrom(ir.SFVec3fType, in.Value, nil)
		if err != nil {
			return fmt.Errorf("viewer: %w", err)
		}
		s.Sensors().SetViewer(v.(ir.SFVec3f))
		return nil

	case InputPointer:
		n, ok := s.Lookup(in.Node)
		if !ok {
			return fmt.Errorf("pointer: unknown DEF name %q", in.Node)
		}
		var point ir.SFVec3f
		if in.Value != nil {
			v, err := ir.ValueFrom(ir.SFVec3fType, in.Value, nil)
			if err != nil {
				return fmt.Errorf("pointer: %w", err)
			}
			point = v.(ir.SFVec3f)
		}
		s.Sensors().InjectPointer(sensor.PointerEvent{
			Target: n.ID(),
			Over:   in.Over,
			Down:   in.Down,
			Point:  point,
		})
		return nil

	default:
		return fmt.Errorf("unknown input kind %q", in.Kind)
	}
}
