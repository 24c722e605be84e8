// Package node implements the runtime scene-graph entity: typed field
// storage, lifecycle, and per-frame change tracking.
//
// Nodes never hold pointers to other nodes. SFNode/MFNode fields store
// ir.NodeID handles into the owning scene's arena.
//
// Thread-safety: a Node is owned by its scene's engine goroutine. Renderers
// read published frame snapshots, never live nodes.
package node

import (
	"fmt"
	"log/slog"

	"github.com/roach88/x3drouter/internal/field"
	"github.com/roach88/x3drouter/internal/ir"
)

// Lifecycle is the state of a node.
type Lifecycle int

const (
	Uninitialized Lifecycle = iota
	InSetup
	Live
	Removed
)

func (l Lifecycle) String() string {
	switch l {
	case Uninitialized:
		return "uninitialized"
	case InSetup:
		return "inSetup"
	case Live:
		return "live"
	case Removed:
		return "removed"
	default:
		return fmt.Sprintf("Lifecycle(%d)", int(l))
	}
}

// ChangeSink receives change notifications from live nodes. The engine
// implements it by appending (node, index) to the frame's change queue.
type ChangeSink interface {
	// FieldChanged is called when an emitting field (eventOut or
	// exposedField) takes a new value.
	FieldChanged(n *Node, index int)

	// Now returns the current simulation time in seconds.
	Now() float64
}

// Behavior is the per-type logic of a node. Plain container nodes have none.
type Behavior interface {
	// Setup computes derived state from initial field values. It runs once,
	// before the node goes live; Emit calls made here store without
	// notifying.
	Setup(n *Node)

	// HandleEvent is called after an eventIn or exposedField of a live node
	// receives a new value.
	HandleEvent(n *Node, index int, time float64)
}

// Projection is the capability interface for renderer adapters. Adapters
// rebuild native objects from node state; they never write fields.
type Projection interface {
	SetupFinished(n *Node)
	FieldsChanged(n *Node, indices []int)
}

// Node is a typed bag of fields with a lifecycle and changed flags.
type Node struct {
	id       ir.NodeID
	def      string
	schema   *field.Schema
	values   []ir.Value
	changed  bitset
	state    Lifecycle
	sink     ChangeSink
	behavior Behavior

	projections []Projection
}

// New creates an uninitialized node holding its schema's default values.
// behavior may be nil.
func New(id ir.NodeID, def string, schema *field.Schema, behavior Behavior) *Node {
	decls := schema.Declarations()
	values := make([]ir.Value, len(decls))
	for i, d := range decls {
		values[i] = d.Default.Clone()
	}
	return &Node{
		id:       id,
		def:      def,
		schema:   schema,
		values:   values,
		changed:  newBitset(len(decls)),
		behavior: behavior,
	}
}

// ID returns the node's arena handle.
func (n *Node) ID() ir.NodeID { return n.id }

// DEF returns the node's DEF name, or "" for anonymous nodes.
func (n *Node) DEF() string { return n.def }

// Schema returns the node type's field table.
func (n *Node) Schema() *field.Schema { return n.schema }

// TypeName returns the node type name.
func (n *Node) TypeName() string { return n.schema.TypeName() }

// State returns the lifecycle state.
func (n *Node) State() Lifecycle { return n.state }

// Behavior returns the node's behavior, or nil.
func (n *Node) Behavior() Behavior { return n.behavior }

// Label is a human-readable identifier for logs: the DEF name, or the type
// and handle of an anonymous node.
func (n *Node) Label() string {
	if n.def != "" {
		return n.def
	}
	return n.schema.TypeName() + n.id.String()
}

// FieldName returns the declared name of a field index, or "?" when out of
// range.
func (n *Node) FieldName(index int) string {
	d, err := n.schema.Declaration(index)
	if err != nil {
		return "?"
	}
	return d.Name
}

// BeginSetup attaches the change sink and enters the setup state.
func (n *Node) BeginSetup(sink ChangeSink) error {
	if n.state != Uninitialized {
		return fmt.Errorf("node %s: BeginSetup in state %s", n.Label(), n.state)
	}
	n.sink = sink
	n.state = InSetup
	return nil
}

// SetupFinished runs the behavior's Setup and makes the node live. Only
// changes made after this call propagate.
func (n *Node) SetupFinished() error {
	if n.state != InSetup {
		return fmt.Errorf("node %s: SetupFinished in state %s", n.Label(), n.state)
	}
	if n.behavior != nil {
		n.behavior.Setup(n)
	}
	n.state = Live
	for _, p := range n.projections {
		p.SetupFinished(n)
	}
	return nil
}

// MarkRemoved moves the node to the removed state. Further writes fail.
func (n *Node) MarkRemoved() {
	n.state = Removed
	n.sink = nil
}

// AddProjection registers a renderer adapter.
func (n *Node) AddProjection(p Projection) {
	n.projections = append(n.projections, p)
}

// Projections returns the registered renderer adapters.
func (n *Node) Projections() []Projection {
	return n.projections
}

// FieldValue returns the current value at index. The returned value must be
// treated as read-only.
func (n *Node) FieldValue(index int) (ir.Value, error) {
	if index < 0 || index >= len(n.values) {
		_, err := n.schema.Declaration(index)
		return nil, err
	}
	return n.values[index], nil
}

// FieldValueByName resolves name through the schema and returns the value.
func (n *Node) FieldValueByName(name string) (ir.Value, error) {
	idx, err := n.schema.FieldIndex(name)
	if err != nil {
		return nil, err
	}
	return n.values[idx], nil
}

// SetValue writes a field from outside the node: scene setup, external
// input, or route delivery.
//
// During setup only field and exposedField slots can be written and
// nothing is notified. On a live node, initializeOnly fields and eventOuts
// are rejected; a value equal to the current one is suppressed; otherwise
// the field is marked changed, the engine is notified if the field can
// emit, and the behavior handles the event.
func (n *Node) SetValue(index int, v ir.Value) error {
	now := 0.0
	if n.sink != nil {
		now = n.sink.Now()
	}
	_, err := n.deliver(index, v, now)
	return err
}

// SetValueByName resolves name and calls SetValue.
func (n *Node) SetValueByName(name string, v ir.Value) error {
	idx, err := n.schema.FieldIndex(name)
	if err != nil {
		return err
	}
	return n.SetValue(idx, v)
}

func (n *Node) deliver(index int, v ir.Value, time float64) (bool, error) {
	decl, err := n.schema.Declaration(index)
	if err != nil {
		return false, err
	}

	switch n.state {
	case Removed:
		return false, n.roleError(decl, "node has been removed")
	case Uninitialized, InSetup:
		if !decl.Access.Initializable() {
			return false, n.roleError(decl, fmt.Sprintf("%s cannot be initialized", decl.Access))
		}
		if err := decl.Check(n.TypeName(), v); err != nil {
			return false, err
		}
		n.values[index] = v.Clone()
		return false, nil
	}

	switch decl.Access {
	case ir.AccessField:
		return false, n.roleError(decl, "initializeOnly field cannot change after setup")
	case ir.AccessEventOut:
		return false, n.roleError(decl, "eventOut is written only by its own node")
	}
	if err := decl.Check(n.TypeName(), v); err != nil {
		return false, err
	}
	if n.suppressed(decl, v) {
		return false, nil
	}

	n.values[index] = v.Clone()
	n.changed.set(index)
	if decl.Access.CanEmit() && n.sink != nil {
		n.sink.FieldChanged(n, index)
	}
	if n.behavior != nil {
		n.behavior.HandleEvent(n, index, time)
	}
	return true, nil
}

// Emit writes one of the node's own outputs (eventOut or exposedField).
// Behaviors use it to produce events. During setup the value is stored
// without notification.
func (n *Node) Emit(index int, v ir.Value) error {
	decl, err := n.schema.Declaration(index)
	if err != nil {
		return err
	}
	if !decl.Access.CanEmit() {
		return n.roleError(decl, fmt.Sprintf("%s cannot emit events", decl.Access))
	}
	if err := decl.Check(n.TypeName(), v); err != nil {
		return err
	}

	switch n.state {
	case Removed:
		return n.roleError(decl, "node has been removed")
	case Uninitialized, InSetup:
		n.values[index] = v.Clone()
		return nil
	}

	if n.suppressed(decl, v) {
		return nil
	}
	n.values[index] = v.Clone()
	n.changed.set(index)
	if n.sink != nil {
		n.sink.FieldChanged(n, index)
	}
	return nil
}

// EmitByName resolves name and calls Emit.
func (n *Node) EmitByName(name string, v ir.Value) error {
	idx, err := n.schema.FieldIndex(name)
	if err != nil {
		return err
	}
	return n.Emit(idx, v)
}

// suppressed implements value-equality suppression. Stateful slots
// (exposedField) compare against their stored value. Pure event endpoints
// (eventIn, eventOut) only suppress a repeat of a value they already
// carried in this frame, so pulses such as a trigger firing TRUE on every
// activation still propagate in later frames.
func (n *Node) suppressed(decl field.Declaration, v ir.Value) bool {
	if !n.values[decl.Index].Equal(v) {
		return false
	}
	if decl.Access == ir.AccessExposedField {
		return true
	}
	return n.changed.has(decl.Index)
}

// SendRoute copies this node's value at srcIndex into dest at destIndex.
// Invalid field and invalid value errors from the destination are logged
// and swallowed so one bad route cannot abort a frame. Returns whether the
// destination accepted a new value.
func (n *Node) SendRoute(time float64, srcIndex int, dest *Node, destIndex int) bool {
	accepted, _ := n.TrySendRoute(time, srcIndex, dest, destIndex)
	return accepted
}

// TrySendRoute is SendRoute that also returns the logged delivery error,
// so a caller can report it. The delivery is dropped whenever err is set.
func (n *Node) TrySendRoute(time float64, srcIndex int, dest *Node, destIndex int) (bool, error) {
	v, err := n.FieldValue(srcIndex)
	if err != nil {
		slog.Warn("route source invalid",
			"src", n.Label(),
			"src_index", srcIndex,
			"error", err)
		return false, err
	}

	changed, err := dest.deliver(destIndex, v, time)
	if err != nil {
		if field.IsInvalidField(err) || field.IsInvalidFieldValue(err) {
			slog.Warn("route delivery dropped",
				"src", n.Label(),
				"src_field", n.FieldName(srcIndex),
				"dest", dest.Label(),
				"dest_field", dest.FieldName(destIndex),
				"error", err)
			return false, err
		}
		slog.Error("route delivery failed",
			"src", n.Label(),
			"dest", dest.Label(),
			"error", err)
		return false, err
	}
	return changed, nil
}

// HasChanged reports whether the field changed since the last ClearChanged.
func (n *Node) HasChanged(index int) bool {
	return n.changed.has(index)
}

// ChangedIndices returns the changed field indices in ascending order.
func (n *Node) ChangedIndices() []int {
	return n.changed.indices()
}

// ClearChanged resets all changed flags.
func (n *Node) ClearChanged() {
	n.changed.reset()
}

// Values returns a deep copy of all field values in index order.
func (n *Node) Values() []ir.Value {
	out := make([]ir.Value, len(n.values))
	for i, v := range n.values {
		out[i] = v.Clone()
	}
	return out
}

// NodeRefs returns the handles referenced by the node's SFNode/MFNode
// fields, in field order.
func (n *Node) NodeRefs() []ir.NodeID {
	var out []ir.NodeID
	for _, idx := range n.schema.NodeFieldIndices() {
		out = append(out, ir.NodeRefs(n.values[idx])...)
	}
	return out
}

func (n *Node) roleError(decl field.Declaration, reason string) *field.InvalidFieldError {
	return &field.InvalidFieldError{
		NodeType: n.TypeName(),
		Name:     decl.Name,
		Index:    decl.Index,
		Reason:   reason,
	}
}
