// Package scene owns the nodes of one loaded world.
//
// Nodes live in an arena indexed by ir.NodeID. SFNode/MFNode fields hold
// handles into the arena, so shared children and cyclic references need
// no ownership bookkeeping: a removed node keeps its slot for as long as a
// live node still references it.
package scene

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/roach88/x3drouter/internal/clock"
	"github.com/roach88/x3drouter/internal/ir"
	"github.com/roach88/x3drouter/internal/node"
	"github.com/roach88/x3drouter/internal/nodes"
	"github.com/roach88/x3drouter/internal/route"
	"github.com/roach88/x3drouter/internal/script"
	"github.com/roach88/x3drouter/internal/sensor"
)

// Scene is the arena, route table and sensor registry of one world.
//
// Thread-safety: not safe for concurrent use. A scene belongs to the
// goroutine that drives its engine.
type Scene struct {
	catalog *nodes.Catalog
	clock   *clock.Clock
	sink    node.ChangeSink
	routes  *route.Table
	sensors *sensor.Manager

	arena []*node.Node // arena[id-1]; nil once released
	byDEF map[string]ir.NodeID

	scriptOpts []script.Option
}

// Option configures a Scene.
type Option func(*Scene)

// WithCatalog replaces the built-in node catalog.
func WithCatalog(c *nodes.Catalog) Option {
	return func(s *Scene) {
		s.catalog = c
	}
}

// WithScriptOptions sets the options passed to every Script node.
func WithScriptOptions(opts ...script.Option) Option {
	return func(s *Scene) {
		s.scriptOpts = append(s.scriptOpts, opts...)
	}
}

// New creates an empty scene. sink receives change notifications from
// every live node; c is the scene clock handed to time-dependent sensors.
func New(c *clock.Clock, sink node.ChangeSink, opts ...Option) *Scene {
	s := &Scene{
		catalog: nodes.Default(),
		clock:   c,
		sink:    sink,
		routes:  route.NewTable(),
		sensors: sensor.NewManager(c),
		byDEF:   make(map[string]ir.NodeID),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Clock returns the scene clock.
func (s *Scene) Clock() *clock.Clock { return s.clock }

// Routes returns the route table.
func (s *Scene) Routes() *route.Table { return s.routes }

// Sensors returns the sensor registry.
func (s *Scene) Sensors() *sensor.Manager { return s.sensors }

// Catalog returns the node catalog used by CreateNode.
func (s *Scene) Catalog() *nodes.Catalog { return s.catalog }

// CreateNode allocates a node of a catalog type and puts it in setup. The
// caller assigns initial field values and then calls Realize.
func (s *Scene) CreateNode(typeName, def string) (*node.Node, error) {
	if typeName == script.TypeName {
		return nil, fmt.Errorf("create %s: Script nodes need an interface, use CreateScript", def)
	}
	schema, factory, ok := s.catalog.Lookup(typeName)
	if !ok {
		return nil, fmt.Errorf("create %s: unknown node type %q", def, typeName)
	}
	var b node.Behavior
	if factory != nil {
		b = factory()
	}
	return s.allocate(def, func(id ir.NodeID) *node.Node {
		return node.New(id, def, schema, b)
	})
}

// CreateScript allocates a Script node with a per-instance interface.
// resolve converts DEF names in SFNode defaults and emitted node values;
// it may be nil.
func (s *Scene) CreateScript(def string, iface []ir.InterfaceDecl, source string, resolve ir.NodeResolver) (*node.Node, error) {
	schema, err := script.BuildSchema(iface, resolve)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", def, err)
	}
	opts := append(slices.Clip(s.scriptOpts), script.WithResolver(resolve))
	b := script.New(source, opts...)
	return s.allocate(def, func(id ir.NodeID) *node.Node {
		return node.New(id, def, schema, b)
	})
}

func (s *Scene) allocate(def string, build func(id ir.NodeID) *node.Node) (*node.Node, error) {
	if def != "" {
		if _, dup := s.byDEF[def]; dup {
			return nil, fmt.Errorf("create %s: DEF name already in use", def)
		}
	}
	id := ir.NodeID(len(s.arena) + 1)
	n := build(id)
	if err := n.BeginSetup(s.sink); err != nil {
		return nil, err
	}
	s.arena = append(s.arena, n)
	if def != "" {
		s.byDEF[def] = id
	}
	return n, nil
}

// Realize finishes setup and registers the node's sensor capabilities.
func (s *Scene) Realize(n *node.Node) error {
	if err := n.SetupFinished(); err != nil {
		return err
	}
	s.sensors.AddSensor(n)
	return nil
}

// Node returns the node with the given handle, including removed nodes
// that are still referenced.
func (s *Scene) Node(id ir.NodeID) (*node.Node, bool) {
	if id.IsNull() || int(id) > len(s.arena) {
		return nil, false
	}
	n := s.arena[id-1]
	return n, n != nil
}

// Lookup resolves a DEF name.
func (s *Scene) Lookup(def string) (*node.Node, bool) {
	id, ok := s.byDEF[def]
	if !ok {
		return nil, false
	}
	return s.Node(id)
}

// Resolve is an ir.NodeResolver over DEF names.
func (s *Scene) Resolve(def string) (ir.NodeID, bool) {
	id, ok := s.byDEF[def]
	return id, ok
}

// Nodes returns the nodes that are not removed, in creation order.
func (s *Scene) Nodes() []*node.Node {
	out := make([]*node.Node, 0, len(s.arena))
	for _, n := range s.arena {
		if n != nil && n.State() != node.Removed {
			out = append(out, n)
		}
	}
	return out
}

// Len returns the number of nodes that are not removed.
func (s *Scene) Len() int {
	return len(s.Nodes())
}

// RemoveNode removes the node's routes and sensor registration and marks it
// removed. Its arena slot is released immediately unless a live node still
// references it; Collect releases such nodes later. Returns whether the
// slot was released.
func (s *Scene) RemoveNode(id ir.NodeID) (bool, error) {
	n, ok := s.Node(id)
	if !ok {
		return false, fmt.Errorf("remove %s: no such node", id)
	}
	if n.State() == node.Removed {
		return false, nil
	}

	dropped := s.routes.RemoveAllRoutesInvolving(id)
	s.sensors.RemoveSensor(n)
	n.MarkRemoved()
	if n.DEF() != "" && s.byDEF[n.DEF()] == id {
		delete(s.byDEF, n.DEF())
	}

	released := !s.referenced(id)
	if released {
		s.arena[id-1] = nil
	}
	slog.Debug("node removed",
		"node", n.Label(),
		"routes", dropped,
		"released", released)
	return released, nil
}

// Collect releases removed nodes that no live node references any more.
// Returns the number released.
func (s *Scene) Collect() int {
	released := 0
	for i, n := range s.arena {
		if n == nil || n.State() != node.Removed {
			continue
		}
		if !s.referenced(n.ID()) {
			s.arena[i] = nil
			released++
		}
	}
	return released
}

func (s *Scene) referenced(id ir.NodeID) bool {
	for _, n := range s.arena {
		if n == nil || n.State() == node.Removed {
			continue
		}
		if slices.Contains(n.NodeRefs(), id) {
			return true
		}
	}
	return false
}

// Walk visits root and every node reachable through SFNode/MFNode fields,
// depth first in field order. Each node is visited once, so shared and
// cyclic references are safe. fn returning false skips that node's
// children.
func (s *Scene) Walk(root ir.NodeID, fn func(n *node.Node) bool) {
	visited := make(map[ir.NodeID]bool)
	var visit func(id ir.NodeID)
	visit = func(id ir.NodeID) {
		if visited[id] {
			return
		}
		visited[id] = true
		n, ok := s.Node(id)
		if !ok {
			return
		}
		if !fn(n) {
			return
		}
		for _, child := range n.NodeRefs() {
			visit(child)
		}
	}
	visit(root)
}

// Unload shuts down every sensor, removes all routes and clock listeners,
// and marks every node removed. The scene is empty afterwards.
func (s *Scene) Unload() {
	s.sensors.Clear()
	s.routes.Clear()
	s.clock.Clear()
	for _, n := range s.arena {
		if n != nil {
			n.MarkRemoved()
		}
	}
	s.arena = nil
	clear(s.byDEF)
}
