// Package route holds the ROUTE graph of a scene: directed edges from an
// emitting field of one node to a receiving field of another.
//
// The table is keyed by source endpoint so fan-out lookup is O(1). Routes
// out of one endpoint are delivered in insertion order. Duplicate routes
// are idempotent, so no fan-out list ever holds the same destination twice.
package route

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/roach88/x3drouter/internal/field"
	"github.com/roach88/x3drouter/internal/ir"
	"github.com/roach88/x3drouter/internal/node"
)

// Endpoint is a (node, field index) pair.
type Endpoint struct {
	Node  ir.NodeID
	Index int
}

// Route is an immutable edge (Src.SrcIndex -> Dest.DestIndex).
type Route struct {
	Src       ir.NodeID
	SrcIndex  int
	Dest      ir.NodeID
	DestIndex int
}

// From returns the source endpoint.
func (r Route) From() Endpoint { return Endpoint{r.Src, r.SrcIndex} }

// To returns the destination endpoint.
func (r Route) To() Endpoint { return Endpoint{r.Dest, r.DestIndex} }

// Table stores routes. Not safe for concurrent use; owned by the engine
// goroutine like the nodes it connects.
type Table struct {
	out       map[Endpoint][]Route
	involving map[ir.NodeID]map[Route]struct{}
	order     map[Route]uint64
	seq       uint64
}

// NewTable creates an empty route table.
func NewTable() *Table {
	return &Table{
		out:       make(map[Endpoint][]Route),
		involving: make(map[ir.NodeID]map[Route]struct{}),
		order:     make(map[Route]uint64),
	}
}

// AddRoute validates and inserts a route. The source field must be an
// eventOut or exposedField, the destination an eventIn or exposedField,
// and both must have the same data type. Otherwise an
// *field.InvalidFieldError is returned and the table is unchanged.
// Adding an existing route is a no-op.
func (t *Table) AddRoute(src *node.Node, srcIndex int, dest *node.Node, destIndex int) error {
	srcDecl, err := src.Schema().Declaration(srcIndex)
	if err != nil {
		return err
	}
	destDecl, err := dest.Schema().Declaration(destIndex)
	if err != nil {
		return err
	}
	if src.State() == node.Removed || dest.State() == node.Removed {
		return &field.InvalidFieldError{
			NodeType: dest.TypeName(),
			Name:     destDecl.Name,
			Index:    destIndex,
			Reason:   "cannot route to or from a removed node",
		}
	}
	if !srcDecl.Access.CanEmit() {
		return &field.InvalidFieldError{
			NodeType: src.TypeName(),
			Name:     srcDecl.Name,
			Index:    srcIndex,
			Reason:   fmt.Sprintf("%s cannot be a route source", srcDecl.Access),
		}
	}
	if !destDecl.Access.CanReceive() {
		return &field.InvalidFieldError{
			NodeType: dest.TypeName(),
			Name:     destDecl.Name,
			Index:    destIndex,
			Reason:   fmt.Sprintf("%s cannot be a route destination", destDecl.Access),
		}
	}
	if srcDecl.Type != destDecl.Type {
		return &field.InvalidFieldError{
			NodeType: dest.TypeName(),
			Name:     destDecl.Name,
			Index:    destIndex,
			Reason:   fmt.Sprintf("type mismatch: %s.%s is %s, destination is %s", src.Label(), srcDecl.Name, srcDecl.Type, destDecl.Type),
		}
	}

	r := Route{Src: src.ID(), SrcIndex: srcIndex, Dest: dest.ID(), DestIndex: destIndex}
	if _, exists := t.order[r]; exists {
		return nil
	}
	t.seq++
	t.order[r] = t.seq
	from := r.From()
	t.out[from] = append(t.out[from], r)
	t.link(r.Src, r)
	t.link(r.Dest, r)
	return nil
}

func (t *Table) link(id ir.NodeID, r Route) {
	set := t.involving[id]
	if set == nil {
		set = make(map[Route]struct{})
		t.involving[id] = set
	}
	set[r] = struct{}{}
}

func (t *Table) unlink(id ir.NodeID, r Route) {
	set := t.involving[id]
	delete(set, r)
	if len(set) == 0 {
		delete(t.involving, id)
	}
}

// RemoveRoute removes one route. Removing an absent route is a no-op.
func (t *Table) RemoveRoute(src ir.NodeID, srcIndex int, dest ir.NodeID, destIndex int) {
	t.remove(Route{Src: src, SrcIndex: srcIndex, Dest: dest, DestIndex: destIndex})
}

func (t *Table) remove(r Route) {
	if _, exists := t.order[r]; !exists {
		return
	}
	delete(t.order, r)
	from := r.From()
	list := slices.DeleteFunc(t.out[from], func(x Route) bool { return x == r })
	if len(list) == 0 {
		delete(t.out, from)
	} else {
		t.out[from] = list
	}
	t.unlink(r.Src, r)
	t.unlink(r.Dest, r)
}

// RoutesFrom returns the routes leaving (id, index) in insertion order.
// The returned slice must not be modified.
func (t *Table) RoutesFrom(id ir.NodeID, index int) []Route {
	return t.out[Endpoint{id, index}]
}

// RemoveAllRoutesInvolving removes every route into or out of the node and
// returns how many were removed.
func (t *Table) RemoveAllRoutesInvolving(id ir.NodeID) int {
	set := t.involving[id]
	routes := make([]Route, 0, len(set))
	for r := range set {
		routes = append(routes, r)
	}
	for _, r := range routes {
		t.remove(r)
	}
	return len(routes)
}

// Len returns the number of routes.
func (t *Table) Len() int {
	return len(t.order)
}

// All returns every route in insertion order.
func (t *Table) All() []Route {
	out := make([]Route, 0, len(t.order))
	for r := range t.order {
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b Route) int {
		return cmp.Compare(t.order[a], t.order[b])
	})
	return out
}

// Clear removes all routes.
func (t *Table) Clear() {
	clear(t.out)
	clear(t.involving)
	clear(t.order)
}
