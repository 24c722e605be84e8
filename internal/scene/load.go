package scene

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/x3drouter/internal/ir"
	"github.com/roach88/x3drouter/internal/node"
	"github.com/roach88/x3drouter/internal/script"
)

// Load builds a compiled scene description into the scene.
//
// Nodes are allocated first, in declaration order, so field values may
// reference any DEF name. Initial values are then assigned, every node is
// realized, and finally the routes are wired. Script interface defaults
// resolve only DEF names declared before the script.
//
// Errors do not stop the load: a node that cannot be created is skipped, a
// bad field value leaves the default, a bad route is not added. All of them
// are returned joined.
func (s *Scene) Load(spec *ir.SceneSpec) error {
	var errs []error
	created := make([]*node.Node, len(spec.Nodes))

	for i, d := range spec.Nodes {
		var (
			n   *node.Node
			err error
		)
		if d.Type == script.TypeName {
			n, err = s.CreateScript(d.DEF, d.Interface, d.Source, s.Resolve)
		} else {
			n, err = s.CreateNode(d.Type, d.DEF)
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		created[i] = n
	}

	for i, d := range spec.Nodes {
		if n := created[i]; n != nil {
			errs = append(errs, s.assign(n, d.Fields)...)
		}
	}

	for _, n := range created {
		if n == nil {
			continue
		}
		if err := s.Realize(n); err != nil {
			errs = append(errs, err)
		}
	}

	for _, r := range spec.Routes {
		if err := s.AddRouteDecl(r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Scene) assign(n *node.Node, fields map[string]any) []error {
	var errs []error
	for _, name := range ir.SortedKeys(fields) {
		idx, err := n.Schema().FieldIndex(name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		decl, _ := n.Schema().Declaration(idx)
		v, err := ir.ValueFrom(decl.Type, fields[name], s.Resolve)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s.%s: %w", n.Label(), name, err))
			continue
		}
		if err := n.SetValue(idx, v); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// AddRouteByName parses and wires a "ROUTE A.f TO B.g" declaration.
func (s *Scene) AddRouteByName(line string) error {
	r, err := ir.ParseRoute(line)
	if err != nil {
		return err
	}
	return s.AddRouteDecl(r)
}

// AddRouteDecl resolves both endpoints by DEF and field name and adds the
// route. Unknown field names and incompatible endpoints are reported as
// *field.InvalidFieldError.
func (s *Scene) AddRouteDecl(r ir.RouteDecl) error {
	src, srcIdx, err := s.endpoint(r.FromNode, r.FromField)
	if err != nil {
		return fmt.Errorf("%s: %w", r, err)
	}
	dest, destIdx, err := s.endpoint(r.ToNode, r.ToField)
	if err != nil {
		return fmt.Errorf("%s: %w", r, err)
	}
	if err := s.routes.AddRoute(src, srcIdx, dest, destIdx); err != nil {
		return fmt.Errorf("%s: %w", r, err)
	}
	return nil
}

func (s *Scene) endpoint(def, fieldName string) (*node.Node, int, error) {
	n, ok := s.Lookup(def)
	if !ok {
		return nil, 0, fmt.Errorf("unknown DEF name %q", def)
	}
	idx, err := n.Schema().FieldIndex(strings.TrimSpace(fieldName))
	if err != nil {
		return nil, 0, err
	}
	return n, idx, nil
}
