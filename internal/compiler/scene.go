package compiler

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/x3drouter/internal/ir"
	"github.com/roach88/x3drouter/internal/script"
)

// CompileScene parses a CUE value into a SceneSpec.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The value is the scene file's top level:
//
//	name: "bounce"
//	nodes: {
//		TS: {type: "TimeSensor", fields: {cycleInterval: 4, loop: true}}
//		PI: {type: "PositionInterpolator", fields: {key: [0, 1], keyValue: [0, 0, 0, 0, 10, 0]}}
//	}
//	routes: ["ROUTE TS.fraction_changed TO PI.set_fraction"]
//
// Nodes keep their declaration order. Field values are kept as plain data;
// they are converted against the node's schema when the scene is loaded.
func CompileScene(v cue.Value) (*ir.SceneSpec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	spec := &ir.SceneSpec{}

	if nameVal := v.LookupPath(cue.ParsePath("name")); nameVal.Exists() {
		name, err := nameVal.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		spec.Name = name
	}

	nodesVal := v.LookupPath(cue.ParsePath("nodes"))
	if !nodesVal.Exists() {
		return nil, &CompileError{
			Field:   "nodes",
			Message: "nodes is required",
			Pos:     v.Pos(),
		}
	}

	iter, err := nodesVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		decl, err := CompileNode(iter.Selector().Unquoted(), iter.Value())
		if err != nil {
			return nil, err
		}
		spec.Nodes = append(spec.Nodes, decl)
	}

	routesVal := v.LookupPath(cue.ParsePath("routes"))
	if routesVal.Exists() {
		spec.Routes, err = parseRoutes(routesVal)
		if err != nil {
			return nil, err
		}
	}

	return spec, nil
}

// CompileNode parses one entry of the nodes struct.
func CompileNode(def string, v cue.Value) (ir.NodeDecl, error) {
	decl := ir.NodeDecl{DEF: def}
	path := "nodes." + def

	typeVal := v.LookupPath(cue.ParsePath("type"))
	if !typeVal.Exists() {
		return decl, &CompileError{
			Field:   path + ".type",
			Message: "node type is required",
			Pos:     v.Pos(),
		}
	}
	typeName, err := typeVal.String()
	if err != nil {
		return decl, formatCUEError(err)
	}
	decl.Type = typeName

	fieldsVal := v.LookupPath(cue.ParsePath("fields"))
	if fieldsVal.Exists() {
		raw, err := plainValue(fieldsVal)
		if err != nil {
			return decl, err
		}
		fields, ok := raw.(map[string]any)
		if !ok {
			return decl, &CompileError{
				Field:   path + ".fields",
				Message: "fields must be a struct",
				Pos:     fieldsVal.Pos(),
			}
		}
		decl.Fields = fields
	}

	ifaceVal := v.LookupPath(cue.ParsePath("interface"))
	srcVal := v.LookupPath(cue.ParsePath("source"))
	if typeName != script.TypeName {
		if ifaceVal.Exists() || srcVal.Exists() {
			return decl, &CompileError{
				Field:   path,
				Message: fmt.Sprintf("interface and source are only allowed on %s nodes", script.TypeName),
				Pos:     v.Pos(),
			}
		}
		return decl, nil
	}

	if ifaceVal.Exists() {
		decl.Interface, err = parseInterface(path, ifaceVal)
		if err != nil {
			return decl, err
		}
	}
	if srcVal.Exists() {
		decl.Source, err = srcVal.String()
		if err != nil {
			return decl, formatCUEError(err)
		}
	}
	return decl, nil
}

// parseInterface extracts a Script node's field declarations.
func parseInterface(path string, v cue.Value) ([]ir.InterfaceDecl, error) {
	var decls []ir.InterfaceDecl

	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	for i := 0; iter.Next(); i++ {
		item := iter.Value()
		fieldPath := fmt.Sprintf("%s.interface[%d]", path, i)

		var d ir.InterfaceDecl
		for _, key := range []string{"access", "type", "name"} {
			val := item.LookupPath(cue.ParsePath(key))
			if !val.Exists() {
				return nil, &CompileError{
					Field:   fieldPath + "." + key,
					Message: key + " is required",
					Pos:     item.Pos(),
				}
			}
			s, err := val.String()
			if err != nil {
				return nil, formatCUEError(err)
			}
			switch key {
			case "access":
				d.Access, err = ir.ParseAccessType(s)
			case "type":
				d.Type, err = ir.ParseDataType(s)
			case "name":
				d.Name = s
			}
			if err != nil {
				return nil, &CompileError{
					Field:   fieldPath + "." + key,
					Message: err.Error(),
					Pos:     val.Pos(),
				}
			}
		}

		if defVal := item.LookupPath(cue.ParsePath("default")); defVal.Exists() {
			d.Default, err = plainValue(defVal)
			if err != nil {
				return nil, err
			}
		}

		decls = append(decls, d)
	}

	return decls, nil
}

// parseRoutes reads the routes list. Each entry is a "ROUTE A.f TO B.g" string.
func parseRoutes(v cue.Value) ([]ir.RouteDecl, error) {
	var routes []ir.RouteDecl

	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	for i := 0; iter.Next(); i++ {
		s, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		r, err := ir.ParseRoute(s)
		if err != nil {
			return nil, &CompileError{
				Field:   fmt.Sprintf("routes[%d]", i),
				Message: err.Error(),
				Pos:     iter.Value().Pos(),
			}
		}
		routes = append(routes, r)
	}

	return routes, nil
}

// plainValue converts a concrete CUE value into plain Go data: bool,
// int64, float64, string, []any, map[string]any or nil.
func plainValue(v cue.Value) (any, error) {
	v, _ = v.Default()
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	switch v.Kind() {
	case cue.NullKind:
		return nil, nil
	case cue.BoolKind:
		return v.Bool()
	case cue.IntKind:
		n, err := v.Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return n, nil
	case cue.FloatKind:
		f, err := v.Float64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return f, nil
	case cue.StringKind:
		return v.String()
	case cue.ListKind:
		iter, err := v.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out := []any{}
		for iter.Next() {
			item, err := plainValue(iter.Value())
			if err != nil {
				return nil, err
			}
			out = append(out, item)
		}
		return out, nil
	case cue.StructKind:
		iter, err := v.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out := make(map[string]any)
		for iter.Next() {
			item, err := plainValue(iter.Value())
			if err != nil {
				return nil, err
			}
			out[iter.Selector().Unquoted()] = item
		}
		return out, nil
	default:
		return nil, &CompileError{
			Field:   "value",
			Message: fmt.Sprintf("value must be concrete, got %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
