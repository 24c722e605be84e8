package compiler

import (
	"fmt"

	"github.com/roach88/x3drouter/internal/field"
	"github.com/roach88/x3drouter/internal/ir"
	"github.com/roach88/x3drouter/internal/nodes"
	"github.com/roach88/x3drouter/internal/script"
)

// Validation error codes (E100-E199)
const (
	// Node errors (E101-E109)
	ErrDuplicateDEF      = "E101" // DEF name used twice
	ErrUnknownNodeType   = "E102" // type not in the catalog
	ErrUnknownField      = "E103" // field not declared by the type
	ErrFieldNotSettable  = "E104" // eventIn/eventOut given an initial value
	ErrInvalidFieldValue = "E105" // value does not convert or violates a constraint
	ErrInvalidInterface  = "E106" // bad Script interface
	ErrMissingDEF        = "E107" // empty DEF name

	// Route errors (E110-E119)
	ErrUnknownRouteNode  = "E110" // route names an undeclared DEF
	ErrUnknownRouteField = "E111" // route names an undeclared field
	ErrRouteDirection    = "E112" // source cannot emit or destination cannot receive
	ErrRouteTypeMismatch = "E113" // source and destination types differ
)

// ValidationError represents a scene validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks a compiled scene against the node catalog without
// building it. Returns all errors found (does not fail-fast).
//
// DEF references in SFNode/MFNode values resolve against every declared
// node; Script interface defaults resolve only against nodes declared
// before the script, matching what the loader does.
func Validate(spec *ir.SceneSpec, cat *nodes.Catalog) []ValidationError {
	var errs []ValidationError

	handles := make(map[string]ir.NodeID, len(spec.Nodes))
	order := make(map[string]int, len(spec.Nodes))
	for i, n := range spec.Nodes {
		if _, dup := handles[n.DEF]; dup {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("nodes[%d]", i),
				Message: fmt.Sprintf("duplicate DEF name %q", n.DEF),
				Code:    ErrDuplicateDEF,
			})
			continue
		}
		if n.DEF == "" {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("nodes[%d]", i),
				Message: "DEF name is required",
				Code:    ErrMissingDEF,
			})
			continue
		}
		handles[n.DEF] = ir.NodeID(i + 1)
		order[n.DEF] = i
	}
	resolveAll := func(name string) (ir.NodeID, bool) {
		id, ok := handles[name]
		return id, ok
	}

	schemas := make(map[string]*field.Schema, len(spec.Nodes))
	for i, n := range spec.Nodes {
		path := "nodes." + n.DEF

		var schema *field.Schema
		if n.Type == script.TypeName {
			before := func(name string) (ir.NodeID, bool) {
				if j, ok := order[name]; ok && j < i {
					return handles[name], true
				}
				return ir.NullNode, false
			}
			s, err := script.BuildSchema(n.Interface, before)
			if err != nil {
				errs = append(errs, ValidationError{
					Field:   path + ".interface",
					Message: err.Error(),
					Code:    ErrInvalidInterface,
				})
				continue
			}
			schema = s
		} else {
			s, _, ok := cat.Lookup(n.Type)
			if !ok {
				errs = append(errs, ValidationError{
					Field:   path + ".type",
					Message: fmt.Sprintf("unknown node type %q", n.Type),
					Code:    ErrUnknownNodeType,
				})
				continue
			}
			schema = s
		}
		if _, seen := schemas[n.DEF]; !seen {
			schemas[n.DEF] = schema
		}

		errs = append(errs, validateFields(path, schema, n.Fields, resolveAll)...)
	}

	for i, r := range spec.Routes {
		errs = append(errs, validateRoute(fmt.Sprintf("routes[%d]", i), r, spec, schemas)...)
	}

	return errs
}

// validateFields checks initial values against the node's declarations.
func validateFields(path string, schema *field.Schema, fields map[string]any, resolve ir.NodeResolver) []ValidationError {
	var errs []ValidationError

	for _, name := range ir.SortedKeys(fields) {
		fieldPath := path + ".fields." + name

		idx, err := schema.FieldIndex(name)
		if err != nil {
			errs = append(errs, ValidationError{
				Field:   fieldPath,
				Message: err.Error(),
				Code:    ErrUnknownField,
			})
			continue
		}
		decl, _ := schema.Declaration(idx)
		if !decl.Access.Initializable() {
			errs = append(errs, ValidationError{
				Field:   fieldPath,
				Message: fmt.Sprintf("%s %s cannot be given an initial value", decl.Access, decl.Name),
				Code:    ErrFieldNotSettable,
			})
			continue
		}

		v, err := ir.ValueFrom(decl.Type, fields[name], resolve)
		if err == nil {
			err = decl.Check(schema.TypeName(), v)
		}
		if err != nil {
			errs = append(errs, ValidationError{
				Field:   fieldPath,
				Message: err.Error(),
				Code:    ErrInvalidFieldValue,
			})
		}
	}

	return errs
}

// validateRoute checks that both endpoints exist and are compatible.
func validateRoute(path string, r ir.RouteDecl, spec *ir.SceneSpec, schemas map[string]*field.Schema) []ValidationError {
	var errs []ValidationError

	endpoint := func(def, name string, emit bool) (field.Declaration, bool) {
		schema, ok := schemas[def]
		if !ok {
			if _, declared := spec.NodeByDEF(def); !declared {
				errs = append(errs, ValidationError{
					Field:   path,
					Message: fmt.Sprintf("%s: unknown DEF name %q", r, def),
					Code:    ErrUnknownRouteNode,
				})
			}
			// Declared but invalid nodes were reported already.
			return field.Declaration{}, false
		}
		idx, err := schema.FieldIndex(name)
		if err != nil {
			errs = append(errs, ValidationError{
				Field:   path,
				Message: fmt.Sprintf("%s: %v", r, err),
				Code:    ErrUnknownRouteField,
			})
			return field.Declaration{}, false
		}
		decl, _ := schema.Declaration(idx)
		if emit && !decl.Access.CanEmit() {
			errs = append(errs, ValidationError{
				Field:   path,
				Message: fmt.Sprintf("%s: %s.%s is an %s and cannot be a route source", r, def, name, decl.Access),
				Code:    ErrRouteDirection,
			})
			return decl, false
		}
		if !emit && !decl.Access.CanReceive() {
			errs = append(errs, ValidationError{
				Field:   path,
				Message: fmt.Sprintf("%s: %s.%s is an %s and cannot be a route destination", r, def, name, decl.Access),
				Code:    ErrRouteDirection,
			})
			return decl, false
		}
		return decl, true
	}

	src, srcOK := endpoint(r.FromNode, r.FromField, true)
	dest, destOK := endpoint(r.ToNode, r.ToField, false)
	if srcOK && destOK && src.Type != dest.Type {
		errs = append(errs, ValidationError{
			Field:   path,
			Message: fmt.Sprintf("%s: type mismatch %s -> %s", r, src.Type, dest.Type),
			Code:    ErrRouteTypeMismatch,
		})
	}

	return errs
}
