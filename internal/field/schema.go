package field

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/x3drouter/internal/ir"
)

// Declaration is the immutable description of one field of a node type.
type Declaration struct {
	Name   string
	Access ir.AccessType
	Type   ir.DataType
	Index  int

	// Default is the value a fresh node holds before setup.
	Default ir.Value

	constraints []Constraint
}

// Check validates v against the declaration's data type and constraints.
func (d Declaration) Check(typeName string, v ir.Value) error {
	if v == nil {
		return &InvalidFieldValueError{NodeType: typeName, Field: d.Name, Type: d.Type, Reason: "nil value"}
	}
	if v.Type() != d.Type {
		return &InvalidFieldValueError{
			NodeType: typeName,
			Field:    d.Name,
			Type:     d.Type,
			Reason:   fmt.Sprintf("got %s", v.Type()),
		}
	}
	if !ir.Finite(v) {
		return &InvalidFieldValueError{NodeType: typeName, Field: d.Name, Type: d.Type, Reason: "non-finite value"}
	}
	for _, c := range d.constraints {
		if err := c(v); err != nil {
			return &InvalidFieldValueError{NodeType: typeName, Field: d.Name, Type: d.Type, Reason: err.Error(), Err: err}
		}
	}
	return nil
}

// Schema is the static field table of one node type. Read-only after Build.
type Schema struct {
	typeName   string
	decls      []Declaration
	byName     map[string]int
	nodeFields []int
}

// TypeName returns the node type name, e.g. "TimeSensor".
func (s *Schema) TypeName() string {
	return s.typeName
}

// NumFields returns the number of storage slots. Aliases are not counted.
func (s *Schema) NumFields() int {
	return len(s.decls)
}

// FieldIndex resolves a field name, including set_/_changed aliases of
// exposedFields, to its index.
func (s *Schema) FieldIndex(name string) (int, error) {
	if idx, ok := s.byName[name]; ok {
		return idx, nil
	}
	return -1, unknownName(s.typeName, name)
}

// Declaration returns the declaration at index.
func (s *Schema) Declaration(index int) (Declaration, error) {
	if index < 0 || index >= len(s.decls) {
		return Declaration{}, badIndex(s.typeName, index)
	}
	return s.decls[index], nil
}

// Declarations returns all declarations in index order.
func (s *Schema) Declarations() []Declaration {
	return slices.Clone(s.decls)
}

// NodeFieldIndices returns the indices of SFNode and MFNode fields in
// ascending order.
func (s *Schema) NodeFieldIndices() []int {
	return slices.Clone(s.nodeFields)
}

// Builder assembles a Schema. Errors are collected and reported by Build.
type Builder struct {
	typeName string
	decls    []Declaration
	byName   map[string]int
	errs     []string
}

// NewBuilder starts a schema for the named node type.
func NewBuilder(typeName string) *Builder {
	return &Builder{typeName: typeName, byName: make(map[string]int)}
}

// Field appends a field declaration. A nil def means the data type's zero
// value. exposedFields also register their set_ and _changed aliases.
func (b *Builder) Field(access ir.AccessType, dt ir.DataType, name string, def ir.Value, constraints ...Constraint) *Builder {
	if name == "" {
		b.errs = append(b.errs, "empty field name")
		return b
	}
	if def == nil {
		def = ir.Zero(dt)
	}
	if def == nil {
		b.errs = append(b.errs, fmt.Sprintf("%s: unknown data type %s", name, dt))
		return b
	}

	idx := len(b.decls)
	decl := Declaration{Name: name, Access: access, Type: dt, Index: idx, Default: def.Clone(), constraints: constraints}
	if err := decl.Check(b.typeName, def); err != nil {
		b.errs = append(b.errs, fmt.Sprintf("%s: default: %v", name, err))
		return b
	}

	names := []string{name}
	if access == ir.AccessExposedField {
		names = append(names, "set_"+name, name+"_changed")
	}
	for _, n := range names {
		if _, dup := b.byName[n]; dup {
			b.errs = append(b.errs, fmt.Sprintf("duplicate field name %q", n))
			return b
		}
	}
	for _, n := range names {
		b.byName[n] = idx
	}
	b.decls = append(b.decls, decl)
	return b
}

// Build freezes the schema.
func (b *Builder) Build() (*Schema, error) {
	if len(b.errs) > 0 {
		return nil, fmt.Errorf("schema %s: %s", b.typeName, strings.Join(b.errs, "; "))
	}
	s := &Schema{
		typeName: b.typeName,
		decls:    slices.Clone(b.decls),
		byName:   make(map[string]int, len(b.byName)),
	}
	for k, v := range b.byName {
		s.byName[k] = v
	}
	for _, d := range s.decls {
		if d.Type.IsNodeType() {
			s.nodeFields = append(s.nodeFields, d.Index)
		}
	}
	return s, nil
}

// MustBuild is like Build but panics on error.
// Use only for static built-in node tables.
func (b *Builder) MustBuild() *Schema {
	s, err := b.Build()
	if err != nil {
		panic(err)
	}
	return s
}
