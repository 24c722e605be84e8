package script

import (
	"fmt"

	"github.com/roach88/x3drouter/internal/field"
	"github.com/roach88/x3drouter/internal/ir"
)

// TypeName is the node type of every Script instance.
const TypeName = "Script"

// Fixed fields every Script carries ahead of its declared interface.
const (
	FieldDirectOutput = iota
	FieldMustEvaluate
)

// BuildSchema builds the per-instance field table of a Script node from its
// declared interface. Defaults are converted with resolve so SFNode
// defaults may name other nodes by DEF.
func BuildSchema(decls []ir.InterfaceDecl, resolve ir.NodeResolver) (*field.Schema, error) {
	b := field.NewBuilder(TypeName).
		Field(ir.AccessField, ir.SFBoolType, "directOutput", nil).
		Field(ir.AccessField, ir.SFBoolType, "mustEvaluate", nil)

	for _, d := range decls {
		var def ir.Value
		if d.Default != nil {
			if !d.Access.Initializable() {
				return nil, fmt.Errorf("script field %s: %s cannot have a default", d.Name, d.Access)
			}
			v, err := ir.ValueFrom(d.Type, d.Default, resolve)
			if err != nil {
				return nil, fmt.Errorf("script field %s default: %w", d.Name, err)
			}
			def = v
		}
		b.Field(d.Access, d.Type, d.Name, def)
	}
	return b.Build()
}
