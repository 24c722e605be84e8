package nodes

import (
	"log/slog"
	"slices"

	"github.com/roach88/x3drouter/internal/field"
	"github.com/roach88/x3drouter/internal/ir"
	"github.com/roach88/x3drouter/internal/node"
)

// Field indices shared by Group and Transform. Transform appends its own
// fields after these.
const (
	GroupChildren = iota
	GroupAddChildren
	GroupRemoveChildren
	GroupBBoxCenter
	GroupBBoxSize
)

const (
	TransformTranslation = GroupBBoxSize + 1 + iota
	TransformRotation
	TransformScale
	TransformScaleOrientation
	TransformCenter
)

func groupingFields(b *field.Builder) *field.Builder {
	return b.
		Field(ir.AccessExposedField, ir.MFNodeType, "children", nil).
		Field(ir.AccessEventIn, ir.MFNodeType, "addChildren", nil).
		Field(ir.AccessEventIn, ir.MFNodeType, "removeChildren", nil).
		Field(ir.AccessField, ir.SFVec3fType, "bboxCenter", nil).
		Field(ir.AccessField, ir.SFVec3fType, "bboxSize", ir.SFVec3f{-1, -1, -1})
}

var groupSchema = groupingFields(field.NewBuilder("Group")).MustBuild()

var transformSchema = groupingFields(field.NewBuilder("Transform")).
	Field(ir.AccessExposedField, ir.SFVec3fType, "translation", nil).
	Field(ir.AccessExposedField, ir.SFRotationType, "rotation", nil).
	Field(ir.AccessExposedField, ir.SFVec3fType, "scale", ir.SFVec3f{1, 1, 1}).
	Field(ir.AccessExposedField, ir.SFRotationType, "scaleOrientation", nil).
	Field(ir.AccessExposedField, ir.SFVec3fType, "center", nil).
	MustBuild()

var shapeSchema = field.NewBuilder("Shape").
	Field(ir.AccessExposedField, ir.SFNodeType, "appearance", nil).
	Field(ir.AccessExposedField, ir.SFNodeType, "geometry", nil).
	MustBuild()

var appearanceSchema = field.NewBuilder("Appearance").
	Field(ir.AccessExposedField, ir.SFNodeType, "material", nil).
	Field(ir.AccessExposedField, ir.SFNodeType, "texture", nil).
	MustBuild()

var materialSchema = field.NewBuilder("Material").
	Field(ir.AccessExposedField, ir.SFFloatType, "ambientIntensity", ir.SFFloat(0.2), field.Range(0, 1)).
	Field(ir.AccessExposedField, ir.SFColorType, "diffuseColor", ir.SFColor{0.8, 0.8, 0.8}, field.Range(0, 1)).
	Field(ir.AccessExposedField, ir.SFColorType, "emissiveColor", nil, field.Range(0, 1)).
	Field(ir.AccessExposedField, ir.SFFloatType, "shininess", ir.SFFloat(0.2), field.Range(0, 1)).
	Field(ir.AccessExposedField, ir.SFColorType, "specularColor", nil, field.Range(0, 1)).
	Field(ir.AccessExposedField, ir.SFFloatType, "transparency", nil, field.Range(0, 1)).
	MustBuild()

var coordinateSchema = field.NewBuilder("Coordinate").
	Field(ir.AccessExposedField, ir.MFVec3fType, "point", nil).
	MustBuild()

// grouping handles addChildren/removeChildren by rewriting children.
type grouping struct{}

func newGrouping() node.Behavior { return grouping{} }

func (grouping) Setup(*node.Node) {}

func (grouping) HandleEvent(n *node.Node, index int, _ float64) {
	if index != GroupAddChildren && index != GroupRemoveChildren {
		return
	}
	cur, _ := n.FieldValue(GroupChildren)
	in, _ := n.FieldValue(index)
	children := slices.Clone(cur.(ir.MFNode))
	for _, id := range in.(ir.MFNode) {
		if id.IsNull() {
			continue
		}
		has := slices.Contains(children, id)
		switch {
		case index == GroupAddChildren && !has:
			children = append(children, id)
		case index == GroupRemoveChildren && has:
			children = slices.DeleteFunc(children, func(c ir.NodeID) bool { return c == id })
		}
	}
	if err := n.Emit(GroupChildren, children); err != nil {
		slog.Warn("children update failed", "node", n.Label(), "error", err)
	}
}
