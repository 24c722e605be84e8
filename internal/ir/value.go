package ir

import (
	"math"
	"slices"
)

// Value is a sealed interface representing a typed VRML field value.
// Only the SF and MF types in this file implement it.
type Value interface {
	// Type returns the VRML data type carried by the value.
	Type() DataType
	// Equal reports exact equality with another value of the same type.
	// Values of different types are never equal.
	Equal(other Value) bool
	// Clone returns a copy that shares no backing storage with the receiver.
	Clone() Value

	value() // Sealed
}

// SFBool is a single boolean.
type SFBool bool

// SFInt32 is a single 32-bit integer.
type SFInt32 int32

// SFFloat is a single-precision float.
type SFFloat float32

// SFDouble is a double-precision float.
type SFDouble float64

// SFTime is an absolute or relative time in seconds.
type SFTime float64

// SFString is a UTF-8 string.
type SFString string

// SFVec2f is a 2D vector.
type SFVec2f [2]float32

// SFVec3f is a 3D vector.
type SFVec3f [3]float32

// SFColor is an RGB triple, each component in [0,1].
type SFColor [3]float32

// SFRotation is an axis (x, y, z) and an angle in radians.
type SFRotation [4]float32

// SFNode is a reference to another node, or NullNode.
type SFNode NodeID

type (
	MFBool     []bool
	MFInt32    []int32
	MFFloat    []float32
	MFTime     []float64
	MFString   []string
	MFVec2f    []SFVec2f
	MFVec3f    []SFVec3f
	MFColor    []SFColor
	MFRotation []SFRotation
	MFNode     []NodeID
)

func (SFBool) value()     {}
func (SFInt32) value()    {}
func (SFFloat) value()    {}
func (SFDouble) value()   {}
func (SFTime) value()     {}
func (SFString) value()   {}
func (SFVec2f) value()    {}
func (SFVec3f) value()    {}
func (SFColor) value()    {}
func (SFRotation) value() {}
func (SFNode) value()     {}

func (MFBool) value()     {}
func (MFInt32) value()    {}
func (MFFloat) value()    {}
func (MFTime) value()     {}
func (MFString) value()   {}
func (MFVec2f) value()    {}
func (MFVec3f) value()    {}
func (MFColor) value()    {}
func (MFRotation) value() {}
func (MFNode) value()     {}

func (SFBool) Type() DataType     { return SFBoolType }
func (SFInt32) Type() DataType    { return SFInt32Type }
func (SFFloat) Type() DataType    { return SFFloatType }
func (SFDouble) Type() DataType   { return SFDoubleType }
func (SFTime) Type() DataType     { return SFTimeType }
func (SFString) Type() DataType   { return SFStringType }
func (SFVec2f) Type() DataType    { return SFVec2fType }
func (SFVec3f) Type() DataType    { return SFVec3fType }
func (SFColor) Type() DataType    { return SFColorType }
func (SFRotation) Type() DataType { return SFRotationType }
func (SFNode) Type() DataType     { return SFNodeType }

func (MFBool) Type() DataType     { return MFBoolType }
func (MFInt32) Type() DataType    { return MFInt32Type }
func (MFFloat) Type() DataType    { return MFFloatType }
func (MFTime) Type() DataType     { return MFTimeType }
func (MFString) Type() DataType   { return MFStringType }
func (MFVec2f) Type() DataType    { return MFVec2fType }
func (MFVec3f) Type() DataType    { return MFVec3fType }
func (MFColor) Type() DataType    { return MFColorType }
func (MFRotation) Type() DataType { return MFRotationType }
func (MFNode) Type() DataType     { return MFNodeType }

// Single-field values are comparable Go values, so equality is == on the
// concrete type and Clone is the identity.

func (v SFBool) Equal(o Value) bool     { return eqScalar(v, o) }
func (v SFInt32) Equal(o Value) bool    { return eqScalar(v, o) }
func (v SFFloat) Equal(o Value) bool    { return eqScalar(v, o) }
func (v SFDouble) Equal(o Value) bool   { return eqScalar(v, o) }
func (v SFTime) Equal(o Value) bool     { return eqScalar(v, o) }
func (v SFString) Equal(o Value) bool   { return eqScalar(v, o) }
func (v SFVec2f) Equal(o Value) bool    { return eqScalar(v, o) }
func (v SFVec3f) Equal(o Value) bool    { return eqScalar(v, o) }
func (v SFColor) Equal(o Value) bool    { return eqScalar(v, o) }
func (v SFRotation) Equal(o Value) bool { return eqScalar(v, o) }
func (v SFNode) Equal(o Value) bool     { return eqScalar(v, o) }

func (v SFBool) Clone() Value     { return v }
func (v SFInt32) Clone() Value    { return v }
func (v SFFloat) Clone() Value    { return v }
func (v SFDouble) Clone() Value   { return v }
func (v SFTime) Clone() Value     { return v }
func (v SFString) Clone() Value   { return v }
func (v SFVec2f) Clone() Value    { return v }
func (v SFVec3f) Clone() Value    { return v }
func (v SFColor) Clone() Value    { return v }
func (v SFRotation) Clone() Value { return v }
func (v SFNode) Clone() Value     { return v }

func (v MFBool) Equal(o Value) bool     { return eqSlice(v, o) }
func (v MFInt32) Equal(o Value) bool    { return eqSlice(v, o) }
func (v MFFloat) Equal(o Value) bool    { return eqSlice(v, o) }
func (v MFTime) Equal(o Value) bool     { return eqSlice(v, o) }
func (v MFString) Equal(o Value) bool   { return eqSlice(v, o) }
func (v MFVec2f) Equal(o Value) bool    { return eqSlice(v, o) }
func (v MFVec3f) Equal(o Value) bool    { return eqSlice(v, o) }
func (v MFColor) Equal(o Value) bool    { return eqSlice(v, o) }
func (v MFRotation) Equal(o Value) bool { return eqSlice(v, o) }
func (v MFNode) Equal(o Value) bool     { return eqSlice(v, o) }

func (v MFBool) Clone() Value     { return slices.Clone(v) }
func (v MFInt32) Clone() Value    { return slices.Clone(v) }
func (v MFFloat) Clone() Value    { return slices.Clone(v) }
func (v MFTime) Clone() Value     { return slices.Clone(v) }
func (v MFString) Clone() Value   { return slices.Clone(v) }
func (v MFVec2f) Clone() Value    { return slices.Clone(v) }
func (v MFVec3f) Clone() Value    { return slices.Clone(v) }
func (v MFColor) Clone() Value    { return slices.Clone(v) }
func (v MFRotation) Clone() Value { return slices.Clone(v) }
func (v MFNode) Clone() Value     { return slices.Clone(v) }

func eqScalar[T comparable](v T, o Value) bool {
	ov, ok := o.(T)
	return ok && v == ov
}

func eqSlice[S ~[]E, E comparable](v S, o Value) bool {
	ov, ok := o.(S)
	return ok && slices.Equal(v, ov)
}

// Finite reports whether every float, double and time component of v is
// neither NaN nor infinite. Values without such components are finite.
func Finite(v Value) bool {
	switch x := v.(type) {
	case SFFloat:
		return finite32(float32(x))
	case SFDouble:
		return finite64(float64(x))
	case SFTime:
		return finite64(float64(x))
	case SFVec2f:
		return finite32(x[:]...)
	case SFVec3f:
		return finite32(x[:]...)
	case SFColor:
		return finite32(x[:]...)
	case SFRotation:
		return finite32(x[:]...)
	case MFFloat:
		return finite32(x...)
	case MFTime:
		return finite64(x...)
	case MFVec2f:
		return allFinite(x)
	case MFVec3f:
		return allFinite(x)
	case MFColor:
		return allFinite(x)
	case MFRotation:
		return allFinite(x)
	}
	return true
}

func allFinite[S ~[]E, E Value](s S) bool {
	for _, e := range s {
		if !Finite(e) {
			return false
		}
	}
	return true
}

func finite32(fs ...float32) bool {
	for _, f := range fs {
		if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
			return false
		}
	}
	return true
}

func finite64(fs ...float64) bool {
	for _, f := range fs {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}

// Zero returns the default value of a data type: false, 0, "", the zero
// vector, the default rotation (0 0 1 0), NULL, or an empty MF list.
// Returns nil for an unknown type.
func Zero(t DataType) Value {
	switch t {
	case SFBoolType:
		return SFBool(false)
	case SFInt32Type:
		return SFInt32(0)
	case SFFloatType:
		return SFFloat(0)
	case SFDoubleType:
		return SFDouble(0)
	case SFTimeType:
		return SFTime(0)
	case SFStringType:
		return SFString("")
	case SFVec2fType:
		return SFVec2f{}
	case SFVec3fType:
		return SFVec3f{}
	case SFColorType:
		return SFColor{}
	case SFRotationType:
		return SFRotation{0, 0, 1, 0}
	case SFNodeType:
		return SFNode(NullNode)
	case MFBoolType:
		return MFBool{}
	case MFInt32Type:
		return MFInt32{}
	case MFFloatType:
		return MFFloat{}
	case MFTimeType:
		return MFTime{}
	case MFStringType:
		return MFString{}
	case MFVec2fType:
		return MFVec2f{}
	case MFVec3fType:
		return MFVec3f{}
	case MFColorType:
		return MFColor{}
	case MFRotationType:
		return MFRotation{}
	case MFNodeType:
		return MFNode{}
	default:
		return nil
	}
}

// NodeRefs returns the node handles held by an SFNode or MFNode value,
// skipping NULL. Any other value yields nil.
func NodeRefs(v Value) []NodeID {
	switch val := v.(type) {
	case SFNode:
		if NodeID(val).IsNull() {
			return nil
		}
		return []NodeID{NodeID(val)}
	case MFNode:
		out := make([]NodeID, 0, len(val))
		for _, id := range val {
			if !id.IsNull() {
				out = append(out, id)
			}
		}
		return out
	default:
		return nil
	}
}
