package ir

import (
	"fmt"
	"strconv"
)

// NodeID is an arena handle for a node owned by a scene.
// The zero value is the NULL node.
type NodeID uint32

// NullNode is the handle stored by an empty SFNode field.
const NullNode NodeID = 0

// IsNull reports whether the handle refers to no node.
func (id NodeID) IsNull() bool {
	return id == NullNode
}

// String renders the handle as "#<n>", or "NULL".
func (id NodeID) String() string {
	if id == NullNode {
		return "NULL"
	}
	return "#" + strconv.FormatUint(uint64(id), 10)
}

// AccessType is the VRML access mode of a field.
type AccessType int

const (
	// AccessField is an initializeOnly field: settable during setup only.
	AccessField AccessType = iota + 1
	// AccessExposedField is an inputOutput field: storage plus eventIn and eventOut.
	AccessExposedField
	// AccessEventIn is an inputOnly field: a routing destination.
	AccessEventIn
	// AccessEventOut is an outputOnly field: a routing source.
	AccessEventOut
)

var accessNames = map[AccessType]string{
	AccessField:        "field",
	AccessExposedField: "exposedField",
	AccessEventIn:      "eventIn",
	AccessEventOut:     "eventOut",
}

// X3D spellings are accepted as synonyms when parsing.
var accessByName = map[string]AccessType{
	"field":          AccessField,
	"initializeOnly": AccessField,
	"exposedField":   AccessExposedField,
	"inputOutput":    AccessExposedField,
	"eventIn":        AccessEventIn,
	"inputOnly":      AccessEventIn,
	"eventOut":       AccessEventOut,
	"outputOnly":     AccessEventOut,
}

func (a AccessType) String() string {
	if s, ok := accessNames[a]; ok {
		return s
	}
	return fmt.Sprintf("AccessType(%d)", int(a))
}

// CanEmit reports whether the field can be the source of a route.
func (a AccessType) CanEmit() bool {
	return a == AccessEventOut || a == AccessExposedField
}

// CanReceive reports whether the field can be the destination of a route.
func (a AccessType) CanReceive() bool {
	return a == AccessEventIn || a == AccessExposedField
}

// Initializable reports whether the field may be given a value in a scene declaration.
func (a AccessType) Initializable() bool {
	return a == AccessField || a == AccessExposedField
}

// ParseAccessType resolves a VRML97 or X3D access type keyword.
func ParseAccessType(s string) (AccessType, error) {
	if a, ok := accessByName[s]; ok {
		return a, nil
	}
	return 0, fmt.Errorf("unknown access type %q", s)
}

// DataType is the VRML data type of a field.
type DataType int

const (
	SFBoolType DataType = iota + 1
	SFInt32Type
	SFFloatType
	SFDoubleType
	SFTimeType
	SFStringType
	SFVec2fType
	SFVec3fType
	SFColorType
	SFRotationType
	SFNodeType
	MFBoolType
	MFInt32Type
	MFFloatType
	MFTimeType
	MFStringType
	MFVec2fType
	MFVec3fType
	MFColorType
	MFRotationType
	MFNodeType
)

var dataTypeNames = [...]string{
	SFBoolType:     "SFBool",
	SFInt32Type:    "SFInt32",
	SFFloatType:    "SFFloat",
	SFDoubleType:   "SFDouble",
	SFTimeType:     "SFTime",
	SFStringType:   "SFString",
	SFVec2fType:    "SFVec2f",
	SFVec3fType:    "SFVec3f",
	SFColorType:    "SFColor",
	SFRotationType: "SFRotation",
	SFNodeType:     "SFNode",
	MFBoolType:     "MFBool",
	MFInt32Type:    "MFInt32",
	MFFloatType:    "MFFloat",
	MFTimeType:     "MFTime",
	MFStringType:   "MFString",
	MFVec2fType:    "MFVec2f",
	MFVec3fType:    "MFVec3f",
	MFColorType:    "MFColor",
	MFRotationType: "MFRotation",
	MFNodeType:     "MFNode",
}

func (t DataType) String() string {
	if t > 0 && int(t) < len(dataTypeNames) {
		return dataTypeNames[t]
	}
	return fmt.Sprintf("DataType(%d)", int(t))
}

// IsNodeType reports whether values of this type hold node references.
func (t DataType) IsNodeType() bool {
	return t == SFNodeType || t == MFNodeType
}

// IsMulti reports whether the type is a multi-valued (MF) type.
func (t DataType) IsMulti() bool {
	return t >= MFBoolType && t <= MFNodeType
}

// ParseDataType resolves a type name such as "SFVec3f".
func ParseDataType(s string) (DataType, error) {
	for i, name := range dataTypeNames {
		if name != "" && name == s {
			return DataType(i), nil
		}
	}
	return 0, fmt.Errorf("unknown data type %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (a AccessType) MarshalText() ([]byte, error) {
	if _, ok := accessNames[a]; !ok {
		return nil, fmt.Errorf("invalid access type %d", int(a))
	}
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *AccessType) UnmarshalText(b []byte) error {
	v, err := ParseAccessType(string(b))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (t DataType) MarshalText() ([]byte, error) {
	if t <= 0 || int(t) >= len(dataTypeNames) {
		return nil, fmt.Errorf("invalid data type %d", int(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *DataType) UnmarshalText(b []byte) error {
	v, err := ParseDataType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}
