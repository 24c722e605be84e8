package field

import (
	"errors"
	"fmt"

	"github.com/roach88/x3drouter/internal/ir"
)

// InvalidFieldError reports an unknown field name, an out-of-range index,
// or a field used in a role its access type does not allow.
type InvalidFieldError struct {
	// NodeType is the schema type name, e.g. "Transform".
	NodeType string

	// Name is the field name when the lookup was by name.
	Name string

	// Index is the field index when the lookup was by index, else -1.
	Index int

	// Reason is a short explanation.
	Reason string
}

// Error implements the error interface.
func (e *InvalidFieldError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("invalid field %s.%s: %s", e.NodeType, e.Name, e.Reason)
	}
	return fmt.Sprintf("invalid field %s[%d]: %s", e.NodeType, e.Index, e.Reason)
}

// InvalidFieldValueError reports a value that does not satisfy a field's
// data type or constraint.
type InvalidFieldValueError struct {
	NodeType string
	Field    string
	Type     ir.DataType
	Reason   string

	// Err is the underlying constraint error, if any.
	Err error
}

// Error implements the error interface.
func (e *InvalidFieldValueError) Error() string {
	return fmt.Sprintf("invalid value for %s.%s (%s): %s", e.NodeType, e.Field, e.Type, e.Reason)
}

// Unwrap returns the underlying constraint error.
func (e *InvalidFieldValueError) Unwrap() error {
	return e.Err
}

// IsInvalidField reports whether err is an *InvalidFieldError.
// Uses errors.As to handle wrapped errors.
func IsInvalidField(err error) bool {
	var fe *InvalidFieldError
	return errors.As(err, &fe)
}

// IsInvalidFieldValue reports whether err is an *InvalidFieldValueError.
// Uses errors.As to handle wrapped errors.
func IsInvalidFieldValue(err error) bool {
	var ve *InvalidFieldValueError
	return errors.As(err, &ve)
}

func unknownName(typeName, name string) *InvalidFieldError {
	return &InvalidFieldError{NodeType: typeName, Name: name, Index: -1, Reason: "no such field"}
}

func badIndex(typeName string, index int) *InvalidFieldError {
	return &InvalidFieldError{NodeType: typeName, Index: index, Reason: "index out of range"}
}
