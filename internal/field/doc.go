// Package field implements the per-node-type field registry.
//
// A Schema is the static field table of one node type: field names resolve
// to stable integer indices in O(1), each index carries its access type and
// data type, and the indices holding node references are precomputed so
// graph walks never need to inspect every field.
//
// Schemas are built once with a Builder and are read-only afterwards. All
// instances of a node type share the same *Schema. Script nodes are the one
// exception: each Script instance declares its own interface and therefore
// gets its own Schema, built with the same Builder.
//
// Aliasing:
// An exposedField named "foo" occupies a single index that is also
// reachable as "set_foo" and "foo_changed". The aliases live in the lookup
// table; there is no runtime name rewriting.
//
// Errors:
// Unknown names and out-of-range indices produce *InvalidFieldError.
// Values that violate a field's type or constraint produce
// *InvalidFieldValueError. Neither ever panics.
package field
