// Package queryir is the filter language for recorded traces.
//
// A filter such as
//
//	dest = Ball AND accepted = true AND frame >= 10
//
// parses into a Predicate tree over one trace table. The tree is the
// boundary between the command line and the store: Validate checks every
// field and literal against the table's columns, and querysql compiles
// the tree to parameterized SQL.
//
// Query and Predicate are sealed interfaces using the marker method
// pattern, so backends can switch over them exhaustively.
//
// Supported:
//   - Equals and NotEquals on any column
//   - Compare (<, <=, >, >=) on integer columns
//   - And of any predicates
//
// There is no OR. Run the query twice instead.
package queryir
