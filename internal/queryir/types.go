package queryir

import "fmt"

// Query represents an abstract query over one trace table.
//
// This is a sealed interface - only types in this package implement it.
type Query interface {
	queryNode() // Marker method - seals interface to this package
}

// Predicate represents a filter condition.
//
// This is a sealed interface - only types in this package implement it.
type Predicate interface {
	predicateNode() // Marker method - seals interface to this package
}

// Select reads the rows of one table that belong to a run and satisfy
// Filter, in the table's stable order.
//
// Example:
//
//	Select{
//	  From:   Deliveries,
//	  Run:    "0190...",
//	  Filter: And{Predicates: []Predicate{
//	    Equals{Field: "dest", Value: "Ball"},
//	    Equals{Field: "accepted", Value: true},
//	  }},
//	}
//
// Translates to SQL:
//
//	SELECT frame, seq, ... FROM deliveries
//	WHERE run_id = ? AND (dest = ? AND accepted = ?)
//	ORDER BY frame ASC, seq ASC
type Select struct {
	From   *Table
	Run    string    // required; rows of other runs are never returned
	Filter Predicate // nil = every row of the run
}

func (Select) queryNode() {}

// Equals matches rows whose field equals a literal.
// Value is a string, int64 or bool.
type Equals struct {
	Field string
	Value any
}

func (Equals) predicateNode() {}

// NotEquals matches rows whose field differs from a literal.
type NotEquals struct {
	Field string
	Value any
}

func (NotEquals) predicateNode() {}

// Op is an ordering operator.
type Op string

const (
	OpLess         Op = "<"
	OpLessEqual    Op = "<="
	OpGreater      Op = ">"
	OpGreaterEqual Op = ">="
)

// Compare matches rows whose integer field is ordered against a literal.
type Compare struct {
	Field string
	Op    Op
	Value int64
}

func (Compare) predicateNode() {}

// And represents a conjunction of predicates (all must be true).
// An empty And is always true.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// Kind is the type of a column.
type Kind int

const (
	KindText Kind = iota
	KindInt
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindInt:
		return "integer"
	case KindBool:
		return "boolean"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Column is one queryable column of a table.
type Column struct {
	Name string
	Kind Kind
}

// Table describes a trace table. Columns are listed in select order;
// OrderBy is the table's stable order.
type Table struct {
	Name    string
	Columns []Column
	OrderBy []string
}

// Column returns the named column.
func (t *Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// ColumnNames lists the table's columns in select order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// The trace tables.
var (
	Frames = &Table{
		Name: "frames",
		Columns: []Column{
			{"frame", KindInt},
			{"millis", KindInt},
			{"inputs", KindInt},
			{"deliveries", KindInt},
			{"accepted", KindInt},
			{"suppressed", KindInt},
			{"passes", KindInt},
			{"overflow", KindBool},
			{"dropped", KindInt},
			{"digest", KindText},
		},
		OrderBy: []string{"frame"},
	}

	Deliveries = &Table{
		Name: "deliveries",
		Columns: []Column{
			{"frame", KindInt},
			{"seq", KindInt},
			{"src", KindText},
			{"src_field", KindText},
			{"dest", KindText},
			{"dest_field", KindText},
			{"value_type", KindText},
			{"value", KindText},
			{"accepted", KindBool},
		},
		OrderBy: []string{"frame", "seq"},
	}
)
