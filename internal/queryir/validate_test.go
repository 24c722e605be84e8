package queryir

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidate_Accepts(t *testing.T) {
	valid := []Select{
		{From: Deliveries, Run: "r"},
		{From: Deliveries, Run: "r", Filter: Equals{Field: "accepted", Value: true}},
		{From: Deliveries, Run: "r", Filter: Equals{Field: "value", Value: int64(3)}},
		{From: Frames, Run: "r", Filter: And{Predicates: []Predicate{
			Compare{Field: "deliveries", Op: OpGreater, Value: 5},
			NotEquals{Field: "digest", Value: "abc"},
		}}},
		{From: Frames, Run: "r", Filter: And{}},
	}
	for _, sel := range valid {
		assert.NoError(t, Validate(sel), "%+v", sel)
	}
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name string
		sel  Select
		want string
	}{
		{"no table", Select{Run: "r"}, "no table"},
		{"no run", Select{From: Deliveries}, "no run"},
		{"unknown field", Select{From: Deliveries, Run: "r", Filter: Equals{Field: "route", Value: "x"}}, `unknown field "route"`},
		{"text for bool", Select{From: Deliveries, Run: "r", Filter: Equals{Field: "accepted", Value: "yes"}}, "is boolean"},
		{"text for int", Select{From: Frames, Run: "r", Filter: Equals{Field: "frame", Value: "one"}}, "is integer"},
		{"compare text", Select{From: Deliveries, Run: "r", Filter: Compare{Field: "dest", Op: OpLess, Value: 1}}, "needs an integer field"},
		{"bad op", Select{From: Frames, Run: "r", Filter: Compare{Field: "frame", Op: "~", Value: 1}}, "unknown operator"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorContains(t, Validate(tt.sel), tt.want)
		})
	}
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	err := Validate(Select{From: Deliveries, Run: "r", Filter: And{Predicates: []Predicate{
		Equals{Field: "nope", Value: "x"},
		Equals{Field: "accepted", Value: int64(1)},
	}}})
	assert.ErrorContains(t, err, `unknown field "nope"`)
	assert.ErrorContains(t, err, `field "accepted" is boolean`)
}

func TestTable_Column(t *testing.T) {
	col, ok := Deliveries.Column("dest_field")
	assert.True(t, ok)
	assert.Equal(t, KindText, col.Kind)

	_, ok = Frames.Column("src")
	assert.False(t, ok)
	assert.Equal(t, "integer", KindInt.String())
}
