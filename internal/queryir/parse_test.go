package queryir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFilter(t *testing.T) {
	tests := []struct {
		name   string
		filter string
		want   Predicate
	}{
		{"empty", "  ", nil},
		{"equals", "dest = Ball", Equals{Field: "dest", Value: "Ball"}},
		{"double equals", "dest==Ball", Equals{Field: "dest", Value: "Ball"}},
		{"not equals", "accepted != true", NotEquals{Field: "accepted", Value: true}},
		{"integer", "frame >= 10", Compare{Field: "frame", Op: OpGreaterEqual, Value: 10}},
		{"less", "seq<3", Compare{Field: "seq", Op: OpLess, Value: 3}},
		{"quoted keeps text", `value = "1"`, Equals{Field: "value", Value: "1"}},
		{"quoted and", "dest = 'Sand and Sea'", Equals{Field: "dest", Value: "Sand and Sea"}},
		{"conjunction", "dest = Ball and frame > 2 AND accepted = false", And{Predicates: []Predicate{
			Equals{Field: "dest", Value: "Ball"},
			Compare{Field: "frame", Op: OpGreater, Value: 2},
			Equals{Field: "accepted", Value: false},
		}}},
		{"word containing and", "dest = Band", Equals{Field: "dest", Value: "Band"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFilter(tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseFilter_Errors(t *testing.T) {
	tests := []struct {
		filter string
		want   string
	}{
		{"dest Ball", "no operator"},
		{"= Ball", "missing field"},
		{"dest =", "missing value"},
		{"frame > ten", "needs an integer"},
		{"dest = Ball AND", "empty condition"},
		{"AND dest = Ball", "empty condition"},
	}
	for _, tt := range tests {
		t.Run(tt.filter, func(t *testing.T) {
			_, err := ParseFilter(tt.filter)
			assert.ErrorContains(t, err, tt.want)
		})
	}
}
