package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/x3drouter/internal/ir"
	"github.com/roach88/x3drouter/internal/nodes"
)

func catalog() *nodes.Catalog {
	return nodes.Default()
}

func codes(errs []ValidationError) []string {
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Code
	}
	return out
}

func TestValidateValid(t *testing.T) {
	spec := &ir.SceneSpec{
		Nodes: []ir.NodeDecl{
			{DEF: "TG", Type: "Transform", Fields: map[string]any{"translation": []any{1, 2, 3}}},
			{DEF: "TS", Type: "TimeSensor", Fields: map[string]any{"cycleInterval": 2.5}},
			{DEF: "S", Type: "Script", Interface: []ir.InterfaceDecl{
				{Access: ir.AccessField, Type: ir.SFNodeType, Name: "target", Default: "TG"},
				{Access: ir.AccessEventIn, Type: ir.SFFloatType, Name: "tick"},
			}},
		},
		Routes: []ir.RouteDecl{
			{FromNode: "TS", FromField: "fraction_changed", ToNode: "S", ToField: "tick"},
		},
	}

	assert.Empty(t, Validate(spec, catalog()))
}

func TestValidateNodes(t *testing.T) {
	spec := &ir.SceneSpec{
		Nodes: []ir.NodeDecl{
			{DEF: "A", Type: "Group"},
			{DEF: "A", Type: "Group"},
			{DEF: "", Type: "Group"},
			{DEF: "T", Type: "Teapot"},
			{DEF: "TG", Type: "Transform", Fields: map[string]any{
				"nope":        1,
				"translation": "up",
			}},
			{DEF: "TS", Type: "TimeSensor", Fields: map[string]any{
				"cycleInterval":    -1,
				"fraction_changed": 0.5,
			}},
			{DEF: "G", Type: "Group", Fields: map[string]any{"children": []any{"Ghost"}}},
		},
	}

	errs := Validate(spec, catalog())
	assert.Equal(t, []string{
		ErrDuplicateDEF,
		ErrMissingDEF,
		ErrUnknownNodeType,
		ErrUnknownField,
		ErrInvalidFieldValue,
		ErrInvalidFieldValue,
		ErrFieldNotSettable,
		ErrInvalidFieldValue,
	}, codes(errs))

	assert.Equal(t, "nodes.TG.fields.nope", errs[3].Field)
	assert.Equal(t, "nodes.TS.fields.cycleInterval", errs[5].Field)
	assert.Contains(t, errs[7].Message, "Ghost")
}

func TestValidateScriptDefaultsResolveEarlierNodesOnly(t *testing.T) {
	iface := []ir.InterfaceDecl{
		{Access: ir.AccessField, Type: ir.SFNodeType, Name: "target", Default: "Later"},
	}
	spec := &ir.SceneSpec{
		Nodes: []ir.NodeDecl{
			{DEF: "S", Type: "Script", Interface: iface},
			{DEF: "Later", Type: "Transform"},
		},
	}

	errs := Validate(spec, catalog())
	require.Len(t, errs, 1)
	assert.Equal(t, ErrInvalidInterface, errs[0].Code)
	assert.Equal(t, "nodes.S.interface", errs[0].Field)
}

func TestValidateRoutes(t *testing.T) {
	base := []ir.NodeDecl{
		{DEF: "TS", Type: "TimeSensor"},
		{DEF: "PI", Type: "PositionInterpolator"},
		{DEF: "TG", Type: "Transform"},
		{DEF: "Bad", Type: "Teapot"},
	}

	tests := []struct {
		route string
		code  string
	}{
		{"ROUTE TS.fraction_changed TO PI.set_fraction", ""},
		{"ROUTE PI.value_changed TO TG.set_translation", ""},
		{"ROUTE TS.fraction_changed TO Ghost.set_fraction", ErrUnknownRouteNode},
		{"ROUTE TS.nope TO PI.set_fraction", ErrUnknownRouteField},
		{"ROUTE PI.set_fraction TO TS.enabled", ErrRouteDirection},
		{"ROUTE TS.isActive TO TS.fraction_changed", ErrRouteDirection},
		{"ROUTE TS.fraction_changed TO TG.set_translation", ErrRouteTypeMismatch},
		{"ROUTE Bad.x TO TG.set_translation", ""},
	}

	for _, tt := range tests {
		t.Run(tt.route, func(t *testing.T) {
			r, err := ir.ParseRoute(tt.route)
			require.NoError(t, err)

			spec := &ir.SceneSpec{Nodes: base, Routes: []ir.RouteDecl{r}}
			errs := Validate(spec, catalog())

			// The Teapot is always reported once.
			require.NotEmpty(t, errs)
			assert.Equal(t, ErrUnknownNodeType, errs[0].Code)
			if tt.code == "" {
				assert.Len(t, errs, 1, "%v", errs)
				return
			}
			require.Len(t, errs, 2, "%v", errs)
			assert.Equal(t, tt.code, errs[1].Code)
			assert.Equal(t, "routes[0]", errs[1].Field)
			assert.Contains(t, errs[1].Message, tt.route)
		})
	}
}

func TestValidationError_Error(t *testing.T) {
	err := ValidationError{Field: "routes[0]", Message: "type mismatch", Code: ErrRouteTypeMismatch}
	assert.Equal(t, "[E113] routes[0]: type mismatch", err.Error())

	err.Line = 4
	assert.Equal(t, "[E113] line 4: routes[0]: type mismatch", err.Error())
}
