package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/x3drouter/internal/ir"
)

func routeScene(t *testing.T, routes ...string) *ir.SceneSpec {
	t.Helper()
	spec := &ir.SceneSpec{}
	for _, s := range routes {
		r, err := ir.ParseRoute(s)
		require.NoError(t, err)
		spec.Routes = append(spec.Routes, r)
	}
	return spec
}

// TestAnalyzeCycles_Empty tests that empty input produces no warnings.
func TestAnalyzeCycles_Empty(t *testing.T) {
	assert.Empty(t, AnalyzeCycles(nil))
	assert.Empty(t, AnalyzeCycles(&ir.SceneSpec{}))
}

// TestAnalyzeCycles_DAG tests that an acyclic route graph produces no warnings.
func TestAnalyzeCycles_DAG(t *testing.T) {
	spec := routeScene(t,
		"ROUTE TS.fraction_changed TO PI.set_fraction",
		"ROUTE PI.value_changed TO TG.set_translation",
		"ROUTE TS.fraction_changed TO CI.set_fraction",
		"ROUTE CI.value_changed TO M.set_diffuseColor",
	)
	assert.Empty(t, AnalyzeCycles(spec))
}

func TestAnalyzeCycles_SelfLoop(t *testing.T) {
	spec := routeScene(t, "ROUTE S.out TO S.in")

	warnings := AnalyzeCycles(spec)
	require.Len(t, warnings, 1)
	assert.Equal(t, []string{"S", "S"}, warnings[0].Path)
	assert.Equal(t, []string{"ROUTE S.out TO S.in"}, warnings[0].Routes)
	assert.Equal(t, "warning", warnings[0].Level)
	assert.Contains(t, warnings[0].Message, "S → S")
}

func TestAnalyzeCycles_TwoNodeCycle(t *testing.T) {
	spec := routeScene(t,
		"ROUTE S1.v_changed TO S2.set_v",
		"ROUTE S2.v_changed TO S1.set_v",
	)

	warnings := AnalyzeCycles(spec)
	require.Len(t, warnings, 1)
	assert.Equal(t, []string{"S1", "S2", "S1"}, warnings[0].Path)
	assert.Len(t, warnings[0].Routes, 2)
	assert.Equal(t, "Route cycle detected: S1 → S2 → S1", warnings[0].Message)
}

func TestAnalyzeCycles_ThreeNodeCycle(t *testing.T) {
	spec := routeScene(t,
		"ROUTE A.out TO B.in",
		"ROUTE B.out TO C.in",
		"ROUTE C.out TO A.in",
	)

	warnings := AnalyzeCycles(spec)
	require.Len(t, warnings, 1)
	assert.Equal(t, []string{"A", "B", "C", "A"}, warnings[0].Path)
}

func TestAnalyzeCycles_MultipleIndependentCycles(t *testing.T) {
	spec := routeScene(t,
		"ROUTE X.out TO Y.in",
		"ROUTE Y.out TO X.in",
		"ROUTE A.out TO A.in",
		"ROUTE Y.out TO Z.in",
	)

	warnings := AnalyzeCycles(spec)
	require.Len(t, warnings, 2)
	assert.Equal(t, []string{"A", "A"}, warnings[0].Path, "ordered by first DEF")
	assert.Equal(t, []string{"X", "Y", "X"}, warnings[1].Path)
	assert.NotContains(t, warnings[1].Routes, "ROUTE Y.out TO Z.in")
}

func TestAnalyzeCycles_ParallelRoutesCollapse(t *testing.T) {
	spec := routeScene(t,
		"ROUTE A.x TO B.x",
		"ROUTE A.y TO B.y",
		"ROUTE B.z TO A.z",
	)

	warnings := AnalyzeCycles(spec)
	require.Len(t, warnings, 1)
	assert.Equal(t, []string{"A", "B", "A"}, warnings[0].Path)
	assert.Len(t, warnings[0].Routes, 3)
}

func TestTarjanSCC_Deterministic(t *testing.T) {
	graph := routeGraph{
		"C": {"A"},
		"A": {"B"},
		"B": {"C"},
		"D": {},
	}
	first := tarjanSCC(graph)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, tarjanSCC(graph))
	}
	assert.Contains(t, first, []string{"A", "B", "C"})
	assert.Contains(t, first, []string{"D"})
}
