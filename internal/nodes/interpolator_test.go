package nodes

import (
	"testing"

	"github.com/chewxy/math32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/x3drouter/internal/field"
	"github.com/roach88/x3drouter/internal/ir"
)

func TestPositionInterpolator(t *testing.T) {
	n, sink := liveNode(t, "PositionInterpolator", map[string]ir.Value{
		"key":      ir.MFFloat{0, 0.5, 1},
		"keyValue": ir.MFVec3f{{0, 0, 0}, {10, 0, 0}, {10, 10, 0}},
	})
	assert.Equal(t, ir.SFVec3f{0, 0, 0}, valueOf(t, n, "value_changed"), "evaluated during setup")
	assert.Empty(t, sink.changes, "setup is silent")

	cases := []struct {
		fraction float32
		want     ir.SFVec3f
	}{
		{0.25, ir.SFVec3f{5, 0, 0}},
		{0.5, ir.SFVec3f{10, 0, 0}},
		{0.75, ir.SFVec3f{10, 5, 0}},
		{-1, ir.SFVec3f{0, 0, 0}},
		{2, ir.SFVec3f{10, 10, 0}},
	}
	for _, tc := range cases {
		sink.nextFrame(1, n)
		require.NoError(t, n.SetValueByName("set_fraction", ir.SFFloat(tc.fraction)))
		got := valueOf(t, n, "value_changed").(ir.SFVec3f)
		for i := range got {
			assert.InDelta(t, tc.want[i], got[i], 1e-5, "fraction %v", tc.fraction)
		}
	}
}

func TestInterpolatorEmitsOnlyOnChange(t *testing.T) {
	n, sink := liveNode(t, "ScalarInterpolator", map[string]ir.Value{
		"key":      ir.MFFloat{0, 1},
		"keyValue": ir.MFFloat{0, 1},
	})

	require.NoError(t, n.SetValueByName("set_fraction", ir.SFFloat(0.5)))
	assert.Equal(t, []string{"value_changed"}, sink.changes)
	assert.Equal(t, ir.SFFloat(0.5), valueOf(t, n, "value_changed"))

	sink.changes = nil
	require.NoError(t, n.SetValueByName("set_fraction", ir.SFFloat(0.5)))
	assert.Empty(t, sink.changes, "repeat within a frame is suppressed")
}

func TestInterpolatorKeyChangeReevaluates(t *testing.T) {
	n, sink := liveNode(t, "ScalarInterpolator", map[string]ir.Value{
		"key":      ir.MFFloat{0, 1},
		"keyValue": ir.MFFloat{0, 1},
	})
	require.NoError(t, n.SetValueByName("set_fraction", ir.SFFloat(0.5)))
	assert.Equal(t, ir.SFFloat(0.5), valueOf(t, n, "value_changed"))

	sink.nextFrame(1, n)
	require.NoError(t, n.SetValueByName("keyValue", ir.MFFloat{0, 4}))
	assert.Equal(t, ir.SFFloat(2), valueOf(t, n, "value_changed"))
	assert.Equal(t, []string{"keyValue", "value_changed"}, sink.changes)
}

func TestInterpolatorEmptyTables(t *testing.T) {
	n, sink := liveNode(t, "ScalarInterpolator", map[string]ir.Value{
		"key":      ir.MFFloat{0, 1},
		"keyValue": ir.MFFloat{3},
	})

	require.NoError(t, n.SetValueByName("set_fraction", ir.SFFloat(0.5)))
	assert.Equal(t, []string(nil), sink.changes, "fewer keyValues than keys")
}

func TestInterpolatorRejectsNonFiniteFraction(t *testing.T) {
	n, sink := liveNode(t, "ScalarInterpolator", map[string]ir.Value{
		"key":      ir.MFFloat{0, 1},
		"keyValue": ir.MFFloat{0, 1},
	})
	require.NoError(t, n.SetValueByName("set_fraction", ir.SFFloat(0.5)))
	sink.changes = nil

	for _, f := range []float32{math32.NaN(), math32.Inf(1), math32.Inf(-1)} {
		err := n.SetValueByName("set_fraction", ir.SFFloat(f))
		var ve *field.InvalidFieldValueError
		require.ErrorAs(t, err, &ve, "fraction %v", f)
		assert.Equal(t, "non-finite value", ve.Reason)
	}
	assert.Empty(t, sink.changes)
	assert.Equal(t, ir.SFFloat(0.5), valueOf(t, n, "value_changed"))

	ip := newScalarInterpolator().(*interpolator)
	ip.rebuild(n)
	assert.Nil(t, ip.eval(math32.NaN()))
	assert.Nil(t, ip.eval(math32.Inf(1)))
	assert.Equal(t, ir.SFFloat(0.25), ip.eval(0.25))
}

func TestColorInterpolatorUsesHSV(t *testing.T) {
	n, _ := liveNode(t, "ColorInterpolator", map[string]ir.Value{
		"key":      ir.MFFloat{0, 1},
		"keyValue": ir.MFColor{{1, 0, 0}, {0, 0, 1}},
	})
	require.NoError(t, n.SetValueByName("set_fraction", ir.SFFloat(0.5)))

	got := valueOf(t, n, "value_changed").(ir.SFColor)
	want := ir.SFColor{1, 0, 1}
	for i := range got {
		assert.InDelta(t, want[i], got[i], 1e-5)
	}
}

func TestOrientationInterpolatorSlerp(t *testing.T) {
	n, _ := liveNode(t, "OrientationInterpolator", map[string]ir.Value{
		"key":      ir.MFFloat{0, 1},
		"keyValue": ir.MFRotation{{0, 1, 0, 0}, {0, 1, 0, math32.Pi / 2}},
	})
	require.NoError(t, n.SetValueByName("set_fraction", ir.SFFloat(0.5)))

	got := valueOf(t, n, "value_changed").(ir.SFRotation)
	assert.InDelta(t, 0, got[0], 1e-5)
	assert.InDelta(t, 1, got[1], 1e-5)
	assert.InDelta(t, 0, got[2], 1e-5)
	assert.InDelta(t, math32.Pi/4, got[3], 1e-5)
}

func TestCoordinateInterpolator(t *testing.T) {
	n, sink := liveNode(t, "CoordinateInterpolator", map[string]ir.Value{
		"key": ir.MFFloat{0, 1},
		"keyValue": ir.MFVec3f{
			{0, 0, 0}, {1, 1, 1},
			{2, 0, 0}, {3, 3, 3},
		},
	})
	assert.Equal(t, ir.MFVec3f{{0, 0, 0}, {1, 1, 1}}, valueOf(t, n, "value_changed"))

	sink.nextFrame(1, n)
	require.NoError(t, n.SetValueByName("set_fraction", ir.SFFloat(0.5)))
	assert.Equal(t, ir.MFVec3f{{1, 0, 0}, {2, 2, 2}}, valueOf(t, n, "value_changed"))
}

func TestSlerpKeepsAxisAtZeroAngle(t *testing.T) {
	r := slerp(ir.SFRotation{1, 0, 0, 0}, ir.SFRotation{1, 0, 0, 0}, 0.5)
	assert.Equal(t, ir.SFRotation{1, 0, 0, 0}, r)
}
