package nodes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/x3drouter/internal/ir"
)

func TestBooleanFilter(t *testing.T) {
	n, sink := liveNode(t, "BooleanFilter", nil)

	require.NoError(t, n.SetValueByName("set_boolean", ir.SFBool(true)))
	assert.Equal(t, []string{"inputTrue", "inputNegate"}, sink.changes)
	assert.Equal(t, ir.SFBool(false), valueOf(t, n, "inputNegate"))

	sink.nextFrame(1, n)
	require.NoError(t, n.SetValueByName("set_boolean", ir.SFBool(false)))
	assert.Equal(t, []string{"inputFalse", "inputNegate"}, sink.changes)
	assert.Equal(t, ir.SFBool(true), valueOf(t, n, "inputNegate"))
}

func TestBooleanToggle(t *testing.T) {
	n, sink := liveNode(t, "BooleanToggle", nil)

	for i, want := range []bool{true, false, true} {
		sink.nextFrame(float64(i), n)
		require.NoError(t, n.SetValueByName("set_boolean", ir.SFBool(true)))
		assert.Equal(t, ir.SFBool(want), valueOf(t, n, "toggle"))
	}

	sink.nextFrame(5, n)
	require.NoError(t, n.SetValueByName("set_boolean", ir.SFBool(false)))
	assert.Empty(t, sink.changes, "FALSE does not toggle")
}

func TestBooleanTriggerFiresEveryFrame(t *testing.T) {
	n, sink := liveNode(t, "BooleanTrigger", nil)

	for i := range 3 {
		sink.nextFrame(float64(i), n)
		require.NoError(t, n.SetValueByName("set_triggerTime", ir.SFTime(i)))
		assert.Equal(t, []string{"triggerTrue"}, sink.changes, "frame %d", i)
	}
}

func TestIntegerTrigger(t *testing.T) {
	n, sink := liveNode(t, "IntegerTrigger", map[string]ir.Value{
		"integerKey": ir.SFInt32(7),
	})

	require.NoError(t, n.SetValueByName("set_boolean", ir.SFBool(false)))
	assert.Empty(t, sink.changes)

	require.NoError(t, n.SetValueByName("set_boolean", ir.SFBool(true)))
	assert.Equal(t, ir.SFInt32(7), valueOf(t, n, "triggerValue"))
}

func TestTimeTrigger(t *testing.T) {
	n, sink := liveNode(t, "TimeTrigger", nil)

	sink.nextFrame(4.5, n)
	require.NoError(t, n.SetValueByName("set_boolean", ir.SFBool(false)))
	assert.Equal(t, ir.SFTime(4.5), valueOf(t, n, "triggerTime"))
}

func TestIntegerSequencer(t *testing.T) {
	n, sink := liveNode(t, "IntegerSequencer", map[string]ir.Value{
		"key":      ir.MFFloat{0, 0.5, 1},
		"keyValue": ir.MFInt32{10, 20, 30},
	})
	assert.Equal(t, ir.SFInt32(10), valueOf(t, n, "value_changed"))

	step := func(field string, v ir.Value) ir.Value {
		sink.nextFrame(sink.now+1, n)
		require.NoError(t, n.SetValueByName(field, v))
		return valueOf(t, n, "value_changed")
	}

	assert.Equal(t, ir.SFInt32(20), step("set_fraction", ir.SFFloat(0.6)))
	assert.Equal(t, ir.SFInt32(30), step("next", ir.SFBool(true)))
	assert.Equal(t, ir.SFInt32(10), step("next", ir.SFBool(true)), "wraps forward")
	assert.Equal(t, ir.SFInt32(30), step("previous", ir.SFBool(true)), "wraps back")
	assert.Equal(t, ir.SFInt32(30), step("next", ir.SFBool(false)), "FALSE ignored")
	assert.Equal(t, ir.SFInt32(10), step("set_fraction", ir.SFFloat(-3)))
}

func TestBooleanSequencer(t *testing.T) {
	n, _ := liveNode(t, "BooleanSequencer", map[string]ir.Value{
		"key":      ir.MFFloat{0, 0.5},
		"keyValue": ir.MFBool{false, true},
	})

	require.NoError(t, n.SetValueByName("set_fraction", ir.SFFloat(0.5)))
	assert.Equal(t, ir.SFBool(true), valueOf(t, n, "value_changed"))
}
