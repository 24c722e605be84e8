package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadTestScenario(t *testing.T, name string) *Scenario {
	t.Helper()
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
	require.NoError(t, err)
	return s
}

func TestRun_Chain(t *testing.T) {
	result, err := Run(loadTestScenario(t, "chain"))
	require.NoError(t, err)

	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Empty(t, result.Errors)
	assert.Equal(t, "test-run-chain", result.RunID)

	// 3 frames, 2 inputs, 2 deliveries
	require.Len(t, result.Trace, 7)
	assert.Equal(t, EventFrame, result.Trace[0].Type)
	assert.Equal(t, EventInput, result.Trace[2].Type)
	assert.Equal(t, "Path.set_fraction = 0.25", result.Trace[2].Input)
	assert.Equal(t, EventDelivery, result.Trace[3].Type)
	assert.Equal(t, "Path.value_changed TO Ball.translation", result.Trace[3].Route)
	assert.True(t, result.Trace[3].Accepted)
	assert.False(t, result.Trace[6].Accepted, "same value is not accepted again")

	assert.Equal(t, []any{0.0, 2.5, 0.0}, result.State["Ball"]["translation"])
}

func TestRun_Bounce(t *testing.T) {
	result, err := Run(loadTestScenario(t, "bounce"))
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)

	var millis []int64
	for _, ev := range result.Trace {
		if ev.Type == EventFrame {
			millis = append(millis, ev.Millis)
		}
	}
	assert.Equal(t, []int64{0, 1000, 2000, 3000}, millis, "repeated step spaced by interval_ms")
}

func TestRun_OscillatorOverflow(t *testing.T) {
	result, err := Run(loadTestScenario(t, "oscillator"))
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)

	ev, ok := result.frameEvent(1)
	require.True(t, ok)
	assert.True(t, ev.Overflow)
	assert.Equal(t, 50, ev.Deliveries)
	require.Len(t, result.RuntimeErrors, 1)
}

func TestRun_OncePerFrame(t *testing.T) {
	result, err := Run(loadTestScenario(t, "oscillator_once"))
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, int64(3), result.State["S1"]["v_changed"])
}

func TestRun_ReportsFailedExpectations(t *testing.T) {
	s := loadTestScenario(t, "chain")
	s.Frames[1].Expect = map[string]any{"Ball.translation": []any{0, 3, 0}}
	s.Assertions = []Assertion{
		{Type: AssertDeliveryCount, Route: "Path.value_changed TO Ball.translation", Count: 5},
		{Type: AssertFinalState, Node: "Ghost", Expect: map[string]any{"x": 1}},
	}

	result, err := Run(s)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 3)
	assert.Contains(t, result.Errors[0], "frames[1] (frame 2)")
	assert.Contains(t, result.Errors[0], "Ball.translation = [0 3 0]")
	assert.Contains(t, result.Errors[1], "5 deliveries along Path.value_changed TO Ball.translation")
	assert.Contains(t, result.Errors[2], "node not found")
}

func TestRun_FailedInputIsTraced(t *testing.T) {
	s := loadTestScenario(t, "chain")
	s.Frames[0].Inputs = append(s.Frames[0].Inputs, s.Frames[1].Inputs[0])
	s.Frames[0].Inputs[0].Field = "nope"
	s.Assertions = []Assertion{{Type: AssertErrorCount, Code: "INVALID_FIELD", Frame: 1, Count: 1}}

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)

	require.Equal(t, EventInput, result.Trace[1].Type)
	assert.Equal(t, "Path.nope = 0.25", result.Trace[1].Input)
	assert.Contains(t, result.Trace[1].Error, "PositionInterpolator.nope: no such field")
}

func TestRun_InvalidScene(t *testing.T) {
	path := writeScenario(t, "name: x\ndescription: d\nscene: chain.cue\nframes: [{at: 0}]\nassertions: [{type: error_count}]\n")
	s, err := LoadScenario(path)
	require.NoError(t, err)

	s.Scene = filepath.Join("testdata", "scenarios", "chain.yaml")
	_, err = Run(s)
	assert.ErrorContains(t, err, "failed to compile scene")
}
