package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/x3drouter/internal/engine"
	"github.com/roach88/x3drouter/internal/ir"
)

var bounce = &ir.SceneSpec{
	Name: "bounce",
	Nodes: []ir.NodeDecl{
		{DEF: "TS", Type: "TimeSensor", Fields: map[string]any{"cycleInterval": 4, "loop": true}},
		{DEF: "PI", Type: "PositionInterpolator", Fields: map[string]any{
			"key":      []any{0, 1},
			"keyValue": []any{0, 0, 0, 0, 10, 0},
		}},
		{DEF: "TG", Type: "Transform"},
	},
	Routes: []ir.RouteDecl{
		{FromNode: "TS", FromField: "fraction_changed", ToNode: "PI", ToField: "set_fraction"},
		{FromNode: "PI", FromField: "value_changed", ToNode: "TG", ToField: "set_translation"},
	},
}

func testRun(id string) Run {
	return Run{
		ID:            id,
		SceneName:     "bounce",
		SceneHash:     "hash",
		EngineVersion: ir.EngineVersion,
		IRVersion:     ir.IRVersion,
		LoopPolicy:    "equality",
		MaxDeliveries: engine.DefaultMaxDeliveries,
	}
}

// recordBounce runs three frames of the bounce scene into the store.
func recordBounce(t *testing.T, s *Store, runID string) *Recorder {
	t.Helper()
	ctx := context.Background()

	rec, err := s.StartRun(ctx, testRun(runID))
	require.NoError(t, err)

	e := engine.New(engine.WithTracer(rec))
	require.NoError(t, e.Load(bounce))
	t.Cleanup(e.Unload)

	require.True(t, e.Evaluate(0))
	e.Apply(engine.ExternalInput{Kind: engine.InputSetField, Node: "PI", Field: "keyValue", Value: []any{0, 0, 0, 8, 0, 0}})
	e.Apply(engine.ExternalInput{Kind: engine.InputSetField, Node: "Ghost", Field: "x", Value: 1})
	require.True(t, e.Evaluate(1000))
	require.True(t, e.Evaluate(2000))

	require.NoError(t, rec.Err())
	return rec
}

func TestRecorder_WritesFrames(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	rec := recordBounce(t, s, "run-1")

	assert.Equal(t, "run-1", rec.RunID())
	assert.Equal(t, 3, rec.Frames())

	run, err := s.ReadRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "bounce", run.SceneName)
	assert.Equal(t, 3, run.Frames)

	frames, err := s.ReadFrames(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, frames, 3)
	assert.Equal(t, []uint64{1, 2, 3}, []uint64{frames[0].Frame, frames[1].Frame, frames[2].Frame})
	assert.Equal(t, int64(1000), frames[1].Millis)
	for _, f := range frames {
		assert.Len(t, f.Digest, 64)
	}
}

func TestRecorder_WritesInputsInOrder(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	recordBounce(t, s, "run-1")

	inputs, err := s.ReadInputs(ctx, "run-1", 2)
	require.NoError(t, err)
	require.Len(t, inputs, 2)

	assert.Equal(t, 1, inputs[0].Seq)
	assert.Equal(t, "PI", inputs[0].Input.Node)
	assert.Equal(t, []any{0.0, 0.0, 0.0, 8.0, 0.0, 0.0}, inputs[0].Input.Value, "numbers come back as float64")
	assert.Empty(t, inputs[0].Error)

	assert.Equal(t, 2, inputs[1].Seq)
	assert.Contains(t, inputs[1].Error, "Ghost")

	none, err := s.ReadInputs(ctx, "run-1", 1)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestRecorder_WritesDeliveries(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	recordBounce(t, s, "run-1")

	all, err := s.ReadDeliveries(ctx, "run-1", 0)
	require.NoError(t, err)
	require.NotEmpty(t, all)

	frame2, err := s.ReadDeliveries(ctx, "run-1", 2)
	require.NoError(t, err)
	require.NotEmpty(t, frame2)
	for i, d := range frame2 {
		assert.Equal(t, uint64(2), d.Frame)
		assert.Equal(t, i+1, d.Seq, "seq is dense and ordered")
	}

	first := frame2[0]
	assert.Equal(t, "TS", first.Src)
	assert.Equal(t, "fraction_changed", first.SrcField)
	assert.Equal(t, "PI", first.Dest)
	assert.Equal(t, "SFFloat", first.ValueType)
	assert.Equal(t, "0.25", first.Value)

	var translation *DeliveryRecord
	for i := range frame2 {
		if frame2[i].Dest == "TG" {
			translation = &frame2[i]
			break
		}
	}
	require.NotNil(t, translation)
	assert.Equal(t, "SFVec3f", translation.ValueType)
	assert.Equal(t, "[2,0,0]", translation.Value)
	assert.True(t, translation.Accepted)
}

func TestRecorder_StopsAfterWriteError(t *testing.T) {
	s := createTestStore(t)
	rec := &Recorder{ctx: context.Background(), store: s, runID: "missing-run"}

	rec.FrameStarted(1, 0)
	rec.FrameFinished(&engine.FrameState{Frame: 1})
	require.Error(t, rec.Err(), "frame without a run violates the foreign key")

	first := rec.Err()
	rec.FrameFinished(&engine.FrameState{Frame: 2})
	assert.Same(t, first, rec.Err())
	assert.Zero(t, rec.Frames())
}

func TestWriteFrame_Idempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.WriteRun(ctx, testRun("run-1")))

	fs := &engine.FrameState{Frame: 1, Millis: 10, Digest: "d1", Stats: engine.FrameStats{Inputs: 1}}
	inputs := []InputRecord{{Seq: 1, Input: engine.ExternalInput{Kind: engine.InputViewer, Value: []any{1, 2, 3}}}}
	require.NoError(t, s.WriteFrame(ctx, "run-1", fs, inputs, nil))
	require.NoError(t, s.WriteFrame(ctx, "run-1", fs, inputs, nil))

	got, err := s.ReadInputs(ctx, "run-1", 1)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestReadRun_NotFound(t *testing.T) {
	s := createTestStore(t)
	_, err := s.ReadRun(context.Background(), "nope")
	assert.True(t, errors.Is(err, ErrRunNotFound))

	_, err = s.LatestRun(context.Background())
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestListRuns_OrderedByID(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	empty, err := s.ListRuns(ctx)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	gen := engine.NewFixedGenerator("0190-b", "0190-a", "0190-c")
	for i := 0; i < 3; i++ {
		require.NoError(t, s.WriteRun(ctx, testRun(gen.Generate())))
	}

	runs, err := s.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "0190-a", runs[0].ID)
	assert.Equal(t, "0190-c", runs[2].ID)

	latest, err := s.LatestRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, "0190-c", latest.ID)
}
