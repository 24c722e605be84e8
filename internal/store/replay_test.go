package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/x3drouter/internal/engine"
)

func TestReplayFrames_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	recordBounce(t, s, "run-1")

	frames, err := s.ReplayFrames(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, frames, 3)
	assert.Empty(t, frames[0].Inputs)
	assert.Len(t, frames[1].Inputs, 2, "failed inputs are replayed too")
	assert.Equal(t, int64(2000), frames[2].Millis)

	e := engine.New(engine.WithDigests())
	require.NoError(t, e.Load(bounce))
	defer e.Unload()

	res, err := e.Replay(ctx, frames)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Frames)
	assert.True(t, res.OK(), "mismatches: %v", res.Mismatches)
}

func TestReplayFrames_DetectsChangedScene(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	recordBounce(t, s, "run-1")

	frames, err := s.ReplayFrames(ctx, "run-1")
	require.NoError(t, err)

	changed := *bounce
	changed.Routes = changed.Routes[:1]

	e := engine.New(engine.WithDigests())
	require.NoError(t, e.Load(&changed))
	defer e.Unload()

	res, err := e.Replay(ctx, frames)
	require.NoError(t, err)
	assert.False(t, res.OK())
}

func TestReplayFrames_UnknownRun(t *testing.T) {
	s := createTestStore(t)
	_, err := s.ReplayFrames(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrRunNotFound)
}
