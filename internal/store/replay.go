package store

import (
	"context"
	"fmt"

	"github.com/roach88/x3drouter/internal/engine"
)

// ReplayFrames reads a run back in the form engine.Replay consumes: each
// frame's time, the inputs applied in it and its recorded digest.
//
// Inputs that failed when recorded are included; replay applies them again
// and they fail the same way.
func (s *Store) ReplayFrames(ctx context.Context, runID string) ([]engine.ReplayFrame, error) {
	if _, err := s.ReadRun(ctx, runID); err != nil {
		return nil, fmt.Errorf("replay frames: %w", err)
	}

	frames, err := s.ReadFrames(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("replay frames: %w", err)
	}

	out := make([]engine.ReplayFrame, 0, len(frames))
	for _, f := range frames {
		rf := engine.ReplayFrame{Frame: f.Frame, Millis: f.Millis, Digest: f.Digest}
		if f.Inputs > 0 {
			records, err := s.ReadInputs(ctx, runID, f.Frame)
			if err != nil {
				return nil, fmt.Errorf("replay frames: frame %d: %w", f.Frame, err)
			}
			for _, rec := range records {
				rf.Inputs = append(rf.Inputs, rec.Input)
			}
		}
		out = append(out, rf)
	}
	return out, nil
}
