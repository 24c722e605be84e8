package engine

import (
	"context"
	"fmt"
	"log/slog"
)

// Replay and determinism
//
// A frame's outcome depends only on the scene, the clock time and the
// external inputs applied before it: delivery order is FIFO over the
// change queue and insertion order over each source's routes, and no
// step consults wall-clock time. A recording therefore only needs the
// per-frame (time, inputs) pairs. Replaying them into a freshly loaded
// engine reproduces the same ordered deliveries, which FrameDigest
// compares frame by frame.
//
// Scripts are the exception: a script that times out under load may
// diverge. Such frames show up as digest mismatches.

// ReplayFrame is one recorded frame.
type ReplayFrame struct {
	Frame  uint64
	Millis int64
	Inputs []ExternalInput
	// Digest is the recorded digest; empty skips the comparison.
	Digest string
}

// ReplayMismatch reports a frame whose digest differs from the recording.
type ReplayMismatch struct {
	Frame uint64
	Want  string
	Got   string
}

func (m ReplayMismatch) String() string {
	return fmt.Sprintf("frame %d: digest %s, recorded %s", m.Frame, short(m.Got), short(m.Want))
}

func short(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}

// ReplayResult summarizes a replay.
type ReplayResult struct {
	Frames     int
	Mismatches []ReplayMismatch
}

// OK reports whether every compared frame matched.
func (r *ReplayResult) OK() bool {
	return len(r.Mismatches) == 0
}

// Replay re-evaluates recorded frames in order, re-applying their inputs,
// and compares digests. The engine must have digests enabled and hold a
// freshly loaded copy of the recorded scene.
//
// Replay runs on the calling goroutine, which must be the engine
// goroutine. It checks ctx between frames.
func (e *Engine) Replay(ctx context.Context, frames []ReplayFrame) (*ReplayResult, error) {
	if !e.digests {
		return nil, fmt.Errorf("replay: engine has digests disabled")
	}
	res := &ReplayResult{}
	for _, rf := range frames {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		for _, in := range rf.Inputs {
			e.Apply(in)
		}
		if !e.Evaluate(rf.Millis) {
			return res, fmt.Errorf("replay: frame %d at %dms did not advance the clock", rf.Frame, rf.Millis)
		}
		res.Frames++

		fs := e.Snapshot()
		if fs.Frame != rf.Frame {
			return res, fmt.Errorf("replay: evaluated frame %d, recording has frame %d", fs.Frame, rf.Frame)
		}
		if rf.Digest != "" && rf.Digest != fs.Digest {
			m := ReplayMismatch{Frame: rf.Frame, Want: rf.Digest, Got: fs.Digest}
			res.Mismatches = append(res.Mismatches, m)
			slog.Warn("replay mismatch", "frame", rf.Frame, "got", short(fs.Digest), "want", short(rf.Digest))
		}
	}
	return res, nil
}
