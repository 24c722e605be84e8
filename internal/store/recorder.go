package store

import (
	"context"
	"log/slog"

	"github.com/roach88/x3drouter/internal/engine"
)

// Recorder is an engine.Tracer that writes every frame to the store.
//
// Tracer callbacks cannot fail, so the first write error is kept and
// returned by Err; later frames are not written.
type Recorder struct {
	ctx   context.Context
	store *Store
	runID string

	inputs     []InputRecord
	deliveries []engine.Delivery
	frames     int
	err        error
}

var _ engine.Tracer = (*Recorder)(nil)

// StartRun writes the run record and returns a recorder for it.
func (s *Store) StartRun(ctx context.Context, run Run) (*Recorder, error) {
	if err := s.WriteRun(ctx, run); err != nil {
		return nil, err
	}
	return &Recorder{ctx: ctx, store: s, runID: run.ID}, nil
}

// RunID returns the ID of the run being recorded.
func (r *Recorder) RunID() string { return r.runID }

// Frames returns the number of frames written so far.
func (r *Recorder) Frames() int { return r.frames }

// Err returns the first write error.
func (r *Recorder) Err() error { return r.err }

func (r *Recorder) FrameStarted(uint64, int64) {
	r.inputs = r.inputs[:0]
	r.deliveries = r.deliveries[:0]
}

func (r *Recorder) InputApplied(_ uint64, in engine.ExternalInput, err error) {
	rec := InputRecord{Seq: len(r.inputs) + 1, Input: in}
	if err != nil {
		rec.Error = err.Error()
	}
	r.inputs = append(r.inputs, rec)
}

func (r *Recorder) Delivered(_ uint64, d engine.Delivery) {
	r.deliveries = append(r.deliveries, d)
}

func (r *Recorder) FrameFinished(fs *engine.FrameState) {
	if r.err != nil {
		return
	}
	if err := r.store.WriteFrame(r.ctx, r.runID, fs, r.inputs, r.deliveries); err != nil {
		slog.Error("trace recording stopped", "run", r.runID, "frame", fs.Frame, "error", err)
		r.err = err
		return
	}
	r.frames++
}
