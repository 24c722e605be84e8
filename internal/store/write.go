package store

import (
	"context"
	"fmt"

	"github.com/roach88/x3drouter/internal/engine"
)

// Run describes one recorded engine run.
type Run struct {
	ID            string `json:"id"`
	SceneName     string `json:"scene_name"`
	SceneHash     string `json:"scene_hash"`
	EngineVersion string `json:"engine_version"`
	IRVersion     string `json:"ir_version"`
	LoopPolicy    string `json:"loop_policy"`
	MaxDeliveries int    `json:"max_deliveries"`

	// Frames is filled in by the read functions.
	Frames int `json:"frames"`
}

// InputRecord is one external input applied during a frame.
type InputRecord struct {
	Seq   int
	Input engine.ExternalInput
	Error string
}

// WriteRun inserts a run record.
// Uses ON CONFLICT(id) DO NOTHING for idempotency - duplicate IDs are silently ignored.
func (s *Store) WriteRun(ctx context.Context, run Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs
		(id, scene_name, scene_hash, engine_version, ir_version, loop_policy, max_deliveries)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		run.ID,
		run.SceneName,
		run.SceneHash,
		run.EngineVersion,
		run.IRVersion,
		run.LoopPolicy,
		run.MaxDeliveries,
	)
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}
	return nil
}

// WriteFrame stores a finished frame with its inputs and deliveries in one
// transaction. Rewriting a frame that is already stored is a no-op.
//
// Note: The run referenced by runID must exist (foreign key constraint).
func (s *Store) WriteFrame(ctx context.Context, runID string, fs *engine.FrameState, inputs []InputRecord, deliveries []engine.Delivery) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write frame: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	st := fs.Stats
	result, err := tx.ExecContext(ctx, `
		INSERT INTO frames
		(run_id, frame, millis, inputs, deliveries, accepted, suppressed, passes, overflow, dropped, digest)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, frame) DO NOTHING
	`,
		runID,
		fs.Frame,
		fs.Millis,
		st.Inputs,
		st.Deliveries,
		st.Accepted,
		st.Suppressed,
		st.Passes,
		boolInt(st.Overflow),
		st.Dropped,
		fs.Digest,
	)
	if err != nil {
		return fmt.Errorf("write frame %d: %w", fs.Frame, err)
	}
	if n, err := result.RowsAffected(); err != nil {
		return fmt.Errorf("write frame %d: rows affected: %w", fs.Frame, err)
	} else if n == 0 {
		return nil
	}

	for _, in := range inputs {
		text, err := marshalInput(in.Input)
		if err != nil {
			return fmt.Errorf("write frame %d: %w", fs.Frame, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO inputs (run_id, frame, seq, input, error)
			VALUES (?, ?, ?, ?, ?)
		`, runID, fs.Frame, in.Seq, text, in.Error); err != nil {
			return fmt.Errorf("write frame %d: input %d: %w", fs.Frame, in.Seq, err)
		}
	}

	for _, d := range deliveries {
		value, err := marshalValue(d.Value)
		if err != nil {
			return fmt.Errorf("write frame %d: delivery %d: %w", fs.Frame, d.Seq, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO deliveries
			(run_id, frame, seq, src, src_field, dest, dest_field, value_type, value, accepted)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			runID, fs.Frame, d.Seq,
			d.Src, d.SrcField, d.Dest, d.DestField,
			d.Value.Type().String(), value, boolInt(d.Accepted),
		); err != nil {
			return fmt.Errorf("write frame %d: delivery %d: %w", fs.Frame, d.Seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write frame %d: commit: %w", fs.Frame, err)
	}
	return nil
}
