package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrRunNotFound is returned when a run ID is not in the store.
var ErrRunNotFound = errors.New("run not found")

// FrameRecord is a stored frame summary.
type FrameRecord struct {
	Frame      uint64 `json:"frame"`
	Millis     int64  `json:"millis"`
	Inputs     int    `json:"inputs"`
	Deliveries int    `json:"deliveries"`
	Accepted   int    `json:"accepted"`
	Suppressed int    `json:"suppressed"`
	Passes     int    `json:"passes"`
	Overflow   bool   `json:"overflow"`
	Dropped    int    `json:"dropped"`
	Digest     string `json:"digest"`
}

// DeliveryRecord is a stored route delivery. Value is canonical JSON.
type DeliveryRecord struct {
	Frame     uint64 `json:"frame"`
	Seq       int    `json:"seq"`
	Src       string `json:"src"`
	SrcField  string `json:"src_field"`
	Dest      string `json:"dest"`
	DestField string `json:"dest_field"`
	ValueType string `json:"value_type"`
	Value     string `json:"value"`
	Accepted  bool   `json:"accepted"`
}

const runColumns = `
	r.id, r.scene_name, r.scene_hash, r.engine_version, r.ir_version, r.loop_policy, r.max_deliveries,
	(SELECT COUNT(*) FROM frames f WHERE f.run_id = r.id)`

// ListRuns returns all recorded runs. UUIDv7 run IDs sort by creation,
// so ordering by ID lists runs oldest first.
//
// Returns an empty slice (not nil) if the store holds no runs.
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+runColumns+`
		FROM runs r
		ORDER BY r.id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ReadRun retrieves a single run by ID.
// Returns ErrRunNotFound if not found.
func (s *Store) ReadRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+runColumns+`
		FROM runs r
		WHERE r.id = ?
	`, id)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return run, err
}

// LatestRun returns the most recently created run.
// Returns ErrRunNotFound if the store is empty.
func (s *Store) LatestRun(ctx context.Context) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+runColumns+`
		FROM runs r
		ORDER BY r.id COLLATE BINARY DESC
		LIMIT 1
	`)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrRunNotFound
	}
	return run, err
}

// ReadFrames returns the frames of a run ordered by frame number.
func (s *Store) ReadFrames(ctx context.Context, runID string) ([]FrameRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT frame, millis, inputs, deliveries, accepted, suppressed, passes, overflow, dropped, digest
		FROM frames
		WHERE run_id = ?
		ORDER BY frame ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query frames: %w", err)
	}
	return collectFrames(rows)
}

// ReadInputs returns the inputs of one frame in the order they were applied.
func (s *Store) ReadInputs(ctx context.Context, runID string, frame uint64) ([]InputRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, input, error
		FROM inputs
		WHERE run_id = ? AND frame = ?
		ORDER BY seq ASC
	`, runID, frame)
	if err != nil {
		return nil, fmt.Errorf("query inputs: %w", err)
	}
	defer rows.Close()

	inputs := []InputRecord{}
	for rows.Next() {
		var (
			rec  InputRecord
			text string
		)
		if err := rows.Scan(&rec.Seq, &text, &rec.Error); err != nil {
			return nil, fmt.Errorf("scan input: %w", err)
		}
		rec.Input, err = unmarshalInput(text)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate inputs: %w", err)
	}
	return inputs, nil
}

// ReadDeliveries returns the deliveries of a run ordered by frame and seq.
// A zero frame selects every frame.
func (s *Store) ReadDeliveries(ctx context.Context, runID string, frame uint64) ([]DeliveryRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT frame, seq, src, src_field, dest, dest_field, value_type, value, accepted
		FROM deliveries
		WHERE run_id = ? AND (? = 0 OR frame = ?)
		ORDER BY frame ASC, seq ASC
	`, runID, frame, frame)
	if err != nil {
		return nil, fmt.Errorf("query deliveries: %w", err)
	}
	return collectDeliveries(rows)
}

// scanner abstracts *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var run Run
	err := sc.Scan(&run.ID, &run.SceneName, &run.SceneHash, &run.EngineVersion,
		&run.IRVersion, &run.LoopPolicy, &run.MaxDeliveries, &run.Frames)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	return run, nil
}
