package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/x3drouter/internal/queryir"
	"github.com/roach88/x3drouter/internal/querysql"
)

// QueryDeliveries returns the deliveries of a run matching filter, a
// queryir filter expression such as "dest = Ball AND accepted = true".
// An empty filter selects every delivery.
func (s *Store) QueryDeliveries(ctx context.Context, runID, filter string) ([]DeliveryRecord, error) {
	rows, err := s.query(ctx, queryir.Deliveries, runID, filter)
	if err != nil {
		return nil, err
	}
	return collectDeliveries(rows)
}

// QueryFrames returns the frames of a run matching filter, such as
// "overflow = true" or "deliveries > 10".
func (s *Store) QueryFrames(ctx context.Context, runID, filter string) ([]FrameRecord, error) {
	rows, err := s.query(ctx, queryir.Frames, runID, filter)
	if err != nil {
		return nil, err
	}
	return collectFrames(rows)
}

func (s *Store) query(ctx context.Context, table *queryir.Table, runID, filter string) (*sql.Rows, error) {
	pred, err := queryir.ParseFilter(filter)
	if err != nil {
		return nil, fmt.Errorf("parse filter: %w", err)
	}
	query, args, err := querysql.Compile(queryir.Select{From: table, Run: runID, Filter: pred})
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table.Name, err)
	}
	return rows, nil
}

// collectFrames scans rows in queryir.Frames column order and closes them.
func collectFrames(rows *sql.Rows) ([]FrameRecord, error) {
	defer rows.Close()

	frames := []FrameRecord{}
	for rows.Next() {
		var f FrameRecord
		if err := rows.Scan(&f.Frame, &f.Millis, &f.Inputs, &f.Deliveries, &f.Accepted,
			&f.Suppressed, &f.Passes, &f.Overflow, &f.Dropped, &f.Digest); err != nil {
			return nil, fmt.Errorf("scan frame: %w", err)
		}
		frames = append(frames, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate frames: %w", err)
	}
	return frames, nil
}

// collectDeliveries scans rows in queryir.Deliveries column order and
// closes them.
func collectDeliveries(rows *sql.Rows) ([]DeliveryRecord, error) {
	defer rows.Close()

	deliveries := []DeliveryRecord{}
	for rows.Next() {
		var d DeliveryRecord
		if err := rows.Scan(&d.Frame, &d.Seq, &d.Src, &d.SrcField, &d.Dest, &d.DestField,
			&d.ValueType, &d.Value, &d.Accepted); err != nil {
			return nil, fmt.Errorf("scan delivery: %w", err)
		}
		deliveries = append(deliveries, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate deliveries: %w", err)
	}
	return deliveries, nil
}
