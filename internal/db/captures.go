package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/sort.station/internal/detection"
	"github.com/banshee-data/sort.station/internal/station"
)

// DefaultRecentLimit bounds Recent* queries when the caller passes no limit.
const DefaultRecentLimit = 50

// CaptureRecord is one stored capture transaction.
type CaptureRecord struct {
	CaptureID    string        `json:"capture_id"`
	Seq          int           `json:"seq"`
	Label        string        `json:"label"`
	Confidence   float64       `json:"confidence"`
	Selected     bool          `json:"selected"`
	Command      string        `json:"command"`
	Delivered    bool          `json:"delivered"`
	SnapshotPath string        `json:"snapshot_path,omitempty"`
	Detections   detection.Set `json:"detections"`
	CapturedAt   time.Time     `json:"captured_at"`
}

// FlagRecord is one stored misclassification flag.
type FlagRecord struct {
	FlagID    string    `json:"flag_id"`
	Seq       int       `json:"seq"`
	Label     string    `json:"label"`
	Path      string    `json:"path"`
	FlaggedAt time.Time `json:"flagged_at"`
}

var _ station.History = (*DB)(nil)

// RecordCapture appends a capture to the history.
func (db *DB) RecordCapture(ctx context.Context, ev station.CaptureEvent) error {
	dets := ev.Detections
	if dets == nil {
		dets = detection.Set{}
	}
	detJSON, err := json.Marshal(dets)
	if err != nil {
		return fmt.Errorf("marshal detections: %w", err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO captures (
			capture_id, seq, label, confidence, selected, command, delivered,
			snapshot_path, detections_json, captured_unix_nanos
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), ev.Seq, ev.Label, ev.Confidence, ev.Selected, ev.Command,
		ev.Delivered, ev.SnapshotPath, string(detJSON), ev.At.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert capture %d: %w", ev.Seq, err)
	}
	return nil
}

// RecordFlag appends a misclassification flag to the history.
func (db *DB) RecordFlag(ctx context.Context, ev station.FlagEvent) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO misclassification_flags (flag_id, seq, label, path, flagged_unix_nanos)
		VALUES (?, ?, ?, ?, ?)`,
		uuid.NewString(), ev.Seq, ev.Label, ev.Path, ev.At.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert flag %d: %w", ev.Seq, err)
	}
	return nil
}

// RecentCaptures returns up to limit captures, newest first.
func (db *DB) RecentCaptures(ctx context.Context, limit int) ([]CaptureRecord, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	rows, err := db.QueryContext(ctx, `
		SELECT capture_id, seq, label, confidence, selected, command, delivered,
			snapshot_path, detections_json, captured_unix_nanos
		FROM captures
		ORDER BY captured_unix_nanos DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query captures: %w", err)
	}
	defer rows.Close()

	records := []CaptureRecord{}
	for rows.Next() {
		var (
			rec     CaptureRecord
			detJSON string
			nanos   int64
		)
		if err := rows.Scan(&rec.CaptureID, &rec.Seq, &rec.Label, &rec.Confidence, &rec.Selected,
			&rec.Command, &rec.Delivered, &rec.SnapshotPath, &detJSON, &nanos); err != nil {
			return nil, fmt.Errorf("scan capture: %w", err)
		}
		if err := json.Unmarshal([]byte(detJSON), &rec.Detections); err != nil {
			return nil, fmt.Errorf("decode detections for capture %s: %w", rec.CaptureID, err)
		}
		rec.CapturedAt = time.Unix(0, nanos).UTC()
		records = append(records, rec)
	}
	return records, rows.Err()
}

// RecentFlags returns up to limit flags, newest first.
func (db *DB) RecentFlags(ctx context.Context, limit int) ([]FlagRecord, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	rows, err := db.QueryContext(ctx, `
		SELECT flag_id, seq, label, path, flagged_unix_nanos
		FROM misclassification_flags
		ORDER BY flagged_unix_nanos DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query flags: %w", err)
	}
	defer rows.Close()

	records := []FlagRecord{}
	for rows.Next() {
		var (
			rec   FlagRecord
			nanos int64
		)
		if err := rows.Scan(&rec.FlagID, &rec.Seq, &rec.Label, &rec.Path, &nanos); err != nil {
			return nil, fmt.Errorf("scan flag: %w", err)
		}
		rec.FlaggedAt = time.Unix(0, nanos).UTC()
		records = append(records, rec)
	}
	return records, rows.Err()
}

// LabelCount is a historical per-label total across every session.
type LabelCount struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// LabelCounts sums captures per label over the whole history, most frequent
// first.
func (db *DB) LabelCounts(ctx context.Context) ([]LabelCount, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT label, COUNT(*) AS n
		FROM captures
		GROUP BY label
		ORDER BY n DESC, label ASC`)
	if err != nil {
		return nil, fmt.Errorf("query label counts: %w", err)
	}
	defer rows.Close()

	counts := []LabelCount{}
	for rows.Next() {
		var c LabelCount
		if err := rows.Scan(&c.Label, &c.Count); err != nil {
			return nil, fmt.Errorf("scan label count: %w", err)
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

// CountCaptures returns the number of stored captures.
func (db *DB) CountCaptures(ctx context.Context) (int, error) {
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM captures`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count captures: %w", err)
	}
	return n, nil
}
