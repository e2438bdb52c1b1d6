package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/banshee-data/gapfollow/internal/controller"
)

// CycleRecord is one row of the cycles table.
type CycleRecord struct {
	RunID          string        `json:"run_id"`
	Seq            uint32        `json:"seq"`
	Stamp          time.Time     `json:"stamp"`
	RecordedAt     time.Time     `json:"recorded_at"`
	Status         string        `json:"status"`
	Error          string        `json:"error,omitempty"`
	TargetIndex    int           `json:"target_index"`
	TargetRange    float64       `json:"target_range"`
	SteeringAngle  float64       `json:"steering_angle"`
	Speed          float64       `json:"speed"`
	GapCount       int           `json:"gap_count"`
	Fallback       string        `json:"fallback,omitempty"`
	Clamped        bool          `json:"clamped"`
	InvalidSamples int           `json:"invalid_samples"`
	MaskedSamples  int           `json:"masked_samples"`
	Duration       time.Duration `json:"duration_ns"`
}

// NewCycleRecord flattens a controller cycle. Decision fields stay zero for
// cycles that produced no command.
func NewCycleRecord(c controller.Cycle, recordedAt time.Time) CycleRecord {
	rec := CycleRecord{
		RunID:      c.RunID,
		Seq:        c.Seq,
		Stamp:      c.Stamp,
		RecordedAt: recordedAt,
		Status:     string(c.Status),
		Duration:   c.Duration,
	}
	if c.Err != nil {
		rec.Error = c.Err.Error()
	}
	if d := c.Decision; d != nil {
		rec.TargetIndex = d.TargetIndex
		rec.TargetRange = d.TargetRange
		rec.SteeringAngle = d.Command.SteeringAngle
		rec.Speed = d.Command.Speed
		rec.GapCount = len(d.Gaps)
		rec.Fallback = d.Fallback.String()
		rec.Clamped = d.Clamped
		rec.InvalidSamples = d.InvalidSamples
		rec.MaskedSamples = d.MaskedSamples
	}
	return rec
}

func nanosOrNull(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

// RecordCycles inserts records in one transaction.
func (db *DB) RecordCycles(ctx context.Context, recs []CycleRecord) error {
	if len(recs) == 0 {
		return nil
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO cycles (
		run_id, seq, stamp, recorded_at, status, error, target_index, target_range,
		steering_angle, speed, gap_count, fallback, clamped, invalid_samples,
		masked_samples, duration_ns
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range recs {
		var errText sql.NullString
		if r.Error != "" {
			errText = sql.NullString{String: r.Error, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx,
			r.RunID, r.Seq, nanosOrNull(r.Stamp), r.RecordedAt.UnixNano(), r.Status, errText,
			r.TargetIndex, r.TargetRange, r.SteeringAngle, r.Speed, r.GapCount, r.Fallback,
			r.Clamped, r.InvalidSamples, r.MaskedSamples, int64(r.Duration),
		); err != nil {
			return fmt.Errorf("insert cycle %s/%d: %w", r.RunID, r.Seq, err)
		}
	}
	return tx.Commit()
}

// RecentCycles returns up to limit cycles of a run, newest first.
func (db *DB) RecentCycles(ctx context.Context, runID string, limit int) ([]CycleRecord, error) {
	rows, err := db.QueryContext(ctx, `SELECT
		run_id, seq, stamp, recorded_at, status, error, target_index, target_range,
		steering_angle, speed, gap_count, fallback, clamped, invalid_samples,
		masked_samples, duration_ns
	FROM cycles WHERE run_id = ? ORDER BY recorded_at DESC, seq DESC LIMIT ?`, runID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CycleRecord
	for rows.Next() {
		var (
			r                 CycleRecord
			stamp             sql.NullInt64
			recorded, durNs   int64
			errText, fallback sql.NullString
		)
		if err := rows.Scan(&r.RunID, &r.Seq, &stamp, &recorded, &r.Status, &errText,
			&r.TargetIndex, &r.TargetRange, &r.SteeringAngle, &r.Speed, &r.GapCount,
			&fallback, &r.Clamped, &r.InvalidSamples, &r.MaskedSamples, &durNs); err != nil {
			return nil, err
		}
		if stamp.Valid {
			r.Stamp = time.Unix(0, stamp.Int64)
		}
		r.RecordedAt = time.Unix(0, recorded)
		r.Error = errText.String
		r.Fallback = fallback.String
		r.Duration = time.Duration(durNs)
		out = append(out, r)
	}
	return out, rows.Err()
}

// StatusCounts returns the number of cycles per status for a run.
func (db *DB) StatusCounts(ctx context.Context, runID string) (map[string]int, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM cycles WHERE run_id = ? GROUP BY status`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := map[string]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}
