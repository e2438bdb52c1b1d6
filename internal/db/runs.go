package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/gapfollow/internal/followgap"
)

// Run is one controller session.
type Run struct {
	ID        string           `json:"run_id"`
	StartedAt time.Time        `json:"started_at"`
	EndedAt   *time.Time       `json:"ended_at,omitempty"`
	Source    string           `json:"source"`
	Version   string           `json:"version"`
	Params    followgap.Params `json:"params"`
}

// StartRun inserts a run row. An empty ID is replaced with a new UUID,
// which is returned.
func (db *DB) StartRun(ctx context.Context, r Run) (string, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now()
	}
	params, err := json.Marshal(r.Params)
	if err != nil {
		return "", fmt.Errorf("encode params: %w", err)
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO runs (run_id, started_at, source, version, params_json) VALUES (?, ?, ?, ?, ?)`,
		r.ID, r.StartedAt.UnixNano(), r.Source, r.Version, string(params))
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	return r.ID, nil
}

// FinishRun stamps the run's end time.
func (db *DB) FinishRun(ctx context.Context, id string, at time.Time) error {
	res, err := db.ExecContext(ctx, `UPDATE runs SET ended_at = ? WHERE run_id = ?`, at.UnixNano(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s: %w", id, sql.ErrNoRows)
	}
	return nil
}

// GetRun loads one run.
func (db *DB) GetRun(ctx context.Context, id string) (Run, error) {
	var (
		r       Run
		started int64
		ended   sql.NullInt64
		params  string
	)
	err := db.QueryRowContext(ctx,
		`SELECT run_id, started_at, ended_at, source, version, params_json FROM runs WHERE run_id = ?`, id).
		Scan(&r.ID, &started, &ended, &r.Source, &r.Version, &params)
	if err != nil {
		return Run{}, err
	}
	r.StartedAt = time.Unix(0, started)
	if ended.Valid {
		t := time.Unix(0, ended.Int64)
		r.EndedAt = &t
	}
	if err := json.Unmarshal([]byte(params), &r.Params); err != nil {
		return Run{}, fmt.Errorf("decode params of run %s: %w", id, err)
	}
	return r, nil
}
