// Package catalog records reconstruction runs in a sqlite database.
package catalog

import (
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Run statuses
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// schema.sql creates the runs, run_outputs and slice_metrics tables.
//
//go:embed schema.sql
var schemaSQL string

// Catalog is a run database
type Catalog struct {
	db *sql.DB
}

// Run is one invocation of the reconstruction pipeline
type Run struct {
	RunID       string
	StartedAt   int64
	FinishedAt  int64
	Status      string
	Acquisition string
	Background  string
	Geometry    string
	Algorithm   string
	Iterations  int
	Subsets     int
	Slices      int
	ConfigYAML  string
	Error       string
}

// Output is a file produced by a run
type Output struct {
	Kind string
	Path string
}

// SliceRecord holds the metrics of one reconstructed slice
type SliceRecord struct {
	Slice    int
	Residual float64
	PeakRow  int
	PeakCol  int
}

// Open opens or creates the catalog at path and applies the schema.
func Open(path string) (*Catalog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply catalog schema: %w", err)
	}
	return &Catalog{db: db}, nil
}

// Close closes the database.
func (c *Catalog) Close() error {
	return c.db.Close()
}

// StartRun inserts run with status running. RunID and StartedAt are filled
// in when empty.
func (c *Catalog) StartRun(run *Run) error {
	if run.RunID == "" {
		run.RunID = uuid.New().String()
	}
	if run.StartedAt == 0 {
		run.StartedAt = time.Now().UnixNano()
	}
	run.Status = StatusRunning

	_, err := c.db.Exec(`
		INSERT INTO runs (
			run_id, started_at, status, acquisition, background,
			geometry, algorithm, iterations, subsets, config_yaml
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.StartedAt, run.Status, run.Acquisition, run.Background,
		run.Geometry, run.Algorithm, run.Iterations, run.Subsets, run.ConfigYAML,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// FinishRun marks a run as succeeded, or failed when runErr is non-nil.
func (c *Catalog) FinishRun(runID string, slices int, runErr error) error {
	status, msg := StatusSucceeded, ""
	if runErr != nil {
		status, msg = StatusFailed, runErr.Error()
	}
	res, err := c.db.Exec(`
		UPDATE runs SET finished_at = ?, status = ?, slices = ?, error = ?
		WHERE run_id = ?`,
		time.Now().UnixNano(), status, slices, msg, runID,
	)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s not found", runID)
	}
	return nil
}

// AddOutput records a file written by a run.
func (c *Catalog) AddOutput(runID, kind, path string) error {
	_, err := c.db.Exec(`INSERT INTO run_outputs (run_id, kind, path) VALUES (?, ?, ?)`, runID, kind, path)
	if err != nil {
		return fmt.Errorf("failed to insert output: %w", err)
	}
	return nil
}

// AddSliceMetrics records per-slice metrics in one transaction.
func (c *Catalog) AddSliceMetrics(runID string, records []SliceRecord) error {
	tx, err := c.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO slice_metrics (run_id, slice, residual, peak_row, peak_col)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.Exec(runID, r.Slice, r.Residual, r.PeakRow, r.PeakCol); err != nil {
			return fmt.Errorf("failed to insert metrics for slice %d: %w", r.Slice, err)
		}
	}
	return tx.Commit()
}

const runColumns = `run_id, started_at, COALESCE(finished_at, 0), status,
	COALESCE(acquisition, ''), COALESCE(background, ''), COALESCE(geometry, ''),
	COALESCE(algorithm, ''), COALESCE(iterations, 0), COALESCE(subsets, 0), slices,
	COALESCE(config_yaml, ''), COALESCE(error, '')`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*Run, error) {
	var r Run
	err := s.Scan(&r.RunID, &r.StartedAt, &r.FinishedAt, &r.Status,
		&r.Acquisition, &r.Background, &r.Geometry,
		&r.Algorithm, &r.Iterations, &r.Subsets, &r.Slices,
		&r.ConfigYAML, &r.Error)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// GetRun returns one run by ID.
func (c *Catalog) GetRun(runID string) (*Run, error) {
	row := c.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE run_id = ?`, runID)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %s not found", runID)
	}
	return run, err
}

// ListRuns returns the most recent runs first, at most limit of them.
func (c *Catalog) ListRuns(limit int) ([]*Run, error) {
	rows, err := c.db.Query(`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Outputs returns the files recorded for a run in insertion order.
func (c *Catalog) Outputs(runID string) ([]Output, error) {
	rows, err := c.db.Query(`SELECT kind, path FROM run_outputs WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Output
	for rows.Next() {
		var o Output
		if err := rows.Scan(&o.Kind, &o.Path); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// SliceMetrics returns the metrics recorded for a run ordered by slice.
func (c *Catalog) SliceMetrics(runID string) ([]SliceRecord, error) {
	rows, err := c.db.Query(`
		SELECT slice, residual, peak_row, peak_col FROM slice_metrics
		WHERE run_id = ? ORDER BY slice`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SliceRecord
	for rows.Next() {
		var r SliceRecord
		if err := rows.Scan(&r.Slice, &r.Residual, &r.PeakRow, &r.PeakCol); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
