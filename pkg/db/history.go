package db

import (
	"database/sql"
	"fmt"
	"time"
)

// RunRecord summarizes one orchestrator run.
type RunRecord struct {
	ID        int64
	StartedAt time.Time
	Forced    bool
	Sources   int
	Bills     int
	Failures  int
}

// ResultRecord is one source's outcome within a run.
type ResultRecord struct {
	Source      string
	Outcome     string
	Bills       int
	TotalAmount string
	Error       string
}

// History manages fetch history operations.
type History struct {
	conn *Connection
}

// NewHistory creates a History instance.
func NewHistory(conn *Connection) *History {
	return &History{conn: conn}
}

// RecordRun stores a run and its per-source results atomically and returns
// the run id.
func (h *History) RecordRun(run RunRecord, results []ResultRecord) (int64, error) {
	var runID int64

	err := h.conn.Transaction(func(tx *sql.Tx) error {
		res, err := tx.Exec(`
			INSERT INTO fetch_runs (started_at, forced, sources, bills, failures)
			VALUES (?, ?, ?, ?, ?)
		`, run.StartedAt, run.Forced, run.Sources, run.Bills, run.Failures)
		if err != nil {
			return fmt.Errorf("failed to record run: %w", err)
		}

		runID, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get run id: %w", err)
		}

		for _, r := range results {
			var errText sql.NullString
			if r.Error != "" {
				errText = sql.NullString{String: r.Error, Valid: true}
			}
			if _, err := tx.Exec(`
				INSERT INTO fetch_results (run_id, source, outcome, bills, total_amount, error)
				VALUES (?, ?, ?, ?, ?, ?)
			`, runID, r.Source, r.Outcome, r.Bills, r.TotalAmount, errText); err != nil {
				return fmt.Errorf("failed to record result for %s: %w", r.Source, err)
			}
		}

		return nil
	})
	if err != nil {
		return 0, err
	}

	return runID, nil
}

// Stats aggregates the fetch history for display.
type Stats struct {
	TotalRuns     int
	TotalFetches  int // results with outcome 'fetched'
	CacheHits     int // results with outcome 'cached'
	StaleFallback int
	Failures      int
	LastRun       sql.NullString
}

// GetStats computes aggregate statistics over all recorded runs.
func (h *History) GetStats() (*Stats, error) {
	var stats Stats

	err := h.conn.QueryRow(`
		SELECT COUNT(*), COALESCE(MAX(started_at), '')
		FROM fetch_runs
	`).Scan(&stats.TotalRuns, &stats.LastRun.String)
	if err != nil {
		return nil, fmt.Errorf("failed to count runs: %w", err)
	}
	stats.LastRun.Valid = stats.LastRun.String != ""

	rows, err := h.conn.Query(`
		SELECT outcome, COUNT(*) FROM fetch_results GROUP BY outcome
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to count outcomes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var outcome string
		var count int
		if err := rows.Scan(&outcome, &count); err != nil {
			return nil, fmt.Errorf("failed to scan outcome count: %w", err)
		}
		switch outcome {
		case "fetched":
			stats.TotalFetches = count
		case "cached":
			stats.CacheHits = count
		case "stale":
			stats.StaleFallback = count
		case "failed":
			stats.Failures = count
		}
	}

	return &stats, rows.Err()
}

// RecentRuns returns the most recent runs, newest first.
func (h *History) RecentRuns(limit int) ([]RunRecord, error) {
	rows, err := h.conn.Query(`
		SELECT id, started_at, forced, sources, bills, failures
		FROM fetch_runs
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var run RunRecord
		if err := rows.Scan(&run.ID, &run.StartedAt, &run.Forced, &run.Sources, &run.Bills, &run.Failures); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}
