// Package db provides SQLite storage for billfetch's fetch history: which
// runs happened, how each source fared, and how much was owed at the time.
package db

// Schema defines the SQL statements to create database tables.
const Schema = `
-- Fetch runs table
-- One row per orchestrator run
CREATE TABLE IF NOT EXISTS fetch_runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    started_at TIMESTAMP NOT NULL,
    forced INTEGER NOT NULL DEFAULT 0,   -- force-refresh flag
    sources INTEGER NOT NULL,            -- sources attempted
    bills INTEGER NOT NULL,              -- bills in the merged result
    failures INTEGER NOT NULL            -- sources with outcome 'failed'
);

CREATE INDEX IF NOT EXISTS idx_fetch_runs_started
    ON fetch_runs(started_at);

-- Fetch results table
-- One row per source per run
CREATE TABLE IF NOT EXISTS fetch_results (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id INTEGER NOT NULL REFERENCES fetch_runs(id),
    source TEXT NOT NULL,
    outcome TEXT NOT NULL,               -- 'cached', 'fetched', 'stale' or 'failed'
    bills INTEGER NOT NULL,
    total_amount TEXT NOT NULL,          -- decimal string, display currency mix ignored
    error TEXT
);

CREATE INDEX IF NOT EXISTS idx_fetch_results_run
    ON fetch_results(run_id);

CREATE INDEX IF NOT EXISTS idx_fetch_results_source
    ON fetch_results(source);
`

// InitializeSchema initializes the database schema.
// It creates all tables if they don't exist.
func InitializeSchema(conn *Connection) error {
	if _, err := conn.Exec(Schema); err != nil {
		return err
	}
	return nil
}
