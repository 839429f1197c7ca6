package db

import (
	"path/filepath"
	"testing"
	"time"
)

func openTestDB(t *testing.T) *Connection {
	t.Helper()
	conn, err := Open(filepath.Join(t.TempDir(), "billfetch.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestRecordRunAndStats(t *testing.T) {
	history := NewHistory(openTestDB(t))

	run := RunRecord{
		StartedAt: time.Date(2024, 2, 15, 8, 0, 0, 0, time.UTC),
		Forced:    false,
		Sources:   3,
		Bills:     5,
		Failures:  1,
	}
	results := []ResultRecord{
		{Source: "metro-power", Outcome: "fetched", Bills: 2, TotalAmount: "104.20"},
		{Source: "first-national", Outcome: "cached", Bills: 3, TotalAmount: "1285.00"},
		{Source: "city-tel", Outcome: "failed", Bills: 0, TotalAmount: "0", Error: "login timeout"},
	}

	runID, err := history.RecordRun(run, results)
	if err != nil {
		t.Fatalf("RecordRun() failed: %v", err)
	}
	if runID == 0 {
		t.Error("RecordRun() returned run id 0")
	}

	stats, err := history.GetStats()
	if err != nil {
		t.Fatalf("GetStats() failed: %v", err)
	}
	if stats.TotalRuns != 1 {
		t.Errorf("TotalRuns = %d, expected 1", stats.TotalRuns)
	}
	if stats.TotalFetches != 1 || stats.CacheHits != 1 || stats.Failures != 1 {
		t.Errorf("outcome counts = %+v", stats)
	}
	if !stats.LastRun.Valid {
		t.Error("LastRun not recorded")
	}
}

func TestStatsEmpty(t *testing.T) {
	history := NewHistory(openTestDB(t))

	stats, err := history.GetStats()
	if err != nil {
		t.Fatalf("GetStats() failed: %v", err)
	}
	if stats.TotalRuns != 0 {
		t.Errorf("TotalRuns = %d, expected 0", stats.TotalRuns)
	}
	if stats.LastRun.Valid {
		t.Error("LastRun valid on an empty database")
	}
}

func TestRecentRuns(t *testing.T) {
	history := NewHistory(openTestDB(t))

	base := time.Date(2024, 2, 15, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		_, err := history.RecordRun(RunRecord{
			StartedAt: base.Add(time.Duration(i) * time.Hour),
			Sources:   1,
		}, nil)
		if err != nil {
			t.Fatal(err)
		}
	}

	runs, err := history.RecentRuns(2)
	if err != nil {
		t.Fatalf("RecentRuns() failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("RecentRuns(2) returned %d runs", len(runs))
	}
	if !runs[0].StartedAt.After(runs[1].StartedAt) {
		t.Error("RecentRuns() not ordered newest first")
	}
}
