package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/pigeonworks-llc/billfetch/pkg/config"
	"github.com/pigeonworks-llc/billfetch/pkg/db"
)

// statsCmd represents the stats command.
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Display fetch statistics",
	Long: `Display statistics about past fetch runs.

Shows:
- Total number of runs
- Live fetches, cache hits, stale fallbacks and failures per source result
- The most recent runs

Example:
  billfetch stats`,
	Run: runStats,
}

func runStats(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(getConfigFile())
	exitOnError(err, "failed to load configuration")

	dbPath := cfg.DatabasePath()
	slog.Debug("Opening database", "path", dbPath)

	conn, err := db.Open(dbPath)
	exitOnError(err, "failed to open database")
	defer conn.Close()

	history := db.NewHistory(conn)

	stats, err := history.GetStats()
	exitOnError(err, "failed to get statistics")

	fmt.Println("\n=== Fetch Statistics ===")
	fmt.Printf("Total runs:       %d\n", stats.TotalRuns)
	fmt.Printf("Live fetches:     %d\n", stats.TotalFetches)
	fmt.Printf("Cache hits:       %d\n", stats.CacheHits)
	fmt.Printf("Stale fallbacks:  %d\n", stats.StaleFallback)
	fmt.Printf("Failures:         %d\n", stats.Failures)

	if stats.LastRun.Valid {
		fmt.Printf("Last run:         %s\n", stats.LastRun.String)
	} else {
		fmt.Printf("Last run:         (never)\n")
	}

	runs, err := history.RecentRuns(5)
	exitOnError(err, "failed to list recent runs")

	if len(runs) > 0 {
		fmt.Println("\nRecent runs:")
		for _, run := range runs {
			forced := ""
			if run.Forced {
				forced = " (forced)"
			}
			fmt.Printf("  %s  sources=%d bills=%d failures=%d%s\n",
				run.StartedAt.Format("2006-01-02 15:04"),
				run.Sources, run.Bills, run.Failures, forced)
		}
	}

	fmt.Println()
}
