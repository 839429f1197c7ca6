package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/pigeonworks-llc/billfetch/pkg/browser"
	"github.com/pigeonworks-llc/billfetch/pkg/cache"
	"github.com/pigeonworks-llc/billfetch/pkg/config"
	"github.com/pigeonworks-llc/billfetch/pkg/db"
	"github.com/pigeonworks-llc/billfetch/pkg/orchestrator"
	"github.com/pigeonworks-llc/billfetch/pkg/provider"
	"github.com/pigeonworks-llc/billfetch/pkg/render"
	"github.com/pigeonworks-llc/billfetch/pkg/session"
)

var (
	forceRefresh bool
	onlySources  []string
	outputFormat string
)

// fetchCmd represents the fetch command.
var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch bills from all configured sources",
	Long: `Fetch bills from every configured source and print the merged report.

Sources with a cache entry younger than the TTL are served from cache
and not contacted. A failing source falls back to its last cached data;
with no cache at all it contributes nothing, and the rest of the run is
unaffected. Filtering with --provider does not change cache semantics.

Example:
  billfetch fetch
  billfetch fetch --provider city-tel --force
  billfetch fetch --format json > bills.json`,
	Run: runFetch,
}

func init() {
	// Flags
	fetchCmd.Flags().BoolVar(&forceRefresh, "force", false, "Bypass the cache freshness check and fetch every source")
	fetchCmd.Flags().StringArrayVar(&onlySources, "provider", nil, "Only run the named source (repeatable)")
	fetchCmd.Flags().StringVar(&outputFormat, "format", render.FormatTable, "Output format: table, json or csv")
}

func runFetch(cmd *cobra.Command, args []string) {
	slog.Info("Starting fetch", "force", forceRefresh, "providers", onlySources)

	// Load configuration
	cfg, err := config.Load(getConfigFile())
	exitOnError(err, "failed to load configuration")

	providersCfg, err := config.LoadProviders(cfg.ProvidersFile)
	exitOnError(err, "failed to load providers")

	specs, err := providersCfg.Select(onlySources)
	exitOnError(err, "failed to select providers")
	if len(specs) == 0 {
		fmt.Println("No providers configured")
		return
	}

	// Initialize components
	deps := provider.Deps{
		HTTPClient:   &http.Client{Timeout: 30 * time.Second},
		SessionStore: session.NewStore(cfg.SessionDir()),
		SessionTTL:   cfg.SessionTTL,
		Credentials:  cfg.Credentials,
		NewBrowser: func() (browser.Automation, error) {
			return browser.New(cfg.Browser.Engine, browser.Options{
				Headless:    cfg.Browser.Headless,
				StepTimeout: cfg.Browser.StepTimeout,
			})
		},
	}

	providers, err := provider.Resolve(specs, deps)
	exitOnError(err, "failed to build providers")

	store := cache.New(cfg.CacheDir())
	orch := orchestrator.New(store, cfg.CacheTTL)

	started := time.Now()
	report := orch.FetchAll(context.Background(), providers, forceRefresh)

	recordHistory(cfg, report, started, forceRefresh)

	if err := render.Render(os.Stdout, report.Bills, outputFormat, time.Now()); err != nil {
		exitOnError(err, "failed to render report")
	}

	for _, result := range report.Sources {
		if result.Err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %s: %v (%s)\n", result.Source, result.Err, result.Outcome)
		}
	}

	// An empty report where every source failed is not "no bills due".
	if report.Failed() {
		exitOnError(fmt.Errorf("all %d sources failed with no cached data", len(report.Sources)), "fetch produced no data")
	}

	slog.Info("Fetch complete",
		"bills", len(report.Bills),
		"sources", len(report.Sources),
		"duration", time.Since(started).Round(time.Millisecond),
	)
}

// recordHistory writes the run outcome to the fetch-history database.
// History is advisory; failure to record never fails the run.
func recordHistory(cfg *config.Config, report *orchestrator.Report, started time.Time, forced bool) {
	conn, err := db.Open(cfg.DatabasePath())
	if err != nil {
		slog.Warn("failed to open history database", "error", err)
		return
	}
	defer conn.Close()

	failures := 0
	results := make([]db.ResultRecord, 0, len(report.Sources))
	for _, s := range report.Sources {
		if s.Outcome == orchestrator.OutcomeFailed {
			failures++
		}

		total := decimal.Zero
		for _, b := range report.Bills {
			if b.Source == s.Source {
				total = total.Add(b.Amount)
			}
		}

		errText := ""
		if s.Err != nil {
			errText = s.Err.Error()
		}
		results = append(results, db.ResultRecord{
			Source:      s.Source,
			Outcome:     string(s.Outcome),
			Bills:       s.Bills,
			TotalAmount: total.StringFixed(2),
			Error:       errText,
		})
	}

	_, err = db.NewHistory(conn).RecordRun(db.RunRecord{
		StartedAt: started,
		Forced:    forced,
		Sources:   len(report.Sources),
		Bills:     len(report.Bills),
		Failures:  failures,
	}, results)
	if err != nil {
		slog.Warn("failed to record fetch history", "error", err)
	}
}
