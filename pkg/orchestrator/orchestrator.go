// Package orchestrator runs all configured bill sources concurrently,
// deciding per source whether to trust cached data, fetch live, or fall
// back to a stale cache entry. One source failing never affects another.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pigeonworks-llc/billfetch/pkg/cache"
	"github.com/pigeonworks-llc/billfetch/pkg/model"
	"github.com/pigeonworks-llc/billfetch/pkg/provider"
)

// Outcome describes how one source's contribution was obtained.
type Outcome string

const (
	// OutcomeCached: a fresh cache entry was used, the source was not fetched.
	OutcomeCached Outcome = "cached"
	// OutcomeFetched: a live fetch succeeded and was written through.
	OutcomeFetched Outcome = "fetched"
	// OutcomeStale: the live fetch failed and an expired cache entry was used.
	OutcomeStale Outcome = "stale"
	// OutcomeFailed: the live fetch failed with nothing cached to fall back on.
	OutcomeFailed Outcome = "failed"
)

// SourceResult is one source's contribution to a run.
type SourceResult struct {
	Source  string
	Outcome Outcome
	Bills   int
	Err     error
}

// Report is the result of one orchestration run. Bills is always usable,
// possibly partial; Sources lets the caller tell an all-failed run apart
// from a genuinely empty one.
type Report struct {
	Bills   []model.Bill
	Sources []SourceResult
}

// Failed reports whether every source failed with no data to fall back on.
func (r *Report) Failed() bool {
	if len(r.Sources) == 0 {
		return false
	}
	for _, s := range r.Sources {
		if s.Outcome != OutcomeFailed {
			return false
		}
	}
	return true
}

// Orchestrator coordinates cache checks, live fetches, and fallback across
// a set of providers.
type Orchestrator struct {
	cache *cache.Store
	ttl   time.Duration
	now   func() time.Time
}

// New creates an Orchestrator over the given cache store. ttl <= 0 uses the
// cache default of 24h.
func New(store *cache.Store, ttl time.Duration) *Orchestrator {
	if ttl <= 0 {
		ttl = cache.DefaultTTL
	}
	return &Orchestrator{
		cache: store,
		ttl:   ttl,
		now:   time.Now,
	}
}

// FetchAll collects bills from all providers concurrently and returns them
// merged and sorted ascending by due date. forceRefresh bypasses the
// freshness check (every source is fetched live) but stale fallback still
// applies when a forced fetch fails.
func (o *Orchestrator) FetchAll(ctx context.Context, providers []provider.Provider, forceRefresh bool) *Report {
	results := make([]SourceResult, len(providers))
	contributions := make([][]model.Bill, len(providers))

	g, gctx := errgroup.WithContext(ctx)
	for i, p := range providers {
		g.Go(func() error {
			bills, result := o.fetchOne(gctx, p, forceRefresh)
			contributions[i] = bills
			results[i] = result
			// Failures are recorded per source, never returned: one source
			// must not cancel the others.
			return nil
		})
	}
	// Workers only ever return nil; failures live in results.
	_ = g.Wait()

	report := &Report{Sources: results}
	for _, bills := range contributions {
		report.Bills = append(report.Bills, bills...)
	}
	model.SortByDueDate(report.Bills)

	now := o.now()
	for i := range report.Bills {
		report.Bills[i] = model.WithStatus(report.Bills[i], now)
	}

	return report
}

// fetchOne runs the per-source decision sequence: fresh cache, live fetch
// with write-through, stale fallback, empty contribution.
func (o *Orchestrator) fetchOne(ctx context.Context, p provider.Provider, forceRefresh bool) (bills []model.Bill, result SourceResult) {
	source := p.Name()
	result = SourceResult{Source: source}

	if !forceRefresh {
		if cached, ok := o.cache.ReadFresh(source, o.ttl); ok {
			slog.Debug("using fresh cache", "source", source, "bills", len(cached))
			result.Outcome = OutcomeCached
			result.Bills = len(cached)
			return cached, result
		}
	}

	fetched, err := o.fetch(ctx, p)
	if err == nil {
		if werr := o.cache.Write(source, fetched); werr != nil {
			slog.Warn("failed to write cache", "source", source, "error", werr)
		}
		slog.Info("fetched", "source", source, "bills", len(fetched))
		result.Outcome = OutcomeFetched
		result.Bills = len(fetched)
		return fetched, result
	}

	result.Err = err

	if stale, ok := o.cache.ReadStale(source); ok {
		slog.Warn("fetch failed, using stale cache", "source", source, "error", err)
		result.Outcome = OutcomeStale
		result.Bills = len(stale)
		return stale, result
	}

	slog.Warn("fetch failed with no cache to fall back on", "source", source, "error", err)
	result.Outcome = OutcomeFailed
	return nil, result
}

// fetch invokes the provider, converting a panic into an ordinary error so
// a misbehaving provider cannot take down the run.
func (o *Orchestrator) fetch(ctx context.Context, p provider.Provider) (bills []model.Bill, err error) {
	defer func() {
		if r := recover(); r != nil {
			bills = nil
			err = fmt.Errorf("provider panicked: %v", r)
		}
	}()
	return p.Fetch(ctx)
}
