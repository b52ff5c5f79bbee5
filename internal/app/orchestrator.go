// Package app wires the ingestion pipeline together: it fans out to the
// configured source adapters, funnels their records through normalization and
// reconciliation, and aggregates one run summary per trigger.
package app

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"city_ingest/internal/apperr"
	"city_ingest/internal/cache"
	"city_ingest/internal/config"
	"city_ingest/internal/db"
	"city_ingest/internal/match"
	"city_ingest/internal/metrics"
	"city_ingest/internal/models"
	"city_ingest/internal/normalize"
	"city_ingest/internal/schedule"
	"city_ingest/internal/source"
)

// Options controls one orchestrator invocation.
type Options struct {
	ClearOldData bool     `json:"clear_old_data"`
	ForceRefresh bool     `json:"force_refresh"`
	Sources      []string `json:"sources,omitempty"` // empty means all
}

// Stats is the read-only view exposed alongside triggering.
type Stats struct {
	TotalsByCategory map[string]int64                `json:"totals_by_category"`
	PerJob           map[string]models.ScheduleState `json:"per_job"`
}

// Orchestrator drives the configured adapters concurrently with isolated
// failure domains and invalidates the read cache once per run.
type Orchestrator struct {
	adapters map[string]source.Adapter
	store    db.Store
	matcher  *match.Matcher
	cache    cache.Invalidator
	board    *schedule.Board
	civicLoc *time.Location
	now      func() time.Time
}

func NewOrchestrator(adapters map[string]source.Adapter, store db.Store, inv cache.Invalidator, board *schedule.Board, civicLoc *time.Location) *Orchestrator {
	return &Orchestrator{
		adapters: adapters,
		store:    store,
		matcher:  match.NewMatcher(store, civicLoc),
		cache:    inv,
		board:    board,
		civicLoc: civicLoc,
		now:      time.Now,
	}
}

// FromConfig builds the orchestrator with one adapter per configured source.
func FromConfig(cfg *config.Config, store db.Store, inv cache.Invalidator, board *schedule.Board) (*Orchestrator, error) {
	civicLoc := cfg.CivicLocation()

	adapters := make(map[string]source.Adapter, len(cfg.Sources))
	for name, sc := range cfg.Sources {
		ad, err := source.New(name, sc, cfg.Logic, civicLoc)
		if err != nil {
			return nil, err
		}
		adapters[name] = ad
	}

	return NewOrchestrator(adapters, store, inv, board, civicLoc), nil
}

// Trigger runs one best-effort ingestion pass and always returns a summary
// for expected error kinds. The returned error is non-nil only for
// configuration mistakes (an unknown source name in opts.Sources).
func (o *Orchestrator) Trigger(ctx context.Context, opts Options) (*models.ScrapeRunSummary, error) {
	selected, err := o.selectAdapters(opts.Sources)
	if err != nil {
		return nil, err
	}

	start := o.now()
	summary := &models.ScrapeRunSummary{
		Errors:    []string{},
		PerSource: make(map[string]*models.SourceResult, len(selected)),
	}

	if opts.ClearOldData {
		// Only records this pipeline ingested; hand-curated seed entries
		// live outside the ingestion domain and are never touched.
		deleted, err := o.store.DeleteMany(ctx, db.RecordFilter{Ingested: db.Bool(true)})
		if err != nil {
			summary.Errors = append(summary.Errors, "clear old data: "+err.Error())
		}
		summary.Deleted = int(deleted)
	}

	var mu sync.Mutex
	g, gCtx := errgroup.WithContext(ctx)

	for name, ad := range selected {
		g.Go(func() error {
			res := o.runSource(gCtx, ad, opts.ForceRefresh)
			mu.Lock()
			summary.PerSource[name] = res
			mu.Unlock()
			// Source failures are already recorded in res; returning an
			// error here would cancel sibling sources.
			return nil
		})
	}
	g.Wait()

	for name, res := range summary.PerSource {
		summary.New += res.New
		summary.Updated += res.Updated
		summary.Errors = append(summary.Errors, res.Errors...)
		slog.Info("source finished",
			"source", name, "new", res.New, "updated", res.Updated, "errors", len(res.Errors))
	}

	// Exactly once, after all per-source work has settled, success or not.
	if err := o.cache.Clear(context.WithoutCancel(ctx)); err != nil {
		summary.Errors = append(summary.Errors, "cache invalidation: "+err.Error())
	}

	elapsed := o.now().Sub(start)
	summary.DurationMs = elapsed.Milliseconds()
	metrics.RunDuration.Observe(elapsed.Seconds())

	slog.Info("ingestion run complete",
		"new", summary.New, "updated", summary.Updated, "deleted", summary.Deleted,
		"errors", len(summary.Errors), "duration_ms", summary.DurationMs)

	return summary, nil
}

// runSource executes one adapter end to end. A fetch failure aborts only
// this source; record-level failures are recorded and skipped.
func (o *Orchestrator) runSource(ctx context.Context, ad source.Adapter, forceRefresh bool) *models.SourceResult {
	res := &models.SourceResult{Errors: []string{}}
	name := ad.Name()

	if ctx.Err() != nil {
		// Caller aborted before this source's fetch was issued.
		res.Errors = append(res.Errors, (&apperr.FetchError{Source: name, Err: ctx.Err()}).Error())
		metrics.IngestErrors.WithLabelValues(name, "fetch").Inc()
		return res
	}

	pages, err := ad.Fetch(ctx, forceRefresh)
	if err != nil {
		res.Errors = append(res.Errors, err.Error())
		metrics.IngestErrors.WithLabelValues(name, "fetch").Inc()
		return res
	}

	records, parseErrs := ad.Parse(pages)
	for _, perr := range parseErrs {
		res.Errors = append(res.Errors, perr.Error())
		metrics.IngestErrors.WithLabelValues(name, "parse").Inc()
	}

	norm := normalize.New(name, o.civicLoc)
	for _, raw := range records {
		if ctx.Err() != nil {
			// Stop mid-batch on caller abort; already-reconciled records
			// stay counted and committed.
			res.Errors = append(res.Errors, (&apperr.FetchError{Source: name, Err: ctx.Err()}).Error())
			break
		}

		rec, err := norm.Normalize(raw)
		if err != nil {
			res.Errors = append(res.Errors, err.Error())
			metrics.IngestErrors.WithLabelValues(name, apperr.Kind(err)).Inc()
			continue
		}

		outcome, err := o.matcher.Reconcile(ctx, rec)
		if err != nil {
			res.Errors = append(res.Errors, err.Error())
			metrics.IngestErrors.WithLabelValues(name, "store").Inc()
			continue
		}

		switch outcome {
		case match.OutcomeNew:
			res.New++
			metrics.RecordsNew.WithLabelValues(name).Inc()
		case match.OutcomeUpdated:
			res.Updated++
			metrics.RecordsUpdated.WithLabelValues(name).Inc()
		}
	}

	return res
}

// Stats reports store totals by category and per-job schedule state. It
// performs no network activity.
func (o *Orchestrator) Stats(ctx context.Context) (*Stats, error) {
	totals := make(map[string]int64)
	for _, cat := range []models.Category{
		models.CategoryEvents, models.CategoryBusinesses, models.CategoryNews,
		models.CategoryCommunity, models.CategorySports, models.CategoryOther,
	} {
		n, err := o.store.CountDocuments(ctx, db.RecordFilter{Category: string(cat)})
		if err != nil {
			return nil, err
		}
		totals[string(cat)] = n
	}

	stats := &Stats{TotalsByCategory: totals}
	if o.board != nil {
		stats.PerJob = o.board.States()
	}
	return stats, nil
}

func (o *Orchestrator) selectAdapters(names []string) (map[string]source.Adapter, error) {
	if len(names) == 0 {
		return o.adapters, nil
	}
	selected := make(map[string]source.Adapter, len(names))
	for _, name := range names {
		ad, ok := o.adapters[name]
		if !ok {
			return nil, &unknownSourceError{name: name}
		}
		selected[name] = ad
	}
	return selected, nil
}

type unknownSourceError struct{ name string }

func (e *unknownSourceError) Error() string {
	return "unknown source: " + e.name
}
