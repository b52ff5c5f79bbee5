// Package source holds the per-source scraping adapters. Each source is one
// Adapter variant behind a common fetch/parse contract, so adding a source
// never touches the orchestrator.
package source

import (
	"context"
	"errors"
	"fmt"
	"time"

	"city_ingest/internal/config"
	"city_ingest/internal/fetch"
	"city_ingest/internal/models"
)

var errDisallowed = errors.New("disallowed by robots.txt")

// Page is one fetched payload. Adapters that front paginated sources resolve
// pagination inside Fetch and return the flattened page list; Index marks
// listing pages that Parse should treat differently from detail pages.
type Page struct {
	URL   string
	Body  []byte
	Index bool
}

// Adapter is the polymorphic capability one source implements.
//
// Fetch fails with a *apperr.FetchError on network failure, non-success
// status or timeout. forceRefresh bypasses any conditional-fetch shortcut the
// adapter keeps (e.g. ETag caching).
//
// Parse is tolerant: a malformed fragment is skipped and reported in the
// returned error slice instead of aborting the whole batch.
type Adapter interface {
	Name() string
	Fetch(ctx context.Context, forceRefresh bool) ([]Page, error)
	Parse(pages []Page) ([]models.RawRecord, []error)
}

// New builds the adapter variant for a configured source.
func New(name string, cfg config.SourceConfig, logic config.LogicConfig, civicLoc *time.Location) (Adapter, error) {
	f := fetch.NewFetcher(
		time.Duration(logic.TimeoutSec)*time.Second,
		logic.UserAgent,
		time.Duration(logic.DelayMS)*time.Millisecond,
	)

	switch cfg.Type {
	case "citycalendar":
		return NewCityCalendar(name, cfg, f), nil
	case "bizdirectory":
		return NewBizDirectory(name, cfg, f), nil
	case "newsfeed":
		return NewNewsFeed(name, cfg, logic), nil
	case "icsfeed":
		return NewICSFeed(name, cfg, logic, civicLoc), nil
	default:
		return nil, fmt.Errorf("unknown source type: %s", cfg.Type)
	}
}
