package models

import "time"

// Category is the fixed listing category enumeration. Free-text hints from
// sources are mapped onto it by the normalizer; anything unmapped lands in
// CategoryOther.
type Category string

const (
	CategoryEvents     Category = "events"
	CategoryBusinesses Category = "businesses"
	CategoryNews       Category = "news"
	CategoryCommunity  Category = "community"
	CategorySports     Category = "sports"
	CategoryOther      Category = "other"
)

// RawRecord is a source adapter's output before normalization: free text as
// scraped. It lives only for the duration of one adapter pass. Adapters whose
// upstream already carries structured times (the ICS feed) set StartAt/EndAt
// directly; otherwise the normalizer extracts them from DateTimeText.
type RawRecord struct {
	Title        string
	DateTimeText string
	LocationText string
	CategoryHint string
	Description  string
	SourceURL    string
	StartAt      *time.Time
	EndAt        *time.Time
}

// NormalizedRecord is the canonical shape produced by the normalizer. It is
// never persisted directly; the matcher merges it into an ExistingRecord.
type NormalizedRecord struct {
	Title       string
	StartAt     time.Time
	EndAt       *time.Time
	Location    string
	Category    Category
	SourceName  string
	SourceURL   string
	Description string
}

// ExistingRecord is the persisted counterpart, owned by the store.
// CuratedFields lists field names an admin has edited by hand; the matcher
// never overwrites those during a merge.
type ExistingRecord struct {
	ID            string     `bson:"_id,omitempty"`
	Fingerprint   string     `bson:"fingerprint"`
	Title         string     `bson:"title"`
	StartAt       time.Time  `bson:"start_at"`
	EndAt         *time.Time `bson:"end_at,omitempty"`
	Location      string     `bson:"location,omitempty"`
	Category      string     `bson:"category"`
	SourceName    string     `bson:"source_name"`
	SourceURL     string     `bson:"source_url"`
	Description   string     `bson:"description,omitempty"`
	Ingested      bool       `bson:"ingested"`
	CuratedFields []string   `bson:"curated_fields,omitempty"`
	FirstSeen     int64      `bson:"first_seen"`
	LastSeen      int64      `bson:"last_seen"`
}

// Curated reports whether the named field is admin-edited.
func (r *ExistingRecord) Curated(field string) bool {
	for _, f := range r.CuratedFields {
		if f == field {
			return true
		}
	}
	return false
}

// SourceResult is one source's contribution to a run summary.
type SourceResult struct {
	New     int      `json:"new"`
	Updated int      `json:"updated"`
	Errors  []string `json:"errors"`
}

// ScrapeRunSummary aggregates one orchestrator invocation across all sources.
// Immutable after the orchestrator returns it.
type ScrapeRunSummary struct {
	New        int                      `json:"new"`
	Updated    int                      `json:"updated"`
	Deleted    int                      `json:"deleted"`
	Errors     []string                 `json:"errors"`
	DurationMs int64                    `json:"duration_ms"`
	PerSource  map[string]*SourceResult `json:"per_source"`
}

// ScheduleState is the per-job recurring-run state. Persisted across runs;
// only the scheduler board mutates it.
type ScheduleState struct {
	Enabled   bool       `json:"enabled"`
	LastRunAt *time.Time `json:"last_run_at,omitempty"`
	NextRunAt *time.Time `json:"next_run_at,omitempty"`
}
