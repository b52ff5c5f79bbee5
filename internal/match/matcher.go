// Package match computes dedup fingerprints and reconciles normalized
// records against the store.
package match

import (
	"context"
	"strings"
	"time"

	"city_ingest/internal/apperr"
	"city_ingest/internal/db"
	"city_ingest/internal/fetch"
	"city_ingest/internal/models"
)

// Outcome reports what Reconcile did with a record.
type Outcome int

const (
	OutcomeNew Outcome = iota
	OutcomeUpdated
	OutcomeUnchanged
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNew:
		return "new"
	case OutcomeUpdated:
		return "updated"
	default:
		return "unchanged"
	}
}

// Matcher reconciles records via the store's upsert-by-fingerprint semantics.
// It holds no locks of its own; concurrent fingerprint collisions are the
// store's unique constraint to resolve.
type Matcher struct {
	store    db.Store
	civicLoc *time.Location
	now      func() time.Time
}

func NewMatcher(store db.Store, civicLoc *time.Location) *Matcher {
	return &Matcher{store: store, civicLoc: civicLoc, now: time.Now}
}

// Fingerprint derives the stable dedup key: md5 over the lower-cased,
// whitespace-collapsed title, the source name and the civic calendar date of
// the start instant (time of day excluded).
func Fingerprint(title, sourceName string, startAt time.Time, civicLoc *time.Location) string {
	normTitle := strings.ToLower(fetch.CollapseWhitespace(title))
	day := startAt.In(civicLoc).Format("2006-01-02")
	return fetch.ContentHash(normTitle + "|" + sourceName + "|" + day)
}

// Reconcile inserts the record if its fingerprint is unknown, otherwise
// merges it onto the existing record. Byte-identical reruns report
// OutcomeUnchanged and perform no write. A store failure is returned as a
// *apperr.StoreError scoped to this record.
func (m *Matcher) Reconcile(ctx context.Context, rec *models.NormalizedRecord) (Outcome, error) {
	fp := Fingerprint(rec.Title, rec.SourceName, rec.StartAt, m.civicLoc)

	existing, err := m.store.FindByFingerprint(ctx, fp)
	if err != nil {
		return OutcomeUnchanged, &apperr.StoreError{Fingerprint: fp, Err: err}
	}

	now := m.now().Unix()

	if existing == nil {
		fresh := &models.ExistingRecord{
			Fingerprint: fp,
			Title:       rec.Title,
			StartAt:     rec.StartAt,
			EndAt:       rec.EndAt,
			Location:    rec.Location,
			Category:    string(rec.Category),
			SourceName:  rec.SourceName,
			SourceURL:   rec.SourceURL,
			Description: rec.Description,
			Ingested:    true,
			FirstSeen:   now,
			LastSeen:    now,
		}
		if err := m.store.Upsert(ctx, fresh); err != nil {
			return OutcomeUnchanged, &apperr.StoreError{Fingerprint: fp, Err: err}
		}
		return OutcomeNew, nil
	}

	merged, changed := mergeInto(existing, rec)
	if !changed {
		return OutcomeUnchanged, nil
	}

	merged.LastSeen = now
	if err := m.store.Upsert(ctx, merged); err != nil {
		return OutcomeUnchanged, &apperr.StoreError{Fingerprint: fp, Err: err}
	}
	return OutcomeUpdated, nil
}

// mergeInto applies incoming fields onto a copy of existing. Empty incoming
// fields never blank populated ones, and curated fields are left alone.
func mergeInto(existing *models.ExistingRecord, rec *models.NormalizedRecord) (*models.ExistingRecord, bool) {
	merged := *existing
	changed := false

	setString := func(field string, dst *string, incoming string) {
		if incoming == "" || existing.Curated(field) || *dst == incoming {
			return
		}
		*dst = incoming
		changed = true
	}

	setString("title", &merged.Title, rec.Title)
	setString("location", &merged.Location, rec.Location)
	setString("category", &merged.Category, string(rec.Category))
	setString("source_url", &merged.SourceURL, rec.SourceURL)
	setString("description", &merged.Description, rec.Description)

	if !rec.StartAt.IsZero() && !existing.Curated("start_at") && !merged.StartAt.Equal(rec.StartAt) {
		merged.StartAt = rec.StartAt
		changed = true
	}
	if rec.EndAt != nil && !existing.Curated("end_at") {
		if merged.EndAt == nil || !merged.EndAt.Equal(*rec.EndAt) {
			merged.EndAt = rec.EndAt
			changed = true
		}
	}

	return &merged, changed
}
