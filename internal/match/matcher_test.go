package match

import (
	"context"
	"errors"
	"testing"
	"time"

	"city_ingest/internal/apperr"
	"city_ingest/internal/db"
	"city_ingest/internal/models"
)

var civic = mustLoad("America/Toronto")

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

func record(title string) *models.NormalizedRecord {
	return &models.NormalizedRecord{
		Title:      title,
		StartAt:    time.Date(2025, time.July, 1, 10, 0, 0, 0, civic),
		Location:   "City Hall",
		Category:   models.CategoryEvents,
		SourceName: "CityCalendar",
		SourceURL:  "https://example.test/events/1",
	}
}

func TestFingerprint_Stability(t *testing.T) {
	startAt := time.Date(2025, time.July, 1, 10, 0, 0, 0, civic)
	base := Fingerprint("Canada Day Parade", "CityCalendar", startAt, civic)

	variants := []string{
		"canada day parade",
		"CANADA DAY PARADE",
		"  Canada   Day\tParade ",
	}
	for _, title := range variants {
		if got := Fingerprint(title, "CityCalendar", startAt, civic); got != base {
			t.Errorf("Fingerprint(%q) = %s, want %s", title, got, base)
		}
	}
}

func TestFingerprint_DayGranularity(t *testing.T) {
	morning := time.Date(2025, time.July, 1, 9, 0, 0, 0, civic)
	evening := time.Date(2025, time.July, 1, 19, 0, 0, 0, civic)
	if Fingerprint("Parade", "A", morning, civic) != Fingerprint("Parade", "A", evening, civic) {
		t.Error("same calendar day produced different fingerprints")
	}

	nextDay := time.Date(2025, time.July, 2, 9, 0, 0, 0, civic)
	if Fingerprint("Parade", "A", morning, civic) == Fingerprint("Parade", "A", nextDay, civic) {
		t.Error("different days produced the same fingerprint")
	}
}

func TestFingerprint_DistinguishesSources(t *testing.T) {
	startAt := time.Date(2025, time.July, 1, 9, 0, 0, 0, civic)
	if Fingerprint("Parade", "A", startAt, civic) == Fingerprint("Parade", "B", startAt, civic) {
		t.Error("different sources produced the same fingerprint")
	}
}

func TestReconcile_NewThenUnchanged(t *testing.T) {
	store := db.NewMemStore()
	m := NewMatcher(store, civic)
	ctx := context.Background()

	outcome, err := m.Reconcile(ctx, record("Canada Day Parade"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != OutcomeNew {
		t.Fatalf("first reconcile = %v, want new", outcome)
	}

	// Byte-identical rerun: no new, no spurious updated.
	outcome, err = m.Reconcile(ctx, record("Canada Day Parade"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != OutcomeUnchanged {
		t.Errorf("identical rerun = %v, want unchanged", outcome)
	}

	n, _ := store.CountDocuments(ctx, db.RecordFilter{})
	if n != 1 {
		t.Errorf("store count = %d, want 1", n)
	}
}

func TestReconcile_MergePreservesExistingFields(t *testing.T) {
	store := db.NewMemStore()
	m := NewMatcher(store, civic)
	ctx := context.Background()

	first := record("Canada Day Parade")
	first.Description = "Annual parade downtown"
	if _, err := m.Reconcile(ctx, first); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Incoming lacks description but adds a location change.
	second := record("Canada Day Parade")
	second.Description = ""
	second.Location = "Main Street"
	outcome, err := m.Reconcile(ctx, second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != OutcomeUpdated {
		t.Fatalf("outcome = %v, want updated", outcome)
	}

	fp := Fingerprint(second.Title, second.SourceName, second.StartAt, civic)
	got, _ := store.FindByFingerprint(ctx, fp)
	if got.Description != "Annual parade downtown" {
		t.Errorf("description = %q: empty incoming field overwrote populated one", got.Description)
	}
	if got.Location != "Main Street" {
		t.Errorf("location = %q, want %q", got.Location, "Main Street")
	}
}

func TestReconcile_CuratedFieldsUntouched(t *testing.T) {
	store := db.NewMemStore()
	m := NewMatcher(store, civic)
	ctx := context.Background()

	first := record("Canada Day Parade")
	if _, err := m.Reconcile(ctx, first); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Admin edits the location by hand.
	fp := Fingerprint(first.Title, first.SourceName, first.StartAt, civic)
	existing, _ := store.FindByFingerprint(ctx, fp)
	existing.Location = "Curated Venue"
	existing.CuratedFields = []string{"location"}
	if err := store.Upsert(ctx, existing); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	second := record("Canada Day Parade")
	second.Location = "Scraped Venue"
	outcome, err := m.Reconcile(ctx, second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != OutcomeUnchanged {
		t.Errorf("outcome = %v, want unchanged (only a curated field differed)", outcome)
	}

	got, _ := store.FindByFingerprint(ctx, fp)
	if got.Location != "Curated Venue" {
		t.Errorf("location = %q: curated field was overwritten", got.Location)
	}
}

type failingStore struct {
	*db.MemStore
	failUpsert bool
}

func (s *failingStore) Upsert(ctx context.Context, rec *models.ExistingRecord) error {
	if s.failUpsert {
		return errors.New("write refused")
	}
	return s.MemStore.Upsert(ctx, rec)
}

func TestReconcile_StoreFailureScopedToRecord(t *testing.T) {
	store := &failingStore{MemStore: db.NewMemStore(), failUpsert: true}
	m := NewMatcher(store, civic)

	_, err := m.Reconcile(context.Background(), record("Canada Day Parade"))
	if err == nil {
		t.Fatal("expected error")
	}
	var serr *apperr.StoreError
	if !errors.As(err, &serr) {
		t.Fatalf("error type = %T, want *apperr.StoreError", err)
	}
}
