package normalize

import (
	"errors"
	"testing"
	"time"

	"city_ingest/internal/apperr"
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

func TestNormalize_Basic(t *testing.T) {
	n := New("CityCalendar", civic)
	rec, err := n.Normalize(models.RawRecord{
		Title:        "  Canada   Day  Parade ",
		DateTimeText: "July 1, 2025, 10:00 AM @ Main Street",
		CategoryHint: "Festival",
		SourceURL:    " https://example.test/events/1 ",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if rec.Title != "Canada Day Parade" {
		t.Errorf("title = %q", rec.Title)
	}
	want := time.Date(2025, time.July, 1, 10, 0, 0, 0, civic)
	if !rec.StartAt.Equal(want) {
		t.Errorf("startAt = %v, want %v", rec.StartAt, want)
	}
	if rec.Location != "Main Street" {
		t.Errorf("location = %q", rec.Location)
	}
	if rec.Category != models.CategoryEvents {
		t.Errorf("category = %q, want events", rec.Category)
	}
	if rec.SourceName != "CityCalendar" {
		t.Errorf("sourceName = %q", rec.SourceName)
	}
	if rec.SourceURL != "https://example.test/events/1" {
		t.Errorf("sourceURL = %q", rec.SourceURL)
	}
}

func TestNormalize_ExtractedLocationWinsOverScraped(t *testing.T) {
	n := New("CityCalendar", civic)
	rec, err := n.Normalize(models.RawRecord{
		Title:        "Dog Show",
		DateTimeText: "July 19, 2025, 10:00 AM - 4:00 PM@ Pet Centre",
		LocationText: "somewhere vague",
		SourceURL:    "https://example.test/events/2",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Location != "Pet Centre" {
		t.Errorf("location = %q, want %q", rec.Location, "Pet Centre")
	}
}

func TestNormalize_StructuredTimesSkipExtraction(t *testing.T) {
	start := time.Date(2025, time.August, 2, 18, 30, 0, 0, time.UTC)
	n := New("ICSFeed", civic)
	rec, err := n.Normalize(models.RawRecord{
		Title:     "Farmers Market",
		StartAt:   &start,
		SourceURL: "https://example.test/feed.ics",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !rec.StartAt.Equal(start) {
		t.Errorf("startAt = %v, want %v", rec.StartAt, start)
	}
	if rec.StartAt.Location() != civic {
		t.Errorf("startAt location = %v, want civic zone", rec.StartAt.Location())
	}
}

func TestNormalize_UnparsableDateIsParseError(t *testing.T) {
	n := New("CityCalendar", civic)
	_, err := n.Normalize(models.RawRecord{
		Title:        "Mystery Event",
		DateTimeText: "sometime next week",
		SourceURL:    "https://example.test/events/3",
	})
	var perr *apperr.ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("error = %v (%T), want *apperr.ParseError", err, err)
	}
}

func TestNormalize_MissingTitleIsValidationError(t *testing.T) {
	n := New("CityCalendar", civic)
	_, err := n.Normalize(models.RawRecord{
		Title:        "   ",
		DateTimeText: "July 1, 2025, 10:00 AM",
		SourceURL:    "https://example.test/events/4",
	})
	var verr *apperr.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error = %v (%T), want *apperr.ValidationError", err, err)
	}
	if verr.Field != "title" {
		t.Errorf("field = %q, want title", verr.Field)
	}
}

func TestNormalize_MissingSourceURLIsValidationError(t *testing.T) {
	n := New("CityCalendar", civic)
	_, err := n.Normalize(models.RawRecord{
		Title:        "Parade",
		DateTimeText: "July 1, 2025, 10:00 AM",
	})
	var verr *apperr.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error = %v (%T), want *apperr.ValidationError", err, err)
	}
}

func TestMapCategory(t *testing.T) {
	cases := map[string]models.Category{
		"Festival":      models.CategoryEvents,
		"NEWS":          models.CategoryNews,
		"restaurant":    models.CategoryBusinesses,
		"  Volunteer  ": models.CategoryCommunity,
		"recreation":    models.CategorySports,
		"garage sale":   models.CategoryOther,
		"":              models.CategoryOther,
	}
	for hint, want := range cases {
		if got := MapCategory(hint); got != want {
			t.Errorf("MapCategory(%q) = %q, want %q", hint, got, want)
		}
	}
}
