package source

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"city_ingest/internal/config"
	"city_ingest/internal/fetch"
)

const directoryFixture = `
<div class="listings">
  <div class="listing-item" data-category="restaurant">
    <a href="/biz/corner-cafe"><span class="listing-name">Corner Cafe</span></a>
    <span class="listing-date">July 5, 2025, 9:00 AM</span>
    <span class="listing-address">12 King St</span>
    <p class="listing-blurb">Coffee and pastries.</p>
  </div>
  <div class="listing-item">
    <span class="listing-date">July 6, 2025, 9:00 AM</span>
  </div>
</div>`

func TestBizDirectory_Parse(t *testing.T) {
	b := &BizDirectory{name: "bizdirectory"}
	pages := []Page{{URL: "https://city.test/directory?page=1", Body: []byte(directoryFixture)}}

	records, errs := b.Parse(pages)

	if len(records) != 1 {
		t.Fatalf("records = %d, want 1", len(records))
	}
	if len(errs) != 1 {
		t.Fatalf("errs = %d, want 1 (the nameless listing)", len(errs))
	}

	rec := records[0]
	if rec.Title != "Corner Cafe" {
		t.Errorf("title = %q", rec.Title)
	}
	if rec.CategoryHint != "restaurant" {
		t.Errorf("categoryHint = %q", rec.CategoryHint)
	}
	if rec.LocationText != "12 King St" {
		t.Errorf("locationText = %q", rec.LocationText)
	}
	if rec.SourceURL != "https://city.test/biz/corner-cafe" {
		t.Errorf("sourceURL = %q", rec.SourceURL)
	}
}

func TestBizDirectory_FetchWalksPagination(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		switch r.URL.Query().Get("page") {
		case "1", "2":
			fmt.Fprint(w, directoryFixture)
		default:
			fmt.Fprint(w, `<div class="listings"></div>`)
		}
	}))
	defer srv.Close()

	f := fetch.NewFetcher(5*time.Second, "CityIngestBot/1.0", 0)
	b := NewBizDirectory("bizdirectory", config.SourceConfig{Endpoint: srv.URL + "/directory"}, f)

	pages, err := b.Fetch(context.Background(), false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pages) != 2 {
		t.Fatalf("pages = %d, want 2 (walk stops at the empty page)", len(pages))
	}
}

func TestBizDirectory_FetchEmptyDirectoryIsNotError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `<div class="listings"></div>`)
	}))
	defer srv.Close()

	f := fetch.NewFetcher(5*time.Second, "CityIngestBot/1.0", 0)
	b := NewBizDirectory("bizdirectory", config.SourceConfig{Endpoint: srv.URL + "/directory"}, f)

	pages, err := b.Fetch(context.Background(), false)
	if err != nil {
		t.Fatalf("empty directory reported as fetch failure: %v", err)
	}
	records, errs := b.Parse(pages)
	if len(records) != 0 || len(errs) != 0 {
		t.Errorf("empty directory yielded records = %d, errs = %d, want none", len(records), len(errs))
	}
}

func TestBizDirectory_FetchFirstPageDownIsFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	f := fetch.NewFetcher(5*time.Second, "CityIngestBot/1.0", 0)
	b := NewBizDirectory("bizdirectory", config.SourceConfig{Endpoint: srv.URL + "/directory"}, f)

	if _, err := b.Fetch(context.Background(), false); err == nil {
		t.Fatal("expected error when the first page is unreachable")
	}
}
