package source

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"city_ingest/internal/config"
)

func newsFeedUnderTest(endpoint string) *NewsFeed {
	return NewNewsFeed("newsfeed", config.SourceConfig{Endpoint: endpoint},
		config.LogicConfig{TimeoutSec: 5, UserAgent: "CityIngestBot/1.0"})
}

const newsIndexFixture = `<html><body>
<ul class="news-list">
  <li><a class="article-link" href="/articles/pool-reopens">Community Pool Reopens</a></li>
</ul>
</body></html>`

func newsArticleFixture(dateMarkup string) string {
	return fmt.Sprintf(`<html><head>
<title>Community Pool Reopens</title>
<meta name="description" content="The community pool reopens after renovations.">
</head><body>
<article>
<h1>Community Pool Reopens</h1>
%s
<p>After two months of renovations the community pool reopens to the public
this weekend, with extended hours through the rest of the summer season.</p>
<p>Registration for swimming lessons opens at the same time, and the first
week of lap swimming is free for residents.</p>
</article>
</body></html>`, dateMarkup)
}

func TestNewsFeed_Parse(t *testing.T) {
	n := &NewsFeed{name: "newsfeed", endpoint: "https://city.test/news"}
	pages := []Page{
		{URL: "https://city.test/news", Body: []byte(newsIndexFixture), Index: true},
		{
			URL:  "https://city.test/articles/pool-reopens",
			Body: []byte(newsArticleFixture(`<span class="published-date">July 12, 2025, 8:00 AM</span>`)),
		},
	}

	records, errs := n.Parse(pages)

	if len(errs) != 0 {
		t.Fatalf("errs = %v, want none", errs)
	}
	if len(records) != 1 {
		t.Fatalf("records = %d, want 1 (index page must be skipped)", len(records))
	}

	rec := records[0]
	if rec.Title != "Community Pool Reopens" {
		t.Errorf("title = %q", rec.Title)
	}
	if rec.DateTimeText != "July 12, 2025, 8:00 AM" {
		t.Errorf("dateTimeText = %q", rec.DateTimeText)
	}
	if rec.CategoryHint != "news" {
		t.Errorf("categoryHint = %q", rec.CategoryHint)
	}
	if rec.SourceURL != "https://city.test/articles/pool-reopens" {
		t.Errorf("sourceURL = %q", rec.SourceURL)
	}
	if !strings.Contains(rec.Description, "pool reopens") {
		t.Errorf("description = %q, want the article excerpt", rec.Description)
	}
}

func TestNewsFeed_ParseTimeElementFallback(t *testing.T) {
	n := &NewsFeed{name: "newsfeed", endpoint: "https://city.test/news"}
	pages := []Page{{
		URL:  "https://city.test/articles/pool-reopens",
		Body: []byte(newsArticleFixture(`<time>July 13, 2025, 9:00 AM</time>`)),
	}}

	records, errs := n.Parse(pages)
	if len(errs) != 0 {
		t.Fatalf("errs = %v, want none", errs)
	}
	if len(records) != 1 {
		t.Fatalf("records = %d, want 1", len(records))
	}
	if records[0].DateTimeText != "July 13, 2025, 9:00 AM" {
		t.Errorf("dateTimeText = %q, want the <time> fallback", records[0].DateTimeText)
	}
}

func TestNewsFeed_FetchIndexRedirectStillFlagsIndex(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/news", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/news/", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/news/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, newsIndexFixture)
	})
	mux.HandleFunc("/articles/pool-reopens", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, newsArticleFixture(`<span class="published-date">July 12, 2025, 8:00 AM</span>`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	n := newsFeedUnderTest(srv.URL + "/news")

	pages, err := n.Fetch(context.Background(), false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pages) != 2 {
		t.Fatalf("pages = %d, want index + article", len(pages))
	}

	var indexed int
	for _, p := range pages {
		if p.Index {
			indexed++
		}
	}
	if indexed != 1 {
		t.Fatalf("index-flagged pages = %d, want 1 despite the trailing-slash redirect", indexed)
	}

	// The listing page must not be fed through the article extractor.
	records, _ := n.Parse(pages)
	if len(records) != 1 {
		t.Errorf("records = %d, want just the article", len(records))
	}
}

func TestNewsFeed_FetchIndexDownIsFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	n := newsFeedUnderTest(srv.URL + "/news")
	if _, err := n.Fetch(context.Background(), false); err == nil {
		t.Fatal("expected error when the index page is unreachable")
	}
}
