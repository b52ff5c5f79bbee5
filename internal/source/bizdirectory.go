package source

import (
	"bytes"
	"context"
	"fmt"

	"github.com/PuerkitoBio/goquery"

	"city_ingest/internal/apperr"
	"city_ingest/internal/config"
	"city_ingest/internal/fetch"
	"city_ingest/internal/models"
)

const defaultMaxPages = 10

// BizDirectory scrapes the local business directory. The directory has no
// "show all" view, so Fetch walks numbered pages until a page comes back
// without listings (bounded by max_pages) and returns the flattened set.
type BizDirectory struct {
	name     string
	endpoint string
	maxPages int
	fetcher  *fetch.Fetcher
}

func NewBizDirectory(name string, cfg config.SourceConfig, f *fetch.Fetcher) *BizDirectory {
	maxPages := cfg.MaxPages
	if maxPages <= 0 {
		maxPages = defaultMaxPages
	}
	return &BizDirectory{name: name, endpoint: cfg.Endpoint, maxPages: maxPages, fetcher: f}
}

func (b *BizDirectory) Name() string { return b.name }

func (b *BizDirectory) Fetch(ctx context.Context, _ bool) ([]Page, error) {
	b.fetcher.InitRobots(ctx, b.endpoint)

	var pages []Page
	for n := 1; n <= b.maxPages; n++ {
		pageURL := withQuery(b.endpoint, "page", fmt.Sprintf("%d", n))
		if !b.fetcher.Allowed(pageURL) {
			return nil, &apperr.FetchError{Source: b.name, Err: errDisallowed}
		}

		body, err := b.fetcher.Get(ctx, pageURL)
		if err != nil {
			// First page failing means the source is down; later pages mean
			// we walked past the end of pagination.
			if n == 1 {
				return nil, &apperr.FetchError{Source: b.name, Err: err}
			}
			break
		}

		if !bytes.Contains(body, []byte("listing-item")) {
			break
		}
		pages = append(pages, Page{URL: pageURL, Body: body})
	}

	// An empty directory is a healthy source with nothing listed, not a
	// fetch failure.
	return pages, nil
}

func (b *BizDirectory) Parse(pages []Page) ([]models.RawRecord, []error) {
	var records []models.RawRecord
	var errs []error

	for _, page := range pages {
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
		if err != nil {
			errs = append(errs, &apperr.ParseError{Input: page.URL, Reason: err.Error()})
			continue
		}

		doc.Find(".listing-item").Each(func(_ int, s *goquery.Selection) {
			title := fetch.CollapseWhitespace(s.Find(".listing-name").Text())
			if title == "" {
				errs = append(errs, &apperr.ParseError{
					Input:  fetch.CollapseWhitespace(s.Text()),
					Reason: "listing without a name",
				})
				return
			}

			href, _ := s.Find("a").First().Attr("href")

			records = append(records, models.RawRecord{
				Title: title,
				// "Listed" timestamp, e.g. "July 5, 2025, 9:00 AM".
				DateTimeText: fetch.CollapseWhitespace(s.Find(".listing-date").Text()),
				LocationText: fetch.CollapseWhitespace(s.Find(".listing-address").Text()),
				CategoryHint: s.AttrOr("data-category", "business"),
				Description:  fetch.CollapseWhitespace(s.Find(".listing-blurb").Text()),
				SourceURL:    resolveURL(page.URL, href),
			})
		})
	}

	return records, errs
}
