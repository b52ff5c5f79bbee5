package source

import (
	"bytes"
	"context"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"city_ingest/internal/apperr"
	"city_ingest/internal/config"
	"city_ingest/internal/fetch"
	"city_ingest/internal/models"
)

// CityCalendar scrapes the municipal events calendar. The calendar paginates
// by month, but supports a "show all" view that flattens the listing, so
// Fetch always requests that variant.
type CityCalendar struct {
	name     string
	endpoint string
	fetcher  *fetch.Fetcher
}

func NewCityCalendar(name string, cfg config.SourceConfig, f *fetch.Fetcher) *CityCalendar {
	return &CityCalendar{name: name, endpoint: cfg.Endpoint, fetcher: f}
}

func (c *CityCalendar) Name() string { return c.name }

func (c *CityCalendar) Fetch(ctx context.Context, _ bool) ([]Page, error) {
	c.fetcher.InitRobots(ctx, c.endpoint)

	listURL := withQuery(c.endpoint, "view", "all")
	if !c.fetcher.Allowed(listURL) {
		return nil, &apperr.FetchError{Source: c.name, Err: errDisallowed}
	}

	body, err := c.fetcher.Get(ctx, listURL)
	if err != nil {
		return nil, &apperr.FetchError{Source: c.name, Err: err}
	}

	return []Page{{URL: listURL, Body: body}}, nil
}

func (c *CityCalendar) Parse(pages []Page) ([]models.RawRecord, []error) {
	var records []models.RawRecord
	var errs []error

	for _, page := range pages {
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
		if err != nil {
			errs = append(errs, &apperr.ParseError{Input: page.URL, Reason: err.Error()})
			continue
		}

		doc.Find(".event-item").Each(func(_ int, s *goquery.Selection) {
			title := fetch.CollapseWhitespace(s.Find(".event-title").Text())
			dateText := fetch.CollapseWhitespace(s.Find(".event-date").Text())

			if title == "" && dateText == "" {
				errs = append(errs, &apperr.ParseError{
					Input:  fetch.CollapseWhitespace(s.Text()),
					Reason: "event item without title or date",
				})
				return
			}

			href, _ := s.Find("a").First().Attr("href")
			hint := s.AttrOr("data-category", "")
			if hint == "" {
				hint = "events"
			}

			records = append(records, models.RawRecord{
				Title:        title,
				DateTimeText: dateText,
				LocationText: fetch.CollapseWhitespace(s.Find(".event-location").Text()),
				CategoryHint: hint,
				Description:  fetch.CollapseWhitespace(s.Find(".event-description").Text()),
				SourceURL:    resolveURL(page.URL, href),
			})
		})
	}

	return records, errs
}

// withQuery returns endpoint with one query parameter set.
func withQuery(endpoint, key, value string) string {
	u, err := url.Parse(endpoint)
	if err != nil {
		return endpoint
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String()
}

// resolveURL makes href absolute against the page URL. A missing href falls
// back to the page itself.
func resolveURL(pageURL, href string) string {
	if strings.TrimSpace(href) == "" {
		return pageURL
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return pageURL
	}
	return base.ResolveReference(ref).String()
}
