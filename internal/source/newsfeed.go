package source

import (
	"bytes"
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"github.com/gocolly/colly"

	"city_ingest/internal/apperr"
	"city_ingest/internal/config"
	"city_ingest/internal/fetch"
	"city_ingest/internal/models"
)

const maxArticles = 25

// NewsFeed scrapes the municipal news index and the article pages it links
// to. Collection runs through a colly collector; article text is extracted
// with readability during Parse.
type NewsFeed struct {
	name     string
	endpoint string
	logic    config.LogicConfig
}

func NewNewsFeed(name string, cfg config.SourceConfig, logic config.LogicConfig) *NewsFeed {
	return &NewsFeed{name: name, endpoint: cfg.Endpoint, logic: logic}
}

func (n *NewsFeed) Name() string { return n.name }

func (n *NewsFeed) Fetch(ctx context.Context, _ bool) ([]Page, error) {
	base, err := url.Parse(n.endpoint)
	if err != nil {
		return nil, &apperr.FetchError{Source: n.name, Err: err}
	}

	c := colly.NewCollector(
		colly.AllowedDomains(base.Host),
		colly.UserAgent(n.logic.UserAgent),
	)
	c.SetRequestTimeout(time.Duration(n.logic.TimeoutSec) * time.Second)
	c.Limit(&colly.LimitRule{
		DomainGlob: "*",
		Delay:      time.Duration(n.logic.DelayMS) * time.Millisecond,
	})

	var (
		mu       sync.Mutex
		pages    []Page
		fetchErr error
		visited  int
	)

	c.OnResponse(func(r *colly.Response) {
		mu.Lock()
		defer mu.Unlock()
		pageURL := r.Request.URL.String()
		body := make([]byte, len(r.Body))
		copy(body, r.Body)
		pages = append(pages, Page{URL: pageURL, Body: body, Index: sameEndpoint(pageURL, n.endpoint)})
	})

	c.OnHTML("a.article-link[href]", func(e *colly.HTMLElement) {
		if !sameEndpoint(e.Request.URL.String(), n.endpoint) {
			return
		}
		mu.Lock()
		if visited >= maxArticles || ctx.Err() != nil {
			mu.Unlock()
			return
		}
		visited++
		mu.Unlock()

		e.Request.Visit(e.Attr("href"))
	})

	c.OnError(func(r *colly.Response, err error) {
		mu.Lock()
		defer mu.Unlock()
		// Only the index failing kills the source; a dead article link is
		// survivable.
		if sameEndpoint(r.Request.URL.String(), n.endpoint) {
			fetchErr = err
		}
	})

	if err := c.Visit(n.endpoint); err != nil {
		return nil, &apperr.FetchError{Source: n.name, Err: err}
	}

	if fetchErr != nil {
		return nil, &apperr.FetchError{Source: n.name, Err: fetchErr}
	}
	if ctx.Err() != nil {
		return nil, &apperr.FetchError{Source: n.name, Err: ctx.Err()}
	}
	return pages, nil
}

// sameEndpoint compares URLs ignoring a trailing slash, so a redirect from
// /news to /news/ still identifies the index page.
func sameEndpoint(a, b string) bool {
	return strings.TrimRight(a, "/") == strings.TrimRight(b, "/")
}

func (n *NewsFeed) Parse(pages []Page) ([]models.RawRecord, []error) {
	var records []models.RawRecord
	var errs []error

	for _, page := range pages {
		if page.Index {
			continue
		}

		pageURL, err := url.Parse(page.URL)
		if err != nil {
			errs = append(errs, &apperr.ParseError{Input: page.URL, Reason: err.Error()})
			continue
		}

		article, err := readability.FromReader(bytes.NewReader(page.Body), pageURL)
		if err != nil {
			errs = append(errs, &apperr.ParseError{Input: page.URL, Reason: err.Error()})
			continue
		}

		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
		if err != nil {
			errs = append(errs, &apperr.ParseError{Input: page.URL, Reason: err.Error()})
			continue
		}

		dateText := fetch.CollapseWhitespace(doc.Find(".published-date").First().Text())
		if dateText == "" {
			dateText = fetch.CollapseWhitespace(doc.Find("time").First().Text())
		}

		records = append(records, models.RawRecord{
			Title:        fetch.CollapseWhitespace(article.Title),
			DateTimeText: dateText,
			CategoryHint: "news",
			Description:  fetch.CollapseWhitespace(article.Excerpt),
			SourceURL:    page.URL,
		})
	}

	return records, errs
}
