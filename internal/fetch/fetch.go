// Package fetch provides the shared HTTP client used by all source adapters:
// per-request timeout, redirect cap, user agent, charset-aware decoding and
// optional robots.txt checks.
package fetch

import (
	"context"
	"crypto/md5"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/temoto/robotstxt"
	"golang.org/x/net/html/charset"
)

const maxHops = 15

var reWhitespace = regexp.MustCompile(`\s+`)

// Fetcher wraps an http.Client with the politeness settings every adapter
// shares. One Fetcher is built per source so robots.txt state stays scoped.
type Fetcher struct {
	client      *http.Client
	userAgent   string
	delay       time.Duration
	robotsGroup *robotstxt.Group
}

func NewFetcher(timeout time.Duration, userAgent string, delay time.Duration) *Fetcher {
	return &Fetcher{
		client: &http.Client{
			Transport: &http.Transport{
				DisableKeepAlives: true,
				MaxIdleConns:      0,
			},
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxHops {
					return fmt.Errorf("stopped after %d redirects", maxHops)
				}
				return nil
			},
		},
		userAgent: userAgent,
		delay:     delay,
	}
}

// InitRobots loads robots.txt for the endpoint's host. Failures are logged
// and ignored: a missing robots.txt must not block ingestion.
func (f *Fetcher) InitRobots(ctx context.Context, endpoint string) {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return
	}

	robotsURL := fmt.Sprintf("%s://%s/robots.txt", u.Scheme, u.Host)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		slog.Debug("robots.txt fetch failed, ignoring", "url", robotsURL, "err", err)
		return
	}
	defer resp.Body.Close()

	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		slog.Debug("robots.txt parse failed, ignoring", "url", robotsURL, "err", err)
		return
	}

	f.robotsGroup = data.FindGroup(f.userAgent)
}

// Allowed reports whether robots.txt permits fetching the given URL.
func (f *Fetcher) Allowed(rawURL string) bool {
	if f.robotsGroup == nil {
		return true
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return f.robotsGroup.Test(u.Path)
}

// Get fetches one URL and returns the UTF-8 decoded body. Non-2xx statuses
// are errors. The configured delay is applied before the request.
func (f *Fetcher) Get(ctx context.Context, rawURL string) ([]byte, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	utf8Reader, err := charset.NewReader(resp.Body, resp.Header.Get("Content-Type"))
	if err != nil {
		utf8Reader = resp.Body
	}

	return io.ReadAll(utf8Reader)
}

// CollapseWhitespace trims the string and folds runs of whitespace into a
// single space.
func CollapseWhitespace(text string) string {
	return strings.TrimSpace(reWhitespace.ReplaceAllString(text, " "))
}

// ContentHash returns the md5 hex digest of the given content.
func ContentHash(content string) string {
	hash := md5.Sum([]byte(content))
	return fmt.Sprintf("%x", hash)
}
