// Package cache defines the read-cache invalidation contract. The cache
// itself is an external collaborator; the pipeline's only obligation is to
// call Clear exactly once after a run's writes have settled.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Invalidator clears the external read cache.
type Invalidator interface {
	Clear(ctx context.Context) error
}

// HTTPInvalidator purges the cache by POSTing to a configured endpoint.
type HTTPInvalidator struct {
	purgeURL string
	client   *http.Client
}

func NewHTTPInvalidator(purgeURL string) *HTTPInvalidator {
	return &HTTPInvalidator{
		purgeURL: purgeURL,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (i *HTTPInvalidator) Clear(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, i.purgeURL, nil)
	if err != nil {
		return err
	}

	resp, err := i.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("cache purge: HTTP %d", resp.StatusCode)
	}
	slog.Debug("read cache purged", "url", i.purgeURL)
	return nil
}

// Noop is used when no external cache is configured.
type Noop struct{}

func (Noop) Clear(context.Context) error { return nil }
