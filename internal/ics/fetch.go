// Package ics implements the ICS feed provider: it fetches raw feed
// text over HTTP, parses it into calendar events, and expands
// recurrences into concrete instances inside the sync window.
package ics

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"
)

const (
	userAgent     = "teamnetwork-calsync/1.0"
	fetchTimeout  = 10 * time.Second
	fetchAttempts = 3
	fetchDelay    = 2 * time.Second
	maxFeedBytes  = 10 * 1024 * 1024
)

// Fetcher retrieves raw ICS payloads with a hard per-attempt timeout and
// a bounded number of fixed-delay retries.
type Fetcher struct {
	client   *http.Client
	attempts uint64
	delay    time.Duration
}

func NewFetcher() *Fetcher {
	return &Fetcher{
		client:   &http.Client{Timeout: fetchTimeout},
		attempts: fetchAttempts,
		delay:    fetchDelay,
	}
}

// Fetch GETs the feed URL. A timed-out or non-2xx attempt counts toward
// the retry budget; after exhausting it, the last error is returned.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	var body []byte

	b := retry.WithMaxRetries(f.attempts-1, retry.NewConstant(f.delay))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		req.Header.Set("User-Agent", userAgent)

		resp, err := f.client.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return retry.RetryableError(fmt.Errorf("unexpected status %d", resp.StatusCode))
		}

		body, err = io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
		if err != nil {
			return retry.RetryableError(err)
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", url, err)
	}

	return body, nil
}
