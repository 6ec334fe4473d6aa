package ics

import (
	"context"
	"fmt"

	"github.com/cicconel11/TeamNetwork-sub006/internal/calsync"
)

// Provider implements [calsync.Provider] for ICS feeds.
type Provider struct {
	fetcher *Fetcher
}

var _ calsync.Provider = (*Provider)(nil)

func NewProvider() *Provider {
	return &Provider{fetcher: NewFetcher()}
}

func (p *Provider) FetchInstances(ctx context.Context, feed calsync.Feed, w calsync.Window) ([]calsync.Instance, error) {
	body, err := p.fetcher.Fetch(ctx, feed.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", calsync.ErrFetch, err)
	}

	events, err := parseCalendar(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", calsync.ErrParse, err)
	}

	return expandEvents(feed.ID, events, w), nil
}
