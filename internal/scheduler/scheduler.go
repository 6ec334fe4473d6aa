// Package scheduler drives periodic feed syncs. The engine itself
// provides no mutual exclusion between two runs of the same feed, so the
// scheduler owns a per-feed single-flight guard; on-demand triggers go
// through the same guard via SyncNow.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/cicconel11/TeamNetwork-sub006/internal/calsync"
)

// ErrSyncInProgress is returned by SyncNow when a run for the same feed
// is already in flight.
var ErrSyncInProgress = errors.New("a sync for this feed is already running")

type Scheduler struct {
	store  calsync.Store
	engine *calsync.Engine
	spec   string

	mu       sync.Mutex
	inFlight map[string]struct{}
}

func New(store calsync.Store, engine *calsync.Engine, spec string) *Scheduler {
	return &Scheduler{
		store:    store,
		engine:   engine,
		spec:     spec,
		inFlight: make(map[string]struct{}),
	}
}

// Run syncs all feeds once at startup, then on the cron schedule,
// blocking until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.syncAll(ctx)

	c := cron.New()
	if _, err := c.AddFunc(s.spec, func() { s.syncAll(ctx) }); err != nil {
		return err
	}
	c.Start()

	<-ctx.Done()
	<-c.Stop().Done()

	return nil
}

// syncAll launches one run per syncable feed. Each feed sync is an
// independent unit of work; feeds already in flight are skipped so a
// slow feed cannot race itself across ticks.
func (s *Scheduler) syncAll(ctx context.Context) {
	feeds, err := s.store.SyncableFeeds(ctx)
	if err != nil {
		slog.Error("error listing syncable feeds", "error", err)
		return
	}

	var wg sync.WaitGroup
	for _, feed := range feeds {
		if !s.acquire(feed.ID) {
			slog.Info("skipping feed with sync in flight", "feed_id", feed.ID)
			continue
		}

		wg.Add(1)
		go func(feed calsync.Feed) {
			defer wg.Done()
			defer s.release(feed.ID)

			// Errors are already recorded on the feed by the engine.
			s.engine.Sync(ctx, feed)
		}(feed)
	}
	wg.Wait()
}

// SyncNow runs one sync for the feed under the same per-feed guard used
// by the cron loop.
func (s *Scheduler) SyncNow(ctx context.Context, feed calsync.Feed) (calsync.SyncResult, error) {
	if !s.acquire(feed.ID) {
		return calsync.SyncResult{}, ErrSyncInProgress
	}
	defer s.release(feed.ID)

	return s.engine.Sync(ctx, feed)
}

func (s *Scheduler) acquire(feedID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.inFlight[feedID]; ok {
		return false
	}
	s.inFlight[feedID] = struct{}{}

	return true
}

func (s *Scheduler) release(feedID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.inFlight, feedID)
}
