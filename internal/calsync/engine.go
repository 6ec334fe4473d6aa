package calsync

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Engine runs one feed sync at a time: it dispatches to the provider for
// the feed, reconciles the produced instances against the store, and
// updates the feed's health fields.
//
// The engine has no scheduling loop of its own and provides no mutual
// exclusion between two runs of the same feed; callers serialize
// per-feed invocation (see internal/scheduler).
type Engine struct {
	store     Store
	providers map[FeedProvider]Provider
	window    WindowConfig
	now       func() time.Time
}

// EngineOption customizes an Engine.
type EngineOption func(*Engine)

// WithClock overrides the engine's notion of now.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

func NewEngine(store Store, providers map[FeedProvider]Provider, window WindowConfig, opts ...EngineOption) *Engine {
	e := &Engine{
		store:     store,
		providers: providers,
		window:    window,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Sync performs one run for the given feed. Every failure during fetch,
// authorization, parsing, or reconciliation is persisted onto the feed
// record as status=error before being returned; a completed run sets
// status=active and stamps last_synced_at with the run's start time.
//
// The returned error mirrors SyncResult.LastError so callers can branch
// with errors.Is; it has already been recorded.
func (e *Engine) Sync(ctx context.Context, feed Feed) (SyncResult, error) {
	if feed.Status == StatusDisabled {
		return SyncResult{}, fmt.Errorf("feed %s: %w", feed.ID, ErrFeedDisabled)
	}

	runStart := e.now().UTC()
	w := ComputeWindow(runStart, e.window)

	provider, ok := e.providers[feed.Provider]
	if !ok {
		return e.fail(ctx, feed, fmt.Errorf("%w: %q", ErrUnknownProvider, feed.Provider))
	}

	instances, err := provider.FetchInstances(ctx, feed, w)
	if err != nil {
		return e.fail(ctx, feed, err)
	}

	stats, err := e.reconcile(ctx, feed, w, instances)
	if err != nil {
		return e.fail(ctx, feed, err)
	}

	if err := e.store.MarkFeedSynced(ctx, feed.ID, runStart); err != nil {
		return e.fail(ctx, feed, fmt.Errorf("%w: marking feed synced: %v", ErrStore, err))
	}

	slog.Info("feed synced",
		"feed_id", feed.ID,
		"provider", feed.Provider,
		"upserted", stats.upserted,
		"deleted", stats.deleted,
	)

	return SyncResult{
		Status:       StatusActive,
		LastSyncedAt: &runStart,
		Upserted:     stats.upserted,
		Deleted:      stats.deleted,
	}, nil
}

// fail converts a run error into the feed's persisted error state. The
// prior last_synced_at is left untouched, preserving the distinction
// between "never synced" and "errored after a prior success".
func (e *Engine) fail(ctx context.Context, feed Feed, err error) (SyncResult, error) {
	msg := err.Error()
	if merr := e.store.MarkFeedErrored(ctx, feed.ID, msg); merr != nil {
		slog.Error("error recording feed failure", "feed_id", feed.ID, "error", merr)
	}

	slog.Error("feed sync failed", "feed_id", feed.ID, "provider", feed.Provider, "error", err)

	return SyncResult{
		Status:       StatusError,
		LastSyncedAt: feed.LastSyncedAt,
		LastError:    &msg,
	}, err
}
