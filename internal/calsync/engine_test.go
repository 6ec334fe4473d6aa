package calsync_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/cicconel11/TeamNetwork-sub006/internal/calsync"
	"github.com/cicconel11/TeamNetwork-sub006/internal/migrations"
	"github.com/cicconel11/TeamNetwork-sub006/internal/sqlite"
)

type providerFunc func(ctx context.Context, feed calsync.Feed, w calsync.Window) ([]calsync.Instance, error)

func (f providerFunc) FetchInstances(ctx context.Context, feed calsync.Feed, w calsync.Window) ([]calsync.Instance, error) {
	return f(ctx, feed, w)
}

func newTestStore(t *testing.T) *sqlite.Repo {
	t.Helper()

	db, err := sqlx.Open("sqlite", filepath.Join(t.TempDir(), "calsync.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, migrations.Run(db))

	return sqlite.New(db)
}

func newICSFeed(t *testing.T, store calsync.Store) calsync.Feed {
	t.Helper()

	feed, err := store.InsertFeed(context.Background(), calsync.Feed{
		UserID:   "user-1",
		Scope:    calsync.ScopePersonal,
		Provider: calsync.ProviderICS,
		URL:      "https://example.com/cal.ics",
	})
	require.NoError(t, err)

	return feed
}

var testClock = time.Date(2025, 1, 15, 8, 0, 0, 0, time.UTC)

func newTestEngine(store calsync.Store, provider calsync.Provider) *calsync.Engine {
	return calsync.NewEngine(
		store,
		map[calsync.FeedProvider]calsync.Provider{calsync.ProviderICS: provider},
		calsync.WindowConfig{Lookback: 30 * 24 * time.Hour, Lookahead: 180 * 24 * time.Hour},
		calsync.WithClock(func() time.Time { return testClock }),
	)
}

func eventInstance(feedID, externalID string, start time.Time) calsync.Instance {
	return calsync.Instance{
		FeedID:      feedID,
		ExternalID:  externalID,
		InstanceKey: calsync.Key(externalID, start),
		Title:       "Kickoff",
		StartsAt:    start,
		EndsAt:      start.Add(time.Hour),
	}
}

func TestSync(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	feed := newICSFeed(t, store)

	start := testClock.Add(24 * time.Hour)
	engine := newTestEngine(store, providerFunc(func(ctx context.Context, feed calsync.Feed, w calsync.Window) ([]calsync.Instance, error) {
		return []calsync.Instance{eventInstance(feed.ID, "kickoff", start)}, nil
	}))

	res, err := engine.Sync(ctx, feed)
	require.NoError(t, err)
	assert.Equal(t, calsync.StatusActive, res.Status)
	assert.Equal(t, 1, res.Upserted)
	assert.Zero(t, res.Deleted)
	require.NotNil(t, res.LastSyncedAt)
	assert.True(t, res.LastSyncedAt.Equal(testClock))

	got, err := store.Feed(ctx, feed.ID)
	require.NoError(t, err)
	assert.Equal(t, calsync.StatusActive, got.Status)
	require.NotNil(t, got.LastSyncedAt)
	assert.True(t, got.LastSyncedAt.Equal(testClock))

	w := calsync.ComputeWindow(testClock, calsync.WindowConfig{Lookback: 30 * 24 * time.Hour, Lookahead: 180 * 24 * time.Hour})
	stored, err := store.InstancesInWindow(ctx, feed.ID, w)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, calsync.Key("kickoff", start), stored[0].InstanceKey)
}

func TestSync_Idempotent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	feed := newICSFeed(t, store)

	start := testClock.Add(24 * time.Hour)
	engine := newTestEngine(store, providerFunc(func(ctx context.Context, feed calsync.Feed, w calsync.Window) ([]calsync.Instance, error) {
		return []calsync.Instance{
			eventInstance(feed.ID, "kickoff", start),
			eventInstance(feed.ID, "retro", start.Add(48*time.Hour)),
		}, nil
	}))

	_, err := engine.Sync(ctx, feed)
	require.NoError(t, err)

	// An unchanged source produces the same counts and no deletions.
	res, err := engine.Sync(ctx, feed)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Upserted)
	assert.Zero(t, res.Deleted)

	w := calsync.ComputeWindow(testClock, calsync.WindowConfig{Lookback: 30 * 24 * time.Hour, Lookahead: 180 * 24 * time.Hour})
	stored, err := store.InstancesInWindow(ctx, feed.ID, w)
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}

func TestSync_DeletesStaleInstances(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	feed := newICSFeed(t, store)

	start := testClock.Add(24 * time.Hour)
	all := []calsync.Instance{
		eventInstance(feed.ID, "kickoff", start),
		eventInstance(feed.ID, "retro", start.Add(48*time.Hour)),
	}

	out := all
	engine := newTestEngine(store, providerFunc(func(ctx context.Context, feed calsync.Feed, w calsync.Window) ([]calsync.Instance, error) {
		instances := make([]calsync.Instance, len(out))
		copy(instances, out)
		return instances, nil
	}))

	_, err := engine.Sync(ctx, feed)
	require.NoError(t, err)

	// The source drops the retro; the stored copy follows.
	out = all[:1]
	res, err := engine.Sync(ctx, feed)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Upserted)
	assert.Equal(t, 1, res.Deleted)

	w := calsync.ComputeWindow(testClock, calsync.WindowConfig{Lookback: 30 * 24 * time.Hour, Lookahead: 180 * 24 * time.Hour})
	stored, err := store.InstancesInWindow(ctx, feed.ID, w)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "kickoff", stored[0].ExternalID)
}

func TestSync_ChunksLargeFeeds(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	feed := newICSFeed(t, store)

	engine := newTestEngine(store, providerFunc(func(ctx context.Context, feed calsync.Feed, w calsync.Window) ([]calsync.Instance, error) {
		var out []calsync.Instance
		for i := range 250 {
			out = append(out, eventInstance(feed.ID, fmt.Sprintf("evt-%d", i), testClock.Add(time.Duration(i)*time.Hour)))
		}
		return out, nil
	}))

	res, err := engine.Sync(ctx, feed)
	require.NoError(t, err)
	assert.Equal(t, 250, res.Upserted)
}

func TestSync_ProviderErrorPreservesLastSynced(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	feed := newICSFeed(t, store)

	fail := false
	engine := newTestEngine(store, providerFunc(func(ctx context.Context, feed calsync.Feed, w calsync.Window) ([]calsync.Instance, error) {
		if fail {
			return nil, fmt.Errorf("%w: unexpected status 500", calsync.ErrFetch)
		}
		return []calsync.Instance{eventInstance(feed.ID, "kickoff", testClock.Add(time.Hour))}, nil
	}))

	_, err := engine.Sync(ctx, feed)
	require.NoError(t, err)

	fail = true
	feed, err = store.Feed(ctx, feed.ID)
	require.NoError(t, err)

	res, err := engine.Sync(ctx, feed)
	require.Error(t, err)
	assert.True(t, errors.Is(err, calsync.ErrFetch))
	assert.Equal(t, calsync.StatusError, res.Status)
	require.NotNil(t, res.LastSyncedAt)
	assert.True(t, res.LastSyncedAt.Equal(testClock))
	require.NotNil(t, res.LastError)
	assert.Contains(t, *res.LastError, "unexpected status 500")

	got, err := store.Feed(ctx, feed.ID)
	require.NoError(t, err)
	assert.Equal(t, calsync.StatusError, got.Status)
	require.NotNil(t, got.LastSyncedAt)
	assert.True(t, got.LastSyncedAt.Equal(testClock))
}

func TestSync_UnknownProvider(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	feed, err := store.InsertFeed(ctx, calsync.Feed{
		UserID:   "user-1",
		Scope:    calsync.ScopePersonal,
		Provider: calsync.FeedProvider("caldav"),
	})
	require.NoError(t, err)

	engine := newTestEngine(store, providerFunc(func(ctx context.Context, feed calsync.Feed, w calsync.Window) ([]calsync.Instance, error) {
		t.Fatal("provider should not be called")
		return nil, nil
	}))

	_, err = engine.Sync(ctx, feed)
	require.Error(t, err)
	assert.True(t, errors.Is(err, calsync.ErrUnknownProvider))

	got, err := store.Feed(ctx, feed.ID)
	require.NoError(t, err)
	assert.Equal(t, calsync.StatusError, got.Status)
}

func TestSync_DisabledFeed(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	feed := newICSFeed(t, store)
	require.NoError(t, store.DisconnectFeed(ctx, feed.ID))

	feed, err := store.Feed(ctx, feed.ID)
	require.NoError(t, err)

	engine := newTestEngine(store, providerFunc(func(ctx context.Context, feed calsync.Feed, w calsync.Window) ([]calsync.Instance, error) {
		t.Fatal("provider should not be called")
		return nil, nil
	}))

	_, err = engine.Sync(ctx, feed)
	require.Error(t, err)
	assert.True(t, errors.Is(err, calsync.ErrFeedDisabled))

	// A disabled feed is never flipped to errored by a refused run.
	got, err := store.Feed(ctx, feed.ID)
	require.NoError(t, err)
	assert.Equal(t, calsync.StatusDisabled, got.Status)
}

// failingStore wraps a real store and fails instance writes.
type failingStore struct {
	calsync.Store
}

func (f failingStore) UpsertInstances(ctx context.Context, instances []calsync.Instance) (int, error) {
	return 0, errors.New("disk I/O error")
}

func TestSync_StoreFailure(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	feed := newICSFeed(t, store)

	engine := calsync.NewEngine(
		failingStore{Store: store},
		map[calsync.FeedProvider]calsync.Provider{
			calsync.ProviderICS: providerFunc(func(ctx context.Context, feed calsync.Feed, w calsync.Window) ([]calsync.Instance, error) {
				return []calsync.Instance{eventInstance(feed.ID, "kickoff", testClock.Add(time.Hour))}, nil
			}),
		},
		calsync.WindowConfig{Lookback: 30 * 24 * time.Hour, Lookahead: 180 * 24 * time.Hour},
		calsync.WithClock(func() time.Time { return testClock }),
	)

	res, err := engine.Sync(ctx, feed)
	require.Error(t, err)
	assert.True(t, errors.Is(err, calsync.ErrStore))
	assert.Equal(t, calsync.StatusError, res.Status)

	got, err := store.Feed(ctx, feed.ID)
	require.NoError(t, err)
	assert.Equal(t, calsync.StatusError, got.Status)
	require.NotNil(t, got.LastError)
	assert.Contains(t, *got.LastError, "disk I/O error")
}
