package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"modernc.org/sqlite"

	"github.com/cicconel11/TeamNetwork-sub006/internal/calsync"
)

const feedNamespace = "-fd"

func (r *Repo) Feed(ctx context.Context, id string) (calsync.Feed, error) {
	const q = `SELECT * FROM feeds WHERE id = ?;`

	var feed calsync.Feed
	err := r.db.GetContext(ctx, &feed, q, id)
	if errors.Is(err, sql.ErrNoRows) {
		return calsync.Feed{}, calsync.ErrNotFound
	}
	if err != nil {
		return calsync.Feed{}, fmt.Errorf("error fetching feed: %s", err)
	}

	return feed, nil
}

func (r *Repo) InsertFeed(ctx context.Context, feed calsync.Feed) (calsync.Feed, error) {
	const q = `INSERT INTO feeds (id, user_id, org_id, scope, provider, url, google_calendar_id, connected_user_id, status)
	VALUES (:id, :user_id, :org_id, :scope, :provider, :url, :google_calendar_id, :connected_user_id, :status);`

	feed.ID = fmt.Sprintf("%s%s", uuid.NewString(), feedNamespace)
	if feed.Status == "" {
		feed.Status = calsync.StatusActive
	}

	_, err := r.db.NamedExecContext(ctx, q, feed)
	if sqliteErr := (&sqlite.Error{}); errors.As(err, &sqliteErr) && sqliteErr.Code() == 2067 {
		return calsync.Feed{}, fmt.Errorf("feed already exists: %w", calsync.ErrConflict)
	}
	if err != nil {
		return calsync.Feed{}, fmt.Errorf("error inserting feed: %s", err)
	}

	return r.Feed(ctx, feed.ID)
}

// SyncableFeeds retrieves every feed that is not disabled; errored feeds
// are included so they get retried on the next invocation.
func (r *Repo) SyncableFeeds(ctx context.Context) ([]calsync.Feed, error) {
	const q = `SELECT * FROM feeds WHERE status != ?;`

	var feeds []calsync.Feed
	if err := r.db.SelectContext(ctx, &feeds, q, calsync.StatusDisabled); err != nil {
		return nil, fmt.Errorf("error selecting syncable feeds: %s", err)
	}

	return feeds, nil
}

// DisconnectFeed is the only path to the disabled status.
func (r *Repo) DisconnectFeed(ctx context.Context, id string) error {
	const q = `UPDATE feeds SET status = ?, updated_at = ? WHERE id = ?;`

	res, err := r.db.ExecContext(ctx, q, calsync.StatusDisabled, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("error disconnecting feed: %s", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return calsync.ErrNotFound
	}

	return nil
}

func (r *Repo) MarkFeedSynced(ctx context.Context, id string, at time.Time) error {
	const q = `UPDATE feeds SET status = ?, last_synced_at = ?, last_error = NULL, updated_at = ? WHERE id = ?;`

	if _, err := r.db.ExecContext(ctx, q, calsync.StatusActive, at.UTC(), time.Now().UTC(), id); err != nil {
		return fmt.Errorf("error marking feed synced: %s", err)
	}

	return nil
}

// MarkFeedErrored records the failure without touching last_synced_at,
// so "never synced" stays distinguishable from "errored after a prior
// success".
func (r *Repo) MarkFeedErrored(ctx context.Context, id string, msg string) error {
	const q = `UPDATE feeds SET status = ?, last_error = ?, updated_at = ? WHERE id = ?;`

	if _, err := r.db.ExecContext(ctx, q, calsync.StatusError, msg, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("error marking feed errored: %s", err)
	}

	return nil
}
