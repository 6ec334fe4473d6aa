// Package calsync implements the calendar feed synchronization engine.
//
// A Feed is a configured external calendar source (an ICS URL or a
// connected Google calendar). Each sync run fetches the source, expands
// it into concrete Instances inside a bounded time window, and reconciles
// those against the store.
package calsync

import (
	"context"
	"errors"
	"time"
)

var (
	ErrConflict = errors.New("resource already exists")
	ErrNotFound = errors.New("resource not found")

	// Failure kinds for a sync run. Every error surfaced by a run wraps
	// exactly one of these.
	ErrFetch = errors.New("fetch failed")
	ErrAuth  = errors.New("authorization failed")
	ErrParse = errors.New("parse failed")
	ErrStore = errors.New("store operation failed")

	ErrUnknownProvider = errors.New("unknown feed provider")
	ErrFeedDisabled    = errors.New("feed is disabled")
)

type (
	FeedProvider string
	FeedScope    string
	FeedStatus   string
)

const (
	ProviderICS    FeedProvider = "ics"
	ProviderGoogle FeedProvider = "google"

	ScopePersonal     FeedScope = "personal"
	ScopeOrganization FeedScope = "organization"

	// StatusDisabled is only ever reached through an explicit disconnect,
	// never set by a sync run.
	StatusActive   FeedStatus = "active"
	StatusError    FeedStatus = "error"
	StatusDisabled FeedStatus = "disabled"
)

type (
	// Feed represents a configured external calendar source.
	Feed struct {
		ID       string       `db:"id"`
		UserID   string       `db:"user_id"`
		OrgID    *string      `db:"org_id"`
		Scope    FeedScope    `db:"scope"`
		Provider FeedProvider `db:"provider"`

		// URL is the source locator for ICS feeds.
		URL string `db:"url"`
		// GoogleCalendarID and ConnectedUserID locate a Google feed.
		GoogleCalendarID string `db:"google_calendar_id"`
		ConnectedUserID  string `db:"connected_user_id"`

		Status       FeedStatus `db:"status"`
		LastSyncedAt *time.Time `db:"last_synced_at"`
		LastError    *string    `db:"last_error"`
		CreatedAt    time.Time  `db:"created_at"`
		UpdatedAt    time.Time  `db:"updated_at"`
	}

	// Instance is one concrete calendar occurrence materialized from a
	// feed, whether from a single event or a recurrence expansion.
	Instance struct {
		ID     string `db:"id"`
		FeedID string `db:"feed_id"`

		// ExternalID is stable per logical event or recurring series.
		ExternalID string `db:"external_id"`
		// InstanceKey is ExternalID plus the resolved start instant,
		// unique within a feed. It is the conflict target for upsert.
		InstanceKey string `db:"instance_key"`

		Title       string    `db:"title"`
		Description string    `db:"description"`
		Location    string    `db:"location"`
		StartsAt    time.Time `db:"starts_at"`
		EndsAt      time.Time `db:"ends_at"`
		AllDay      bool      `db:"all_day"`
		RawPayload  string    `db:"raw_payload"`
		CreatedAt   time.Time `db:"created_at"`
		UpdatedAt   time.Time `db:"updated_at"`
	}

	// SyncResult is the outcome of one sync run.
	SyncResult struct {
		Status       FeedStatus `json:"status"`
		LastSyncedAt *time.Time `json:"last_synced_at"`
		LastError    *string    `json:"last_error"`
		Upserted     int        `json:"upserted"`
		Deleted      int        `json:"deleted"`
	}

	// Store is the persistence surface the engine reconciles against.
	Store interface {
		Feed(ctx context.Context, id string) (Feed, error)
		InsertFeed(ctx context.Context, feed Feed) (Feed, error)
		// SyncableFeeds returns every feed that is not disabled.
		SyncableFeeds(ctx context.Context) ([]Feed, error)
		DisconnectFeed(ctx context.Context, id string) error
		MarkFeedSynced(ctx context.Context, id string, at time.Time) error
		MarkFeedErrored(ctx context.Context, id string, msg string) error

		UpsertInstances(ctx context.Context, instances []Instance) (int, error)
		InstancesInWindow(ctx context.Context, feedID string, w Window) ([]Instance, error)
		DeleteInstances(ctx context.Context, ids []string) error
	}

	// Provider fetches a feed's source and maps it to instances inside
	// the window. Implementations exist for ICS and Google.
	Provider interface {
		FetchInstances(ctx context.Context, feed Feed, w Window) ([]Instance, error)
	}

	// TokenProvider returns a currently valid access token for a user,
	// refreshing on demand. Used only by the Google path.
	TokenProvider interface {
		AccessToken(ctx context.Context, userID string) (string, error)
	}

	// RoleChecker reports whether a user is an active admin of an
	// organization. Used only for organization-scoped Google feeds.
	RoleChecker interface {
		IsActiveAdmin(ctx context.Context, userID, orgID string) (bool, error)
	}
)

// Key builds the instance key for a series identifier and a resolved
// start instant. Both providers use this scheme so reconciliation is
// provider-agnostic.
func Key(externalID string, start time.Time) string {
	return externalID + "|" + start.UTC().Format(time.RFC3339)
}
