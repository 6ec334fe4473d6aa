// Package syncapi exposes the thin HTTP triggers around the sync
// engine: connecting a feed, running a sync on demand, and
// disconnecting.
package syncapi

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/cicconel11/TeamNetwork-sub006/internal/calsync"
	apperrs "github.com/cicconel11/TeamNetwork-sub006/internal/errors"
	"github.com/cicconel11/TeamNetwork-sub006/internal/scheduler"
	"github.com/cicconel11/TeamNetwork-sub006/internal/serverutil"
)

// Server handles requests to manage calendar feeds and trigger syncs.
type Server struct {
	*http.Server

	store calsync.Store
	sched *scheduler.Scheduler
}

func NewServer(port int, store calsync.Store, sched *scheduler.Scheduler) *Server {
	r := serverutil.ErrRouter{Router: mux.NewRouter()}

	srvr := &Server{
		store: store,
		sched: sched,
	}

	r.HandleFuncE("/v1/feeds", srvr.handleConnectFeed).Methods(http.MethodPost)
	r.HandleFuncE("/v1/feeds/{id}", srvr.handleGetFeed).Methods(http.MethodGet)
	r.HandleFuncE("/v1/feeds/{id}", srvr.handleDisconnectFeed).Methods(http.MethodDelete)
	r.HandleFuncE("/v1/feeds/{id}/sync", srvr.handleSyncFeed).Methods(http.MethodPost)

	srvr.Server = &http.Server{
		Addr:        fmt.Sprintf(":%d", port),
		ReadTimeout: 5 * time.Second,
		// Sync-now holds the connection for the duration of the run.
		WriteTimeout: 60 * time.Second,
		Handler:      serverutil.AccessLogMiddleware(r),
	}

	return srvr
}

type ConnectFeedRequest struct {
	UserID   string `json:"user_id"`
	OrgID    string `json:"org_id"`
	Scope    string `json:"scope"`
	Provider string `json:"provider"`

	URL              string `json:"url"`
	GoogleCalendarID string `json:"google_calendar_id"`
	ConnectedUserID  string `json:"connected_user_id"`
}

func (r ConnectFeedRequest) Validate() error {
	var details []apperrs.Detail
	if r.UserID == "" {
		details = append(details, apperrs.Detail{Field: "user_id", Error: "required"})
	}

	switch calsync.FeedProvider(r.Provider) {
	case calsync.ProviderICS:
		if r.URL == "" {
			details = append(details, apperrs.Detail{Field: "url", Error: "required for ics feeds"})
		}
	case calsync.ProviderGoogle:
		if r.GoogleCalendarID == "" {
			details = append(details, apperrs.Detail{Field: "google_calendar_id", Error: "required for google feeds"})
		}
		if r.ConnectedUserID == "" {
			details = append(details, apperrs.Detail{Field: "connected_user_id", Error: "required for google feeds"})
		}
	default:
		details = append(details, apperrs.Detail{Field: "provider", Error: "must be ics or google"})
	}

	switch calsync.FeedScope(r.Scope) {
	case calsync.ScopePersonal, "":
	case calsync.ScopeOrganization:
		if r.OrgID == "" {
			details = append(details, apperrs.Detail{Field: "org_id", Error: "required for organization feeds"})
		}
	default:
		details = append(details, apperrs.Detail{Field: "scope", Error: "must be personal or organization"})
	}

	if len(details) > 0 {
		return apperrs.E(http.StatusBadRequest, "invalid request", details)
	}

	return nil
}

type FeedResponse struct {
	ID           string     `json:"id"`
	UserID       string     `json:"user_id"`
	OrgID        *string    `json:"org_id,omitempty"`
	Scope        string     `json:"scope"`
	Provider     string     `json:"provider"`
	Status       string     `json:"status"`
	LastSyncedAt *time.Time `json:"last_synced_at"`
	LastError    *string    `json:"last_error"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func feedResponse(feed calsync.Feed) FeedResponse {
	return FeedResponse{
		ID:           feed.ID,
		UserID:       feed.UserID,
		OrgID:        feed.OrgID,
		Scope:        string(feed.Scope),
		Provider:     string(feed.Provider),
		Status:       string(feed.Status),
		LastSyncedAt: feed.LastSyncedAt,
		LastError:    feed.LastError,
		CreatedAt:    feed.CreatedAt,
		UpdatedAt:    feed.UpdatedAt,
	}
}

func (s *Server) handleConnectFeed(w http.ResponseWriter, r *http.Request) error {
	body, err := serverutil.DecodeValid[ConnectFeedRequest](r.Body)
	if err != nil {
		return apperrs.E(http.StatusBadRequest, err)
	}

	scope := calsync.FeedScope(body.Scope)
	if scope == "" {
		scope = calsync.ScopePersonal
	}
	var orgID *string
	if body.OrgID != "" {
		orgID = &body.OrgID
	}

	feed, err := s.store.InsertFeed(r.Context(), calsync.Feed{
		UserID:           body.UserID,
		OrgID:            orgID,
		Scope:            scope,
		Provider:         calsync.FeedProvider(body.Provider),
		URL:              body.URL,
		GoogleCalendarID: body.GoogleCalendarID,
		ConnectedUserID:  body.ConnectedUserID,
	})
	if errors.Is(err, calsync.ErrConflict) {
		return apperrs.E(http.StatusConflict, err)
	}
	if err != nil {
		return err
	}

	return serverutil.WriteJSON(w, http.StatusCreated, feedResponse(feed))
}

func (s *Server) handleGetFeed(w http.ResponseWriter, r *http.Request) error {
	feed, err := s.feedFromPath(r)
	if err != nil {
		return err
	}

	return serverutil.WriteJSON(w, http.StatusOK, feedResponse(feed))
}

func (s *Server) handleDisconnectFeed(w http.ResponseWriter, r *http.Request) error {
	id := mux.Vars(r)["id"]

	err := s.store.DisconnectFeed(r.Context(), id)
	if errors.Is(err, calsync.ErrNotFound) {
		return apperrs.E(http.StatusNotFound, err)
	}
	if err != nil {
		return err
	}

	w.WriteHeader(http.StatusNoContent)
	return nil
}

// handleSyncFeed triggers one run and returns its result. A run that
// ends in feed error still responds 200; the result carries the status
// and last error for the caller.
func (s *Server) handleSyncFeed(w http.ResponseWriter, r *http.Request) error {
	feed, err := s.feedFromPath(r)
	if err != nil {
		return err
	}

	result, err := s.sched.SyncNow(r.Context(), feed)
	if errors.Is(err, scheduler.ErrSyncInProgress) {
		return apperrs.E(http.StatusConflict, err)
	}
	if errors.Is(err, calsync.ErrFeedDisabled) {
		return apperrs.E(http.StatusConflict, err)
	}

	return serverutil.WriteJSON(w, http.StatusOK, result)
}

func (s *Server) feedFromPath(r *http.Request) (calsync.Feed, error) {
	id := mux.Vars(r)["id"]

	feed, err := s.store.Feed(r.Context(), id)
	if errors.Is(err, calsync.ErrNotFound) {
		return calsync.Feed{}, apperrs.E(http.StatusNotFound, err)
	}
	if err != nil {
		return calsync.Feed{}, err
	}

	return feed, nil
}
