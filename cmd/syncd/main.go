// Syncd is the calendar feed synchronization daemon.
//
// It keeps the instance store up to date with the external calendar
// sources that have been connected, syncing on a cron schedule and on
// demand through a small HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sethvargo/go-envconfig"
	"golang.org/x/sync/errgroup"
	_ "modernc.org/sqlite"

	"github.com/cicconel11/TeamNetwork-sub006/internal/authclient"
	"github.com/cicconel11/TeamNetwork-sub006/internal/calsync"
	"github.com/cicconel11/TeamNetwork-sub006/internal/gcal"
	"github.com/cicconel11/TeamNetwork-sub006/internal/ics"
	"github.com/cicconel11/TeamNetwork-sub006/internal/migrations"
	"github.com/cicconel11/TeamNetwork-sub006/internal/scheduler"
	"github.com/cicconel11/TeamNetwork-sub006/internal/sqlite"
	"github.com/cicconel11/TeamNetwork-sub006/internal/syncapi"
	"github.com/cicconel11/TeamNetwork-sub006/logger"
)

type config struct {
	Port     int    `env:"PORT, default=4444"`
	Database string `env:"DATABASE, required"`

	// Which format to use for logging: either text or json
	LoggerFormat string `env:"LOGGER_FORMAT, default=text"`

	SyncCron          string `env:"SYNC_CRON, default=*/15 * * * *"`
	SyncLookbackDays  int    `env:"SYNC_LOOKBACK_DAYS, default=30"`
	SyncLookaheadDays int    `env:"SYNC_LOOKAHEAD_DAYS, default=180"`

	AuthServiceURL   string        `env:"AUTH_SERVICE_URL, required"`
	AuthServiceToken string        `env:"AUTH_SERVICE_TOKEN"`
	TokenCacheTTL    time.Duration `env:"TOKEN_CACHE_TTL, default=5m"`
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	// Parse the config
	var cfg config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		log.Fatalf("error parsing config: %s", err)
	}

	// Determine which logger format to use
	var handler slog.Handler = slog.NewTextHandler(os.Stderr, nil)
	if cfg.LoggerFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, nil)
	}
	l := slog.New(logger.NewContextHandler(handler))
	slog.SetDefault(l)

	// Start the application
	if err := run(ctx, cfg); err != nil {
		slog.Error("error running", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config) error {
	slog.Info("running", "port", cfg.Port, "sync_cron", cfg.SyncCron)

	// Connect to the db
	dbx, err := sqlx.Open("sqlite", fmt.Sprintf("%s?_txlock=immediate&_journal_mode=WAL&_busy_timeout=5000", cfg.Database))
	if err != nil {
		return fmt.Errorf("error opening database: %s", err)
	}
	defer dbx.Close()

	// Migrate, always
	if err := migrations.Run(dbx); err != nil {
		return fmt.Errorf("error migrating: %s", err)
	}

	repo := sqlite.New(dbx)

	auth := authclient.New(cfg.AuthServiceURL, cfg.AuthServiceToken)
	tokens := gcal.NewCachingTokenProvider(auth, cfg.TokenCacheTTL)

	engine := calsync.NewEngine(repo, map[calsync.FeedProvider]calsync.Provider{
		calsync.ProviderICS:    ics.NewProvider(),
		calsync.ProviderGoogle: gcal.NewProvider(tokens, auth),
	}, calsync.WindowConfig{
		Lookback:  time.Duration(cfg.SyncLookbackDays) * 24 * time.Hour,
		Lookahead: time.Duration(cfg.SyncLookaheadDays) * 24 * time.Hour,
	})

	sched := scheduler.New(repo, engine, cfg.SyncCron)
	srv := syncapi.NewServer(cfg.Port, repo, sched)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// Start the server
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("error listening: %s", err)
		}

		return nil
	})
	g.Go(func() error {
		// Block from shutting down until the group is canceled
		<-gCtx.Done()

		downCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(downCtx); err != nil {
			slog.Error("error shutting down server", "error", err)
		}

		return nil
	})
	g.Go(func() error {
		// Start the sync scheduler
		if err := sched.Run(gCtx); err != nil {
			return fmt.Errorf("error running scheduler: %s", err)
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("error running: %s", err)
	}

	return nil
}
