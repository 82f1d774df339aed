// Package app initializes and holds long-lived application services, acting
// as a dependency injection container for the CLI commands.
package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-feeds/internal/clock/system"
	"github.com/JakeFAU/realtime-feeds/internal/config"
	"github.com/JakeFAU/realtime-feeds/internal/dates"
	"github.com/JakeFAU/realtime-feeds/internal/excerpt"
	"github.com/JakeFAU/realtime-feeds/internal/export"
	"github.com/JakeFAU/realtime-feeds/internal/feeds"
	"github.com/JakeFAU/realtime-feeds/internal/fetcher"
	"github.com/JakeFAU/realtime-feeds/internal/id/uuid"
	"github.com/JakeFAU/realtime-feeds/internal/identity"
	"github.com/JakeFAU/realtime-feeds/internal/logging"
	"github.com/JakeFAU/realtime-feeds/internal/notify"
	pubsubnotify "github.com/JakeFAU/realtime-feeds/internal/notify/pubsub"
	"github.com/JakeFAU/realtime-feeds/internal/orchestrator"
	"github.com/JakeFAU/realtime-feeds/internal/policy/ratelimit"
	"github.com/JakeFAU/realtime-feeds/internal/publish"
	"github.com/JakeFAU/realtime-feeds/internal/storage"
	"github.com/JakeFAU/realtime-feeds/internal/storage/gcs"
	"github.com/JakeFAU/realtime-feeds/internal/storage/local"
	"github.com/JakeFAU/realtime-feeds/internal/store"
	"github.com/JakeFAU/realtime-feeds/internal/verify"
)

// App holds the shared services for one command invocation.
type App struct {
	cfg    config.Config
	logger *zap.Logger
	runID  string
	clock  feeds.Clock
	store  *store.Store

	closers []io.Closer
}

// Options overrides collaborators, mainly for tests.
type Options struct {
	Logger *zap.Logger
	Clock  feeds.Clock
	IDs    feeds.IDGenerator
}

// NewApp builds the logger and opens the store. It fails fast if either
// cannot be initialized.
func NewApp(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		var err error
		logger, err = logging.New(cfg.Logging.Development)
		if err != nil {
			return nil, err
		}
	}
	ids := opts.IDs
	if ids == nil {
		ids = uuid.New()
	}
	runID, err := ids.NewID()
	if err != nil {
		return nil, fmt.Errorf("generate run id: %w", err)
	}
	logger = logging.ForRun(logger, runID)
	for _, w := range cfg.Warnings {
		logger.Warn("config warning", zap.String("warning", w))
	}

	clock := opts.Clock
	if clock == nil {
		clock = system.New()
	}

	st, err := store.Open(ctx, cfg.Store.Path, store.Options{BatchSize: cfg.Store.BatchSize})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	logger.Debug("application services initialized", zap.String("store", cfg.Store.Path))

	return &App{
		cfg:     cfg,
		logger:  logger,
		runID:   runID,
		clock:   clock,
		store:   st,
		closers: []io.Closer{st},
	}, nil
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config { return a.cfg }

// Logger returns the run-scoped logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// RunID returns the id of this invocation.
func (a *App) RunID() string { return a.runID }

// Store returns the persistent store.
func (a *App) Store() *store.Store { return a.store }

// Orchestrator wires the fetch stack from configuration.
func (a *App) Orchestrator() (*orchestrator.Orchestrator, error) {
	backoff, err := a.cfg.BackoffSchedule()
	if err != nil {
		return nil, err
	}
	fetchCfg := fetcher.Config{UserAgent: a.cfg.Fetch.UserAgent, Timeout: a.cfg.Fetch.Timeout}
	client := fetcher.NewHTTPClient(a.cfg.Fetch.Timeout)
	retry := fetcher.NewRetryPolicy(a.cfg.Fetch.MaxAttempts, backoff)

	direct := fetcher.NewDirectStrategy(client, fetchCfg, retry)
	relay := fetcher.NewRelayStrategy(client, fetchCfg, fetcher.RelayConfig{
		Endpoint:      a.cfg.Relay.URL,
		QueryParam:    a.cfg.Relay.QueryParam,
		BlockedStatus: a.cfg.Relay.BlockedStatus,
	}, retry, a.logger)
	selector := fetcher.NewSelector(direct, relay, fetcher.NewHostPatterns(a.cfg.Fetch.SensitiveHosts), a.logger)

	excerptCfg := excerpt.Config{
		MaxRunes:          a.cfg.Excerpt.MaxRunes,
		MinParagraphRunes: a.cfg.Excerpt.MinParagraphRunes,
		PageFetch:         a.cfg.Excerpt.PageFetch,
		PerSource:         a.cfg.Excerpt.PagePerSource,
		Concurrency:       a.cfg.Excerpt.PageConcurrency,
	}
	var pages excerpt.PageFetcher
	if excerptCfg.PageFetch {
		pages = excerpt.NewCollyPageFetcher(excerpt.CollyConfig{
			UserAgent:     a.cfg.Fetch.UserAgent,
			Timeout:       a.cfg.Fetch.Timeout,
			RespectRobots: a.cfg.Excerpt.RespectRobots,
		})
	}
	limiter := ratelimit.New(ratelimit.Config{DefaultRPS: a.cfg.Excerpt.PageHostRPS, DefaultBurst: 1})
	excerpts := excerpt.NewResolver(excerptCfg, pages, nil, limiter, a.logger)

	return orchestrator.New(orchestrator.Config{
		Concurrency:     a.cfg.Fetch.Concurrency,
		BatchSize:       a.cfg.Fetch.BatchSize,
		BatchDelay:      a.cfg.Fetch.BatchDelay,
		DefaultMaxItems: a.cfg.Items.DefaultMax,
	}, orchestrator.Deps{
		Fetcher:  selector,
		Parser:   fetcher.NewParser(),
		Identity: identity.NewResolver(nil),
		Dates: dates.NewResolver(dates.Config{
			MaxFutureDays:      a.cfg.Dates.MaxFutureDays,
			InferredPreferDays: a.cfg.Dates.InferredPreferDays,
			RecentWindowDays:   a.cfg.Dates.RecentWindowDays,
		}, a.clock),
		Excerpts: excerpts,
		Clock:    a.clock,
		Logger:   a.logger,
	}), nil
}

// Exporter builds an exporter reading from the store.
func (a *App) Exporter() *export.Exporter {
	return export.New(a.store, a.clock, a.logger)
}

// Verifier builds a verifier from configuration.
func (a *App) Verifier() *verify.Verifier {
	return verify.New(verify.Config{DriftWarn: a.cfg.Verify.DriftWarn})
}

// Publisher builds the blob store and notifier for the configured
// providers. Clients it opens are released by Close.
func (a *App) Publisher(ctx context.Context) (*publish.Publisher, error) {
	var blobs storage.BlobStore
	switch a.cfg.Publish.Provider {
	case config.ProviderLocal:
		a.logger.Info("using local blob store", zap.String("dir", a.cfg.Publish.LocalDir))
		bs, err := local.New(local.Config{BaseDir: a.cfg.Publish.LocalDir})
		if err != nil {
			return nil, fmt.Errorf("init local blob store: %w", err)
		}
		blobs = bs
	case config.ProviderGCS:
		a.logger.Info("using GCS blob store", zap.String("bucket", a.cfg.Publish.GCSBucket))
		bs, err := gcs.Dial(ctx, gcs.Config{Bucket: a.cfg.Publish.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("init gcs blob store: %w", err)
		}
		a.closers = append(a.closers, bs)
		blobs = bs
	case config.ProviderNone:
		return nil, fmt.Errorf("publish provider is %q; nothing to publish to", config.ProviderNone)
	default:
		return nil, fmt.Errorf("unknown publish provider: %s", a.cfg.Publish.Provider)
	}

	var notifier notify.Notifier
	if a.cfg.Notify.Enabled() {
		a.logger.Info("connecting to Pub/Sub", zap.String("topic", a.cfg.Notify.Topic))
		n, err := pubsubnotify.Dial(ctx, a.cfg.Notify.ProjectID, a.cfg.Notify.Topic)
		if err != nil {
			return nil, fmt.Errorf("init notifier: %w", err)
		}
		a.closers = append(a.closers, n)
		notifier = n
	}

	return publish.New(a.Verifier(), a.store, blobs, notifier, publish.Options{
		Prefix: a.cfg.Publish.Prefix,
		RunID:  a.runID,
	}, a.logger), nil
}

// Now returns the app clock's current time.
func (a *App) Now() time.Time { return a.clock.Now() }

// Close shuts down every service opened by the App, newest first.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.logger.Warn("error closing service", zap.Error(err))
		}
	}
	a.closers = nil
	_ = a.logger.Sync()
}
