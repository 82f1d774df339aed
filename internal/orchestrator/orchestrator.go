// Package orchestrator schedules feed fetches across sources, isolates
// per-source failures, and normalizes items into posts.
//
// Sources are split into two partitions. Direct sources share a bounded
// worker pool. Rate-limit-sensitive sources go through the relay in small
// parallel batches separated by a fixed pause; that pause is backpressure
// against upstream abuse detection and must stay in place.
package orchestrator

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/realtime-feeds/internal/clock/system"
	"github.com/JakeFAU/realtime-feeds/internal/dates"
	"github.com/JakeFAU/realtime-feeds/internal/excerpt"
	"github.com/JakeFAU/realtime-feeds/internal/feeds"
	"github.com/JakeFAU/realtime-feeds/internal/fetcher"
	"github.com/JakeFAU/realtime-feeds/internal/identity"
)

// FeedFetcher retrieves a source's feed body and reports whether the source
// is rate-limit-sensitive.
type FeedFetcher interface {
	Sensitive(source feeds.Source) bool
	Fetch(ctx context.Context, source feeds.Source) (fetcher.Result, error)
}

// FeedParser decodes a feed body.
type FeedParser interface {
	Parse(body []byte) (feeds.RawFeed, error)
}

// Excerpter resolves excerpts under a per-source scrape budget.
type Excerpter interface {
	NewBudget() *excerpt.Budget
	Resolve(ctx context.Context, req excerpt.Request, budget *excerpt.Budget) string
}

// Config holds scheduling limits.
type Config struct {
	// Concurrency bounds in-flight direct fetches.
	Concurrency int
	// BatchSize is the number of sensitive sources fetched together.
	BatchSize int
	// BatchDelay separates consecutive sensitive batches.
	BatchDelay time.Duration
	// DefaultMaxItems caps posts per source when the source sets no cap.
	DefaultMaxItems int
}

// Deps groups the collaborators an Orchestrator needs.
type Deps struct {
	Fetcher  FeedFetcher
	Parser   FeedParser
	Identity *identity.Resolver
	Dates    *dates.Resolver
	Excerpts Excerpter
	Clock    feeds.Clock
	Logger   *zap.Logger
}

// Orchestrator runs one ingestion pass over a source list.
type Orchestrator struct {
	cfg    Config
	deps   Deps
	pauser pauseController
}

// New builds an Orchestrator.
func New(cfg Config, deps Deps) *Orchestrator {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Clock == nil {
		deps.Clock = system.New()
	}
	if deps.Identity == nil {
		deps.Identity = identity.NewResolver(nil)
	}
	if deps.Dates == nil {
		deps.Dates = dates.NewResolver(dates.DefaultConfig(), deps.Clock)
	}
	if deps.Excerpts == nil {
		cfg := excerpt.DefaultConfig()
		cfg.PageFetch = false
		deps.Excerpts = excerpt.NewResolver(cfg, nil, nil, nil, deps.Logger)
	}
	if deps.Parser == nil {
		deps.Parser = fetcher.NewParser()
	}
	return &Orchestrator{cfg: cfg, deps: deps, pauser: &timerPauseController{}}
}

// Run fetches every source and returns one result per source in input
// order. It never fails as a whole; per-source failures become error rows.
func (o *Orchestrator) Run(ctx context.Context, sources []feeds.Source, snapshot feeds.Snapshot) []feeds.SourceResult {
	results := make([]feeds.SourceResult, len(sources))
	direct, sensitive := o.partition(sources)

	o.deps.Logger.Info("starting fetch run",
		zap.Int("direct", len(direct)),
		zap.Int("sensitive", len(sensitive)),
		zap.Int("concurrency", o.cfg.Concurrency),
		zap.Int("batch_size", o.cfg.BatchSize),
		zap.Duration("batch_delay", o.cfg.BatchDelay),
	)

	var outer errgroup.Group
	outer.Go(func() error {
		o.runDirect(ctx, sources, direct, snapshot, results)
		return nil
	})
	outer.Go(func() error {
		o.runSensitive(ctx, sources, sensitive, snapshot, results)
		return nil
	})
	_ = outer.Wait()
	return results
}

// partition splits source indexes into direct and sensitive sets,
// preserving input order within each.
func (o *Orchestrator) partition(sources []feeds.Source) (direct, sensitive []int) {
	for i, src := range sources {
		if o.deps.Fetcher.Sensitive(src) {
			sensitive = append(sensitive, i)
			continue
		}
		direct = append(direct, i)
	}
	return direct, sensitive
}

func (o *Orchestrator) runDirect(ctx context.Context, sources []feeds.Source, idx []int, snapshot feeds.Snapshot, results []feeds.SourceResult) {
	var g errgroup.Group
	g.SetLimit(o.cfg.Concurrency)
	for _, i := range idx {
		g.Go(func() error {
			results[i] = o.safeProcess(ctx, sources[i], snapshot)
			return nil
		})
	}
	_ = g.Wait()
}

func (o *Orchestrator) runSensitive(ctx context.Context, sources []feeds.Source, idx []int, snapshot feeds.Snapshot, results []feeds.SourceResult) {
	batches := Batches(idx, o.cfg.BatchSize)
	for n, batch := range batches {
		if n > 0 {
			o.pauser.Pause(ctx, o.cfg.BatchDelay)
		}
		var g errgroup.Group
		for _, i := range batch {
			g.Go(func() error {
				results[i] = o.safeProcess(ctx, sources[i], snapshot)
				return nil
			})
		}
		_ = g.Wait()
		o.deps.Logger.Debug("sensitive batch complete",
			zap.Int("batch", n+1),
			zap.Int("of", len(batches)),
			zap.Int("sources", len(batch)),
		)
	}
}

// Batches splits idx into consecutive groups of at most size elements.
func Batches(idx []int, size int) [][]int {
	if size <= 0 {
		size = 1
	}
	var out [][]int
	for start := 0; start < len(idx); start += size {
		end := min(start+size, len(idx))
		out = append(out, idx[start:end])
	}
	return out
}

// pauseController abstracts how the orchestrator waits between batches.
type pauseController interface {
	Pause(ctx context.Context, delay time.Duration)
}

type timerPauseController struct{}

func (p *timerPauseController) Pause(ctx context.Context, delay time.Duration) {
	if delay <= 0 {
		return
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
