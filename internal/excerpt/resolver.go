// Package excerpt chooses the short text shown under a post title: the feed's
// own content when present, the stored excerpt otherwise, and as a bounded
// last resort the first real paragraph of the linked page.
package excerpt

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/JakeFAU/realtime-feeds/internal/feeds"
	"github.com/JakeFAU/realtime-feeds/internal/metrics"
	"github.com/JakeFAU/realtime-feeds/internal/policy/ratelimit"
	"github.com/JakeFAU/realtime-feeds/internal/textnorm"
)

// Config controls excerpt resolution.
type Config struct {
	MaxRunes          int
	MinParagraphRunes int
	// PageFetch enables scraping linked pages for new posts.
	PageFetch bool
	// PerSource caps page scrapes per source per run.
	PerSource int
	// Concurrency caps page scrapes in flight across all sources.
	Concurrency int
}

// DefaultConfig returns stock excerpt settings.
func DefaultConfig() Config {
	return Config{MaxRunes: 280, MinParagraphRunes: 80, PageFetch: true, PerSource: 3, Concurrency: 4}
}

// Request describes one post needing an excerpt.
type Request struct {
	Item feeds.RawItem
	// Link is the post's canonical link, scraped when needed.
	Link string
	// Stored is the excerpt already persisted for this identity key.
	Stored string
	// IsNew marks posts not yet in the store; only these are scraped.
	IsNew bool
}

// Budget is a per-source, per-run allowance of page scrapes.
type Budget struct {
	remaining atomic.Int64
}

// NewBudget returns a budget of n scrapes.
func NewBudget(n int) *Budget {
	b := &Budget{}
	b.remaining.Store(int64(n))
	return b
}

func (b *Budget) take() bool {
	if b == nil {
		return false
	}
	for {
		cur := b.remaining.Load()
		if cur <= 0 {
			return false
		}
		if b.remaining.CompareAndSwap(cur, cur-1) {
			return true
		}
	}
}

// Remaining reports scrapes left in the budget.
func (b *Budget) Remaining() int {
	if b == nil {
		return 0
	}
	return int(b.remaining.Load())
}

// Resolver implements the excerpt preference order.
type Resolver struct {
	cfg       Config
	pages     PageFetcher
	extractor Extractor
	limiter   *ratelimit.Limiter
	sem       *semaphore.Weighted
	logger    *zap.Logger
}

// NewResolver builds a Resolver. pages may be nil, which disables scraping.
func NewResolver(cfg Config, pages PageFetcher, extractor Extractor, limiter *ratelimit.Limiter, logger *zap.Logger) *Resolver {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if extractor == nil {
		extractor = ParagraphExtractor{MinRunes: cfg.MinParagraphRunes, MaxRunes: cfg.MaxRunes}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		cfg:       cfg,
		pages:     pages,
		extractor: extractor,
		limiter:   limiter,
		sem:       semaphore.NewWeighted(int64(cfg.Concurrency)),
		logger:    logger,
	}
}

// NewBudget returns a fresh per-source budget sized from the config.
func (r *Resolver) NewBudget() *Budget {
	if !r.cfg.PageFetch || r.pages == nil {
		return NewBudget(0)
	}
	return NewBudget(r.cfg.PerSource)
}

// FromFeed returns the stripped, truncated feed content, preferring the
// full content over the summary.
func (r *Resolver) FromFeed(item feeds.RawItem) string {
	for _, markup := range []string{item.Content, item.Summary} {
		if text := textnorm.Excerpt(markup, r.cfg.MaxRunes); text != "" {
			return text
		}
	}
	return ""
}

// Resolve returns the excerpt for req. Scrape failures yield "".
func (r *Resolver) Resolve(ctx context.Context, req Request, budget *Budget) string {
	if text := r.FromFeed(req.Item); text != "" {
		return text
	}
	if req.Stored != "" {
		return req.Stored
	}
	if !req.IsNew || req.Link == "" || r.pages == nil || !r.cfg.PageFetch {
		return ""
	}
	if !budget.take() {
		return ""
	}
	return r.scrape(ctx, req.Link)
}

func (r *Resolver) scrape(ctx context.Context, link string) string {
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return ""
	}
	defer r.sem.Release(1)

	if r.limiter != nil {
		if err := r.limiter.Wait(ctx, link); err != nil {
			return ""
		}
	}
	body, err := r.pages.FetchPage(ctx, link)
	if err != nil {
		metrics.ObservePageExcerpt("error")
		r.logger.Debug("page excerpt fetch failed", zap.String("link", link), zap.Error(err))
		return ""
	}
	text := r.extractor.Extract(body)
	if text == "" {
		metrics.ObservePageExcerpt("miss")
		return ""
	}
	metrics.ObservePageExcerpt("hit")
	return text
}
