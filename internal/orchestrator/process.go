package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-feeds/internal/dates"
	"github.com/JakeFAU/realtime-feeds/internal/excerpt"
	"github.com/JakeFAU/realtime-feeds/internal/feeds"
	"github.com/JakeFAU/realtime-feeds/internal/metrics"
	"github.com/JakeFAU/realtime-feeds/internal/textnorm"
)

// Drop reasons recorded in metrics and logs.
const (
	dropInvalid   = "invalid"
	dropUndated   = "undated"
	dropDuplicate = "duplicate"
)

// ItemError reports a feed item that could not be normalized. The item is
// dropped; its siblings are unaffected.
type ItemError struct {
	SourceID string
	Index    int
	Err      error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("source %s item %d: %v", e.SourceID, e.Index, e.Err)
}

func (e *ItemError) Unwrap() error { return e.Err }

var (
	errPanic  = errors.New("panic during source processing")
	errNoLink = errors.New("item has no resolvable link")
)

// safeProcess runs processSource and converts any panic into an error row.
func (o *Orchestrator) safeProcess(ctx context.Context, src feeds.Source, snapshot feeds.Snapshot) (res feeds.SourceResult) {
	start := o.deps.Clock.Now()
	defer func() {
		if r := recover(); r != nil {
			o.deps.Logger.Error("source processing panicked",
				zap.String("source_id", src.ID),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
			res = o.errorResult(src, start, fmt.Errorf("%w: %v", errPanic, r))
		}
	}()
	return o.processSource(ctx, src, snapshot, start)
}

func (o *Orchestrator) processSource(ctx context.Context, src feeds.Source, snapshot feeds.Snapshot, start time.Time) feeds.SourceResult {
	fetched, err := o.deps.Fetcher.Fetch(ctx, src)
	mode := string(fetched.Mode)
	if err != nil {
		metrics.ObserveFetch(mode, string(feeds.FetchStatusError), o.since(start))
		o.deps.Logger.Warn("source fetch failed",
			zap.String("source_id", src.ID),
			zap.String("mode", mode),
			zap.Error(err),
		)
		return o.errorResult(src, start, err)
	}

	feed, err := o.deps.Parser.Parse(fetched.Body)
	if err != nil {
		metrics.ObserveFetch(mode, string(feeds.FetchStatusError), o.since(start))
		o.deps.Logger.Warn("source parse failed",
			zap.String("source_id", src.ID),
			zap.Error(err),
		)
		return o.errorResult(src, start, err)
	}

	posts := o.normalize(ctx, src, feed, snapshot, start)
	latency := o.since(start)
	metrics.ObserveFetch(mode, string(feeds.FetchStatusOK), latency)
	o.deps.Logger.Info("source fetched",
		zap.String("source_id", src.ID),
		zap.String("mode", mode),
		zap.Bool("fell_back", fetched.FellBack),
		zap.Int("items", len(feed.Items)),
		zap.Int("posts", len(posts)),
		zap.Duration("latency", latency),
	)
	return feeds.SourceResult{
		Source: src,
		Posts:  posts,
		Log: feeds.FetchLogRow{
			SourceID:  src.ID,
			Status:    feeds.FetchStatusOK,
			PostCount: len(posts),
			LatencyMs: latency.Milliseconds(),
			FetchedAt: start,
		},
	}
}

// normalize turns feed items into posts, stopping at the source's cap.
func (o *Orchestrator) normalize(ctx context.Context, src feeds.Source, feed feeds.RawFeed, snapshot feeds.Snapshot, fetchedAt time.Time) []feeds.Post {
	limit := o.maxItems(src)
	budget := o.deps.Excerpts.NewBudget()
	seen := make(map[string]struct{}, len(feed.Items))
	posts := make([]feeds.Post, 0, min(limit, len(feed.Items)))

	for i, item := range feed.Items {
		if len(posts) >= limit {
			break
		}
		post, reason, err := o.normalizeItem(ctx, src, feed, i, item, snapshot, budget, fetchedAt)
		if err != nil {
			metrics.ObserveDropped(reason)
			o.deps.Logger.Warn("dropping feed item", zap.Error(err))
			continue
		}
		if reason != "" {
			metrics.ObserveDropped(reason)
			o.deps.Logger.Debug("skipping feed item",
				zap.String("source_id", src.ID),
				zap.Int("index", i),
				zap.String("reason", reason),
			)
			continue
		}
		key := post.LookupKey()
		if _, dup := seen[key]; dup {
			metrics.ObserveDropped(dropDuplicate)
			continue
		}
		seen[key] = struct{}{}
		posts = append(posts, post)
	}
	return posts
}

// normalizeItem returns the post for one item. A non-empty reason with a nil
// error means the item was skipped by policy rather than failure.
func (o *Orchestrator) normalizeItem(ctx context.Context, src feeds.Source, feed feeds.RawFeed, index int, item feeds.RawItem, snapshot feeds.Snapshot, budget *excerpt.Budget, fetchedAt time.Time) (feeds.Post, string, error) {
	ident, err := o.deps.Identity.Resolve(src, item, feed.Link)
	if err != nil {
		return feeds.Post{}, dropInvalid, &ItemError{SourceID: src.ID, Index: index, Err: err}
	}
	if ident.Link == "" {
		return feeds.Post{}, dropInvalid, &ItemError{SourceID: src.ID, Index: index, Err: errNoLink}
	}

	existing, known := snapshot.Lookup(feeds.LookupKey(src.ID, ident.Key))
	resolved, ok := o.deps.Dates.Resolve(dates.Input{
		Source:      src,
		Item:        item,
		FeedUpdated: feed.Updated,
		Existing:    existing.Date,
		Index:       index,
	})
	if !ok {
		return feeds.Post{}, dropUndated, nil
	}

	title := textnorm.StripTags(item.Title)
	if title == "" {
		title = ident.Link
	}

	text := o.deps.Excerpts.Resolve(ctx, excerpt.Request{
		Item:   item,
		Link:   ident.Link,
		Stored: existing.Excerpt,
		IsNew:  !known,
	}, budget)

	return feeds.Post{
		ID:          ident.ID,
		SourceID:    src.ID,
		IdentityKey: ident.Key,
		Title:       title,
		Link:        ident.Link,
		Date:        resolved.Date,
		Excerpt:     text,
		FetchedAt:   fetchedAt,
	}, "", nil
}

func (o *Orchestrator) maxItems(src feeds.Source) int {
	if src.MaxItems > 0 {
		return src.MaxItems
	}
	if o.cfg.DefaultMaxItems > 0 {
		return o.cfg.DefaultMaxItems
	}
	return 20
}

func (o *Orchestrator) errorResult(src feeds.Source, start time.Time, err error) feeds.SourceResult {
	msg := err.Error()
	return feeds.SourceResult{
		Source: src,
		Log: feeds.FetchLogRow{
			SourceID:  src.ID,
			Status:    feeds.FetchStatusError,
			LatencyMs: o.since(start).Milliseconds(),
			Error:     &msg,
			FetchedAt: start,
		},
	}
}

func (o *Orchestrator) since(start time.Time) time.Duration {
	d := o.deps.Clock.Now().Sub(start)
	if d < 0 {
		return 0
	}
	return d
}
