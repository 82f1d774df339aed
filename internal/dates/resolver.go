// Package dates reconciles the candidate timestamps of a feed item into a
// single publish date.
package dates

import (
	"regexp"
	"strconv"
	"time"

	"github.com/JakeFAU/realtime-feeds/internal/feeds"
	"github.com/JakeFAU/realtime-feeds/internal/urlcanon"
)

// Origin names the candidate a resolved date came from.
type Origin string

// Date origins in resolution order.
const (
	OriginPrimary  Origin = "primary"
	OriginInferred Origin = "inferred"
	OriginExisting Origin = "existing"
	OriginFallback Origin = "fallback"
)

const day = 24 * time.Hour

// Config holds the resolver thresholds. They are tuning values, not derived
// constants.
type Config struct {
	// MaxFutureDays marks candidates further ahead of now as invalid.
	MaxFutureDays int
	// InferredPreferDays is how much older a link date must be than the
	// primary date before the link date wins.
	InferredPreferDays int
	// RecentWindowDays bounds the primary date's age for the link-date
	// preference to apply.
	RecentWindowDays int
}

// DefaultConfig returns the stock thresholds.
func DefaultConfig() Config {
	return Config{MaxFutureDays: 2, InferredPreferDays: 30, RecentWindowDays: 14}
}

// Input carries everything known about one item's date.
type Input struct {
	Source feeds.Source
	Item   feeds.RawItem
	// FeedUpdated is the feed-level timestamp, zero when absent.
	FeedUpdated time.Time
	// Existing is the stored date for the item's identity key, zero when new.
	Existing time.Time
	// Index is the item's position in the feed.
	Index int
}

// Result is a resolved date.
type Result struct {
	Date   time.Time
	Origin Origin
}

// Resolver applies the date resolution rules against a clock.
type Resolver struct {
	cfg   Config
	clock feeds.Clock
}

// NewResolver builds a Resolver.
func NewResolver(cfg Config, clock feeds.Clock) *Resolver {
	return &Resolver{cfg: cfg, clock: clock}
}

// Resolve picks the item's date. ok is false when no valid date exists and
// the source does not allow synthesized dates; such items are dropped.
func (r *Resolver) Resolve(in Input) (Result, bool) {
	now := r.clock.Now().UTC()

	primary, hasPrimary := in.Item.PrimaryDate()
	primaryOK := hasPrimary && r.valid(primary, now)

	var inferred time.Time
	inferredOK := false
	if r.inferenceAllowed(in.Source, in.Item) {
		if d, found := InferFromText(in.Item.Link); found {
			inferred, inferredOK = d, r.valid(d, now)
		} else if d, found := InferFromText(in.Item.GUID); found {
			inferred, inferredOK = d, r.valid(d, now)
		}
	}

	if primaryOK && inferredOK && r.preferInferred(primary, inferred, now) {
		return Result{Date: inferred, Origin: OriginInferred}, true
	}
	if primaryOK {
		return Result{Date: primary.UTC(), Origin: OriginPrimary}, true
	}
	if inferredOK {
		return Result{Date: inferred, Origin: OriginInferred}, true
	}
	if !in.Source.IgnoreLinkDateInference && r.valid(in.Existing, now) {
		return Result{Date: in.Existing.UTC(), Origin: OriginExisting}, true
	}
	if in.Source.AllowMissingDates {
		base := now
		if r.valid(in.FeedUpdated, now) {
			base = in.FeedUpdated.UTC()
		}
		return Result{
			Date:   base.Add(-time.Duration(in.Index) * time.Minute),
			Origin: OriginFallback,
		}, true
	}
	return Result{}, false
}

func (r *Resolver) valid(d, now time.Time) bool {
	if d.IsZero() {
		return false
	}
	limit := now.Add(time.Duration(r.cfg.MaxFutureDays) * day)
	return !d.After(limit)
}

func (r *Resolver) preferInferred(primary, inferred, now time.Time) bool {
	threshold := time.Duration(r.cfg.InferredPreferDays) * day
	recent := time.Duration(r.cfg.RecentWindowDays) * day
	if primary.Sub(inferred) < threshold {
		return false
	}
	return now.Sub(primary) <= recent
}

// inferenceAllowed applies the host gate: the link must live on the source's
// own host unless the source opts in, and never when the source opts out.
func (r *Resolver) inferenceAllowed(src feeds.Source, item feeds.RawItem) bool {
	if src.IgnoreLinkDateInference {
		return false
	}
	if src.AllowLinkDateInference {
		return true
	}
	linkHost := urlcanon.Hostname(item.Link)
	if linkHost == "" {
		linkHost = urlcanon.Hostname(item.GUID)
	}
	if linkHost == "" {
		return false
	}
	for _, own := range []string{src.URL, src.FeedURL} {
		if h := urlcanon.Hostname(own); h != "" && h == linkHost {
			return true
		}
	}
	return false
}

var linkDate = regexp.MustCompile(`(?:^|[^0-9])((?:19|20)[0-9]{2})[-/_.]?(0[1-9]|1[0-2])[-/_.]?(0[1-9]|[12][0-9]|3[01])(?:[^0-9]|$)`)

// InferFromText finds the first yyyy-mm-dd style date in s, with "-", "/",
// "_", "." or no separators, and returns it as midnight UTC.
func InferFromText(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, m := range linkDate.FindAllStringSubmatch(s, -1) {
		y, _ := strconv.Atoi(m[1])
		mo, _ := strconv.Atoi(m[2])
		d, _ := strconv.Atoi(m[3])
		t := time.Date(y, time.Month(mo), d, 0, 0, 0, 0, time.UTC)
		// Reject normalized overflow such as Feb 30.
		if t.Year() == y && int(t.Month()) == mo && t.Day() == d {
			return t, true
		}
	}
	return time.Time{}, false
}
