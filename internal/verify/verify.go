// Package verify checks exported artifacts before they are published.
// Structural violations fail verification; staleness and drift only warn.
package verify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/JakeFAU/realtime-feeds/internal/export"
	"github.com/JakeFAU/realtime-feeds/internal/feeds"
)

// DefaultDriftWarn is the allowed gap between lastUpdated and the newest post.
const DefaultDriftWarn = 72 * time.Hour

// ErrVerification is returned when artifacts fail structural checks.
var ErrVerification = errors.New("artifact verification failed")

// Report lists the findings of one verification.
type Report struct {
	Errors   []string
	Warnings []string
}

// OK reports whether no structural errors were found.
func (r Report) OK() bool { return len(r.Errors) == 0 }

// Err returns ErrVerification wrapped with the first errors, or nil.
func (r Report) Err() error {
	if r.OK() {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrVerification, strings.Join(r.Errors, "; "))
}

func (r *Report) errorf(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *Report) warnf(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Config tunes the soft checks.
type Config struct {
	DriftWarn time.Duration
}

// Verifier checks an export directory.
type Verifier struct {
	cfg Config
}

// New builds a Verifier.
func New(cfg Config) *Verifier {
	if cfg.DriftWarn <= 0 {
		cfg.DriftWarn = DefaultDriftWarn
	}
	return &Verifier{cfg: cfg}
}

// Dates are decoded as text so an unparseable date is reported per post.
type rawPost struct {
	ID       string `json:"id"`
	SourceID string `json:"sourceId"`
	Title    string `json:"title"`
	Link     string `json:"link"`
	Date     string `json:"date"`
}

type rawCache struct {
	LastUpdated *string    `json:"lastUpdated"`
	Posts       *[]rawPost `json:"posts"`
}

type rawStatus struct {
	LastUpdated *string                `json:"lastUpdated"`
	Feeds       *[]export.ExportedFeed `json:"feeds"`
	Summary     *export.Summary        `json:"summary"`
}

// Verify checks the artifacts in dir. counter may be nil, which skips the
// store staleness check. The returned error is non-nil only when the
// check could not run at all.
func (v *Verifier) Verify(ctx context.Context, dir string, counter feeds.PostCounter) (Report, error) {
	var report Report

	var cache rawCache
	cacheOK := readArtifact(&report, filepath.Join(dir, export.CacheFile), &cache)
	var status rawStatus
	statusOK := readArtifact(&report, filepath.Join(dir, export.StatusFile), &status)

	if cacheOK {
		v.checkCache(&report, cache)
	}
	if statusOK {
		v.checkStatus(&report, status)
	}

	if cacheOK && counter != nil && cache.Posts != nil {
		n, err := counter.CountPosts(ctx)
		if err != nil {
			return report, fmt.Errorf("count store posts: %w", err)
		}
		if n < len(*cache.Posts) {
			report.warnf("store holds %d posts but cache has %d; cache may be ahead of the store", n, len(*cache.Posts))
		}
	}
	return report, nil
}

func readArtifact(report *Report, path string, v any) bool {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			report.errorf("%s is missing", filepath.Base(path))
		} else {
			report.errorf("read %s: %v", filepath.Base(path), err)
		}
		return false
	}
	if err := json.Unmarshal(raw, v); err != nil {
		report.errorf("%s is not valid JSON: %v", filepath.Base(path), err)
		return false
	}
	return true
}

func (v *Verifier) checkCache(report *Report, cache rawCache) {
	var lastUpdated time.Time
	if cache.LastUpdated == nil {
		report.errorf("cache.json has no lastUpdated")
	} else if t, err := time.Parse(time.RFC3339Nano, *cache.LastUpdated); err != nil {
		report.errorf("cache.json lastUpdated %q is not a timestamp", *cache.LastUpdated)
	} else {
		lastUpdated = t
	}

	if cache.Posts == nil {
		report.errorf("cache.json has no posts list")
		return
	}
	posts := *cache.Posts
	seen := make(map[string]int, len(posts))
	var (
		prev, newest time.Time
		prevID       string
	)
	for i, p := range posts {
		var missing []string
		for _, f := range []struct{ name, value string }{
			{"id", p.ID}, {"sourceId", p.SourceID}, {"title", p.Title}, {"link", p.Link},
		} {
			if strings.TrimSpace(f.value) == "" {
				missing = append(missing, f.name)
			}
		}
		if len(missing) > 0 {
			report.errorf("post %d is missing %s", i, strings.Join(missing, ", "))
		}
		if p.ID != "" {
			if first, dup := seen[p.ID]; dup {
				report.errorf("post %d duplicates id %s of post %d", i, p.ID, first)
			} else {
				seen[p.ID] = i
			}
		}

		d, err := time.Parse(time.RFC3339Nano, p.Date)
		if err != nil {
			report.errorf("post %d has unparseable date %q", i, p.Date)
			continue
		}
		// Equal dates are allowed only in ascending id order.
		if !prev.IsZero() && (d.After(prev) || (d.Equal(prev) && p.ID <= prevID)) {
			report.errorf("post %d (%s) is out of date order", i, p.Date)
		}
		prev, prevID = d, p.ID
		if d.After(newest) {
			newest = d
		}
	}

	if !lastUpdated.IsZero() && !newest.IsZero() {
		switch {
		case newest.After(lastUpdated):
			report.warnf("newest post %s is after lastUpdated %s", newest.Format(time.RFC3339), lastUpdated.Format(time.RFC3339))
		case lastUpdated.Sub(newest) > v.cfg.DriftWarn:
			report.warnf("newest post is %s older than lastUpdated", lastUpdated.Sub(newest).Round(time.Minute))
		}
	}
}

func (v *Verifier) checkStatus(report *Report, status rawStatus) {
	if status.LastUpdated == nil {
		report.errorf("status.json has no lastUpdated")
	} else if _, err := time.Parse(time.RFC3339Nano, *status.LastUpdated); err != nil {
		report.errorf("status.json lastUpdated %q is not a timestamp", *status.LastUpdated)
	}
	if status.Feeds == nil {
		report.errorf("status.json has no feeds list")
	}
	if status.Summary == nil {
		report.errorf("status.json has no summary")
	}
	if status.Feeds == nil || status.Summary == nil {
		return
	}
	list := *status.Feeds
	for i, f := range list {
		if f.SourceID == "" {
			report.errorf("feed %d has no sourceId", i)
		}
		if f.Status != feeds.FetchStatusOK && f.Status != feeds.FetchStatusError {
			report.errorf("feed %d has unknown status %q", i, f.Status)
		}
	}
	want := export.Summarize(list)
	if *status.Summary != want {
		report.errorf("status summary %+v does not match feeds (want %+v)", *status.Summary, want)
	}
}
