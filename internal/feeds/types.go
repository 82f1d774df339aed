// Package feeds defines core types shared across the ingestion pipeline.
package feeds

import (
	"context"
	"time"
)

// FetchStatus is the outcome recorded for one source in one run.
type FetchStatus string

// Fetch status values persisted in the fetch log.
const (
	FetchStatusOK    FetchStatus = "ok"
	FetchStatusError FetchStatus = "error"
)

// Source is a registry entry describing one upstream feed.
type Source struct {
	ID         string   `json:"id" yaml:"id"`
	Name       string   `json:"name" yaml:"name"`
	URL        string   `json:"url" yaml:"url"`
	FeedURL    string   `json:"feedUrl" yaml:"feedUrl"`
	Categories []string `json:"categories,omitempty" yaml:"categories"`
	// ForceProxy routes the source through the relay regardless of host.
	ForceProxy bool `json:"forceProxy,omitempty" yaml:"forceProxy"`
	// AllowMissingDates enables fallback date synthesis for undated items.
	AllowMissingDates bool `json:"allowMissingDates,omitempty" yaml:"allowMissingDates"`
	// IgnoreLinkDateInference disables both link-date inference and reuse of stored dates.
	IgnoreLinkDateInference bool `json:"ignoreLinkDateInference,omitempty" yaml:"ignoreLinkDateInference"`
	// AllowLinkDateInference permits inference on links outside the source's own host.
	AllowLinkDateInference bool `json:"allowLinkDateInference,omitempty" yaml:"allowLinkDateInference"`
	MaxItems               int  `json:"maxItems,omitempty" yaml:"maxItems"`
}

// Post is a normalized, deduplicated feed item.
type Post struct {
	ID          string    `json:"id"`
	SourceID    string    `json:"sourceId"`
	IdentityKey string    `json:"-"`
	Title       string    `json:"title"`
	Link        string    `json:"link"`
	Date        time.Time `json:"date"`
	Excerpt     string    `json:"excerpt"`
	FetchedAt   time.Time `json:"fetchedAt"`
}

// LookupKey is the merge key for a post: source id plus identity key.
func (p Post) LookupKey() string {
	return LookupKey(p.SourceID, p.IdentityKey)
}

// LookupKey joins a source id and identity key.
func LookupKey(sourceID, identityKey string) string {
	return sourceID + "::" + identityKey
}

// FetchLogRow records one source's outcome for one run.
type FetchLogRow struct {
	SourceID  string      `json:"sourceId"`
	Status    FetchStatus `json:"status"`
	PostCount int         `json:"postCount"`
	LatencyMs int64       `json:"latencyMs"`
	Error     *string     `json:"error"`
	FetchedAt time.Time   `json:"fetchedAt"`
}

// RawItem is a feed entry before normalization.
type RawItem struct {
	Title   string
	Link    string
	GUID    string
	Content string
	Summary string
	// Dates holds the item's timestamp fields that were present, in
	// precedence order: published, updated, dc:date.
	Dates []time.Time
}

// PrimaryDate returns the highest-precedence timestamp present on the item.
func (r RawItem) PrimaryDate() (time.Time, bool) {
	for _, d := range r.Dates {
		if !d.IsZero() {
			return d, true
		}
	}
	return time.Time{}, false
}

// RawFeed is a parsed feed document.
type RawFeed struct {
	Title   string
	Link    string
	Updated time.Time
	Items   []RawItem
}

// Snapshot indexes the stored posts by lookup key.
type Snapshot map[string]Post

// Lookup returns the stored post for a lookup key, if any.
func (s Snapshot) Lookup(key string) (Post, bool) {
	if s == nil {
		return Post{}, false
	}
	p, ok := s[key]
	return p, ok
}

// SourceResult pairs one source's fresh posts with its fetch-log row.
type SourceResult struct {
	Source Source
	Posts  []Post
	Log    FetchLogRow
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// Hasher digests an ordered list of strings into a stable hex id.
type Hasher interface {
	HashParts(parts ...string) string
}

// IDGenerator produces run ids.
type IDGenerator interface {
	NewID() (string, error)
}

// PostCounter reports how many posts the store holds.
type PostCounter interface {
	CountPosts(ctx context.Context) (int, error)
}
