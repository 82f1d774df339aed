// Package export projects the store into the JSON artifacts read by the
// presentation layer.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-feeds/internal/feeds"
	"github.com/JakeFAU/realtime-feeds/internal/store"
)

// Artifact file names inside the export directory.
const (
	CacheFile  = "cache.json"
	StatusFile = "status.json"
)

// ExportedPost is a post denormalized with its source name.
type ExportedPost struct {
	ID         string    `json:"id"`
	SourceID   string    `json:"sourceId"`
	SourceName string    `json:"sourceName"`
	Title      string    `json:"title"`
	Link       string    `json:"link"`
	Date       time.Time `json:"date"`
	Excerpt    string    `json:"excerpt"`
	FetchedAt  time.Time `json:"fetchedAt"`
}

// ExportedCache is the cache.json document. Posts are sorted by date
// descending with unique ids.
type ExportedCache struct {
	LastUpdated time.Time      `json:"lastUpdated"`
	Posts       []ExportedPost `json:"posts"`
}

// ExportedFeed is a source's latest fetch-log row.
type ExportedFeed struct {
	SourceID  string            `json:"sourceId"`
	Name      string            `json:"name"`
	URL       string            `json:"url"`
	Status    feeds.FetchStatus `json:"status"`
	PostCount int               `json:"postCount"`
	LatencyMs int64             `json:"latencyMs"`
	Error     *string           `json:"error"`
	FetchedAt time.Time         `json:"fetchedAt"`
}

// Summary counts feeds by status.
type Summary struct {
	Total   int `json:"total"`
	Healthy int `json:"healthy"`
	Errors  int `json:"errors"`
}

// ExportedStatus is the status.json document.
type ExportedStatus struct {
	LastUpdated time.Time      `json:"lastUpdated"`
	Feeds       []ExportedFeed `json:"feeds"`
	Summary     Summary        `json:"summary"`
}

// Summarize recomputes the summary from feeds.
func Summarize(list []ExportedFeed) Summary {
	sum := Summary{Total: len(list)}
	for _, f := range list {
		switch f.Status {
		case feeds.FetchStatusOK:
			sum.Healthy++
		case feeds.FetchStatusError:
			sum.Errors++
		}
	}
	return sum
}

// Reader is the read-only view of the store the exporter needs.
type Reader interface {
	Sources(ctx context.Context) ([]feeds.Source, error)
	Posts(ctx context.Context) ([]feeds.Post, error)
	LatestStatus(ctx context.Context) ([]store.FeedStatus, error)
}

// Exporter writes artifacts from a store.
type Exporter struct {
	reader Reader
	clock  feeds.Clock
	logger *zap.Logger
}

// New builds an Exporter.
func New(reader Reader, clock feeds.Clock, logger *zap.Logger) *Exporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{reader: reader, clock: clock, logger: logger}
}

// Build assembles both documents without writing them.
func (e *Exporter) Build(ctx context.Context) (ExportedCache, ExportedStatus, error) {
	now := e.clock.Now().UTC()

	sources, err := e.reader.Sources(ctx)
	if err != nil {
		return ExportedCache{}, ExportedStatus{}, fmt.Errorf("load sources: %w", err)
	}
	names := make(map[string]string, len(sources))
	for _, s := range sources {
		names[s.ID] = s.Name
	}

	posts, err := e.reader.Posts(ctx)
	if err != nil {
		return ExportedCache{}, ExportedStatus{}, fmt.Errorf("load posts: %w", err)
	}
	cache := ExportedCache{LastUpdated: now, Posts: make([]ExportedPost, 0, len(posts))}
	for _, p := range posts {
		cache.Posts = append(cache.Posts, ExportedPost{
			ID:         p.ID,
			SourceID:   p.SourceID,
			SourceName: names[p.SourceID],
			Title:      p.Title,
			Link:       p.Link,
			Date:       p.Date.UTC(),
			Excerpt:    p.Excerpt,
			FetchedAt:  p.FetchedAt.UTC(),
		})
	}

	latest, err := e.reader.LatestStatus(ctx)
	if err != nil {
		return ExportedCache{}, ExportedStatus{}, fmt.Errorf("load status: %w", err)
	}
	status := ExportedStatus{LastUpdated: now, Feeds: make([]ExportedFeed, 0, len(latest))}
	for _, st := range latest {
		status.Feeds = append(status.Feeds, ExportedFeed{
			SourceID:  st.Log.SourceID,
			Name:      st.Name,
			URL:       st.URL,
			Status:    st.Log.Status,
			PostCount: st.Log.PostCount,
			LatencyMs: st.Log.LatencyMs,
			Error:     st.Log.Error,
			FetchedAt: st.Log.FetchedAt.UTC(),
		})
	}
	status.Summary = Summarize(status.Feeds)
	return cache, status, nil
}

// Export writes cache.json and status.json into dir. Each file is replaced
// atomically, so readers never observe a partial document.
func (e *Exporter) Export(ctx context.Context, dir string) error {
	cache, status, err := e.Build(ctx)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}
	if err := WriteJSON(filepath.Join(dir, CacheFile), cache); err != nil {
		return err
	}
	if err := WriteJSON(filepath.Join(dir, StatusFile), status); err != nil {
		return err
	}
	e.logger.Info("exported artifacts",
		zap.String("dir", dir),
		zap.Int("posts", len(cache.Posts)),
		zap.Int("feeds", status.Summary.Total),
		zap.Int("healthy", status.Summary.Healthy),
		zap.Int("errors", status.Summary.Errors),
	)
	return nil
}

// WriteJSON encodes v to path through a temp file and rename.
func WriteJSON(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", filepath.Base(path), err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close %s: %w", filepath.Base(path), err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		cleanup()
		return fmt.Errorf("chmod %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("replace %s: %w", filepath.Base(path), err)
	}
	return nil
}
