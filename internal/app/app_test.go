package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-feeds/internal/clock/system"
	"github.com/JakeFAU/realtime-feeds/internal/config"
	"github.com/JakeFAU/realtime-feeds/internal/export"
	"github.com/JakeFAU/realtime-feeds/internal/feeds"
	"github.com/JakeFAU/realtime-feeds/internal/store"
	"github.com/JakeFAU/realtime-feeds/internal/verify"
)

const rssBody = `<?xml version="1.0"?>
<rss version="2.0"><channel><title>A</title><link>%[1]s</link>
<item><title>First</title><link>%[1]s/posts/1</link><pubDate>Fri, 14 Jun 2024 10:00:00 GMT</pubDate>
<description>&lt;p&gt;First body&lt;/p&gt;</description></item>
<item><title>Second</title><link>%[1]s/posts/2?utm_source=rss</link><pubDate>Thu, 13 Jun 2024 10:00:00 GMT</pubDate>
<description>Second body</description></item>
</channel></rss>`

type fixedIDs struct{ id string }

func (f fixedIDs) NewID() (string, error) { return f.id, nil }

type mockIDs struct{ mock.Mock }

func (m *mockIDs) NewID() (string, error) {
	args := m.Called()
	return args.String(0), args.Error(1)
}

func newTestApp(t *testing.T) (*App, string) {
	t.Helper()

	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/feed.xml":
			w.Header().Set("Content-Type", "application/rss+xml")
			_, _ = fmt.Fprintf(w, rssBody, srv.URL)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	registryPath := filepath.Join(dir, "sources.yaml")
	registry := fmt.Sprintf(`sources:
  - id: good
    name: Good Feed
    feedUrl: %[1]s/feed.xml
  - id: broken
    feedUrl: %[1]s/missing.xml
`, srv.URL)
	require.NoError(t, os.WriteFile(registryPath, []byte(registry), 0o600))

	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Store.Path = filepath.Join(dir, "feeds.db")
	cfg.Registry.Path = registryPath
	cfg.Export.Dir = filepath.Join(dir, "public")
	cfg.Publish.LocalDir = filepath.Join(dir, "dist")
	cfg.Fetch.MaxAttempts = 1
	cfg.Fetch.Timeout = 5 * time.Second
	cfg.Excerpt.PageFetch = false
	cfg.Notify = config.NotifyConfig{}
	cfg.Warnings = []string{"relay.url was replaced"}

	clock := &system.Fixed{T: time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)}
	a, err := NewApp(context.Background(), cfg, Options{Logger: zap.NewNop(), Clock: clock, IDs: fixedIDs{id: "run-1"}})
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a, dir
}

func TestRunPersistsExportsAndVerifies(t *testing.T) {
	a, dir := newTestApp(t)
	ctx := context.Background()

	report, err := a.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Sources)
	assert.Equal(t, 1, report.Healthy)
	assert.Equal(t, 1, report.Errors)
	assert.Equal(t, 2, report.Fresh)
	assert.Equal(t, 2, report.Merged)
	assert.True(t, report.Verify.OK())
	assert.Equal(t, "run-1", a.RunID())

	raw, err := os.ReadFile(filepath.Join(dir, "public", export.CacheFile))
	require.NoError(t, err)
	var cache export.ExportedCache
	require.NoError(t, json.Unmarshal(raw, &cache))
	require.Len(t, cache.Posts, 2)
	assert.Equal(t, "First", cache.Posts[0].Title)
	assert.Equal(t, "Good Feed", cache.Posts[0].SourceName)
	assert.NotContains(t, cache.Posts[1].Link, "utm_source")

	latest, err := a.Store().LatestStatus(ctx)
	require.NoError(t, err)
	require.Len(t, latest, 2)

	// A second pass over unchanged feeds must not grow the store.
	report, err = a.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Merged)
	n, err := a.Store().CountPosts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestRunMissingRegistry(t *testing.T) {
	a, _ := newTestApp(t)
	a.cfg.Registry.Path = filepath.Join(t.TempDir(), "absent.yaml")

	_, err := a.Run(context.Background())
	require.Error(t, err)
	_, statErr := os.Stat(filepath.Join(a.cfg.Export.Dir, export.CacheFile))
	assert.True(t, errors.Is(statErr, os.ErrNotExist), "no artifacts without a run")
}

func TestRunStoreFailureKeepsPreviousArtifacts(t *testing.T) {
	a, dir := newTestApp(t)
	ctx := context.Background()

	_, err := a.Run(ctx)
	require.NoError(t, err)

	type artifact struct {
		body    []byte
		modTime time.Time
	}
	snapshot := func() map[string]artifact {
		out := make(map[string]artifact, 2)
		for _, name := range []string{export.CacheFile, export.StatusFile} {
			path := filepath.Join(a.cfg.Export.Dir, name)
			info, err := os.Stat(path)
			require.NoError(t, err)
			body, err := os.ReadFile(path)
			require.NoError(t, err)
			out[name] = artifact{body: body, modTime: info.ModTime()}
		}
		return out
	}
	before := snapshot()

	// The store goes away while feeds are being fetched, so the post upsert fails.
	var once sync.Once
	closing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() { _ = a.Store().Close() })
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = fmt.Fprintf(w, rssBody, "https://closing.example.com")
	}))
	t.Cleanup(closing.Close)
	registry := fmt.Sprintf("sources:\n  - id: good\n    name: Good Feed\n    feedUrl: %s/feed.xml\n", closing.URL)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sources.yaml"), []byte(registry), 0o600))

	time.Sleep(10 * time.Millisecond)
	_, err = a.Run(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrStore), err)
	assert.Contains(t, err.Error(), "persist posts")

	after := snapshot()
	for name, want := range before {
		got := after[name]
		assert.Equal(t, want.body, got.body, name)
		assert.True(t, want.modTime.Equal(got.modTime), "%s was rewritten", name)
	}
}

func TestVerifyWithoutArtifacts(t *testing.T) {
	a, _ := newTestApp(t)

	vr, err := a.Verify(context.Background())
	require.NoError(t, err)
	assert.False(t, vr.OK())
	assert.ErrorIs(t, vr.Err(), verify.ErrVerification)
}

func TestPublishLocal(t *testing.T) {
	a, dir := newTestApp(t)
	ctx := context.Background()
	_, err := a.Run(ctx)
	require.NoError(t, err)

	pub, err := a.Publisher(ctx)
	require.NoError(t, err)
	res, err := pub.Publish(ctx, a.cfg.Export.Dir)
	require.NoError(t, err)
	assert.Contains(t, res.CacheURI, "file://")
	_, err = os.Stat(filepath.Join(dir, "dist", export.CacheFile))
	assert.NoError(t, err)
}

func TestPublisherProviders(t *testing.T) {
	a, _ := newTestApp(t)

	a.cfg.Publish.Provider = config.ProviderNone
	_, err := a.Publisher(context.Background())
	assert.Error(t, err)

	a.cfg.Publish.Provider = "ftp"
	_, err = a.Publisher(context.Background())
	assert.ErrorContains(t, err, "unknown publish provider")
}

func TestNewAppIDFailure(t *testing.T) {
	ids := &mockIDs{}
	ids.On("NewID").Return("", errors.New("entropy exhausted")).Once()

	cfg := config.Config{Store: config.StoreConfig{Path: filepath.Join(t.TempDir(), "x.db")}}
	_, err := NewApp(context.Background(), cfg, Options{Logger: zap.NewNop(), IDs: ids})
	require.ErrorContains(t, err, "entropy exhausted")
	ids.AssertExpectations(t)
}

func TestNewAppStoreFailure(t *testing.T) {
	cfg := config.Config{}
	_, err := NewApp(context.Background(), cfg, Options{Logger: zap.NewNop(), IDs: fixedIDs{id: "x"}})
	require.ErrorContains(t, err, "open store")
}

var _ feeds.IDGenerator = fixedIDs{}
