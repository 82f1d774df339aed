package publish

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/realtime-feeds/internal/export"
	"github.com/JakeFAU/realtime-feeds/internal/feeds"
	notifymemory "github.com/JakeFAU/realtime-feeds/internal/notify/memory"
	"github.com/JakeFAU/realtime-feeds/internal/storage/memory"
	"github.com/JakeFAU/realtime-feeds/internal/verify"
)

var publishedAt = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

func writeGoodArtifacts(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	cache := export.ExportedCache{LastUpdated: publishedAt, Posts: []export.ExportedPost{
		{ID: "p1", SourceID: "a", Title: "One", Link: "https://a.example.com/1", Date: publishedAt.Add(-time.Hour)},
	}}
	feedsList := []export.ExportedFeed{{SourceID: "a", Status: feeds.FetchStatusOK, PostCount: 1, FetchedAt: publishedAt}}
	status := export.ExportedStatus{LastUpdated: publishedAt, Feeds: feedsList, Summary: export.Summarize(feedsList)}
	require.NoError(t, export.WriteJSON(filepath.Join(dir, export.CacheFile), cache))
	require.NoError(t, export.WriteJSON(filepath.Join(dir, export.StatusFile), status))
	return dir
}

func TestPublishUploadsAndAnnounces(t *testing.T) {
	t.Parallel()

	dir := writeGoodArtifacts(t)
	blobs := memory.NewBlobStore()
	notifier := notifymemory.New()
	p := New(verify.New(verify.Config{}), nil, blobs, notifier, Options{Prefix: "data", RunID: "run-1"}, nil)

	res, err := p.Publish(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, "memory://data/cache.json", res.CacheURI)
	assert.Equal(t, "memory://data/status.json", res.StatusURI)
	assert.Equal(t, "memory-1", res.MessageID)
	assert.Equal(t, []string{"data/cache.json", "data/status.json"}, blobs.Paths())

	obj, ok := blobs.Get("data/cache.json")
	require.True(t, ok)
	assert.Equal(t, contentTypeJSON, obj.ContentType)
	var cache export.ExportedCache
	require.NoError(t, json.Unmarshal(obj.Data, &cache))
	assert.Len(t, cache.Posts, 1)

	sent := notifier.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, 1, sent[0].Posts)
	assert.Equal(t, 1, sent[0].Feeds)
	assert.Equal(t, "run-1", sent[0].RunID)
	assert.Equal(t, res.CacheURI, sent[0].CacheURI)
}

func TestPublishBlockedByVerification(t *testing.T) {
	t.Parallel()

	blobs := memory.NewBlobStore()
	notifier := notifymemory.New()
	p := New(verify.New(verify.Config{}), nil, blobs, notifier, Options{}, nil)

	res, err := p.Publish(context.Background(), t.TempDir())
	require.Error(t, err)
	assert.ErrorIs(t, err, verify.ErrVerification)
	assert.False(t, res.Report.OK())
	assert.Empty(t, blobs.Paths())
	assert.Empty(t, notifier.Sent())
}

type mockVerifier struct{ mock.Mock }

func (m *mockVerifier) Verify(ctx context.Context, dir string, counter feeds.PostCounter) (verify.Report, error) {
	args := m.Called(ctx, dir, counter)
	return args.Get(0).(verify.Report), args.Error(1)
}

func TestPublishVerifierError(t *testing.T) {
	t.Parallel()

	v := &mockVerifier{}
	v.On("Verify", mock.Anything, "dir", nil).Return(verify.Report{}, errors.New("store locked"))
	p := New(v, nil, memory.NewBlobStore(), nil, Options{}, nil)

	_, err := p.Publish(context.Background(), "dir")
	assert.ErrorContains(t, err, "store locked")
	v.AssertExpectations(t)
}

func TestPublishWithoutNotifier(t *testing.T) {
	t.Parallel()

	dir := writeGoodArtifacts(t)
	blobs := memory.NewBlobStore()
	p := New(verify.New(verify.Config{}), nil, blobs, nil, Options{}, nil)

	res, err := p.Publish(context.Background(), dir)
	require.NoError(t, err)
	assert.Empty(t, res.MessageID)
	assert.Equal(t, []string{"cache.json", "status.json"}, blobs.Paths())
}
