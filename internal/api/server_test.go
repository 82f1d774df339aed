package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/realtime-feeds/internal/feeds"
	"github.com/JakeFAU/realtime-feeds/internal/store"
)

type fakeStatus struct {
	rows []store.FeedStatus
	err  error
}

func (f *fakeStatus) LatestStatus(context.Context) ([]store.FeedStatus, error) {
	return f.rows, f.err
}

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

func serve(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServer_Healthz(t *testing.T) {
	t.Parallel()

	rec := serve(t, NewServer(nil, nil, nil), "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestServer_Readyz(t *testing.T) {
	t.Parallel()

	rec := serve(t, NewServer(nil, fakePinger{}, nil), "/readyz")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(t, NewServer(nil, fakePinger{err: errors.New("locked")}, nil), "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_Metrics(t *testing.T) {
	t.Parallel()

	s := NewServer(nil, nil, nil)
	serve(t, s, "/healthz")
	rec := serve(t, s, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "feeds_http_requests_total")
}

func TestServer_FeedStatus(t *testing.T) {
	t.Parallel()

	msg := "upstream status 503"
	at := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	status := &fakeStatus{rows: []store.FeedStatus{
		{Name: "A", URL: "https://a.example.com", Log: feeds.FetchLogRow{SourceID: "a", Status: feeds.FetchStatusOK, PostCount: 3, FetchedAt: at}},
		{Name: "B", Log: feeds.FetchLogRow{SourceID: "b", Status: feeds.FetchStatusError, Error: &msg, FetchedAt: at}},
	}}

	rec := serve(t, NewServer(status, nil, nil), "/v1/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Feeds []struct {
			SourceID string  `json:"sourceId"`
			Status   string  `json:"status"`
			Error    *string `json:"error"`
		} `json:"feeds"`
		Summary struct {
			Total, Healthy, Errors int
		} `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Feeds, 2)
	assert.Equal(t, "a", body.Feeds[0].SourceID)
	assert.Nil(t, body.Feeds[0].Error)
	require.NotNil(t, body.Feeds[1].Error)
	assert.Equal(t, msg, *body.Feeds[1].Error)
	assert.Equal(t, 2, body.Summary.Total)
	assert.Equal(t, 1, body.Summary.Healthy)
	assert.Equal(t, 1, body.Summary.Errors)
}

func TestServer_FeedStatusErrors(t *testing.T) {
	t.Parallel()

	rec := serve(t, NewServer(nil, nil, nil), "/v1/status")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(t, NewServer(&fakeStatus{err: errors.New("boom")}, nil, nil), "/v1/status")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestServer_RecoversPanics(t *testing.T) {
	t.Parallel()

	s := NewServer(nil, nil, nil)
	s.router.Get("/panic", func(http.ResponseWriter, *http.Request) { panic("boom") })
	rec := serve(t, s, "/panic")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestServer_ListenAndServeShutsDown(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewServer(nil, nil, nil).ListenAndServe(ctx, "127.0.0.1:0") }()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("server did not stop")
	}
}
