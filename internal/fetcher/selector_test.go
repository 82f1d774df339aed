package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/realtime-feeds/internal/feeds"
)

// MockStrategy is a mock implementation of the Strategy interface.
type MockStrategy struct {
	mock.Mock
	mode Mode
}

func (m *MockStrategy) Mode() Mode { return m.mode }

func (m *MockStrategy) Fetch(ctx context.Context, source feeds.Source) ([]byte, error) {
	args := m.Called(ctx, source)
	body, _ := args.Get(0).([]byte)
	return body, args.Error(1)
}

func TestSelectorRoutesSensitiveToRelay(t *testing.T) {
	t.Parallel()

	direct := &MockStrategy{mode: ModeDirect}
	relay := &MockStrategy{mode: ModeRelay}
	sel := NewSelector(direct, relay, NewHostPatterns([]string{"*.substack.com"}), nil)

	src := testSource("https://writer.substack.com/feed")
	relay.On("Fetch", mock.Anything, src).Return([]byte("ok"), nil)

	res, err := sel.Fetch(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, ModeRelay, res.Mode)
	assert.False(t, res.FellBack)
	direct.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything)

	forced := testSource("https://plain.example.com/feed")
	forced.ForceProxy = true
	assert.True(t, sel.Sensitive(forced))
}

func TestSelectorFallsBackOnceAfterBlock(t *testing.T) {
	t.Parallel()

	direct := &MockStrategy{mode: ModeDirect}
	relay := &MockStrategy{mode: ModeRelay}
	sel := NewSelector(direct, relay, nil, nil)
	src := testSource("https://plain.example.com/feed")

	direct.On("Fetch", mock.Anything, src).Return(nil, &UpstreamError{Mode: ModeDirect, Status: 429}).Once()
	relay.On("Fetch", mock.Anything, src).Return([]byte("body"), nil).Once()

	res, err := sel.Fetch(context.Background(), src)
	require.NoError(t, err)
	assert.True(t, res.FellBack)
	assert.Equal(t, ModeRelay, res.Mode)
	assert.Equal(t, "body", string(res.Body))
	direct.AssertExpectations(t)
	relay.AssertExpectations(t)
}

func TestSelectorDoesNotFallBackOnOrdinaryErrors(t *testing.T) {
	t.Parallel()

	direct := &MockStrategy{mode: ModeDirect}
	relay := &MockStrategy{mode: ModeRelay}
	sel := NewSelector(direct, relay, nil, nil)
	src := testSource("https://plain.example.com/feed")

	direct.On("Fetch", mock.Anything, src).Return(nil, &UpstreamError{Mode: ModeDirect, Status: 404})

	_, err := sel.Fetch(context.Background(), src)
	require.Error(t, err)
	relay.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything)
}

func TestSelectorFallbackFailureWrapsBoth(t *testing.T) {
	t.Parallel()

	direct := &MockStrategy{mode: ModeDirect}
	relay := &MockStrategy{mode: ModeRelay}
	sel := NewSelector(direct, relay, nil, nil)
	src := testSource("https://plain.example.com/feed")
	relayErr := errors.New("relay down")

	direct.On("Fetch", mock.Anything, src).Return(nil, &UpstreamError{Mode: ModeDirect, Status: 403})
	relay.On("Fetch", mock.Anything, src).Return(nil, relayErr)

	res, err := sel.Fetch(context.Background(), src)
	require.ErrorIs(t, err, relayErr)
	assert.True(t, res.FellBack)
}

func TestDirectStrategyStatusError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "test-agent" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusForbidden)
	}))
	t.Cleanup(srv.Close)

	direct := NewDirectStrategy(srv.Client(), Config{UserAgent: "test-agent", Timeout: time.Second}, fastRetry(3))
	_, err := direct.Fetch(context.Background(), testSource(srv.URL))
	var upstream *UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, http.StatusForbidden, upstream.Status)
	assert.True(t, IsBlockingClass(err))
}
