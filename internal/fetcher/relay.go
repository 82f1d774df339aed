package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-feeds/internal/feeds"
	"github.com/JakeFAU/realtime-feeds/internal/metrics"
)

// DefaultBlockedStatus is the relay status that signals an upstream block.
const DefaultBlockedStatus = http.StatusTooManyRequests

// RelayConfig configures the relay client.
type RelayConfig struct {
	Endpoint string
	// QueryParam carries the target feed URL; defaults to "url".
	QueryParam    string
	BlockedStatus int
}

// RelayStrategy fetches feeds through the relay: GET endpoint?url=<feed>.
type RelayStrategy struct {
	client *http.Client
	cfg    Config
	relay  RelayConfig
	retry  *RetryPolicy
	logger *zap.Logger
}

// NewRelayStrategy builds a RelayStrategy.
func NewRelayStrategy(client *http.Client, cfg Config, relay RelayConfig, retry *RetryPolicy, logger *zap.Logger) *RelayStrategy {
	if client == nil {
		client = NewHTTPClient(cfg.Timeout)
	}
	if relay.QueryParam == "" {
		relay.QueryParam = "url"
	}
	if relay.BlockedStatus == 0 {
		relay.BlockedStatus = DefaultBlockedStatus
	}
	if retry == nil {
		retry = NewRetryPolicy(1, nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RelayStrategy{client: client, cfg: cfg, relay: relay, retry: retry, logger: logger}
}

// Mode implements Strategy.
func (s *RelayStrategy) Mode() Mode { return ModeRelay }

// Fetch implements Strategy. The relay's block status and timeout-class
// errors are retried with backoff; other failures surface immediately.
func (s *RelayStrategy) Fetch(ctx context.Context, source feeds.Source) ([]byte, error) {
	target, err := s.requestURL(source.FeedURL)
	if err != nil {
		return nil, err
	}
	var body []byte
	err = s.retry.Do(ctx, func(ctx context.Context, attempt int) error {
		status, b, err := doGet(ctx, s.client, s.cfg, target)
		if err != nil {
			return err
		}
		if status == http.StatusOK {
			body = b
			return nil
		}
		upstream, msg := parseRelayError(status, b)
		blocked := status == s.relay.BlockedStatus
		if blocked {
			s.logger.Warn("relay reported block",
				zap.String("source_id", source.ID),
				zap.Int("attempt", attempt),
				zap.Int("upstream_status", upstream),
			)
		}
		return &UpstreamError{
			Mode:      ModeRelay,
			Status:    upstream,
			Message:   msg,
			Retryable: blocked,
			blocked:   blocked,
		}
	}, func(attempt int, err error, wait time.Duration) {
		metrics.ObserveRetry(string(ModeRelay))
		s.logger.Debug("retrying relay fetch",
			zap.String("source_id", source.ID),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

func (s *RelayStrategy) requestURL(feedURL string) (string, error) {
	u, err := url.Parse(s.relay.Endpoint)
	if err != nil {
		return "", fmt.Errorf("parse relay endpoint: %w", err)
	}
	q := u.Query()
	q.Set(s.relay.QueryParam, feedURL)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func observeRetry(mode Mode) func(int, error, time.Duration) {
	return func(int, error, time.Duration) {
		metrics.ObserveRetry(string(mode))
	}
}
