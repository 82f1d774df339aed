// Package fetcher retrieves feed documents, either directly from the feed
// host or through a rate-limit-avoidance relay, and parses them.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/JakeFAU/realtime-feeds/internal/feeds"
)

// Mode names a fetch strategy.
type Mode string

// Fetch modes.
const (
	ModeDirect Mode = "direct"
	ModeRelay  Mode = "relay"
)

// maxFeedBytes caps how much of a feed body is read.
const maxFeedBytes = 10 << 20

// Strategy fetches the raw feed body for a source.
type Strategy interface {
	Mode() Mode
	Fetch(ctx context.Context, source feeds.Source) ([]byte, error)
}

// Config controls HTTP behavior shared by both strategies.
type Config struct {
	UserAgent string
	Timeout   time.Duration
}

// NewHTTPClient returns a client with pooled connections and the given timeout.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: timeout,
			ExpectContinueTimeout: 1 * time.Second,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   8,
			IdleConnTimeout:       90 * time.Second,
			ForceAttemptHTTP2:     true,
		},
	}
}

// DirectStrategy GETs the feed URL from its own host.
type DirectStrategy struct {
	client *http.Client
	cfg    Config
	retry  *RetryPolicy
}

// NewDirectStrategy builds a DirectStrategy. A nil client gets NewHTTPClient.
func NewDirectStrategy(client *http.Client, cfg Config, retry *RetryPolicy) *DirectStrategy {
	if client == nil {
		client = NewHTTPClient(cfg.Timeout)
	}
	if retry == nil {
		retry = NewRetryPolicy(1, nil)
	}
	return &DirectStrategy{client: client, cfg: cfg, retry: retry}
}

// Mode implements Strategy.
func (s *DirectStrategy) Mode() Mode { return ModeDirect }

// Fetch implements Strategy. Timeout-class failures are retried; non-success
// statuses are returned as *UpstreamError.
func (s *DirectStrategy) Fetch(ctx context.Context, source feeds.Source) ([]byte, error) {
	var body []byte
	err := s.retry.Do(ctx, func(ctx context.Context, _ int) error {
		b, err := s.get(ctx, source.FeedURL)
		if err != nil {
			return err
		}
		body = b
		return nil
	}, observeRetry(ModeDirect))
	if err != nil {
		return nil, err
	}
	return body, nil
}

func (s *DirectStrategy) get(ctx context.Context, feedURL string) ([]byte, error) {
	status, body, err := doGet(ctx, s.client, s.cfg, feedURL)
	if err != nil {
		return nil, err
	}
	if status < 200 || status > 299 {
		return nil, &UpstreamError{Mode: ModeDirect, Status: status, Message: http.StatusText(status)}
	}
	return body, nil
}

func doGet(ctx context.Context, client *http.Client, cfg Config, target string) (int, []byte, error) {
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	if cfg.UserAgent != "" {
		req.Header.Set("User-Agent", cfg.UserAgent)
	}
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml;q=0.9, text/xml;q=0.8, */*;q=0.5")
	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("get %s: %w", target, err)
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read body: %w", err)
	}
	return resp.StatusCode, body, nil
}
