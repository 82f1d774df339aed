package excerpt

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
)

// maxPageBytes caps how much of a linked page is downloaded.
const maxPageBytes = 2 << 20

// PageFetcher downloads a linked post page.
type PageFetcher interface {
	FetchPage(ctx context.Context, rawURL string) ([]byte, error)
}

// CollyPageFetcher implements PageFetcher with a Colly collector.
type CollyPageFetcher struct {
	baseCollector *colly.Collector
}

// CollyConfig controls collector behavior.
type CollyConfig struct {
	UserAgent string
	Timeout   time.Duration
	// RespectRobots skips pages the host's robots.txt disallows.
	RespectRobots bool
}

// NewCollyPageFetcher builds a CollyPageFetcher.
func NewCollyPageFetcher(cfg CollyConfig) *CollyPageFetcher {
	c := colly.NewCollector(colly.Async(false))
	c.AllowURLRevisit = true
	c.IgnoreRobotsTxt = !cfg.RespectRobots
	c.MaxBodySize = maxPageBytes
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	c.SetRequestTimeout(timeout)
	c.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
		MaxIdleConns:          64,
		IdleConnTimeout:       30 * time.Second,
	})
	return &CollyPageFetcher{baseCollector: c}
}

// FetchPage implements PageFetcher. Only HTML responses are returned.
func (f *CollyPageFetcher) FetchPage(ctx context.Context, rawURL string) ([]byte, error) {
	collector := f.baseCollector.Clone()
	collector.Context = ctx
	var (
		body     []byte
		fetchErr error
	)
	collector.OnResponse(func(r *colly.Response) {
		ct := strings.ToLower(r.Headers.Get("Content-Type"))
		if ct != "" && !strings.Contains(ct, "html") {
			fetchErr = fmt.Errorf("unexpected content type %q", ct)
			return
		}
		body = append([]byte(nil), r.Body...)
	})
	collector.OnError(func(_ *colly.Response, err error) {
		if err == nil {
			err = errors.New("unknown colly error")
		}
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(rawURL)
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("page fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return nil, fmt.Errorf("colly visit failed: %w", err)
		}
		if fetchErr != nil {
			return nil, fmt.Errorf("colly response failed: %w", fetchErr)
		}
		return body, nil
	}
}
