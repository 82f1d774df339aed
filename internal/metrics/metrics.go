// Package metrics exposes Prometheus collectors for the ingestion pipeline.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	fetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feeds_fetch_total",
			Help: "Total number of source fetches, labeled by mode and status.",
		},
		[]string{"mode", "status"},
	)

	fetchDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "feeds_fetch_duration_seconds",
			Help:    "Histogram of per-source fetch latencies, labeled by mode.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"mode"},
	)

	retriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feeds_retries_total",
			Help: "Total number of fetch retries, labeled by mode.",
		},
		[]string{"mode"},
	)

	relayFallbacksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "feeds_relay_fallbacks_total",
			Help: "Total number of direct fetches that fell back to the relay.",
		},
	)

	postsDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feeds_posts_dropped_total",
			Help: "Total number of feed items dropped during normalization, labeled by reason.",
		},
		[]string{"reason"},
	)

	pageExcerptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feeds_page_excerpts_total",
			Help: "Total number of page-excerpt scrapes, labeled by result.",
		},
		[]string{"result"},
	)

	rateLimitDelaysSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "feeds_rate_limit_delays_seconds",
			Help:    "Histogram of per-host politeness wait durations.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"host"},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feeds_http_requests_total",
			Help: "Total number of HTTP requests served, labeled by method and code.",
		},
		[]string{"method", "code"},
	)

	lastRunPosts = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "feeds_last_run_posts",
			Help: "Number of posts in the store after the most recent run.",
		},
	)
)

// SanitizeSite extracts a lowercase hostname, or "unknown" for bad input.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFetch records one source fetch.
func ObserveFetch(mode, status string, duration time.Duration) {
	fetchTotal.WithLabelValues(mode, status).Inc()
	fetchDurationSeconds.WithLabelValues(mode).Observe(duration.Seconds())
}

// ObserveRetry counts one scheduled retry.
func ObserveRetry(mode string) {
	retriesTotal.WithLabelValues(mode).Inc()
}

// ObserveFallback counts one direct-to-relay fallback.
func ObserveFallback() {
	relayFallbacksTotal.Inc()
}

// ObserveDropped counts an item dropped for reason.
func ObserveDropped(reason string) {
	postsDroppedTotal.WithLabelValues(reason).Inc()
}

// ObservePageExcerpt counts a page scrape outcome ("hit", "miss", "error").
func ObservePageExcerpt(result string) {
	pageExcerptsTotal.WithLabelValues(result).Inc()
}

// ObserveRateLimitDelay records the duration of a politeness wait.
func ObserveRateLimitDelay(host string, duration time.Duration) {
	rateLimitDelaysSeconds.WithLabelValues(SanitizeSite(host)).Observe(duration.Seconds())
}

// ObserveHTTPRequest counts one served HTTP request.
func ObserveHTTPRequest(method string, code int) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
}

// SetStorePosts records the store size after a run.
func SetStorePosts(n int) {
	lastRunPosts.Set(float64(n))
}
