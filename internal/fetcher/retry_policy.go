package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"time"
)

// RetryPolicy is the single retry abstraction shared by the direct and relay
// paths: a bounded number of attempts with an escalating backoff schedule.
type RetryPolicy struct {
	maxAttempts int
	backoff     []time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
}

// NewRetryPolicy builds a policy. When the schedule is shorter than the
// number of retries the last delay repeats; an empty schedule doubles from
// one second.
func NewRetryPolicy(maxAttempts int, backoff []time.Duration) *RetryPolicy {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	return &RetryPolicy{
		maxAttempts: maxAttempts,
		backoff:     append([]time.Duration(nil), backoff...),
		sleep:       sleepContext,
	}
}

// MaxAttempts returns the attempt budget.
func (p *RetryPolicy) MaxAttempts() int {
	return p.maxAttempts
}

// Backoff returns the wait before retry number attempt (1-based).
func (p *RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	if len(p.backoff) == 0 {
		return time.Second << uint(min(attempt-1, 6))
	}
	if attempt <= len(p.backoff) {
		return p.backoff[attempt-1]
	}
	return p.backoff[len(p.backoff)-1]
}

// ShouldRetry decides whether another attempt is warranted.
func (p *RetryPolicy) ShouldRetry(ctx context.Context, err error, attempt int) bool {
	if err == nil || attempt >= p.maxAttempts {
		return false
	}
	if ctx.Err() != nil {
		return false
	}
	return IsRetryable(err)
}

// Do runs fn until it succeeds, fails with a non-retryable error, or the
// attempt budget is spent. onRetry, when set, observes each scheduled retry.
func (p *RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error, onRetry func(attempt int, err error, wait time.Duration)) error {
	var err error
	for attempt := 1; ; attempt++ {
		err = fn(ctx, attempt)
		if !p.ShouldRetry(ctx, err, attempt) {
			break
		}
		wait := p.Backoff(attempt)
		if onRetry != nil {
			onRetry(attempt, err, wait)
		}
		if sleepErr := p.sleep(ctx, wait); sleepErr != nil {
			return fmt.Errorf("retry wait: %w (last error: %v)", sleepErr, err)
		}
	}
	return err
}

// IsRetryable reports timeout and connection-reset class failures, plus
// upstream responses explicitly marked retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var upstream *UpstreamError
	if errors.As(err, &upstream) {
		return upstream.Retryable
	}
	return isTransient(err)
}

// IsBlockingClass reports failures that suggest the host is refusing
// automated clients: rate-limit style statuses or timeout-class errors.
func IsBlockingClass(err error) bool {
	if err == nil {
		return false
	}
	var upstream *UpstreamError
	if errors.As(err, &upstream) {
		switch upstream.Status {
		case 403, 429, 503:
			return true
		}
		return false
	}
	return isTransient(err)
}

func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
