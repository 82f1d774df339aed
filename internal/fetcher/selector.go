package fetcher

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-feeds/internal/feeds"
	"github.com/JakeFAU/realtime-feeds/internal/metrics"
)

// Result is a fetched feed body and how it was obtained.
type Result struct {
	Body     []byte
	Mode     Mode
	FellBack bool
}

// Selector picks the strategy for a source: the relay for sensitive sources,
// otherwise direct with a single relay fallback after a blocking-class failure.
type Selector struct {
	direct    Strategy
	relay     Strategy
	sensitive *HostPatterns
	logger    *zap.Logger
}

// NewSelector builds a Selector. relay may be nil, which disables both relay
// routing and fallback.
func NewSelector(direct, relay Strategy, sensitive *HostPatterns, logger *zap.Logger) *Selector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Selector{direct: direct, relay: relay, sensitive: sensitive, logger: logger}
}

// Sensitive reports whether a source must be fetched through the relay.
func (s *Selector) Sensitive(source feeds.Source) bool {
	return source.ForceProxy || s.sensitive.MatchURL(source.FeedURL)
}

// Fetch retrieves the source's feed body.
func (s *Selector) Fetch(ctx context.Context, source feeds.Source) (Result, error) {
	if s.Sensitive(source) && s.relay != nil {
		body, err := s.relay.Fetch(ctx, source)
		if err != nil {
			return Result{Mode: ModeRelay}, err
		}
		return Result{Body: body, Mode: ModeRelay}, nil
	}

	body, err := s.direct.Fetch(ctx, source)
	if err == nil {
		return Result{Body: body, Mode: ModeDirect}, nil
	}
	if s.relay == nil || !IsBlockingClass(err) || ctx.Err() != nil {
		return Result{Mode: ModeDirect}, err
	}

	s.logger.Info("direct fetch blocked, falling back to relay",
		zap.String("source_id", source.ID),
		zap.Error(err),
	)
	metrics.ObserveFallback()
	body, relayErr := s.relay.Fetch(ctx, source)
	if relayErr != nil {
		return Result{Mode: ModeRelay, FellBack: true}, fmt.Errorf("relay fallback after %v: %w", err, relayErr)
	}
	return Result{Body: body, Mode: ModeRelay, FellBack: true}, nil
}
