// Package publish uploads verified artifacts and announces them. Artifacts
// that fail verification are never uploaded, so the previously published
// copies stay in place.
package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-feeds/internal/export"
	"github.com/JakeFAU/realtime-feeds/internal/feeds"
	"github.com/JakeFAU/realtime-feeds/internal/notify"
	"github.com/JakeFAU/realtime-feeds/internal/storage"
	"github.com/JakeFAU/realtime-feeds/internal/verify"
)

const contentTypeJSON = "application/json; charset=utf-8"

// Verifier checks an export directory.
type Verifier interface {
	Verify(ctx context.Context, dir string, counter feeds.PostCounter) (verify.Report, error)
}

// Options configures a Publisher.
type Options struct {
	// Prefix is prepended to every object path.
	Prefix string
	// RunID is included in announcements.
	RunID string
}

// Publisher verifies, uploads, and announces artifacts.
type Publisher struct {
	verifier Verifier
	counter  feeds.PostCounter
	blobs    storage.BlobStore
	notifier notify.Notifier
	opts     Options
	logger   *zap.Logger
}

// Result describes a successful publish.
type Result struct {
	CacheURI  string
	StatusURI string
	MessageID string
	Report    verify.Report
}

// New builds a Publisher. counter and notifier may be nil.
func New(verifier Verifier, counter feeds.PostCounter, blobs storage.BlobStore, notifier notify.Notifier, opts Options, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{
		verifier: verifier,
		counter:  counter,
		blobs:    blobs,
		notifier: notifier,
		opts:     opts,
		logger:   logger,
	}
}

// Publish re-verifies dir, then uploads cache.json and status.json and sends
// an announcement. A failed verification returns an error wrapping
// verify.ErrVerification and uploads nothing.
func (p *Publisher) Publish(ctx context.Context, dir string) (Result, error) {
	report, err := p.verifier.Verify(ctx, dir, p.counter)
	if err != nil {
		return Result{}, fmt.Errorf("verify artifacts: %w", err)
	}
	for _, w := range report.Warnings {
		p.logger.Warn("verification warning", zap.String("warning", w))
	}
	if !report.OK() {
		for _, e := range report.Errors {
			p.logger.Error("verification error", zap.String("error", e))
		}
		return Result{Report: report}, report.Err()
	}
	if p.blobs == nil {
		return Result{}, fmt.Errorf("no blob store configured")
	}

	cacheData, err := os.ReadFile(filepath.Join(dir, export.CacheFile))
	if err != nil {
		return Result{}, fmt.Errorf("read %s: %w", export.CacheFile, err)
	}
	statusData, err := os.ReadFile(filepath.Join(dir, export.StatusFile))
	if err != nil {
		return Result{}, fmt.Errorf("read %s: %w", export.StatusFile, err)
	}

	res := Result{Report: report}
	if res.CacheURI, err = p.put(ctx, export.CacheFile, cacheData); err != nil {
		return Result{}, err
	}
	if res.StatusURI, err = p.put(ctx, export.StatusFile, statusData); err != nil {
		return Result{}, err
	}
	p.logger.Info("artifacts uploaded",
		zap.String("cache_uri", res.CacheURI),
		zap.String("status_uri", res.StatusURI),
	)

	if p.notifier == nil {
		return res, nil
	}
	ann, err := announcement(cacheData, statusData)
	if err != nil {
		return res, err
	}
	ann.RunID = p.opts.RunID
	ann.CacheURI, ann.StatusURI = res.CacheURI, res.StatusURI
	if res.MessageID, err = p.notifier.Notify(ctx, ann); err != nil {
		return res, fmt.Errorf("announce publish: %w", err)
	}
	p.logger.Info("publish announced", zap.String("message_id", res.MessageID), zap.Int("posts", ann.Posts))
	return res, nil
}

func (p *Publisher) put(ctx context.Context, name string, data []byte) (string, error) {
	uri, err := p.blobs.PutObject(ctx, storage.JoinPath(p.opts.Prefix, name), contentTypeJSON, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", name, err)
	}
	return uri, nil
}

func announcement(cacheData, statusData []byte) (notify.Announcement, error) {
	var cache export.ExportedCache
	if err := json.Unmarshal(cacheData, &cache); err != nil {
		return notify.Announcement{}, fmt.Errorf("decode %s: %w", export.CacheFile, err)
	}
	var status export.ExportedStatus
	if err := json.Unmarshal(statusData, &status); err != nil {
		return notify.Announcement{}, fmt.Errorf("decode %s: %w", export.StatusFile, err)
	}
	return notify.Announcement{
		Posts:       len(cache.Posts),
		Feeds:       status.Summary.Total,
		Errors:      status.Summary.Errors,
		LastUpdated: cache.LastUpdated,
	}, nil
}
