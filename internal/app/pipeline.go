package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-feeds/internal/metrics"
	"github.com/JakeFAU/realtime-feeds/internal/orchestrator"
	"github.com/JakeFAU/realtime-feeds/internal/registry"
	"github.com/JakeFAU/realtime-feeds/internal/verify"
)

// RunReport summarizes one ingestion run.
type RunReport struct {
	Sources int
	Fresh   int
	Merged  int
	Healthy int
	Errors  int
	Verify  verify.Report
}

// Run executes one ingestion pass: load the registry, fetch every source,
// persist the results, export artifacts, and verify them. A store failure
// aborts the run before export so artifacts never reflect a partial write.
func (a *App) Run(ctx context.Context) (RunReport, error) {
	var report RunReport

	sources, err := registry.Load(a.cfg.Registry.Path)
	if err != nil {
		return report, err
	}
	report.Sources = len(sources)

	if err := a.store.UpsertSources(ctx, sources, a.clock.Now()); err != nil {
		return report, fmt.Errorf("persist sources: %w", err)
	}
	snapshot, err := a.store.Snapshot(ctx)
	if err != nil {
		return report, fmt.Errorf("load snapshot: %w", err)
	}

	orch, err := a.Orchestrator()
	if err != nil {
		return report, err
	}
	results := orch.Run(ctx, sources, snapshot)
	for _, r := range results {
		if r.Log.Error == nil {
			report.Healthy++
		} else {
			report.Errors++
		}
	}

	fresh := orchestrator.FreshPosts(results)
	report.Fresh = len(fresh)
	if err := a.store.UpsertPosts(ctx, fresh); err != nil {
		return report, fmt.Errorf("persist posts: %w", err)
	}
	if err := a.store.AppendFetchLog(ctx, orchestrator.FetchLogs(results)); err != nil {
		return report, fmt.Errorf("persist fetch log: %w", err)
	}
	report.Merged = len(orchestrator.Merge(snapshot, results))
	metrics.SetStorePosts(report.Merged)

	a.logger.Info("run persisted",
		zap.Int("sources", report.Sources),
		zap.Int("healthy", report.Healthy),
		zap.Int("errors", report.Errors),
		zap.Int("fresh_posts", report.Fresh),
		zap.Int("stored_posts", report.Merged),
	)

	if err := a.Exporter().Export(ctx, a.cfg.Export.Dir); err != nil {
		return report, fmt.Errorf("export artifacts: %w", err)
	}
	vr, err := a.Verify(ctx)
	report.Verify = vr
	if err != nil {
		return report, err
	}
	return report, vr.Err()
}

// Verify checks the export directory against the store and logs every
// finding.
func (a *App) Verify(ctx context.Context) (verify.Report, error) {
	vr, err := a.Verifier().Verify(ctx, a.cfg.Export.Dir, a.store)
	if err != nil {
		return vr, err
	}
	for _, w := range vr.Warnings {
		a.logger.Warn("verification warning", zap.String("warning", w))
	}
	for _, e := range vr.Errors {
		a.logger.Error("verification error", zap.String("error", e))
	}
	return vr, nil
}
