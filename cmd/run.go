package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-feeds/internal/api"
)

// newRunCmd creates the 'run' subcommand: fetch, store, export, verify.
func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Fetch every source, update the store, and export artifacts",
		Long: `Runs one ingestion pass. Per-source failures are recorded in the
fetch log and do not fail the run; a store write failure aborts before
export, and a verification failure exits non-zero.`,
		RunE: withApp(runRunCommand),
	}
}

func runRunCommand(cmd *cobra.Command, appInstance App) error {
	logger := appInstance.Logger()

	if addr := appInstance.Config().Metrics.ListenAddr; addr != "" {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()
		srv := api.NewServer(appInstance.Store(), appInstance.Store(), logger)
		go func() {
			if err := srv.ListenAndServe(ctx, addr); err != nil {
				logger.Error("metrics server failed", zap.Error(err))
			}
		}()
	}

	report, err := appInstance.Run(cmd.Context())
	for _, w := range report.Verify.Warnings {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", w)
	}
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "sources=%d healthy=%d errors=%d fresh=%d stored=%d\n",
		report.Sources, report.Healthy, report.Errors, report.Fresh, report.Merged)
	return nil
}
