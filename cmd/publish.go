package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newPublishCmd creates the 'publish' subcommand: verify, upload, announce.
func newPublishCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "publish",
		Short: "Verify artifacts, upload them, and announce the new version",
		RunE: withApp(func(cmd *cobra.Command, appInstance App) error {
			pub, err := appInstance.Publisher(cmd.Context())
			if err != nil {
				return fmt.Errorf("publish: %w", err)
			}
			res, err := pub.Publish(cmd.Context(), appInstance.Config().Export.Dir)
			for _, w := range res.Report.Warnings {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", w)
			}
			if err != nil {
				return fmt.Errorf("publish: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "published %s %s\n", res.CacheURI, res.StatusURI)
			return nil
		}),
	}
}
