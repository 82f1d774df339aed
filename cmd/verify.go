package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newVerifyCmd creates the 'verify' subcommand. Structural failures exit
// non-zero; warnings are printed but do not fail.
func newVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check exported artifacts before publishing",
		RunE: withApp(func(cmd *cobra.Command, appInstance App) error {
			report, err := appInstance.Verify(cmd.Context())
			if err != nil {
				return fmt.Errorf("verify: %w", err)
			}
			for _, w := range report.Warnings {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", w)
			}
			for _, e := range report.Errors {
				fmt.Fprintf(cmd.ErrOrStderr(), "error: %s\n", e)
			}
			if err := report.Err(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "artifacts ok")
			return nil
		}),
	}
}
