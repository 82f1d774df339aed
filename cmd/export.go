package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newExportCmd creates the 'export' subcommand.
func newExportCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write cache.json and status.json from the store",
		RunE: withApp(func(cmd *cobra.Command, appInstance App) error {
			if dir == "" {
				dir = appInstance.Config().Export.Dir
			}
			if err := appInstance.Exporter().Export(cmd.Context(), dir); err != nil {
				return fmt.Errorf("export: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported artifacts to %s\n", dir)
			return nil
		}),
	}
	cmd.Flags().StringVar(&dir, "dir", "", "export directory (defaults to export.dir)")
	return cmd
}
