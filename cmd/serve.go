package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/realtime-feeds/internal/api"
)

// newServeCmd creates the 'serve' subcommand, which exposes health, metrics,
// and feed status until interrupted.
func newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve health, metrics, and feed status over HTTP",
		RunE: withApp(func(cmd *cobra.Command, appInstance App) error {
			if addr == "" {
				addr = appInstance.Config().Metrics.ListenAddr
			}
			if addr == "" {
				addr = ":8080"
			}
			srv := api.NewServer(appInstance.Store(), appInstance.Store(), appInstance.Logger())
			if err := srv.ListenAndServe(cmd.Context(), addr); err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			return nil
		}),
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to metrics.listen_addr or :8080)")
	return cmd
}
