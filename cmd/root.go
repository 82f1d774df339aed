// Package cmd defines and implements the CLI commands for the feeds executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-feeds/internal/app"
	"github.com/JakeFAU/realtime-feeds/internal/config"
	"github.com/JakeFAU/realtime-feeds/internal/export"
	"github.com/JakeFAU/realtime-feeds/internal/publish"
	"github.com/JakeFAU/realtime-feeds/internal/store"
	"github.com/JakeFAU/realtime-feeds/internal/verify"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App defines the application interface that commands use, so tests can
// inject a fake.
type App interface {
	Close()
	Logger() *zap.Logger
	Config() config.Config
	Store() *store.Store
	Run(ctx context.Context) (app.RunReport, error)
	Verify(ctx context.Context) (verify.Report, error)
	Exporter() *export.Exporter
	Publisher(ctx context.Context) (*publish.Publisher, error)
}

// newApp is the application factory. It's a variable so tests can replace it.
var newApp = func(ctx context.Context, cfgPath string) (App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	return app.NewApp(ctx, cfg, app.Options{})
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "feeds",
		Short: "Feed ingestion pipeline for the realtime feeds site.",
		Long: `feeds fetches the registered RSS/Atom sources, normalizes and
deduplicates their posts into a local SQLite store, and exports the
cache.json and status.json artifacts the site is built from.`,
		SilenceUsage: true,

		// Builds the application and injects it before the subcommand runs.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := newApp(cmd.Context(), cfgFile)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, json, or toml)")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newExportCmd())
	cmd.AddCommand(newVerifyCmd())
	cmd.AddCommand(newPublishCmd())
	cmd.AddCommand(newServeCmd())

	return cmd
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// withApp resolves the injected App and closes it once fn returns. Cobra
// skips post-run hooks when RunE fails, so the close lives here.
func withApp(fn func(cmd *cobra.Command, appInstance App) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		appInstance, err := resolveApp(cmd.Context())
		if err != nil {
			return err
		}
		defer appInstance.Close()
		return fn(cmd, appInstance)
	}
}

// Execute is the main entry point. It exits non-zero when a command fails.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := newRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "feeds: %v\n", err)
		stop()
		os.Exit(1)
	}
}
