// Package cmd defines and implements the CLI commands for the checker
// executable.
package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/netflixcritic/checker/internal/app"
	"github.com/netflixcritic/checker/internal/config"
	"github.com/netflixcritic/checker/internal/logging"
	"github.com/netflixcritic/checker/internal/runner"
)

var cfgFile string

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App is the slice of the application the commands use. Keeping it an
// interface lets tests inject a fake.
type App interface {
	Runner() *runner.Runner
	Run(ctx context.Context) error
	Close(ctx context.Context) error
}

// newApp is the application factory. It is a variable so tests can
// replace it.
var newApp = func(ctx context.Context) (App, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	logging.InitLogger(cfg.Logging.Development)
	return app.New(ctx, cfg, logging.L)
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checker",
		Short: "Catalog availability and ratings checker.",
		Long: `checker keeps a local catalog in sync with the remote streaming
service: it verifies which titles are still watchable, extracts their
structured metadata, and collects third-party ratings from search
results.`,

		// Runs after flags are parsed but before the subcommand's RunE;
		// builds the dependency graph once for every command.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := newApp(cmd.Context())
			if err != nil {
				return fmt.Errorf("initialize application services: %w", err)
			}
			ctx := context.WithValue(cmd.Context(), appKey, appInstance)
			cmd.SetContext(ctx)
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				if err := appInstance.Close(cmd.Context()); err != nil {
					logging.L.Warn("shutdown error", zap.Error(err))
				}
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default uses environment variables)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newAvailabilityCmd())
	cmd.AddCommand(newMetadataCmd())
	cmd.AddCommand(newRatingsCmd())

	return cmd
}

// Execute is the main entry point.
func Execute() {
	logging.InitLogger(true)
	if err := newRootCmd().Execute(); err != nil {
		logging.L.Fatal("command execution failed", zap.Error(err))
	}
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// reportSummary logs the batch report in a uniform shape across the
// pipeline commands.
func reportSummary(pipeline string, report runner.Report) {
	logging.L.Info("batch complete",
		zap.String("pipeline", pipeline),
		zap.String("batch_id", report.BatchID.String()),
		zap.Int("total", report.Total),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", report.Failed),
		zap.Duration("elapsed", report.Elapsed),
	)
	for _, taskErr := range report.Errors {
		logging.L.Warn("task error",
			zap.String("pipeline", pipeline),
			zap.Int64("netflix_id", int64(taskErr.ID)),
			zap.Error(taskErr.Err),
		)
	}
}
