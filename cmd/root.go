// Package cmd defines and implements the CLI commands for the prospect ranker.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/prospect-ranker/internal/api"
	"github.com/JakeFAU/prospect-ranker/internal/app"
	"github.com/JakeFAU/prospect-ranker/internal/classifier"
	"github.com/JakeFAU/prospect-ranker/internal/config"
	"github.com/JakeFAU/prospect-ranker/internal/logging"
	"github.com/JakeFAU/prospect-ranker/internal/output"
	"github.com/JakeFAU/prospect-ranker/internal/pipeline"
	"github.com/JakeFAU/prospect-ranker/internal/storage"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App defines the application interface that commands will use.
// This allows us to inject a fake app during tests.
type App interface {
	Close()
	Logger() *zap.Logger
	Config() config.Config
	BlobStore() storage.BlobStore
	LoadModel(ctx context.Context) (*classifier.Model, error)
	Ranker(model *classifier.Model) (*pipeline.Ranker, error)
	Preparer() (*pipeline.Preparer, error)
	Sinks(ctx context.Context, csvPath string) (output.Sink, error)
	ReadinessChecks() map[string]api.ReadinessCheck
}

// newApp is the application factory. It's a variable so tests can replace it.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (App, error) {
	return app.New(ctx, cfg, logger)
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	var (
		cfgFile string
		envFile string
	)
	cmd := &cobra.Command{
		Use:   "prospect-ranker",
		Short: "Ranks companies by how likely they are to be relevant prospects.",
		Long: `ranker crawls each company's website, classifies the collected text with a
trained relevance model and fuses the result with revenue and acquisition
signals into a single ranking score.`,
		SilenceUsage: true,

		// Builds the application once the flags are parsed and stores it in the
		// command context for subcommands to use.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("load env file: %w", err)
			}
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(cfg.Logging.Development)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			zap.ReplaceGlobals(logger)

			appInstance, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		// Shuts services down once the subcommand returns.
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				appInstance.Close()
				_ = appInstance.Logger().Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); defaults plus RANKER_* env vars when empty")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the config")

	cmd.AddCommand(newRankCmd(), newEvaluateCmd(), newPrepareCmd(), newTrainCmd(), newServeCmd())
	return cmd
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
