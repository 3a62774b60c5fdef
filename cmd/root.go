package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dia-upm/muia-rag/internal/app"
	"github.com/dia-upm/muia-rag/internal/config"
	"github.com/dia-upm/muia-rag/internal/email"
	"github.com/dia-upm/muia-rag/internal/encode"
	"github.com/dia-upm/muia-rag/internal/logging"
	"github.com/dia-upm/muia-rag/internal/pipeline"
	pkgconfig "github.com/dia-upm/muia-rag/pkg/config"
)

var cfgFile string

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App defines the application surface that commands use. Keeping it an
// interface lets tests inject a mock app through newApp.
type App interface {
	Close()
	Config() config.Config
	Logger() *zap.Logger
	Runner() *pipeline.Runner
	Upserter() *encode.Upserter
	NewEmailAgent() (*email.Agent, func(), error)
}

// newApp is the application factory. It's a variable so we can
// replace it with a mock factory in our tests.
var newApp func(ctx context.Context) (App, error) = func(ctx context.Context) (App, error) {
	return app.NewApp(ctx)
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "muia-rag",
		Short: "Builds and serves the MUIA master's programme RAG corpus.",
		Long: `muia-rag crawls the MUIA programme web, refines the pages through a
language model, encodes the resulting corpus variants into a vector
store, and answers questions over them through a retrieval API and an
email reply agent.`,

		// Runs after config is loaded but before the subcommand's RunE,
		// so every command finds a fully built application in its context.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := newApp(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}

			ctx := context.WithValue(cmd.Context(), appKey, appInstance)
			cmd.SetContext(ctx)
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				appInstance.Close()
			}
		},
	}

	cobra.OnInitialize(pkgconfig.InitConfig)

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")

	cmd.AddCommand(newCrawlCmd())
	cmd.AddCommand(newEncodeCmd())
	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newRetrieveCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newEmailCmd())

	return cmd
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, fmt.Errorf("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		logging.L.Error("Command execution failed", zap.Error(err))
		os.Exit(1)
	}
}
