package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dia-upm/muia-rag/internal/api"
	"github.com/dia-upm/muia-rag/internal/corpus"
)

const shutdownTimeout = 10 * time.Second

// newServeCmd creates the 'serve' subcommand, which exposes the
// retrieval API over HTTP until the process is signalled.
func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serves the retrieval API",

		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			cfg := appInstance.Config()
			logger := appInstance.Logger()

			defaultVariant := corpus.LMCleanedTextSubchunks
			if len(cfg.Encode.Variants) > 0 {
				defaultVariant = cfg.Encode.Variants[0]
			}
			server := api.NewServer(appInstance.Upserter(), defaultVariant, cfg.Encode.EmbeddingModel)

			httpServer := &http.Server{
				Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
				Handler:           server.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("Retrieval API listening", zap.Int("port", cfg.Server.Port))
				errCh <- httpServer.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				return fmt.Errorf("serve: %w", err)
			case <-cmd.Context().Done():
			}

			logger.Info("Shutting down retrieval API")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("shutdown: %w", err)
			}
			if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("serve: %w", err)
			}
			return nil
		},
	}
	return cmd
}
