// Package cmd defines and implements the CLI commands for the muia-rag executable.
package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newCrawlCmd creates the 'crawl' subcommand. It builds a corpus
// snapshot (crawl, refine, chunk, commit) without encoding it.
func newCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawls the programme web and builds a corpus snapshot",
		Long: `Crawls the configured site through the markdown reader, refines every
page through the language model, and commits a timestamped snapshot of
all corpus variants to disk. When snapshot reuse is enabled and a
complete snapshot already exists, the crawl is skipped.`,

		RunE: runCrawlCommand,
	}
	return cmd
}

func runCrawlCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	logger := appInstance.Logger()

	timestamp, reused, err := appInstance.Runner().BuildSnapshot(cmd.Context())
	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Warn("Crawl interrupted")
			return nil
		}
		return fmt.Errorf("build snapshot: %w", err)
	}

	if reused {
		logger.Info("Reused existing snapshot", zap.String("timestamp", timestamp))
	} else {
		logger.Info("Snapshot committed", zap.String("timestamp", timestamp))
	}
	return nil
}
