package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newRunCmd creates the 'run' subcommand, the full pipeline in one
// shot: snapshot (built or reused) followed by encoding.
func newRunCmd() *cobra.Command {
	var (
		variants []string
		recreate bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Runs the full pipeline: crawl, refine, snapshot, encode",

		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			cfg := appInstance.Config()

			if len(variants) == 0 {
				variants = cfg.Encode.Variants
			}
			if !cmd.Flags().Changed("recreate") {
				recreate = cfg.Encode.RecreateCollections
			}

			timestamp, err := appInstance.Runner().Run(cmd.Context(), variants, recreate)
			if err != nil {
				return fmt.Errorf("run pipeline: %w", err)
			}
			appInstance.Logger().Info("Pipeline finished", zap.String("timestamp", timestamp))
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&variants, "variants", nil, "corpus variants to encode (default: encode.variants)")
	cmd.Flags().BoolVar(&recreate, "recreate", false, "drop and recreate the collections before upserting")

	return cmd
}
