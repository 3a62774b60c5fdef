package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newEncodeCmd creates the 'encode' subcommand. It post-processes a
// committed snapshot and upserts every configured variant into the
// vector store.
func newEncodeCmd() *cobra.Command {
	var (
		timestamp string
		variants  []string
		recreate  bool
	)

	cmd := &cobra.Command{
		Use:   "encode",
		Short: "Encodes a committed snapshot into the vector store",
		Long: `Derives the post-processed corpus variants from a committed snapshot,
then embeds and upserts the configured variants with every encoder in
the fleet. Without --timestamp the most recent reusable snapshot is
selected.`,

		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			cfg := appInstance.Config()

			if timestamp == "" {
				timestamp, err = appInstance.Runner().ResolveTimestamp()
				if err != nil {
					return fmt.Errorf("resolve snapshot: %w", err)
				}
			}
			if len(variants) == 0 {
				variants = cfg.Encode.Variants
			}
			if !cmd.Flags().Changed("recreate") {
				recreate = cfg.Encode.RecreateCollections
			}

			appInstance.Logger().Info("Encoding snapshot",
				zap.String("timestamp", timestamp),
				zap.Strings("variants", variants),
				zap.Bool("recreate", recreate))

			if err := appInstance.Runner().Encode(cmd.Context(), timestamp, variants, recreate); err != nil {
				return fmt.Errorf("encode snapshot: %w", err)
			}
			appInstance.Logger().Info("Encode finished", zap.String("timestamp", timestamp))
			return nil
		},
	}

	cmd.Flags().StringVar(&timestamp, "timestamp", "", "snapshot timestamp to encode (default: latest reusable)")
	cmd.Flags().StringSliceVar(&variants, "variants", nil, "corpus variants to encode (default: encode.variants)")
	cmd.Flags().BoolVar(&recreate, "recreate", false, "drop and recreate the collections before upserting")

	return cmd
}
