package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dia-upm/muia-rag/internal/corpus"
)

// newRetrieveCmd creates the 'retrieve' subcommand, a one-shot query
// against the vector store printed as JSON.
func newRetrieveCmd() *cobra.Command {
	var (
		variant string
		encoder string
		topK    int
	)

	cmd := &cobra.Command{
		Use:   "retrieve [query...]",
		Short: "Retrieves the top passages for a query",
		Args:  cobra.MinimumNArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if encoder == "" {
				encoder = appInstance.Config().Encode.EmbeddingModel
			}

			query := strings.Join(args, " ")
			results, err := appInstance.Upserter().Retrieve(cmd.Context(), query, variant, encoder, topK)
			if err != nil {
				return fmt.Errorf("retrieve: %w", err)
			}

			type hit struct {
				ID      uint64         `json:"id"`
				Score   float32        `json:"score"`
				Payload map[string]any `json:"payload"`
			}
			hits := make([]hit, 0, len(results))
			for _, r := range results {
				hits = append(hits, hit{ID: r.ID, Score: r.Score, Payload: r.Payload})
			}

			out, err := json.MarshalIndent(hits, "", "  ")
			if err != nil {
				return fmt.Errorf("marshal results: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}

	cmd.Flags().StringVar(&variant, "variant", corpus.LMCleanedTextSubchunks, "corpus variant to query")
	cmd.Flags().StringVar(&encoder, "encoder", "", "encoder to embed the query with (default: encode.embedding_model)")
	cmd.Flags().IntVar(&topK, "top-k", 5, "number of passages to return")

	return cmd
}
