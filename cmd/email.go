package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newEmailCmd creates the 'email' subcommand. It reads the unseen
// inbox, groups it into threads, and writes one grounded reply per
// thread.
func newEmailCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "email",
		Short: "Answers unseen email threads with retrieval-grounded replies",
		Long: `Connects to the configured mailbox, groups the unseen messages into
conversation threads, and drafts or sends one reply per thread. Each
reply is grounded in passages retrieved from the encoded corpus. The
mailbox password is read from the MUIA_EMAIL_PASSWORD environment
variable.`,

		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}

			agent, closeFn, err := appInstance.NewEmailAgent()
			if err != nil {
				return fmt.Errorf("init email agent: %w", err)
			}
			defer closeFn()

			replied, err := agent.Run(cmd.Context())
			if err != nil {
				return fmt.Errorf("run email agent: %w", err)
			}
			appInstance.Logger().Info("Email run finished", zap.Int("replies", replied))
			return nil
		},
	}
	return cmd
}
