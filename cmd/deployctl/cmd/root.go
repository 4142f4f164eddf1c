package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// serverURL is the orchestrator base URL every subcommand talks to.
var serverURL string

var rootCmd = &cobra.Command{
	Use:   "deployctl",
	Short: "deployctl — drive the deployforge orchestrator from the command line",
	Long: `deployctl is a thin client over the deployforge orchestrator's chat
API. Each subcommand posts a non-streaming chat-completion request and
prints the terminal outcome.

Common workflow:

  deployctl deploy-local --repo https://github.com/acme/app
  deployctl deploy-cloud-hosted --repo https://github.com/acme/app --aws-access-key-id ... --aws-secret-access-key ...
  deployctl redeploy --instance-id dep-1234
  deployctl scale --instance-id dep-1234 --replicas 3
  deployctl decommission --instance-id dep-1234`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "orchestrator base URL")
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		return fmt.Errorf("cli error: %w", err)
	}
	return nil
}
