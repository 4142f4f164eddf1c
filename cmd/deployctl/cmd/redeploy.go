package cmd

import (
	"strings"

	"github.com/spf13/cobra"
)

var (
	redeployInstanceID string
	redeployEnvVars    []string
)

var redeployCmd = &cobra.Command{
	Use:   "redeploy",
	Short: "Redeploy an existing instance against its latest commit",
	RunE: func(cmd *cobra.Command, args []string) error {
		header("Redeploying " + redeployInstanceID)
		body := map[string]any{
			"action":      "redeploy",
			"instance_id": redeployInstanceID,
		}
		if len(redeployEnvVars) > 0 {
			env := map[string]string{}
			for _, kv := range redeployEnvVars {
				k, v, ok := strings.Cut(kv, "=")
				if ok {
					env[k] = v
				}
			}
			body["application_environment_variables"] = env
		}
		o, err := postDeployment(body)
		if err != nil {
			fail(err.Error())
			return err
		}
		printOutcomeAndExit(o)
		return nil
	},
}

func init() {
	redeployCmd.Flags().StringVar(&redeployInstanceID, "instance-id", "", "existing deployment instance ID (required)")
	redeployCmd.Flags().StringArrayVar(&redeployEnvVars, "env", nil, "application environment variable KEY=VALUE (repeatable)")
	_ = redeployCmd.MarkFlagRequired("instance-id")
	rootCmd.AddCommand(redeployCmd)
}
