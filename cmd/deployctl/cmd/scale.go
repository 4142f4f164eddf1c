package cmd

import "github.com/spf13/cobra"

var (
	scaleInstanceID string
	scaleReplicas   int
)

var scaleCmd = &cobra.Command{
	Use:   "scale",
	Short: "Scale an existing instance to a new replica count",
	RunE: func(cmd *cobra.Command, args []string) error {
		header("Scaling " + scaleInstanceID)
		body := map[string]any{
			"action":      "scale",
			"instance_id": scaleInstanceID,
			"replicas":    scaleReplicas,
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
	scaleCmd.Flags().StringVar(&scaleInstanceID, "instance-id", "", "existing deployment instance ID (required)")
	scaleCmd.Flags().IntVar(&scaleReplicas, "replicas", 1, "desired replica count (required)")
	_ = scaleCmd.MarkFlagRequired("instance-id")
	_ = scaleCmd.MarkFlagRequired("replicas")
	rootCmd.AddCommand(scaleCmd)
}
