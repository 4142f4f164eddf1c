package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	decommissionInstanceID string
	decommissionForce      bool
)

var decommissionCmd = &cobra.Command{
	Use:   "decommission",
	Short: "Tear down a deployment and release its resources",
	Long: `Decommissions a deployment, deleting its workload, any provisioned
cloud infrastructure, and DNS records. This is irreversible.`,
	RunE: runDecommission,
}

func init() {
	decommissionCmd.Flags().StringVar(&decommissionInstanceID, "instance-id", "", "existing deployment instance ID (required)")
	decommissionCmd.Flags().BoolVarP(&decommissionForce, "force", "y", false, "skip confirmation prompt")
	_ = decommissionCmd.MarkFlagRequired("instance-id")
	rootCmd.AddCommand(decommissionCmd)
}

func runDecommission(cmd *cobra.Command, args []string) error {
	header("Decommissioning " + decommissionInstanceID)

	if !decommissionForce {
		fmt.Printf("\n  %s⚠️  This will permanently tear down %q and any provisioned infrastructure.%s\n", colorYellow, decommissionInstanceID, colorReset)
		fmt.Printf("  Type the instance ID to confirm: ")

		var confirm string
		fmt.Scanln(&confirm)
		if confirm != decommissionInstanceID {
			fmt.Println("  Aborted.")
			return nil
		}
	}

	body := map[string]any{
		"action":      "decommission",
		"instance_id": decommissionInstanceID,
	}
	o, err := postDeployment(body)
	if err != nil {
		fail(err.Error())
		return err
	}
	printOutcomeAndExit(o)
	return nil
}
