package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

var statusInstanceID string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current status of a deployment",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusInstanceID, "instance-id", "", "existing deployment instance ID (required)")
	_ = statusCmd.MarkFlagRequired("instance-id")
	rootCmd.AddCommand(statusCmd)
}

type deploymentStatus struct {
	ID        string            `json:"id"`
	Mode      string            `json:"mode"`
	Status    string            `json:"status"`
	CreatedAt string            `json:"created_at"`
	UpdatedAt string            `json:"updated_at"`
	Outputs   map[string]string `json:"outputs,omitempty"`
	LastError string            `json:"last_error,omitempty"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	header("Deployment " + statusInstanceID)

	resp, err := http.Get(serverURL + "/v1/deployments/" + statusInstanceID)
	if err != nil {
		fail(err.Error())
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		fail(fmt.Sprintf("%q not found", statusInstanceID))
		return fmt.Errorf("deployment %q not found", statusInstanceID)
	}

	var s deploymentStatus
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		fail("decode response: " + err.Error())
		return err
	}

	switch s.Status {
	case "succeeded", "decommissioned":
		success(fmt.Sprintf("%s (%s)", s.Status, s.Mode))
	case "failed":
		fail(fmt.Sprintf("%s (%s): %s", s.Status, s.Mode, s.LastError))
	default:
		warn(fmt.Sprintf("%s (%s)", s.Status, s.Mode))
	}
	fmt.Printf("    created: %s\n", s.CreatedAt)
	fmt.Printf("    updated: %s\n", s.UpdatedAt)
	for k, v := range s.Outputs {
		fmt.Printf("    %s: %s\n", k, v)
	}
	return nil
}
