package cmd

import (
	"strings"

	"github.com/spf13/cobra"
)

var (
	deployRepo           string
	deployNamespace      string
	deployInstanceName   string
	deployReplicas       int
	deployEnvVars        []string
	deployEC2KeyName     string
	deployAWSAccessKey   string
	deployAWSSecretKey   string
	deployAWSRegion      string
	deployHostedZoneID   string
	deploySubdomainLabel string
)

func addDeployFlags(c *cobra.Command, needsEC2Key bool) {
	c.Flags().StringVar(&deployRepo, "repo", "", "github repository URL to deploy (required)")
	c.Flags().StringVar(&deployNamespace, "namespace", "", "target kubernetes namespace")
	c.Flags().StringVar(&deployInstanceName, "instance-name", "", "friendly name for this deployment (generated if omitted)")
	c.Flags().IntVar(&deployReplicas, "replicas", 1, "replica count")
	c.Flags().StringArrayVar(&deployEnvVars, "env", nil, "application environment variable KEY=VALUE (repeatable)")
	c.Flags().StringVar(&deployAWSAccessKey, "aws-access-key-id", "", "AWS access key ID (cloud modes)")
	c.Flags().StringVar(&deployAWSSecretKey, "aws-secret-access-key", "", "AWS secret access key (cloud modes)")
	c.Flags().StringVar(&deployAWSRegion, "aws-region", "", "AWS region (cloud modes)")
	c.Flags().StringVar(&deployHostedZoneID, "hosted-zone-id", "", "Route53 hosted zone ID for a custom subdomain")
	c.Flags().StringVar(&deploySubdomainLabel, "subdomain-label", "", "subdomain label under the configured base domain")
	if needsEC2Key {
		c.Flags().StringVar(&deployEC2KeyName, "ec2-key-name", "", "EC2 key pair name (required for cloud-local)")
	}
	_ = c.MarkFlagRequired("repo")
}

func deployBody(mode string) map[string]any {
	body := map[string]any{
		"action":            "deploy",
		"deployment_mode":   mode,
		"github_repo_url":   deployRepo,
		"target_namespace":  deployNamespace,
		"instance_name":     deployInstanceName,
		"replicas":          deployReplicas,
		"ec2_key_name":      deployEC2KeyName,
		"base_hosted_zone_id":  deployHostedZoneID,
		"app_subdomain_label":  deploySubdomainLabel,
	}
	if deployAWSAccessKey != "" {
		body["aws_credentials"] = map[string]string{
			"access_key_id":     deployAWSAccessKey,
			"secret_access_key": deployAWSSecretKey,
			"region":            deployAWSRegion,
		}
	}
	if len(deployEnvVars) > 0 {
		env := map[string]string{}
		for _, kv := range deployEnvVars {
			k, v, ok := strings.Cut(kv, "=")
			if ok {
				env[k] = v
			}
		}
		body["application_environment_variables"] = env
	}
	return body
}

func runDeploy(mode string) error {
	header("Deploying " + deployRepo + " (" + mode + ")")
	o, err := postDeployment(deployBody(mode))
	if err != nil {
		fail(err.Error())
		return err
	}
	printOutcomeAndExit(o)
	return nil
}

var deployLocalCmd = &cobra.Command{
	Use:   "deploy-local",
	Short: "Deploy into a local ephemeral Kind cluster",
	RunE:  func(cmd *cobra.Command, args []string) error { return runDeploy("local") },
}

var deployCloudLocalCmd = &cobra.Command{
	Use:   "deploy-cloud-local",
	Short: "Deploy into a single cloud VM hosting an ephemeral Kubernetes cluster",
	RunE:  func(cmd *cobra.Command, args []string) error { return runDeploy("cloud-local") },
}

var deployCloudHostedCmd = &cobra.Command{
	Use:   "deploy-cloud-hosted",
	Short: "Deploy into a managed cloud Kubernetes service with full supporting resources",
	RunE:  func(cmd *cobra.Command, args []string) error { return runDeploy("cloud-hosted") },
}

func init() {
	addDeployFlags(deployLocalCmd, false)
	addDeployFlags(deployCloudLocalCmd, true)
	addDeployFlags(deployCloudHostedCmd, false)
	rootCmd.AddCommand(deployLocalCmd, deployCloudLocalCmd, deployCloudHostedCmd)
}
