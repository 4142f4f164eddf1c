// Package pipeline implements Mode Pipelines and the Lifecycle Dispatcher
// (§4.9): the three mode-specific stage sequences, the per-deployment state
// machine, and the deploy/redeploy/scale/decommission actions that drive
// it.
//
// Grounded on agents/manager/internal/beam/workflow.go's shape (named
// stage constants; stages run once, with no retries and no per-stage options
// value, each call carrying its own timeout) but run as plain
// goroutines with an outbound chan events.Progress rather than Temporal
// workflow/activity execution — the teacher's Temporal runtime dependency
// is the one intentionally not carried forward (see DESIGN.md).
package pipeline

import (
	"strings"

	"deployforge/internal/config"
	"deployforge/internal/credentials"
	"deployforge/internal/orcherrors"
)

// Mode is one of the three deployment targets (§1, §3).
type Mode string

const (
	ModeLocal       Mode = "local"
	ModeCloudLocal  Mode = "cloud-local"
	ModeCloudHosted Mode = "cloud-hosted"
)

// Action is one of the four lifecycle actions the Chat API accepts (§4.9).
type Action string

const (
	ActionDeploy       Action = "deploy"
	ActionRedeploy     Action = "redeploy"
	ActionScale        Action = "scale"
	ActionDecommission Action = "decommission"
)

// Request is the extended chat-completion request body of §4.10.
type Request struct {
	Action Action `json:"action"`
	Mode   Mode   `json:"deployment_mode"`

	RepoURL         string `json:"github_repo_url"`
	TargetNamespace string `json:"target_namespace"`
	InstanceName    string `json:"instance_name"`
	InstanceID      string `json:"instance_id"`
	EC2KeyName      string `json:"ec2_key_name"`

	AWSCredentials *credentials.RequestCredentials `json:"aws_credentials"`

	BaseHostedZoneID  string `json:"base_hosted_zone_id"`
	AppSubdomainLabel string `json:"app_subdomain_label"`

	EnvVars  map[string]string `json:"application_environment_variables"`
	Replicas int               `json:"replicas"`
}

// Validate applies the §4.10 validation rules, returning a ValidationError
// or ConfigurationError on the first violation found.
func (r *Request) Validate(cfg config.Config) error {
	if r.Action == "" {
		r.Action = ActionDeploy
	}
	switch r.Action {
	case ActionDeploy, ActionRedeploy, ActionScale, ActionDecommission:
	default:
		return orcherrors.Validation("action must be one of deploy, redeploy, scale, decommission")
	}

	if r.Action == ActionDeploy {
		switch r.Mode {
		case ModeLocal, ModeCloudLocal, ModeCloudHosted:
		default:
			return orcherrors.Validation("deployment_mode must be one of local, cloud-local, cloud-hosted")
		}

		cloud := r.Mode == ModeCloudLocal || r.Mode == ModeCloudHosted
		if cloud && !cfg.HasDefaultCredentials() && (r.AWSCredentials == nil || strings.TrimSpace(r.AWSCredentials.AccessKeyID) == "") {
			return orcherrors.Validation("aws_credentials required for cloud deploys when no server-default credentials are configured")
		}

		if r.Mode == ModeCloudLocal && strings.TrimSpace(r.EC2KeyName) == "" {
			return orcherrors.Validation("ec2_key_name required for cloud-local deploy")
		}

		if strings.TrimSpace(r.RepoURL) == "" {
			return orcherrors.Validation("github_repo_url is required")
		}

		if (r.BaseHostedZoneID == "") != (r.AppSubdomainLabel == "") {
			return orcherrors.Validation("base_hosted_zone_id and app_subdomain_label are mutually required")
		}
		if r.BaseHostedZoneID != "" && strings.TrimSpace(cfg.DefaultDomainName) == "" {
			return orcherrors.Configuration("DEFAULT_DOMAIN_NAME_FOR_APPS is not configured but a custom subdomain was requested")
		}
	}

	if r.Action == ActionRedeploy || r.Action == ActionScale || r.Action == ActionDecommission {
		if strings.TrimSpace(r.InstanceID) == "" {
			return orcherrors.Validation("instance_id is required for redeploy, scale, and decommission")
		}
	}

	return nil
}

// DeploymentID returns the stable identifier this request operates
// against: the caller-supplied instance name/id for lifecycle actions, or
// a generated one for fresh deploys (the caller fills that in before
// calling Validate if InstanceName/InstanceID are both empty).
func (r *Request) DeploymentID() string {
	if r.InstanceID != "" {
		return r.InstanceID
	}
	return r.InstanceName
}
