package pipeline

import (
	"testing"

	"deployforge/internal/config"
	"deployforge/internal/credentials"
)

func TestValidateDefaultsActionToDeploy(t *testing.T) {
	r := &Request{Mode: ModeLocal, RepoURL: "https://github.com/acme/app"}
	if err := r.Validate(config.Config{}); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if r.Action != ActionDeploy {
		t.Fatalf("Action = %q, want %q", r.Action, ActionDeploy)
	}
}

func TestValidateRejectsUnknownAction(t *testing.T) {
	r := &Request{Action: "teleport"}
	if err := r.Validate(config.Config{}); err == nil {
		t.Fatal("expected error for unknown action")
	}
}

func TestValidateRejectsUnknownMode(t *testing.T) {
	r := &Request{Mode: "quantum", RepoURL: "https://github.com/acme/app"}
	if err := r.Validate(config.Config{}); err == nil {
		t.Fatal("expected error for unknown deployment_mode")
	}
}

func TestValidateRequiresRepoURL(t *testing.T) {
	r := &Request{Mode: ModeLocal}
	if err := r.Validate(config.Config{}); err == nil {
		t.Fatal("expected error for missing github_repo_url")
	}
}

func TestValidateRequiresCredentialsForCloudWithoutServerDefaults(t *testing.T) {
	r := &Request{Mode: ModeCloudHosted, RepoURL: "https://github.com/acme/app"}
	if err := r.Validate(config.Config{}); err == nil {
		t.Fatal("expected error for missing aws_credentials")
	}
}

func TestValidateAcceptsCloudWithServerDefaultCredentials(t *testing.T) {
	cfg := config.Config{AWSAccessKeyID: "ak", AWSSecretAccessKey: "sk"}
	r := &Request{Mode: ModeCloudHosted, RepoURL: "https://github.com/acme/app"}
	if err := r.Validate(cfg); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}

func TestValidateAcceptsCloudWithRequestCredentials(t *testing.T) {
	r := &Request{
		Mode: ModeCloudHosted, RepoURL: "https://github.com/acme/app",
		AWSCredentials: &credentials.RequestCredentials{AccessKeyID: "ak", SecretAccessKey: "sk"},
	}
	if err := r.Validate(config.Config{}); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}

func TestValidateRequiresEC2KeyNameForCloudLocal(t *testing.T) {
	cfg := config.Config{AWSAccessKeyID: "ak", AWSSecretAccessKey: "sk"}
	r := &Request{Mode: ModeCloudLocal, RepoURL: "https://github.com/acme/app"}
	if err := r.Validate(cfg); err == nil {
		t.Fatal("expected error for missing ec2_key_name")
	}
}

func TestValidateRequiresInstanceIDForLifecycleActions(t *testing.T) {
	for _, action := range []Action{ActionRedeploy, ActionScale, ActionDecommission} {
		r := &Request{Action: action}
		if err := r.Validate(config.Config{}); err == nil {
			t.Fatalf("action %q: expected error for missing instance_id", action)
		}
	}
}

func TestValidateSubdomainFieldsAreMutuallyRequired(t *testing.T) {
	r := &Request{Mode: ModeLocal, RepoURL: "https://github.com/acme/app", BaseHostedZoneID: "Z123"}
	if err := r.Validate(config.Config{}); err == nil {
		t.Fatal("expected error for base_hosted_zone_id without app_subdomain_label")
	}
}

func TestValidateSubdomainRequiresConfiguredDomain(t *testing.T) {
	r := &Request{
		Mode: ModeLocal, RepoURL: "https://github.com/acme/app",
		BaseHostedZoneID: "Z123", AppSubdomainLabel: "demo",
	}
	if err := r.Validate(config.Config{}); err == nil {
		t.Fatal("expected error when DEFAULT_DOMAIN_NAME_FOR_APPS is not configured")
	}
}

func TestDeploymentIDPrefersInstanceID(t *testing.T) {
	r := &Request{InstanceID: "abc", InstanceName: "friendly-name"}
	if got := r.DeploymentID(); got != "abc" {
		t.Fatalf("DeploymentID() = %q, want %q", got, "abc")
	}
}

func TestDeploymentIDFallsBackToInstanceName(t *testing.T) {
	r := &Request{InstanceName: "friendly-name"}
	if got := r.DeploymentID(); got != "friendly-name" {
		t.Fatalf("DeploymentID() = %q, want %q", got, "friendly-name")
	}
}
