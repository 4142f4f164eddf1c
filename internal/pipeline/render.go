package pipeline

import (
	"context"
	"os"
	"path/filepath"

	"deployforge/internal/events"
	"deployforge/internal/iac"
	"deployforge/internal/manifest"
	"deployforge/internal/orcherrors"
	"deployforge/internal/source"
	"deployforge/internal/workspace"
)

const defaultPort = 8080

// renderManifests renders the fixed manifest set (§4.8) from the Source
// Snapshot's detected port and the request's replicas/env vars.
func (p *Pipeline) renderManifests(id string, paths workspace.Paths, req *Request, snap source.Snapshot, image string) error {
	ns := namespaceOrDefault(req.TargetNamespace)
	appName := k8sSafeName(id)
	port := defaultPort
	if len(snap.DetectedPorts) > 0 {
		port = snap.DetectedPorts[0]
	}

	if _, err := p.Renderer.Render("namespace.yaml.tmpl", map[string]any{
		"Namespace": ns, "DeploymentID": id,
	}, filepath.Join(paths.Manifests, "namespace.yaml")); err != nil {
		return err
	}

	hasSecret := len(req.EnvVars) > 0
	if _, err := p.Renderer.Render("deployment.yaml.tmpl", map[string]any{
		"Namespace": ns, "AppName": appName, "Image": image,
		"Port": port, "Replicas": replicasOrDefault(req.Replicas),
		"EnvVars": req.EnvVars, "HasSecret": hasSecret,
	}, filepath.Join(paths.Manifests, "deployment.yaml")); err != nil {
		return err
	}

	if _, err := p.Renderer.Render("service.yaml.tmpl", map[string]any{
		"Namespace": ns, "AppName": appName, "Port": port,
		"ServiceType": "NodePort", "NodePort": 30080,
	}, filepath.Join(paths.Manifests, "service.yaml")); err != nil {
		return err
	}

	if hasSecret {
		if _, err := p.Renderer.Render("secret.yaml.tmpl", map[string]any{
			"Namespace": ns, "AppName": appName, "EnvVars": req.EnvVars,
		}, filepath.Join(paths.Manifests, "secret.yaml")); err != nil {
			return err
		}
	}

	if req.Mode == ModeCloudHosted && req.BaseHostedZoneID != "" {
		host := req.AppSubdomainLabel + "." + p.Cfg.DefaultDomainName
		if _, err := p.Renderer.Render("ingress.yaml.tmpl", map[string]any{
			"Namespace": ns, "AppName": appName, "Host": host, "Port": port,
			"TLSSecretName": appName + "-tls",
		}, filepath.Join(paths.Manifests, "ingress.yaml")); err != nil {
			return err
		}
	}

	return nil
}

// cloudLocalDefaultAMI is a placeholder base image for the cloud-local
// single-VM mode; the spec does not name an AMI selection policy, so this
// repo defaults to this fixed image.
const cloudLocalDefaultAMI = "ami-0c55b159cbfafe1f0"

// renderIaCProject renders the Pulumi project YAML for req's mode,
// returning the variable set used so a cloud-hosted second apply can add
// the load-balancer-derived keys and re-render (§4.7, §9 cyclic
// dependency note). Boolean flags are only set (never set-to-"false") so
// that the template's {{if .CreateECR}}-style guards work against a plain
// map[string]string.
func (p *Pipeline) renderIaCProject(id string, paths workspace.Paths, req *Request) (map[string]string, error) {
	vars := map[string]string{
		"ProjectName": k8sSafeName(id),
		"StackName":   id,
		"AWSRegion":   p.Cfg.AWSRegion,
	}
	switch req.Mode {
	case ModeCloudHosted:
		vars["CreateECR"] = "true"
		vars["CreateEKS"] = "true"
		vars["NodeInstanceType"] = "t3.medium"
		vars["NodeCount"] = "2"
	case ModeCloudLocal:
		vars["CreateVM"] = "true"
		vars["InstanceType"] = "t3.medium"
		vars["KeyName"] = req.EC2KeyName
		vars["AMI"] = cloudLocalDefaultAMI
	case ModeLocal:
		// no cloud resources; local mode never calls the IaC Driver at all,
		// but renderIaCProject still runs ahead of that branch so the
		// workspace's tf/ dir is consistently populated.
	}

	if _, err := p.Renderer.Render("pulumi-project.yaml.tmpl", toAnyMap(vars), filepath.Join(paths.TF, "Pulumi.yaml")); err != nil {
		return nil, err
	}
	return vars, nil
}

// applyIaC drives the IaC Driver's init → plan → apply/output sequence for
// one workspace. A fresh deployment (no local state yet) always applies; a
// resumed one (state already present, §4.6) trusts a no-op plan and reads
// outputs back instead of re-provisioning, and treats an unexpected non-noop
// resumed plan as a mismatch the operator must reconcile by hand.
func (p *Pipeline) applyIaC(ctx context.Context, paths workspace.Paths, vars map[string]string, sink events.Sink) (map[string]string, error) {
	if err := p.IaC.Init(ctx, paths.TF, vars, sink); err != nil {
		return nil, err
	}

	resuming := iac.HasState(paths.TF)
	plan, err := p.IaC.Plan(ctx, paths.TF, sink)
	if err != nil {
		return nil, err
	}

	if resuming {
		if plan.IsNoop() {
			outputs, err := p.IaC.Output(ctx, paths.TF)
			if err != nil {
				return nil, err
			}
			return outputs, nil
		}
		return nil, orcherrors.IaCPlanMismatch("resumed deployment expected a no-op plan but " + plan.Summary)
	}

	outputs, err := p.IaC.Apply(ctx, paths.TF, sink)
	if err != nil {
		return nil, err
	}
	return outputs, nil
}

func readManifestSet(paths workspace.Paths) (manifest.Set, error) {
	read := func(name string) ([]byte, error) {
		b, err := os.ReadFile(filepath.Join(paths.Manifests, name))
		if os.IsNotExist(err) {
			return nil, nil
		}
		return b, err
	}
	ns, err := read("namespace.yaml")
	if err != nil {
		return manifest.Set{}, err
	}
	dep, err := read("deployment.yaml")
	if err != nil {
		return manifest.Set{}, err
	}
	svc, err := read("service.yaml")
	if err != nil {
		return manifest.Set{}, err
	}
	ing, err := read("ingress.yaml")
	if err != nil {
		return manifest.Set{}, err
	}
	sec, err := read("secret.yaml")
	if err != nil {
		return manifest.Set{}, err
	}
	return manifest.Set{Namespace: ns, Deployment: dep, Service: svc, Ingress: ing, Secret: sec}, nil
}
