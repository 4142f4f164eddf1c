package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"deployforge/internal/build"
	"deployforge/internal/cluster"
	"deployforge/internal/credentials"
	"deployforge/internal/events"
	"deployforge/internal/manifest"
	"deployforge/internal/orcherrors"
)

// Redeploy rebuilds and re-applies an existing succeeded/failed deployment
// (§4.9 redeploy): replaces the source checkout with a fresh clone, rebuilds the image, and re-applies
// manifests, without re-running the IaC apply — this repo's IaC project
// variables are derived from the deployment's mode and request, never from
// the Source Snapshot, so a fresh commit never changes infrastructure and
// Redeploy reuses the Output Bag recorded in meta.json unchanged.
func (p *Pipeline) Redeploy(ctx context.Context, id string, req *Request, sink events.Sink) (Outcome, error) {
	if !p.reg.begin(id, StateBuilding) {
		return Outcome{}, orcherrors.Validation(fmt.Sprintf("deployment %q already has a non-terminal state", id))
	}
	defer p.reg.remove(id)

	release := p.Store.Lock(id)
	defer release()

	paths, err := p.Store.Locate(id)
	if err != nil {
		return Outcome{}, err
	}
	meta, err := p.Store.ReadMeta(id)
	if err != nil {
		return Outcome{}, err
	}
	if State(meta.Status) != StateSucceeded && State(meta.Status) != StateFailed {
		p.reg.remove(id)
		return Outcome{}, orcherrors.Validation("redeploy requires an existing succeeded or failed deployment")
	}

	mode := Mode(meta.Mode)
	scope, err := credentials.Acquire(req.AWSCredentials, p.Cfg, mode != ModeLocal)
	if err != nil {
		return p.fail(id, sink, err)
	}
	sink = events.RedactingSink{Inner: sink, Redactor: scope}

	p.transition(id, &meta, StateCloning, sink)
	if err := os.RemoveAll(paths.Source); err != nil {
		return p.fail(id, sink, err)
	}
	snap, err := p.Fetcher.Fetch(ctx, meta.RepoURL, paths.Source, sink)
	if err != nil {
		return p.fail(id, sink, err)
	}
	if !snap.HasRecipe {
		return p.fail(id, sink, orcherrors.Source("no container build recipe found at repository root", nil))
	}
	meta.SourceCommit = snap.Commit

	redeployReq := &Request{
		Mode: mode, TargetNamespace: meta.Namespace, Replicas: meta.Replicas,
		EnvVars: meta.EnvVars, BaseHostedZoneID: req.BaseHostedZoneID, AppSubdomainLabel: req.AppSubdomainLabel,
	}

	p.transition(id, &meta, StateBuilding, sink)
	ref := build.Reference{Repository: id, Tag: build.NewTag(id, snap.Commit)}

	var handle cluster.Handle
	var cloudLocal cluster.CloudLocalHandle

	switch mode {
	case ModeLocal:
		if err := p.Builder.BuildLocal(ctx, paths.Source, ref, sink); err != nil {
			return p.fail(id, sink, err)
		}
		clientset, restCfg, err := cluster.ClientsetForContext("kind-" + localClusterName)
		if err != nil {
			return p.fail(id, sink, err)
		}
		handle = cluster.Handle{Clientset: clientset, RestConfig: restCfg, ContextName: "kind-" + localClusterName}
		if err := p.Bootstrap.LoadImage(ctx, localClusterName, ref, sink); err != nil {
			return p.fail(id, sink, err)
		}

	case ModeCloudLocal:
		host := meta.Outputs["public_ip"]
		if host == "" {
			return p.fail(id, sink, orcherrors.Configuration("workspace outputs missing public_ip for cloud-local redeploy"))
		}
		cloudLocal, err = cluster.AwaitCloudLocal(ctx, host, "ec2-user", req.EC2KeyName, p.Cfg.KeyBaseDir, "/tmp/deployforge-bootstrap-complete", sink)
		if err != nil {
			return p.fail(id, sink, err)
		}
		loadCmd := fmt.Sprintf("kind load docker-image %s --name %s", ref.String(), localClusterName)
		if err := p.Builder.BuildRemote(ctx, host, "ec2-user", req.EC2KeyName, paths.Source, "/home/ec2-user/deployforge-source", ref, loadCmd, sink); err != nil {
			return p.fail(id, sink, err)
		}

	case ModeCloudHosted:
		if err := p.Builder.BuildLocal(ctx, paths.Source, ref, sink); err != nil {
			return p.fail(id, sink, err)
		}
		ref.RegistryHost = registryHostFromECRURL(meta.Outputs["ecr_repository_url"])
		p.transition(id, &meta, StateImagePublishing, sink)
		if err := p.Builder.PushToRegistry(ctx, ref, scope, sink); err != nil {
			return p.fail(id, sink, err)
		}
		handle, err = cluster.FromHostedOutputs(ctx, meta.Outputs["eks_cluster_endpoint"], meta.Outputs["eks_cluster_ca_data"], meta.Outputs["eks_cluster_name"], scope)
		if err != nil {
			return p.fail(id, sink, err)
		}

	default:
		return p.fail(id, sink, orcherrors.Validation("unknown deployment mode on stored workspace"))
	}

	ns := namespaceOrDefault(meta.Namespace)
	appName := k8sSafeName(id)

	p.transition(id, &meta, StateApplyingManifests, sink)
	if err := p.renderManifests(id, paths, redeployReq, snap, ref.String()); err != nil {
		return p.fail(id, sink, err)
	}
	if mode == ModeCloudLocal {
		if err := cloudLocal.Apply("apply-manifests", filepath.Join(paths.Manifests, "deployment.yaml"), sink); err != nil {
			return p.fail(id, sink, err)
		}
	} else {
		applier := manifest.New(handle.Clientset)
		if err := applier.UpdateImage(ctx, ns, appName, appName, ref.String(), sink); err != nil {
			return p.fail(id, sink, err)
		}
	}

	p.transition(id, &meta, StateWaitingRollout, sink)
	if mode == ModeCloudLocal {
		rolloutCmd := fmt.Sprintf("kubectl rollout status deployment/%s -n %s --timeout=%s", appName, ns, p.Cfg.RolloutWaitTimeout)
		code, err := cloudLocal.Session.Run("wait-rollout", rolloutCmd, sink)
		if err != nil || code != 0 {
			return p.fail(id, sink, orcherrors.RolloutTimeout("remote rollout status check failed"))
		}
		defer cloudLocal.Close()
	} else {
		applier := manifest.New(handle.Clientset)
		if err := applier.WaitForRollout(ctx, ns, appName, p.Cfg.RolloutWaitTimeout, sink); err != nil {
			return p.fail(id, sink, err)
		}
	}

	meta.ImageRef = ref.String()
	p.transition(id, &meta, StateSucceeded, sink)

	appURL := meta.Outputs["app_url"]
	return Outcome{DeploymentID: id, Status: StateSucceeded, URL: appURL, Outputs: meta.Outputs}, nil
}
