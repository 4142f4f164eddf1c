package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"deployforge/internal/build"
	"deployforge/internal/cluster"
	"deployforge/internal/config"
	"deployforge/internal/credentials"
	"deployforge/internal/events"
	"deployforge/internal/iac"
	"deployforge/internal/manifest"
	"deployforge/internal/orcherrors"
	"deployforge/internal/source"
	"deployforge/internal/template"
	"deployforge/internal/workspace"
)

// Pipeline wires every domain component into the three mode-specific
// sequences and the lifecycle dispatcher (§4.9). One Pipeline serves the
// whole process; each invocation is an independent goroutine reading its
// own Request, per Design Notes §9.
type Pipeline struct {
	Cfg       config.Config
	Store     *workspace.Store
	Fetcher   *source.Fetcher
	Renderer  *template.Renderer
	Builder   *build.Builder
	IaC       *iac.Driver
	Bootstrap *cluster.Bootstrapper

	reg *registry
}

// New returns a Pipeline ready to serve deploy/redeploy/scale/decommission.
func New(cfg config.Config, store *workspace.Store, fetcher *source.Fetcher, renderer *template.Renderer, builder *build.Builder, iacDriver *iac.Driver, bootstrap *cluster.Bootstrapper) *Pipeline {
	return &Pipeline{
		Cfg: cfg, Store: store, Fetcher: fetcher, Renderer: renderer,
		Builder: builder, IaC: iacDriver, Bootstrap: bootstrap, reg: newRegistry(),
	}
}

// Outcome is what a pipeline invocation returns to its caller (the Chat
// API's terminal delta payload, §4.10).
type Outcome struct {
	DeploymentID string
	Status       State
	URL          string
	Outputs      map[string]string
}

const (
	localClusterName   = "deployforge-local"
	ingressServiceName = "ingress-nginx-controller"
)

// Deploy runs a fresh deployment from `init` through `succeeded`/`failed`
// (§4.9 deploy). id must already be resolved (request-supplied or
// generated) and non-empty.
func (p *Pipeline) Deploy(ctx context.Context, id string, req *Request, sink events.Sink) (Outcome, error) {
	if !p.reg.begin(id, StateInit) {
		return Outcome{}, orcherrors.Validation(fmt.Sprintf("deployment %q already has a non-terminal state", id))
	}
	defer p.reg.remove(id)

	scope, err := credentials.Acquire(req.AWSCredentials, p.Cfg, req.Mode != ModeLocal)
	if err != nil {
		return p.fail(id, sink, err)
	}
	sink = events.RedactingSink{Inner: sink, Redactor: scope}

	release := p.Store.Lock(id)
	defer release()

	paths, err := p.Store.Allocate(id, string(req.Mode), false)
	if err != nil {
		return p.fail(id, sink, err)
	}

	meta := workspace.Meta{
		ID: id, Mode: string(req.Mode), Status: string(StateInit),
		CreatedAt: timeNow(), UpdatedAt: timeNow(),
		Namespace: req.TargetNamespace, RepoURL: req.RepoURL,
		Replicas: replicasOrDefault(req.Replicas), EnvVars: req.EnvVars,
		EC2KeyName: req.EC2KeyName,
	}
	_ = p.Store.WriteMeta(id, meta)

	p.transition(id, &meta, StateCloning, sink)
	snap, err := p.Fetcher.Fetch(ctx, req.RepoURL, paths.Source, sink)
	if err != nil {
		return p.fail(id, sink, err)
	}
	if !snap.HasRecipe {
		err := orcherrors.Source("no container build recipe found at repository root", nil)
		return p.fail(id, sink, err)
	}
	meta.SourceCommit = snap.Commit

	p.transition(id, &meta, StateRendering, sink)
	projectVars, err := p.renderIaCProject(id, paths, req)
	if err != nil {
		return p.fail(id, sink, err)
	}

	p.transition(id, &meta, StateIaCApplying, sink)
	outputs := map[string]string{}
	if req.Mode != ModeLocal {
		outputs, err = p.applyIaC(ctx, paths, projectVars, sink)
		if err != nil {
			return p.fail(id, sink, err)
		}
		_ = workspace.MarkStateExists(paths)
	}
	meta.Outputs = outputs

	p.transition(id, &meta, StateBuilding, sink)
	ref := build.Reference{Repository: id, Tag: build.NewTag(id, snap.Commit)}
	var handle cluster.Handle
	var cloudLocal cluster.CloudLocalHandle
	var appURL string

	switch req.Mode {
	case ModeLocal:
		if err := p.Builder.BuildLocal(ctx, paths.Source, ref, sink); err != nil {
			return p.fail(id, sink, err)
		}

		p.transition(id, &meta, StateClusterBootstrapping, sink)
		configPath := filepath.Join(paths.TF, "kind-cluster.yaml")
		if _, err := p.Renderer.Render("kind-cluster.yaml.tmpl", map[string]any{"ClusterName": localClusterName, "ExtraPorts": []int{30080}}, configPath); err != nil {
			return p.fail(id, sink, err)
		}
		handle, err = p.Bootstrap.EnsureLocal(ctx, localClusterName, configPath, "", sink)
		if err != nil {
			return p.fail(id, sink, err)
		}
		if err := p.Bootstrap.LoadImage(ctx, localClusterName, ref, sink); err != nil {
			return p.fail(id, sink, err)
		}
		appURL = "http://localhost:30080"

	case ModeCloudLocal:
		host := outputs["public_ip"]
		if host == "" {
			return p.fail(id, sink, orcherrors.Configuration("IaC output bag missing public_ip for cloud-local mode"))
		}
		cloudLocal, err = cluster.AwaitCloudLocal(ctx, host, "ec2-user", req.EC2KeyName, p.Cfg.KeyBaseDir, "/tmp/deployforge-bootstrap-complete", sink)
		if err != nil {
			return p.fail(id, sink, err)
		}
		loadCmd := fmt.Sprintf("kind load docker-image %s --name %s", ref.String(), localClusterName)
		if err := p.Builder.BuildRemote(ctx, host, "ec2-user", req.EC2KeyName, paths.Source, "/home/ec2-user/deployforge-source", ref, loadCmd, sink); err != nil {
			return p.fail(id, sink, err)
		}
		appURL = fmt.Sprintf("http://%s:30080", host)

		p.transition(id, &meta, StateClusterBootstrapping, sink)

	case ModeCloudHosted:
		if err := p.Builder.BuildLocal(ctx, paths.Source, ref, sink); err != nil {
			return p.fail(id, sink, err)
		}
		ref.RegistryHost = registryHostFromECRURL(outputs["ecr_repository_url"])

		p.transition(id, &meta, StateImagePublishing, sink)
		if err := p.Builder.PushToRegistry(ctx, ref, scope, sink); err != nil {
			return p.fail(id, sink, err)
		}

		p.transition(id, &meta, StateClusterBootstrapping, sink)
		handle, err = cluster.FromHostedOutputs(ctx, outputs["eks_cluster_endpoint"], outputs["eks_cluster_ca_data"], outputs["eks_cluster_name"], scope)
		if err != nil {
			return p.fail(id, sink, err)
		}
		valuesPath := filepath.Join(paths.TF, "ingress-values.yaml")
		if _, err := p.Renderer.Render("ingress-nginx-values.yaml.tmpl", map[string]any{"LoadBalancerClass": "service.k8s.aws/nlb"}, valuesPath); err != nil {
			return p.fail(id, sink, err)
		}
		if err := p.Bootstrap.InstallIngress(ctx, handle, "ingress-nginx", "ingress-nginx/ingress-nginx", valuesPath, sink); err != nil {
			return p.fail(id, sink, err)
		}
		lbHost, err := p.Bootstrap.AwaitLoadBalancerHostname(ctx, handle, ingressServiceName, "ingress-nginx", p.Cfg.RolloutWaitTimeout, sink)
		if err != nil {
			return p.fail(id, sink, err)
		}

		if req.BaseHostedZoneID != "" {
			subdomain := fmt.Sprintf("%s.%s", req.AppSubdomainLabel, p.Cfg.DefaultDomainName)
			projectVars["LoadBalancerHostname"] = lbHost
			projectVars["HostedZoneID"] = req.BaseHostedZoneID
			projectVars["Subdomain"] = subdomain
			if _, err := p.Renderer.Render("pulumi-project.yaml.tmpl", toAnyMap(projectVars), filepath.Join(paths.TF, "Pulumi.yaml")); err != nil {
				return p.fail(id, sink, err)
			}
			dnsOutputs, err := p.applyIaC(ctx, paths, projectVars, sink)
			if err != nil {
				return p.fail(id, sink, err)
			}
			for k, v := range dnsOutputs {
				meta.Outputs[k] = v
			}
			appURL = meta.Outputs["app_url_https"]
		} else {
			appURL = "http://" + lbHost
		}

	default:
		return p.fail(id, sink, orcherrors.Validation("unknown deployment_mode"))
	}

	p.transition(id, &meta, StateApplyingManifests, sink)
	if err := p.renderManifests(id, paths, req, snap, ref.String()); err != nil {
		return p.fail(id, sink, err)
	}
	set, err := readManifestSet(paths)
	if err != nil {
		return p.fail(id, sink, err)
	}
	ns := namespaceOrDefault(req.TargetNamespace)
	appName := k8sSafeName(id)
	if req.Mode == ModeCloudLocal {
		if err := cloudLocal.Apply("apply-manifests", filepath.Join(paths.Manifests, "namespace.yaml"), sink); err != nil {
			return p.fail(id, sink, err)
		}
		if err := cloudLocal.Apply("apply-manifests", filepath.Join(paths.Manifests, "deployment.yaml"), sink); err != nil {
			return p.fail(id, sink, err)
		}
		if err := cloudLocal.Apply("apply-manifests", filepath.Join(paths.Manifests, "service.yaml"), sink); err != nil {
			return p.fail(id, sink, err)
		}
	} else {
		applier := manifest.New(handle.Clientset)
		if err := applier.Apply(ctx, ns, set, sink); err != nil {
			return p.fail(id, sink, err)
		}
	}

	p.transition(id, &meta, StateWaitingRollout, sink)
	if req.Mode == ModeCloudLocal {
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
	if meta.Outputs == nil {
		meta.Outputs = map[string]string{}
	}
	meta.Outputs["app_url"] = appURL
	p.transition(id, &meta, StateSucceeded, sink)

	return Outcome{DeploymentID: id, Status: StateSucceeded, URL: appURL, Outputs: meta.Outputs}, nil
}

func (p *Pipeline) fail(id string, sink events.Sink, err error) (Outcome, error) {
	meta, readErr := p.Store.ReadMeta(id)
	if readErr == nil {
		meta.Status = string(StateFailed)
		meta.LastError = err.Error()
		_ = p.Store.WriteMeta(id, meta)
	}
	p.reg.set(id, StateFailed)
	events.End(sink, "pipeline", err)
	return Outcome{DeploymentID: id, Status: StateFailed}, err
}

func (p *Pipeline) transition(id string, meta *workspace.Meta, next State, sink events.Sink) {
	if cur := State(meta.Status); !cur.CanTransitionTo(next) {
		events.Log(sink, "pipeline", fmt.Sprintf("unexpected state transition %s -> %s", cur, next))
	}
	p.reg.set(id, next)
	meta.Status = string(next)
	_ = p.Store.WriteMeta(id, *meta)
	events.Log(sink, "pipeline", "entering state "+string(next))
}

// Decommission tears down a deployment's cloud resources (if any) and
// removes its workspace (§4.9 decommission, P4, P6).
func (p *Pipeline) Decommission(ctx context.Context, id string, sink events.Sink) (Outcome, error) {
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

	p.reg.set(id, StateDecommissioning)
	meta.Status = string(StateDecommissioning)
	_ = p.Store.WriteMeta(id, meta)
	events.Start(sink, "decommission", "decommissioning "+id)

	if iac.HasState(paths.TF) {
		if err := p.IaC.Destroy(ctx, paths.TF, sink); err != nil {
			meta.Status = string(StateFailed)
			meta.LastError = err.Error()
			_ = p.Store.WriteMeta(id, meta)
			p.reg.set(id, StateFailed)
			wrapped := orcherrors.Decommission("IaC destroy did not fully succeed; workspace retained", err)
			events.End(sink, "decommission", wrapped)
			return Outcome{DeploymentID: id, Status: StateFailed}, wrapped
		}
		_ = workspace.ClearStateExists(paths)
	}

	if meta.Mode == string(ModeLocal) {
		_ = p.Bootstrap.DestroyLocal(ctx, localClusterName, sink)
	}

	if err := p.Store.Release(id, true); err != nil {
		return Outcome{}, err
	}
	p.reg.set(id, StateDecommissioned)
	p.reg.remove(id)
	events.End(sink, "decommission", nil)
	return Outcome{DeploymentID: id, Status: StateDecommissioned}, nil
}

// Scale patches replica count only (§4.9 scale: "requires succeeded;
// patches replica count only; no image build").
func (p *Pipeline) Scale(ctx context.Context, id string, replicas int32, awsCreds *credentials.RequestCredentials, sink events.Sink) (Outcome, error) {
	release := p.Store.Lock(id)
	defer release()

	meta, err := p.Store.ReadMeta(id)
	if err != nil {
		return Outcome{}, err
	}
	if meta.Status != string(StateSucceeded) {
		return Outcome{}, orcherrors.Validation("scale requires a succeeded deployment")
	}

	if Mode(meta.Mode) == ModeCloudHosted {
		scope, err := credentials.Acquire(awsCreds, p.Cfg, true)
		if err != nil {
			return Outcome{}, err
		}
		handle, err := cluster.FromHostedOutputs(ctx, meta.Outputs["eks_cluster_endpoint"], meta.Outputs["eks_cluster_ca_data"], meta.Outputs["eks_cluster_name"], scope)
		if err != nil {
			return Outcome{}, err
		}
		applier := manifest.New(handle.Clientset)
		if err := applier.Scale(ctx, namespaceOrDefault(meta.Namespace), k8sSafeName(id), replicas, sink); err != nil {
			return Outcome{}, err
		}
	} else if Mode(meta.Mode) == ModeLocal {
		clientset, _, err := cluster.ClientsetForContext("kind-" + localClusterName)
		if err != nil {
			return Outcome{}, err
		}
		applier := manifest.New(clientset)
		if err := applier.Scale(ctx, namespaceOrDefault(meta.Namespace), k8sSafeName(id), replicas, sink); err != nil {
			return Outcome{}, err
		}
	} else if Mode(meta.Mode) == ModeCloudLocal {
		host := meta.Outputs["public_ip"]
		if host == "" {
			return Outcome{}, orcherrors.Configuration("deployment has no recorded public_ip; cannot reach its cloud-local VM")
		}
		sess, err := build.Dial(ctx, host, "ec2-user", meta.EC2KeyName, p.Cfg.KeyBaseDir)
		if err != nil {
			return Outcome{}, err
		}
		defer sess.Close()
		cmd := fmt.Sprintf("kubectl scale deployment/%s -n %s --replicas=%d", k8sSafeName(id), namespaceOrDefault(meta.Namespace), replicas)
		code, err := sess.Run("scale", cmd, sink)
		if err != nil {
			return Outcome{}, err
		}
		if code != 0 {
			return Outcome{}, orcherrors.SubprocessExit("kubectl scale", code, "")
		}
	} else {
		return Outcome{}, orcherrors.Validation(fmt.Sprintf("scale not supported for deployment_mode %q", meta.Mode))
	}

	meta.Replicas = int(replicas)
	_ = p.Store.WriteMeta(id, meta)
	return Outcome{DeploymentID: id, Status: State(meta.Status)}, nil
}

func replicasOrDefault(n int) int {
	if n <= 0 {
		return 1
	}
	return n
}

func namespaceOrDefault(ns string) string {
	if strings.TrimSpace(ns) == "" {
		return "default"
	}
	return ns
}

func k8sSafeName(s string) string {
	s = strings.ToLower(s)
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			b.WriteRune(r)
		} else {
			b.WriteRune('-')
		}
	}
	return strings.Trim(b.String(), "-")
}

func registryHostFromECRURL(repoURL string) string {
	if idx := strings.Index(repoURL, "/"); idx > 0 {
		return repoURL[:idx]
	}
	return repoURL
}

func toAnyMap(m map[string]string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func timeNow() time.Time { return time.Now().UTC() }
