// Package cluster implements the Cluster Bootstrapper (§4.7): bringing up
// or addressing the Kubernetes cluster each deployment mode targets, and
// producing a Handle subsequent stages (manifest apply, rollout wait) use.
//
// Local mode is grounded on kindling-sh-kindling/cli/core/kubectl.go
// (ClusterExists/DestroyCluster via `kind get clusters`/`kind delete
// cluster`) and cli/core/load.go (BuildAndLoad's build-then-`kind
// load docker-image` sequence). Cloud-hosted kubeconfig synthesis is
// grounded on agents/manager/internal/beam/kube.go's newKubeClient
// (in-cluster config falling back to clientcmd.BuildConfigFromFlags),
// generalized to build the rest.Config directly from IaC outputs instead
// of reading the ambient kubeconfig.
package cluster

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"

	"deployforge/internal/build"
	"deployforge/internal/credentials"
	"deployforge/internal/events"
	"deployforge/internal/orcherrors"
	"deployforge/internal/subprocess"
)

// Handle is how later pipeline stages reach the cluster this bootstrapper
// produced: a typed clientset plus the context string manifest-apply
// commands (and any shelled-out kubectl fallback) should use.
type Handle struct {
	Clientset   *kubernetes.Clientset
	RestConfig  *rest.Config
	ContextName string // kubectl --context value, empty for cloud-hosted (kubeconfig-less REST config)
}

// Bootstrapper drives the three mode-specific bootstrap strategies.
type Bootstrapper struct {
	Runner *subprocess.Runner
}

// New returns a Bootstrapper issuing cluster CLI commands through runner.
func New(runner *subprocess.Runner) *Bootstrapper {
	return &Bootstrapper{Runner: runner}
}

func clusterContext(name string) string { return "kind-" + name }

// EnsureLocal checks for an existing ephemeral cluster by clusterName,
// creates one from the rendered kind config at configPath if absent, then
// applies the overlay network manifest at networkManifestPath (§4.7 local
// mode).
func (b *Bootstrapper) EnsureLocal(ctx context.Context, clusterName, configPath, networkManifestPath string, sink events.Sink) (Handle, error) {
	events.Start(sink, "cluster-bootstrap", "ensuring local cluster "+clusterName)

	exists, err := b.clusterExists(ctx, clusterName)
	if err != nil {
		events.End(sink, "cluster-bootstrap", err)
		return Handle{}, err
	}
	if !exists {
		res, err := b.Runner.Run(ctx, "cluster-bootstrap", "", "kind",
			[]string{"create", "cluster", "--name", clusterName, "--config", configPath}, nil, 5*time.Minute, sink)
		if err != nil {
			events.End(sink, "cluster-bootstrap", err)
			return Handle{}, err
		}
		if res.ExitCode != 0 {
			wrapped := orcherrors.SubprocessExit("kind create cluster", res.ExitCode, strings.Join(res.Tail, "\n"))
			events.End(sink, "cluster-bootstrap", wrapped)
			return Handle{}, wrapped
		}
	}

	if networkManifestPath != "" {
		res, err := b.Runner.Run(ctx, "cluster-bootstrap", "", "kubectl",
			[]string{"--context", clusterContext(clusterName), "apply", "-f", networkManifestPath}, nil, time.Minute, sink)
		if err != nil {
			events.End(sink, "cluster-bootstrap", err)
			return Handle{}, err
		}
		if res.ExitCode != 0 {
			wrapped := orcherrors.SubprocessExit("kubectl apply", res.ExitCode, strings.Join(res.Tail, "\n"))
			events.End(sink, "cluster-bootstrap", wrapped)
			return Handle{}, wrapped
		}
	}

	clientset, restCfg, err := clientsetForContext(clusterContext(clusterName))
	if err != nil {
		events.End(sink, "cluster-bootstrap", err)
		return Handle{}, err
	}

	events.End(sink, "cluster-bootstrap", nil)
	return Handle{Clientset: clientset, RestConfig: restCfg, ContextName: clusterContext(clusterName)}, nil
}

func (b *Bootstrapper) clusterExists(ctx context.Context, name string) (bool, error) {
	out, err := b.Runner.RunCapture(ctx, "", "kind", "get", "clusters")
	if err != nil {
		return false, nil
	}
	for _, line := range strings.Split(out, "\n") {
		if strings.TrimSpace(line) == name {
			return true, nil
		}
	}
	return false, nil
}

// LoadImage loads ref into every node of the named local cluster, the
// final step of local mode's build pipeline (§4.7: "loads the built image
// directly into cluster nodes").
func (b *Bootstrapper) LoadImage(ctx context.Context, clusterName string, ref build.Reference, sink events.Sink) error {
	events.Start(sink, "cluster-bootstrap", "loading "+ref.String()+" into "+clusterName)
	res, err := b.Runner.Run(ctx, "cluster-bootstrap", "", "kind",
		[]string{"load", "docker-image", ref.String(), "--name", clusterName}, nil, 2*time.Minute, sink)
	if err != nil {
		events.End(sink, "cluster-bootstrap", err)
		return err
	}
	if res.ExitCode != 0 {
		wrapped := orcherrors.SubprocessExit("kind load docker-image", res.ExitCode, strings.Join(res.Tail, "\n"))
		events.End(sink, "cluster-bootstrap", wrapped)
		return wrapped
	}
	events.End(sink, "cluster-bootstrap", nil)
	return nil
}

// DestroyLocal tears down the named Kind cluster, used by decommission for
// local-mode deployments.
func (b *Bootstrapper) DestroyLocal(ctx context.Context, clusterName string, sink events.Sink) error {
	exists, _ := b.clusterExists(ctx, clusterName)
	if !exists {
		return nil
	}
	res, err := b.Runner.Run(ctx, "cluster-bootstrap", "", "kind", []string{"delete", "cluster", "--name", clusterName}, nil, 2*time.Minute, sink)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return orcherrors.SubprocessExit("kind delete cluster", res.ExitCode, strings.Join(res.Tail, "\n"))
	}
	return nil
}

// FromHostedOutputs synthesizes a kubeconfig-equivalent rest.Config and
// typed clientset from the IaC Output Bag's eks_cluster_endpoint,
// eks_cluster_ca_data, and eks_cluster_name (cloud-hosted mode),
// generalizing agents/manager/internal/beam/kube.go's newKubeClient away
// from reading the ambient kubeconfig. The bearer token is minted fresh
// from scope via the presigned-STS-GetCallerIdentity scheme EKS's
// authenticator webhook expects (see credentials.Scope.EKSToken) — a raw
// IAM secret key is never a valid bearer token against the API server.
func FromHostedOutputs(ctx context.Context, endpoint, caDataBase64, clusterName string, scope credentials.Scope) (Handle, error) {
	if endpoint == "" || caDataBase64 == "" || clusterName == "" {
		return Handle{}, orcherrors.Configuration("IaC output bag missing eks_cluster_endpoint/eks_cluster_ca_data/eks_cluster_name")
	}
	caData, err := base64.StdEncoding.DecodeString(caDataBase64)
	if err != nil {
		return Handle{}, orcherrors.Configuration(fmt.Sprintf("eks_cluster_ca_data is not valid base64: %v", err))
	}
	token, err := scope.EKSToken(ctx, clusterName)
	if err != nil {
		return Handle{}, fmt.Errorf("mint EKS auth token: %w", err)
	}
	cfg := &rest.Config{
		Host:        endpoint,
		BearerToken: token,
		TLSClientConfig: rest.TLSClientConfig{
			CAData: caData,
		},
	}
	clientset, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return Handle{}, fmt.Errorf("build clientset from IaC outputs: %w", err)
	}
	return Handle{Clientset: clientset, RestConfig: cfg}, nil
}

// ClientsetForContext builds a typed clientset for an arbitrary kubeconfig
// context name (e.g. "kind-deployforge-local"), for callers (like Scale)
// that need to reach a local cluster outside of a fresh EnsureLocal call.
func ClientsetForContext(contextName string) (*kubernetes.Clientset, *rest.Config, error) {
	return clientsetForContext(contextName)
}

func clientsetForContext(contextName string) (*kubernetes.Clientset, *rest.Config, error) {
	cfg, err := restConfigForKindContext(contextName)
	if err != nil {
		return nil, nil, fmt.Errorf("build rest config for %s: %w", contextName, err)
	}
	clientset, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("build clientset for %s: %w", contextName, err)
	}
	return clientset, cfg, nil
}
