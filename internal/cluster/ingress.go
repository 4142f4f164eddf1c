package cluster

import (
	"context"
	"strings"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"deployforge/internal/events"
	"deployforge/internal/orcherrors"
)

// InstallIngress installs the ingress controller into the cloud-hosted
// cluster via Helm (§4.7: "installs the ingress controller via a package
// manager using values rendered from templates"), invoked as a subprocess
// the same way every other external tool in this repo is — the Subprocess
// Runner, not a vendored Helm SDK, matching the teacher's consistent
// shell-out-to-binary idiom for kind/kubectl rather than pulling in a
// client library per external tool.
func (b *Bootstrapper) InstallIngress(ctx context.Context, h Handle, releaseName, chartRef, valuesPath string, sink events.Sink) error {
	events.Start(sink, "cluster-bootstrap", "installing ingress controller")

	args := []string{"upgrade", "--install", releaseName, chartRef, "--namespace", "ingress-nginx", "--create-namespace"}
	if valuesPath != "" {
		args = append(args, "-f", valuesPath)
	}
	if h.ContextName != "" {
		args = append(args, "--kube-context", h.ContextName)
	}

	res, err := b.Runner.Run(ctx, "cluster-bootstrap", "", "helm", args, nil, 5*time.Minute, sink)
	if err != nil {
		events.End(sink, "cluster-bootstrap", err)
		return err
	}
	if res.ExitCode != 0 {
		wrapped := orcherrors.SubprocessExit("helm upgrade --install", res.ExitCode, strings.Join(res.Tail, "\n"))
		events.End(sink, "cluster-bootstrap", wrapped)
		return wrapped
	}
	events.End(sink, "cluster-bootstrap", nil)
	return nil
}

// AwaitLoadBalancerHostname polls the ingress controller's Service for an
// external hostname/IP, the address §4.7 says is "fed back to a follow-up
// IaC apply that creates DNS and TLS records" (the records need the load
// balancer address, which exists only after the ingress is installed).
func (b *Bootstrapper) AwaitLoadBalancerHostname(ctx context.Context, h Handle, serviceName, namespace string, timeout time.Duration, sink events.Sink) (string, error) {
	events.Start(sink, "cluster-bootstrap", "waiting for load balancer address")

	deadline := time.Now().Add(timeout)
	for {
		svc, err := h.Clientset.CoreV1().Services(namespace).Get(ctx, serviceName, metav1.GetOptions{})
		if err == nil && len(svc.Status.LoadBalancer.Ingress) > 0 {
			ing := svc.Status.LoadBalancer.Ingress[0]
			host := ing.Hostname
			if host == "" {
				host = ing.IP
			}
			if host != "" {
				events.End(sink, "cluster-bootstrap", nil)
				return host, nil
			}
		}
		if time.Now().After(deadline) {
			wrapped := orcherrors.RolloutTimeout("load balancer address not allocated within " + timeout.String())
			events.End(sink, "cluster-bootstrap", wrapped)
			return "", wrapped
		}
		interval := 5 * time.Second
		if remaining := time.Until(deadline); remaining < interval {
			interval = remaining
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(interval):
		}
	}
}
