// Package manifest implements the Manifest Applier (§4.8): applying the
// fixed manifest set (namespace, deployment, service, optional ingress,
// optional secret) rendered by the Template Renderer, waiting for rollout,
// and handling the scale/redeploy in-place patches.
//
// Grounded on agents/manager/internal/beam/kube.go's typed-clientset usage
// and the Get/patch polling shape giantswarm-mcp-kubernetes's k8s tool
// layer uses to report workload health. Server-side apply (Patch with
// types.ApplyPatchType) is used instead of a full Create/Update dance, the
// idempotent-reconcile idiom client-go exposes for exactly this situation
// (re-applying the same rendered manifest across redeploys/resumptions).
package manifest

import (
	"context"
	"fmt"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/kubernetes"
	"sigs.k8s.io/yaml"

	"deployforge/internal/events"
	"deployforge/internal/orcherrors"
)

const fieldManager = "deployforge"

// Set is the fixed manifest bundle §4.8 names, each holding the rendered
// YAML bytes (or empty, for the optional ones).
type Set struct {
	Namespace  []byte
	Deployment []byte
	Service    []byte
	Ingress    []byte // optional
	Secret     []byte // optional
}

// Applier applies a Set against a cluster's typed clientset via
// server-side apply.
type Applier struct {
	Clientset kubernetes.Interface
}

// New returns an Applier against clientset.
func New(clientset kubernetes.Interface) *Applier {
	return &Applier{Clientset: clientset}
}

// Apply applies every non-empty manifest in set, in namespace-first order
// so dependent objects never race their namespace's creation.
func (a *Applier) Apply(ctx context.Context, namespace string, set Set, sink events.Sink) error {
	events.Start(sink, "apply-manifests", "applying manifests to "+namespace)

	steps := []struct {
		name string
		fn   func() error
	}{
		{"namespace", func() error { return a.applyNamespace(ctx, set.Namespace) }},
		{"deployment", func() error { return a.applyDeployment(ctx, namespace, set.Deployment) }},
		{"service", func() error { return a.applyService(ctx, namespace, set.Service) }},
		{"ingress", func() error {
			if len(set.Ingress) == 0 {
				return nil
			}
			return a.applyIngress(ctx, namespace, set.Ingress)
		}},
		{"secret", func() error {
			if len(set.Secret) == 0 {
				return nil
			}
			return a.applySecret(ctx, namespace, set.Secret)
		}},
	}

	for _, step := range steps {
		if err := step.fn(); err != nil {
			wrapped := fmt.Errorf("apply %s: %w", step.name, err)
			events.End(sink, "apply-manifests", wrapped)
			return wrapped
		}
		events.Log(sink, "apply-manifests", step.name+" applied")
	}

	events.End(sink, "apply-manifests", nil)
	return nil
}

func toJSON(yamlBytes []byte) ([]byte, error) {
	return yaml.YAMLToJSON(yamlBytes)
}

func (a *Applier) applyNamespace(ctx context.Context, manifestYAML []byte) error {
	var ns corev1.Namespace
	if err := yaml.Unmarshal(manifestYAML, &ns); err != nil {
		return err
	}
	data, err := toJSON(manifestYAML)
	if err != nil {
		return err
	}
	_, err = a.Clientset.CoreV1().Namespaces().Patch(ctx, ns.Name, types.ApplyPatchType, data, applyOptions())
	return err
}

func (a *Applier) applyDeployment(ctx context.Context, namespace string, manifestYAML []byte) error {
	var obj metav1.PartialObjectMetadata
	if err := yaml.Unmarshal(manifestYAML, &obj); err != nil {
		return err
	}
	data, err := toJSON(manifestYAML)
	if err != nil {
		return err
	}
	_, err = a.Clientset.AppsV1().Deployments(namespace).Patch(ctx, obj.Name, types.ApplyPatchType, data, applyOptions())
	return err
}

func (a *Applier) applyService(ctx context.Context, namespace string, manifestYAML []byte) error {
	var obj metav1.PartialObjectMetadata
	if err := yaml.Unmarshal(manifestYAML, &obj); err != nil {
		return err
	}
	data, err := toJSON(manifestYAML)
	if err != nil {
		return err
	}
	_, err = a.Clientset.CoreV1().Services(namespace).Patch(ctx, obj.Name, types.ApplyPatchType, data, applyOptions())
	return err
}

func (a *Applier) applyIngress(ctx context.Context, namespace string, manifestYAML []byte) error {
	var obj metav1.PartialObjectMetadata
	if err := yaml.Unmarshal(manifestYAML, &obj); err != nil {
		return err
	}
	data, err := toJSON(manifestYAML)
	if err != nil {
		return err
	}
	_, err = a.Clientset.NetworkingV1().Ingresses(namespace).Patch(ctx, obj.Name, types.ApplyPatchType, data, applyOptions())
	return err
}

func (a *Applier) applySecret(ctx context.Context, namespace string, manifestYAML []byte) error {
	var obj metav1.PartialObjectMetadata
	if err := yaml.Unmarshal(manifestYAML, &obj); err != nil {
		return err
	}
	data, err := toJSON(manifestYAML)
	if err != nil {
		return err
	}
	_, err = a.Clientset.CoreV1().Secrets(namespace).Patch(ctx, obj.Name, types.ApplyPatchType, data, applyOptions())
	return err
}

func applyOptions() metav1.PatchOptions {
	force := true
	return metav1.PatchOptions{FieldManager: fieldManager, Force: &force}
}

// WaitForRollout polls the named Deployment until
// Status.UpdatedReplicas == Status.Replicas && Status.AvailableReplicas ==
// Status.Replicas, the same condition shape giantswarm-mcp-kubernetes's
// k8s tool layer checks before reporting workload health. A nonzero
// timeout elapsing without convergence is a RolloutTimeout carrying the
// last observed status (§4.8: "nonzero timeout → failure with the last
// observed rollout status").
func (a *Applier) WaitForRollout(ctx context.Context, namespace, name string, timeout time.Duration, sink events.Sink) error {
	events.Start(sink, "wait-rollout", "waiting for rollout of "+name)

	deadline := time.Now().Add(timeout)
	var lastStatus string
	for {
		dep, err := a.Clientset.AppsV1().Deployments(namespace).Get(ctx, name, metav1.GetOptions{})
		if err == nil {
			s := dep.Status
			lastStatus = fmt.Sprintf("updated=%d/%d available=%d/%d", s.UpdatedReplicas, s.Replicas, s.AvailableReplicas, s.Replicas)
			if s.Replicas > 0 && s.UpdatedReplicas == s.Replicas && s.AvailableReplicas == s.Replicas {
				events.End(sink, "wait-rollout", nil)
				return nil
			}
		}
		if time.Now().After(deadline) {
			wrapped := orcherrors.RolloutTimeout(lastStatus)
			events.End(sink, "wait-rollout", wrapped)
			return wrapped
		}
		interval := 3 * time.Second
		if remaining := time.Until(deadline); remaining < interval {
			interval = remaining
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}

// Scale patches only the deployment's replica count (§4.8: "Scaling is
// expressed as a direct patch of the deployment's replica count, not a
// re-render").
func (a *Applier) Scale(ctx context.Context, namespace, name string, replicas int32, sink events.Sink) error {
	events.Start(sink, "scale", fmt.Sprintf("scaling %s to %d replicas", name, replicas))
	patch := []byte(fmt.Sprintf(`{"spec":{"replicas":%d}}`, replicas))
	_, err := a.Clientset.AppsV1().Deployments(namespace).Patch(ctx, name, types.MergePatchType, patch, metav1.PatchOptions{FieldManager: fieldManager})
	events.End(sink, "scale", err)
	return err
}

// UpdateImage patches only the deployment's container image field
// (§4.8: "Redeploy ... the manifest's image field is updated in place"),
// by convention the container is named identically to the deployment.
func (a *Applier) UpdateImage(ctx context.Context, namespace, name, containerName, image string, sink events.Sink) error {
	events.Start(sink, "redeploy", "updating image to "+image)
	patch := fmt.Sprintf(`{"spec":{"template":{"spec":{"containers":[{"name":%q,"image":%q}]}}}}`, containerName, image)
	_, err := a.Clientset.AppsV1().Deployments(namespace).Patch(ctx, name, types.StrategicMergePatchType, []byte(patch), metav1.PatchOptions{FieldManager: fieldManager})
	events.End(sink, "redeploy", err)
	return err
}
