package cluster

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"

	"deployforge/internal/credentials"
	"deployforge/internal/events"
	"deployforge/internal/orcherrors"
)

var testScope = credentials.Scope{AccessKeyID: "AKIAEXAMPLE", SecretAccessKey: "secret", Region: "us-east-1"}

func TestClusterContextNaming(t *testing.T) {
	require.Equal(t, "kind-demo", clusterContext("demo"))
}

func TestFromHostedOutputsRequiresEndpointAndCAData(t *testing.T) {
	_, err := FromHostedOutputs(context.Background(), "", "", "", testScope)
	require.Error(t, err)
	require.Equal(t, orcherrors.KindConfiguration, orcherrors.KindOf(err))
}

func TestFromHostedOutputsRejectsInvalidCAData(t *testing.T) {
	_, err := FromHostedOutputs(context.Background(), "https://example.com", "not-base64!!!", "demo", testScope)
	require.Error(t, err)
	require.Equal(t, orcherrors.KindConfiguration, orcherrors.KindOf(err))
}

func TestFromHostedOutputsBuildsClientset(t *testing.T) {
	h, err := FromHostedOutputs(context.Background(), "https://example.com", "aGVsbG8=", "demo", testScope)
	require.NoError(t, err)
	require.NotNil(t, h.Clientset)
	require.Equal(t, "https://example.com", h.RestConfig.Host)
}

func TestAwaitLoadBalancerHostnameSucceedsWhenAlreadyAllocated(t *testing.T) {
	cs := fake.NewSimpleClientset(&corev1.Service{
		ObjectMeta: metav1.ObjectMeta{Name: "ingress-nginx-controller", Namespace: "ingress-nginx"},
		Status: corev1.ServiceStatus{
			LoadBalancer: corev1.LoadBalancerStatus{
				Ingress: []corev1.LoadBalancerIngress{{Hostname: "lb.example.com"}},
			},
		},
	})
	b := New(nil)
	sink := make(events.ChannelSink, 16)
	host, err := b.AwaitLoadBalancerHostname(context.Background(), Handle{Clientset: cs}, "ingress-nginx-controller", "ingress-nginx", 2*time.Second, sink)
	require.NoError(t, err)
	require.Equal(t, "lb.example.com", host)
}

func TestAwaitLoadBalancerHostnameTimesOut(t *testing.T) {
	cs := fake.NewSimpleClientset(&corev1.Service{
		ObjectMeta: metav1.ObjectMeta{Name: "ingress-nginx-controller", Namespace: "ingress-nginx"},
	})
	b := New(nil)
	sink := make(events.ChannelSink, 16)
	_, err := b.AwaitLoadBalancerHostname(context.Background(), Handle{Clientset: cs}, "ingress-nginx-controller", "ingress-nginx", 50*time.Millisecond, sink)
	require.Error(t, err)
	require.Equal(t, orcherrors.KindRolloutTimeout, orcherrors.KindOf(err))
}
