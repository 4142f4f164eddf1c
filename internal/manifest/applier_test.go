package manifest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"

	"deployforge/internal/events"
	"deployforge/internal/orcherrors"
)

func TestWaitForRolloutSucceedsWhenConverged(t *testing.T) {
	cs := fake.NewSimpleClientset(&appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{Name: "demo", Namespace: "ns-a"},
		Status: appsv1.DeploymentStatus{
			Replicas: 2, UpdatedReplicas: 2, AvailableReplicas: 2,
		},
	})
	a := New(cs)
	sink := make(events.ChannelSink, 16)
	err := a.WaitForRollout(context.Background(), "ns-a", "demo", time.Second, sink)
	require.NoError(t, err)
}

func TestWaitForRolloutTimesOutWithLastStatus(t *testing.T) {
	cs := fake.NewSimpleClientset(&appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{Name: "demo", Namespace: "ns-a"},
		Status: appsv1.DeploymentStatus{
			Replicas: 2, UpdatedReplicas: 1, AvailableReplicas: 1,
		},
	})
	a := New(cs)
	sink := make(events.ChannelSink, 16)
	err := a.WaitForRollout(context.Background(), "ns-a", "demo", 50*time.Millisecond, sink)
	require.Error(t, err)
	require.Equal(t, orcherrors.KindRolloutTimeout, orcherrors.KindOf(err))
	require.Contains(t, err.Error(), "updated=1/2")
}

func TestScalePatchesReplicaCount(t *testing.T) {
	cs := fake.NewSimpleClientset(&appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{Name: "demo", Namespace: "ns-a"},
		Spec:       appsv1.DeploymentSpec{Replicas: int32Ptr(1)},
	})
	a := New(cs)
	sink := make(events.ChannelSink, 16)
	require.NoError(t, a.Scale(context.Background(), "ns-a", "demo", 5, sink))

	dep, err := cs.AppsV1().Deployments("ns-a").Get(context.Background(), "demo", metav1.GetOptions{})
	require.NoError(t, err)
	require.Equal(t, int32(5), *dep.Spec.Replicas)
}

func TestUpdateImagePatchesContainer(t *testing.T) {
	cs := fake.NewSimpleClientset(&appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{Name: "demo", Namespace: "ns-a"},
		Spec: appsv1.DeploymentSpec{
			Template: corev1.PodTemplateSpec{
				Spec: corev1.PodSpec{Containers: []corev1.Container{{Name: "demo", Image: "demo:old"}}},
			},
		},
	})
	a := New(cs)
	sink := make(events.ChannelSink, 16)
	require.NoError(t, a.UpdateImage(context.Background(), "ns-a", "demo", "demo", "demo:new", sink))

	dep, err := cs.AppsV1().Deployments("ns-a").Get(context.Background(), "demo", metav1.GetOptions{})
	require.NoError(t, err)
	require.Equal(t, "demo:new", dep.Spec.Template.Spec.Containers[0].Image)
}

func int32Ptr(v int32) *int32 { return &v }
