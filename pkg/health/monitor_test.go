package health

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/kubernetes/fake"
	k8stesting "k8s.io/client-go/testing"

	"github.com/xetys/kubefleet/pkg/retry"
)

func node(name string, ready corev1.ConditionStatus) *corev1.Node {
	return &corev1.Node{
		ObjectMeta: metav1.ObjectMeta{Name: name},
		Status: corev1.NodeStatus{
			Conditions: []corev1.NodeCondition{{Type: corev1.NodeReady, Status: ready}},
		},
	}
}

func deployment(namespace, name string, replicas, updated, available int32) *appsv1.Deployment {
	return &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{Namespace: namespace, Name: name, Generation: 1},
		Spec:       appsv1.DeploymentSpec{Replicas: &replicas},
		Status: appsv1.DeploymentStatus{
			ObservedGeneration: 1,
			Replicas:           updated,
			UpdatedReplicas:    updated,
			AvailableReplicas:  available,
		},
	}
}

func testRunner(sleep func(context.Context, time.Duration) error) *retry.Runner {
	if sleep == nil {
		sleep = func(context.Context, time.Duration) error { return nil }
	}
	return retry.NewRunner(retry.WithMaxRetries(3), retry.WithTimeout(0), retry.WithSleep(sleep))
}

func TestWaitForNodesReady(t *testing.T) {
	client := fake.NewSimpleClientset(
		node("cluster-master", corev1.ConditionTrue),
		node("cluster-worker-1", corev1.ConditionFalse),
	)

	// the worker becomes ready while the runner backs off
	runner := testRunner(func(ctx context.Context, d time.Duration) error {
		_, err := client.CoreV1().Nodes().Update(ctx, node("cluster-worker-1", corev1.ConditionTrue), metav1.UpdateOptions{})
		return err
	})

	monitor := NewMonitor(client, runner)
	require.NoError(t, monitor.WaitForNodesReady(context.Background(), []string{"cluster-master", "cluster-worker-1"}))

	metrics := runner.Metrics()
	assert.Equal(t, 2, metrics.PhaseCounts[PhaseNodesReady])
	assert.Equal(t, 1, metrics.MaxRetryCount)
}

func TestWaitForNodesReady_MissingNode(t *testing.T) {
	client := fake.NewSimpleClientset(node("cluster-master", corev1.ConditionTrue))
	monitor := NewMonitor(client, testRunner(nil))

	err := monitor.WaitForNodesReady(context.Background(), []string{"cluster-worker-2", "cluster-master"})
	require.Error(t, err)

	failure, ok := retry.AsFailure(err)
	require.True(t, ok)
	assert.True(t, failure.Exhausted)
	assert.Equal(t, 4, failure.Attempts)
	assert.Equal(t, retry.CategoryNetwork, failure.Category)
	assert.Contains(t, err.Error(), "cluster-worker-2")
	assert.NotContains(t, err.Error(), "cluster-master")
}

func TestWaitForNodesReady_Forbidden(t *testing.T) {
	client := fake.NewSimpleClientset()
	client.PrependReactor("list", "nodes", func(action k8stesting.Action) (bool, runtime.Object, error) {
		return true, nil, apierrors.NewForbidden(schema.GroupResource{Resource: "nodes"}, "", nil)
	})

	err := NewMonitor(client, testRunner(nil)).WaitForNodesReady(context.Background(), []string{"cluster-master"})

	failure, ok := retry.AsFailure(err)
	require.True(t, ok)
	assert.Equal(t, retry.CategoryPermission, failure.Category)
}

func TestWaitForRollout(t *testing.T) {
	client := fake.NewSimpleClientset(deployment("cert-manager", "cert-manager", 1, 1, 1))

	err := NewMonitor(client, testRunner(nil)).WaitForRollout(context.Background(), "cert-manager", "cert-manager")
	assert.NoError(t, err)
}

func TestWaitForRollout_NotAvailable(t *testing.T) {
	client := fake.NewSimpleClientset(deployment("ingress-nginx", "ingress-nginx-controller", 2, 2, 1))

	err := NewMonitor(client, testRunner(nil)).WaitForRollout(context.Background(), "ingress-nginx", "ingress-nginx-controller")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 updated replicas available")
}

func TestRolloutComplete(t *testing.T) {
	tests := []struct {
		name       string
		deployment *appsv1.Deployment
		done       bool
	}{
		{"complete", deployment("a", "b", 3, 3, 3), true},
		{"updating", deployment("a", "b", 3, 1, 1), false},
		{"unavailable", deployment("a", "b", 3, 3, 2), false},
		{
			"generation not observed",
			func() *appsv1.Deployment {
				d := deployment("a", "b", 1, 1, 1)
				d.Generation = 2
				return d
			}(),
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, done := RolloutComplete(tt.deployment)
			assert.Equal(t, tt.done, done)
		})
	}
}

func TestDefaultConfig_OutlastsInstallRetries(t *testing.T) {
	monitor := NewMonitor(fake.NewSimpleClientset(), nil)
	runner := monitor.runner

	var budget, install time.Duration
	for i := 1; i <= runner.Config().MaxRetries; i++ {
		budget += runner.Delay(i)
	}
	installRunner := retry.NewRunner()
	for i := 1; i <= installRunner.Config().MaxRetries; i++ {
		install += installRunner.Delay(i)
	}

	assert.GreaterOrEqual(t, budget, 5*time.Minute)
	assert.Greater(t, budget, install)
	// constant polling, no growing gaps
	assert.Equal(t, runner.Delay(1), runner.Delay(runner.Config().MaxRetries))
}
