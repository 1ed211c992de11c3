package health

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"github.com/xetys/kubefleet/pkg/clustermanager"
	"github.com/xetys/kubefleet/pkg/retry"
)

// Phase labels used in the retry history
const (
	PhaseNodesReady = "nodes-ready"
	PhaseRollout    = "rollout"
)

// NotReadyError lists what has not converged yet. It is retryable.
type NotReadyError struct {
	What    string
	Pending []string
}

func (e *NotReadyError) Error() string {
	return fmt.Sprintf("%s not ready: %s", e.What, strings.Join(e.Pending, ", "))
}

// Category implements retry.Categorized
func (e *NotReadyError) Category() retry.Category {
	return retry.CategoryNetwork
}

// Monitor waits for cluster state to converge, polling through a retry runner
type Monitor struct {
	client kubernetes.Interface
	runner *retry.Runner
}

// DefaultConfig polls every 5s for up to 5 minutes. Nodes and add-ons take far
// longer to converge than a single install command takes to succeed.
func DefaultConfig() retry.Config {
	return retry.Config{
		Timeout:      30 * time.Second,
		MaxRetries:   60,
		InitialDelay: 5 * time.Second,
		Multiplier:   1.0,
		MaxDelay:     5 * time.Second,
	}
}

// NewMonitor creates a Monitor for a client. Without a runner it polls with DefaultConfig.
func NewMonitor(client kubernetes.Interface, runner *retry.Runner) *Monitor {
	if runner == nil {
		runner = retry.NewRunner(retry.WithConfig(DefaultConfig()))
	}
	return &Monitor{client: client, runner: runner}
}

// NewMonitorForCredential creates a Monitor talking to the cluster of credential
func NewMonitorForCredential(credential clustermanager.AccessCredential, runner *retry.Runner) (*Monitor, error) {
	clientConfig, err := credential.ClientConfig()
	if err != nil {
		return nil, errors.Wrap(err, "unable to load access credential")
	}
	restConfig, err := clientConfig.ClientConfig()
	if err != nil {
		return nil, errors.Wrap(err, "unable to build rest config")
	}
	client, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, errors.Wrap(err, "unable to create kubernetes client")
	}
	return NewMonitor(client, runner), nil
}

// WaitForNodesReady blocks until every named node is registered and Ready
func (monitor *Monitor) WaitForNodesReady(ctx context.Context, names []string) error {
	result := monitor.runner.Execute(ctx, PhaseNodesReady, "", func(ctx context.Context) error {
		return monitor.nodesReady(ctx, names)
	})
	return result.Err
}

func (monitor *Monitor) nodesReady(ctx context.Context, names []string) error {
	list, err := monitor.client.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
	if err != nil {
		return apiError(err)
	}

	ready := map[string]bool{}
	for _, node := range list.Items {
		ready[node.Name] = NodeReady(node)
	}

	var pending []string
	for _, name := range names {
		if !ready[name] {
			pending = append(pending, name)
		}
	}
	if len(pending) > 0 {
		sort.Strings(pending)
		return &NotReadyError{What: "nodes", Pending: pending}
	}
	return nil
}

// NodeReady returns true if the node reports the Ready condition
func NodeReady(node corev1.Node) bool {
	for _, condition := range node.Status.Conditions {
		if condition.Type == corev1.NodeReady {
			return condition.Status == corev1.ConditionTrue
		}
	}
	return false
}

// WaitForRollout blocks until the deployment rolled out all of its replicas
func (monitor *Monitor) WaitForRollout(ctx context.Context, namespace, name string) error {
	result := monitor.runner.Execute(ctx, PhaseRollout, namespace+"/"+name, func(ctx context.Context) error {
		deployment, err := monitor.client.AppsV1().Deployments(namespace).Get(ctx, name, metav1.GetOptions{})
		if apierrors.IsNotFound(err) {
			return &NotReadyError{What: "deployment", Pending: []string{namespace + "/" + name}}
		}
		if err != nil {
			return apiError(err)
		}
		if reason, done := RolloutComplete(deployment); !done {
			return &NotReadyError{What: "deployment", Pending: []string{fmt.Sprintf("%s/%s (%s)", namespace, name, reason)}}
		}
		return nil
	})
	return result.Err
}

// RolloutComplete mirrors the checks of kubectl rollout status
func RolloutComplete(deployment *appsv1.Deployment) (string, bool) {
	if deployment.Generation > deployment.Status.ObservedGeneration {
		return "waiting for the spec update to be observed", false
	}

	replicas := int32(1)
	if deployment.Spec.Replicas != nil {
		replicas = *deployment.Spec.Replicas
	}
	status := deployment.Status
	switch {
	case status.UpdatedReplicas < replicas:
		return fmt.Sprintf("%d of %d updated replicas", status.UpdatedReplicas, replicas), false
	case status.Replicas > status.UpdatedReplicas:
		return fmt.Sprintf("%d old replicas pending termination", status.Replicas-status.UpdatedReplicas), false
	case status.AvailableReplicas < status.UpdatedReplicas:
		return fmt.Sprintf("%d of %d updated replicas available", status.AvailableReplicas, status.UpdatedReplicas), false
	}
	return "", true
}

// apiError maps API status errors onto the retry taxonomy
func apiError(err error) error {
	switch {
	case apierrors.IsUnauthorized(err), apierrors.IsForbidden(err):
		return &categorized{err: err, category: retry.CategoryPermission}
	case apierrors.IsAlreadyExists(err), apierrors.IsConflict(err):
		return &categorized{err: err, category: retry.CategoryResourceConflict}
	case apierrors.IsInvalid(err), apierrors.IsBadRequest(err):
		return &categorized{err: err, category: retry.CategoryValidation}
	case apierrors.IsTimeout(err), apierrors.IsServerTimeout(err), apierrors.IsServiceUnavailable(err), apierrors.IsTooManyRequests(err):
		return &categorized{err: err, category: retry.CategoryNetwork}
	}
	return err
}

type categorized struct {
	err      error
	category retry.Category
}

func (e *categorized) Error() string {
	return e.err.Error()
}

func (e *categorized) Unwrap() error {
	return e.err
}

func (e *categorized) Category() retry.Category {
	return e.category
}
