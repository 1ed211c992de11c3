package phases

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xetys/kubefleet/pkg/clustermanager"
	"github.com/xetys/kubefleet/pkg/retry"
)

const testKubeconfig = `apiVersion: v1
clusters:
- cluster:
    server: https://127.0.0.1:6443
  name: default
contexts:
- context:
    cluster: default
    user: default
  name: default
current-context: default
kind: Config
users:
- name: default
  user:
    token: abc
`

type recordedCall struct {
	node    string
	command string
}

// scriptedCommunicator plays a k3s host: it answers token and kubeconfig reads
// and fails the nodes listed in failNodes
type scriptedCommunicator struct {
	mu        sync.Mutex
	calls     []recordedCall
	failNodes map[string]error
}

func (comm *scriptedCommunicator) RunCmd(ctx context.Context, target clustermanager.Target, command string) (clustermanager.Secret, error) {
	comm.mu.Lock()
	comm.calls = append(comm.calls, recordedCall{node: target.Node.Name, command: command})
	err := comm.failNodes[target.Node.Name]
	comm.mu.Unlock()

	if err != nil {
		return "", err
	}
	switch {
	case strings.Contains(command, "node-token"):
		return "K10token::server:secret\n", nil
	case strings.Contains(command, "k3s.yaml"):
		return testKubeconfig, nil
	}
	return "", nil
}

func (comm *scriptedCommunicator) index(node, needle string) int {
	comm.mu.Lock()
	defer comm.mu.Unlock()
	for i, call := range comm.calls {
		if call.node == node && strings.Contains(call.command, needle) {
			return i
		}
	}
	return -1
}

func (comm *scriptedCommunicator) count(needle string) int {
	comm.mu.Lock()
	defer comm.mu.Unlock()
	n := 0
	for _, call := range comm.calls {
		if strings.Contains(call.command, needle) {
			n++
		}
	}
	return n
}

func testNodes(t *testing.T, controlPlanes, workers int) []clustermanager.Node {
	t.Helper()
	nodes, err := clustermanager.Allocate(clustermanager.SizingConfig{
		ControlPlaneCount:  controlPlanes,
		WorkerCount:        workers,
		ControlPlaneIDBase: 100,
		WorkerIDBase:       110,
		IPv4Prefix:         "10.10.0.",
		HostIndexBase:      20,
	})
	require.NoError(t, err)
	return nodes
}

func testTargets(nodes []clustermanager.Node) []clustermanager.Target {
	targets := make([]clustermanager.Target, len(nodes))
	for i, node := range nodes {
		targets[i] = clustermanager.Target{Node: node, Host: node.IPv4, User: "root", PrivateKey: []byte("key")}
	}
	return targets
}

func testManager(comm clustermanager.NodeCommunicator) *clustermanager.Manager {
	runner := retry.NewRunner(
		retry.WithMaxRetries(1),
		retry.WithTimeout(0),
		retry.WithSleep(func(context.Context, time.Duration) error { return nil }),
	)
	return clustermanager.NewClusterManager(comm, runner, nil, clustermanager.ManagerOptions{ClusterName: "cluster"})
}

func TestBootstrapGraph_Ordering(t *testing.T) {
	comm := &scriptedCommunicator{}
	nodes := testNodes(t, 2, 2)
	graph, err := BootstrapGraph(testManager(comm), testTargets(nodes), GraphOptions{})
	require.NoError(t, err)

	var names []string
	for _, phase := range graph.Phases() {
		names = append(names, phase.Name())
	}
	assert.Equal(t, []string{
		"primary-init",
		"token-fetch",
		"secondary-join/cluster-master-2",
		"worker-join/cluster-worker-1",
		"worker-join/cluster-worker-2",
		"credential-retrieval",
	}, names)

	report, err := graph.Run(context.Background())
	require.NoError(t, err)
	require.True(t, report.Bootstrapped(), report.Err())

	initAt := comm.index("cluster-master", "--cluster-init")
	tokenAt := comm.index("cluster-master", "node-token")
	require.NotEqual(t, -1, initAt)
	assert.Less(t, initAt, tokenAt)
	assert.Less(t, initAt, comm.index("cluster-master", "k3s.yaml"))
	assert.Less(t, tokenAt, comm.index("cluster-master-2", "--server"))
	assert.Less(t, tokenAt, comm.index("cluster-worker-1", "agent"))
	assert.Less(t, tokenAt, comm.index("cluster-worker-2", "agent"))

	// the fetched token is passed on, not read again
	assert.Equal(t, 1, comm.count("node-token"))
	assert.Equal(t, 3, comm.count("K3S_TOKEN='K10token::server:secret'"))

	credential, err := Credential(report)
	require.NoError(t, err)
	assert.Equal(t, "https://10.10.0.20:6443", credential.Server)
}

// gatedCommunicator holds the secondary join until every worker has joined
type gatedCommunicator struct {
	scriptedCommunicator
	workers  int
	joined   chan string
	released chan struct{}
	once     sync.Once
}

func (comm *gatedCommunicator) RunCmd(ctx context.Context, target clustermanager.Target, command string) (clustermanager.Secret, error) {
	switch {
	case target.Node.Role == clustermanager.RoleWorker && strings.Contains(command, "agent"):
		out, err := comm.scriptedCommunicator.RunCmd(ctx, target, command)
		comm.joined <- target.Node.Name
		return out, err
	case target.Node.IsControlPlane() && !target.Node.IsPrimary() && strings.Contains(command, "--server"):
		comm.once.Do(func() {
			go func() {
				for i := 0; i < comm.workers; i++ {
					<-comm.joined
				}
				close(comm.released)
			}()
		})
		select {
		case <-comm.released:
		case <-time.After(5 * time.Second):
			return "", errors.New("workers did not join while the secondary was joining")
		}
	}
	return comm.scriptedCommunicator.RunCmd(ctx, target, command)
}

func TestBootstrapGraph_WorkersDoNotWaitForSecondaries(t *testing.T) {
	comm := &gatedCommunicator{workers: 2, joined: make(chan string, 2), released: make(chan struct{})}
	graph, err := BootstrapGraph(testManager(comm), testTargets(testNodes(t, 2, 2)), GraphOptions{MaxParallel: 4})
	require.NoError(t, err)

	report, err := graph.Run(context.Background())
	require.NoError(t, err)
	require.True(t, report.Bootstrapped(), report.Err())

	secondaryAt := comm.index("cluster-master-2", "--server")
	assert.Less(t, comm.index("cluster-worker-1", "agent"), secondaryAt)
	assert.Less(t, comm.index("cluster-worker-2", "agent"), secondaryAt)
}

func TestBootstrapGraph_PartialFailure(t *testing.T) {
	comm := &scriptedCommunicator{failNodes: map[string]error{
		"cluster-worker-2": &clustermanager.CommandError{Host: "10.10.0.22:22", ExitStatus: 1, Stderr: "permission denied"},
	}}
	nodes := testNodes(t, 1, 3)
	graph, err := BootstrapGraph(testManager(comm), testTargets(nodes), GraphOptions{})
	require.NoError(t, err)

	report, err := graph.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, report.Bootstrapped())

	for _, name := range []string{"primary-init", "token-fetch", "worker-join/cluster-worker-1", "worker-join/cluster-worker-3", "credential-retrieval"} {
		result, ok := report.Result(name)
		require.True(t, ok, name)
		assert.Equal(t, StatusSucceeded, result.Status, name)
	}

	failed := report.WithStatus(StatusFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, "worker-join/cluster-worker-2", failed[0].Phase)
	assert.Equal(t, "cluster-worker-2", failed[0].Node)

	failure, ok := retry.AsFailure(failed[0].Err)
	require.True(t, ok)
	assert.Equal(t, KindWorkerJoin, failure.Phase)
	assert.Equal(t, "cluster-worker-2", failure.Target)

	summary := report.Summary()
	assert.False(t, summary.Succeeded)
	assert.Len(t, summary.Phases, 6)
	for _, phase := range summary.Phases {
		if phase.Status == StatusFailed {
			assert.Equal(t, string(retry.CategoryPermission), phase.Category)
			assert.NotEmpty(t, phase.Remediation)
		}
	}
}

func TestBootstrapGraph_PrimaryFailureSkipsEverything(t *testing.T) {
	comm := &scriptedCommunicator{failNodes: map[string]error{
		"cluster-master": &clustermanager.CommandError{ExitStatus: 1},
	}}
	graph, err := BootstrapGraph(testManager(comm), testTargets(testNodes(t, 1, 2)), GraphOptions{})
	require.NoError(t, err)

	report, err := graph.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Count(StatusFailed))
	assert.Equal(t, 4, report.Count(StatusSkipped))
	for _, result := range report.WithStatus(StatusSkipped) {
		assert.Equal(t, KindPrimaryInit, result.Cause)
	}
	assert.Equal(t, 0, comm.count("agent"))
}

func TestBootstrapGraph_NoPrimary(t *testing.T) {
	nodes := testNodes(t, 1, 1)
	_, err := BootstrapGraph(testManager(&scriptedCommunicator{}), testTargets(nodes[1:]), GraphOptions{})
	assert.True(t, errors.Is(err, clustermanager.ErrNoPrimary))
}

func TestBootstrap_ProvisionsFirst(t *testing.T) {
	comm := &scriptedCommunicator{}
	nodes := testNodes(t, 1, 1)
	provisioner := &clustermanager.StaticProvisioner{User: "root", PrivateKey: []byte("key")}

	provision, bootstrap, err := Bootstrap(context.Background(), testManager(comm), provisioner, nodes, GraphOptions{})
	require.NoError(t, err)
	assert.True(t, provision.Succeeded())
	require.NotNil(t, bootstrap)
	assert.True(t, bootstrap.Bootstrapped())
	assert.Equal(t, 2, comm.count("command -v curl"))
}

func TestBootstrap_StopsWhenProvisioningFails(t *testing.T) {
	comm := &scriptedCommunicator{failNodes: map[string]error{
		"cluster-worker-1": &clustermanager.CommandError{ExitStatus: 127, Stderr: "curl: command not found"},
	}}
	nodes := testNodes(t, 1, 1)
	provisioner := &clustermanager.StaticProvisioner{User: "root", PrivateKey: []byte("key")}

	provision, bootstrap, err := Bootstrap(context.Background(), testManager(comm), provisioner, nodes, GraphOptions{})
	require.NoError(t, err)
	assert.False(t, provision.Succeeded())
	assert.Nil(t, bootstrap)
	assert.Equal(t, 0, comm.count("--cluster-init"))
}
