package clustermanager

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xetys/kubefleet/pkg/retry"
)

func TestEtcdManager_CreateSnapshot(t *testing.T) {
	comm := newFakeCommunicator()
	etcd := NewEtcdManager(newTestManager(comm, nil, ManagerOptions{K3s: K3sConfig{Sudo: true}}))
	etcd.now = func() time.Time { return time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC) }

	name, err := etcd.CreateSnapshot(context.Background(), testTarget(testPrimary), "")
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01-12-30", name)

	calls := comm.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "cluster-master", calls[0].Node)
	assert.Equal(t, "sudo k3s etcd-snapshot save --name '2024-03-01-12-30'", calls[0].Command)
}

func TestEtcdManager_RejectsPathNames(t *testing.T) {
	comm := newFakeCommunicator()
	etcd := NewEtcdManager(newTestManager(comm, nil, ManagerOptions{}))

	_, err := etcd.CreateSnapshot(context.Background(), testTarget(testPrimary), "../etc/passwd")
	require.Error(t, err)
	assert.Equal(t, retry.CategoryValidation, retry.Classify(err).Category)

	err = etcd.RestoreSnapshot(context.Background(), testTarget(testPrimary), nil, "a/b")
	require.Error(t, err)
	assert.Empty(t, comm.Calls())
}

func TestEtcdManager_RestoreSnapshot(t *testing.T) {
	comm := newFakeCommunicator()
	etcd := NewEtcdManager(newTestManager(comm, nil, ManagerOptions{}))
	servers := []Target{testTarget(testPrimary), testTarget(testSecond), testTarget(testWorker)}

	require.NoError(t, etcd.RestoreSnapshot(context.Background(), servers[0], servers, "nightly-cluster-master-1709296200"))

	assert.Equal(t, []fakeCall{
		{"cluster-master", "test -f '/var/lib/rancher/k3s/server/db/snapshots/nightly-cluster-master-1709296200'"},
		{"cluster-master", "systemctl stop k3s"},
		{"cluster-master-2", "systemctl stop k3s"},
		{"cluster-master", "k3s server --cluster-reset --cluster-reset-restore-path='/var/lib/rancher/k3s/server/db/snapshots/nightly-cluster-master-1709296200' && systemctl start k3s"},
		{"cluster-master-2", "rm -rf /var/lib/rancher/k3s/server/db && systemctl start k3s"},
	}, comm.Calls())
}

func TestEtcdManager_RestoreMissingSnapshot(t *testing.T) {
	comm := newFakeCommunicator().on("test -f", fakeResponse{err: &CommandError{Host: "10.10.0.20:22", ExitStatus: 1}})
	etcd := NewEtcdManager(newTestManager(comm, nil, ManagerOptions{}))

	err := etcd.RestoreSnapshot(context.Background(), testTarget(testPrimary), nil, "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "could not find snapshot 'missing'")
	assert.Equal(t, 0, comm.count("systemctl stop"))
}
