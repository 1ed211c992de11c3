package clustermanager

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCluster_TargetsFallBackToAllocatedAddress(t *testing.T) {
	cluster := Cluster{
		Name:    "cluster",
		Nodes:   []Node{testPrimary, testWorker},
		Hosts:   []NodeHost{{Name: "cluster-master", Host: "203.0.113.10", Port: 2222}},
		SSHUser: "ubuntu",
	}

	targets := cluster.Targets([]byte("key"))
	assert.Len(t, targets, 2)
	assert.Equal(t, "203.0.113.10:2222", targets[0].Address())
	assert.Equal(t, "ubuntu", targets[0].User)
	assert.Equal(t, "10.10.0.22", targets[1].Host)
	assert.Equal(t, []byte("key"), targets[1].PrivateKey)
}

func TestCluster_SetTargetsReplacesHosts(t *testing.T) {
	cluster := Cluster{Hosts: []NodeHost{{Name: "stale", Host: "192.0.2.1"}}}

	cluster.SetTargets([]Target{
		{Node: testPrimary, Host: "203.0.113.10"},
		{Node: testWorker, Host: "203.0.113.11"},
	})

	assert.Equal(t, []NodeHost{
		{Name: "cluster-master", Host: "203.0.113.10"},
		{Name: "cluster-worker-1", Host: "203.0.113.11"},
	}, cluster.Hosts)
}

func TestTarget_AddressIPv6(t *testing.T) {
	assert.Equal(t, "[2001:db8::5]:22", Target{Host: "2001:db8::5"}.Address())
	assert.Equal(t, "203.0.113.10:2222", Target{Host: "203.0.113.10", Port: 2222}.Address())
}

func TestCluster_SetTargetsLeavesCopiesAlone(t *testing.T) {
	cluster := Cluster{Hosts: []NodeHost{{Name: "cluster-master", Host: "192.0.2.1"}}}
	snapshot := cluster

	cluster.SetTargets([]Target{{Node: testPrimary, Host: "203.0.113.10"}})

	assert.Equal(t, "203.0.113.10", cluster.Hosts[0].Host)
	assert.Equal(t, "192.0.2.1", snapshot.Hosts[0].Host)
}
