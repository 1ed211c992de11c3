package cmd

import (
	"regexp"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xetys/kubefleet/pkg/clustermanager"
	"github.com/xetys/kubefleet/pkg/health"
	"github.com/xetys/kubefleet/pkg/retry"
)

func testViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

func TestSettings_DefaultSizingAllocates(t *testing.T) {
	sizing, err := sizingConfig(testViper())
	require.NoError(t, err)
	sizing.ClusterName = "demo"

	nodes, err := clustermanager.Allocate(sizing)
	require.NoError(t, err)
	require.Len(t, nodes, 3)
	assert.Equal(t, "demo-master", nodes[0].Name)
	assert.Equal(t, "10.10.0.20", nodes[0].IPv4)
	assert.Equal(t, 4096, nodes[0].Resources.MemoryMB)
	assert.Equal(t, "demo-worker-2", nodes[2].Name)
}

func TestSettings_OverridesApply(t *testing.T) {
	v := testViper()
	v.Set("sizing.worker_count", 5)
	v.Set("sizing.worker_resources.cores", 8)

	sizing, err := sizingConfig(v)
	require.NoError(t, err)
	assert.Equal(t, 5, sizing.WorkerCount)
	assert.Equal(t, 8, sizing.WorkerResources.Cores)
	assert.Equal(t, 2, sizing.ControlPlaneResources.Cores)
}

func TestSettings_RetryDefaults(t *testing.T) {
	assert.Equal(t, retry.DefaultConfig(), retryConfig(testViper()))
}

func TestSettings_HealthDefaults(t *testing.T) {
	v := testViper()
	assert.Equal(t, health.DefaultConfig(), healthConfig(v))

	v.Set("health.max_retries", 10)
	assert.Equal(t, 10, healthConfig(v).MaxRetries)
	assert.Equal(t, retry.DefaultConfig().MaxRetries, retryConfig(v).MaxRetries)
}

func TestSettings_HetznerConfig(t *testing.T) {
	config, err := hetznerConfig(testViper(), "demo", "my-key", []byte("key"))
	require.NoError(t, err)
	assert.Equal(t, "demo", config.ClusterName)
	assert.Equal(t, "my-key", config.SSHKeyName)
	assert.Equal(t, "root", config.User)
	assert.Empty(t, config.UserData)
}

func TestRandomName(t *testing.T) {
	slugPattern := regexp.MustCompile(`^[a-z0-9]+-[a-z0-9]+$`)
	for i := 0; i < 20; i++ {
		assert.Regexp(t, slugPattern, randomName())
	}
}

func TestNextWorkers(t *testing.T) {
	sizing, err := sizingConfig(testViper())
	require.NoError(t, err)
	sizing.ClusterName = "demo"
	nodes, err := clustermanager.Allocate(sizing)
	require.NoError(t, err)

	// demo-worker-1 was removed earlier
	cluster := clustermanager.Cluster{Name: "demo", Sizing: sizing, Nodes: []clustermanager.Node{nodes[0], nodes[2]}}

	added, next, err := nextWorkers(cluster, 2)
	require.NoError(t, err)
	require.Len(t, added, 2)
	assert.Equal(t, "demo-worker-1", added[0].Name)
	assert.Equal(t, "demo-worker-3", added[1].Name)
	assert.Equal(t, 4, next.WorkerCount)
}

func TestNextWorkers_ExceedsBlock(t *testing.T) {
	sizing, err := sizingConfig(testViper())
	require.NoError(t, err)

	_, _, err = nextWorkers(clustermanager.Cluster{Sizing: sizing}, clustermanager.DefaultIDBlockSize)
	var validation *clustermanager.ValidationError
	assert.ErrorAs(t, err, &validation)
}
