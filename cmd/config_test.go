package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xetys/kubefleet/pkg/clustermanager"
)

func TestFleetConfig_FindSSHKeyByName(t *testing.T) {
	config := getFleetConfig()
	tests := []struct {
		name  string
		index int
	}{
		{"test-key1", 0},
		{"test-key2", 1},
		{"non-existing", -1},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			index, key := config.FindSSHKeyByName(test.name)
			assert.Equal(t, test.index, index)
			if test.index == -1 {
				assert.Nil(t, key)
			} else {
				require.NotNil(t, key)
				assert.Equal(t, test.name, key.Name)
			}
		})
	}
}

func TestFleetConfig_AddSSHKey(t *testing.T) {
	config := getFleetConfig()

	config.AddSSHKey(SSHKey{Name: "test-key3"})

	assert.Len(t, config.SSHKeys, 3)
}

func TestFleetConfig_DeleteSSHKey(t *testing.T) {
	config := getFleetConfig()

	require.NoError(t, config.DeleteSSHKey("test-key1"))
	assert.Len(t, config.SSHKeys, 1)
	assert.Error(t, config.DeleteSSHKey("non-existing"))
}

func TestFleetConfig_AddClusterReplacesRecord(t *testing.T) {
	config := getFleetConfig()

	config.AddCluster(clustermanager.Cluster{Name: "demo", Provider: ProviderStatic})
	config.AddCluster(clustermanager.Cluster{Name: "demo", Provider: ProviderHetzner})

	require.Len(t, config.Clusters, 1)
	index, cluster := config.FindClusterByName("demo")
	assert.Equal(t, 0, index)
	assert.Equal(t, ProviderHetzner, cluster.Provider)

	require.NoError(t, config.DeleteCluster("demo"))
	assert.Empty(t, config.Clusters)
	assert.Error(t, config.DeleteCluster("demo"))
}

func TestAppConfig_FindContextByName(t *testing.T) {
	app := getAppConfig()

	ctx, err := app.FindContextByName("second-context")
	require.NoError(t, err)
	assert.Equal(t, "second-context", ctx.Name)

	_, err = app.FindContextByName("non-existing")
	assert.Error(t, err)
}

func TestAppConfig_SwitchContextByName(t *testing.T) {
	app := getAppConfig()

	require.NoError(t, app.SwitchContextByName("second-context"))
	assert.Equal(t, "second-context", app.CurrentContext.Name)
	assert.Equal(t, "second-context", app.Config.ActiveContextName)
	assert.NotNil(t, app.Client)

	assert.Error(t, app.SwitchContextByName("non-existing"))
}

func TestConfig_WriteAndLoad(t *testing.T) {
	previous := DefaultConfigPath
	DefaultConfigPath = filepath.Join(t.TempDir(), ".kubefleet")
	defer func() { DefaultConfigPath = previous }()

	// first use creates the file
	config, err := loadConfig()
	require.NoError(t, err)
	assert.Empty(t, config.Clusters)

	config.AddContext(HetznerContext{Name: "first-context", Token: "secret"})
	config.ActiveContextName = "first-context"
	config.AddCluster(clustermanager.Cluster{
		Name:  "demo",
		Nodes: []clustermanager.Node{{Name: "demo-master", Role: clustermanager.RoleControlPlane, IPv4: "10.10.0.20"}},
		Hosts: []clustermanager.NodeHost{{Name: "demo-master", Host: "203.0.113.10"}},
	})
	require.NoError(t, config.WriteCurrentConfig())

	info, err := os.Stat(filepath.Join(DefaultConfigPath, "config.json"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "first-context", loaded.ActiveContextName)
	_, cluster := loaded.FindClusterByName("demo")
	require.NotNil(t, cluster)
	assert.Equal(t, "203.0.113.10", primaryHost(*cluster))
}

func getAppConfig() AppConfig {
	return AppConfig{
		Config: &FleetConfig{
			Contexts: []HetznerContext{
				{Name: "first-context"},
				{Name: "second-context"},
			},
		},
	}
}

func getFleetConfig() FleetConfig {
	return FleetConfig{
		SSHKeys: []SSHKey{
			{Name: "test-key1"},
			{Name: "test-key2"},
		},
	}
}
