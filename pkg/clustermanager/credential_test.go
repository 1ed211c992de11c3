package clustermanager

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/client-go/tools/clientcmd"
)

const k3sKubeconfig = `apiVersion: v1
clusters:
- cluster:
    certificate-authority-data: dGVzdA==
    server: https://127.0.0.1:6443
  name: default
contexts:
- context:
    cluster: default
    user: default
  name: default
current-context: default
kind: Config
preferences: {}
users:
- name: default
  user:
    client-certificate-data: dGVzdA==
    client-key-data: dGVzdA==
`

func TestNewAccessCredential(t *testing.T) {
	credential, err := NewAccessCredential(Secret(k3sKubeconfig), "lab", "10.10.0.20")
	require.NoError(t, err)

	assert.Equal(t, "https://10.10.0.20:6443", credential.Server)
	assert.Equal(t, "kubefleet-lab", credential.ContextName)

	apiCfg, err := clientcmd.Load([]byte(credential.Kubeconfig.Reveal()))
	require.NoError(t, err)
	assert.Equal(t, "kubefleet-lab", apiCfg.CurrentContext)
	require.Contains(t, apiCfg.Clusters, "kubefleet-lab")
	assert.Equal(t, "https://10.10.0.20:6443", apiCfg.Clusters["kubefleet-lab"].Server)
	assert.Contains(t, apiCfg.AuthInfos, "kubefleet-lab")
	assert.NotContains(t, apiCfg.Contexts, "default")

	assert.Equal(t, "[REDACTED]", fmt.Sprint(credential.Kubeconfig))
}

func TestNewAccessCredential_IPv6Host(t *testing.T) {
	credential, err := NewAccessCredential(Secret(k3sKubeconfig), "lab", "fd00::20")
	require.NoError(t, err)
	assert.Equal(t, "https://[fd00::20]:6443", credential.Server)
}

func TestNewAccessCredential_Invalid(t *testing.T) {
	_, err := NewAccessCredential(Secret("current-context: missing\nkind: Config\napiVersion: v1\n"), "lab", "10.10.0.20")
	assert.Error(t, err)
}

func TestManager_RetrieveCredential(t *testing.T) {
	comm := newFakeCommunicator().on("k3s.yaml", fakeResponse{out: Secret(k3sKubeconfig)})
	manager := newTestManager(comm, nil, ManagerOptions{ClusterName: "lab"})

	target := testTarget(testPrimary)
	target.Host = "203.0.113.10"

	credential, err := manager.RetrieveCredential(context.Background(), target)
	require.NoError(t, err)
	assert.Equal(t, "https://203.0.113.10:6443", credential.Server)
	assert.Equal(t, "kubefleet-lab", credential.ContextName)

	clientConfig, err := credential.ClientConfig()
	require.NoError(t, err)
	raw, err := clientConfig.RawConfig()
	require.NoError(t, err)
	assert.Equal(t, "kubefleet-lab", raw.CurrentContext)
}
