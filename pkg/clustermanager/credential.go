package clustermanager

import (
	"fmt"
	"net"
	"net/url"

	"github.com/pkg/errors"
	"k8s.io/client-go/tools/clientcmd"
	clientcmdapi "k8s.io/client-go/tools/clientcmd/api"
)

// ContextPrefix prefixes cluster, user and context names of sanitized kubeconfigs
const ContextPrefix = "kubefleet"

// AccessCredential is the kubeconfig handed back after a bootstrap
type AccessCredential struct {
	Server      string
	ContextName string
	Kubeconfig  Secret
}

// ContextName returns the kubeconfig context of a cluster
func ContextName(clusterName string) string {
	return fmt.Sprintf("%s-%s", ContextPrefix, clusterName)
}

// NewAccessCredential rewrites a raw server kubeconfig for remote use: loopback
// server addresses point to host, and the single context, cluster and user are
// renamed after the cluster.
func NewAccessCredential(raw Secret, clusterName, host string) (AccessCredential, error) {
	apiCfg, err := clientcmd.Load([]byte(raw.Reveal()))
	if err != nil {
		return AccessCredential{}, errors.Wrap(err, "kubeconfig could not be parsed")
	}

	var server string
	for _, cluster := range apiCfg.Clusters {
		cluster.Server, err = rewriteServer(cluster.Server, host)
		if err != nil {
			return AccessCredential{}, err
		}
		server = cluster.Server
	}

	name := ContextName(clusterName)
	if err := sanitizeKubeConfig(apiCfg, name); err != nil {
		return AccessCredential{}, err
	}

	configBytes, err := clientcmd.Write(*apiCfg)
	if err != nil {
		return AccessCredential{}, errors.Wrap(err, "kubeconfig could not be written")
	}

	return AccessCredential{
		Server:      server,
		ContextName: name,
		Kubeconfig:  Secret(configBytes),
	}, nil
}

// ClientConfig returns a rest-ready client config of the credential
func (credential AccessCredential) ClientConfig() (clientcmd.ClientConfig, error) {
	return clientcmd.NewClientConfigFromBytes([]byte(credential.Kubeconfig.Reveal()))
}

func rewriteServer(server, host string) (string, error) {
	u, err := url.Parse(server)
	if err != nil {
		return "", errors.Wrapf(err, "invalid server address %q", server)
	}
	hostname := u.Hostname()
	if hostname != "127.0.0.1" && hostname != "localhost" && hostname != "::1" {
		return server, nil
	}
	port := u.Port()
	if port == "" {
		port = fmt.Sprint(APIServerPort)
	}
	u.Host = net.JoinHostPort(host, port)
	return u.String(), nil
}

func sanitizeKubeConfig(apiCfg *clientcmdapi.Config, name string) error {
	contextName := apiCfg.CurrentContext
	ctx := apiCfg.Contexts[contextName]
	if ctx == nil {
		return errors.Errorf("current context %q not found in kubeconfig", contextName)
	}

	currentCluster := ctx.Cluster
	currentAuthInfo := ctx.AuthInfo
	cluster := apiCfg.Clusters[currentCluster]
	authInfo := apiCfg.AuthInfos[currentAuthInfo]
	if cluster == nil || authInfo == nil {
		return errors.Errorf("context %q references a missing cluster or user", contextName)
	}

	delete(apiCfg.Clusters, currentCluster)
	delete(apiCfg.AuthInfos, currentAuthInfo)
	delete(apiCfg.Contexts, contextName)

	ctx.Cluster = name
	ctx.AuthInfo = name
	apiCfg.Contexts[name] = ctx
	apiCfg.Clusters[name] = cluster
	apiCfg.AuthInfos[name] = authInfo
	apiCfg.CurrentContext = name

	return nil
}
