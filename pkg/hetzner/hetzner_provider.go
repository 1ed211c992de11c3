package hetzner

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"

	"github.com/hetznercloud/hcloud-go/hcloud"
	"github.com/pkg/errors"

	"github.com/xetys/kubefleet/pkg/clustermanager"
	"github.com/xetys/kubefleet/pkg/retry"
)

// Labels put on every server of a cluster
const (
	LabelCluster = "kubefleet/cluster"
	LabelRole    = "kubefleet/role"
	LabelNodeID  = "kubefleet/node-id"
)

// Config of the hcloud provider
type Config struct {
	ClusterName string
	ServerType  string
	Location    string
	Image       string
	// Network is the private network servers are attached to with their allocated IPv4
	Network string
	// SSHKeyName names an ssh key registered in the project
	SSHKeyName string
	User       string
	PrivateKey []byte
	UserData   string
}

// Provider implements clustermanager.Provisioner with hcloud servers
type Provider struct {
	client *hcloud.Client
	config Config

	mu      sync.Mutex
	network *hcloud.Network
}

var _ clustermanager.Provisioner = &Provider{}

// NewHetznerProvider creates a Provider
func NewHetznerProvider(client *hcloud.Client, config Config) *Provider {
	if config.User == "" {
		config.User = "root"
	}
	return &Provider{client: client, config: config}
}

// ErrNoNetwork is returned when provisioning without a private network. k3s
// binds to the allocated IPv4, which only the network attachment provides.
var ErrNoNetwork = errors.New("no private network configured (hcloud.network)")

// Provision creates the server of node unless it exists, attaches it to the
// private network and returns its public address as target
func (provider *Provider) Provision(ctx context.Context, node clustermanager.Node) (clustermanager.Target, error) {
	if provider.config.Network == "" {
		return clustermanager.Target{}, &APIError{Op: "provision " + node.Name, Err: ErrNoNetwork, category: retry.CategoryValidation}
	}

	server, err := provider.ensureServer(ctx, node)
	if err != nil {
		return clustermanager.Target{}, err
	}

	if err := provider.ensureNetwork(ctx, server, node); err != nil {
		return clustermanager.Target{}, err
	}

	host := node.IPv4
	if ip := server.PublicNet.IPv4.IP; ip != nil && !ip.IsUnspecified() {
		host = ip.String()
	}

	return clustermanager.Target{
		Node:       node,
		Host:       host,
		User:       provider.config.User,
		PrivateKey: provider.config.PrivateKey,
	}, nil
}

// Deprovision deletes the server of node; a missing server is not an error
func (provider *Provider) Deprovision(ctx context.Context, node clustermanager.Node) error {
	server, _, err := provider.client.Server.GetByName(ctx, node.Name)
	if err != nil {
		return apiError("get server "+node.Name, err)
	}
	if server == nil {
		return nil
	}

	if _, err := provider.client.Server.Delete(ctx, server); err != nil {
		if hcloud.IsError(err, hcloud.ErrorCodeNotFound) {
			return nil
		}
		return apiError("delete server "+node.Name, err)
	}
	return nil
}

// Servers lists the servers of the configured cluster
func (provider *Provider) Servers(ctx context.Context) ([]*hcloud.Server, error) {
	servers, err := provider.client.Server.AllWithOpts(ctx, hcloud.ServerListOpts{
		ListOpts: hcloud.ListOpts{LabelSelector: fmt.Sprintf("%s=%s", LabelCluster, provider.config.ClusterName)},
	})
	if err != nil {
		return nil, apiError("list servers", err)
	}
	return servers, nil
}

func (provider *Provider) ensureServer(ctx context.Context, node clustermanager.Node) (*hcloud.Server, error) {
	server, _, err := provider.client.Server.GetByName(ctx, node.Name)
	if err != nil {
		return nil, apiError("get server "+node.Name, err)
	}
	if server != nil {
		return server, nil
	}

	opts := hcloud.ServerCreateOpts{
		Name:       node.Name,
		ServerType: &hcloud.ServerType{Name: provider.config.ServerType},
		Image:      &hcloud.Image{Name: provider.config.Image},
		UserData:   provider.config.UserData,
		Labels: map[string]string{
			LabelCluster: provider.config.ClusterName,
			LabelRole:    string(node.Role),
			LabelNodeID:  strconv.Itoa(node.ID),
		},
	}
	if provider.config.Location != "" {
		opts.Location = &hcloud.Location{Name: provider.config.Location}
	}
	if provider.config.SSHKeyName != "" {
		opts.SSHKeys = []*hcloud.SSHKey{{Name: provider.config.SSHKeyName}}
	}

	result, _, err := provider.client.Server.Create(ctx, opts)
	if err != nil {
		if hcloud.IsError(err, hcloud.ErrorCodeUniquenessError) {
			// created concurrently, e.g. by an earlier attempt
			server, _, getErr := provider.client.Server.GetByName(ctx, node.Name)
			if getErr == nil && server != nil {
				return server, nil
			}
		}
		return nil, apiError("create server "+node.Name, err)
	}

	if err := WaitForAction(ctx, provider.client, result.Action); err != nil {
		return nil, apiError("create server "+node.Name, err)
	}
	for _, action := range result.NextActions {
		if err := WaitForAction(ctx, provider.client, action); err != nil {
			return nil, apiError("start server "+node.Name, err)
		}
	}

	server, _, err = provider.client.Server.GetByID(ctx, result.Server.ID)
	if err != nil {
		return nil, apiError("get server "+node.Name, err)
	}
	if server == nil {
		return nil, errors.Errorf("server %s vanished after creation", node.Name)
	}
	return server, nil
}

func (provider *Provider) ensureNetwork(ctx context.Context, server *hcloud.Server, node clustermanager.Node) error {
	network, err := provider.lookupNetwork(ctx)
	if err != nil {
		return err
	}

	for _, privateNet := range server.PrivateNet {
		if privateNet.Network != nil && privateNet.Network.ID == network.ID {
			if !privateNet.IP.Equal(net.ParseIP(node.IPv4)) {
				return &APIError{
					Op:       "attach " + node.Name,
					Err:      errors.Errorf("server is attached with %s instead of %s", privateNet.IP, node.IPv4),
					category: categoryConflict,
				}
			}
			return nil
		}
	}

	action, _, err := provider.client.Server.AttachToNetwork(ctx, server, hcloud.ServerAttachToNetworkOpts{
		Network: network,
		IP:      net.ParseIP(node.IPv4),
	})
	if err != nil {
		return apiError("attach "+node.Name+" to network "+network.Name, err)
	}
	return WaitForAction(ctx, provider.client, action)
}

func (provider *Provider) lookupNetwork(ctx context.Context) (*hcloud.Network, error) {
	provider.mu.Lock()
	defer provider.mu.Unlock()
	if provider.network != nil {
		return provider.network, nil
	}

	network, _, err := provider.client.Network.Get(ctx, provider.config.Network)
	if err != nil {
		return nil, apiError("get network "+provider.config.Network, err)
	}
	if network == nil {
		return nil, &APIError{Op: "get network", Err: errors.Errorf("network %q not found", provider.config.Network), category: categoryMissing}
	}
	provider.network = network
	return network, nil
}
