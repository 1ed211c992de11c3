package clustermanager

import (
	"net"
	"strconv"
	"time"
)

// Role is the role of a node within the cluster
type Role string

const (
	// RoleControlPlane runs the cluster's management components
	RoleControlPlane Role = "control-plane"
	// RoleWorker only runs workloads
	RoleWorker Role = "worker"
)

// ResourceProfile is the compute size of a node
type ResourceProfile struct {
	Cores    int `json:"cores" yaml:"cores" mapstructure:"cores"`
	MemoryMB int `json:"memory_mb" yaml:"memoryMB" mapstructure:"memory_mb"`
	DiskGB   int `json:"disk_gb" yaml:"diskGB" mapstructure:"disk_gb"`
}

// Node is the immutable identity of one machine, as derived by Allocate
type Node struct {
	Name        string          `json:"name" yaml:"name"`
	Role        Role            `json:"role" yaml:"role"`
	RoleIndex   int             `json:"role_index" yaml:"roleIndex"`
	GlobalIndex int             `json:"global_index" yaml:"globalIndex"`
	ID          int             `json:"id" yaml:"id"`
	IPv4        string          `json:"ipv4" yaml:"ipv4"`
	IPv6        string          `json:"ipv6,omitempty" yaml:"ipv6,omitempty"`
	Resources   ResourceProfile `json:"resources" yaml:"resources"`
}

// IsControlPlane returns true for control-plane nodes
func (node Node) IsControlPlane() bool {
	return node.Role == RoleControlPlane
}

// IsPrimary returns true for the first control-plane node, which initializes the cluster
func (node Node) IsPrimary() bool {
	return node.IsControlPlane() && node.RoleIndex == 0
}

// Target is a node made reachable by a Provisioner
type Target struct {
	Node       Node   `json:"node"`
	Host       string `json:"host"`
	Port       int    `json:"port,omitempty"`
	User       string `json:"user"`
	PrivateKey []byte `json:"-"`
}

// Address returns host:port of the remote shell endpoint
func (target Target) Address() string {
	port := target.Port
	if port == 0 {
		port = 22
	}
	return net.JoinHostPort(target.Host, strconv.Itoa(port))
}

// Cluster is the persisted record of a bootstrapped cluster
type Cluster struct {
	Name       string       `json:"name"`
	Sizing     SizingConfig `json:"sizing"`
	Nodes      []Node       `json:"nodes"`
	Hosts      []NodeHost   `json:"hosts"`
	Provider   string       `json:"provider"`
	K3s        K3sConfig    `json:"k3s"`
	SSHKeyName string       `json:"ssh_key_name"`
	SSHUser    string       `json:"ssh_user"`
	CreatedAt  time.Time    `json:"created_at"`
}

// NodeHost maps a node name to the host it was provisioned on
type NodeHost struct {
	Name string `json:"name"`
	Host string `json:"host"`
	Port int    `json:"port,omitempty"`
}

// Targets returns the recorded targets of the cluster nodes, falling back to
// the allocated IPv4 for nodes without a recorded host
func (cluster Cluster) Targets(privateKey []byte) []Target {
	hosts := map[string]NodeHost{}
	for _, host := range cluster.Hosts {
		hosts[host.Name] = host
	}

	targets := make([]Target, len(cluster.Nodes))
	for i, node := range cluster.Nodes {
		target := Target{Node: node, Host: node.IPv4, User: cluster.SSHUser, PrivateKey: privateKey}
		if host, ok := hosts[node.Name]; ok {
			target.Host = host.Host
			target.Port = host.Port
		}
		targets[i] = target
	}
	return targets
}

// SetTargets records the hosts of targets
func (cluster *Cluster) SetTargets(targets []Target) {
	hosts := make([]NodeHost, 0, len(targets))
	for _, target := range targets {
		hosts = append(hosts, NodeHost{Name: target.Node.Name, Host: target.Host, Port: target.Port})
	}
	cluster.Hosts = hosts
}

// RemoteCommand is a remote command with its symmetric teardown
type RemoteCommand struct {
	EventName string
	Create    string
	// Delete is optional and run best-effort on rollback
	Delete string
}
