package clustermanager

import (
	"context"
)

// StaticProvisioner provisions nothing: the machines already exist and are
// reachable at their allocated IPv4 address, unless Hosts overrides it by node name.
type StaticProvisioner struct {
	User       string
	Port       int
	PrivateKey []byte
	Hosts      map[string]string
}

var _ Provisioner = &StaticProvisioner{}

// Provision returns the target of the node
func (provisioner *StaticProvisioner) Provision(ctx context.Context, node Node) (Target, error) {
	if err := ctx.Err(); err != nil {
		return Target{}, err
	}
	host := node.IPv4
	if override, ok := provisioner.Hosts[node.Name]; ok && override != "" {
		host = override
	}
	return Target{
		Node:       node,
		Host:       host,
		Port:       provisioner.Port,
		User:       provisioner.User,
		PrivateKey: provisioner.PrivateKey,
	}, nil
}

// Deprovision is a no-op, static machines outlive the cluster
func (provisioner *StaticProvisioner) Deprovision(ctx context.Context, node Node) error {
	return nil
}
