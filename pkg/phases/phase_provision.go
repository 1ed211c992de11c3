package phases

import (
	"context"

	"github.com/xetys/kubefleet/pkg/clustermanager"
)

// ProvisionNodePhase makes a node reachable and checks its prerequisites; its output is the node's Target
type ProvisionNodePhase struct {
	basePhase
	clusterManager *clustermanager.Manager
	provisioner    clustermanager.Provisioner
	node           clustermanager.Node
}

// NewProvisionNodePhase returns an instance of *ProvisionNodePhase
func NewProvisionNodePhase(manager *clustermanager.Manager, provisioner clustermanager.Provisioner, node clustermanager.Node) Phase {
	return &ProvisionNodePhase{
		basePhase:      basePhase{name: InstanceName(KindProvision, node.Name), kind: KindProvision, node: node.Name},
		clusterManager: manager,
		provisioner:    provisioner,
		node:           node,
	}
}

// Run runs the phase
func (phase *ProvisionNodePhase) Run(ctx context.Context, in Inputs) (any, error) {
	var target clustermanager.Target
	result := phase.clusterManager.Runner().Execute(ctx, KindProvision, phase.node.Name, func(ctx context.Context) error {
		var err error
		target, err = phase.provisioner.Provision(ctx, phase.node)
		return err
	})
	if result.Err != nil {
		return nil, result.Err
	}

	if err := phase.clusterManager.CheckPrerequisites(ctx, target); err != nil {
		return nil, err
	}
	return target, nil
}

// DeprovisionNodePhase releases the machine of a node after it was uninstalled
type DeprovisionNodePhase struct {
	basePhase
	clusterManager *clustermanager.Manager
	provisioner    clustermanager.Provisioner
	node           clustermanager.Node
}

// NewDeprovisionNodePhase returns an instance of *DeprovisionNodePhase. An
// empty uninstallPhase releases the machine without waiting for an uninstall.
func NewDeprovisionNodePhase(manager *clustermanager.Manager, provisioner clustermanager.Provisioner, node clustermanager.Node, uninstallPhase string) Phase {
	var dependsOn []string
	if uninstallPhase != "" {
		dependsOn = []string{uninstallPhase}
	}
	return &DeprovisionNodePhase{
		basePhase: basePhase{
			name:      InstanceName(KindDeprovision, node.Name),
			kind:      KindDeprovision,
			node:      node.Name,
			dependsOn: dependsOn,
		},
		clusterManager: manager,
		provisioner:    provisioner,
		node:           node,
	}
}

// Run runs the phase
func (phase *DeprovisionNodePhase) Run(ctx context.Context, in Inputs) (any, error) {
	result := phase.clusterManager.Runner().Execute(ctx, KindDeprovision, phase.node.Name, func(ctx context.Context) error {
		return phase.provisioner.Deprovision(ctx, phase.node)
	})
	return nil, result.Err
}

// ProvisionGraph builds a graph of independent provision phases, one per node
func ProvisionGraph(manager *clustermanager.Manager, provisioner clustermanager.Provisioner, nodes []clustermanager.Node, options GraphOptions) *Graph {
	graph := NewGraph(options)
	for _, node := range nodes {
		graph.AddPhase(NewProvisionNodePhase(manager, provisioner, node))
	}
	return graph
}

// DeprovisionGraph builds a graph of independent deprovision phases, one per
// node, without uninstalling k3s first. It serves machines that cannot be
// reached any more.
func DeprovisionGraph(manager *clustermanager.Manager, provisioner clustermanager.Provisioner, nodes []clustermanager.Node, options GraphOptions) *Graph {
	graph := NewGraph(options)
	for _, node := range nodes {
		graph.AddPhase(NewDeprovisionNodePhase(manager, provisioner, node, ""))
	}
	return graph
}

// Targets collects the targets of the succeeded provision phases, in node order
func Targets(report *Report, nodes []clustermanager.Node) ([]clustermanager.Target, error) {
	targets := make([]clustermanager.Target, 0, len(nodes))
	in := Inputs(report.outputs)
	for _, node := range nodes {
		target, err := targetInput(in, InstanceName(KindProvision, node.Name))
		if err != nil {
			return nil, err
		}
		targets = append(targets, target)
	}
	return targets, nil
}
