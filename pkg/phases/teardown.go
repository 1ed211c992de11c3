package phases

import (
	"context"

	"github.com/xetys/kubefleet/pkg/clustermanager"
)

// UninstallPhase removes k3s from a secondary control-plane or worker node
type UninstallPhase struct {
	basePhase
	clusterManager *clustermanager.Manager
	target         clustermanager.Target
}

// NewUninstallPhase returns an instance of *UninstallPhase
func NewUninstallPhase(manager *clustermanager.Manager, target clustermanager.Target) Phase {
	kind := KindWorkerUninstall
	if target.Node.IsControlPlane() {
		kind = KindSecondaryUninstall
	}
	return &UninstallPhase{
		basePhase:      basePhase{name: InstanceName(kind, target.Node.Name), kind: kind, node: target.Node.Name},
		clusterManager: manager,
		target:         target,
	}
}

// Run runs the phase
func (phase *UninstallPhase) Run(ctx context.Context, in Inputs) (any, error) {
	return nil, phase.clusterManager.Uninstall(ctx, phase.target)
}

// PrimaryUninstallPhase removes k3s from the primary once every other node is uninstalled
type PrimaryUninstallPhase struct {
	basePhase
	clusterManager *clustermanager.Manager
	target         clustermanager.Target
}

// NewPrimaryUninstallPhase returns an instance of *PrimaryUninstallPhase
func NewPrimaryUninstallPhase(manager *clustermanager.Manager, primary clustermanager.Target, dependents []string) Phase {
	return &PrimaryUninstallPhase{
		basePhase: basePhase{
			name:      KindPrimaryUninstall,
			kind:      KindPrimaryUninstall,
			node:      primary.Node.Name,
			dependsOn: dependents,
		},
		clusterManager: manager,
		target:         primary,
	}
}

// Run runs the phase. It is only dispatched after all dependents succeeded,
// so no dependent is left.
func (phase *PrimaryUninstallPhase) Run(ctx context.Context, in Inputs) (any, error) {
	return nil, phase.clusterManager.UninstallPrimary(ctx, phase.target, nil)
}

// TeardownGraph builds the teardown graph: every worker and secondary is
// uninstalled independently, the primary last. When a provisioner is given,
// each machine is released after its own uninstall succeeded.
func TeardownGraph(manager *clustermanager.Manager, provisioner clustermanager.Provisioner, targets []clustermanager.Target, options GraphOptions) (*Graph, error) {
	primary, err := primaryTarget(targets)
	if err != nil {
		return nil, err
	}

	graph := NewGraph(options)
	var dependents []string
	for _, target := range targets {
		if target.Node.IsPrimary() {
			continue
		}
		phase := NewUninstallPhase(manager, target)
		graph.AddPhase(phase)
		dependents = append(dependents, phase.Name())
		if provisioner != nil {
			graph.AddPhase(NewDeprovisionNodePhase(manager, provisioner, target.Node, phase.Name()))
		}
	}

	graph.AddPhase(NewPrimaryUninstallPhase(manager, primary, dependents))
	if provisioner != nil {
		graph.AddPhase(NewDeprovisionNodePhase(manager, provisioner, primary.Node, KindPrimaryUninstall))
	}

	return graph, nil
}
