package phases

import (
	"context"
	"errors"

	"github.com/xetys/kubefleet/pkg/clustermanager"
)

// ErrPrimaryRemoval is returned when the primary is part of a shrink
var ErrPrimaryRemoval = errors.New("the primary can only be removed with the whole cluster")

// JoinGraph builds the graph joining additional nodes to a running cluster.
// The token is read from the primary, which is already initialized:
//
//	token-fetch -> secondary-join/<node>
//	            -> worker-join/<node>
func JoinGraph(manager *clustermanager.Manager, primary clustermanager.Target, targets []clustermanager.Target, options GraphOptions) (*Graph, error) {
	if !primary.Node.IsPrimary() {
		return nil, clustermanager.ErrNoPrimary
	}

	fetch := NewTokenFetchPhase(manager, primary).(*TokenFetchPhase)
	fetch.dependsOn = nil

	graph := NewGraph(options)
	graph.AddPhase(fetch)
	for _, target := range targets {
		switch {
		case target.Node.IsPrimary():
			continue
		case target.Node.IsControlPlane():
			graph.AddPhase(NewSecondaryJoinPhase(manager, target, primary.Node))
		default:
			graph.AddPhase(NewWorkerJoinPhase(manager, target, primary.Node))
		}
	}
	return graph, nil
}

// ScaleOut provisions nodes and joins them to the cluster of primary. Like
// Bootstrap, nothing is joined when a node could not be provisioned.
func ScaleOut(ctx context.Context, manager *clustermanager.Manager, provisioner clustermanager.Provisioner, primary clustermanager.Target, nodes []clustermanager.Node, options GraphOptions) (provision *Report, join *Report, err error) {
	provision, err = ProvisionGraph(manager, provisioner, nodes, options).Run(ctx)
	if err != nil || !provision.Succeeded() {
		return provision, nil, err
	}

	targets, err := Targets(provision, nodes)
	if err != nil {
		return provision, nil, err
	}

	graph, err := JoinGraph(manager, primary, targets, options)
	if err != nil {
		return provision, nil, err
	}
	join, err = graph.Run(ctx)
	return provision, join, err
}

// ShrinkGraph builds the graph removing nodes from a running cluster: each node
// is uninstalled, then deleted from the cluster's node list and released.
func ShrinkGraph(manager *clustermanager.Manager, provisioner clustermanager.Provisioner, primary clustermanager.Target, targets []clustermanager.Target, options GraphOptions) (*Graph, error) {
	graph := NewGraph(options)
	for _, target := range targets {
		if target.Node.IsPrimary() {
			return nil, ErrPrimaryRemoval
		}
		uninstall := NewUninstallPhase(manager, target)
		graph.AddPhase(uninstall)
		graph.AddPhase(NewDeleteNodePhase(manager, primary, target.Node, uninstall.Name()))
		if provisioner != nil {
			graph.AddPhase(NewDeprovisionNodePhase(manager, provisioner, target.Node, uninstall.Name()))
		}
	}
	return graph, nil
}

// DeleteNodePhase removes the node object of an uninstalled node via the primary
type DeleteNodePhase struct {
	basePhase
	clusterManager *clustermanager.Manager
	primary        clustermanager.Target
}

// NewDeleteNodePhase returns an instance of *DeleteNodePhase
func NewDeleteNodePhase(manager *clustermanager.Manager, primary clustermanager.Target, node clustermanager.Node, uninstallPhase string) Phase {
	return &DeleteNodePhase{
		basePhase: basePhase{
			name:      InstanceName(KindDeleteNode, node.Name),
			kind:      KindDeleteNode,
			node:      node.Name,
			dependsOn: []string{uninstallPhase},
		},
		clusterManager: manager,
		primary:        primary,
	}
}

// Run runs the phase
func (phase *DeleteNodePhase) Run(ctx context.Context, in Inputs) (any, error) {
	_, err := phase.clusterManager.Kubectl(ctx, KindDeleteNode, phase.primary, "delete node",
		"delete", "node", phase.node, "--ignore-not-found")
	return nil, err
}
