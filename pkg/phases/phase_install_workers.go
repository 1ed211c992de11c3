package phases

import (
	"context"

	"github.com/xetys/kubefleet/pkg/clustermanager"
)

// WorkerJoinPhase joins a worker node. It only waits for the token, not for
// the secondary control-plane joins.
type WorkerJoinPhase struct {
	basePhase
	clusterManager *clustermanager.Manager
	target         clustermanager.Target
	primary        clustermanager.Node
}

// NewWorkerJoinPhase returns an instance of *WorkerJoinPhase
func NewWorkerJoinPhase(manager *clustermanager.Manager, target clustermanager.Target, primary clustermanager.Node) Phase {
	return &WorkerJoinPhase{
		basePhase: basePhase{
			name:      InstanceName(KindWorkerJoin, target.Node.Name),
			kind:      KindWorkerJoin,
			node:      target.Node.Name,
			dependsOn: []string{KindTokenFetch},
		},
		clusterManager: manager,
		target:         target,
		primary:        primary,
	}
}

// Run runs the phase
func (phase *WorkerJoinPhase) Run(ctx context.Context, in Inputs) (any, error) {
	token, err := secretInput(in, KindTokenFetch)
	if err != nil {
		return nil, err
	}
	return nil, phase.clusterManager.JoinWorker(ctx, phase.target, phase.primary, token)
}
