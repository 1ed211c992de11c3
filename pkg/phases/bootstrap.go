package phases

import (
	"context"
	"fmt"

	"github.com/xetys/kubefleet/pkg/clustermanager"
)

// BootstrapGraph builds the bootstrap graph of a provisioned node set:
//
//	primary-init -> token-fetch -> secondary-join/<node>
//	                            -> worker-join/<node>
//	primary-init -> credential-retrieval
func BootstrapGraph(manager *clustermanager.Manager, targets []clustermanager.Target, options GraphOptions) (*Graph, error) {
	primary, err := primaryTarget(targets)
	if err != nil {
		return nil, err
	}

	graph := NewGraph(options)
	graph.AddPhase(NewPrimaryInitPhase(manager, primary))
	graph.AddPhase(NewTokenFetchPhase(manager, primary))
	for _, target := range targets {
		if target.Node.IsControlPlane() && !target.Node.IsPrimary() {
			graph.AddPhase(NewSecondaryJoinPhase(manager, target, primary.Node))
		}
	}
	for _, target := range targets {
		if !target.Node.IsControlPlane() {
			graph.AddPhase(NewWorkerJoinPhase(manager, target, primary.Node))
		}
	}
	graph.AddPhase(NewCredentialRetrievalPhase(manager, primary))

	return graph, nil
}

// Credential returns the credential retrieved by a bootstrap run
func Credential(report *Report) (clustermanager.AccessCredential, error) {
	output, ok := report.Output(KindCredentialRetrieval)
	if !ok {
		return clustermanager.AccessCredential{}, fmt.Errorf("%s did not succeed", KindCredentialRetrieval)
	}
	credential, ok := output.(clustermanager.AccessCredential)
	if !ok {
		return clustermanager.AccessCredential{}, fmt.Errorf("output of %s is %T", KindCredentialRetrieval, output)
	}
	return credential, nil
}

// Bootstrap provisions the nodes, then runs the bootstrap graph on the reachable ones.
// The provision report is returned as well; when a node could not be provisioned
// the bootstrap graph is not run.
func Bootstrap(ctx context.Context, manager *clustermanager.Manager, provisioner clustermanager.Provisioner, nodes []clustermanager.Node, options GraphOptions) (provision *Report, bootstrap *Report, err error) {
	if _, err := clustermanager.Primary(nodes); err != nil {
		return nil, nil, err
	}

	provision, err = ProvisionGraph(manager, provisioner, nodes, options).Run(ctx)
	if err != nil {
		return nil, nil, err
	}
	if !provision.Succeeded() {
		return provision, nil, nil
	}

	targets, err := Targets(provision, nodes)
	if err != nil {
		return provision, nil, err
	}

	graph, err := BootstrapGraph(manager, targets, options)
	if err != nil {
		return provision, nil, err
	}
	bootstrap, err = graph.Run(ctx)
	return provision, bootstrap, err
}

func primaryTarget(targets []clustermanager.Target) (clustermanager.Target, error) {
	for _, target := range targets {
		if target.Node.IsPrimary() {
			return target, nil
		}
	}
	return clustermanager.Target{}, clustermanager.ErrNoPrimary
}
