package phases

import (
	"context"

	"github.com/xetys/kubefleet/pkg/clustermanager"
)

// PrimaryInitPhase initializes the cluster on the primary control-plane node
type PrimaryInitPhase struct {
	basePhase
	clusterManager *clustermanager.Manager
	target         clustermanager.Target
}

// NewPrimaryInitPhase returns an instance of *PrimaryInitPhase
func NewPrimaryInitPhase(manager *clustermanager.Manager, primary clustermanager.Target) Phase {
	return &PrimaryInitPhase{
		basePhase:      basePhase{name: KindPrimaryInit, kind: KindPrimaryInit, node: primary.Node.Name},
		clusterManager: manager,
		target:         primary,
	}
}

// Run runs the phase
func (phase *PrimaryInitPhase) Run(ctx context.Context, in Inputs) (any, error) {
	return nil, phase.clusterManager.InitPrimary(ctx, phase.target)
}

// TokenFetchPhase reads the join token; its output is the token
type TokenFetchPhase struct {
	basePhase
	clusterManager *clustermanager.Manager
	target         clustermanager.Target
}

// NewTokenFetchPhase returns an instance of *TokenFetchPhase
func NewTokenFetchPhase(manager *clustermanager.Manager, primary clustermanager.Target) Phase {
	return &TokenFetchPhase{
		basePhase: basePhase{
			name:      KindTokenFetch,
			kind:      KindTokenFetch,
			node:      primary.Node.Name,
			dependsOn: []string{KindPrimaryInit},
		},
		clusterManager: manager,
		target:         primary,
	}
}

// Run runs the phase
func (phase *TokenFetchPhase) Run(ctx context.Context, in Inputs) (any, error) {
	token, err := phase.clusterManager.FetchJoinToken(ctx, phase.target)
	if err != nil {
		return nil, err
	}
	return token, nil
}

// SecondaryJoinPhase joins an additional control-plane node with the fetched token
type SecondaryJoinPhase struct {
	basePhase
	clusterManager *clustermanager.Manager
	target         clustermanager.Target
	primary        clustermanager.Node
}

// NewSecondaryJoinPhase returns an instance of *SecondaryJoinPhase
func NewSecondaryJoinPhase(manager *clustermanager.Manager, target clustermanager.Target, primary clustermanager.Node) Phase {
	return &SecondaryJoinPhase{
		basePhase: basePhase{
			name:      InstanceName(KindSecondaryJoin, target.Node.Name),
			kind:      KindSecondaryJoin,
			node:      target.Node.Name,
			dependsOn: []string{KindTokenFetch},
		},
		clusterManager: manager,
		target:         target,
		primary:        primary,
	}
}

// Run runs the phase
func (phase *SecondaryJoinPhase) Run(ctx context.Context, in Inputs) (any, error) {
	token, err := secretInput(in, KindTokenFetch)
	if err != nil {
		return nil, err
	}
	return nil, phase.clusterManager.JoinControlPlane(ctx, phase.target, phase.primary, token)
}

// CredentialRetrievalPhase fetches the admin kubeconfig; its output is the AccessCredential
type CredentialRetrievalPhase struct {
	basePhase
	clusterManager *clustermanager.Manager
	target         clustermanager.Target
}

// NewCredentialRetrievalPhase returns an instance of *CredentialRetrievalPhase
func NewCredentialRetrievalPhase(manager *clustermanager.Manager, primary clustermanager.Target) Phase {
	return &CredentialRetrievalPhase{
		basePhase: basePhase{
			name:      KindCredentialRetrieval,
			kind:      KindCredentialRetrieval,
			node:      primary.Node.Name,
			dependsOn: []string{KindPrimaryInit},
		},
		clusterManager: manager,
		target:         primary,
	}
}

// Run runs the phase
func (phase *CredentialRetrievalPhase) Run(ctx context.Context, in Inputs) (any, error) {
	credential, err := phase.clusterManager.RetrieveCredential(ctx, phase.target)
	if err != nil {
		return nil, err
	}
	return credential, nil
}
