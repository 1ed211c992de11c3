// Package phases schedules the phases of a cluster bootstrap or teardown as a
// dependency graph. A phase runs once all of its predecessors succeeded and
// receives their outputs; a failed phase only skips its own dependents.
package phases

import (
	"context"
	"fmt"

	"github.com/xetys/kubefleet/pkg/clustermanager"
)

// Phase kinds
const (
	KindProvision           = "provision"
	KindPrimaryInit         = clustermanager.PhasePrimaryInit
	KindTokenFetch          = clustermanager.PhaseTokenFetch
	KindSecondaryJoin       = clustermanager.PhaseSecondaryJoin
	KindWorkerJoin          = clustermanager.PhaseWorkerJoin
	KindCredentialRetrieval = clustermanager.PhaseCredentialRetrieval
	KindWorkerUninstall     = clustermanager.PhaseWorkerUninstall
	KindSecondaryUninstall  = clustermanager.PhaseSecondaryUninstall
	KindPrimaryUninstall    = clustermanager.PhasePrimaryUninstall
	KindDeprovision         = "deprovision"
	KindDeleteNode          = "delete-node"
)

// Inputs holds the outputs of a phase's predecessors, keyed by phase name
type Inputs map[string]any

// Phase defines an interface for a generic phase
type Phase interface {
	// Name is unique within a graph
	Name() string
	Kind() string
	// Node is the node the phase runs on
	Node() string
	DependsOn() []string
	Run(ctx context.Context, in Inputs) (any, error)
}

// InstanceName returns the name of a per-node phase instance
func InstanceName(kind, node string) string {
	return fmt.Sprintf("%s/%s", kind, node)
}

type basePhase struct {
	name      string
	kind      string
	node      string
	dependsOn []string
}

func (phase basePhase) Name() string {
	return phase.name
}

func (phase basePhase) Kind() string {
	return phase.kind
}

func (phase basePhase) Node() string {
	return phase.node
}

func (phase basePhase) DependsOn() []string {
	return phase.dependsOn
}

// secretInput reads a token produced by a predecessor
func secretInput(in Inputs, name string) (clustermanager.Secret, error) {
	value, ok := in[name]
	if !ok {
		return "", fmt.Errorf("missing output of %s", name)
	}
	token, ok := value.(clustermanager.Secret)
	if !ok {
		return "", fmt.Errorf("output of %s is %T, not a secret", name, value)
	}
	return token, nil
}

// targetInput reads a target produced by a provision phase
func targetInput(in Inputs, name string) (clustermanager.Target, error) {
	value, ok := in[name]
	if !ok {
		return clustermanager.Target{}, fmt.Errorf("missing output of %s", name)
	}
	target, ok := value.(clustermanager.Target)
	if !ok {
		return clustermanager.Target{}, fmt.Errorf("output of %s is %T, not a target", name, value)
	}
	return target, nil
}
