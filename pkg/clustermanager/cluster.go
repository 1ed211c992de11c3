package clustermanager

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/xetys/kubefleet/pkg/retry"
)

// Phase kinds of the bootstrap and teardown graphs
const (
	PhasePrimaryInit         = "primary-init"
	PhaseTokenFetch          = "token-fetch"
	PhaseSecondaryJoin       = "secondary-join"
	PhaseWorkerJoin          = "worker-join"
	PhaseCredentialRetrieval = "credential-retrieval"
	PhaseWorkerUninstall     = "worker-uninstall"
	PhaseSecondaryUninstall  = "secondary-uninstall"
	PhasePrimaryUninstall    = "primary-uninstall"
	PhasePrerequisites       = "prerequisites"
)

var (
	// ErrDependentsPresent is returned when the primary is torn down before the nodes joined to it
	ErrDependentsPresent = errors.New("dependent nodes are still installed")
	// ErrNoPrimary is returned for node sets without a first control-plane node
	ErrNoPrimary = errors.New("no primary control-plane node")
)

// ManagerOptions configure a Manager
type ManagerOptions struct {
	K3s K3sConfig
	// RollbackOnFailure uninstalls a node best-effort after its join failed terminally
	RollbackOnFailure bool
	// ClusterName names the kubeconfig context of the retrieved credential
	ClusterName string
}

// Manager is the structure used to run the per-node operations of a cluster
// bootstrap. Every remote operation goes through the retry runner.
type Manager struct {
	commands     CommandRunner
	runner       *retry.Runner
	eventService EventService
	options      ManagerOptions
}

// NewClusterManager creates a new manager
func NewClusterManager(communicator NodeCommunicator, runner *retry.Runner, eventService EventService, options ManagerOptions) *Manager {
	if eventService == nil {
		eventService = NopEventService{}
	}
	if runner == nil {
		runner = retry.NewRunner()
	}
	if options.ClusterName == "" {
		options.ClusterName = DefaultClusterName
	}
	return &Manager{
		commands:     CommandRunner{Communicator: communicator, Events: eventService},
		runner:       runner,
		eventService: eventService,
		options:      options,
	}
}

// Runner returns the retry runner shared by all operations
func (manager *Manager) Runner() *retry.Runner {
	return manager.runner
}

// Options returns the manager options
func (manager *Manager) Options() ManagerOptions {
	return manager.options
}

func (manager *Manager) run(ctx context.Context, phase string, target Target, cmd RemoteCommand) (Secret, error) {
	var output Secret
	result := manager.runner.Execute(ctx, phase, target.Node.Name, func(ctx context.Context) error {
		out, err := manager.commands.Run(ctx, phase, target, cmd)
		if err != nil {
			return err
		}
		output = out
		return nil
	})
	if result.Err != nil {
		return "", result.Err
	}
	return output, nil
}

// CheckPrerequisites verifies the node can run the install script
func (manager *Manager) CheckPrerequisites(ctx context.Context, target Target) error {
	_, err := manager.run(ctx, PhasePrerequisites, target, manager.options.K3s.PrerequisitesCommand())
	return err
}

// InitPrimary installs the first k3s server, which initializes the cluster datastore
func (manager *Manager) InitPrimary(ctx context.Context, target Target) error {
	if !target.Node.IsPrimary() {
		return retry.NewFailure(PhasePrimaryInit, target.Node.Name, &ValidationError{"node", target.Node.Name + " is not the primary control-plane node"})
	}
	_, err := manager.run(ctx, PhasePrimaryInit, target, manager.options.K3s.PrimaryInitCommand(target.Node, target.Host))
	return err
}

// FetchJoinToken reads the join token from the primary
func (manager *Manager) FetchJoinToken(ctx context.Context, primary Target) (Secret, error) {
	var token Secret
	result := manager.runner.Execute(ctx, PhaseTokenFetch, primary.Node.Name, func(ctx context.Context) error {
		out, err := manager.commands.Run(ctx, PhaseTokenFetch, primary, manager.options.K3s.TokenFetchCommand())
		if err != nil {
			return err
		}
		if out.IsEmpty() {
			return errors.New("join token is empty")
		}
		token = out.TrimSpace()
		return nil
	})
	if result.Err != nil {
		return "", result.Err
	}
	return token, nil
}

// JoinControlPlane joins an additional control-plane node
func (manager *Manager) JoinControlPlane(ctx context.Context, target Target, primary Node, token Secret) error {
	if !target.Node.IsControlPlane() || target.Node.IsPrimary() {
		return retry.NewFailure(PhaseSecondaryJoin, target.Node.Name, &ValidationError{"node", target.Node.Name + " is not a secondary control-plane node"})
	}
	return manager.join(ctx, PhaseSecondaryJoin, target, token, manager.options.K3s.SecondaryJoinCommand(target.Node, primary, token))
}

// JoinWorker joins a worker node as agent
func (manager *Manager) JoinWorker(ctx context.Context, target Target, primary Node, token Secret) error {
	if target.Node.IsControlPlane() {
		return retry.NewFailure(PhaseWorkerJoin, target.Node.Name, &ValidationError{"node", target.Node.Name + " is not a worker node"})
	}
	return manager.join(ctx, PhaseWorkerJoin, target, token, manager.options.K3s.WorkerJoinCommand(target.Node, primary, token))
}

func (manager *Manager) join(ctx context.Context, phase string, target Target, token Secret, cmd RemoteCommand) error {
	if token.IsEmpty() {
		return retry.NewFailure(phase, target.Node.Name, &ValidationError{"token", "join token is empty"})
	}

	_, err := manager.run(ctx, phase, target, cmd)
	if err != nil && manager.options.RollbackOnFailure {
		// rollback errors are reported as events, the join error is what counts
		_ = manager.commands.Rollback(context.WithoutCancel(ctx), phase, target, cmd)
	}
	return err
}

// RetrieveCredential reads the kubeconfig of the primary and rewrites it for remote use
func (manager *Manager) RetrieveCredential(ctx context.Context, primary Target) (AccessCredential, error) {
	raw, err := manager.run(ctx, PhaseCredentialRetrieval, primary, manager.options.K3s.CredentialCommand())
	if err != nil {
		return AccessCredential{}, err
	}

	host := primary.Host
	if host == "" {
		host = primary.Node.IPv4
	}
	credential, err := NewAccessCredential(raw, manager.options.ClusterName, host)
	if err != nil {
		return AccessCredential{}, retry.NewFailure(PhaseCredentialRetrieval, primary.Node.Name, &ValidationError{"kubeconfig", err.Error()})
	}
	return credential, nil
}

// Uninstall removes k3s from a secondary control-plane or worker node
func (manager *Manager) Uninstall(ctx context.Context, target Target) error {
	if target.Node.IsPrimary() {
		return retry.NewFailure(PhasePrimaryUninstall, target.Node.Name, &ValidationError{"node", "use UninstallPrimary for the primary control-plane node"})
	}
	phase := PhaseWorkerUninstall
	if target.Node.IsControlPlane() {
		phase = PhaseSecondaryUninstall
	}
	_, err := manager.run(ctx, phase, target, manager.options.K3s.UninstallCommand(target.Node))
	return err
}

// UninstallPrimary removes k3s from the primary. It is rejected while dependents,
// nodes that joined via the primary and are not yet uninstalled, are present.
func (manager *Manager) UninstallPrimary(ctx context.Context, primary Target, dependents []Node) error {
	if !primary.Node.IsPrimary() {
		return ErrNoPrimary
	}
	if len(dependents) > 0 {
		names := make([]string, len(dependents))
		for i, node := range dependents {
			names[i] = node.Name
		}
		return errors.Wrapf(ErrDependentsPresent, "%s still has %s", primary.Node.Name, strings.Join(names, ", "))
	}
	_, err := manager.run(ctx, PhasePrimaryUninstall, primary, manager.options.K3s.UninstallCommand(primary.Node))
	return err
}

// Kubectl runs the bundled kubectl of the primary with the given arguments
func (manager *Manager) Kubectl(ctx context.Context, phase string, primary Target, eventName string, args ...string) (Secret, error) {
	return manager.run(ctx, phase, primary, RemoteCommand{
		EventName: eventName,
		Create:    manager.options.K3s.KubectlCommand(args...),
	})
}

// Primary returns the primary node of a node set
func Primary(nodes []Node) (Node, error) {
	for _, node := range nodes {
		if node.IsPrimary() {
			return node, nil
		}
	}
	return Node{}, ErrNoPrimary
}
