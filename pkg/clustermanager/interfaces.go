package clustermanager

import (
	"context"
)

// NodeCommunicator is the remote-shell capability used to run commands on nodes
type NodeCommunicator interface {
	// RunCmd runs a command on the target and returns its standard output.
	// Connection failures are returned as *ConnectionError, non-zero exits as *CommandError.
	RunCmd(ctx context.Context, target Target, command string) (Secret, error)
}

// EventService receives the event stream of a bootstrap or teardown run
type EventService interface {
	AddEvent(event Event)
}

// Provisioner makes nodes reachable over the remote shell
type Provisioner interface {
	// Provision returns a target that is reachable before any phase runs on the node.
	Provision(ctx context.Context, node Node) (Target, error)
	// Deprovision releases the machine behind node. Releasing an absent machine is not an error.
	Deprovision(ctx context.Context, node Node) error
}
