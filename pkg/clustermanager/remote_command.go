package clustermanager

import (
	"context"
	"strings"
)

// CommandRunner executes RemoteCommands and reports each one as a step event.
// Command text is never reported, only the event name.
type CommandRunner struct {
	Communicator NodeCommunicator
	Events       EventService
}

// Run executes the create command of cmd
func (runner CommandRunner) Run(ctx context.Context, phase string, target Target, cmd RemoteCommand) (Secret, error) {
	runner.emit(Event{Type: EventStep, Phase: phase, Node: target.Node.Name, Message: cmd.EventName})
	return runner.Communicator.RunCmd(ctx, target, cmd.Create)
}

// Rollback executes the delete command of cmd, whether or not Run succeeded.
// A command without delete is a no-op.
func (runner CommandRunner) Rollback(ctx context.Context, phase string, target Target, cmd RemoteCommand) error {
	if strings.TrimSpace(cmd.Delete) == "" {
		return nil
	}
	runner.emit(Event{Type: EventRollback, Phase: phase, Node: target.Node.Name, Message: "rollback: " + cmd.EventName})
	_, err := runner.Communicator.RunCmd(ctx, target, cmd.Delete)
	if err != nil {
		runner.emit(Event{Type: EventRollback, Phase: phase, Node: target.Node.Name, Message: "rollback failed", Err: err})
	}
	return err
}

func (runner CommandRunner) emit(event Event) {
	if runner.Events != nil {
		runner.Events.AddEvent(event)
	}
}
