package phases

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/xetys/kubefleet/pkg/clustermanager"
)

// DefaultMaxParallel bounds the number of phases running at the same time
const DefaultMaxParallel = 5

// ErrInvalidGraph is returned for graphs with duplicate names, unknown dependencies or cycles
var ErrInvalidGraph = errors.New("invalid phase graph")

// GraphOptions configure a Graph
type GraphOptions struct {
	MaxParallel  int
	EventService clustermanager.EventService
	// Now defaults to time.Now
	Now func() time.Time
}

// Graph is a set of phases with dependencies
type Graph struct {
	phases  []Phase
	byName  map[string]Phase
	options GraphOptions
}

// NewGraph creates an empty graph
func NewGraph(options GraphOptions) *Graph {
	if options.MaxParallel < 1 {
		options.MaxParallel = DefaultMaxParallel
	}
	if options.EventService == nil {
		options.EventService = clustermanager.NopEventService{}
	}
	if options.Now == nil {
		options.Now = time.Now
	}
	return &Graph{
		byName:  make(map[string]Phase),
		options: options,
	}
}

// AddPhase adds a new phase to the graph
func (graph *Graph) AddPhase(phase Phase) {
	graph.phases = append(graph.phases, phase)
	if _, exists := graph.byName[phase.Name()]; !exists {
		graph.byName[phase.Name()] = phase
	}
}

// Phases returns the phases in insertion order
func (graph *Graph) Phases() []Phase {
	out := make([]Phase, len(graph.phases))
	copy(out, graph.phases)
	return out
}

// Validate checks names, dependencies and acyclicity
func (graph *Graph) Validate() error {
	if len(graph.byName) != len(graph.phases) {
		seen := map[string]bool{}
		for _, phase := range graph.phases {
			if seen[phase.Name()] {
				return fmt.Errorf("%w: duplicate phase %s", ErrInvalidGraph, phase.Name())
			}
			seen[phase.Name()] = true
		}
	}

	indegree := make(map[string]int, len(graph.phases))
	dependents := make(map[string][]string, len(graph.phases))
	for _, phase := range graph.phases {
		for _, dep := range phase.DependsOn() {
			if _, ok := graph.byName[dep]; !ok {
				return fmt.Errorf("%w: %s depends on unknown phase %s", ErrInvalidGraph, phase.Name(), dep)
			}
			indegree[phase.Name()]++
			dependents[dep] = append(dependents[dep], phase.Name())
		}
	}

	var queue []string
	for _, phase := range graph.phases {
		if indegree[phase.Name()] == 0 {
			queue = append(queue, phase.Name())
		}
	}
	visited := 0
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		visited++
		for _, dependent := range dependents[name] {
			indegree[dependent]--
			if indegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}
	if visited != len(graph.phases) {
		return fmt.Errorf("%w: dependency cycle", ErrInvalidGraph)
	}

	return nil
}

type completion struct {
	name     string
	output   any
	err      error
	finished time.Time
}

// Run executes the graph. A phase is dispatched once all its predecessors
// succeeded; phases whose predecessor did not succeed are skipped. Once ctx is
// done no further phase is dispatched, phases already running complete on a
// context detached from ctx. The returned error is only set for invalid graphs.
func (graph *Graph) Run(ctx context.Context) (*Report, error) {
	if err := graph.Validate(); err != nil {
		return nil, err
	}

	report := newReport(uuid.NewString(), graph.options.Now())
	results := make(map[string]*PhaseResult, len(graph.phases))
	for _, phase := range graph.phases {
		results[phase.Name()] = &PhaseResult{
			Phase:  phase.Name(),
			Kind:   phase.Kind(),
			Node:   phase.Node(),
			Status: StatusPending,
		}
	}

	completed := make(chan completion, len(graph.phases))
	detached := context.WithoutCancel(ctx)
	var group errgroup.Group
	group.SetLimit(graph.options.MaxParallel)

	remaining := len(graph.phases)
	running := 0
	done := ctx.Done()

	for remaining > 0 {
		for progress := true; progress; {
			progress = false
			for _, phase := range graph.phases {
				result := results[phase.Name()]
				if result.Status != StatusPending {
					continue
				}

				if ctx.Err() != nil {
					graph.finish(result, StatusCancelled, "", ctx.Err())
					remaining--
					progress = true
					continue
				}

				ready, blocked := graph.readiness(phase, results)
				if blocked != nil {
					cause := blocked.Phase
					if blocked.Cause != "" {
						cause = blocked.Cause
					}
					status := StatusSkipped
					if blocked.Status == StatusCancelled {
						status = StatusCancelled
					}
					graph.finish(result, status, cause, fmt.Errorf("predecessor %s did not succeed", cause))
					remaining--
					progress = true
					continue
				}
				if !ready || running >= graph.options.MaxParallel {
					continue
				}

				in := make(Inputs, len(phase.DependsOn()))
				for _, dep := range phase.DependsOn() {
					in[dep] = report.outputs[dep]
				}

				// Go only waits for a goroutine that already reported its completion
				phase := phase
				group.Go(func() error {
					output, err := phase.Run(detached, in)
					completed <- completion{name: phase.Name(), output: output, err: err, finished: graph.options.Now()}
					return nil
				})

				result.Status = StatusRunning
				result.Started = graph.options.Now()
				running++
				graph.emit(clustermanager.EventPhaseStarted, result, "started", nil)
			}
		}

		if remaining == 0 || running == 0 {
			break
		}

		select {
		case c := <-completed:
			running--
			remaining--
			result := results[c.name]
			result.Finished = c.finished
			if c.err != nil {
				result.Status = StatusFailed
				result.Err = c.err
				graph.emit(clustermanager.EventPhaseFailed, result, "failed", c.err)
			} else {
				result.Status = StatusSucceeded
				report.outputs[c.name] = c.output
				graph.emit(clustermanager.EventPhaseSucceeded, result, "succeeded", nil)
			}
		case <-done:
			// stop waking up on ctx, pending phases are cancelled on the next pass
			done = nil
		}
	}

	_ = group.Wait()

	for _, phase := range graph.phases {
		report.Results = append(report.Results, *results[phase.Name()])
	}
	report.Finished = graph.options.Now()
	return report, nil
}

// readiness reports whether all predecessors succeeded, or the first one that will never succeed
func (graph *Graph) readiness(phase Phase, results map[string]*PhaseResult) (bool, *PhaseResult) {
	ready := true
	for _, dep := range phase.DependsOn() {
		switch result := results[dep]; result.Status {
		case StatusSucceeded:
		case StatusFailed, StatusSkipped, StatusCancelled:
			return false, result
		default:
			ready = false
		}
	}
	return ready, nil
}

func (graph *Graph) finish(result *PhaseResult, status Status, cause string, err error) {
	result.Status = status
	result.Cause = cause
	result.Err = err
	result.Finished = graph.options.Now()

	eventType := clustermanager.EventPhaseSkipped
	message := "skipped, " + cause + " did not succeed"
	if status == StatusCancelled {
		eventType = clustermanager.EventPhaseCancelled
		message = "cancelled"
	}
	graph.emit(eventType, result, message, err)
}

func (graph *Graph) emit(eventType clustermanager.EventType, result *PhaseResult, message string, err error) {
	graph.options.EventService.AddEvent(clustermanager.Event{
		Type:      eventType,
		Phase:     result.Phase,
		Node:      result.Node,
		Message:   message,
		Timestamp: graph.options.Now(),
		Err:       err,
	})
}
