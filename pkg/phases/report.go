package phases

import (
	"errors"
	"fmt"
	"time"

	"github.com/xetys/kubefleet/pkg/retry"
)

// Status of a phase instance
type Status string

const (
	// StatusPending is a phase that has not been dispatched yet
	StatusPending Status = "pending"
	// StatusRunning is a phase that is executing
	StatusRunning Status = "running"
	// StatusSucceeded is a phase that completed without error
	StatusSucceeded Status = "succeeded"
	// StatusFailed is a phase that returned an error
	StatusFailed Status = "failed"
	// StatusSkipped is a phase that never ran because a dependency failed
	StatusSkipped Status = "skipped"
	// StatusCancelled is a phase stopped or never started because the run was cancelled
	StatusCancelled Status = "cancelled"
)

// PhaseResult is the outcome of one phase instance
type PhaseResult struct {
	Phase  string
	Kind   string
	Node   string
	Status Status
	// Cause names the failed phase that led to a skip
	Cause    string
	Err      error
	Started  time.Time
	Finished time.Time
}

// Duration is the wall time the phase ran
func (result PhaseResult) Duration() time.Duration {
	if result.Started.IsZero() || result.Finished.IsZero() {
		return 0
	}
	return result.Finished.Sub(result.Started)
}

// Report holds the results of every phase instance of a run, in graph order
type Report struct {
	RunID    string
	Started  time.Time
	Finished time.Time
	Results  []PhaseResult

	outputs map[string]any
}

func newReport(runID string, started time.Time) *Report {
	return &Report{
		RunID:   runID,
		Started: started,
		outputs: make(map[string]any),
	}
}

// Bootstrapped reports whether every phase instance succeeded
func (report *Report) Bootstrapped() bool {
	for _, result := range report.Results {
		if result.Status != StatusSucceeded {
			return false
		}
	}
	return true
}

// Succeeded is an alias of Bootstrapped for teardown runs
func (report *Report) Succeeded() bool {
	return report.Bootstrapped()
}

// Result returns the result of the named phase
func (report *Report) Result(name string) (PhaseResult, bool) {
	for _, result := range report.Results {
		if result.Phase == name {
			return result, true
		}
	}
	return PhaseResult{}, false
}

// Output returns the output of a succeeded phase
func (report *Report) Output(name string) (any, bool) {
	output, ok := report.outputs[name]
	return output, ok
}

// WithStatus returns the results with the given status
func (report *Report) WithStatus(status Status) []PhaseResult {
	var out []PhaseResult
	for _, result := range report.Results {
		if result.Status == status {
			out = append(out, result)
		}
	}
	return out
}

// Count returns the number of results with the given status
func (report *Report) Count(status Status) int {
	return len(report.WithStatus(status))
}

// Err joins the errors of all failed phases
func (report *Report) Err() error {
	var errs []error
	for _, result := range report.WithStatus(StatusFailed) {
		errs = append(errs, result.Err)
	}
	return errors.Join(errs...)
}

// Summary is the serializable form of a report
type Summary struct {
	RunID     string         `yaml:"runID" json:"run_id"`
	Succeeded bool           `yaml:"succeeded" json:"succeeded"`
	Duration  string         `yaml:"duration" json:"duration"`
	Phases    []PhaseSummary `yaml:"phases" json:"phases"`
}

// PhaseSummary is the serializable form of a PhaseResult
type PhaseSummary struct {
	Phase       string   `yaml:"phase" json:"phase"`
	Node        string   `yaml:"node,omitempty" json:"node,omitempty"`
	Status      Status   `yaml:"status" json:"status"`
	Duration    string   `yaml:"duration,omitempty" json:"duration,omitempty"`
	Cause       string   `yaml:"cause,omitempty" json:"cause,omitempty"`
	Error       string   `yaml:"error,omitempty" json:"error,omitempty"`
	Category    string   `yaml:"category,omitempty" json:"category,omitempty"`
	Remediation []string `yaml:"remediation,omitempty" json:"remediation,omitempty"`
}

// Summary converts the report for printing
func (report *Report) Summary() Summary {
	summary := Summary{
		RunID:     report.RunID,
		Succeeded: report.Bootstrapped(),
		Duration:  report.Finished.Sub(report.Started).Round(time.Millisecond).String(),
	}
	for _, result := range report.Results {
		phase := PhaseSummary{
			Phase:  result.Phase,
			Node:   result.Node,
			Status: result.Status,
			Cause:  result.Cause,
		}
		if d := result.Duration(); d > 0 {
			phase.Duration = d.Round(time.Millisecond).String()
		}
		if result.Status == StatusFailed && result.Err != nil {
			phase.Error = result.Err.Error()
			failure := retry.NewFailure(result.Kind, result.Node, result.Err)
			phase.Category = string(failure.Category)
			phase.Remediation = failure.Remediation
		}
		summary.Phases = append(summary.Phases, phase)
	}
	return summary
}

func (result PhaseResult) String() string {
	if result.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", result.Phase, result.Status, result.Err)
	}
	return fmt.Sprintf("%s: %s", result.Phase, result.Status)
}
