package retry

import (
	"time"
)

// OperationStatus records one attempt of an operation.
type OperationStatus struct {
	Phase      string
	Target     string
	Message    string
	Started    time.Time
	Timestamp  time.Time
	RetryCount int
	// Delay is the backoff that was waited before this attempt.
	Delay    time.Duration
	Category Category
	Err      error
}

// Metrics are derived from the history of a Runner.
type Metrics struct {
	TotalDuration time.Duration
	PhaseCounts   map[string]int
	ErrorCount    int
	MaxRetryCount int
}

func (r *Runner) record(status OperationStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history = append(r.history, status)
}

// History returns a copy of all recorded attempts in the order they finished.
func (r *Runner) History() []OperationStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]OperationStatus, len(r.history))
	copy(out, r.history)
	return out
}

// Metrics computes run metrics from the history.
func (r *Runner) Metrics() Metrics {
	history := r.History()
	m := Metrics{PhaseCounts: make(map[string]int)}
	if len(history) == 0 {
		return m
	}

	first, last := history[0].Started, history[0].Timestamp
	for _, status := range history {
		m.PhaseCounts[status.Phase]++
		if status.Err != nil {
			m.ErrorCount++
		}
		if status.RetryCount > m.MaxRetryCount {
			m.MaxRetryCount = status.RetryCount
		}
		if status.Started.Before(first) {
			first = status.Started
		}
		if status.Timestamp.After(last) {
			last = status.Timestamp
		}
	}
	m.TotalDuration = last.Sub(first)

	return m
}
