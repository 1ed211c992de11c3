package retry

import (
	"errors"
	"fmt"
	"strings"
)

// Failure is the structured error returned when an operation could not be
// completed. It names the phase and target it belongs to, so failures are
// always reported per node and per phase.
type Failure struct {
	Phase       string
	Target      string
	Category    Category
	Remediation []string
	Attempts    int
	// Exhausted is set when the failure was retryable but the retry budget ran out.
	Exhausted bool
	Err       error
}

func (f *Failure) Error() string {
	var b strings.Builder
	b.WriteString(f.Phase)
	if f.Target != "" {
		b.WriteString(" on ")
		b.WriteString(f.Target)
	}
	fmt.Fprintf(&b, " failed (%s", f.Category)
	if f.Exhausted {
		b.WriteString(", retries exhausted")
	}
	fmt.Fprintf(&b, ") after %d attempt(s): %v", f.Attempts, f.Err)
	return b.String()
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Terminal implements the terminal marker: a Failure has already been
// through a retry budget and must not be retried by an outer runner.
func (f *Failure) Terminal() bool {
	return true
}

// AsFailure extracts a *Failure from an error chain.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// NewFailure builds a Failure for an error that never went through a runner.
func NewFailure(phase, target string, err error) *Failure {
	if f, ok := AsFailure(err); ok {
		return f
	}
	c := Classify(err)
	return &Failure{
		Phase:       phase,
		Target:      target,
		Category:    c.Category,
		Remediation: c.Category.Remediation(),
		Attempts:    1,
		Err:         err,
	}
}
