// Package retry runs fallible, slow operations (installs, joins, health
// checks, add-on rollouts) with a bounded per-attempt timeout, exponential
// backoff and a fixed error taxonomy.
//
// Every attempt is recorded as an OperationStatus in an append-only history
// kept by the Runner, from which run metrics are derived on demand.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"
)

// Config holds retry configuration.
type Config struct {
	// Timeout bounds a single attempt. Zero disables the per-attempt timeout.
	Timeout      time.Duration
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultConfig returns the configuration used when no options are given.
func DefaultConfig() Config {
	return Config{
		Timeout:      10 * time.Minute,
		MaxRetries:   3,
		InitialDelay: 2 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
}

// Option is a functional option for the Runner.
type Option func(*Runner)

// WithConfig replaces the whole configuration.
func WithConfig(cfg Config) Option {
	return func(r *Runner) {
		r.config = cfg
	}
}

// WithTimeout sets the per-attempt timeout.
func WithTimeout(d time.Duration) Option {
	return func(r *Runner) {
		r.config.Timeout = d
	}
}

// WithMaxRetries sets the maximum number of retries.
func WithMaxRetries(n int) Option {
	return func(r *Runner) {
		r.config.MaxRetries = n
	}
}

// WithInitialDelay sets the initial delay between retries.
func WithInitialDelay(d time.Duration) Option {
	return func(r *Runner) {
		r.config.InitialDelay = d
	}
}

// WithMaxDelay sets the maximum delay between retries.
func WithMaxDelay(d time.Duration) Option {
	return func(r *Runner) {
		r.config.MaxDelay = d
	}
}

// WithMultiplier sets the backoff multiplier.
func WithMultiplier(m float64) Option {
	return func(r *Runner) {
		r.config.Multiplier = m
	}
}

// WithSleep replaces the function used to wait between attempts.
func WithSleep(sleep func(context.Context, time.Duration) error) Option {
	return func(r *Runner) {
		r.sleep = sleep
	}
}

// WithClock replaces the time source used for status timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		r.now = now
	}
}

// Operation is a single attempt of a fallible operation. It must return
// once its context is done.
type Operation func(ctx context.Context) error

// Result is the outcome of Execute.
type Result struct {
	Phase      string
	Target     string
	Attempts   int
	RetryCount int
	Delays     []time.Duration
	Duration   time.Duration
	// Err is nil on success, a *Failure otherwise.
	Err error
}

// Succeeded reports whether the operation eventually succeeded.
func (r Result) Succeeded() bool {
	return r.Err == nil
}

// Runner executes operations with retries. It is safe for concurrent use;
// concurrent Execute calls share one history.
type Runner struct {
	config Config
	sleep  func(context.Context, time.Duration) error
	now    func() time.Time

	mu      sync.Mutex
	history []OperationStatus
}

// NewRunner creates a Runner.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{
		config: DefaultConfig(),
		sleep:  sleepContext,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Config returns the effective configuration.
func (r *Runner) Config() Config {
	return r.config
}

// Delay returns the backoff applied before the given retry (1-based):
// min(InitialDelay * Multiplier^(retry-1), MaxDelay).
func (r *Runner) Delay(retry int) time.Duration {
	if retry < 1 {
		return 0
	}
	d := float64(r.config.InitialDelay) * math.Pow(r.config.Multiplier, float64(retry-1))
	if r.config.MaxDelay > 0 && d > float64(r.config.MaxDelay) {
		return r.config.MaxDelay
	}
	return time.Duration(d)
}

// Execute runs op until it succeeds, fails with a non-retryable error, or the
// retry budget is spent. Attempts are strictly sequential.
func (r *Runner) Execute(ctx context.Context, phase, target string, op Operation) Result {
	start := r.now()
	res := Result{Phase: phase, Target: target}

	for attempt := 0; ; attempt++ {
		var delay time.Duration
		if attempt > 0 {
			delay = r.Delay(attempt)
			res.Delays = append(res.Delays, delay)
			if err := r.sleep(ctx, delay); err != nil {
				res.Duration = r.now().Sub(start)
				res.Err = r.fail(phase, target, attempt, false, fmt.Errorf("cancelled while waiting to retry: %w", err))
				return res
			}
		}

		attemptStart := r.now()
		err := r.attempt(ctx, op)
		res.Attempts = attempt + 1
		res.RetryCount = attempt

		status := OperationStatus{
			Phase:      phase,
			Target:     target,
			Started:    attemptStart,
			Timestamp:  r.now(),
			RetryCount: attempt,
			Delay:      delay,
			Err:        err,
		}

		if err == nil {
			status.Message = "succeeded"
			r.record(status)
			res.Duration = r.now().Sub(start)
			return res
		}

		class := Classify(err)
		status.Category = class.Category
		status.Message = fmt.Sprintf("attempt %d failed (%s)", attempt+1, class.Category)
		r.record(status)

		switch {
		case !class.Retryable:
			res.Err = r.fail(phase, target, attempt+1, false, err)
		case attempt >= r.config.MaxRetries:
			res.Err = r.fail(phase, target, attempt+1, true, err)
		case ctx.Err() != nil:
			res.Err = r.fail(phase, target, attempt+1, false, errors.Join(err, ctx.Err()))
		default:
			continue
		}

		res.Duration = r.now().Sub(start)
		return res
	}
}

// attempt races op against the per-attempt timeout. A timed-out attempt is
// drained before returning so the next attempt never overlaps it.
func (r *Runner) attempt(ctx context.Context, op Operation) error {
	if r.config.Timeout <= 0 {
		return op(ctx)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- op(attemptCtx)
	}()

	select {
	case err := <-done:
		return err
	case <-attemptCtx.Done():
		<-done
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("attempt timed out after %s: %w", r.config.Timeout, context.DeadlineExceeded)
	}
}

func (r *Runner) fail(phase, target string, attempts int, exhausted bool, err error) *Failure {
	c := Classify(err)
	return &Failure{
		Phase:       phase,
		Target:      target,
		Category:    c.Category,
		Remediation: c.Category.Remediation(),
		Attempts:    attempts,
		Exhausted:   exhausted,
		Err:         err,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
