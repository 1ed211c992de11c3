package retry

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type categorizedErr struct {
	category Category
}

func (e categorizedErr) Error() string      { return "categorized: " + string(e.category) }
func (e categorizedErr) Category() Category { return e.category }

// recordingSleep returns a sleep function that records the requested delays
// without waiting.
func recordingSleep() (func(context.Context, time.Duration) error, *[]time.Duration) {
	var mu sync.Mutex
	delays := []time.Duration{}
	return func(ctx context.Context, d time.Duration) error {
		mu.Lock()
		defer mu.Unlock()
		delays = append(delays, d)
		return ctx.Err()
	}, &delays
}

func TestExecute_BackoffThenSuccess(t *testing.T) {
	sleep, delays := recordingSleep()
	runner := NewRunner(
		WithMaxRetries(2),
		WithInitialDelay(1000*time.Millisecond),
		WithMultiplier(2),
		WithMaxDelay(time.Minute),
		WithSleep(sleep),
	)

	attempts := 0
	res := runner.Execute(context.Background(), "worker-join", "cluster-worker-1", func(_ context.Context) error {
		attempts++
		if attempts <= 2 {
			return categorizedErr{CategoryNetwork}
		}
		return nil
	})

	require.True(t, res.Succeeded(), "expected success, got %v", res.Err)
	assert.Equal(t, 2, res.RetryCount)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, []time.Duration{1000 * time.Millisecond, 2000 * time.Millisecond}, *delays)
	assert.Equal(t, []time.Duration{1000 * time.Millisecond, 2000 * time.Millisecond}, res.Delays)

	history := runner.History()
	require.Len(t, history, 3)
	assert.Equal(t, time.Duration(0), history[0].Delay)
	assert.Equal(t, 1000*time.Millisecond, history[1].Delay)
	assert.Equal(t, 2000*time.Millisecond, history[2].Delay)
	assert.NoError(t, history[2].Err)
}

func TestExecute_ValidationShortCircuits(t *testing.T) {
	sleep, delays := recordingSleep()
	runner := NewRunner(WithMaxRetries(5), WithSleep(sleep))

	attempts := 0
	res := runner.Execute(context.Background(), "allocate", "", func(_ context.Context) error {
		attempts++
		return errors.New("invalid worker count: must be >= 0")
	})

	require.False(t, res.Succeeded())
	assert.Equal(t, 1, attempts)
	assert.Empty(t, *delays)

	failure, ok := AsFailure(res.Err)
	require.True(t, ok)
	assert.Equal(t, CategoryValidation, failure.Category)
	assert.False(t, failure.Exhausted)
	assert.Equal(t, 1, failure.Attempts)
	assert.NotEmpty(t, failure.Remediation)
}

func TestExecute_FatalIsNotRetried(t *testing.T) {
	sleep, _ := recordingSleep()
	runner := NewRunner(WithMaxRetries(5), WithSleep(sleep))

	attempts := 0
	res := runner.Execute(context.Background(), "primary-init", "cluster-master", func(_ context.Context) error {
		attempts++
		return Fatal(errors.New("connection refused"))
	})

	require.False(t, res.Succeeded())
	assert.Equal(t, 1, attempts)
	assert.True(t, IsFatal(res.Err))
}

func TestExecute_RetriesExhausted(t *testing.T) {
	sleep, delays := recordingSleep()
	runner := NewRunner(
		WithMaxRetries(2),
		WithInitialDelay(10*time.Millisecond),
		WithMultiplier(3),
		WithSleep(sleep),
	)

	attempts := 0
	res := runner.Execute(context.Background(), "token-fetch", "cluster-master", func(_ context.Context) error {
		attempts++
		return errors.New("dial tcp 10.10.0.20:22: connection refused")
	})

	require.False(t, res.Succeeded())
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 30 * time.Millisecond}, *delays)

	failure, ok := AsFailure(res.Err)
	require.True(t, ok)
	assert.True(t, failure.Exhausted)
	assert.Equal(t, CategoryNetwork, failure.Category)
	assert.Equal(t, "token-fetch", failure.Phase)
	assert.Equal(t, "cluster-master", failure.Target)
	assert.Contains(t, failure.Error(), "retries exhausted")
}

func TestExecute_AttemptTimeout(t *testing.T) {
	runner := NewRunner(WithMaxRetries(0), WithTimeout(20*time.Millisecond))

	res := runner.Execute(context.Background(), "health", "", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	require.False(t, res.Succeeded())
	assert.True(t, errors.Is(res.Err, context.DeadlineExceeded))

	failure, ok := AsFailure(res.Err)
	require.True(t, ok)
	assert.Equal(t, CategoryNetwork, failure.Category)
}

func TestExecute_AttemptsNeverOverlap(t *testing.T) {
	sleep, _ := recordingSleep()
	runner := NewRunner(
		WithMaxRetries(3),
		WithTimeout(10*time.Millisecond),
		WithSleep(sleep),
	)

	var active, maxActive atomic.Int32
	res := runner.Execute(context.Background(), "secondary-join", "cluster-master-2", func(ctx context.Context) error {
		n := active.Add(1)
		if n > maxActive.Load() {
			maxActive.Store(n)
		}
		defer active.Add(-1)
		<-ctx.Done()
		// simulate a slow teardown after the deadline
		time.Sleep(5 * time.Millisecond)
		return ctx.Err()
	})

	require.False(t, res.Succeeded())
	assert.Equal(t, 4, res.Attempts)
	assert.Equal(t, int32(1), maxActive.Load())
}

func TestExecute_CancelledWhileWaiting(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	runner := NewRunner(WithMaxRetries(3), WithInitialDelay(time.Hour))

	attempts := 0
	res := runner.Execute(ctx, "worker-join", "cluster-worker-1", func(_ context.Context) error {
		attempts++
		cancel()
		return errors.New("connection reset by peer")
	})

	require.False(t, res.Succeeded())
	assert.Equal(t, 1, attempts)
	assert.True(t, errors.Is(res.Err, context.Canceled))
}

func TestDelay_Capped(t *testing.T) {
	runner := NewRunner(
		WithInitialDelay(time.Second),
		WithMultiplier(2),
		WithMaxDelay(5*time.Second),
	)

	assert.Equal(t, time.Duration(0), runner.Delay(0))
	assert.Equal(t, time.Second, runner.Delay(1))
	assert.Equal(t, 2*time.Second, runner.Delay(2))
	assert.Equal(t, 4*time.Second, runner.Delay(3))
	assert.Equal(t, 5*time.Second, runner.Delay(4))
	assert.Equal(t, 5*time.Second, runner.Delay(10))
}

func TestMetrics(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var tick atomic.Int64
	clock := func() time.Time {
		return base.Add(time.Duration(tick.Add(1)) * time.Second)
	}
	sleep, _ := recordingSleep()
	runner := NewRunner(WithMaxRetries(3), WithSleep(sleep), WithClock(clock))

	calls := 0
	runner.Execute(context.Background(), "worker-join", "cluster-worker-1", func(_ context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("i/o timeout")
		}
		return nil
	})
	runner.Execute(context.Background(), "token-fetch", "cluster-master", func(_ context.Context) error {
		return nil
	})

	m := runner.Metrics()
	assert.Equal(t, map[string]int{"worker-join": 3, "token-fetch": 1}, m.PhaseCounts)
	assert.Equal(t, 2, m.ErrorCount)
	assert.Equal(t, 2, m.MaxRetryCount)
	assert.True(t, m.TotalDuration > 0)
}

func TestMetrics_Empty(t *testing.T) {
	m := NewRunner().Metrics()
	assert.Empty(t, m.PhaseCounts)
	assert.Zero(t, m.ErrorCount)
	assert.Zero(t, m.TotalDuration)
}

func TestDefaultConfig(t *testing.T) {
	cfg := NewRunner().Config()
	assert.Equal(t, DefaultConfig(), cfg)
	assert.Equal(t, 2.0, cfg.Multiplier)
}
