package retrycore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/shieldrail/resilience/clock"
)

// TestMain verifies ExecuteAsync never leaves its attempt goroutine running
// past Wait/Cancel, across every test in this package.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type retryFakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newRetryFakeClock() *retryFakeClock { return &retryFakeClock{now: time.Unix(0, 0)} }

func (f *retryFakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *retryFakeClock) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- f.Now().Add(d)
	return ch
}

var _ clock.Clock = (*retryFakeClock)(nil)

var errTransient = errors.New("transient")

func TestSucceedsWithoutRetryOnFirstAttempt(t *testing.T) {
	r := New("t", Config{MaxAttempts: 3, IntervalFunction: FixedInterval(0), Clock: newRetryFakeClock()})

	calls := 0
	v, err := r.Execute(context.Background(), func() (any, error) {
		calls++
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, 1, calls)
	assert.Equal(t, int64(1), r.Metrics().SuccessfulCallsWithoutRetry)
}

// TestSucceedsAfterRetries is spec.md §8 scenario 6.
func TestSucceedsAfterRetries(t *testing.T) {
	r := New("t", Config{MaxAttempts: 3, IntervalFunction: FixedInterval(0), Clock: newRetryFakeClock()})

	calls := 0
	v, err := r.Execute(context.Background(), func() (any, error) {
		calls++
		if calls < 3 {
			return nil, errTransient
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, 3, calls)
	assert.Equal(t, int64(1), r.Metrics().SuccessfulCallsWithRetry)
}

func TestExhaustsAttemptsAndSurfacesLastError(t *testing.T) {
	r := New("t", Config{MaxAttempts: 3, IntervalFunction: FixedInterval(0), Clock: newRetryFakeClock()})

	calls := 0
	_, err := r.Execute(context.Background(), func() (any, error) {
		calls++
		return nil, errTransient
	})

	assert.ErrorIs(t, err, errTransient)
	assert.Equal(t, 3, calls)
	assert.Equal(t, int64(1), r.Metrics().FailedCallsWithRetry)
}

func TestUnretryableErrorPropagatesImmediately(t *testing.T) {
	permanentErr := errors.New("permanent")
	r := New("t", Config{
		MaxAttempts:      5,
		IntervalFunction: FixedInterval(0),
		RetryOnException: func(err error) bool { return !errors.Is(err, permanentErr) },
		Clock:            newRetryFakeClock(),
	})

	calls := 0
	_, err := r.Execute(context.Background(), func() (any, error) {
		calls++
		return nil, permanentErr
	})

	assert.ErrorIs(t, err, permanentErr)
	assert.Equal(t, 1, calls)
	assert.Equal(t, int64(1), r.Metrics().FailedCallsWithoutRetry)
}

func TestRetryOnResultPredicateTreatsSuccessAsRetryable(t *testing.T) {
	r := New("t", Config{
		MaxAttempts:      3,
		IntervalFunction: FixedInterval(0),
		RetryOnResult:    func(result any) bool { return result == "not-ready" },
		Clock:            newRetryFakeClock(),
	})

	calls := 0
	v, err := r.Execute(context.Background(), func() (any, error) {
		calls++
		if calls < 2 {
			return "not-ready", nil
		}
		return "ready", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ready", v)
	assert.Equal(t, 2, calls)
}

func TestContextCancellationDuringBackoffStopsRetrying(t *testing.T) {
	r := New("t", Config{MaxAttempts: 5, IntervalFunction: FixedInterval(time.Hour), Clock: clock.Wall()})

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	done := make(chan struct{})
	go func() {
		_, err := r.Execute(ctx, func() (any, error) {
			calls++
			return nil, errTransient
		})
		assert.ErrorIs(t, err, context.Canceled)
		close(done)
	}()

	time.Sleep(5 * time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, 1, calls)
}

func TestExponentialIntervalGrowsAndCaps(t *testing.T) {
	fn := ExponentialInterval(ExponentialConfig{
		InitialInterval: 10 * time.Millisecond,
		Multiplier:      2,
		MaxInterval:     50 * time.Millisecond,
	})

	d1 := fn(1)
	d2 := fn(2)
	d3 := fn(3)

	assert.LessOrEqual(t, d1, 50*time.Millisecond)
	assert.LessOrEqual(t, d2, 50*time.Millisecond)
	assert.LessOrEqual(t, d3, 50*time.Millisecond)
}

func TestAsyncCancelStopsFurtherAttempts(t *testing.T) {
	r := New("t", Config{MaxAttempts: 10, IntervalFunction: FixedInterval(time.Hour), Clock: clock.Wall()})

	var calls int
	var mu sync.Mutex
	h := r.ExecuteAsync(context.Background(), func() (any, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		return nil, errTransient
	})

	time.Sleep(5 * time.Millisecond)
	h.Cancel()
	_, err := h.Wait()

	assert.Error(t, err)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, calls)
}

func TestAsyncWaitLeavesNoGoroutineBehind(t *testing.T) {
	defer goleak.VerifyNone(t)

	r := New("t", Config{MaxAttempts: 1, Clock: clock.Wall()})
	h := r.ExecuteAsync(context.Background(), func() (any, error) {
		return "done", nil
	})

	v, err := h.Wait()
	require.NoError(t, err)
	assert.Equal(t, "done", v)
}
