package cbreaker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shieldrail/resilience/clock"
	"github.com/shieldrail/resilience/internal/window"
)

// fakeClock is a minimal manually-advanced clock satisfying clock.Clock,
// used instead of real sleeps to make HalfOpen-timeout tests deterministic.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{now: time.Unix(0, 0)} }

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func (f *fakeClock) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- f.Now().Add(d)
	return ch
}

var _ clock.Clock = (*fakeClock)(nil)

func newTestBreaker(t *testing.T, cfg Config) (*CircuitBreaker, *fakeClock) {
	t.Helper()
	fc := newFakeClock()
	cfg.Clock = fc
	return New("test", cfg), fc
}

// TestFailureRateThresholdCrossing is spec.md §8 scenario 1.
func TestFailureRateThresholdCrossing(t *testing.T) {
	cb, _ := newTestBreaker(t, Config{
		FailureRateThreshold:                  50,
		SlowCallRateThreshold:                 100,
		MinimumNumberOfCalls:                  5,
		SlidingWindowType:                     CountBasedWindow,
		SlidingWindowSize:                     5,
		PermittedNumberOfCallsInHalfOpenState: 4,
		WaitDurationInOpenState:               time.Second,
	})

	outcomes := []error{errFail, errFail, errFail, nil, nil}
	for _, err := range outcomes {
		require.True(t, cb.TryAcquirePermission())
		if err != nil {
			cb.OnError(time.Millisecond, err)
		} else {
			cb.OnSuccess(time.Millisecond)
		}
	}

	assert.Equal(t, StateOpen, cb.State())
	assert.InDelta(t, 60.0, cb.Metrics().FailureRate, 0.001)
	assert.False(t, cb.TryAcquirePermission())
}

var errFail = errors.New("boom")

// TestHalfOpenRecovery is spec.md §8 scenario 2.
func TestHalfOpenRecovery(t *testing.T) {
	cb, fc := newTestBreaker(t, Config{
		FailureRateThreshold:                  50,
		MinimumNumberOfCalls:                  1,
		SlidingWindowSize:                     5,
		PermittedNumberOfCallsInHalfOpenState: 4,
		WaitDurationInOpenState:               time.Second,
	})
	cb.TransitionToForcedOpen()
	cb.TransitionToClosedAdmin() // back to a clean closed state for setup
	// Drive it open through real failures instead, for a faithful scenario:
	for i := 0; i < 1; i++ {
		cb.TryAcquirePermission()
		cb.OnError(time.Millisecond, errFail)
	}
	require.Equal(t, StateOpen, cb.State())

	fc.Advance(1100 * time.Millisecond)
	require.True(t, cb.TryAcquirePermission())
	assert.Equal(t, StateHalfOpen, cb.State())

	for i := 0; i < 4; i++ {
		if i > 0 {
			require.True(t, cb.TryAcquirePermission())
		}
		cb.OnSuccess(time.Millisecond)
	}

	assert.Equal(t, StateClosed, cb.State())
}

// TestIgnoreExceptionLeavesMetricsUnchanged is spec.md §8 scenario 3 / CB-5.
func TestIgnoreExceptionLeavesMetricsUnchanged(t *testing.T) {
	ignoredErr := errors.New("parse error")
	cb, _ := newTestBreaker(t, Config{
		FailureRateThreshold: 50,
		MinimumNumberOfCalls: 1,
		SlidingWindowSize:    5,
		IgnoreException:      func(err error) bool { return errors.Is(err, ignoredErr) },
	})

	require.True(t, cb.TryAcquirePermission())
	before := cb.Metrics()
	cb.OnError(time.Millisecond, ignoredErr)
	after := cb.Metrics()

	assert.Equal(t, before.TotalCalls, after.TotalCalls)
	assert.Equal(t, before.FailedCalls, after.FailedCalls)
	assert.Equal(t, before.SuccessfulCalls, after.SuccessfulCalls)
	assert.Equal(t, StateClosed, cb.State())
}

// CB-2: Open state denies every call and increments NotPermittedCalls by
// exactly 1 per call until the wait duration elapses.
func TestOpenStateDeniesAndCountsNotPermitted(t *testing.T) {
	cb, _ := newTestBreaker(t, Config{
		FailureRateThreshold:     50,
		MinimumNumberOfCalls:     1,
		SlidingWindowSize:        2,
		WaitDurationInOpenState:  time.Hour,
	})
	cb.TryAcquirePermission()
	cb.OnError(time.Millisecond, errFail)
	require.Equal(t, StateOpen, cb.State())

	for i := 1; i <= 5; i++ {
		assert.False(t, cb.TryAcquirePermission())
		assert.Equal(t, uint64(i), cb.NotPermittedCalls())
	}
}

// CB-3: on Open->HalfOpen, counters reset to zero.
func TestHalfOpenResetsCounters(t *testing.T) {
	cb, fc := newTestBreaker(t, Config{
		FailureRateThreshold:                  50,
		MinimumNumberOfCalls:                  1,
		SlidingWindowSize:                      2,
		PermittedNumberOfCallsInHalfOpenState:  3,
		WaitDurationInOpenState:                time.Second,
	})
	cb.TryAcquirePermission()
	cb.OnError(time.Millisecond, errFail)
	require.Equal(t, StateOpen, cb.State())

	fc.Advance(2 * time.Second)
	cb.TryAcquirePermission()
	require.Equal(t, StateHalfOpen, cb.State())

	snap := cb.Metrics()
	assert.Equal(t, 0, snap.TotalCalls)
}

// CB-4: at most PermittedNumberOfCallsInHalfOpenState callers may hold
// permission simultaneously in HalfOpen.
func TestHalfOpenBoundsConcurrentTrials(t *testing.T) {
	cb, fc := newTestBreaker(t, Config{
		FailureRateThreshold:                  50,
		MinimumNumberOfCalls:                  1,
		SlidingWindowSize:                      2,
		PermittedNumberOfCallsInHalfOpenState:  2,
		WaitDurationInOpenState:                time.Second,
	})
	cb.TryAcquirePermission()
	cb.OnError(time.Millisecond, errFail)
	fc.Advance(2 * time.Second)
	require.True(t, cb.TryAcquirePermission())
	require.Equal(t, StateHalfOpen, cb.State())

	granted := 0
	for i := 0; i < 5; i++ {
		if cb.TryAcquirePermission() {
			granted++
		}
	}
	assert.Equal(t, 1, granted) // one permit left after the initial probe call
}

func TestForcedOpenAlwaysDenies(t *testing.T) {
	cb, _ := newTestBreaker(t, Config{FailureRateThreshold: 50, MinimumNumberOfCalls: 1, SlidingWindowSize: 2})
	cb.TransitionToForcedOpen()
	assert.False(t, cb.TryAcquirePermission())
	assert.Equal(t, StateForcedOpen, cb.State())
}

func TestDisabledAlwaysPermitsAndNeverRecords(t *testing.T) {
	cb, _ := newTestBreaker(t, Config{FailureRateThreshold: 50, MinimumNumberOfCalls: 1, SlidingWindowSize: 2})
	cb.TransitionToDisabled()

	for i := 0; i < 10; i++ {
		assert.True(t, cb.TryAcquirePermission())
		cb.OnError(time.Millisecond, errFail)
	}
	assert.Equal(t, StateDisabled, cb.State())
}

func TestMeteredOnlyNeverTransitionsButRecords(t *testing.T) {
	cb, _ := newTestBreaker(t, Config{FailureRateThreshold: 50, MinimumNumberOfCalls: 1, SlidingWindowSize: 10})
	cb.TransitionToMeteredOnly()

	for i := 0; i < 10; i++ {
		require.True(t, cb.TryAcquirePermission())
		cb.OnError(time.Millisecond, errFail)
	}

	assert.Equal(t, StateMeteredOnly, cb.State())
	assert.Equal(t, 10, cb.Metrics().TotalCalls)
}

// TestAdminTransitionRejectsSelfTransition is spec.md §4.1's "Closed ->
// Closed: illegal" edge, generalized to every state an admin call targets.
func TestAdminTransitionRejectsSelfTransition(t *testing.T) {
	cb, _ := newTestBreaker(t, Config{FailureRateThreshold: 50, MinimumNumberOfCalls: 1, SlidingWindowSize: 2})

	require.ErrorIs(t, cb.TransitionToClosedAdmin(), ErrIllegalStateTransition)
	assert.Equal(t, StateClosed, cb.State())

	require.NoError(t, cb.TransitionToForcedOpen())
	require.ErrorIs(t, cb.TransitionToForcedOpen(), ErrIllegalStateTransition)
	assert.Equal(t, StateForcedOpen, cb.State())

	require.NoError(t, cb.TransitionToClosedAdmin())
	assert.Equal(t, StateClosed, cb.State())
}

func TestResetClearsCountsAndReturnsToClosed(t *testing.T) {
	cb, _ := newTestBreaker(t, Config{FailureRateThreshold: 50, MinimumNumberOfCalls: 1, SlidingWindowSize: 5})
	cb.TryAcquirePermission()
	cb.OnError(time.Millisecond, errFail)
	cb.Reset()

	assert.Equal(t, StateClosed, cb.State())
	cb.TryAcquirePermission()
	cb.OnSuccess(time.Millisecond)

	snap := cb.Metrics()
	assert.Equal(t, 1, snap.TotalCalls)
	assert.Equal(t, 1, snap.SuccessfulCalls)
	assert.Equal(t, 0, snap.FailedCalls)
}

func TestExecuteRecordsPanicAsFailureAndRepanics(t *testing.T) {
	cb, _ := newTestBreaker(t, Config{FailureRateThreshold: 50, MinimumNumberOfCalls: 1, SlidingWindowSize: 5})

	assert.Panics(t, func() {
		_, _ = cb.Execute(func() (any, error) { panic("boom") })
	})

	snap := cb.Metrics()
	assert.Equal(t, 1, snap.FailedCalls)
}

func TestExecuteContextCancellationNotRecorded(t *testing.T) {
	cb, _ := newTestBreaker(t, Config{FailureRateThreshold: 50, MinimumNumberOfCalls: 1, SlidingWindowSize: 5})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := cb.ExecuteContext(ctx, func() (any, error) { return "ok", nil })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, cb.Metrics().TotalCalls)
}

func TestConcurrentCallsRespectHalfOpenBound(t *testing.T) {
	cb, fc := newTestBreaker(t, Config{
		FailureRateThreshold:                   50,
		MinimumNumberOfCalls:                   1,
		SlidingWindowSize:                       2,
		PermittedNumberOfCallsInHalfOpenState:   3,
		WaitDurationInOpenState:                 time.Second,
	})
	cb.TryAcquirePermission()
	cb.OnError(time.Millisecond, errFail)
	fc.Advance(2 * time.Second)

	var granted int32Counter
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if cb.TryAcquirePermission() {
				granted.add(1)
			}
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, granted.get(), int64(3))
}

type int32Counter struct {
	mu sync.Mutex
	n  int64
}

func (c *int32Counter) add(d int64) {
	c.mu.Lock()
	c.n += d
	c.mu.Unlock()
}

func (c *int32Counter) get() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

// TestStaleClosedCallDoesNotPolluteHalfOpenWindow covers spec.md §3's epoch
// invariant: a permission acquired in state S must be recorded in that same
// epoch. A long-running call admitted while Closed, whose outcome arrives
// after the breaker has since moved through Open into HalfOpen, must not
// have its (ungated) outcome folded into HalfOpen's trial window.
func TestStaleClosedCallDoesNotPolluteHalfOpenWindow(t *testing.T) {
	cb, fc := newTestBreaker(t, Config{
		FailureRateThreshold:                  50,
		MinimumNumberOfCalls:                  1,
		SlidingWindowSize:                     5,
		PermittedNumberOfCallsInHalfOpenState: 2,
		WaitDurationInOpenState:               time.Second,
	})

	// A Closed-state call acquires permission and captures the Closed
	// window, then keeps "running" without recording its outcome yet.
	require.True(t, cb.TryAcquirePermission())
	staleWindow := cb.metrics.Load()
	require.Equal(t, StateClosed, cb.State())

	// Meanwhile other calls drive Closed->Open->HalfOpen.
	require.True(t, cb.TryAcquirePermission())
	cb.OnError(time.Millisecond, errFail)
	require.Equal(t, StateOpen, cb.State())

	fc.Advance(2 * time.Second)
	require.True(t, cb.TryAcquirePermission())
	require.Equal(t, StateHalfOpen, cb.State())

	// The long-running Closed call finally finishes. Its outcome must be
	// dropped, not folded into HalfOpen's trial window — it was never
	// admitted under HalfOpen's permit gating at all.
	cb.finishCall(staleWindow, window.Success, time.Millisecond, nil)

	snap := cb.Metrics()
	assert.Equal(t, 0, snap.TotalCalls)
}
