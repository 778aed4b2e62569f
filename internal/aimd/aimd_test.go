package aimd

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlowStartIncreasesLimitOnHealthyTraffic(t *testing.T) {
	c := New("t", Config{
		MinLimit: 1, MaxLimit: 100, InitialLimit: 2,
		MinimumNumberOfCalls: 3, SlidingWindowSize: 3,
		IncreaseMultiplier: 2,
	})

	for i := 0; i < 3; i++ {
		require.True(t, c.TryAcquirePermission())
		c.OnComplete(time.Millisecond, nil)
	}

	assert.Equal(t, 4, c.Limit()) // ceil(2 * 2) = 4
	assert.Equal(t, SlowStart, c.Phase())
}

func TestSlowStartBacksOffAndSwitchesPhaseOnFailures(t *testing.T) {
	c := New("t", Config{
		MinLimit: 1, MaxLimit: 100, InitialLimit: 8,
		FailureRateThreshold: 50, MinimumNumberOfCalls: 3, SlidingWindowSize: 3,
		DecreaseMultiplier: 0.5,
	})

	for i := 0; i < 3; i++ {
		require.True(t, c.TryAcquirePermission())
		c.OnComplete(time.Millisecond, assertErr)
	}

	assert.Equal(t, 4, c.Limit())
	assert.Equal(t, CongestionAvoidance, c.Phase())
}

var assertErr = assertError("boom")

type assertError string

func (e assertError) Error() string { return string(e) }

func TestCongestionAvoidanceGrowsAdditively(t *testing.T) {
	c := New("t", Config{
		MinLimit: 1, MaxLimit: 100, InitialLimit: 10,
		MinimumNumberOfCalls: 3, SlidingWindowSize: 3,
		IncreaseSummand: 2,
	})
	c.setPhase(CongestionAvoidance)

	for i := 0; i < 3; i++ {
		require.True(t, c.TryAcquirePermission())
		c.OnComplete(time.Millisecond, nil)
	}

	assert.Equal(t, 12, c.Limit())
	assert.Equal(t, CongestionAvoidance, c.Phase())
}

func TestCongestionAvoidanceReturnsToSlowStartAtFloor(t *testing.T) {
	// InitialLimit below MinLimit simulates a controller recovering from a
	// prior decrease that bottomed out; one healthy round adds one (3 -> 4),
	// which is still at or below the floor, so the phase flips back.
	c := New("t", Config{
		MinLimit: 5, MaxLimit: 100, InitialLimit: 3,
		MinimumNumberOfCalls: 3, SlidingWindowSize: 3,
		IncreaseSummand: 1,
	})
	c.setPhase(CongestionAvoidance)

	for i := 0; i < 3; i++ {
		require.True(t, c.TryAcquirePermission())
		c.OnComplete(time.Millisecond, nil)
	}

	assert.Equal(t, SlowStart, c.Phase())
}

func TestMaxLimitIsNeverExceeded(t *testing.T) {
	c := New("t", Config{
		MinLimit: 1, MaxLimit: 10, InitialLimit: 9,
		MinimumNumberOfCalls: 1, SlidingWindowSize: 1,
		IncreaseMultiplier: 3,
	})

	require.True(t, c.TryAcquirePermission())
	c.OnComplete(time.Millisecond, nil)

	assert.Equal(t, 10, c.Limit())
}
