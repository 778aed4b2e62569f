package prometheusadapter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shieldrail/resilience/circuitbreaker"
	"github.com/shieldrail/resilience/retry"
)

func TestEventCounterCountsByKind(t *testing.T) {
	cb := circuitbreaker.New("orders", circuitbreaker.DefaultConfig())
	ec := NewEventCounter("circuit_breaker", "orders", cb.EventPublisher())

	cb.OnSuccess(time.Millisecond)
	cb.OnSuccess(time.Millisecond)
	cb.OnError(time.Millisecond, errors.New("boom"))

	// Two distinct kinds observed (OnSuccess, OnError) -> two label series.
	assert.Equal(t, 2, testutil.CollectAndCount(ec))
}

func TestCircuitBreakerCollectorExportsState(t *testing.T) {
	cb := circuitbreaker.New("payments", circuitbreaker.Config{
		FailureRateThreshold: 50,
		MinimumNumberOfCalls: 2,
	})
	collector := NewCircuitBreakerCollector(cb)

	cb.OnSuccess(time.Millisecond)
	cb.OnError(time.Millisecond, errors.New("boom"))

	count := testutil.CollectAndCount(collector)
	assert.Equal(t, 10, count)
}

func TestRetryCollectorExportsCounters(t *testing.T) {
	r := retry.New("fetch", retry.Config{
		MaxAttempts:      2,
		IntervalFunction: retry.FixedInterval(time.Millisecond),
	})
	collector := NewRetryCollector(r)

	calls := 0
	_, err := r.Execute(context.Background(), func() (any, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("transient")
		}
		return "ok", nil
	})
	require.NoError(t, err)

	count := testutil.CollectAndCount(collector)
	assert.Equal(t, 5, count)
}
