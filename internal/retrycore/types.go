// Package retrycore is the retry engine (spec.md §4.5): an attempt loop
// with pluggable backoff, success/exception predicates, and per-invocation
// metrics.
package retrycore

import (
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/shieldrail/resilience/clock"
	"github.com/shieldrail/resilience/event"
)

// IntervalFunction computes the delay before the given attempt number
// (1-based: the delay before the *second* call is IntervalFunction(1)),
// matching spec.md §4.5's intervalFunction(attempt) contract.
type IntervalFunction func(attempt int) time.Duration

// FixedInterval returns an IntervalFunction that always waits d.
func FixedInterval(d time.Duration) IntervalFunction {
	return func(int) time.Duration { return d }
}

// ExponentialConfig configures ExponentialInterval.
type ExponentialConfig struct {
	InitialInterval     time.Duration
	Multiplier          float64
	MaxInterval         time.Duration
	RandomizationFactor float64 // jitter factor in [0,1); 0 disables jitter
}

// ExponentialInterval builds an IntervalFunction backed by
// backoff.ExponentialBackOff: base*multiplier^(n-1), randomized by
// RandomizationFactor and capped at MaxInterval — exactly spec.md §4.5's
// "exponential backoff base · multiplier^(n−1), optional randomized jitter
// factor... bounded by an optional cap".
func ExponentialInterval(cfg ExponentialConfig) IntervalFunction {
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = 2
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = 500 * time.Millisecond
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = 60 * time.Second
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.InitialInterval
	b.Multiplier = cfg.Multiplier
	b.MaxInterval = cfg.MaxInterval
	b.RandomizationFactor = cfg.RandomizationFactor
	b.Reset()

	return func(attempt int) time.Duration {
		eb := *b // per-call copy: the sequence restarts at InitialInterval
		eb.Reset()
		var d time.Duration
		for i := 0; i < attempt; i++ {
			d = eb.NextBackOff()
		}
		if d <= 0 {
			return cfg.MaxInterval
		}
		if d > cfg.MaxInterval {
			return cfg.MaxInterval
		}
		return d
	}
}

// Capped wraps fn so it never returns more than max.
func Capped(fn IntervalFunction, max time.Duration) IntervalFunction {
	return func(attempt int) time.Duration {
		d := fn(attempt)
		if d > max {
			return max
		}
		return d
	}
}

// Config configures a Retry.
type Config struct {
	// MaxAttempts is the total number of invocations permitted, including
	// the first (>= 1).
	MaxAttempts int

	// IntervalFunction computes the delay before each retry attempt.
	IntervalFunction IntervalFunction

	// RetryOnResult, if set, treats a successful result as retryable when
	// it returns true (spec.md §4.5 step 2).
	RetryOnResult func(result any) bool

	// RetryOnException decides whether an error is retried at all; false
	// propagates immediately without consuming an attempt's backoff delay
	// (spec.md §4.5 step 3). Defaults to "err != nil".
	RetryOnException func(err error) bool

	Clock  clock.Clock
	Logger *zap.Logger
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.IntervalFunction == nil {
		c.IntervalFunction = FixedInterval(500 * time.Millisecond)
	}
	if c.RetryOnException == nil {
		c.RetryOnException = func(err error) bool { return err != nil }
	}
	if c.Clock == nil {
		c.Clock = clock.Wall()
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

func (c Config) validate() {
	if c.MaxAttempts < 1 {
		panic("retrycore: MaxAttempts must be >= 1")
	}
}

// EventKind enumerates the retry's lifecycle event stream (spec.md §4.5,
// extended with per-attempt visibility not named explicitly in the source
// spec but natural given the other primitives' OnX vocabulary).
type EventKind = event.Kind

const (
	EventAttemptFailed EventKind = "OnAttemptFailed"
	EventRetry         EventKind = "OnRetry"
	EventSuccess       EventKind = "OnSuccess"
	EventError         EventKind = "OnError"
)

// Metrics are the cumulative per-Retry counters from spec.md §4.5.
type Metrics struct {
	TotalCalls                     int64
	SuccessfulCallsWithoutRetry    int64
	SuccessfulCallsWithRetry       int64
	FailedCallsWithoutRetry        int64
	FailedCallsWithRetry           int64
}

type metricsCounters struct {
	total                  atomic.Int64
	successWithoutRetry    atomic.Int64
	successWithRetry       atomic.Int64
	failedWithoutRetry     atomic.Int64
	failedWithRetry        atomic.Int64
}

func (m *metricsCounters) snapshot() Metrics {
	return Metrics{
		TotalCalls:                  m.total.Load(),
		SuccessfulCallsWithoutRetry: m.successWithoutRetry.Load(),
		SuccessfulCallsWithRetry:    m.successWithRetry.Load(),
		FailedCallsWithoutRetry:     m.failedWithoutRetry.Load(),
		FailedCallsWithRetry:        m.failedWithRetry.Load(),
	}
}
