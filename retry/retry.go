// Package retry is the public facade over internal/retrycore: a policy
// that re-invokes a failed (or unacceptable-result) computation according
// to an attempt budget and backoff schedule (spec.md §4.5).
package retry

import (
	"time"

	"github.com/shieldrail/resilience/internal/retrycore"
	"github.com/shieldrail/resilience/registry"
)

// Config configures a Retry.
type Config = retrycore.Config

// IntervalFunction computes the delay before a given attempt.
type IntervalFunction = retrycore.IntervalFunction

// ExponentialConfig configures ExponentialInterval.
type ExponentialConfig = retrycore.ExponentialConfig

// FixedInterval returns an IntervalFunction that always waits d.
func FixedInterval(d time.Duration) IntervalFunction { return retrycore.FixedInterval(d) }

// ExponentialInterval builds an IntervalFunction backed by
// github.com/cenkalti/backoff/v5's ExponentialBackOff.
func ExponentialInterval(cfg ExponentialConfig) IntervalFunction {
	return retrycore.ExponentialInterval(cfg)
}

// Capped wraps fn so it never returns more than max.
func Capped(fn IntervalFunction, max time.Duration) IntervalFunction {
	return retrycore.Capped(fn, max)
}

// EventKind enumerates the lifecycle events a Retry publishes.
type EventKind = retrycore.EventKind

const (
	EventAttemptFailed = retrycore.EventAttemptFailed
	EventRetry         = retrycore.EventRetry
	EventSuccess       = retrycore.EventSuccess
	EventError         = retrycore.EventError
)

// Metrics are the cumulative per-Retry counters (spec.md §4.5).
type Metrics = retrycore.Metrics

// ErrMaxRetriesExceeded is the sentinel wrapped by MaxRetriesExceededError;
// match it with errors.Is.
var ErrMaxRetriesExceeded = retrycore.ErrMaxRetriesExceeded

// MaxRetriesExceededError is returned by Execute/ExecuteAsync when
// MaxAttempts is exhausted via a retryable result rather than an exception
// (spec.md §7).
type MaxRetriesExceededError = retrycore.MaxRetriesExceededError

// Retry decorates operations with an attempt loop plus backoff.
type Retry = retrycore.Retry

// AsyncHandle is the cancellable handle returned by ExecuteAsync.
type AsyncHandle = retrycore.AsyncHandle

// DefaultConfig returns a 3-attempt, 500ms-fixed-interval policy.
func DefaultConfig() Config {
	return Config{MaxAttempts: 3, IntervalFunction: FixedInterval(500 * time.Millisecond)}
}

// New constructs a standalone, unregistered Retry. Most callers should
// prefer Of, which deduplicates by name through the package Registry.
func New(name string, cfg Config) *Retry { return retrycore.New(name, cfg) }

var registryOnce = registry.New[*Retry]()

// Registry returns the process-wide Retry registry (spec.md §3
// "Lifecycle").
func Registry() *registry.Registry[*Retry] { return registryOnce }

// Of returns the named Retry, constructing it with cfg on first access
// (spec.md §6 "computeIfAbsent").
func Of(name string, cfg Config) *Retry {
	return registryOnce.ComputeIfAbsent(name, func() *Retry {
		return New(name, cfg)
	})
}

// OfDefaults is Of with DefaultConfig().
func OfDefaults(name string) *Retry {
	return Of(name, DefaultConfig())
}
