// Package adaptivebulkhead is the public facade over internal/aimd: a
// bulkhead whose concurrency limit self-tunes via an AIMD congestion
// control loop driven by recent call outcomes (spec.md §4.6).
package adaptivebulkhead

import (
	"context"
	"errors"
	"time"

	"github.com/shieldrail/resilience/internal/aimd"
	"github.com/shieldrail/resilience/registry"
)

// ErrBulkheadFull is returned by Execute when the controller's current
// AIMD-adjusted limit denies admission.
var ErrBulkheadFull = errors.New("adaptivebulkhead: bulkhead full")

// Config configures an AdaptiveBulkhead.
type Config = aimd.Config

// Phase is one of the controller's two AIMD operating modes.
type Phase = aimd.Phase

const (
	SlowStart           = aimd.SlowStart
	CongestionAvoidance = aimd.CongestionAvoidance
)

// EventKind enumerates the lifecycle events an AdaptiveBulkhead publishes.
type EventKind = aimd.EventKind

const (
	EventLimitIncreased = aimd.EventLimitIncreased
	EventLimitDecreased = aimd.EventLimitDecreased
	EventPhaseChanged   = aimd.EventPhaseChanged
)

// LimitChangePayload is the payload of EventLimitIncreased/Decreased.
type LimitChangePayload = aimd.LimitChangePayload

// AdaptiveBulkhead wraps a bounded-concurrency admission gate whose limit
// grows and shrinks automatically (spec.md §4.6).
type AdaptiveBulkhead = aimd.Controller

// DefaultConfig returns conservative AIMD defaults: limit 1..200, starting
// at 1, growing 1.5x in SlowStart, halving on overload.
func DefaultConfig() Config {
	return Config{
		MinLimit:             1,
		MaxLimit:             200,
		InitialLimit:         1,
		FailureRateThreshold: 50,
		MinimumNumberOfCalls: 10,
		SlidingWindowSize:    30,
		IncreaseMultiplier:   1.5,
		DecreaseMultiplier:   0.5,
		IncreaseSummand:      1,
	}
}

// New constructs a standalone, unregistered AdaptiveBulkhead. Most callers
// should prefer Of, which deduplicates by name through the package
// Registry.
func New(name string, cfg Config) *AdaptiveBulkhead { return aimd.New(name, cfg) }

var registryOnce = registry.New[*AdaptiveBulkhead]()

// Registry returns the process-wide AdaptiveBulkhead registry (spec.md §3
// "Lifecycle").
func Registry() *registry.Registry[*AdaptiveBulkhead] { return registryOnce }

// Of returns the named AdaptiveBulkhead, constructing it with cfg on first
// access (spec.md §6 "computeIfAbsent").
func Of(name string, cfg Config) *AdaptiveBulkhead {
	return registryOnce.ComputeIfAbsent(name, func() *AdaptiveBulkhead {
		return New(name, cfg)
	})
}

// OfDefaults is Of with DefaultConfig().
func OfDefaults(name string) *AdaptiveBulkhead {
	return Of(name, DefaultConfig())
}

// Execute acquires a permit, runs op, and feeds its outcome back into the
// AIMD controller — the composed convenience path spec.md §2's control-flow
// diagram describes for every primitive.
func Execute(ab *AdaptiveBulkhead, ctx context.Context, op func() (any, error)) (any, error) {
	if !ab.AcquirePermission(ctx) {
		return nil, ErrBulkheadFull
	}
	start := time.Now()
	v, err := op()
	ab.OnComplete(time.Since(start), err)
	return v, err
}
