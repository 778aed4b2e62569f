// Package circuitbreaker is the public facade over internal/cbreaker,
// mirroring the teacher's autobreaker.go: type aliases over the engine plus
// registry-backed named construction (spec.md §6 "Registry").
package circuitbreaker

import (
	"github.com/shieldrail/resilience/internal/cbreaker"
	"github.com/shieldrail/resilience/registry"
)

// CircuitBreaker gates calls against a backend using a sliding-window
// failure/slow-call rate (spec.md §3).
type CircuitBreaker = cbreaker.CircuitBreaker

// State is one of the six admission states (spec.md §4.1).
type State = cbreaker.State

const (
	StateClosed      = cbreaker.StateClosed
	StateOpen        = cbreaker.StateOpen
	StateHalfOpen    = cbreaker.StateHalfOpen
	StateDisabled    = cbreaker.StateDisabled
	StateForcedOpen  = cbreaker.StateForcedOpen
	StateMeteredOnly = cbreaker.StateMeteredOnly
)

// SlidingWindowType selects count-based or time-based metrics aggregation.
type SlidingWindowType = cbreaker.SlidingWindowType

const (
	CountBasedWindow = cbreaker.CountBasedWindow
	TimeBasedWindow  = cbreaker.TimeBasedWindow
)

// Config configures a CircuitBreaker; see DefaultConfig for the spec.md §6
// defaults.
type Config = cbreaker.Config

// Diagnostics is a troubleshooting snapshot (spec.md §6 "Diagnostics").
type Diagnostics = cbreaker.Diagnostics

// EventKind enumerates the lifecycle events a CircuitBreaker publishes.
type EventKind = cbreaker.EventKind

const (
	EventSuccess              = cbreaker.EventSuccess
	EventError                = cbreaker.EventError
	EventIgnoredError         = cbreaker.EventIgnoredError
	EventSlowCallRateExceeded = cbreaker.EventSlowCallRateExceeded
	EventFailureRateExceeded  = cbreaker.EventFailureRateExceeded
	EventCallNotPermitted     = cbreaker.EventCallNotPermitted
	EventStateTransition      = cbreaker.EventStateTransition
	EventReset                = cbreaker.EventReset
)

// StateTransitionPayload is the payload of an EventStateTransition event.
type StateTransitionPayload = cbreaker.StateTransitionPayload

// OutcomePayload is the payload of EventSuccess/EventError/EventIgnoredError.
type OutcomePayload = cbreaker.OutcomePayload

var (
	// ErrCallNotPermitted is returned when gating refuses a call.
	ErrCallNotPermitted = cbreaker.ErrCallNotPermitted

	// ErrIllegalStateTransition is returned by an administrative transition
	// method when the requested target is the breaker's current state.
	ErrIllegalStateTransition = cbreaker.ErrIllegalStateTransition
)

// DefaultConfig returns the spec.md §6 default Config.
func DefaultConfig() Config { return cbreaker.DefaultConfig() }

// New constructs a standalone, unregistered CircuitBreaker. Most callers
// should prefer Of, which deduplicates by name through the package Registry.
func New(name string, cfg Config) *CircuitBreaker { return cbreaker.New(name, cfg) }

var registryOnce = registry.New[*CircuitBreaker]()

// Registry returns the process-wide CircuitBreaker registry, matching
// spec.md §6's "a process may keep more than one named instance of each
// primitive, reachable by name."
func Registry() *registry.Registry[*CircuitBreaker] { return registryOnce }

// Of returns the named CircuitBreaker, constructing it with cfg on first
// access and ignoring cfg on subsequent calls (spec.md §6
// "computeIfAbsent").
func Of(name string, cfg Config) *CircuitBreaker {
	return registryOnce.ComputeIfAbsent(name, func() *CircuitBreaker {
		return New(name, cfg)
	})
}

// OfDefaults is Of with DefaultConfig().
func OfDefaults(name string) *CircuitBreaker {
	return Of(name, DefaultConfig())
}
