// Package cbreaker is the circuit breaker engine: the six-state machine
// (Closed/Open/HalfOpen/Disabled/ForcedOpen/MeteredOnly) from spec.md §3/§4.1,
// built on the teacher's atomic-CAS style (1mb-dev/autobreaker's
// internal/breaker/circuitbreaker.go) but generalized from three states and
// a flat Counts struct to six states and a pluggable sliding-window metrics
// buffer (internal/window).
package cbreaker

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/shieldrail/resilience/clock"
	"github.com/shieldrail/resilience/event"
)

// State is one node of the circuit breaker's finite transition graph
// (spec.md §3/§4.1).
type State int32

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
	StateDisabled
	StateForcedOpen
	StateMeteredOnly
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	case StateDisabled:
		return "disabled"
	case StateForcedOpen:
		return "forced_open"
	case StateMeteredOnly:
		return "metered_only"
	default:
		return "unknown"
	}
}

// SlidingWindowType selects the internal/window implementation backing a
// circuit breaker's metrics buffer.
type SlidingWindowType int

const (
	CountBasedWindow SlidingWindowType = iota
	TimeBasedWindow
)

// Config configures a CircuitBreaker. Zero-valued fields are filled with
// defaults at construction, so DefaultConfig() with overrides and a partial
// literal both work — matching spec.md §6's "Config builder (immutable
// result)" contract, a Config is never mutated after New/Of, only replaced
// wholesale via UpdateConfig.
type Config struct {
	// FailureRateThreshold is the percentage (0,100] of failed calls that
	// trips the breaker once MinimumNumberOfCalls have been observed.
	FailureRateThreshold float64

	// SlowCallRateThreshold is the percentage (0,100] of slow calls that
	// trips the breaker.
	SlowCallRateThreshold float64

	// SlowCallDurationThreshold is the duration at or above which a call is
	// classified slow.
	SlowCallDurationThreshold time.Duration

	// MinimumNumberOfCalls is the minimum sample size before thresholds are
	// evaluated at all (>= 1).
	MinimumNumberOfCalls int

	// SlidingWindowType selects count-based or time-based aggregation.
	SlidingWindowType SlidingWindowType

	// SlidingWindowSize is the ring size: N slots for count-based, N
	// seconds for time-based.
	SlidingWindowSize int

	// WaitDurationInOpenState is how long the breaker stays Open before a
	// HalfOpen transition becomes eligible.
	WaitDurationInOpenState time.Duration

	// PermittedNumberOfCallsInHalfOpenState bounds the trial window.
	PermittedNumberOfCallsInHalfOpenState int

	// RecordException decides which errors are recorded as Failure.
	// Defaults to "err != nil".
	RecordException func(error) bool

	// IgnoreException decides which errors are recorded as Ignored
	// (metrics untouched, permission released). Defaults to never-ignore.
	IgnoreException func(error) bool

	// AutomaticTransitionFromOpenToHalfOpen, if true, schedules the
	// Open->HalfOpen transition on a timer instead of waiting for the next
	// tryAcquirePermission call to detect elapsed time.
	AutomaticTransitionFromOpenToHalfOpen bool

	// Clock is the time source; defaults to clock.Wall().
	Clock clock.Clock

	// Logger receives structured diagnostics (recovered panics in the
	// RecordException/IgnoreException predicates and in event listeners).
	// Defaults to a no-op logger.
	Logger *zap.Logger
}

// DefaultConfig returns the spec.md §6 defaults.
func DefaultConfig() Config {
	return Config{
		FailureRateThreshold:                   50,
		SlowCallRateThreshold:                   100,
		SlowCallDurationThreshold:               60 * time.Second,
		MinimumNumberOfCalls:                    100,
		SlidingWindowType:                       CountBasedWindow,
		SlidingWindowSize:                       100,
		WaitDurationInOpenState:                 60 * time.Second,
		PermittedNumberOfCallsInHalfOpenState:   10,
		RecordException:                         func(err error) bool { return err != nil },
		IgnoreException:                         func(error) bool { return false },
		AutomaticTransitionFromOpenToHalfOpen:   false,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.FailureRateThreshold == 0 {
		c.FailureRateThreshold = def.FailureRateThreshold
	}
	if c.SlowCallRateThreshold == 0 {
		c.SlowCallRateThreshold = def.SlowCallRateThreshold
	}
	if c.SlowCallDurationThreshold == 0 {
		c.SlowCallDurationThreshold = def.SlowCallDurationThreshold
	}
	if c.MinimumNumberOfCalls == 0 {
		c.MinimumNumberOfCalls = def.MinimumNumberOfCalls
	}
	if c.SlidingWindowSize == 0 {
		c.SlidingWindowSize = def.SlidingWindowSize
	}
	if c.WaitDurationInOpenState == 0 {
		c.WaitDurationInOpenState = def.WaitDurationInOpenState
	}
	if c.PermittedNumberOfCallsInHalfOpenState == 0 {
		c.PermittedNumberOfCallsInHalfOpenState = def.PermittedNumberOfCallsInHalfOpenState
	}
	if c.RecordException == nil {
		c.RecordException = def.RecordException
	}
	if c.IgnoreException == nil {
		c.IgnoreException = def.IgnoreException
	}
	if c.Clock == nil {
		c.Clock = clock.Wall()
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

// validate panics on an invalid Config, matching the teacher's policy
// (circuitbreaker.go's New): invalid settings are a programmer error to be
// caught in development, not handled at runtime.
func (c Config) validate() {
	if c.FailureRateThreshold <= 0 || c.FailureRateThreshold > 100 {
		panic("cbreaker: FailureRateThreshold must be in (0, 100]")
	}
	if c.SlowCallRateThreshold <= 0 || c.SlowCallRateThreshold > 100 {
		panic("cbreaker: SlowCallRateThreshold must be in (0, 100]")
	}
	if c.MinimumNumberOfCalls < 1 {
		panic("cbreaker: MinimumNumberOfCalls must be >= 1")
	}
	if c.SlidingWindowSize < 1 {
		panic("cbreaker: SlidingWindowSize must be >= 1")
	}
	if c.WaitDurationInOpenState < 0 {
		panic("cbreaker: WaitDurationInOpenState must be >= 0")
	}
	if c.PermittedNumberOfCallsInHalfOpenState < 1 {
		panic("cbreaker: PermittedNumberOfCallsInHalfOpenState must be >= 1")
	}
}

// Errors returned by the circuit breaker engine (spec.md §7).
var (
	// ErrCallNotPermitted is returned when Open/ForcedOpen/HalfOpen-exhausted
	// refuses a call.
	ErrCallNotPermitted = errors.New("cbreaker: call not permitted")

	// ErrIllegalStateTransition is returned by administrative transitions
	// that are not part of the finite transition graph (spec.md §4.1).
	ErrIllegalStateTransition = errors.New("cbreaker: illegal state transition")
)

// EventKind enumerates the circuit breaker's lifecycle event stream
// (spec.md §4.1). It is an alias of event.Kind so values can be passed
// directly to Publisher.Publish without conversion.
type EventKind = event.Kind

const (
	EventSuccess              EventKind = "OnSuccess"
	EventError                EventKind = "OnError"
	EventIgnoredError         EventKind = "OnIgnoredError"
	EventSlowCallRateExceeded EventKind = "OnSlowCallRateExceeded"
	EventFailureRateExceeded  EventKind = "OnFailureRateExceeded"
	EventCallNotPermitted     EventKind = "OnCallNotPermitted"
	EventStateTransition      EventKind = "OnStateTransition"
	EventReset                EventKind = "OnReset"
)

// StateTransitionPayload is the payload of an EventStateTransition event.
type StateTransitionPayload struct {
	From State
	To   State
}

// OutcomePayload is the payload of EventSuccess/EventError/EventIgnoredError.
type OutcomePayload struct {
	Duration time.Duration
	Err      error
}
