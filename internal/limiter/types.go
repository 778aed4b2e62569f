// Package limiter is the rate limiter engine (spec.md §4.3): an atomic
// cycle-based permit scheduler and a continuous-refill variant, sharing one
// event vocabulary.
package limiter

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/shieldrail/resilience/clock"
	"github.com/shieldrail/resilience/event"
)

// ErrRequestNotPermitted is returned by Execute/ExecuteContext when the
// limiter denies a request within TimeoutDuration (spec.md §7).
var ErrRequestNotPermitted = errors.New("limiter: request not permitted")

// Config configures the Cycle limiter. The Refill variant is configured by
// RefillConfig instead.
type Config struct {
	// LimitForPeriod is the number of permits (N) issued per refresh cycle.
	LimitForPeriod int

	// LimitRefreshPeriod is the cycle length (T).
	LimitRefreshPeriod time.Duration

	// TimeoutDuration (W) bounds how long acquirePermission will wait for a
	// future cycle's permits before giving up.
	TimeoutDuration time.Duration

	// Clock is the time source; defaults to clock.Wall().
	Clock clock.Clock

	// Logger receives warnings from the limiter's event publisher (recovered
	// panics in event listeners).
	Logger *zap.Logger
}

func (c Config) withDefaults() Config {
	if c.LimitForPeriod <= 0 {
		c.LimitForPeriod = 50
	}
	if c.LimitRefreshPeriod <= 0 {
		c.LimitRefreshPeriod = time.Second
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
	if c.LimitForPeriod < 1 {
		panic("limiter: LimitForPeriod must be >= 1")
	}
	if c.LimitRefreshPeriod <= 0 {
		panic("limiter: LimitRefreshPeriod must be > 0")
	}
	if c.TimeoutDuration < 0 {
		panic("limiter: TimeoutDuration must be >= 0")
	}
}

// EventKind enumerates the rate limiter's lifecycle event stream
// (spec.md §4.3). Alias of event.Kind, see cbreaker.EventKind for why.
type EventKind = event.Kind

const (
	EventSuccess EventKind = "OnSuccess"
	EventFailure EventKind = "OnFailure"
)

// OutcomePayload is the payload of EventSuccess/EventFailure.
type OutcomePayload struct {
	Permits int
}
