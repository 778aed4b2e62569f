// Package clock provides the time source every resilience primitive is
// built against. Production code uses Wall, backed by the standard time
// package; tests inject a fake so state-machine timeouts (circuit breaker
// HalfOpen transition, rate limiter cycle boundaries, retry backoff) can be
// driven deterministically instead of with real sleeps.
package clock

import "time"

// Clock abstracts the two time operations the primitives need: reading the
// current instant and waiting for a duration to elapse. Go interfaces are
// structurally typed, so any fake clock exposing Now()/After() with this
// shape satisfies Clock without an adapter. Each package's tests define a
// small manually-advanced fake against this interface.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// Wall returns the production Clock, backed by time.Now and time.After.
func Wall() Clock {
	return wallClock{}
}

type wallClock struct{}

func (wallClock) Now() time.Time                         { return time.Now() }
func (wallClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
