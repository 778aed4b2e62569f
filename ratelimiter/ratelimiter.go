// Package ratelimiter is the public facade over internal/limiter: a
// token-issuing policy admitting at most N permits per refresh period,
// with an atomic cycle-based variant and a continuous-refill variant
// (spec.md §4.3).
package ratelimiter

import (
	"context"
	"time"

	"github.com/shieldrail/resilience/event"
	"github.com/shieldrail/resilience/internal/limiter"
	"github.com/shieldrail/resilience/registry"
)

// Config configures a Cycle rate limiter.
type Config = limiter.Config

// RefillConfig configures a Refill rate limiter.
type RefillConfig = limiter.RefillConfig

// EventKind enumerates the lifecycle events a limiter publishes.
type EventKind = limiter.EventKind

const (
	EventSuccess = limiter.EventSuccess
	EventFailure = limiter.EventFailure
)

// OutcomePayload is the payload of EventSuccess/EventFailure.
type OutcomePayload = limiter.OutcomePayload

// ErrRequestNotPermitted is returned by Execute/ExecuteContext when the
// limiter denies a request within its timeout (spec.md §7).
var ErrRequestNotPermitted = limiter.ErrRequestNotPermitted

// RateLimiter is satisfied by both the Cycle and Refill variants, letting
// callers depend on the admission contract rather than the concrete
// algorithm (spec.md §4.3's "Contract" paragraph).
type RateLimiter interface {
	Name() string
	AcquirePermission(ctx context.Context, permits int) bool
	TryAcquirePermission(permits int) bool
	Execute(op func() (any, error)) (any, error)
	ExecuteContext(ctx context.Context, op func() (any, error)) (any, error)
	EventPublisher() *event.Publisher
}

// Cycle is the atomic cycle-based permit scheduler: time since construction
// is divided into fixed-length cycles, each replenishing LimitForPeriod
// permits (spec.md §4.3 "Model").
type Cycle = limiter.Cycle

// Refill is the continuous-refill variant backed by golang.org/x/time/rate:
// reservations decrement a bucket that replenishes linearly with time
// instead of resetting at cycle boundaries (spec.md §4.3 "Refill variant").
type Refill = limiter.Refill

// DefaultConfig returns reasonable Cycle defaults: 50 permits/second, no
// wait for a future cycle.
func DefaultConfig() Config {
	return Config{LimitForPeriod: 50, LimitRefreshPeriod: time.Second}
}

// NewCycle constructs a standalone, unregistered Cycle limiter. Most callers
// should prefer Of, which deduplicates by name through the package Registry.
func NewCycle(name string, cfg Config) *Cycle { return limiter.NewCycle(name, cfg) }

// NewRefill constructs a standalone, unregistered Refill limiter.
func NewRefill(name string, cfg RefillConfig) *Refill { return limiter.NewRefill(name, cfg) }

var registryOnce = registry.New[RateLimiter]()

// Registry returns the process-wide RateLimiter registry (spec.md §3
// "Lifecycle").
func Registry() *registry.Registry[RateLimiter] { return registryOnce }

// Of returns the named Cycle limiter, constructing it with cfg on first
// access (spec.md §6 "computeIfAbsent").
func Of(name string, cfg Config) RateLimiter {
	return registryOnce.ComputeIfAbsent(name, func() RateLimiter {
		return NewCycle(name, cfg)
	})
}

// OfDefaults is Of with DefaultConfig().
func OfDefaults(name string) RateLimiter {
	return Of(name, DefaultConfig())
}

// OfRefill returns the named Refill limiter, constructing it with cfg on
// first access.
func OfRefill(name string, cfg RefillConfig) RateLimiter {
	return registryOnce.ComputeIfAbsent(name, func() RateLimiter {
		return NewRefill(name, cfg)
	})
}
