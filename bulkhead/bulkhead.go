// Package bulkhead is the public facade over internal/bulkheadcore: a
// concurrency limiter capping in-flight calls, with a semaphore variant and
// a fixed-thread-pool variant (spec.md §4.4).
package bulkhead

import (
	"github.com/shieldrail/resilience/internal/bulkheadcore"
	"github.com/shieldrail/resilience/registry"
)

// SemaphoreConfig configures a Semaphore bulkhead.
type SemaphoreConfig = bulkheadcore.SemaphoreConfig

// PoolConfig configures a Pool bulkhead.
type PoolConfig = bulkheadcore.PoolConfig

// EventKind enumerates the lifecycle events a bulkhead publishes.
type EventKind = bulkheadcore.EventKind

const (
	EventCallPermitted = bulkheadcore.EventCallPermitted
	EventCallRejected  = bulkheadcore.EventCallRejected
	EventCallFinished  = bulkheadcore.EventCallFinished
)

// ErrBulkheadFull is returned by Pool.Submit when both the pool and its
// backlog queue are saturated.
var ErrBulkheadFull = bulkheadcore.ErrBulkheadFull

// Semaphore is the bounded counting-semaphore bulkhead variant.
type Semaphore = bulkheadcore.Semaphore

// Pool is the fixed-thread-pool bulkhead variant.
type Pool = bulkheadcore.Pool

// Future is the asynchronous handle returned by Pool.Submit.
type Future = bulkheadcore.Future

// DefaultSemaphoreConfig returns spec.md §6-style defaults: 25 concurrent
// calls, no wait.
func DefaultSemaphoreConfig() SemaphoreConfig {
	return SemaphoreConfig{MaxConcurrentCalls: 25}
}

// NewSemaphore constructs a standalone, unregistered Semaphore bulkhead.
// Most callers should prefer Of, which deduplicates by name through the
// package Registry.
func NewSemaphore(name string, cfg SemaphoreConfig) *Semaphore {
	return bulkheadcore.NewSemaphore(name, cfg)
}

// NewPool constructs a standalone, unregistered Pool bulkhead.
func NewPool(name string, cfg PoolConfig) *Pool {
	return bulkheadcore.NewPool(name, cfg)
}

var registryOnce = registry.New[*Semaphore]()

// Registry returns the process-wide Semaphore-bulkhead registry (spec.md §3
// "Lifecycle"). The Pool variant, being explicitly lifecycle-managed
// (Shutdown), is intentionally left out of the shared registry — callers
// construct and own Pools directly via NewPool.
func Registry() *registry.Registry[*Semaphore] { return registryOnce }

// Of returns the named Semaphore bulkhead, constructing it with cfg on
// first access (spec.md §6 "computeIfAbsent").
func Of(name string, cfg SemaphoreConfig) *Semaphore {
	return registryOnce.ComputeIfAbsent(name, func() *Semaphore {
		return NewSemaphore(name, cfg)
	})
}

// OfDefaults is Of with DefaultSemaphoreConfig().
func OfDefaults(name string) *Semaphore {
	return Of(name, DefaultSemaphoreConfig())
}
