// Package bulkheadcore is the bulkhead engine (spec.md §4.4): a semaphore
// variant bounding in-flight calls, and a fixed-thread-pool variant bounding
// in-flight calls plus a bounded backlog queue.
package bulkheadcore

import (
	"time"

	"go.uber.org/zap"

	"github.com/shieldrail/resilience/event"
)

// EventKind enumerates the bulkhead's lifecycle event stream (spec.md §4.4).
type EventKind = event.Kind

const (
	EventCallPermitted EventKind = "OnCallPermitted"
	EventCallRejected  EventKind = "OnCallRejected"
	EventCallFinished  EventKind = "OnCallFinished"
)

// SemaphoreConfig configures the Semaphore variant.
type SemaphoreConfig struct {
	// MaxConcurrentCalls bounds the number of calls admitted at once.
	MaxConcurrentCalls int

	// MaxWaitDuration bounds how long AcquirePermission blocks for a free
	// permit before giving up. Zero means AcquirePermission does not wait:
	// it behaves like TryAcquirePermission.
	MaxWaitDuration time.Duration

	Logger *zap.Logger
}

func (c SemaphoreConfig) withDefaults() SemaphoreConfig {
	if c.MaxConcurrentCalls <= 0 {
		c.MaxConcurrentCalls = 25
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

func (c SemaphoreConfig) validate() {
	if c.MaxConcurrentCalls < 1 {
		panic("bulkheadcore: MaxConcurrentCalls must be >= 1")
	}
	if c.MaxWaitDuration < 0 {
		panic("bulkheadcore: MaxWaitDuration must be >= 0")
	}
}

// PoolConfig configures the FixedThreadPool variant.
type PoolConfig struct {
	// CoreThreadPoolSize is the number of workers kept running at all times.
	CoreThreadPoolSize int

	// MaxThreadPoolSize bounds worker growth under load.
	MaxThreadPoolSize int

	// QueueCapacity bounds backlogged submissions once every worker is busy.
	QueueCapacity int

	// KeepAliveDuration is how long above-core idle workers linger before
	// exiting.
	KeepAliveDuration time.Duration

	Logger *zap.Logger
}

func (c PoolConfig) withDefaults() PoolConfig {
	if c.CoreThreadPoolSize <= 0 {
		c.CoreThreadPoolSize = 1
	}
	if c.MaxThreadPoolSize <= 0 {
		c.MaxThreadPoolSize = c.CoreThreadPoolSize
	}
	if c.KeepAliveDuration <= 0 {
		c.KeepAliveDuration = 20 * time.Second
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

func (c PoolConfig) validate() {
	if c.CoreThreadPoolSize < 1 {
		panic("bulkheadcore: CoreThreadPoolSize must be >= 1")
	}
	if c.MaxThreadPoolSize < c.CoreThreadPoolSize {
		panic("bulkheadcore: MaxThreadPoolSize must be >= CoreThreadPoolSize")
	}
	if c.QueueCapacity < 0 {
		panic("bulkheadcore: QueueCapacity must be >= 0")
	}
}
