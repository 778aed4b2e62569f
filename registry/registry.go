// Package registry implements the named-instance factory/cache shared by
// every primitive kind (spec.md §2/§5/§6): "registry.get(name) ==
// registry.get(name)" must return the same instance, and concurrent first
// access to an unknown name must construct it exactly once.
package registry

import (
	"sync"

	"golang.org/x/sync/singleflight"
)

// Registry is a generic name -> instance cache. T is typically a pointer
// or interface type (*circuitbreaker.CircuitBreaker, ratelimiter.RateLimiter, ...), one
// Registry[T] per primitive kind, created at application startup and
// process-wide per spec.md §3's Lifecycle note.
type Registry[T any] struct {
	instances sync.Map // string -> T
	group     singleflight.Group
}

// New creates an empty registry.
func New[T any]() *Registry[T] {
	return &Registry[T]{}
}

// Find returns the instance registered under name, if any.
func (r *Registry[T]) Find(name string) (T, bool) {
	v, ok := r.instances.Load(name)
	if !ok {
		var zero T
		return zero, false
	}
	return v.(T), true
}

// ComputeIfAbsent returns the existing instance for name, or constructs one
// via build and registers it. Concurrent first access to the same name
// collapses onto a single construction — singleflight.Group serializes
// competing builds for the same key, and only the winner's result is
// stored, so every caller (including the losers of the race) observes the
// identical instance.
func (r *Registry[T]) ComputeIfAbsent(name string, build func() T) T {
	if v, ok := r.Find(name); ok {
		return v
	}

	v, _, _ := r.group.Do(name, func() (any, error) {
		if v, ok := r.Find(name); ok {
			return v, nil
		}
		built := build()
		r.instances.Store(name, built)
		return built, nil
	})
	return v.(T)
}

// Remove evicts name from the registry, if present.
func (r *Registry[T]) Remove(name string) {
	r.instances.Delete(name)
}

// Names returns every currently registered name, in no particular order.
func (r *Registry[T]) Names() []string {
	var names []string
	r.instances.Range(func(key, _ any) bool {
		names = append(names, key.(string))
		return true
	})
	return names
}

// AllValues returns every currently registered instance, in no particular
// order.
func (r *Registry[T]) AllValues() []T {
	var values []T
	r.instances.Range(func(_, value any) bool {
		values = append(values, value.(T))
		return true
	})
	return values
}
