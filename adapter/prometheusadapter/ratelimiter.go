package prometheusadapter

import "github.com/shieldrail/resilience/ratelimiter"

// NewRateLimiterEventCollector returns an EventCounter subscribed to rl's
// event stream. The rate limiter primitive has no standing gauge state
// worth exporting beyond admit/reject counts — those already flow through
// EventSuccess/EventFailure, so unlike the other primitives it gets an
// event-only collector rather than a dedicated gauge collector.
func NewRateLimiterEventCollector(rl ratelimiter.RateLimiter) *EventCounter {
	return NewEventCounter("rate_limiter", rl.Name(), rl.EventPublisher())
}
