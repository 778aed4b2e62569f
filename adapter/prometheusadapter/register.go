package prometheusadapter

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/shieldrail/resilience/adaptivebulkhead"
	"github.com/shieldrail/resilience/bulkhead"
	"github.com/shieldrail/resilience/circuitbreaker"
	"github.com/shieldrail/resilience/ratelimiter"
	"github.com/shieldrail/resilience/retry"
)

// RegisterCircuitBreaker registers cb's metrics collector and event counter
// with reg.
func RegisterCircuitBreaker(reg prometheus.Registerer, cb *circuitbreaker.CircuitBreaker) error {
	if err := reg.Register(NewCircuitBreakerCollector(cb)); err != nil {
		return err
	}
	return reg.Register(NewEventCounter("circuit_breaker", cb.Name(), cb.EventPublisher()))
}

// RegisterRetry registers r's metrics collector and event counter with reg.
func RegisterRetry(reg prometheus.Registerer, r *retry.Retry) error {
	if err := reg.Register(NewRetryCollector(r)); err != nil {
		return err
	}
	return reg.Register(NewEventCounter("retry", r.Name(), r.EventPublisher()))
}

// RegisterSemaphoreBulkhead registers b's metrics collector and event
// counter with reg.
func RegisterSemaphoreBulkhead(reg prometheus.Registerer, b *bulkhead.Semaphore) error {
	if err := reg.Register(NewSemaphoreCollector(b)); err != nil {
		return err
	}
	return reg.Register(NewEventCounter("bulkhead", b.Name(), b.EventPublisher()))
}

// RegisterAdaptiveBulkhead registers ab's metrics collector and event
// counter with reg.
func RegisterAdaptiveBulkhead(reg prometheus.Registerer, ab *adaptivebulkhead.AdaptiveBulkhead) error {
	if err := reg.Register(NewAdaptiveBulkheadCollector(ab)); err != nil {
		return err
	}
	return reg.Register(NewEventCounter("adaptive_bulkhead", ab.Name(), ab.EventPublisher()))
}

// RegisterRateLimiter registers rl's event counter with reg.
func RegisterRateLimiter(reg prometheus.Registerer, rl ratelimiter.RateLimiter) error {
	return reg.Register(NewRateLimiterEventCollector(rl))
}
