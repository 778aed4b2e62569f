// Package prometheusadapter exposes each primitive's metrics and lifecycle
// event stream as Prometheus collectors, generalizing the teacher's
// examples/prometheus/main.go CircuitBreakerCollector (per-field
// prometheus.Desc, registered directly with prometheus.MustRegister) from a
// single breaker to all five primitives plus a shared event-count
// collector built on the Event Publisher every primitive exposes.
package prometheusadapter

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/shieldrail/resilience/event"
)

// EventCounter is a prometheus.Collector counting the lifecycle events
// published by a single primitive instance, broken down by event kind. Any
// primitive's EventPublisher() return value can be wired in: the teacher's
// collector hard-coded one breaker's fields, this one subscribes instead
// and keys off whatever Kind values arrive.
type EventCounter struct {
	desc *prometheus.Desc

	mu     sync.Mutex
	counts map[string]uint64
}

// NewEventCounter subscribes to pub and returns a collector exporting
// resilience_<primitive>_events_total{name,kind}. primitive should be a
// short snake_case tag ("circuit_breaker", "retry", "bulkhead", ...).
func NewEventCounter(primitive, name string, pub *event.Publisher) *EventCounter {
	ec := &EventCounter{
		desc: prometheus.NewDesc(
			fmt.Sprintf("resilience_%s_events_total", primitive),
			"Total lifecycle events published, by kind.",
			[]string{"kind"},
			prometheus.Labels{"name": name},
		),
		counts: make(map[string]uint64),
	}
	pub.Subscribe(func(evt event.Event) {
		ec.mu.Lock()
		ec.counts[string(evt.Kind)]++
		ec.mu.Unlock()
	})
	return ec
}

// Describe implements prometheus.Collector.
func (ec *EventCounter) Describe(ch chan<- *prometheus.Desc) {
	ch <- ec.desc
}

// Collect implements prometheus.Collector.
func (ec *EventCounter) Collect(ch chan<- prometheus.Metric) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	for kind, n := range ec.counts {
		ch <- prometheus.MustNewConstMetric(ec.desc, prometheus.CounterValue, float64(n), kind)
	}
}
