package prometheusadapter

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/shieldrail/resilience/circuitbreaker"
)

// CircuitBreakerCollector collects one CircuitBreaker's sliding-window
// metrics and state, in the shape of the teacher's CircuitBreakerCollector
// but generalized from three states to six and from Counts-struct fields to
// the window.Snapshot this engine keeps.
type CircuitBreakerCollector struct {
	cb *circuitbreaker.CircuitBreaker

	stateDesc             *prometheus.Desc
	requestsDesc          *prometheus.Desc
	successesDesc         *prometheus.Desc
	failuresDesc          *prometheus.Desc
	slowCallsDesc         *prometheus.Desc
	notPermittedDesc      *prometheus.Desc
	failureRateDesc       *prometheus.Desc
	slowCallRateDesc      *prometheus.Desc
	willTripNextDesc      *prometheus.Desc
	timeUntilHalfOpenDesc *prometheus.Desc
}

// NewCircuitBreakerCollector builds a Prometheus collector for cb.
func NewCircuitBreakerCollector(cb *circuitbreaker.CircuitBreaker) *CircuitBreakerCollector {
	name := cb.Name()
	labels := prometheus.Labels{"name": name}
	return &CircuitBreakerCollector{
		cb: cb,
		stateDesc: prometheus.NewDesc(
			"resilience_circuit_breaker_state",
			"Current state (0=closed, 1=open, 2=half_open, 3=disabled, 4=forced_open, 5=metered_only).",
			nil, labels,
		),
		requestsDesc: prometheus.NewDesc(
			"resilience_circuit_breaker_requests_total",
			"Total calls recorded in the current sliding window.",
			nil, labels,
		),
		successesDesc: prometheus.NewDesc(
			"resilience_circuit_breaker_successes_total",
			"Successful calls recorded in the current sliding window.",
			nil, labels,
		),
		failuresDesc: prometheus.NewDesc(
			"resilience_circuit_breaker_failures_total",
			"Failed calls recorded in the current sliding window.",
			nil, labels,
		),
		slowCallsDesc: prometheus.NewDesc(
			"resilience_circuit_breaker_slow_calls_total",
			"Calls whose duration crossed SlowCallDurationThreshold.",
			nil, labels,
		),
		notPermittedDesc: prometheus.NewDesc(
			"resilience_circuit_breaker_not_permitted_total",
			"Calls denied admission while the breaker was Open, ForcedOpen, or HalfOpen with no trial permit left.",
			nil, labels,
		),
		failureRateDesc: prometheus.NewDesc(
			"resilience_circuit_breaker_failure_rate",
			"Current failure rate percentage, or -1 if below MinimumNumberOfCalls.",
			nil, labels,
		),
		slowCallRateDesc: prometheus.NewDesc(
			"resilience_circuit_breaker_slow_call_rate",
			"Current slow-call rate percentage, or -1 if below MinimumNumberOfCalls.",
			nil, labels,
		),
		willTripNextDesc: prometheus.NewDesc(
			"resilience_circuit_breaker_will_trip_next",
			"1 if one more failed call would open the breaker, 0 otherwise.",
			nil, labels,
		),
		timeUntilHalfOpenDesc: prometheus.NewDesc(
			"resilience_circuit_breaker_seconds_until_half_open",
			"Remaining wait before an Open breaker becomes eligible for HalfOpen.",
			nil, labels,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *CircuitBreakerCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.stateDesc
	ch <- c.requestsDesc
	ch <- c.successesDesc
	ch <- c.failuresDesc
	ch <- c.slowCallsDesc
	ch <- c.notPermittedDesc
	ch <- c.failureRateDesc
	ch <- c.slowCallRateDesc
	ch <- c.willTripNextDesc
	ch <- c.timeUntilHalfOpenDesc
}

// Collect implements prometheus.Collector.
func (c *CircuitBreakerCollector) Collect(ch chan<- prometheus.Metric) {
	diag := c.cb.Diagnostics()

	ch <- prometheus.MustNewConstMetric(c.stateDesc, prometheus.GaugeValue, float64(diag.State))
	ch <- prometheus.MustNewConstMetric(c.requestsDesc, prometheus.CounterValue, float64(diag.Metrics.TotalCalls))
	ch <- prometheus.MustNewConstMetric(c.successesDesc, prometheus.CounterValue, float64(diag.Metrics.SuccessfulCalls))
	ch <- prometheus.MustNewConstMetric(c.failuresDesc, prometheus.CounterValue, float64(diag.Metrics.FailedCalls))
	ch <- prometheus.MustNewConstMetric(c.slowCallsDesc, prometheus.CounterValue, float64(diag.Metrics.SlowCalls))
	ch <- prometheus.MustNewConstMetric(c.notPermittedDesc, prometheus.CounterValue, float64(diag.NotPermittedCalls))
	ch <- prometheus.MustNewConstMetric(c.failureRateDesc, prometheus.GaugeValue, diag.Metrics.FailureRate)
	ch <- prometheus.MustNewConstMetric(c.slowCallRateDesc, prometheus.GaugeValue, diag.Metrics.SlowCallRate)

	willTrip := 0.0
	if diag.WillTripNext {
		willTrip = 1.0
	}
	ch <- prometheus.MustNewConstMetric(c.willTripNextDesc, prometheus.GaugeValue, willTrip)
	ch <- prometheus.MustNewConstMetric(c.timeUntilHalfOpenDesc, prometheus.GaugeValue, diag.TimeUntilHalfOpen.Seconds())
}
