package prometheusadapter

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/shieldrail/resilience/bulkhead"
)

// SemaphoreCollector exports a Semaphore bulkhead's admission capacity.
type SemaphoreCollector struct {
	b *bulkhead.Semaphore

	maxConcurrentDesc *prometheus.Desc
	availableDesc     *prometheus.Desc
}

// NewSemaphoreCollector builds a Prometheus collector for b.
func NewSemaphoreCollector(b *bulkhead.Semaphore) *SemaphoreCollector {
	labels := prometheus.Labels{"name": b.Name()}
	return &SemaphoreCollector{
		b: b,
		maxConcurrentDesc: prometheus.NewDesc(
			"resilience_bulkhead_max_concurrent_calls",
			"Configured concurrency cap.",
			nil, labels,
		),
		availableDesc: prometheus.NewDesc(
			"resilience_bulkhead_available_calls",
			"Permits currently unconsumed.",
			nil, labels,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *SemaphoreCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.maxConcurrentDesc
	ch <- c.availableDesc
}

// Collect implements prometheus.Collector.
func (c *SemaphoreCollector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(c.maxConcurrentDesc, prometheus.GaugeValue, float64(c.b.MaxConcurrentCalls()))
	ch <- prometheus.MustNewConstMetric(c.availableDesc, prometheus.GaugeValue, float64(c.b.AvailableCalls()))
}
