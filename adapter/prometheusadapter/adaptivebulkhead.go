package prometheusadapter

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/shieldrail/resilience/adaptivebulkhead"
)

// AdaptiveBulkheadCollector exports an AdaptiveBulkhead's AIMD-controlled
// limit and current phase.
type AdaptiveBulkheadCollector struct {
	ab *adaptivebulkhead.AdaptiveBulkhead

	limitDesc *prometheus.Desc
	phaseDesc *prometheus.Desc
}

// NewAdaptiveBulkheadCollector builds a Prometheus collector for ab.
func NewAdaptiveBulkheadCollector(ab *adaptivebulkhead.AdaptiveBulkhead) *AdaptiveBulkheadCollector {
	labels := prometheus.Labels{"name": ab.Name()}
	return &AdaptiveBulkheadCollector{
		ab: ab,
		limitDesc: prometheus.NewDesc(
			"resilience_adaptive_bulkhead_limit",
			"Current AIMD-controlled concurrency limit.",
			nil, labels,
		),
		phaseDesc: prometheus.NewDesc(
			"resilience_adaptive_bulkhead_phase",
			"Current AIMD phase (0=slow_start, 1=congestion_avoidance).",
			nil, labels,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *AdaptiveBulkheadCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.limitDesc
	ch <- c.phaseDesc
}

// Collect implements prometheus.Collector.
func (c *AdaptiveBulkheadCollector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(c.limitDesc, prometheus.GaugeValue, float64(c.ab.Limit()))
	ch <- prometheus.MustNewConstMetric(c.phaseDesc, prometheus.GaugeValue, float64(c.ab.Phase()))
}
