package prometheusadapter

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/shieldrail/resilience/retry"
)

// RetryCollector exports a Retry's cumulative attempt counters.
type RetryCollector struct {
	r *retry.Retry

	totalDesc               *prometheus.Desc
	successWithoutRetryDesc *prometheus.Desc
	successWithRetryDesc    *prometheus.Desc
	failedWithoutRetryDesc  *prometheus.Desc
	failedWithRetryDesc     *prometheus.Desc
}

// NewRetryCollector builds a Prometheus collector for r.
func NewRetryCollector(r *retry.Retry) *RetryCollector {
	labels := prometheus.Labels{"name": r.Name()}
	return &RetryCollector{
		r: r,
		totalDesc: prometheus.NewDesc(
			"resilience_retry_calls_total",
			"Total top-level calls made through Execute/ExecuteAsync.",
			nil, labels,
		),
		successWithoutRetryDesc: prometheus.NewDesc(
			"resilience_retry_successful_calls_without_retry_total",
			"Calls that succeeded on the first attempt.",
			nil, labels,
		),
		successWithRetryDesc: prometheus.NewDesc(
			"resilience_retry_successful_calls_with_retry_total",
			"Calls that succeeded only after one or more retries.",
			nil, labels,
		),
		failedWithoutRetryDesc: prometheus.NewDesc(
			"resilience_retry_failed_calls_without_retry_total",
			"Calls that failed with a non-retryable error on the first attempt.",
			nil, labels,
		),
		failedWithRetryDesc: prometheus.NewDesc(
			"resilience_retry_failed_calls_with_retry_total",
			"Calls that failed after at least one retry: budget exhausted, a non-retryable error on a later attempt, or cancelled between attempts.",
			nil, labels,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *RetryCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.totalDesc
	ch <- c.successWithoutRetryDesc
	ch <- c.successWithRetryDesc
	ch <- c.failedWithoutRetryDesc
	ch <- c.failedWithRetryDesc
}

// Collect implements prometheus.Collector.
func (c *RetryCollector) Collect(ch chan<- prometheus.Metric) {
	m := c.r.Metrics()
	ch <- prometheus.MustNewConstMetric(c.totalDesc, prometheus.CounterValue, float64(m.TotalCalls))
	ch <- prometheus.MustNewConstMetric(c.successWithoutRetryDesc, prometheus.CounterValue, float64(m.SuccessfulCallsWithoutRetry))
	ch <- prometheus.MustNewConstMetric(c.successWithRetryDesc, prometheus.CounterValue, float64(m.SuccessfulCallsWithRetry))
	ch <- prometheus.MustNewConstMetric(c.failedWithoutRetryDesc, prometheus.CounterValue, float64(m.FailedCallsWithoutRetry))
	ch <- prometheus.MustNewConstMetric(c.failedWithRetryDesc, prometheus.CounterValue, float64(m.FailedCallsWithRetry))
}
