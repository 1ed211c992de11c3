package retry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector exports the metrics of a Runner to Prometheus.
type Collector struct {
	runner *Runner

	attempts   *prometheus.Desc
	errors     *prometheus.Desc
	maxRetries *prometheus.Desc
	duration   *prometheus.Desc
}

var _ prometheus.Collector = &Collector{}

// NewCollector creates a Collector for the runner.
func NewCollector(runner *Runner, namespace string) *Collector {
	return &Collector{
		runner: runner,
		attempts: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "retry", "attempts_total"),
			"Number of attempts per phase label.",
			[]string{"phase"}, nil,
		),
		errors: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "retry", "errors_total"),
			"Number of classified attempt errors.",
			nil, nil,
		),
		maxRetries: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "retry", "max_retry_count"),
			"Highest retry count reached by any operation.",
			nil, nil,
		),
		duration: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "retry", "duration_seconds"),
			"Wall-clock time from the first to the last recorded attempt.",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.attempts
	ch <- c.errors
	ch <- c.maxRetries
	ch <- c.duration
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	m := c.runner.Metrics()
	for phase, count := range m.PhaseCounts {
		ch <- prometheus.MustNewConstMetric(c.attempts, prometheus.CounterValue, float64(count), phase)
	}
	ch <- prometheus.MustNewConstMetric(c.errors, prometheus.CounterValue, float64(m.ErrorCount))
	ch <- prometheus.MustNewConstMetric(c.maxRetries, prometheus.GaugeValue, float64(m.MaxRetryCount))
	ch <- prometheus.MustNewConstMetric(c.duration, prometheus.GaugeValue, m.TotalDuration.Seconds())
}

// WriteTextfile writes the runner metrics in the Prometheus text format,
// suitable for the node exporter textfile collector.
func WriteTextfile(runner *Runner, namespace, filename string) error {
	registry := prometheus.NewRegistry()
	if err := registry.Register(NewCollector(runner, namespace)); err != nil {
		return err
	}
	return prometheus.WriteToTextfile(filename, registry)
}
