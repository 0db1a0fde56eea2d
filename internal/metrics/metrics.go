// Package metrics exports arena occupancy and backward pass statistics to
// Prometheus.
package metrics

import (
	"time"

	"github.com/born-ml/gradarena/internal/pool"
	"github.com/prometheus/client_golang/prometheus"
)

// StatsFunc returns a snapshot of one or more arenas.
type StatsFunc func() []pool.Stats

// PoolCollector is a prometheus.Collector that reads arena stats at scrape
// time. Every metric is labeled with the arena name.
type PoolCollector struct {
	sources []StatsFunc

	capacity  *prometheus.Desc
	inUse     *prometheus.Desc
	peak      *prometheus.Desc
	exhausted *prometheus.Desc
}

// NewPoolCollector creates a collector over sources.
func NewPoolCollector(namespace string, sources ...StatsFunc) *PoolCollector {
	labels := []string{"pool"}
	return &PoolCollector{
		sources: sources,
		capacity: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "pool", "slots_capacity"),
			"Number of slots the arena was created with",
			labels, nil),
		inUse: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "pool", "slots_in_use"),
			"Number of slots currently issued",
			labels, nil),
		peak: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "pool", "slots_peak"),
			"Highest number of slots issued at once",
			labels, nil),
		exhausted: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "pool", "exhausted_total"),
			"Total number of requests refused because the arena was full",
			labels, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *PoolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.capacity
	ch <- c.inUse
	ch <- c.peak
	ch <- c.exhausted
}

// Collect implements prometheus.Collector.
func (c *PoolCollector) Collect(ch chan<- prometheus.Metric) {
	for _, src := range c.sources {
		for _, st := range src() {
			ch <- prometheus.MustNewConstMetric(c.capacity, prometheus.GaugeValue, float64(st.Capacity), st.Name)
			ch <- prometheus.MustNewConstMetric(c.inUse, prometheus.GaugeValue, float64(st.InUse), st.Name)
			ch <- prometheus.MustNewConstMetric(c.peak, prometheus.GaugeValue, float64(st.Peak), st.Name)
			ch <- prometheus.MustNewConstMetric(c.exhausted, prometheus.CounterValue, float64(st.Failures), st.Name)
		}
	}
}

// GraphMetrics records backward passes. It implements autodiff.Observer and
// prometheus.Collector.
type GraphMetrics struct {
	passes    prometheus.Counter
	failures  prometheus.Counter
	processed prometheus.Counter
	duration  prometheus.Histogram
}

// NewGraphMetrics creates unregistered backward pass metrics.
func NewGraphMetrics(namespace string) *GraphMetrics {
	return &GraphMetrics{
		passes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backward_passes_total",
			Help:      "Total number of backward passes run",
		}),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backward_failures_total",
			Help:      "Total number of backward passes that returned an error",
		}),
		processed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backward_nodes_processed_total",
			Help:      "Total number of graph nodes processed by backward passes",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backward_duration_seconds",
			Help:      "Duration of backward passes",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 10),
		}),
	}
}

// ObserveBackward records one pass.
func (m *GraphMetrics) ObserveBackward(nodes int, elapsed time.Duration, err error) {
	m.passes.Inc()
	m.processed.Add(float64(nodes))
	m.duration.Observe(elapsed.Seconds())
	if err != nil {
		m.failures.Inc()
	}
}

// Describe implements prometheus.Collector.
func (m *GraphMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.passes.Describe(ch)
	m.failures.Describe(ch)
	m.processed.Describe(ch)
	m.duration.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *GraphMetrics) Collect(ch chan<- prometheus.Metric) {
	m.passes.Collect(ch)
	m.failures.Collect(ch)
	m.processed.Collect(ch)
	m.duration.Collect(ch)
}
