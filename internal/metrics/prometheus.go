package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "surge"

// Exporter exposes live Registry and Collector aggregates as Prometheus
// metrics. It reads snapshots on every scrape and holds no state of its own.
type Exporter struct {
	registry  *Registry
	collector *Collector
	vus       int

	iterations   *prometheus.Desc
	checks       *prometheus.Desc
	errors       *prometheus.Desc
	vusDesc      *prometheus.Desc
	httpRequests *prometheus.Desc
	httpFailures *prometheus.Desc
}

// NewExporter creates an Exporter. collector may be nil.
func NewExporter(registry *Registry, collector *Collector, vus int) *Exporter {
	return &Exporter{
		registry:  registry,
		collector: collector,
		vus:       vus,
		iterations: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "iterations_total"),
			"Completed virtual user iterations.", nil, nil),
		checks: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "checks_total"),
			"Recorded checks by name and result.", []string{"check", "result"}, nil),
		errors: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "iteration_errors_total"),
			"Iterations that returned an error or panicked.", nil, nil),
		vusDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "vus"),
			"Configured virtual users.", nil, nil),
		httpRequests: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "http", "requests_total"),
			"HTTP requests issued by iterations.", nil, nil),
		httpFailures: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "http", "requests_failed_total"),
			"HTTP requests that failed or returned a status >= 400.", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (e *Exporter) Describe(ch chan<- *prometheus.Desc) {
	ch <- e.iterations
	ch <- e.checks
	ch <- e.errors
	ch <- e.vusDesc
	if e.collector != nil {
		ch <- e.httpRequests
		ch <- e.httpFailures
	}
}

// Collect implements prometheus.Collector.
func (e *Exporter) Collect(ch chan<- prometheus.Metric) {
	snap := e.registry.Snapshot()
	ch <- prometheus.MustNewConstMetric(e.iterations, prometheus.CounterValue, float64(snap.Iterations))
	ch <- prometheus.MustNewConstMetric(e.errors, prometheus.CounterValue, float64(len(snap.Errors)))
	ch <- prometheus.MustNewConstMetric(e.vusDesc, prometheus.GaugeValue, float64(e.vus))
	for _, c := range snap.Checks {
		ch <- prometheus.MustNewConstMetric(e.checks, prometheus.CounterValue, float64(c.Passed), c.Name, "pass")
		ch <- prometheus.MustNewConstMetric(e.checks, prometheus.CounterValue, float64(c.Failed), c.Name, "fail")
	}
	if e.collector != nil {
		stats := e.collector.Stats(0)
		ch <- prometheus.MustNewConstMetric(e.httpRequests, prometheus.CounterValue, float64(stats.Requests))
		ch <- prometheus.MustNewConstMetric(e.httpFailures, prometheus.CounterValue, float64(stats.Failures))
	}
}
