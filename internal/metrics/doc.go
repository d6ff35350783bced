// Package metrics records what virtual users observe during a run and turns it
// into a final report.
//
// # Registry
//
// The [Registry] is the check registry shared by every virtual user. It
// records named pass/fail checks, iteration errors and iteration durations:
//
//	reg := metrics.NewRegistry()
//	reg.Record(vu, iteration, "status is 201", resp.StatusCode == 201)
//	reg.RecordError(vu, iteration, err)
//	reg.RecordIteration(time.Since(start))
//
// A single mutex guards appends and aggregate counters, so the counters in a
// [Snapshot] always equal the sum over the recorded [CheckResult] values.
//
// # Collector
//
// The [Collector] aggregates HTTP request latencies and status codes using an
// HDR histogram.
//
// # Summary
//
// [BuildSummary] is a pure function combining a registry [Snapshot], run
// [Counters] and the elapsed time into a [Summary].
//
// # Prometheus
//
// [Exporter] implements prometheus.Collector over a live Registry and
// Collector so a run can be scraped while it is in progress.
package metrics
