package metrics

import (
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// LatencyStats summarises a duration distribution.
type LatencyStats struct {
	Count int64         `json:"count"`
	Min   time.Duration `json:"-"`
	Max   time.Duration `json:"-"`
	Mean  time.Duration `json:"-"`
	P50   time.Duration `json:"-"`
	P90   time.Duration `json:"-"`
	P95   time.Duration `json:"-"`
	P99   time.Duration `json:"-"`

	// JSON-friendly millisecond fields.
	MinMs  float64 `json:"min_ms"`
	MaxMs  float64 `json:"max_ms"`
	MeanMs float64 `json:"mean_ms"`
	P50Ms  float64 `json:"p50_ms"`
	P90Ms  float64 `json:"p90_ms"`
	P95Ms  float64 `json:"p95_ms"`
	P99Ms  float64 `json:"p99_ms"`
}

// latencyRecorder is not safe for concurrent use; owners guard it with their own lock.
type latencyRecorder struct {
	hist  *hdrhistogram.Histogram
	count int64
	min   time.Duration
	max   time.Duration
	sum   time.Duration
}

func newLatencyRecorder() *latencyRecorder {
	// Track values from 1µs up to 10 minutes with 3 significant figures.
	return &latencyRecorder{hist: hdrhistogram.New(1, 600_000_000, 3)}
}

func (l *latencyRecorder) record(d time.Duration) {
	if d < 0 {
		d = 0
	}
	us := d.Microseconds()
	if us < l.hist.LowestTrackableValue() {
		us = l.hist.LowestTrackableValue()
	}
	if us > l.hist.HighestTrackableValue() {
		us = l.hist.HighestTrackableValue()
	}
	_ = l.hist.RecordValue(us)

	l.count++
	l.sum += d
	if l.count == 1 || d < l.min {
		l.min = d
	}
	if d > l.max {
		l.max = d
	}
}

func (l *latencyRecorder) stats() LatencyStats {
	s := LatencyStats{
		Count: l.count,
		Min:   l.min,
		Max:   l.max,
	}
	if l.count > 0 {
		s.Mean = time.Duration(int64(l.sum) / l.count)
	}
	if l.hist.TotalCount() > 0 {
		s.P50 = quantile(l.hist, 50)
		s.P90 = quantile(l.hist, 90)
		s.P95 = quantile(l.hist, 95)
		s.P99 = quantile(l.hist, 99)
	}
	s.MinMs = toMs(s.Min)
	s.MaxMs = toMs(s.Max)
	s.MeanMs = toMs(s.Mean)
	s.P50Ms = toMs(s.P50)
	s.P90Ms = toMs(s.P90)
	s.P95Ms = toMs(s.P95)
	s.P99Ms = toMs(s.P99)
	return s
}

func quantile(h *hdrhistogram.Histogram, q float64) time.Duration {
	return time.Duration(h.ValueAtQuantile(q)) * time.Microsecond
}

func toMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
