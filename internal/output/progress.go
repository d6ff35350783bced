package output

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/torosent/surge/internal/metrics"
)

// ProgressReporter displays real-time progress updates.
type ProgressReporter struct {
	registry  *metrics.Registry
	collector *metrics.Collector
	ticker    *time.Ticker
	done      chan struct{}
	finished  chan struct{}
	writer    io.Writer
	active    int32
	start     time.Time
}

// NewProgressReporter creates a progress reporter that updates at the given
// interval. The collector may be nil when no HTTP requests are made.
func NewProgressReporter(registry *metrics.Registry, collector *metrics.Collector, interval time.Duration, writer io.Writer) *ProgressReporter {
	if writer == nil {
		writer = io.Discard
	}
	return &ProgressReporter{
		registry:  registry,
		collector: collector,
		ticker:    time.NewTicker(interval),
		done:      make(chan struct{}),
		finished:  make(chan struct{}),
		writer:    writer,
		start:     time.Now(),
	}
}

// Start begins displaying progress updates in a background goroutine.
func (p *ProgressReporter) Start() {
	if !atomic.CompareAndSwapInt32(&p.active, 0, 1) {
		return // already running
	}
	go p.run()
}

// Stop halts progress updates and ends the progress line.
func (p *ProgressReporter) Stop() {
	if atomic.CompareAndSwapInt32(&p.active, 1, 0) {
		close(p.done)
		p.ticker.Stop()
		<-p.finished
		fmt.Fprintln(p.writer)
	}
}

func (p *ProgressReporter) run() {
	defer close(p.finished)
	for {
		select {
		case <-p.ticker.C:
			fmt.Fprint(p.writer, p.line(time.Since(p.start)))
		case <-p.done:
			return
		}
	}
}

func (p *ProgressReporter) line(elapsed time.Duration) string {
	counts := p.registry.Counts()
	line := fmt.Sprintf("\r[%s] Iterations: %d | Checks: ✓ %d ✗ %d | Errors: %d",
		elapsed.Round(time.Second), counts.Iterations, counts.ChecksPassed, counts.ChecksFailed, counts.Errors)
	if p.collector != nil {
		stats := p.collector.Stats(elapsed)
		if stats.Requests > 0 {
			line += fmt.Sprintf(" | Requests: %d | RPS: %.1f | P99 %.1fms",
				stats.Requests, stats.RequestsPerSec, stats.Latency.P99Ms)
		}
	}
	return line
}
