package output

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/torosent/surge/internal/metrics"
)

func TestProgressLine(t *testing.T) {
	registry := metrics.NewRegistry()
	registry.RecordIteration(10 * time.Millisecond)
	registry.RecordIteration(12 * time.Millisecond)
	registry.Record(0, 0, "PR created", true)
	registry.Record(1, 0, "PR created", false)
	registry.RecordError(1, 0, errors.New("boom"))

	collector := metrics.NewCollector()
	for i := 0; i < 5; i++ {
		collector.RecordRequest(30*time.Millisecond, 201, nil)
	}

	reporter := NewProgressReporter(registry, collector, time.Hour, nil)
	defer reporter.Stop()

	line := reporter.line(5 * time.Second)
	for _, want := range []string{"[5s]", "Iterations: 2", "✓ 1 ✗ 1", "Errors: 1", "Requests: 5", "RPS: 1.0"} {
		if !strings.Contains(line, want) {
			t.Errorf("progress line %q missing %q", line, want)
		}
	}
}

func TestProgressLineWithoutRequests(t *testing.T) {
	reporter := NewProgressReporter(metrics.NewRegistry(), nil, time.Hour, nil)
	line := reporter.line(time.Second)
	if strings.Contains(line, "Requests:") {
		t.Errorf("progress line %q should omit request stats", line)
	}
}

func TestProgressReporterStartStop(t *testing.T) {
	registry := metrics.NewRegistry()
	registry.RecordIteration(time.Millisecond)

	var buf bytes.Buffer
	reporter := NewProgressReporter(registry, nil, 10*time.Millisecond, &buf)
	reporter.Start()
	reporter.Start()

	time.Sleep(50 * time.Millisecond)
	reporter.Stop()
	reporter.Stop()

	if !strings.Contains(buf.String(), "Iterations: 1") {
		t.Errorf("expected progress output, got %q", buf.String())
	}
}
