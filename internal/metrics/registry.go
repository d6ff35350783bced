package metrics

import (
	"sync"
	"time"
)

// CheckResult is a single named assertion outcome. It is never mutated after
// being recorded.
type CheckResult struct {
	VU        int       `json:"vu"`
	Iteration int64     `json:"iteration"`
	Name      string    `json:"name"`
	Passed    bool      `json:"passed"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorRecord describes a failed iteration.
type ErrorRecord struct {
	VU        int       `json:"vu"`
	Iteration int64     `json:"iteration"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Err       error     `json:"-"`
}

// CheckStats aggregates all results recorded under one check name.
type CheckStats struct {
	Name   string `json:"name"`
	Passed int64  `json:"passed"`
	Failed int64  `json:"failed"`
}

// Snapshot is a point-in-time view of a Registry.
type Snapshot struct {
	Iterations        int64
	ChecksPassed      int64
	ChecksFailed      int64
	Checks            []CheckStats
	Errors            []ErrorRecord
	IterationDuration LatencyStats
}

// Counts is the cheap subset of a Snapshot used by live reporters.
type Counts struct {
	Iterations   int64
	ChecksPassed int64
	ChecksFailed int64
	Errors       int64
}

// Registry records check results, iteration errors and iteration durations
// from concurrently running virtual users. All state is guarded by a single
// mutex so aggregate counters always agree with the recorded results.
type Registry struct {
	mu         sync.Mutex
	now        func() time.Time
	results    []CheckResult
	passed     int64
	failed     int64
	byName     map[string]*CheckStats
	names      []string
	errors     []ErrorRecord
	iterations int64
	durations  *latencyRecorder
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		now:       time.Now,
		byName:    make(map[string]*CheckStats),
		durations: newLatencyRecorder(),
	}
}

// Record appends a check result and returns it.
func (r *Registry) Record(vu int, iteration int64, name string, passed bool) CheckResult {
	res := CheckResult{
		VU:        vu,
		Iteration: iteration,
		Name:      name,
		Passed:    passed,
		Timestamp: r.now(),
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.results = append(r.results, res)
	stats, ok := r.byName[name]
	if !ok {
		stats = &CheckStats{Name: name}
		r.byName[name] = stats
		r.names = append(r.names, name)
	}
	if passed {
		r.passed++
		stats.Passed++
	} else {
		r.failed++
		stats.Failed++
	}
	return res
}

// RecordError records a failed iteration. Nil errors are ignored.
func (r *Registry) RecordError(vu int, iteration int64, err error) {
	if err == nil {
		return
	}
	rec := ErrorRecord{
		VU:        vu,
		Iteration: iteration,
		Message:   err.Error(),
		Timestamp: r.now(),
		Err:       err,
	}
	r.mu.Lock()
	r.errors = append(r.errors, rec)
	r.mu.Unlock()
}

// RecordIteration counts a completed iteration and its wall-clock duration.
func (r *Registry) RecordIteration(d time.Duration) {
	r.mu.Lock()
	r.iterations++
	r.durations.record(d)
	r.mu.Unlock()
}

// Results returns a copy of every recorded check result in append order.
func (r *Registry) Results() []CheckResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]CheckResult(nil), r.results...)
}

// Counts returns the aggregate counters only.
func (r *Registry) Counts() Counts {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Counts{
		Iterations:   r.iterations,
		ChecksPassed: r.passed,
		ChecksFailed: r.failed,
		Errors:       int64(len(r.errors)),
	}
}

// Snapshot returns the current aggregates. Checks are ordered by the first
// time each name was recorded.
func (r *Registry) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := Snapshot{
		Iterations:        r.iterations,
		ChecksPassed:      r.passed,
		ChecksFailed:      r.failed,
		IterationDuration: r.durations.stats(),
	}
	if len(r.names) > 0 {
		snap.Checks = make([]CheckStats, 0, len(r.names))
		for _, name := range r.names {
			snap.Checks = append(snap.Checks, *r.byName[name])
		}
	}
	if len(r.errors) > 0 {
		snap.Errors = append([]ErrorRecord(nil), r.errors...)
	}
	return snap
}
