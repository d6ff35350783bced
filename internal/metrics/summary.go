package metrics

import "time"

// Counters carries run-level values that do not live in the Registry.
type Counters struct {
	RunID      string
	VUs        int
	VUsStarted int
	HTTP       *HTTPStats
}

// Summary is the final report of a run.
type Summary struct {
	RunID         string        `json:"run_id,omitempty"`
	VUs           int           `json:"vus"`
	VUsStarted    int           `json:"vus_started"`
	Iterations    int64         `json:"iterations"`
	ChecksPassed  int64         `json:"checks_passed"`
	ChecksFailed  int64         `json:"checks_failed"`
	Elapsed       time.Duration `json:"-"`
	ElapsedMs     float64       `json:"elapsed_ms"`
	IterationRate float64       `json:"iterations_per_sec"`
	Checks        []CheckStats  `json:"checks,omitempty"`
	Errors        []ErrorRecord `json:"errors,omitempty"`

	IterationDuration LatencyStats `json:"iteration_duration"`
	HTTP              *HTTPStats   `json:"http,omitempty"`
}

// TotalChecks returns passed plus failed checks.
func (s Summary) TotalChecks() int64 {
	return s.ChecksPassed + s.ChecksFailed
}

// CheckPassRate returns the fraction of passed checks, or 0 when none ran.
func (s Summary) CheckPassRate() float64 {
	total := s.TotalChecks()
	if total == 0 {
		return 0
	}
	return float64(s.ChecksPassed) / float64(total)
}

// BuildSummary combines a registry snapshot and run counters into a Summary.
// It has no side effects; slices are copied so the result does not alias the
// snapshot.
func BuildSummary(snap Snapshot, counters Counters, elapsed time.Duration) Summary {
	sum := Summary{
		RunID:             counters.RunID,
		VUs:               counters.VUs,
		VUsStarted:        counters.VUsStarted,
		Iterations:        snap.Iterations,
		ChecksPassed:      snap.ChecksPassed,
		ChecksFailed:      snap.ChecksFailed,
		Elapsed:           elapsed,
		ElapsedMs:         toMs(elapsed),
		IterationDuration: snap.IterationDuration,
	}
	if elapsed > 0 && snap.Iterations > 0 {
		sum.IterationRate = float64(snap.Iterations) / elapsed.Seconds()
	}
	if len(snap.Checks) > 0 {
		sum.Checks = append([]CheckStats(nil), snap.Checks...)
	}
	if len(snap.Errors) > 0 {
		sum.Errors = append([]ErrorRecord(nil), snap.Errors...)
	}
	if counters.HTTP != nil {
		httpStats := *counters.HTTP
		sum.HTTP = &httpStats
	}
	return sum
}
