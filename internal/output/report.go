package output

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/torosent/surge/internal/metrics"
	"github.com/torosent/surge/internal/threshold"
)

const maxErrorGroups = 5

// PrintReport outputs a human-readable summary report.
func PrintReport(w io.Writer, sum metrics.Summary, results []threshold.Result) {
	fmt.Fprintln(w, "\n--- Run Summary ---")
	if sum.RunID != "" {
		fmt.Fprintf(w, "Run ID:            %s\n", sum.RunID)
	}
	fmt.Fprintf(w, "VUs:               %d (%d started)\n", sum.VUs, sum.VUsStarted)
	fmt.Fprintf(w, "Duration:          %s\n", sum.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "Iterations:        %d (%.2f/s)\n", sum.Iterations, sum.IterationRate)
	fmt.Fprintf(w, "Iteration Errors:  %d\n", len(sum.Errors))

	if total := sum.TotalChecks(); total > 0 {
		fmt.Fprintf(w, "\nChecks:            %.2f%% ✓ %d ✗ %d\n", sum.CheckPassRate()*100, sum.ChecksPassed, sum.ChecksFailed)
		for _, check := range sum.Checks {
			mark := "✓"
			if check.Failed > 0 {
				mark = "✗"
			}
			fmt.Fprintf(w, "  %s %s\n", mark, check.Name)
			if check.Failed > 0 {
				rate := float64(check.Passed) / float64(check.Passed+check.Failed) * 100
				fmt.Fprintf(w, "      ↳ %.0f%% (✓ %d / ✗ %d)\n", rate, check.Passed, check.Failed)
			}
		}
	} else {
		fmt.Fprintln(w, "\nChecks:            none recorded")
	}

	if sum.IterationDuration.Count > 0 {
		fmt.Fprintln(w, "\nIteration Duration:")
		writeLatency(w, sum.IterationDuration)
	}

	if sum.HTTP != nil && sum.HTTP.Requests > 0 {
		stats := sum.HTTP
		fmt.Fprintln(w, "\nHTTP Requests:")
		fmt.Fprintf(w, "  Total:           %d (%.2f/s)\n", stats.Requests, stats.RequestsPerSec)
		fmt.Fprintf(w, "  Failed:          %d\n", stats.Failures)
		writeLatency(w, stats.Latency)
		if rows := metrics.FlattenStatusCodes(stats.StatusCodes); len(rows) > 0 {
			fmt.Fprintln(w, "  Status Codes:")
			for _, row := range rows {
				fmt.Fprintf(w, "    %s: %d\n", row.Code, row.Count)
			}
		}
		if len(stats.Errors) > 0 {
			fmt.Fprintln(w, "  Transport Errors:")
			keys := make([]string, 0, len(stats.Errors))
			for key := range stats.Errors {
				keys = append(keys, key)
			}
			sort.Strings(keys)
			for _, key := range keys {
				fmt.Fprintf(w, "    %s: %d\n", key, stats.Errors[key])
			}
		}
	}

	if groups := groupErrors(sum.Errors); len(groups) > 0 {
		fmt.Fprintln(w, "\nTop Iteration Errors:")
		for i, g := range groups {
			if i == maxErrorGroups {
				fmt.Fprintf(w, "  ... and %d more\n", len(groups)-maxErrorGroups)
				break
			}
			fmt.Fprintf(w, "  %dx %s\n", g.count, g.message)
		}
	}

	if len(results) > 0 {
		fmt.Fprintln(w, "\nThresholds:")
		for _, r := range results {
			fmt.Fprintf(w, "  %s\n", r.Message)
		}
	}
}

func writeLatency(w io.Writer, l metrics.LatencyStats) {
	fmt.Fprintf(w, "  Min:             %s\n", l.Min)
	fmt.Fprintf(w, "  Max:             %s\n", l.Max)
	fmt.Fprintf(w, "  Mean:            %s\n", l.Mean)
	fmt.Fprintf(w, "  P50:             %s\n", l.P50)
	fmt.Fprintf(w, "  P90:             %s\n", l.P90)
	fmt.Fprintf(w, "  P95:             %s\n", l.P95)
	fmt.Fprintf(w, "  P99:             %s\n", l.P99)
}

type errorGroup struct {
	message string
	count   int
}

func groupErrors(records []metrics.ErrorRecord) []errorGroup {
	if len(records) == 0 {
		return nil
	}
	counts := make(map[string]int)
	for _, rec := range records {
		counts[rec.Message]++
	}
	groups := make([]errorGroup, 0, len(counts))
	for msg, n := range counts {
		groups = append(groups, errorGroup{message: msg, count: n})
	}
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].count == groups[j].count {
			return groups[i].message < groups[j].message
		}
		return groups[i].count > groups[j].count
	})
	return groups
}

// Report is the JSON document written by PrintJSONReport.
type Report struct {
	metrics.Summary
	Thresholds []ThresholdResult `json:"thresholds,omitempty"`
	Passed     bool              `json:"passed"`
}

// ThresholdResult is the JSON form of a threshold outcome.
type ThresholdResult struct {
	Threshold string  `json:"threshold"`
	Actual    float64 `json:"actual"`
	Pass      bool    `json:"pass"`
}

// NewReport combines a summary with its threshold outcomes.
func NewReport(sum metrics.Summary, results []threshold.Result) Report {
	rep := Report{Summary: sum, Passed: threshold.Passed(results)}
	for _, r := range results {
		rep.Thresholds = append(rep.Thresholds, ThresholdResult{
			Threshold: r.Threshold.Raw,
			Actual:    r.Actual,
			Pass:      r.Pass,
		})
	}
	return rep
}

// PrintJSONReport outputs a JSON-formatted report.
func PrintJSONReport(w io.Writer, sum metrics.Summary, results []threshold.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(NewReport(sum, results))
}
