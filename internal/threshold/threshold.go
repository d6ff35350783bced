// Package threshold evaluates pass/fail assertions against a run summary.
package threshold

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/torosent/surge/internal/metrics"
)

// Threshold represents a performance assertion that can pass or fail.
type Threshold struct {
	Metric    string  // e.g., "checks", "iteration_duration", "http_req_failed"
	Aggregate string  // e.g., "p95", "p99", "avg", "max", "rate"
	Operator  string  // e.g., "<", "<=", ">", ">=", "=="
	Value     float64 // The threshold value to compare against
	Raw       string  // Original threshold string for display
}

// Result represents the outcome of evaluating a threshold.
type Result struct {
	Threshold Threshold
	Actual    float64
	Pass      bool
	Message   string
}

// Evaluator evaluates thresholds against a run summary.
type Evaluator struct {
	thresholds []Threshold
}

// NewEvaluator creates a new threshold evaluator.
func NewEvaluator(thresholds []Threshold) *Evaluator {
	return &Evaluator{
		thresholds: thresholds,
	}
}

// Evaluate checks all thresholds against the provided summary.
func (e *Evaluator) Evaluate(sum metrics.Summary) []Result {
	if len(e.thresholds) == 0 {
		return nil
	}

	results := make([]Result, 0, len(e.thresholds))
	for _, t := range e.thresholds {
		result := e.evaluateOne(t, sum)
		results = append(results, result)
	}
	return results
}

// Passed reports whether every result passed.
func Passed(results []Result) bool {
	for _, r := range results {
		if !r.Pass {
			return false
		}
	}
	return true
}

func (e *Evaluator) evaluateOne(t Threshold, sum metrics.Summary) Result {
	actual, err := extractMetricValue(t, sum)
	if err != nil {
		return Result{
			Threshold: t,
			Actual:    0,
			Pass:      false,
			Message:   fmt.Sprintf("error: %v", err),
		}
	}

	pass := compareValues(actual, t.Operator, t.Value)
	status := "✓"
	if !pass {
		status = "✗"
	}

	message := fmt.Sprintf("%s %s: %.2f %s %.2f", status, t.Raw, actual, t.Operator, t.Value)
	return Result{
		Threshold: t,
		Actual:    actual,
		Pass:      pass,
		Message:   message,
	}
}

var thresholdPattern = regexp.MustCompile(`^([a-z_]+):([a-z0-9]+)\s*([<>=!]+)\s*([0-9.]+)$`)

// Parse parses a threshold string into a Threshold struct.
// Supported formats:
// - "checks:rate > 0.99"               (fraction of passed checks)
// - "checks:failed == 0"               (failed check count)
// - "iterations:count >= 10"           (completed iterations)
// - "iterations:rate > 2"              (iterations per second)
// - "errors:count < 5"                 (failed iterations)
// - "iteration_duration:p95 < 2000"    (iteration duration percentile in ms)
// - "http_req_duration:p95 < 500"      (request latency percentile in ms)
// - "http_req_failed:rate < 0.01"      (request failure rate as decimal)
// - "http_requests:rate > 100"         (requests per second)
func Parse(s string) (Threshold, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Threshold{}, fmt.Errorf("empty threshold string")
	}

	matches := thresholdPattern.FindStringSubmatch(s)
	if matches == nil {
		return Threshold{}, fmt.Errorf("invalid threshold format: %q (expected format: metric:aggregate operator value, e.g., 'checks:rate > 0.99')", s)
	}

	metric := matches[1]
	aggregate := matches[2]
	operator := matches[3]
	valueStr := matches[4]

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return Threshold{}, fmt.Errorf("invalid threshold value %q: %v", valueStr, err)
	}

	// Validate metric
	if !isValidMetric(metric) {
		return Threshold{}, fmt.Errorf("unsupported metric: %q (supported: %s)", metric, strings.Join(validMetrics, ", "))
	}

	// Validate aggregate
	if !isValidAggregate(aggregate) {
		return Threshold{}, fmt.Errorf("unsupported aggregate: %q (supported: p50, p90, p95, p99, avg, min, max, rate, count, passed, failed)", aggregate)
	}

	// Validate operator
	if !isValidOperator(operator) {
		return Threshold{}, fmt.Errorf("unsupported operator: %q (supported: <, <=, >, >=, ==)", operator)
	}

	return Threshold{
		Metric:    metric,
		Aggregate: aggregate,
		Operator:  operator,
		Value:     value,
		Raw:       s,
	}, nil
}

// ParseMultiple parses multiple threshold strings.
func ParseMultiple(thresholds []string) ([]Threshold, error) {
	if len(thresholds) == 0 {
		return nil, nil
	}

	result := make([]Threshold, 0, len(thresholds))
	var errors []string

	for i, s := range thresholds {
		t, err := Parse(s)
		if err != nil {
			errors = append(errors, fmt.Sprintf("threshold[%d]: %v", i, err))
			continue
		}
		result = append(result, t)
	}

	if len(errors) > 0 {
		return nil, fmt.Errorf("threshold parsing errors: %s", strings.Join(errors, "; "))
	}

	return result, nil
}

var validMetrics = []string{"checks", "iterations", "errors", "iteration_duration", "http_req_duration", "http_req_failed", "http_requests"}

func isValidMetric(metric string) bool {
	for _, v := range validMetrics {
		if metric == v {
			return true
		}
	}
	return false
}

func isValidAggregate(aggregate string) bool {
	valid := []string{"p50", "p90", "p95", "p99", "avg", "min", "max", "rate", "count", "passed", "failed"}
	for _, v := range valid {
		if aggregate == v {
			return true
		}
	}
	return false
}

func isValidOperator(operator string) bool {
	valid := []string{"<", "<=", ">", ">=", "=="}
	for _, v := range valid {
		if operator == v {
			return true
		}
	}
	return false
}

func extractMetricValue(t Threshold, sum metrics.Summary) (float64, error) {
	switch t.Metric {
	case "checks":
		return extractCheckMetric(t.Aggregate, sum)
	case "iterations":
		return extractIterationMetric(t.Aggregate, sum)
	case "errors":
		return extractErrorMetric(t.Aggregate, sum)
	case "iteration_duration":
		return extractLatencyMetric(t.Metric, t.Aggregate, sum.IterationDuration)
	case "http_req_duration":
		if sum.HTTP == nil {
			return 0, fmt.Errorf("no HTTP requests were recorded")
		}
		return extractLatencyMetric(t.Metric, t.Aggregate, sum.HTTP.Latency)
	case "http_req_failed":
		return extractFailureMetric(t.Aggregate, sum.HTTP)
	case "http_requests":
		return extractRequestMetric(t.Aggregate, sum.HTTP)
	default:
		return 0, fmt.Errorf("unknown metric: %s", t.Metric)
	}
}

func extractCheckMetric(aggregate string, sum metrics.Summary) (float64, error) {
	switch aggregate {
	case "rate":
		return sum.CheckPassRate(), nil
	case "passed":
		return float64(sum.ChecksPassed), nil
	case "failed":
		return float64(sum.ChecksFailed), nil
	case "count":
		return float64(sum.TotalChecks()), nil
	default:
		return 0, fmt.Errorf("unsupported aggregate %q for checks (use 'rate', 'passed', 'failed' or 'count')", aggregate)
	}
}

func extractIterationMetric(aggregate string, sum metrics.Summary) (float64, error) {
	switch aggregate {
	case "count":
		return float64(sum.Iterations), nil
	case "rate":
		return sum.IterationRate, nil
	default:
		return 0, fmt.Errorf("unsupported aggregate %q for iterations (use 'count' or 'rate')", aggregate)
	}
}

func extractErrorMetric(aggregate string, sum metrics.Summary) (float64, error) {
	switch aggregate {
	case "count":
		return float64(len(sum.Errors)), nil
	case "rate":
		if sum.Iterations == 0 {
			return 0, nil
		}
		return float64(len(sum.Errors)) / float64(sum.Iterations), nil
	default:
		return 0, fmt.Errorf("unsupported aggregate %q for errors (use 'count' or 'rate')", aggregate)
	}
}

func extractLatencyMetric(metric, aggregate string, stats metrics.LatencyStats) (float64, error) {
	switch aggregate {
	case "p50":
		return stats.P50Ms, nil
	case "p90":
		return stats.P90Ms, nil
	case "p95":
		return stats.P95Ms, nil
	case "p99":
		return stats.P99Ms, nil
	case "avg", "mean":
		return stats.MeanMs, nil
	case "min":
		return stats.MinMs, nil
	case "max":
		return stats.MaxMs, nil
	default:
		return 0, fmt.Errorf("unsupported aggregate %q for %s", aggregate, metric)
	}
}

func extractFailureMetric(aggregate string, stats *metrics.HTTPStats) (float64, error) {
	if stats == nil {
		stats = &metrics.HTTPStats{}
	}
	switch aggregate {
	case "count":
		return float64(stats.Failures), nil
	case "rate":
		if stats.Requests == 0 {
			return 0, nil
		}
		return float64(stats.Failures) / float64(stats.Requests), nil
	default:
		return 0, fmt.Errorf("unsupported aggregate %q for http_req_failed (use 'count' or 'rate')", aggregate)
	}
}

func extractRequestMetric(aggregate string, stats *metrics.HTTPStats) (float64, error) {
	if stats == nil {
		stats = &metrics.HTTPStats{}
	}
	switch aggregate {
	case "count":
		return float64(stats.Requests), nil
	case "rate":
		return stats.RequestsPerSec, nil
	default:
		return 0, fmt.Errorf("unsupported aggregate %q for http_requests (use 'count' or 'rate')", aggregate)
	}
}

func compareValues(actual float64, operator string, expected float64) bool {
	// Handle floating point comparison with small epsilon
	epsilon := 1e-9

	switch operator {
	case "<":
		return actual < expected
	case "<=":
		return actual <= expected || math.Abs(actual-expected) < epsilon
	case ">":
		return actual > expected
	case ">=":
		return actual >= expected || math.Abs(actual-expected) < epsilon
	case "==":
		return math.Abs(actual-expected) < epsilon
	default:
		return false
	}
}
