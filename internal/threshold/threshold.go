// Package threshold parses pass/fail assertions and evaluates them against
// each configuration's result.
package threshold

import (
	"fmt"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/torosent/poolbench/internal/coordinator"
)

var thresholdPattern = regexp.MustCompile(`^([a-z_]+):([a-z0-9]+)\s*([<>=!]+)\s*([0-9.]+)$`)

var (
	validMetrics    = []string{"ops", "latency", "rollback", "error"}
	validAggregates = []string{"p50", "p90", "p99", "p999", "avg", "min", "max", "rate", "count"}
	validOperators  = []string{"<", "<=", ">", ">=", "=="}
)

// Threshold represents a performance assertion that can pass or fail.
type Threshold struct {
	Metric    string  // ops, latency, rollback or error
	Aggregate string  // e.g. "p99", "avg", "max", "rate", "count"
	Operator  string  // e.g. "<", "<=", ">", ">=", "=="
	Value     float64 // the threshold value to compare against
	Raw       string  // original threshold string for display
}

// Result represents the outcome of evaluating a threshold for one configuration.
type Result struct {
	Threshold     Threshold
	Configuration string
	Actual        float64
	Pass          bool
	Message       string
}

// Evaluator evaluates thresholds against run results.
type Evaluator struct {
	thresholds []Threshold
}

// NewEvaluator creates a new threshold evaluator.
func NewEvaluator(thresholds []Threshold) *Evaluator {
	return &Evaluator{
		thresholds: thresholds,
	}
}

// Evaluate checks all thresholds against one configuration's result. A
// failed configuration fails every threshold.
func (e *Evaluator) Evaluate(res coordinator.RunResult) []Result {
	if len(e.thresholds) == 0 {
		return nil
	}

	results := make([]Result, 0, len(e.thresholds))
	for _, t := range e.thresholds {
		results = append(results, e.evaluateOne(t, res))
	}
	return results
}

// EvaluateReport checks every threshold against every configuration.
func (e *Evaluator) EvaluateReport(report coordinator.Report) []Result {
	var results []Result
	for _, res := range report.Results {
		results = append(results, e.Evaluate(res)...)
	}
	return results
}

// AllPassed reports whether every result passed.
func AllPassed(results []Result) bool {
	for _, r := range results {
		if !r.Pass {
			return false
		}
	}
	return true
}

func (e *Evaluator) evaluateOne(t Threshold, res coordinator.RunResult) Result {
	name := res.Configuration.DisplayName()
	if res.Failed() {
		return Result{
			Threshold:     t,
			Configuration: name,
			Message:       fmt.Sprintf("✗ %s [%s]: configuration failed: %s", t.Raw, name, res.Reason),
		}
	}

	actual, err := extractMetricValue(t, res)
	if err != nil {
		return Result{
			Threshold:     t,
			Configuration: name,
			Message:       fmt.Sprintf("error: %v", err),
		}
	}

	pass := compareValues(actual, t.Operator, t.Value)
	status := "✓"
	if !pass {
		status = "✗"
	}

	return Result{
		Threshold:     t,
		Configuration: name,
		Actual:        actual,
		Pass:          pass,
		Message:       fmt.Sprintf("%s %s [%s]: %.4g %s %.4g", status, t.Raw, name, actual, t.Operator, t.Value),
	}
}

// Parse parses a threshold string into a Threshold struct.
// Supported formats:
// - "ops:rate > 1000"       (score, ops/s)
// - "ops:count > 10000"     (measured iterations)
// - "latency:p99 < 50"      (latency percentile in ms; p50, p90, p99, p999)
// - "latency:avg < 5"       (mean latency in ms; also min and max)
// - "rollback:rate < 0.01"  (rolled-back share of iterations)
// - "error:rate < 0.05"     (share of iterations that did not commit)
// - "error:count == 0"      (errored iterations)
func Parse(s string) (Threshold, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Threshold{}, fmt.Errorf("empty threshold string")
	}

	matches := thresholdPattern.FindStringSubmatch(s)
	if matches == nil {
		return Threshold{}, fmt.Errorf("invalid threshold format: %q (expected format: metric:aggregate operator value, e.g., 'latency:p99 < 50')", s)
	}

	metric := matches[1]
	aggregate := matches[2]
	operator := matches[3]
	valueStr := matches[4]

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return Threshold{}, fmt.Errorf("invalid threshold value %q: %v", valueStr, err)
	}

	if !slices.Contains(validMetrics, metric) {
		return Threshold{}, fmt.Errorf("unsupported metric: %q (supported: %s)", metric, strings.Join(validMetrics, ", "))
	}
	if !slices.Contains(validAggregates, aggregate) {
		return Threshold{}, fmt.Errorf("unsupported aggregate: %q (supported: %s)", aggregate, strings.Join(validAggregates, ", "))
	}
	if !slices.Contains(validOperators, operator) {
		return Threshold{}, fmt.Errorf("unsupported operator: %q (supported: %s)", operator, strings.Join(validOperators, ", "))
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

func extractMetricValue(t Threshold, res coordinator.RunResult) (float64, error) {
	switch t.Metric {
	case "ops":
		return extractOpsMetric(t.Aggregate, res)
	case "latency":
		return extractLatencyMetric(t.Aggregate, res)
	case "rollback":
		return extractRollbackMetric(t.Aggregate, res)
	case "error":
		return extractErrorMetric(t.Aggregate, res)
	default:
		return 0, fmt.Errorf("unknown metric: %s", t.Metric)
	}
}

func extractOpsMetric(aggregate string, res coordinator.RunResult) (float64, error) {
	switch aggregate {
	case "rate":
		return res.Score, nil
	case "min":
		return res.ScoreMin, nil
	case "max":
		return res.ScoreMax, nil
	case "count":
		return float64(res.Stats.Total), nil
	default:
		return 0, fmt.Errorf("unsupported aggregate %q for ops (use 'rate', 'min', 'max' or 'count')", aggregate)
	}
}

func extractLatencyMetric(aggregate string, res coordinator.RunResult) (float64, error) {
	stats := res.Stats
	switch aggregate {
	case "p50":
		return stats.P50LatencyMs, nil
	case "p90":
		return stats.P90LatencyMs, nil
	case "p99":
		return stats.P99LatencyMs, nil
	case "p999":
		return stats.P999LatencyMs, nil
	case "avg":
		return stats.MeanLatencyMs, nil
	case "min":
		return stats.MinLatencyMs, nil
	case "max":
		return stats.MaxLatencyMs, nil
	default:
		return 0, fmt.Errorf("unsupported aggregate %q for latency", aggregate)
	}
}

func extractRollbackMetric(aggregate string, res coordinator.RunResult) (float64, error) {
	switch aggregate {
	case "count":
		return float64(res.Stats.RolledBack), nil
	case "rate":
		return res.Stats.RollbackRate(), nil
	default:
		return 0, fmt.Errorf("unsupported aggregate %q for rollback (use 'count' or 'rate')", aggregate)
	}
}

func extractErrorMetric(aggregate string, res coordinator.RunResult) (float64, error) {
	switch aggregate {
	case "count":
		return float64(res.Stats.Errored), nil
	case "rate":
		return res.Stats.ErrorRate(), nil
	default:
		return 0, fmt.Errorf("unsupported aggregate %q for error (use 'count' or 'rate')", aggregate)
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
