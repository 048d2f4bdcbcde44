package threshold

import (
	"strings"
	"testing"
	"time"

	"github.com/torosent/poolbench/internal/coordinator"
	"github.com/torosent/poolbench/internal/metrics"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		want      Threshold
		wantError bool
	}{
		{
			name:  "valid p99 latency threshold",
			input: "latency:p99 < 50",
			want:  Threshold{Metric: "latency", Aggregate: "p99", Operator: "<", Value: 50, Raw: "latency:p99 < 50"},
		},
		{
			name:  "valid p999 latency with <=",
			input: "latency:p999 <= 100",
			want:  Threshold{Metric: "latency", Aggregate: "p999", Operator: "<=", Value: 100, Raw: "latency:p999 <= 100"},
		},
		{
			name:  "valid rollback rate threshold",
			input: "rollback:rate < 0.01",
			want:  Threshold{Metric: "rollback", Aggregate: "rate", Operator: "<", Value: 0.01, Raw: "rollback:rate < 0.01"},
		},
		{
			name:  "valid ops rate threshold with >",
			input: "ops:rate > 100",
			want:  Threshold{Metric: "ops", Aggregate: "rate", Operator: ">", Value: 100, Raw: "ops:rate > 100"},
		},
		{
			name:  "valid error count without spaces",
			input: "error:count==0",
			want:  Threshold{Metric: "error", Aggregate: "count", Operator: "==", Value: 0, Raw: "error:count==0"},
		},
		{
			name:      "empty string",
			input:     "",
			wantError: true,
		},
		{
			name:      "invalid format - missing operator",
			input:     "latency:p99 500",
			wantError: true,
		},
		{
			name:      "invalid metric",
			input:     "http_req_duration:p95 < 500",
			wantError: true,
		},
		{
			name:      "invalid aggregate",
			input:     "latency:p95 < 500",
			wantError: true,
		},
		{
			name:      "invalid operator",
			input:     "latency:p99 << 500",
			wantError: true,
		},
		{
			name:      "invalid value - not a number",
			input:     "latency:p99 < abc",
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			if (err != nil) != tt.wantError {
				t.Errorf("Parse() error = %v, wantError %v", err, tt.wantError)
				return
			}
			if !tt.wantError && got != tt.want {
				t.Errorf("Parse() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseMultiple(t *testing.T) {
	tests := []struct {
		name      string
		input     []string
		wantCount int
		wantError bool
	}{
		{
			name: "multiple valid thresholds",
			input: []string{
				"latency:p99 < 50",
				"rollback:rate < 0.01",
				"ops:rate > 100",
			},
			wantCount: 3,
		},
		{
			name:      "empty slice",
			input:     []string{},
			wantCount: 0,
		},
		{
			name: "one valid, one invalid",
			input: []string{
				"latency:p99 < 50",
				"invalid threshold",
			},
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseMultiple(tt.input)
			if (err != nil) != tt.wantError {
				t.Errorf("ParseMultiple() error = %v, wantError %v", err, tt.wantError)
				return
			}
			if !tt.wantError && len(got) != tt.wantCount {
				t.Errorf("ParseMultiple() returned %d thresholds, want %d", len(got), tt.wantCount)
			}
		})
	}
}

func sampleResult() coordinator.RunResult {
	return coordinator.RunResult{
		Configuration: coordinator.RunConfiguration{Strategy: "sal", Threads: 100},
		Status:        coordinator.StatusOK,
		Score:         1234.5,
		ScoreMin:      1100,
		ScoreMax:      1300,
		Stats: metrics.Stats{
			Total:         1000,
			Committed:     970,
			RolledBack:    20,
			Errored:       10,
			MinLatencyMs:  0.5,
			MaxLatencyMs:  40,
			MeanLatencyMs: 4.5,
			P50LatencyMs:  4,
			P90LatencyMs:  8,
			P99LatencyMs:  12,
			P999LatencyMs: 30,
			Duration:      10 * time.Second,
		},
	}
}

func TestEvaluator(t *testing.T) {
	res := sampleResult()

	tests := []struct {
		name       string
		thresholds []string
		wantPass   []bool
	}{
		{
			name:       "all thresholds pass",
			thresholds: []string{"latency:p99 < 50", "rollback:rate < 0.05", "ops:rate > 1000"},
			wantPass:   []bool{true, true, true},
		},
		{
			name:       "some thresholds fail",
			thresholds: []string{"latency:p99 < 10", "error:rate < 0.01", "ops:rate > 50"},
			wantPass:   []bool{false, false, true},
		},
		{
			name:       "latency percentiles",
			thresholds: []string{"latency:p50 < 5", "latency:p90 < 10", "latency:p999 <= 30"},
			wantPass:   []bool{true, true, true},
		},
		{
			name:       "avg, min and max latency",
			thresholds: []string{"latency:avg < 5", "latency:max < 60", "latency:min > 0.1"},
			wantPass:   []bool{true, true, true},
		},
		{
			name:       "counts",
			thresholds: []string{"ops:count >= 1000", "rollback:count == 20", "error:count == 0"},
			wantPass:   []bool{true, true, false},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			thresholds, err := ParseMultiple(tt.thresholds)
			if err != nil {
				t.Fatalf("ParseMultiple() error = %v", err)
			}

			results := NewEvaluator(thresholds).Evaluate(res)
			if len(results) != len(tt.wantPass) {
				t.Fatalf("got %d results, want %d", len(results), len(tt.wantPass))
			}
			for i, result := range results {
				if result.Pass != tt.wantPass[i] {
					t.Errorf("threshold[%d] %q: got pass=%v, want %v (actual=%.2f)",
						i, result.Threshold.Raw, result.Pass, tt.wantPass[i], result.Actual)
				}
				if result.Configuration != "sal/threads=100" {
					t.Errorf("configuration = %q", result.Configuration)
				}
			}
		})
	}
}

func TestEvaluateReportFailsFailedConfigurations(t *testing.T) {
	thresholds, err := ParseMultiple([]string{"ops:rate >= 0"})
	if err != nil {
		t.Fatalf("ParseMultiple() error = %v", err)
	}
	report := coordinator.Report{Results: []coordinator.RunResult{
		sampleResult(),
		{Configuration: coordinator.RunConfiguration{Name: "broken"}, Status: coordinator.StatusFailed, Reason: "setup failed"},
	}}

	results := NewEvaluator(thresholds).EvaluateReport(report)
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if !results[0].Pass || results[1].Pass {
		t.Fatalf("unexpected results %+v", results)
	}
	if !strings.Contains(results[1].Message, "setup failed") {
		t.Errorf("message %q does not carry the reason", results[1].Message)
	}
	if AllPassed(results) {
		t.Errorf("AllPassed() = true with a failing result")
	}
	if !AllPassed(results[:1]) || !AllPassed(nil) {
		t.Errorf("AllPassed() = false for passing results")
	}
}

func TestCompareValues(t *testing.T) {
	tests := []struct {
		name     string
		actual   float64
		operator string
		expected float64
		want     bool
	}{
		{"less than true", 50, "<", 100, true},
		{"less than false", 100, "<", 50, false},
		{"less than equal", 100, "<", 100, false},
		{"less than or equal true", 50, "<=", 100, true},
		{"less than or equal equal", 100, "<=", 100, true},
		{"less than or equal false", 150, "<=", 100, false},
		{"greater than true", 150, ">", 100, true},
		{"greater than false", 50, ">", 100, false},
		{"greater than equal", 100, ">", 100, false},
		{"greater than or equal true", 150, ">=", 100, true},
		{"greater than or equal equal", 100, ">=", 100, true},
		{"greater than or equal false", 50, ">=", 100, false},
		{"equal true", 100, "==", 100, true},
		{"equal false", 100, "==", 101, false},
		{"equal with floating point precision", 100.0000000001, "==", 100, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := compareValues(tt.actual, tt.operator, tt.expected)
			if got != tt.want {
				t.Errorf("compareValues(%.2f, %s, %.2f) = %v, want %v",
					tt.actual, tt.operator, tt.expected, got, tt.want)
			}
		})
	}
}

func TestExtractMetricValue(t *testing.T) {
	res := sampleResult()

	tests := []struct {
		name      string
		threshold Threshold
		want      float64
		wantError bool
	}{
		{name: "ops rate", threshold: Threshold{Metric: "ops", Aggregate: "rate"}, want: 1234.5},
		{name: "ops min", threshold: Threshold{Metric: "ops", Aggregate: "min"}, want: 1100},
		{name: "ops max", threshold: Threshold{Metric: "ops", Aggregate: "max"}, want: 1300},
		{name: "ops count", threshold: Threshold{Metric: "ops", Aggregate: "count"}, want: 1000},
		{name: "latency p50", threshold: Threshold{Metric: "latency", Aggregate: "p50"}, want: 4},
		{name: "latency p90", threshold: Threshold{Metric: "latency", Aggregate: "p90"}, want: 8},
		{name: "latency p99", threshold: Threshold{Metric: "latency", Aggregate: "p99"}, want: 12},
		{name: "latency p999", threshold: Threshold{Metric: "latency", Aggregate: "p999"}, want: 30},
		{name: "latency avg", threshold: Threshold{Metric: "latency", Aggregate: "avg"}, want: 4.5},
		{name: "latency min", threshold: Threshold{Metric: "latency", Aggregate: "min"}, want: 0.5},
		{name: "latency max", threshold: Threshold{Metric: "latency", Aggregate: "max"}, want: 40},
		{name: "rollback rate", threshold: Threshold{Metric: "rollback", Aggregate: "rate"}, want: 0.02},
		{name: "rollback count", threshold: Threshold{Metric: "rollback", Aggregate: "count"}, want: 20},
		{name: "error rate", threshold: Threshold{Metric: "error", Aggregate: "rate"}, want: 0.03},
		{name: "error count", threshold: Threshold{Metric: "error", Aggregate: "count"}, want: 10},
		{name: "unsupported metric", threshold: Threshold{Metric: "invalid_metric", Aggregate: "p99"}, wantError: true},
		{name: "unsupported aggregate for metric", threshold: Threshold{Metric: "rollback", Aggregate: "p99"}, wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := extractMetricValue(tt.threshold, res)
			if (err != nil) != tt.wantError {
				t.Errorf("extractMetricValue() error = %v, wantError %v", err, tt.wantError)
				return
			}
			if !tt.wantError && !compareValues(got, "==", tt.want) {
				t.Errorf("extractMetricValue() = %v, want %v", got, tt.want)
			}
		})
	}
}
