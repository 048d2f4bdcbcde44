package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/torosent/poolbench/internal/config"
	"github.com/torosent/poolbench/internal/coordinator"
	"github.com/torosent/poolbench/internal/runner"
)

var quickArgs = []string{
	"--strategy", "sal",
	"--threads", "2",
	"--warmup-iterations", "0",
	"--iterations", "1",
	"--invocations", "5",
	"--sleep-bound", "1",
	"--post-work-bound", "1",
	"--pool-max-size", "2",
	"--verbosity", "silent",
}

func TestRunJSONReport(t *testing.T) {
	var stdout, stderr bytes.Buffer
	args := append(append([]string(nil), quickArgs...), "--output", "json")
	if err := run(args, &stdout, &stderr); err != nil {
		t.Fatalf("run: %v (stderr: %s)", err, stderr.String())
	}

	var report coordinator.Report
	if err := json.Unmarshal(stdout.Bytes(), &report); err != nil {
		t.Fatalf("invalid JSON report: %v\n%s", err, stdout.String())
	}
	if len(report.Results) != 1 {
		t.Fatalf("results = %d, want 1", len(report.Results))
	}
	res := report.Results[0]
	if res.Status != coordinator.StatusOK || res.Stats.Committed != 10 {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestRunTextReportWithThresholds(t *testing.T) {
	var stdout, stderr bytes.Buffer
	args := append(append([]string(nil), quickArgs...), "--threshold", "error:count == 0")
	if err := run(args, &stdout, &stderr); err != nil {
		t.Fatalf("run: %v", err)
	}
	out := stdout.String()
	if !strings.Contains(out, "Pool Benchmark Results") || !strings.Contains(out, "Thresholds:") {
		t.Fatalf("unexpected report:\n%s", out)
	}
}

func TestRunFailingThreshold(t *testing.T) {
	var stdout, stderr bytes.Buffer
	args := append(append([]string(nil), quickArgs...), "--threshold", "ops:count > 1000000")
	err := run(args, &stdout, &stderr)
	if err == nil || !strings.Contains(err.Error(), "thresholds failed") {
		t.Fatalf("expected threshold failure, got %v", err)
	}
}

func TestRunFailedConfiguration(t *testing.T) {
	var stdout, stderr bytes.Buffer
	args := append(append([]string(nil), quickArgs...), "--strategy", "lifo")
	err := run(args, &stdout, &stderr)
	if err == nil || !strings.Contains(err.Error(), "configurations failed") {
		t.Fatalf("expected a failed configuration, got %v", err)
	}
}

func TestRunRejectsInvalidThreshold(t *testing.T) {
	var stdout, stderr bytes.Buffer
	args := append(append([]string(nil), quickArgs...), "--threshold", "bogus")
	if err := run(args, &stdout, &stderr); err == nil {
		t.Fatal("expected threshold parse error")
	}
}

func TestRunHelp(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if err := run([]string{"--help"}, &stdout, &stderr); err != nil {
		t.Fatalf("help returned %v", err)
	}
}

func TestBuildConfigurations(t *testing.T) {
	cfg := config.Default()
	cfg.Threads = []int{1, 10}
	cfg.Pool.BlockingTimeout = 250 * time.Millisecond
	cfg.Arrival.Model = config.ArrivalModelPoisson

	configs := buildConfigurations(cfg)
	if len(configs) != 4 {
		t.Fatalf("configurations = %d, want 4", len(configs))
	}
	first := configs[0]
	if first.Strategy != "semaphore-arraylist" || first.Threads != 1 {
		t.Fatalf("unexpected first configuration %+v", first)
	}
	if first.Arrival != runner.ArrivalModelPoisson {
		t.Errorf("arrival = %q, want poisson", first.Arrival)
	}
	if first.Measurement.Iterations != config.DefaultMeasurementIterations {
		t.Errorf("measurement iterations = %d", first.Measurement.Iterations)
	}
	if d := descriptorFor(first); d.BlockingTimeout != "250ms" || d.MaxSize != config.DefaultPoolMaxSize {
		t.Errorf("unexpected descriptor %+v", d)
	}
}

func TestToRunnerArrivalModel(t *testing.T) {
	tests := []struct {
		input config.ArrivalModel
		want  runner.ArrivalModel
	}{
		{config.ArrivalModelUniform, runner.ArrivalModelUniform},
		{config.ArrivalModelPoisson, runner.ArrivalModelPoisson},
		{"unknown", runner.ArrivalModelUniform},
	}

	for _, tt := range tests {
		got := toRunnerArrivalModel(tt.input)
		if got != tt.want {
			t.Errorf("toRunnerArrivalModel(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
