package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/torosent/poolbench/internal/coordinator"
	"github.com/torosent/poolbench/internal/metrics"
	"github.com/torosent/poolbench/internal/resource"
)

func sampleReport() coordinator.Report {
	return coordinator.Report{
		Started:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Duration: 3 * time.Second,
		Results: []coordinator.RunResult{
			{
				Configuration: coordinator.RunConfiguration{
					Name: "semaphore-arraylist/threads=100", Strategy: "semaphore-arraylist",
					Threads: 100, Forks: 1, Transactional: true,
				},
				Status:     coordinator.StatusOK,
				RunIDs:     []string{"01HZY"},
				Samples:    []float64{1000, 1200},
				Score:      1100,
				ScoreError: 42.5,
				ScoreMin:   1000,
				ScoreMax:   1200,
				Stats: metrics.Stats{
					Total: 2200, Committed: 2190, RolledBack: 10,
					MeanLatency: 4 * time.Millisecond, MeanLatencyMs: 4,
					P99Latency: 9 * time.Millisecond,
					Duration:   2 * time.Second,
					OpsPerSec:  1100,
					Failures:   []metrics.FailureBucket{{State: "tx-started", Cause: "Pool exhausted", Count: 10}},
				},
				Pools: []resource.PoolStats{{Strategy: "semaphore-arraylist", MaxSize: 20, Acquired: 2190}},
			},
			{
				Configuration: coordinator.RunConfiguration{
					Name: "semaphore-concurrent-queue/threads=100", Strategy: "semaphore-concurrent-queue",
					Threads: 100, Forks: 1, Transactional: true,
				},
				Status: coordinator.StatusFailed,
				Reason: "fixture setup failed",
			},
		},
	}
}

func TestPrintReportSideBySide(t *testing.T) {
	var buf bytes.Buffer
	PrintReport(&buf, sampleReport(), NoColorScheme())
	output := buf.String()

	for _, want := range []string{
		"Pool Benchmark Results",
		"semaphore-arraylist/threads=100",
		"semaphore-concurrent-queue/threads=100",
		"1100.000",
		"42.500",
		"ops/s",
		"ms/op",
		"Pool exhausted in tx-started: 10",
		"Reason:            fixture setup failed",
		"acquired=2190",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in report:\n%s", want, output)
		}
	}

	// One thrpt row per configuration, one avgt row for the successful one.
	if n := strings.Count(output, "thrpt"); n != 2 {
		t.Errorf("thrpt rows = %d, want 2", n)
	}
	if n := strings.Count(output, "avgt"); n != 1 {
		t.Errorf("avgt rows = %d, want 1", n)
	}
}

func TestPrintReportEmpty(t *testing.T) {
	var buf bytes.Buffer
	PrintReport(&buf, coordinator.Report{}, nil)
	if !strings.Contains(buf.String(), "No configurations") {
		t.Errorf("expected empty report notice, got %q", buf.String())
	}
}

func TestPrintJSONReport(t *testing.T) {
	var buf bytes.Buffer
	if err := PrintJSONReport(&buf, sampleReport()); err != nil {
		t.Fatalf("PrintJSONReport failed: %v", err)
	}
	var decoded struct {
		Results []struct {
			Status string  `json:"status"`
			Score  float64 `json:"score"`
			Stats  struct {
				Committed int64 `json:"committed"`
			} `json:"stats"`
		} `json:"results"`
	}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(decoded.Results) != 2 || decoded.Results[0].Score != 1100 || decoded.Results[0].Stats.Committed != 2190 {
		t.Fatalf("unexpected decoded report %+v", decoded)
	}
	if decoded.Results[1].Status != "failed" {
		t.Fatalf("status = %q, want failed", decoded.Results[1].Status)
	}
}

func TestPrintYAMLReport(t *testing.T) {
	var buf bytes.Buffer
	if err := PrintYAMLReport(&buf, sampleReport()); err != nil {
		t.Fatalf("PrintYAMLReport failed: %v", err)
	}
	var decoded map[string]any
	if err := yaml.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid YAML: %v", err)
	}
	if !strings.Contains(buf.String(), "rolled_back: 10") {
		t.Errorf("expected rolled_back in YAML output:\n%s", buf.String())
	}
}

func TestWriteRejectsUnknownFormat(t *testing.T) {
	if err := Write(&bytes.Buffer{}, Format("xml"), sampleReport(), nil); err == nil {
		t.Fatal("expected error for unknown format")
	}
}
