package metrics_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/torosent/poolbench/internal/metrics"
	"github.com/torosent/poolbench/internal/resource"
	"github.com/torosent/poolbench/internal/workload"
)

func committed(d time.Duration) workload.Iteration {
	return workload.Iteration{Outcome: workload.Committed, Elapsed: d}
}

func TestCollectorLatencyStats(t *testing.T) {
	c := metrics.NewCollector()

	c.RecordIteration(committed(10 * time.Millisecond))
	c.RecordIteration(committed(20 * time.Millisecond))
	c.RecordIteration(committed(30 * time.Millisecond))
	c.RecordIteration(committed(40 * time.Millisecond))
	c.RecordIteration(committed(50 * time.Millisecond))

	stats := c.Stats(0)

	if stats.Total != 5 {
		t.Errorf("expected total 5, got %d", stats.Total)
	}
	if stats.Committed != 5 {
		t.Errorf("expected committed 5, got %d", stats.Committed)
	}
	if stats.MinLatency != 10*time.Millisecond {
		t.Errorf("expected min 10ms, got %s", stats.MinLatency)
	}
	if stats.MaxLatency != 50*time.Millisecond {
		t.Errorf("expected max 50ms, got %s", stats.MaxLatency)
	}
	if stats.MeanLatency != 30*time.Millisecond {
		t.Errorf("expected mean 30ms, got %s", stats.MeanLatency)
	}
	if stats.OpsPerSec != 0 {
		t.Errorf("expected no throughput without elapsed time, got %f", stats.OpsPerSec)
	}
}

func TestPercentilesCalculations(t *testing.T) {
	c := metrics.NewCollector()

	// 100 samples: 1ms, 2ms, ..., 100ms.
	for i := 1; i <= 100; i++ {
		c.RecordIteration(committed(time.Duration(i) * time.Millisecond))
	}

	stats := c.Stats(0)

	if stats.P50Latency < 49*time.Millisecond || stats.P50Latency > 51*time.Millisecond {
		t.Errorf("expected P50 ~50ms, got %s", stats.P50Latency)
	}
	if stats.P90Latency < 89*time.Millisecond || stats.P90Latency > 91*time.Millisecond {
		t.Errorf("expected P90 ~90ms, got %s", stats.P90Latency)
	}
	if stats.P99Latency < 98*time.Millisecond || stats.P99Latency > 101*time.Millisecond {
		t.Errorf("expected P99 ~99ms, got %s", stats.P99Latency)
	}
	if stats.P999Latency < stats.P99Latency {
		t.Errorf("expected P99.9 >= P99, got %s < %s", stats.P999Latency, stats.P99Latency)
	}
}

func TestCollectorOutcomesAndFailures(t *testing.T) {
	c := metrics.NewCollector()

	c.RecordIteration(committed(time.Millisecond))
	for i := 0; i < 3; i++ {
		c.RecordIteration(workload.Iteration{
			Outcome:  workload.RolledBack,
			Elapsed:  time.Millisecond,
			FailedIn: workload.StateTxStarted,
			Err:      fmt.Errorf("get connection: %w", resource.ErrPoolExhausted),
		})
	}
	c.RecordIteration(workload.Iteration{
		Outcome:     workload.RolledBack,
		Elapsed:     time.Millisecond,
		FailedIn:    workload.StateWorkPhase1,
		Err:         errors.New("adapter fault"),
		RollbackErr: errors.New("tm gone"),
	})
	c.RecordIteration(workload.Iteration{
		Outcome: workload.Errored,
		Elapsed: time.Millisecond,
		Err:     fmt.Errorf("begin: %w", resource.ErrTransaction),
	})

	stats := c.Stats(time.Second)
	if stats.Total != 6 || stats.Committed != 1 || stats.RolledBack != 4 || stats.Errored != 1 {
		t.Fatalf("unexpected outcome counts %+v", stats)
	}
	if stats.RollbackFailures != 1 {
		t.Errorf("expected 1 rollback failure, got %d", stats.RollbackFailures)
	}
	if stats.OpsPerSec != 1 {
		t.Errorf("expected 1 committed op/s, got %f", stats.OpsPerSec)
	}
	if stats.InvocationsPerSec != 6 {
		t.Errorf("expected 6 invocations/s, got %f", stats.InvocationsPerSec)
	}
	if got := stats.RollbackRate(); got < 0.66 || got > 0.67 {
		t.Errorf("rollback rate = %f, want ~0.667", got)
	}
	if len(stats.Failures) != 3 {
		t.Fatalf("expected 3 failure buckets, got %+v", stats.Failures)
	}
	top := stats.Failures[0]
	if top.State != "tx-started" || top.Cause != "Pool exhausted" || top.Count != 3 {
		t.Errorf("unexpected top bucket %+v", top)
	}
}

func TestCollectorMerge(t *testing.T) {
	a := metrics.NewCollector()
	b := metrics.NewCollector()
	a.RecordIteration(committed(5 * time.Millisecond))
	b.RecordIteration(committed(2 * time.Millisecond))
	b.RecordIteration(workload.Iteration{
		Outcome: workload.RolledBack, Elapsed: 9 * time.Millisecond,
		FailedIn: workload.StateTxStarted, Err: resource.ErrTimeout,
	})

	agg := metrics.NewCollector()
	agg.Merge(a)
	agg.Merge(b)
	agg.Merge(metrics.NewCollector())

	stats := agg.Stats(time.Second)
	if stats.Total != 3 || stats.Committed != 2 || stats.RolledBack != 1 {
		t.Fatalf("unexpected merged counts %+v", stats)
	}
	if stats.MinLatency != 2*time.Millisecond || stats.MaxLatency != 9*time.Millisecond {
		t.Errorf("unexpected merged min/max %s/%s", stats.MinLatency, stats.MaxLatency)
	}
	if len(stats.Failures) != 1 || stats.Failures[0].Cause != "Pool wait timed out" {
		t.Errorf("unexpected merged failures %+v", stats.Failures)
	}
}

func TestCollectorConcurrentRecording(t *testing.T) {
	c := metrics.NewCollector()
	var wg sync.WaitGroup
	for w := 0; w < 10; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				c.RecordIteration(committed(time.Millisecond))
			}
		}()
	}
	wg.Wait()
	if got := c.Total(); got != 1000 {
		t.Fatalf("expected 1000 iterations, got %d", got)
	}
}

func TestStatsJSONUsesMilliseconds(t *testing.T) {
	c := metrics.NewCollector()
	c.RecordIteration(committed(1500 * time.Microsecond))
	raw, err := json.Marshal(c.Stats(time.Second))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["max_latency_ms"] != 1.5 {
		t.Errorf("max_latency_ms = %v, want 1.5", decoded["max_latency_ms"])
	}
	if _, ok := decoded["MaxLatency"]; ok {
		t.Errorf("raw duration leaked into JSON: %s", raw)
	}
}
