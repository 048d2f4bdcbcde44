package metrics

import (
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"github.com/torosent/poolbench/internal/workload"
)

// Collector records per-iteration metrics in a thread-safe manner.
type Collector struct {
	mu               sync.Mutex
	hist             *hdrhistogram.Histogram
	committed        int64
	rolledBack       int64
	errored          int64
	rollbackFailures int64
	minLatency       time.Duration
	maxLatency       time.Duration
	sumLatency       time.Duration
	failures         map[string]map[string]int64
}

// Stats represents aggregated metrics.
type Stats struct {
	Total             int64         `json:"total" yaml:"total"`
	Committed         int64         `json:"committed" yaml:"committed"`
	RolledBack        int64         `json:"rolled_back" yaml:"rolled_back"`
	Errored           int64         `json:"errored" yaml:"errored"`
	RollbackFailures  int64         `json:"rollback_failures,omitempty" yaml:"rollback_failures,omitempty"`
	MinLatency        time.Duration `json:"-" yaml:"-"`
	MaxLatency        time.Duration `json:"-" yaml:"-"`
	MeanLatency       time.Duration `json:"-" yaml:"-"`
	P50Latency        time.Duration `json:"-" yaml:"-"`
	P90Latency        time.Duration `json:"-" yaml:"-"`
	P99Latency        time.Duration `json:"-" yaml:"-"`
	P999Latency       time.Duration `json:"-" yaml:"-"`
	Duration          time.Duration `json:"-" yaml:"-"`
	OpsPerSec         float64       `json:"ops_per_sec" yaml:"ops_per_sec"`                 // committed iterations
	InvocationsPerSec float64       `json:"invocations_per_sec" yaml:"invocations_per_sec"` // every outcome

	// Millisecond fields for JSON and YAML reports.
	MinLatencyMs  float64         `json:"min_latency_ms" yaml:"min_latency_ms"`
	MaxLatencyMs  float64         `json:"max_latency_ms" yaml:"max_latency_ms"`
	MeanLatencyMs float64         `json:"mean_latency_ms" yaml:"mean_latency_ms"`
	P50LatencyMs  float64         `json:"p50_latency_ms" yaml:"p50_latency_ms"`
	P90LatencyMs  float64         `json:"p90_latency_ms" yaml:"p90_latency_ms"`
	P99LatencyMs  float64         `json:"p99_latency_ms" yaml:"p99_latency_ms"`
	P999LatencyMs float64         `json:"p999_latency_ms" yaml:"p999_latency_ms"`
	DurationMs    float64         `json:"duration_ms" yaml:"duration_ms"`
	Failures      []FailureBucket `json:"failures,omitempty" yaml:"failures,omitempty"`
}

// RollbackRate is the fraction of iterations that rolled back.
func (s Stats) RollbackRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.RolledBack) / float64(s.Total)
}

// ErrorRate is the fraction of iterations that did not commit.
func (s Stats) ErrorRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.RolledBack+s.Errored) / float64(s.Total)
}

func NewCollector() *Collector {
	// Track latencies from 1µs up to 60s with 3 significant figures.
	h := hdrhistogram.New(1, 60_000_000, 3)
	return &Collector{
		hist:     h,
		failures: make(map[string]map[string]int64),
	}
}

// RecordIteration folds one executor result into the collector.
func (c *Collector) RecordIteration(it workload.Iteration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	latency := it.Elapsed
	if latency > 0 {
		us := latency.Microseconds()
		if us < c.hist.LowestTrackableValue() {
			us = c.hist.LowestTrackableValue()
		}
		if us > c.hist.HighestTrackableValue() {
			us = c.hist.HighestTrackableValue()
		}
		_ = c.hist.RecordValue(us)
	}
	c.sumLatency += latency

	if c.total() == 0 || latency < c.minLatency {
		c.minLatency = latency
	}
	if latency > c.maxLatency {
		c.maxLatency = latency
	}

	switch it.Outcome {
	case workload.Committed:
		c.committed++
	case workload.RolledBack:
		c.rolledBack++
	default:
		c.errored++
	}
	if it.RollbackErr != nil {
		c.rollbackFailures++
	}
	if it.Err != nil {
		state := it.FailedIn.String()
		byCause, ok := c.failures[state]
		if !ok {
			byCause = make(map[string]int64)
			c.failures[state] = byCause
		}
		byCause[FailureCause(it.Err)]++
	}
}

func (c *Collector) total() int64 {
	return c.committed + c.rolledBack + c.errored
}

// Total returns the number of iterations recorded so far.
func (c *Collector) Total() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total()
}

// Merge folds every observation of other into c.
func (c *Collector) Merge(other *Collector) {
	if other == nil || other == c {
		return
	}
	other.mu.Lock()
	defer other.mu.Unlock()
	c.mu.Lock()
	defer c.mu.Unlock()

	if other.total() == 0 {
		return
	}
	c.hist.Merge(other.hist)
	if c.total() == 0 || other.minLatency < c.minLatency {
		c.minLatency = other.minLatency
	}
	if other.maxLatency > c.maxLatency {
		c.maxLatency = other.maxLatency
	}
	c.sumLatency += other.sumLatency
	c.committed += other.committed
	c.rolledBack += other.rolledBack
	c.errored += other.errored
	c.rollbackFailures += other.rollbackFailures
	for state, causes := range other.failures {
		byCause, ok := c.failures[state]
		if !ok {
			byCause = make(map[string]int64, len(causes))
			c.failures[state] = byCause
		}
		for cause, n := range causes {
			byCause[cause] += n
		}
	}
}

// Stats computes aggregated statistics. OpsPerSec counts committed
// iterations only; InvocationsPerSec counts every recorded outcome.
func (c *Collector) Stats(elapsed time.Duration) Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.total()
	stats := Stats{
		Total:            total,
		Committed:        c.committed,
		RolledBack:       c.rolledBack,
		Errored:          c.errored,
		RollbackFailures: c.rollbackFailures,
		MinLatency:       c.minLatency,
		MaxLatency:       c.maxLatency,
	}

	if total > 0 {
		stats.MeanLatency = time.Duration(int64(c.sumLatency) / total)
	}

	if c.hist.TotalCount() > 0 {
		stats.P50Latency = time.Duration(c.hist.ValueAtQuantile(50)) * time.Microsecond
		stats.P90Latency = time.Duration(c.hist.ValueAtQuantile(90)) * time.Microsecond
		stats.P99Latency = time.Duration(c.hist.ValueAtQuantile(99)) * time.Microsecond
		stats.P999Latency = time.Duration(c.hist.ValueAtQuantile(99.9)) * time.Microsecond
	}

	stats.MinLatencyMs = ms(stats.MinLatency)
	stats.MaxLatencyMs = ms(stats.MaxLatency)
	stats.MeanLatencyMs = ms(stats.MeanLatency)
	stats.P50LatencyMs = ms(stats.P50Latency)
	stats.P90LatencyMs = ms(stats.P90Latency)
	stats.P99LatencyMs = ms(stats.P99Latency)
	stats.P999LatencyMs = ms(stats.P999Latency)

	stats.Duration = elapsed
	stats.DurationMs = ms(elapsed)
	if elapsed > 0 {
		stats.OpsPerSec = float64(c.committed) / elapsed.Seconds()
		stats.InvocationsPerSec = float64(total) / elapsed.Seconds()
	}

	stats.Failures = FlattenFailureBuckets(c.failures)
	return stats
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
