package runner_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/torosent/poolbench/internal/metrics"
	"github.com/torosent/poolbench/internal/resource"
	"github.com/torosent/poolbench/internal/runner"
	"github.com/torosent/poolbench/internal/workload"
)

// fakeWorker simulates an iteration with fixed latency.
type fakeWorker struct {
	latency  time.Duration
	calls    *int64
	outcome  workload.Outcome
	err      error
	inFlight *int64
	ctxErr   *int64
}

func (f *fakeWorker) RunIteration(ctx context.Context) workload.Iteration {
	if f.calls != nil {
		atomic.AddInt64(f.calls, 1)
	}
	if f.inFlight != nil {
		atomic.AddInt64(f.inFlight, 1)
		defer atomic.AddInt64(f.inFlight, -1)
	}
	time.Sleep(f.latency)
	if ctx.Err() != nil && f.ctxErr != nil {
		atomic.AddInt64(f.ctxErr, 1)
	}
	return workload.Iteration{Outcome: f.outcome, Elapsed: f.latency, Err: f.err}
}

func workers(n int, proto fakeWorker) []runner.Worker {
	out := make([]runner.Worker, n)
	for i := range out {
		w := proto
		out[i] = &w
	}
	return out
}

func TestRunnerRespectsInvocationsPerWorker(t *testing.T) {
	var calls int64
	r := runner.New(runner.Options{
		Workers:              workers(10, fakeWorker{calls: &calls}),
		InvocationsPerWorker: 100,
	})
	res := r.Run(context.Background())
	if res.Total != 1000 {
		t.Fatalf("expected total 1000, got %d", res.Total)
	}
	if calls != 1000 {
		t.Fatalf("expected 1000 iterations, got %d", calls)
	}
	if res.Committed != 1000 {
		t.Fatalf("expected 1000 commits, got %d", res.Committed)
	}
}

func TestRunnerHonorsDuration(t *testing.T) {
	var calls int64
	r := runner.New(runner.Options{
		Workers:  workers(10, fakeWorker{latency: 5 * time.Millisecond, calls: &calls}),
		Duration: 50 * time.Millisecond,
	})
	start := time.Now()
	res := r.Run(context.Background())
	elapsed := time.Since(start)
	if elapsed < 50*time.Millisecond || elapsed > 250*time.Millisecond {
		t.Fatalf("duration enforcement off: %s", elapsed)
	}
	if res.Duration <= 0 {
		t.Fatalf("result duration not recorded")
	}
	if res.Total <= 0 {
		t.Fatalf("expected some iterations executed")
	}
}

func TestRunnerFinishesIterationInFlight(t *testing.T) {
	var inFlight, ctxErr int64
	r := runner.New(runner.Options{
		Workers:  workers(4, fakeWorker{latency: 30 * time.Millisecond, inFlight: &inFlight, ctxErr: &ctxErr}),
		Duration: 10 * time.Millisecond,
	})
	res := r.Run(context.Background())
	if res.Total != 4 {
		t.Fatalf("expected each worker to finish its first iteration, got %d", res.Total)
	}
	if atomic.LoadInt64(&inFlight) != 0 {
		t.Fatalf("iterations still in flight after Run returned")
	}
	if ctxErr != 0 {
		t.Fatalf("iterations observed a cancelled context %d times", ctxErr)
	}
}

func TestRunnerCountsOutcomes(t *testing.T) {
	ws := []runner.Worker{
		&fakeWorker{outcome: workload.Committed},
		&fakeWorker{outcome: workload.RolledBack, err: resource.ErrPoolExhausted},
		&fakeWorker{outcome: workload.Errored, err: errors.New("boom")},
	}
	collector := metrics.NewCollector()
	var seen int64
	var buf bytes.Buffer
	r := runner.New(runner.Options{
		Workers:              ws,
		InvocationsPerWorker: 5,
		Collector:            collector,
		FailureLogger:        runner.SlogFailureLogger{Logger: slog.New(slog.NewTextHandler(&buf, nil))},
		OnIteration:          func(workload.Iteration) { atomic.AddInt64(&seen, 1) },
	})
	res := r.Run(context.Background())

	if res.Total != 15 || res.Committed != 5 || res.RolledBack != 5 || res.Errored != 5 {
		t.Fatalf("unexpected result %+v", res)
	}
	if seen != 15 {
		t.Fatalf("OnIteration called %d times, want 15", seen)
	}
	if collector.Total() != 15 {
		t.Fatalf("collector total = %d, want 15", collector.Total())
	}
	if n := strings.Count(buf.String(), "iteration failed"); n != 10 {
		t.Fatalf("logged %d failures, want 10", n)
	}
}

func TestRunnerStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls int64
	r := runner.New(runner.Options{
		Workers: workers(2, fakeWorker{latency: time.Millisecond, calls: &calls}),
	})
	time.AfterFunc(20*time.Millisecond, cancel)
	done := make(chan runner.Result, 1)
	go func() { done <- r.Run(ctx) }()
	select {
	case res := <-done:
		if res.Total == 0 {
			t.Fatalf("expected some iterations before cancel")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("runner did not stop after cancel")
	}
}

// TestRateLimiterCapsThroughput ensures the rate is shared across workers.
func TestRateLimiterCapsThroughput(t *testing.T) {
	var calls int64
	rateLimit := 100
	duration := 100 * time.Millisecond
	r := runner.New(runner.Options{
		Workers:        workers(20, fakeWorker{calls: &calls}),
		Duration:       duration,
		RatePerSecond:  rateLimit,
		LimiterFactory: func(rps int) *rate.Limiter { return rate.NewLimiter(rate.Limit(rps), 1) },
	})
	res := r.Run(context.Background())
	maxExpected := int(float64(rateLimit) * (float64(duration) / float64(time.Second)) * 1.20)
	if int(res.Total) > maxExpected {
		t.Fatalf("rate limiter exceeded: total=%d max=%d", res.Total, maxExpected)
	}
	if calls != res.Total {
		t.Fatalf("calls mismatch: %d vs %d", calls, res.Total)
	}
}

func TestRateLimitedRunEndsWhenWorkersFinish(t *testing.T) {
	r := runner.New(runner.Options{
		Workers:              workers(2, fakeWorker{}),
		InvocationsPerWorker: 3,
		RatePerSecond:        1000,
		ArrivalModel:         runner.ArrivalModelPoisson,
		PoissonSampler:       func() float64 { return 1 },
	})
	done := make(chan runner.Result, 1)
	go func() { done <- r.Run(context.Background()) }()
	select {
	case res := <-done:
		if res.Total != 6 {
			t.Fatalf("expected 6 iterations, got %d", res.Total)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("rate limited run did not finish")
	}
}
