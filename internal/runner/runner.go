package runner

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/torosent/poolbench/internal/workload"
)

// Result captures execution summary.
type Result struct {
	Total      int64
	Committed  int64
	RolledBack int64
	Errored    int64
	Duration   time.Duration
}

// Runner drives a fixed set of workers concurrently until the duration
// elapses, every worker reaches its invocation cap, or ctx is cancelled.
type Runner struct {
	opt     Options
	arrival arrivalController
}

func New(opt Options) *Runner {
	opt.normalize()
	return &Runner{opt: opt, arrival: newArrivalController(opt)}
}

// Run executes one timed or counted slice. Stopping is only observed at
// iteration boundaries: an iteration in flight always runs to completion so
// its transaction is committed or rolled back.
func (r *Runner) Run(ctx context.Context) Result {
	start := time.Now()
	var total, committed, rolledBack, errored int64

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if r.opt.Duration > 0 {
		deadlineCtx, deadlineCancel := context.WithTimeout(ctx, r.opt.Duration)
		ctx = deadlineCtx
		defer deadlineCancel()
	}

	// With pacing, a single scheduler hands out permits so the rate holds
	// across workers instead of per worker.
	var permits chan struct{}
	finished := make(chan struct{})
	if r.arrival != nil {
		permits = make(chan struct{})
		go func() {
			for {
				if err := r.arrival.Wait(ctx); err != nil {
					return
				}
				select {
				case permits <- struct{}{}:
				case <-ctx.Done():
					return
				case <-finished:
					return
				}
			}
		}()
	}

	var wg sync.WaitGroup
	wg.Add(len(r.opt.Workers))
	for _, w := range r.opt.Workers {
		go func(w Worker) {
			defer wg.Done()
			for n := 0; r.opt.InvocationsPerWorker == 0 || n < r.opt.InvocationsPerWorker; n++ {
				if ctx.Err() != nil {
					return
				}
				if permits != nil {
					select {
					case <-permits:
					case <-ctx.Done():
						return
					}
				}

				it := w.RunIteration(context.WithoutCancel(ctx))

				atomic.AddInt64(&total, 1)
				switch it.Outcome {
				case workload.Committed:
					atomic.AddInt64(&committed, 1)
				case workload.RolledBack:
					atomic.AddInt64(&rolledBack, 1)
				default:
					atomic.AddInt64(&errored, 1)
				}
				if r.opt.Collector != nil {
					r.opt.Collector.RecordIteration(it)
				}
				if it.Err != nil && r.opt.FailureLogger != nil {
					r.opt.FailureLogger.LogFailure(it)
				}
				if r.opt.OnIteration != nil {
					r.opt.OnIteration(it)
				}
			}
		}(w)
	}
	wg.Wait()
	close(finished)

	return Result{
		Total:      atomic.LoadInt64(&total),
		Committed:  atomic.LoadInt64(&committed),
		RolledBack: atomic.LoadInt64(&rolledBack),
		Errored:    atomic.LoadInt64(&errored),
		Duration:   time.Since(start),
	}
}
