package runner

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/torosent/poolbench/internal/metrics"
	"github.com/torosent/poolbench/internal/workload"
)

// Worker runs one iteration at a time. Each worker is driven by exactly one
// goroutine.
type Worker interface {
	RunIteration(ctx context.Context) workload.Iteration
}

type ArrivalModel string

const (
	ArrivalModelUniform ArrivalModel = "uniform"
	ArrivalModelPoisson ArrivalModel = "poisson"
)

// Options configure the Runner.
type Options struct {
	Workers              []Worker                    // one goroutine per worker (required)
	Duration             time.Duration               // time limit (0 means no duration cap)
	InvocationsPerWorker int                         // iterations each worker runs (0 means unlimited until duration)
	RatePerSecond        int                         // iterations per second across all workers (0 means unlimited)
	ArrivalModel         ArrivalModel                // pacing model when RatePerSecond > 0
	RandomSeed           int64                       // seeds the Poisson sampler
	PoissonSampler       func() float64              // optional injection for tests
	LimiterFactory       func(rps int) *rate.Limiter // optional injection for tests
	Collector            *metrics.Collector          // optional; receives every iteration
	FailureLogger        FailureLogger               // optional; receives failed iterations
	OnIteration          func(it workload.Iteration) // optional; called after each iteration
}

func (o *Options) normalize() {
	if o.InvocationsPerWorker < 0 {
		o.InvocationsPerWorker = 0
	}
	if o.RatePerSecond < 0 {
		o.RatePerSecond = 0
	}
	if o.ArrivalModel == "" {
		o.ArrivalModel = ArrivalModelUniform
	}
	if o.RandomSeed == 0 {
		o.RandomSeed = time.Now().UnixNano()
	}
	if o.LimiterFactory == nil {
		o.LimiterFactory = func(rps int) *rate.Limiter {
			if rps <= 0 {
				return rate.NewLimiter(rate.Inf, 0)
			}
			// Burst equal to rps to smooth pacing under concurrency.
			return rate.NewLimiter(rate.Limit(rps), rps)
		}
	}
}
