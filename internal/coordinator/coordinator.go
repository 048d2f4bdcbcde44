// Package coordinator runs batches of benchmark configurations. Each
// configuration runs its forks one after another; every fork gets a fresh
// fixture, its own set of workers, a discarded warmup and a measured phase.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/torosent/poolbench/internal/fixture"
	"github.com/torosent/poolbench/internal/logging"
	"github.com/torosent/poolbench/internal/metrics"
	"github.com/torosent/poolbench/internal/random"
	"github.com/torosent/poolbench/internal/resource"
	"github.com/torosent/poolbench/internal/runner"
	"github.com/torosent/poolbench/internal/worker"
	"github.com/torosent/poolbench/internal/workload"
)

const defaultTeardownTimeout = 30 * time.Second

// ErrNoWorkers is returned when every worker of a fork failed setup.
var ErrNoWorkers = errors.New("no worker could be set up")

// Options configure a Coordinator.
type Options struct {
	// NewEnvironment starts the environment for one fork.
	NewEnvironment func(ctx context.Context) (resource.Environment, error)
	// Artifacts returns what to deploy for a configuration, in order.
	Artifacts       func(rc RunConfiguration) ([]resource.Artifact, error)
	FactoryName     string
	TransactionName string
	ReadyTimeout    time.Duration
	TeardownTimeout time.Duration
	LockFile        string
	// Workload configures the executor shared by all workers.
	Workload      workload.Options
	FailureLogger runner.FailureLogger
	// OnPhase is called before and after every warmup and measurement iteration.
	OnPhase func(Event)
	// OnIteration is called after every workload iteration, warmup included.
	OnIteration func(workload.Iteration)
	Logger      *slog.Logger
}

// Coordinator runs configurations sequentially.
type Coordinator struct {
	opts     Options
	logger   *slog.Logger
	executor *workload.Executor
}

func New(opts Options) *Coordinator {
	if opts.TeardownTimeout <= 0 {
		opts.TeardownTimeout = defaultTeardownTimeout
	}
	logger := logging.OrDiscard(opts.Logger)
	wopts := opts.Workload
	if wopts.Logger == nil {
		wopts.Logger = logger
	}
	return &Coordinator{opts: opts, logger: logger, executor: workload.NewExecutor(wopts)}
}

// RunBatch runs every configuration in order. A failed configuration is
// reported with its reason and never prevents the ones after it; only
// cancellation of ctx stops the batch early, and configurations not started
// are then reported failed.
func (c *Coordinator) RunBatch(ctx context.Context, configs []RunConfiguration) Report {
	report := Report{Started: time.Now(), Results: make([]RunResult, 0, len(configs))}
	for _, rc := range configs {
		if err := ctx.Err(); err != nil {
			report.Results = append(report.Results, failed(rc, err))
			continue
		}
		report.Results = append(report.Results, c.Run(ctx, rc))
	}
	report.Duration = time.Since(report.Started)
	return report
}

// Run runs every fork of one configuration.
func (c *Coordinator) Run(ctx context.Context, rc RunConfiguration) RunResult {
	if rc.Forks <= 0 {
		rc.Forks = 1
	}
	logger := c.logger.With(slog.String("configuration", rc.DisplayName()))
	if c.opts.NewEnvironment == nil || c.opts.Artifacts == nil {
		return failed(rc, errors.New("no environment configured"))
	}
	if rc.Threads <= 0 {
		return failed(rc, fmt.Errorf("invalid thread count %d", rc.Threads))
	}
	for kind, p := range map[PhaseKind]Phase{PhaseWarmup: rc.Warmup, PhaseMeasurement: rc.Measurement} {
		if p.Iterations > 0 && p.Time <= 0 && p.Invocations <= 0 {
			return failed(rc, fmt.Errorf("%s iterations need a time or an invocation bound", kind))
		}
	}

	start := time.Now()
	result := RunResult{Configuration: rc, Status: StatusOK}
	aggregate := metrics.NewCollector()
	master := random.NewMaster(rc.Seed)
	var measured time.Duration

	for fork := 1; fork <= rc.Forks; fork++ {
		fr, err := c.runFork(ctx, rc, fork, master, aggregate, logger)
		if fr.runID != "" {
			result.RunIDs = append(result.RunIDs, fr.runID)
		}
		result.Samples = append(result.Samples, fr.samples...)
		result.Pools = append(result.Pools, fr.pools...)
		measured += fr.measured
		if err != nil {
			logger.Error("configuration failed", slog.Int("fork", fork), slog.Any("error", err))
			result.Status = StatusFailed
			result.Reason = err.Error()
			break
		}
	}

	result.Score, result.ScoreError, result.ScoreMin, result.ScoreMax = score(result.Samples)
	result.Stats = aggregate.Stats(measured)
	result.Duration = time.Since(start)
	return result
}

type forkResult struct {
	runID    string
	samples  []float64
	measured time.Duration
	pools    []resource.PoolStats
}

func (c *Coordinator) runFork(ctx context.Context, rc RunConfiguration, fork int, master *random.Master, aggregate *metrics.Collector, logger *slog.Logger) (fr forkResult, err error) {
	logger = logger.With(slog.Int("fork", fork))
	fx := fixture.New(fixture.Options{
		NewEnvironment:  c.opts.NewEnvironment,
		Artifacts:       func() ([]resource.Artifact, error) { return c.opts.Artifacts(rc) },
		FactoryName:     c.opts.FactoryName,
		TransactionName: c.opts.TransactionName,
		Transactional:   rc.Transactional,
		ReadyTimeout:    c.opts.ReadyTimeout,
		LockFile:        c.opts.LockFile,
		Logger:          logger,
	})
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.TeardownTimeout)
		defer cancel()
		if cerr := fx.Close(closeCtx); cerr != nil {
			logger.Warn("fixture teardown", slog.Any("error", cerr))
		}
	}()

	workers, err := c.setupWorkers(ctx, rc, fx, master, logger)
	defer func() {
		for _, w := range workers {
			w.Teardown(context.WithoutCancel(ctx))
		}
	}()
	if err != nil {
		return fr, err
	}
	fr.runID = fx.RunID()
	logger.Debug("fork ready", slog.String("run_id", fr.runID), slog.Int("workers", len(workers)))

	drivers := make([]runner.Worker, len(workers))
	for i, w := range workers {
		drivers[i] = w
	}

	if _, err := c.runPhase(ctx, rc, fork, PhaseWarmup, rc.Warmup, drivers, nil); err != nil {
		return fr, err
	}
	fr.samples, err = c.runPhase(ctx, rc, fork, PhaseMeasurement, rc.Measurement, drivers, func(col *metrics.Collector, d time.Duration) {
		aggregate.Merge(col)
		fr.measured += d
	})
	fr.pools = poolStats(context.WithoutCancel(ctx), fx)
	return fr, err
}

// setupWorkers prepares rc.Threads workers concurrently. A fixture setup
// failure aborts the fork; any other worker failure only drops that worker.
func (c *Coordinator) setupWorkers(ctx context.Context, rc RunConfiguration, fx *fixture.Fixture, master *random.Master, logger *slog.Logger) ([]*worker.Context, error) {
	slots := make([]*worker.Context, rc.Threads)
	g, gctx := errgroup.WithContext(ctx)
	for i := range slots {
		rnd := master.Derive()
		g.Go(func() error {
			w, err := worker.Setup(gctx, worker.Options{
				ID:       i + 1,
				Fixture:  fx,
				Rand:     rnd,
				Executor: c.executor,
				Logger:   logger,
			})
			if err != nil {
				if errors.Is(err, fixture.ErrSetup) || errors.Is(err, fixture.ErrFixtureBusy) {
					return err
				}
				logger.Warn("worker excluded", slog.Any("error", err))
				return nil
			}
			slots[i] = w
			return nil
		})
	}
	err := g.Wait()

	workers := make([]*worker.Context, 0, len(slots))
	for _, w := range slots {
		if w != nil {
			workers = append(workers, w)
		}
	}
	if err != nil {
		return workers, err
	}
	if len(workers) == 0 {
		return nil, ErrNoWorkers
	}
	return workers, nil
}

// runPhase runs the iterations of one phase, each with a fresh collector.
// measured receives every completed iteration's collector and duration.
func (c *Coordinator) runPhase(ctx context.Context, rc RunConfiguration, fork int, kind PhaseKind, phase Phase, workers []runner.Worker, measured func(*metrics.Collector, time.Duration)) ([]float64, error) {
	var samples []float64
	for i := 1; i <= phase.Iterations; i++ {
		if err := ctx.Err(); err != nil {
			return samples, err
		}
		ev := Event{
			Configuration: rc.DisplayName(),
			Fork:          fork,
			Forks:         rc.Forks,
			Phase:         kind,
			Iteration:     i,
			Iterations:    phase.Iterations,
		}
		c.emit(ev)

		col := metrics.NewCollector()
		res := runner.New(runner.Options{
			Workers:              workers,
			Duration:             phase.Time,
			InvocationsPerWorker: phase.Invocations,
			RatePerSecond:        rc.Rate,
			ArrivalModel:         rc.Arrival,
			RandomSeed:           rc.Seed,
			Collector:            col,
			FailureLogger:        c.opts.FailureLogger,
			OnIteration:          c.opts.OnIteration,
		}).Run(ctx)

		stats := col.Stats(res.Duration)
		ev.Done = true
		ev.Stats = stats
		c.emit(ev)
		c.logger.Info(fmt.Sprintf("%s iteration %d/%d", kind, i, phase.Iterations),
			slog.String("configuration", rc.DisplayName()),
			slog.Int("fork", fork),
			slog.Float64("ops_per_sec", stats.OpsPerSec),
			slog.Float64("invocations_per_sec", stats.InvocationsPerSec),
			slog.Int64("committed", stats.Committed),
			slog.Int64("rolled_back", stats.RolledBack),
			slog.Int64("errored", stats.Errored),
		)

		// A slice cut short by cancellation is not a sample.
		if err := ctx.Err(); err != nil {
			return samples, err
		}
		if measured != nil {
			samples = append(samples, stats.OpsPerSec)
			measured(col, res.Duration)
		}
	}
	return samples, nil
}

func (c *Coordinator) emit(ev Event) {
	if c.opts.OnPhase != nil {
		c.opts.OnPhase(ev)
	}
}

func poolStats(ctx context.Context, fx *fixture.Fixture) []resource.PoolStats {
	h, err := fx.Acquire(ctx)
	if err != nil {
		return nil
	}
	defer h.Release()
	if r, ok := h.Environment().(resource.PoolStatsReporter); ok {
		return r.PoolStats()
	}
	return nil
}

func failed(rc RunConfiguration, err error) RunResult {
	return RunResult{Configuration: rc, Status: StatusFailed, Reason: err.Error()}
}
