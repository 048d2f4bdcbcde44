package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/torosent/poolbench/internal/config"
	"github.com/torosent/poolbench/internal/coordinator"
	"github.com/torosent/poolbench/internal/embedded"
	"github.com/torosent/poolbench/internal/logging"
	"github.com/torosent/poolbench/internal/output"
	"github.com/torosent/poolbench/internal/resource"
	"github.com/torosent/poolbench/internal/runner"
	"github.com/torosent/poolbench/internal/threshold"
	"github.com/torosent/poolbench/internal/tracing"
	"github.com/torosent/poolbench/internal/workload"
)

const (
	progressInterval = time.Second
	shutdownTimeout  = 5 * time.Second
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	loader := config.NewLoader()
	cfg, err := loader.Load(args)
	if err != nil {
		if errors.Is(err, config.ErrHelpRequested) {
			return nil
		}
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	thresholds, err := threshold.ParseMultiple(cfg.Thresholds)
	if err != nil {
		return err
	}

	verbosity, err := logging.ParseVerbosity(cfg.Verbosity)
	if err != nil {
		return err
	}
	logger := logging.New(stderr, verbosity)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	tp, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Warn("tracing shutdown", slog.Any("error", err))
		}
	}()

	opts := newCoordinatorOptions(cfg, logger)
	opts.Workload.Tracer = tp.Tracer()
	if cfg.LogErrors {
		opts.FailureLogger = runner.SlogFailureLogger{Logger: logger}
	}

	var progress *output.ProgressReporter
	if verbosity == logging.VerbosityExtra && cfg.Output == config.OutputText {
		progress = output.NewProgressReporter(progressInterval, stderr)
		opts.OnPhase = progress.OnPhase
		opts.OnIteration = progress.Record
		progress.Start()
	}

	report := coordinator.New(opts).RunBatch(ctx, buildConfigurations(cfg))
	if progress != nil {
		progress.Stop()
	}

	if err := output.Write(stdout, output.Format(cfg.Output), report, colorSchemeFor(stdout)); err != nil {
		return err
	}

	results := threshold.NewEvaluator(thresholds).EvaluateReport(report)
	if len(results) > 0 {
		// Machine-readable reports keep stdout clean.
		w := stdout
		if cfg.Output != config.OutputText {
			w = stderr
		}
		fmt.Fprintln(w, "\nThresholds:")
		for _, r := range results {
			fmt.Fprintf(w, "  %s\n", r.Message)
		}
	}

	if ctx.Err() != nil {
		return errors.New("interrupted")
	}
	if n := countFailed(report); n > 0 {
		return fmt.Errorf("%d of %d configurations failed", n, len(report.Results))
	}
	if !threshold.AllPassed(results) {
		return errors.New("thresholds failed")
	}
	return nil
}

func newCoordinatorOptions(cfg *config.Config, logger *slog.Logger) coordinator.Options {
	return coordinator.Options{
		NewEnvironment: func(context.Context) (resource.Environment, error) {
			return embedded.New(embedded.Options{Logger: logger}), nil
		},
		Artifacts: func(rc coordinator.RunConfiguration) ([]resource.Artifact, error) {
			return embedded.Artifacts(descriptorFor(rc), rc.Transactional, embedded.DefaultTransactionName)
		},
		FactoryName:     embedded.DefaultFactoryName,
		TransactionName: embedded.DefaultTransactionName,
		LockFile:        cfg.LockFile,
		Workload: workload.Options{
			SleepBound:    cfg.Workload.SleepBound,
			PostWorkBound: cfg.Workload.PostWorkBound,
			Logger:        logger,
		},
		Logger: logger,
	}
}

func descriptorFor(rc coordinator.RunConfiguration) embedded.Descriptor {
	d := embedded.Descriptor{
		JNDIName: embedded.DefaultFactoryName,
		Strategy: rc.Strategy,
		MinSize:  rc.Pool.MinSize,
		MaxSize:  rc.Pool.MaxSize,
	}
	if rc.Pool.BlockingTimeout > 0 {
		d.BlockingTimeout = rc.Pool.BlockingTimeout.String()
	}
	return d
}

func buildConfigurations(cfg *config.Config) []coordinator.RunConfiguration {
	base := coordinator.RunConfiguration{
		Forks:         cfg.Forks,
		Warmup:        toPhase(cfg.Warmup),
		Measurement:   toPhase(cfg.Measurement),
		Transactional: cfg.Transactional,
		Pool: coordinator.PoolSettings{
			MinSize:         cfg.Pool.MinSize,
			MaxSize:         cfg.Pool.MaxSize,
			BlockingTimeout: cfg.Pool.BlockingTimeout,
		},
		Seed:    cfg.Seed,
		Rate:    cfg.Rate,
		Arrival: toRunnerArrivalModel(cfg.Arrival.Model),
	}
	return coordinator.Configurations(base, cfg.Strategies, cfg.Threads)
}

func toPhase(p config.Phase) coordinator.Phase {
	return coordinator.Phase{Iterations: p.Iterations, Time: p.Time, Invocations: p.Invocations}
}

func toRunnerArrivalModel(model config.ArrivalModel) runner.ArrivalModel {
	switch strings.ToLower(string(model)) {
	case string(config.ArrivalModelPoisson):
		return runner.ArrivalModelPoisson
	default:
		return runner.ArrivalModelUniform
	}
}

func countFailed(report coordinator.Report) int {
	n := 0
	for _, res := range report.Results {
		if res.Failed() {
			n++
		}
	}
	return n
}

// colorSchemeFor enables colors only when w is the terminal stdout.
func colorSchemeFor(w io.Writer) *output.ColorScheme {
	if f, ok := w.(*os.File); ok && f == os.Stdout && !color.NoColor {
		return output.DefaultColorScheme()
	}
	return output.NoColorScheme()
}
