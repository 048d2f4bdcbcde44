package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// RegisterFlags registers all CLI flags to a cobra command.
func RegisterFlags(cmd *cobra.Command) {
	configureFlags(cmd.Flags())
}

// newFlagCommand creates a cobra command with all flags configured.
func newFlagCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "poolbench",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.SetOut(os.Stdout)
	configureFlags(cmd.Flags())
	return cmd
}

// configureFlags sets up all CLI flags on the provided flag set.
func configureFlags(flags *pflag.FlagSet) {
	// Run shape
	flags.StringSliceP("strategy", "s", DefaultStrategies, "Pool strategy to benchmark (repeatable: semaphore-arraylist|sal, semaphore-concurrent-queue|sclq)")
	flags.IntSliceP("threads", "t", []int{DefaultThreads}, "Concurrent worker count (repeatable; each value is a separate configuration)")
	flags.IntP("forks", "f", DefaultForks, "Independent trials per configuration, each with a fresh fixture")
	flags.Int("warmup-iterations", DefaultWarmupIterations, "Warmup iterations (results discarded)")
	flags.Duration("warmup-time", DefaultWarmupTime, "Duration of each warmup iteration")
	flags.Int("warmup-invocations", 0, "Per-worker invocation cap for each warmup iteration (0 means time bound only)")
	flags.IntP("iterations", "i", DefaultMeasurementIterations, "Measurement iterations")
	flags.Duration("time", DefaultMeasurementTime, "Duration of each measurement iteration")
	flags.Int("invocations", 0, "Per-worker invocation cap for each measurement iteration (0 means time bound only)")

	// Workload flags
	flags.Bool("transactional", true, "Bound every iteration by a transaction")
	flags.Int("sleep-bound", DefaultSleepBound, "Upper bound (exclusive, ms) of the simulated I/O sleep")
	flags.Int("post-work-bound", DefaultPostWorkBound, "Upper bound (exclusive) of the post-I/O CPU work magnitude")
	flags.Int64("seed", 0, "Master random seed (0 derives one from the clock)")
	flags.IntP("rate", "r", 0, "Iterations per second cap across all workers (0 means unlimited)")
	flags.String("arrival-model", string(ArrivalModelUniform), "Arrival model to use when a rate is set (uniform or poisson)")

	// Pool flags
	flags.Int("pool-min-size", 0, "Connections created when the pool starts")
	flags.Int("pool-max-size", DefaultPoolMaxSize, "Maximum pooled connections")
	flags.Duration("pool-blocking-timeout", 0, "Max wait for a free connection (0 waits until the iteration is cancelled)")

	// Output flags
	flags.StringP("output", "o", string(OutputText), "Report format: text, json or yaml")
	flags.StringP("verbosity", "v", "normal", "Logging verbosity: silent, normal or extra")
	flags.Bool("log-errors", false, "Log each failed iteration to stderr")
	flags.StringSlice("threshold", nil, "Pass/fail assertions (repeatable, e.g. 'ops:rate > 100', 'latency:p99 < 50')")
	flags.String("lock-file", "", "Hold this file locked while a fixture is ready")
	flags.String("config", "", "Path to configuration file (JSON or YAML)")

	// Tracing flags
	flags.String("tracing-endpoint", "", "OTLP endpoint for iteration spans")
	flags.String("tracing-protocol", "grpc", "OTLP protocol: grpc or http")
	flags.Bool("tracing-insecure", false, "Disable TLS for the OTLP exporter")
	flags.Float64("tracing-sample-rate", DefaultTracingSampleRate, "Fraction of iterations traced (0 disables sampling)")
}

// displayHelp prints the help message for a command.
func displayHelp(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Usage: %s\n\nFlags:\n", cmd.UseLine())
	fs := cmd.Flags()
	fs.SetOutput(out)
	fs.PrintDefaults()
}

// applyFlagOverrides applies command-line flag values to the config, overriding
// values from the config file.
func applyFlagOverrides(cfg *Config, fs *pflag.FlagSet) error {
	if fs.Changed("strategy") {
		val, err := fs.GetStringSlice("strategy")
		if err != nil {
			return err
		}
		cfg.Strategies = val
	}
	if fs.Changed("threads") {
		val, err := fs.GetIntSlice("threads")
		if err != nil {
			return err
		}
		cfg.Threads = val
	}
	if fs.Changed("forks") {
		val, err := fs.GetInt("forks")
		if err != nil {
			return err
		}
		cfg.Forks = val
	}
	if fs.Changed("warmup-iterations") {
		val, err := fs.GetInt("warmup-iterations")
		if err != nil {
			return err
		}
		cfg.Warmup.Iterations = val
	}
	if fs.Changed("warmup-time") {
		val, err := fs.GetDuration("warmup-time")
		if err != nil {
			return err
		}
		cfg.Warmup.Time = val
	}
	if fs.Changed("warmup-invocations") {
		val, err := fs.GetInt("warmup-invocations")
		if err != nil {
			return err
		}
		cfg.Warmup.Invocations = val
	}
	if fs.Changed("iterations") {
		val, err := fs.GetInt("iterations")
		if err != nil {
			return err
		}
		cfg.Measurement.Iterations = val
	}
	if fs.Changed("time") {
		val, err := fs.GetDuration("time")
		if err != nil {
			return err
		}
		cfg.Measurement.Time = val
	}
	if fs.Changed("invocations") {
		val, err := fs.GetInt("invocations")
		if err != nil {
			return err
		}
		cfg.Measurement.Invocations = val
	}
	if fs.Changed("transactional") {
		val, err := fs.GetBool("transactional")
		if err != nil {
			return err
		}
		cfg.Transactional = val
	}
	if fs.Changed("sleep-bound") {
		val, err := fs.GetInt("sleep-bound")
		if err != nil {
			return err
		}
		cfg.Workload.SleepBound = val
	}
	if fs.Changed("post-work-bound") {
		val, err := fs.GetInt("post-work-bound")
		if err != nil {
			return err
		}
		cfg.Workload.PostWorkBound = val
	}
	if fs.Changed("seed") {
		val, err := fs.GetInt64("seed")
		if err != nil {
			return err
		}
		cfg.Seed = val
	}
	if fs.Changed("rate") {
		val, err := fs.GetInt("rate")
		if err != nil {
			return err
		}
		cfg.Rate = val
	}
	if fs.Changed("arrival-model") {
		val, err := fs.GetString("arrival-model")
		if err != nil {
			return err
		}
		cfg.Arrival.Model = ArrivalModel(strings.ToLower(strings.TrimSpace(val)))
	}
	if fs.Changed("pool-min-size") {
		val, err := fs.GetInt("pool-min-size")
		if err != nil {
			return err
		}
		cfg.Pool.MinSize = val
	}
	if fs.Changed("pool-max-size") {
		val, err := fs.GetInt("pool-max-size")
		if err != nil {
			return err
		}
		cfg.Pool.MaxSize = val
	}
	if fs.Changed("pool-blocking-timeout") {
		val, err := fs.GetDuration("pool-blocking-timeout")
		if err != nil {
			return err
		}
		cfg.Pool.BlockingTimeout = val
	}
	if fs.Changed("output") {
		val, err := fs.GetString("output")
		if err != nil {
			return err
		}
		cfg.Output = OutputFormat(val)
	}
	if fs.Changed("verbosity") {
		val, err := fs.GetString("verbosity")
		if err != nil {
			return err
		}
		cfg.Verbosity = val
	}
	if fs.Changed("log-errors") {
		val, err := fs.GetBool("log-errors")
		if err != nil {
			return err
		}
		cfg.LogErrors = val
	}
	if fs.Changed("threshold") {
		val, err := fs.GetStringSlice("threshold")
		if err != nil {
			return err
		}
		cfg.Thresholds = val
	}
	if fs.Changed("lock-file") {
		val, err := fs.GetString("lock-file")
		if err != nil {
			return err
		}
		cfg.LockFile = val
	}

	if fs.Changed("tracing-endpoint") {
		val, err := fs.GetString("tracing-endpoint")
		if err != nil {
			return err
		}
		cfg.Tracing.Endpoint = strings.TrimSpace(val)
	}
	if fs.Changed("tracing-protocol") {
		val, err := fs.GetString("tracing-protocol")
		if err != nil {
			return err
		}
		cfg.Tracing.Protocol = strings.ToLower(strings.TrimSpace(val))
	}
	if fs.Changed("tracing-insecure") {
		val, err := fs.GetBool("tracing-insecure")
		if err != nil {
			return err
		}
		cfg.Tracing.Insecure = val
	}
	if fs.Changed("tracing-sample-rate") {
		val, err := fs.GetFloat64("tracing-sample-rate")
		if err != nil {
			return err
		}
		cfg.Tracing.SampleRate = val
	}

	return nil
}
