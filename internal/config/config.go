package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/torosent/poolbench/internal/logging"
)

// Defaults mirror the reference benchmark: 100 threads, 10 x 1s warmup,
// 10 x 10s measurement, one fork.
const (
	DefaultThreads               = 100
	DefaultForks                 = 1
	DefaultWarmupIterations      = 10
	DefaultWarmupTime            = time.Second
	DefaultMeasurementIterations = 10
	DefaultMeasurementTime       = 10 * time.Second
	DefaultPoolMaxSize           = 20
	DefaultSleepBound            = 10
	DefaultPostWorkBound         = 1_000_000
	DefaultTracingSampleRate     = 0.01
)

// DefaultStrategies are the two pool strategies compared side by side.
var DefaultStrategies = []string{"semaphore-arraylist", "semaphore-concurrent-queue"}

type OutputFormat string

const (
	OutputText OutputFormat = "text"
	OutputJSON OutputFormat = "json"
	OutputYAML OutputFormat = "yaml"
)

type Config struct {
	Strategies    []string       `mapstructure:"strategies"`
	Threads       []int          `mapstructure:"threads"`
	Forks         int            `mapstructure:"forks"`
	Warmup        Phase          `mapstructure:"warmup"`
	Measurement   Phase          `mapstructure:"measurement"`
	Transactional bool           `mapstructure:"transactional"`
	Pool          PoolConfig     `mapstructure:"pool"`
	Workload      WorkloadConfig `mapstructure:"workload"`
	Seed          int64          `mapstructure:"seed"`
	Rate          int            `mapstructure:"rate"`
	Arrival       ArrivalConfig  `mapstructure:"arrival"`
	Verbosity     string         `mapstructure:"verbosity"`
	Output        OutputFormat   `mapstructure:"output"`
	LogErrors     bool           `mapstructure:"log_errors"`
	Thresholds    []string       `mapstructure:"thresholds"`
	LockFile      string         `mapstructure:"lock_file"`
	Tracing       TracingConfig  `mapstructure:"tracing"`
	ConfigFile    string         `mapstructure:"-"`
}

// Phase bounds one stage of a run. Iterations are repeated Time-long
// slices; Invocations, when positive, caps the iterations each worker runs
// per slice and ends the slice early once every worker reaches it.
type Phase struct {
	Iterations  int           `mapstructure:"iterations"`
	Time        time.Duration `mapstructure:"time"`
	Invocations int           `mapstructure:"invocations"`
}

type PoolConfig struct {
	MinSize         int           `mapstructure:"min_size"`
	MaxSize         int           `mapstructure:"max_size"`
	BlockingTimeout time.Duration `mapstructure:"blocking_timeout"`
}

type WorkloadConfig struct {
	SleepBound    int `mapstructure:"sleep_bound"`    // ms
	PostWorkBound int `mapstructure:"post_work_bound"` // CPU work magnitude
}

type ArrivalModel string

const (
	ArrivalModelUniform ArrivalModel = "uniform"
	ArrivalModelPoisson ArrivalModel = "poisson"
)

type ArrivalConfig struct {
	Model ArrivalModel `mapstructure:"model"`
}

type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	Protocol    string  `mapstructure:"protocol"` // grpc or http
	Insecure    bool    `mapstructure:"insecure"`
	ServiceName string  `mapstructure:"service_name"`
	SampleRate  float64 `mapstructure:"sample_rate"`
}

// Enabled reports whether an exporter endpoint is configured, either here
// or through OTEL_EXPORTER_OTLP_ENDPOINT.
func (t TracingConfig) Enabled() bool {
	return strings.TrimSpace(t.Endpoint) != "" || os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != ""
}

// Default returns the configuration used when neither a file nor flags
// set a value.
func Default() *Config {
	return &Config{
		Strategies:    append([]string(nil), DefaultStrategies...),
		Threads:       []int{DefaultThreads},
		Forks:         DefaultForks,
		Warmup:        Phase{Iterations: DefaultWarmupIterations, Time: DefaultWarmupTime},
		Measurement:   Phase{Iterations: DefaultMeasurementIterations, Time: DefaultMeasurementTime},
		Transactional: true,
		Pool:          PoolConfig{MaxSize: DefaultPoolMaxSize},
		Workload:      WorkloadConfig{SleepBound: DefaultSleepBound, PostWorkBound: DefaultPostWorkBound},
		Arrival:       ArrivalConfig{Model: ArrivalModelUniform},
		Verbosity:     string(logging.VerbosityNormal),
		Output:        OutputText,
		Tracing:       TracingConfig{SampleRate: DefaultTracingSampleRate},
	}
}

type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(e.issues, "; "))
}

func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

func (c Config) Validate() error {
	var issues []string

	if len(c.Strategies) == 0 {
		issues = append(issues, "at least one strategy is required")
	}
	seen := map[string]bool{}
	for idx, s := range c.Strategies {
		name := strings.ToLower(strings.TrimSpace(s))
		if name == "" {
			issues = append(issues, fmt.Sprintf("strategies[%d]: must not be empty", idx))
			continue
		}
		if seen[name] {
			issues = append(issues, fmt.Sprintf("strategies[%d]: duplicate strategy %q", idx, s))
		}
		seen[name] = true
	}

	if len(c.Threads) == 0 {
		issues = append(issues, "at least one thread count is required")
	}
	for idx, n := range c.Threads {
		if n < 1 {
			issues = append(issues, fmt.Sprintf("threads[%d]: must be >= 1", idx))
		}
	}
	if c.Forks < 1 {
		issues = append(issues, "forks must be >= 1")
	}

	issues = append(issues, validatePhase("warmup", c.Warmup, false)...)
	issues = append(issues, validatePhase("measurement", c.Measurement, true)...)

	if c.Pool.MinSize < 0 {
		issues = append(issues, "pool: min_size must be >= 0")
	}
	if c.Pool.MaxSize < 1 {
		issues = append(issues, "pool: max_size must be >= 1")
	}
	if c.Pool.MinSize > c.Pool.MaxSize {
		issues = append(issues, "pool: min_size must be <= max_size")
	}
	if c.Pool.BlockingTimeout < 0 {
		issues = append(issues, "pool: blocking_timeout must be >= 0")
	}

	if c.Workload.SleepBound < 1 {
		issues = append(issues, "workload: sleep_bound must be >= 1")
	}
	if c.Workload.PostWorkBound < 1 {
		issues = append(issues, "workload: post_work_bound must be >= 1")
	}

	if c.Rate < 0 {
		issues = append(issues, "rate must be >= 0")
	}
	issues = append(issues, validateArrivalConfig(c.Arrival)...)

	if _, err := logging.ParseVerbosity(c.Verbosity); err != nil {
		issues = append(issues, err.Error())
	}

	switch c.Output {
	case OutputText, OutputJSON, OutputYAML:
	default:
		issues = append(issues, fmt.Sprintf("output: must be 'text', 'json' or 'yaml', got %q", c.Output))
	}

	issues = append(issues, validateTracingConfig(c.Tracing)...)

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}
	return nil
}

func validatePhase(name string, p Phase, required bool) []string {
	var issues []string
	if p.Iterations < 0 {
		issues = append(issues, fmt.Sprintf("%s: iterations must be >= 0", name))
	}
	if required && p.Iterations < 1 {
		issues = append(issues, fmt.Sprintf("%s: iterations must be >= 1", name))
	}
	if p.Time < 0 {
		issues = append(issues, fmt.Sprintf("%s: time must be >= 0", name))
	}
	if p.Invocations < 0 {
		issues = append(issues, fmt.Sprintf("%s: invocations must be >= 0", name))
	}
	if p.Iterations > 0 && p.Time == 0 && p.Invocations == 0 {
		issues = append(issues, fmt.Sprintf("%s: time or invocations must bound each iteration", name))
	}
	return issues
}

func validateArrivalConfig(arr ArrivalConfig) []string {
	model := arr.Model
	if model == "" {
		model = ArrivalModelUniform
	}
	switch model {
	case ArrivalModelUniform, ArrivalModelPoisson:
		return nil
	default:
		return []string{fmt.Sprintf("arrival model %q is not supported", model)}
	}
}

func validateTracingConfig(t TracingConfig) []string {
	var issues []string
	switch strings.ToLower(strings.TrimSpace(t.Protocol)) {
	case "", "grpc", "http":
	default:
		issues = append(issues, fmt.Sprintf("tracing: protocol must be 'grpc' or 'http', got %q", t.Protocol))
	}
	if t.SampleRate < 0 || t.SampleRate > 1 {
		issues = append(issues, fmt.Sprintf("tracing: sample_rate must be between 0.0 and 1.0, got %g", t.SampleRate))
	}
	return issues
}
