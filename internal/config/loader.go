package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Loader handles loading configuration from files and command-line arguments.
type Loader struct{}

// ErrHelpRequested is returned when the user requests help via --help flag.
var ErrHelpRequested = errors.New("help requested")

// NewLoader creates a new configuration Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load parses command-line arguments and an optional configuration file to
// produce a Config. Flags override file values; unset values keep the
// defaults from Default.
func (Loader) Load(args []string) (*Config, error) {
	cmd := newFlagCommand()
	if err := cmd.Flags().Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
		return nil, err
	}

	flagSet := cmd.Flags()
	if helpFlag := flagSet.Lookup("help"); helpFlag != nil {
		if wantsHelp, err := strconv.ParseBool(helpFlag.Value.String()); err == nil && wantsHelp {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
	}
	if extra := flagSet.Args(); len(extra) > 0 {
		return nil, fmt.Errorf("unexpected arguments: %s", strings.Join(extra, " "))
	}

	configPath := flagSet.Lookup("config").Value.String()
	cfgViper := viper.New()
	if configPath != "" {
		cfgViper.SetConfigFile(configPath)
		if err := cfgViper.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	cfg := Default()
	cfg.ConfigFile = configPath

	if err := applyConfigSettings(cfg, cfgViper.AllSettings()); err != nil {
		return nil, err
	}
	if err := applyFlagOverrides(cfg, flagSet); err != nil {
		return nil, err
	}

	for i, s := range cfg.Strategies {
		cfg.Strategies[i] = strings.ToLower(strings.TrimSpace(s))
	}
	cfg.Output = OutputFormat(strings.ToLower(strings.TrimSpace(string(cfg.Output))))
	cfg.Verbosity = strings.ToLower(strings.TrimSpace(cfg.Verbosity))
	cfg.LockFile = strings.TrimSpace(cfg.LockFile)

	return cfg, nil
}

// applyConfigSettings applies settings from a config file to the Config struct.
func applyConfigSettings(cfg *Config, settings map[string]interface{}) error {
	if len(settings) == 0 {
		return nil
	}

	if raw, ok := lookupSetting(settings, "strategies", "strategy"); ok {
		val, err := asStringSlice(raw)
		if err != nil {
			return fmt.Errorf("strategies: %w", err)
		}
		cfg.Strategies = val
	}

	if raw, ok := lookupSetting(settings, "threads"); ok {
		val, err := asIntSlice(raw)
		if err != nil {
			return fmt.Errorf("threads: %w", err)
		}
		cfg.Threads = val
	}

	if raw, ok := lookupSetting(settings, "forks"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("forks: %w", err)
		}
		cfg.Forks = val
	}

	if raw, ok := lookupSetting(settings, "warmup"); ok {
		if err := applyPhase(&cfg.Warmup, raw); err != nil {
			return fmt.Errorf("warmup: %w", err)
		}
	}

	if raw, ok := lookupSetting(settings, "measurement"); ok {
		if err := applyPhase(&cfg.Measurement, raw); err != nil {
			return fmt.Errorf("measurement: %w", err)
		}
	}

	if raw, ok := lookupSetting(settings, "transactional"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("transactional: %w", err)
		}
		cfg.Transactional = val
	}

	if raw, ok := lookupSetting(settings, "pool"); ok {
		if err := applyPool(&cfg.Pool, raw); err != nil {
			return fmt.Errorf("pool: %w", err)
		}
	}

	if raw, ok := lookupSetting(settings, "workload"); ok {
		if err := applyWorkload(&cfg.Workload, raw); err != nil {
			return fmt.Errorf("workload: %w", err)
		}
	}

	if raw, ok := lookupSetting(settings, "seed"); ok {
		val, err := asInt64(raw)
		if err != nil {
			return fmt.Errorf("seed: %w", err)
		}
		cfg.Seed = val
	}

	if raw, ok := lookupSetting(settings, "rate"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("rate: %w", err)
		}
		cfg.Rate = val
	}

	if raw, ok := lookupSetting(settings, "arrival"); ok {
		arrival, err := parseArrival(raw)
		if err != nil {
			return fmt.Errorf("arrival: %w", err)
		}
		if arrival.Model != "" {
			cfg.Arrival = arrival
		}
	} else if raw, ok := lookupSetting(settings, "arrivalmodel", "arrival_model", "arrival-model"); ok {
		arrival, err := parseArrival(raw)
		if err != nil {
			return fmt.Errorf("arrivalModel: %w", err)
		}
		if arrival.Model != "" {
			cfg.Arrival = arrival
		}
	}

	if raw, ok := lookupSetting(settings, "verbosity"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("verbosity: %w", err)
		}
		cfg.Verbosity = val
	}

	if raw, ok := lookupSetting(settings, "output"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("output: %w", err)
		}
		cfg.Output = OutputFormat(val)
	}

	if raw, ok := lookupSetting(settings, "logerrors", "log_errors", "log-errors"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("logErrors: %w", err)
		}
		cfg.LogErrors = val
	}

	if raw, ok := lookupSetting(settings, "thresholds"); ok {
		thresholds, err := asStringSlice(raw)
		if err != nil {
			return fmt.Errorf("thresholds: %w", err)
		}
		cfg.Thresholds = thresholds
	}

	if raw, ok := lookupSetting(settings, "lockfile", "lock_file", "lock-file"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("lockFile: %w", err)
		}
		cfg.LockFile = val
	}

	if raw, ok := lookupSetting(settings, "tracing"); ok {
		tracing, err := parseTracing(raw, cfg.Tracing)
		if err != nil {
			return fmt.Errorf("tracing: %w", err)
		}
		cfg.Tracing = tracing
	}

	return nil
}

func applyPhase(phase *Phase, value interface{}) error {
	if value == nil {
		return nil
	}
	entry, err := toStringKeyMap(value)
	if err != nil {
		return err
	}
	if raw, ok := lookupSetting(entry, "iterations"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("iterations: %w", err)
		}
		phase.Iterations = val
	}
	if raw, ok := lookupSetting(entry, "time"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("time: %w", err)
		}
		phase.Time = dur
	}
	if raw, ok := lookupSetting(entry, "invocations"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("invocations: %w", err)
		}
		phase.Invocations = val
	}
	return nil
}

func applyPool(pool *PoolConfig, value interface{}) error {
	if value == nil {
		return nil
	}
	entry, err := toStringKeyMap(value)
	if err != nil {
		return err
	}
	if raw, ok := lookupSetting(entry, "minsize", "min_size", "min-size"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("min_size: %w", err)
		}
		pool.MinSize = val
	}
	if raw, ok := lookupSetting(entry, "maxsize", "max_size", "max-size"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("max_size: %w", err)
		}
		pool.MaxSize = val
	}
	if raw, ok := lookupSetting(entry, "blockingtimeout", "blocking_timeout", "blocking-timeout"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("blocking_timeout: %w", err)
		}
		pool.BlockingTimeout = dur
	}
	return nil
}

func applyWorkload(workload *WorkloadConfig, value interface{}) error {
	if value == nil {
		return nil
	}
	entry, err := toStringKeyMap(value)
	if err != nil {
		return err
	}
	if raw, ok := lookupSetting(entry, "sleepbound", "sleep_bound", "sleep-bound"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("sleep_bound: %w", err)
		}
		workload.SleepBound = val
	}
	if raw, ok := lookupSetting(entry, "postworkbound", "post_work_bound", "post-work-bound"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("post_work_bound: %w", err)
		}
		workload.PostWorkBound = val
	}
	return nil
}

func parseArrival(value interface{}) (ArrivalConfig, error) {
	if value == nil {
		return ArrivalConfig{}, nil
	}
	switch v := value.(type) {
	case string:
		model := strings.ToLower(strings.TrimSpace(v))
		if model == "" {
			return ArrivalConfig{}, nil
		}
		return ArrivalConfig{Model: ArrivalModel(model)}, nil
	default:
		entry, err := toStringKeyMap(value)
		if err != nil {
			return ArrivalConfig{}, err
		}
		if raw, ok := lookupSetting(entry, "model"); ok {
			val, err := asString(raw)
			if err != nil {
				return ArrivalConfig{}, fmt.Errorf("model: %w", err)
			}
			return ArrivalConfig{Model: ArrivalModel(strings.ToLower(strings.TrimSpace(val)))}, nil
		}
		return ArrivalConfig{}, fmt.Errorf("model field is required")
	}
}

// parseTracing overlays a tracing section on base; keys the section omits
// keep base's values.
func parseTracing(value interface{}, base TracingConfig) (TracingConfig, error) {
	if value == nil {
		return base, nil
	}
	entry, err := toStringKeyMap(value)
	if err != nil {
		return TracingConfig{}, err
	}
	tracing := base
	if raw, ok := lookupSetting(entry, "endpoint"); ok {
		val, err := asString(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("endpoint: %w", err)
		}
		tracing.Endpoint = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(entry, "protocol"); ok {
		val, err := asString(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("protocol: %w", err)
		}
		tracing.Protocol = strings.ToLower(strings.TrimSpace(val))
	}
	if raw, ok := lookupSetting(entry, "insecure"); ok {
		val, err := asBool(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("insecure: %w", err)
		}
		tracing.Insecure = val
	}
	if raw, ok := lookupSetting(entry, "servicename", "service_name", "service-name"); ok {
		val, err := asString(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("service_name: %w", err)
		}
		tracing.ServiceName = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(entry, "samplerate", "sample_rate", "sample-rate"); ok {
		val, err := asFloat64(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("sample_rate: %w", err)
		}
		tracing.SampleRate = val
	}
	return tracing, nil
}
