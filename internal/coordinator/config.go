package coordinator

import (
	"fmt"
	"time"

	"github.com/torosent/poolbench/internal/runner"
)

// Phase sizes the warmup or measurement part of a fork.
type Phase struct {
	Iterations  int           `json:"iterations" yaml:"iterations"`
	Time        time.Duration `json:"time" yaml:"time"`
	Invocations int           `json:"invocations,omitempty" yaml:"invocations,omitempty"`
}

// PoolSettings size the pool deployed for a configuration.
type PoolSettings struct {
	MinSize         int           `json:"min_size" yaml:"min_size"`
	MaxSize         int           `json:"max_size" yaml:"max_size"`
	BlockingTimeout time.Duration `json:"blocking_timeout,omitempty" yaml:"blocking_timeout,omitempty"`
}

// RunConfiguration is one benchmark cell: a pool strategy at a thread count.
// It is passed by value and never modified once the run starts.
type RunConfiguration struct {
	Name          string              `json:"name" yaml:"name"`
	Strategy      string              `json:"strategy" yaml:"strategy"`
	Threads       int                 `json:"threads" yaml:"threads"`
	Forks         int                 `json:"forks" yaml:"forks"`
	Warmup        Phase               `json:"warmup" yaml:"warmup"`
	Measurement   Phase               `json:"measurement" yaml:"measurement"`
	Transactional bool                `json:"transactional" yaml:"transactional"`
	Pool          PoolSettings        `json:"pool" yaml:"pool"`
	Seed          int64               `json:"seed,omitempty" yaml:"seed,omitempty"`
	Rate          int                 `json:"rate,omitempty" yaml:"rate,omitempty"`
	Arrival       runner.ArrivalModel `json:"arrival,omitempty" yaml:"arrival,omitempty"`
}

// DisplayName returns Name, or strategy and thread count when unnamed.
func (c RunConfiguration) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	return fmt.Sprintf("%s/threads=%d", c.Strategy, c.Threads)
}

// Configurations expands base into one configuration per strategy and
// thread count, strategies outermost.
func Configurations(base RunConfiguration, strategies []string, threads []int) []RunConfiguration {
	out := make([]RunConfiguration, 0, len(strategies)*len(threads))
	for _, s := range strategies {
		for _, n := range threads {
			rc := base
			rc.Strategy = s
			rc.Threads = n
			rc.Name = ""
			rc.Name = rc.DisplayName()
			out = append(out, rc)
		}
	}
	return out
}
