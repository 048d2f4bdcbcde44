package coordinator

import (
	"math"
	"time"

	"github.com/torosent/poolbench/internal/metrics"
	"github.com/torosent/poolbench/internal/resource"
)

// Status reports whether a configuration produced a result.
type Status string

const (
	StatusOK     Status = "ok"
	StatusFailed Status = "failed"
)

// confidenceZ is the two-sided 99.9% quantile of the normal distribution.
const confidenceZ = 3.2905

// RunResult is the outcome of one configuration across all of its forks.
type RunResult struct {
	Configuration RunConfiguration     `json:"configuration" yaml:"configuration"`
	Status        Status               `json:"status" yaml:"status"`
	Reason        string               `json:"reason,omitempty" yaml:"reason,omitempty"`
	RunIDs        []string             `json:"run_ids,omitempty" yaml:"run_ids,omitempty"`
	Samples       []float64            `json:"samples" yaml:"samples"`
	Score         float64              `json:"score" yaml:"score"`
	ScoreError    float64              `json:"score_error" yaml:"score_error"`
	ScoreMin      float64              `json:"score_min" yaml:"score_min"`
	ScoreMax      float64              `json:"score_max" yaml:"score_max"`
	Stats         metrics.Stats        `json:"stats" yaml:"stats"`
	Pools         []resource.PoolStats `json:"pools,omitempty" yaml:"pools,omitempty"`
	Duration      time.Duration        `json:"-" yaml:"-"`
}

// Failed reports whether the configuration was aborted.
func (r RunResult) Failed() bool { return r.Status == StatusFailed }

// Report gathers every configuration's result of one batch.
type Report struct {
	Started  time.Time     `json:"started" yaml:"started"`
	Duration time.Duration `json:"-" yaml:"-"`
	Results  []RunResult   `json:"results" yaml:"results"`
}

// Failed reports whether any configuration failed.
func (r Report) Failed() bool {
	for _, res := range r.Results {
		if res.Failed() {
			return true
		}
	}
	return false
}

// score summarizes per-iteration throughput samples: the mean, the 99.9%
// confidence half-width and the extremes. The error is zero with fewer than
// two samples.
func score(samples []float64) (mean, errHalf, lo, hi float64) {
	n := len(samples)
	if n == 0 {
		return 0, 0, 0, 0
	}
	lo, hi = samples[0], samples[0]
	var sum float64
	for _, s := range samples {
		sum += s
		lo = math.Min(lo, s)
		hi = math.Max(hi, s)
	}
	mean = sum / float64(n)
	if n < 2 {
		return mean, 0, lo, hi
	}
	var sq float64
	for _, s := range samples {
		d := s - mean
		sq += d * d
	}
	stddev := math.Sqrt(sq / float64(n-1))
	return mean, confidenceZ * stddev / math.Sqrt(float64(n)), lo, hi
}
