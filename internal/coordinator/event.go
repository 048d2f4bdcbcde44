package coordinator

import (
	"fmt"

	"github.com/torosent/poolbench/internal/metrics"
)

// PhaseKind names the part of a fork an iteration belongs to.
type PhaseKind string

const (
	PhaseWarmup      PhaseKind = "warmup"
	PhaseMeasurement PhaseKind = "measurement"
)

// Event marks the start (Done false) or end of one phase iteration.
type Event struct {
	Configuration string
	Fork          int
	Forks         int
	Phase         PhaseKind
	Iteration     int
	Iterations    int
	Done          bool
	Stats         metrics.Stats
}

func (e Event) String() string {
	return fmt.Sprintf("%s fork %d/%d %s %d/%d", e.Configuration, e.Fork, e.Forks, e.Phase, e.Iteration, e.Iterations)
}
